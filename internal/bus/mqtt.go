package bus

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/powerdraw/internal/config"
)

// MQTT subscribes to telemetry channels published under a common topic
// prefix and buffers arrivals so Drain never blocks.
type MQTT struct {
	client mqtt.Client
	prefix string
	qos    byte
}

// NewMQTT creates a connected MQTT bus client.
func NewMQTT(cfg config.BusConfig) (*MQTT, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetKeepAlive(60 * time.Second)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)

	if cfg.TLSCACert != "" {
		tlsCfg, err := newTLSConfig(cfg.TLSCACert)
		if err != nil {
			return nil, fmt.Errorf("loading TLS CA cert %q: %w", cfg.TLSCACert, err)
		}
		opts.SetTLSConfig(tlsCfg)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connecting to MQTT broker %q: %w", cfg.Broker, token.Error())
	}
	return &MQTT{client: client, prefix: cfg.TopicPrefix, qos: cfg.QOS}, nil
}

// Subscribe attaches a buffering handler to the channel's topic and waits
// for the broker to acknowledge the subscription.
func (b *MQTT) Subscribe(channel string) (Subscription, error) {
	sub := &mqttSubscription{
		client:  b.client,
		channel: channel,
		topic:   Topic(b.prefix, channel),
	}
	token := b.client.Subscribe(sub.topic, b.qos, sub.onMessage)
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("subscribing to %q: %w", sub.topic, token.Error())
	}
	return sub, nil
}

// Close disconnects from the broker gracefully.
func (b *MQTT) Close() error {
	b.client.Disconnect(250)
	return nil
}

// Topic returns the MQTT topic a channel is published under.
func Topic(prefix, channel string) string {
	if prefix == "" {
		return channel
	}
	return prefix + "/" + channel
}

type mqttSubscription struct {
	client  mqtt.Client
	channel string
	topic   string

	mu      sync.Mutex
	pending [][]byte
}

func (s *mqttSubscription) onMessage(_ mqtt.Client, m mqtt.Message) {
	s.mu.Lock()
	s.pending = append(s.pending, m.Payload())
	s.mu.Unlock()
}

// Channel returns the channel name this subscription covers.
func (s *mqttSubscription) Channel() string { return s.channel }

// Drain swaps out the pending buffer and returns it. Never blocks.
func (s *mqttSubscription) Drain() [][]byte {
	s.mu.Lock()
	p := s.pending
	s.pending = nil
	s.mu.Unlock()
	return p
}

// Unsubscribe detaches the handler from the topic.
func (s *mqttSubscription) Unsubscribe() error {
	token := s.client.Unsubscribe(s.topic)
	token.Wait()
	return token.Error()
}

// newTLSConfig builds a tls.Config trusting the CA certificate at path.
func newTLSConfig(path string) (*tls.Config, error) {
	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pemBytes) {
		return nil, fmt.Errorf("no valid PEM certificates in %q", path)
	}
	return &tls.Config{RootCAs: pool}, nil
}
