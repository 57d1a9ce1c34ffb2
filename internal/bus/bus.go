// Package bus provides per-channel telemetry subscriptions with a
// non-blocking drain primitive, backed by MQTT.
package bus

// Bus is the message transport port the harness depends on. The MQTT
// client and FakeBus both implement it.
type Bus interface {
	Subscribe(channel string) (Subscription, error)
	Close() error
}

// Subscription is a handle on one channel. Drain returns every message
// that arrived since the previous Drain call without blocking; it may be
// empty.
type Subscription interface {
	Channel() string
	Drain() [][]byte
	Unsubscribe() error
}
