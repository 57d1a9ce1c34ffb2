// Package config loads and merges harness configuration from a TOML file
// and environment variable overrides: measurement timing, the process
// roster, channel publish frequencies, and collaborator endpoints.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Default tolerances applied to any roster entry that does not set its own.
const (
	DefaultRelTol = 0.05
	DefaultAbsTol = 0.12
)

// Duration wraps time.Duration so that BurntSushi/toml can decode "8s"-style
// strings via the encoding.TextUnmarshaler interface.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	dur, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = dur
	return nil
}

// ProcessSpec describes one roster entry: a process under test, the power it
// is expected to add to the running baseline, and the channels it publishes
// on. Channels may be empty for processes measured by power draw alone.
// Roster order is significant: it defines baseline accumulation order.
type ProcessSpec struct {
	Name       string   `toml:"name"`
	PowerWatts float64  `toml:"power_watts"`
	Channels   []string `toml:"channels"`
	RelTol     float64  `toml:"rel_tol"`
	AbsTol     float64  `toml:"abs_tol"`

	// Command is the argv used by the exec controller to launch the
	// process. Optional when an external manager owns process lifecycle.
	Command []string `toml:"command"`
}

// HarnessConfig holds the measurement timing parameters.
type HarnessConfig struct {
	SampleTime    Duration `toml:"sample_time"`
	WarmupTime    Duration `toml:"warmup_time"`
	MaxWarmupTime Duration `toml:"max_warmup_time"`
	Integration   Duration `toml:"integration_time"`
	SettleTime    Duration `toml:"settle_time"`
}

// SensorConfig holds NUT power sensor connection settings.
type SensorConfig struct {
	Host     string   `toml:"host"`
	Port     int      `toml:"port"`
	Username string   `toml:"username"`
	Password string   `toml:"password"`
	UPSName  string   `toml:"ups_name"`
	PollStep Duration `toml:"poll_step"`
}

// BusConfig holds MQTT broker connection settings for the telemetry bus.
type BusConfig struct {
	Broker      string `toml:"broker"`
	Username    string `toml:"username"`
	Password    string `toml:"password"`
	ClientID    string `toml:"client_id"`
	TopicPrefix string `toml:"topic_prefix"`
	QOS         byte   `toml:"qos"`
	TLSCACert   string `toml:"tls_ca_cert"`
}

// MetricsConfig holds the optional Prometheus listener settings.
// An empty Listen disables the exporter.
type MetricsConfig struct {
	Listen string `toml:"listen"`
}

// Config is the top-level configuration struct.
type Config struct {
	Harness     HarnessConfig      `toml:"harness"`
	Sensor      SensorConfig       `toml:"sensor"`
	Bus         BusConfig          `toml:"bus"`
	Metrics     MetricsConfig      `toml:"metrics"`
	Frequencies map[string]float64 `toml:"frequencies"`
	Processes   []ProcessSpec      `toml:"process"`
}

// Load reads config from the first existing path in paths, then applies
// environment variable overrides and fills defaulted tolerances. Missing
// files are skipped silently; a malformed file returns an error. Calling
// Load() with no arguments returns pure defaults plus any env overrides.
func Load(paths ...string) (*Config, error) {
	cfg := defaults()

	// A [[process]] array in the file replaces the default roster
	// wholesale. Decoding over the prefilled slice would instead unify
	// file entries into the default entries occupying the same index,
	// leaking channels and tolerances the file never set.
	defaultRoster := cfg.Processes
	cfg.Processes = nil

	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, statErr := os.Stat(path); statErr == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %q: %w", path, err)
			}
			break // first found file wins
		} else if !os.IsNotExist(statErr) {
			return nil, fmt.Errorf("checking config path %q: %w", path, statErr)
		}
	}

	if cfg.Processes == nil {
		cfg.Processes = defaultRoster
	}
	applyEnvOverrides(cfg)
	fillTolerances(cfg)
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Harness: HarnessConfig{
			SampleTime:    Duration{8 * time.Second},
			WarmupTime:    Duration{4 * time.Second},
			MaxWarmupTime: Duration{10 * time.Second},
			Integration:   Duration{time.Second},
			SettleTime:    Duration{5 * time.Second},
		},
		Sensor: SensorConfig{
			Host:     "localhost",
			Port:     3493,
			UPSName:  "devboard",
			PollStep: Duration{250 * time.Millisecond},
		},
		Bus: BusConfig{
			Broker:      "tcp://localhost:1883",
			ClientID:    "powerdraw",
			TopicPrefix: "telemetry",
			QOS:         0,
		},
		Frequencies: map[string]float64{
			"roadCameraState":     20,
			"wideRoadCameraState": 20,
			"driverCameraState":   20,
			"modelV2":             20,
			"driverStateV2":       20,
			"mapRenderState":      2,
			"navModel":            2,
		},
		Processes: []ProcessSpec{
			{Name: "camerad", PowerWatts: 2.1, Channels: []string{"roadCameraState", "wideRoadCameraState", "driverCameraState"}},
			{Name: "modeld", PowerWatts: 1.12, AbsTol: 0.2, Channels: []string{"modelV2"}},
			{Name: "dmonitoringmodeld", PowerWatts: 0.4, Channels: []string{"driverStateV2"}},
			{Name: "encoderd", PowerWatts: 0.23},
			{Name: "mapsd", PowerWatts: 0.05, Channels: []string{"mapRenderState"}},
			{Name: "navmodeld", PowerWatts: 0.05, Channels: []string{"navModel"}},
		},
	}
}

// fillTolerances replaces unset (zero) per-process tolerances with the
// defaults. A roster entry cannot opt into a literal zero tolerance.
func fillTolerances(cfg *Config) {
	for i := range cfg.Processes {
		if cfg.Processes[i].RelTol == 0 {
			cfg.Processes[i].RelTol = DefaultRelTol
		}
		if cfg.Processes[i].AbsTol == 0 {
			cfg.Processes[i].AbsTol = DefaultAbsTol
		}
	}
}

// Validate checks invariants the harness depends on: unique roster names
// and a known positive frequency for every referenced channel.
func (c *Config) Validate() error {
	if len(c.Processes) == 0 {
		return fmt.Errorf("config: empty process roster")
	}
	seen := make(map[string]bool, len(c.Processes))
	for _, p := range c.Processes {
		if p.Name == "" {
			return fmt.Errorf("config: roster entry with empty name")
		}
		if seen[p.Name] {
			return fmt.Errorf("config: duplicate process name %q", p.Name)
		}
		seen[p.Name] = true
		for _, ch := range p.Channels {
			if c.Frequencies[ch] <= 0 {
				return fmt.Errorf("config: process %q references channel %q with no configured frequency", p.Name, ch)
			}
		}
	}
	if c.Harness.MaxWarmupTime.Duration < c.Harness.WarmupTime.Duration {
		return fmt.Errorf("config: max_warmup_time %s shorter than warmup_time %s",
			c.Harness.MaxWarmupTime, c.Harness.WarmupTime)
	}
	if c.Harness.Integration.Duration <= 0 {
		return fmt.Errorf("config: integration_time must be positive")
	}
	return nil
}

// applyEnvOverrides copies any set POWERDRAW_* environment variables into cfg.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("POWERDRAW_NUT_HOST"); v != "" {
		cfg.Sensor.Host = v
	}
	if v := os.Getenv("POWERDRAW_NUT_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Sensor.Port = p
		} else {
			log.Printf("config: ignoring invalid POWERDRAW_NUT_PORT=%q: %v", v, err)
		}
	}
	if v := os.Getenv("POWERDRAW_NUT_USERNAME"); v != "" {
		cfg.Sensor.Username = v
	}
	if v := os.Getenv("POWERDRAW_NUT_PASSWORD"); v != "" {
		cfg.Sensor.Password = v
	}
	if v := os.Getenv("POWERDRAW_NUT_UPS_NAME"); v != "" {
		cfg.Sensor.UPSName = v
	}
	if v := os.Getenv("POWERDRAW_MQTT_BROKER"); v != "" {
		cfg.Bus.Broker = v
	}
	if v := os.Getenv("POWERDRAW_MQTT_USERNAME"); v != "" {
		cfg.Bus.Username = v
	}
	if v := os.Getenv("POWERDRAW_MQTT_PASSWORD"); v != "" {
		cfg.Bus.Password = v
	}
	if v := os.Getenv("POWERDRAW_MQTT_CLIENT_ID"); v != "" {
		cfg.Bus.ClientID = v
	}
	if v := os.Getenv("POWERDRAW_MQTT_TOPIC_PREFIX"); v != "" {
		cfg.Bus.TopicPrefix = v
	}
	if v := os.Getenv("POWERDRAW_MQTT_TLS_CA_CERT"); v != "" {
		cfg.Bus.TLSCACert = v
	}
	if v := os.Getenv("POWERDRAW_METRICS_LISTEN"); v != "" {
		cfg.Metrics.Listen = v
	}
}
