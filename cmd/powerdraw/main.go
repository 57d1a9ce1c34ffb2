package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/powerdraw/internal/bus"
	"github.com/sweeney/powerdraw/internal/config"
	"github.com/sweeney/powerdraw/internal/harness"
	"github.com/sweeney/powerdraw/internal/metrics"
	"github.com/sweeney/powerdraw/internal/procs"
	"github.com/sweeney/powerdraw/internal/report"
	"github.com/sweeney/powerdraw/internal/sensor"
)

func main() {
	configPath := flag.String("config", "/etc/powerdraw/config.toml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath, "./powerdraw.toml")
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("powerdraw starting (NUT: %s:%d, UPS: %s, MQTT: %s, roster: %d processes)",
		cfg.Sensor.Host, cfg.Sensor.Port, cfg.Sensor.UPSName, cfg.Bus.Broker, len(cfg.Processes))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	b, err := bus.NewMQTT(cfg.Bus)
	if err != nil {
		log.Fatalf("connecting to MQTT broker: %v", err)
	}
	defer b.Close() //nolint:errcheck

	// Connect to the power sensor with exponential backoff, interruptible
	// by signal.
	sens, err := connectSensor(ctx, cfg.Sensor)
	if err != nil {
		log.Printf("sensor connection interrupted: %v", err)
		return
	}
	defer sens.Close() //nolint:errcheck
	log.Printf("connected to NUT at %s:%d", cfg.Sensor.Host, cfg.Sensor.Port)

	deps := harness.Deps{
		Sensor: sens,
		Bus:    b,
		Procs:  procs.NewExec(cfg.Processes),
		Freqs:  bus.FrequencyTable(cfg.Frequencies),
	}
	if cfg.Metrics.Listen != "" {
		deps.Observer = metrics.NewProm(prometheus.DefaultRegisterer)
		go serveMetrics(cfg.Metrics.Listen)
	}

	h := harness.New(harnessConfig(cfg), cfg.Processes, deps)
	result, err := h.Run(ctx)
	if err != nil {
		log.Fatalf("run aborted: %v", err)
	}

	fmt.Print(report.Render(result))
	fmt.Print(report.RenderFailures(result.Failures))
	os.Exit(exitCode(result))
}

// harnessConfig maps the loaded config onto the harness timing parameters.
func harnessConfig(cfg *config.Config) harness.Config {
	return harness.Config{
		SampleTime:    cfg.Harness.SampleTime.Duration,
		WarmupTime:    cfg.Harness.WarmupTime.Duration,
		MaxWarmupTime: cfg.Harness.MaxWarmupTime.Duration,
		Integration:   cfg.Harness.Integration.Duration,
		SettleTime:    cfg.Harness.SettleTime.Duration,
	}
}

// exitCode maps a completed run onto the process exit status: zero only
// when every check passed.
func exitCode(result *harness.RunResult) int {
	if result.Failed() {
		return 1
	}
	return 0
}

// connectSensor dials upsd with exponential backoff (1 s → 60 s cap).
// Each sleep is interruptible via ctx cancellation.
func connectSensor(ctx context.Context, cfg config.SensorConfig) (*sensor.NUT, error) {
	backoff := time.Second
	const maxBackoff = 60 * time.Second

	for {
		s, err := sensor.NewNUT(cfg)
		if err == nil {
			return s, nil
		}
		log.Printf("NUT connection failed: %v — retrying in %s", err, backoff)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Printf("metrics listener: %v", err)
	}
}
