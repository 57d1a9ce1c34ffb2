// Package metrics exports live run telemetry to Prometheus so a long
// soak on the bench can be watched from a dashboard while the harness
// works through the roster.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Prom implements harness.Observer on a Prometheus registry.
type Prom struct {
	power    prometheus.Gauge
	baseline prometheus.Gauge
	messages *prometheus.CounterVec
	failures *prometheus.CounterVec
}

// NewProm builds and registers the run telemetry collectors on reg.
func NewProm(reg prometheus.Registerer) *Prom {
	p := &Prom{
		power: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "powerdraw_power_watts",
			Help: "Most recent instantaneous power sample.",
		}),
		baseline: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "powerdraw_baseline_watts",
			Help: "Ambient power measured before the roster was started.",
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "powerdraw_messages_total",
			Help: "Telemetry messages drained, by channel.",
		}, []string{"channel"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "powerdraw_check_failures_total",
			Help: "Violated acceptance checks, by process and check.",
		}, []string{"process", "check"}),
	}
	reg.MustRegister(p.power, p.baseline, p.messages, p.failures)
	return p
}

// ObservePower records one instantaneous power sample.
func (p *Prom) ObservePower(watts float64) {
	p.power.Set(watts)
}

// ObserveMessages counts drained messages for a channel.
func (p *Prom) ObserveMessages(channel string, count int) {
	p.messages.WithLabelValues(channel).Add(float64(count))
}

// ObserveBaseline records the ambient baseline.
func (p *Prom) ObserveBaseline(watts float64) {
	p.baseline.Set(watts)
}

// ObserveFailure counts one violated check.
func (p *Prom) ObserveFailure(process, check string) {
	p.failures.WithLabelValues(process, check).Inc()
}
