// Package telemetry provides Prometheus metrics for experiment runs.
// Every Metrics value owns a private registry so concurrent experiments and
// tests never share collectors.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "contactsim"

// Metrics groups the experiment collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	DialDecisions       *prometheus.CounterVec
	CallsDialed         *prometheus.CounterVec
	RoutingFlag         *prometheus.GaugeVec
	FlagChanges         prometheus.Counter
	StopChecks          *prometheus.CounterVec
	IntervalHalfWidth   prometheus.Gauge
	ReplicationsTotal   prometheus.Counter
	ReplicationDuration prometheus.Histogram
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		DialDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dialer",
			Name:      "decisions_total",
			Help:      "Dialer policy evaluations, by policy",
		}, []string{"policy"}),
		CallsDialed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dialer",
			Name:      "calls_dialed_total",
			Help:      "Outbound calls launched by dialer decisions, by policy",
		}, []string{"policy"}),
		RoutingFlag: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "agentsmove",
			Name:      "routing_flag",
			Help:      "Latest agents-move routing flag value (0 or 1)",
		}, []string{"flag"}),
		FlagChanges: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agentsmove",
			Name:      "flag_changes_total",
			Help:      "Checked periods after which the routing flags changed",
		}),
		StopChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stopping",
			Name:      "checks_total",
			Help:      "Stopping-condition checks, by outcome reason",
		}, []string{"reason"}),
		IntervalHalfWidth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stopping",
			Name:      "interval_half_width",
			Help:      "Half-width of the latest confidence interval around the target measure",
		}),
		ReplicationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "experiment",
			Name:      "replications_total",
			Help:      "Completed replications",
		}),
		ReplicationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "experiment",
			Name:      "replication_duration_seconds",
			Help:      "Wall time of one replication",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}
}

// ObserveDial records one dialer decision.
func (m *Metrics) ObserveDial(policy string, dialed int) {
	if m == nil {
		return
	}
	m.DialDecisions.WithLabelValues(policy).Inc()
	m.CallsDialed.WithLabelValues(policy).Add(float64(dialed))
}

// ObserveFlags records the agents-move flags after a checked-period close.
func (m *Metrics) ObserveFlags(outboundToInbound, inboundToOutbound, changed bool) {
	if m == nil {
		return
	}
	m.RoutingFlag.WithLabelValues("outbound_to_inbound").Set(boolGauge(outboundToInbound))
	m.RoutingFlag.WithLabelValues("inbound_to_outbound").Set(boolGauge(inboundToOutbound))
	if changed {
		m.FlagChanges.Inc()
	}
}

// ObserveStop records one stopping-condition check.
func (m *Metrics) ObserveStop(reason string, halfWidth float64) {
	if m == nil {
		return
	}
	m.StopChecks.WithLabelValues(reason).Inc()
	m.IntervalHalfWidth.Set(halfWidth)
}

// ObserveReplication records one completed replication.
func (m *Metrics) ObserveReplication(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ReplicationsTotal.Inc()
	m.ReplicationDuration.Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
