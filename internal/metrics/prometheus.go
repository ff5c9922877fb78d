package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder mirrors the JSONL event stream into live Prometheus
// counters and a cycle-time histogram, for the `metrics serve` subcommand.
type PrometheusRecorder struct {
	dispatchTotal  *prometheus.CounterVec
	recoveryTotal  *prometheus.CounterVec
	schedulerTicks prometheus.Counter
	cycleDuration  prometheus.Histogram
}

// NewPrometheusRecorder registers its collectors against reg and returns a
// ready recorder.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	r := &PrometheusRecorder{
		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskctl",
			Name:      "dispatch_total",
			Help:      "Dispatch outcomes by decision and reason code.",
		}, []string{"decision", "reason_code"}),
		recoveryTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskctl",
			Name:      "recovery_total",
			Help:      "Recovery loop outcomes.",
		}, []string{"state"}),
		schedulerTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "taskctl",
			Name:      "scheduler_ticks_total",
			Help:      "Scheduler/autopilot ticks.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "taskctl",
			Name:      "dispatch_cycle_ms",
			Help:      "Dispatch cycle duration in milliseconds.",
			Buckets:   prometheus.ExponentialBuckets(50, 2, 12),
		}),
	}
	reg.MustRegister(r.dispatchTotal, r.recoveryTotal, r.schedulerTicks, r.cycleDuration)
	return r
}

// Observe updates the live collectors from one metrics event.
func (r *PrometheusRecorder) Observe(event Event) {
	switch event.Kind {
	case EventDispatchDone:
		r.dispatchTotal.WithLabelValues("done", "").Inc()
	case EventDispatchBlocked:
		r.dispatchTotal.WithLabelValues("blocked", event.ReasonCode).Inc()
	case EventRecoveryScheduled:
		r.recoveryTotal.WithLabelValues("scheduled").Inc()
	case EventRecoveryEscalated:
		r.recoveryTotal.WithLabelValues("escalated").Inc()
	case EventSchedulerTick:
		r.schedulerTicks.Inc()
	}
	if event.CycleMs > 0 {
		r.cycleDuration.Observe(float64(event.CycleMs))
	}
}
