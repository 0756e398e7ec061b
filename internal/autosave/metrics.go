package autosave

import "github.com/prometheus/client_golang/prometheus"

// Save results used as the "result" label.
const (
	ResultOK    = "ok"
	ResultError = "error"
	ResultQuota = "quota"
)

// Metrics counts autosave outcomes.
type Metrics struct {
	Saves     *prometheus.CounterVec
	Coalesced prometheus.Counter
	Skipped   prometheus.Counter
}

// NewMetrics creates the autosave counters and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "schoolscreen",
			Subsystem: "autosave",
			Name:      "saves_total",
			Help:      "Autosave attempts by result.",
		}, []string{"result"}),
		Coalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "schoolscreen",
			Subsystem: "autosave",
			Name:      "coalesced_total",
			Help:      "Mutations folded into an already pending save.",
		}),
		Skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "schoolscreen",
			Subsystem: "autosave",
			Name:      "skipped_total",
			Help:      "Saves skipped because no subject was identified.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Saves, m.Coalesced, m.Skipped)
	}
	return m
}
