package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments of the case workflow.
type Metrics struct {
	TransitionsTotal *prometheus.CounterVec
	RejectionsTotal  *prometheus.CounterVec
	CasesSubmitted   prometheus.Counter
	DeedsIssued      prometheus.Counter
}

// New creates and registers the case workflow metrics.
func New() *Metrics {
	return &Metrics{
		TransitionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "landregistry_case_transitions_total",
			Help: "Accepted case transitions by action.",
		}, []string{"action"}),
		RejectionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "landregistry_case_action_rejections_total",
			Help: "Refused case actions by error code.",
		}, []string{"action", "code"}),
		CasesSubmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "landregistry_cases_submitted_total",
			Help: "Total cases submitted by citizens.",
		}),
		DeedsIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "landregistry_deeds_issued_total",
			Help: "Total digital deeds issued on approval.",
		}),
	}
}

// IncrementTransition records one accepted transition.
func (m *Metrics) IncrementTransition(action string) {
	m.TransitionsTotal.WithLabelValues(action).Inc()
}

// IncrementRejection records one refused action.
func (m *Metrics) IncrementRejection(action, code string) {
	m.RejectionsTotal.WithLabelValues(action, code).Inc()
}
