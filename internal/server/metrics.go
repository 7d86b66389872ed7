package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks engine activity for operational dashboards.
type Metrics struct {
	// EventsRecorded counts delivery events by kind
	// (sent|delivered|opened|clicked|unsubscribed|bounced|complained).
	EventsRecorded *prometheus.CounterVec

	// TestsCreated counts A/B tests registered through the API.
	TestsCreated prometheus.Counter

	// Evaluations counts result computations.
	Evaluations prometheus.Counter

	// Rollouts counts winner rollout attempts by outcome
	// (rolled_out|no_winner).
	Rollouts *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		EventsRecorded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mailsplit_events_recorded_total",
			Help: "Delivery events recorded, by event kind.",
		}, []string{"kind"}),
		TestsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "mailsplit_tests_created_total",
			Help: "A/B tests created.",
		}),
		Evaluations: factory.NewCounter(prometheus.CounterOpts{
			Name: "mailsplit_evaluations_total",
			Help: "Test result evaluations performed.",
		}),
		Rollouts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mailsplit_rollouts_total",
			Help: "Winner rollout attempts, by outcome.",
		}, []string{"outcome"}),
	}
}
