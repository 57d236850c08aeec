package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the interview engine.
type Metrics struct {
	// Generator calls by purpose ("question", "report") and outcome
	GeneratorCalls *prometheus.CounterVec

	// Generator latency by purpose
	GeneratorLatency *prometheus.HistogramVec

	// Questions served from the neutral fallback after a malformed reply
	FallbackQuestions prometheus.Counter

	AnswersRecorded prometheus.Counter

	// Evidence fields dropped for naming an unknown category, dimension or slot
	EvidenceDropped *prometheus.CounterVec

	// Completed interviews by stop reason
	SessionsCompleted *prometheus.CounterVec

	ReportsGenerated prometheus.Counter
}

// New registers all interview metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		GeneratorCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "neodiag_generator_calls_total",
			Help: "Generator calls by purpose and outcome",
		}, []string{"purpose", "outcome"}), // outcome: "ok", "error"

		GeneratorLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "neodiag_generator_duration_seconds",
			Help:    "Duration of generator calls by purpose",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40},
		}, []string{"purpose"}),

		FallbackQuestions: f.NewCounter(prometheus.CounterOpts{
			Name: "neodiag_fallback_questions_total",
			Help: "Questions replaced by the neutral fallback after an unparseable generator reply",
		}),

		AnswersRecorded: f.NewCounter(prometheus.CounterOpts{
			Name: "neodiag_answers_recorded_total",
			Help: "Answers accepted from subjects",
		}),

		EvidenceDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "neodiag_evidence_dropped_total",
			Help: "Evidence entries ignored because they name unknown keys",
		}, []string{"field"}), // field: "scores", "dimensions", "positions", "confidence"

		SessionsCompleted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "neodiag_sessions_completed_total",
			Help: "Interviews completed by stop reason",
		}, []string{"reason"}),

		ReportsGenerated: f.NewCounter(prometheus.CounterOpts{
			Name: "neodiag_reports_generated_total",
			Help: "Narrative reports generated and stored",
		}),
	}
}

// ObserveGenerator records one generator call.
func (m *Metrics) ObserveGenerator(purpose string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.GeneratorCalls.WithLabelValues(purpose, outcome).Inc()
	m.GeneratorLatency.WithLabelValues(purpose).Observe(d.Seconds())
}

func (m *Metrics) IncrementFallback() {
	if m != nil {
		m.FallbackQuestions.Inc()
	}
}

func (m *Metrics) IncrementAnswers() {
	if m != nil {
		m.AnswersRecorded.Inc()
	}
}

// AddDropped records n ignored evidence entries for field.
func (m *Metrics) AddDropped(field string, n int) {
	if m != nil && n > 0 {
		m.EvidenceDropped.WithLabelValues(field).Add(float64(n))
	}
}

func (m *Metrics) IncrementCompleted(reason string) {
	if m != nil {
		m.SessionsCompleted.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) IncrementReports() {
	if m != nil {
		m.ReportsGenerated.Inc()
	}
}
