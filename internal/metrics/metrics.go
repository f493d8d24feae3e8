package metrics

import (
	"time"

	"github.com/fluentcare/parley/internal/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the engine's Prometheus instruments. It satisfies the
// pipeline and session recorder interfaces and is wired as an FSM
// transition sink.
type Metrics struct {
	liveSessions    prometheus.Gauge
	sessionsStarted prometheus.Counter
	sessionsEnded   *prometheus.CounterVec

	transitions         *prometheus.CounterVec
	rejectedTransitions *prometheus.CounterVec

	turnsCompleted *prometheus.CounterVec
	turnsRejected  prometheus.Counter
	stageFailures  *prometheus.CounterVec
	stageDurations *prometheus.HistogramVec

	analysisRuns *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		liveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "parley_live_sessions",
			Help: "Number of sessions currently admitted.",
		}),
		sessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "parley_sessions_started_total",
			Help: "Total number of sessions started.",
		}),
		sessionsEnded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_sessions_ended_total",
			Help: "Total number of sessions ended, by end reason.",
		}, []string{"reason"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_state_transitions_total",
			Help: "Accepted session state machine transitions, by event.",
		}, []string{"event"}),
		rejectedTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_state_transitions_rejected_total",
			Help: "Rejected session state machine events, by event.",
		}, []string{"event"}),
		turnsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_turns_completed_total",
			Help: "Turns that reached a terminal status, by status.",
		}, []string{"status"}),
		turnsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "parley_turns_rejected_total",
			Help: "Turns rejected by the admission controller.",
		}),
		stageFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_pipeline_stage_failures_total",
			Help: "Pipeline stage attempt failures, by stage.",
		}, []string{"stage"}),
		stageDurations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "parley_pipeline_stage_duration_seconds",
			Help:    "Pipeline stage wall time, by stage.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"stage"}),
		analysisRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_analysis_runs_total",
			Help: "Post-session analysis runs, by outcome.",
		}, []string{"outcome"}),
	}
}

// RecordTransition is registered as a session.TransitionSink.
func (m *Metrics) RecordTransition(tr session.Transition) {
	m.transitions.WithLabelValues(string(tr.Event)).Inc()
}

func (m *Metrics) RecordRejectedEvent(ev session.Event) {
	m.rejectedTransitions.WithLabelValues(string(ev)).Inc()
}

func (m *Metrics) SessionStarted() {
	m.sessionsStarted.Inc()
	m.liveSessions.Inc()
}

func (m *Metrics) SessionEnded(reason string) {
	m.sessionsEnded.WithLabelValues(reason).Inc()
	m.liveSessions.Dec()
}

func (m *Metrics) TurnCompleted(status string) {
	m.turnsCompleted.WithLabelValues(status).Inc()
}

func (m *Metrics) TurnRejected() {
	m.turnsRejected.Inc()
}

func (m *Metrics) StageFailure(stage string) {
	m.stageFailures.WithLabelValues(stage).Inc()
}

func (m *Metrics) StageDuration(stage string, d time.Duration) {
	m.stageDurations.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) AnalysisRun(outcome string) {
	m.analysisRuns.WithLabelValues(outcome).Inc()
}
