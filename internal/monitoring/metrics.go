package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the Prometheus collectors for the session workflow and the
// overlap engine. Construct one per orchestrator with NewMetrics and register
// it on the application's registry; a nil *Metrics is safe to call.
type Metrics struct {
	SessionsStarted   *prometheus.CounterVec // by camera
	SessionsEnded     *prometheus.CounterVec // by camera, reason
	SessionsRejected  *prometheus.CounterVec // by camera (admission control)
	ActiveSessions    *prometheus.GaugeVec   // by camera
	FramesAccumulated prometheus.Counter
	GradesComputed    *prometheus.CounterVec // by grade label
	ActuatorFailures  prometheus.Counter
	InternalErrors    *prometheus.CounterVec // by operation
	OverlapCacheHits  prometheus.Counter
	OverlapCacheMiss  prometheus.Counter
}

// NewMetrics creates the workflow collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SessionsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sortline_sessions_started_total",
			Help: "Accumulation sessions started, by camera.",
		}, []string{"camera"}),
		SessionsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sortline_sessions_ended_total",
			Help: "Accumulation sessions finalized, by camera and end reason.",
		}, []string{"camera", "reason"}),
		SessionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sortline_sessions_rejected_total",
			Help: "Session starts rejected by per-camera admission control.",
		}, []string{"camera"}),
		ActiveSessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sortline_active_sessions",
			Help: "Currently active accumulation sessions, by camera.",
		}, []string{"camera"}),
		FramesAccumulated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sortline_frames_accumulated_total",
			Help: "Successful accumulate calls across all sessions.",
		}),
		GradesComputed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sortline_grades_computed_total",
			Help: "Grading outcomes, by grade label.",
		}, []string{"grade"}),
		ActuatorFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sortline_actuator_failures_total",
			Help: "Sorting-command deliveries that the actuator reported failed.",
		}),
		InternalErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sortline_internal_errors_total",
			Help: "Internal faults caught at the orchestrator boundary, by operation.",
		}, []string{"operation"}),
		OverlapCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sortline_overlap_cache_hits_total",
			Help: "Overlap computations served from the IoU cache.",
		}),
		OverlapCacheMiss: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sortline_overlap_cache_misses_total",
			Help: "Overlap computations that missed the IoU cache.",
		}),
	}
	reg.MustRegister(
		m.SessionsStarted, m.SessionsEnded, m.SessionsRejected,
		m.ActiveSessions, m.FramesAccumulated, m.GradesComputed,
		m.ActuatorFailures, m.InternalErrors,
		m.OverlapCacheHits, m.OverlapCacheMiss,
	)
	return m
}

// The nil-safe helpers below let callers hold an optional *Metrics without
// guarding every observation site.

func (m *Metrics) IncStarted(camera string) {
	if m != nil {
		m.SessionsStarted.WithLabelValues(camera).Inc()
		m.ActiveSessions.WithLabelValues(camera).Inc()
	}
}

func (m *Metrics) IncEnded(camera, reason string) {
	if m != nil {
		m.SessionsEnded.WithLabelValues(camera, reason).Inc()
		m.ActiveSessions.WithLabelValues(camera).Dec()
	}
}

func (m *Metrics) IncRejected(camera string) {
	if m != nil {
		m.SessionsRejected.WithLabelValues(camera).Inc()
	}
}

func (m *Metrics) IncFrame() {
	if m != nil {
		m.FramesAccumulated.Inc()
	}
}

func (m *Metrics) IncGrade(grade string) {
	if m != nil {
		m.GradesComputed.WithLabelValues(grade).Inc()
	}
}

func (m *Metrics) IncActuatorFailure() {
	if m != nil {
		m.ActuatorFailures.Inc()
	}
}

func (m *Metrics) IncInternalError(operation string) {
	if m != nil {
		m.InternalErrors.WithLabelValues(operation).Inc()
	}
}

func (m *Metrics) IncCacheHit() {
	if m != nil {
		m.OverlapCacheHits.Inc()
	}
}

func (m *Metrics) IncCacheMiss() {
	if m != nil {
		m.OverlapCacheMiss.Inc()
	}
}
