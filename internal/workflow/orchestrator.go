// Package workflow is the public entry point of the tracking core. The
// orchestrator admits sessions, feeds them detector output, sweeps out
// expired ones on a timer, and hands finished sessions to the grading
// bridge.
package workflow

import (
	"fmt"
	"sync"
	"time"

	"github.com/timberline/sortline/internal/config"
	"github.com/timberline/sortline/internal/defect"
	"github.com/timberline/sortline/internal/grading"
	"github.com/timberline/sortline/internal/monitoring"
	"github.com/timberline/sortline/internal/overlap"
	"github.com/timberline/sortline/internal/session"
	"github.com/timberline/sortline/internal/timeutil"
)

// Orchestrator owns every session's lifecycle. Start, Accumulate and End
// are safe to call concurrently from multiple camera pipelines; the sweeper
// runs as one background goroutine per orchestrator.
type Orchestrator struct {
	store   *session.Store
	bridge  *grading.Bridge
	clock   timeutil.Clock
	metrics *monitoring.Metrics

	maxPerCamera   int
	perfLimit      int
	sessionTimeout time.Duration
	sweepInterval  time.Duration

	// mu guards session mutation and the start admission check. Grading
	// and persistence never run under it.
	mu sync.Mutex

	ledger *errorLedger

	statsMu     sync.Mutex
	started     uint64
	rejected    uint64
	ended       map[session.EndReason]uint64
	finalized   uint64
	avgDuration time.Duration
	avgDefects  float64
	gradingRuns uint64
	gradingOK   uint64
	swept       uint64
	lastSweep   time.Time

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// Stats is a point-in-time view of orchestrator activity. The averages are
// running aggregates over finalized sessions, updated incrementally at each
// finalization.
type Stats struct {
	ActiveSessions   int                          `json:"active_sessions"`
	CompletedCached  int                          `json:"completed_cached"`
	SessionsStarted  uint64                       `json:"sessions_started"`
	SessionsRejected uint64                       `json:"sessions_rejected"`
	SessionsEnded    map[session.EndReason]uint64 `json:"sessions_ended"`

	AvgSessionDuration   time.Duration `json:"avg_session_duration"`
	AvgDefectsPerSession float64       `json:"avg_defects_per_session"`
	GradingRuns          uint64        `json:"grading_runs"`
	GradingSuccessRate   float64       `json:"grading_success_rate"`

	SweepsRun    uint64            `json:"sweeps_run"`
	LastSweep    time.Time         `json:"last_sweep,omitzero"`
	ErrorCounts  map[string]uint64 `json:"error_counts,omitempty"`
	RecentErrors []ErrorEntry      `json:"recent_errors,omitempty"`
}

// NewOrchestrator builds an orchestrator and starts its sweeper. bridge,
// clock and metrics may be nil; a nil clock means wall time.
func NewOrchestrator(cfg *config.TuningConfig, bridge *grading.Bridge, clock timeutil.Clock, metrics *monitoring.Metrics) *Orchestrator {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	o := &Orchestrator{
		store:          session.NewStore(cfg.GetCompletedCacheSize()),
		bridge:         bridge,
		clock:          clock,
		metrics:        metrics,
		maxPerCamera:   cfg.GetMaxSessionsPerCamera(),
		perfLimit:      cfg.GetPerfSampleLimit(),
		sessionTimeout: cfg.GetSessionTimeout(),
		sweepInterval:  cfg.GetSweepInterval(),
		ledger:         newErrorLedger(cfg.GetErrorLedgerSize()),
		ended:          make(map[session.EndReason]uint64),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
	go o.runSweeper()
	return o
}

// Start admits a new session for an object entering an ROI. Returns the
// session id, or "" when the camera is at its session cap. When objectID
// already maps to an active session on the camera, that session's id is
// returned instead of creating a duplicate; the join takes precedence over
// the capacity check so a tracked object is never split across sessions.
func (o *Orchestrator) Start(camera, roiID, objectID string) string {
	o.mu.Lock()
	defer o.mu.Unlock()

	if objectID != "" {
		if id, ok := o.store.ByObject(camera, objectID); ok {
			return id
		}
	}

	if o.store.ActiveCount(camera) >= o.maxPerCamera {
		o.statsMu.Lock()
		o.rejected++
		o.statsMu.Unlock()
		o.metrics.IncRejected(camera)
		monitoring.Logf("workflow: start rejected, camera %s at session cap %d", camera, o.maxPerCamera)
		return ""
	}

	s := session.New(camera, roiID, objectID, o.clock.Now(), o.perfLimit)
	o.store.Add(s)

	o.statsMu.Lock()
	o.started++
	o.statsMu.Unlock()
	o.metrics.IncStarted(camera)
	monitoring.Logf("workflow: started %s on %s/%s object=%q", s.ID, camera, roiID, objectID)
	return s.ID
}

// Accumulate appends one frame's observations to a session. Returns false
// for unknown or already-finalized ids; late frames racing expiry are
// expected and benign. A fault inside the append is contained: the session
// leaves the system as Errored and the orchestrator stays usable.
func (o *Orchestrator) Accumulate(sessionID string, defects map[defect.Type]int, detections []overlap.Detection, measurements []defect.Measurement, processingTime time.Duration) bool {
	ok, fault := o.accumulateLocked(sessionID, defects, detections, measurements, processingTime)
	if fault != nil {
		o.faultOut("accumulate", sessionID, fault)
		if s, found := o.store.Remove(sessionID); found {
			o.finalizeErrored(s)
		}
		return false
	}
	if ok {
		o.metrics.IncFrame()
	}
	return ok
}

// accumulateLocked runs the mutation under the orchestrator lock. The lock
// releases via defer before the recover fires, so a panicking session can
// never strand it.
func (o *Orchestrator) accumulateLocked(sessionID string, defects map[defect.Type]int, detections []overlap.Detection, measurements []defect.Measurement, processingTime time.Duration) (ok bool, fault any) {
	defer func() { fault = recover() }()
	o.mu.Lock()
	defer o.mu.Unlock()

	s, found := o.store.Get(sessionID)
	if !found || s.Status != session.StatusActive {
		return false, nil
	}
	s.Accumulate(defects, detections, measurements, processingTime, o.clock.Now())
	return true, nil
}

// End finalizes a session and returns its result, or nil for an unknown
// id. The same path serves normal ends and timeout sweeps; grading fires
// only when the session accumulated at least one measurement, and its
// outcome rides on the result. Results land in the bounded completed cache
// either way.
func (o *Orchestrator) End(sessionID string, reason session.EndReason) *session.Result {
	s, found := o.store.Remove(sessionID)
	if !found {
		return nil
	}
	return o.finalize(s, reason)
}

func (o *Orchestrator) finalize(s *session.Session, reason session.EndReason) *session.Result {
	res, fault := o.finalizeLocked(s, statusFor(reason), reason)
	if fault != nil {
		o.faultOut("end", s.ID, fault)
		return o.finalizeErrored(s)
	}

	if len(res.Measurements) > 0 && o.bridge != nil {
		out, err, gradeFault := o.gradeContained(res.Measurements)
		if gradeFault != nil {
			o.faultOut("end", s.ID, gradeFault)
			return o.finalizeErrored(s)
		}
		o.countGrade(err == nil)
		if err != nil {
			o.recordError("grading", s.ID, err.Error())
		} else {
			res.Grading = &out
		}
	}

	o.store.PutResult(res)
	o.countEnd(&res)
	monitoring.Logf("workflow: ended %s reason=%s frames=%d measurements=%d", s.ID, reason, res.FrameCount, len(res.Measurements))
	return &res
}

// finalizeLocked snapshots the session under the orchestrator lock. As in
// accumulateLocked, the deferred unlock runs before the recover so a fault
// cannot strand the lock.
func (o *Orchestrator) finalizeLocked(s *session.Session, status session.Status, reason session.EndReason) (res session.Result, fault any) {
	defer func() { fault = recover() }()
	o.mu.Lock()
	defer o.mu.Unlock()
	return s.Finalize(status, reason, o.clock.Now()), nil
}

// gradeContained wraps the external grade function so a panicking grader is
// a recorded fault, not a crash.
func (o *Orchestrator) gradeContained(measurements []defect.Measurement) (out grading.Outcome, err error, fault any) {
	defer func() { fault = recover() }()
	out, err = o.bridge.Grade(measurements)
	return out, err, nil
}

// finalizeErrored is the shared fault exit: the session leaves the system
// as Errored with whatever it had accumulated. The caller has already
// tallied the fault.
func (o *Orchestrator) finalizeErrored(s *session.Session) *session.Result {
	res, fault := o.finalizeLocked(s, session.StatusErrored, session.ReasonError)
	if fault != nil {
		// Finalizing the errored snapshot itself blew up; synthesize the
		// minimal result rather than give up on the bookkeeping.
		res = session.Result{
			SessionID: s.ID,
			Camera:    s.Camera,
			ROI:       s.ROI,
			ObjectID:  s.ObjectID,
			Status:    session.StatusErrored,
			Reason:    session.ReasonError,
			StartTime: s.StartTime,
			EndTime:   o.clock.Now(),
		}
	}
	o.store.PutResult(res)
	o.countEnd(&res)
	return &res
}

func (o *Orchestrator) countEnd(res *session.Result) {
	defects := 0
	for _, n := range res.TotalDefects {
		defects += n
	}

	o.statsMu.Lock()
	o.ended[res.Reason]++
	o.finalized++
	n := time.Duration(o.finalized)
	o.avgDuration = ((n-1)*o.avgDuration + res.Duration) / n
	o.avgDefects += (float64(defects) - o.avgDefects) / float64(o.finalized)
	o.statsMu.Unlock()
	o.metrics.IncEnded(res.Camera, string(res.Reason))
}

func (o *Orchestrator) countGrade(ok bool) {
	o.statsMu.Lock()
	o.gradingRuns++
	if ok {
		o.gradingOK++
	}
	o.statsMu.Unlock()
}

// Sweep force-ends every active session older than the session timeout.
// The sweeper calls this on its interval; tests may call it directly.
func (o *Orchestrator) Sweep() int {
	now := o.clock.Now()
	expired := 0
	for _, id := range o.store.ActiveIDs() {
		s, ok := o.store.Get(id)
		if !ok || s.Age(now) <= o.sessionTimeout {
			continue
		}
		if res := o.End(id, session.ReasonTimeout); res != nil {
			expired++
		}
	}

	o.statsMu.Lock()
	o.swept++
	o.lastSweep = now
	o.statsMu.Unlock()

	if expired > 0 {
		monitoring.Logf("workflow: sweep expired %d sessions", expired)
	}
	return expired
}

func (o *Orchestrator) runSweeper() {
	defer close(o.done)
	ticker := o.clock.NewTicker(o.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C():
			o.Sweep()
		case <-o.stop:
			return
		}
	}
}

// Close stops the sweeper and waits for it to exit. Active sessions are
// left in place; callers wanting them finalized should End them first.
func (o *Orchestrator) Close() {
	o.stopOnce.Do(func() { close(o.stop) })
	<-o.done
}

// Result returns a finalized session's result while it remains cached.
func (o *Orchestrator) Result(sessionID string) (session.Result, bool) {
	return o.store.Result(sessionID)
}

// Stats snapshots the orchestrator's counters and recent errors.
func (o *Orchestrator) Stats() Stats {
	o.statsMu.Lock()
	ended := make(map[session.EndReason]uint64, len(o.ended))
	for r, n := range o.ended {
		ended[r] = n
	}
	st := Stats{
		SessionsStarted:      o.started,
		SessionsRejected:     o.rejected,
		SessionsEnded:        ended,
		AvgSessionDuration:   o.avgDuration,
		AvgDefectsPerSession: o.avgDefects,
		GradingRuns:          o.gradingRuns,
		SweepsRun:            o.swept,
		LastSweep:            o.lastSweep,
	}
	if o.gradingRuns > 0 {
		st.GradingSuccessRate = float64(o.gradingOK) / float64(o.gradingRuns)
	}
	o.statsMu.Unlock()

	st.ActiveSessions = o.store.Len()
	st.CompletedCached = o.store.CompletedLen()
	st.ErrorCounts, st.RecentErrors = o.ledger.snapshot()
	return st
}

func (o *Orchestrator) faultOut(operation, sessionID string, cause any) {
	o.recordError(operation, sessionID, fmt.Sprint(cause))
	monitoring.Logf("workflow: recovered %s fault on %s: %v", operation, sessionID, cause)
}

func (o *Orchestrator) recordError(operation, sessionID, message string) {
	o.ledger.record(o.clock.Now(), operation, sessionID, message)
	o.metrics.IncInternalError(operation)
}

func statusFor(reason session.EndReason) session.Status {
	switch reason {
	case session.ReasonTimeout:
		return session.StatusTimedOut
	case session.ReasonError:
		return session.StatusErrored
	default:
		return session.StatusCompleted
	}
}
