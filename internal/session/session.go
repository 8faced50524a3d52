// Package session holds the per-object accumulation record and the
// in-memory collection of such records. Sessions have no locking of their
// own; the orchestrator owns all mutation.
package session

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/timberline/sortline/internal/defect"
	"github.com/timberline/sortline/internal/grading"
	"github.com/timberline/sortline/internal/overlap"
)

// Status is the lifecycle state of a session. Active is the only
// non-terminal state.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusTimedOut  Status = "timed_out"
	StatusErrored   Status = "errored"
)

// EndReason explains why a session was finalized.
type EndReason string

const (
	ReasonCompleted EndReason = "completed"
	ReasonTimeout   EndReason = "timeout"
	ReasonError     EndReason = "error"
)

// FrameRecord is one accumulated frame. FrameID is assigned by the session
// itself so per-session ordering never depends on caller call order.
type FrameRecord struct {
	FrameID        int                  `json:"frame_id"`
	Timestamp      time.Time            `json:"timestamp"`
	Defects        map[defect.Type]int  `json:"defects,omitempty"`
	Detections     []overlap.Detection  `json:"detections,omitempty"`
	ProcessingTime time.Duration        `json:"processing_time"`
	Measurements   []defect.Measurement `json:"measurements,omitempty"`
}

// Session accumulates defect observations for one object inside one ROI.
type Session struct {
	ID        string
	Camera    string
	ROI       string
	ObjectID  string
	StartTime time.Time
	Status    Status

	FrameCount   int
	Frames       []FrameRecord
	Measurements []defect.Measurement
	TotalDefects map[defect.Type]int

	// Running aggregates, updated incrementally per frame.
	MeanProcessingTime time.Duration
	MeanConfidence     float64
	confSamples        int

	// Bounded raw samples kept for the final quantile computation.
	perfSamples []float64
	perfLimit   int
}

// New creates an Active session. objectID may be empty when the upstream
// tracker did not supply one.
func New(camera, roiID, objectID string, now time.Time, perfLimit int) *Session {
	return &Session{
		ID:           "ses_" + uuid.New().String(),
		Camera:       camera,
		ROI:          roiID,
		ObjectID:     objectID,
		StartTime:    now,
		Status:       StatusActive,
		TotalDefects: make(map[defect.Type]int),
		perfLimit:    perfLimit,
	}
}

// Accumulate appends a frame record and folds its data into the running
// aggregates. Legal only while Active; the orchestrator enforces that.
func (s *Session) Accumulate(defects map[defect.Type]int, detections []overlap.Detection, measurements []defect.Measurement, processingTime time.Duration, now time.Time) {
	s.FrameCount++
	rec := FrameRecord{
		FrameID:        s.FrameCount,
		Timestamp:      now,
		Defects:        defects,
		Detections:     detections,
		ProcessingTime: processingTime,
		Measurements:   measurements,
	}
	s.Frames = append(s.Frames, rec)

	for t, n := range defects {
		s.TotalDefects[t] += n
	}
	s.Measurements = append(s.Measurements, measurements...)

	n := time.Duration(s.FrameCount)
	s.MeanProcessingTime = ((n-1)*s.MeanProcessingTime + processingTime) / n
	if len(s.perfSamples) < s.perfLimit {
		s.perfSamples = append(s.perfSamples, float64(processingTime))
	}

	for _, det := range detections {
		s.confSamples++
		s.MeanConfidence += (det.Confidence - s.MeanConfidence) / float64(s.confSamples)
	}
}

// Age returns how long the session has been running.
func (s *Session) Age(now time.Time) time.Duration {
	return now.Sub(s.StartTime)
}

// Result is the immutable snapshot emitted when a session is finalized.
type Result struct {
	SessionID string    `json:"session_id"`
	Camera    string    `json:"camera"`
	ROI       string    `json:"roi"`
	ObjectID  string    `json:"object_id,omitempty"`
	Status    Status    `json:"status"`
	Reason    EndReason `json:"reason"`

	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`

	FrameCount   int                  `json:"frame_count"`
	TotalDefects map[defect.Type]int  `json:"total_defects,omitempty"`
	Measurements []defect.Measurement `json:"measurements,omitempty"`

	MeanProcessingTime time.Duration `json:"mean_processing_time"`
	P95ProcessingTime  time.Duration `json:"p95_processing_time"`
	MeanConfidence     float64       `json:"mean_confidence"`

	Grading *grading.Outcome `json:"grading,omitempty"`
}

// Finalize moves the session to a terminal status and builds its result.
// Called exactly once per session; the orchestrator guards against a second
// call.
func (s *Session) Finalize(status Status, reason EndReason, now time.Time) Result {
	s.Status = status
	if now.Before(s.StartTime) {
		now = s.StartTime
	}

	totals := make(map[defect.Type]int, len(s.TotalDefects))
	for t, n := range s.TotalDefects {
		totals[t] = n
	}
	measurements := make([]defect.Measurement, len(s.Measurements))
	copy(measurements, s.Measurements)

	return Result{
		SessionID:          s.ID,
		Camera:             s.Camera,
		ROI:                s.ROI,
		ObjectID:           s.ObjectID,
		Status:             status,
		Reason:             reason,
		StartTime:          s.StartTime,
		EndTime:            now,
		Duration:           now.Sub(s.StartTime),
		FrameCount:         s.FrameCount,
		TotalDefects:       totals,
		Measurements:       measurements,
		MeanProcessingTime: s.MeanProcessingTime,
		P95ProcessingTime:  s.p95ProcessingTime(),
		MeanConfidence:     s.MeanConfidence,
	}
}

func (s *Session) p95ProcessingTime() time.Duration {
	if len(s.perfSamples) == 0 {
		return 0
	}
	sorted := make([]float64, len(s.perfSamples))
	copy(sorted, s.perfSamples)
	sort.Float64s(sorted)
	return time.Duration(stat.Quantile(0.95, stat.Empirical, sorted, nil))
}
