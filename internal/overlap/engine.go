// Package overlap matches object detections against the active ROI set.
// IoU is the authoritative measure for session admission; containment over
// the detection box is exposed separately for alignment diagnostics.
package overlap

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/timberline/sortline/internal/config"
	"github.com/timberline/sortline/internal/geom"
	"github.com/timberline/sortline/internal/monitoring"
	"github.com/timberline/sortline/internal/roi"
	"github.com/timberline/sortline/internal/timeutil"
)

// Detection is one detector output box on a camera frame.
type Detection struct {
	BBox       geom.Rect `json:"bbox"`
	Confidence float64   `json:"confidence"`
}

// HistoryEntry records one overlap computation against an ROI.
type HistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	BBox      geom.Rect `json:"bbox"`
	IoU       float64   `json:"iou"`
}

// PerfStats summarizes engine work since construction.
type PerfStats struct {
	Computations  uint64        `json:"computations"`
	CacheHits     uint64        `json:"cache_hits"`
	CacheMisses   uint64        `json:"cache_misses"`
	MeanComputeNs time.Duration `json:"mean_compute_ns"`
}

// Engine computes detection/ROI overlap with a TTL-bounded cache and keeps
// a bounded per-ROI history of recent computations.
type Engine struct {
	registry *roi.Registry
	clock    timeutil.Clock
	metrics  *monitoring.Metrics

	cache      *expirable.LRU[string, float64]
	historyLen int

	mu        sync.Mutex
	histories map[string]*ring
	stats     PerfStats
}

// NewEngine builds an engine over the given registry. metrics may be nil.
func NewEngine(registry *roi.Registry, cfg *config.TuningConfig, clock timeutil.Clock, metrics *monitoring.Metrics) *Engine {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Engine{
		registry:   registry,
		clock:      clock,
		metrics:    metrics,
		cache:      expirable.NewLRU[string, float64](cfg.GetOverlapCacheSize(), nil, cfg.GetOverlapCacheTTL()),
		historyLen: cfg.GetOverlapHistoryLength(),
		histories:  make(map[string]*ring),
	}
}

// Compute returns the IoU between box and the named ROI. ok is false when
// the ROI is not defined for the camera. Results are cached briefly, so a
// rect update to the ROI can serve one stale value until the TTL lapses.
func (e *Engine) Compute(camera, roiID string, box geom.Rect) (float64, bool) {
	def, ok := e.registry.Get(camera, roiID)
	if !ok {
		return 0, false
	}
	return e.compute(camera, def, box), true
}

// Detect matches every detection against the camera's active ROIs, using
// each ROI's own threshold. The result maps detection index to the ids of
// the ROIs it entered; detections matching nothing are absent. Every hit
// lands in the ROI's history ring, cached or not, so the ring counts hit
// events rather than IoU computations.
func (e *Engine) Detect(camera string, detections []Detection) map[int][]string {
	defs := e.registry.ActiveDefinitions(camera)
	matches := make(map[int][]string)
	now := e.clock.Now()
	for i, det := range detections {
		for _, def := range defs {
			iou := e.compute(camera, def, det.BBox)
			if iou >= def.OverlapThreshold {
				matches[i] = append(matches[i], def.ID)
				e.record(camera, def.ID, HistoryEntry{Timestamp: now, BBox: det.BBox, IoU: iou})
			}
		}
	}
	return matches
}

func (e *Engine) compute(camera string, def roi.Definition, box geom.Rect) float64 {
	key := cacheKey(camera, def.ID, box)
	if iou, ok := e.cache.Get(key); ok {
		e.metrics.IncCacheHit()
		e.mu.Lock()
		e.stats.CacheHits++
		e.mu.Unlock()
		return iou
	}
	e.metrics.IncCacheMiss()

	start := e.clock.Now()
	iou := geom.IoU(box, def.Rect)
	elapsed := e.clock.Since(start)
	e.cache.Add(key, iou)

	e.mu.Lock()
	e.stats.CacheMisses++
	e.stats.Computations++
	n := time.Duration(e.stats.Computations)
	e.stats.MeanComputeNs = ((n-1)*e.stats.MeanComputeNs + elapsed) / n
	e.mu.Unlock()

	return iou
}

// History returns the ROI's most recent threshold-clearing hits, oldest
// first. The returned slice is a copy.
func (e *Engine) History(camera, roiID string) []HistoryEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.histories[camera+"|"+roiID]
	if !ok {
		return nil
	}
	return r.entries()
}

// Stats returns a snapshot of the engine's performance counters.
func (e *Engine) Stats() PerfStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

func (e *Engine) record(camera, roiID string, entry HistoryEntry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := camera + "|" + roiID
	r, ok := e.histories[key]
	if !ok {
		r = newRing(e.historyLen)
		e.histories[key] = r
	}
	r.push(entry)
}

func cacheKey(camera, roiID string, box geom.Rect) string {
	return fmt.Sprintf("%s|%s|%d,%d,%d,%d", camera, roiID, box.X1, box.Y1, box.X2, box.Y2)
}

// ring is a fixed-capacity overwrite buffer of history entries.
type ring struct {
	buf  []HistoryEntry
	head int
	full bool
}

func newRing(capacity int) *ring {
	if capacity < 1 {
		capacity = 1
	}
	return &ring{buf: make([]HistoryEntry, capacity)}
}

func (r *ring) push(e HistoryEntry) {
	r.buf[r.head] = e
	r.head = (r.head + 1) % len(r.buf)
	if r.head == 0 {
		r.full = true
	}
}

func (r *ring) entries() []HistoryEntry {
	if !r.full {
		out := make([]HistoryEntry, r.head)
		copy(out, r.buf[:r.head])
		return out
	}
	out := make([]HistoryEntry, 0, len(r.buf))
	out = append(out, r.buf[r.head:]...)
	out = append(out, r.buf[:r.head]...)
	return out
}
