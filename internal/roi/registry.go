// Package roi manages the named camera regions that gate the grading
// workflow. Definitions live in memory behind a reader/writer lock and are
// written through to a Store on every mutation; the registry is rebuilt from
// the store once at construction.
package roi

import (
	"fmt"
	"sync"

	"github.com/timberline/sortline/internal/geom"
	"github.com/timberline/sortline/internal/monitoring"
)

// Definition describes one region of interest on one camera. OverlapThreshold
// is the per-ROI IoU bar a detection must clear for the region to count as
// hit; it is compared against IoU, not raw containment.
type Definition struct {
	Camera           string    `json:"camera"`
	ID               string    `json:"roi_id"`
	Rect             geom.Rect `json:"rect"`
	Active           bool      `json:"active"`
	Name             string    `json:"name"`
	OverlapThreshold float64   `json:"overlap_threshold"`
}

// Store persists the full registry document. Save replaces whatever was
// stored before; Load reports ok=false when nothing has been persisted yet.
type Store interface {
	Save(doc Document) error
	Load() (Document, bool, error)
}

// Registry holds the ROI definitions for all cameras. Safe for concurrent
// use. Getters return copies, never internal state; persistence writes run
// outside the registry lock.
type Registry struct {
	mu    sync.RWMutex
	rois  map[string]map[string]Definition // camera -> roi id -> definition
	store Store

	// persistMu serializes Save calls so write-through snapshots reach the
	// store in mutation order.
	persistMu sync.Mutex
}

// NewRegistry builds a registry backed by store and restores any previously
// persisted document.
func NewRegistry(store Store) (*Registry, error) {
	r := &Registry{
		rois:  make(map[string]map[string]Definition),
		store: store,
	}

	doc, ok, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load roi registry: %w", err)
	}
	if ok {
		for camera, rois := range doc.Cameras {
			r.rois[camera] = make(map[string]Definition, len(rois))
			for id, def := range rois {
				// Keys are authoritative over any stale embedded fields.
				def.Camera = camera
				def.ID = id
				r.rois[camera][id] = def
			}
		}
		monitoring.Logf("roi: restored %d cameras from store", len(r.rois))
	}

	return r, nil
}

// Define creates a new ROI (or replaces one with the same id). Returns false
// without touching state when the rectangle or threshold is invalid.
func (r *Registry) Define(camera, id string, rect geom.Rect, name string, threshold float64) bool {
	if !rect.Valid() {
		monitoring.Logf("roi: rejected definition %s/%s: invalid rect %+v", camera, id, rect)
		return false
	}
	if threshold < 0 || threshold > 1 {
		monitoring.Logf("roi: rejected definition %s/%s: threshold %f out of range", camera, id, threshold)
		return false
	}
	if name == "" {
		name = "ROI_" + id
	}

	r.mu.Lock()
	if r.rois[camera] == nil {
		r.rois[camera] = make(map[string]Definition)
	}
	r.rois[camera][id] = Definition{
		Camera:           camera,
		ID:               id,
		Rect:             rect,
		Active:           true,
		Name:             name,
		OverlapThreshold: threshold,
	}
	doc := r.snapshotLocked()
	r.mu.Unlock()

	r.persist(doc)
	monitoring.Logf("roi: defined %s/%s rect=%+v threshold=%.2f", camera, id, rect, threshold)
	return true
}

// Activate marks an existing ROI active. False if unknown.
func (r *Registry) Activate(camera, id string) bool {
	return r.setActive(camera, id, true)
}

// Deactivate marks an existing ROI inactive. False if unknown.
func (r *Registry) Deactivate(camera, id string) bool {
	return r.setActive(camera, id, false)
}

func (r *Registry) setActive(camera, id string, active bool) bool {
	r.mu.Lock()
	def, ok := r.rois[camera][id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	def.Active = active
	r.rois[camera][id] = def
	doc := r.snapshotLocked()
	r.mu.Unlock()

	r.persist(doc)
	return true
}

// UpdateRect replaces the rectangle of an existing ROI, applying the same
// validation as Define. False if unknown or invalid.
func (r *Registry) UpdateRect(camera, id string, rect geom.Rect) bool {
	if !rect.Valid() {
		return false
	}

	r.mu.Lock()
	def, ok := r.rois[camera][id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	def.Rect = rect
	r.rois[camera][id] = def
	doc := r.snapshotLocked()
	r.mu.Unlock()

	r.persist(doc)
	return true
}

// Delete removes an ROI entirely. False if unknown.
func (r *Registry) Delete(camera, id string) bool {
	r.mu.Lock()
	if _, ok := r.rois[camera][id]; !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.rois[camera], id)
	if len(r.rois[camera]) == 0 {
		delete(r.rois, camera)
	}
	doc := r.snapshotLocked()
	r.mu.Unlock()

	r.persist(doc)
	monitoring.Logf("roi: deleted %s/%s", camera, id)
	return true
}

// Get returns a copy of one definition.
func (r *Registry) Get(camera, id string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.rois[camera][id]
	return def, ok
}

// ActiveIDs returns the ids of the active ROIs for a camera as a fresh set.
func (r *Registry) ActiveIDs(camera string) map[string]struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]struct{})
	for id, def := range r.rois[camera] {
		if def.Active {
			out[id] = struct{}{}
		}
	}
	return out
}

// ActiveDefinitions returns copies of the active definitions for a camera.
func (r *Registry) ActiveDefinitions(camera string) []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Definition, 0, len(r.rois[camera]))
	for _, def := range r.rois[camera] {
		if def.Active {
			out = append(out, def)
		}
	}
	return out
}

// All returns a deep copy of every definition keyed by camera and id.
func (r *Registry) All() map[string]map[string]Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked().Cameras
}

// Count returns the total number of definitions across all cameras.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, rois := range r.rois {
		n += len(rois)
	}
	return n
}

// snapshotLocked builds a persistable deep copy. Caller holds r.mu.
func (r *Registry) snapshotLocked() Document {
	doc := NewDocument()
	for camera, rois := range r.rois {
		m := make(map[string]Definition, len(rois))
		for id, def := range rois {
			m[id] = def
		}
		doc.Cameras[camera] = m
	}
	return doc
}

// persist writes a snapshot through to the store. Runs outside the registry
// lock; failures are logged rather than unwinding the in-memory mutation.
func (r *Registry) persist(doc Document) {
	r.persistMu.Lock()
	defer r.persistMu.Unlock()
	if err := r.store.Save(doc); err != nil {
		monitoring.Logf("roi: persist failed: %v", err)
	}
}

// DefaultDocument returns the stock two-camera inspection-zone layout used
// when no registry has been persisted yet.
func DefaultDocument(threshold float64) Document {
	doc := NewDocument()
	doc.Cameras["top_camera"] = map[string]Definition{
		"inspection_zone": {
			Camera:           "top_camera",
			ID:               "inspection_zone",
			Rect:             geom.Rect{X1: 64, Y1: 0, X2: 1216, Y2: 108},
			Active:           true,
			Name:             "Top Inspection Zone",
			OverlapThreshold: threshold,
		},
	}
	doc.Cameras["bottom_camera"] = map[string]Definition{
		"inspection_zone": {
			Camera:           "bottom_camera",
			ID:               "inspection_zone",
			Rect:             geom.Rect{X1: 64, Y1: 612, X2: 1216, Y2: 720},
			Active:           true,
			Name:             "Bottom Inspection Zone",
			OverlapThreshold: threshold,
		},
	}
	return doc
}
