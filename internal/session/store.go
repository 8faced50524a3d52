package session

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Store keeps the active session set, the object-to-session index used for
// idempotent joins, and a bounded cache of finalized results. One coarse
// lock guards all three; expected cardinality is tens of sessions.
type Store struct {
	mu        sync.RWMutex
	active    map[string]*Session
	byObject  map[string]string
	completed *lru.Cache[string, Result]
}

// NewStore builds a store whose completed-result cache holds at most
// completedSize entries, evicting the oldest.
func NewStore(completedSize int) *Store {
	if completedSize < 1 {
		completedSize = 1
	}
	completed, err := lru.New[string, Result](completedSize)
	if err != nil {
		// lru.New only fails on a non-positive size.
		panic(err)
	}
	return &Store{
		active:    make(map[string]*Session),
		byObject:  make(map[string]string),
		completed: completed,
	}
}

func objectKey(camera, objectID string) string {
	return camera + "|" + objectID
}

// Add registers an Active session, indexing it by object when an object id
// is present.
func (st *Store) Add(s *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.active[s.ID] = s
	if s.ObjectID != "" {
		st.byObject[objectKey(s.Camera, s.ObjectID)] = s.ID
	}
}

// Get returns the active session for id.
func (st *Store) Get(id string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.active[id]
	return s, ok
}

// ByObject returns the active session id for a (camera, object) pair.
func (st *Store) ByObject(camera, objectID string) (string, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	id, ok := st.byObject[objectKey(camera, objectID)]
	return id, ok
}

// Remove drops an active session from both indexes. Returns the session so
// the caller can finalize it outside the lock.
func (st *Store) Remove(id string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.active[id]
	if !ok {
		return nil, false
	}
	delete(st.active, id)
	if s.ObjectID != "" {
		delete(st.byObject, objectKey(s.Camera, s.ObjectID))
	}
	return s, true
}

// ActiveCount returns the number of Active sessions on one camera.
func (st *Store) ActiveCount(camera string) int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	n := 0
	for _, s := range st.active {
		if s.Camera == camera {
			n++
		}
	}
	return n
}

// ActiveIDs returns a snapshot of all active session ids.
func (st *Store) ActiveIDs() []string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	ids := make([]string, 0, len(st.active))
	for id := range st.active {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the total number of active sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.active)
}

// PutResult stores a finalized result in the bounded completed cache.
func (st *Store) PutResult(r Result) {
	st.completed.Add(r.SessionID, r)
}

// Result returns a finalized result, if it is still cached.
func (st *Store) Result(id string) (Result, bool) {
	return st.completed.Get(id)
}

// CompletedLen returns how many finalized results are cached.
func (st *Store) CompletedLen() int {
	return st.completed.Len()
}
