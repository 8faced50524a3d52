package workflow

import (
	"sync"
	"time"
)

// ErrorEntry is one recorded internal fault.
type ErrorEntry struct {
	Time      time.Time `json:"time"`
	Operation string    `json:"operation"`
	SessionID string    `json:"session_id,omitempty"`
	Message   string    `json:"message"`
}

// errorLedger keeps a rolling window of recent faults plus all-time counts
// per operation. The window is size-bounded; counts are not.
type errorLedger struct {
	mu      sync.Mutex
	entries []ErrorEntry
	counts  map[string]uint64
	limit   int
}

func newErrorLedger(limit int) *errorLedger {
	if limit < 1 {
		limit = 1
	}
	return &errorLedger{
		counts: make(map[string]uint64),
		limit:  limit,
	}
}

func (l *errorLedger) record(at time.Time, operation, sessionID, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counts[operation]++
	l.entries = append(l.entries, ErrorEntry{
		Time:      at,
		Operation: operation,
		SessionID: sessionID,
		Message:   message,
	})
	if len(l.entries) > l.limit {
		l.entries = l.entries[len(l.entries)-l.limit:]
	}
}

func (l *errorLedger) snapshot() (map[string]uint64, []ErrorEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.counts) == 0 {
		return nil, nil
	}
	counts := make(map[string]uint64, len(l.counts))
	for op, n := range l.counts {
		counts[op] = n
	}
	entries := make([]ErrorEntry, len(l.entries))
	copy(entries, l.entries)
	return counts, entries
}
