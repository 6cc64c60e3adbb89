package graph

import (
	"sync"
	"time"
)

// DefaultMaxHistory is the maximum number of node records before eviction.
const DefaultMaxHistory = 1000

// NodeRecord records a move between nodes for debugging tools.
type NodeRecord struct {
	FromNode  string    `json:"from_node"`
	ToNode    string    `json:"to_node"`
	Trigger   string    `json:"trigger"`
	Timestamp time.Time `json:"timestamp"`
}

// History is the bounded trail of nodes a script walked through. All
// access is thread-safe.
type History struct {
	mu      sync.RWMutex
	limit   int
	current string
	records []NodeRecord
}

// NewHistory creates a trail holding at most limit records.
func NewHistory(limit int) *History {
	if limit < 1 {
		limit = DefaultMaxHistory
	}
	return &History{limit: limit}
}

// Record adds a move to the trail. Evicts the oldest 10% of entries when
// the cap is reached.
func (h *History) Record(to, trigger string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.records) >= h.limit {
		evict := max(1, h.limit/10)
		h.records = h.records[evict:]
	}
	h.records = append(h.records, NodeRecord{
		FromNode:  h.current,
		ToNode:    to,
		Trigger:   trigger,
		Timestamp: time.Now(),
	})
	h.current = to
}

// Current returns the node last entered.
func (h *History) Current() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Records returns a copy of the trail.
func (h *History) Records() []NodeRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cp := make([]NodeRecord, len(h.records))
	copy(cp, h.records)
	return cp
}
