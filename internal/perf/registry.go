// Package perf holds the injectable template-performance registry. It feeds
// analytics only; gating decisions never read from it.
package perf

import (
	"sync"
	"time"
)

// DefaultCapacity bounds the registry when no explicit capacity is given.
const DefaultCapacity = 1000

// Entry records how one template scored for one batch.
type Entry struct {
	BatchID    string
	Template   string
	Score      float64
	RecordedAt time.Time
}

// Registry is a bounded, ring-buffered history of template performance.
// It is owned by the caller and injected where needed; no package-level
// state.
type Registry struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
}

// NewRegistry creates a registry bounded to capacity entries; the oldest
// entry is evicted once the bound is reached.
func NewRegistry(capacity int) *Registry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Registry{entries: make([]Entry, capacity)}
}

// Record appends an entry, evicting the oldest when full.
func (r *Registry) Record(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[r.next] = e
	r.next++
	if r.next == len(r.entries) {
		r.next = 0
		r.full = true
	}
}

// Len reports how many entries are currently held.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.entries)
	}
	return r.next
}

// Recent returns up to n entries, newest first.
func (r *Registry) Recent(n int) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	size := r.next
	if r.full {
		size = len(r.entries)
	}
	if n > size {
		n = size
	}
	out := make([]Entry, 0, n)
	for i := 1; i <= n; i++ {
		idx := (r.next - i + len(r.entries)) % len(r.entries)
		out = append(out, r.entries[idx])
	}
	return out
}

// TemplateAverages returns the mean score per template across the held
// window.
func (r *Registry) TemplateAverages() map[string]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	size := r.next
	if r.full {
		size = len(r.entries)
	}
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for i := 0; i < size; i++ {
		e := r.entries[i]
		sums[e.Template] += e.Score
		counts[e.Template]++
	}
	out := make(map[string]float64, len(sums))
	for tpl, sum := range sums {
		out[tpl] = sum / float64(counts[tpl])
	}
	return out
}
