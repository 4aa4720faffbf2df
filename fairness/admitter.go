// Package fairness caps how much of one worker cycle a single tenant can use.
//
// Admission is per cycle and in memory only: a fresh Admitter is used for
// every batch, and entries that are not admitted stay queued for the next
// cycle. Concurrent workers do not share counts, so the cap is soft across
// overlapping cycles.
package fairness

import "sync"

// DefaultPerTenantLimit is the number of entries one tenant may have admitted per cycle.
const DefaultPerTenantLimit = 10

// Admitter counts admissions per tenant key.
type Admitter struct {
	mu     sync.Mutex
	limit  int
	counts map[string]int
}

// New creates an admitter. A limit of 0 or less means unlimited.
func New(limit int) *Admitter {
	return &Admitter{
		limit:  limit,
		counts: make(map[string]int),
	}
}

// Allow admits one more entry for key if the tenant is under its limit.
func (a *Admitter) Allow(key string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.limit > 0 && a.counts[key] >= a.limit {
		return false
	}
	a.counts[key]++
	return true
}

// Select walks items in order and keeps those whose tenant is still under
// limit. The order of kept items is preserved.
func Select[T any](items []T, limit int, key func(T) string) []T {
	a := New(limit)
	out := make([]T, 0, len(items))
	for _, it := range items {
		if a.Allow(key(it)) {
			out = append(out, it)
		}
	}
	return out
}
