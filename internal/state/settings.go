package state

import (
	"sync"

	"github.com/five82/vigil/internal/filter"
)

// Settings is the filter context shared by the UI, which edits it, and the
// poller, which reads it on every fetch.
type Settings struct {
	mu      sync.RWMutex
	filters filter.Set
}

// NewSettings returns settings seeded with the given filters.
func NewSettings(initial filter.Set) *Settings {
	return &Settings{filters: initial.Clone()}
}

// Filters returns a copy of the current filter set.
func (s *Settings) Filters() filter.Set {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filters.Clone()
}

// SetFilters replaces the filter set.
func (s *Settings) SetFilters(f filter.Set) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters = f.Clone()
}

// Update applies fn to the current filters under the lock and stores the
// result, returning it.
func (s *Settings) Update(fn func(filter.Set) filter.Set) filter.Set {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters = fn(s.filters.Clone()).Clone()
	return s.filters.Clone()
}
