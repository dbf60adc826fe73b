package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/five82/vigil/internal/filter"
	"github.com/five82/vigil/internal/frigate"
)

// Snapshot represents the latest polling state available to the UI.
type Snapshot struct {
	InProgress []frigate.Event
	Events     []frigate.Event
	Cameras    []string

	Version    frigate.Version
	HasVersion bool

	LastUpdated    time.Time // last successful full-list fetch
	LastInProgress time.Time // last successful in-progress fetch
	LastErrorAt    time.Time // zero when the last full fetch succeeded
	LastError      error     // user-visible error, nil when none

	Loading             bool
	ConsecutiveFailures int // Number of consecutive failed fetches
}

// IsOffline returns true when the API has been unreachable for multiple polls.
func (s Snapshot) IsOffline() bool {
	return s.ConsecutiveFailures >= 2
}

// InProgressIDs returns the identifiers of the in-progress events.
func (s Snapshot) InProgressIDs() []string {
	return frigate.IDs(s.InProgress)
}

// Store coordinates concurrent updates to the snapshot. Each setter replaces
// whole slices so readers never observe a partially written list.
type Store struct {
	mu       sync.RWMutex
	snapshot Snapshot
}

// SetEvents publishes a successful full-list fetch. It clears the error
// timestamp, any user-visible error, and the failure counter.
func (s *Store) SetEvents(events []frigate.Event, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot.Events = cloneEvents(events)
	s.snapshot.LastUpdated = at
	s.snapshot.LastErrorAt = time.Time{}
	s.snapshot.LastError = nil
	s.snapshot.ConsecutiveFailures = 0
}

// SetInProgress publishes a successful in-progress fetch.
func (s *Store) SetInProgress(events []frigate.Event, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot.InProgress = cloneEvents(events)
	s.snapshot.LastInProgress = at
}

// SetCameras publishes the camera list.
func (s *Store) SetCameras(cameras []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot.Cameras = cloneStrings(cameras)
}

// SetVersion records the resolved server version.
func (s *Store) SetVersion(v frigate.Version) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot.Version = v
	s.snapshot.HasVersion = true
}

// RecordFailure stamps a failed fetch. Previous data is kept. The error is
// shown to the user only when visible is true.
func (s *Store) RecordFailure(err error, at time.Time, visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot.LastErrorAt = at
	s.snapshot.ConsecutiveFailures++
	if visible {
		s.snapshot.LastError = err
	}
}

// DismissError hides the user-visible error without touching timestamps.
func (s *Store) DismissError() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot.LastError = nil
}

// SetLoading toggles the loading indicator.
func (s *Store) SetLoading(loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot.Loading = loading
}

// Snapshot returns a copy of the current snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.snapshot
	snap.InProgress = cloneEvents(s.snapshot.InProgress)
	snap.Events = cloneEvents(s.snapshot.Events)
	snap.Cameras = cloneStrings(s.snapshot.Cameras)
	if s.snapshot.LastError != nil {
		snap.LastError = fmt.Errorf("%w", s.snapshot.LastError)
	}
	return snap
}

func cloneEvents(events []frigate.Event) []frigate.Event {
	if len(events) == 0 {
		return nil
	}
	dup := make([]frigate.Event, len(events))
	copy(dup, events)
	return dup
}

func cloneStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	return append([]string(nil), values...)
}

// Visible applies f and returns the in-progress events followed by the
// finished events that are not also in the in-progress list.
func (s Snapshot) Visible(f filter.Set) (live, finished []frigate.Event) {
	live = f.Apply(s.InProgress)
	seen := make(map[string]struct{}, len(s.InProgress))
	for _, ev := range s.InProgress {
		seen[ev.ID] = struct{}{}
	}
	for _, ev := range f.Apply(s.Events) {
		if _, dup := seen[ev.ID]; dup {
			continue
		}
		finished = append(finished, ev)
	}
	return live, finished
}
