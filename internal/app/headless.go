package app

import (
	"context"
	"time"

	"github.com/five82/vigil/internal/filter"
	"github.com/five82/vigil/internal/frigate"
	"github.com/five82/vigil/internal/logging"
	"github.com/five82/vigil/internal/state"
)

// Changes is what moved between two snapshots after filtering.
type Changes struct {
	Started  []frigate.Event
	Finished []frigate.Event
	Error    error
	Cleared  bool // a previously reported error went away
}

// Empty reports whether nothing changed.
func (c Changes) Empty() bool {
	return len(c.Started) == 0 && len(c.Finished) == 0 && c.Error == nil && !c.Cleared
}

// Diff compares two snapshots under f. An event is started when it enters the
// in-progress list and finished when it leaves it.
func Diff(prev, next state.Snapshot, f filter.Set) Changes {
	prevLive, _ := prev.Visible(f)
	nextLive, _ := next.Visible(f)

	before := make(map[string]struct{}, len(prevLive))
	for _, ev := range prevLive {
		before[ev.ID] = struct{}{}
	}
	after := make(map[string]struct{}, len(nextLive))
	for _, ev := range nextLive {
		after[ev.ID] = struct{}{}
	}

	var c Changes
	for _, ev := range nextLive {
		if _, ok := before[ev.ID]; !ok {
			c.Started = append(c.Started, ev)
		}
	}
	for _, ev := range prevLive {
		if _, ok := after[ev.ID]; !ok {
			// Prefer the finished record when the full list already has it.
			c.Finished = append(c.Finished, lookup(next.Events, ev))
		}
	}

	switch {
	case next.LastError != nil && !next.LastErrorAt.Equal(prev.LastErrorAt):
		c.Error = next.LastError
	case prev.LastError != nil && next.LastError == nil:
		c.Cleared = true
	}
	return c
}

func lookup(events []frigate.Event, ev frigate.Event) frigate.Event {
	for _, e := range events {
		if e.ID == ev.ID {
			return e
		}
	}
	return ev
}

// watchHeadless logs event changes until ctx is done.
func watchHeadless(ctx context.Context, store *state.Store, settings *state.Settings, clock Clock, every time.Duration) error {
	if every <= 0 {
		every = defaultFastInterval
	}
	ticker := clock.NewTicker(every)
	defer ticker.Stop()

	var prev state.Snapshot
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
		}
		next := store.Snapshot()
		logChanges(Diff(prev, next, settings.Filters()), clock.Now())
		prev = next
	}
}

func logChanges(c Changes, now time.Time) {
	for _, ev := range c.Started {
		logging.Info().
			Str("event_id", ev.ID).
			Str("camera", ev.Camera).
			Str("label", ev.Label).
			Strs("zones", ev.Zones).
			Msg("event started")
	}
	for _, ev := range c.Finished {
		e := logging.Info().
			Str("event_id", ev.ID).
			Str("camera", ev.Camera).
			Str("label", ev.Label)
		if d := ev.Duration(now); d > 0 {
			e = e.Dur("duration", d)
		}
		e.Msg("event finished")
	}
	if c.Error != nil {
		logging.Warn().Err(c.Error).Msg("event list unavailable")
	}
	if c.Cleared {
		logging.Info().Msg("event list recovered")
	}
}
