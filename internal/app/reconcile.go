package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/five82/vigil/internal/frigate"
	"github.com/five82/vigil/internal/logging"
	"github.com/five82/vigil/internal/metrics"
)

const (
	defaultReconcileFirstDelay  = 500 * time.Millisecond
	defaultReconcileSecondDelay = time.Second
)

// ReconcileOutcome is the terminal result of one reconciliation batch.
type ReconcileOutcome string

const (
	OutcomeMatched   ReconcileOutcome = "matched"   // all present after the first re-fetch
	OutcomeRecovered ReconcileOutcome = "recovered" // all present after the second re-fetch
	OutcomeMissing   ReconcileOutcome = "missing"   // still absent, left to the next slow poll
	OutcomeCanceled  ReconcileOutcome = "canceled"
)

// Reconciler confirms that events which dropped out of the in-progress
// listing show up in the full event list. It makes at most two extra
// full-list fetches per batch and never reports a user-visible error.
type Reconciler struct {
	fetch       func(ctx context.Context) ([]frigate.Event, error)
	publish     func(events []frigate.Event, at time.Time)
	clock       Clock
	firstDelay  time.Duration
	secondDelay time.Duration

	mu       sync.Mutex
	tracking map[string]struct{}
}

// NewReconciler builds a Reconciler. fetch returns the full event list;
// publish, when non-nil, receives every successful re-fetch.
func NewReconciler(fetch func(ctx context.Context) ([]frigate.Event, error), publish func([]frigate.Event, time.Time), clock Clock, firstDelay, secondDelay time.Duration) *Reconciler {
	if clock == nil {
		clock = SystemClock()
	}
	if firstDelay < 0 {
		firstDelay = defaultReconcileFirstDelay
	}
	if secondDelay < 0 {
		secondDelay = defaultReconcileSecondDelay
	}
	return &Reconciler{
		fetch:       fetch,
		publish:     publish,
		clock:       clock,
		firstDelay:  firstDelay,
		secondDelay: secondDelay,
		tracking:    map[string]struct{}{},
	}
}

// Observe replaces the tracked in-progress set with current and returns the
// identifiers that were tracked before but are absent now, sorted.
func (r *Reconciler) Observe(current []string) []string {
	next := make(map[string]struct{}, len(current))
	for _, id := range current {
		next[id] = struct{}{}
	}

	r.mu.Lock()
	prev := r.tracking
	r.tracking = next
	r.mu.Unlock()

	var finished []string
	for id := range prev {
		if _, still := next[id]; !still {
			finished = append(finished, id)
		}
	}
	sort.Strings(finished)
	return finished
}

// Tracking returns the currently tracked in-progress identifiers, sorted.
func (r *Reconciler) Tracking() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.tracking))
	for id := range r.tracking {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Reconcile waits the first delay, re-fetches the full list, and if any
// finished event is still absent waits the second delay and re-fetches once
// more. A failed fetch counts as the events not being present.
func (r *Reconciler) Reconcile(ctx context.Context, finished []string) ReconcileOutcome {
	if len(finished) == 0 {
		return OutcomeMatched
	}
	log := logging.With().Strs("finished", finished).Logger()

	outcome := func() ReconcileOutcome {
		if r.attempt(ctx, r.firstDelay, finished) {
			return OutcomeMatched
		}
		if ctx.Err() != nil {
			return OutcomeCanceled
		}
		if r.attempt(ctx, r.secondDelay, finished) {
			return OutcomeRecovered
		}
		if ctx.Err() != nil {
			return OutcomeCanceled
		}
		return OutcomeMissing
	}()

	metrics.Reconciliations.WithLabelValues(string(outcome)).Inc()
	switch outcome {
	case OutcomeMissing:
		log.Info().Msg("finished events not yet in event list; waiting for next poll")
	case OutcomeCanceled:
		log.Debug().Msg("reconciliation canceled")
	default:
		log.Debug().Str("outcome", string(outcome)).Msg("finished events reconciled")
	}
	return outcome
}

func (r *Reconciler) attempt(ctx context.Context, delay time.Duration, finished []string) bool {
	if err := r.clock.Sleep(ctx, delay); err != nil {
		return false
	}
	events, err := r.fetch(ctx)
	metrics.Fetches.WithLabelValues("reconcile", metrics.Outcome(err)).Inc()
	if ctx.Err() != nil {
		return false
	}
	if err != nil {
		logging.Debug().Err(err).Msg("reconciliation fetch failed")
		return false
	}
	if r.publish != nil {
		r.publish(events, r.clock.Now())
	}
	return containsAll(events, finished)
}

func containsAll(events []frigate.Event, ids []string) bool {
	present := make(map[string]struct{}, len(events))
	for _, ev := range events {
		present[ev.ID] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := present[id]; !ok {
			return false
		}
	}
	return true
}
