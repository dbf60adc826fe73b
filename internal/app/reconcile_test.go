package app

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/five82/vigil/internal/frigate"
)

type scriptedFetch struct {
	responses [][]frigate.Event
	errs      []error
	calls     int
}

func (s *scriptedFetch) fetch(context.Context) ([]frigate.Event, error) {
	i := s.calls
	s.calls++
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	if err != nil {
		return nil, err
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return nil, nil
}

func TestReconciler_ObserveComputesFinished(t *testing.T) {
	r := NewReconciler(nil, nil, newFakeClock(), 0, 0)

	if got := r.Observe([]string{"a", "b", "c"}); len(got) != 0 {
		t.Fatalf("first Observe = %v, want none", got)
	}
	if got := r.Observe([]string{"b", "d"}); !reflect.DeepEqual(got, []string{"a", "c"}) {
		t.Fatalf("Observe = %v, want [a c]", got)
	}
	if got := r.Tracking(); !reflect.DeepEqual(got, []string{"b", "d"}) {
		t.Fatalf("Tracking = %v, want [b d]", got)
	}
	if got := r.Observe(nil); !reflect.DeepEqual(got, []string{"b", "d"}) {
		t.Fatalf("Observe(nil) = %v, want [b d]", got)
	}
}

func TestReconciler_MissingMakesExactlyTwoFetches(t *testing.T) {
	src := &scriptedFetch{responses: [][]frigate.Event{events("x"), events("y")}}
	clock := newFakeClock()
	var published int
	r := NewReconciler(src.fetch, func([]frigate.Event, time.Time) { published++ }, clock,
		500*time.Millisecond, time.Second)

	r.Observe([]string{"e1"})
	finished := r.Observe(nil)
	if !reflect.DeepEqual(finished, []string{"e1"}) {
		t.Fatalf("finished = %v, want [e1]", finished)
	}

	if got := r.Reconcile(context.Background(), finished); got != OutcomeMissing {
		t.Fatalf("outcome = %q, want %q", got, OutcomeMissing)
	}
	if src.calls != 2 {
		t.Fatalf("fetches = %d, want 2", src.calls)
	}
	want := []time.Duration{500 * time.Millisecond, time.Second}
	if got := clock.Sleeps(); !reflect.DeepEqual(got, want) {
		t.Fatalf("sleeps = %v, want %v", got, want)
	}
	if published != 2 {
		t.Fatalf("published = %d, want 2", published)
	}
}

func TestReconciler_MatchedStopsAfterFirstFetch(t *testing.T) {
	src := &scriptedFetch{responses: [][]frigate.Event{events("e1", "e2")}}
	clock := newFakeClock()
	r := NewReconciler(src.fetch, nil, clock, 500*time.Millisecond, time.Second)

	if got := r.Reconcile(context.Background(), []string{"e1", "e2"}); got != OutcomeMatched {
		t.Fatalf("outcome = %q, want %q", got, OutcomeMatched)
	}
	if src.calls != 1 {
		t.Fatalf("fetches = %d, want 1", src.calls)
	}
	if got := clock.Sleeps(); !reflect.DeepEqual(got, []time.Duration{500 * time.Millisecond}) {
		t.Fatalf("sleeps = %v, want [500ms]", got)
	}
}

func TestReconciler_RecoveredOnSecondFetch(t *testing.T) {
	src := &scriptedFetch{responses: [][]frigate.Event{events("e2"), events("e1", "e2")}}
	r := NewReconciler(src.fetch, nil, newFakeClock(), 500*time.Millisecond, time.Second)

	if got := r.Reconcile(context.Background(), []string{"e1", "e2"}); got != OutcomeRecovered {
		t.Fatalf("outcome = %q, want %q", got, OutcomeRecovered)
	}
	if src.calls != 2 {
		t.Fatalf("fetches = %d, want 2", src.calls)
	}
}

func TestReconciler_FetchFailureCountsAsAbsent(t *testing.T) {
	boom := errors.New("boom")
	src := &scriptedFetch{errs: []error{boom, boom}}
	r := NewReconciler(src.fetch, nil, newFakeClock(), 500*time.Millisecond, time.Second)

	if got := r.Reconcile(context.Background(), []string{"e1"}); got != OutcomeMissing {
		t.Fatalf("outcome = %q, want %q", got, OutcomeMissing)
	}
	if src.calls != 2 {
		t.Fatalf("fetches = %d, want 2", src.calls)
	}
}

func TestReconciler_CanceledDoesNotFetchOrPublish(t *testing.T) {
	src := &scriptedFetch{responses: [][]frigate.Event{events("e1")}}
	var published int
	r := NewReconciler(src.fetch, func([]frigate.Event, time.Time) { published++ }, newFakeClock(),
		500*time.Millisecond, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if got := r.Reconcile(ctx, []string{"e1"}); got != OutcomeCanceled {
		t.Fatalf("outcome = %q, want %q", got, OutcomeCanceled)
	}
	if src.calls != 0 || published != 0 {
		t.Fatalf("fetches = %d, published = %d; want 0, 0", src.calls, published)
	}
}

func TestReconciler_EmptyBatchIsNoop(t *testing.T) {
	src := &scriptedFetch{}
	r := NewReconciler(src.fetch, nil, newFakeClock(), 0, 0)
	if got := r.Reconcile(context.Background(), nil); got != OutcomeMatched {
		t.Fatalf("outcome = %q, want %q", got, OutcomeMatched)
	}
	if src.calls != 0 {
		t.Fatalf("fetches = %d, want 0", src.calls)
	}
}
