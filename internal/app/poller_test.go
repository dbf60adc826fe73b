package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/five82/vigil/internal/filter"
	"github.com/five82/vigil/internal/frigate"
	"github.com/five82/vigil/internal/state"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTicker(time.Duration) Ticker {
	return &fakeTicker{ch: make(chan time.Time)}
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return ctx.Err()
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

type fakeTicker struct{ ch chan time.Time }

func (t *fakeTicker) C() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()               {}

type fakeSource struct {
	mu         sync.Mutex
	full       [][]frigate.Event
	fullErr    error
	inProgress []frigate.Event
	ipErr      error
	cameras    []string
	camErr     error
	calls      []string
	queries    []frigate.EventQuery
	hook       func(call string)
}

func (s *fakeSource) FetchEvents(_ context.Context, q frigate.EventQuery) ([]frigate.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, q)
	if q.InProgress {
		s.record("in_progress")
		return s.inProgress, s.ipErr
	}
	s.record("events")
	if s.fullErr != nil {
		return nil, s.fullErr
	}
	if len(s.full) == 0 {
		return nil, nil
	}
	out := s.full[0]
	if len(s.full) > 1 {
		s.full = s.full[1:]
	}
	return out, nil
}

func (s *fakeSource) FetchCameras(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("cameras")
	return s.cameras, s.camErr
}

func (s *fakeSource) record(call string) {
	s.calls = append(s.calls, call)
	if s.hook != nil {
		s.hook(call)
	}
}

func (s *fakeSource) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *fakeSource) count(call string) int {
	n := 0
	for _, c := range s.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

func events(ids ...string) []frigate.Event {
	out := make([]frigate.Event, len(ids))
	for i, id := range ids {
		out[i] = frigate.Event{ID: id, Camera: "front", Label: "person", Zones: []string{}}
	}
	return out
}

func newTestPoller(src *fakeSource, clock *fakeClock) (*Poller, *state.Store) {
	store := &state.Store{}
	p := NewPoller(src, store, nil, DefaultPollerConfig(), WithClock(clock))
	return p, store
}

func TestPoller_RefreshRunsStrictSequence(t *testing.T) {
	src := &fakeSource{
		full:       [][]frigate.Event{events("a", "b")},
		inProgress: events("b"),
		cameras:    []string{"back", "front"},
	}
	clock := newFakeClock()
	p, store := newTestPoller(src, clock)

	if err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}
	if got := src.Calls(); !reflect.DeepEqual(got, []string{"events", "in_progress", "cameras"}) {
		t.Fatalf("calls = %v, want [events in_progress cameras]", got)
	}
	if got := clock.Sleeps(); !reflect.DeepEqual(got, []time.Duration{500 * time.Millisecond}) {
		t.Fatalf("sleeps = %v, want [500ms]", got)
	}
	snap := store.Snapshot()
	if snap.Loading {
		t.Fatalf("Loading = true after refresh")
	}
	if len(snap.Events) != 2 || len(snap.InProgress) != 1 || len(snap.Cameras) != 2 {
		t.Fatalf("snapshot = %#v, want 2 events, 1 in progress, 2 cameras", snap)
	}
	if !reflect.DeepEqual(p.Reconciler().Tracking(), []string{"b"}) {
		t.Fatalf("Tracking = %v, want [b]", p.Reconciler().Tracking())
	}
}

func TestPoller_RefreshDoesNotReconcile(t *testing.T) {
	src := &fakeSource{full: [][]frigate.Event{events("x")}}
	clock := newFakeClock()
	p, _ := newTestPoller(src, clock)
	p.Reconciler().Observe([]string{"e1"})

	if err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}
	p.background.Wait()
	if n := src.count("events"); n != 1 {
		t.Fatalf("full fetches = %d, want 1 (no reconciliation)", n)
	}
	if len(p.Reconciler().Tracking()) != 0 {
		t.Fatalf("Tracking = %v, want empty", p.Reconciler().Tracking())
	}
}

func TestPoller_RefreshZeroDelay(t *testing.T) {
	src := &fakeSource{}
	clock := newFakeClock()
	cfg := DefaultPollerConfig()
	cfg.RefreshDelay = 0
	p := NewPoller(src, &state.Store{}, nil, cfg, WithClock(clock))

	if err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}
	if got := clock.Sleeps(); !reflect.DeepEqual(got, []time.Duration{0}) {
		t.Fatalf("sleeps = %v, want [0]", got)
	}
}

func TestPoller_ErrorVisibility(t *testing.T) {
	boom := errors.New("boom")

	src := &fakeSource{fullErr: boom}
	clock := newFakeClock()
	p, store := newTestPoller(src, clock)
	if err := p.Refresh(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Refresh error = %v, want boom", err)
	}
	snap := store.Snapshot()
	if snap.LastError == nil || snap.LastErrorAt.IsZero() {
		t.Fatalf("full-list failure should be visible and timestamped: %#v", snap)
	}
	if got := src.Calls(); len(got) != 3 {
		t.Fatalf("calls = %v, want the sequence to continue after a full-list failure", got)
	}

	src2 := &fakeSource{ipErr: boom, camErr: boom}
	p2, store2 := newTestPoller(src2, clock)
	p2.pollInProgress(context.Background(), true)
	p2.fetchCameras(context.Background())
	snap = store2.Snapshot()
	if snap.LastError != nil {
		t.Fatalf("background failure surfaced: %v", snap.LastError)
	}
	if snap.LastErrorAt.IsZero() {
		t.Fatalf("background failure was not timestamped")
	}

	src2.mu.Lock()
	src2.ipErr, src2.camErr = nil, nil
	src2.mu.Unlock()
	p2.pollFull(context.Background())
	if snap := store2.Snapshot(); !snap.LastErrorAt.IsZero() {
		t.Fatalf("successful full fetch did not clear LastErrorAt")
	}
}

func TestPoller_FastPollTriggersReconciliation(t *testing.T) {
	src := &fakeSource{
		full:       [][]frigate.Event{events("e1")},
		inProgress: events("e1"),
	}
	clock := newFakeClock()
	p, store := newTestPoller(src, clock)

	p.pollInProgress(context.Background(), true)
	src.mu.Lock()
	src.inProgress = nil
	src.mu.Unlock()
	p.pollInProgress(context.Background(), true)
	p.background.Wait()

	if n := src.count("events"); n != 1 {
		t.Fatalf("reconciliation fetches = %d, want 1", n)
	}
	if got := clock.Sleeps(); !reflect.DeepEqual(got, []time.Duration{500 * time.Millisecond}) {
		t.Fatalf("sleeps = %v, want [500ms]", got)
	}
	if ids := frigate.IDs(store.Snapshot().Events); !reflect.DeepEqual(ids, []string{"e1"}) {
		t.Fatalf("published events = %v, want [e1]", ids)
	}
}

func TestPoller_NoWritesAfterCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &fakeSource{
		full:       [][]frigate.Event{events("a")},
		inProgress: events("b"),
		cameras:    []string{"front"},
		hook:       func(string) { cancel() },
	}
	clock := newFakeClock()
	p, store := newTestPoller(src, clock)

	p.pollFull(ctx)
	p.pollInProgress(ctx, true)
	snap := store.Snapshot()
	if len(snap.Events) != 0 || len(snap.InProgress) != 0 || len(snap.Cameras) != 0 || !snap.LastErrorAt.IsZero() {
		t.Fatalf("store written after cancellation: %#v", snap)
	}
}

func TestPoller_RunPollsImmediatelyAndStops(t *testing.T) {
	src := &fakeSource{full: [][]frigate.Event{events("a")}, cameras: []string{"front"}}
	clock := newFakeClock()
	p, store := newTestPoller(src, clock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for src.count("in_progress") == 0 || src.count("cameras") == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("initial polls did not run; calls = %v", src.Calls())
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !p.Trigger(TriggerRefresh) {
		t.Fatalf("Trigger returned false on empty queue")
	}
	for src.count("cameras") < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("trigger did not run a refresh; calls = %v", src.Calls())
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
	if ids := frigate.IDs(store.Snapshot().Events); !reflect.DeepEqual(ids, []string{"a"}) {
		t.Fatalf("events = %v, want [a]", ids)
	}
}

func TestPoller_TriggerDropsWhenFull(t *testing.T) {
	p, _ := newTestPoller(&fakeSource{}, newFakeClock())
	for i := 0; i < triggerBuffer; i++ {
		if !p.Trigger(TriggerInProgress) {
			t.Fatalf("Trigger %d returned false", i)
		}
	}
	if p.Trigger(TriggerInProgress) {
		t.Fatalf("Trigger returned true on a full queue")
	}
}

func TestPoller_QueryUsesSettings(t *testing.T) {
	src := &fakeSource{}
	settings := state.NewSettings(filter.New([]string{"person"}, []string{"a", "b"}, nil))
	cfg := DefaultPollerConfig()
	cfg.Limit = 25
	cfg.Timezone = "Europe/Oslo"
	p := NewPoller(src, &state.Store{}, settings, cfg, WithClock(newFakeClock()))

	q := p.query(true)
	want := frigate.EventQuery{Cameras: "all", Labels: "person", Zones: "all", InProgress: true, Limit: 25, Timezone: "Europe/Oslo"}
	if q != want {
		t.Fatalf("query = %#v, want %#v", q, want)
	}
}

// flakyFrigate serves a minimal Frigate API that answers 502 until healthy is
// set. Only requests made while healthy are counted.
func flakyFrigate(t *testing.T) (*frigate.Client, *atomic.Bool, *atomic.Int32) {
	t.Helper()
	var healthy atomic.Bool
	var served atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			http.Error(w, "bad gateway", http.StatusBadGateway)
			return
		}
		served.Add(1)
		switch r.URL.Path {
		case "/api/version":
			_, _ = w.Write([]byte(`{"version":"0.14.1"}`))
		case "/api/events":
			if r.URL.Query().Get("in_progress") == "1" {
				_, _ = w.Write([]byte(`[]`))
				return
			}
			_, _ = w.Write([]byte(`[{"id":"a","camera":"front","label":"person","start_time":1700000000,"end_time":1700000030,"has_clip":true,"has_snapshot":true,"zones":[]}]`))
		case "/api/config":
			_, _ = w.Write([]byte(`{"cameras":{"front":{}}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	client, err := frigate.NewClient(server.URL, frigate.WithBreaker(frigate.BreakerSettings{
		ConsecutiveFailures: 2,
		OpenFor:             time.Hour,
	}))
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	return client, &healthy, &served
}

func TestPoller_RetryAfterRecoveryReachesServer(t *testing.T) {
	client, healthy, served := flakyFrigate(t)
	store := &state.Store{}
	cfg := DefaultPollerConfig()
	cfg.RefreshDelay = 0
	p := NewPoller(client, store, nil, cfg, WithClock(newFakeClock()))
	ctx := context.Background()

	// Background polls trip the breaker.
	for i := 0; i < 3; i++ {
		p.pollFull(ctx)
	}
	healthy.Store(true)
	p.pollFull(ctx)
	if served.Load() != 0 {
		t.Fatalf("background poll reached the server through an open breaker")
	}

	if err := p.Refresh(ctx); err != nil {
		t.Fatalf("Refresh after recovery returned error: %v", err)
	}
	if served.Load() == 0 {
		t.Fatalf("Refresh did not reach the server")
	}
	snap := store.Snapshot()
	if ids := frigate.IDs(snap.Events); !reflect.DeepEqual(ids, []string{"a"}) {
		t.Fatalf("events = %v, want [a]", ids)
	}
	if snap.LastError != nil {
		t.Fatalf("LastError = %v, want nil after successful retry", snap.LastError)
	}
	if !reflect.DeepEqual(snap.Cameras, []string{"front"}) {
		t.Fatalf("cameras = %v, want [front]", snap.Cameras)
	}
}

func TestPoller_ReconcileIgnoresOpenBreaker(t *testing.T) {
	client, healthy, served := flakyFrigate(t)
	store := &state.Store{}
	p := NewPoller(client, store, nil, DefaultPollerConfig(), WithClock(newFakeClock()))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		p.pollInProgress(ctx, false)
	}
	healthy.Store(true)

	if got := p.Reconciler().Reconcile(ctx, []string{"a"}); got != OutcomeMatched {
		t.Fatalf("Reconcile = %v, want %v", got, OutcomeMatched)
	}
	if served.Load() == 0 {
		t.Fatalf("reconciliation did not reach the server")
	}
	if ids := frigate.IDs(store.Snapshot().Events); !reflect.DeepEqual(ids, []string{"a"}) {
		t.Fatalf("events = %v, want [a]", ids)
	}
}

// orderedSource blocks the first in-progress fetch until released so a later
// poll can finish first.
type orderedSource struct {
	entered chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (s *orderedSource) FetchEvents(_ context.Context, q frigate.EventQuery) ([]frigate.Event, error) {
	if !q.InProgress {
		return nil, nil
	}
	if s.calls.Add(1) == 1 {
		close(s.entered)
		<-s.release
		return events("a"), nil
	}
	return nil, nil
}

func (s *orderedSource) FetchCameras(context.Context) ([]string, error) { return nil, nil }

func TestPoller_StaleInProgressResponseDropped(t *testing.T) {
	src := &orderedSource{entered: make(chan struct{}), release: make(chan struct{})}
	store := &state.Store{}
	p := NewPoller(src, store, nil, DefaultPollerConfig(), WithClock(newFakeClock()))
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.pollInProgress(ctx, false)
	}()
	<-src.entered

	// The newer poll sees nothing in progress and is applied first.
	p.pollInProgress(ctx, false)
	close(src.release)
	<-done

	if ids := frigate.IDs(store.Snapshot().InProgress); len(ids) != 0 {
		t.Fatalf("in progress = %v, want none (older response must not win)", ids)
	}
	if tracked := p.Reconciler().Tracking(); len(tracked) != 0 {
		t.Fatalf("tracking = %v, want none", tracked)
	}
}
