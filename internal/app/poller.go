package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/five82/vigil/internal/filter"
	"github.com/five82/vigil/internal/frigate"
	"github.com/five82/vigil/internal/logging"
	"github.com/five82/vigil/internal/metrics"
	"github.com/five82/vigil/internal/state"
)

const (
	defaultFastInterval = 2 * time.Second
	defaultSlowInterval = 30 * time.Second
	defaultRefreshDelay = 500 * time.Millisecond
	triggerBuffer       = 8
)

// TriggerKind identifies an out-of-band poll request.
type TriggerKind int

const (
	// TriggerRefresh runs the manual refresh sequence (menu action, retry,
	// filter change, startup).
	TriggerRefresh TriggerKind = iota
	// TriggerInProgress runs an in-progress poll with reconciliation, as
	// after a push notification.
	TriggerInProgress
)

func (k TriggerKind) String() string {
	switch k {
	case TriggerRefresh:
		return "refresh"
	case TriggerInProgress:
		return "in_progress"
	}
	return "unknown"
}

// PollerConfig holds polling cadence and query settings. Zero durations fall
// back to defaults except RefreshDelay and the reconcile delays, where zero
// is a valid choice and negative selects the default.
type PollerConfig struct {
	FastInterval         time.Duration
	SlowInterval         time.Duration
	RefreshDelay         time.Duration
	ReconcileFirstDelay  time.Duration
	ReconcileSecondDelay time.Duration
	Limit                int
	Timezone             string
}

// DefaultPollerConfig returns the standard cadence.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		FastInterval:         defaultFastInterval,
		SlowInterval:         defaultSlowInterval,
		RefreshDelay:         defaultRefreshDelay,
		ReconcileFirstDelay:  defaultReconcileFirstDelay,
		ReconcileSecondDelay: defaultReconcileSecondDelay,
	}
}

// PollerOption customizes a Poller.
type PollerOption func(*Poller)

// WithClock replaces the system clock.
func WithClock(c Clock) PollerOption {
	return func(p *Poller) { p.clock = c }
}

// WithVersion publishes the resolved server version on every slow poll.
func WithVersion(fn func(ctx context.Context) frigate.Version) PollerOption {
	return func(p *Poller) { p.version = fn }
}

// Poller runs the fast in-progress loop and the slow full-list loop and
// publishes results to the store.
type Poller struct {
	source   frigate.EventSource
	store    *state.Store
	settings *state.Settings
	clock    Clock
	cfg      PollerConfig
	version  func(ctx context.Context) frigate.Version

	reconciler *Reconciler
	triggers   chan TriggerKind
	background sync.WaitGroup

	// In-progress polls can overlap; results are applied in start order and
	// a response older than the last applied one is dropped.
	inProgressMu      sync.Mutex
	inProgressSeq     atomic.Uint64
	inProgressApplied uint64
}

// NewPoller wires a poller around source. settings may be nil, meaning no
// filters.
func NewPoller(source frigate.EventSource, store *state.Store, settings *state.Settings, cfg PollerConfig, opts ...PollerOption) *Poller {
	if cfg.FastInterval <= 0 {
		cfg.FastInterval = defaultFastInterval
	}
	if cfg.SlowInterval <= 0 {
		cfg.SlowInterval = defaultSlowInterval
	}
	if cfg.RefreshDelay < 0 {
		cfg.RefreshDelay = defaultRefreshDelay
	}
	if settings == nil {
		settings = state.NewSettings(filter.Set{})
	}
	p := &Poller{
		source:   source,
		store:    store,
		settings: settings,
		clock:    SystemClock(),
		cfg:      cfg,
		triggers: make(chan TriggerKind, triggerBuffer),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.reconciler = NewReconciler(
		func(ctx context.Context) ([]frigate.Event, error) {
			return p.source.FetchEvents(frigate.WithoutBreaker(ctx), p.query(false))
		},
		p.store.SetEvents,
		p.clock,
		cfg.ReconcileFirstDelay,
		cfg.ReconcileSecondDelay,
	)
	return p
}

// Reconciler exposes the reconciliation controller.
func (p *Poller) Reconciler() *Reconciler { return p.reconciler }

// Settings returns the filter context the poller reads.
func (p *Poller) Settings() *state.Settings { return p.settings }

// Trigger enqueues an out-of-band poll. It never blocks and reports false
// when the queue is full.
func (p *Poller) Trigger(kind TriggerKind) bool {
	select {
	case p.triggers <- kind:
		return true
	default:
		logging.Debug().Stringer("trigger", kind).Msg("trigger dropped; queue full")
		return false
	}
}

// Run starts both loops and the trigger consumer and blocks until ctx is
// cancelled and every background reconciliation has returned.
func (p *Poller) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.loop(ctx, p.cfg.FastInterval, func(ctx context.Context) { p.pollInProgress(ctx, true) })
	})
	g.Go(func() error {
		return p.loop(ctx, p.cfg.SlowInterval, p.pollFull)
	})
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case kind := <-p.triggers:
				p.handle(ctx, kind)
			}
		}
	})
	err := g.Wait()
	p.background.Wait()
	return err
}

func (p *Poller) loop(ctx context.Context, every time.Duration, poll func(context.Context)) error {
	ticker := p.clock.NewTicker(every)
	defer ticker.Stop()
	for {
		poll(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
		}
	}
}

func (p *Poller) handle(ctx context.Context, kind TriggerKind) {
	switch kind {
	case TriggerRefresh:
		if err := p.Refresh(ctx); err != nil && ctx.Err() == nil {
			logging.Warn().Err(err).Msg("refresh failed")
		}
	case TriggerInProgress:
		p.pollInProgress(ctx, true)
	}
}

// Refresh runs the manual refresh sequence: a cosmetic delay with the loading
// flag raised, then the full list, the in-progress list (tracking only, no
// reconciliation), and the camera list. It returns the full-list error, which
// is also surfaced to the user. Requests skip the circuit breaker so a retry
// always reaches the server.
func (p *Poller) Refresh(ctx context.Context) error {
	ctx = frigate.WithoutBreaker(ctx)
	p.store.SetLoading(true)
	if err := p.clock.Sleep(ctx, p.cfg.RefreshDelay); err != nil {
		return err
	}
	err := p.fetchFull(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	p.pollInProgress(ctx, false)
	p.fetchCameras(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	p.store.SetLoading(false)
	return err
}

// pollFull is the slow-loop body.
func (p *Poller) pollFull(ctx context.Context) {
	if p.version != nil {
		v := p.version(ctx)
		if ctx.Err() != nil {
			return
		}
		p.store.SetVersion(v)
	}
	if err := p.fetchFull(ctx); err != nil && ctx.Err() == nil {
		logging.Warn().Err(err).Msg("event list poll failed")
	}
	p.fetchCameras(ctx)
}

func (p *Poller) fetchFull(ctx context.Context) error {
	events, err := p.source.FetchEvents(ctx, p.query(false))
	metrics.Fetches.WithLabelValues("events", metrics.Outcome(err)).Inc()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	now := p.clock.Now()
	if err != nil {
		p.store.RecordFailure(err, now, true)
		return err
	}
	p.store.SetEvents(events, now)
	metrics.EventsListed.Set(float64(len(events)))
	return nil
}

func (p *Poller) fetchCameras(ctx context.Context) {
	cameras, err := p.source.FetchCameras(ctx)
	metrics.Fetches.WithLabelValues("cameras", metrics.Outcome(err)).Inc()
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		logging.Debug().Err(err).Msg("camera poll failed")
		p.store.RecordFailure(err, p.clock.Now(), false)
		return
	}
	p.store.SetCameras(cameras)
}

// pollInProgress fetches the in-progress list, updates tracking, and when
// reconcile is set hands finished events to the reconciler in the
// background. Failures are logged and timestamped only.
func (p *Poller) pollInProgress(ctx context.Context, reconcile bool) {
	seq := p.inProgressSeq.Add(1)
	events, err := p.source.FetchEvents(ctx, p.query(true))
	metrics.Fetches.WithLabelValues("in_progress", metrics.Outcome(err)).Inc()
	if ctx.Err() != nil {
		return
	}
	now := p.clock.Now()
	if err != nil {
		logging.Debug().Err(err).Msg("in-progress poll failed")
		p.store.RecordFailure(err, now, false)
		return
	}

	p.inProgressMu.Lock()
	if seq < p.inProgressApplied {
		p.inProgressMu.Unlock()
		logging.Debug().Uint64("seq", seq).Msg("stale in-progress response dropped")
		return
	}
	p.inProgressApplied = seq
	p.store.SetInProgress(events, now)
	finished := p.reconciler.Observe(frigate.IDs(events))
	p.inProgressMu.Unlock()
	metrics.EventsInProgress.Set(float64(len(events)))

	if !reconcile || len(finished) == 0 {
		return
	}
	logging.Debug().Strs("finished", finished).Msg("in-progress events finished")
	p.background.Go(func() {
		p.reconciler.Reconcile(ctx, finished)
	})
}

// query builds the server query. Single-valued filter dimensions are pushed
// to the server; the rest are applied by state.Snapshot.Visible.
func (p *Poller) query(inProgress bool) frigate.EventQuery {
	f := p.settings.Filters()
	return frigate.EventQuery{
		Cameras:    f.Single(filter.Cameras),
		Labels:     f.Single(filter.Labels),
		Zones:      f.Single(filter.Zones),
		InProgress: inProgress,
		Limit:      p.cfg.Limit,
		Timezone:   p.cfg.Timezone,
	}
}

