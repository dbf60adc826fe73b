package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/five82/vigil/internal/config"
	"github.com/five82/vigil/internal/frigate"
	"github.com/five82/vigil/internal/logging"
	"github.com/five82/vigil/internal/metrics"
	"github.com/five82/vigil/internal/mqttfeed"
	"github.com/five82/vigil/internal/prefs"
	"github.com/five82/vigil/internal/state"
	"github.com/five82/vigil/internal/ui"
)

// Options configure a watch session.
type Options struct {
	ConfigPath string
	PrefsPath  string // empty uses default ~/.config/vigil/prefs.toml
	Headless   bool
	LogLevel   string        // overrides log_level when set
	FastPoll   time.Duration // zero uses the configured value
	SlowPoll   time.Duration // zero uses the configured value
}

// Run polls Frigate and drives the TUI (or the headless logger) until the
// context is cancelled or the user quits.
func Run(ctx context.Context, opts Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
	if opts.FastPoll > 0 {
		cfg.FastPoll = opts.FastPoll
	}
	if opts.SlowPoll > 0 {
		cfg.SlowPoll = opts.SlowPoll
	}

	closeLog := initLogging(cfg, opts.Headless)
	defer closeLog()

	prefsPath := opts.PrefsPath
	if prefsPath == "" {
		prefsPath = prefs.DefaultPath()
	}
	userPrefs := prefs.Load(prefsPath)

	client, err := frigate.NewClient(cfg.BaseURL, frigate.WithTimeout(cfg.RequestTimeout))
	if err != nil {
		return fmt.Errorf("init frigate client: %w", err)
	}

	store := &state.Store{}
	settings := state.NewSettings(userPrefs.Filters())
	poller := NewPoller(client, store, settings, PollerConfig{
		FastInterval:         cfg.FastPoll,
		SlowInterval:         cfg.SlowPoll,
		RefreshDelay:         cfg.RefreshDelay,
		ReconcileFirstDelay:  cfg.ReconcileFirstDelay,
		ReconcileSecondDelay: cfg.ReconcileSecondDelay,
		Limit:                cfg.Limit,
		Timezone:             cfg.Timezone,
	}, WithVersion(client.Version))

	logging.Info().
		Str("base_url", client.BaseURL().String()).
		Dur("fast_poll", cfg.FastPoll).
		Dur("slow_poll", cfg.SlowPoll).
		Str("filters", settings.Filters().String()).
		Msg("starting watch")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return poller.Run(gctx) })

	if cfg.MQTT.Enabled() {
		feed := mqttfeed.New(mqttfeed.Config{
			Broker:   cfg.MQTT.Broker,
			Topic:    cfg.MQTT.Topic,
			ClientID: cfg.MQTT.ClientID,
		}, func(m mqttfeed.Message) {
			if !poller.Trigger(TriggerInProgress) {
				logging.Debug().Str("event_id", m.EventID()).Msg("trigger queue full; dropping push")
			}
		})
		g.Go(func() error {
			if err := feed.Run(gctx); err != nil {
				logging.Warn().Err(err).Msg("mqtt feed stopped")
			}
			return nil
		})
	}

	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			if err := metrics.Serve(gctx, cfg.MetricsAddr); err != nil {
				logging.Warn().Err(err).Str("addr", cfg.MetricsAddr).Msg("metrics server stopped")
			}
			return nil
		})
	}

	var runErr error
	if opts.Headless {
		runErr = watchHeadless(gctx, store, settings, SystemClock(), cfg.FastPoll)
	} else {
		runErr = ui.Run(ui.Options{
			Context:   gctx,
			Store:     store,
			Settings:  settings,
			Media:     client,
			Refresh:   func() { poller.Trigger(TriggerRefresh) },
			ThemeName: userPrefs.Theme,
			PrefsPath: prefsPath,
			Prefs:     userPrefs,
			LogPath:   cfg.LogFile,
			Location:  cfg.Location(),
			BaseURL:   client.BaseURL().String(),
		})
	}

	cancel()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	logging.Info().Msg("watch stopped")
	return nil
}

// initLogging routes logs to stderr in headless mode and to the JSON log file
// otherwise, since the TUI owns the terminal.
func initLogging(cfg config.Config, headless bool) func() {
	if headless {
		logging.Init(logging.Config{Level: cfg.LogLevel, Format: "console", Output: os.Stderr})
		return func() {}
	}
	f, err := logging.OpenFile(cfg.LogFile)
	if err != nil {
		logging.Init(logging.Config{Level: cfg.LogLevel, Format: "json", Output: io.Discard})
		return func() {}
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: "json", Output: f})
	return func() { _ = f.Close() }
}
