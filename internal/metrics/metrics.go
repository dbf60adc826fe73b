// Package metrics declares the Prometheus collectors vigil exports and the
// optional /metrics listener.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Fetches counts API fetches by endpoint (events, in_progress, cameras,
	// reconcile) and outcome (success, error).
	Fetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_fetch_total",
			Help: "Frigate API fetches by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)

	Reconciliations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_reconcile_total",
			Help: "Finished-event reconciliation batches by outcome",
		},
		[]string{"outcome"},
	)

	MediaProbes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_media_probe_total",
			Help: "Media candidate probes by classification",
		},
		[]string{"reason"},
	)

	BreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"from", "to"},
	)

	MQTTMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_mqtt_messages_total",
			Help: "MQTT event messages by type (new, end, ignored, invalid)",
		},
		[]string{"type"},
	)

	EventsInProgress = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vigil_events_in_progress",
		Help: "Events currently reported as in progress",
	})

	EventsListed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vigil_events_listed",
		Help: "Events in the last full event list",
	})
)

// Outcome returns the outcome label for err.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// Serve exposes the default registry on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
