package frigate

import (
	"context"
	"errors"
	"time"

	"github.com/go-resty/resty/v2"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/five82/vigil/internal/logging"
	"github.com/five82/vigil/internal/metrics"
)

// BreakerSettings tunes the circuit breaker guarding API requests.
type BreakerSettings struct {
	// ConsecutiveFailures opens the breaker. Zero disables it.
	ConsecutiveFailures uint32
	// OpenFor is how long requests are rejected before a half-open trial.
	OpenFor time.Duration
}

// DefaultBreakerSettings opens after five straight failures for 30 seconds,
// one slow-poll period.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{ConsecutiveFailures: 5, OpenFor: 30 * time.Second}
}

const breakerName = "frigate-api"

func newBreaker(s BreakerSettings) *gobreaker.CircuitBreaker[*resty.Response] {
	return gobreaker.NewCircuitBreaker[*resty.Response](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     s.OpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if s.ConsecutiveFailures == 0 {
				return false
			}
			return counts.ConsecutiveFailures >= s.ConsecutiveFailures
		},
		IsExcluded: func(err error) bool {
			return errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
			metrics.BreakerTransitions.WithLabelValues(from.String(), to.String()).Inc()
		},
	})
}

type bypassKey struct{}

// WithoutBreaker marks ctx so requests made with it skip the circuit breaker.
// Manual refreshes and reconciliation use it: they must reach the server even
// while background polling is being shed.
func WithoutBreaker(ctx context.Context) context.Context {
	return context.WithValue(ctx, bypassKey{}, true)
}

func bypassBreaker(ctx context.Context) bool {
	v, _ := ctx.Value(bypassKey{}).(bool)
	return v
}

// resetBreaker closes a tripped breaker after a request that skipped it
// succeeded, so background polls resume at once.
func (c *Client) resetBreaker() {
	cb := c.breaker.Load()
	from := cb.State()
	if from == gobreaker.StateClosed {
		return
	}
	if !c.breaker.CompareAndSwap(cb, newBreaker(c.tuning)) {
		return
	}
	logging.Info().
		Str("breaker", breakerName).
		Str("from", from.String()).
		Msg("circuit breaker reset after successful request")
	metrics.BreakerTransitions.WithLabelValues(from.String(), gobreaker.StateClosed.String()).Inc()
}
