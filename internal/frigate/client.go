package frigate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	json "github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/five82/vigil/internal/logging"
)

// EventSource is the subset of the client the poller depends on.
type EventSource interface {
	FetchEvents(ctx context.Context, query EventQuery) ([]Event, error)
	FetchCameras(ctx context.Context) ([]string, error)
}

var _ EventSource = (*Client)(nil)

// Client talks to the Frigate HTTP API.
type Client struct {
	baseURL *url.URL
	http    *resty.Client
	breaker atomic.Pointer[gobreaker.CircuitBreaker[*resty.Response]]
	tuning  BreakerSettings
	version *VersionProbe
}

const (
	defaultBaseURL   = "http://127.0.0.1:5000"
	defaultUserAgent = "vigil/0.1"
	defaultTimeout   = 10 * time.Second
)

// Option customizes a Client.
type Option func(*clientOptions)

type clientOptions struct {
	timeout   time.Duration
	transport http.RoundTripper
	breaker   BreakerSettings
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithTransport replaces the HTTP transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *clientOptions) { o.transport = rt }
}

// WithBreaker overrides the circuit breaker thresholds.
func WithBreaker(s BreakerSettings) Option {
	return func(o *clientOptions) { o.breaker = s }
}

// NewClient builds a Client for the server at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	o := clientOptions{timeout: defaultTimeout, breaker: DefaultBreakerSettings()}
	for _, opt := range opts {
		opt(&o)
	}

	rc := resty.New().
		SetBaseURL(strings.TrimSuffix(base.String(), "/")).
		SetTimeout(o.timeout).
		SetHeader("User-Agent", defaultUserAgent).
		SetLogger(restyLogger{})
	if o.transport != nil {
		rc.SetTransport(o.transport)
	}

	c := &Client{
		baseURL: base,
		http:    rc,
		tuning:  o.breaker,
	}
	c.breaker.Store(newBreaker(o.breaker))
	c.version = NewVersionProbe(c.FetchVersion)
	return c, nil
}

// BaseURL returns a copy of the server base URL.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// Version returns the cached server version, probing on first use.
func (c *Client) Version(ctx context.Context) Version {
	return c.version.Get(ctx)
}

// VersionProbe exposes the probe so callers can invalidate it.
func (c *Client) VersionProbe() *VersionProbe {
	return c.version
}

// EventQuery configures /api/events requests. Empty filter values mean "all".
type EventQuery struct {
	Cameras    string
	Labels     string
	Zones      string
	InProgress bool
	Limit      int
	OrderBy    string
	Timezone   string
}

const (
	defaultEventLimit = 50
	defaultTimezone   = "UTC"
)

func (q EventQuery) values() url.Values {
	values := url.Values{}
	values.Set("cameras", allOr(q.Cameras))
	values.Set("labels", allOr(q.Labels))
	values.Set("zones", allOr(q.Zones))
	values.Set("sub_labels", "all")
	values.Set("time_range", "00:00,24:00")
	tz := strings.TrimSpace(q.Timezone)
	if tz == "" {
		tz = defaultTimezone
	}
	values.Set("timezone", tz)
	values.Set("favorites", "0")
	values.Set("is_submitted", "-1")
	values.Set("include_thumbnails", "0")
	if q.InProgress {
		values.Set("in_progress", "1")
	} else {
		values.Set("in_progress", "0")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultEventLimit
	}
	values.Set("limit", strconv.Itoa(limit))
	if order := strings.TrimSpace(q.OrderBy); order != "" {
		values.Set("order_by", order)
	}
	return values
}

func allOr(v string) string {
	if v = strings.TrimSpace(v); v == "" {
		return "all"
	}
	return v
}

// FetchEventsRaw returns the undecoded /api/events body.
func (c *Client) FetchEventsRaw(ctx context.Context, query EventQuery) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	return c.get(ctx, "/api/events", query.values())
}

// FetchEvents retrieves and normalizes events matching query.
func (c *Client) FetchEvents(ctx context.Context, query EventQuery) ([]Event, error) {
	raw, err := c.FetchEventsRaw(ctx, query)
	if err != nil {
		return nil, err
	}
	v := c.Version(ctx)
	events, shape, err := decode(raw, v)
	if err != nil {
		return nil, &APIError{Kind: ErrDecoding, Path: "/api/events", Err: err}
	}
	logging.Debug().
		Str("shape", shape).
		Int("count", len(events)).
		Bool("in_progress", query.InProgress).
		Str("server", v.String()).
		Msg("decoded events")
	return events, nil
}

// FetchCameras returns the configured camera names, sorted.
func (c *Client) FetchCameras(ctx context.Context) ([]string, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	body, err := c.get(ctx, "/api/config", nil)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Cameras map[string]json.RawMessage `json:"cameras"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, newError(ErrDecoding, "/api/config", err)
	}
	cameras := make([]string, 0, len(payload.Cameras))
	for name := range payload.Cameras {
		cameras = append(cameras, name)
	}
	sort.Strings(cameras)
	return cameras, nil
}

// FetchVersion returns the raw /api/version body. The probe result is
// cached, so it never goes through the breaker.
func (c *Client) FetchVersion(ctx context.Context) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	return c.get(WithoutBreaker(ctx), "/api/version", nil)
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	var (
		resp *resty.Response
		err  error
	)
	if bypassBreaker(ctx) {
		resp, err = c.request(ctx, path, params)
		if err == nil {
			c.resetBreaker()
		}
	} else {
		resp, err = c.breaker.Load().Execute(func() (*resty.Response, error) {
			return c.request(ctx, path, params)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, newError(ErrNetwork, path, err)
		}
	}
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, &APIError{Kind: ErrInvalidResponse, Path: path, StatusCode: resp.StatusCode()}
	}
	return resp.Body(), nil
}

// request performs one GET. Server errors count as failures for the breaker;
// other non-200 statuses are the caller's problem, not the server's health.
func (c *Client) request(ctx context.Context, path string, params url.Values) (*resty.Response, error) {
	req := c.http.R().SetContext(ctx).SetHeader("Accept", "application/json")
	if len(params) > 0 {
		req.SetQueryParamsFromValues(params)
	}
	resp, err := req.Get(path)
	if err != nil {
		return nil, newError(ErrNetwork, path, err)
	}
	if resp.StatusCode() >= http.StatusInternalServerError {
		return resp, &APIError{Kind: ErrInvalidResponse, Path: path, StatusCode: resp.StatusCode()}
	}
	return resp, nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		trimmed = defaultBaseURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, newError(ErrInvalidURL, raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, newError(ErrInvalidURL, raw, fmt.Errorf("unsupported scheme %q", u.Scheme))
	}
	if u.Host == "" {
		return nil, newError(ErrInvalidURL, raw, errors.New("missing host"))
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

type restyLogger struct{}

func (restyLogger) Errorf(format string, v ...any) {
	logging.Error().Msgf("resty: "+format, v...)
}

func (restyLogger) Warnf(format string, v ...any) {
	logging.Warn().Msgf("resty: "+format, v...)
}

func (restyLogger) Debugf(format string, v ...any) {
	logging.Debug().Msgf("resty: "+format, v...)
}
