package frigate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/five82/vigil/internal/logging"
	"github.com/five82/vigil/internal/metrics"
)

// ErrNoPlayableFormat is returned once every candidate in a cycle failed.
var ErrNoPlayableFormat = errors.New("no playable format")

// clipPaths are the media paths tried for an event, in order.
var clipPaths = []string{"clip.mp4", "clip", "recording", "clip.mov"}

// ProbeReason classifies a probe outcome.
type ProbeReason string

const (
	ReasonPlayable        ProbeReason = "playable"
	ReasonUnauthorized    ProbeReason = "unauthorized"
	ReasonForbidden       ProbeReason = "forbidden"
	ReasonNotFound        ProbeReason = "not_found"
	ReasonUnsupportedType ProbeReason = "unsupported_type"
	ReasonFailed          ProbeReason = "failed"
)

// ProbeResult describes a HEAD probe against one candidate URL.
type ProbeResult struct {
	URL         string
	Playable    bool
	StatusCode  int
	ContentType string
	Reason      ProbeReason
	Err         error
}

// CandidateURLs returns the four clip URLs for an event, most likely first.
func (c *Client) CandidateURLs(eventID string) []string {
	urls := make([]string, len(clipPaths))
	for i, p := range clipPaths {
		urls[i] = c.eventURL(eventID, p)
	}
	return urls
}

// SnapshotURL returns the full-size snapshot URL for an event.
func (c *Client) SnapshotURL(eventID string) string {
	return c.eventURL(eventID, "snapshot.jpg")
}

// ThumbnailURL returns the thumbnail URL for an event.
func (c *Client) ThumbnailURL(eventID string) string {
	return c.eventURL(eventID, "thumbnail.jpg")
}

func (c *Client) eventURL(eventID, leaf string) string {
	return c.baseURL.JoinPath("api", "events", eventID, leaf).String()
}

// Probe issues a HEAD request and classifies the response. It does not retry.
func (c *Client) Probe(ctx context.Context, target string) ProbeResult {
	res := ProbeResult{URL: target}
	resp, err := c.http.R().SetContext(ctx).Head(target)
	if err != nil {
		res.Reason = ReasonFailed
		res.Err = newError(ErrNetwork, target, err)
		metrics.MediaProbes.WithLabelValues(string(res.Reason)).Inc()
		return res
	}
	res.StatusCode = resp.StatusCode()
	res.ContentType = resp.Header().Get("Content-Type")
	res.Reason = classifyProbe(res.StatusCode, res.ContentType)
	res.Playable = res.Reason == ReasonPlayable
	if !res.Playable {
		res.Err = &APIError{Kind: ErrInvalidResponse, Path: target, StatusCode: res.StatusCode}
		if res.StatusCode == http.StatusOK {
			res.Err = newError(ErrInvalidResponse, target, fmt.Errorf("content type %q is not video", res.ContentType))
		}
	}
	metrics.MediaProbes.WithLabelValues(string(res.Reason)).Inc()
	return res
}

func classifyProbe(status int, contentType string) ProbeReason {
	switch status {
	case http.StatusOK:
		ct := strings.ToLower(contentType)
		if strings.Contains(ct, "video/") || strings.Contains(ct, "application/octet-stream") {
			return ReasonPlayable
		}
		return ReasonUnsupportedType
	case http.StatusUnauthorized:
		return ReasonUnauthorized
	case http.StatusForbidden:
		return ReasonForbidden
	case http.StatusNotFound:
		return ReasonNotFound
	default:
		return ReasonFailed
	}
}

// Prober checks whether a URL is servable.
type Prober interface {
	Probe(ctx context.Context, url string) ProbeResult
}

// Playback walks an event's candidate URLs. A failure advances the cursor
// cyclically; once every candidate failed in the current cycle Try reports
// ErrNoPlayableFormat, and the following Try starts a new cycle at the first
// candidate.
type Playback struct {
	prober     Prober
	candidates []string
	index      int
	failures   int
}

// NewPlayback builds a cursor over candidates.
func NewPlayback(prober Prober, candidates []string) *Playback {
	return &Playback{prober: prober, candidates: candidates}
}

// Playback returns a cursor over the event's candidate clip URLs.
func (c *Client) Playback(eventID string) *Playback {
	return NewPlayback(c, c.CandidateURLs(eventID))
}

// Current returns the candidate under the cursor.
func (p *Playback) Current() string {
	if len(p.candidates) == 0 {
		return ""
	}
	return p.candidates[p.index]
}

// Exhausted reports whether every candidate failed in the current cycle.
func (p *Playback) Exhausted() bool {
	return len(p.candidates) == 0 || p.failures >= len(p.candidates)
}

// Fail records that the current candidate could not be played and advances.
// It returns false when the cycle is exhausted.
func (p *Playback) Fail() bool {
	if p.Exhausted() {
		return false
	}
	p.failures++
	p.index = (p.index + 1) % len(p.candidates)
	return !p.Exhausted()
}

// Reset starts a fresh cycle at the first candidate.
func (p *Playback) Reset() {
	p.index = 0
	p.failures = 0
}

// Try probes the current candidate. On failure the cursor advances; when that
// failure completes the cycle the returned error is ErrNoPlayableFormat.
func (p *Playback) Try(ctx context.Context) (ProbeResult, error) {
	if len(p.candidates) == 0 {
		return ProbeResult{Reason: ReasonFailed}, ErrNoPlayableFormat
	}
	if p.Exhausted() {
		p.Reset()
	}
	res := p.prober.Probe(ctx, p.Current())
	if res.Playable {
		return res, nil
	}
	logging.Debug().
		Str("url", res.URL).
		Int("status", res.StatusCode).
		Str("reason", string(res.Reason)).
		Msg("media candidate rejected")
	if !p.Fail() {
		return res, ErrNoPlayableFormat
	}
	return res, res.Err
}

// Resolve runs one full cycle and returns the first playable candidate along
// with every probe made.
func (p *Playback) Resolve(ctx context.Context) (string, []ProbeResult, error) {
	p.Reset()
	results := make([]ProbeResult, 0, len(p.candidates))
	for {
		res, err := p.Try(ctx)
		results = append(results, res)
		if err == nil {
			return res.URL, results, nil
		}
		if errors.Is(err, ErrNoPlayableFormat) {
			return "", results, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", results, ctxErr
		}
	}
}

// ResolveClip finds a playable clip URL for an event.
func (c *Client) ResolveClip(ctx context.Context, eventID string) (string, []ProbeResult, error) {
	return c.Playback(eventID).Resolve(ctx)
}
