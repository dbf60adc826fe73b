package frigate

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	json "github.com/goccy/go-json"
	"golang.org/x/sync/singleflight"

	"github.com/five82/vigil/internal/logging"
)

// DefaultVersion is assumed when the server version cannot be discovered.
const DefaultVersion = "0.13.0"

// Version is a parsed server version. The zero value is 0.0.0.
type Version struct {
	Major int
	Minor int
	Patch int
	Raw   string
}

var (
	versionPattern = regexp.MustCompile(`^\d+\.\d+(\.\d+.*)?`)
	versionNumbers = regexp.MustCompile(`^(\d+)\.(\d+)(?:\.(\d+))?`)
	embeddedField  = regexp.MustCompile(`"version"\s*:\s*"([^"]+)"`)
	versionKeys    = []string{"version", "frigate_version", "server_version", "api_version"}
)

// ParseVersion reads "major.minor[.patch][suffix]" such as "0.14.1-f4f3cfa".
func ParseVersion(s string) (Version, error) {
	trimmed := strings.TrimSpace(s)
	trimmed = strings.TrimPrefix(trimmed, "v")
	m := versionNumbers.FindStringSubmatch(trimmed)
	if m == nil {
		return Version{}, fmt.Errorf("parse version %q: %w", s, ErrUnsupportedVersion)
	}
	v := Version{Raw: trimmed}
	v.Major, _ = strconv.Atoi(m[1])
	v.Minor, _ = strconv.Atoi(m[2])
	if m[3] != "" {
		v.Patch, _ = strconv.Atoi(m[3])
	}
	return v, nil
}

func mustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare returns -1, 0 or 1 ordering v against o by major, minor and patch.
func (v Version) Compare(o Version) int {
	for _, pair := range [][2]int{{v.Major, o.Major}, {v.Minor, o.Minor}, {v.Patch, o.Patch}} {
		switch {
		case pair[0] < pair[1]:
			return -1
		case pair[0] > pair[1]:
			return 1
		}
	}
	return 0
}

// AtLeast reports whether v is o or newer.
func (v Version) AtLeast(o Version) bool {
	return v.Compare(o) >= 0
}

// parseVersionBody extracts a version string from an /api/version response,
// which is plain text on most releases and JSON on some builds and proxies.
func parseVersionBody(body []byte) (string, bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return "", false
	}

	if trimmed[0] == '{' {
		var obj map[string]any
		if err := json.Unmarshal(trimmed, &obj); err == nil {
			for _, key := range versionKeys {
				if s, ok := obj[key].(string); ok && versionPattern.MatchString(strings.TrimSpace(s)) {
					return strings.TrimSpace(s), true
				}
			}
		}
	}

	text := strings.Trim(string(trimmed), "\"'")
	text = strings.TrimSpace(text)
	if versionPattern.MatchString(text) {
		return text, true
	}

	if m := embeddedField.FindSubmatch(trimmed); m != nil {
		candidate := strings.TrimSpace(string(m[1]))
		if versionPattern.MatchString(candidate) {
			return candidate, true
		}
	}
	return "", false
}

// VersionProbe discovers the server version once and caches the outcome for
// the life of the process.
type VersionProbe struct {
	fetch func(ctx context.Context) ([]byte, error)

	mu     sync.RWMutex
	cached *Version
	group  singleflight.Group
}

// NewVersionProbe builds a probe around a raw /api/version fetcher.
func NewVersionProbe(fetch func(ctx context.Context) ([]byte, error)) *VersionProbe {
	return &VersionProbe{fetch: fetch}
}

// Get returns the cached version, probing the server on first use. It never
// fails: any problem resolves to DefaultVersion, which is cached as well.
// Concurrent first callers share a single request.
func (p *VersionProbe) Get(ctx context.Context) Version {
	if v, ok := p.load(); ok {
		return v
	}
	res, _, _ := p.group.Do("version", func() (any, error) {
		if v, ok := p.load(); ok {
			return v, nil
		}
		v := p.probe(ctx)
		if ctx.Err() != nil {
			// A cancelled caller must not pin the fallback for everyone else.
			return v, nil
		}
		p.mu.Lock()
		p.cached = &v
		p.mu.Unlock()
		return v, nil
	})
	return res.(Version)
}

// Invalidate drops the cached version so the next Get probes again.
func (p *VersionProbe) Invalidate() {
	p.mu.Lock()
	p.cached = nil
	p.mu.Unlock()
}

func (p *VersionProbe) load() (Version, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.cached == nil {
		return Version{}, false
	}
	return *p.cached, true
}

func (p *VersionProbe) probe(ctx context.Context) Version {
	fallback := mustParseVersion(DefaultVersion)
	if p.fetch == nil {
		return fallback
	}
	body, err := p.fetch(ctx)
	if err != nil {
		logging.Warn().Err(err).Str("fallback", DefaultVersion).Msg("server version probe failed")
		return fallback
	}
	raw, ok := parseVersionBody(body)
	if !ok {
		logging.Warn().Str("body", truncate(string(body), 80)).Str("fallback", DefaultVersion).Msg("unrecognised server version response")
		return fallback
	}
	v, err := ParseVersion(raw)
	if err != nil {
		logging.Warn().Err(err).Str("fallback", DefaultVersion).Msg("unparseable server version")
		return fallback
	}
	logging.Info().Str("version", v.Raw).Msg("detected frigate server version")
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
