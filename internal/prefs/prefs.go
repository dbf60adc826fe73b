// Package prefs persists vigil's interactive choices: the theme and the
// selected label, zone, and camera filters. Preferences are stored in
// ~/.config/vigil/prefs.toml.
package prefs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/five82/vigil/internal/filter"
	"github.com/five82/vigil/internal/logging"
)

// Prefs holds user preferences.
type Prefs struct {
	Theme   string   `toml:"theme"`
	Labels  []string `toml:"labels,omitempty"`
	Zones   []string `toml:"zones,omitempty"`
	Cameras []string `toml:"cameras,omitempty"`
}

const (
	defaultPrefsPath = "~/.config/vigil/prefs.toml"
	defaultTheme     = "Dracula"
)

// DefaultPath returns the default preferences file path.
func DefaultPath() string {
	return defaultPrefsPath
}

// Defaults returns the preferences used when nothing is stored.
func Defaults() Prefs {
	return Prefs{Theme: defaultTheme}
}

// Filters returns the stored selections as a filter set.
func (p Prefs) Filters() filter.Set {
	return filter.New(p.Labels, p.Zones, p.Cameras)
}

// WithFilters returns a copy of p carrying f.
func (p Prefs) WithFilters(f filter.Set) Prefs {
	p.Labels = f.Labels
	p.Zones = f.Zones
	p.Cameras = f.Cameras
	return p
}

// Load reads preferences from path. Missing or unreadable files degrade to
// defaults; the error is only logged.
func Load(path string) Prefs {
	prefs := Defaults()

	resolved, err := resolvePath(path)
	if err != nil {
		return prefs
	}
	bytes, err := os.ReadFile(resolved)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logging.Warn().Err(err).Str("path", resolved).Msg("read prefs; using defaults")
		}
		return prefs
	}
	if err := toml.Unmarshal(bytes, &prefs); err != nil {
		logging.Warn().Err(err).Str("path", resolved).Msg("parse prefs; using defaults")
		return Defaults()
	}

	if strings.TrimSpace(prefs.Theme) == "" {
		prefs.Theme = defaultTheme
	}
	f := prefs.Filters()
	return prefs.WithFilters(f)
}

// Save writes preferences to the given path, creating directories as needed.
func Save(path string, p Prefs) error {
	resolved, err := resolvePath(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}

	bytes, err := toml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal prefs: %w", err)
	}

	if err := os.WriteFile(resolved, bytes, 0o644); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	return nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		path = defaultPrefsPath
	}
	trimmed := strings.TrimSpace(path)
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
