package ui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/five82/vigil/internal/filter"
	"github.com/five82/vigil/internal/frigate"
)

// renderHeader renders the status bar with all information.
func (m Model) renderHeader() string {
	styles := m.theme.Styles().WithBackground(m.theme.Surface)
	bg := NewBgStyle(m.theme.Surface)
	compact := m.width < 100

	parts := []string{bg.Render("vigil", styles.Logo)}

	if m.snapshot.HasVersion {
		parts = append(parts, bg.Render("frigate "+m.snapshot.Version.String(), styles.MutedText))
	}

	if m.snapshot.LastUpdated.IsZero() && m.snapshot.LastError == nil {
		target := "Frigate"
		if m.baseURL != "" && !compact {
			target = truncateMiddle(m.baseURL, 40)
		}
		parts = append(parts, bg.Render("Connecting to "+target+"...", styles.WarningText.Bold(true)))
		return styles.Header.Width(m.width).Render(bg.Join(parts, "  "))
	}

	live, finished := m.snapshot.Visible(m.settings.Filters())
	liveStyle := styles.MutedText
	if len(live) > 0 {
		liveStyle = styles.SuccessText
	}
	parts = append(parts,
		bg.Render("Live:", styles.MutedText)+bg.Space()+
			bg.Render(fmt.Sprintf("%d", len(live)), liveStyle),
		bg.Render("Events:", styles.MutedText)+bg.Space()+
			bg.Render(fmt.Sprintf("%d", len(live)+len(finished)), styles.Text),
	)

	if f := m.settings.Filters(); !f.Empty() {
		parts = append(parts, bg.Render("Filter:", styles.MutedText)+bg.Space()+
			bg.Render(truncate(f.String(), 40), styles.AccentText))
	}

	if ts := m.formatTimestamp(); ts != "" {
		parts = append(parts, bg.Render(ts, styles.MutedText))
	}

	if m.snapshot.Loading {
		parts = append(parts, bg.Render(m.spinner.View(), styles.InfoText))
	}

	if m.snapshot.IsOffline() {
		parts = append(parts, bg.Render("OFFLINE", styles.DangerText))
	}

	if err := m.snapshot.LastError; err != nil {
		maxErr := 80
		if compact {
			maxErr = 40
		}
		parts = append(parts,
			bg.Render(classifyConnectionError(err), styles.DangerText.Bold(true))+bg.Space()+
				bg.Render(truncate(err.Error(), maxErr), styles.DangerText)+bg.Spaces(2)+
				bg.Render("r", styles.AccentText)+bg.Sep(":")+bg.Render("Retry", styles.MutedText)+bg.Space()+
				bg.Render("d", styles.AccentText)+bg.Sep(":")+bg.Render("Dismiss", styles.MutedText),
		)
	}

	return styles.Header.Width(m.width).Render(bg.Join(parts, "  "))
}

// formatTimestamp formats the last successful update with a relative age.
func (m Model) formatTimestamp() string {
	last := m.snapshot.LastUpdated
	if last.IsZero() {
		return ""
	}
	age := m.now().Sub(last)
	ts := last.In(m.loc).Format("15:04:05")
	if age < time.Minute {
		return ts + " (now)"
	}
	return ts + " (" + humanizeDuration(age) + " ago)"
}

// classifyConnectionError returns a short description of the failure.
func classifyConnectionError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "connection refused"):
		return "OFFLINE"
	case strings.Contains(msg, "no such host"):
		return "HOST NOT FOUND"
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return "TIMEOUT"
	case errors.Is(err, frigate.ErrDecoding):
		return "BAD RESPONSE"
	case errors.Is(err, frigate.ErrInvalidResponse):
		return "SERVER ERROR"
	default:
		return "ERROR"
	}
}

// renderCommandBar renders the key hints for the current view.
func (m Model) renderCommandBar() string {
	styles := m.theme.Styles().WithBackground(m.theme.Surface)
	bg := NewBgStyle(m.theme.Surface)

	type cmd struct{ key, desc string }
	var commands []cmd

	switch m.currentView {
	case ViewLogs:
		followLabel := "Pause"
		if !m.logFollow {
			followLabel = "Follow"
		}
		commands = []cmd{
			{"Space", followLabel},
			{"j/k", "Scroll"},
			{"esc", "Events"},
			{"?", "More"},
		}
	default:
		f := m.settings.Filters()
		commands = []cmd{
			{"r", "Refresh"},
			{"enter", "Clip"},
			{"c", "Camera " + filterHint(f.Values(filter.Cameras))},
			{"L", "Label " + filterHint(f.Values(filter.Labels))},
			{"z", "Zone " + filterHint(f.Values(filter.Zones))},
			{"x", "Clear"},
			{"l", "Logs"},
			{"?", "More"},
		}
	}

	colon := bg.Sep(":")
	segments := make([]string, 0, len(commands)+1)
	for _, c := range commands {
		segments = append(segments,
			bg.Render(c.key, styles.AccentText)+colon+bg.Render(c.desc, styles.MutedText))
	}
	segments = append(segments,
		bg.Render("T", styles.AccentText)+colon+bg.Render(m.theme.Name, styles.FaintText))

	return styles.Header.Width(m.width).Render(bg.Join(segments, "  "))
}

// filterHint summarizes one filter dimension for the command bar.
func filterHint(values []string) string {
	switch len(values) {
	case 0:
		return "all"
	case 1:
		return truncate(values[0], 16)
	default:
		return fmt.Sprintf("%d selected", len(values))
	}
}
