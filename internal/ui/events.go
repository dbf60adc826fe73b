package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/vigil/internal/filter"
	"github.com/five82/vigil/internal/frigate"
)

// eventRow is one line of the events table.
type eventRow struct {
	event frigate.Event
	live  bool
}

// rows returns the filtered in-progress events followed by the filtered
// finished ones.
func (m Model) rows() []eventRow {
	live, finished := m.snapshot.Visible(m.settings.Filters())
	out := make([]eventRow, 0, len(live)+len(finished))
	for _, ev := range live {
		out = append(out, eventRow{event: ev, live: true})
	}
	for _, ev := range finished {
		out = append(out, eventRow{event: ev})
	}
	return out
}

// selectedEvent returns the highlighted event, if any.
func (m Model) selectedEvent() (frigate.Event, bool) {
	rows := m.rows()
	if m.selectedRow < 0 || m.selectedRow >= len(rows) {
		return frigate.Event{}, false
	}
	return rows[m.selectedRow].event, true
}

func (m *Model) clampSelection() {
	n := len(m.rows())
	if m.selectedRow >= n {
		m.selectedRow = n - 1
	}
	if m.selectedRow < 0 {
		m.selectedRow = 0
	}
}

// tableHeight is the number of event rows that fit below the header, command
// bar, column titles, and status line.
func (m Model) tableHeight() int {
	h := m.height - 4
	if h < 1 {
		return 1
	}
	return h
}

// handleEventsKey processes keyboard input for the events view.
func (m Model) handleEventsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.CycleCamera):
		return m, m.cycleFilter(filter.Cameras)
	case key.Matches(msg, m.keys.CycleLabel):
		return m, m.cycleFilter(filter.Labels)
	case key.Matches(msg, m.keys.CycleZone):
		return m, m.cycleFilter(filter.Zones)
	case key.Matches(msg, m.keys.ClearFilters):
		return m, m.applyFilters(func(filter.Set) filter.Set { return filter.Set{} })
	case key.Matches(msg, m.keys.Resolve):
		return m, m.resolveSelected()
	}

	count := len(m.rows())
	if count == 0 {
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.Down):
		if m.selectedRow < count-1 {
			m.selectedRow++
		}
	case key.Matches(msg, m.keys.Up):
		if m.selectedRow > 0 {
			m.selectedRow--
		}
	case key.Matches(msg, m.keys.Top):
		m.selectedRow = 0
	case key.Matches(msg, m.keys.Bottom):
		m.selectedRow = count - 1
	case key.Matches(msg, m.keys.PageDown):
		m.selectedRow = min(count-1, m.selectedRow+m.tableHeight())
	case key.Matches(msg, m.keys.PageUp):
		m.selectedRow = max(0, m.selectedRow-m.tableHeight())
	}
	return m, nil
}

// cycleFilter moves one dimension to its next value among the known options.
func (m *Model) cycleFilter(d filter.Dimension) tea.Cmd {
	options := m.known[d]
	return m.applyFilters(func(f filter.Set) filter.Set {
		return f.With(d, filter.Cycle(f.Values(d), options))
	})
}

// applyFilters updates the shared filter context, persists it, and asks for a
// refresh so single-valued filters reach the server query.
func (m *Model) applyFilters(fn func(filter.Set) filter.Set) tea.Cmd {
	next := m.settings.Update(fn)
	m.prefs = m.prefs.WithFilters(next)
	m.savePrefs()
	m.selectedRow = 0
	return m.requestRefresh()
}

// resolveSelected probes the next clip candidate for the highlighted event.
// Pressing enter again after a success treats the clip as rejected and moves
// on to the next format.
func (m *Model) resolveSelected() tea.Cmd {
	if m.media == nil || m.resolving != "" {
		return nil
	}
	ev, ok := m.selectedEvent()
	if !ok {
		return nil
	}
	ms, ok := m.mediaByID[ev.ID]
	if !ok {
		ms = &mediaState{playback: m.media.Playback(ev.ID)}
		m.mediaByID[ev.ID] = ms
	}
	if ms.url != "" {
		ms.playback.Fail()
		ms.url = ""
	}
	m.resolving = ev.ID
	return resolveMediaCmd(m.ctx, ev.ID, ms.playback)
}

func (m *Model) handleMedia(msg mediaMsg) {
	if m.resolving == msg.eventID {
		m.resolving = ""
	}
	ms, ok := m.mediaByID[msg.eventID]
	if !ok {
		return
	}
	ms.result = msg.result
	ms.err = msg.err
	if msg.err == nil && msg.result.Playable {
		ms.url = msg.result.URL
	}
}

func resolveMediaCmd(ctx context.Context, eventID string, p *frigate.Playback) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, mediaTimeout)
		defer cancel()
		res, err := p.Try(ctx)
		return mediaMsg{eventID: eventID, result: res, err: err}
	}
}

// renderEvents renders the events table and the status line below it.
func (m Model) renderEvents() string {
	styles := m.theme.Styles()
	rows := m.rows()

	var b strings.Builder
	b.WriteString(styles.TableHeader.Render(m.formatRow("", "STARTED", "LENGTH", "CAMERA", "LABEL", "ZONES", "SCORE")))
	b.WriteString("\n")

	height := m.tableHeight()
	if len(rows) == 0 {
		msg := "No events"
		if !m.settings.Filters().Empty() {
			msg = "No events match " + m.settings.Filters().String()
		}
		b.WriteString(styles.MutedText.Render(msg))
		b.WriteString(strings.Repeat("\n", height))
	} else {
		start := 0
		if m.selectedRow >= height {
			start = m.selectedRow - height + 1
		}
		end := min(len(rows), start+height)
		for i := start; i < end; i++ {
			b.WriteString(m.renderRow(rows[i], i == m.selectedRow, styles))
			b.WriteString("\n")
		}
		b.WriteString(strings.Repeat("\n", height-(end-start)))
	}

	b.WriteString(m.renderMediaStatus(styles))
	return b.String()
}

func (m Model) renderRow(r eventRow, selected bool, styles Styles) string {
	ev := r.event
	marker := " "
	if r.live {
		marker = "●"
	}
	score := "-"
	if ev.Data != nil && ev.Data.TopScore > 0 {
		score = fmt.Sprintf("%.0f%%", ev.Data.TopScore*100)
	}
	label := ev.Label
	if ev.SubLabel != nil && ev.SubLabel.Name != "" {
		label += " (" + ev.SubLabel.Name + ")"
	}
	line := m.formatRow(
		marker,
		formatEventTime(ev.Started(), m.now(), m.loc),
		formatDuration(ev.Duration(m.now())),
		ev.Camera,
		label,
		strings.Join(ev.Zones, ","),
		score,
	)
	if selected {
		return styles.Selected.Width(m.width).Render(line)
	}
	if r.live {
		return styles.SuccessText.Render(line[:len(marker)]) + lipgloss.NewStyle().
			Foreground(lipgloss.Color(m.theme.LabelColor(ev.Label))).
			Render(line[len(marker):])
	}
	return styles.Text.Render(line)
}

func (m Model) formatRow(marker, started, length, camera, label, zones, score string) string {
	return padRight(marker, 2) +
		padRight(started, 14) +
		padRight(length, 11) +
		padRight(camera, 16) +
		padRight(label, 20) +
		padRight(zones, 24) +
		score
}

// renderMediaStatus shows clip resolution for the highlighted event.
func (m Model) renderMediaStatus(styles Styles) string {
	ev, ok := m.selectedEvent()
	if !ok {
		return ""
	}
	if m.resolving == ev.ID {
		return styles.InfoText.Render(m.spinner.View() + " Resolving clip for " + ev.ID)
	}
	ms, ok := m.mediaByID[ev.ID]
	if !ok {
		hint := "enter: resolve clip"
		if !ev.HasClip {
			hint = "no clip recorded"
		}
		return styles.FaintText.Render(ev.ID + "  " + hint)
	}
	switch {
	case ms.url != "":
		return styles.SuccessText.Render("clip ") + styles.Text.Render(truncateMiddle(ms.url, max(20, m.width-6)))
	case errors.Is(ms.err, frigate.ErrNoPlayableFormat):
		return styles.DangerText.Render("No playable format") +
			styles.MutedText.Render("  enter: try again")
	case ms.err != nil || ms.result.Reason != "":
		reason := string(ms.result.Reason)
		if reason == "" {
			reason = ms.err.Error()
		}
		return styles.WarningText.Render("candidate rejected: "+reason) +
			styles.MutedText.Render("  enter: next format")
	default:
		return ""
	}
}
