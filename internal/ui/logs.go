package ui

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/vigil/internal/logtail"
)

const logLineLimit = 500

// initLogViewport initializes the log viewport.
func (m *Model) initLogViewport() {
	m.logViewport = viewport.New(max(1, m.width), max(1, m.height-3))
	m.logViewport.Style = lipgloss.NewStyle()
}

// updateLogViewport resizes the viewport and reloads its content.
func (m *Model) updateLogViewport() {
	if !m.ready {
		return
	}
	m.logViewport.Width = max(1, m.width)
	m.logViewport.Height = max(1, m.height-3)
	m.logViewport.SetContent(m.renderLogContent())
	if m.logFollow {
		m.logViewport.GotoBottom()
	}
}

func (m Model) renderLogContent() string {
	styles := m.theme.Styles()
	if m.logErr != nil {
		return styles.DangerText.Render("Cannot read " + m.logPath + ": " + m.logErr.Error())
	}
	if len(m.logLines) == 0 {
		return styles.MutedText.Render("No log output yet")
	}
	out := make([]string, len(m.logLines))
	for i, line := range m.logLines {
		out[i] = m.styleLogLine(line, styles)
	}
	return strings.Join(out, "\n")
}

// styleLogLine colors the level column of a formatted line.
func (m Model) styleLogLine(line string, styles Styles) string {
	fields := strings.SplitN(line, " ", 3)
	if len(fields) < 3 {
		return styles.Text.Render(line)
	}
	var levelStyle lipgloss.Style
	switch fields[1] {
	case "ERR", "FTL", "PNC":
		levelStyle = styles.DangerText
	case "WRN":
		levelStyle = styles.WarningText
	case "DBG", "TRC":
		levelStyle = styles.FaintText
	default:
		levelStyle = styles.InfoText
	}
	return styles.MutedText.Render(fields[0]) + " " + levelStyle.Render(fields[1]) + " " + styles.Text.Render(fields[2])
}

// handleLogsKey processes keyboard input for the logs view.
func (m Model) handleLogsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.ToggleFollow):
		m.logFollow = !m.logFollow
		if m.logFollow {
			m.logViewport.GotoBottom()
			return m, readLogsCmd(m.logPath, m.loc)
		}
		return m, nil
	case key.Matches(msg, m.keys.Top):
		m.logFollow = false
		m.logViewport.GotoTop()
		return m, nil
	case key.Matches(msg, m.keys.Bottom):
		m.logViewport.GotoBottom()
		return m, nil
	case key.Matches(msg, m.keys.Up, m.keys.PageUp):
		m.logFollow = false
	}

	var cmd tea.Cmd
	m.logViewport, cmd = m.logViewport.Update(msg)
	return m, cmd
}

// renderLogs renders the log view.
func (m Model) renderLogs() string {
	styles := m.theme.Styles()
	status := "following"
	if !m.logFollow {
		status = "paused"
	}
	footer := styles.FaintText.Render(truncateMiddle(m.logPath, max(20, m.width-20))) + "  " +
		styles.MutedText.Render(status)
	return m.logViewport.View() + "\n" + footer
}

func readLogsCmd(path string, loc *time.Location) tea.Cmd {
	return func() tea.Msg {
		lines, err := logtail.Read(path, logLineLimit)
		if err != nil {
			return logLinesMsg{err: err}
		}
		return logLinesMsg{lines: logtail.FormatLines(lines, loc)}
	}
}
