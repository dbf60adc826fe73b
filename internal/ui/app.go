package ui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/vigil/internal/filter"
	"github.com/five82/vigil/internal/frigate"
	"github.com/five82/vigil/internal/logging"
	"github.com/five82/vigil/internal/prefs"
	"github.com/five82/vigil/internal/state"
)

// View represents the current active view.
type View int

const (
	ViewEvents View = iota
	ViewLogs
)

const mediaTimeout = 15 * time.Second

// MediaSource hands out playback cursors for events.
type MediaSource interface {
	Playback(eventID string) *frigate.Playback
}

// Options configures the UI.
type Options struct {
	Context  context.Context
	Store    *state.Store
	Settings *state.Settings
	Media    MediaSource
	// Refresh requests a manual refresh from the poller. It must not block.
	Refresh   func()
	PollTick  time.Duration
	ThemeName string
	PrefsPath string
	Prefs     prefs.Prefs
	LogPath   string
	Location  *time.Location
	BaseURL   string
}

// mediaState tracks clip resolution for one event.
type mediaState struct {
	playback *frigate.Playback
	url      string
	result   frigate.ProbeResult
	err      error
}

// Model is the root application state for Bubble Tea.
type Model struct {
	// Configuration
	ctx       context.Context
	store     *state.Store
	settings  *state.Settings
	media     MediaSource
	refresh   func()
	prefsPath string
	prefs     prefs.Prefs
	logPath   string
	loc       *time.Location
	baseURL   string
	pollTick  time.Duration
	now       func() time.Time
	keys      keyMap

	// UI state
	theme       Theme
	currentView View
	width       int
	height      int
	ready       bool
	showHelp    bool
	spinner     spinner.Model

	// Data state
	snapshot state.Snapshot
	known    map[filter.Dimension][]string

	// Events state
	selectedRow int
	mediaByID   map[string]*mediaState
	resolving   string

	// Log state
	logViewport viewport.Model
	logLines    []string
	logErr      error
	logFollow   bool
}

// New creates a new Bubble Tea model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}

	pollTick := opts.PollTick
	if pollTick <= 0 {
		pollTick = time.Second
	}

	themeName := opts.ThemeName
	if themeName == "" {
		themeName = opts.Prefs.Theme
	}

	settings := opts.Settings
	if settings == nil {
		settings = state.NewSettings(opts.Prefs.Filters())
	}

	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))

	m := Model{
		ctx:         ctx,
		store:       opts.Store,
		settings:    settings,
		media:       opts.Media,
		refresh:     opts.Refresh,
		prefsPath:   opts.PrefsPath,
		prefs:       opts.Prefs,
		logPath:     opts.LogPath,
		loc:         loc,
		baseURL:     opts.BaseURL,
		pollTick:    pollTick,
		now:         time.Now,
		keys:        DefaultKeyMap(),
		theme:       GetTheme(themeName),
		currentView: ViewEvents,
		spinner:     sp,
		known:       make(map[filter.Dimension][]string),
		mediaByID:   make(map[string]*mediaState),
		logFollow:   true,
	}
	// Selected filters stay reachable while cycling even when the current
	// results no longer contain them.
	f := settings.Filters()
	for _, d := range []filter.Dimension{filter.Labels, filter.Zones, filter.Cameras} {
		m.known[d] = mergeSorted(nil, f.Values(d))
	}
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		tickCmd(m.pollTick),
		m.spinner.Tick,
	}
	if m.store != nil {
		cmds = append(cmds, fetchSnapshotCmd(m.store))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.ready {
			m.initLogViewport()
		}
		m.ready = true
		m.updateLogViewport()
		m.clampSelection()
		return m, nil

	case tickMsg:
		return m.handleTick()

	case snapshotMsg:
		m.applySnapshot(state.Snapshot(msg))
		return m, nil

	case mediaMsg:
		m.handleMedia(msg)
		return m, nil

	case logLinesMsg:
		m.logLines = msg.lines
		m.logErr = msg.err
		m.updateLogViewport()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderCommandBar())
	b.WriteString("\n")
	switch m.currentView {
	case ViewLogs:
		b.WriteString(m.renderLogs())
	default:
		b.WriteString(m.renderEvents())
	}
	return b.String()
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		// Any key closes help
		m.showHelp = false
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil

	case key.Matches(msg, m.keys.CycleTheme):
		m.theme = GetTheme(NextTheme(m.theme.Name))
		m.prefs.Theme = m.theme.Name
		m.savePrefs()
		return m, nil

	case key.Matches(msg, m.keys.Escape):
		m.currentView = ViewEvents
		return m, nil

	case key.Matches(msg, m.keys.Logs):
		m.currentView = ViewLogs
		m.logFollow = true
		return m, readLogsCmd(m.logPath, m.loc)

	case key.Matches(msg, m.keys.Refresh):
		return m, m.requestRefresh()

	case key.Matches(msg, m.keys.Dismiss):
		if m.store != nil {
			m.store.DismissError()
			m.snapshot.LastError = nil
		}
		return m, nil
	}

	switch m.currentView {
	case ViewLogs:
		return m.handleLogsKey(msg)
	default:
		return m.handleEventsKey(msg)
	}
}

// handleTick processes the polling tick.
func (m Model) handleTick() (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	if m.store != nil {
		cmds = append(cmds, fetchSnapshotCmd(m.store))
	}
	if m.currentView == ViewLogs && m.logFollow {
		cmds = append(cmds, readLogsCmd(m.logPath, m.loc))
	}
	cmds = append(cmds, tickCmd(m.pollTick))
	return m, tea.Batch(cmds...)
}

// applySnapshot stores a poller snapshot and widens the known filter options.
func (m *Model) applySnapshot(snap state.Snapshot) {
	m.snapshot = snap

	all := append(append([]frigate.Event(nil), snap.InProgress...), snap.Events...)
	m.known[filter.Labels] = mergeSorted(m.known[filter.Labels], filter.Distinct(all, filter.Labels))
	m.known[filter.Zones] = mergeSorted(m.known[filter.Zones], filter.Distinct(all, filter.Zones))
	m.known[filter.Cameras] = mergeSorted(m.known[filter.Cameras],
		mergeSorted(snap.Cameras, filter.Distinct(all, filter.Cameras)))
	m.clampSelection()
}

// requestRefresh asks the poller for a manual refresh and shows the spinner
// until the next snapshot arrives.
func (m *Model) requestRefresh() tea.Cmd {
	if m.refresh != nil {
		m.refresh()
	}
	m.snapshot.Loading = true
	if m.store == nil {
		return nil
	}
	return fetchSnapshotCmd(m.store)
}

// savePrefs persists the current preferences; failures are only logged.
func (m *Model) savePrefs() {
	if m.prefsPath == "" {
		return
	}
	if err := prefs.Save(m.prefsPath, m.prefs); err != nil {
		logging.Warn().Err(err).Str("path", m.prefsPath).Msg("failed to save preferences")
	}
}

// Messages

type tickMsg time.Time

type snapshotMsg state.Snapshot

type mediaMsg struct {
	eventID string
	result  frigate.ProbeResult
	err     error
}

type logLinesMsg struct {
	lines []string
	err   error
}

// Commands

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchSnapshotCmd(store *state.Store) tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg(store.Snapshot())
	}
}

// Run starts the Bubble Tea program and blocks until it exits or ctx ends.
func Run(opts Options) error {
	m := New(opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(m.ctx))
	_, err := p.Run()
	if err != nil && m.ctx.Err() != nil {
		return nil
	}
	return err
}
