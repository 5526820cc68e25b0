package watch

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/usher-cli/usher/internal/collector"
)

// refreshEvery is how often the view re-collects external state.
const refreshEvery = 5 * time.Second

type snapshotMsg struct{ snap *collector.Snapshot }
type errMsg struct{ err error }
type refreshMsg time.Time

// Model is the main BubbleTea model for the watch TUI.
type Model struct {
	col *collector.Collector

	width  int
	height int

	snap     *collector.Snapshot
	lastErr  string
	fetching bool

	spin  spinner.Model
	theme Theme
}

// New creates a watch model over the given collector.
func New(col *collector.Collector) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	return &Model{
		col:   col,
		spin:  s,
		theme: NewDefaultTheme(),
	}
}

func (m *Model) fetch() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), refreshEvery)
		defer cancel()
		snap, err := m.col.Collect(ctx)
		if err != nil {
			return errMsg{err}
		}
		return snapshotMsg{snap}
	}
}

func (m *Model) Init() tea.Cmd {
	m.fetching = true
	return tea.Batch(
		m.spin.Tick,
		m.fetch(),
		tea.Tick(refreshEvery, func(t time.Time) tea.Msg { return refreshMsg(t) }),
		tea.EnterAltScreen,
	)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			if !m.fetching {
				m.fetching = true
				return m, m.fetch()
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case refreshMsg:
		cmds := []tea.Cmd{tea.Tick(refreshEvery, func(t time.Time) tea.Msg { return refreshMsg(t) })}
		if !m.fetching {
			m.fetching = true
			cmds = append(cmds, m.fetch())
		}
		return m, tea.Batch(cmds...)

	case snapshotMsg:
		m.snap = msg.snap
		m.fetching = false
		m.lastErr = ""

	case errMsg:
		m.fetching = false
		m.lastErr = msg.err.Error()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *Model) View() string {
	if m.width == 0 {
		return "Starting watch..."
	}

	header := m.renderHeader()
	claims := m.renderClaims()
	workspaces := m.renderWorkspaces()
	advice := m.renderAdvice()

	var errBar string
	if m.lastErr != "" {
		errBar = m.theme.Failed.Render(" ! " + m.lastErr)
	}

	help := m.theme.Dim.Render(" [q] Quit • [r] Refresh now")

	parts := []string{header, claims, workspaces}
	if advice != "" {
		parts = append(parts, advice)
	}
	if errBar != "" {
		parts = append(parts, errBar)
	}
	parts = append(parts, help)

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}
