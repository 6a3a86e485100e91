package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lotas/mergewin/internal/analyzer"
	"github.com/lotas/mergewin/internal/consolidate"
	"github.com/lotas/mergewin/internal/types"
)

// statusTTL is how long the inline status stays visible after a merge.
const statusTTL = 3 * time.Second

// requestTimeout bounds a window load or a merge, so a browser that stops
// answering surfaces as an error instead of a frozen popup.
var requestTimeout = 30 * time.Second

// Host is a browser the popup can wait for and consolidate.
type Host interface {
	consolidate.Host
	WaitReady(ctx context.Context) error
}

// --- Messages ---

type readyMsg struct{ err error }

type windowsLoadedMsg struct {
	windows []*types.Window
	err     error
}

type mergeDoneMsg struct {
	status consolidate.Status
	report *consolidate.Report
}

type clearStatusMsg struct{ seq int }

// --- Model ---

type Model struct {
	host   Host
	cfg    consolidate.Config
	source string

	windows []*types.Window
	plan    *consolidate.Plan

	connected bool
	loading   bool
	merging   bool
	err       error

	status    *consolidate.Status
	statusSeq int

	spinner spinner.Model
	keys    keyMap
	offset  int
	width   int
	height  int
}

// NewModel returns the popup for host. source is shown in the top bar.
func NewModel(host Host, cfg consolidate.Config, source string) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("62"))
	return Model{
		host:    host,
		cfg:     cfg,
		source:  source,
		loading: true,
		spinner: s,
		keys:    defaultKeys(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitReady(m.host))
}

// --- Command helpers ---

func waitReady(host Host) tea.Cmd {
	return func() tea.Msg {
		return readyMsg{err: host.WaitReady(context.Background())}
	}
}

func loadWindows(host Host) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		windows, err := host.Windows(ctx)
		return windowsLoadedMsg{windows: windows, err: err}
	}
}

// runMerge runs one consolidation and hands the reported status back to the
// model instead of a system notification.
func runMerge(host Host, cfg consolidate.Config) tea.Cmd {
	return func() tea.Msg {
		var st consolidate.Status
		capture := consolidate.ReporterFunc(func(ctx context.Context, s consolidate.Status) error {
			st = s
			return nil
		})
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		report, _ := consolidate.Run(ctx, host, capture, cfg)
		return mergeDoneMsg{status: st, report: report}
	}
}

func clearStatusAfter(seq int) tea.Cmd {
	return tea.Tick(statusTTL, func(time.Time) tea.Msg {
		return clearStatusMsg{seq: seq}
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)

	case readyMsg:
		if msg.err != nil {
			m.loading = false
			m.err = msg.err
			return m, nil
		}
		m.connected = true
		return m, loadWindows(m.host)

	case windowsLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.windows = msg.windows
		m.plan = consolidate.BuildPlan(m.windows, m.cfg)
		m.clampOffset()
		return m, nil

	case mergeDoneMsg:
		m.merging = false
		m.statusSeq++
		st := msg.status
		m.status = &st
		m.loading = true
		return m, tea.Batch(clearStatusAfter(m.statusSeq), loadWindows(m.host))

	case clearStatusMsg:
		// A newer status restarts the timer.
		if msg.seq == m.statusSeq {
			m.status = nil
		}
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case m.keys.Quit.matches(msg):
		return m, tea.Quit
	case m.keys.Merge.matches(msg):
		if !m.connected || m.merging {
			return m, nil
		}
		m.merging = true
		m.status = nil
		return m, runMerge(m.host, m.cfg)
	case m.keys.Refresh.matches(msg):
		if m.merging {
			return m, nil
		}
		if !m.connected {
			m.err = nil
			return m, waitReady(m.host)
		}
		m.loading = true
		return m, loadWindows(m.host)
	case m.keys.Up.matches(msg):
		if m.offset > 0 {
			m.offset--
		}
	case m.keys.Down.matches(msg):
		m.offset++
		m.clampOffset()
	}
	return m, nil
}

func (m *Model) clampOffset() {
	maxOffset := len(m.planLines()) - m.bodyHeight()
	if m.offset > maxOffset {
		m.offset = maxOffset
	}
	if m.offset < 0 {
		m.offset = 0
	}
}

func (m Model) bodyHeight() int {
	h := m.height - 6 // top bar, summary, status, help
	if h < 1 {
		return 1
	}
	return h
}

// --- View ---

var (
	topBarStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	mainStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("62")).Bold(true)
	windowStyle  = lipgloss.NewStyle().Bold(true)
	closeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	moveStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	keepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("78"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("78")).Padding(0, 1)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true).Padding(0, 1)
	bottomStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Padding(0, 1)
)

func (m Model) View() string {
	if !m.connected && m.err == nil {
		return fmt.Sprintf("\n  %s Waiting for %s...\n", m.spinner.View(), m.source)
	}

	if m.err != nil && m.plan == nil {
		return fmt.Sprintf("\n  Error: %v\n\n  Press 'r' to retry, 'q' to quit.\n", m.err)
	}

	var connStr string
	if m.connected {
		connStr = "● " + m.source
	} else {
		connStr = "○ " + m.source
	}
	topBar := topBarStyle.Render(fmt.Sprintf("%s  preset: %s", connStr, m.cfg.Name))

	var summary string
	switch {
	case m.merging:
		summary = m.spinner.View() + " Merging..."
	case m.loading && m.plan == nil:
		summary = m.spinner.View() + " Loading windows..."
	case m.plan != nil:
		summary = planSummary(m.plan)
	}

	lines := m.planLines()
	end := m.offset + m.bodyHeight()
	if end > len(lines) {
		end = len(lines)
	}
	start := m.offset
	if start > end {
		start = end
	}
	body := strings.Join(lines[start:end], "\n")

	statusLine := ""
	if m.err != nil {
		statusLine = errorStyle.Render("Error: " + m.err.Error())
	}
	if m.status != nil {
		if m.status.IsError {
			statusLine = errorStyle.Render(m.status.Message)
		} else {
			statusLine = successStyle.Render(m.status.Message)
		}
	}

	bottomBar := bottomStyle.Render(m.keys.help())

	return lipgloss.JoinVertical(lipgloss.Left,
		topBar,
		" "+summary,
		body,
		statusLine,
		bottomBar,
	)
}

func planSummary(p *consolidate.Plan) string {
	s := fmt.Sprintf("%d windows · %d tabs", p.WindowCount, p.TabCount)
	if p.Skipped {
		return s + " · nothing to merge"
	}
	if n := p.Count(types.ActionClose); n > 0 {
		s += " · " + closeStyle.Render(fmt.Sprintf("%d to close", n))
	}
	if n := p.Count(types.ActionRelocate); n > 0 {
		s += " · " + moveStyle.Render(fmt.Sprintf("%d to move", n))
	}
	return s
}

// planLines renders every window with the planned action per tab.
func (m Model) planLines() []string {
	if m.plan == nil {
		return nil
	}
	decisions := make(map[int]consolidate.Decision, len(m.plan.Decisions))
	for _, d := range m.plan.Decisions {
		decisions[d.Tab.ID] = d
	}

	var lines []string
	for _, w := range m.windows {
		header := fmt.Sprintf("Window %d (%d tabs)", w.ID, len(w.Tabs))
		if w.ID == m.plan.MainWindowID {
			lines = append(lines, " "+mainStyle.Render(header+" · main"))
		} else {
			lines = append(lines, " "+windowStyle.Render(header))
		}
		for _, tab := range w.Tabs {
			lines = append(lines, "   "+tabLine(tab, decisions, m.plan.Skipped))
		}
	}
	return lines
}

func tabLine(tab *types.Tab, decisions map[int]consolidate.Decision, skipped bool) string {
	title := tab.Title
	if title == "" {
		title = tab.URL
	}
	label := title
	if host := analyzer.Domain(tab.URL); host != "" && host != title {
		label += dimStyle.Render(" " + host)
	}

	d, ok := decisions[tab.ID]
	switch {
	case skipped || !ok:
		return dimStyle.Render("  " + title)
	case d.Action == types.ActionClose:
		return closeStyle.Render("✕ ") + label + dimStyle.Render(" ("+string(d.Reason)+")")
	case d.Action == types.ActionRelocate:
		return moveStyle.Render("→ ") + label
	default:
		return keepStyle.Render("· ") + label
	}
}
