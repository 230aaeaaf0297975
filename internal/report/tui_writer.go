package report

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"balltrack/internal/accuracy"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// logMsg carries a formatted row for the viewport.
type logMsg struct{ line string }

// rowMsg carries the row itself for the summary table.
type rowMsg struct{ accuracy.Row }

const maxLogLines = 1000

// TUIWriter renders accuracy rows in a bubbletea terminal UI. Quitting the UI
// interrupts the process so the session shuts down like on Ctrl-C.
type TUIWriter struct {
	program    teaProgram
	done       chan struct{}
	sendSignal atomic.Bool
}

// NewTUIWriter starts a bubbletea program and returns a TUIWriter.
func NewTUIWriter(title string) *TUIWriter {
	w := &TUIWriter{done: make(chan struct{})}
	w.sendSignal.Store(true)
	p := tea.NewProgram(newTUIModel(title), tea.WithAltScreen())
	w.program = p
	go func() {
		_, _ = p.Run()
		close(w.done)
		if w.sendSignal.Load() {
			if proc, err := os.FindProcess(os.Getpid()); err == nil {
				_ = proc.Signal(os.Interrupt)
			}
		}
	}()
	return w
}

// Write implements Writer.
func (w *TUIWriter) Write(row accuracy.Row) error {
	w.program.Send(logMsg{line: formatRow(row)})
	w.program.Send(rowMsg{row})
	return nil
}

// Close shuts down the TUI program and waits for the terminal to be restored.
func (w *TUIWriter) Close() error {
	w.sendSignal.Store(false)
	if w.program != nil {
		w.program.Send(tea.Quit())
	}
	if w.done != nil {
		<-w.done
	}
	return nil
}

type tuiModel struct {
	title      string
	table      table.Model
	vp         viewport.Model
	logs       []string
	wrap       bool
	autoscroll bool
	height     int

	session   string
	evaluated int
	matched   int
	errTotal  float64
	maxErr    float64
	lastErr   float64
	lastFrame int64
}

func newTUIModel(title string) tuiModel {
	cols := []table.Column{
		{Title: "Metric", Width: 14},
		{Title: "Value", Width: 38},
		{Title: "Metric", Width: 14},
		{Title: "Value", Width: 12},
	}
	m := tuiModel{
		title:      title,
		vp:         viewport.New(0, 0),
		autoscroll: true,
		lastFrame:  -1,
	}
	rows := m.statsRows()
	m.table = table.New(table.WithColumns(cols), table.WithRows(rows), table.WithHeight(len(rows)+1))
	return m
}

func (m tuiModel) statsRows() []table.Row {
	mean := 0.0
	if m.matched > 0 {
		mean = m.errTotal / float64(m.matched)
	}
	last := "-"
	if m.lastFrame >= 0 {
		last = fmt.Sprintf("%d", m.lastFrame)
	}
	session := m.session
	if session == "" {
		session = "waiting"
	}
	return []table.Row{
		{"Session", session, "Last frame", last},
		{"Evaluated", fmt.Sprintf("%d", m.evaluated), "Matched", fmt.Sprintf("%d", m.matched)},
		{"Mean error", fmt.Sprintf("%.2f px", mean), "Max error", fmt.Sprintf("%.2f px", m.maxErr)},
		{"Last error", fmt.Sprintf("%.2f px", m.lastErr), "Unmatched", fmt.Sprintf("%d", m.evaluated-m.matched)},
	}
}

func (m tuiModel) Init() tea.Cmd { return nil }

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.table.SetWidth(msg.Width)
		m.vp.Width = msg.Width
		m.height = msg.Height
		m.updateViewportHeight()
		m.refreshViewport()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "w":
			m.wrap = !m.wrap
			m.refreshViewport()
			return m, nil
		case "a":
			m.autoscroll = !m.autoscroll
			if m.autoscroll {
				m.vp.GotoBottom()
			}
			return m, nil
		}
		var cmd tea.Cmd
		m.vp, cmd = m.vp.Update(msg)
		return m, cmd
	case logMsg:
		m.logs = append(m.logs, msg.line)
		if len(m.logs) > maxLogLines {
			m.logs = m.logs[len(m.logs)-maxLogLines:]
		}
		m.refreshViewport()
	case rowMsg:
		m.session = msg.SessionID
		m.evaluated++
		m.lastFrame = msg.FrameNo
		if msg.Matched {
			m.matched++
			m.errTotal += msg.Error
			m.lastErr = msg.Error
			if msg.Error > m.maxErr {
				m.maxErr = msg.Error
			}
		}
		m.table.SetRows(m.statsRows())
	}
	return m, nil
}

func (m *tuiModel) updateViewportHeight() {
	used := lipgloss.Height(m.renderTitle()) + lipgloss.Height(m.table.View()) +
		lipgloss.Height(m.renderBottom()) + 2
	h := m.height - used
	if h < 0 {
		h = 0
	}
	m.vp.Height = h
}

func (m *tuiModel) refreshViewport() {
	lines := m.logs
	if m.wrap && m.vp.Width > 0 {
		lines = make([]string, 0, len(m.logs))
		for _, l := range m.logs {
			lines = append(lines, wordwrap.String(l, m.vp.Width))
		}
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m tuiModel) renderTitle() string {
	return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Render(m.title)
}

func (m tuiModel) renderBottom() string {
	indicator := func(label string, on bool) string {
		c := lipgloss.Color("8")
		if on {
			c = lipgloss.Color("10")
		}
		return lipgloss.NewStyle().Foreground(c).Render("●") + " " + label
	}
	return strings.Join([]string{
		indicator("[w]rap", m.wrap),
		indicator("[a]utoscroll", m.autoscroll),
		"[q]uit",
	}, "  ")
}

func (m tuiModel) View() string {
	divider := strings.Repeat("─", m.vp.Width)
	return strings.Join([]string{
		m.renderTitle(),
		m.table.View(),
		divider,
		m.vp.View(),
		divider,
		m.renderBottom(),
	}, "\n")
}
