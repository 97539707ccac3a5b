package dispatch

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"swarmctl/internal/config"
	"swarmctl/internal/telemetry"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// flightMsg carries one flight row for the fleet table.
type flightMsg struct{ telemetry.FlightRow }

// eventMsg carries an event log line for the viewport.
type eventMsg struct{ line string }

const maxEventLines = 500

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	faultedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

// TUIWriter renders the fleet and the event log using a bubbletea TUI.
type TUIWriter struct {
	program    teaProgram
	done       chan struct{}
	sendSignal atomic.Bool
}

// NewTUIWriter starts a bubbletea program and returns a TUIWriter.
func NewTUIWriter(cfg *config.MissionConfig) *TUIWriter {
	w := &TUIWriter{done: make(chan struct{})}
	w.sendSignal.Store(true)
	m := newTUIModel(cfg)
	p := tea.NewProgram(m, tea.WithAltScreen())
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

// Write implements FlightWriter.
func (w *TUIWriter) Write(row telemetry.FlightRow) error {
	w.program.Send(flightMsg{row})
	return nil
}

// WriteBatch outputs multiple flight rows.
func (w *TUIWriter) WriteBatch(rows []telemetry.FlightRow) error {
	for _, r := range rows {
		_ = w.Write(r)
	}
	return nil
}

// WriteEvent implements EventWriter.
func (w *TUIWriter) WriteEvent(e telemetry.EventRow) error {
	line := fmt.Sprintf("[%s] t=%7.2f %-10s vehicles=%v %s",
		e.Timestamp.Format(time.RFC3339), e.Clock, e.Type, e.VehicleIDs, e.Detail)
	w.program.Send(eventMsg{line: line})
	return nil
}

// WriteEvents outputs multiple event rows.
func (w *TUIWriter) WriteEvents(rows []telemetry.EventRow) error {
	for _, e := range rows {
		_ = w.WriteEvent(e)
	}
	return nil
}

// Close shuts down the TUI program and waits for cleanup.
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
	cfg        *config.MissionConfig
	table      table.Model
	vp         viewport.Model
	latest     map[string]telemetry.FlightRow
	events     []string
	wrap       bool
	autoscroll bool
	width      int
	height     int
	clock      float64
	cycle      int64
}

func newTUIModel(cfg *config.MissionConfig) tuiModel {
	cols := []table.Column{
		{Title: "Vehicle", Width: 8},
		{Title: "State", Width: 12},
		{Title: "Cmd X", Width: 8},
		{Title: "Cmd Y", Width: 8},
		{Title: "Cmd Z", Width: 8},
		{Title: "Act Z", Width: 8},
		{Title: "Batt", Width: 6},
	}
	t := table.New(table.WithColumns(cols), table.WithHeight(len(cfg.Vehicles)+1))
	return tuiModel{
		cfg:        cfg,
		table:      t,
		vp:         viewport.New(0, 0),
		latest:     make(map[string]telemetry.FlightRow),
		autoscroll: true,
	}
}

func (m tuiModel) Init() tea.Cmd { return nil }

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(msg.Width)
		m.vp.Width = msg.Width
		m.vp.Height = msg.Height - m.table.Height() - 3
		if m.vp.Height < 3 {
			m.vp.Height = 3
		}
		m.refreshEvents()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "w":
			m.wrap = !m.wrap
			m.refreshEvents()
		case "a":
			m.autoscroll = !m.autoscroll
		case "up", "k":
			m.vp.LineUp(1)
		case "down", "j":
			m.vp.LineDown(1)
		}
	case flightMsg:
		m.latest[msg.VehicleID] = msg.FlightRow
		m.clock = msg.Clock
		m.cycle = msg.Cycle
		m.refreshTable()
	case eventMsg:
		m.events = append(m.events, msg.line)
		if len(m.events) > maxEventLines {
			m.events = m.events[len(m.events)-maxEventLines:]
		}
		m.refreshEvents()
	}
	return m, nil
}

func (m *tuiModel) refreshTable() {
	ids := make([]string, 0, len(m.latest))
	for id := range m.latest {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	rows := make([]table.Row, 0, len(ids))
	for _, id := range ids {
		r := m.latest[id]
		state := r.State
		if state == "faulted" {
			state = faultedStyle.Render(state)
		} else if state == "executing" {
			state = okStyle.Render(state)
		}
		rows = append(rows, table.Row{
			id,
			state,
			fmt.Sprintf("%.2f", r.CmdX),
			fmt.Sprintf("%.2f", r.CmdY),
			fmt.Sprintf("%.2f", r.CmdZ),
			fmt.Sprintf("%.2f", r.ActZ),
			fmt.Sprintf("%.0f", r.Battery),
		})
	}
	m.table.SetRows(rows)
}

func (m *tuiModel) refreshEvents() {
	lines := make([]string, 0, len(m.events))
	for _, line := range m.events {
		if m.wrap && m.width > 0 {
			line = wordwrap.String(line, m.width)
		}
		lines = append(lines, line)
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m tuiModel) View() string {
	header := headerStyle.Render(fmt.Sprintf("mission %s  clock %.2fs  cycle %d  [q quit, w wrap, a autoscroll]",
		m.cfg.MissionID, m.clock, m.cycle))
	return header + "\n" + m.table.View() + "\n" + m.vp.View()
}
