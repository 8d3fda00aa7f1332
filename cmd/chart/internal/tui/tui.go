// Package tui draws the selected ticker as a braille line chart and turns
// keyboard and mouse input into engine events.
package tui

import (
	"fmt"
	"strings"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	plot "github.com/chriskim06/drawille-go"

	"github.com/shubham-shewale/quote-chart/cmd/chart/internal/engine"
	"github.com/shubham-shewale/quote-chart/cmd/chart/internal/window"
)

const (
	defaultWidth  = 80
	defaultHeight = 24
	chromeLines   = 4 // title, label row, help row, spacing
	minCanvasW    = 10
	minCanvasH    = 4
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	labelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	liveBadge     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("42")).Padding(0, 1)
	scrolledBadge = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("214")).Padding(0, 1)
)

// Controller is the part of the engine the UI drives.
type Controller interface {
	Scroll(dir window.Direction)
	Select(index int)
	Resize(width int)
}

// FrameMsg carries a new frame from the engine into the program loop.
type FrameMsg engine.Frame

type Model struct {
	ctrl   Controller
	frame  engine.Frame
	width  int
	height int
	canvas *plot.Canvas
}

func New(ctrl Controller) *Model {
	m := &Model{ctrl: ctrl, width: defaultWidth, height: defaultHeight}
	m.resizeCanvas()
	return m
}

func (m *Model) Init() tea.Cmd { return nil }

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case FrameMsg:
		m.frame = engine.Frame(msg)
		m.fill()

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resizeCanvas()
		m.fill()
		// the point count is independent of the terminal size; only re-clamp
		m.ctrl.Resize(0)

	case tea.MouseMsg:
		if msg.Action != tea.MouseActionPress {
			break
		}
		switch msg.Button {
		case tea.MouseButtonWheelUp:
			m.ctrl.Scroll(window.Older)
		case tea.MouseButtonWheelDown:
			m.ctrl.Scroll(window.Newer)
		}

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "left", "h":
			m.ctrl.Scroll(window.Older)
		case "right", "l":
			m.ctrl.Scroll(window.Newer)
		case "up", "k":
			m.step(-1)
		case "down", "j":
			m.step(1)
		}
	}
	return m, nil
}

// step selects the neighbouring ticker, wrapping at both ends.
func (m *Model) step(delta int) {
	n := m.frame.TickerCount
	if n == 0 {
		return
	}
	m.ctrl.Select(((m.frame.TickerIndex+delta)%n + n) % n)
}

func (m *Model) resizeCanvas() {
	w := max(m.width-2, minCanvasW)
	h := max(m.height-chromeLines, minCanvasH)
	p := plot.NewCanvas(w, h)
	p.ShowAxis = true
	p.LineColors = []plot.Color{plot.Red}
	m.canvas = &p
}

func (m *Model) fill() {
	if len(m.frame.Points) < 2 {
		return
	}
	m.canvas.NumDataPoints = len(m.frame.Points)
	m.canvas.Fill([][]float64{m.frame.Points})
}

func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(Header(m.frame))
	b.WriteString("\n")

	if len(m.frame.Points) < 2 {
		b.WriteString(dimStyle.Render("Waiting for quotes..."))
	} else {
		b.WriteString(m.canvas.String())
	}
	b.WriteString("\n")
	b.WriteString(Status(m.frame))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("wheel/←→ scroll  ↑↓ ticker  q quit"))
	return b.String()
}

// Header names the displayed ticker and its position in the list.
func Header(f engine.Frame) string {
	if f.TickerCount == 0 {
		return titleStyle.Render("no tickers")
	}
	last := ""
	if n := len(f.Points); n > 0 {
		last = fmt.Sprintf("  %.2f", f.Points[n-1])
	}
	return titleStyle.Render(f.Ticker) + dimStyle.Render(fmt.Sprintf(" (%d/%d)", f.TickerIndex+1, f.TickerCount)) + labelStyle.Render(last)
}

// Status renders the trailing date label and the live/scrolled badge.
func Status(f engine.Frame) string {
	var badge string
	if f.State == window.Live {
		badge = liveBadge.Render("LIVE")
	} else {
		badge = scrolledBadge.Render(fmt.Sprintf("SCROLLED -%d", f.Offset))
	}
	if !f.HasData {
		return badge + " " + dimStyle.Render("no data")
	}
	return badge + " " + labelStyle.Render(f.Label) + dimStyle.Render(fmt.Sprintf("  %d/%d points", len(f.Points), f.Total))
}

// ProgramRenderer forwards engine frames to a running bubbletea program.
type ProgramRenderer struct {
	program atomic.Pointer[tea.Program]
}

// Attach sets the program frames are sent to. Frames rendered before are dropped.
func (r *ProgramRenderer) Attach(p *tea.Program) { r.program.Store(p) }

func (r *ProgramRenderer) Render(f engine.Frame) {
	if p := r.program.Load(); p != nil {
		p.Send(FrameMsg(f))
	}
}
