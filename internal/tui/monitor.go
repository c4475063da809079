// SPDX-License-Identifier: MIT
package tui

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"beat/internal/analysis"
	"beat/internal/engine"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Controller is the slice of the engine the monitor drives.
type Controller interface {
	Tick() error
	Snapshot() *engine.Snapshot
	Playing() bool
	SetPlaybackState(playing bool)
	ResetSmoothingState()
	VisualParams() analysis.VisualParams
	SetVisualParams(p analysis.VisualParams)
	Stats() engine.Stats
}

var _ Controller = (*engine.Engine)(nil)

const defaultBarHeight = 12

var (
	pauseKey = key.NewBinding(key.WithKeys("p", " "))
	resetKey = key.NewBinding(key.WithKeys("r"))
	modeKey  = key.NewBinding(key.WithKeys("m"))

	barStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#25A065"))
	beatStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87")).Bold(true)
	pausedText = lipgloss.NewStyle().Foreground(lipgloss.Color("#767676")).Render("paused")
)

// Partial cells, from empty to full.
var blocks = []rune{' ', '▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

type frameMsg time.Time

// MonitorModel is a terminal consumer of one engine: it ticks at its own
// frame rate and draws the bars and energy bands.
type MonitorModel struct {
	ctrl     Controller
	delay    time.Duration
	height   int
	snap     *engine.Snapshot
	beatSeen time.Time
	tickErr  error
}

// NewMonitorModel creates a monitor redrawing every delay.
func NewMonitorModel(ctrl Controller, delay time.Duration) MonitorModel {
	if delay <= 0 {
		delay = 33 * time.Millisecond
	}
	return MonitorModel{ctrl: ctrl, delay: delay, height: defaultBarHeight, snap: ctrl.Snapshot()}
}

func (m MonitorModel) frame() tea.Cmd {
	return tea.Tick(m.delay, func(t time.Time) tea.Msg { return frameMsg(t) })
}

// Init schedules the first frame.
func (m MonitorModel) Init() tea.Cmd {
	return m.frame()
}

func (m MonitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case frameMsg:
		m.tickErr = m.ctrl.Tick()
		m.snap = m.ctrl.Snapshot()
		if m.snap.Beat {
			m.beatSeen = time.Time(msg)
		}
		return m, m.frame()

	case tea.WindowSizeMsg:
		m.height = max(4, min(msg.Height-10, 24))

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, quitKey):
			return m, tea.Quit
		case key.Matches(msg, pauseKey):
			m.ctrl.SetPlaybackState(!m.ctrl.Playing())
		case key.Matches(msg, resetKey):
			m.ctrl.ResetSmoothingState()
		case key.Matches(msg, modeKey):
			m.ctrl.SetVisualParams(nextMode(m.ctrl.VisualParams()))
		}
		m.snap = m.ctrl.Snapshot()
	}
	return m, nil
}

// nextMode cycles Spectrum and Pulse, keeping the attack and decay.
func nextMode(p analysis.VisualParams) analysis.VisualParams {
	switch v := p.(type) {
	case analysis.Spectrum:
		return analysis.Pulse{Attack: v.Attack, Decay: v.Decay, Mix: 0.5}
	case analysis.Pulse:
		return analysis.Spectrum{Attack: v.Attack, Decay: v.Decay}
	default:
		return analysis.DefaultVisualParams()
	}
}

func (m MonitorModel) View() string {
	var sb strings.Builder

	status := analysis.ModeName(m.ctrl.VisualParams())
	if !m.ctrl.Playing() {
		status += " • " + pausedText
	}
	sb.WriteString(titleStyle.Render("Beat Monitor"))
	sb.WriteString("  " + infoStyle.Render(status) + "\n\n")

	sb.WriteString(barStyle.Render(renderBars(m.snap.Bars, m.height)))
	sb.WriteString("\n")

	b := m.snap.Bands
	fmt.Fprintf(&sb, "bass %s  mid %s  high %s  overall %s\n",
		meter(b.Bass.Smoothed), meter(b.Mid.Smoothed), meter(b.High.Smoothed), meter(b.Overall.Smoothed))

	beat := "   "
	if !m.beatSeen.IsZero() && time.Since(m.beatSeen) < 150*time.Millisecond {
		beat = beatStyle.Render("●")
	}
	st := m.ctrl.Stats()
	fmt.Fprintf(&sb, "beat %s  floor %.3f  sens %.2f  seq %d  beats %d  dropped %d\n",
		beat, m.snap.Floor, m.snap.Sensitivity, m.snap.Seq, st.Beats, st.Dropped)
	if m.tickErr != nil {
		sb.WriteString(dimStyle.Render("tick: "+m.tickErr.Error()) + "\n")
	}

	sb.WriteString("\n" + infoStyle.Render("p: Pause • r: Reset • m: Mode • q: Quit"))
	return sb.String()
}

// renderBars draws bars as columns height cells tall using partial blocks.
func renderBars(bars []float64, height int) string {
	if height <= 0 || len(bars) == 0 {
		return ""
	}
	steps := len(blocks) - 1
	var sb strings.Builder
	for row := height - 1; row >= 0; row-- {
		for _, v := range bars {
			level := int(math.Round(math.Max(0, math.Min(v, 1)) * float64(height*steps)))
			cell := level - row*steps
			switch {
			case cell >= steps:
				sb.WriteRune(blocks[steps])
			case cell > 0:
				sb.WriteRune(blocks[cell])
			default:
				sb.WriteRune(blocks[0])
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// meter renders a level in [0,1] as a short gauge.
func meter(v float64) string {
	const width = 8
	n := int(math.Round(math.Max(0, math.Min(v, 1)) * width))
	return "[" + strings.Repeat("=", n) + strings.Repeat(" ", width-n) + "]"
}

// RunMonitor runs the monitor until the user quits or ctx is done.
func RunMonitor(ctx context.Context, ctrl Controller, delay time.Duration) error {
	_, err := tea.NewProgram(NewMonitorModel(ctrl, delay), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}
