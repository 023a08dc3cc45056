package viz

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/san-kum/cohsim/internal/sim"
)

const (
	historyLen   = 400
	canvasWidth  = 32
	canvasHeight = 16
	graphWidth   = 60
	graphHeight  = 8
	maxPerFrame  = 64
)

// FrameMsg drives the monitor. One frame advances the simulation by the
// current ticks-per-frame.
type FrameMsg time.Time

func frame(fps int) tea.Cmd {
	return tea.Tick(time.Second/time.Duration(fps), func(t time.Time) tea.Msg {
		return FrameMsg(t)
	})
}

// Monitor steps a simulator and renders its diagnostics.
type Monitor struct {
	sim      *sim.Simulator
	target   int
	fps      int
	perFrame int

	running  bool
	done     bool
	showHelp bool
	err      error

	theme  Theme
	styles styles
	canvas *Canvas

	last     sim.Diagnostics
	analysis sim.Diagnostics
	maxHist  []float64
	freeHist []float64
	width    int
}

// NewMonitor wraps s. The monitor stops stepping once the simulator reaches
// target ticks; target <= 0 runs until quit.
func NewMonitor(s *sim.Simulator, target, fps int) *Monitor {
	if fps <= 0 {
		fps = 30
	}
	m := &Monitor{
		sim:      s,
		target:   target,
		fps:      fps,
		perFrame: 1,
		running:  true,
		canvas:   NewCanvas(canvasWidth, canvasHeight),
		last:     s.Diagnostics(),
	}
	m.setTheme(themes[0])
	m.record(m.last)
	return m
}

func (m *Monitor) setTheme(t Theme) {
	m.theme = t
	m.styles = newStyles(t)
}

// SetTheme selects a theme by name.
func (m *Monitor) SetTheme(name string) { m.setTheme(GetTheme(name)) }

// Err returns the error that stopped the simulation, if any.
func (m *Monitor) Err() error { return m.err }

func (m *Monitor) Init() tea.Cmd { return frame(m.fps) }

func (m *Monitor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case " ":
			m.running = !m.running
		case "s":
			if !m.running {
				m.step(1)
			}
		case "+", "=":
			m.perFrame = min(m.perFrame*2, maxPerFrame)
		case "-":
			m.perFrame = max(m.perFrame/2, 1)
		case "t":
			m.setTheme(nextTheme(m.theme.Name))
		case "?":
			m.showHelp = !m.showHelp
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case FrameMsg:
		if m.running {
			m.step(m.perFrame)
		}
		return m, frame(m.fps)
	}
	return m, nil
}

func (m *Monitor) step(n int) {
	for i := 0; i < n && !m.done; i++ {
		d, err := m.sim.Step()
		if err != nil {
			m.err = err
			m.done = true
			m.running = false
			return
		}
		m.record(*d)
		if m.target > 0 && d.Tick >= m.target {
			m.done = true
			m.running = false
		}
	}
}

func (m *Monitor) record(d sim.Diagnostics) {
	m.last = d
	m.maxHist = appendCapped(m.maxHist, d.MaxDensity)
	if d.Analyzed {
		m.analysis = d
		m.freeHist = appendCapped(m.freeHist, d.FreeEnergy)
	}
}

func appendCapped(h []float64, v float64) []float64 {
	h = append(h, v)
	if len(h) > historyLen {
		h = h[len(h)-historyLen:]
	}
	return h
}

func (m *Monitor) View() string {
	st := m.styles
	p := m.sim.Params()

	state := st.running.Render("● RUNNING")
	switch {
	case m.err != nil:
		state = st.err.Render("✕ FAILED")
	case m.done:
		state = st.label.Render("■ DONE")
	case !m.running:
		state = st.paused.Render("❚❚ PAUSED")
	}
	header := st.header.Render(fmt.Sprintf("COHSIM  N=%d  G=%d  L=%g  k=%g", p.N, p.G, p.L, p.K)) + "  " + state

	left := st.panel.Render(lipgloss.JoinVertical(lipgloss.Left,
		st.label.Render("density ∑ axis 0"),
		m.densityMap(),
	))
	right := st.panel.Render(m.stats())
	body := lipgloss.JoinHorizontal(lipgloss.Top, left, " ", right)

	parts := []string{header, body, m.graphs()}
	if m.target > 0 {
		frac := float64(m.last.Tick) / float64(m.target)
		parts = append(parts, st.progressBar(frac, graphWidth)+st.label.Render(fmt.Sprintf(" %d/%d", m.last.Tick, m.target)))
	}
	if m.err != nil {
		parts = append(parts, st.err.Render(m.err.Error()))
	}
	if m.showHelp {
		parts = append(parts, st.panel.Render(helpText))
	} else {
		parts = append(parts, st.muted.Render("space pause · s step · +/- speed · t theme · ? help · q quit"))
	}
	return strings.Join(parts, "\n") + "\n"
}

const helpText = `space  pause / resume
s      single step while paused
+ -    double / halve ticks per frame
t      cycle theme
?      toggle this help
q      quit`

// densityMap lights cells of the axis-0 projection that stand one standard
// deviation above the mean, which picks out clusters once they form.
func (m *Monitor) densityMap() string {
	proj := m.sim.Projection()
	var sum, sq float64
	n := 0
	for _, row := range proj {
		for _, v := range row {
			sum += v
			sq += v * v
			n++
		}
	}
	if n == 0 {
		return m.canvas.String()
	}
	mean := sum / float64(n)
	std := math.Sqrt(max(sq/float64(n)-mean*mean, 0))
	m.canvas.Plot(proj, mean+std)
	return m.canvas.String()
}

func (m *Monitor) stats() string {
	st := m.styles
	d, a := m.last, m.analysis
	row := func(label, value string) string {
		return st.label.Render(fmt.Sprintf("%-13s", label)) + st.value.Render(value)
	}
	rows := []string{
		row("tick", fmt.Sprintf("%d", d.Tick)),
		row("time", fmt.Sprintf("%.3f", d.Time)),
		row("status", "") + st.status(d.Status),
		row("ticks/frame", fmt.Sprintf("%d", m.perFrame)),
		row("theme", m.theme.Name),
		"",
		row("max density", fmt.Sprintf("%.4g", d.MaxDensity)),
		row("max coherence", fmt.Sprintf("%.4g", d.MaxCoherence)),
		row("mass drift", fmt.Sprintf("%.2e", d.MassDrift)),
		row("kinetic", fmt.Sprintf("%.4g", d.KineticEnergy)),
		row("temperature", fmt.Sprintf("%.4g", d.Temperature)),
		row("face contact", fmt.Sprintf("%.3f", d.FaceContact)),
		"",
		row("peaks", fmt.Sprintf("%d", a.Peaks)),
		row("ratio median", fmt.Sprintf("%.4f", a.RatioMedian)),
		row("near φ", fmt.Sprintf("%.0f%%", 100*a.RatioNearPhi)),
		row("wavelength", fmt.Sprintf("%.4g", a.Wavelength)),
		row("free energy", fmt.Sprintf("%.4g", a.FreeEnergy)),
		row("max ρ trend", sparkline(m.maxHist, 24)),
	}
	if d.Unvalidated {
		rows = append(rows, "", st.warn.Render("⚠ eigenmode operator unvalidated"))
	}
	return strings.Join(rows, "\n")
}

func (m *Monitor) graphs() string {
	out := []string{Plot(m.maxHist, "max density", graphWidth, graphHeight)}
	if len(m.freeHist) > 1 {
		out = append(out, Plot(m.freeHist, "free energy (analysed ticks)", graphWidth, graphHeight))
	}
	return strings.Join(out, "\n")
}

// Run shows the monitor until the user quits and returns the simulation
// error, if one stopped the run.
func Run(s *sim.Simulator, target, fps int, theme string) error {
	m := NewMonitor(s, target, fps)
	if theme != "" {
		m.SetTheme(theme)
	}
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return err
	}
	return m.err
}
