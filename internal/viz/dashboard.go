package viz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/nmpc/internal/control"
	"github.com/san-kum/nmpc/internal/dynamo"
	"github.com/san-kum/nmpc/internal/experiment"
	"github.com/san-kum/nmpc/internal/sim"
)

const (
	canvasWidth     = 64
	canvasHeight    = 22
	historyCapacity = 300
)

// CycleMsg carries one finished control cycle into the dashboard.
type CycleMsg control.Cycle

// DoneMsg reports the end of the simulation.
type DoneMsg struct {
	Result *sim.Result
	Err    error
}

// Gate pauses the simulation loop between cycles.
type Gate struct {
	mu     sync.Mutex
	cond   *sync.Cond
	paused bool
}

func NewGate() *Gate {
	g := &Gate{}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// Wait blocks while the gate is paused.
func (g *Gate) Wait() {
	g.mu.Lock()
	for g.paused {
		g.cond.Wait()
	}
	g.mu.Unlock()
}

// Toggle flips the gate and reports whether it is now paused.
func (g *Gate) Toggle() bool {
	g.mu.Lock()
	g.paused = !g.paused
	p := g.paused
	g.mu.Unlock()
	g.cond.Broadcast()
	return p
}

func (g *Gate) Resume() {
	g.mu.Lock()
	g.paused = false
	g.mu.Unlock()
	g.cond.Broadcast()
}

func (g *Gate) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// Dashboard follows a simulation cycle by cycle.
type Dashboard struct {
	title    string
	path     dynamo.Path
	goal     dynamo.Pose
	start    dynamo.Pose
	gate     *Gate
	canvas   *Canvas
	view     Viewport
	theme    int
	showPlan bool
	showHelp bool

	last     control.Cycle
	cycles   int
	trail    []dynamo.Pose
	commands [][]float64 // per component
	solveMs  []float64
	outcomes map[string]int

	done   bool
	result *sim.Result
	err    error
}

func NewDashboard(title string, sc sim.Config, gate *Gate) Dashboard {
	if gate == nil {
		gate = NewGate()
	}
	c := NewCanvas(canvasWidth, canvasHeight)
	start := sc.Start.Pose()
	xs := []float64{start.X, sc.Goal.X}
	ys := []float64{start.Y, sc.Goal.Y}
	for _, wp := range sc.Path {
		xs, ys = append(xs, wp.X), append(ys, wp.Y)
	}
	return Dashboard{
		title:    title,
		path:     sc.Path,
		goal:     sc.Goal,
		start:    start,
		gate:     gate,
		canvas:   c,
		view:     Fit(c, xs, ys),
		showPlan: true,
		trail:    make([]dynamo.Pose, 0, historyCapacity),
		outcomes: make(map[string]int),
	}
}

// UseTheme switches to the named theme.
func (m *Dashboard) UseTheme(name string) { m.theme = ThemeIndex(name) }

func (m Dashboard) Init() tea.Cmd {
	return nil
}

// Update handles key presses and simulation messages.
func (m Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.gate.Resume()
			return m, tea.Quit
		case " ":
			m.gate.Toggle()
		case "p":
			m.showPlan = !m.showPlan
		case "t":
			m.theme = (m.theme + 1) % len(Themes)
		case "?":
			m.showHelp = !m.showHelp
		}
	case CycleMsg:
		m.observe(control.Cycle(msg))
	case DoneMsg:
		m.done = true
		m.result, m.err = msg.Result, msg.Err
	}
	return m, nil
}

func (m *Dashboard) observe(c control.Cycle) {
	m.last = c
	m.cycles++
	if len(c.State) >= 3 {
		m.trail = appendBounded(m.trail, c.State.Pose())
	}

	u := c.Decision.Command
	if len(u) > 0 && len(m.commands) != len(u) {
		m.commands = make([][]float64, len(u))
	}
	for i, v := range u {
		m.commands[i] = appendBounded(m.commands[i], v)
	}

	if c.Solved {
		m.outcomes[c.Result.Outcome.String()]++
		m.solveMs = appendBounded(m.solveMs, float64(c.Result.Elapsed)/float64(time.Millisecond))
	}
}

func appendBounded[T any](s []T, v T) []T {
	if len(s) == historyCapacity {
		copy(s, s[1:])
		s = s[:len(s)-1]
	}
	return append(s, v)
}

func (m Dashboard) draw() string {
	m.canvas.Clear()
	m.view.Path(m.path)
	for _, p := range m.trail {
		m.view.Point(p.X, p.Y)
	}
	if m.showPlan && m.last.Solved && m.last.Result.Outcome.OK() {
		states := m.last.Result.Trajectory.States
		for i := 1; i < len(states); i++ {
			m.view.Line(states[i-1][0], states[i-1][1], states[i][0], states[i][1])
		}
	}
	size := 0.05 * m.view.span()
	m.view.Pose(m.goal, size)
	if len(m.trail) > 0 {
		m.view.Pose(m.trail[len(m.trail)-1], size)
	} else {
		m.view.Pose(m.start, size)
	}
	return m.canvas.String()
}

func (m Dashboard) status() string {
	switch {
	case m.done && m.err != nil:
		return "ERROR: " + m.err.Error()
	case m.done:
		return "DONE"
	case m.gate.Paused():
		return "PAUSED"
	default:
		return "RUNNING"
	}
}

// View renders the canvas and the stats panel side by side.
func (m Dashboard) View() string {
	theme := Themes[m.theme]
	row := func(label, value string) string {
		return labelStyle.Render(label) + valueStyle.Render(value) + "\n"
	}

	var s strings.Builder
	s.WriteString(headerStyle.Render(strings.ToUpper(m.title)) + "\n")
	s.WriteString(m.status() + "\n\n")

	mode := m.last.Decision.Mode.String()
	s.WriteString(labelStyle.Render("Mode") + lipgloss.NewStyle().Bold(true).Foreground(theme.ModeColor(mode)).Render(mode) + "\n")
	s.WriteString(row("Cycle", fmt.Sprintf("%d", m.cycles)))

	pose := m.start
	if len(m.trail) > 0 {
		pose = m.trail[len(m.trail)-1]
	}
	s.WriteString(row("Pose", pose.String()))

	d0 := m.start.Distance(m.goal)
	d := pose.Distance(m.goal)
	progress := 1.0
	if d0 > 0 {
		progress = 1 - d/d0
	}
	s.WriteString(labelStyle.Render("Goal") + ProgressBar(progress, 20) + valueStyle.Render(fmt.Sprintf(" %.2fm", d)) + "\n")

	outcome := ""
	if m.last.Solved {
		outcome = m.last.Result.Outcome.String()
	}
	s.WriteString(labelStyle.Render("Outcome") + lipgloss.NewStyle().Foreground(theme.OutcomeColor(outcome)).Render(orDash(outcome)) + "\n")
	if m.last.Decision.Fallback {
		s.WriteString(row("Fallback", fmt.Sprintf("%v", m.last.Err)))
	}
	s.WriteString(row("Solves", fmt.Sprintf("ok %d  sub %d  inf %d  err %d  t/o %d",
		m.outcomes["optimal"], m.outcomes["suboptimal_feasible"], m.outcomes["infeasible"],
		m.outcomes["solver_error"], m.outcomes["timed_out"])))
	if len(m.solveMs) > 0 {
		s.WriteString(row("Solve ms", fmt.Sprintf("%.1f  %s", m.solveMs[len(m.solveMs)-1], Sparkline(m.solveMs, 20))))
	}

	names := ControlNames(len(m.commands))
	for i, series := range m.commands {
		if g := Series(series, names[i], 28, 4); g != "" {
			s.WriteString(graphStyle.Render(g) + "\n")
		}
	}

	s.WriteString(helpStyle.Render("SP:Pause P:Plan T:Theme ?:Help Q:Quit"))
	main := lipgloss.JoinHorizontal(lipgloss.Top,
		canvasStyle.Foreground(theme.Secondary).Render(m.draw()),
		statsStyle.Render(s.String()),
	)
	if m.showHelp {
		return `
╔══════════════════════════════════════╗
║          KEYBOARD SHORTCUTS          ║
╠══════════════════════════════════════╣
║  Space    - Pause/Resume simulation  ║
║  P        - Toggle predicted path    ║
║  T        - Cycle themes             ║
║  ?        - Toggle this help         ║
║  Q        - Quit                     ║
╚══════════════════════════════════════╝
` + "\n\n" + main
	}
	return main
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// Watch runs the scenario and shows it in a dashboard until the user
// quits. Each cycle is held on screen for at least pace.
func Watch(ctx context.Context, exp *experiment.Experiment, sc sim.Config, title, theme string, pace time.Duration) (*sim.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	gate := NewGate()
	d := NewDashboard(title, sc, gate)
	d.UseTheme(theme)
	p := tea.NewProgram(d, tea.WithAltScreen())

	exp.OnCycle(func(c control.Cycle) {
		gate.Wait()
		p.Send(CycleMsg(c))
		if pace > 0 {
			time.Sleep(pace)
		}
	})

	type outcome struct {
		res *sim.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := exp.RunScenario(ctx, sc)
		p.Send(DoneMsg{Result: res, Err: err})
		done <- outcome{res, err}
	}()

	if _, err := p.Run(); err != nil {
		return nil, err
	}
	cancel()
	gate.Resume()
	o := <-done
	if o.err != nil && !errors.Is(o.err, context.Canceled) {
		return o.res, o.err
	}
	return o.res, nil
}
