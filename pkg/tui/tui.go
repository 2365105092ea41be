// Package tui provides the terminal keyboard and display for ratiokeys
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/james-see/ratiokeys/pkg/engine"
	"github.com/james-see/ratiokeys/pkg/ratio"
	"github.com/james-see/ratiokeys/pkg/registry"
	"github.com/james-see/ratiokeys/pkg/voice"
)

// Acid-inspired color scheme
var (
	acidGreen  = lipgloss.Color("#39FF14")
	acidYellow = lipgloss.Color("#FFFF00")
	silverGray = lipgloss.Color("#C0C0C0")
	darkGray   = lipgloss.Color("#333333")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(acidGreen).
			Background(darkGray).
			Padding(0, 2).
			MarginBottom(1)

	keyStyle = lipgloss.NewStyle().
			Foreground(silverGray).
			Border(lipgloss.NormalBorder()).
			BorderForeground(darkGray).
			Width(5).
			Align(lipgloss.Center)

	soundingKeyStyle = keyStyle.
				Foreground(darkGray).
				Background(acidGreen).
				BorderForeground(acidGreen).
				Bold(true)

	statusStyle = lipgloss.NewStyle().
			Foreground(acidYellow).
			PaddingTop(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	logStyle = lipgloss.NewStyle().
			Foreground(acidGreen)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			MarginTop(1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(acidGreen).
			Padding(1, 2)
)

// State represents the current TUI state
type State int

const (
	StatePlaying State = iota
	StateSettling
)

// DefaultHoldTimeout must exceed the terminal's key repeat delay, since a
// terminal reports repeats but never releases
const DefaultHoldTimeout = 600 * time.Millisecond

const (
	refreshInterval = 100 * time.Millisecond
	logLines        = 8
)

// rows groups key labels by physical keyboard row for the grid view
var rows = []string{"1234567890-=¥", "qwertyuiop[]\\", "asdfghjkl;'", "zxcvbnm,./"}

// Dispatcher receives key events and controls; the registry or a recorder
// wrapping it
type Dispatcher interface {
	Dispatch(ev registry.Event) error
	Panic() error
	ResetAccumulator() error
	Settle(ctx context.Context) error
}

// Options configures the TUI
type Options struct {
	// Input defaults to the registry
	Input    Dispatcher
	Analyzer *engine.Analyzer
	// HoldTimeout is how long a key sounds after its last press or repeat
	HoldTimeout   time.Duration
	SettleOnStart bool
}

type keyMap struct {
	Reset  key.Binding
	Panic  key.Binding
	Settle key.Binding
	Sort   key.Binding
	Quit   key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Reset, k.Panic, k.Settle, k.Sort, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

// Letters, digits and punctuation all play notes, so controls live on keys
// that cannot
var keys = keyMap{
	Reset: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "reset pitch"),
	),
	Panic: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "panic"),
	),
	Settle: key.NewBinding(
		key.WithKeys("ctrl+s"),
		key.WithHelp("ctrl+s", "settle"),
	),
	Sort: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "grid/intervals"),
	),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("ctrl+c", "quit"),
	),
}

// Model represents the TUI model
type Model struct {
	state    State
	reg      *registry.Registry
	input    Dispatcher
	analyzer *engine.Analyzer

	// terminal key string to table key
	codes       map[string]string
	held        map[string]int
	generation  int
	holdTimeout time.Duration

	settleOnStart bool
	byDistance    bool
	spinner       spinner.Model
	help          help.Model
	err           error
	width         int
	height        int
}

// releaseMsg fires when a held key has not repeated for the hold timeout
type releaseMsg struct {
	code       string
	generation int
}

type refreshMsg time.Time

// settleDoneMsg signals settle completion
type settleDoneMsg struct {
	err error
}

// New creates a new TUI model
func New(reg *registry.Registry, opts Options) Model {
	if opts.Input == nil {
		opts.Input = reg
	}
	if opts.HoldTimeout <= 0 {
		opts.HoldTimeout = DefaultHoldTimeout
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(acidGreen)

	return Model{
		state:         StatePlaying,
		reg:           reg,
		input:         opts.Input,
		analyzer:      opts.Analyzer,
		codes:         KeyCodes(reg.Table()),
		held:          make(map[string]int),
		holdTimeout:   opts.HoldTimeout,
		settleOnStart: opts.SettleOnStart,
		spinner:       s,
		help:          help.New(),
	}
}

// KeyCodes maps the terminal string of each label to its table key. Labels
// are matched case-insensitively, so Q and shift+Q play the same key.
func KeyCodes(t *ratio.Table) map[string]string {
	codes := make(map[string]string)
	for _, e := range t.Entries() {
		if e.Label == "" {
			continue
		}
		codes[e.Label] = e.Key
		codes[strings.ToLower(e.Label)] = e.Key
		codes[strings.ToUpper(e.Label)] = e.Key
	}
	return codes
}

// Init initializes the TUI model
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{refresh()}
	if m.settleOnStart {
		cmds = append(cmds, func() tea.Msg { return startSettleMsg{} })
	}
	return tea.Batch(cmds...)
}

type startSettleMsg struct{}

func refresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return refreshMsg(t) })
}

// Update handles TUI updates
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.updateKey(msg)

	case releaseMsg:
		if gen, ok := m.held[msg.code]; ok && gen == msg.generation {
			delete(m.held, msg.code)
			m.setErr(m.input.Dispatch(registry.Event{Key: msg.code}))
		}
		return m, nil

	case startSettleMsg:
		return m.startSettle()

	case settleDoneMsg:
		m.state = StatePlaying
		if msg.err != nil && !errors.Is(msg.err, context.Canceled) {
			m.err = msg.err
		}
		return m, nil

	case spinner.TickMsg:
		if m.state != StateSettling {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case refreshMsg:
		return m, refresh()
	}

	return m, nil
}

func (m Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		m.setErr(m.input.Panic())
		return m, tea.Quit
	case key.Matches(msg, keys.Reset):
		m.setErr(m.input.ResetAccumulator())
		return m, nil
	case key.Matches(msg, keys.Panic):
		m.held = make(map[string]int)
		m.setErr(m.input.Panic())
		return m, nil
	case key.Matches(msg, keys.Settle):
		return m.startSettle()
	case key.Matches(msg, keys.Sort):
		m.byDistance = !m.byDistance
		return m, nil
	}

	code, ok := m.codes[msg.String()]
	if !ok || m.state == StateSettling {
		return m, nil
	}

	m.generation++
	gen := m.generation
	if _, held := m.held[code]; !held {
		if err := m.input.Dispatch(registry.Event{Key: code, Pressed: true}); err != nil {
			m.setErr(err)
			return m, nil
		}
		m.err = nil
	}
	m.held[code] = gen
	return m, tea.Tick(m.holdTimeout, func(time.Time) tea.Msg {
		return releaseMsg{code: code, generation: gen}
	})
}

func (m Model) startSettle() (tea.Model, tea.Cmd) {
	if m.state == StateSettling {
		return m, nil
	}
	m.state = StateSettling
	m.held = make(map[string]int)
	input := m.input
	return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
		return settleDoneMsg{err: input.Settle(context.Background())}
	})
}

// setErr records err for display; settle conflicts are expected and hidden
func (m *Model) setErr(err error) {
	if errors.Is(err, registry.ErrSettling) {
		return
	}
	m.err = err
}

// View renders the TUI
func (m Model) View() string {
	var s strings.Builder

	s.WriteString(asciiLogo())
	s.WriteString("\n")

	var body strings.Builder
	body.WriteString(titleStyle.Render(fmt.Sprintf(" PITCH %8.2f Hz ", m.reg.Pitch())))
	body.WriteString("\n")

	snap := m.reg.Snapshot()
	if m.byDistance {
		body.WriteString(m.viewIntervals(snap))
	} else {
		body.WriteString(m.viewGrid(snap))
	}
	body.WriteString("\n")
	body.WriteString(m.viewSounding())
	body.WriteString(m.viewStatus())

	s.WriteString(boxStyle.Render(body.String()))
	s.WriteString("\n")
	s.WriteString(helpStyle.Render(m.help.View(keys)))

	return s.String()
}

func (m Model) viewGrid(snap []voice.Status) string {
	byLabel := make(map[string]voice.Status, len(snap))
	for _, st := range snap {
		byLabel[strings.ToLower(st.Label)] = st
	}

	placed := make(map[string]bool)
	var lines []string
	for i, row := range rows {
		var cells []string
		for _, r := range row {
			st, ok := byLabel[string(r)]
			if !ok {
				continue
			}
			placed[st.ID] = true
			cells = append(cells, renderKey(st))
		}
		if len(cells) > 0 {
			indent := strings.Repeat("  ", i)
			lines = append(lines, indent+lipgloss.JoinHorizontal(lipgloss.Top, cells...))
		}
	}

	var rest []string
	for _, st := range snap {
		if !placed[st.ID] {
			rest = append(rest, renderKey(st))
		}
	}
	if len(rest) > 0 {
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, rest...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderKey(st voice.Status) string {
	label := st.Label
	if label == "" {
		label = st.ID
	}
	text := label + "\n" + st.Ratio
	if st.State == voice.Sounding {
		return soundingKeyStyle.Render(text)
	}
	return keyStyle.Render(text)
}

func (m Model) viewIntervals(snap []voice.Status) string {
	state := make(map[string]voice.Status, len(snap))
	for _, st := range snap {
		state[st.ID] = st
	}

	var s strings.Builder
	for _, e := range m.reg.Table().SortedByDistance() {
		line := fmt.Sprintf("%-3s %-6s %-8s %6.3f", e.Label, e.Ratio, e.Waveform, e.Ratio.Float())
		if st := state[e.Key]; st.State == voice.Sounding {
			s.WriteString(logStyle.Render(fmt.Sprintf("▸ %s  %.2f Hz", line, st.Hz)))
		} else {
			s.WriteString(lipgloss.NewStyle().Foreground(silverGray).Render("  " + line))
		}
		s.WriteString("\n")
	}
	return s.String()
}

func (m Model) viewSounding() string {
	log := m.reg.Sounding()
	if len(log) == 0 {
		return statusStyle.Render("silence")
	}
	if len(log) > logLines {
		log = log[len(log)-logLines:]
	}
	parts := make([]string, len(log))
	for i, e := range log {
		parts[i] = fmt.Sprintf("%s %.2f", e.Label, e.Hz)
	}
	return logStyle.Render(strings.Join(parts, "  "))
}

func (m Model) viewStatus() string {
	var s strings.Builder
	if m.state == StateSettling {
		s.WriteString(statusStyle.Render(fmt.Sprintf("%s settling...", m.spinner.View())))
	}
	if m.analyzer != nil {
		level := m.analyzer.Level()
		bar := strings.Repeat("█", min(int(level*40), 20))
		s.WriteString(statusStyle.Render(fmt.Sprintf("level %-20s peak %7.1f Hz", bar, m.analyzer.PeakFrequency())))
	}
	if m.err != nil {
		s.WriteString("\n")
		s.WriteString(errorStyle.Render(fmt.Sprintf("✗ %s", m.err.Error())))
	}
	return s.String()
}

func asciiLogo() string {
	logo := `
   ___  ___ _____ ___ ___  _  _______   _____
  | _ \/   \_   _|_ _/ _ \| |/ / __\ \ / / __|
  |   /| - | | |  | | (_) | ' <| _| \ V /\__ \
  |_|_\|_|_| |_| |___\___/|_|\_\___| |_| |___/
`
	return lipgloss.NewStyle().Foreground(acidGreen).Render(logo)
}

// Run starts the TUI application
func Run(reg *registry.Registry, opts Options) error {
	p := tea.NewProgram(New(reg, opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
