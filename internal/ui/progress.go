package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"vigil/internal/engine"
)

type progressModel struct {
	title   string
	events  <-chan engine.ProgressEvent
	spinner spinner.Model
	prog    progress.Model
	items   []projectItem
	index   map[string]int
	width   int
	done    bool
}

type projectItem struct {
	name        string
	status      engine.Status
	diagnostics int
}

type eventMsg engine.ProgressEvent
type doneMsg struct{}

// NewProgressModel returns a Bubble Tea model that renders analysis progress
// of the named projects. The model quits once events is closed.
func NewProgressModel(title string, projects []string, events <-chan engine.ProgressEvent) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 76

	items := make([]projectItem, 0, len(projects))
	index := make(map[string]int, len(projects))
	for i, name := range projects {
		items = append(items, projectItem{name: name, status: engine.StatusQueued})
		index[name] = i
	}
	return &progressModel{
		title:   title,
		events:  events,
		spinner: sp,
		prog:    prog,
		items:   items,
		index:   index,
		width:   80,
	}
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForEvent())
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		cmd := m.applyEvent(engine.ProgressEvent(msg))
		return m, tea.Batch(cmd, m.listenForEvent())
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
			m.prog.Width = msg.Width - 4
		}
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
	case progress.FrameMsg:
		progressModel, cmd := m.prog.Update(msg)
		m.prog = progressModel.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *progressModel) View() string {
	if len(m.items) == 0 {
		return ""
	}
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	header := fmt.Sprintf("%s (%d/%d)", m.title, m.finished(), len(m.items))
	if m.done {
		header = "done: " + header
	} else {
		header = m.spinner.View() + " " + header
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")

	statusWidth := 12
	nameWidth := max(m.width-statusWidth-16, 20)
	for _, item := range m.items {
		status := styleStatus(item.status).Render(fmt.Sprintf("%12s", item.status))
		line := fmt.Sprintf("  %s %s", status, truncate(item.name, nameWidth))
		if item.status == engine.StatusAnalyzed {
			line += fmt.Sprintf(" (%d)", item.diagnostics)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.done {
		b.WriteString(m.prog.ViewAs(1.0))
	} else {
		b.WriteString(m.prog.View())
	}
	b.WriteString("\n")
	return b.String()
}

func (m *progressModel) listenForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return doneMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *progressModel) applyEvent(ev engine.ProgressEvent) tea.Cmd {
	idx, ok := m.index[ev.Name]
	if !ok {
		// projects appearing mid-run, e.g. the loose one
		idx = len(m.items)
		m.items = append(m.items, projectItem{name: ev.Name})
		m.index[ev.Name] = idx
	}
	m.items[idx].status = ev.Status
	if ev.Status == engine.StatusAnalyzed {
		m.items[idx].diagnostics = ev.Diagnostics
	}

	total := 0.0
	for _, item := range m.items {
		total += progressFromStatus(item.status)
	}
	return m.prog.SetPercent(total / float64(len(m.items)))
}

func (m *progressModel) finished() int {
	n := 0
	for _, item := range m.items {
		if item.status == engine.StatusAnalyzed || item.status == engine.StatusFailed {
			n++
		}
	}
	return n
}

func progressFromStatus(status engine.Status) float64 {
	switch status {
	case engine.StatusAnalyzing:
		return 0.5
	case engine.StatusAnalyzed, engine.StatusFailed:
		return 1.0
	default:
		return 0.0
	}
}

func styleStatus(status engine.Status) lipgloss.Style {
	switch status {
	case engine.StatusAnalyzed:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	case engine.StatusFailed:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	case engine.StatusAnalyzing:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	}
}

func truncate(value string, width int) string {
	if width <= 0 {
		return value
	}
	if runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	return runewidth.Truncate(value, width-3, "...")
}
