// Package tui is the interactive terminal chat for asking questions about the
// indexed codebase.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"codeqa/pkg/agent"
)

// Asker answers one question. *agent.Agent implements it.
type Asker interface {
	Answer(ctx context.Context, query string) (*agent.QueryState, error)
}

//nolint:gochecknoglobals // shared styles
var (
	userStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	answerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	metaStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	codeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("150")).PaddingLeft(2)
	titleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	levelStyles = map[string]lipgloss.Style{
		"high":   lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		"medium": lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		"low":    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

// turn is one question with its answer or failure.
type turn struct {
	err      error
	response *agent.Response
	question string
	elapsed  time.Duration
}

// answerMsg carries a finished query back to the UI loop.
type answerMsg struct {
	err      error
	response *agent.Response
	elapsed  time.Duration
}

// Model is the Bubble Tea model of the chat.
type Model struct {
	ctx       context.Context
	asker     Asker
	textArea  textarea.Model
	viewport  viewport.Model
	spinner   spinner.Model
	history   []turn
	pending   string
	isLoading bool
	width     int
	height    int
}

// New creates the chat model.
func New(ctx context.Context, asker Asker) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	ta := textarea.New()
	ta.Placeholder = "Ask about the codebase..."
	ta.Focus()
	ta.Prompt = "Ask: "
	ta.ShowLineNumbers = false
	ta.CharLimit = -1
	ta.SetHeight(1)
	ta.KeyMap.InsertNewline.SetEnabled(false)

	return &Model{
		ctx:      ctx,
		asker:    asker,
		textArea: ta,
		viewport: viewport.New(100, 20),
		spinner:  s,
	}
}

// Run starts the chat in the alternate screen and blocks until the user quits.
func Run(ctx context.Context, asker Asker) error {
	p := tea.NewProgram(New(ctx, asker), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("chat: %w", err)
	}
	return nil
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return textarea.Blink
}

func (m *Model) askCmd(question string) tea.Cmd {
	return func() tea.Msg {
		start := time.Now()
		state, err := m.asker.Answer(m.ctx, question)
		if err != nil {
			return answerMsg{err: err, elapsed: time.Since(start)}
		}
		resp := agent.NewResponse(state)
		return answerMsg{response: &resp, elapsed: time.Since(start)}
	}
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			question := strings.TrimSpace(m.textArea.Value())
			if question == "" || m.isLoading {
				return m, nil
			}
			m.textArea.Reset()
			m.pending = question
			m.isLoading = true
			m.refresh()
			return m, tea.Batch(m.askCmd(question), m.spinner.Tick)
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.textArea.SetWidth(msg.Width - 2)
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-4, 1)
		m.refresh()
		return m, nil

	case answerMsg:
		m.history = append(m.history, turn{
			question: m.pending,
			response: msg.response,
			err:      msg.err,
			elapsed:  msg.elapsed,
		})
		m.pending = ""
		m.isLoading = false
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.isLoading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refresh()
		return m, cmd
	}

	var cmd tea.Cmd
	m.textArea, cmd = m.textArea.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// refresh re-renders the transcript into the viewport.
func (m *Model) refresh() {
	m.viewport.SetContent(m.transcript())
	m.viewport.GotoBottom()
}

func (m *Model) transcript() string {
	var b strings.Builder
	for _, t := range m.history {
		b.WriteString(userStyle.Render("You: " + t.question))
		b.WriteString("\n")
		b.WriteString(renderTurn(t))
		b.WriteString("\n\n")
	}
	if m.pending != "" {
		b.WriteString(userStyle.Render("You: " + m.pending))
		b.WriteString("\n")
		b.WriteString(m.spinner.View() + " thinking...")
	}
	return b.String()
}

func renderTurn(t turn) string {
	if t.err != nil {
		return errorStyle.Render("Error: " + t.err.Error())
	}
	r := t.response
	var b strings.Builder
	b.WriteString(answerStyle.Render(r.Explanation))
	if r.Code != "" {
		b.WriteString("\n")
		b.WriteString(codeStyle.Render(r.Code))
	}
	if r.Instruction != "" {
		b.WriteString("\n")
		b.WriteString(answerStyle.Render("→ " + r.Instruction))
	}

	level := levelStyles[r.ConfidenceLevel].Render(fmt.Sprintf("%s (%.2f)", r.ConfidenceLevel, r.Confidence))
	files := make([]string, 0, len(r.Sources))
	seen := make(map[string]bool)
	for _, s := range r.Sources {
		if !seen[s.File] {
			seen[s.File] = true
			files = append(files, s.File)
		}
	}
	b.WriteString("\n")
	b.WriteString(metaStyle.Render(fmt.Sprintf("strategy %s · %s · confidence ", r.Strategy, t.elapsed.Truncate(time.Millisecond))))
	b.WriteString(level)
	if len(files) > 0 {
		b.WriteString("\n")
		b.WriteString(metaStyle.Render("sources: " + strings.Join(files, ", ")))
	}
	return b.String()
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}
	return titleStyle.Render("codeqa chat") + metaStyle.Render("  (enter to ask, esc to quit)") + "\n" +
		m.viewport.View() + "\n" +
		m.textArea.View()
}
