package tui

import (
	"context"
	"strings"

	"dsa-agent/web/types"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Sender is the TUI-facing subset of the chat client.
type Sender interface {
	Send(ctx context.Context, input string, history []types.ChatTurn) (string, error)
}

type answerMsg struct {
	question string
	answer   string
	err      error
}

// Model is the Bubble Tea model for the chat client. History is kept here
// and sent with every turn.
type Model struct {
	sender   Sender
	input    textinput.Model
	viewport viewport.Model
	history  []types.ChatTurn
	status   string
	waiting  bool
	ready    bool
}

func New(sender Sender) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about data structures and algorithms"
	ti.Focus()
	ti.CharLimit = 0
	return Model{
		sender:   sender,
		input:    ti,
		viewport: viewport.New(0, 0),
		status:   "Enter to send, Ctrl+C to quit.",
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, bh := transcriptStyle.GetFrameSize()
		_, qh := inputStyle.GetFrameSize()
		reserved := 1 + 1 + qh + 1 // header, status, input line
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-bh)
		m.refresh()
		return m, nil

	case answerMsg:
		m.waiting = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.refresh()
			return m, nil
		}
		m.history = append(m.history,
			types.ChatTurn{Role: types.RoleUser, Content: msg.question},
			types.ChatTurn{Role: types.RoleAssistant, Content: msg.answer})
		m.status = "Done."
		m.refresh()
		m.viewport.GotoBottom()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.waiting {
				return m, nil
			}
			m.input.SetValue("")
			m.waiting = true
			m.status = "Thinking..."
			return m, m.ask(q)
		case "pgup", "pgdown", "up", "down":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask(question string) tea.Cmd {
	history := make([]types.ChatTurn, len(m.history))
	copy(history, m.history)
	sender := m.sender
	return func() tea.Msg {
		answer, err := sender.Send(context.Background(), question, history)
		return answerMsg{question: question, answer: answer, err: err}
	}
}

func (m *Model) refresh() {
	m.viewport.SetContent(renderTranscript(m.history, m.viewport.Width))
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("DSA Assistant")
	body := transcriptStyle.Render(m.viewport.View())
	input := inputStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + body + "\n" + input + "\n" + status
}

func renderTranscript(history []types.ChatTurn, width int) string {
	if len(history) == 0 {
		return "No messages yet."
	}
	wrap := lipgloss.NewStyle().Width(max(10, width))
	var b strings.Builder
	for i, turn := range history {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if turn.Role == types.RoleUser {
			b.WriteString(userStyle.Render("You"))
		} else {
			b.WriteString(botStyle.Render("Assistant"))
		}
		b.WriteString("\n")
		b.WriteString(wrap.Render(turn.Content))
	}
	return b.String()
}

var (
	headerStyle     = lipgloss.NewStyle().Bold(true)
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	userStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	botStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)
