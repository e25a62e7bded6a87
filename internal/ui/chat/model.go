// Package chat is the interactive query view: each line typed is sent as a
// single query and answered with a rendered artifact.
package chat

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/deepseek-json/internal/ai"
	"github.com/nhle/deepseek-json/internal/console"
	"github.com/nhle/deepseek-json/internal/keys"
	"github.com/nhle/deepseek-json/internal/model"
	"github.com/nhle/deepseek-json/internal/theme"
)

const (
	roleYou       = "You"
	roleAssistant = "Assistant"
	roleSystem    = "System"
)

// Asker answers one query with a structured artifact.
type Asker interface {
	Ask(ctx context.Context, query string) (*model.StructuredArtifact, error)
}

// AskFunc adapts a function to Asker.
type AskFunc func(ctx context.Context, query string) (*model.StructuredArtifact, error)

// Ask calls f.
func (f AskFunc) Ask(ctx context.Context, query string) (*model.StructuredArtifact, error) {
	return f(ctx, query)
}

// HistoryFunc renders the session journal.
type HistoryFunc func(ctx context.Context) (string, error)

// responseMsg carries the answer to request id.
type responseMsg struct {
	id       int
	artifact *model.StructuredArtifact
	err      error
}

// historyMsg carries the rendered journal.
type historyMsg struct {
	content string
	err     error
}

// displayMessage represents a message rendered in the conversation viewport.
type displayMessage struct {
	Role    string
	Content string
}

// Model is the Bubble Tea model of the interactive chat.
type Model struct {
	ctx      context.Context
	asker    Asker
	history  HistoryFunc
	input    textarea.Model
	viewport viewport.Model
	help     help.Model
	keys     *keys.KeyMap
	messages []displayMessage

	waiting bool
	seq     int
	cancel  context.CancelFunc

	width  int
	height int
}

// New creates the chat model. Requests are derived from ctx so process
// interrupts cancel them.
func New(
	ctx context.Context,
	asker Asker,
	history HistoryFunc,
	k *keys.KeyMap,
	width, height int,
) Model {
	ta := textarea.New()
	ta.Placeholder = "Ask anything..."
	ta.Prompt = "> "
	ta.ShowLineNumbers = false
	ta.SetWidth(max(width-4, 10))
	ta.SetHeight(3)
	ta.CharLimit = 4000
	ta.Focus()

	vp := viewport.New(max(width-4, 10), viewportHeight(height))
	vp.Style = lipgloss.NewStyle()

	m := Model{
		ctx:      ctx,
		asker:    asker,
		history:  history,
		input:    ta,
		viewport: vp,
		help:     help.New(),
		keys:     k,
		messages: make([]displayMessage, 0),
		width:    width,
		height:   height,
	}
	m.refreshViewport()
	return m
}

func viewportHeight(height int) int {
	vpHeight := height - 10 // space for input area, help and borders
	if vpHeight < 4 {
		vpHeight = 4
	}
	return vpHeight
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)
		return m, nil

	case responseMsg:
		return m.handleResponse(msg), nil

	case historyMsg:
		if msg.err != nil {
			m.appendMessage(roleSystem, console.RenderError(msg.err))
		} else {
			m.appendMessage(roleSystem, msg.content)
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)
	}

	// Delegate to textarea and viewport
	var cmds []tea.Cmd

	var taCmd tea.Cmd
	m.input, taCmd = m.input.Update(msg)
	if taCmd != nil {
		cmds = append(cmds, taCmd)
	}

	var vpCmd tea.Cmd
	m.viewport, vpCmd = m.viewport.Update(msg)
	if vpCmd != nil {
		cmds = append(cmds, vpCmd)
	}

	return m, tea.Batch(cmds...)
}

// handleKeyMsg processes keyboard input.
func (m Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.stopRequest()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Cancel):
		if m.waiting {
			m.stopRequest()
			m.appendMessage(roleSystem, theme.HelpStyle.Render("Request canceled."))
		}
		return m, nil

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil

	case key.Matches(msg, m.keys.ScrollUp):
		m.viewport.HalfPageUp()
		return m, nil

	case key.Matches(msg, m.keys.ScrollDown):
		m.viewport.HalfPageDown()
		return m, nil

	case key.Matches(msg, m.keys.Send):
		return m.submit()
	}

	// Let textarea handle other keys
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit sends the current input as a query or runs a slash command.
func (m Model) submit() (tea.Model, tea.Cmd) {
	if m.waiting {
		return m, nil
	}

	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	m.input.Reset()

	switch strings.ToLower(text) {
	case "/quit", "/exit":
		return m, tea.Quit
	case "/clear":
		m.messages = m.messages[:0]
		m.refreshViewport()
		return m, nil
	case "/history":
		return m, m.loadHistory()
	}

	m.appendMessage(roleYou, text)
	m.waiting = true
	m.seq++

	ctx, cancel := context.WithCancel(m.ctx)
	m.cancel = cancel
	m.refreshViewport()

	return m, m.ask(ctx, m.seq, text)
}

// handleResponse records the answer to the in-flight request. Answers to
// canceled requests are dropped.
func (m Model) handleResponse(msg responseMsg) Model {
	if msg.id != m.seq || !m.waiting {
		return m
	}
	m.stopRequest()

	switch {
	case msg.err != nil && ai.IsCanceled(msg.err):
		m.appendMessage(roleSystem, theme.HelpStyle.Render("Request canceled."))
	case msg.err != nil:
		m.appendMessage(roleAssistant, console.RenderError(msg.err))
	default:
		m.appendMessage(roleAssistant, console.RenderArtifact(msg.artifact))
	}
	return m
}

func (m *Model) stopRequest() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.waiting = false
}

// ask returns a command that sends query and reports the result.
func (m Model) ask(ctx context.Context, id int, query string) tea.Cmd {
	asker := m.asker
	return func() tea.Msg {
		artifact, err := asker.Ask(ctx, query)
		return responseMsg{id: id, artifact: artifact, err: err}
	}
}

func (m Model) loadHistory() tea.Cmd {
	if m.history == nil {
		return nil
	}
	history, ctx := m.history, m.ctx
	return func() tea.Msg {
		content, err := history(ctx)
		return historyMsg{content: content, err: err}
	}
}

func (m *Model) appendMessage(role, content string) {
	m.messages = append(m.messages, displayMessage{Role: role, Content: content})
	m.refreshViewport()
}

// refreshViewport re-renders the conversation content and scrolls to bottom.
func (m *Model) refreshViewport() {
	m.viewport.SetContent(m.renderConversation())
	m.viewport.GotoBottom()
}

// renderConversation builds the conversation display string.
func (m Model) renderConversation() string {
	if len(m.messages) == 0 {
		return console.RenderWelcome()
	}

	var sections []string

	roleStyle := lipgloss.NewStyle().Bold(true)
	userStyle := roleStyle.Foreground(theme.ColorBlue)
	assistantStyle := roleStyle.Foreground(theme.ColorGreen)
	systemStyle := roleStyle.Foreground(theme.ColorGray)

	for _, msg := range m.messages {
		var label string
		switch msg.Role {
		case roleYou:
			label = userStyle.Render("You:")
		case roleAssistant:
			label = assistantStyle.Render("Assistant:")
		default:
			label = systemStyle.Render(msg.Role + ":")
		}

		sections = append(sections, label, msg.Content, "")
	}

	if m.waiting {
		sections = append(sections, theme.StatusStyle.Render("Sending request to DeepSeek..."))
	}

	return strings.Join(sections, "\n")
}

// View renders the chat.
func (m Model) View() string {
	title := theme.HeaderStyle.Render("DeepSeek JSON")

	sepStyle := lipgloss.NewStyle().Foreground(theme.ColorSubtle)
	separator := sepStyle.Render(
		strings.Repeat("─", max(min(m.width-6, 80), 1)),
	)

	content := lipgloss.JoinVertical(
		lipgloss.Left,
		title,
		m.viewport.View(),
		separator,
		m.input.View(),
		m.help.View(m.keys),
	)

	return theme.PanelStyle.
		Width(max(m.width-4, 10)).
		Render(content)
}

// SetSize updates the chat dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.SetWidth(max(width-4, 10))
	m.help.Width = width

	m.viewport.Width = max(width-4, 10)
	m.viewport.Height = viewportHeight(height)
	m.refreshViewport()
}

// Waiting reports whether a request is in flight.
func (m Model) Waiting() bool {
	return m.waiting
}

// Transcript returns the plain text of the conversation, one message per
// entry, for tests and debugging.
func (m Model) Transcript() []string {
	out := make([]string, 0, len(m.messages))
	for _, msg := range m.messages {
		out = append(out, msg.Role+": "+msg.Content)
	}
	return out
}
