package bubbletea

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fwojciec/eka"
	"github.com/fwojciec/eka/chat"
)

var _ tea.Model = Model{}

// Model is the Bubble Tea model for the chat TUI.
type Model struct {
	// Input is the question input. Exported for test access.
	Input textinput.Model
	// Viewport is the scrollable conversation area. Exported for test access.
	Viewport viewport.Model

	ctrl    Controller
	theme   eka.Theme
	styles  Styles
	keys    KeyMap
	spinner spinner.Model
	now     func() time.Time

	convs    []eka.Conversation
	activeID string

	// Running sessions by conversation ID. Several conversations can
	// stream at once; each has its own update channel.
	sessions map[string]*session

	// Blocks are rebuilt from the active conversation on every change.
	// Answer and source blocks are kept by message ID so render caches and
	// collapse state survive rebuilds.
	blocks     []MessageBlock
	blockFocus int // index of focused sources block (-1 = none)
	answers    map[string]*AnswerBlock
	sources    map[string]*SourcesBlock

	err    error
	ready  bool
	width  int
	height int
}

type session struct {
	cancel  context.CancelFunc
	updates chan eka.Conversation
	done    chan SessionDoneMsg
}

// Option configures a Model.
type Option func(*Model)

// WithClock sets the time source for relative timestamps in the sidebar.
func WithClock(now func() time.Time) Option {
	return func(m *Model) { m.now = now }
}

// WithKeyMap replaces the default key bindings.
func WithKeyMap(keys KeyMap) Option {
	return func(m *Model) { m.keys = keys }
}

// New creates a TUI Model over ctrl. If ctrl has no conversations, one is
// created.
func New(ctrl Controller, theme eka.Theme, opts ...Option) Model {
	ti := textinput.New()
	ti.Placeholder = "Ask about your documents..."
	ti.Prompt = ""
	ti.Focus()
	ti.CharLimit = 0

	sp := spinner.New(spinner.WithSpinner(spinner.MiniDot))

	m := Model{
		Input:      ti,
		ctrl:       ctrl,
		theme:      theme,
		styles:     NewStyles(theme),
		keys:       DefaultKeyMap(),
		spinner:    sp,
		now:        time.Now,
		sessions:   make(map[string]*session),
		blockFocus: -1,
		answers:    make(map[string]*AnswerBlock),
		sources:    make(map[string]*SourcesBlock),
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.spinner.Style = m.styles.Thinking
	if len(ctrl.Conversations()) == 0 {
		ctrl.NewConversation()
	}
	m = m.refresh()
	return m
}

// Running reports whether the active conversation has a session in
// progress.
func (m Model) Running() bool {
	_, ok := m.sessions[m.activeID]
	return ok
}

// ActiveID returns the ID of the displayed conversation.
func (m Model) ActiveID() string { return m.activeID }

// Err returns the last error, if any.
func (m Model) Err() error { return m.err }

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m = m.handleWindowSize(msg)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.thinking() {
			m = m.render(false)
		}
		return m, cmd

	case ConversationMsg:
		m = m.refresh()
		if msg.Conversation.ID == m.activeID {
			m = m.render(false)
		}
		if s, ok := m.sessions[msg.Conversation.ID]; ok {
			return m, listenForUpdate(s)
		}
		return m, nil

	case SessionDoneMsg:
		if s, ok := m.sessions[msg.ConversationID]; ok {
			s.cancel()
			delete(m.sessions, msg.ConversationID)
		}
		m.err = sessionError(msg)
		m = m.refresh()
		m = m.render(false)
		return m, m.Input.Focus()
	}

	// Viewport always receives messages for scrolling (keyboard and mouse).
	var cmd tea.Cmd
	m.Viewport, cmd = m.Viewport.Update(msg)
	cmds = append(cmds, cmd)

	m.Input, cmd = m.Input.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	var b strings.Builder
	b.WriteString(m.Viewport.View())
	b.WriteString("\n")
	b.WriteString(m.statusLine())
	b.WriteString("\n")
	b.WriteString(m.Input.View())
	main := b.String()

	if !m.showSidebar() {
		return main
	}
	side := m.styles.Sidebar.
		Width(sidebarWidth - 1).
		Height(m.height).
		Render(renderSidebar(m.sidebarEntries(), sidebarWidth-2, m.height, m.now(), m.styles))
	return lipgloss.JoinHorizontal(lipgloss.Top, side, main)
}

func (m Model) showSidebar() bool {
	return m.width >= minWidthSidebar
}

func (m Model) mainWidth() int {
	if m.showSidebar() {
		return m.width - sidebarWidth
	}
	return m.width
}

func (m Model) handleWindowSize(msg tea.WindowSizeMsg) Model {
	m.width, m.height = msg.Width, msg.Height
	inputH := 1
	statusHeight := 1
	borderHeight := 2 // newlines between sections
	vpHeight := max(msg.Height-inputH-statusHeight-borderHeight, 1)

	if !m.ready {
		m.Viewport = viewport.New(m.mainWidth(), vpHeight)
		m.ready = true
	} else {
		m.Viewport.Width = m.mainWidth()
		m.Viewport.Height = vpHeight
	}
	m.Input.Width = m.mainWidth()
	return m.render(true)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		if s, ok := m.sessions[m.activeID]; ok {
			s.cancel()
			return m, nil
		}
		for _, s := range m.sessions {
			s.cancel()
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Stop):
		if s, ok := m.sessions[m.activeID]; ok {
			s.cancel()
		}
		return m, nil

	case key.Matches(msg, m.keys.Send):
		if m.Running() {
			return m, nil
		}
		text := strings.TrimSpace(m.Input.Value())
		if text == "" {
			return m, nil
		}
		return m.submit(text)

	case key.Matches(msg, m.keys.NewChat):
		m.ctrl.NewConversation()
		m.err = nil
		m = m.refresh()
		return m.render(true), nil

	case key.Matches(msg, m.keys.PrevChat):
		return m.switchBy(-1), nil

	case key.Matches(msg, m.keys.NextChat):
		return m.switchBy(1), nil

	case key.Matches(msg, m.keys.Toggle):
		if m.blockFocus >= 0 {
			block, cmd := m.blocks[m.blockFocus].Update(ToggleMsg{})
			m.blocks[m.blockFocus] = block
			m.Viewport.SetContent(m.renderContent())
			return m, cmd
		}
		return m, nil

	case key.Matches(msg, m.keys.FocusPrev):
		m = m.cycleFocusPrev()
		m.Viewport.SetContent(m.renderContent())
		return m, nil
	}

	// Only forward non-character keys to the viewport so typing "j" or "k"
	// does not scroll.
	var cmd tea.Cmd
	var cmds []tea.Cmd
	if msg.Type != tea.KeyRunes {
		m.Viewport, cmd = m.Viewport.Update(msg)
		cmds = append(cmds, cmd)
	}
	m.Input, cmd = m.Input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Model) submit(text string) (tea.Model, tea.Cmd) {
	id := m.activeID
	if m.ctrl.Busy(id) {
		return m, nil
	}
	m.Input.SetValue("")
	m.err = nil

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		cancel:  cancel,
		updates: make(chan eka.Conversation, 64),
		done:    make(chan SessionDoneMsg, 1),
	}
	m.sessions[id] = s

	return m, tea.Batch(
		startSession(ctx, m.ctrl, id, text, s),
		listenForUpdate(s),
	)
}

func (m Model) switchBy(delta int) Model {
	if len(m.convs) == 0 {
		return m
	}
	i := slices.IndexFunc(m.convs, func(c eka.Conversation) bool { return c.ID == m.activeID })
	next := min(max(i+delta, 0), len(m.convs)-1)
	if next == i {
		return m
	}
	if err := m.ctrl.SetActive(m.convs[next].ID); err != nil {
		m.err = err
		return m
	}
	m.err = nil
	m = m.refresh()
	return m.render(true)
}

// refresh reloads the conversation list and the active ID from the
// controller.
func (m Model) refresh() Model {
	m.convs = m.ctrl.Conversations()
	m.activeID = m.ctrl.ActiveID()
	return m
}

func (m Model) active() (eka.Conversation, bool) {
	for _, c := range m.convs {
		if c.ID == m.activeID {
			return c, true
		}
	}
	return eka.Conversation{}, false
}

func (m Model) thinking() bool {
	conv, ok := m.active()
	if !ok {
		return false
	}
	return slices.ContainsFunc(conv.Messages, func(msg eka.Message) bool { return msg.Thinking })
}

// render rebuilds blocks for the active conversation and updates the
// viewport. The view follows new content when it was already at the bottom
// or when jump is set.
func (m Model) render(jump bool) Model {
	if !m.ready {
		return m
	}
	follow := jump || m.Viewport.AtBottom()
	m = m.buildBlocks()
	m.Viewport.SetContent(m.renderContent())
	if follow {
		m.Viewport.GotoBottom()
	}
	return m
}

func (m Model) buildBlocks() Model {
	conv, _ := m.active()
	focused := -1
	m.blocks = m.blocks[:0:0]
	for _, msg := range conv.Messages {
		switch msg.Role {
		case eka.RoleSystem:
			m.blocks = append(m.blocks, NewSystemBlock(msg.Content, m.styles))
		case eka.RoleUser:
			m.blocks = append(m.blocks, NewUserMessageBlock(msg.Content, m.styles))
		case eka.RoleAssistant:
			if msg.Content != "" {
				ab, ok := m.answers[msg.ID]
				if !ok {
					ab = NewAnswerBlock(m.theme)
					m.answers[msg.ID] = ab
				}
				ab.SetContent(msg.Content)
				m.blocks = append(m.blocks, ab)
			}
			if msg.Thinking {
				m.blocks = append(m.blocks, NewThinkingBlock(m.spinner.View(), m.styles))
			}
			if len(msg.Citations) > 0 {
				sb, ok := m.sources[msg.ID]
				if !ok {
					sb = NewSourcesBlock(msg.Citations, m.styles)
					m.sources[msg.ID] = sb
				}
				m.blocks = append(m.blocks, sb)
				focused = len(m.blocks) - 1
			}
		}
	}
	m.blockFocus = focused
	return m
}

func (m Model) renderContent() string {
	if len(m.blocks) == 0 {
		return ""
	}
	width := m.Viewport.Width
	var b strings.Builder
	for i, block := range m.blocks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(block.View(width))
	}
	return b.String()
}

// cycleFocusPrev moves blockFocus to the previous sources block, wrapping
// around.
func (m Model) cycleFocusPrev() Model {
	if len(m.blocks) == 0 {
		return m
	}
	start := m.blockFocus - 1
	if start < 0 {
		start = len(m.blocks) - 1
	}
	for i := range len(m.blocks) {
		idx := (start - i + len(m.blocks)) % len(m.blocks)
		if _, ok := m.blocks[idx].(*SourcesBlock); ok {
			m.blockFocus = idx
			return m
		}
	}
	m.blockFocus = -1
	return m
}

func (m Model) sidebarEntries() []sidebarEntry {
	entries := make([]sidebarEntry, len(m.convs))
	for i, c := range m.convs {
		_, busy := m.sessions[c.ID]
		entries[i] = sidebarEntry{
			Title:   c.Title,
			Created: c.CreatedAt,
			Active:  c.ID == m.activeID,
			Busy:    busy,
		}
	}
	return entries
}

func (m Model) statusLine() string {
	if m.err != nil {
		return m.styles.Error.Render(fmt.Sprintf("Error: %v", m.err))
	}
	if m.Running() {
		return m.styles.Muted.Render(m.spinner.View() + " Answering... " + strings.Join(helpLine(m.keys.Stop), ""))
	}
	return m.styles.Muted.Render(strings.Join(helpLine(
		m.keys.Send, m.keys.NewChat, m.keys.PrevChat, m.keys.Toggle, m.keys.Quit,
	), " · "))
}

// sessionError returns the error worth showing for a finished session.
// Cancellation is the user's own doing and is not reported.
func sessionError(msg SessionDoneMsg) error {
	if msg.Err != nil {
		return msg.Err
	}
	if msg.Result.State == eka.TurnFailed && msg.Result.Err != nil && !errors.Is(msg.Result.Err, context.Canceled) {
		return msg.Result.Err
	}
	return nil
}

// startSession runs Send on a goroutine owned by Bubble Tea. Snapshots are
// forwarded on s.updates; the final state is read back through refresh.
func startSession(ctx context.Context, ctrl Controller, id, text string, s *session) tea.Cmd {
	return func() tea.Msg {
		res, err := ctrl.Send(ctx, id, text, chat.WithUpdateHandler(func(c eka.Conversation) {
			select {
			case s.updates <- c:
			case <-ctx.Done():
			}
		}))
		close(s.updates)
		s.done <- SessionDoneMsg{ConversationID: id, Result: res, Err: err}
		return nil
	}
}

// listenForUpdate waits for the next snapshot of a session. When the
// channel closes, it returns the session's SessionDoneMsg.
func listenForUpdate(s *session) tea.Cmd {
	return func() tea.Msg {
		c, ok := <-s.updates
		if !ok {
			return <-s.done
		}
		return ConversationMsg{Conversation: c}
	}
}
