// ============================================================================
// KrishiSaathi - Multilingual Voice Assistant
// ============================================================================
//
// Package:     voicechat
// Description: Bubbletea shell over the conversation session
// Author:      Mike Stoffels
// Created:     2026-10-04
// License:     MIT
// ============================================================================

package voicechat

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/msto63/krishisaathi/internal/history"
	"github.com/msto63/krishisaathi/internal/language"
	"github.com/msto63/krishisaathi/internal/session"
	"github.com/msto63/krishisaathi/pkg/core/version"
)

// Session is the part of the session controller the TUI drives
type Session interface {
	State() session.State
	Language() language.Language
	Languages() []language.Language
	Messages() []history.Message
	CanCapture() bool
	Subscribe(fn session.Listener) (cancel func())
	StartCapture() bool
	SubmitText(text string) error
	Stop() bool
	ChangeLanguage(id string) error
	Reset() error
	Done() <-chan struct{}
}

// Model is the Bubbletea model of the voice chat
type Model struct {
	sess        Session
	events      chan session.Event
	unsubscribe func()

	width  int
	height int
	ready  bool

	textarea textarea.Model
	viewport viewport.Model
	spinner  spinner.Model

	state     session.State
	lang      language.Language
	languages []language.Language
	messages  []history.Message
	notice    string
	closed    bool

	showPicker  bool
	pickerIndex int
}

// New creates the model and subscribes it to sess
func New(sess Session) Model {
	ta := textarea.New()
	ta.Placeholder = "Type your question... (Enter to send)"
	ta.Focus()
	ta.CharLimit = 2000
	ta.SetWidth(80)
	ta.SetHeight(2)
	ta.ShowLineNumbers = false
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = SpinnerStyle

	events := make(chan session.Event, 256)
	unsubscribe := sess.Subscribe(func(ev session.Event) {
		select {
		case events <- ev:
		default:
			// the model re-reads session state on every event, so a
			// dropped event only delays a redraw
		}
	})

	return Model{
		sess:        sess,
		events:      events,
		unsubscribe: unsubscribe,
		textarea:    ta,
		spinner:     sp,
		state:       sess.State(),
		lang:        sess.Language(),
		languages:   sess.Languages(),
		messages:    sess.Messages(),
	}
}

// Close removes the session subscription
func (m Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// Init starts the event pump
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.spinner.Tick,
		m.waitForEvent,
	)
}

func (m Model) waitForEvent() tea.Msg {
	select {
	case ev := <-m.events:
		return sessionEventMsg{event: ev}
	case <-m.sess.Done():
		return sessionClosedMsg{}
	}
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 3
		footerHeight := 8
		viewportHeight := max(msg.Height-headerHeight-footerHeight, 3)

		if !m.ready {
			m.viewport = viewport.New(msg.Width-4, viewportHeight)
			m.viewport.YPosition = headerHeight
			m.ready = true
		} else {
			m.viewport.Width = msg.Width - 4
			m.viewport.Height = viewportHeight
		}
		m.textarea.SetWidth(msg.Width - 4)
		m.updateViewportContent()
		m.viewport.GotoBottom()

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case sessionEventMsg:
		m.applyEvent(msg.event)
		cmds = append(cmds, m.waitForEvent)

	case sessionClosedMsg:
		m.closed = true
		return m, tea.Quit

	case commandResultMsg:
		if msg.err != nil {
			m.notice = describeError(msg.action, msg.err)
		}
	}

	if !m.showPicker {
		m.textarea, cmd = m.textarea.Update(msg)
		cmds = append(cmds, cmd)
	}
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *Model) applyEvent(ev session.Event) {
	switch ev.Type {
	case session.EventStateChanged:
		m.state = ev.State
		if ev.State == session.StateListening || ev.State == session.StateRouting {
			m.notice = ""
		}
	case session.EventMessageAppended, session.EventHistoryReset:
		m.messages = m.sess.Messages()
		m.updateViewportContent()
		m.viewport.GotoBottom()
	case session.EventLanguageChanged:
		m.lang = m.sess.Language()
		m.notice = "Language: " + m.lang.DisplayName
	case session.EventNotice:
		m.notice = ev.Notice
	}
}

// handleKeyPress handles keyboard input
func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showPicker {
		return m.handlePickerKey(msg)
	}

	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit

	case "enter":
		text := strings.TrimSpace(m.textarea.Value())
		if text == "" {
			return m, nil
		}
		if m.state != session.StateIdle {
			m.notice = "Please wait for the current answer"
			return m, nil
		}
		m.textarea.Reset()
		return m, m.command("send", func() error { return m.sess.SubmitText(text) })

	case "ctrl+r":
		if !m.sess.CanCapture() {
			m.notice = "Speech input is not available"
			return m, nil
		}
		return m, m.command("listen", func() error {
			if !m.sess.StartCapture() {
				return session.ErrBusy
			}
			return nil
		})

	case "esc":
		return m, m.command("stop", func() error {
			m.sess.Stop()
			return nil
		})

	case "ctrl+l":
		if m.state != session.StateIdle {
			m.notice = "Language can be changed once the assistant is idle"
			return m, nil
		}
		m.languages = m.sess.Languages()
		m.pickerIndex = 0
		for i, l := range m.languages {
			if l.ID == m.lang.ID {
				m.pickerIndex = i
			}
		}
		m.showPicker = true
		m.textarea.Blur()
		return m, nil

	case "ctrl+n":
		return m, m.command("reset", m.sess.Reset)
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	return m, cmd
}

func (m Model) handlePickerKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.pickerIndex > 0 {
			m.pickerIndex--
		}
	case "down", "j":
		if m.pickerIndex < len(m.languages)-1 {
			m.pickerIndex++
		}
	case "enter":
		m.showPicker = false
		m.textarea.Focus()
		if m.pickerIndex < len(m.languages) {
			id := m.languages[m.pickerIndex].ID
			return m, m.command("language", func() error { return m.sess.ChangeLanguage(id) })
		}
	case "esc", "ctrl+l":
		m.showPicker = false
		m.textarea.Focus()
	case "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

// command runs fn off the update loop; session commands block until the
// session goroutine has handled them
func (m Model) command(action string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return commandResultMsg{action: action, err: fn()}
	}
}

func describeError(action string, err error) string {
	switch {
	case errors.Is(err, session.ErrBusy):
		return "Busy, please wait (" + action + ")"
	case errors.Is(err, language.ErrUnknownLanguage):
		return "Unknown language"
	case errors.Is(err, session.ErrClosed):
		return "Session closed"
	default:
		return fmt.Sprintf("%s failed: %v", action, err)
	}
}

// View renders the model
func (m Model) View() string {
	if !m.ready {
		return "Loading KrishiSaathi..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	if m.showPicker {
		b.WriteString(m.renderPicker())
	} else {
		b.WriteString(ChatPanelStyle.Width(m.width - 2).Render(m.viewport.View()))
		b.WriteString("\n")
		b.WriteString(m.renderInputArea())
	}
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())
	b.WriteString("\n")
	b.WriteString(m.renderHelpBar())
	return b.String()
}

func (m Model) renderHeader() string {
	header := lipgloss.JoinHorizontal(lipgloss.Center,
		LogoStyle.Render(Logo),
		"   ",
		HeaderStyle.Render(m.lang.DisplayName),
	)
	return TitlePanelStyle.Width(m.width - 4).Render(header)
}

func (m Model) renderPicker() string {
	var content strings.Builder
	content.WriteString(HeaderStyle.Render("Choose language"))
	content.WriteString("\n\n")

	for i, l := range m.languages {
		label := fmt.Sprintf("%s (%s)", l.DisplayName, l.LocaleTag)
		if l.ID == m.lang.ID {
			label += " ✓"
		}
		if i == m.pickerIndex {
			content.WriteString(SelectedItemStyle.Render(" ▶ " + label))
		} else {
			content.WriteString(ItemStyle.Render("   " + label))
		}
		content.WriteString("\n")
	}
	content.WriteString("\n")
	content.WriteString(HelpStyle.Render("↑/↓ navigate • Enter select • Esc close"))

	return PickerStyle.Width(m.width - 2).Render(content.String())
}

func (m Model) renderInputArea() string {
	if m.state != session.StateIdle {
		return InputStyle.Width(m.width - 2).Render(
			m.spinner.View() + " " + StatusActiveStyle.Render(m.state.Label()))
	}
	return FocusedInputStyle.Width(m.width - 2).Render(m.textarea.View())
}

func (m Model) renderStatusBar() string {
	var state string
	if m.state == session.StateIdle {
		state = StatusIdleStyle.Render(m.state.Icon() + " " + m.state.Label())
	} else {
		state = StatusActiveStyle.Render(m.state.Icon() + " " + m.state.Label())
	}

	notice := ""
	if m.notice != "" {
		notice = NoticeStyle.Render(m.notice)
	}
	right := HelpDescStyle.Render("v" + version.Version)

	space := max(m.width-lipgloss.Width(state)-lipgloss.Width(notice)-lipgloss.Width(right)-4, 2)
	left := space / 2
	content := state + strings.Repeat(" ", left) + notice + strings.Repeat(" ", space-left) + right
	return StatusBarStyle.Width(m.width - 2).Render(content)
}

func (m Model) renderHelpBar() string {
	if m.showPicker {
		return ""
	}
	items := []string{RenderKeyHint("Enter", "send")}
	if m.sess.CanCapture() {
		items = append(items, RenderKeyHint("Ctrl+R", "speak"))
	}
	items = append(items,
		RenderKeyHint("Esc", "stop"),
		RenderKeyHint("Ctrl+L", "language"),
		RenderKeyHint("Ctrl+N", "new chat"),
		RenderKeyHint("Ctrl+C", "quit"),
	)
	return HelpStyle.Render(strings.Join(items, "  "))
}

// updateViewportContent renders the conversation into the viewport
func (m *Model) updateViewportContent() {
	var content strings.Builder
	width := max(m.width-6, 20)

	for _, msg := range m.messages {
		timeStr := HelpDescStyle.Render(msg.CreatedAt.Format("15:04"))
		switch msg.Sender {
		case history.SenderUser:
			content.WriteString(RoleLabelUserStyle.Render("You") + "  " + timeStr + "\n")
			content.WriteString(UserMessageStyle.Width(width).Render(msg.Text))
		default:
			content.WriteString(RoleLabelAssistantStyle.Render("KrishiSaathi") + "  " + timeStr + "\n")
			content.WriteString(AssistantMessageStyle.Width(width).Render(msg.Text))
			if msg.IsTranslated() {
				content.WriteString("\n" + OriginalTextStyle.Render("EN: "+msg.OriginalText))
			}
		}
		content.WriteString("\n\n")
	}

	m.viewport.SetContent(content.String())
}

// Run starts the TUI and blocks until the user quits or the session closes
func Run(sess Session) error {
	m := New(sess)
	defer m.Close()

	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
