package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/diogo/checkin/internal/conversation"
	apierrors "github.com/diogo/checkin/internal/errors"
	"github.com/diogo/checkin/internal/models"
	"github.com/diogo/checkin/internal/render"
	"github.com/diogo/checkin/internal/speech"
)

// Message types for the TUI
type (
	coreChangedMsg    struct{}
	transcriptMsg     string
	captureStartedMsg struct {
		err error
	}
	captureStoppedMsg struct {
		transcript string
		discard    bool
		err        error
	}
	submitDoneMsg struct {
		err error
	}
	noticeClearMsg struct {
		seq int
	}
)

// Replayer plays the most recent reply audio again
type Replayer interface {
	Replay() bool
}

// Events forwards notifications from background goroutines (the conversation
// core and the speech engine) into the program
type Events struct {
	ch chan tea.Msg
}

// NewEvents creates an Events with a small buffer
func NewEvents() *Events {
	return &Events{ch: make(chan tea.Msg, 64)}
}

// Changed signals that the conversation changed. It never blocks.
func (e *Events) Changed() {
	e.send(coreChangedMsg{})
}

// Transcript publishes the live transcript. It never blocks.
func (e *Events) Transcript(text string) {
	e.send(transcriptMsg(text))
}

func (e *Events) send(msg tea.Msg) {
	select {
	case e.ch <- msg:
	default:
	}
}

func (e *Events) listen() tea.Cmd {
	return func() tea.Msg {
		return <-e.ch
	}
}

// Options wires the model to its collaborators
type Options struct {
	Core   *conversation.Core
	Speech *speech.Controller
	// Keyboard switches to typed input: each line is fed through the speech
	// controller as a final result
	Keyboard *speech.TextEngine
	Replayer Replayer
	Events   *Events
	Render   render.Options
	// AutoCopy copies every reply to the clipboard
	AutoCopy bool
	Username string
	BaseURL  string
	// CopyFunc replaces the system clipboard
	CopyFunc func(string) error
}

// Model represents the TUI state
type Model struct {
	core     *conversation.Core
	speech   *speech.Controller
	keyboard *speech.TextEngine
	replayer Replayer
	events   *Events
	copyFn   func(string) error

	renderOpts render.Options
	autoCopy   bool
	username   string
	baseURL    string

	// UI components
	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model

	// State
	ready     bool
	capturing bool
	starting  bool
	stopping  bool
	live      string
	notice    string
	noticeSeq int
	err       error

	// Dimensions
	width  int
	height int
}

// NewModel creates the check-in model
func NewModel(opts Options) Model {
	ta := textarea.New()
	ta.Placeholder = "How are you feeling today?"
	ta.CharLimit = 2000
	ta.ShowLineNumbers = false
	ta.SetHeight(2)

	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.FocusedStyle.Base = lipgloss.NewStyle().Foreground(colorText)
	ta.FocusedStyle.Placeholder = lipgloss.NewStyle().Foreground(colorTextDim)
	ta.BlurredStyle = ta.FocusedStyle

	if opts.Keyboard != nil {
		ta.Focus()
	}

	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = loadingStyle

	events := opts.Events
	if events == nil {
		events = NewEvents()
	}
	if opts.Speech != nil {
		opts.Speech.OnUpdate(events.Transcript)
	}

	copyFn := opts.CopyFunc
	if copyFn == nil {
		copyFn = clipboard.WriteAll
	}

	renderOpts := opts.Render
	if renderOpts.Style == "" {
		renderOpts = render.DefaultOptions()
	}

	return Model{
		core:       opts.Core,
		speech:     opts.Speech,
		keyboard:   opts.Keyboard,
		replayer:   opts.Replayer,
		events:     events,
		copyFn:     copyFn,
		renderOpts: renderOpts,
		autoCopy:   opts.AutoCopy,
		username:   opts.Username,
		baseURL:    opts.BaseURL,
		textarea:   ta,
		spinner:    s,
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.events.listen(), m.spinner.Tick}
	if m.keyboardMode() {
		cmds = append(cmds, textarea.Blink)
	}
	return tea.Batch(cmds...)
}

func (m Model) keyboardMode() bool {
	return m.keyboard != nil
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 4
		inputHeight := 6
		statusHeight := 1
		padding := 2

		vpHeight := m.height - headerHeight - inputHeight - statusHeight - padding
		if vpHeight < 5 {
			vpHeight = 5
		}
		contentWidth := m.width - 4

		if !m.ready {
			m.viewport = viewport.New(contentWidth, vpHeight)
			m.ready = true
		} else {
			m.viewport.Width = contentWidth
			m.viewport.Height = vpHeight
		}
		m.textarea.SetWidth(contentWidth - 4)
		m.updateViewport()

	case tea.KeyMsg:
		next, keyCmd, handled := m.handleKey(msg)
		if handled {
			return next, keyCmd
		}
		m = next

	case coreChangedMsg:
		m.updateViewport()
		m.viewport.GotoBottom()
		return m, m.events.listen()

	case transcriptMsg:
		if m.capturing {
			m.live = string(msg)
		}
		return m, m.events.listen()

	case captureStartedMsg:
		m.starting = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.capturing = true
		m.live = ""
		m.err = nil

	case captureStoppedMsg:
		m.stopping = false
		m.capturing = false
		m.live = ""
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		if msg.discard {
			return m.withNotice("capture discarded")
		}
		if strings.TrimSpace(msg.transcript) == "" {
			return m.withNotice("nothing was heard")
		}
		return m, tea.Batch(m.submit(msg.transcript), m.spinner.Tick)

	case submitDoneMsg:
		m.updateViewport()
		m.viewport.GotoBottom()
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		if m.autoCopy {
			if reply, ok := m.core.LastAssistant(); ok && !reply.IsFallback() {
				if err := m.copyFn(reply.Text); err != nil {
					m.err = fmt.Errorf("copy to clipboard: %w", err)
				}
			}
		}

	case noticeClearMsg:
		if msg.seq == m.noticeSeq {
			m.notice = ""
		}

	case spinner.TickMsg:
		if m.busy() {
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	if m.keyboardMode() {
		if _, ok := msg.(tea.KeyMsg); ok {
			m.textarea, cmd = m.textarea.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// handleKey processes shortcuts. handled reports whether the key was consumed.
func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd, bool) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit, true

	case "esc":
		switch {
		case m.processing():
			if m.core.Cancel() {
				next, cmd := m.withNotice("request cancelled")
				return next, cmd, true
			}
			return m, nil, true
		case m.capturing && !m.stopping:
			m.stopping = true
			return m, m.stopCapture(true), true
		case m.starting || m.stopping:
			return m, nil, true
		}
		return m, tea.Quit, true

	case "ctrl+y":
		next, cmd := m.copyLastReply()
		return next, cmd, true

	case "ctrl+p":
		next, cmd := m.replay()
		return next, cmd, true

	case "ctrl+r":
		if m.keyboardMode() {
			return m, nil, true
		}
		next, cmd := m.toggleCapture()
		return next, cmd, true

	case " ":
		if m.keyboardMode() {
			return m, nil, false
		}
		next, cmd := m.toggleCapture()
		return next, cmd, true

	case "enter":
		if !m.keyboardMode() {
			return m, nil, true
		}
		input := strings.TrimSpace(m.textarea.Value())
		if input == "" {
			return m, nil, true
		}
		if input == "/exit" || input == "/quit" {
			return m, tea.Quit, true
		}
		if m.processing() {
			m.err = apierrors.ErrBusy
			return m, nil, true
		}
		m.err = nil
		m.textarea.Reset()
		return m, tea.Batch(m.typedCheckIn(input), m.spinner.Tick), true
	}
	return m, nil, false
}

func (m Model) toggleCapture() (Model, tea.Cmd) {
	if m.starting || m.stopping {
		return m, nil
	}
	// capture stays as is until the in-flight check-in finishes
	if m.processing() {
		m.err = apierrors.ErrBusy
		return m, nil
	}
	if m.capturing {
		m.stopping = true
		return m, tea.Batch(m.stopCapture(false), m.spinner.Tick)
	}
	m.starting = true
	m.err = nil
	return m, tea.Batch(m.startCapture(), m.spinner.Tick)
}

func (m Model) startCapture() tea.Cmd {
	ctrl := m.speech
	return func() tea.Msg {
		if ctrl == nil {
			return captureStartedMsg{err: apierrors.ErrCaptureUnavailable}
		}
		return captureStartedMsg{err: ctrl.Start()}
	}
}

func (m Model) stopCapture(discard bool) tea.Cmd {
	ctrl := m.speech
	return func() tea.Msg {
		transcript, err := ctrl.Stop()
		return captureStoppedMsg{transcript: transcript, discard: discard, err: err}
	}
}

// typedCheckIn runs a typed line through the speech controller so that
// keyboard and microphone input share the same path into the conversation.
func (m Model) typedCheckIn(text string) tea.Cmd {
	ctrl, kb, core := m.speech, m.keyboard, m.core
	return func() tea.Msg {
		if err := ctrl.Start(); err != nil {
			return submitDoneMsg{err: err}
		}
		if err := kb.Feed(text); err != nil {
			_, _ = ctrl.Stop()
			return submitDoneMsg{err: err}
		}
		transcript, err := ctrl.Stop()
		if err != nil {
			return submitDoneMsg{err: err}
		}
		return submitDoneMsg{err: core.Submit(context.Background(), transcript)}
	}
}

func (m Model) submit(transcript string) tea.Cmd {
	core := m.core
	return func() tea.Msg {
		return submitDoneMsg{err: core.Submit(context.Background(), transcript)}
	}
}

func (m Model) copyLastReply() (Model, tea.Cmd) {
	reply, ok := m.core.LastAssistant()
	if !ok {
		return m.withNotice("no reply to copy")
	}
	if err := m.copyFn(reply.Text); err != nil {
		m.err = fmt.Errorf("copy to clipboard: %w", err)
		return m, nil
	}
	return m.withNotice("reply copied to clipboard")
}

func (m Model) replay() (Model, tea.Cmd) {
	if m.replayer == nil || !m.replayer.Replay() {
		return m.withNotice("no audio to replay")
	}
	return m.withNotice("replaying audio")
}

func (m Model) withNotice(text string) (Model, tea.Cmd) {
	m.noticeSeq++
	m.notice = text
	seq := m.noticeSeq
	return m, tea.Tick(3*time.Second, func(time.Time) tea.Msg {
		return noticeClearMsg{seq: seq}
	})
}

func (m Model) processing() bool {
	return m.core != nil && m.core.Processing()
}

func (m Model) busy() bool {
	return m.processing() || m.starting || m.stopping || m.capturing
}

// View renders the TUI
func (m Model) View() string {
	if !m.ready {
		return loadingStyle.Render("  Initializing...")
	}

	var sections []string
	contentWidth := m.width - 4

	mode := "microphone"
	if m.keyboardMode() {
		mode = "keyboard"
	}
	headerParts := []string{
		titleStyle.Render("◉ Check-in"),
		hintStyle.Render("  •  "),
		subtitleStyle.Render(mode),
	}
	if m.username != "" {
		headerParts = append(headerParts, hintStyle.Render("  •  "), subtitleStyle.Render(m.username))
	}
	if m.baseURL != "" {
		headerParts = append(headerParts, hintStyle.Render("  •  "), hintStyle.Render(m.baseURL))
	}
	header := headerStyle.Width(contentWidth).Render(lipgloss.JoinHorizontal(lipgloss.Center, headerParts...))
	sections = append(sections, header)

	var messagesContent string
	if m.core == nil || m.core.Len() == 0 {
		messagesContent = m.renderWelcome()
	} else {
		messagesContent = m.viewport.View()
	}
	sections = append(sections, messagesAreaStyle.
		Width(contentWidth).
		Height(m.viewport.Height).
		Render(messagesContent))

	sections = append(sections, m.renderInput(contentWidth))
	sections = append(sections, m.renderStatusBar(contentWidth))

	if m.notice != "" {
		sections = append(sections, noticeStyle.Render(m.notice))
	}
	if m.err != nil {
		sections = append(sections, formatError(m.err))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderWelcome() string {
	width := m.viewport.Width - 4

	subtitle := "Press space to start talking, press it again when you are done"
	if m.keyboardMode() {
		subtitle = "Type how you are feeling and press Enter"
	}
	content := lipgloss.JoinVertical(
		lipgloss.Center,
		"",
		welcomeTitleStyle.Width(width).Render("How are you today?"),
		"",
		welcomeStyle.Width(width).Render(subtitle),
		"",
	)

	topPadding := (m.viewport.Height - lipgloss.Height(content)) / 2
	if topPadding < 0 {
		topPadding = 0
	}
	return strings.Repeat("\n", topPadding) + content
}

func (m Model) renderInput(width int) string {
	switch {
	case m.starting:
		return inputPanelStyle.Width(width).Render(m.spinner.View() + " starting microphone...")
	case m.stopping:
		return inputPanelStyle.Width(width).Render(m.spinner.View() + " finishing transcript...")
	case m.capturing:
		live := m.live
		if live == "" {
			live = hintStyle.Render("listening...")
		} else {
			live = transcriptStyle.Render(live)
		}
		return listeningPanelStyle.Width(width).Render(
			lipgloss.JoinHorizontal(lipgloss.Top, listeningLabelStyle.Render("● REC"), live),
		)
	case m.processing():
		return inputPanelStyle.Width(width).Render(m.spinner.View() + " " + transcriptStyle.Render("checking in..."))
	case m.keyboardMode():
		return inputPanelStyle.Width(width).Render(lipgloss.JoinVertical(
			lipgloss.Left,
			inputLabelStyle.Render("You"),
			m.textarea.View(),
		))
	}
	return inputPanelStyle.Width(width).Render(hintStyle.Render("press space to talk"))
}

func (m Model) renderStatusBar(width int) string {
	type shortcut struct {
		key  string
		desc string
	}
	var shortcuts []shortcut
	if m.keyboardMode() {
		shortcuts = append(shortcuts, shortcut{"Enter", "Send"})
	} else {
		shortcuts = append(shortcuts, shortcut{"Space", "Talk"})
	}
	shortcuts = append(shortcuts,
		shortcut{"Esc", "Cancel"},
		shortcut{"^Y", "Copy"},
		shortcut{"^P", "Replay"},
		shortcut{"^C", "Quit"},
	)

	items := make([]string, 0, len(shortcuts))
	for _, s := range shortcuts {
		items = append(items, statusKeyStyle.Render(s.key)+statusDescStyle.Render(" "+s.desc))
	}
	return statusBarStyle.Width(width).Align(lipgloss.Center).Render(strings.Join(items, "  │  "))
}

func (m *Model) updateViewport() {
	if m.core == nil {
		return
	}
	var content strings.Builder
	bubbleWidth := m.viewport.Width - 6
	if bubbleWidth < 20 {
		bubbleWidth = 20
	}
	opts := m.renderOpts
	opts.Width = bubbleWidth - 4

	for i, msg := range m.core.Messages() {
		if i > 0 {
			content.WriteString("\n")
		}
		content.WriteString(renderMessage(msg, bubbleWidth, opts))
		content.WriteString("\n")
	}

	m.viewport.SetContent(content.String())
}

func renderMessage(msg models.Message, bubbleWidth int, opts render.Options) string {
	if msg.Role == models.RoleUser {
		return userLabelStyle.Render("● You") + "\n" + userBubbleStyle.Width(bubbleWidth).Render(msg.Text)
	}

	label := assistantLabelStyle.Render("◉ Assistant")
	var notes []string
	if mood := render.MoodLine(msg.MoodScore); mood != "" {
		notes = append(notes, mood)
	}
	if msg.HasAudio() {
		notes = append(notes, "♪ audio")
	}
	if len(notes) > 0 {
		label += "  " + moodStyle.Render(strings.Join(notes, " • "))
	}

	style := assistantBubbleStyle
	text := render.Reply(msg, opts)
	if msg.IsFallback() {
		style = fallbackBubbleStyle
		text = msg.Text
	}
	return label + "\n" + style.Width(bubbleWidth).Render(text)
}

func formatError(err error) string {
	if err == nil {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(errorStyle.Render(fmt.Sprintf("⚠ Error: %v", err)))

	var hint string
	switch {
	case errors.Is(err, apierrors.ErrCaptureUnavailable):
		hint = "Set DEEPGRAM_API_KEY or run 'checkin chat --keyboard'"
	case errors.Is(err, apierrors.ErrBusy):
		hint = "Wait for the reply or press Esc to cancel it"
	case apierrors.IsAuthError(err):
		hint = "Run 'checkin login' to sign in again"
	}
	if hint != "" {
		sb.WriteString("\n")
		sb.WriteString(errorHintStyle.Render("💡 " + hint))
	}
	return sb.String()
}

// Run starts the check-in screen and blocks until the user quits. An active
// capture is stopped and discarded on exit.
func Run(m Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()

	if m.speech != nil && m.speech.State() == speech.Listening {
		_, _ = m.speech.Stop()
	}
	if m.core != nil {
		m.core.Cancel()
	}
	return err
}
