package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/qsp-runtime/protocol"
	"github.com/wippyai/qsp-runtime/state"
)

type panel int

const (
	panelActions panel = iota
	panelObjects
)

type promptKind int

const (
	promptNone promptKind = iota
	promptInput
	promptExec
	promptSave
	promptLoad
)

var promptLabels = map[promptKind]string{
	promptInput: "input> ",
	promptExec:  "exec> ",
	promptSave:  "save as: ",
	promptLoad:  "load from: ",
}

type (
	gameMsg     struct{}
	settingsMsg struct{}
	requestMsg  struct{ r protocol.Request }
	windowMsg   struct{ w protocol.WindowVisibilityChanged }
	closedMsg   struct{}
)

type interactiveModel struct {
	s        *session
	game     state.GameState
	settings state.Settings
	hidden   map[state.Window]bool

	// current is the modal request on screen; queue holds the ones behind it.
	current protocol.Request
	queue   []protocol.Request

	requests <-chan protocol.Request
	windows  <-chan protocol.WindowVisibilityChanged
	gameCh   <-chan struct{}
	setCh    <-chan struct{}
	ctx      context.Context

	main   viewport.Model
	input  textinput.Model
	prompt promptKind
	status string

	focus      panel
	cursor     [2]int
	menuCursor int
	width      int
	height     int
}

func newInteractiveModel(ctx context.Context, s *session) *interactiveModel {
	ti := textinput.New()
	ti.Width = 60

	m := &interactiveModel{
		s:        s,
		ctx:      ctx,
		game:     s.sup.GameState().Load(),
		settings: s.sup.Settings().Load(),
		hidden:   map[state.Window]bool{},
		main:     viewport.New(80, 12),
		input:    ti,
		width:    80,
		height:   24,
	}
	m.main.SetContent(m.mainText())
	return m
}

func waitSignal(ch <-chan struct{}, msg tea.Msg) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return closedMsg{}
		}
		return msg
	}
}

func waitRequest(ch <-chan protocol.Request) tea.Cmd {
	return func() tea.Msg {
		r, ok := <-ch
		if !ok {
			return closedMsg{}
		}
		return requestMsg{r: r}
	}
}

func waitWindow(ch <-chan protocol.WindowVisibilityChanged) tea.Cmd {
	return func() tea.Msg {
		w, ok := <-ch
		if !ok {
			return nil
		}
		return windowMsg{w: w}
	}
}

func (m *interactiveModel) Init() tea.Cmd {
	ctx := m.ctx
	return tea.Batch(
		waitSignal(m.gameCh, gameMsg{}),
		waitSignal(m.setCh, settingsMsg{}),
		waitRequest(m.requests),
		waitWindow(m.windows),
		func() tea.Msg {
			<-ctx.Done()
			return tea.Quit()
		},
	)
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.main.Width = max(msg.Width-4, 20)
		m.main.Height = max(msg.Height/2-2, 3)
		return m, nil

	case gameMsg:
		m.game = m.s.sup.GameState().Load()
		m.clampCursors()
		m.main.SetContent(m.mainText())
		m.main.GotoBottom()
		return m, waitSignal(m.gameCh, gameMsg{})

	case settingsMsg:
		m.settings = m.s.sup.Settings().Load()
		m.main.SetContent(m.mainText())
		return m, waitSignal(m.setCh, settingsMsg{})

	case windowMsg:
		m.hidden[msg.w.Window] = !msg.w.Visible
		if m.hidden[state.WindowActions] && m.focus == panelActions {
			m.focus = panelObjects
		}
		return m, waitWindow(m.windows)

	case requestMsg:
		m.enqueue(msg.r)
		return m, waitRequest(m.requests)

	case closedMsg:
		return m, tea.Quit

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.current != nil {
			return m.updateModal(msg)
		}
		if m.prompt != promptNone {
			return m.updatePrompt(msg)
		}
		return m.updateGame(msg)
	}
	return m, nil
}

func (m *interactiveModel) enqueue(r protocol.Request) {
	switch r.(type) {
	case protocol.ShowMessage, protocol.ShowPicture, protocol.ShowError,
		protocol.ShowMenu, protocol.ShowInput,
		protocol.PopupSaveRequested, protocol.PopupLoadRequested:
	default:
		return
	}
	if m.current != nil {
		m.queue = append(m.queue, r)
		return
	}
	m.show(r)
}

func (m *interactiveModel) show(r protocol.Request) {
	m.current = r
	m.menuCursor = 0
	switch r := r.(type) {
	case protocol.ShowInput:
		m.openInput(plainText(r.Prompt, m.settings.UseHTML) + " ")
	case protocol.PopupSaveRequested:
		m.openInput(promptLabels[promptSave])
	case protocol.PopupLoadRequested:
		m.openInput(promptLabels[promptLoad])
	}
}

func (m *interactiveModel) next() {
	m.current = nil
	m.input.Blur()
	if len(m.queue) > 0 {
		r := m.queue[0]
		m.queue = m.queue[1:]
		m.show(r)
	}
}

func (m *interactiveModel) openInput(label string) {
	m.input.Prompt = label
	m.input.Reset()
	m.input.Focus()
}

func (m *interactiveModel) updateModal(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	sup := m.s.sup
	switch r := m.current.(type) {
	case protocol.ShowMenu:
		switch msg.String() {
		case "up", "k":
			if m.menuCursor > 0 {
				m.menuCursor--
			}
		case "down", "j":
			if m.menuCursor < len(r.Items)-1 {
				m.menuCursor++
			}
		case "enter":
			m.setStatus(sup.AnswerRequest(r.ID, protocol.IndexAnswer(m.menuCursor)))
			m.next()
		case "esc":
			m.setStatus(sup.AnswerRequest(r.ID, protocol.IndexAnswer(-1)))
			m.next()
		}
		return m, nil

	case protocol.ShowInput:
		switch msg.String() {
		case "enter":
			m.setStatus(sup.AnswerRequest(r.ID, protocol.TextAnswer(m.input.Value())))
			m.next()
			return m, nil
		case "esc":
			m.setStatus(sup.AnswerRequest(r.ID, protocol.TextAnswer("")))
			m.next()
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd

	case protocol.PopupSaveRequested, protocol.PopupLoadRequested:
		_, save := r.(protocol.PopupSaveRequested)
		switch msg.String() {
		case "enter":
			m.setStatus(m.saveLoad(m.input.Value(), save))
			m.next()
			return m, nil
		case "esc":
			m.next()
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "enter", "esc", " ":
		m.next()
	}
	return m, nil
}

func (m *interactiveModel) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.prompt = promptNone
		m.input.Blur()
		return m, nil
	case "enter":
		value := m.input.Value()
		kind := m.prompt
		m.prompt = promptNone
		m.input.Blur()

		sup := m.s.sup
		switch kind {
		case promptInput:
			m.setStatus(sup.SubmitInput(value))
		case promptExec:
			m.setStatus(sup.ExecCode(value))
		case promptSave:
			m.setStatus(m.saveLoad(value, true))
		case promptLoad:
			m.setStatus(m.saveLoad(value, false))
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *interactiveModel) updateGame(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	sup := m.s.sup
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "tab":
		if m.focus == panelActions && !m.hidden[state.WindowObjects] {
			m.focus = panelObjects
		} else if !m.hidden[state.WindowActions] {
			m.focus = panelActions
		}
	case "up", "k":
		if m.cursor[m.focus] > 0 {
			m.cursor[m.focus]--
		}
	case "down", "j":
		if m.cursor[m.focus] < len(m.items(m.focus))-1 {
			m.cursor[m.focus]++
		}
	case "enter":
		if len(m.items(m.focus)) == 0 {
			return m, nil
		}
		if m.focus == panelActions {
			m.setStatus(sup.SelectAction(m.cursor[panelActions]))
		} else {
			m.setStatus(sup.SelectObject(m.cursor[panelObjects]))
		}
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.main, cmd = m.main.Update(msg)
		return m, cmd
	case "i":
		if !m.hidden[state.WindowInput] {
			m.startPrompt(promptInput)
		}
	case ":":
		m.startPrompt(promptExec)
	case "s":
		m.startPrompt(promptSave)
	case "l":
		m.startPrompt(promptLoad)
	case "r":
		m.setStatus(sup.RestartGame())
	}
	return m, nil
}

func (m *interactiveModel) startPrompt(kind promptKind) {
	m.prompt = kind
	m.openInput(promptLabels[kind])
}

func (m *interactiveModel) setStatus(err error) {
	if err != nil {
		m.status = err.Error()
		return
	}
	m.status = ""
}

func (m *interactiveModel) saveLoad(name string, save bool) error {
	if strings.TrimSpace(name) == "" {
		return nil
	}
	h, err := m.s.saveHandle(name, save)
	if err != nil {
		return err
	}
	if save {
		return m.s.sup.SaveGame(h)
	}
	return m.s.sup.LoadGame(h)
}

func (m *interactiveModel) items(p panel) []state.Item {
	if p == panelActions {
		return m.game.Actions
	}
	return m.game.Objects
}

func (m *interactiveModel) clampCursors() {
	for _, p := range []panel{panelActions, panelObjects} {
		n := len(m.items(p))
		if m.cursor[p] >= n {
			m.cursor[p] = max(n-1, 0)
		}
	}
}

func (m *interactiveModel) mainText() string {
	return textStyle(m.settings).Render(plainText(m.game.MainText, m.settings.UseHTML))
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	title := m.game.Title
	if title == "" {
		title = "QSP"
	}
	b.WriteString(titleStyle.Render(title))
	if m.s.sup.Busy() {
		b.WriteString(helpStyle.Render(" running..."))
	}
	b.WriteString("\n")

	b.WriteString(panelStyle.Width(m.width - 2).Render(m.main.View()))
	b.WriteString("\n")

	var cols []string
	if !m.hidden[state.WindowActions] {
		cols = append(cols, m.renderList("Actions", panelActions))
	}
	if !m.hidden[state.WindowObjects] {
		cols = append(cols, m.renderList("Objects", panelObjects))
	}
	if len(cols) > 0 {
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cols...))
		b.WriteString("\n")
	}
	if !m.hidden[state.WindowVars] && m.game.VarsText != "" {
		b.WriteString(panelStyle.Width(m.width - 2).Render(plainText(m.game.VarsText, m.settings.UseHTML)))
		b.WriteString("\n")
	}

	if m.current != nil {
		b.WriteString(m.renderModal())
		b.WriteString("\n")
	} else if m.prompt != promptNone {
		b.WriteString(m.input.View())
		b.WriteString("\n")
	}

	if m.status != "" {
		b.WriteString(errorStyle.Render(m.status))
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render(m.help()))
	return b.String()
}

func (m *interactiveModel) renderList(name string, p panel) string {
	var b strings.Builder
	header := name
	if m.focus == p {
		header = titleStyle.Render(name)
	}
	b.WriteString(header)
	b.WriteString("\n")

	link := linkStyle(m.settings)
	for i, it := range m.items(p) {
		label := itemLabel(it, m.settings.UseHTML)
		if m.focus == p && i == m.cursor[p] {
			b.WriteString(selectedStyle.Render("> " + label))
		} else {
			b.WriteString("  " + link.Render(label))
		}
		b.WriteString("\n")
	}
	return panelStyle.Width(max(m.width/2-2, 20)).Render(strings.TrimRight(b.String(), "\n"))
}

func (m *interactiveModel) renderModal() string {
	isHTML := m.settings.UseHTML
	var body string
	switch r := m.current.(type) {
	case protocol.ShowMessage:
		body = plainText(r.Text, isHTML)
	case protocol.ShowPicture:
		body = fmt.Sprintf("[picture: %s]", r.Path)
	case protocol.ShowError:
		body = errorStyle.Render(r.Message)
	case protocol.ShowMenu:
		var b strings.Builder
		for i, it := range r.Items {
			label := itemLabel(it, isHTML)
			if i == m.menuCursor {
				b.WriteString(selectedStyle.Render("> " + label))
			} else {
				b.WriteString("  " + label)
			}
			b.WriteString("\n")
		}
		body = strings.TrimRight(b.String(), "\n")
	case protocol.ShowInput, protocol.PopupSaveRequested, protocol.PopupLoadRequested:
		body = m.input.View()
	}
	return panelStyle.BorderForeground(lipgloss.Color("#7D56F4")).Render(body)
}

func (m *interactiveModel) help() string {
	switch m.current.(type) {
	case nil:
	case protocol.ShowMenu:
		return "↑/↓ choose • enter select • esc cancel"
	case protocol.ShowInput, protocol.PopupSaveRequested, protocol.PopupLoadRequested:
		return "enter confirm • esc cancel"
	default:
		return "enter continue"
	}
	if m.prompt != promptNone {
		return "enter confirm • esc cancel"
	}
	return "tab panel • ↑/↓ move • enter select • i input • : exec • s save • l load • r restart • q quit"
}

func runInteractive(ctx context.Context, s *session) error {
	m := newInteractiveModel(ctx, s)

	requests, stopRequests := s.sup.Requests().Subscribe(32)
	defer stopRequests()
	windows, stopWindows := s.sup.Windows().Subscribe(8)
	defer stopWindows()
	gameCh, stopGame := s.sup.GameState().Watch()
	defer stopGame()
	setCh, stopSettings := s.sup.Settings().Watch()
	defer stopSettings()

	m.requests, m.windows, m.gameCh, m.setCh = requests, windows, gameCh, setCh

	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
