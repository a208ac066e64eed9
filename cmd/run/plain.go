package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/wippyai/qsp-runtime/protocol"
	"github.com/wippyai/qsp-runtime/state"
)

type commandKind int

const (
	cmdNone commandKind = iota
	cmdAction
	cmdObject
	cmdInput
	cmdExec
	cmdSave
	cmdLoad
	cmdRestart
	cmdQuit
	cmdHelp
)

type command struct {
	arg   string
	kind  commandKind
	index int
}

// parseCommand reads one line-mode command. Actions and objects are
// numbered from 1.
func parseCommand(line string) (command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return command{}, nil
	}
	if n, err := strconv.Atoi(line); err == nil {
		if n < 1 {
			return command{}, fmt.Errorf("action numbers start at 1")
		}
		return command{kind: cmdAction, index: n - 1}, nil
	}

	switch line[0] {
	case '>':
		return command{kind: cmdInput, arg: strings.TrimSpace(line[1:])}, nil
	case '!':
		return command{kind: cmdExec, arg: strings.TrimSpace(line[1:])}, nil
	}

	word, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	switch strings.ToLower(word) {
	case "o", "obj", "object":
		n, err := strconv.Atoi(rest)
		if err != nil || n < 1 {
			return command{}, fmt.Errorf("usage: o <object number>")
		}
		return command{kind: cmdObject, index: n - 1}, nil
	case "save", "load":
		if rest == "" {
			return command{}, fmt.Errorf("usage: %s <file>", word)
		}
		kind := cmdSave
		if strings.EqualFold(word, "load") {
			kind = cmdLoad
		}
		return command{kind: kind, arg: rest}, nil
	case "restart":
		return command{kind: cmdRestart}, nil
	case "q", "quit", "exit":
		return command{kind: cmdQuit}, nil
	case "?", "help":
		return command{kind: cmdHelp}, nil
	}
	return command{}, fmt.Errorf("unknown command %q (try help)", word)
}

const plainHelp = `N          run action N
o N        select object N
> text     submit input line
! code     execute code
save FILE  save the game
load FILE  load a saved game
restart    restart the game
quit       leave`

// plainUI is the line-mode front end. A pending question takes the next
// input line as its answer.
type plainUI struct {
	s       *session
	out     io.Writer
	pending protocol.Request
	hidden  map[state.Window]bool
}

func runPlain(ctx context.Context, s *session, in io.Reader, out io.Writer) error {
	ui := &plainUI{s: s, out: out, hidden: map[state.Window]bool{}}

	requests, stopRequests := s.sup.Requests().Subscribe(32)
	defer stopRequests()
	windows, stopWindows := s.sup.Windows().Subscribe(8)
	defer stopWindows()
	changes, stopChanges := s.sup.GameState().Watch()
	defer stopChanges()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changes:
			ui.printState(s.sup.GameState().Load())
		case w, ok := <-windows:
			if !ok {
				windows = nil
				continue
			}
			ui.hidden[w.Window] = !w.Visible
		case r, ok := <-requests:
			if !ok {
				return nil
			}
			ui.handle(r)
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := ui.line(line); quit {
				return nil
			}
		}
	}
}

func (ui *plainUI) html() bool { return ui.s.sup.Settings().Load().UseHTML }

func (ui *plainUI) printState(g state.GameState) {
	isHTML := ui.html()
	fmt.Fprintf(ui.out, "\n== %s ==\n%s\n", g.Title, plainText(g.MainText, isHTML))
	if !ui.hidden[state.WindowVars] && g.VarsText != "" {
		fmt.Fprintf(ui.out, "-- \n%s\n", plainText(g.VarsText, isHTML))
	}
	if !ui.hidden[state.WindowActions] {
		for i, it := range g.Actions {
			fmt.Fprintf(ui.out, "%d) %s\n", i+1, itemLabel(it, isHTML))
		}
	}
	if !ui.hidden[state.WindowObjects] && len(g.Objects) > 0 {
		fmt.Fprintln(ui.out, "objects:")
		for i, it := range g.Objects {
			fmt.Fprintf(ui.out, "  o%d %s\n", i+1, itemLabel(it, isHTML))
		}
	}
}

func (ui *plainUI) handle(r protocol.Request) {
	isHTML := ui.html()
	switch r := r.(type) {
	case protocol.ShowMessage:
		fmt.Fprintf(ui.out, "\n%s\n", plainText(r.Text, isHTML))
	case protocol.ShowPicture:
		fmt.Fprintf(ui.out, "[picture: %s]\n", r.Path)
	case protocol.ShowError:
		fmt.Fprintln(ui.out, errorStyle.Render(r.Message))
	case protocol.ShowMenu:
		for i, it := range r.Items {
			fmt.Fprintf(ui.out, "  [%d] %s\n", i+1, itemLabel(it, isHTML))
		}
		fmt.Fprint(ui.out, "choose (empty to cancel): ")
		ui.pending = r
	case protocol.ShowInput:
		fmt.Fprintf(ui.out, "%s ", plainText(r.Prompt, isHTML))
		ui.pending = r
	case protocol.PopupSaveRequested:
		fmt.Fprint(ui.out, "save to file: ")
		ui.pending = r
	case protocol.PopupLoadRequested:
		fmt.Fprint(ui.out, "load from file: ")
		ui.pending = r
	}
}

// line handles one input line and reports whether to quit.
func (ui *plainUI) line(line string) bool {
	if ui.pending != nil {
		r := ui.pending
		ui.pending = nil
		ui.answer(r, line)
		return false
	}

	c, err := parseCommand(line)
	if err != nil {
		fmt.Fprintln(ui.out, errorStyle.Render(err.Error()))
		return false
	}
	sup := ui.s.sup
	switch c.kind {
	case cmdAction:
		err = sup.SelectAction(c.index)
	case cmdObject:
		err = sup.SelectObject(c.index)
	case cmdInput:
		err = sup.SubmitInput(c.arg)
	case cmdExec:
		err = sup.ExecCode(c.arg)
	case cmdSave:
		err = ui.saveLoad(c.arg, true)
	case cmdLoad:
		err = ui.saveLoad(c.arg, false)
	case cmdRestart:
		err = sup.RestartGame()
	case cmdHelp:
		fmt.Fprintln(ui.out, helpStyle.Render(plainHelp))
	case cmdQuit:
		return true
	}
	if err != nil {
		fmt.Fprintln(ui.out, errorStyle.Render(err.Error()))
	}
	return false
}

func (ui *plainUI) answer(r protocol.Request, line string) {
	var err error
	switch r := r.(type) {
	case protocol.ShowMenu:
		idx := -1
		if n, convErr := strconv.Atoi(strings.TrimSpace(line)); convErr == nil && n >= 1 && n <= len(r.Items) {
			idx = n - 1
		}
		err = ui.s.sup.AnswerRequest(r.ID, protocol.IndexAnswer(idx))
	case protocol.ShowInput:
		err = ui.s.sup.AnswerRequest(r.ID, protocol.TextAnswer(line))
	case protocol.PopupSaveRequested:
		err = ui.saveLoad(line, true)
	case protocol.PopupLoadRequested:
		err = ui.saveLoad(line, false)
	}
	if err != nil {
		fmt.Fprintln(ui.out, errorStyle.Render(err.Error()))
	}
}

func (ui *plainUI) saveLoad(name string, save bool) error {
	if strings.TrimSpace(name) == "" {
		return nil
	}
	h, err := ui.s.saveHandle(name, save)
	if err != nil {
		return err
	}
	if save {
		return ui.s.sup.SaveGame(h)
	}
	return ui.s.sup.LoadGame(h)
}
