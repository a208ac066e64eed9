package protocol

import "github.com/wippyai/qsp-runtime/state"

// AnswerKind tags the populated field of an Answer.
type AnswerKind uint8

const (
	AnswerNone AnswerKind = iota
	AnswerText
	AnswerIndex
	AnswerPlaying
	AnswerFile
)

func (k AnswerKind) String() string {
	switch k {
	case AnswerText:
		return "text"
	case AnswerIndex:
		return "index"
	case AnswerPlaying:
		return "playing"
	case AnswerFile:
		return "file"
	default:
		return "none"
	}
}

// Answer is a reply to a blocking request. Exactly one field is meaningful,
// selected by Kind.
type Answer struct {
	text    string
	file    state.Handle
	index   int
	kind    AnswerKind
	playing bool
}

func TextAnswer(text string) Answer { return Answer{kind: AnswerText, text: text} }

func IndexAnswer(i int) Answer { return Answer{kind: AnswerIndex, index: i} }

func PlayingAnswer(playing bool) Answer { return Answer{kind: AnswerPlaying, playing: playing} }

func FileAnswer(h state.Handle) Answer { return Answer{kind: AnswerFile, file: h} }

func (a Answer) Kind() AnswerKind { return a.kind }

func (a Answer) Text() (string, bool) {
	return a.text, a.kind == AnswerText
}

func (a Answer) Index() (int, bool) {
	return a.index, a.kind == AnswerIndex
}

func (a Answer) Playing() (bool, bool) {
	return a.playing, a.kind == AnswerPlaying
}

func (a Answer) File() (state.Handle, bool) {
	return a.file, a.kind == AnswerFile
}
