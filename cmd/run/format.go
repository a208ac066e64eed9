package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/net/html"

	qspruntime "github.com/wippyai/qsp-runtime"
	"github.com/wippyai/qsp-runtime/state"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// plainText renders engine text for a terminal. HTML is reduced to its
// text: br and closing p tags become line breaks, script and style bodies
// are dropped.
func plainText(s string, isHTML bool) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	if !isHTML {
		return s
	}

	var b strings.Builder
	skip := 0
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "br":
				b.WriteByte('\n')
			case "script", "style":
				if tt == html.StartTagToken {
					skip++
				}
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "p":
				b.WriteByte('\n')
			case "script", "style":
				if skip > 0 {
					skip--
				}
			}
		}
	}
}

// colorOf converts a 0xAARRGGBB colour to a lipgloss colour. Zero means
// unset.
func colorOf(c state.Color) (lipgloss.Color, bool) {
	if c == 0 {
		return "", false
	}
	u := uint32(c)
	r, g, b := (u>>16)&0xFF, (u>>8)&0xFF, u&0xFF
	return lipgloss.Color(fmt.Sprintf("#%02X%02X%02X", r, g, b)), true
}

// textStyle applies merged settings to body text.
func textStyle(s state.Settings) lipgloss.Style {
	st := lipgloss.NewStyle()
	if c, ok := colorOf(s.TextColor); ok {
		st = st.Foreground(c)
	}
	if c, ok := colorOf(s.BackColor); ok {
		st = st.Background(c)
	}
	return st
}

func linkStyle(s state.Settings) lipgloss.Style {
	st := lipgloss.NewStyle().Underline(true)
	if c, ok := colorOf(s.LinkColor); ok {
		st = st.Foreground(c)
	}
	return st
}

func itemLabel(it state.Item, isHTML bool) string {
	label := plainText(it.Text, isHTML)
	if it.Image != "" {
		label += " [img]"
	}
	return label
}

func resourceAccess(write bool) qspruntime.Access {
	if write {
		return qspruntime.AccessWrite
	}
	return qspruntime.AccessRead
}
