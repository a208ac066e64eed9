package adapter

import (
	"strings"

	"golang.org/x/net/html"

	qspruntime "github.com/wippyai/qsp-runtime"
	"github.com/wippyai/qsp-runtime/state"
)

// normalizePath turns a script path into a game-relative path.
func normalizePath(p string) string {
	p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
	return strings.TrimPrefix(p, "./")
}

// srcOf returns the src attribute of the first <img> tag in text.
func srcOf(text string) (string, bool) {
	z := html.NewTokenizer(strings.NewReader(text))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return "", false
		case html.StartTagToken, html.SelfClosingTagToken:
			name, more := z.TagName()
			if string(name) != "img" {
				continue
			}
			for more {
				var key, val []byte
				key, val, more = z.TagAttr()
				if string(key) == "src" && len(val) > 0 {
					return string(val), true
				}
			}
		}
	}
}

// rewriteImages replaces relative image paths with handles, but only for
// files Storage confirms are readable. Objects may instead embed their image
// as an <img> tag in the text.
func (a *Adapter) rewriteImages(items []state.Item, inline bool) []state.Item {
	if len(items) == 0 {
		return nil
	}
	out := make([]state.Item, len(items))
	for i, it := range items {
		out[i] = it
		if inline && strings.Contains(strings.ToLower(it.Text), "<img") {
			if src, ok := srcOf(it.Text); ok {
				if h, ok := a.readableHandle(src); ok {
					out[i].Image = string(h)
				}
				continue
			}
		}
		if strings.TrimSpace(it.Image) != "" {
			if h, ok := a.readableHandle(it.Image); ok {
				out[i].Image = string(h)
			}
		}
	}
	return out
}

// resolveImage returns a handle for path when readable, else path itself.
func (a *Adapter) resolveImage(path string) string {
	if h, ok := a.readableHandle(path); ok {
		return string(h)
	}
	return path
}

func (a *Adapter) readableHandle(p string) (state.Handle, bool) {
	p = normalizePath(p)
	if p == "" || strings.Contains(p, "://") {
		return "", false
	}
	h, err := a.storage.Resolve(a.game.Dir, p, qspruntime.AccessRead, "")
	if err != nil || !a.storage.Readable(h) {
		return "", false
	}
	return h, true
}
