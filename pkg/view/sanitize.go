// Package view turns downloader API payloads into an escaped view model.
//
// Dynamic text only enters the view model as Text, which can only be built by
// Sanitize. Templates are html/template, so every Text is escaped once more on output.
package view

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Text is sanitized, markup-free text.
type Text struct {
	s string
}

// Sanitize drops every tag, comment and script/style body from s and keeps the text.
// Entities are decoded; html/template re-encodes them on output.
func Sanitize(s string) Text {
	if s == "" {
		return Text{}
	}
	if !strings.ContainsAny(s, "<&") {
		return Text{s: strings.TrimSpace(s)}
	}

	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	skip := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			// io.EOF or a malformed tail; both end the text.
			return Text{s: strings.TrimSpace(b.String())}
		case html.StartTagToken:
			name, _ := z.TagName()
			if isRawText(atom.Lookup(name)) {
				skip++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if isRawText(atom.Lookup(name)) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}

func isRawText(a atom.Atom) bool {
	switch a {
	case atom.Script, atom.Style, atom.Iframe, atom.Noscript, atom.Template, atom.Textarea, atom.Title, atom.Xmp, atom.Noembed, atom.Noframes:
		return true
	}
	return false
}

func (t Text) String() string { return t.s }

func (t Text) Empty() bool { return t.s == "" }
