// Package render turns ideas into presentation: HTML fragments for a page,
// markdown for the terminal.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/kokistudios/ideas/internal/idea"
)

const emptyListHTML = `<div class="idea-empty">No ideas yet. Post one above.</div>`

var cardTemplate = template.Must(template.New("idea").Parse(`
    <div class="idea-item" data-id="{{.ID}}">
      <div class="idea-body">
        <div class="idea-title">{{.Title}}</div>
        {{if .Note}}<div class="idea-note">{{.Note}}</div>{{end}}
        {{if .Created}}<div class="idea-meta">{{.Created}}</div>{{end}}
      </div>
      <div class="idea-actions">
        <button class="edit-idea" data-id="{{.ID}}" title="Edit">Edit</button>
        <button class="delete-idea" data-id="{{.ID}}" title="Delete">Delete</button>
      </div>
    </div>`))

type cardData struct {
	ID      string
	Title   string
	Note    template.HTML
	Created string
}

// HTMLCard renders one idea as an idea-item fragment. The note is emitted as
// markup; it is expected to have been sanitized when it was written.
func HTMLCard(it idea.Idea) (string, error) {
	var buf bytes.Buffer
	data := cardData{
		ID:      it.ID,
		Title:   it.Title,
		Note:    template.HTML(it.Note),
		Created: formatTime(it.Created),
	}
	if err := cardTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render idea %s: %w", it.ID, err)
	}
	return buf.String(), nil
}

// HTMLList renders ideas newest first, or the empty-board message.
func HTMLList(ideas []idea.Idea) (string, error) {
	if len(ideas) == 0 {
		return emptyListHTML, nil
	}
	var sb strings.Builder
	for _, it := range idea.SortNewestFirst(ideas) {
		card, err := HTMLCard(it)
		if err != nil {
			return "", err
		}
		sb.WriteString(card)
	}
	return sb.String(), nil
}

// Markdown renders ideas newest first as a markdown document for glamour.
func Markdown(ideas []idea.Idea) string {
	if len(ideas) == 0 {
		return "_No ideas yet. Post one with `ideas post`._\n"
	}
	var sb strings.Builder
	for i, it := range idea.SortNewestFirst(ideas) {
		if i > 0 {
			sb.WriteString("\n---\n\n")
		}
		sb.WriteString(MarkdownCard(it))
	}
	return sb.String()
}

// MarkdownCard renders one idea as markdown.
func MarkdownCard(it idea.Idea) string {
	var sb strings.Builder
	title := it.Title
	if title == "" {
		title = "(untitled)"
	}
	fmt.Fprintf(&sb, "## %s\n\n", title)
	if text := NoteMarkdown(it.Note); text != "" {
		sb.WriteString(text)
		sb.WriteString("\n\n")
	}
	meta := "`" + it.ID + "`"
	if ts := formatTime(it.Created); ts != "" {
		meta += " · " + ts
	}
	sb.WriteString("_" + meta + "_\n")
	return sb.String()
}

// NoteMarkdown flattens a note fragment to markdown-ish text: links become
// [text](href), images become ![alt](src) unless they are inline data, block
// elements become paragraph breaks.
func NoteMarkdown(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}
	div := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), div)
	if err != nil {
		return fragment
	}
	var sb strings.Builder
	for _, n := range nodes {
		writeText(&sb, n)
	}
	return collapseBlankLines(sb.String())
}

func writeText(sb *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		sb.WriteString(n.Data)
		return
	case html.ElementNode:
	default:
		return
	}

	switch n.DataAtom {
	case atom.Script, atom.Style:
		return
	case atom.Br:
		sb.WriteString("\n")
		return
	case atom.Img:
		src, alt := attr(n, "src"), attr(n, "alt")
		if alt == "" {
			alt = "image"
		}
		if strings.HasPrefix(src, "data:") || src == "" {
			fmt.Fprintf(sb, "[%s]", alt)
		} else {
			fmt.Fprintf(sb, "![%s](%s)", alt, src)
		}
		return
	case atom.A:
		var inner strings.Builder
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			writeText(&inner, c)
		}
		href := attr(n, "href")
		text := strings.TrimSpace(inner.String())
		switch {
		case href == "":
			sb.WriteString(text)
		case text == "" || text == href:
			fmt.Fprintf(sb, "<%s>", href)
		default:
			fmt.Fprintf(sb, "[%s](%s)", text, href)
		}
		return
	case atom.Li:
		sb.WriteString("\n- ")
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(sb, c)
	}

	switch n.DataAtom {
	case atom.P, atom.Div, atom.Ul, atom.Ol, atom.Blockquote, atom.Pre,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		sb.WriteString("\n\n")
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := 0
	for _, l := range lines {
		l = strings.TrimRight(l, " \t")
		if l == "" {
			blank++
			if blank > 1 {
				continue
			}
		} else {
			blank = 0
		}
		out = append(out, l)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04")
}
