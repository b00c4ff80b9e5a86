package idea

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var urlPattern = regexp.MustCompile(`(?i)(?:https?://|www\.)[^\s<]+`)

var schemePattern = regexp.MustCompile(`(?i)^https?://`)

var seedEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
)

// EscapeSeedNote escapes plain seed text for use as a note fragment.
func EscapeSeedNote(text string) string {
	return seedEscaper.Replace(text)
}

var notePolicy = func() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowDataURIImages()
	p.AddTargetBlankToFullyQualifiedLinks(true)
	return p
}()

// SanitizeNote strips anything from a note fragment that is not safe to
// render: scripts, event handlers, javascript: URLs. Inline data: images
// survive.
func SanitizeNote(fragment string) string {
	return notePolicy.Sanitize(fragment)
}

// PrepareNote is the submit pipeline for user-authored notes.
func PrepareNote(fragment string) string {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return ""
	}
	return SanitizeNote(LinkifyHTML(fragment))
}

// LinkifyHTML wraps bare http(s):// and www. URLs in the text of fragment
// with anchors. Text already inside a link is left alone.
func LinkifyHTML(fragment string) string {
	root, err := parseFragment(fragment)
	if err != nil {
		return fragment
	}

	var texts []*html.Node
	collectText(root, false, &texts)
	changed := false
	for _, tn := range texts {
		if linkifyText(tn) {
			changed = true
		}
	}
	if !changed {
		return fragment
	}
	return renderChildren(root)
}

// parseFragment parses fragment in a <div> context and returns the div with
// the parsed nodes as its children.
func parseFragment(fragment string) (*html.Node, error) {
	div := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), div)
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		div.AppendChild(n)
	}
	return div, nil
}

func renderChildren(n *html.Node) string {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return ""
		}
	}
	return buf.String()
}

func collectText(n *html.Node, inAnchor bool, out *[]*html.Node) {
	switch {
	case n.Type == html.TextNode:
		if !inAnchor {
			*out = append(*out, n)
		}
		return
	case n.Type == html.ElementNode && n.DataAtom == atom.A:
		inAnchor = true
	case n.Type == html.ElementNode && (n.DataAtom == atom.Script || n.DataAtom == atom.Style):
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, inAnchor, out)
	}
}

// linkifyText replaces tn with text and anchor nodes. It reports whether any
// URL was found.
func linkifyText(tn *html.Node) bool {
	val := tn.Data
	locs := urlPattern.FindAllStringIndex(val, -1)
	if len(locs) == 0 || tn.Parent == nil {
		return false
	}

	parent := tn.Parent
	last := 0
	for _, loc := range locs {
		if loc[0] > last {
			parent.InsertBefore(&html.Node{Type: html.TextNode, Data: val[last:loc[0]]}, tn)
		}
		url := val[loc[0]:loc[1]]
		href := url
		if !schemePattern.MatchString(url) {
			href = "http://" + url
		}
		a := &html.Node{
			Type:     html.ElementNode,
			Data:     "a",
			DataAtom: atom.A,
			Attr: []html.Attribute{
				{Key: "href", Val: href},
				{Key: "target", Val: "_blank"},
				{Key: "rel", Val: "noopener"},
			},
		}
		a.AppendChild(&html.Node{Type: html.TextNode, Data: url})
		parent.InsertBefore(a, tn)
		last = loc[1]
	}
	if last < len(val) {
		parent.InsertBefore(&html.Node{Type: html.TextNode, Data: val[last:]}, tn)
	}
	parent.RemoveChild(tn)
	return true
}
