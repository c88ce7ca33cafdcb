package storage

import (
	"bytes"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	xhtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// droppedElements never reach the output.
var droppedElements = map[atom.Atom]bool{
	atom.Script: true,
	atom.Style:  true,
	atom.Iframe: true,
}

// htmlPolicy strips event handlers, scripts and unsafe URLs from raw HTML
// before it is normalized. Comments survive so they can become placeholders.
var htmlPolicy = newHTMLPolicy()

func newHTMLPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class", "title").Globally()
	p.AllowAttrs("align", "colspan", "rowspan").OnElements("td", "th")
	p.AllowComments()
	return p
}

// normalizeHTML parses a raw HTML fragment and serializes it as well-formed
// markup: void elements self-close, attributes are quoted and unbalanced tags
// are closed. Comments become placeholders.
func normalizeHTML(raw string) (string, bool) {
	context := &xhtml.Node{Type: xhtml.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := xhtml.ParseFragment(strings.NewReader(htmlPolicy.Sanitize(raw)), context)
	if err != nil {
		return "", false
	}

	var buf bytes.Buffer
	for _, n := range nodes {
		switch {
		case n.Type == xhtml.CommentNode:
			n = placeholderNode(n.Data)
		case n.Type == xhtml.ElementNode && droppedElements[n.DataAtom]:
			continue
		default:
			sanitize(n)
		}
		if err := xhtml.Render(&buf, n); err != nil {
			return "", false
		}
	}
	return buf.String(), true
}

func sanitize(n *xhtml.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		switch {
		case c.Type == xhtml.CommentNode:
			n.InsertBefore(placeholderNode(c.Data), c)
			n.RemoveChild(c)
		case c.Type == xhtml.ElementNode && droppedElements[c.DataAtom]:
			n.RemoveChild(c)
		default:
			sanitize(c)
		}
		c = next
	}
}

func placeholderNode(text string) *xhtml.Node {
	n := &xhtml.Node{Type: xhtml.ElementNode, Data: "ac:placeholder"}
	n.AppendChild(&xhtml.Node{Type: xhtml.TextNode, Data: strings.TrimSpace(text)})
	return n
}
