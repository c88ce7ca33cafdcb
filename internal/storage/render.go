package storage

import (
	"bufio"
	"bytes"
	"fmt"
	"path"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/yuin/goldmark/ast"
	east "github.com/yuin/goldmark/extension/ast"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/util"

	"github.com/aidanlsb/wikimigrate/internal/logging"
	"github.com/aidanlsb/wikimigrate/internal/paths"
	"github.com/aidanlsb/wikimigrate/internal/slugs"
)

type renderer struct {
	source    []byte
	links     LinkResolver
	opts      Options
	log       logging.Logger
	headings  []string
	footnotes map[int]string // footnote index -> URL for footnotes that are a bare link
	w         *bufio.Writer
	open      []string // inline elements opened by raw HTML
	result    *Result
}

// capture renders fn into a string instead of the output.
func (r *renderer) capture(fn func()) string {
	var buf bytes.Buffer
	prev := r.w
	r.w = bufio.NewWriter(&buf)
	fn()
	_ = r.w.Flush()
	r.w = prev
	return buf.String()
}

func (r *renderer) block(n ast.Node) {
	switch n := n.(type) {
	case *ast.Document:
		r.blocks(n.FirstChild())
	case *ast.Heading:
		fmt.Fprintf(r.w, "<h%d>", n.Level)
		r.inlines(n)
		fmt.Fprintf(r.w, "</h%d>", n.Level)
	case *ast.Paragraph:
		r.w.WriteString("<p>")
		r.inlines(n)
		r.w.WriteString("</p>")
	case *ast.TextBlock:
		r.inlines(n)
	case *ast.ThematicBreak:
		r.w.WriteString("<hr />")
	case *ast.FencedCodeBlock:
		r.w.WriteString(codeMacro(string(n.Language(r.source)), r.lines(n), r.opts.CodeTheme))
	case *ast.CodeBlock:
		r.w.WriteString(codeMacro("", r.lines(n), r.opts.CodeTheme))
	case *ast.Blockquote:
		r.blockquote(n)
	case *ast.List:
		r.list(n)
	case *ast.ListItem:
		r.w.WriteString("<li>")
		r.blocks(n.FirstChild())
		r.w.WriteString("</li>")
	case *ast.HTMLBlock:
		r.htmlBlock(n)
	case *east.Table:
		r.table(n)
	case *east.FootnoteList:
		r.footnoteList(n)
	default:
		r.fallback(n)
	}
}

// blocks renders from and its following siblings.
func (r *renderer) blocks(from ast.Node) {
	for c := from; c != nil; c = c.NextSibling() {
		if p, ok := c.(*ast.Paragraph); ok {
			if kind, ok := r.calloutStart(p); ok {
				if end := r.calloutEnd(p, kind); end != nil {
					r.callout(p, end, kind)
					c = end
					continue
				}
			}
		}
		r.block(c)
	}
}

var calloutMacros = map[byte]string{'?': "info", '!': "note", '%': "warning"}

func (r *renderer) calloutStart(p *ast.Paragraph) (byte, bool) {
	lines := p.Lines()
	if lines.Len() == 0 {
		return 0, false
	}
	seg := lines.At(0)
	first := bytes.TrimLeft(seg.Value(r.source), " \t")
	if !bytes.HasPrefix(first, []byte(openRune)) || len(first) <= len(openRune) {
		return 0, false
	}
	kind := first[len(openRune)]
	_, ok := calloutMacros[kind]
	return kind, ok
}

func (r *renderer) calloutEnd(start ast.Node, kind byte) ast.Node {
	suffix := []byte{kind}
	suffix = append(suffix, closeRune...)
	for n := start; n != nil; n = n.NextSibling() {
		p, ok := n.(*ast.Paragraph)
		if !ok || p.Lines().Len() == 0 {
			continue
		}
		seg := p.Lines().At(p.Lines().Len() - 1)
		last := bytes.TrimRight(seg.Value(r.source), " \t\r\n")
		if bytes.HasSuffix(last, suffix) {
			return n
		}
	}
	return nil
}

func (r *renderer) callout(start, end ast.Node, kind byte) {
	r.w.WriteString(macroOpen(calloutMacros[kind]))
	for n := start; n != nil; n = n.NextSibling() {
		p, isPara := n.(*ast.Paragraph)
		if isPara && (n == start || n == end) {
			body := strings.TrimSpace(r.capture(func() { r.inlines(p) }))
			if n == start {
				body = strings.TrimSpace(strings.TrimPrefix(body, openRune+string(kind)))
			}
			if n == end {
				body = strings.TrimSpace(strings.TrimSuffix(body, string(kind)+closeRune))
			}
			if body != "" {
				r.w.WriteString("<p>" + body + "</p>")
			}
		} else {
			r.block(n)
		}
		if n == end {
			break
		}
	}
	r.w.WriteString(macroClose)
}

var quoteLead = regexp.MustCompile(`(?i)^\s*(?:<(?:strong|em)>\s*)?(?:\[!(note|tip|important|warning|caution)\]|(note|warning)\s*(?:</(?:strong|em)>)?\s*:)\s*(?:</(?:strong|em)>)?\s*`)

var alertMacros = map[string]string{
	"note":      "info",
	"tip":       "tip",
	"important": "note",
	"warning":   "note",
	"caution":   "warning",
}

// quoteKind classifies a block quote by the rendered text of its first
// paragraph and returns that text without the lead word.
func quoteKind(lead string) (macro, rest string) {
	m := quoteLead.FindStringSubmatchIndex(lead)
	if m == nil {
		return "info", lead
	}
	switch {
	case m[2] >= 0:
		macro = alertMacros[strings.ToLower(lead[m[2]:m[3]])]
	default:
		macro = strings.ToLower(lead[m[4]:m[5]])
	}
	rest = lead[m[1]:]
	if c, size := utf8.DecodeRuneInString(rest); unicode.IsLower(c) {
		rest = string(unicode.ToUpper(c)) + rest[size:]
	}
	return macro, rest
}

func (r *renderer) blockquote(n *ast.Blockquote) {
	if !r.opts.QuoteMacros {
		r.w.WriteString("<blockquote>")
		r.blocks(n.FirstChild())
		r.w.WriteString("</blockquote>")
		return
	}

	first, ok := n.FirstChild().(*ast.Paragraph)
	if !ok {
		r.w.WriteString(macroOpen("info"))
		r.blocks(n.FirstChild())
		r.w.WriteString(macroClose)
		return
	}

	lead := r.capture(func() { r.inlines(first) })
	macro, rest := quoteKind(lead)
	r.w.WriteString(macroOpen(macro))
	if strings.TrimSpace(rest) != "" {
		r.w.WriteString("<p>" + rest + "</p>")
	}
	r.blocks(first.NextSibling())
	r.w.WriteString(macroClose)
}

func (r *renderer) list(n *ast.List) {
	tag := "ul"
	if n.IsOrdered() {
		tag = "ol"
	}
	if n.IsOrdered() && n.Start > 1 {
		fmt.Fprintf(r.w, `<ol start="%d">`, n.Start)
	} else {
		r.w.WriteString("<" + tag + ">")
	}
	r.blocks(n.FirstChild())
	r.w.WriteString("</" + tag + ">")
}

func (r *renderer) table(n *east.Table) {
	r.w.WriteString("<table><tbody>")
	for row := n.FirstChild(); row != nil; row = row.NextSibling() {
		tag := "td"
		if row.Kind() == east.KindTableHeader {
			tag = "th"
		}
		r.w.WriteString("<tr>")
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			if tc, ok := cell.(*east.TableCell); ok && tc.Alignment != east.AlignNone {
				fmt.Fprintf(r.w, `<%s style="text-align: %s;">`, tag, tc.Alignment.String())
			} else {
				r.w.WriteString("<" + tag + ">")
			}
			r.inlines(cell)
			r.w.WriteString("</" + tag + ">")
		}
		r.w.WriteString("</tr>")
	}
	r.w.WriteString("</tbody></table>")
}

func (r *renderer) htmlBlock(n *ast.HTMLBlock) {
	var raw bytes.Buffer
	raw.Write(r.lines(n))
	if n.HasClosure() {
		raw.Write(n.ClosureLine.Value(r.source))
	}
	trimmed := strings.TrimSpace(raw.String())

	switch {
	case trimmed == "":
		return
	case trimmed == tocComment:
		r.w.WriteString(tocMacro)
		return
	case isSingleComment(trimmed):
		r.w.WriteString(placeholder(commentText(trimmed)))
		return
	}

	if out, ok := normalizeHTML(raw.String()); ok && strings.TrimSpace(out) != "" {
		r.w.WriteString(out)
		return
	}
	r.result.Fallbacks++
	r.log.Debug("raw html block kept as text")
	r.w.WriteString("<p>" + escapeString(trimmed) + "</p>")
}

func (r *renderer) footnoteList(n *east.FootnoteList) {
	r.w.WriteString("<hr /><ol>")
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		fn, ok := c.(*east.Footnote)
		if !ok {
			r.block(c)
			continue
		}
		r.w.WriteString("<li>")
		r.w.WriteString(anchorMacro(footnoteAnchor(fn.Index)))
		r.blocks(fn.FirstChild())
		r.w.WriteString("</li>")
	}
	r.w.WriteString("</ol>")
}

func (r *renderer) fallback(n ast.Node) {
	r.result.Fallbacks++
	r.log.Debug("unsupported block rendered as text", "kind", n.Kind().String())
	var text string
	if n.Type() == ast.TypeBlock && n.Lines().Len() > 0 {
		text = string(r.lines(n))
	} else {
		text = plainText(n, r.source)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	r.w.WriteString("<p>" + escapeString(text) + "</p>")
}

// inlines renders the inline children of n, closing any element raw HTML
// left open.
func (r *renderer) inlines(n ast.Node) {
	saved := r.open
	r.open = nil
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		r.inline(c)
	}
	for i := len(r.open) - 1; i >= 0; i-- {
		r.w.WriteString("</" + r.open[i] + ">")
	}
	r.open = saved
}

func (r *renderer) inline(n ast.Node) {
	switch n := n.(type) {
	case *ast.Text:
		r.text(n.Segment.Value(r.source), n.IsRaw())
		switch {
		case n.HardLineBreak():
			r.w.WriteString("<br />")
		case n.SoftLineBreak():
			r.w.WriteByte('\n')
		}
	case *ast.String:
		r.text(n.Value, n.IsRaw() || n.IsCode())
	case *ast.CodeSpan:
		r.w.WriteString("<code>")
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			var value []byte
			switch c := c.(type) {
			case *ast.Text:
				value = c.Segment.Value(r.source)
			case *ast.String:
				value = c.Value
			}
			r.w.Write(util.EscapeHTML(bytes.ReplaceAll(value, []byte("\n"), []byte(" "))))
		}
		r.w.WriteString("</code>")
	case *ast.Emphasis:
		tag := "em"
		if n.Level >= 2 {
			tag = "strong"
		}
		r.w.WriteString("<" + tag + ">")
		r.inlines(n)
		r.w.WriteString("</" + tag + ">")
	case *east.Strikethrough:
		r.w.WriteString(`<span style="text-decoration: line-through;">`)
		r.inlines(n)
		r.w.WriteString("</span>")
	case *ast.Link:
		r.link(n)
	case *ast.AutoLink:
		r.autoLink(n)
	case *ast.Image:
		r.image(n)
	case *ast.RawHTML:
		r.rawInline(n)
	case *east.TaskCheckBox:
		if n.IsChecked {
			r.w.WriteString("☑")
		} else {
			r.w.WriteString("☐")
		}
	case *east.FootnoteLink:
		r.footnoteRef(n)
	case *east.FootnoteBacklink:
	default:
		r.result.Fallbacks++
		r.log.Debug("unsupported inline rendered as text", "kind", n.Kind().String())
		r.w.WriteString(escapeString(plainText(n, r.source)))
	}
}

func (r *renderer) text(value []byte, raw bool) {
	if raw {
		gmhtml.DefaultWriter.RawWrite(r.w, value)
		return
	}
	gmhtml.DefaultWriter.Write(r.w, value)
}

func (r *renderer) link(n *ast.Link) {
	dest := strings.TrimSpace(string(n.Destination))
	title := string(n.Title)

	switch {
	case strings.HasPrefix(dest, "#"):
		_, fragment := paths.SplitLink(dest)
		if heading, ok := slugs.MatchHeading(fragment, r.headings); ok {
			r.w.WriteString(pageAnchorLink(heading, plainText(n, r.source)))
			return
		}
		r.anchor(dest, title, n)
	case dest == "" || paths.IsExternal(dest):
		r.anchor(dest, title, n)
	default:
		if r.links != nil {
			if href, ok := r.links.ResolveLink(dest); ok {
				r.anchor(href, title, n)
				return
			}
		}
		r.result.Unresolved = append(r.result.Unresolved, dest)
		r.log.Debug("unresolved link", "dest", dest)
		r.inlines(n)
	}
}

func (r *renderer) anchor(href, title string, children ast.Node) {
	r.w.WriteString(`<a href="`)
	r.w.Write(util.EscapeHTML(util.URLEscape([]byte(href), true)))
	r.w.WriteByte('"')
	if title != "" {
		r.w.WriteString(` title="` + escapeString(title) + `"`)
	}
	r.w.WriteByte('>')
	r.inlines(children)
	r.w.WriteString("</a>")
}

func (r *renderer) autoLink(n *ast.AutoLink) {
	url := string(n.URL(r.source))
	if n.AutoLinkType == ast.AutoLinkEmail && !strings.HasPrefix(strings.ToLower(url), "mailto:") {
		url = "mailto:" + url
	}
	r.w.WriteString(`<a href="`)
	r.w.Write(util.EscapeHTML(util.URLEscape([]byte(url), false)))
	r.w.WriteString(`">`)
	r.w.Write(util.EscapeHTML(n.Label(r.source)))
	r.w.WriteString("</a>")
}

func (r *renderer) image(n *ast.Image) {
	dest := strings.TrimSpace(string(n.Destination))
	alt := plainText(n, r.source)
	if dest == "" {
		r.w.WriteString(escapeString(alt))
		return
	}

	r.w.WriteString(`<ac:image ac:alt="` + escapeString(alt) + `"`)
	if len(n.Title) > 0 {
		r.w.WriteString(` ac:title="` + escapeString(string(n.Title)) + `"`)
	}
	r.w.WriteByte('>')
	if paths.IsExternal(dest) {
		r.w.WriteString(`<ri:url ri:value="` + escapeString(dest) + `" />`)
	} else {
		file, _ := paths.SplitLink(dest)
		r.w.WriteString(`<ri:attachment ri:filename="` + escapeString(path.Base(file)) + `" />`)
	}
	r.w.WriteString("</ac:image>")
}

func (r *renderer) footnoteRef(n *east.FootnoteLink) {
	label := fmt.Sprint(n.Index)
	if url, ok := r.footnotes[n.Index]; ok {
		r.w.WriteString(`<sup><a href="`)
		r.w.Write(util.EscapeHTML(util.URLEscape([]byte(url), true)))
		r.w.WriteString(`">` + label + `</a></sup>`)
		return
	}
	r.w.WriteString("<sup>" + pageAnchorLink(footnoteAnchor(n.Index), label) + "</sup>")
}

var tagPattern = regexp.MustCompile(`^<(/?)([A-Za-z][A-Za-z0-9]*)(?:\s[^>]*?)?\s*(/?)>$`)

// inlineElements may be opened and closed by raw inline HTML.
var inlineElements = map[string]bool{
	"b": true, "i": true, "u": true, "s": true, "em": true, "strong": true,
	"sub": true, "sup": true, "code": true, "kbd": true, "span": true,
	"mark": true, "del": true, "ins": true, "small": true,
}

var voidElements = map[string]bool{"br": true, "hr": true, "img": true, "wbr": true}

func (r *renderer) rawInline(n *ast.RawHTML) {
	var buf bytes.Buffer
	for i := 0; i < n.Segments.Len(); i++ {
		seg := n.Segments.At(i)
		buf.Write(seg.Value(r.source))
	}
	raw := strings.TrimSpace(buf.String())

	if isSingleComment(raw) {
		if raw == tocComment {
			r.w.WriteString(tocMacro)
		} else {
			r.w.WriteString(placeholder(commentText(raw)))
		}
		return
	}

	m := tagPattern.FindStringSubmatch(raw)
	if m == nil {
		r.w.WriteString(escapeString(raw))
		return
	}
	name := strings.ToLower(m[2])
	closing := m[1] == "/"

	switch {
	case voidElements[name] && !closing:
		if out, ok := normalizeHTML(raw); ok && out != "" {
			r.w.WriteString(out)
			return
		}
	case inlineElements[name] && closing:
		for i := len(r.open) - 1; i >= 0; i-- {
			if r.open[i] != name {
				continue
			}
			for j := len(r.open) - 1; j >= i; j-- {
				r.w.WriteString("</" + r.open[j] + ">")
			}
			r.open = r.open[:i]
			return
		}
		// A closing tag without an opener is dropped.
		return
	case inlineElements[name] && m[3] == "":
		r.w.WriteString("<" + name + ">")
		r.open = append(r.open, name)
		return
	}
	r.w.WriteString(escapeString(raw))
}

func (r *renderer) lines(n ast.Node) []byte {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(r.source))
	}
	return buf.Bytes()
}

func isSingleComment(s string) bool {
	return strings.HasPrefix(s, "<!--") && strings.HasSuffix(s, "-->") && strings.Count(s, "<!--") == 1
}

func commentText(s string) string {
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(s, "<!--"), "-->"))
}

// plainText returns the text content of n.
func plainText(n ast.Node, source []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch c := c.(type) {
		case *ast.Text:
			b.Write(c.Segment.Value(source))
			if c.SoftLineBreak() || c.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(c.Value)
		case *ast.AutoLink:
			b.Write(c.Label(source))
			return ast.WalkSkipChildren, nil
		case *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}

// footnoteTargets finds footnotes whose only content is an external link.
func footnoteTargets(doc ast.Node, source []byte) map[int]string {
	targets := make(map[int]string)
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		fn, ok := n.(*east.Footnote)
		if !entering || !ok {
			return ast.WalkContinue, nil
		}
		if url := soleLink(fn, source); url != "" {
			targets[fn.Index] = url
		}
		return ast.WalkSkipChildren, nil
	})
	return targets
}

func soleLink(fn *east.Footnote, source []byte) string {
	if fn.ChildCount() != 1 {
		return ""
	}
	var url string
	for c := fn.FirstChild().FirstChild(); c != nil; c = c.NextSibling() {
		switch c := c.(type) {
		case *east.FootnoteBacklink:
		case *ast.Text:
			if len(bytes.TrimSpace(c.Segment.Value(source))) > 0 {
				return ""
			}
		case *ast.Link:
			if url != "" {
				return ""
			}
			url = string(c.Destination)
		case *ast.AutoLink:
			if url != "" {
				return ""
			}
			url = string(c.URL(source))
		default:
			return ""
		}
	}
	if !paths.IsExternal(url) {
		return ""
	}
	return url
}
