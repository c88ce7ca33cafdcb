// Package storage converts Markdown pages to Confluence storage format, the
// XHTML dialect (with ac:/ri: elements) accepted by the content REST API.
package storage

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"

	"github.com/aidanlsb/wikimigrate/internal/logging"
)

// DefaultCodeTheme is the theme of generated code macros.
const DefaultCodeTheme = "Midnight"

// LinkResolver maps a link destination found in a page to the URL of the
// remote page it refers to.
type LinkResolver interface {
	ResolveLink(dest string) (href string, ok bool)
}

// LinkResolverFunc adapts a function to LinkResolver.
type LinkResolverFunc func(dest string) (string, bool)

// ResolveLink calls f(dest).
func (f LinkResolverFunc) ResolveLink(dest string) (string, bool) { return f(dest) }

// Options configures a Converter.
type Options struct {
	// QuoteMacros renders block quotes as info, note or warning macros.
	QuoteMacros bool

	// CodeTheme is the theme parameter of code macros.
	CodeTheme string

	Logger logging.Logger
}

// Result is a converted page.
type Result struct {
	Storage string

	// Unresolved lists local link destinations the resolver did not know.
	Unresolved []string

	// Fallbacks counts constructs rendered as escaped source text.
	Fallbacks int
}

// Converter turns Markdown into storage format. It is safe for sequential
// reuse across pages.
type Converter struct {
	md   goldmark.Markdown
	opts Options
	log  logging.Logger
}

// NewConverter returns a converter for GitHub flavoured Markdown with
// footnotes.
func NewConverter(opts Options) *Converter {
	if opts.CodeTheme == "" {
		opts.CodeTheme = DefaultCodeTheme
	}
	return &Converter{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM, extension.Footnote),
		),
		opts: opts,
		log:  logging.OrNoOp(opts.Logger),
	}
}

// Convert renders markdown as storage format. Local links are rewritten
// through links, which may be nil.
func (c *Converter) Convert(markdown []byte, links LinkResolver) (string, error) {
	res, err := c.Render(markdown, links)
	if err != nil {
		return "", err
	}
	return res.Storage, nil
}

// Render is Convert with details about unresolved links and fallbacks.
// Non-blank input always produces non-blank output.
func (c *Converter) Render(markdown []byte, links LinkResolver) (res *Result, err error) {
	res = &Result{}
	source := preprocess(markdown)
	doc := c.md.Parser().Parse(text.NewReader(source))

	defer func() {
		if rec := recover(); rec != nil {
			c.log.Warn("conversion failed, using escaped source", "panic", fmt.Sprint(rec))
			res = &Result{Storage: escapedParagraphs(markdown), Fallbacks: 1}
			err = nil
		}
	}()

	var buf bytes.Buffer
	r := &renderer{
		source:    source,
		links:     links,
		opts:      c.opts,
		log:       c.log,
		headings:  headingTexts(doc, source),
		footnotes: footnoteTargets(doc, source),
		w:         bufio.NewWriter(&buf),
		result:    res,
	}
	r.block(doc)
	if err := r.w.Flush(); err != nil {
		return nil, err
	}

	res.Storage = restoreMarkers(buf.String())
	if strings.TrimSpace(res.Storage) == "" && len(bytes.TrimSpace(markdown)) > 0 {
		res.Storage = escapedParagraphs(markdown)
		res.Fallbacks++
	}
	return res, nil
}

// Headings returns the text of every heading in markdown, in order.
func (c *Converter) Headings(markdown []byte) []string {
	source := preprocess(markdown)
	return headingTexts(c.md.Parser().Parse(text.NewReader(source)), source)
}

func headingTexts(doc ast.Node, source []byte) []string {
	var out []string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if h, ok := n.(*ast.Heading); ok && entering {
			out = append(out, strings.TrimSpace(restoreMarkers(plainText(h, source))))
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return out
}

var (
	doctocPattern = regexp.MustCompile(`(?s)<!--\s*START doctoc.*?END doctoc[^>]*?-->`)
	openMarker    = regexp.MustCompile(`(?m)^([ \t]*)~([?!%])`)
	closeMarker   = regexp.MustCompile(`(?m)([?!%])~([ \t]*)$`)
	blankLines    = regexp.MustCompile(`\n\s*\n`)
	fenceLine     = regexp.MustCompile("^ {0,3}(`{3,}|~{3,})(.*)$")
)

const (
	tocComment = "<!-- wikimigrate:toc -->"

	// Callout markers ("~? ... ?~") are swapped for private-use runes before
	// parsing so the tildes are not read as strikethrough.
	openRune  = "\uE000"
	closeRune = "\uE001"
)

var markerRestorer = strings.NewReplacer(openRune, "~", closeRune, "~")

func preprocess(markdown []byte) []byte {
	out := outsideFences(markdown, func(b []byte) []byte {
		return doctocPattern.ReplaceAll(b, []byte(tocComment))
	})
	out = openMarker.ReplaceAll(out, []byte("${1}"+openRune+"${2}"))
	out = closeMarker.ReplaceAll(out, []byte("${1}"+closeRune+"${2}"))
	return out
}

// outsideFences applies fn to the runs of lines that are not part of a
// fenced code block and copies fenced lines unchanged. An unclosed fence
// runs to the end of the document.
func outsideFences(markdown []byte, fn func([]byte) []byte) []byte {
	var out, chunk []byte
	var fence string
	for len(markdown) > 0 {
		line := markdown
		if i := bytes.IndexByte(markdown, '\n'); i >= 0 {
			line = markdown[:i+1]
		}
		markdown = markdown[len(line):]

		m := fenceLine.FindSubmatch(bytes.TrimRight(line, "\r\n"))
		switch {
		case fence == "" && m != nil:
			out = append(out, fn(chunk)...)
			chunk = nil
			fence = string(m[1])
			out = append(out, line...)
		case fence != "":
			out = append(out, line...)
			if m != nil && m[1][0] == fence[0] && len(m[1]) >= len(fence) && len(bytes.TrimSpace(m[2])) == 0 {
				fence = ""
			}
		default:
			chunk = append(chunk, line...)
		}
	}
	return append(out, fn(chunk)...)
}

func restoreMarkers(s string) string {
	return markerRestorer.Replace(s)
}

// escapedParagraphs renders text as escaped paragraphs, one per blank-line
// separated block.
func escapedParagraphs(markdown []byte) string {
	var b strings.Builder
	for _, para := range blankLines.Split(strings.TrimSpace(string(markdown)), -1) {
		if strings.TrimSpace(para) == "" {
			continue
		}
		b.WriteString("<p>")
		b.WriteString(escapeString(para))
		b.WriteString("</p>")
	}
	return b.String()
}
