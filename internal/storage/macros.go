package storage

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark/util"
)

const macroClose = "</ac:rich-text-body></ac:structured-macro>"

func macroOpen(name string) string {
	return `<ac:structured-macro ac:name="` + name + `"><ac:rich-text-body>`
}

// tocMacro replaces doctoc generated tables of contents.
const tocMacro = `<p><ac:structured-macro ac:name="toc">` +
	`<ac:parameter ac:name="printable">true</ac:parameter>` +
	`<ac:parameter ac:name="style">disc</ac:parameter>` +
	`<ac:parameter ac:name="maxLevel">7</ac:parameter>` +
	`<ac:parameter ac:name="minLevel">1</ac:parameter>` +
	`<ac:parameter ac:name="type">list</ac:parameter>` +
	`<ac:parameter ac:name="outline">clear</ac:parameter>` +
	`<ac:parameter ac:name="include">.*</ac:parameter>` +
	`</ac:structured-macro></p>`

// ChildrenMacro lists the child pages of the page it is placed on.
const ChildrenMacro = `<ac:structured-macro ac:name="children"><ac:parameter ac:name="all">false</ac:parameter></ac:structured-macro>`

func codeMacro(language string, code []byte, theme string) string {
	language = strings.TrimSpace(language)
	if language == "" {
		language = "none"
	}
	var b strings.Builder
	b.WriteString(`<ac:structured-macro ac:name="code">`)
	b.WriteString(`<ac:parameter ac:name="theme">` + escapeString(theme) + `</ac:parameter>`)
	b.WriteString(`<ac:parameter ac:name="linenumbers">true</ac:parameter>`)
	b.WriteString(`<ac:parameter ac:name="language">` + escapeString(language) + `</ac:parameter>`)
	b.WriteString(`<ac:plain-text-body>` + cdata(strings.TrimSuffix(string(code), "\n")) + `</ac:plain-text-body>`)
	b.WriteString(`</ac:structured-macro>`)
	return b.String()
}

func placeholder(text string) string {
	return "<ac:placeholder>" + escapeString(text) + "</ac:placeholder>"
}

func anchorMacro(name string) string {
	return `<ac:structured-macro ac:name="anchor"><ac:parameter ac:name="">` + escapeString(name) + `</ac:parameter></ac:structured-macro>`
}

// pageAnchorLink links to an anchor or heading on the same page.
func pageAnchorLink(anchor, text string) string {
	if strings.TrimSpace(text) == "" {
		text = anchor
	}
	return `<ac:link ac:anchor="` + escapeString(anchor) + `"><ac:plain-text-link-body>` +
		cdata(text) + `</ac:plain-text-link-body></ac:link>`
}

func footnoteAnchor(index int) string {
	return fmt.Sprintf("fn-%d", index)
}

// cdata wraps s in a CDATA section, splitting any "]]>" it contains.
func cdata(s string) string {
	return "<![CDATA[" + strings.ReplaceAll(s, "]]>", "]]]]><![CDATA[>") + "]]>"
}

func escapeString(s string) string {
	return string(util.EscapeHTML([]byte(s)))
}

// PendingBody is the placeholder body of a page created before its content
// is rendered. Pages still carrying it are re-rendered on the next run.
func PendingBody(marker string) string {
	return placeholder(marker)
}
