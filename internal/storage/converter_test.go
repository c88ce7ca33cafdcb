package storage

import (
	"reflect"
	"strings"
	"testing"
)

func convert(t *testing.T, markdown string, links LinkResolver) string {
	t.Helper()
	out, err := NewConverter(Options{QuoteMacros: true}).Convert([]byte(markdown), links)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	return out
}

func assertContains(t *testing.T, out string, wants ...string) {
	t.Helper()
	for _, want := range wants {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}
}

func TestConvertBasicBlocks(t *testing.T) {
	tests := []struct {
		name     string
		markdown string
		want     []string
	}{
		{
			name:     "heading and emphasis",
			markdown: "# Title\n\nHello *world* and **all**",
			want:     []string{"<h1>Title</h1>", "<p>Hello <em>world</em> and <strong>all</strong></p>"},
		},
		{
			name:     "escaping",
			markdown: "a < b & c",
			want:     []string{"<p>a &lt; b &amp; c</p>"},
		},
		{
			name:     "lists",
			markdown: "- one\n- two\n\n3. three\n4. four\n",
			want:     []string{"<ul><li>one</li><li>two</li></ul>", `<ol start="3"><li>three</li><li>four</li></ol>`},
		},
		{
			name:     "thematic break and hard break",
			markdown: "a  \nb\n\n---\n",
			want:     []string{"a<br />b", "<hr />"},
		},
		{
			name:     "strikethrough",
			markdown: "~~old~~ new",
			want:     []string{`<span style="text-decoration: line-through;">old</span> new`},
		},
		{
			name:     "task list",
			markdown: "- [x] done\n- [ ] todo\n",
			want:     []string{"☑", "☐", "done", "todo"},
		},
		{
			name:     "table",
			markdown: "| a | b |\n|:--|--:|\n| 1 | 2 |\n",
			want: []string{
				"<table><tbody>",
				`<th style="text-align: left;">a</th>`,
				`<td style="text-align: right;">2</td>`,
				"</tbody></table>",
			},
		},
		{
			name:     "code span",
			markdown: "use `a<b>` here",
			want:     []string{"<code>a&lt;b&gt;</code>"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertContains(t, convert(t, tt.markdown, nil), tt.want...)
		})
	}
}

func TestConvertCodeMacro(t *testing.T) {
	out := convert(t, "```go\nfmt.Println(\"a < b\")\n```\n\n    indented ]]> code\n", nil)
	assertContains(t, out,
		`<ac:structured-macro ac:name="code">`,
		`<ac:parameter ac:name="theme">Midnight</ac:parameter>`,
		`<ac:parameter ac:name="linenumbers">true</ac:parameter>`,
		`<ac:parameter ac:name="language">go</ac:parameter>`,
		`<![CDATA[fmt.Println("a < b")]]>`,
		`<ac:parameter ac:name="language">none</ac:parameter>`,
		`<![CDATA[indented ]]]]><![CDATA[> code]]>`,
	)
}

func TestConvertCodeTheme(t *testing.T) {
	out, err := NewConverter(Options{CodeTheme: "Eclipse"}).Convert([]byte("```\nx\n```\n"), nil)
	if err != nil {
		t.Fatal(err)
	}
	assertContains(t, out, `<ac:parameter ac:name="theme">Eclipse</ac:parameter>`)
}

func TestConvertQuoteMacros(t *testing.T) {
	tests := []struct {
		name     string
		markdown string
		macro    string
		body     string
	}{
		{"note", "> Note: be careful\n", "note", "<p>Be careful</p>"},
		{"bold warning", "> **Warning:** hot stuff\n", "warning", "<p>Hot stuff</p>"},
		{"plain quote", "> just saying\n", "info", "<p>just saying</p>"},
		{"github alert", "> [!TIP]\n> use it\n", "tip", "<p>Use it</p>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := convert(t, tt.markdown, nil)
			assertContains(t, out, `<ac:structured-macro ac:name="`+tt.macro+`"><ac:rich-text-body>`, tt.body)
			if strings.Contains(out, "<blockquote>") {
				t.Errorf("quote not converted: %s", out)
			}
		})
	}

	out, err := NewConverter(Options{QuoteMacros: false}).Convert([]byte("> Note: raw\n"), nil)
	if err != nil {
		t.Fatal(err)
	}
	assertContains(t, out, "<blockquote><p>Note: raw</p></blockquote>")
}

func TestConvertCalloutMarkers(t *testing.T) {
	out := convert(t, "~? Heads up ?~\n\n~! Careful !~\n", nil)
	assertContains(t, out,
		`<ac:structured-macro ac:name="info"><ac:rich-text-body><p>Heads up</p></ac:rich-text-body></ac:structured-macro>`,
		`<ac:structured-macro ac:name="note"><ac:rich-text-body><p>Careful</p></ac:rich-text-body></ac:structured-macro>`,
	)

	out = convert(t, "~% first\n\nsecond %~\n\nafter\n", nil)
	assertContains(t, out,
		`<ac:structured-macro ac:name="warning"><ac:rich-text-body><p>first</p><p>second</p></ac:rich-text-body></ac:structured-macro>`,
		"<p>after</p>",
	)

	// An unmatched marker is left as text.
	out = convert(t, "~? never closed\n", nil)
	assertContains(t, out, "<p>~? never closed</p>")
}

func TestConvertComments(t *testing.T) {
	out := convert(t, "<!-- START doctoc generated TOC -->\n- [A](#a)\n<!-- END doctoc generated TOC -->\n\n# A\n\n<!-- hidden note -->\n", nil)
	assertContains(t, out, `<ac:structured-macro ac:name="toc">`, "<ac:placeholder>hidden note</ac:placeholder>", "<h1>A</h1>")
	if strings.Contains(out, "doctoc") {
		t.Errorf("doctoc block leaked: %s", out)
	}
}

func TestConvertKeepsDoctocInsideCodeBlocks(t *testing.T) {
	tests := map[string]string{
		"backticks": "```markdown\n<!-- START doctoc -->\n- [A](#a)\n<!-- END doctoc -->\n```\n",
		"tildes":    "~~~~\n<!-- START doctoc -->\n```\n<!-- END doctoc -->\n~~~~\n",
		"unclosed":  "```\n<!-- START doctoc -->\n<!-- END doctoc -->\n",
	}
	for name, markdown := range tests {
		t.Run(name, func(t *testing.T) {
			out := convert(t, markdown, nil)
			assertContains(t, out, `ac:name="code"`, "<!-- START doctoc -->", "<!-- END doctoc -->")
			if strings.Contains(out, `ac:name="toc"`) || strings.Contains(out, "wikimigrate:toc") {
				t.Errorf("doctoc block inside code was replaced:\n%s", out)
			}
		})
	}

	out := convert(t, "```\ncode\n```\n\n<!-- START doctoc -->\n- [A](#a)\n<!-- END doctoc -->\n\n# A\n", nil)
	assertContains(t, out, `<ac:structured-macro ac:name="toc">`, "<h1>A</h1>")
}

func TestConvertRawHTML(t *testing.T) {
	out := convert(t, "<div class=\"box\">\n<br>\n<img src=\"a.png\">\n</div>\n\ntext <b>bold</b> <br> <foo> <i>open\n\nstray </b> end\n", nil)
	assertContains(t, out,
		`<div class="box">`,
		"<br/>",
		`<img src="a.png"/>`,
		"<b>bold</b>",
		"&lt;foo&gt;",
		"<i>open</i></p>",
		"<p>stray  end</p>",
	)
}

func TestConvertRawHTMLIsSanitized(t *testing.T) {
	out := convert(t, "<div onclick=\"steal()\">hi <a href=\"javascript:alert(1)\">x</a></div>\n", nil)
	assertContains(t, out, "<div>hi ")
	if strings.Contains(out, "onclick") || strings.Contains(out, "javascript:") {
		t.Fatalf("unsafe markup survived: %s", out)
	}
}

func TestConvertLinks(t *testing.T) {
	links := LinkResolverFunc(func(dest string) (string, bool) {
		if dest == "b-4.md" {
			return "https://wiki.example.com/pages/4", true
		}
		return "", false
	})

	markdown := "[B](b-4.md) [ext](https://example.com \"Example\") [missing](zzz-9.md) [sec](#setup) <me@example.com>\n\n## Setup\n"
	res, err := NewConverter(Options{}).Render([]byte(markdown), links)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	assertContains(t, res.Storage,
		`<a href="https://wiki.example.com/pages/4">B</a>`,
		`<a href="https://example.com" title="Example">ext</a>`,
		` missing `,
		`<ac:link ac:anchor="Setup"><ac:plain-text-link-body><![CDATA[sec]]></ac:plain-text-link-body></ac:link>`,
		`href="mailto:me@example.com"`,
	)
	if !reflect.DeepEqual(res.Unresolved, []string{"zzz-9.md"}) {
		t.Fatalf("unresolved = %v", res.Unresolved)
	}
}

func TestConvertImages(t *testing.T) {
	out := convert(t, "![logo](img/logo.png \"Logo\") ![remote](https://e.example.com/x.png)\n", nil)
	assertContains(t, out,
		`<ac:image ac:alt="logo" ac:title="Logo"><ri:attachment ri:filename="logo.png" /></ac:image>`,
		`<ac:image ac:alt="remote"><ri:url ri:value="https://e.example.com/x.png" /></ac:image>`,
	)
}

func TestConvertFootnotes(t *testing.T) {
	out := convert(t, "See[^1] and[^2].\n\n[^1]: https://example.com/ref\n[^2]: A longer note.\n", nil)
	assertContains(t, out,
		`<sup><a href="https://example.com/ref">1</a></sup>`,
		`<sup><ac:link ac:anchor="fn-2">`,
		`<ac:parameter ac:name="">fn-2</ac:parameter>`,
		"A longer note.",
	)
}

func TestConvertNeverEmpty(t *testing.T) {
	for _, markdown := range []string{
		"[ref]: https://example.com\n",
		"</div>\n",
	} {
		res, err := NewConverter(Options{}).Render([]byte(markdown), nil)
		if err != nil {
			t.Fatalf("Render(%q): %v", markdown, err)
		}
		if strings.TrimSpace(res.Storage) == "" {
			t.Fatalf("Render(%q) produced empty output", markdown)
		}
	}

	out := convert(t, "", nil)
	if out != "" {
		t.Fatalf("empty input produced %q", out)
	}
}

func TestHeadings(t *testing.T) {
	got := NewConverter(Options{}).Headings([]byte("# One\n\ntext\n\n## Two *x*\n\n```\n# not a heading\n```\n"))
	if want := []string{"One", "Two x"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Headings() = %v, want %v", got, want)
	}
}

func TestPendingBody(t *testing.T) {
	if got := PendingBody("wikimigrate:pending"); got != "<ac:placeholder>wikimigrate:pending</ac:placeholder>" {
		t.Fatalf("PendingBody() = %q", got)
	}
}
