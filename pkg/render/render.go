// Package render produces reading versions of a document tree: Markdown
// with one heading level per structural division, and HTML converted from
// that Markdown.
package render

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/parser"

	"github.com/coolbeans/carta/pkg/extract"
	"github.com/coolbeans/carta/pkg/pattern"
)

const (
	preambleHeading     = "Preâmbulo"
	transitionalHeading = "Ato das Disposições Constitucionais Transitórias"
)

// headingLevels maps structural kinds to Markdown heading levels. The
// document title is level 1.
var headingLevels = map[extract.Kind]int{
	extract.KindTitle:        2,
	extract.KindChapter:      3,
	extract.KindSection:      4,
	extract.KindSubsection:   5,
	extract.KindTransitional: 2,
}

// Renderer converts trees to Markdown and HTML.
type Renderer struct {
	rules *pattern.RuleSet
	title string
	md    goldmark.Markdown
}

// NewRenderer creates a Renderer that finds article and paragraph lead-ins
// with rs. A nil rs uses the default rule set, whose name becomes the
// document title.
func NewRenderer(rs *pattern.RuleSet) (*Renderer, error) {
	if rs == nil {
		var err error
		if rs, err = pattern.Default(); err != nil {
			return nil, err
		}
	}
	return &Renderer{
		rules: rs,
		title: rs.Name(),
		md:    goldmark.New(goldmark.WithParserOptions(parser.WithAutoHeadingID())),
	}, nil
}

// SetTitle replaces the document title.
func (r *Renderer) SetTitle(title string) {
	r.title = title
}

// Markdown renders the tree.
func (r *Renderer) Markdown(t *extract.Tree) []byte {
	var b bytes.Buffer
	if r.title != "" {
		fmt.Fprintf(&b, "# %s\n\n", escape(r.title))
	}

	t.Walk(func(id extract.NodeID, depth int) bool {
		r.writeNode(&b, t.Node(id))
		return true
	})
	return b.Bytes()
}

// HTML renders the tree as a standalone HTML document.
func (r *Renderer) HTML(t *extract.Tree) ([]byte, error) {
	var body bytes.Buffer
	if err := r.md.Convert(r.Markdown(t), &body); err != nil {
		return nil, fmt.Errorf("converting markdown: %w", err)
	}

	var b bytes.Buffer
	b.WriteString("<!DOCTYPE html>\n<html lang=\"pt-BR\">\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&b, "<title>%s</title>\n", html.EscapeString(r.title))
	b.WriteString("</head>\n<body>\n")
	b.Write(body.Bytes())
	b.WriteString("</body>\n</html>\n")
	return b.Bytes(), nil
}

func (r *Renderer) writeNode(b *bytes.Buffer, e extract.Element) {
	switch e.Kind {
	case extract.KindPreamble:
		if len(e.Content) == 0 {
			return
		}
		fmt.Fprintf(b, "## %s\n\n", preambleHeading)
		writeParagraphs(b, e.Content)

	case extract.KindTransitional:
		if len(e.Content) == 0 && len(e.Children) == 0 {
			return
		}
		heading := transitionalHeading
		content := e.Content
		if len(content) > 0 {
			heading, content = content[0].Text, content[1:]
		}
		fmt.Fprintf(b, "## %s\n\n", escape(heading))
		writeParagraphs(b, content)

	case extract.KindTitle, extract.KindChapter, extract.KindSection, extract.KindSubsection:
		heading, rest := headingOf(e)
		fmt.Fprintf(b, "%s %s\n\n", strings.Repeat("#", headingLevels[e.Kind]), escape(heading))
		writeParagraphs(b, rest)

	case extract.KindArticle, extract.KindParagraph:
		if len(e.Content) == 0 {
			return
		}
		first := e.Content[0].Text
		if lead := r.lead(e.Kind, first); lead != "" {
			fmt.Fprintf(b, "**%s**%s\n\n", escape(lead), escape(first[len(lead):]))
		} else {
			fmt.Fprintf(b, "%s\n\n", escape(first))
		}
		writeParagraphs(b, e.Content[1:])

	default:
		writeParagraphs(b, e.Content)
	}
}

// lead finds the lead-in of text with the first rule of kind that matches,
// extended over a directly following period.
func (r *Renderer) lead(kind extract.Kind, text string) string {
	for _, rule := range r.rules.Rules() {
		if rule.Class() != kind.Class() {
			continue
		}
		lead := strings.TrimRight(rule.Lead(text), " ")
		if lead == "" {
			continue
		}
		if strings.HasPrefix(text[len(lead):], ".") {
			lead += "."
		}
		return lead
	}
	return ""
}

// headingOf joins the header line and the division title, and returns the
// remaining content without the title paragraph.
func headingOf(e extract.Element) (string, []extract.ContentEntry) {
	if len(e.Content) == 0 {
		return strings.ToUpper(e.Kind.Class()) + " " + e.Number, nil
	}
	heading := e.Content[0].Text
	rest := e.Content[1:]
	if e.Title == "" {
		return heading, rest
	}
	heading += " - " + e.Title
	for i, entry := range rest {
		if entry.Text == e.Title {
			trimmed := make([]extract.ContentEntry, 0, len(rest)-1)
			trimmed = append(trimmed, rest[:i]...)
			return heading, append(trimmed, rest[i+1:]...)
		}
	}
	return heading, rest
}

func writeParagraphs(b *bytes.Buffer, content []extract.ContentEntry) {
	for _, entry := range content {
		fmt.Fprintf(b, "%s\n\n", escape(entry.Text))
	}
}

var inlineEscaper = strings.NewReplacer(
	`\`, `\\`,
	"`", "\\`",
	"*", `\*`,
	"_", `\_`,
	"[", `\[`,
	"]", `\]`,
	"<", `\<`,
	">", `\>`,
	"|", `\|`,
)

// escape makes text literal in Markdown, including markers that only
// matter at the start of a block.
func escape(text string) string {
	text = inlineEscaper.Replace(text)
	if text == "" {
		return text
	}
	switch text[0] {
	case '#', '+', '-', '=':
		return `\` + text
	}
	digits := 0
	for digits < len(text) && text[digits] >= '0' && text[digits] <= '9' {
		digits++
	}
	if digits > 0 && digits < len(text) && (text[digits] == '.' || text[digits] == ')') {
		return text[:digits] + `\` + text[digits:]
	}
	return text
}
