// Package markup reads the published HTML of the constitution into an
// ordered stream of paragraphs.
//
// Revoked text is published struck through; those elements are removed
// before any text is read. The preamble is recognized by layout: it is the
// block set in the first Arial font element, not by anything in its wording.
package markup

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/coolbeans/carta/pkg/extract"
)

// Document is the paragraph stream read from one HTML page.
type Document struct {
	Paragraphs []extract.Paragraph
	// Struck is the number of struck-through elements removed.
	Struck int
	// PreambleParagraphs is the number of paragraphs flagged as preamble.
	PreambleParagraphs int
}

// Reader converts HTML into paragraphs.
type Reader struct {
	logger *slog.Logger
	// PreambleFace is the font face that marks the preamble block.
	PreambleFace string
}

// NewReader creates a Reader. A nil logger discards log output.
func NewReader(logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Reader{logger: logger, PreambleFace: "Arial"}
}

// Read parses an HTML document. The input must already be decoded to UTF-8.
func (r *Reader) Read(in io.Reader) (*Document, error) {
	root, err := html.Parse(in)
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}

	doc := &Document{}
	doc.Struck = removeStruck(root)
	r.logger.Debug("removed struck-through elements", "count", doc.Struck)

	preamble := findFont(root, r.PreambleFace)
	if preamble == nil {
		r.logger.Warn("no preamble block found", "face", r.PreambleFace)
	}

	w := &walker{preamble: preamble, doc: doc}
	w.walk(root)

	if w.paragraphs == 0 {
		r.logger.Warn("document has no <p> elements")
	}
	r.logger.Info("read HTML document",
		"paragraphs", len(doc.Paragraphs),
		"preamble_paragraphs", doc.PreambleParagraphs,
		"struck", doc.Struck,
	)
	return doc, nil
}

// ReadString parses an HTML document held in a string.
func (r *Reader) ReadString(s string) (*Document, error) {
	return r.Read(strings.NewReader(s))
}

type walker struct {
	preamble     *html.Node
	preambleDone bool
	paragraphs   int
	doc          *Document
}

func (w *walker) walk(n *html.Node) {
	if n.Type == html.ElementNode {
		switch {
		case n.DataAtom == atom.Script || n.DataAtom == atom.Style || n.DataAtom == atom.Head:
			return

		case n.DataAtom == atom.P:
			w.paragraphs++
			w.emit(textOf(n), w.inPreamble(n))
			return

		case n == w.preamble && !containsParagraph(n):
			// A preamble set outside any paragraph becomes one paragraph.
			w.emit(textOf(n), true)
			w.preambleDone = true
			return
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}
	if n == w.preamble {
		w.preambleDone = true
	}
}

// inPreamble reports whether paragraph p is inside, or contains, the
// preamble font element.
func (w *walker) inPreamble(p *html.Node) bool {
	if w.preamble == nil || w.preambleDone {
		return false
	}
	for a := p.Parent; a != nil; a = a.Parent {
		if a == w.preamble {
			return true
		}
	}
	if contains(p, w.preamble) {
		w.preambleDone = true
		return true
	}
	return false
}

func (w *walker) emit(text string, preamble bool) {
	text = extract.Normalize(text)
	if text == "" {
		return
	}
	w.doc.Paragraphs = append(w.doc.Paragraphs, extract.Paragraph{Text: text, Preamble: preamble})
	if preamble {
		w.doc.PreambleParagraphs++
	}
}

// removeStruck detaches every strike, s and del element and returns how
// many were removed.
func removeStruck(root *html.Node) int {
	var struck []*html.Node
	var find func(*html.Node)
	find = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Strike, atom.S, atom.Del:
				struck = append(struck, n)
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			find(c)
		}
	}
	find(root)

	for _, n := range struck {
		n.Parent.RemoveChild(n)
	}
	return len(struck)
}

// findFont returns the first font element with the given face.
func findFont(n *html.Node, face string) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == atom.Font && strings.EqualFold(attr(n, "face"), face) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFont(c, face); found != nil {
			return found
		}
	}
	return nil
}

func containsParagraph(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.P {
			return true
		}
		if containsParagraph(c) {
			return true
		}
	}
	return false
}

func contains(n, target *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c == target || contains(c, target) {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// textOf returns the text of n with line breaks turned into spaces.
func textOf(n *html.Node) string {
	var sb strings.Builder
	var f func(*html.Node)
	f = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(n.Data)
		case html.ElementNode:
			if n.DataAtom == atom.Script || n.DataAtom == atom.Style {
				return
			}
			if n.DataAtom == atom.Br {
				sb.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)
	return sb.String()
}
