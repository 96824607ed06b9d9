package extract

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/coolbeans/carta/pkg/pattern"
	"github.com/coolbeans/carta/pkg/roman"
)

// Paragraph is one normalized paragraph of the source document.
type Paragraph struct {
	Text string
	// Preamble is set by the markup reader for paragraphs of the
	// introductory block.
	Preamble bool
}

// Classification is the label the classifier gives one paragraph.
type Classification struct {
	Index int
	Kind  Kind
	// Label holds the original class label when Kind is KindInvalid.
	Label  string
	Number string
	// Ordinal is the numeric value of Number (Roman, digits or letter
	// position), or 0 when there is none.
	Ordinal int
	Title   string
	Text    string
	// InvalidNumeral is set when a Roman number failed validation and
	// Number holds the raw matched string.
	InvalidNumeral bool
}

type classRule struct {
	kind Kind
	rule *pattern.CompiledRule
}

// Classifier labels paragraphs using a compiled rule table. It keeps no
// state between calls and may be shared.
type Classifier struct {
	rules    []classRule
	blockers []*pattern.CompiledRule
	logger   *slog.Logger
}

// NewClassifier builds a classifier over rs. A nil rs selects the built-in
// rules; a nil logger discards log output. Every rule class must name an
// element kind or the transitional banner.
func NewClassifier(rs *pattern.RuleSet, logger *slog.Logger) (*Classifier, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if rs == nil {
		var err error
		if rs, err = pattern.Default(); err != nil {
			return nil, err
		}
	}

	c := &Classifier{logger: logger}
	for i, rule := range rs.Rules() {
		kind := ParseKind(rule.Class())
		if kind != KindTransitional && !kind.IsElement() {
			return nil, fmt.Errorf("rule %d: class %q is not an element kind", i, rule.Class())
		}
		c.rules = append(c.rules, classRule{kind: kind, rule: rule})
		if rule.BlocksTitle() {
			c.blockers = append(c.blockers, rule)
		}
	}
	return c, nil
}

// Classify labels p. next is the following paragraph, or nil at the end of
// the document; it is only read to find the title of a structural header.
// The first matching rule wins.
func (c *Classifier) Classify(p Paragraph, next *Paragraph) Classification {
	out := Classification{Kind: KindContinuation, Text: p.Text}
	if p.Preamble {
		out.Kind = KindPreamble
		return out
	}

	for _, cr := range c.rules {
		number, suffix, ok := cr.rule.Extract(p.Text)
		if !ok {
			continue
		}
		out.Kind = cr.kind
		c.readNumber(&out, cr.rule, number, suffix)
		if cr.rule.TitleFollows() {
			out.Title = c.titleFrom(next)
		}
		return out
	}
	return out
}

// ClassifyAll labels a whole document in order.
func (c *Classifier) ClassifyAll(paragraphs []Paragraph) []Classification {
	out := make([]Classification, len(paragraphs))
	for i := range paragraphs {
		var next *Paragraph
		if i+1 < len(paragraphs) {
			next = &paragraphs[i+1]
		}
		out[i] = c.Classify(paragraphs[i], next)
		out[i].Index = i
	}
	return out
}

func (c *Classifier) readNumber(out *Classification, rule *pattern.CompiledRule, number, suffix string) {
	number = rule.Correct(number)

	switch rule.NumberStyle() {
	case pattern.NumberRoman:
		out.Number = number
		if value, ok := roman.Parse(number); ok {
			out.Ordinal = value
		} else {
			out.InvalidNumeral = true
			c.logger.Debug("invalid roman numeral", "class", rule.Class(), "numeral", number)
		}

	case pattern.NumberAlphanumeric:
		out.Number = number + strings.ToUpper(suffix)
		if value, err := strconv.Atoi(number); err == nil {
			out.Ordinal = value
		}

	case pattern.NumberLetter:
		out.Number = number
		if len(number) == 1 && number[0] >= 'a' && number[0] <= 'z' {
			out.Ordinal = int(number[0]-'a') + 1
		}

	case pattern.NumberLiteral:
		out.Number = rule.Literal()
	}
}

// titleFrom returns the text of next when it can serve as a header title.
func (c *Classifier) titleFrom(next *Paragraph) string {
	if next == nil || next.Preamble {
		return ""
	}
	text := strings.TrimSpace(next.Text)
	if text == "" {
		return ""
	}
	for _, rule := range c.blockers {
		if rule.Match(text) {
			return ""
		}
	}
	return text
}
