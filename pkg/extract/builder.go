package extract

import (
	"context"
	"fmt"
	"log/slog"
)

// DefaultProgressEvery is how many elements are built between progress logs.
const DefaultProgressEvery = 50

// branch tracks the open element at each rank of one root.
type branch struct {
	root  NodeID
	slots [maxRank + 1]NodeID
}

func newBranch(root NodeID) *branch {
	b := &branch{root: root}
	b.reset()
	return b
}

func (b *branch) reset() {
	for i := range b.slots {
		b.slots[i] = noNode
	}
}

func (b *branch) closeFrom(rank int) {
	for i := rank; i <= maxRank; i++ {
		b.slots[i] = noNode
	}
}

// parentFor returns the deepest open element above rank, or the root.
func (b *branch) parentFor(rank int) NodeID {
	for i := rank - 1; i >= 0; i-- {
		if b.slots[i] != noNode {
			return b.slots[i]
		}
	}
	return b.root
}

// deepest returns the deepest open element, or the root.
func (b *branch) deepest() NodeID {
	return b.parentFor(maxRank + 1)
}

type siblingKey struct {
	parent NodeID
	kind   Kind
}

// Builder places classified paragraphs into a Tree. Paragraphs must be added
// in document order. A Builder builds a single tree and is not safe for
// concurrent use.
type Builder struct {
	tree         *Tree
	main         *branch
	transitional *branch
	active       *branch
	lastOrdinal  map[siblingKey]int

	report        *Report
	logger        *slog.Logger
	progressEvery int
	built         int
	finished      bool
}

// NewBuilder creates a builder. A nil logger discards log output.
func NewBuilder(logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	b := &Builder{
		tree:          newTree(),
		main:          newBranch(MainRoot),
		transitional:  newBranch(TransitionalRoot),
		lastOrdinal:   make(map[siblingKey]int),
		report:        newReport(),
		logger:        logger,
		progressEvery: DefaultProgressEvery,
	}
	b.active = b.main
	return b
}

// SetProgressEvery sets how many elements are built between progress logs.
// Zero or less disables progress logging.
func (b *Builder) SetProgressEvery(n int) {
	b.progressEvery = n
}

// Add places one classified paragraph. It panics if called after Finish.
func (b *Builder) Add(c Classification) {
	if b.finished {
		panic("extract: Builder.Add called after Finish")
	}
	b.report.Paragraphs++

	if c.Kind == KindInvalid {
		b.issue(SeverityWarning, CodeUnknownKind, c, fmt.Sprintf("unrecognized class label %q, kept as content", c.Label))
		c.Kind = KindContinuation
	}

	switch {
	case c.Kind == KindContinuation:
		b.addContent(c)
	case c.Kind == KindPreamble:
		b.addPreamble(c)
	case c.Kind == KindTransitional:
		b.openTransitional(c)
	case c.Kind == KindTitle && b.active == b.transitional:
		b.logger.Info("title after transitional provisions, returning to main branch", "index", c.Index, "numero", c.Number)
		b.active = b.main
		b.addElement(c)
	case c.Kind.Rank() < KindArticle.Rank() && b.active == b.transitional:
		b.issue(SeverityWarning, CodeAmbiguousClassification, c, "structural header inside transitional provisions, kept as content")
		b.addContent(c)
	default:
		b.addElement(c)
	}
}

// AddAll places classified paragraphs in order.
func (b *Builder) AddAll(cs []Classification) {
	for _, c := range cs {
		b.Add(c)
	}
}

// Finish ends the build and returns the finished tree. It returns
// ErrEmptyInput when no paragraph was added.
func (b *Builder) Finish() (*Tree, error) {
	b.finished = true
	if b.report.Paragraphs == 0 {
		return nil, ErrEmptyInput
	}
	return b.tree, nil
}

// Report returns the build report.
func (b *Builder) Report() *Report {
	return b.report
}

func (b *Builder) addPreamble(c Classification) {
	b.active = b.main
	b.main.reset()
	if c.Text == "" {
		return
	}
	b.tree.appendContent(MainRoot, ContentEntry{Kind: KindPreamble, Text: c.Text})
	b.report.Elements[KindPreamble]++
}

func (b *Builder) openTransitional(c Classification) {
	b.active = b.transitional
	b.transitional.reset()
	b.report.Elements[KindTransitional]++
	b.logger.Info("transitional provisions start", "index", c.Index)
	if c.Text != "" {
		b.tree.appendContent(TransitionalRoot, ContentEntry{Kind: KindTransitional, Text: c.Text})
	}
}

func (b *Builder) addElement(c Classification) {
	br := b.active
	rank := c.Kind.Rank()

	br.closeFrom(rank)
	parent := br.parentFor(rank)

	if reason, dup := b.conflict(parent, c); dup {
		b.issue(SeverityWarning, CodeDuplicateElement, c, reason)
		b.report.Dropped++
		return
	}

	b.checkOrder(parent, c)

	id := b.tree.add(parent, Element{
		Kind:    c.Kind,
		Number:  c.Number,
		Ordinal: c.Ordinal,
		Title:   c.Title,
	})
	b.tree.appendContent(id, ContentEntry{Kind: c.Kind, Number: c.Number, Text: c.Text})
	br.slots[rank] = id

	if c.InvalidNumeral {
		b.issue(SeverityWarning, CodeInvalidNumeral, c, fmt.Sprintf("invalid roman numeral %q kept as written", c.Number))
	}

	b.report.Elements[c.Kind]++
	b.built++
	if b.progressEvery > 0 && b.built%b.progressEvery == 0 {
		b.logger.Info("building tree", "elements", b.built, "paragraphs", b.report.Paragraphs)
	}
}

// conflict reports whether c cannot be inserted under parent.
func (b *Builder) conflict(parent NodeID, c Classification) (string, bool) {
	if existing, ok := b.tree.Child(parent, c.Kind, c.Number); ok {
		return fmt.Sprintf("duplicate of element at node %d, later occurrence discarded", existing), true
	}
	if c.Kind != KindParagraph {
		return "", false
	}
	if c.Number == singleParagraph && b.tree.hasChildKind(parent, KindParagraph) {
		return "sole paragraph after numbered paragraphs, discarded", true
	}
	if _, ok := b.tree.Child(parent, KindParagraph, singleParagraph); ok {
		return "numbered paragraph after sole paragraph, discarded", true
	}
	return "", false
}

// singleParagraph is the number of an article's sole paragraph.
const singleParagraph = "único"

func (b *Builder) checkOrder(parent NodeID, c Classification) {
	key := siblingKey{parent, c.Kind}
	last, seen := b.lastOrdinal[key]
	if c.Ordinal <= 0 {
		return
	}
	if seen && c.Ordinal < last {
		b.issue(SeverityInfo, CodeOutOfOrder, c, fmt.Sprintf("numbered %d after %d, kept in document order", c.Ordinal, last))
	}
	b.lastOrdinal[key] = c.Ordinal
}

func (b *Builder) addContent(c Classification) {
	if c.Text == "" {
		return
	}
	owner := b.active.deepest()
	e := &b.tree.nodes[owner]
	b.tree.appendContent(owner, ContentEntry{Kind: e.Kind, Number: e.Number, Text: c.Text})
	b.report.Continuations++
	b.logger.Debug("content attached", "index", c.Index, "classe", e.Kind.Class(), "numero", e.Number)
}

func (b *Builder) issue(severity Severity, code ErrorCode, c Classification, message string) {
	class := c.Kind.Class()
	if c.Kind == KindInvalid && c.Label != "" {
		class = c.Label
	}
	issue := Issue{
		Code:     code,
		Severity: severity,
		Index:    c.Index,
		Kind:     c.Kind,
		Class:    class,
		Number:   c.Number,
		Message:  message,
	}
	b.report.Issues = append(b.report.Issues, issue)

	level := slog.LevelWarn
	if severity == SeverityInfo {
		level = slog.LevelInfo
	}
	b.logger.Log(context.Background(), level, message, "code", string(code), "index", c.Index, "classe", class, "numero", c.Number)
}
