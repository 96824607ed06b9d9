// Package extract turns the ordered paragraphs of a constitutional text into
// a nested document tree.
//
// Extraction runs in two stages over the same ordered stream. A Classifier
// labels each paragraph with an element Kind using a compiled rule table, and
// a Builder places the labelled paragraphs into a two-branch Tree: the main
// branch (preamble and titles) and the transitional branch (ADCT). Serialize
// projects the finished tree into the nested mapping that is written to disk.
package extract

// Kind is the structural kind of an element.
type Kind uint8

const (
	// KindContinuation is a paragraph that opens no element; its text is
	// attached to the deepest open element.
	KindContinuation Kind = iota
	KindPreamble
	KindTitle
	KindChapter
	KindSection
	KindSubsection
	KindArticle
	KindParagraph
	KindItem
	KindSubItem
	// KindTransitional opens the transitional provisions branch.
	KindTransitional
	// KindInvalid marks a label that names no known kind.
	KindInvalid
)

// maxRank is the rank of the deepest kind.
const maxRank = 8

var kindClasses = [...]string{
	KindContinuation: "texto",
	KindPreamble:     "preambulo",
	KindTitle:        "titulo",
	KindChapter:      "capitulo",
	KindSection:      "secao",
	KindSubsection:   "subsecao",
	KindArticle:      "artigo",
	KindParagraph:    "paragrafo",
	KindItem:         "inciso",
	KindSubItem:      "alinea",
	KindTransitional: "adct",
	KindInvalid:      "invalido",
}

var kindGroups = [...]string{
	KindTitle:      "titulos",
	KindChapter:    "capitulos",
	KindSection:    "secoes",
	KindSubsection: "subsecoes",
	KindArticle:    "artigos",
	KindParagraph:  "paragrafos",
	KindItem:       "incisos",
	KindSubItem:    "alineas",
}

// String returns the class label of the kind.
func (k Kind) String() string {
	if int(k) < len(kindClasses) {
		return kindClasses[k]
	}
	return kindClasses[KindInvalid]
}

// Class returns the label used for the kind in content entries and tuples.
func (k Kind) Class() string { return k.String() }

// Group returns the plural key under which children of this kind are
// serialized, or "" for kinds that are never children.
func (k Kind) Group() string {
	if int(k) < len(kindGroups) {
		return kindGroups[k]
	}
	return ""
}

// Rank returns the position of the kind in the structural order.
// Preamble is 0 and SubItem is 8; Transitional shares rank 1 with Title.
// Continuation and Invalid have rank -1.
func (k Kind) Rank() int {
	switch k {
	case KindPreamble:
		return 0
	case KindTitle, KindTransitional:
		return 1
	case KindChapter:
		return 2
	case KindSection:
		return 3
	case KindSubsection:
		return 4
	case KindArticle:
		return 5
	case KindParagraph:
		return 6
	case KindItem:
		return 7
	case KindSubItem:
		return 8
	default:
		return -1
	}
}

// IsStructural reports whether the kind is a titled division
// (title, chapter, section or subsection).
func (k Kind) IsStructural() bool {
	switch k {
	case KindTitle, KindChapter, KindSection, KindSubsection:
		return true
	default:
		return false
	}
}

// IsElement reports whether the kind opens a node in the tree.
func (k Kind) IsElement() bool {
	return k.Rank() >= 1 && k != KindTransitional
}

// ParseKind returns the kind named by a class label. Unknown labels yield
// KindInvalid.
func ParseKind(class string) Kind {
	switch class {
	case "", "texto":
		return KindContinuation
	case "preambulo":
		return KindPreamble
	case "titulo":
		return KindTitle
	case "capitulo":
		return KindChapter
	case "secao":
		return KindSection
	case "subsecao":
		return KindSubsection
	case "artigo":
		return KindArticle
	case "paragrafo":
		return KindParagraph
	case "inciso":
		return KindItem
	case "alinea":
		return KindSubItem
	case "adct":
		return KindTransitional
	default:
		return KindInvalid
	}
}
