package extract

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// textReplacer unifies typography found in the published text.
var textReplacer = strings.NewReplacer(
	"\u200b", "", // zero-width space
	"\u200c", "",
	"\u200d", "",
	"\ufeff", "",
	"\u00a0", " ", // no-break space
	"\u2007", " ",
	"\u202f", " ",
	"\u2013", "-", // en dash
	"\u2014", "-", // em dash
	"\u2212", "-",
	"\u201c", `"`,
	"\u201d", `"`,
	"\u2018", "'",
	"\u2019", "'",
)

// Normalize prepares paragraph text for classification: canonical Unicode
// composition, invisible characters removed, dashes and quotes unified and
// whitespace collapsed.
func Normalize(text string) string {
	text = norm.NFC.String(text)
	text = textReplacer.Replace(text)
	return strings.Join(strings.Fields(text), " ")
}
