package extract

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/coolbeans/carta/pkg/roman"
)

// Tuple is the line format of a classified paragraph stream.
type Tuple struct {
	Class  string  `json:"classe"`
	Number *string `json:"numero"`
	Title  *string `json:"titulo"`
	Text   string  `json:"texto"`
}

// TupleFrom converts a classification to its line form.
func TupleFrom(c Classification) Tuple {
	t := Tuple{Class: c.Kind.Class(), Text: c.Text}
	if c.Kind == KindInvalid && c.Label != "" {
		t.Class = c.Label
	}
	if c.Number != "" {
		number := c.Number
		t.Number = &number
	}
	if c.Title != "" {
		title := c.Title
		t.Title = &title
	}
	return t
}

// Classification converts a tuple back into a classification. Ordinals are
// recomputed from the number.
func (t Tuple) Classification(index int) Classification {
	c := Classification{Index: index, Kind: ParseKind(t.Class), Text: t.Text}
	if c.Kind == KindInvalid {
		c.Label = t.Class
	}
	if t.Number != nil {
		c.Number = *t.Number
		c.Ordinal, c.InvalidNumeral = ordinalOf(c.Kind, c.Number)
	}
	if t.Title != nil {
		c.Title = *t.Title
	}
	return c
}

// WriteTuples writes classifications as JSON Lines.
func WriteTuples(w io.Writer, cs []Classification) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	for _, c := range cs {
		if err := enc.Encode(TupleFrom(c)); err != nil {
			return fmt.Errorf("encoding paragraph %d: %w", c.Index, err)
		}
	}
	return bw.Flush()
}

// ReadTuples reads a JSON Lines tuple stream. Blank lines are skipped.
func ReadTuples(r io.Reader) ([]Classification, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var out []Classification
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var t Tuple
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, t.Classification(len(out)))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading tuples: %w", err)
	}
	return out, nil
}

// ordinalOf reads the numeric value of an element number. invalid is set for
// Roman-numbered kinds whose number fails validation.
func ordinalOf(kind Kind, number string) (ordinal int, invalid bool) {
	switch kind {
	case KindTitle, KindChapter, KindSection, KindSubsection, KindItem:
		value, ok := roman.Parse(number)
		return value, !ok
	case KindArticle, KindParagraph:
		digits := strings.TrimRightFunc(number, func(r rune) bool { return r < '0' || r > '9' })
		value, _ := strconv.Atoi(digits)
		return value, false
	case KindSubItem:
		if len(number) == 1 && number[0] >= 'a' && number[0] <= 'z' {
			return int(number[0]-'a') + 1, false
		}
	}
	return 0, false
}
