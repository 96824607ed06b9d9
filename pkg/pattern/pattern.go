// Package pattern provides the rule tables used to classify paragraphs of a
// legal text into structural elements.
//
// Rule tables are authored in YAML and compiled once into an immutable
// RuleSet. A compiled RuleSet is safe for concurrent use and is never
// modified; reloading a rule file always produces a new RuleSet.
package pattern

import (
	"fmt"
	"regexp"
)

// NumberStyle describes how the number of an element is read from a match.
type NumberStyle string

const (
	// NumberNone means the element carries no number.
	NumberNone NumberStyle = "none"
	// NumberRoman reads a Roman numeral from the number group.
	NumberRoman NumberStyle = "roman"
	// NumberAlphanumeric reads digits from the number group, followed by an
	// optional uppercase letter from the suffix group ("5", "103A").
	NumberAlphanumeric NumberStyle = "alphanumeric"
	// NumberLetter reads a single lowercase letter.
	NumberLetter NumberStyle = "letter"
	// NumberLiteral uses the rule's Literal value ("único").
	NumberLiteral NumberStyle = "literal"
)

// RuleFile is the YAML representation of a classification rule table.
type RuleFile struct {
	Name         string `yaml:"name" json:"name"`
	Version      string `yaml:"version" json:"version"`
	Jurisdiction string `yaml:"jurisdiction" json:"jurisdiction"`
	FormatID     string `yaml:"format_id" json:"format_id"`

	// Rules are tried in order; the first match wins.
	Rules []Rule `yaml:"rules" json:"rules"`
}

// Rule maps a regular expression to an element class.
type Rule struct {
	// Class is the element class label (titulo, capitulo, artigo, ...).
	Class   string      `yaml:"class" json:"class"`
	Pattern string      `yaml:"pattern" json:"pattern"`
	Number  NumberStyle `yaml:"number" json:"number"`

	// NumberGroup is the capture group holding the number (default 1).
	NumberGroup int `yaml:"number_group,omitempty" json:"number_group,omitempty"`
	// SuffixGroup is the capture group holding an alphanumeric suffix (default 2).
	SuffixGroup int `yaml:"suffix_group,omitempty" json:"suffix_group,omitempty"`

	// Literal is the number used by NumberLiteral rules.
	Literal string `yaml:"literal,omitempty" json:"literal,omitempty"`

	// TitleFollows takes the element title from the next paragraph.
	TitleFollows bool `yaml:"title_follows,omitempty" json:"title_follows,omitempty"`

	// BlocksTitle marks paragraphs matching this rule as never being a title.
	BlocksTitle bool `yaml:"blocks_title,omitempty" json:"blocks_title,omitempty"`

	// Corrections replaces a whole extracted number before it is validated.
	Corrections map[string]string `yaml:"corrections,omitempty" json:"corrections,omitempty"`
}

// Validate checks that the rule file has all required fields.
func (rf *RuleFile) Validate() error {
	if rf.Name == "" {
		return fmt.Errorf("rule file name is required")
	}
	if rf.FormatID == "" {
		return fmt.Errorf("rule file format_id is required")
	}
	if rf.Version == "" {
		return fmt.Errorf("rule file version is required")
	}
	if len(rf.Rules) == 0 {
		return fmt.Errorf("at least one rule is required")
	}
	for i, rule := range rf.Rules {
		if rule.Class == "" {
			return fmt.Errorf("rule %d: class is required", i)
		}
		if rule.Pattern == "" {
			return fmt.Errorf("rule %d (%s): pattern is required", i, rule.Class)
		}
		switch rule.Number {
		case "", NumberNone, NumberRoman, NumberAlphanumeric, NumberLetter:
		case NumberLiteral:
			if rule.Literal == "" {
				return fmt.Errorf("rule %d (%s): literal number style needs a literal", i, rule.Class)
			}
		default:
			return fmt.Errorf("rule %d (%s): unknown number style %q", i, rule.Class, rule.Number)
		}
	}
	return nil
}

// CompiledRule is a read-only, compiled Rule.
type CompiledRule struct {
	class        string
	number       NumberStyle
	numberGroup  int
	suffixGroup  int
	literal      string
	titleFollows bool
	blocksTitle  bool
	corrections  map[string]string
	re           *regexp.Regexp
}

// Class returns the element class label of the rule.
func (cr *CompiledRule) Class() string { return cr.class }

// NumberStyle returns how the rule reads element numbers.
func (cr *CompiledRule) NumberStyle() NumberStyle { return cr.number }

// TitleFollows reports whether the element title is read from the next paragraph.
func (cr *CompiledRule) TitleFollows() bool { return cr.titleFollows }

// BlocksTitle reports whether a matching paragraph can never be a title.
func (cr *CompiledRule) BlocksTitle() bool { return cr.blocksTitle }

// Literal returns the fixed number of NumberLiteral rules.
func (cr *CompiledRule) Literal() string { return cr.literal }

// Pattern returns the source of the rule's regular expression.
func (cr *CompiledRule) Pattern() string { return cr.re.String() }

// Match reports whether text matches the rule.
func (cr *CompiledRule) Match(text string) bool {
	return cr.re.MatchString(text)
}

// Lead returns the leading part of text matched by the rule, or "" when
// the rule does not match.
func (cr *CompiledRule) Lead(text string) string {
	return cr.re.FindString(text)
}

// Extract matches text and returns the number and suffix groups.
// ok is false when the rule does not match.
func (cr *CompiledRule) Extract(text string) (number, suffix string, ok bool) {
	groups := cr.re.FindStringSubmatch(text)
	if groups == nil {
		return "", "", false
	}
	if cr.numberGroup < len(groups) {
		number = groups[cr.numberGroup]
	}
	if cr.suffixGroup < len(groups) {
		suffix = groups[cr.suffixGroup]
	}
	return number, suffix, true
}

// Correct applies the rule's whole-number corrections.
func (cr *CompiledRule) Correct(number string) string {
	if fixed, ok := cr.corrections[number]; ok {
		return fixed
	}
	return number
}

// RuleSet is an immutable, compiled rule table.
type RuleSet struct {
	name         string
	formatID     string
	version      string
	jurisdiction string
	rules        []*CompiledRule
}

// Compile validates a rule file and compiles every pattern in it.
// Returns an error if any pattern fails to compile.
func Compile(rf *RuleFile) (*RuleSet, error) {
	if rf == nil {
		return nil, fmt.Errorf("rule file cannot be nil")
	}
	if err := rf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rule file: %w", err)
	}

	rs := &RuleSet{
		name:         rf.Name,
		formatID:     rf.FormatID,
		version:      rf.Version,
		jurisdiction: rf.Jurisdiction,
		rules:        make([]*CompiledRule, 0, len(rf.Rules)),
	}

	for i, rule := range rf.Rules {
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compiling rule %d (%s) pattern %q: %w", i, rule.Class, rule.Pattern, err)
		}

		compiled := &CompiledRule{
			class:        rule.Class,
			number:       rule.Number,
			numberGroup:  rule.NumberGroup,
			suffixGroup:  rule.SuffixGroup,
			literal:      rule.Literal,
			titleFollows: rule.TitleFollows,
			blocksTitle:  rule.BlocksTitle,
			corrections:  make(map[string]string, len(rule.Corrections)),
			re:           re,
		}
		if compiled.number == "" {
			compiled.number = NumberNone
		}
		if compiled.numberGroup == 0 {
			compiled.numberGroup = 1
		}
		if compiled.suffixGroup == 0 {
			compiled.suffixGroup = 2
		}
		for from, to := range rule.Corrections {
			compiled.corrections[from] = to
		}

		rs.rules = append(rs.rules, compiled)
	}

	return rs, nil
}

// Name returns the human-readable name of the rule table.
func (rs *RuleSet) Name() string { return rs.name }

// FormatID returns the identifier of the rule table.
func (rs *RuleSet) FormatID() string { return rs.formatID }

// Version returns the version of the rule table.
func (rs *RuleSet) Version() string { return rs.version }

// Jurisdiction returns the jurisdiction the rule table targets.
func (rs *RuleSet) Jurisdiction() string { return rs.jurisdiction }

// Rules returns the compiled rules in check order.
func (rs *RuleSet) Rules() []*CompiledRule {
	rules := make([]*CompiledRule, len(rs.rules))
	copy(rules, rs.rules)
	return rules
}

// Len returns the number of rules.
func (rs *RuleSet) Len() int { return len(rs.rules) }
