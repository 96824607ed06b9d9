// Package roman validates and converts the Roman numerals used to number
// titles, chapters, sections, subsections and items of legal texts.
package roman

import "strings"

// digitValues maps each Roman digit to its integer value.
var digitValues = map[byte]int{
	'I': 1,
	'V': 5,
	'X': 10,
	'L': 50,
	'C': 100,
	'D': 500,
	'M': 1000,
}

// legalSuccessors lists, for each digit, the digits allowed to follow it.
// The table rejects nonsense sequences such as "VX" or "ILC" without
// implementing the full numeral grammar.
var legalSuccessors = map[byte]string{
	'I': "IVX",
	'V': "I",
	'X': "IVXLC",
	'L': "IVX",
	'C': "IVXLCDM",
	'D': "IVXLC",
	'M': "IVXLCDM",
}

// IsDigit reports whether c is one of I, V, X, L, C, D or M.
func IsDigit(c byte) bool {
	_, ok := digitValues[c]
	return ok
}

// Validate reports whether s is a plausible Roman numeral: non-empty, made
// only of uppercase Roman digits, and with every adjacent pair listed in the
// legal-successor table.
func Validate(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !IsDigit(s[i]) {
			return false
		}
		if i+1 < len(s) && !strings.ContainsRune(legalSuccessors[s[i]], rune(s[i+1])) {
			return false
		}
	}
	return true
}

// ToInteger converts a validated numeral to its integer value.
//
// Digits are scanned right to left while tracking the largest value seen so
// far; a digit is added when it is at least that maximum and subtracted
// otherwise, which covers subtractive pairs like IV, IX and XL. The result
// for input that fails Validate is unspecified.
func ToInteger(s string) int {
	total := 0
	maxSeen := 0
	for i := len(s) - 1; i >= 0; i-- {
		value := digitValues[s[i]]
		if value >= maxSeen {
			total += value
			maxSeen = value
		} else {
			total -= value
		}
	}
	return total
}

// Parse validates s and converts it. ok is false when s is not a valid
// numeral, in which case callers keep the raw string.
func Parse(s string) (value int, ok bool) {
	if !Validate(s) {
		return 0, false
	}
	return ToInteger(s), true
}
