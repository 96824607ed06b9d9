package pattern

import (
	_ "embed"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// DefaultFormatID identifies the built-in rule table.
const DefaultFormatID = "br-constitution"

//go:embed rules/br-constitution.yaml
var defaultRules []byte

// defaultRuleSet is built on first use and shared read-only by every caller.
var defaultRuleSet = sync.OnceValues(func() (*RuleSet, error) {
	rf, err := ParseRuleFile(defaultRules)
	if err != nil {
		return nil, fmt.Errorf("built-in rules: %w", err)
	}
	return Compile(rf)
})

// Default returns the built-in rule table for the Brazilian Constitution.
func Default() (*RuleSet, error) {
	return defaultRuleSet()
}

// MustDefault is like Default but panics if the built-in table is invalid.
func MustDefault() *RuleSet {
	rs, err := Default()
	if err != nil {
		panic(err)
	}
	return rs
}

// DefaultRuleFile returns the raw YAML of the built-in rule table.
func DefaultRuleFile() []byte {
	out := make([]byte, len(defaultRules))
	copy(out, defaultRules)
	return out
}

// ParseRuleFile decodes a YAML rule file.
func ParseRuleFile(data []byte) (*RuleFile, error) {
	var rf RuleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	return &rf, nil
}

// LoadRuleSet reads and compiles a rule file from disk.
func LoadRuleSet(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rule file: %w", err)
	}
	rf, err := ParseRuleFile(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	rs, err := Compile(rf)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rs, nil
}
