package pattern

import (
	"strings"
	"testing"
)

func TestRuleFileValidate(t *testing.T) {
	validRules := []Rule{{Class: "artigo", Pattern: `^Art\.\s*(\d+)`, Number: NumberAlphanumeric}}

	tests := []struct {
		name      string
		file      RuleFile
		wantError bool
	}{
		{
			name:      "valid rule file",
			file:      RuleFile{Name: "Test", FormatID: "test", Version: "1.0.0", Rules: validRules},
			wantError: false,
		},
		{
			name:      "missing name",
			file:      RuleFile{FormatID: "test", Version: "1.0.0", Rules: validRules},
			wantError: true,
		},
		{
			name:      "missing format_id",
			file:      RuleFile{Name: "Test", Version: "1.0.0", Rules: validRules},
			wantError: true,
		},
		{
			name:      "missing version",
			file:      RuleFile{Name: "Test", FormatID: "test", Rules: validRules},
			wantError: true,
		},
		{
			name:      "no rules",
			file:      RuleFile{Name: "Test", FormatID: "test", Version: "1.0.0"},
			wantError: true,
		},
		{
			name: "rule without class",
			file: RuleFile{Name: "Test", FormatID: "test", Version: "1.0.0",
				Rules: []Rule{{Pattern: "x"}}},
			wantError: true,
		},
		{
			name: "literal rule without literal",
			file: RuleFile{Name: "Test", FormatID: "test", Version: "1.0.0",
				Rules: []Rule{{Class: "paragrafo", Pattern: "x", Number: NumberLiteral}}},
			wantError: true,
		},
		{
			name: "unknown number style",
			file: RuleFile{Name: "Test", FormatID: "test", Version: "1.0.0",
				Rules: []Rule{{Class: "artigo", Pattern: "x", Number: "hex"}}},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.file.Validate()
			if (err != nil) != tt.wantError {
				t.Errorf("Validate() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestCompileInvalidRegex(t *testing.T) {
	rf := &RuleFile{
		Name: "Broken", FormatID: "broken", Version: "1.0.0",
		Rules: []Rule{{Class: "artigo", Pattern: `^Art\.(\d+`}},
	}
	if _, err := Compile(rf); err == nil {
		t.Fatal("Compile() should fail on an invalid regex")
	}
}

func TestCompileDefaults(t *testing.T) {
	rf := &RuleFile{
		Name: "Test", FormatID: "test", Version: "1.0.0",
		Rules: []Rule{{Class: "artigo", Pattern: `^Art\.\s*(\d+)(?:-([A-Z]))?`}},
	}
	rs, err := Compile(rf)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	rule := rs.Rules()[0]
	if rule.NumberStyle() != NumberNone {
		t.Errorf("NumberStyle() = %q, want %q", rule.NumberStyle(), NumberNone)
	}

	number, suffix, ok := rule.Extract("Art. 103-A. O Supremo")
	if !ok || number != "103" || suffix != "A" {
		t.Errorf("Extract() = %q, %q, %v; want 103, A, true", number, suffix, ok)
	}
}

func TestCompiledRuleIsolatedFromSource(t *testing.T) {
	rf := &RuleFile{
		Name: "Test", FormatID: "test", Version: "1.0.0",
		Rules: []Rule{{
			Class: "inciso", Pattern: `^([IVXLCDM]+)\s*-`, Number: NumberRoman,
			Corrections: map[string]string{"VIX": "IX"},
		}},
	}
	rs, err := Compile(rf)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	rf.Rules[0].Corrections["VIX"] = "XX"
	rf.Rules[0].Pattern = "changed"

	rule := rs.Rules()[0]
	if got := rule.Correct("VIX"); got != "IX" {
		t.Errorf("Correct(VIX) = %q after editing the source file, want IX", got)
	}
	if !rule.Match("IV - texto") {
		t.Error("compiled rule should keep its original pattern")
	}
}

func TestDefaultRuleSet(t *testing.T) {
	rs, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	if rs.FormatID() != DefaultFormatID {
		t.Errorf("FormatID() = %q, want %q", rs.FormatID(), DefaultFormatID)
	}

	again := MustDefault()
	if again != rs {
		t.Error("Default() should build the rule set once and share it")
	}

	wantOrder := []string{"adct", "titulo", "capitulo", "secao", "subsecao", "artigo", "paragrafo", "paragrafo", "inciso", "alinea"}
	rules := rs.Rules()
	if len(rules) != len(wantOrder) {
		t.Fatalf("Len() = %d, want %d", len(rules), len(wantOrder))
	}
	for i, class := range wantOrder {
		if rules[i].Class() != class {
			t.Errorf("rule %d class = %q, want %q", i, rules[i].Class(), class)
		}
	}
}

func TestDefaultRulePatterns(t *testing.T) {
	rs := MustDefault()
	byClass := func(class string, text string) (string, string, bool) {
		for _, rule := range rs.Rules() {
			if rule.Class() != class {
				continue
			}
			if number, suffix, ok := rule.Extract(text); ok {
				return number, suffix, true
			}
		}
		return "", "", false
	}

	tests := []struct {
		class      string
		text       string
		wantMatch  bool
		wantNumber string
		wantSuffix string
	}{
		{"adct", "ATO DAS DISPOSIÇÕES CONSTITUCIONAIS TRANSITÓRIAS", true, "", ""},
		{"adct", "Art. 2º do Ato das Disposições Constitucionais Transitórias", false, "", ""},
		{"titulo", "TÍTULO II", true, "II", ""},
		{"capitulo", "CAPÍTULO IV", true, "IV", ""},
		{"secao", "Seção III", true, "III", ""},
		{"secao", "SUBSEÇÃO I", false, "", ""},
		{"subsecao", "Subseção II", true, "II", ""},
		{"artigo", "Art. 5º Todos são iguais perante a lei", true, "5", ""},
		{"artigo", "Art. 103-A. O Supremo Tribunal Federal", true, "103", "A"},
		{"artigo", "Art. 1o A República Federativa", true, "1", ""},
		{"artigo", "Art. 5A Artigo acrescido", true, "5", "A"},
		{"artigo", "Art. 5º-A Texto", true, "5", "A"},
		{"artigo", "Art. 10 A lei disporá", true, "10", ""},
		{"artigo", "Art. 6º São direitos sociais", true, "6", ""},
		{"paragrafo", "§ 1º-A A lei poderá", true, "1", "A"},
		{"paragrafo", "§ 3º A lei regulará", true, "3", ""},
		{"artigo", "O art. 5º aplica-se", false, "", ""},
		{"paragrafo", "§ 2º Os direitos e garantias", true, "2", ""},
		{"paragrafo", "Parágrafo único. Todo o poder emana do povo", true, "", ""},
		{"inciso", "IV - os valores sociais do trabalho", true, "IV", ""},
		{"inciso", "CAPÍTULO I", false, "", ""},
		{"alinea", "a) a plenitude de defesa;", true, "a", ""},
		{"alinea", "ab) texto", false, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.class+"/"+strings.Fields(tt.text)[0], func(t *testing.T) {
			number, suffix, ok := byClass(tt.class, tt.text)
			if ok != tt.wantMatch {
				t.Fatalf("match(%q) = %v, want %v", tt.text, ok, tt.wantMatch)
			}
			if number != tt.wantNumber || suffix != tt.wantSuffix {
				t.Errorf("Extract(%q) = %q, %q; want %q, %q", tt.text, number, suffix, tt.wantNumber, tt.wantSuffix)
			}
		})
	}
}

func TestParseRuleFileRoundTripOfDefault(t *testing.T) {
	rf, err := ParseRuleFile(DefaultRuleFile())
	if err != nil {
		t.Fatalf("ParseRuleFile() error = %v", err)
	}
	if rf.Jurisdiction != "BR" {
		t.Errorf("Jurisdiction = %q, want BR", rf.Jurisdiction)
	}
	if got := rf.Rules[8].Corrections["VIX"]; got != "IX" {
		t.Errorf("inciso correction VIX = %q, want IX", got)
	}
}

func TestCompiledRuleLead(t *testing.T) {
	rs := MustDefault()
	lead := func(text string) string {
		for _, rule := range rs.Rules() {
			if l := rule.Lead(text); l != "" {
				return l
			}
		}
		return ""
	}

	tests := []struct {
		text string
		want string
	}{
		{"Art. 5º Todos são iguais perante a lei", "Art. 5º"},
		{"Art. 103-A. O Supremo Tribunal Federal", "Art. 103-A"},
		{"Art. 5A Artigo acrescido", "Art. 5A"},
		{"Parágrafo único. Todo o poder emana do povo", "Parágrafo único"},
		{"IV - os valores sociais do trabalho", "IV -"},
		{"texto corrido", ""},
	}

	for _, tt := range tests {
		if got := lead(tt.text); got != tt.want {
			t.Errorf("Lead(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}
