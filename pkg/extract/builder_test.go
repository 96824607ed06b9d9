package extract

import (
	"bytes"
	"errors"
	"testing"
)

func build(t *testing.T, cs []Classification) (*Tree, *Report) {
	t.Helper()
	b := NewBuilder(nil)
	for i := range cs {
		cs[i].Index = i
	}
	b.AddAll(cs)
	tree, err := b.Finish()
	if err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	return tree, b.Report()
}

func mustLookup(t *testing.T, tree *Tree, root NodeID, path ...Step) Element {
	t.Helper()
	id, ok := tree.Lookup(root, path...)
	if !ok {
		t.Fatalf("Lookup(%v) not found", path)
	}
	return tree.Node(id)
}

func title(number string, ordinal int, name string) Classification {
	return Classification{Kind: KindTitle, Number: number, Ordinal: ordinal, Title: name, Text: "TÍTULO " + number}
}

func chapter(number string, ordinal int) Classification {
	return Classification{Kind: KindChapter, Number: number, Ordinal: ordinal, Text: "CAPÍTULO " + number}
}

func article(number string, ordinal int, text string) Classification {
	return Classification{Kind: KindArticle, Number: number, Ordinal: ordinal, Text: text}
}

func text(s string) Classification {
	return Classification{Kind: KindContinuation, Text: s}
}

func TestBuilderEndToEnd(t *testing.T) {
	tree, report := build(t, []Classification{
		{Kind: KindPreamble, Text: "Nós, representantes do povo brasileiro, reunidos em Assembléia Nacional Constituinte"},
		title("I", 1, "Dos Princípios Fundamentais"),
		article("1", 1, "Art. 1º A República Federativa do Brasil"),
		{Kind: KindParagraph, Number: "único", Text: "Parágrafo único. Todo o poder emana do povo"},
		{Kind: KindTransitional, Text: "ATO DAS DISPOSIÇÕES CONSTITUCIONAIS TRANSITÓRIAS"},
		article("1", 1, "Art. 1º O Presidente da República, o Presidente do Supremo Tribunal Federal"),
	})

	preamble := tree.Node(MainRoot).Content
	if len(preamble) != 1 || preamble[0].Kind != KindPreamble {
		t.Fatalf("preamble content = %+v, want one preambulo entry", preamble)
	}

	sole := mustLookup(t, tree, MainRoot,
		Step{KindTitle, "I"}, Step{KindArticle, "1"}, Step{KindParagraph, "único"})
	if sole.Content[0].Text != "Parágrafo único. Todo o poder emana do povo" {
		t.Errorf("paragrafo único text = %q", sole.Content[0].Text)
	}

	mainArticle, _ := tree.Lookup(MainRoot, Step{KindTitle, "I"}, Step{KindArticle, "1"})
	adctArticle, ok := tree.Lookup(TransitionalRoot, Step{KindArticle, "1"})
	if !ok {
		t.Fatal("adct artigo 1 not found")
	}
	if mainArticle == adctArticle {
		t.Error("transitional article must be a distinct node")
	}
	if tree.Branch(adctArticle) != TransitionalRoot {
		t.Error("adct artigo 1 should belong to the transitional branch")
	}

	titleNode := mustLookup(t, tree, MainRoot, Step{KindTitle, "I"})
	if titleNode.Title != "Dos Princípios Fundamentais" {
		t.Errorf("Title = %q", titleNode.Title)
	}

	if report.Paragraphs != 6 {
		t.Errorf("Paragraphs = %d, want 6", report.Paragraphs)
	}
	if report.Elements[KindArticle] != 2 {
		t.Errorf("Elements[artigo] = %d, want 2", report.Elements[KindArticle])
	}
	if len(report.Issues) != 0 {
		t.Errorf("unexpected issues: %v", report.Issues)
	}
}

func TestBuilderContinuationAttachesToDeepestOpen(t *testing.T) {
	tree, report := build(t, []Classification{
		title("I", 1, ""),
		article("1", 1, "Art. 1º A República Federativa do Brasil"),
		text("formada pela união indissolúvel dos Estados"),
	})

	art := mustLookup(t, tree, MainRoot, Step{KindTitle, "I"}, Step{KindArticle, "1"})
	if len(art.Content) != 2 {
		t.Fatalf("artigo 1 content = %d entries, want 2", len(art.Content))
	}
	got := art.Content[1]
	if got.Kind != KindArticle || got.Number != "1" || got.Text != "formada pela união indissolúvel dos Estados" {
		t.Errorf("continuation entry = %+v", got)
	}
	if len(art.Children) != 0 {
		t.Errorf("continuation must not open a node, got %d children", len(art.Children))
	}
	if report.Continuations != 1 {
		t.Errorf("Continuations = %d, want 1", report.Continuations)
	}
}

func TestBuilderPreambleAccumulatesAtRoot(t *testing.T) {
	tree, _ := build(t, []Classification{
		text("first line before anything"),
		{Kind: KindPreamble, Text: "Nós, representantes"},
		text("promulgamos, sob a proteção de Deus"),
	})

	content := tree.Node(MainRoot).Content
	if len(content) != 3 {
		t.Fatalf("root content = %d entries, want 3", len(content))
	}
	for i, entry := range content {
		if entry.Kind != KindPreamble || entry.Number != "" {
			t.Errorf("entry %d = %+v, want preambulo without number", i, entry)
		}
	}
}

func TestBuilderKeepsArrivalOrder(t *testing.T) {
	tree, report := build(t, []Classification{
		title("I", 1, ""),
		chapter("II", 2),
		chapter("I", 1),
	})

	titleNode := mustLookup(t, tree, MainRoot, Step{KindTitle, "I"})
	if len(titleNode.Children) != 2 {
		t.Fatalf("children = %d, want 2", len(titleNode.Children))
	}
	first := tree.Node(titleNode.Children[0])
	second := tree.Node(titleNode.Children[1])
	if first.Number != "II" || second.Number != "I" {
		t.Errorf("children order = %s, %s; want II, I", first.Number, second.Number)
	}
	if report.Count(CodeOutOfOrder) != 1 {
		t.Errorf("out-of-order issues = %d, want 1", report.Count(CodeOutOfOrder))
	}

	chapters := Serialize(tree).Mapping(KeyTitles).Mapping("I").Mapping("capitulos")
	if keys := chapters.Keys(); len(keys) != 2 || keys[0] != "II" || keys[1] != "I" {
		t.Errorf("serialized capitulos keys = %v, want [II I]", keys)
	}
}

func TestBuilderDiscardsDuplicates(t *testing.T) {
	tree, report := build(t, []Classification{
		title("I", 1, ""),
		article("5", 5, "Art. 5º Todos são iguais perante a lei"),
		article("5", 5, "Art. 5º repeated"),
		{Kind: KindParagraph, Number: "1", Ordinal: 1, Text: "§ 1º following the repeated article"},
		text("continuation after the repeated article"),
		article("6", 6, "Art. 6º São direitos sociais"),
	})

	art := mustLookup(t, tree, MainRoot, Step{KindTitle, "I"}, Step{KindArticle, "5"})
	if len(art.Content) != 1 || art.Content[0].Text != "Art. 5º Todos são iguais perante a lei" {
		t.Errorf("artigo 5 content = %+v, want only the first occurrence", art.Content)
	}
	if len(art.Children) != 0 {
		t.Errorf("artigo 5 children = %d, want 0", len(art.Children))
	}

	// The repeated article closed artigo 5, so the paragraph takes the
	// title as its nearest open ancestor and keeps the continuation.
	paragraph := mustLookup(t, tree, MainRoot, Step{KindTitle, "I"}, Step{KindParagraph, "1"})
	if len(paragraph.Content) != 2 || paragraph.Content[1].Text != "continuation after the repeated article" {
		t.Errorf("paragrafo 1 content = %+v, want header and continuation", paragraph.Content)
	}

	titleNode := mustLookup(t, tree, MainRoot, Step{KindTitle, "I"})
	if len(titleNode.Children) != 3 {
		t.Errorf("title children = %d, want 3", len(titleNode.Children))
	}
	if report.Count(CodeDuplicateElement) != 1 {
		t.Errorf("duplicate issues = %d, want 1", report.Count(CodeDuplicateElement))
	}
	if report.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", report.Dropped)
	}
	if report.Continuations != 1 {
		t.Errorf("Continuations = %d, want 1", report.Continuations)
	}
	if _, ok := tree.Lookup(MainRoot, Step{KindTitle, "I"}, Step{KindArticle, "6"}); !ok {
		t.Error("artigo 6 should be built after the duplicate")
	}
}

func TestBuilderRepeatedTitleKeepsFollowers(t *testing.T) {
	tree, report := build(t, []Classification{
		title("I", 1, ""),
		article("1", 1, "Art. 1º"),
		title("I", 1, ""),
		article("2", 2, "Art. 2º"),
		{Kind: KindItem, Number: "I", Ordinal: 1, Text: "I - inciso"},
		text("texto do inciso"),
	})

	if report.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", report.Dropped)
	}

	// The repeated header closed título I, so what follows attaches to the
	// nearest open slot, the root, instead of being discarded.
	first := mustLookup(t, tree, MainRoot, Step{KindTitle, "I"})
	if len(first.Children) != 1 {
		t.Errorf("título I children = %d, want 1", len(first.Children))
	}
	art := mustLookup(t, tree, MainRoot, Step{KindArticle, "2"})
	if len(art.Children) != 1 {
		t.Errorf("artigo 2 children = %d, want 1", len(art.Children))
	}
	item := mustLookup(t, tree, MainRoot, Step{KindArticle, "2"}, Step{KindItem, "I"})
	if len(item.Content) != 2 {
		t.Errorf("inciso I content = %+v, want header and continuation", item.Content)
	}
}

func TestBuilderSoleParagraphIsExclusive(t *testing.T) {
	tree, report := build(t, []Classification{
		article("1", 1, "Art. 1º"),
		{Kind: KindParagraph, Number: "1", Ordinal: 1, Text: "§ 1º"},
		{Kind: KindParagraph, Number: "único", Text: "Parágrafo único."},
		article("2", 2, "Art. 2º"),
		{Kind: KindParagraph, Number: "único", Text: "Parágrafo único."},
		{Kind: KindParagraph, Number: "2", Ordinal: 2, Text: "§ 2º"},
	})

	if report.Count(CodeDuplicateElement) != 2 {
		t.Errorf("duplicate issues = %d, want 2", report.Count(CodeDuplicateElement))
	}
	if _, ok := tree.Lookup(MainRoot, Step{KindArticle, "1"}, Step{KindParagraph, "único"}); ok {
		t.Error("artigo 1 should not have a sole paragraph")
	}
	if _, ok := tree.Lookup(MainRoot, Step{KindArticle, "2"}, Step{KindParagraph, "2"}); ok {
		t.Error("artigo 2 should not have a numbered paragraph")
	}
}

func TestBuilderDoesNotFabricateAncestors(t *testing.T) {
	tree, _ := build(t, []Classification{
		title("I", 1, ""),
		article("1", 1, "Art. 1º"),
		{Kind: KindSubItem, Number: "a", Ordinal: 1, Text: "a) texto"},
	})

	art, _ := tree.Lookup(MainRoot, Step{KindTitle, "I"}, Step{KindArticle, "1"})
	sub, ok := tree.Lookup(art, Step{KindSubItem, "a"})
	if !ok {
		t.Fatal("alinea a should attach directly to artigo 1")
	}
	if tree.Node(sub).Parent != art {
		t.Error("alinea parent should be artigo 1")
	}
	if tree.Count(KindChapter) != 0 || tree.Count(KindItem) != 0 {
		t.Error("builder must not create missing intermediate elements")
	}
}

func TestBuilderTransitionalBranch(t *testing.T) {
	tree, report := build(t, []Classification{
		title("I", 1, ""),
		article("1", 1, "Art. 1º"),
		{Kind: KindTransitional, Text: "ATO DAS DISPOSIÇÕES CONSTITUCIONAIS TRANSITÓRIAS"},
		text("continuation before any transitional article"),
		article("1", 1, "Art. 1º transitório"),
		chapter("I", 1),
		title("II", 2, ""),
		article("2", 2, "Art. 2º"),
	})

	adct := tree.Node(TransitionalRoot)
	if len(adct.Content) != 2 || adct.Content[0].Kind != KindTransitional {
		t.Errorf("adct content = %+v, want banner and continuation", adct.Content)
	}

	if report.Count(CodeAmbiguousClassification) != 1 {
		t.Errorf("ambiguous issues = %d, want 1", report.Count(CodeAmbiguousClassification))
	}
	art := mustLookup(t, tree, TransitionalRoot, Step{KindArticle, "1"})
	if len(art.Content) != 2 || art.Content[1].Text != "CAPÍTULO I" {
		t.Errorf("chapter inside adct should be kept as artigo content, got %+v", art.Content)
	}

	if _, ok := tree.Lookup(MainRoot, Step{KindTitle, "II"}, Step{KindArticle, "2"}); !ok {
		t.Error("title after adct should return to the main branch")
	}
}

func TestBuilderUnknownKindKeptAsContent(t *testing.T) {
	tree, report := build(t, []Classification{
		article("1", 1, "Art. 1º"),
		{Kind: KindInvalid, Label: "emenda", Text: "Emenda Constitucional nº 1"},
	})

	art := mustLookup(t, tree, MainRoot, Step{KindArticle, "1"})
	if len(art.Content) != 2 {
		t.Fatalf("artigo content = %d entries, want 2", len(art.Content))
	}
	if report.Count(CodeUnknownKind) != 1 {
		t.Fatalf("unknown-kind issues = %d, want 1", report.Count(CodeUnknownKind))
	}
	if report.Issues[0].Class != "emenda" {
		t.Errorf("issue class = %q, want emenda", report.Issues[0].Class)
	}
}

func TestBuilderReportsInvalidNumeral(t *testing.T) {
	tree, report := build(t, []Classification{
		{Kind: KindTitle, Number: "XVX", InvalidNumeral: true, Text: "TÍTULO XVX"},
	})
	if _, ok := tree.Lookup(MainRoot, Step{KindTitle, "XVX"}); !ok {
		t.Error("raw numeral should be kept as the element number")
	}
	if report.Count(CodeInvalidNumeral) != 1 {
		t.Errorf("invalid-numeral issues = %d, want 1", report.Count(CodeInvalidNumeral))
	}
}

func TestBuilderEmptyInput(t *testing.T) {
	b := NewBuilder(nil)
	if _, err := b.Finish(); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("Finish() error = %v, want ErrEmptyInput", err)
	}
}

func TestBuilderAddAfterFinishPanics(t *testing.T) {
	b := NewBuilder(nil)
	b.Add(text("x"))
	if _, err := b.Finish(); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	defer func() {
		if recover() == nil {
			t.Error("Add() after Finish() should panic")
		}
	}()
	b.Add(text("y"))
}

func mixedInput() []Classification {
	return []Classification{
		{Kind: KindPreamble, Text: "Nós, representantes"},
		title("I", 1, "Dos Princípios Fundamentais"),
		text("Dos Princípios Fundamentais"),
		article("1", 1, "Art. 1º"),
		{Kind: KindItem, Number: "I", Ordinal: 1, Text: "I - a soberania;"},
		{Kind: KindItem, Number: "II", Ordinal: 2, Text: "II - a cidadania;"},
		title("II", 2, "Dos Direitos e Garantias Fundamentais"),
		chapter("I", 1),
		{Kind: KindSection, Number: "I", Ordinal: 1, Text: "Seção I"},
		{Kind: KindSubsection, Number: "I", Ordinal: 1, Text: "Subseção I"},
		article("5", 5, "Art. 5º"),
		{Kind: KindParagraph, Number: "1", Ordinal: 1, Text: "§ 1º"},
		{Kind: KindItem, Number: "I", Ordinal: 1, Text: "I - texto"},
		{Kind: KindSubItem, Number: "a", Ordinal: 1, Text: "a) texto"},
		chapter("II", 2),
		{Kind: KindSubItem, Number: "b", Ordinal: 2, Text: "b) directly under the chapter"},
		{Kind: KindTransitional, Text: "ATO DAS DISPOSIÇÕES CONSTITUCIONAIS TRANSITÓRIAS"},
		article("1", 1, "Art. 1º"),
		{Kind: KindParagraph, Number: "único", Text: "Parágrafo único."},
	}
}

func TestBuilderRankInvariant(t *testing.T) {
	tree, _ := build(t, mixedInput())

	tree.Walk(func(id NodeID, depth int) bool {
		e := tree.Node(id)
		for _, child := range e.Children {
			c := tree.Node(child)
			if c.Kind.Rank() <= e.Kind.Rank() {
				t.Errorf("%s %s (rank %d) under %s %s (rank %d)",
					c.Kind, c.Number, c.Kind.Rank(), e.Kind, e.Number, e.Kind.Rank())
			}
		}
		return true
	})
}

func TestBuilderDeterministic(t *testing.T) {
	first, _ := build(t, mixedInput())
	second, _ := build(t, mixedInput())

	a, err := EncodeJSON(Serialize(first))
	if err != nil {
		t.Fatalf("EncodeJSON() error = %v", err)
	}
	b, err := EncodeJSON(Serialize(second))
	if err != nil {
		t.Fatalf("EncodeJSON() error = %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("building the same input twice produced different trees")
	}
}
