package extract

import (
	"bytes"
	"encoding/json"
	"slices"
)

// NodeID indexes an element in a Tree.
type NodeID int32

const (
	// MainRoot holds the preamble content and the titles.
	MainRoot NodeID = 0
	// TransitionalRoot holds the transitional provisions.
	TransitionalRoot NodeID = 1

	noNode NodeID = -1
)

// ContentEntry is one paragraph of text attached to an element.
type ContentEntry struct {
	Kind   Kind
	Number string
	Text   string
}

// MarshalJSON encodes the entry as {classe, numero, texto} with a null
// numero when the owner has no number.
func (c ContentEntry) MarshalJSON() ([]byte, error) {
	var number any
	if c.Number != "" {
		number = c.Number
	}
	return marshalNoEscape(struct {
		Class  string `json:"classe"`
		Number any    `json:"numero"`
		Text   string `json:"texto"`
	}{c.Kind.Class(), number, c.Text})
}

// Element is a node of the document tree.
type Element struct {
	Kind   Kind
	Number string
	// Ordinal is the numeric value of Number when it has one, else 0.
	Ordinal  int
	Title    string
	Parent   NodeID
	Children []NodeID
	Content  []ContentEntry
}

type childKey struct {
	parent NodeID
	kind   Kind
	number string
}

// Tree stores elements in a flat arena. Parents and children refer to each
// other by NodeID. A Tree returned by Builder.Finish is never modified.
type Tree struct {
	nodes []Element
	index map[childKey]NodeID
}

func newTree() *Tree {
	return &Tree{
		nodes: []Element{
			MainRoot:         {Kind: KindPreamble, Parent: noNode},
			TransitionalRoot: {Kind: KindTransitional, Parent: noNode},
		},
		index: make(map[childKey]NodeID),
	}
}

// Len returns the number of nodes, roots included.
func (t *Tree) Len() int { return len(t.nodes) }

// Node returns a copy of the element with the given ID.
func (t *Tree) Node(id NodeID) Element {
	e := t.nodes[id]
	e.Children = slices.Clone(e.Children)
	e.Content = slices.Clone(e.Content)
	return e
}

// Child looks up a child of parent by kind and number.
func (t *Tree) Child(parent NodeID, kind Kind, number string) (NodeID, bool) {
	id, ok := t.index[childKey{parent, kind, number}]
	return id, ok
}

// Lookup follows a path of (kind, number) steps from a root.
func (t *Tree) Lookup(root NodeID, path ...Step) (NodeID, bool) {
	id := root
	for _, step := range path {
		next, ok := t.Child(id, step.Kind, step.Number)
		if !ok {
			return noNode, false
		}
		id = next
	}
	return id, true
}

// Step is one (kind, number) hop used by Lookup.
type Step struct {
	Kind   Kind
	Number string
}

// Walk visits every element in document order, main branch first. Returning
// false from fn skips the element's descendants.
func (t *Tree) Walk(fn func(id NodeID, depth int) bool) {
	var visit func(id NodeID, depth int)
	visit = func(id NodeID, depth int) {
		if !fn(id, depth) {
			return
		}
		for _, child := range t.nodes[id].Children {
			visit(child, depth+1)
		}
	}
	visit(MainRoot, 0)
	visit(TransitionalRoot, 0)
}

// Count returns the number of elements of a kind in the tree.
func (t *Tree) Count(kind Kind) int {
	n := 0
	for i := int(TransitionalRoot) + 1; i < len(t.nodes); i++ {
		if t.nodes[i].Kind == kind {
			n++
		}
	}
	return n
}

// Branch returns the root of the branch that contains id.
func (t *Tree) Branch(id NodeID) NodeID {
	for t.nodes[id].Parent != noNode {
		id = t.nodes[id].Parent
	}
	return id
}

func (t *Tree) hasChildKind(parent NodeID, kind Kind) bool {
	for _, child := range t.nodes[parent].Children {
		if t.nodes[child].Kind == kind {
			return true
		}
	}
	return false
}

func (t *Tree) add(parent NodeID, e Element) NodeID {
	id := NodeID(len(t.nodes))
	e.Parent = parent
	t.nodes = append(t.nodes, e)
	t.nodes[parent].Children = append(t.nodes[parent].Children, id)
	t.index[childKey{parent, e.Kind, e.Number}] = id
	return id
}

func (t *Tree) appendContent(id NodeID, entry ContentEntry) {
	t.nodes[id].Content = append(t.nodes[id].Content, entry)
}

func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
