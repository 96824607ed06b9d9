package extract

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Top-level keys of a serialized document.
const (
	KeyPreamble     = "preambulo"
	KeyTitles       = "titulos"
	KeyTransitional = "adct"
	KeyContent      = "conteudo"
)

// Mapping is a string-keyed map that remembers insertion order. It encodes
// to JSON and YAML with keys in that order.
type Mapping struct {
	keys   []string
	values map[string]any
}

// NewMapping returns an empty Mapping.
func NewMapping() *Mapping {
	return &Mapping{values: make(map[string]any)}
}

// Set stores value under key. A new key is appended; an existing key keeps
// its position.
func (m *Mapping) Set(key string, value any) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value stored under key.
func (m *Mapping) Get(key string) (any, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Mapping returns the nested Mapping stored under key, or nil.
func (m *Mapping) Mapping(key string) *Mapping {
	if v, ok := m.values[key].(*Mapping); ok {
		return v
	}
	return nil
}

// Keys returns the keys in insertion order.
func (m *Mapping) Keys() []string {
	keys := make([]string, len(m.keys))
	copy(keys, m.keys)
	return keys
}

// Len returns the number of keys.
func (m *Mapping) Len() int { return len(m.keys) }

// MarshalJSON implements json.Marshaler.
func (m *Mapping) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := marshalNoEscape(key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := marshalNoEscape(m.values[key])
		if err != nil {
			return nil, fmt.Errorf("encoding %q: %w", key, err)
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalYAML implements yaml.Marshaler.
func (m *Mapping) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, key := range m.keys {
		var value yaml.Node
		if err := value.Encode(m.values[key]); err != nil {
			return nil, fmt.Errorf("encoding %q: %w", key, err)
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
			&value,
		)
	}
	return node, nil
}

// MarshalYAML encodes the entry with the same keys as its JSON form.
func (c ContentEntry) MarshalYAML() (any, error) {
	m := NewMapping()
	m.Set("classe", c.Kind.Class())
	if c.Number != "" {
		m.Set("numero", c.Number)
	} else {
		m.Set("numero", nil)
	}
	m.Set("texto", c.Text)
	return m, nil
}

// Serialize projects a tree into the nested document mapping. The result
// always has preambulo, titulos and adct keys; elements attached directly to
// the main root under other kinds follow titulos.
func Serialize(t *Tree) *Mapping {
	doc := NewMapping()

	preamble := t.nodes[MainRoot].Content
	if preamble == nil {
		preamble = []ContentEntry{}
	}
	doc.Set(KeyPreamble, preamble)
	doc.Set(KeyTitles, NewMapping())
	t.projectChildren(MainRoot, doc)

	adct := NewMapping()
	if content := t.nodes[TransitionalRoot].Content; len(content) > 0 {
		adct.Set(KeyContent, content)
	}
	t.projectChildren(TransitionalRoot, adct)
	doc.Set(KeyTransitional, adct)

	return doc
}

func (t *Tree) project(id NodeID) *Mapping {
	out := NewMapping()
	if content := t.nodes[id].Content; len(content) > 0 {
		out.Set(KeyContent, content)
	}
	t.projectChildren(id, out)
	return out
}

// projectChildren groups the children of id under their plural keys, in the
// order each group first appears.
func (t *Tree) projectChildren(id NodeID, out *Mapping) {
	for _, child := range t.nodes[id].Children {
		e := &t.nodes[child]
		group := out.Mapping(e.Kind.Group())
		if group == nil {
			group = NewMapping()
			out.Set(e.Kind.Group(), group)
		}
		group.Set(e.Number, t.project(child))
	}
}

// MarshalJSON encodes the tree in its serialized form.
func (t *Tree) MarshalJSON() ([]byte, error) {
	return Serialize(t).MarshalJSON()
}

// EncodeJSON writes doc as indented JSON without HTML escaping.
func EncodeJSON(doc *Mapping) ([]byte, error) {
	raw, err := doc.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// EncodeYAML writes doc as YAML with keys in insertion order.
func EncodeYAML(doc *Mapping) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
