package keyset

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/MimeLyc/yaml-translator/internal/apperr"
	"github.com/MimeLyc/yaml-translator/pkg/log"
)

// Mapping is a flat key → string map that remembers document order.
type Mapping struct {
	Keys   []string
	Values map[string]string
}

func NewMapping() Mapping {
	return Mapping{Values: make(map[string]string)}
}

// Set appends key when it is new and overwrites its value otherwise.
func (m *Mapping) Set(key, value string) {
	if m.Values == nil {
		m.Values = make(map[string]string)
	}
	if _, ok := m.Values[key]; !ok {
		m.Keys = append(m.Keys, key)
	}
	m.Values[key] = value
}

func (m Mapping) Get(key string) (string, bool) {
	v, ok := m.Values[key]
	return v, ok
}

func (m Mapping) Len() int {
	return len(m.Keys)
}

// Parse decodes a flat YAML (or JSON) document into a Mapping, keeping the
// document's key order. A single top-level key holding a mapping is treated
// as a Rails-style locale wrapper and unwrapped. Numbers and booleans keep
// their literal text, nulls are skipped, nested structures are rejected.
func Parse(data []byte) (Mapping, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Mapping{}, apperr.NewWithCause(apperr.ErrParse, "invalid YAML", err)
	}

	m := NewMapping()
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return m, nil
	}

	root := doc.Content[0]
	if root.Kind == yaml.ScalarNode && root.Tag == "!!null" {
		return m, nil
	}
	if root.Kind != yaml.MappingNode {
		return Mapping{}, apperr.Newf(apperr.ErrParse, "root must be a mapping, got kind %d", root.Kind)
	}

	if len(root.Content) == 2 && root.Content[1].Kind == yaml.MappingNode {
		root = root.Content[1]
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		keyNode := root.Content[i]
		valNode := root.Content[i+1]

		switch valNode.Kind {
		case yaml.ScalarNode:
			if valNode.Tag == "!!null" {
				log.Debug("Skipping %q: no value (line %d)", keyNode.Value, keyNode.Line)
				continue
			}
			m.Set(keyNode.Value, valNode.Value)
		case yaml.AliasNode:
			if valNode.Alias != nil && valNode.Alias.Kind == yaml.ScalarNode {
				m.Set(keyNode.Value, valNode.Alias.Value)
			}
		default:
			return Mapping{}, apperr.New(apperr.ErrParse, fmt.Sprintf("key %q is not a string value", keyNode.Value)).
				WithContext("line", keyNode.Line)
		}
	}
	return m, nil
}
