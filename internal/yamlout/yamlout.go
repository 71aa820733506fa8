// Package yamlout renders a translations map as a flat YAML file whose key
// order follows the source language file and whose keys are visually grouped
// by prefix:
//
//	welcome_title: "Hello"
//	welcome_body: "Nice to see you"
//
//	goodbye_title: "Bye"
//
// Values are always double-quoted. The output is deterministic for a given
// (translations, order) pair.
package yamlout

import (
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MimeLyc/yaml-translator/internal/apperr"
	"github.com/MimeLyc/yaml-translator/pkg/log"
)

var prefixPattern = regexp.MustCompile(`^([A-Za-z]+)[_0-9]`)

// escaper applies the substitutions in a single left-to-right pass, which
// is equivalent to replacing backslashes first, then quotes, then newlines.
var escaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

var unescaper = strings.NewReplacer(`\\`, `\`, `\"`, `"`, `\n`, "\n")

// Serialize renders translations. Keys come out in the order given by
// order (restricted to keys present in translations); when order is empty
// the keys are sorted.
func Serialize(translations map[string]string, order []string) string {
	var out string
	err := apperr.SafeExecute(func() error {
		out = render(translations, order)
		return nil
	})
	if err != nil {
		log.Warn("Grouped YAML rendering failed, using plain dump: %v", err)
		return Fallback(translations, order)
	}
	return out
}

func render(translations map[string]string, order []string) string {
	keys := OrderedKeys(translations, order)

	lines := make([]string, 0, len(keys)+len(keys)/4)
	prevPrefix := ""
	for i, key := range keys {
		prefix := Prefix(key)
		if i > 0 && prefix != prevPrefix {
			lines = append(lines, "")
		}
		lines = append(lines, key+`: "`+Escape(translations[key])+`"`)
		prevPrefix = prefix
	}
	return strings.Join(lines, "\n")
}

// OrderedKeys returns the emission order used by Serialize.
func OrderedKeys(translations map[string]string, order []string) []string {
	if len(order) > 0 {
		keys := make([]string, 0, len(translations))
		for _, key := range order {
			if _, ok := translations[key]; ok {
				keys = append(keys, key)
			}
		}
		return keys
	}

	keys := make([]string, 0, len(translations))
	for key := range translations {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Prefix returns the grouping prefix of key: the leading letters when they
// are immediately followed by an underscore or a digit, otherwise the whole
// key.
func Prefix(key string) string {
	if m := prefixPattern.FindStringSubmatch(key); m != nil {
		return m[1]
	}
	return key
}

func Escape(s string) string {
	return escaper.Replace(s)
}

// Unescape reverses Escape.
func Unescape(s string) string {
	return unescaper.Replace(s)
}

// Fallback dumps translations as a YAML mapping with double-quoted scalars
// and no grouping.
func Fallback(translations map[string]string, order []string) string {
	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, key := range OrderedKeys(translations, order) {
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: key},
			&yaml.Node{Kind: yaml.ScalarNode, Value: translations[key], Style: yaml.DoubleQuotedStyle},
		)
	}
	data, err := yaml.Marshal(&yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}})
	if err != nil {
		log.Error("Failed to marshal fallback YAML: %v", err)
		return ""
	}
	return string(data)
}
