// Package loader reads section schemas, field updates and documents from
// JSON or YAML sources.
package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	fieldmerge "github.com/reoring/fieldmerge"
)

// Format selects the encoding of an input.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

// FormatOf infers the format from a file extension. Unknown extensions are
// treated as JSON.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// SchemaIndex maps section keys to their schemas.
type SchemaIndex map[string]*fieldmerge.SectionSchema

// Keys returns the section keys in lexical order.
func (ix SchemaIndex) Keys() []string {
	keys := make([]string, 0, len(ix))
	for k := range ix {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var validate = validator.New()

// LoadSchemas reads a schema file. See ParseSchemas for the accepted layouts.
func LoadSchemas(path string) (SchemaIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loader: read schemas: %w", err)
	}
	return ParseSchemas(data, FormatOf(path))
}

// ParseSchemas decodes section schemas. A document may be a single section
// object, a list of sections, or an object with a "sections" list. YAML input
// may hold several documents. Every section is validated and keys must be
// unique.
func ParseSchemas(data []byte, format Format) (SchemaIndex, error) {
	var sections []fieldmerge.SectionSchema
	var err error
	switch format {
	case FormatYAML:
		sections, err = parseSchemasYAML(data)
	default:
		sections, err = parseSchemasJSON(data)
	}
	if err != nil {
		return nil, err
	}
	ix := SchemaIndex{}
	for i := range sections {
		s := &sections[i]
		if err := validate.Struct(s); err != nil {
			return nil, fmt.Errorf("loader: section %d (%q): %w", i, s.Key, err)
		}
		if _, dup := ix[s.Key]; dup {
			return nil, fmt.Errorf("loader: duplicate section key %q", s.Key)
		}
		ix[s.Key] = s
	}
	return ix, nil
}

type sectionList struct {
	Sections []fieldmerge.SectionSchema `json:"sections" yaml:"sections"`
}

func parseSchemasYAML(data []byte) ([]fieldmerge.SectionSchema, error) {
	var out []fieldmerge.SectionSchema
	dec := yaml.NewDecoder(bytes.NewReader(data))
	for {
		var node yaml.Node
		if err := dec.Decode(&node); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("loader: decode yaml: %w", err)
		}
		root := &node
		if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
			root = root.Content[0]
		}
		switch root.Kind {
		case yaml.SequenceNode:
			var list []fieldmerge.SectionSchema
			if err := root.Decode(&list); err != nil {
				return nil, fmt.Errorf("loader: decode sections at line %d: %w", root.Line, err)
			}
			out = append(out, list...)
		case yaml.MappingNode:
			if hasMappingKey(root, "sections") {
				var wrap sectionList
				if err := root.Decode(&wrap); err != nil {
					return nil, fmt.Errorf("loader: decode sections at line %d: %w", root.Line, err)
				}
				out = append(out, wrap.Sections...)
				continue
			}
			var s fieldmerge.SectionSchema
			if err := root.Decode(&s); err != nil {
				return nil, fmt.Errorf("loader: decode section at line %d: %w", root.Line, err)
			}
			out = append(out, s)
		default:
			return nil, fmt.Errorf("loader: line %d: expected a section mapping or sequence", root.Line)
		}
	}
	return out, nil
}

func hasMappingKey(n *yaml.Node, key string) bool {
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return true
		}
	}
	return false
}

func parseSchemasJSON(data []byte) ([]fieldmerge.SectionSchema, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var list []fieldmerge.SectionSchema
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("loader: decode sections: %w", err)
		}
		return list, nil
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return nil, fmt.Errorf("loader: decode sections: %w", err)
	}
	if _, ok := probe["sections"]; ok {
		var wrap sectionList
		if err := json.Unmarshal(trimmed, &wrap); err != nil {
			return nil, fmt.Errorf("loader: decode sections: %w", err)
		}
		return wrap.Sections, nil
	}
	var s fieldmerge.SectionSchema
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return nil, fmt.Errorf("loader: decode section: %w", err)
	}
	return []fieldmerge.SectionSchema{s}, nil
}
