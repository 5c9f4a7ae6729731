// Package jsonschema exports section schemas as JSON Schema documents so
// that external tools can check proposed documents before submitting them.
package jsonschema

import (
	fieldmerge "github.com/reoring/fieldmerge"
)

// Draft is the JSON Schema dialect emitted by FromSection.
const Draft = "https://json-schema.org/draft/2020-12/schema"

// Schema is a minimal JSON Schema representation used for export.
type Schema struct {
	// Core
	SchemaURI string `json:"$schema,omitempty"`
	Title     string `json:"title,omitempty"`
	Type      any    `json:"type,omitempty"`
	Enum      []any  `json:"enum,omitempty"`

	// Object
	Properties           map[string]*Schema `json:"properties,omitempty"`
	Required             []string           `json:"required,omitempty"`
	AdditionalProperties any                `json:"additionalProperties,omitempty"`

	// Array
	Items *Schema `json:"items,omitempty"`
}

// FromSection converts a section schema into an object schema describing
// the section document. Unknown properties stay allowed because object
// merges copy them through.
func FromSection(s *fieldmerge.SectionSchema) *Schema {
	out := FromField(s.Root())
	out.SchemaURI = Draft
	out.Title = s.Key
	out.Type = fieldmerge.TypeObject.String()
	return out
}

// FromField converts one field schema. Optional fields also accept null,
// including fields restricted to a set of options.
func FromField(f *fieldmerge.FieldSchema) *Schema {
	out := &Schema{}
	typ := f.Type.String()
	if f.Required {
		out.Type = typ
	} else {
		out.Type = []string{typ, "null"}
	}
	if len(f.Options) > 0 {
		out.Enum = make([]any, 0, len(f.Options)+1)
		for _, o := range f.Options {
			out.Enum = append(out.Enum, o)
		}
		if !f.Required {
			out.Enum = append(out.Enum, nil)
		}
	}
	switch f.Type {
	case fieldmerge.TypeObject:
		if len(f.Children) == 0 {
			break
		}
		out.Properties = make(map[string]*Schema, len(f.Children))
		for i := range f.Children {
			c := &f.Children[i]
			out.Properties[c.Key] = FromField(c)
			if c.Required {
				out.Required = append(out.Required, c.Key)
			}
		}
	case fieldmerge.TypeArray:
		if len(f.Children) == 0 {
			break
		}
		out.Items = FromField(&fieldmerge.FieldSchema{Key: f.Key, Type: fieldmerge.TypeObject, Required: true, Children: f.Children})
	}
	return out
}
