package fieldmerge

import (
	"fmt"
	"strings"
)

// FlattenPaths lists every field path reachable in fields, depth-first in
// declaration order. Children of an object field are prefixed "parent." and
// children of an array field "parent[].".
func FlattenPaths(fields []FieldSchema) []string {
	var out []string
	flattenInto(&out, fields, "")
	return out
}

func flattenInto(out *[]string, fields []FieldSchema, prefix string) {
	for i := range fields {
		f := &fields[i]
		p := f.Key
		if prefix != "" {
			p = prefix + "." + f.Key
		}
		*out = append(*out, p)
		if len(f.Children) == 0 {
			continue
		}
		switch f.Type {
		case TypeArray:
			flattenInto(out, f.Children, p+"[]")
		default:
			flattenInto(out, f.Children, p)
		}
	}
}

// Paths returns the flattened allowed paths of the section.
func (s *SectionSchema) Paths() []string { return FlattenPaths(s.Fields) }

// PathSet returns the allowed paths as a set.
func (s *SectionSchema) PathSet() map[string]struct{} {
	paths := s.Paths()
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return set
}

// CanonicalPath rewrites element indices into the "[]" marker used by
// FlattenPaths: "items[2].title" and "items.2.title" become "items[].title".
func CanonicalPath(path string) string {
	b := &strings.Builder{}
	for _, seg := range SplitPath(path) {
		if seg == wildcard || isIndex(seg) {
			b.WriteString(wildcard)
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(seg)
	}
	return b.String()
}

// Lookup resolves path to the schema node that describes the value stored
// there. Element indices resolve to a synthetic object node built from the
// array's children; for arrays without children the element node is nil and
// the element is unconstrained. The empty path resolves to the section root.
// Errors explain which part of the path does not exist in the schema.
func (s *SectionSchema) Lookup(path string) (*FieldSchema, error) {
	node := s.Root()
	walked := ""
	for _, seg := range SplitPath(path) {
		if seg == wildcard || isIndex(seg) {
			if node == nil || node.Type != TypeArray {
				return nil, singleIssue(path, CodeUnknownPath, fmt.Sprintf("%q is not an array field", walked))
			}
			walked += wildcard
			if len(node.Children) == 0 {
				node = nil
				continue
			}
			node = &FieldSchema{Key: node.Key, Type: TypeObject, Children: node.Children}
			continue
		}
		if node == nil {
			// inside an unconstrained array element
			walked = JoinPath(walked, seg)
			continue
		}
		switch node.Type {
		case TypeObject:
		case TypeArray:
			return nil, singleIssue(path, CodeUnknownPath, fmt.Sprintf("%q is an array field; address its elements with an index", walked))
		default:
			return nil, singleIssue(path, CodeUnknownPath, fmt.Sprintf("%q is a %s field and has no nested fields", walked, node.Type))
		}
		child, ok := node.Child(seg)
		if !ok {
			where := walked
			if where == "" {
				where = s.Key
			}
			return nil, singleIssue(path, CodeUnknownPath, fmt.Sprintf("field %q not found under %q", seg, where))
		}
		walked = JoinPath(walked, seg)
		node = child
	}
	return node, nil
}
