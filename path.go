package fieldmerge

import (
	"fmt"
	"strconv"
	"strings"
)

// wildcard is the segment produced by a "[]" array marker.
const wildcard = "[]"

// SplitPath splits a dot/bracket field path into segments. "a[2].b" and
// "a.2.b" both yield ["a" "2" "b"]; an empty marker "a[]" yields ["a" "[]"].
// Empty segments are dropped.
func SplitPath(path string) []string {
	var segs []string
	for _, part := range strings.Split(path, ".") {
		for part != "" {
			open := strings.IndexByte(part, '[')
			if open < 0 {
				segs = append(segs, part)
				break
			}
			if open > 0 {
				segs = append(segs, part[:open])
			}
			rest := part[open+1:]
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				// unterminated bracket: keep the remainder verbatim
				segs = append(segs, part[open:])
				break
			}
			if idx := rest[:end]; idx == "" {
				segs = append(segs, wildcard)
			} else {
				segs = append(segs, idx)
			}
			part = rest[end+1:]
		}
	}
	return segs
}

// isIndex reports whether seg parses as a non-negative integer.
func isIndex(seg string) bool {
	n, err := strconv.Atoi(seg)
	return err == nil && n >= 0
}

// GetFieldValue returns the value at path inside doc. It never panics; a
// missing or non-traversable intermediate yields (nil, false). A trailing
// "[]" marker is ignored. The empty path addresses doc itself.
func GetFieldValue(doc any, path string) (any, bool) {
	segs := SplitPath(path)
	if n := len(segs); n > 0 && segs[n-1] == wildcard {
		segs = segs[:n-1]
	}
	cur := doc
	for _, seg := range segs {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			if !isIndex(seg) {
				return nil, false
			}
			i, _ := strconv.Atoi(seg)
			if i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// SetFieldValue returns a copy of doc with value placed at path. Only the
// containers along the path are copied; sibling branches keep their identity
// and doc itself is never modified. Missing intermediates are created as an
// array when the following segment is a non-negative integer and as an
// object otherwise. An index may address an existing element or append at
// len; larger indices are rejected rather than padded. The empty path
// replaces the whole document, in which case value must be an object.
func SetFieldValue(doc map[string]any, path string, value any) (map[string]any, error) {
	segs := SplitPath(path)
	if len(segs) == 0 {
		m, ok := value.(map[string]any)
		if !ok {
			return nil, singleIssue(path, CodePathInvalid, fmt.Sprintf("document root must be an object, got %s", kindOf(value)))
		}
		return m, nil
	}
	for _, seg := range segs {
		if seg == wildcard {
			return nil, singleIssue(path, CodePathInvalid, "path addresses every array element; use an element index instead of []")
		}
	}
	if doc == nil {
		doc = map[string]any{}
	}
	out, err := setIn(doc, segs, value, path)
	if err != nil {
		return nil, err
	}
	return out.(map[string]any), nil
}

func setIn(node any, segs []string, value any, path string) (any, error) {
	if len(segs) == 0 {
		return value, nil
	}
	seg := segs[0]
	if node == nil {
		if isIndex(seg) {
			node = []any{}
		} else {
			node = map[string]any{}
		}
	}
	switch n := node.(type) {
	case map[string]any:
		child, err := setIn(n[seg], segs[1:], value, path)
		if err != nil {
			return nil, err
		}
		out := cloneMap(n)
		out[seg] = child
		return out, nil
	case []any:
		if !isIndex(seg) {
			return nil, singleIssue(path, CodePathInvalid, fmt.Sprintf("segment %q is not a valid array index", seg))
		}
		i, _ := strconv.Atoi(seg)
		if i > len(n) {
			return nil, singleIssue(path, CodePathInvalid, fmt.Sprintf("index %d is past the end of an array of length %d", i, len(n)))
		}
		size := len(n)
		if i == size {
			size++
		}
		out := make([]any, size)
		copy(out, n)
		child, err := setIn(out[i], segs[1:], value, path)
		if err != nil {
			return nil, err
		}
		out[i] = child
		return out, nil
	default:
		return nil, singleIssue(path, CodePathInvalid, fmt.Sprintf("cannot descend into %s at segment %q", kindOf(node), seg))
	}
}

// JoinPath appends key to a dotted parent path.
func JoinPath(parent, key string) string {
	switch {
	case parent == "":
		return key
	case key == "":
		return parent
	}
	return parent + "." + key
}
