package loader

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// DuplicateKey reports an object key that appears more than once. Path is a
// JSON Pointer to the object holding the key.
type DuplicateKey struct {
	Path string
	Key  string
}

func (d DuplicateKey) String() string {
	return fmt.Sprintf("key %q duplicated at %s", d.Key, d.Path)
}

type frameKind int

const (
	frameObject frameKind = iota
	frameArray
)

type dupFrame struct {
	kind         frameKind
	keys         map[string]struct{}
	expectingKey bool
	seg          string // pointer segment of this container inside its parent
	index        int
	lastKey      string
}

// DetectDuplicateKeys scans JSON input token by token and lists every
// duplicated object key. Decoders silently keep the last occurrence, which
// hides ambiguous proposals such as two "value" entries in one update.
func DetectDuplicateKeys(data []byte) ([]DuplicateKey, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var (
		out   []DuplicateKey
		stack []dupFrame
	)
	// childSeg returns the pointer segment of the value about to start.
	childSeg := func() string {
		if len(stack) == 0 {
			return ""
		}
		top := &stack[len(stack)-1]
		if top.kind == frameArray {
			s := strconv.Itoa(top.index)
			top.index++
			return s
		}
		top.expectingKey = true
		return escapePointer(top.lastKey)
	}
	pointer := func() string {
		b := &strings.Builder{}
		for _, f := range stack[1:] {
			b.WriteByte('/')
			b.WriteString(f.seg)
		}
		if b.Len() == 0 {
			return "/"
		}
		return b.String()
	}

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			if len(stack) > 0 {
				return out, io.ErrUnexpectedEOF
			}
			return out, nil
		}
		if err != nil {
			return out, err
		}
		switch v := tok.(type) {
		case json.Delim:
			switch v {
			case '{':
				seg := childSeg()
				stack = append(stack, dupFrame{kind: frameObject, keys: map[string]struct{}{}, expectingKey: true, seg: seg})
			case '[':
				seg := childSeg()
				stack = append(stack, dupFrame{kind: frameArray, seg: seg})
			case '}', ']':
				stack = stack[:len(stack)-1]
			}
		case string:
			if n := len(stack); n > 0 && stack[n-1].kind == frameObject && stack[n-1].expectingKey {
				top := &stack[n-1]
				if _, dup := top.keys[v]; dup {
					out = append(out, DuplicateKey{Path: pointer(), Key: v})
				}
				top.keys[v] = struct{}{}
				top.lastKey = v
				top.expectingKey = false
				continue
			}
			childSeg()
		default:
			childSeg()
		}
	}
}

func escapePointer(s string) string {
	return strings.NewReplacer("~", "~0", "/", "~1").Replace(s)
}
