package fieldmerge

import (
	"errors"
	"fmt"
	"strings"
)

// Issue codes
const (
	// Validation
	CodeInvalidType = "invalid_type"
	CodeRequired    = "required"
	CodeInvalidEnum = "invalid_enum"
	// Paths
	CodeUnknownPath = "unknown_path"
	CodePathInvalid = "path_invalid"
	CodeNoSchema    = "no_schema"
	// Batch scope and update shape
	CodeOutOfScope    = "out_of_scope"
	CodeInvalidUpdate = "invalid_update"
	// Merge
	CodeUnknownStrategy = "unknown_strategy"
	CodeDepthExceeded   = "depth_exceeded"
	CodeCorruption      = "corruption_detected"
	// Collaborators and everything else
	CodeStore      = "store_error"
	CodeUnexpected = "unexpected"
)

// Issue represents a single diagnostic entry.
type Issue struct {
	Path    string // Dotted field path relative to the section document ("" is the root).
	Code    string // One of the codes listed above.
	Message string
	// Params carries structured parameters (e.g., {"expected":"number","got":"string"})
	// for i18n and observability.
	Params map[string]any
}

func (it Issue) String() string {
	if it.Path == "" {
		return fmt.Sprintf("%s: %s", it.Code, it.Message)
	}
	return fmt.Sprintf("%s at %s: %s", it.Code, it.Path, it.Message)
}

// Issues is a collection of diagnostics that implements error.
type Issues []Issue

// Error summarizes the first few issues.
func (iss Issues) Error() string {
	if len(iss) == 0 {
		return ""
	}
	const maxShown = 3
	b := &strings.Builder{}
	n := len(iss)
	lim := n
	if lim > maxShown {
		lim = maxShown
	}
	for i := 0; i < lim; i++ {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(iss[i].String())
	}
	if n > lim {
		fmt.Fprintf(b, "; ... (total %d)", n)
	}
	return b.String()
}

// Messages returns the issue messages in order.
func (iss Issues) Messages() []string {
	if len(iss) == 0 {
		return nil
	}
	out := make([]string, len(iss))
	for i := range iss {
		out[i] = iss[i].Message
	}
	return out
}

// FirstCode returns the code of the first issue, or "" when empty.
func (iss Issues) FirstCode() string {
	if len(iss) == 0 {
		return ""
	}
	return iss[0].Code
}

// AppendIssues appends issues to the destination, initializing the slice when
// needed.
func AppendIssues(dst Issues, more ...Issue) Issues {
	if dst == nil {
		dst = Issues{}
	}
	dst = append(dst, more...)
	return dst
}

// AsIssues extracts Issues from an error using errors.As internally.
func AsIssues(err error) (Issues, bool) {
	if err == nil {
		return nil, false
	}
	var iss Issues
	if errors.As(err, &iss) {
		return iss, true
	}
	return nil, false
}

// IssueAt creates an Issue at the given path with provided code, message and params map.
func IssueAt(path, code, msg string, params map[string]any) Issue {
	return Issue{Path: path, Code: code, Message: msg, Params: params}
}

func singleIssue(path, code, msg string) Issues {
	return AppendIssues(nil, IssueAt(path, code, msg, nil))
}
