package fieldmerge

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Validate checks value against the type, required and enum constraints of
// schema, coercing primitives where a lossless-enough conversion exists.
// Coercions are reported as warnings; the coerced value is returned in
// ValidationResult.Value. Validate does not recurse into children.
func Validate(value any, schema *FieldSchema) ValidationResult {
	res := ValidationResult{Valid: true, Value: value}
	if schema == nil {
		return res
	}
	path := schema.Key

	if value == nil {
		if schema.Required {
			res.fail(Issue{Path: path, Code: CodeRequired, Message: "field is required"})
		}
		return res
	}

	switch schema.Type {
	case TypeString:
		if _, ok := value.(string); !ok {
			s, err := stringify(value)
			if err != nil {
				res.fail(Issue{
					Path:    path,
					Code:    CodeInvalidType,
					Message: fmt.Sprintf("expected string, got %s: coercion failed: %v", kindOf(value), err),
					Params:  map[string]any{"expected": "string", "got": kindOf(value)},
				})
				return res
			}
			res.Value = s
			res.warn("coerced %s to string", kindOf(value))
		}
	case TypeNumber:
		n, coerced, err := toNumber(value)
		if err != nil {
			res.fail(Issue{
				Path:    path,
				Code:    CodeInvalidType,
				Message: err.Error(),
				Params:  map[string]any{"expected": "number", "got": kindOf(value)},
			})
			return res
		}
		if coerced {
			res.Value = n
			res.warn("coerced %s %v to number", kindOf(value), value)
		}
	case TypeBoolean:
		if _, ok := value.(bool); !ok {
			b, ok := toBool(value)
			if !ok {
				res.fail(Issue{
					Path:    path,
					Code:    CodeInvalidType,
					Message: fmt.Sprintf("expected boolean, got %s", kindOf(value)),
					Params:  map[string]any{"expected": "boolean", "got": kindOf(value)},
				})
				return res
			}
			res.Value = b
			res.warn("coerced %s %v to boolean", kindOf(value), value)
		}
	case TypeArray:
		if _, ok := toAnySlice(value); !ok {
			res.fail(Issue{
				Path:    path,
				Code:    CodeInvalidType,
				Message: fmt.Sprintf("expected array, got %s", kindOf(value)),
				Params:  map[string]any{"expected": "array", "got": kindOf(value)},
			})
			return res
		}
	case TypeObject:
		if _, ok := value.(map[string]any); !ok {
			res.fail(Issue{
				Path:    path,
				Code:    CodeInvalidType,
				Message: fmt.Sprintf("expected object, got %s", kindOf(value)),
				Params:  map[string]any{"expected": "object", "got": kindOf(value)},
			})
			return res
		}
	default:
		res.fail(Issue{Path: path, Code: CodeInvalidType, Message: fmt.Sprintf("unsupported schema type %s", schema.Type)})
		return res
	}

	if len(schema.Options) > 0 {
		s, _ := stringify(res.Value)
		if !containsString(schema.Options, s) {
			res.fail(Issue{
				Path:    path,
				Code:    CodeInvalidEnum,
				Message: fmt.Sprintf("value %q is not one of the allowed values: %s", s, strings.Join(schema.Options, ", ")),
				Params:  map[string]any{"allowed": schema.Options, "got": s},
			})
		}
	}
	return res
}

// Coerce returns the coerced form of value under schema, or (value, false)
// when value does not validate.
func Coerce(value any, schema *FieldSchema) (any, bool) {
	res := Validate(value, schema)
	if !res.Valid {
		return value, false
	}
	return res.Value, true
}

func (r *ValidationResult) fail(it Issue) {
	r.Valid = false
	r.Errors = AppendIssues(r.Errors, it)
}

func (r *ValidationResult) warn(format string, a ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, a...))
}

// toNumber follows JavaScript's Number() for strings and booleans, except
// that blank strings are rejected instead of becoming 0.
func toNumber(v any) (n float64, coerced bool, err error) {
	if f, ok := asFloat(v); ok {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false, fmt.Errorf("expected number, got %s", formatNumber(f))
		}
		return f, false, nil
	}
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		f, perr := strconv.ParseFloat(s, 64)
		if perr != nil || s == "" || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false, fmt.Errorf("expected number, got string %q: coercion failed", t)
		}
		return f, true, nil
	case bool:
		if t {
			return 1, true, nil
		}
		return 0, true, nil
	}
	return 0, false, fmt.Errorf("expected number, got %s: coercion failed", kindOf(v))
}

func toBool(v any) (bool, bool) {
	if s, ok := v.(string); ok {
		switch s {
		case "true":
			return true, true
		case "false":
			return false, true
		}
		return false, false
	}
	if f, ok := asFloat(v); ok {
		switch f {
		case 1:
			return true, true
		case 0:
			return false, true
		}
	}
	return false, false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
