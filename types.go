package fieldmerge

import (
	"fmt"
	"time"
)

// FieldType identifies the kind of value a FieldSchema describes. The zero
// value is not a valid type, so a schema node without a type fails
// validation instead of silently becoming a string.
type FieldType int

const (
	TypeString FieldType = iota + 1
	TypeNumber
	TypeBoolean
	TypeArray
	TypeObject
)

// String returns the wire name of the type.
func (t FieldType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeNumber:
		return "number"
	case TypeBoolean:
		return "boolean"
	case TypeArray:
		return "array"
	case TypeObject:
		return "object"
	default:
		return fmt.Sprintf("FieldType(%d)", int(t))
	}
}

// ParseFieldType maps a wire name to a FieldType.
func ParseFieldType(s string) (FieldType, error) {
	switch s {
	case "string":
		return TypeString, nil
	case "number":
		return TypeNumber, nil
	case "boolean":
		return TypeBoolean, nil
	case "array":
		return TypeArray, nil
	case "object":
		return TypeObject, nil
	default:
		return 0, fmt.Errorf("fieldmerge: unknown field type %q", s)
	}
}

func (t FieldType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *FieldType) UnmarshalText(b []byte) error {
	v, err := ParseFieldType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// FieldSchema describes one field of a structured document. For object fields
// Children lists the nested properties; for array fields Children describes
// the shape of each element.
type FieldSchema struct {
	Key      string        `json:"key" yaml:"key" validate:"required"`
	Type     FieldType     `json:"type" yaml:"type" validate:"gte=1,lte=5"`
	Required bool          `json:"required,omitempty" yaml:"required,omitempty"`
	Options  []string      `json:"options,omitempty" yaml:"options,omitempty"`
	Children []FieldSchema `json:"children,omitempty" yaml:"children,omitempty" validate:"dive"`
}

// Child returns the direct child with the given key.
func (f *FieldSchema) Child(key string) (*FieldSchema, bool) {
	if f == nil {
		return nil, false
	}
	for i := range f.Children {
		if f.Children[i].Key == key {
			return &f.Children[i], true
		}
	}
	return nil, false
}

// SectionSchema is the template for one section type.
type SectionSchema struct {
	Key    string        `json:"key" yaml:"key" validate:"required"`
	Fields []FieldSchema `json:"fields" yaml:"fields" validate:"dive"`
}

// Root returns an object schema whose children are the section's top-level
// fields. It is used when an update targets the whole document.
func (s *SectionSchema) Root() *FieldSchema {
	return &FieldSchema{Key: s.Key, Type: TypeObject, Children: s.Fields}
}

// Field returns the top-level field with the given key.
func (s *SectionSchema) Field(key string) (*FieldSchema, bool) {
	for i := range s.Fields {
		if s.Fields[i].Key == key {
			return &s.Fields[i], true
		}
	}
	return nil, false
}

// Strategy selects how a new value combines with an existing one.
type Strategy string

const (
	StrategyReplace Strategy = "replace"
	StrategyAppend  Strategy = "append"
	StrategyMerge   Strategy = "merge"
)

// ConflictType classifies a ConflictInfo.
type ConflictType string

const (
	ConflictTypeMismatch    ConflictType = "type_mismatch"
	ConflictValueConflict   ConflictType = "value_conflict"
	ConflictSchemaViolation ConflictType = "schema_violation"
)

// ConflictInfo is an advisory note produced by a merge. It never blocks the
// merge on its own.
type ConflictInfo struct {
	FieldPath           string       `json:"field_path"`
	ConflictType        ConflictType `json:"conflict_type"`
	CurrentValue        any          `json:"current_value"`
	NewValue            any          `json:"new_value"`
	SuggestedResolution string       `json:"suggested_resolution"`
	Description         string       `json:"description"`
}

// MergeMetadata records the inputs of a merge.
type MergeMetadata struct {
	OriginalValue any       `json:"originalValue"`
	Strategy      Strategy  `json:"strategy"`
	Timestamp     time.Time `json:"timestamp"`
	Confidence    *float64  `json:"confidence,omitempty"`
}

// MergeResult is produced once per field update. MergedValue is a new value;
// the caller's current value is never modified in place. Errors lists the
// reasons a merge was rejected and is empty on success.
type MergeResult struct {
	Success     bool           `json:"success"`
	MergedValue any            `json:"mergedValue"`
	Conflicts   []ConflictInfo `json:"conflicts,omitempty"`
	Warnings    []string       `json:"warnings,omitempty"`
	Errors      Issues         `json:"errors,omitempty"`
	Metadata    MergeMetadata  `json:"metadata"`
}

// ValidationResult reports the outcome of Validate. Value holds the coerced
// value and is only meaningful when Valid is true.
type ValidationResult struct {
	Valid    bool
	Errors   Issues
	Warnings []string
	Value    any
}
