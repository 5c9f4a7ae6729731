package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/reoring/fieldmerge/orchestrator"
)

// LoadUpdates reads proposed field updates from a file.
func LoadUpdates(path string) ([]orchestrator.FieldUpdate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loader: read updates: %w", err)
	}
	return DecodeUpdates(data, FormatOf(path))
}

// DecodeUpdates accepts either a list of updates or an object with an
// "updates" list. Input with duplicated object keys is rejected. Numbers are decoded as json.Number so that the merge
// engine sees them exactly as written. YAML input is converted to the JSON
// data model first.
func DecodeUpdates(data []byte, format Format) ([]orchestrator.FieldUpdate, error) {
	if format == FormatYAML {
		var err error
		if data, err = yamlToJSON(data); err != nil {
			return nil, err
		}
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if dups, err := DetectDuplicateKeys(trimmed); err == nil && len(dups) > 0 {
		return nil, fmt.Errorf("loader: ambiguous updates: %s", dups[0])
	}
	if trimmed[0] == '[' {
		var list []orchestrator.FieldUpdate
		if err := decodeNumbers(trimmed, &list); err != nil {
			return nil, fmt.Errorf("loader: decode updates: %w", err)
		}
		return list, nil
	}
	var wrap struct {
		Updates []orchestrator.FieldUpdate `json:"updates"`
	}
	if err := decodeNumbers(trimmed, &wrap); err != nil {
		return nil, fmt.Errorf("loader: decode updates: %w", err)
	}
	return wrap.Updates, nil
}

// DecodeDocument decodes one structured document. An empty input yields an
// empty document.
func DecodeDocument(data []byte, format Format) (map[string]any, error) {
	if format == FormatYAML {
		var err error
		if data, err = yamlToJSON(data); err != nil {
			return nil, err
		}
	}
	doc := map[string]any{}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return doc, nil
	}
	if err := decodeNumbers(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("loader: decode document: %w", err)
	}
	return doc, nil
}

func decodeNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// yamlToJSON re-encodes the first YAML document as JSON.
func yamlToJSON(data []byte) ([]byte, error) {
	var node any
	if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&node); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("loader: decode yaml: %w", err)
	}
	out, err := json.Marshal(yamlNormalizeValue(node))
	if err != nil {
		return nil, fmt.Errorf("loader: convert yaml: %w", err)
	}
	return out, nil
}

// yamlNormalizeValue converts YAML-decoded values (which may contain
// map[any]any) into the JSON data model. Non-string keys are formatted.
func yamlNormalizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = yamlNormalizeValue(vv)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[fmt.Sprint(k)] = yamlNormalizeValue(vv)
		}
		return out
	case []any:
		arr := make([]any, len(t))
		for i := range t {
			arr[i] = yamlNormalizeValue(t[i])
		}
		return arr
	default:
		return v
	}
}
