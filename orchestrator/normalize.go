package orchestrator

import (
	"strings"

	fieldmerge "github.com/reoring/fieldmerge"
)

// NormalizeFieldPath strips redundant prefixes from an AI-produced field
// path so that it is relative to the section document root. A leading
// section key (the schema key or any of sectionKeys) is removed unless it is
// also the name of a top-level field; a leading storage-key segment is
// collapsed, and a path naming only a section key or the storage key becomes
// the root path "". Normalizing a normalized path returns it unchanged.
func NormalizeFieldPath(path string, schema *fieldmerge.SectionSchema, storageKey string, sectionKeys ...string) string {
	if storageKey == "" {
		storageKey = fieldmerge.DefaultStorageKey
	}
	prefixes := make([]string, 0, len(sectionKeys)+1)
	if schema != nil && schema.Key != "" {
		prefixes = append(prefixes, schema.Key)
	}
	for _, k := range sectionKeys {
		if k != "" {
			prefixes = append(prefixes, k)
		}
	}

	p := strings.TrimSpace(path)
	for {
		next := p
		if next == storageKey {
			next = ""
		} else if strings.HasPrefix(next, storageKey+".") {
			next = strings.TrimPrefix(next, storageKey+".")
		}
		for _, pre := range prefixes {
			if isTopLevelField(schema, pre) {
				continue
			}
			if next == pre {
				next = ""
				break
			}
			if strings.HasPrefix(next, pre+".") {
				next = strings.TrimPrefix(next, pre+".")
				break
			}
		}
		if next == p {
			return p
		}
		p = next
	}
}

func isTopLevelField(schema *fieldmerge.SectionSchema, key string) bool {
	if schema == nil {
		return false
	}
	_, ok := schema.Field(key)
	return ok
}
