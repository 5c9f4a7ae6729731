// Package config loads fieldmerge settings from defaults, a JSON file and
// FIELDMERGE_ environment variables.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	fieldmerge "github.com/reoring/fieldmerge"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "FIELDMERGE_"

// Configuration holds the engine and orchestrator settings.
type Configuration struct {
	ConflictThreshold  float64  `koanf:"conflict_threshold" validate:"gt=0,lte=1"`
	MaxDepth           int      `koanf:"max_depth" validate:"min=1,max=1024"`
	StorageKey         string   `koanf:"storage_key" validate:"required"`
	ReplaceMode        bool     `koanf:"replace_mode"`
	DryRun             bool     `koanf:"dry_run"`
	Language           string   `koanf:"language" validate:"omitempty,oneof=en ja"`
	LogLevel           string   `koanf:"log_level" validate:"oneof=debug info warn error"`
	LogPretty          bool     `koanf:"log_pretty"`
	DefaultSectionKeys []string `koanf:"default_section_keys"`
}

// GetDefaults returns the default values keyed by config key.
func GetDefaults() map[string]any {
	return map[string]any{
		"conflict_threshold":   fieldmerge.DefaultConflictThreshold,
		"max_depth":            fieldmerge.DefaultMaxDepth,
		"storage_key":          fieldmerge.DefaultStorageKey,
		"replace_mode":         false,
		"dry_run":              false,
		"language":             "en",
		"log_level":            "info",
		"log_pretty":           false,
		"default_section_keys": []string{},
	}
}

// Load resolves the configuration.
// Priority: Environment variables > config file > Defaults.
// A missing file at path is ignored; an empty path skips the file.
func Load(path string) (*Configuration, error) {
	k := koanf.New(".")

	for key, value := range GetDefaults() {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("failed to set default %s: %w", key, err)
		}
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), json.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	var cfg Configuration
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// EngineOptions maps the configuration onto merge engine options.
func (c *Configuration) EngineOptions() fieldmerge.EngineOptions {
	return fieldmerge.EngineOptions{ConflictThreshold: c.ConflictThreshold, MaxDepth: c.MaxDepth}
}

// envTransform converts environment variable names to config keys.
// Example: FIELDMERGE_MAX_DEPTH -> max_depth
func envTransform(s string) string {
	return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
}
