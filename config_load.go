package genrotor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/halcyon-ai/genrotor/internal/logging"
)

// configSchemaJSON constrains the shape of config files before they are
// decoded into a Config. Semantic rules live in ValidateConfig.
const configSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "provider": {"type": "string", "enum": ["gemini", "openai", "bedrock"]},
    "credentials": {"type": "array", "items": {"type": "string", "minLength": 1}},
    "models": {"type": "array", "items": {"type": "string", "minLength": 1}},
    "base_url": {"type": "string"},
    "region": {"type": "string"},
    "attempt_log": {
      "type": "object",
      "properties": {
        "backend": {"type": "string", "enum": ["sqlite", "postgres"]},
        "dsn": {"type": "string"}
      },
      "required": ["backend"],
      "additionalProperties": false
    }
  },
  "additionalProperties": false
}`

var configSchema = jsonschema.MustCompileString("genrotor-config.schema.json", configSchemaJSON)

// LoadConfig reads and parses a config file from the given path.
// Supported formats: JSON (.json), YAML (.yaml, .yml). The file is checked
// against the embedded JSON Schema before decoding so misspelled keys fail
// loudly instead of being silently dropped.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var raw any
	var cfg Config
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}
		if err := configSchema.Validate(raw); err != nil {
			return nil, fmt.Errorf("invalid config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing JSON config: %w", err)
		}
		if err := configSchema.Validate(raw); err != nil {
			return nil, fmt.Errorf("invalid config %s: %w", path, err)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension %q: use .json, .yaml, or .yml", ext)
	}

	return &cfg, nil
}

// ValidateConfig validates a Config for correctness.
func ValidateConfig(cfg Config) error {
	switch cfg.Provider {
	case ProviderGemini, ProviderOpenAI, ProviderBedrock, "":
	default:
		return fmt.Errorf("unknown provider: %q", cfg.Provider)
	}

	if len(cfg.Credentials) == 0 {
		return fmt.Errorf("at least one credential is required")
	}
	for i, cred := range cfg.Credentials {
		if strings.TrimSpace(cred) == "" {
			return fmt.Errorf("credential %d is empty", i+1)
		}
	}

	if len(cfg.Models) == 0 {
		return fmt.Errorf("at least one model is required")
	}

	if al := cfg.AttemptLog; al != nil {
		switch al.Backend {
		case "sqlite":
		case "postgres":
			if strings.TrimSpace(al.DSN) == "" {
				return fmt.Errorf("attempt_log: postgres backend requires a dsn")
			}
		default:
			return fmt.Errorf("attempt_log: unknown backend %q", al.Backend)
		}
	}

	return nil
}

// Environment variables consumed by ConfigFromEnv.
const (
	envAPIKey = "GEMINI_API_KEY"
	envModels = "GEMINI_MODELS"
)

// defaultModels is the built-in roster used when GEMINI_MODELS is absent.
// Order defines priority.
var defaultModels = []string{
	"gemini-flash-latest",
	"gemini-flash-lite-latest",
	"gemini-3-flash-preview",
	"gemini-2.5-flash",
	"gemini-2.5-flash-lite",
	"gemini-2.0-flash",
	"gemini-2.0-flash-lite",
}

// ConfigFromEnv discovers a gemini config from environment variables:
// GEMINI_API_KEY plus numbered GEMINI_API_KEY_1..n (numbering stops at the
// first gap), and an optional GEMINI_MODELS JSON array overriding the
// default roster. Duplicate keys are dropped, first occurrence wins, so the
// resulting credential list stays ordered.
func ConfigFromEnv() Config {
	var keys []string
	if k := os.Getenv(envAPIKey); k != "" {
		keys = append(keys, k)
	}
	for i := 1; ; i++ {
		k := os.Getenv(fmt.Sprintf("%s_%d", envAPIKey, i))
		if k == "" {
			break
		}
		keys = append(keys, k)
	}
	keys = dedupe(keys)

	if len(keys) == 0 {
		logging.Logger.Warn("no GEMINI_API_KEY found in environment variables")
	}

	return Config{
		Provider:    ProviderGemini,
		Credentials: keys,
		Models:      modelsFromEnv(),
	}
}

func modelsFromEnv() []string {
	raw := os.Getenv(envModels)
	if raw == "" {
		return slices.Clone(defaultModels)
	}

	var models []string
	if err := json.Unmarshal([]byte(raw), &models); err != nil {
		logging.Logger.Warn("failed to parse GEMINI_MODELS, using default models", "error", err.Error())
		return slices.Clone(defaultModels)
	}
	return models
}

// dedupe removes duplicates while preserving first-occurrence order.
func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
