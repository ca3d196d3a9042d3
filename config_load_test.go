package genrotor

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadConfig_YAML(t *testing.T) {
	path := writeTemp(t, "config.yaml", `
provider: gemini
credentials:
  - key-one
  - key-two
models:
  - gemini-2.5-flash
  - gemini-2.0-flash
attempt_log:
  backend: sqlite
  dsn: /tmp/attempts.db
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.Provider != ProviderGemini {
		t.Errorf("Provider = %q", cfg.Provider)
	}
	if !reflect.DeepEqual(cfg.Credentials, []string{"key-one", "key-two"}) {
		t.Errorf("Credentials = %v", cfg.Credentials)
	}
	if len(cfg.Models) != 2 {
		t.Errorf("Models = %v", cfg.Models)
	}
	if cfg.AttemptLog == nil || cfg.AttemptLog.Backend != "sqlite" {
		t.Errorf("AttemptLog = %+v", cfg.AttemptLog)
	}
}

func TestLoadConfig_JSON(t *testing.T) {
	path := writeTemp(t, "config.json", `{
  "provider": "openai",
  "credentials": ["sk-test"],
  "models": ["gpt-4o", "gpt-4o-mini"]
}`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.Provider != ProviderOpenAI || len(cfg.Credentials) != 1 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadConfig_UnknownExtension(t *testing.T) {
	path := writeTemp(t, "config.toml", `provider = "gemini"`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}

func TestLoadConfig_SchemaRejectsUnknownKeys(t *testing.T) {
	path := writeTemp(t, "config.yaml", `
provider: gemini
credentialz:
  - oops
`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected schema violation for misspelled key")
	}
}

func TestLoadConfig_SchemaRejectsBadProvider(t *testing.T) {
	path := writeTemp(t, "config.json", `{"provider": "acme", "credentials": ["k"], "models": ["m"]}`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected schema violation for unknown provider")
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{Credentials: []string{"k"}, Models: []string{"m"}}, false},
		{"no credentials", Config{Models: []string{"m"}}, true},
		{"blank credential", Config{Credentials: []string{"  "}, Models: []string{"m"}}, true},
		{"no models", Config{Credentials: []string{"k"}}, true},
		{"unknown provider", Config{Provider: "acme", Credentials: []string{"k"}, Models: []string{"m"}}, true},
		{"postgres journal without dsn", Config{
			Credentials: []string{"k"}, Models: []string{"m"},
			AttemptLog: &AttemptLogConfig{Backend: "postgres"},
		}, true},
		{"sqlite journal without dsn", Config{
			Credentials: []string{"k"}, Models: []string{"m"},
			AttemptLog: &AttemptLogConfig{Backend: "sqlite"},
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConfig(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigFromEnv_NumberedKeys(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "base")
	t.Setenv("GEMINI_API_KEY_1", "one")
	t.Setenv("GEMINI_API_KEY_2", "two")
	// A numbering gap stops discovery.
	t.Setenv("GEMINI_API_KEY_4", "ignored")
	t.Setenv("GEMINI_MODELS", "")

	cfg := ConfigFromEnv()
	want := []string{"base", "one", "two"}
	if !reflect.DeepEqual(cfg.Credentials, want) {
		t.Errorf("Credentials = %v, want %v", cfg.Credentials, want)
	}
	if !reflect.DeepEqual(cfg.Models, defaultModels) {
		t.Errorf("Models = %v, want default roster", cfg.Models)
	}
}

func TestConfigFromEnv_DedupePreservesOrder(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "dup")
	t.Setenv("GEMINI_API_KEY_1", "unique")
	t.Setenv("GEMINI_API_KEY_2", "dup")

	cfg := ConfigFromEnv()
	want := []string{"dup", "unique"}
	if !reflect.DeepEqual(cfg.Credentials, want) {
		t.Errorf("Credentials = %v, want %v", cfg.Credentials, want)
	}
}

func TestConfigFromEnv_ModelsOverride(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "k")
	t.Setenv("GEMINI_MODELS", `["gemini-2.5-pro", "gemini-2.5-flash"]`)

	cfg := ConfigFromEnv()
	want := []string{"gemini-2.5-pro", "gemini-2.5-flash"}
	if !reflect.DeepEqual(cfg.Models, want) {
		t.Errorf("Models = %v, want %v", cfg.Models, want)
	}
}

func TestConfigFromEnv_BadModelsFallsBack(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "k")
	t.Setenv("GEMINI_MODELS", `{"not": "a list"}`)

	cfg := ConfigFromEnv()
	if !reflect.DeepEqual(cfg.Models, defaultModels) {
		t.Errorf("Models = %v, want default roster", cfg.Models)
	}
}
