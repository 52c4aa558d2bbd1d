package config

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

// validConfig returns a Config with all required fields set.
func validConfig() *Config {
	return &Config{
		Addr:              ":8080",
		Provider:          ProviderGemini,
		ModelName:         "gemini-2.5-flash",
		Temperature:       0.3,
		EmbedderModel:     DefaultEmbedderModel,
		EmbedderDimension: DefaultEmbedderDimension,
		VectorBackend:     BackendPostgres,
		RetrievalSQL:      DefaultRetrievalLimit,
		RetrievalDDL:      DefaultRetrievalLimit,
		RetrievalDoc:      DefaultRetrievalLimit,
		GenerateRPS:       2.0,
		PostgresHost:      "localhost",
		PostgresPort:      5432,
		PostgresUser:      "sqlpilot",
		PostgresPassword:  "test_password",
		PostgresDBName:    "sqlpilot",
		PostgresSSLMode:   "disable",
	}
}

func TestValidateSuccess(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-api-key")

	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() unexpected error with valid config: %v", err)
	}
}

func TestValidateMissingAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")

	cfg := validConfig()
	err := cfg.Validate()
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("Validate() error = %v, want ErrMissingAPIKey", err)
	}
}

func TestValidateFailures(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"empty addr", func(c *Config) { c.Addr = "" }, ErrInvalidAddr},
		{"empty model name", func(c *Config) { c.ModelName = "" }, ErrInvalidModelName},
		{"temperature too high", func(c *Config) { c.Temperature = 2.5 }, ErrInvalidTemperature},
		{"negative temperature", func(c *Config) { c.Temperature = -0.1 }, ErrInvalidTemperature},
		{"empty embedder model", func(c *Config) { c.EmbedderModel = "" }, ErrInvalidEmbedderModel},
		{"zero dimension", func(c *Config) { c.EmbedderDimension = 0 }, ErrInvalidEmbedderDimension},
		{"dimension too large", func(c *Config) { c.EmbedderDimension = 4096 }, ErrInvalidEmbedderDimension},
		{"unknown backend", func(c *Config) { c.VectorBackend = "chroma" }, ErrInvalidVectorBackend},
		{"zero retrieval limit", func(c *Config) { c.RetrievalSQL = 0 }, ErrInvalidRetrievalLimit},
		{"retrieval limit too large", func(c *Config) { c.RetrievalDoc = 101 }, ErrInvalidRetrievalLimit},
		{"empty postgres host", func(c *Config) { c.PostgresHost = "" }, ErrInvalidPostgresHost},
		{"port out of range", func(c *Config) { c.PostgresPort = 70000 }, ErrInvalidPostgresPort},
		{"empty db name", func(c *Config) { c.PostgresDBName = "" }, ErrInvalidPostgresDBName},
		{"deprecated ssl mode", func(c *Config) { c.PostgresSSLMode = "prefer" }, ErrInvalidPostgresSSLMode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GEMINI_API_KEY", "test-api-key")

			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestMarshalJSONMasksPassword(t *testing.T) {
	cfg := validConfig()
	cfg.PostgresPassword = "super_secret_password"

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	if strings.Contains(string(data), "super_secret_password") {
		t.Error("marshaled config leaks postgres password")
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if decoded["postgres_password"] == "" {
		t.Error("masked password should not be empty")
	}
}

func TestStringMasksPassword(t *testing.T) {
	cfg := validConfig()
	cfg.PostgresPassword = "super_secret_password"

	if strings.Contains(cfg.String(), "super_secret_password") {
		t.Error("String() leaks postgres password")
	}
}

func TestFullModelName(t *testing.T) {
	tests := []struct {
		model string
		want  string
	}{
		{"gemini-2.5-flash", "googleai/gemini-2.5-flash"},
		{"googleai/gemini-2.5-pro", "googleai/gemini-2.5-pro"},
	}

	for _, tt := range tests {
		cfg := validConfig()
		cfg.ModelName = tt.model
		if got := cfg.FullModelName(); got != tt.want {
			t.Errorf("FullModelName(%q) = %q, want %q", tt.model, got, tt.want)
		}
	}
}
