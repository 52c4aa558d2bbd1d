package config

import (
	"fmt"
	"os"
	"slices"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// API key is read directly by Genkit; validate presence here (fail-fast).
	if os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required\n"+
			"Get your API key at: https://ai.google.dev/gemini-api/docs/api-key",
			ErrMissingAPIKey)
	}

	if c.Addr == "" {
		return fmt.Errorf("%w: addr cannot be empty", ErrInvalidAddr)
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}

	// Temperature range: 0.0 (deterministic) to 2.0 (maximum creativity).
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("%w: must be between 0.0 and 2.0, got %.2f", ErrInvalidTemperature, c.Temperature)
	}

	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedderModel)
	}

	// 3072 is gemini-embedding-001's maximum output dimensionality.
	if c.EmbedderDimension < 1 || c.EmbedderDimension > 3072 {
		return fmt.Errorf("%w: must be between 1 and 3072, got %d", ErrInvalidEmbedderDimension, c.EmbedderDimension)
	}

	if c.VectorBackend != BackendPostgres && c.VectorBackend != BackendMemory {
		return fmt.Errorf("%w: %q is not valid, must be %q or %q",
			ErrInvalidVectorBackend, c.VectorBackend, BackendPostgres, BackendMemory)
	}

	for name, k := range map[string]int{
		"retrieval_sql": c.RetrievalSQL,
		"retrieval_ddl": c.RetrievalDDL,
		"retrieval_doc": c.RetrievalDoc,
	} {
		if k < 1 || k > 100 {
			return fmt.Errorf("%w: %s must be between 1 and 100, got %d", ErrInvalidRetrievalLimit, name, k)
		}
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}

	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}

	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}

	// Modern SSL modes only; allow/prefer are deprecated (MITM vulnerable).
	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v",
			ErrInvalidPostgresSSLMode, c.PostgresSSLMode, validSSLModes)
	}

	return nil
}
