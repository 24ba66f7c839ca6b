package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		LLMAPIKey:       "key",
		RerankBackend:   "cohere",
		RerankAPIKey:    "cohere-key",
		MaxSteps:        6,
		RetrievalFetchK: 25,
		RerankTopN:      5,
		IndexBackend:    "pgvector",
		SandboxBackend:  "executor",
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing_llm_key", mutate: func(c *Config) { c.LLMAPIKey = " " }, wantErr: "TOGETHER_API_KEY"},
		{name: "missing_cohere_key", mutate: func(c *Config) { c.RerankAPIKey = "" }, wantErr: "COHERE_API_KEY"},
		{name: "lexical_reranker_needs_no_key", mutate: func(c *Config) { c.RerankBackend = "lexical"; c.RerankAPIKey = "" }},
		{name: "zero_steps", mutate: func(c *Config) { c.MaxSteps = 0 }, wantErr: "MAX_STEPS"},
		{name: "fetch_below_top_n", mutate: func(c *Config) { c.RetrievalFetchK = 3 }, wantErr: "RETRIEVAL_FETCH_K"},
		{name: "unknown_index", mutate: func(c *Config) { c.IndexBackend = "faiss" }, wantErr: "INDEX_BACKEND"},
		{name: "unknown_sandbox", mutate: func(c *Config) { c.SandboxBackend = "vm" }, wantErr: "SANDBOX_BACKEND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNormalize(t *testing.T) {
	cfg := &Config{
		PythonExecutorAddress: "exec:9999",
		CORSAllowedOrigins:    []string{"https://a.example, https://b.example", ""},
		LLMAPIKey:             "together",
		ChunkSize:             800,
		ChunkOverlap:          900,
		LLMRequestTimeout:     30,
		SandboxTimeout:        10,
	}
	cfg.normalize()

	assert.Equal(t, []string{"exec:9999"}, cfg.PythonExecutorAddresses)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, "together", cfg.EmbeddingAPIKey)
	assert.Equal(t, 200, cfg.ChunkOverlap)
	assert.Equal(t, 30*time.Second, cfg.LLMRequestTimeout)
	assert.Equal(t, 10*time.Second, cfg.SandboxTimeout)
}

func TestNormalizeDefaultsExecutorAddress(t *testing.T) {
	cfg := &Config{}
	cfg.normalize()
	assert.Equal(t, []string{"localhost:9999"}, cfg.PythonExecutorAddresses)
}
