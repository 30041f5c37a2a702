package config_test

import (
	"errors"
	"testing"

	"medrag/internal/config"

	"github.com/stretchr/testify/assert"
)

func validConfig() config.Config {
	return config.Config{
		EmbeddingProvider:  config.ProviderHashing,
		EmbeddingDimension: 384,
		CorpusDir:          "data",
		IndexDir:           "vector_store",
		ChunkSize:          200,
		ChunkOverlap:       50,
		TopK:               3,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr bool
		errIs   error
	}{
		{
			name:   "Valid Config",
			mutate: func(c *config.Config) {},
		},
		{
			name:    "Gemini Without Key",
			mutate:  func(c *config.Config) { c.EmbeddingProvider = config.ProviderGemini },
			wantErr: true,
			errIs:   config.ErrMissingRequired,
		},
		{
			name: "Gemini With Key",
			mutate: func(c *config.Config) {
				c.EmbeddingProvider = config.ProviderGemini
				c.GeminiAPIKey = "key"
			},
		},
		{
			name:    "OpenAI Without Key",
			mutate:  func(c *config.Config) { c.EmbeddingProvider = config.ProviderOpenAI },
			wantErr: true,
			errIs:   config.ErrMissingRequired,
		},
		{
			name:   "Zero Temperature",
			mutate: func(c *config.Config) { c.GenerationTemperature = 0 },
		},
		{
			name:    "Negative Temperature",
			mutate:  func(c *config.Config) { c.GenerationTemperature = -0.1 },
			wantErr: true,
			errIs:   config.ErrInvalid,
		},
		{
			name:    "Unknown Provider",
			mutate:  func(c *config.Config) { c.EmbeddingProvider = "faiss" },
			wantErr: true,
			errIs:   config.ErrInvalid,
		},
		{
			name:    "Hashing Zero Dimension",
			mutate:  func(c *config.Config) { c.EmbeddingDimension = 0 },
			wantErr: true,
			errIs:   config.ErrInvalid,
		},
		{
			name:    "Overlap Equals Size",
			mutate:  func(c *config.Config) { c.ChunkOverlap = 200 },
			wantErr: true,
			errIs:   config.ErrInvalid,
		},
		{
			name:    "Negative Overlap",
			mutate:  func(c *config.Config) { c.ChunkOverlap = -1 },
			wantErr: true,
			errIs:   config.ErrInvalid,
		},
		{
			name:    "Zero TopK",
			mutate:  func(c *config.Config) { c.TopK = 0 },
			wantErr: true,
			errIs:   config.ErrInvalid,
		},
		{
			name:    "Missing Index Dir",
			mutate:  func(c *config.Config) { c.IndexDir = "" },
			wantErr: true,
			errIs:   config.ErrMissingRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				if tt.errIs != nil {
					assert.True(t, errors.Is(err, tt.errIs))
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
