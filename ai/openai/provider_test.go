package openai

import (
	"testing"

	"github.com/poiesic/reviewrag/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider(t *testing.T) {
	t.Run("local server", func(t *testing.T) {
		cfg := ai.NewConfig(
			ai.WithProvider(ai.ProviderOpenAI),
			ai.WithHost("http://localhost:11434"),
			ai.WithEmbeddingModel("nomic-embed-text"),
			ai.WithGenerationModel("qwen2.5:3b"),
		)
		provider, err := NewProvider(cfg)
		require.NoError(t, err)
		defer provider.Close()

		assert.NotNil(t, provider.Embedder())
		assert.NotNil(t, provider.Generator())
		assert.Equal(t, "http://localhost:11434/v1", cfg.EmbeddingHost, "config is normalized")
	})

	t.Run("invalid config", func(t *testing.T) {
		_, err := NewProvider(ai.NewConfig(ai.WithProvider(ai.ProviderOpenAI), ai.WithEmbeddingModel("")))
		assert.ErrorContains(t, err, "EmbeddingModel is required")
	})
}

func TestToken(t *testing.T) {
	assert.Equal(t, "none", token(ai.NewConfig()))
	assert.Equal(t, "sk-test", token(ai.NewConfig(ai.WithAPIKey("sk-test"))))
}
