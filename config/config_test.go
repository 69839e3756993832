package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/reviewrag/ai"
	"github.com/poiesic/reviewrag/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validValues() map[string]string {
	return map[string]string{
		KeyGoogleAPIKey:       "g-key",
		KeyVectorDBEndpoint:   "https://db.example.com",
		KeyVectorDBToken:      "token",
		KeyVectorDBKeyspace:   "default_keyspace",
		KeyVectorDBCollection: "reviews",
		KeyEmbeddingModel:     "models/text-embedding-004",
		KeyLLMModel:           "gemini-2.0-flash",
	}
}

func noEnv(string) (string, bool) { return "", false }

func mapEnv(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestLoadFromMap_Defaults(t *testing.T) {
	cfg, err := LoadFromMap(validValues())
	require.NoError(t, err)

	assert.Equal(t, ai.ProviderGoogleAI, cfg.AIProvider)
	assert.Equal(t, "g-key", cfg.APIKey)
	assert.Equal(t, BackendBadger, cfg.VectorDB.Backend)
	assert.Equal(t, DefaultDimension, cfg.VectorDB.Dimension)
	assert.Equal(t, DefaultBatchSize, cfg.Ingestion.BatchSize)
	assert.Equal(t, DefaultMaxInFlight, cfg.Ingestion.MaxInFlight)
	assert.Zero(t, cfg.Ingestion.RateLimit)
	assert.Equal(t, DefaultSearchK, cfg.SearchK)
	assert.Equal(t, DefaultRequestTimeout, cfg.RequestTimeout)
	assert.Equal(t, DefaultMaxRetries, cfg.MaxRetries)
	assert.Equal(t, DefaultRetryDelay, cfg.RetryDelay)
	assert.Equal(t, "default_keyspace/reviews", cfg.CheckpointKey())
}

func TestLoadFromMap_ReportsEveryMissingKey(t *testing.T) {
	_, err := LoadFromMap(map[string]string{KeyLLMModel: "gemini-2.0-flash"})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrConfiguration)

	var cfgErr *core.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, []string{
		KeyGoogleAPIKey,
		KeyVectorDBEndpoint,
		KeyVectorDBToken,
		KeyVectorDBKeyspace,
		KeyVectorDBCollection,
		KeyEmbeddingModel,
	}, cfgErr.Missing)
	assert.Empty(t, cfgErr.Invalid)
}

func TestLoadFromMap_BlankCountsAsMissing(t *testing.T) {
	values := validValues()
	values[KeyVectorDBToken] = "   "

	_, err := LoadFromMap(values)
	var cfgErr *core.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, []string{KeyVectorDBToken}, cfgErr.Missing)
}

func TestLoadFromMap_InvalidValues(t *testing.T) {
	values := validValues()
	values[KeyIngestBatchSize] = "zero"
	values[KeyIngestMaxInFlight] = "0"
	values[KeyRequestTimeout] = "soon"
	values[KeyVectorDBBackend] = "astra"
	delete(values, KeyLLMModel)

	_, err := LoadFromMap(values)
	var cfgErr *core.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, []string{KeyLLMModel}, cfgErr.Missing)
	require.Len(t, cfgErr.Invalid, 4)
	assert.Contains(t, err.Error(), KeyIngestBatchSize)
	assert.Contains(t, err.Error(), KeyRequestTimeout)
}

func TestLoadFromMap_Overrides(t *testing.T) {
	values := validValues()
	values[KeyVectorDBBackend] = "Milvus"
	values[KeyIngestBatchSize] = "64"
	values[KeyIngestMaxInFlight] = "4"
	values[KeyIngestRateLimit] = "2.5"
	values[KeySearchK] = "10"
	values[KeyRequestTimeout] = "5s"
	values[KeyMaxRetries] = "5"
	values[KeyRetryDelay] = "250ms"
	values[KeyEmbeddingDimension] = "1536"

	cfg, err := LoadFromMap(values)
	require.NoError(t, err)
	assert.Equal(t, BackendMilvus, cfg.VectorDB.Backend)
	assert.Equal(t, 1536, cfg.VectorDB.Dimension)
	assert.Equal(t, Ingestion{BatchSize: 64, MaxInFlight: 4, RateLimit: 2.5}, cfg.Ingestion)
	assert.Equal(t, 10, cfg.SearchK)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryDelay)
}

func TestLoadFromMap_AstraAliases(t *testing.T) {
	values := validValues()
	delete(values, KeyVectorDBEndpoint)
	delete(values, KeyVectorDBToken)
	values["ASTRA_DB_API_ENDPOINT"] = "https://astra.example.com"
	values["ASTRA_DB_APPLICATION_TOKEN"] = "astra-token"
	values["ASTRA_DB_KEYSPACE"] = "ignored"

	cfg, err := LoadFromMap(values)
	require.NoError(t, err)
	assert.Equal(t, "https://astra.example.com", cfg.VectorDB.Endpoint)
	assert.Equal(t, "astra-token", cfg.VectorDB.Token)
	assert.Equal(t, "default_keyspace", cfg.VectorDB.Keyspace, "canonical key wins over alias")
}

func TestLoadFromMap_OpenAICredential(t *testing.T) {
	t.Run("hosted needs a key", func(t *testing.T) {
		values := validValues()
		delete(values, KeyGoogleAPIKey)
		values[KeyAIProvider] = "openai"

		_, err := LoadFromMap(values)
		var cfgErr *core.ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, []string{KeyOpenAIAPIKey}, cfgErr.Missing)
	})

	t.Run("local server runs without one", func(t *testing.T) {
		values := validValues()
		delete(values, KeyGoogleAPIKey)
		values[KeyAIProvider] = "openai"
		values[KeyOpenAIBaseURL] = "http://localhost:11434"

		cfg, err := LoadFromMap(values)
		require.NoError(t, err)

		aiCfg := cfg.AIConfig()
		require.NoError(t, aiCfg.Validate())
		assert.Equal(t, "http://localhost:11434/v1", aiCfg.EmbeddingHost)
	})
}

func TestConfig_AIConfig(t *testing.T) {
	values := validValues()
	values[KeyLLMTemperature] = "0.7"
	cfg, err := LoadFromMap(values)
	require.NoError(t, err)

	aiCfg := cfg.AIConfig()
	assert.Equal(t, ai.ProviderGoogleAI, aiCfg.Provider)
	assert.Equal(t, "g-key", aiCfg.APIKey)
	assert.Equal(t, "models/text-embedding-004", aiCfg.EmbeddingModel)
	assert.Equal(t, "gemini-2.0-flash", aiCfg.GenerationModel)
	assert.Equal(t, 0.7, aiCfg.Temperature)
	assert.NoError(t, aiCfg.Validate())
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()

	settings := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(settings, []byte(`
astra_db:
  collection_name: from_file
embedding_model:
  model_name: models/text-embedding-004
llm:
  model_name: gemini-1.5-flash
ingestion:
  batch_size: 16
retrieval:
  k: 6
`), 0o644))

	dotEnv := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(dotEnv, []byte(`GOOGLE_API_KEY=from-dotenv
ASTRA_DB_API_ENDPOINT=https://dotenv.example.com
VECTOR_DB_APPLICATION_TOKEN=dotenv-token
VECTOR_DB_KEYSPACE=ks
LLM_MODEL=gemini-2.0-flash
INGEST_BATCH_SIZE=24
`), 0o644))

	env := map[string]string{
		KeyGoogleAPIKey:      "from-env",
		KeyIngestBatchSize:   "8",
		"UNRELATED_VARIABLE": "x",
	}

	cfg, err := Load(WithFile(settings), WithDotEnv(dotEnv), WithLookup(mapEnv(env)))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.APIKey, "environment beats .env")
	assert.Equal(t, 8, cfg.Ingestion.BatchSize, "environment beats .env and file")
	assert.Equal(t, "gemini-2.0-flash", cfg.LLMModel, ".env beats file")
	assert.Equal(t, "from_file", cfg.VectorDB.Collection)
	assert.Equal(t, "https://dotenv.example.com", cfg.VectorDB.Endpoint)
	assert.Equal(t, 6, cfg.SearchK)
}

func TestLoad_MissingFiles(t *testing.T) {
	_, err := Load(WithFile(filepath.Join(t.TempDir(), "nope.yaml")), WithLookup(noEnv))
	assert.ErrorIs(t, err, ErrSettingsFile)

	_, err = Load(WithDotEnv(filepath.Join(t.TempDir(), ".env")), WithLookup(noEnv))
	assert.ErrorIs(t, err, ErrDotEnvFile)
}

func TestLoad_MalformedSettingsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm: [unclosed"), 0o644))

	_, err := Load(WithFile(path), WithLookup(noEnv))
	assert.ErrorIs(t, err, ErrSettingsFile)
}

func TestLoad_EmptyEnvironment(t *testing.T) {
	_, err := Load(WithLookup(noEnv))
	var cfgErr *core.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Len(t, cfgErr.Missing, 7)
}
