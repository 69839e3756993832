package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// settingsFile mirrors the YAML layout. Only non-secret settings live here.
type settingsFile struct {
	AstraDB struct {
		CollectionName string `yaml:"collection_name"`
	} `yaml:"astra_db"`
	VectorDB struct {
		Backend    string `yaml:"backend"`
		Endpoint   string `yaml:"api_endpoint"`
		Keyspace   string `yaml:"keyspace"`
		Collection string `yaml:"collection_name"`
		Dimension  int    `yaml:"dimension"`
	} `yaml:"vector_db"`
	EmbeddingModel struct {
		Provider  string `yaml:"provider"`
		ModelName string `yaml:"model_name"`
		BaseURL   string `yaml:"base_url"`
	} `yaml:"embedding_model"`
	LLM struct {
		ModelName   string   `yaml:"model_name"`
		Temperature *float64 `yaml:"temperature"`
	} `yaml:"llm"`
	Ingestion struct {
		BatchSize   int     `yaml:"batch_size"`
		MaxInFlight int     `yaml:"max_in_flight"`
		RateLimit   float64 `yaml:"rate_limit"`
	} `yaml:"ingestion"`
	Retrieval struct {
		K int `yaml:"k"`
	} `yaml:"retrieval"`
	Requests struct {
		Timeout    string `yaml:"timeout"`
		MaxRetries int    `yaml:"max_retries"`
		RetryDelay string `yaml:"retry_delay"`
	} `yaml:"requests"`
}

func readSettingsFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSettingsFile, err)
	}
	var f settingsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSettingsFile, path, err)
	}
	return f.values(), nil
}

// values flattens the file into environment-style keys so that the same
// parsing and validation applies to every source.
func (f *settingsFile) values() map[string]string {
	out := make(map[string]string)
	set := func(key, value string) {
		if value != "" {
			out[key] = value
		}
	}
	setInt := func(key string, value int) {
		if value != 0 {
			out[key] = strconv.Itoa(value)
		}
	}

	set(KeyVectorDBCollection, f.AstraDB.CollectionName)
	set(KeyVectorDBCollection, f.VectorDB.Collection)
	set(KeyVectorDBBackend, f.VectorDB.Backend)
	set(KeyVectorDBEndpoint, f.VectorDB.Endpoint)
	set(KeyVectorDBKeyspace, f.VectorDB.Keyspace)
	setInt(KeyEmbeddingDimension, f.VectorDB.Dimension)
	set(KeyAIProvider, f.EmbeddingModel.Provider)
	set(KeyEmbeddingModel, f.EmbeddingModel.ModelName)
	set(KeyOpenAIBaseURL, f.EmbeddingModel.BaseURL)
	set(KeyLLMModel, f.LLM.ModelName)
	if f.LLM.Temperature != nil {
		out[KeyLLMTemperature] = strconv.FormatFloat(*f.LLM.Temperature, 'g', -1, 64)
	}
	setInt(KeyIngestBatchSize, f.Ingestion.BatchSize)
	setInt(KeyIngestMaxInFlight, f.Ingestion.MaxInFlight)
	if f.Ingestion.RateLimit != 0 {
		out[KeyIngestRateLimit] = strconv.FormatFloat(f.Ingestion.RateLimit, 'g', -1, 64)
	}
	setInt(KeySearchK, f.Retrieval.K)
	set(KeyRequestTimeout, f.Requests.Timeout)
	setInt(KeyMaxRetries, f.Requests.MaxRetries)
	set(KeyRetryDelay, f.Requests.RetryDelay)
	return out
}
