// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/reviewrag/ai"
	"github.com/poiesic/reviewrag/core"
)

// Environment keys.
const (
	KeyGoogleAPIKey       = "GOOGLE_API_KEY"
	KeyOpenAIAPIKey       = "OPENAI_API_KEY"
	KeyVectorDBEndpoint   = "VECTOR_DB_API_ENDPOINT"
	KeyVectorDBToken      = "VECTOR_DB_APPLICATION_TOKEN"
	KeyVectorDBKeyspace   = "VECTOR_DB_KEYSPACE"
	KeyVectorDBCollection = "VECTOR_DB_COLLECTION"
	KeyEmbeddingModel     = "EMBEDDING_MODEL"
	KeyLLMModel           = "LLM_MODEL"
	KeyAIProvider         = "AI_PROVIDER"
	KeyOpenAIBaseURL      = "OPENAI_BASE_URL"
	KeyVectorDBBackend    = "VECTOR_DB_BACKEND"
	KeyEmbeddingDimension = "EMBEDDING_DIMENSION"
	KeyLLMTemperature     = "LLM_TEMPERATURE"
	KeyIngestBatchSize    = "INGEST_BATCH_SIZE"
	KeyIngestMaxInFlight  = "INGEST_MAX_IN_FLIGHT"
	KeyIngestRateLimit    = "INGEST_RATE_LIMIT"
	KeySearchK            = "SEARCH_K"
	KeyRequestTimeout     = "REQUEST_TIMEOUT"
	KeyMaxRetries         = "MAX_RETRIES"
	KeyRetryDelay         = "RETRY_DELAY"
)

// Vector index backends.
const (
	BackendBadger = "badger"
	BackendMilvus = "milvus"
	BackendMemory = "memory"
)

// aliases maps the names used by the original Astra DB deployment onto
// the canonical keys. The canonical key wins when both are set.
var aliases = map[string]string{
	"ASTRA_DB_API_ENDPOINT":      KeyVectorDBEndpoint,
	"ASTRA_DB_APPLICATION_TOKEN": KeyVectorDBToken,
	"ASTRA_DB_KEYSPACE":          KeyVectorDBKeyspace,
	"ASTRA_DB_COLLECTION":        KeyVectorDBCollection,
}

// VectorDB describes where embedded reviews are stored.
// For the badger backend Endpoint is a directory and Keyspace a
// subdirectory of it; Token is only sent to remote backends.
type VectorDB struct {
	Backend    string
	Endpoint   string
	Token      string
	Keyspace   string
	Collection string
	Dimension  int
}

// Ingestion holds pipeline tuning.
type Ingestion struct {
	BatchSize   int
	MaxInFlight int
	RateLimit   float64 // batches per second, 0 disables limiting
}

// Config is the validated application configuration.
// Treat it as read-only once Load returns.
type Config struct {
	AIProvider     string
	APIKey         string
	OpenAIBaseURL  string
	EmbeddingModel string
	LLMModel       string
	Temperature    float64

	VectorDB  VectorDB
	Ingestion Ingestion

	SearchK        int
	RequestTimeout time.Duration
	MaxRetries     int
	RetryDelay     time.Duration
}

// Defaults for optional keys.
const (
	DefaultBatchSize      = 32
	DefaultMaxInFlight    = 1
	DefaultSearchK        = 4
	DefaultRequestTimeout = 30 * time.Second
	DefaultMaxRetries     = 3
	DefaultRetryDelay     = 500 * time.Millisecond
	DefaultDimension      = 768
	DefaultTemperature    = 0.2
)

type loadOptions struct {
	dotEnv       string
	settingsFile string
	lookup       func(string) (string, bool)
}

// LoadOption configures Load.
type LoadOption func(*loadOptions)

// WithDotEnv reads variables from a .env file. Variables already present
// in the environment are never overridden.
func WithDotEnv(path string) LoadOption {
	return func(o *loadOptions) {
		o.dotEnv = path
	}
}

// WithFile reads non-secret settings from a YAML file.
func WithFile(path string) LoadOption {
	return func(o *loadOptions) {
		o.settingsFile = path
	}
}

// WithLookup replaces os.LookupEnv as the environment source.
func WithLookup(lookup func(string) (string, bool)) LoadOption {
	return func(o *loadOptions) {
		o.lookup = lookup
	}
}

// Load builds a Config from the environment and the optional files.
// Every missing required key and every malformed value is reported in a
// single *core.ConfigurationError.
func Load(opts ...LoadOption) (*Config, error) {
	o := &loadOptions{lookup: os.LookupEnv}
	for _, opt := range opts {
		opt(o)
	}

	values := make(map[string]string)
	if o.settingsFile != "" {
		fileValues, err := readSettingsFile(o.settingsFile)
		if err != nil {
			return nil, err
		}
		merge(values, fileValues)
	}
	if o.dotEnv != "" {
		envFile, err := godotenv.Read(o.dotEnv)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDotEnvFile, err)
		}
		merge(values, canonical(envFile))
	}

	environment := make(map[string]string)
	for _, key := range knownKeys() {
		if v, ok := o.lookup(key); ok {
			environment[key] = v
		}
	}
	merge(values, canonical(environment))

	return parse(values)
}

// LoadFromMap builds a Config from values alone, ignoring the process environment.
func LoadFromMap(values map[string]string) (*Config, error) {
	return parse(canonical(values))
}

func knownKeys() []string {
	keys := []string{
		KeyGoogleAPIKey, KeyOpenAIAPIKey, KeyVectorDBEndpoint, KeyVectorDBToken,
		KeyVectorDBKeyspace, KeyVectorDBCollection, KeyEmbeddingModel, KeyLLMModel,
		KeyAIProvider, KeyOpenAIBaseURL, KeyVectorDBBackend, KeyEmbeddingDimension,
		KeyLLMTemperature, KeyIngestBatchSize, KeyIngestMaxInFlight, KeyIngestRateLimit,
		KeySearchK, KeyRequestTimeout, KeyMaxRetries, KeyRetryDelay,
	}
	for alias := range aliases {
		keys = append(keys, alias)
	}
	return keys
}

// canonical rewrites alias keys and drops blank values.
func canonical(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for key, value := range in {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if target, ok := aliases[key]; ok {
			if _, set := in[target]; set && strings.TrimSpace(in[target]) != "" {
				continue
			}
			key = target
		}
		out[key] = value
	}
	return out
}

func merge(dst, src map[string]string) {
	for k, v := range src {
		dst[k] = v
	}
}

type parser struct {
	values  map[string]string
	missing []string
	invalid []string
}

func (p *parser) required(key string) string {
	v := p.values[key]
	if v == "" {
		p.missing = append(p.missing, key)
	}
	return v
}

func (p *parser) optional(key, def string) string {
	if v, ok := p.values[key]; ok {
		return v
	}
	return def
}

func (p *parser) integer(key string, def, minimum int) int {
	raw, ok := p.values[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < minimum {
		p.invalid = append(p.invalid, fmt.Sprintf("%s=%q (want an integer >= %d)", key, raw, minimum))
		return def
	}
	return n
}

func (p *parser) float(key string, def, minimum, maximum float64) float64 {
	raw, ok := p.values[key]
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f < minimum || f > maximum {
		p.invalid = append(p.invalid, fmt.Sprintf("%s=%q (want a number in [%g, %g])", key, raw, minimum, maximum))
		return def
	}
	return f
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw, ok := p.values[key]
	if !ok {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		p.invalid = append(p.invalid, fmt.Sprintf("%s=%q (want a duration such as 30s)", key, raw))
		return def
	}
	return d
}

func (p *parser) oneOf(key, def string, allowed ...string) string {
	v := strings.ToLower(p.optional(key, def))
	if !slices.Contains(allowed, v) {
		p.invalid = append(p.invalid, fmt.Sprintf("%s=%q (want one of %s)", key, v, strings.Join(allowed, ", ")))
		return def
	}
	return v
}

func parse(values map[string]string) (*Config, error) {
	p := &parser{values: values}

	cfg := &Config{
		AIProvider: p.oneOf(KeyAIProvider, ai.ProviderGoogleAI, ai.ProviderGoogleAI, ai.ProviderOpenAI),
	}
	cfg.OpenAIBaseURL = p.optional(KeyOpenAIBaseURL, "")

	// The embedding credential depends on the provider. A local
	// OpenAI-compatible server may run without one.
	switch {
	case cfg.AIProvider == ai.ProviderOpenAI && cfg.OpenAIBaseURL != "":
		cfg.APIKey = p.optional(KeyOpenAIAPIKey, "")
	case cfg.AIProvider == ai.ProviderOpenAI:
		cfg.APIKey = p.required(KeyOpenAIAPIKey)
	default:
		cfg.APIKey = p.required(KeyGoogleAPIKey)
	}

	cfg.VectorDB = VectorDB{
		Endpoint:   p.required(KeyVectorDBEndpoint),
		Token:      p.required(KeyVectorDBToken),
		Keyspace:   p.required(KeyVectorDBKeyspace),
		Collection: p.required(KeyVectorDBCollection),
		Backend:    p.oneOf(KeyVectorDBBackend, BackendBadger, BackendBadger, BackendMilvus, BackendMemory),
		Dimension:  p.integer(KeyEmbeddingDimension, DefaultDimension, 1),
	}
	cfg.EmbeddingModel = p.required(KeyEmbeddingModel)
	cfg.LLMModel = p.required(KeyLLMModel)
	cfg.Temperature = p.float(KeyLLMTemperature, DefaultTemperature, 0, 2)

	cfg.Ingestion = Ingestion{
		BatchSize:   p.integer(KeyIngestBatchSize, DefaultBatchSize, 1),
		MaxInFlight: p.integer(KeyIngestMaxInFlight, DefaultMaxInFlight, 1),
		RateLimit:   p.float(KeyIngestRateLimit, 0, 0, 1e6),
	}
	cfg.SearchK = p.integer(KeySearchK, DefaultSearchK, 1)
	cfg.RequestTimeout = p.duration(KeyRequestTimeout, DefaultRequestTimeout)
	cfg.MaxRetries = p.integer(KeyMaxRetries, DefaultMaxRetries, 1)
	cfg.RetryDelay = p.duration(KeyRetryDelay, DefaultRetryDelay)

	if len(p.missing) > 0 || len(p.invalid) > 0 {
		return nil, &core.ConfigurationError{Missing: p.missing, Invalid: p.invalid}
	}
	return cfg, nil
}

// AIConfig returns the provider configuration derived from c.
func (c *Config) AIConfig() *ai.Config {
	opts := []ai.ConfigOption{
		ai.WithProvider(c.AIProvider),
		ai.WithAPIKey(c.APIKey),
		ai.WithEmbeddingModel(c.EmbeddingModel),
		ai.WithGenerationModel(c.LLMModel),
		ai.WithTemperature(c.Temperature),
	}
	if c.OpenAIBaseURL != "" {
		opts = append(opts, ai.WithHost(c.OpenAIBaseURL))
	}
	return ai.NewConfig(opts...)
}

// CheckpointKey names the ingestion checkpoint for the configured collection.
func (c *Config) CheckpointKey() string {
	return c.VectorDB.Keyspace + "/" + c.VectorDB.Collection
}
