package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/liliang-cn/askcorpus/internal/provider"
)

// Config holds all configuration for askcorpus
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Corpus    CorpusConfig    `mapstructure:"corpus"`
	Index     IndexConfig     `mapstructure:"index"`
	Chunker   ChunkerConfig   `mapstructure:"chunker"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Retry     RetryConfig     `mapstructure:"retry"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// AuthConfig maps API keys to principal IDs
type AuthConfig struct {
	APIKeys map[string]string `mapstructure:"api_keys"`
}

// DatabaseConfig holds session database configuration
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// CorpusConfig locates the document corpus consumed by the index builder
type CorpusConfig struct {
	Path string `mapstructure:"path"`
}

// IndexConfig holds vector index configuration
type IndexConfig struct {
	Path      string `mapstructure:"path"`
	TopK      int    `mapstructure:"top_k"`
	BatchSize int    `mapstructure:"batch_size"`
}

// ChunkerConfig holds chunking configuration
type ChunkerConfig struct {
	MaxChunkSize int `mapstructure:"max_chunk_size"`
	Overlap      int `mapstructure:"overlap"`
}

// LLMConfig holds LLM provider configuration
type LLMConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	APIKey          string        `mapstructure:"api_key"`
	EmbeddingModel  string        `mapstructure:"embedding_model"`
	CompletionModel string        `mapstructure:"completion_model"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// RetryConfig holds backoff configuration for provider calls
type RetryConfig struct {
	MaxRetries      int           `mapstructure:"max_retries"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// Load loads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read config file if specified
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables
	v.SetEnvPrefix("ASKCORPUS")
	v.AutomaticEnv()

	// Read config
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found, use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	// Development default, mirrored by clients; override in production.
	v.SetDefault("auth.api_keys", map[string]string{"default-api-key": "default-user"})

	v.SetDefault("database.path", "./data/askcorpus.db")

	v.SetDefault("corpus.path", "./corpus")
	v.SetDefault("index.path", "./data/index.json")
	v.SetDefault("index.top_k", 7)
	v.SetDefault("index.batch_size", 32)

	v.SetDefault("chunker.max_chunk_size", 1000)
	v.SetDefault("chunker.overlap", 200)

	v.SetDefault("llm.base_url", "http://localhost:11434/v1")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.embedding_model", "nomic-embed-text")
	v.SetDefault("llm.completion_model", "qwen2.5:7b")
	v.SetDefault("llm.timeout", "60s")

	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.initial_interval", "500ms")
	v.SetDefault("retry.max_interval", "10s")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 5)
	v.SetDefault("rate_limit.burst", 10)
}

// Address returns the server address
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// RetryPolicy converts the retry section into a provider retry policy.
func (c *Config) RetryPolicy() provider.RetryConfig {
	p := provider.DefaultRetryConfig()
	if c.Retry.MaxRetries > 0 {
		p.MaxRetries = c.Retry.MaxRetries
	}
	if c.Retry.InitialInterval > 0 {
		p.InitialInterval = c.Retry.InitialInterval
	}
	if c.Retry.MaxInterval > 0 {
		p.MaxInterval = c.Retry.MaxInterval
	}
	return p
}
