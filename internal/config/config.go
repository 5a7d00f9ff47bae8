package config

import (
	"fmt"
	"log"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// Chatwoot connection
	ChatwootBaseURL     string `envconfig:"CHATWOOT_BASE_URL"`
	ChatwootAccessToken string `envconfig:"CHATWOOT_ACCESS_TOKEN"`

	// LLM endpoint, OpenAI-compatible. Empty base URL means api.openai.com.
	LLMAPIKey  string `envconfig:"LLM_API_KEY"`
	LLMBaseURL string `envconfig:"LLM_BASE_URL"`
	LLMModel   string `envconfig:"LLM_MODEL" default:"qwen3-32b"`

	// Fallback model for pro/agency tier personas
	LLMFallbackAPIKey string `envconfig:"LLM_FALLBACK_API_KEY"`
	LLMFallbackModel  string `envconfig:"LLM_FALLBACK_MODEL" default:"gpt-4o"`

	// Embeddings
	EmbeddingAPIKey     string `envconfig:"EMBEDDING_API_KEY"`
	EmbeddingBaseURL    string `envconfig:"EMBEDDING_BASE_URL"`
	EmbeddingModel      string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingDimensions int    `envconfig:"EMBEDDING_DIMENSIONS" default:"1536"`

	// Retrieval tuning; defaults pending product input, keep overridable
	SearchMinScore float32 `envconfig:"SEARCH_MIN_SCORE" default:"0.4"`
	SearchTopK     int     `envconfig:"SEARCH_TOP_K" default:"5"`

	// Escalation reply strategy: "template" or "generated"
	EscalationReply string `envconfig:"ESCALATION_REPLY" default:"template"`

	// Turn processing
	RetrievalTimeoutSeconds  int `envconfig:"RETRIEVAL_TIMEOUT_SECONDS" default:"10"`
	GenerationTimeoutSeconds int `envconfig:"GENERATION_TIMEOUT_SECONDS" default:"60"`
	MaxConcurrentTurns       int `envconfig:"MAX_CONCURRENT_TURNS" default:"32"`

	PersonasDir string `envconfig:"PERSONAS_DIR" default:"personas"`

	// Admin API bearer token; empty disables the admin knowledge endpoints
	AdminToken string `envconfig:"ADMIN_TOKEN"`

	// Optional S3-compatible source for document ingestion
	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"harbor-knowledge"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("HARBOR", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	// envconfig's required check passes a set-but-empty variable.
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("HARBOR_DATABASE_URL is required")
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) HasChatwoot() bool {
	return c.ChatwootBaseURL != "" && c.ChatwootAccessToken != ""
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasFallbackLLM() bool {
	return c.LLMFallbackAPIKey != ""
}
