package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultEmbeddingModel is the model used for generating embeddings
	DefaultEmbeddingModel = openai.SmallEmbedding3
	// DefaultEmbeddingDimensions is the expected dimension of embeddings from text-embedding-3-small
	DefaultEmbeddingDimensions = 1536

	// maxEmbeddingChars truncates oversized inputs before embedding
	maxEmbeddingChars = 8000
)

var (
	// ErrEmptyText is returned when text is empty
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrWrongDimensions is returned when an embedding has unexpected dimensions
	ErrWrongDimensions = errors.New("embedding has wrong dimensions")
)

// EmbeddingModel aliases the provider model type so callers configure
// clients without importing the vendor package.
type EmbeddingModel = openai.EmbeddingModel

// EmbeddingAPI defines the interface for embedding generation
type EmbeddingAPI interface {
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbeddingClient wraps an OpenAI-compatible embeddings endpoint. It is the
// process-wide embedding capability: construct once, inject everywhere.
// Safe for concurrent use.
type EmbeddingClient struct {
	api        EmbeddingAPI
	dimensions int
}

type embeddingAdapter struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

func newAPIClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

func (a *embeddingAdapter) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := a.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: a.model,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	out := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// EmbeddingConfig configures an EmbeddingClient.
type EmbeddingConfig struct {
	APIKey     string
	BaseURL    string
	Model      openai.EmbeddingModel
	Dimensions int
}

// NewEmbeddingClient creates an EmbeddingClient with defaults.
func NewEmbeddingClient(apiKey string) *EmbeddingClient {
	return NewEmbeddingClientWithConfig(EmbeddingConfig{APIKey: apiKey})
}

// NewEmbeddingClientWithConfig creates an EmbeddingClient with explicit configuration.
func NewEmbeddingClientWithConfig(cfg EmbeddingConfig) *EmbeddingClient {
	model := cfg.Model
	if model == "" {
		model = DefaultEmbeddingModel
	}
	dimensions := cfg.Dimensions
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}
	return &EmbeddingClient{
		api:        &embeddingAdapter{client: newAPIClient(cfg.APIKey, cfg.BaseURL), model: model},
		dimensions: dimensions,
	}
}

// Dimensions returns the fixed embedding dimension of this client.
func (c *EmbeddingClient) Dimensions() int {
	return c.dimensions
}

// GenerateEmbedding generates an embedding for a single text.
func (c *EmbeddingClient) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.GenerateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// GenerateEmbeddings embeds a batch of texts in a single provider call.
func (c *EmbeddingClient) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyText
	}

	cleaned := make([]string, len(texts))
	for i, t := range texts {
		t = normalizeEmbeddingText(t)
		if t == "" {
			return nil, ErrEmptyText
		}
		cleaned[i] = t
	}

	vecs, err := c.api.CreateEmbeddings(ctx, cleaned)
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}

	for _, v := range vecs {
		if len(v) != c.dimensions {
			return nil, ErrWrongDimensions
		}
	}

	return vecs, nil
}

func normalizeEmbeddingText(text string) string {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
	if len(text) > maxEmbeddingChars {
		text = text[:maxEmbeddingChars]
	}
	return text
}
