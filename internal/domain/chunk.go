package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// SourceType categorizes where a knowledge chunk originated.
type SourceType string

const (
	SourceTypeProduct SourceType = "product"
	SourceTypeFAQ     SourceType = "faq"
	SourceTypePolicy  SourceType = "policy"
	SourceTypeBundle  SourceType = "bundle"
)

// KnowledgeChunk is one retrievable unit of tenant knowledge with its embedding.
type KnowledgeChunk struct {
	ID         string
	ClientID   string
	SourceType SourceType
	SourceID   string
	Title      string
	Content    string
	Metadata   Metadata
	Embedding  []float32
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ChunkInput describes a chunk before it has been embedded and stored.
type ChunkInput struct {
	Content    string
	SourceType SourceType
	SourceID   string
	Title      string
	Metadata   Metadata
}

// SearchResult is a chunk returned from semantic search with its cosine
// similarity score. Never persisted.
type SearchResult struct {
	ID         string
	ClientID   string
	SourceType SourceType
	SourceID   string
	Title      string
	Content    string
	Metadata   Metadata
	Score      float32
}

// SourceCount is one grouped chunk count from the store's stats query.
type SourceCount struct {
	ClientID   string
	SourceType SourceType
	Count      int64
}

// ChunkID derives the content-addressed chunk identifier. Identity is a pure
// function of the fields: re-ingesting identical content yields the same ID.
func ChunkID(clientID string, sourceType SourceType, sourceID, content string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%s:%s", clientID, sourceType, sourceID, content)))
	return hex.EncodeToString(sum[:])
}

// ValidateChunkInput validates a ChunkInput before upsert.
func ValidateChunkInput(clientID string, in ChunkInput) error {
	if clientID == "" {
		return ErrMissingClientID
	}
	if in.Content == "" {
		return ErrEmptyContent
	}
	if in.SourceType == "" {
		return ErrMissingSourceType
	}
	if in.SourceID == "" {
		return ErrMissingSourceID
	}
	return nil
}
