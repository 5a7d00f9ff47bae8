package service

import (
	"context"
	"log"
	"time"

	"github.com/teamauresta/agent-harbor/internal/domain"
	"github.com/teamauresta/agent-harbor/internal/pagination"
	"github.com/teamauresta/agent-harbor/internal/telemetry"
)

// EmbeddingClient defines the interface for the embedding provider.
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// ChunkStore defines the repository interface for knowledge chunk persistence.
type ChunkStore interface {
	Upsert(ctx context.Context, c *domain.KnowledgeChunk) error
	UpsertBatch(ctx context.Context, chunks []domain.KnowledgeChunk) (int, error)
	SearchByEmbedding(ctx context.Context, clientID string, embedding []float32, topK int, sourceTypes []domain.SourceType, minScore float32) ([]*domain.SearchResult, error)
	ListByClient(ctx context.Context, clientID string, cursor *pagination.Cursor, limit int) (pagination.PageResult[*domain.KnowledgeChunk], error)
	DeleteClient(ctx context.Context, clientID string) (int64, error)
	Stats(ctx context.Context, clientID string) ([]domain.SourceCount, error)
}

// RetrievalLogEntry captures one semantic search for later evaluation.
type RetrievalLogEntry struct {
	ClientID    string
	Query       string
	SourceTypes []domain.SourceType
	ResultCount int
	TopScore    float32
	DurationMs  int64
}

// RetrievalLogger persists retrieval log entries. Logging is best-effort and
// never fails a search.
type RetrievalLogger interface {
	CreateRetrievalLog(ctx context.Context, entry RetrievalLogEntry) (string, error)
}

// TxRunner runs a function against a transactional chunk store.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(store ChunkStore) error) error
}

// SearchDefaults holds the tunable retrieval parameters.
type SearchDefaults struct {
	MinScore float32
	TopK     int
}

// DefaultSearchDefaults returns the production defaults.
func DefaultSearchDefaults() SearchDefaults {
	return SearchDefaults{MinScore: 0.4, TopK: 5}
}

// SearchInput describes one tenant-scoped semantic search.
type SearchInput struct {
	ClientID    string
	Query       string
	TopK        int
	SourceTypes []domain.SourceType
	MinScore    *float32 // nil = service default
}

// KnowledgeService is the multi-tenant knowledge store: idempotent upsert,
// tenant-scoped semantic search, tenant wipe, stats.
type KnowledgeService struct {
	store        ChunkStore
	tx           TxRunner
	embedder     EmbeddingClient
	defaults     SearchDefaults
	retrievalLog RetrievalLogger // nil disables logging
}

// SetRetrievalLog enables best-effort retrieval logging.
func (s *KnowledgeService) SetRetrievalLog(logger RetrievalLogger) {
	s.retrievalLog = logger
}

// NewKnowledgeService creates a KnowledgeService with default search tuning.
func NewKnowledgeService(store ChunkStore, tx TxRunner, embedder EmbeddingClient) *KnowledgeService {
	return NewKnowledgeServiceWithDefaults(store, tx, embedder, DefaultSearchDefaults())
}

// NewKnowledgeServiceWithDefaults creates a KnowledgeService with explicit
// search tuning.
func NewKnowledgeServiceWithDefaults(store ChunkStore, tx TxRunner, embedder EmbeddingClient, defaults SearchDefaults) *KnowledgeService {
	if defaults.TopK <= 0 {
		defaults.TopK = 5
	}
	return &KnowledgeService{store: store, tx: tx, embedder: embedder, defaults: defaults}
}

// Upsert embeds content and writes-or-updates one chunk. The id is derived
// from (client, source_type, source_id, content), so repeated calls with
// identical input update the same row. Embedding failure fails the whole
// upsert: no row is ever written without a fresh vector.
func (s *KnowledgeService) Upsert(ctx context.Context, clientID string, in domain.ChunkInput) (string, error) {
	if err := domain.ValidateChunkInput(clientID, in); err != nil {
		return "", err
	}

	id := domain.ChunkID(clientID, in.SourceType, in.SourceID, in.Content)

	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.Upsert", telemetry.SpanAttributes{
		ClientID:  clientID,
		ChunkID:   id,
		Operation: "upsert",
	})
	defer span.End()

	embedding, err := s.embedder.GenerateEmbedding(ctx, in.Content)
	if err != nil {
		span.SetError(err)
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeRetrieval, "embedding failed", err)
	}

	chunk := buildChunk(clientID, in, id, embedding)
	if err := s.store.Upsert(ctx, &chunk); err != nil {
		span.SetError(err)
		return "", err
	}

	return id, nil
}

// UpsertBatch upserts many chunks, embedding all contents in one provider
// call for throughput. Empty input returns 0 and performs no I/O. The writes
// run in one transaction so a partial batch never becomes visible.
func (s *KnowledgeService) UpsertBatch(ctx context.Context, clientID string, inputs []domain.ChunkInput) (int, error) {
	if len(inputs) == 0 {
		return 0, nil
	}

	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.UpsertBatch", telemetry.SpanAttributes{
		ClientID:  clientID,
		Operation: "upsert_batch",
	})
	defer span.End()

	chunks, err := s.embedInputs(ctx, clientID, inputs)
	if err != nil {
		span.SetError(err)
		return 0, err
	}

	count := 0
	err = s.tx.WithTx(ctx, func(store ChunkStore) error {
		var txErr error
		count, txErr = store.UpsertBatch(ctx, chunks)
		return txErr
	})
	if err != nil {
		span.SetError(err)
		return 0, err
	}

	return count, nil
}

// ReplaceClient atomically re-syncs a tenant: wipe then bulk insert inside
// one transaction. Inputs are embedded in a single provider call first, so
// an embedding failure leaves the existing knowledge base untouched.
func (s *KnowledgeService) ReplaceClient(ctx context.Context, clientID string, inputs []domain.ChunkInput) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.ReplaceClient", telemetry.SpanAttributes{
		ClientID:  clientID,
		Operation: "replace",
	})
	defer span.End()

	var chunks []domain.KnowledgeChunk
	if len(inputs) > 0 {
		var err error
		chunks, err = s.embedInputs(ctx, clientID, inputs)
		if err != nil {
			span.SetError(err)
			return 0, err
		}
	}

	count := 0
	err := s.tx.WithTx(ctx, func(store ChunkStore) error {
		if _, err := store.DeleteClient(ctx, clientID); err != nil {
			return err
		}
		var txErr error
		count, txErr = store.UpsertBatch(ctx, chunks)
		return txErr
	})
	if err != nil {
		span.SetError(err)
		return 0, err
	}

	return count, nil
}

// Search embeds the query and returns tenant-scoped results above the score
// threshold, at most TopK, ordered by descending score. An empty result list
// is not an error; embedding or store failure is.
func (s *KnowledgeService) Search(ctx context.Context, input SearchInput) ([]*domain.SearchResult, error) {
	if input.ClientID == "" {
		return nil, domain.ErrMissingClientID
	}
	if input.Query == "" {
		return nil, domain.ErrEmptyQuery
	}

	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.Search", telemetry.SpanAttributes{
		ClientID:  input.ClientID,
		Operation: "search",
	})
	defer span.End()

	embedding, err := s.embedder.GenerateEmbedding(ctx, input.Query)
	if err != nil {
		span.SetError(err)
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeRetrieval, "query embedding failed", err)
	}

	topK := input.TopK
	if topK <= 0 {
		topK = s.defaults.TopK
	}
	minScore := s.defaults.MinScore
	if input.MinScore != nil {
		minScore = *input.MinScore
	}

	started := time.Now()
	results, err := s.store.SearchByEmbedding(ctx, input.ClientID, embedding, topK, input.SourceTypes, minScore)
	if err != nil {
		span.SetError(err)
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeRetrieval, "vector search failed", err)
	}

	if s.retrievalLog != nil {
		entry := RetrievalLogEntry{
			ClientID:    input.ClientID,
			Query:       input.Query,
			SourceTypes: input.SourceTypes,
			ResultCount: len(results),
			DurationMs:  time.Since(started).Milliseconds(),
		}
		if len(results) > 0 {
			entry.TopScore = results[0].Score
		}
		if _, err := s.retrievalLog.CreateRetrievalLog(ctx, entry); err != nil {
			log.Printf("retrieval log write failed client=%s err=%v", input.ClientID, err)
		}
	}

	return results, nil
}

// ListChunks pages through a tenant's chunks, newest first. cursor is an
// opaque token from a previous page; empty starts from the top.
func (s *KnowledgeService) ListChunks(ctx context.Context, clientID, cursor string, limit int) (pagination.PageResult[*domain.KnowledgeChunk], error) {
	var page pagination.PageResult[*domain.KnowledgeChunk]
	if clientID == "" {
		return page, domain.ErrMissingClientID
	}

	decoded, err := pagination.DecodeCursor(cursor)
	if err != nil {
		return page, domain.NewDomainError(domain.ErrCodeValidation, "invalid cursor")
	}

	return s.store.ListByClient(ctx, clientID, decoded, limit)
}

// DeleteClient removes all chunks for a tenant and returns the removed count.
func (s *KnowledgeService) DeleteClient(ctx context.Context, clientID string) (int64, error) {
	if clientID == "" {
		return 0, domain.ErrMissingClientID
	}

	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.DeleteClient", telemetry.SpanAttributes{
		ClientID:  clientID,
		Operation: "delete_client",
	})
	defer span.End()

	return s.store.DeleteClient(ctx, clientID)
}

// Stats returns chunk counts grouped by source type (and client when
// clientID is empty). Observability only.
func (s *KnowledgeService) Stats(ctx context.Context, clientID string) ([]domain.SourceCount, error) {
	return s.store.Stats(ctx, clientID)
}

func (s *KnowledgeService) embedInputs(ctx context.Context, clientID string, inputs []domain.ChunkInput) ([]domain.KnowledgeChunk, error) {
	contents := make([]string, len(inputs))
	for i, in := range inputs {
		if err := domain.ValidateChunkInput(clientID, in); err != nil {
			return nil, err
		}
		contents[i] = in.Content
	}

	embeddings, err := s.embedder.GenerateEmbeddings(ctx, contents)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeRetrieval, "batch embedding failed", err)
	}

	chunks := make([]domain.KnowledgeChunk, len(inputs))
	for i, in := range inputs {
		id := domain.ChunkID(clientID, in.SourceType, in.SourceID, in.Content)
		chunks[i] = buildChunk(clientID, in, id, embeddings[i])
	}
	return chunks, nil
}

func buildChunk(clientID string, in domain.ChunkInput, id string, embedding []float32) domain.KnowledgeChunk {
	now := time.Now().UTC()
	return domain.KnowledgeChunk{
		ID:         id,
		ClientID:   clientID,
		SourceType: in.SourceType,
		SourceID:   in.SourceID,
		Title:      in.Title,
		Content:    in.Content,
		Metadata:   in.Metadata,
		Embedding:  embedding,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
