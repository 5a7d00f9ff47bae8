package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/teamauresta/agent-harbor/internal/domain"
	"github.com/teamauresta/agent-harbor/internal/pagination"
)

// dbtx abstracts over a pool or transaction.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ChunkRepository handles persistence of tenant knowledge chunks and their
// embeddings. All reads and deletes are scoped by client id.
type ChunkRepository struct {
	db dbtx
}

func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{db: pool}
}

func NewChunkRepositoryWithTx(tx pgx.Tx) *ChunkRepository {
	return &ChunkRepository{db: tx}
}

// Upsert writes or updates one chunk row keyed by its content-derived id.
// Safe to call concurrently for the same id: content is identical by
// construction, so last write wins on the row.
func (r *ChunkRepository) Upsert(ctx context.Context, c *domain.KnowledgeChunk) error {
	metadata, err := marshalMetadata(c.Metadata)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO knowledge_chunks
			(id, client_id, source_type, source_id, title, content, metadata, embedding, created_at, updated_at)
		 VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding,
			updated_at = EXCLUDED.updated_at`,
		c.ID,
		c.ClientID,
		c.SourceType,
		c.SourceID,
		nullableString(c.Title),
		c.Content,
		metadata,
		pgvector.NewVector(c.Embedding),
		createdAt,
		now,
	)
	return err
}

// UpsertBatch upserts chunks one row at a time inside the caller's
// transaction scope. Embeddings are expected to be pre-computed in a single
// provider call by the service layer.
func (r *ChunkRepository) UpsertBatch(ctx context.Context, chunks []domain.KnowledgeChunk) (int, error) {
	count := 0
	for i := range chunks {
		if err := r.Upsert(ctx, &chunks[i]); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// SearchByEmbedding runs tenant-scoped cosine similarity search. Results below
// minScore are filtered in SQL; ordering is score descending.
func (r *ChunkRepository) SearchByEmbedding(
	ctx context.Context,
	clientID string,
	embedding []float32,
	topK int,
	sourceTypes []domain.SourceType,
	minScore float32,
) ([]*domain.SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}

	vec := pgvector.NewVector(embedding)

	query := `
		SELECT id, client_id, source_type, source_id, title, content, metadata,
		       1 - (embedding <=> $1) AS score
		FROM knowledge_chunks
		WHERE client_id = $2
		  AND 1 - (embedding <=> $1) >= $3`
	args := []any{vec, clientID, minScore}

	if len(sourceTypes) > 0 {
		types := make([]string, len(sourceTypes))
		for i, st := range sourceTypes {
			types[i] = string(st)
		}
		query += ` AND source_type = ANY($4)`
		args = append(args, types)
	}

	// Order by raw distance, not the score alias: pgvector only matches the
	// HNSW index to `ORDER BY embedding <=> $1 LIMIT k`. Ascending distance
	// is descending score, so result order is unchanged.
	query += fmt.Sprintf(` ORDER BY embedding <=> $1 LIMIT $%d`, len(args)+1)
	args = append(args, topK)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]*domain.SearchResult, 0)
	for rows.Next() {
		var res domain.SearchResult
		var title *string
		var metadata []byte
		var score float64
		if err := rows.Scan(&res.ID, &res.ClientID, &res.SourceType, &res.SourceID, &title, &res.Content, &metadata, &score); err != nil {
			return nil, err
		}
		if title != nil {
			res.Title = *title
		}
		if err := unmarshalMetadata(metadata, &res.Metadata); err != nil {
			return nil, err
		}
		res.Score = float32(score)
		results = append(results, &res)
	}

	return results, rows.Err()
}

// DeleteClient removes every chunk for a tenant. Used for atomic full
// re-sync: delete, then bulk upsert.
func (r *ChunkRepository) DeleteClient(ctx context.Context, clientID string) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM knowledge_chunks WHERE client_id = $1`, clientID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Stats returns chunk counts grouped by source type, and by client when
// clientID is empty.
func (r *ChunkRepository) Stats(ctx context.Context, clientID string) ([]domain.SourceCount, error) {
	var rows pgx.Rows
	var err error

	if clientID != "" {
		rows, err = r.db.Query(ctx,
			`SELECT client_id, source_type, COUNT(*)
			 FROM knowledge_chunks
			 WHERE client_id = $1
			 GROUP BY client_id, source_type
			 ORDER BY source_type`,
			clientID,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT client_id, source_type, COUNT(*)
			 FROM knowledge_chunks
			 GROUP BY client_id, source_type
			 ORDER BY client_id, source_type`,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make([]domain.SourceCount, 0)
	for rows.Next() {
		var s domain.SourceCount
		if err := rows.Scan(&s.ClientID, &s.SourceType, &s.Count); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}

	return stats, rows.Err()
}

// ListByClient pages through a tenant's chunks in updated_at descending
// order. Embeddings are not loaded; listing is an admin surface.
func (r *ChunkRepository) ListByClient(ctx context.Context, clientID string, cursor *pagination.Cursor, limit int) (pagination.PageResult[*domain.KnowledgeChunk], error) {
	if limit <= 0 {
		limit = 50
	}

	var page pagination.PageResult[*domain.KnowledgeChunk]
	var rows pgx.Rows
	var err error

	if cursor != nil {
		rows, err = r.db.Query(ctx,
			`SELECT id, client_id, source_type, source_id, title, content, metadata, created_at, updated_at
			 FROM knowledge_chunks
			 WHERE client_id = $1 AND (updated_at, id) < ($2, $3)
			 ORDER BY updated_at DESC, id DESC
			 LIMIT $4`,
			clientID, cursor.Timestamp, cursor.LastID, limit+1,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT id, client_id, source_type, source_id, title, content, metadata, created_at, updated_at
			 FROM knowledge_chunks
			 WHERE client_id = $1
			 ORDER BY updated_at DESC, id DESC
			 LIMIT $2`,
			clientID, limit+1,
		)
	}
	if err != nil {
		return page, err
	}
	defer rows.Close()

	var chunks []*domain.KnowledgeChunk
	for rows.Next() {
		var c domain.KnowledgeChunk
		var title *string
		var metadata []byte
		if err := rows.Scan(&c.ID, &c.ClientID, &c.SourceType, &c.SourceID, &title, &c.Content, &metadata, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return page, err
		}
		if title != nil {
			c.Title = *title
		}
		if err := unmarshalMetadata(metadata, &c.Metadata); err != nil {
			return page, err
		}
		chunks = append(chunks, &c)
	}
	if err := rows.Err(); err != nil {
		return page, err
	}

	hasMore := len(chunks) > limit
	if hasMore {
		chunks = chunks[:limit]
	}

	page.Items = chunks
	page.HasMore = hasMore
	if hasMore && len(chunks) > 0 {
		last := chunks[len(chunks)-1]
		page.Cursor = pagination.EncodeCursor(last.ID, last.UpdatedAt)
	}
	return page, nil
}

// GetByID fetches one chunk by id, nil when absent.
func (r *ChunkRepository) GetByID(ctx context.Context, id string) (*domain.KnowledgeChunk, error) {
	var c domain.KnowledgeChunk
	var title *string
	var metadata []byte
	var embedding pgvector.Vector
	err := r.db.QueryRow(ctx,
		`SELECT id, client_id, source_type, source_id, title, content, metadata, embedding, created_at, updated_at
		 FROM knowledge_chunks WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.ClientID, &c.SourceType, &c.SourceID, &title, &c.Content, &metadata, &embedding, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if title != nil {
		c.Title = *title
	}
	if err := unmarshalMetadata(metadata, &c.Metadata); err != nil {
		return nil, err
	}
	c.Embedding = embedding.Slice()
	return &c, nil
}

func marshalMetadata(m domain.Metadata) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func unmarshalMetadata(data []byte, out *domain.Metadata) error {
	if len(data) == 0 {
		*out = nil
		return nil
	}
	return json.Unmarshal(data, out)
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
