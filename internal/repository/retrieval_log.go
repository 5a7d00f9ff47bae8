package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/teamauresta/agent-harbor/internal/service"
)

// RetrievalLogRepository stores retrieval logs for tuning the search
// thresholds per tenant.
type RetrievalLogRepository struct {
	pool *pgxpool.Pool
}

func NewRetrievalLogRepository(pool *pgxpool.Pool) *RetrievalLogRepository {
	return &RetrievalLogRepository{pool: pool}
}

func (r *RetrievalLogRepository) CreateRetrievalLog(ctx context.Context, entry service.RetrievalLogEntry) (string, error) {
	types := make([]string, len(entry.SourceTypes))
	for i, st := range entry.SourceTypes {
		types[i] = string(st)
	}
	typesJSON, _ := json.Marshal(types)

	id := uuid.NewString()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO retrieval_logs (id, client_id, query, source_types, result_count, top_score, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id,
		entry.ClientID,
		entry.Query,
		typesJSON,
		entry.ResultCount,
		entry.TopScore,
		entry.DurationMs,
	)
	if err != nil {
		return "", err
	}
	return id, nil
}
