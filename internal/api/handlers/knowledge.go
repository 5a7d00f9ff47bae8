package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/teamauresta/agent-harbor/internal/api"
	"github.com/teamauresta/agent-harbor/internal/domain"
	"github.com/teamauresta/agent-harbor/internal/pagination"
	"github.com/teamauresta/agent-harbor/internal/service"
)

type KnowledgeService interface {
	Upsert(ctx context.Context, clientID string, in domain.ChunkInput) (string, error)
	UpsertBatch(ctx context.Context, clientID string, inputs []domain.ChunkInput) (int, error)
	ReplaceClient(ctx context.Context, clientID string, inputs []domain.ChunkInput) (int, error)
	Search(ctx context.Context, input service.SearchInput) ([]*domain.SearchResult, error)
	ListChunks(ctx context.Context, clientID, cursor string, limit int) (pagination.PageResult[*domain.KnowledgeChunk], error)
	DeleteClient(ctx context.Context, clientID string) (int64, error)
	Stats(ctx context.Context, clientID string) ([]domain.SourceCount, error)
}

// KnowledgeHandler exposes the authenticated knowledge administration API.
type KnowledgeHandler struct {
	svc KnowledgeService
}

func NewKnowledgeHandler(svc KnowledgeService) *KnowledgeHandler {
	return &KnowledgeHandler{svc: svc}
}

type ChunkRequest struct {
	Content    string          `json:"content"`
	SourceType string          `json:"source_type"`
	SourceID   string          `json:"source_id"`
	Title      string          `json:"title"`
	Metadata   domain.Metadata `json:"metadata"`
}

func (r ChunkRequest) toInput() domain.ChunkInput {
	return domain.ChunkInput{
		Content:    r.Content,
		SourceType: domain.SourceType(r.SourceType),
		SourceID:   r.SourceID,
		Title:      r.Title,
		Metadata:   r.Metadata,
	}
}

type BatchRequest struct {
	Chunks []ChunkRequest `json:"chunks"`
	// Replace wipes the client's existing chunks before writing, in one
	// transaction.
	Replace bool `json:"replace"`
}

type SearchRequest struct {
	Query       string   `json:"query"`
	TopK        int      `json:"top_k"`
	SourceTypes []string `json:"source_types"`
	MinScore    *float32 `json:"min_score"`
}

type SearchResultResponse struct {
	ID         string          `json:"id"`
	SourceType string          `json:"source_type"`
	SourceID   string          `json:"source_id"`
	Title      string          `json:"title,omitempty"`
	Content    string          `json:"content"`
	Metadata   domain.Metadata `json:"metadata,omitempty"`
	Score      float32         `json:"score"`
}

// Upsert handles POST /admin/knowledge/{client_id}/chunks.
func (h *KnowledgeHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "client_id")

	var req ChunkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := h.svc.Upsert(r.Context(), clientID, req.toInput())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, map[string]string{"id": id})
}

// UpsertBatch handles POST /admin/knowledge/{client_id}/chunks/batch.
func (h *KnowledgeHandler) UpsertBatch(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "client_id")

	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	inputs := make([]domain.ChunkInput, len(req.Chunks))
	for i, c := range req.Chunks {
		inputs[i] = c.toInput()
	}

	var count int
	var err error
	if req.Replace {
		count, err = h.svc.ReplaceClient(r.Context(), clientID, inputs)
	} else {
		count, err = h.svc.UpsertBatch(r.Context(), clientID, inputs)
	}
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, map[string]int{"count": count})
}

// Search handles POST /admin/knowledge/{client_id}/search.
func (h *KnowledgeHandler) Search(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "client_id")

	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sourceTypes := make([]domain.SourceType, len(req.SourceTypes))
	for i, s := range req.SourceTypes {
		sourceTypes[i] = domain.SourceType(s)
	}

	results, err := h.svc.Search(r.Context(), service.SearchInput{
		ClientID:    clientID,
		Query:       req.Query,
		TopK:        req.TopK,
		SourceTypes: sourceTypes,
		MinScore:    req.MinScore,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	out := make([]SearchResultResponse, len(results))
	for i, res := range results {
		out[i] = SearchResultResponse{
			ID:         res.ID,
			SourceType: string(res.SourceType),
			SourceID:   res.SourceID,
			Title:      res.Title,
			Content:    res.Content,
			Metadata:   res.Metadata,
			Score:      res.Score,
		}
	}

	api.Success(w, http.StatusOK, out)
}

type ChunkSummary struct {
	ID         string          `json:"id"`
	SourceType string          `json:"source_type"`
	SourceID   string          `json:"source_id"`
	Title      string          `json:"title,omitempty"`
	Content    string          `json:"content"`
	Metadata   domain.Metadata `json:"metadata,omitempty"`
	UpdatedAt  string          `json:"updated_at"`
}

// List handles GET /admin/knowledge/{client_id}/chunks.
func (h *KnowledgeHandler) List(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "client_id")
	cursor := r.URL.Query().Get("cursor")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			api.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	page, err := h.svc.ListChunks(r.Context(), clientID, cursor, limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	items := make([]ChunkSummary, len(page.Items))
	for i, c := range page.Items {
		items[i] = ChunkSummary{
			ID:         c.ID,
			SourceType: string(c.SourceType),
			SourceID:   c.SourceID,
			Title:      c.Title,
			Content:    c.Content,
			Metadata:   c.Metadata,
			UpdatedAt:  c.UpdatedAt.UTC().Format(time.RFC3339),
		}
	}

	api.Success(w, http.StatusOK, pagination.PageResult[ChunkSummary]{
		Items:   items,
		Cursor:  page.Cursor,
		HasMore: page.HasMore,
	})
}

// Stats handles GET /admin/knowledge/{client_id}/stats.
func (h *KnowledgeHandler) Stats(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "client_id")

	counts, err := h.svc.Stats(r.Context(), clientID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	out := make(map[string]int64, len(counts))
	var total int64
	for _, c := range counts {
		out[string(c.SourceType)] = c.Count
		total += c.Count
	}

	api.Success(w, http.StatusOK, map[string]any{
		"client_id": clientID,
		"total":     total,
		"by_source": out,
	})
}

// Delete handles DELETE /admin/knowledge/{client_id}.
func (h *KnowledgeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "client_id")

	deleted, err := h.svc.DeleteClient(r.Context(), clientID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, map[string]int64{"deleted": deleted})
}
