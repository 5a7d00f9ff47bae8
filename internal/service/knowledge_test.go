package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/teamauresta/agent-harbor/internal/domain"
	"github.com/teamauresta/agent-harbor/internal/pagination"
)

type mockChunkStore struct {
	mock.Mock
}

func (m *mockChunkStore) Upsert(ctx context.Context, c *domain.KnowledgeChunk) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *mockChunkStore) UpsertBatch(ctx context.Context, chunks []domain.KnowledgeChunk) (int, error) {
	args := m.Called(ctx, chunks)
	return args.Int(0), args.Error(1)
}

func (m *mockChunkStore) SearchByEmbedding(ctx context.Context, clientID string, embedding []float32, topK int, sourceTypes []domain.SourceType, minScore float32) ([]*domain.SearchResult, error) {
	args := m.Called(ctx, clientID, embedding, topK, sourceTypes, minScore)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.SearchResult), args.Error(1)
}

func (m *mockChunkStore) ListByClient(ctx context.Context, clientID string, cursor *pagination.Cursor, limit int) (pagination.PageResult[*domain.KnowledgeChunk], error) {
	args := m.Called(ctx, clientID, cursor, limit)
	return args.Get(0).(pagination.PageResult[*domain.KnowledgeChunk]), args.Error(1)
}

func (m *mockChunkStore) DeleteClient(ctx context.Context, clientID string) (int64, error) {
	args := m.Called(ctx, clientID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockChunkStore) Stats(ctx context.Context, clientID string) ([]domain.SourceCount, error) {
	args := m.Called(ctx, clientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.SourceCount), args.Error(1)
}

// passthroughTx hands the wrapped store straight to fn; transaction semantics
// are covered by the repository integration tests.
type passthroughTx struct {
	store ChunkStore
}

func (t *passthroughTx) WithTx(ctx context.Context, fn func(store ChunkStore) error) error {
	return fn(t.store)
}

type mockEmbedder struct {
	mock.Mock
}

func (m *mockEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

func (m *mockEmbedder) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func newTestService(store *mockChunkStore, embedder *mockEmbedder) *KnowledgeService {
	return NewKnowledgeService(store, &passthroughTx{store: store}, embedder)
}

func productInput(sourceID, content string) domain.ChunkInput {
	return domain.ChunkInput{Content: content, SourceType: domain.SourceTypeProduct, SourceID: sourceID}
}

func TestKnowledgeUpsert_DerivesStableID(t *testing.T) {
	store := new(mockChunkStore)
	embedder := new(mockEmbedder)
	svc := newTestService(store, embedder)

	wantID := domain.ChunkID("acme", domain.SourceTypeProduct, "sku-1", "Lavender soap")
	embedder.On("GenerateEmbedding", mock.Anything, "Lavender soap").Return([]float32{0.1, 0.2}, nil)
	store.On("Upsert", mock.Anything, mock.MatchedBy(func(c *domain.KnowledgeChunk) bool {
		return c.ID == wantID && c.ClientID == "acme" && len(c.Embedding) == 2
	})).Return(nil)

	id, err := svc.Upsert(context.Background(), "acme", productInput("sku-1", "Lavender soap"))
	require.NoError(t, err)
	assert.Equal(t, wantID, id)
	store.AssertExpectations(t)
}

func TestKnowledgeUpsert_ValidationShortCircuits(t *testing.T) {
	store := new(mockChunkStore)
	embedder := new(mockEmbedder)
	svc := newTestService(store, embedder)

	_, err := svc.Upsert(context.Background(), "acme", productInput("sku-1", ""))
	assert.ErrorIs(t, err, domain.ErrEmptyContent)
	embedder.AssertNotCalled(t, "GenerateEmbedding", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

func TestKnowledgeUpsert_EmbeddingFailureWritesNothing(t *testing.T) {
	store := new(mockChunkStore)
	embedder := new(mockEmbedder)
	svc := newTestService(store, embedder)

	embedder.On("GenerateEmbedding", mock.Anything, mock.Anything).Return(nil, errors.New("provider down"))

	_, err := svc.Upsert(context.Background(), "acme", productInput("sku-1", "Lavender soap"))
	require.Error(t, err)

	var derr *domain.DomainError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, domain.ErrCodeRetrieval, derr.Code)
	store.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

func TestKnowledgeUpsertBatch_EmbedsOnce(t *testing.T) {
	store := new(mockChunkStore)
	embedder := new(mockEmbedder)
	svc := newTestService(store, embedder)

	embedder.On("GenerateEmbeddings", mock.Anything, []string{"Soap A", "Soap B"}).
		Return([][]float32{{0.1}, {0.2}}, nil).Once()
	store.On("UpsertBatch", mock.Anything, mock.MatchedBy(func(chunks []domain.KnowledgeChunk) bool {
		return len(chunks) == 2 && chunks[0].Embedding[0] == float32(0.1) && chunks[1].Embedding[0] == float32(0.2)
	})).Return(2, nil)

	count, err := svc.UpsertBatch(context.Background(), "acme", []domain.ChunkInput{
		productInput("sku-1", "Soap A"),
		productInput("sku-2", "Soap B"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	embedder.AssertExpectations(t)
}

func TestKnowledgeUpsertBatch_EmptyIsNoop(t *testing.T) {
	store := new(mockChunkStore)
	embedder := new(mockEmbedder)
	svc := newTestService(store, embedder)

	count, err := svc.UpsertBatch(context.Background(), "acme", nil)
	require.NoError(t, err)
	assert.Zero(t, count)
	embedder.AssertNotCalled(t, "GenerateEmbeddings", mock.Anything, mock.Anything)
}

func TestKnowledgeReplaceClient_DeletesThenWrites(t *testing.T) {
	store := new(mockChunkStore)
	embedder := new(mockEmbedder)
	svc := newTestService(store, embedder)

	embedder.On("GenerateEmbeddings", mock.Anything, []string{"Soap A"}).Return([][]float32{{0.1}}, nil)
	store.On("DeleteClient", mock.Anything, "acme").Return(int64(9), nil)
	store.On("UpsertBatch", mock.Anything, mock.Anything).Return(1, nil)

	count, err := svc.ReplaceClient(context.Background(), "acme", []domain.ChunkInput{productInput("sku-1", "Soap A")})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	store.AssertExpectations(t)
}

func TestKnowledgeReplaceClient_EmbeddingFailureKeepsExisting(t *testing.T) {
	store := new(mockChunkStore)
	embedder := new(mockEmbedder)
	svc := newTestService(store, embedder)

	embedder.On("GenerateEmbeddings", mock.Anything, mock.Anything).Return(nil, errors.New("provider down"))

	_, err := svc.ReplaceClient(context.Background(), "acme", []domain.ChunkInput{productInput("sku-1", "Soap A")})
	require.Error(t, err)
	store.AssertNotCalled(t, "DeleteClient", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "UpsertBatch", mock.Anything, mock.Anything)
}

func TestKnowledgeSearch_AppliesDefaults(t *testing.T) {
	store := new(mockChunkStore)
	embedder := new(mockEmbedder)
	svc := newTestService(store, embedder)

	embedder.On("GenerateEmbedding", mock.Anything, "lavender").Return([]float32{0.5}, nil)
	store.On("SearchByEmbedding", mock.Anything, "acme", []float32{0.5}, 5, []domain.SourceType(nil), float32(0.4)).
		Return([]*domain.SearchResult{{ID: "c1", Score: 0.9}}, nil)

	results, err := svc.Search(context.Background(), SearchInput{ClientID: "acme", Query: "lavender"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	store.AssertExpectations(t)
}

func TestKnowledgeSearch_OverridesDefaults(t *testing.T) {
	store := new(mockChunkStore)
	embedder := new(mockEmbedder)
	svc := newTestService(store, embedder)

	minScore := float32(0.1)
	embedder.On("GenerateEmbedding", mock.Anything, "lavender").Return([]float32{0.5}, nil)
	store.On("SearchByEmbedding", mock.Anything, "acme", []float32{0.5}, 12, []domain.SourceType{domain.SourceTypeFAQ}, float32(0.1)).
		Return([]*domain.SearchResult{}, nil)

	_, err := svc.Search(context.Background(), SearchInput{
		ClientID:    "acme",
		Query:       "lavender",
		TopK:        12,
		SourceTypes: []domain.SourceType{domain.SourceTypeFAQ},
		MinScore:    &minScore,
	})
	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestKnowledgeSearch_Validation(t *testing.T) {
	svc := newTestService(new(mockChunkStore), new(mockEmbedder))

	_, err := svc.Search(context.Background(), SearchInput{Query: "soap"})
	assert.ErrorIs(t, err, domain.ErrMissingClientID)

	_, err = svc.Search(context.Background(), SearchInput{ClientID: "acme"})
	assert.ErrorIs(t, err, domain.ErrEmptyQuery)
}

func TestKnowledgeSearch_StoreErrorWrapped(t *testing.T) {
	store := new(mockChunkStore)
	embedder := new(mockEmbedder)
	svc := newTestService(store, embedder)

	embedder.On("GenerateEmbedding", mock.Anything, mock.Anything).Return([]float32{0.5}, nil)
	store.On("SearchByEmbedding", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("db down"))

	_, err := svc.Search(context.Background(), SearchInput{ClientID: "acme", Query: "soap"})
	var derr *domain.DomainError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, domain.ErrCodeRetrieval, derr.Code)
}

type failingRetrievalLog struct {
	calls int
}

func (f *failingRetrievalLog) CreateRetrievalLog(ctx context.Context, entry RetrievalLogEntry) (string, error) {
	f.calls++
	return "", errors.New("log table missing")
}

func TestKnowledgeSearch_LogFailureIsNotFatal(t *testing.T) {
	store := new(mockChunkStore)
	embedder := new(mockEmbedder)
	svc := newTestService(store, embedder)

	logger := &failingRetrievalLog{}
	svc.SetRetrievalLog(logger)

	embedder.On("GenerateEmbedding", mock.Anything, mock.Anything).Return([]float32{0.5}, nil)
	store.On("SearchByEmbedding", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]*domain.SearchResult{{ID: "c1", Score: 0.8}}, nil)

	results, err := svc.Search(context.Background(), SearchInput{ClientID: "acme", Query: "soap"})
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, 1, logger.calls)
}

func TestKnowledgeListChunks(t *testing.T) {
	store := new(mockChunkStore)
	svc := newTestService(store, new(mockEmbedder))

	store.On("ListByClient", mock.Anything, "acme", (*pagination.Cursor)(nil), 10).
		Return(pagination.PageResult[*domain.KnowledgeChunk]{
			Items:   []*domain.KnowledgeChunk{{ID: "c1"}},
			HasMore: false,
		}, nil)

	page, err := svc.ListChunks(context.Background(), "acme", "", 10)
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
}

func TestKnowledgeListChunks_InvalidCursor(t *testing.T) {
	svc := newTestService(new(mockChunkStore), new(mockEmbedder))

	_, err := svc.ListChunks(context.Background(), "acme", "not-base64!", 10)
	var derr *domain.DomainError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, domain.ErrCodeValidation, derr.Code)

	_, err = svc.ListChunks(context.Background(), "", "", 10)
	assert.ErrorIs(t, err, domain.ErrMissingClientID)
}

func TestKnowledgeDeleteClient_RequiresClientID(t *testing.T) {
	store := new(mockChunkStore)
	svc := newTestService(store, new(mockEmbedder))

	_, err := svc.DeleteClient(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrMissingClientID)

	store.On("DeleteClient", mock.Anything, "acme").Return(int64(3), nil)
	deleted, err := svc.DeleteClient(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)
}
