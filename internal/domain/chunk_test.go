package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunkID(t *testing.T) {
	a := ChunkID("acme", SourceTypeProduct, "sku-1", "Lavender soap")
	b := ChunkID("acme", SourceTypeProduct, "sku-1", "Lavender soap")
	assert.Equal(t, a, b, "identical input must yield the same id")
	assert.Len(t, a, 64)

	assert.NotEqual(t, a, ChunkID("globex", SourceTypeProduct, "sku-1", "Lavender soap"))
	assert.NotEqual(t, a, ChunkID("acme", SourceTypeFAQ, "sku-1", "Lavender soap"))
	assert.NotEqual(t, a, ChunkID("acme", SourceTypeProduct, "sku-2", "Lavender soap"))
	assert.NotEqual(t, a, ChunkID("acme", SourceTypeProduct, "sku-1", "Rose soap"))
}

func TestValidateChunkInput(t *testing.T) {
	valid := ChunkInput{Content: "Lavender soap", SourceType: SourceTypeProduct, SourceID: "sku-1"}

	tests := []struct {
		name     string
		clientID string
		mutate   func(*ChunkInput)
		wantErr  error
	}{
		{name: "valid", clientID: "acme", mutate: func(in *ChunkInput) {}},
		{name: "missing client", clientID: "", mutate: func(in *ChunkInput) {}, wantErr: ErrMissingClientID},
		{name: "empty content", clientID: "acme", mutate: func(in *ChunkInput) { in.Content = "" }, wantErr: ErrEmptyContent},
		{name: "missing source type", clientID: "acme", mutate: func(in *ChunkInput) { in.SourceType = "" }, wantErr: ErrMissingSourceType},
		{name: "missing source id", clientID: "acme", mutate: func(in *ChunkInput) { in.SourceID = "" }, wantErr: ErrMissingSourceID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			err := ValidateChunkInput(tt.clientID, in)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestLastVisitorMessage(t *testing.T) {
	assert.Equal(t, "", LastVisitorMessage(nil))
	assert.Equal(t, "", LastVisitorMessage([]Message{{Role: RoleAgent, Content: "hi"}}))

	history := []Message{
		{Role: RoleVisitor, Content: "first"},
		{Role: RoleAgent, Content: "reply"},
		{Role: RoleVisitor, Content: "second"},
		{Role: RoleAgent, Content: "another reply"},
	}
	assert.Equal(t, "second", LastVisitorMessage(history))
}
