package ingest

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/teamauresta/agent-harbor/internal/domain"
	"github.com/teamauresta/agent-harbor/internal/storage"
)

// ObjectStore is the bucket surface the S3 source needs.
type ObjectStore interface {
	ListObjects(ctx context.Context, prefix string) ([]storage.ObjectInfo, error)
	GetObject(ctx context.Context, key string) ([]byte, error)
}

// Batcher writes chunk batches without replacing existing content.
type Batcher interface {
	UpsertBatch(ctx context.Context, clientID string, inputs []domain.ChunkInput) (int, error)
}

// S3Source ingests markdown knowledge documents stored under
// <clientID>/ in a bucket. Catalog files go through the product parser;
// other markdown files become policy chunks keyed by filename.
type S3Source struct {
	store    ObjectStore
	sink     Batcher
	storeURL string
}

func NewS3Source(store ObjectStore, sink Batcher, storeURL string) *S3Source {
	return &S3Source{store: store, sink: sink, storeURL: storeURL}
}

// Ingest reads every markdown object under the client's prefix and upserts
// the parsed chunks. Unreadable objects are skipped, not fatal.
func (s *S3Source) Ingest(ctx context.Context, clientID string) (int, error) {
	objects, err := s.store.ListObjects(ctx, clientID+"/")
	if err != nil {
		return 0, fmt.Errorf("failed to list knowledge documents: %w", err)
	}

	var chunks []domain.ChunkInput
	for _, obj := range objects {
		if !strings.HasSuffix(obj.Key, ".md") {
			continue
		}
		data, err := s.store.GetObject(ctx, obj.Key)
		if err != nil {
			log.Printf("skipping unreadable document key=%s err=%v", obj.Key, err)
			continue
		}
		chunks = append(chunks, ParseDocument(obj.Key, string(data), s.storeURL)...)
	}

	if len(chunks) == 0 {
		return 0, nil
	}
	return s.sink.UpsertBatch(ctx, clientID, chunks)
}

// ParseDocument routes a markdown file to the right parser. Files with
// product headings are catalogs; everything else is a single policy chunk.
func ParseDocument(key, text, storeURL string) []domain.ChunkInput {
	if strings.Contains("\n"+text, "\n### ") {
		return ParseCatalog(text, storeURL)
	}

	content := strings.TrimSpace(text)
	if content == "" {
		return nil
	}
	return []domain.ChunkInput{{
		Content:    content,
		SourceType: domain.SourceTypePolicy,
		SourceID:   documentID(key),
		Title:      documentTitle(content, key),
	}}
}

func documentID(key string) string {
	base := key[strings.LastIndex(key, "/")+1:]
	return strings.TrimSuffix(base, ".md")
}

func documentTitle(content, key string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
	}
	return documentID(key)
}
