package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/teamauresta/agent-harbor/internal/domain"
	"github.com/teamauresta/agent-harbor/internal/telemetry"
)

// Searcher is the knowledge-store surface the context service needs.
type Searcher interface {
	Search(ctx context.Context, input SearchInput) ([]*domain.SearchResult, error)
}

// ContextService turns ranked search results into a bounded text block for
// prompt injection.
type ContextService struct {
	searcher Searcher
}

// NewContextService creates a ContextService.
func NewContextService(searcher Searcher) *ContextService {
	return &ContextService{searcher: searcher}
}

// Retrieve searches the tenant's knowledge and assembles the results into a
// context block of at most maxChars. Empty string means no retrieval context
// is available; that is not an error.
func (s *ContextService) Retrieve(ctx context.Context, clientID, query string, maxChars int) (string, error) {
	ctx, span := telemetry.StartSpan(ctx, "ContextService.Retrieve", telemetry.SpanAttributes{
		ClientID:  clientID,
		Operation: "retrieve",
	})
	defer span.End()

	results, err := s.searcher.Search(ctx, SearchInput{ClientID: clientID, Query: query})
	if err != nil {
		span.SetError(err)
		return "", err
	}

	return Assemble(results, maxChars), nil
}

// Assemble renders results, in the order given, as labeled blocks joined by
// blank lines. Blocks are appended whole: the first block that would push the
// total past maxChars is dropped and assembly stops. Empty input yields "".
func Assemble(results []*domain.SearchResult, maxChars int) string {
	if len(results) == 0 {
		return ""
	}

	const sep = "\n\n"

	var b strings.Builder
	total := 0
	for _, r := range results {
		block := renderBlock(r)
		next := total + len(block)
		if total > 0 {
			next += len(sep)
		}
		if next > maxChars {
			break
		}
		if total > 0 {
			b.WriteString(sep)
		}
		b.WriteString(block)
		total = next
	}

	return b.String()
}

func renderBlock(r *domain.SearchResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] ", strings.ToUpper(string(r.SourceType)))
	if r.Title != "" {
		b.WriteString(r.Title)
		b.WriteString(": ")
	}
	b.WriteString(r.Content)
	if url := r.Metadata.GetString("url"); url != "" {
		b.WriteString(" | URL: ")
		b.WriteString(url)
	}
	return b.String()
}
