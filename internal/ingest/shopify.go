package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/teamauresta/agent-harbor/internal/domain"
)

// ShopifyProduct is the subset of Shopify's public products.json schema the
// sync reads. No API key is needed; the storefront endpoint is public.
type ShopifyProduct struct {
	ID          int64            `json:"id"`
	Title       string           `json:"title"`
	Handle      string           `json:"handle"`
	BodyHTML    string           `json:"body_html"`
	ProductType string           `json:"product_type"`
	Tags        json.RawMessage  `json:"tags"`
	UpdatedAt   string           `json:"updated_at"`
	Variants    []ShopifyVariant `json:"variants"`
}

type ShopifyVariant struct {
	Title          string `json:"title"`
	Price          string `json:"price"`
	CompareAtPrice string `json:"compare_at_price"`
	Available      bool   `json:"available"`
}

// ShopifyClient fetches product catalogs from a store's public JSON endpoint.
type ShopifyClient struct {
	httpClient *http.Client
	pageSize   int
}

func NewShopifyClient() *ShopifyClient {
	return &ShopifyClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		pageSize:   250,
	}
}

// FetchProducts pages through https://<store>/products.json until a short or
// empty page.
func (c *ShopifyClient) FetchProducts(ctx context.Context, store string) ([]ShopifyProduct, error) {
	var products []ShopifyProduct
	for page := 1; ; page++ {
		url := fmt.Sprintf("https://%s/products.json?limit=%d&page=%d", store, c.pageSize, page)
		batch, err := c.fetchPage(ctx, url)
		if err != nil {
			return nil, err
		}
		products = append(products, batch...)
		if len(batch) < c.pageSize {
			return products, nil
		}
	}
}

func (c *ShopifyClient) fetchPage(ctx context.Context, url string) ([]ShopifyProduct, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("shopify fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("shopify fetch failed with status %d: %s", resp.StatusCode, string(body))
	}

	var page struct {
		Products []ShopifyProduct `json:"products"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to parse shopify response: %w", err)
	}
	return page.Products, nil
}

var htmlTagRe = regexp.MustCompile(`<[^>]+>`)
var whitespaceRe = regexp.MustCompile(`\s+`)
var spaceBeforePunctRe = regexp.MustCompile(`\s+([.,!?;:])`)

const maxDescriptionChars = 500

// ProductToChunk flattens a Shopify product into one searchable chunk. The
// content string folds in price, availability, tags and variants so semantic
// search catches "cheap portable grill" style queries.
func ProductToChunk(p ShopifyProduct, store string) domain.ChunkInput {
	tags := p.tagList()

	prices := uniqueSorted(collect(p.Variants, func(v ShopifyVariant) string { return v.Price }))
	comparePrices := uniqueSorted(collect(p.Variants, func(v ShopifyVariant) string {
		if v.CompareAtPrice != "" && v.CompareAtPrice != v.Price {
			return v.CompareAtPrice
		}
		return ""
	}))

	available := len(p.Variants) == 0
	for _, v := range p.Variants {
		if v.Available {
			available = true
			break
		}
	}

	var variantNames []string
	if len(p.Variants) > 1 {
		for _, v := range p.Variants {
			if v.Title != "" && v.Title != "Default Title" {
				variantNames = append(variantNames, v.Title)
			}
		}
	}

	// Tags become spaces so adjacent blocks don't run together; the stray
	// space an inline tag leaves before punctuation is collapsed after.
	description := whitespaceRe.ReplaceAllString(htmlTagRe.ReplaceAllString(p.BodyHTML, " "), " ")
	description = spaceBeforePunctRe.ReplaceAllString(description, "$1")
	description = strings.TrimSpace(description)
	if len(description) > maxDescriptionChars {
		description = description[:maxDescriptionChars] + "..."
	}

	var b strings.Builder
	b.WriteString(p.Title + ".")
	if p.ProductType != "" {
		b.WriteString(" Category: " + p.ProductType + ".")
	}
	if len(prices) > 0 {
		if len(prices) == 1 {
			b.WriteString(" Price: $" + prices[0])
		} else {
			b.WriteString(fmt.Sprintf(" Price: $%s - $%s", prices[0], prices[len(prices)-1]))
		}
		if len(comparePrices) > 0 {
			b.WriteString(fmt.Sprintf(" (was $%s)", comparePrices[len(comparePrices)-1]))
		}
		b.WriteString(".")
	}
	if !available {
		b.WriteString(" SOLD OUT.")
	}
	if len(tags) > 0 {
		b.WriteString(" Tags: " + strings.Join(tags, ", ") + ".")
	}
	if len(variantNames) > 0 {
		b.WriteString(" Available in: " + strings.Join(variantNames, ", ") + ".")
	}
	if description != "" {
		b.WriteString(" " + description)
	}

	url := fmt.Sprintf("https://%s/products/%s", store, p.Handle)

	meta := domain.Metadata{
		"handle":     domain.String(p.Handle),
		"url":        domain.String(url),
		"available":  domain.Bool(available),
		"variants":   domain.Number(float64(len(p.Variants))),
		"shopify_id": domain.Number(float64(p.ID)),
	}
	if len(prices) > 0 {
		meta["price"] = domain.String(prices[0])
	}
	if len(comparePrices) > 0 {
		meta["compare_at_price"] = domain.String(comparePrices[len(comparePrices)-1])
	}
	if p.ProductType != "" {
		meta["product_type"] = domain.String(p.ProductType)
	}
	if len(tags) > 0 {
		meta["tags"] = domain.StringList(tags)
	}
	if p.UpdatedAt != "" {
		meta["updated_at"] = domain.String(p.UpdatedAt)
	}

	return domain.ChunkInput{
		Content:    b.String(),
		SourceType: domain.SourceTypeProduct,
		SourceID:   p.Handle,
		Title:      p.Title,
		Metadata:   meta,
	}
}

// tagList tolerates both encodings Shopify uses: a JSON array of strings and
// a single comma-separated string.
func (p ShopifyProduct) tagList() []string {
	if len(p.Tags) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(p.Tags, &list); err == nil {
		return list
	}
	var joined string
	if err := json.Unmarshal(p.Tags, &joined); err == nil {
		return splitTags(joined)
	}
	return nil
}

// Replacer swaps a tenant's chunks atomically.
type Replacer interface {
	ReplaceClient(ctx context.Context, clientID string, inputs []domain.ChunkInput) (int, error)
}

// ShopifySyncer rebuilds a tenant's knowledge base from its Shopify store.
type ShopifySyncer struct {
	client *ShopifyClient
	store  Replacer
}

func NewShopifySyncer(client *ShopifyClient, store Replacer) *ShopifySyncer {
	return &ShopifySyncer{client: client, store: store}
}

// Sync fetches every product and replaces the client's chunks in one
// transaction. extraChunks (store policies, FAQs) ride along so the swap
// never leaves the tenant without them.
func (s *ShopifySyncer) Sync(ctx context.Context, clientID, store string, extraChunks []domain.ChunkInput) (int, error) {
	products, err := s.client.FetchProducts(ctx, store)
	if err != nil {
		return 0, err
	}

	chunks := make([]domain.ChunkInput, 0, len(products)+len(extraChunks))
	chunks = append(chunks, extraChunks...)
	for _, p := range products {
		chunks = append(chunks, ProductToChunk(p, store))
	}

	return s.store.ReplaceClient(ctx, clientID, chunks)
}

func collect(variants []ShopifyVariant, f func(ShopifyVariant) string) []string {
	var out []string
	for _, v := range variants {
		if s := f(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func uniqueSorted(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, s := range in {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
