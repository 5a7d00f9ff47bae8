package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamauresta/agent-harbor/internal/domain"
)

const sampleCatalog = `# Product Catalog

## Store Info
Pickup: 2/56 Smith Rd, Springvale VIC 3171 (weekdays 9am-4pm).
Shipping: Free on orders over $50 within Australia.
Returns: 30-day returns on unused items.

## Products

### Compact Charcoal Grill
- **Price:** $189.00 (was $229.00)
- **Handle:** compact-charcoal-grill
- **Tags:** grill, charcoal, portable
- Foldable legs and a carry handle.
- Cooks for up to six people.

### Pizza Oven Attachment
- **Price:** $99.00
- **Handle:** pizza-oven-attachment
- Turns any grill into a wood-fired pizza oven.
`

func TestParseCatalog(t *testing.T) {
	chunks := ParseCatalog(sampleCatalog, "https://shop.example.com")

	require.Len(t, chunks, 3)

	info := chunks[0]
	assert.Equal(t, domain.SourceTypePolicy, info.SourceType)
	assert.Equal(t, "store-info", info.SourceID)
	assert.Contains(t, info.Content, "30-day returns")

	grill := chunks[1]
	assert.Equal(t, domain.SourceTypeProduct, grill.SourceType)
	assert.Equal(t, "compact-charcoal-grill", grill.SourceID)
	assert.Equal(t, "Compact Charcoal Grill", grill.Title)
	assert.Contains(t, grill.Content, "Price: $189.00 (was $229.00)")
	assert.Contains(t, grill.Content, "Tags: grill, charcoal, portable")
	assert.Contains(t, grill.Content, "Foldable legs")
	assert.Equal(t, "189.00", grill.Metadata.GetString("price"))
	assert.Equal(t, "229.00", grill.Metadata.GetString("was_price"))
	assert.Equal(t, "https://shop.example.com/products/compact-charcoal-grill", grill.Metadata.GetString("url"))

	oven := chunks[2]
	assert.Equal(t, "pizza-oven-attachment", oven.SourceID)
	assert.Contains(t, oven.Content, "Price: $99.00.")
	assert.Empty(t, oven.Metadata.GetString("was_price"))
}

func TestParseCatalog_NoStoreInfo(t *testing.T) {
	chunks := ParseCatalog("### Lone Product\n- **Price:** $10.00\n- Just one.\n", "")

	require.Len(t, chunks, 1)
	assert.Equal(t, domain.SourceTypeProduct, chunks[0].SourceType)
	assert.Equal(t, "lone-product", chunks[0].SourceID)
	assert.Empty(t, chunks[0].Metadata.GetString("url"))
}

func TestParseCatalog_Empty(t *testing.T) {
	assert.Empty(t, ParseCatalog("", ""))
	assert.Empty(t, ParseCatalog("# Just a heading\n\nProse with no products.", ""))
}

func TestParseCatalog_MissingHandleFallsBackToSlug(t *testing.T) {
	chunks := ParseCatalog("### Big Green Smoker XL\n- **Price:** $450.00\n", "")

	require.Len(t, chunks, 1)
	assert.Equal(t, "big-green-smoker-xl", chunks[0].SourceID)
}
