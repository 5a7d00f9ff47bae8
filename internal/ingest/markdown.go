// Package ingest turns external catalogs into knowledge chunks: markdown
// product files, Shopify storefronts, and S3-hosted documents.
package ingest

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/teamauresta/agent-harbor/internal/domain"
)

var (
	storeInfoRe = regexp.MustCompile(`(?s)## Store Info\n(.*?)(?:\n## |\z)`)
	priceRe     = regexp.MustCompile(`\*\*Price:\*\*\s*\$([\d,.]+)`)
	wasPriceRe  = regexp.MustCompile(`\(was \$([\d,.]+)\)`)
	handleRe    = regexp.MustCompile(`\*\*Handle:\*\*\s*(\S+)`)
	tagsRe      = regexp.MustCompile(`\*\*Tags:\*\*\s*(.+)`)
)

// ParseCatalog parses a markdown product catalog into chunk inputs. The file
// layout is one `### ` heading per product with bolded metadata lines, plus
// an optional `## Store Info` section that becomes a policy chunk.
func ParseCatalog(text, storeURL string) []domain.ChunkInput {
	var chunks []domain.ChunkInput

	if m := storeInfoRe.FindStringSubmatch(text); m != nil {
		if info := strings.TrimSpace(m[1]); info != "" {
			chunks = append(chunks, domain.ChunkInput{
				Content:    info,
				SourceType: domain.SourceTypePolicy,
				SourceID:   "store-info",
				Title:      "Store Info",
			})
		}
	}

	sections := strings.Split("\n"+text, "\n### ")
	for _, section := range sections[1:] {
		if chunk, ok := parseProductSection(section, storeURL); ok {
			chunks = append(chunks, chunk)
		}
	}

	return chunks
}

func parseProductSection(section, storeURL string) (domain.ChunkInput, bool) {
	lines := strings.Split(strings.TrimSpace(section), "\n")
	title := strings.TrimSpace(lines[0])
	if title == "" {
		return domain.ChunkInput{}, false
	}
	body := strings.Join(lines[1:], "\n")

	price := firstGroup(priceRe, body)
	wasPrice := firstGroup(wasPriceRe, body)
	handle := firstGroup(handleRe, body)
	tags := splitTags(firstGroup(tagsRe, body))

	// Description is everything that is not a metadata bullet. Price and
	// tags are folded back in so semantic search catches price queries.
	var descLines []string
	for _, line := range lines[1:] {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "- **") || strings.HasPrefix(line, "**") {
			continue
		}
		descLines = append(descLines, strings.TrimPrefix(line, "- "))
	}
	description := strings.Join(descLines, " ")

	var b strings.Builder
	b.WriteString(title)
	b.WriteString(". ")
	if price != "" {
		b.WriteString("Price: $" + price)
		if wasPrice != "" {
			b.WriteString(" (was $" + wasPrice + ")")
		}
		b.WriteString(". ")
	}
	if len(tags) > 0 {
		b.WriteString("Tags: " + strings.Join(tags, ", ") + ". ")
	}
	b.WriteString(description)

	meta := domain.Metadata{}
	if price != "" {
		meta["price"] = domain.String(price)
	}
	if wasPrice != "" {
		meta["was_price"] = domain.String(wasPrice)
	}
	if handle != "" {
		meta["handle"] = domain.String(handle)
		if storeURL != "" {
			meta["url"] = domain.String(fmt.Sprintf("%s/products/%s", strings.TrimSuffix(storeURL, "/"), handle))
		}
	}
	if len(tags) > 0 {
		meta["tags"] = domain.StringList(tags)
	}

	sourceID := handle
	if sourceID == "" {
		sourceID = slugify(title)
	}

	return domain.ChunkInput{
		Content:    strings.TrimSpace(b.String()),
		SourceType: domain.SourceTypeProduct,
		SourceID:   sourceID,
		Title:      title,
		Metadata:   meta,
	}, true
}

func firstGroup(re *regexp.Regexp, s string) string {
	if m := re.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func slugify(title string) string {
	slug := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(title), " ", "-"))
	if len(slug) > 100 {
		slug = slug[:100]
	}
	return slug
}
