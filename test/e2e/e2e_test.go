//go:build e2e

package e2e

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestE2E_KnowledgeLifecycle(t *testing.T) {
	env := SetupTestEnv(t, "unused")

	// Admin API refuses unauthenticated calls.
	resp, err := env.HTTPClient.Get(env.ServerURL + "/admin/knowledge/acme/stats")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	batch := map[string]any{
		"chunks": []map[string]any{
			{"content": "Lavender Soap. Price: $12.50. Hand made with organic lavender oil.", "source_type": "product", "source_id": "sku-1", "title": "Lavender Soap"},
			{"content": "Beard Oil. Price: $18.00. Cedarwood scent.", "source_type": "product", "source_id": "sku-2", "title": "Beard Oil"},
			{"content": "We ship worldwide. Orders arrive within 5 business days.", "source_type": "policy", "source_id": "shipping", "title": "Shipping"},
		},
	}
	var batchResp struct {
		Data struct {
			Count int `json:"count"`
		} `json:"data"`
	}
	resp = env.AdminRequest(http.MethodPost, "/admin/knowledge/acme/chunks/batch", batch, &batchResp)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3, batchResp.Data.Count)

	var statsResp struct {
		Data struct {
			Total    int64            `json:"total"`
			BySource map[string]int64 `json:"by_source"`
		} `json:"data"`
	}
	resp = env.AdminRequest(http.MethodGet, "/admin/knowledge/acme/stats", nil, &statsResp)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(3), statsResp.Data.Total)
	assert.Equal(t, int64(2), statsResp.Data.BySource["product"])

	var searchResp struct {
		Data []struct {
			SourceID string  `json:"source_id"`
			Score    float32 `json:"score"`
		} `json:"data"`
	}
	minScore := float32(0.01)
	resp = env.AdminRequest(http.MethodPost, "/admin/knowledge/acme/search", map[string]any{
		"query":     "lavender soap price",
		"min_score": minScore,
	}, &searchResp)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, searchResp.Data)
	assert.Equal(t, "sku-1", searchResp.Data[0].SourceID)

	var listResp struct {
		Data struct {
			Items   []map[string]any `json:"items"`
			HasMore bool             `json:"has_more"`
			Cursor  string           `json:"cursor"`
		} `json:"data"`
	}
	resp = env.AdminRequest(http.MethodGet, "/admin/knowledge/acme/chunks?limit=2", nil, &listResp)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, listResp.Data.Items, 2)
	assert.True(t, listResp.Data.HasMore)
	assert.NotEmpty(t, listResp.Data.Cursor)

	var deleteResp struct {
		Data struct {
			Deleted int64 `json:"deleted"`
		} `json:"data"`
	}
	resp = env.AdminRequest(http.MethodDelete, "/admin/knowledge/acme/", nil, &deleteResp)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(3), deleteResp.Data.Deleted)
}

func TestE2E_WebhookTurnSendsReply(t *testing.T) {
	const reply = "Yes! Our Lavender Soap is $12.50 and hand made."
	env := SetupTestEnv(t, reply)

	env.AdminRequest(http.MethodPost, "/admin/knowledge/acme/chunks", map[string]any{
		"content":     "Lavender Soap. Price: $12.50. Hand made with organic lavender oil.",
		"source_type": "product",
		"source_id":   "sku-1",
		"title":       "Lavender Soap",
	}, nil)

	env.Chatwoot.SeedVisitorMessage("do you have lavender soap?")

	resp := env.PostWebhook("acme", map[string]any{
		"event":        "message_created",
		"message_type": "incoming",
		"content":      "do you have lavender soap?",
		"private":      false,
		"conversation": map[string]any{"id": 42},
		"account":      map[string]any{"id": 1},
		"inbox":        map[string]any{"id": 7},
	})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	sent := env.Chatwoot.WaitForSent(t, 1, 10*time.Second)
	require.NotEmpty(t, sent)
	assert.Equal(t, reply, sent[0].Content)
	assert.False(t, sent[0].Private)

	// Every retrieval-backed turn leaves a log row.
	var logged int
	require.NoError(t, env.Pool.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM retrieval_logs WHERE client_id = 'acme'`).Scan(&logged))
	assert.GreaterOrEqual(t, logged, 1)
}

func TestE2E_EscalationHandoff(t *testing.T) {
	env := SetupTestEnv(t, "should not be used")

	env.Chatwoot.SeedVisitorMessage("I want to speak to a human right now")

	resp := env.PostWebhook("acme", map[string]any{
		"event":        "message_created",
		"message_type": "incoming",
		"content":      "I want to speak to a human right now",
		"private":      false,
		"conversation": map[string]any{"id": 7},
		"account":      map[string]any{"id": 1},
		"inbox":        map[string]any{"id": 7},
	})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	sent := env.Chatwoot.WaitForSent(t, 1, 10*time.Second)

	var public, private []SentMessage
	for _, m := range sent {
		if m.Private {
			private = append(private, m)
		} else {
			public = append(public, m)
		}
	}

	require.NotEmpty(t, public)
	assert.Contains(t, public[0].Content, "Dana")
	assert.Contains(t, public[0].Content, "Acme Soap Co")

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && (len(env.Chatwoot.Assignments()) == 0 || len(env.Chatwoot.Statuses()) == 0) {
		time.Sleep(25 * time.Millisecond)
	}
	assert.Equal(t, []int{12}, env.Chatwoot.Assignments())
	assert.Equal(t, []string{"open"}, env.Chatwoot.Statuses())

	for _, m := range private {
		assert.True(t, strings.Contains(m.Content, "speak to a human"))
	}
}

func TestE2E_GreetingOnNewConversation(t *testing.T) {
	env := SetupTestEnv(t, "unused")

	resp := env.PostWebhook("acme", map[string]any{
		"event":        "conversation_created",
		"conversation": map[string]any{"id": 9},
		"account":      map[string]any{"id": 1},
		"inbox":        map[string]any{"id": 7},
	})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	sent := env.Chatwoot.WaitForSent(t, 1, 10*time.Second)
	assert.Equal(t, "Hi! How can I help you today?", sent[0].Content)
}

func TestE2E_UnknownClientRejected(t *testing.T) {
	env := SetupTestEnv(t, "unused")

	resp := env.PostWebhook("nobody", map[string]any{
		"event":        "message_created",
		"message_type": "incoming",
		"content":      "hello",
		"conversation": map[string]any{"id": 1},
		"account":      map[string]any{"id": 1},
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Empty(t, env.Chatwoot.Sent())
}
