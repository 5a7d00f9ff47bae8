//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teamauresta/agent-harbor/internal/agent"
	"github.com/teamauresta/agent-harbor/internal/api/handlers"
	"github.com/teamauresta/agent-harbor/internal/chatwoot"
	"github.com/teamauresta/agent-harbor/internal/config"
	"github.com/teamauresta/agent-harbor/internal/jobs"
	"github.com/teamauresta/agent-harbor/internal/openai"
	"github.com/teamauresta/agent-harbor/internal/repository"
	"github.com/teamauresta/agent-harbor/internal/server"
	"github.com/teamauresta/agent-harbor/internal/service"
	"github.com/teamauresta/agent-harbor/internal/testutil"
)

const adminToken = "e2e-admin-token"

// TestEnv holds everything one end-to-end test needs: a pgvector database,
// fake Chatwoot and OpenAI-compatible endpoints, and the full server wired
// the same way serve does it.
type TestEnv struct {
	T          *testing.T
	Ctx        context.Context
	Pool       *pgxpool.Pool
	Chatwoot   *FakeChatwoot
	ServerURL  string
	HTTPClient *http.Client

	pg         *testutil.PostgresContainer
	srv        *httptest.Server
	llmSrv     *httptest.Server
	embedSrv   *httptest.Server
	dispatcher *jobs.Dispatcher
	cancel     context.CancelFunc
}

// FakeChatwoot records every API call the agent makes and serves seeded
// conversation history.
type FakeChatwoot struct {
	mu          sync.Mutex
	history     []map[string]any
	contactName string
	sent        []SentMessage
	assignments []int
	statuses    []string
}

type SentMessage struct {
	Content     string
	MessageType string
	Private     bool
}

func (f *FakeChatwoot) SeedVisitorMessage(content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = append(f.history, map[string]any{
		"id":           len(f.history) + 1,
		"content":      content,
		"message_type": 0,
		"private":      false,
		"created_at":   1700000000 + len(f.history),
	})
}

func (f *FakeChatwoot) Sent() []SentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]SentMessage, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *FakeChatwoot) Assignments() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, len(f.assignments))
	copy(out, f.assignments)
	return out
}

func (f *FakeChatwoot) Statuses() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.statuses))
	copy(out, f.statuses)
	return out
}

// WaitForSent polls until at least n public outgoing messages arrived.
func (f *FakeChatwoot) WaitForSent(t *testing.T, n int, timeout time.Duration) []SentMessage {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		sent := f.Sent()
		public := 0
		for _, m := range sent {
			if !m.Private {
				public++
			}
		}
		if public >= n {
			return sent
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d outgoing messages, got %v", n, f.Sent())
	return nil
}

func (f *FakeChatwoot) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/accounts/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		switch {
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/messages"):
			json.NewEncoder(w).Encode(map[string]any{"payload": f.history})
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/messages"):
			var body struct {
				Content     string `json:"content"`
				MessageType string `json:"message_type"`
				Private     bool   `json:"private"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			f.sent = append(f.sent, SentMessage{Content: body.Content, MessageType: body.MessageType, Private: body.Private})
			json.NewEncoder(w).Encode(map[string]any{"id": 100 + len(f.sent)})
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/assignments"):
			var body struct {
				AssigneeID int `json:"assignee_id"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			f.assignments = append(f.assignments, body.AssigneeID)
			json.NewEncoder(w).Encode(map[string]any{})
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/toggle_status"):
			var body struct {
				Status string `json:"status"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			f.statuses = append(f.statuses, body.Status)
			json.NewEncoder(w).Encode(map[string]any{})
		case r.Method == http.MethodGet:
			json.NewEncoder(w).Encode(map[string]any{
				"meta": map[string]any{"sender": map[string]any{"name": f.contactName}},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	return mux
}

// wordVec embeds text as overlapping word buckets so that texts sharing
// vocabulary get high cosine similarity. Deterministic, provider-free.
func wordVec(text string) []float32 {
	v := make([]float32, 1536)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?:;\"'")
		if word == "" {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(word))
		v[h.Sum32()%1536] += 1
	}
	return v
}

func newEmbedServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		json.NewDecoder(r.Body).Decode(&req)

		data := make([]map[string]any, len(req.Input))
		for i, text := range req.Input {
			data[i] = map[string]any{"index": i, "embedding": wordVec(text), "object": "embedding"}
		}
		json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data})
	}))
}

func newLLMServer(reply string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": reply}},
			},
		})
	}))
}

func writePersona(t *testing.T, dir string) {
	persona := `client_id: acme
name: Harbor
business_name: Acme Soap Co
system_prompt: You are the support agent for Acme Soap Co. Answer from the provided context.
greeting: Hi! How can I help you today?
chatwoot_account_id: 1
chatwoot_inbox_id: 7
human_escalation: true
chatwoot_escalation_agent_id: 12
retrieval_enabled: true
`
	if err := os.WriteFile(filepath.Join(dir, "acme.yaml"), []byte(persona), 0o644); err != nil {
		t.Fatalf("failed to write persona: %v", err)
	}
}

// SetupTestEnv boots the whole stack against test containers and fakes.
func SetupTestEnv(t *testing.T, llmReply string) *TestEnv {
	ctx, cancel := context.WithCancel(context.Background())

	pg := testutil.NewPostgresContainer(ctx, t)
	pool := testutil.NewTestPool(ctx, t, pg, "../../migrations")

	fakeChatwoot := &FakeChatwoot{contactName: "Dana"}
	chatwootSrv := httptest.NewServer(fakeChatwoot.handler())

	embedSrv := newEmbedServer()
	llmSrv := newLLMServer(llmReply)

	personasDir := t.TempDir()
	writePersona(t, personasDir)
	personas, err := config.LoadPersonas(personasDir)
	if err != nil {
		t.Fatalf("failed to load personas: %v", err)
	}

	embedder := openai.NewEmbeddingClientWithConfig(openai.EmbeddingConfig{
		APIKey:  "test",
		BaseURL: embedSrv.URL,
	})
	knowledgeSvc := service.NewKnowledgeService(
		repository.NewChunkRepository(pool),
		repository.NewTxRunner(pool),
		embedder,
	)
	knowledgeSvc.SetRetrievalLog(repository.NewRetrievalLogRepository(pool))

	contextSvc := service.NewContextService(knowledgeSvc)
	generator := openai.NewChatClient(openai.ChatConfig{APIKey: "test", BaseURL: llmSrv.URL, Model: "test-model"})
	engine := agent.NewEngine(contextSvc, generator, nil, agent.Config{})

	messenger := chatwoot.NewClient(chatwootSrv.URL, "test-token")
	conversationSvc := service.NewConversationService(personas, messenger, engine)
	dispatcher := jobs.NewDispatcher(conversationSvc, 4)

	router := server.NewRouter(server.RouterConfig{
		AdminToken:       adminToken,
		WebhookHandler:   handlers.NewWebhookHandler(ctx, personas, dispatcher, conversationSvc),
		KnowledgeHandler: handlers.NewKnowledgeHandler(knowledgeSvc),
	})
	srv := httptest.NewServer(router)

	env := &TestEnv{
		T:          t,
		Ctx:        ctx,
		Pool:       pool,
		Chatwoot:   fakeChatwoot,
		ServerURL:  srv.URL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		pg:         pg,
		srv:        srv,
		llmSrv:     llmSrv,
		embedSrv:   embedSrv,
		dispatcher: dispatcher,
		cancel:     cancel,
	}
	t.Cleanup(env.Teardown)
	return env
}

func (env *TestEnv) Teardown() {
	env.dispatcher.Stop()
	env.srv.Close()
	env.llmSrv.Close()
	env.embedSrv.Close()
	env.cancel()
	env.Pool.Close()
	env.pg.Terminate(context.Background())
}

// AdminRequest performs an authenticated admin API call and decodes the
// response body into out when non-nil.
func (env *TestEnv) AdminRequest(method, path string, body any, out any) *http.Response {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			env.T.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, env.ServerURL+path, reader)
	if err != nil {
		env.T.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+adminToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := env.HTTPClient.Do(req)
	if err != nil {
		env.T.Fatalf("request %s %s failed: %v", method, path, err)
	}
	if out != nil {
		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			env.T.Fatalf("failed to decode response: %v", err)
		}
	}
	return resp
}

// PostWebhook delivers a Chatwoot webhook event to the server.
func (env *TestEnv) PostWebhook(clientID string, payload map[string]any) *http.Response {
	data, err := json.Marshal(payload)
	if err != nil {
		env.T.Fatalf("failed to marshal webhook payload: %v", err)
	}

	resp, err := env.HTTPClient.Post(
		fmt.Sprintf("%s/webhook/%s", env.ServerURL, clientID),
		"application/json",
		bytes.NewReader(data),
	)
	if err != nil {
		env.T.Fatalf("webhook post failed: %v", err)
	}
	return resp
}
