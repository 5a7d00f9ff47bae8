package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/teamauresta/agent-harbor/internal/api"
	"github.com/teamauresta/agent-harbor/internal/api/handlers"
	"github.com/teamauresta/agent-harbor/internal/api/middleware"
)

type RouterConfig struct {
	AdminToken       string
	WebhookHandler   *handlers.WebhookHandler
	KnowledgeHandler *handlers.KnowledgeHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 5 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/webhook/{client_id}", cfg.WebhookHandler.Receive)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AdminAuth(cfg.AdminToken))

		r.Route("/admin/knowledge/{client_id}", func(r chi.Router) {
			r.Get("/chunks", cfg.KnowledgeHandler.List)
			r.Post("/chunks", cfg.KnowledgeHandler.Upsert)
			r.Post("/chunks/batch", cfg.KnowledgeHandler.UpsertBatch)
			r.Post("/search", cfg.KnowledgeHandler.Search)
			r.Get("/stats", cfg.KnowledgeHandler.Stats)
			r.Delete("/", cfg.KnowledgeHandler.Delete)
		})
	})

	return r
}
