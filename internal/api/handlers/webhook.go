package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/teamauresta/agent-harbor/internal/api"
	"github.com/teamauresta/agent-harbor/internal/config"
	"github.com/teamauresta/agent-harbor/internal/jobs"
)

// Chatwoot webhook event names handled here. Everything else is acknowledged
// and ignored.
const (
	eventMessageCreated      = "message_created"
	eventConversationCreated = "conversation_created"
)

// TurnDispatcher enqueues background turns.
type TurnDispatcher interface {
	Dispatch(ctx context.Context, job jobs.TurnJob)
}

// Greeter sends the persona greeting on a new conversation.
type Greeter interface {
	Greet(ctx context.Context, clientID string, accountID, conversationID int)
}

// WebhookHandler receives Chatwoot webhook deliveries. It validates and
// acknowledges fast; all model work happens in the dispatcher.
type WebhookHandler struct {
	personas   *config.PersonaRegistry
	dispatcher TurnDispatcher
	greeter    Greeter

	// baseCtx outlives the request so queued work survives the webhook
	// connection closing.
	baseCtx context.Context
}

func NewWebhookHandler(baseCtx context.Context, personas *config.PersonaRegistry, dispatcher TurnDispatcher, greeter Greeter) *WebhookHandler {
	return &WebhookHandler{
		personas:   personas,
		dispatcher: dispatcher,
		greeter:    greeter,
		baseCtx:    baseCtx,
	}
}

// WebhookPayload is the subset of Chatwoot's webhook body the handler reads.
// Message fields sit at the payload root; webhook deliveries use string
// message types, unlike the API which uses ints.
type WebhookPayload struct {
	Event       string `json:"event"`
	MessageType string `json:"message_type"`
	Content     string `json:"content"`
	Private     bool   `json:"private"`

	Conversation struct {
		ID int `json:"id"`
	} `json:"conversation"`
	Account struct {
		ID int `json:"id"`
	} `json:"account"`
	Inbox struct {
		ID int `json:"id"`
	} `json:"inbox"`
}

// Receive handles POST /webhook/{client_id}.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	urlClientID := chi.URLParam(r, "client_id")
	if urlClientID == "" {
		api.Error(w, http.StatusBadRequest, "client_id is required")
		return
	}

	var payload WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	clientID := h.personas.ResolveInbox(payload.Inbox.ID, urlClientID)
	if _, err := h.personas.Resolve(clientID); err != nil {
		api.Error(w, http.StatusNotFound, "unknown client")
		return
	}

	switch payload.Event {
	case eventConversationCreated:
		h.greet(clientID, payload)
		api.Success(w, http.StatusOK, map[string]string{"status": "greeted"})

	case eventMessageCreated:
		if !isVisitorMessage(payload) {
			api.Success(w, http.StatusOK, map[string]string{"status": "ignored"})
			return
		}
		if payload.Conversation.ID == 0 {
			api.Error(w, http.StatusBadRequest, "conversation id is required")
			return
		}
		h.dispatcher.Dispatch(h.baseCtx, jobs.TurnJob{
			ClientID:       clientID,
			AccountID:      payload.Account.ID,
			ConversationID: payload.Conversation.ID,
		})
		api.Success(w, http.StatusOK, map[string]string{"status": "queued"})

	default:
		api.Success(w, http.StatusOK, map[string]string{"status": "ignored"})
	}
}

// isVisitorMessage filters to the messages a turn should answer: visitor
// text, not agent echoes, private notes, or blanks.
func isVisitorMessage(p WebhookPayload) bool {
	return p.MessageType == "incoming" && !p.Private && strings.TrimSpace(p.Content) != ""
}

func (h *WebhookHandler) greet(clientID string, payload WebhookPayload) {
	if h.greeter == nil || payload.Conversation.ID == 0 {
		return
	}
	accountID := payload.Account.ID
	conversationID := payload.Conversation.ID
	go func() {
		ctx, cancel := context.WithTimeout(h.baseCtx, 30*time.Second)
		defer cancel()
		h.greeter.Greet(ctx, clientID, accountID, conversationID)
	}()
}
