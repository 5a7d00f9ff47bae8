package chatwoot

import (
	"context"
	"sort"
	"strings"

	"github.com/teamauresta/agent-harbor/internal/domain"
)

// Chatwoot message_type values in API responses.
const (
	messageTypeIncoming = 0
	messageTypeOutgoing = 1
)

// APIMessage is a message as the Chatwoot API returns it. Webhook payloads
// use string message types instead; those are handled at the API layer.
type APIMessage struct {
	ID          int    `json:"id"`
	Content     string `json:"content"`
	MessageType int    `json:"message_type"`
	Private     bool   `json:"private"`
	CreatedAt   int64  `json:"created_at"`
}

// History fetches a conversation's messages and normalizes them into the
// two-role transcript the agent consumes.
func (c *Client) History(ctx context.Context, accountID, conversationID int) ([]domain.Message, error) {
	msgs, err := c.GetMessages(ctx, accountID, conversationID)
	if err != nil {
		return nil, err
	}
	return NormalizeHistory(msgs), nil
}

// NormalizeHistory converts raw Chatwoot messages into the two-role
// transcript the agent consumes. Private notes, activity entries and empty
// messages are dropped; the rest are ordered oldest first.
func NormalizeHistory(msgs []APIMessage) []domain.Message {
	sorted := make([]APIMessage, len(msgs))
	copy(sorted, msgs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].CreatedAt != sorted[j].CreatedAt {
			return sorted[i].CreatedAt < sorted[j].CreatedAt
		}
		return sorted[i].ID < sorted[j].ID
	})

	out := make([]domain.Message, 0, len(sorted))
	for _, m := range sorted {
		if m.Private || strings.TrimSpace(m.Content) == "" {
			continue
		}
		switch m.MessageType {
		case messageTypeIncoming:
			out = append(out, domain.Message{Role: domain.RoleVisitor, Content: m.Content})
		case messageTypeOutgoing:
			out = append(out, domain.Message{Role: domain.RoleAgent, Content: m.Content})
		}
	}
	return out
}
