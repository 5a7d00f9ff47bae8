package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/teamauresta/agent-harbor/internal/agent"
	"github.com/teamauresta/agent-harbor/internal/config"
	"github.com/teamauresta/agent-harbor/internal/domain"
	"github.com/teamauresta/agent-harbor/internal/jobs"
	"github.com/teamauresta/agent-harbor/internal/telemetry"
)

// Messenger is the Chatwoot surface the conversation service needs.
type Messenger interface {
	SendMessage(ctx context.Context, accountID, conversationID int, content string) error
	SendPrivateNote(ctx context.Context, accountID, conversationID int, content string) error
	AssignAgent(ctx context.Context, accountID, conversationID, agentID int) error
	SetStatus(ctx context.Context, accountID, conversationID int, status string) error
	History(ctx context.Context, accountID, conversationID int) ([]domain.Message, error)
	GetContactName(ctx context.Context, accountID, conversationID int) (string, error)
}

// TurnEngine executes one agent turn.
type TurnEngine interface {
	Run(ctx context.Context, in agent.Input) (agent.Result, error)
}

// ConversationService drives a full turn for an inbound message: fetch
// history, run the agent, deliver the outcome back to Chatwoot. It is the
// dispatcher's TurnRunner.
type ConversationService struct {
	personas  *config.PersonaRegistry
	messenger Messenger
	engine    TurnEngine
}

func NewConversationService(personas *config.PersonaRegistry, messenger Messenger, engine TurnEngine) *ConversationService {
	return &ConversationService{
		personas:  personas,
		messenger: messenger,
		engine:    engine,
	}
}

// RunTurn processes one queued turn. All failures are terminal for the turn
// only; they are logged and captured, never propagated to the dispatcher.
func (s *ConversationService) RunTurn(ctx context.Context, job jobs.TurnJob) {
	ctx, span := telemetry.StartSpan(ctx, "conversation.RunTurn", telemetry.SpanAttributes{
		ClientID:       job.ClientID,
		ConversationID: fmt.Sprintf("%d/%d", job.AccountID, job.ConversationID),
		Operation:      "turn",
	})
	defer span.End()

	persona, err := s.personas.Resolve(job.ClientID)
	if err != nil {
		log.Printf("turn aborted, unknown persona client_id=%s", job.ClientID)
		span.SetError(err)
		return
	}

	history, err := s.messenger.History(ctx, job.AccountID, job.ConversationID)
	if err != nil {
		log.Printf("turn aborted, history fetch failed client_id=%s conversation=%d err=%v",
			job.ClientID, job.ConversationID, err)
		span.SetError(err)
		return
	}

	contactName, err := s.messenger.GetContactName(ctx, job.AccountID, job.ConversationID)
	if err != nil {
		contactName = ""
	}

	result, err := s.engine.Run(ctx, agent.Input{
		Persona:     persona,
		ContactName: contactName,
		History:     history,
	})
	if err != nil {
		log.Printf("turn failed client_id=%s conversation=%d err=%v", job.ClientID, job.ConversationID, err)
		span.SetError(err)
		return
	}

	if result.Empty() {
		log.Printf("turn produced empty response, nothing sent client_id=%s conversation=%d",
			job.ClientID, job.ConversationID)
		return
	}

	if err := s.messenger.SendMessage(ctx, job.AccountID, job.ConversationID, result.Response); err != nil {
		log.Printf("reply delivery failed client_id=%s conversation=%d err=%v",
			job.ClientID, job.ConversationID, err)
		span.SetError(err)
		return
	}

	if result.Escalate {
		s.handoff(ctx, persona, job, history)
	}
}

// handoff flags the conversation for a human after the escalation reply has
// gone out. Each step is best effort.
func (s *ConversationService) handoff(ctx context.Context, persona *config.Persona, job jobs.TurnJob, history []domain.Message) {
	note := escalationNote(domain.LastVisitorMessage(history))
	if err := s.messenger.SendPrivateNote(ctx, job.AccountID, job.ConversationID, note); err != nil {
		log.Printf("escalation note failed client_id=%s conversation=%d err=%v",
			job.ClientID, job.ConversationID, err)
	}

	if persona.EscalationAgentID != 0 {
		if err := s.messenger.AssignAgent(ctx, job.AccountID, job.ConversationID, persona.EscalationAgentID); err != nil {
			log.Printf("escalation assignment failed client_id=%s conversation=%d err=%v",
				job.ClientID, job.ConversationID, err)
		}
	}

	if err := s.messenger.SetStatus(ctx, job.AccountID, job.ConversationID, "open"); err != nil {
		log.Printf("escalation status change failed client_id=%s conversation=%d err=%v",
			job.ClientID, job.ConversationID, err)
	}
}

// Greet sends the persona's configured greeting on a new conversation. A
// persona without a greeting stays silent.
func (s *ConversationService) Greet(ctx context.Context, clientID string, accountID, conversationID int) {
	persona, err := s.personas.Resolve(clientID)
	if err != nil || persona.Greeting == "" {
		return
	}
	if err := s.messenger.SendMessage(ctx, accountID, conversationID, persona.Greeting); err != nil {
		log.Printf("greeting delivery failed client_id=%s conversation=%d err=%v",
			clientID, conversationID, err)
	}
}

func escalationNote(lastMessage string) string {
	var b strings.Builder
	b.WriteString("Escalation triggered. A customer asked for human help.")
	if lastMessage != "" {
		b.WriteString("\n\nLast message:\n> ")
		b.WriteString(lastMessage)
	}
	return b.String()
}
