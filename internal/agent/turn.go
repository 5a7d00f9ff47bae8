// Package agent runs one conversation turn through a fixed four-stage state
// machine: router, retriever, responder, escalator. One agent invocation per
// inbound visitor message; no state survives the turn.
package agent

import (
	"context"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/teamauresta/agent-harbor/internal/config"
	"github.com/teamauresta/agent-harbor/internal/domain"
	"github.com/teamauresta/agent-harbor/internal/escalation"
	"github.com/teamauresta/agent-harbor/internal/telemetry"
)

// Stage is one node of the turn graph.
type Stage string

const (
	StageRouter    Stage = "router"
	StageRetriever Stage = "retriever"
	StageResponder Stage = "responder"
	StageEscalator Stage = "escalator"
	StageDone      Stage = "done"
)

// ReplyStrategy selects how the escalation handoff line is produced. Fixed
// per deployment.
type ReplyStrategy string

const (
	ReplyTemplate  ReplyStrategy = "template"
	ReplyGenerated ReplyStrategy = "generated"
)

// Generator produces a response from a system prompt and conversation history.
type Generator interface {
	Generate(ctx context.Context, systemPrompt string, history []domain.Message) (string, error)
}

// Retriever fetches assembled knowledge context for a query.
type Retriever interface {
	Retrieve(ctx context.Context, clientID, query string, maxChars int) (string, error)
}

// Config tunes turn execution.
type Config struct {
	EscalationReply   ReplyStrategy
	RetrievalTimeout  time.Duration
	GenerationTimeout time.Duration
}

// DefaultConfig returns production turn settings.
func DefaultConfig() Config {
	return Config{
		EscalationReply:   ReplyTemplate,
		RetrievalTimeout:  10 * time.Second,
		GenerationTimeout: 60 * time.Second,
	}
}

// Input is everything a turn needs: the resolved persona, the contact's
// display name, and the full conversation history oldest-first.
type Input struct {
	Persona     *config.Persona
	ContactName string
	History     []domain.Message
}

// Result is the single outbound decision of a turn. An empty Response with a
// nil error means the generator produced nothing usable; the caller must not
// send a blank message.
type Result struct {
	Response string
	Escalate bool
}

// Empty reports whether the turn produced no sendable text.
func (r Result) Empty() bool {
	return strings.TrimSpace(r.Response) == ""
}

// turn is the ephemeral per-turn state, owned by one Run invocation.
type turn struct {
	persona     *config.Persona
	contactName string
	history     []domain.Message
	escalate    bool
	context     string
	response    string
}

// Engine executes turns. Stateless between turns; safe for concurrent use.
type Engine struct {
	retriever   Retriever
	generator   Generator
	fallbackGen Generator
	cfg         Config
}

// NewEngine creates an Engine. fallbackGen may be nil; when present it serves
// pro/agency tier personas.
func NewEngine(retriever Retriever, generator Generator, fallbackGen Generator, cfg Config) *Engine {
	if cfg.RetrievalTimeout <= 0 {
		cfg.RetrievalTimeout = DefaultConfig().RetrievalTimeout
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = DefaultConfig().GenerationTimeout
	}
	if cfg.EscalationReply == "" {
		cfg.EscalationReply = ReplyTemplate
	}
	return &Engine{retriever: retriever, generator: generator, fallbackGen: fallbackGen, cfg: cfg}
}

// Run executes one turn: Router -> {Escalator | Retriever -> Responder} ->
// done. Every invocation returns exactly one result or a terminal error.
func (e *Engine) Run(ctx context.Context, in Input) (Result, error) {
	if in.Persona == nil {
		return Result{}, domain.ErrPersonaNotFound
	}

	ctx, span := telemetry.StartSpan(ctx, "agent.Run", telemetry.SpanAttributes{
		ClientID:  in.Persona.ClientID,
		Operation: "turn",
	})
	defer span.End()

	t := &turn{
		persona:     in.Persona,
		contactName: in.ContactName,
		history:     in.History,
	}

	for stage := StageRouter; stage != StageDone; {
		var err error
		switch stage {
		case StageRouter:
			e.router(t)
		case StageRetriever:
			e.retrieve(ctx, t)
		case StageResponder:
			err = e.respond(ctx, t)
		case StageEscalator:
			e.escalateTurn(ctx, t)
		}
		if err != nil {
			span.SetError(err)
			return Result{}, err
		}
		stage = next(stage, t)
	}

	return Result{Response: t.response, Escalate: t.escalate}, nil
}

// next is the pure routing decision: which stage follows the one that just
// ran, given the turn state.
func next(current Stage, t *turn) Stage {
	switch current {
	case StageRouter:
		if t.escalate {
			return StageEscalator
		}
		if t.persona.RetrievalEnabled {
			return StageRetriever
		}
		return StageResponder
	case StageRetriever:
		return StageResponder
	default:
		// responder and escalator are terminal
		return StageDone
	}
}

// router checks for escalation before any retrieval or generation call. An
// upset customer must not receive a product pitch.
func (e *Engine) router(t *turn) {
	last := domain.LastVisitorMessage(t.history)
	if last == "" {
		t.escalate = false
		return
	}

	if t.persona.HumanEscalation && escalation.ShouldEscalate(last, t.persona.EscalationTriggers) {
		log.Printf("escalation triggered client_id=%s", t.persona.ClientID)
		t.escalate = true
	}
}

// retrieve queries the knowledge base for the latest visitor message.
// Retrieval failure is never fatal to the turn: context degrades to empty.
func (e *Engine) retrieve(ctx context.Context, t *turn) {
	last := domain.LastVisitorMessage(t.history)
	if last == "" || e.retriever == nil {
		t.context = ""
		return
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.RetrievalTimeout)
	defer cancel()

	knowledgeContext, err := e.retriever.Retrieve(ctx, t.persona.KnowledgeClientID(), last, t.persona.RetrievalMaxChars)
	if err != nil {
		log.Printf("retrieval failed, continuing without context client_id=%s err=%v", t.persona.ClientID, err)
		telemetry.CaptureError(ctx, err)
		t.context = ""
		return
	}

	t.context = knowledgeContext
}

func (e *Engine) respond(ctx context.Context, t *turn) error {
	system := t.persona.SystemPrompt
	if t.context != "" {
		system += retrievalHeading + t.context
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.GenerationTimeout)
	defer cancel()

	raw, err := e.generatorFor(t.persona).Generate(ctx, system, t.history)
	if err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeGeneration, "responder failed", err)
	}

	t.response = StripReasoning(raw)
	return nil
}

// escalateTurn produces the handoff line. The generated strategy falls back
// to the deterministic template on any failure so escalation always carries
// non-empty text.
func (e *Engine) escalateTurn(ctx context.Context, t *turn) {
	template := escalation.HandoffMessage(t.persona.EscalationPrompt, t.persona.BusinessName, t.contactName)

	if e.cfg.EscalationReply != ReplyGenerated {
		t.response = template
		return
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.GenerationTimeout)
	defer cancel()

	raw, err := e.generatorFor(t.persona).Generate(ctx, t.persona.SystemPrompt+escalationHeading, t.history)
	if err != nil {
		log.Printf("escalation reply generation failed, using template client_id=%s err=%v", t.persona.ClientID, err)
		t.response = template
		return
	}

	reply := StripReasoning(raw)
	if reply == "" {
		t.response = template
		return
	}
	t.response = reply
}

func (e *Engine) generatorFor(p *config.Persona) Generator {
	if p.UsesFallbackModel() && e.fallbackGen != nil {
		return e.fallbackGen
	}
	return e.generator
}

const retrievalHeading = "\n\n## Relevant Knowledge Context\n" +
	"Use this information to answer the customer's question accurately. " +
	"Only reference products and details listed here - do not invent products, prices, or links. " +
	"Only share URLs that appear exactly after 'URL:' in the context below.\n\n"

const escalationHeading = "\n\n## ESCALATION MODE\n" +
	"The customer needs help from a human - they may be upset, have a complaint, " +
	"or need something you can't handle.\n" +
	"Respond with empathy first. Acknowledge their situation, then let them know " +
	"you're connecting them with a team member who can help. " +
	"Keep it to 1-2 sentences. Be genuine, not robotic."

var reasoningBlocks = regexp.MustCompile(`(?s)<think>.*?</think>`)

// StripReasoning removes delimited chain-of-thought blocks some models emit
// before the visible answer.
func StripReasoning(text string) string {
	return strings.TrimSpace(reasoningBlocks.ReplaceAllString(text, ""))
}
