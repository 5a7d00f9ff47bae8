package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/teamauresta/agent-harbor/internal/domain"
	"gopkg.in/yaml.v3"
)

// Persona is one tenant's agent configuration, loaded from a YAML file named
// <client_id>.yaml in the personas directory.
type Persona struct {
	ClientID     string `yaml:"client_id"`
	Name         string `yaml:"name"`
	BusinessName string `yaml:"business_name"`
	BusinessType string `yaml:"business_type"`
	SystemPrompt string `yaml:"system_prompt"`
	Greeting     string `yaml:"greeting"`
	Tier         string `yaml:"tier"`
	Language     string `yaml:"language"`

	AccountID int `yaml:"chatwoot_account_id"`
	InboxID   int `yaml:"chatwoot_inbox_id"`

	// Human escalation (growth tier and up)
	HumanEscalation    bool     `yaml:"human_escalation"`
	EscalationAgentID  int      `yaml:"chatwoot_escalation_agent_id"`
	EscalationPrompt   string   `yaml:"escalation_prompt"`
	EscalationTriggers []string `yaml:"escalation_triggers"`

	// Retrieval
	RetrievalEnabled  bool   `yaml:"retrieval_enabled"`
	RetrievalClientID string `yaml:"retrieval_client_id"` // override, empty = ClientID
	RetrievalMaxChars int    `yaml:"retrieval_max_chars"`
}

// KnowledgeClientID returns the tenant whose knowledge base this persona
// queries. An explicit override lets personas share one knowledge base.
func (p *Persona) KnowledgeClientID() string {
	if p.RetrievalClientID != "" {
		return p.RetrievalClientID
	}
	return p.ClientID
}

// UsesFallbackModel reports whether this persona's tier routes to the hosted
// fallback model.
func (p *Persona) UsesFallbackModel() bool {
	return p.Tier == "pro" || p.Tier == "agency"
}

const defaultRetrievalMaxChars = 3000

// PersonaRegistry resolves personas by client id and by Chatwoot inbox id.
// Loaded once at startup; safe for concurrent reads.
type PersonaRegistry struct {
	mu       sync.RWMutex
	byClient map[string]*Persona
	byInbox  map[int]string
}

// LoadPersonas reads every *.yaml file in dir into a registry.
func LoadPersonas(dir string) (*PersonaRegistry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read personas dir: %w", err)
	}

	reg := &PersonaRegistry{
		byClient: make(map[string]*Persona),
		byInbox:  make(map[int]string),
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		p, err := loadPersonaFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("persona %s: %w", entry.Name(), err)
		}
		reg.byClient[p.ClientID] = p
		if p.InboxID != 0 {
			reg.byInbox[p.InboxID] = p.ClientID
		}
	}

	return reg, nil
}

func loadPersonaFile(path string) (*Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	p := Persona{
		Tier:              "starter",
		Language:          "en",
		AccountID:         1,
		InboxID:           1,
		RetrievalMaxChars: defaultRetrievalMaxChars,
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}

	if p.ClientID == "" {
		return nil, fmt.Errorf("client_id is required")
	}
	if p.SystemPrompt == "" {
		return nil, fmt.Errorf("system_prompt is required")
	}
	if p.RetrievalMaxChars <= 0 {
		p.RetrievalMaxChars = defaultRetrievalMaxChars
	}

	return &p, nil
}

// Resolve returns the persona for a client id.
func (r *PersonaRegistry) Resolve(clientID string) (*Persona, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byClient[clientID]
	if !ok {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeNotFound,
			fmt.Sprintf("persona %q", clientID), domain.ErrPersonaNotFound)
	}
	return p, nil
}

// ResolveInbox maps a Chatwoot inbox id to a client id, falling back to the
// URL-supplied client id when no inbox mapping exists.
func (r *PersonaRegistry) ResolveInbox(inboxID int, fallbackClientID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if clientID, ok := r.byInbox[inboxID]; ok {
		return clientID
	}
	return fallbackClientID
}

// All returns every loaded persona.
func (r *PersonaRegistry) All() []*Persona {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Persona, 0, len(r.byClient))
	for _, p := range r.byClient {
		out = append(out, p)
	}
	return out
}
