// Package escalation decides when a conversation should hand off to a human.
package escalation

import (
	"fmt"
	"regexp"
	"strings"
)

// defaultTriggers apply to all personas unless extended by custom triggers.
var defaultTriggers = []string{
	"speak to a human",
	"speak to someone",
	"talk to a person",
	"real person",
	"human agent",
	"talk to agent",
	"manager",
	"supervisor",
	"complaint",
	"legal",
	"lawyer",
	"this is urgent",
	"emergency",
}

// defaultPatterns are compiled once; custom triggers vary per persona and are
// compiled per call.
var defaultPatterns = func() []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, len(defaultTriggers))
	for i, t := range defaultTriggers {
		patterns[i] = regexp.MustCompile(`\b` + regexp.QuoteMeta(t) + `\b`)
	}
	return patterns
}()

// ShouldEscalate reports whether the message contains any escalation trigger.
// Matching is case-insensitive on whole-word boundaries: "manager" matches,
// "mandate" does not match "man". Pure function, no state.
func ShouldEscalate(message string, customTriggers []string) bool {
	if strings.TrimSpace(message) == "" {
		return false
	}

	lower := strings.ToLower(message)
	for _, re := range defaultPatterns {
		if re.MatchString(lower) {
			return true
		}
	}
	for _, t := range customTriggers {
		if matchesTrigger(lower, t) {
			return true
		}
	}
	return false
}

func matchesTrigger(lowerMessage, trigger string) bool {
	trigger = strings.ToLower(strings.TrimSpace(trigger))
	if trigger == "" {
		return false
	}
	re, err := regexp.Compile(`\b` + regexp.QuoteMeta(trigger) + `\b`)
	if err != nil {
		return false
	}
	return re.MatchString(lowerMessage)
}

// HandoffMessage builds the handoff line shown to the visitor before a human
// takes over: the persona's configured text when present, else a deterministic
// template with the contact's name.
func HandoffMessage(configured, businessName, contactName string) string {
	if configured != "" {
		return configured
	}

	name := ""
	if contactName != "" {
		name = ", " + contactName
	}
	team := "our"
	if businessName != "" {
		team = "the " + businessName
	}
	return fmt.Sprintf(
		"Of course%s! Let me connect you with a member of %s team right now. They'll be with you shortly. Please hold on!",
		name, team,
	)
}
