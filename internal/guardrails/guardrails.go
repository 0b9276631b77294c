// Package guardrails gates the conversation with two LLM-backed predicates.
// Both fail open: a collaborator error must never block a legitimate user,
// so errors degrade to false and the message passes through.
package guardrails

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kltan/smartshopper/internal/openai"
)

const salutationPrompt = `Determine if the following message is just a salutation or casual greeting, like 'hello', 'hi', or 'good morning', with no real intent to explore broadband or mobile plans.

Only reply "yes" if the message is clearly just a standalone greeting - not if it mentions telcos, plans, or account status.

Respond with only "yes" or "no".

Message: %q`

const offTopicPrompt = `Determine if the following message is unrelated to choosing a broadband or mobile plan.

Reply with only "yes" or "no".

Message: %q`

// Classifier wraps the LLM collaborator for yes/no gating decisions.
type Classifier struct {
	llm openai.Completer
}

// New creates a guardrail classifier.
func New(llm openai.Completer) *Classifier {
	return &Classifier{llm: llm}
}

// IsSalutation reports whether the message is purely a greeting with no
// plan-related signal.
func (c *Classifier) IsSalutation(ctx context.Context, message string) bool {
	return c.ask(ctx, fmt.Sprintf(salutationPrompt, message), "salutation")
}

// IsOffTopic reports whether the message is unrelated to plan selection.
func (c *Classifier) IsOffTopic(ctx context.Context, message string) bool {
	return c.ask(ctx, fmt.Sprintf(offTopicPrompt, message), "off_topic")
}

func (c *Classifier) ask(ctx context.Context, prompt, check string) bool {
	answer, err := c.llm.Complete(ctx, []openai.Message{
		{Role: "user", Content: prompt},
	})
	if err != nil {
		slog.Warn("guardrail check failed, failing open", "check", check, "error", err)
		return false
	}
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(answer)), "yes")
}
