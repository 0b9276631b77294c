package recommend

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kltan/smartshopper/internal/domain"
	"github.com/kltan/smartshopper/internal/openai"
)

const summarySystemPrompt = "You are a helpful assistant creating handover summaries for customer support."

// Summarizer produces the hand-off narrative a live agent reads when taking
// over a finished conversation.
type Summarizer struct {
	llm openai.Completer
}

// NewSummarizer creates a hand-off summarizer.
func NewSummarizer(llm openai.Completer) *Summarizer {
	return &Summarizer{llm: llm}
}

// Summarize asks the LLM for a take-over narrative from the profile, the
// user's answers, and the final recommendation.
func (s *Summarizer) Summarize(ctx context.Context, p domain.Profile, answers []string, finalReply string) (string, error) {
	profileJSON, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshaling profile: %w", err)
	}

	var qna strings.Builder
	for i, a := range answers {
		fmt.Fprintf(&qna, "%d. %s\n", i+1, a)
	}

	prompt := fmt.Sprintf(
		"Summarize this customer conversation in a way that a live sales agent can take over smoothly.\n\n"+
			"User Profile: %s\n\nQ&A:\n%s\nFinal Recommendation: %s",
		profileJSON, qna.String(), finalReply)

	summary, err := s.llm.Complete(ctx, []openai.Message{
		{Role: "system", Content: summarySystemPrompt},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return "", fmt.Errorf("generating handoff summary: %w", err)
	}
	return strings.TrimSpace(summary), nil
}
