// Package intent resolves the user's primary product interest in two stages:
// a KNN lookup against intent exemplars proposes a candidate, and the LLM
// confirms or overrides it with a closed three-way vocabulary.
package intent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kltan/smartshopper/internal/domain"
	"github.com/kltan/smartshopper/internal/openai"
	"github.com/kltan/smartshopper/internal/search"
)

const confirmSystemPrompt = "Only respond with: fibre, mobile, or unknown."

const confirmPrompt = `You are an AI assistant helping customers choose between mobile and fibre plans.

The user said: %q
The system thinks the intent might be %q.

Please confirm which type of plan the user is referring to based on their input. If it is unclear, respond with "unknown".
Respond with only one word: "fibre", "mobile", or "unknown".`

const emotionSystemPrompt = "Classify the user's emotional tone as one of: neutral, frustration, or positive. " +
	"Treat complaints about price, speed, or dissatisfaction as frustration."

// Resolver combines vector search and LLM confirmation.
type Resolver struct {
	llm      openai.Completer
	embedder openai.Embedder
	searcher search.IntentSearcher

	// threshold is the minimum KNN score for a stage-one candidate.
	threshold float64
}

// NewResolver creates an intent resolver.
func NewResolver(llm openai.Completer, embedder openai.Embedder, searcher search.IntentSearcher, threshold float64) *Resolver {
	return &Resolver{
		llm:       llm,
		embedder:  embedder,
		searcher:  searcher,
		threshold: threshold,
	}
}

// Resolve classifies the message as fibre, mobile, or unknown. Stage one is
// score-gated vector search; stage two is LLM confirmation, whose answer is
// authoritative. Every failure degrades toward unknown rather than erroring.
func (r *Resolver) Resolve(ctx context.Context, message string) domain.Intent {
	candidate := r.vectorCandidate(ctx, message)
	return r.confirm(ctx, message, candidate)
}

func (r *Resolver) vectorCandidate(ctx context.Context, message string) domain.Intent {
	vector, err := r.embedder.Embed(ctx, message)
	if err != nil {
		slog.Warn("intent embedding failed", "error", err)
		return domain.IntentUnknown
	}

	hit, err := r.searcher.NearestIntent(ctx, vector)
	if err != nil {
		slog.Warn("intent vector search failed", "error", err)
		return domain.IntentUnknown
	}

	slog.Debug("intent vector match", "text", hit.Text, "score", hit.Score)
	if hit.Score < r.threshold {
		return domain.IntentUnknown
	}
	return hit.Intent
}

func (r *Resolver) confirm(ctx context.Context, message string, candidate domain.Intent) domain.Intent {
	answer, err := r.llm.Complete(ctx, []openai.Message{
		{Role: "system", Content: confirmSystemPrompt},
		{Role: "user", Content: fmt.Sprintf(confirmPrompt, message, string(candidate))},
	})
	if err != nil {
		slog.Warn("intent confirmation failed", "error", err)
		return domain.IntentUnknown
	}
	return domain.ParseIntent(strings.ToLower(strings.TrimSpace(answer)))
}

// DetectEmotion classifies the message's tone. Failures and out-of-vocabulary
// answers normalize to neutral.
func (r *Resolver) DetectEmotion(ctx context.Context, message string) domain.Emotion {
	answer, err := r.llm.Complete(ctx, []openai.Message{
		{Role: "system", Content: emotionSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("What is the emotional tone of: %q?", message)},
	})
	if err != nil {
		slog.Warn("emotion detection failed", "error", err)
		return domain.EmotionNeutral
	}

	tone := strings.ToLower(strings.TrimSpace(answer))
	switch {
	case strings.Contains(tone, string(domain.EmotionFrustration)):
		return domain.EmotionFrustration
	case strings.Contains(tone, string(domain.EmotionPositive)):
		return domain.EmotionPositive
	default:
		return domain.EmotionNeutral
	}
}
