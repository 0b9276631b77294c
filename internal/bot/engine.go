// Package bot implements the conversation driver: one invocation per user
// message, sequencing guardrails, intent resolution, profile extraction,
// clarification questions, and the final recommendation. Every branch ends
// in a reply; collaborator failures degrade to the documented fallbacks.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kltan/smartshopper/internal/clarify"
	"github.com/kltan/smartshopper/internal/domain"
	"github.com/kltan/smartshopper/internal/metrics"
	"github.com/kltan/smartshopper/internal/session"
	"github.com/kltan/smartshopper/internal/shared"
	"github.com/kltan/smartshopper/internal/store"
)

// Canned replies for the scripted branches of the decision tree.
const (
	greetingReply  = "Hi there! I'm here to help you find the best Singtel broadband or mobile plan. What are you looking for today?"
	offTopicReply  = "Apologies, I'm here specifically to help you explore Singtel broadband and mobile plans. Let me know how I can assist with that!"
	planTypeReply  = "Are you looking for a broadband (fibre) plan or a mobile plan?"
	providerReply  = "Are you currently with Singtel or switching from another provider?"
	subStatusReply = "Are you signing up for a new line or recontracting an existing plan?"
	apologyReply   = "Sorry, something went wrong while processing your request."
)

// Guardrails gates messages before any state mutation.
type Guardrails interface {
	IsSalutation(ctx context.Context, message string) bool
	IsOffTopic(ctx context.Context, message string) bool
}

// IntentResolver classifies the primary intent and the message tone.
type IntentResolver interface {
	Resolve(ctx context.Context, message string) domain.Intent
	DetectEmotion(ctx context.Context, message string) domain.Emotion
}

// ProfileExtractor pulls structured fields out of a free-text message.
type ProfileExtractor interface {
	Extract(ctx context.Context, message string, existing domain.Profile) (domain.ProfileUpdate, error)
}

// QuestionSequencer yields the next unasked clarification question.
type QuestionSequencer interface {
	NextUnasked(ctx context.Context, intent domain.Intent, subStatus domain.SubStatus, startStep int, asked clarify.AskedSet) (domain.Question, int, bool, error)
}

// Recommender matches the accumulated profile to an offer.
type Recommender interface {
	Recommend(ctx context.Context, intent domain.Intent, p domain.Profile) (domain.Offer, string)
}

// HandoffSummarizer writes the take-over narrative.
type HandoffSummarizer interface {
	Summarize(ctx context.Context, p domain.Profile, answers []string, finalReply string) (string, error)
}

// Engine drives one chat turn to completion.
type Engine struct {
	guard      Guardrails
	intents    IntentResolver
	profiles   ProfileExtractor
	sequencer  QuestionSequencer
	recommends Recommender
	summaries  HandoffSummarizer
	sessions   session.Store
	repo       store.Repository
}

// NewEngine wires the conversation driver. repo may be nil to disable
// auditing (tests).
func NewEngine(
	guard Guardrails,
	intents IntentResolver,
	profiles ProfileExtractor,
	sequencer QuestionSequencer,
	recommends Recommender,
	summaries HandoffSummarizer,
	sessions session.Store,
	repo store.Repository,
) *Engine {
	return &Engine{
		guard:      guard,
		intents:    intents,
		profiles:   profiles,
		sequencer:  sequencer,
		recommends: recommends,
		summaries:  summaries,
		sessions:   sessions,
		repo:       repo,
	}
}

// HandleTurn processes one user message against the session's state and
// returns the assistant reply. The whole turn runs under the per-session
// lock, so two requests for the same identifier cannot interleave.
func (e *Engine) HandleTurn(ctx context.Context, sessionID, message string, history domain.Transcript) domain.Turn {
	var reply domain.Turn
	e.sessions.Do(sessionID, func(s *domain.Session) {
		reply = e.handle(ctx, s, message, history)
	})
	return reply
}

func (e *Engine) handle(ctx context.Context, s *domain.Session, message string, history domain.Transcript) domain.Turn {
	if s.Turns == 0 {
		// New conversation in this slot: the audit log starts clean.
		e.truncateLog(ctx, s.ID)
	}
	s.Turns++

	// A transcript supplied by the UI may predate this process; fold its
	// assistant questions into the asked set before sequencing.
	seedAskedSet(s, history)

	if e.guard.IsSalutation(ctx, message) {
		return e.reply(ctx, s, message, "greeting", greetingReply)
	}

	intentJustSet := false
	if !s.Profile.FullyKnown() {
		update, err := e.profiles.Extract(ctx, message, s.Profile)
		switch {
		case errors.Is(err, shared.ErrMalformed):
			metrics.CollaboratorErrorsTotal.WithLabelValues("llm", "malformed").Inc()
			slog.Warn("profile extraction unparseable", "session_id", s.ID, "error", err)
			return e.reply(ctx, s, message, "apology", apologyReply)
		case err != nil:
			// Collaborator down: continue with an empty update rather than
			// blocking the conversation.
			metrics.CollaboratorErrorsTotal.WithLabelValues("llm", "unavailable").Inc()
			slog.Warn("profile extraction unavailable", "session_id", s.ID, "error", err)
		default:
			s.Profile.Merge(update)
		}

		// Mirror extracted fields onto the decision-tree state.
		if s.Profile.PlanType != "" && s.PrimaryIntent == domain.IntentUnset {
			s.PrimaryIntent = domain.ParseIntent(s.Profile.PlanType)
			intentJustSet = s.PrimaryIntent != domain.IntentUnknown
		}
		if s.Profile.RelationshipStatus != "" {
			s.SubStatus = domain.SubStatus(s.Profile.RelationshipStatus)
		}
		if s.Profile.CurrentProvider != "" {
			s.TelcoClarified = true
		}
	}

	if s.PrimaryIntent == domain.IntentUnset || s.PrimaryIntent == domain.IntentUnknown {
		resolved := e.intents.Resolve(ctx, message)
		if resolved == domain.IntentUnknown {
			if e.guard.IsOffTopic(ctx, message) {
				return e.reply(ctx, s, message, "off_topic", offTopicReply)
			}
			return e.reply(ctx, s, message, "intent_prompt", planTypeReply)
		}
		s.PrimaryIntent = resolved
		intentJustSet = true
	}

	// The first turn after the intent settles gets an emotion-matched
	// acknowledgement in front of the next question.
	var tone string
	if intentJustSet {
		tone = e.tonePrefix(ctx, message, s.PrimaryIntent)
	}

	// The provider question only gates while the sub-status is also open:
	// once the user has told us new-line vs recontract, clarifications start
	// regardless of provider.
	if s.SubStatus == domain.SubStatusUnset {
		if !s.TelcoClarified && s.Profile.CurrentProvider == "" {
			return e.reply(ctx, s, message, "provider_prompt", tone+providerReply)
		}
		return e.reply(ctx, s, message, "substatus_prompt", tone+subStatusReply)
	}

	question, step, ok, err := e.sequencer.NextUnasked(ctx, s.PrimaryIntent, s.SubStatus, s.Step, s)
	if err != nil {
		kind := "unavailable"
		if errors.Is(err, shared.ErrMalformed) {
			kind = "malformed"
		}
		metrics.CollaboratorErrorsTotal.WithLabelValues("search", kind).Inc()
		slog.Warn("clarification lookup failed", "session_id", s.ID, "error", err)
		return e.reply(ctx, s, message, "apology", apologyReply)
	}
	if ok {
		s.Step = step
		s.MarkAsked(domain.NormalizeQuestion(question.Text))
		return e.reply(ctx, s, message, "clarification", tone+question.Text)
	}

	// Scripted questions exhausted: recommend, hand off, reset.
	return e.finish(ctx, s, message, history)
}

func (e *Engine) finish(ctx context.Context, s *domain.Session, message string, history domain.Transcript) domain.Turn {
	offer, content := e.recommends.Recommend(ctx, s.PrimaryIntent, s.Profile)
	metrics.RecommendationsTotal.WithLabelValues(offer.OfferID).Inc()

	answers := history.UserAnswers(0)
	answers = append(answers, message)
	if s.Step > 0 && len(answers) > s.Step {
		answers = answers[len(answers)-s.Step:]
	}

	summary, err := e.summaries.Summarize(ctx, s.Profile, answers, content)
	if err != nil {
		// The handoff record is still written; a missing narrative must not
		// cost the user their recommendation.
		metrics.CollaboratorErrorsTotal.WithLabelValues("llm", "unavailable").Inc()
		slog.Warn("handoff summary generation failed", "session_id", s.ID, "error", err)
	}
	e.saveHandoff(ctx, store.Handoff{
		SessionID:           s.ID,
		Profile:             s.Profile,
		Answers:             answers,
		FinalRecommendation: content,
		Summary:             summary,
	})

	reply := e.reply(ctx, s, message, "recommendation", content)

	s.ResetToDefaults()
	metrics.SessionResetsTotal.WithLabelValues("completed").Inc()
	return reply
}

func (e *Engine) tonePrefix(ctx context.Context, message string, intent domain.Intent) string {
	switch e.intents.DetectEmotion(ctx, message) {
	case domain.EmotionFrustration:
		return fmt.Sprintf("Sorry to hear that! Let's explore better %s options for you. ", intent)
	case domain.EmotionPositive:
		return fmt.Sprintf("Awesome! Let's help you find the right %s plan. ", intent)
	default:
		return fmt.Sprintf("Thanks for sharing. You're looking for %s plans. ", intent)
	}
}

// reply records the interaction and returns the assistant turn. The audit
// write never fails the turn.
func (e *Engine) reply(ctx context.Context, s *domain.Session, message, branch, content string) domain.Turn {
	metrics.TurnsTotal.WithLabelValues(branch).Inc()
	if e.repo != nil {
		if err := e.repo.LogInteraction(ctx, store.Interaction{
			SessionID:      s.ID,
			UserInput:      message,
			AssistantReply: content,
			Profile:        s.Profile,
		}); err != nil {
			slog.Warn("interaction log write failed", "session_id", s.ID, "error", err)
		}
	}
	return domain.Turn{Role: domain.RoleAssistant, Content: content}
}

func (e *Engine) truncateLog(ctx context.Context, sessionID string) {
	if e.repo == nil {
		return
	}
	if err := e.repo.TruncateLog(ctx, sessionID); err != nil {
		slog.Warn("interaction log truncation failed", "session_id", sessionID, "error", err)
	}
}

func (e *Engine) saveHandoff(ctx context.Context, rec store.Handoff) {
	if e.repo == nil {
		return
	}
	if err := e.repo.SaveHandoff(ctx, rec); err != nil {
		slog.Warn("handoff write failed", "session_id", rec.SessionID, "error", err)
	}
}

// seedAskedSet folds assistant questions answered in the supplied transcript
// into the session's asked set, so duplicate avoidance holds even when the
// history did not originate in this process.
func seedAskedSet(s *domain.Session, history domain.Transcript) {
	for i := 0; i+1 < len(history); i++ {
		if history[i].Role == domain.RoleAssistant && history[i+1].Role == domain.RoleUser {
			s.MarkAsked(domain.NormalizeQuestion(history[i].Content))
		}
	}
}
