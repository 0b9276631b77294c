// Package domain holds the conversation state types shared across the service.
package domain

import (
	"time"
)

// Intent is the user's high-level product interest.
type Intent string

const (
	IntentFibre   Intent = "fibre"
	IntentMobile  Intent = "mobile"
	IntentUnknown Intent = "unknown"
	IntentUnset   Intent = ""
)

// ParseIntent normalizes a raw classifier answer into a known Intent.
// Anything outside the closed vocabulary maps to IntentUnknown.
func ParseIntent(s string) Intent {
	switch Intent(s) {
	case IntentFibre, IntentMobile:
		return Intent(s)
	default:
		return IntentUnknown
	}
}

// SubStatus is whether the user is signing up new or renewing.
type SubStatus string

const (
	SubStatusNewLine    SubStatus = "new_line"
	SubStatusRecontract SubStatus = "recontract"
	SubStatusUnset      SubStatus = ""
)

// Emotion is the detected tone of a user message.
type Emotion string

const (
	EmotionNeutral     Emotion = "neutral"
	EmotionFrustration Emotion = "frustration"
	EmotionPositive    Emotion = "positive"
)

// Session is the per-conversation state driving the decision tree.
// Step only increases until a reset; PrimaryIntent and SubStatus are sticky
// once set and change only through an explicit profile update.
type Session struct {
	ID             string
	Profile        Profile
	PrimaryIntent  Intent
	SubStatus      SubStatus
	Step           int
	TelcoClarified bool
	// AskedQuestions holds normalized texts of questions already issued,
	// maintained incrementally instead of re-scanning the transcript.
	AskedQuestions map[string]struct{}
	// Turns counts messages handled since the last reset.
	Turns     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewSession returns a session with all fields at defaults.
func NewSession(id string) *Session {
	now := time.Now()
	return &Session{
		ID:             id,
		Profile:        Profile{},
		AskedQuestions: make(map[string]struct{}),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// ResetToDefaults returns every decision-tree field to its initial value,
// keeping the identifier. Called once a recommendation has been delivered.
func (s *Session) ResetToDefaults() {
	s.Profile = Profile{}
	s.PrimaryIntent = IntentUnset
	s.SubStatus = SubStatusUnset
	s.Step = 0
	s.TelcoClarified = false
	s.AskedQuestions = make(map[string]struct{})
	s.Turns = 0
	s.UpdatedAt = time.Now()
}

// MarkAsked records a question's normalized text as issued.
func (s *Session) MarkAsked(normalized string) {
	if s.AskedQuestions == nil {
		s.AskedQuestions = make(map[string]struct{})
	}
	s.AskedQuestions[normalized] = struct{}{}
}

// WasAsked reports whether a normalized question text was already issued.
func (s *Session) WasAsked(normalized string) bool {
	_, ok := s.AskedQuestions[normalized]
	return ok
}
