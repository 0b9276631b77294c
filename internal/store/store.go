// Package store provides the audit persistence layer: the per-session
// interaction log and the hand-off summary sink.
package store

import (
	"context"
	"time"

	"github.com/kltan/smartshopper/internal/domain"
)

// Interaction is one audited chat turn.
type Interaction struct {
	ID             string
	SessionID      string
	Timestamp      time.Time
	UserInput      string
	AssistantReply string
	Profile        domain.Profile
}

// Handoff is the summary record written when a conversation completes. One
// record per session: a new completion overwrites the previous one.
type Handoff struct {
	ID                  string
	SessionID           string
	Timestamp           time.Time
	Profile             domain.Profile
	Answers             []string
	FinalRecommendation string
	Summary             string
}

// Repository defines the audit persistence interface.
type Repository interface {
	// LogInteraction appends one turn to the session's interaction log.
	LogInteraction(ctx context.Context, rec Interaction) error

	// TruncateLog drops the interaction log for a session. Called when a
	// session slot starts a new conversation.
	TruncateLog(ctx context.Context, sessionID string) error

	// Interactions returns a session's log ordered by time.
	Interactions(ctx context.Context, sessionID string) ([]Interaction, error)

	// SaveHandoff upserts the hand-off summary for a session.
	SaveHandoff(ctx context.Context, rec Handoff) error

	// GetHandoff returns the latest hand-off record for a session, or nil.
	GetHandoff(ctx context.Context, sessionID string) (*Handoff, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
