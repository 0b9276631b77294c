// Package profile extracts structured customer facts from free text via the
// LLM collaborator and merges them into the session profile.
package profile

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kltan/smartshopper/internal/domain"
	"github.com/kltan/smartshopper/internal/openai"
	"github.com/kltan/smartshopper/internal/shared"
)

const extractSystemPrompt = `Extract these fields from the user's message:
- plan_type: fibre or mobile
- current_provider: singtel or other (e.g., Starhub, M1, Circles are other)
- relationship_status: new_line or recontract
- home_size: number of rooms, e.g. "4-room"
- postal_code_prefix: first two digits of a Singapore postal code

Return a JSON object with only the fields detected in this message. Ignore anything unrelated. Do not guess.`

// Extractor asks the LLM for profile fields evidenced in a message.
type Extractor struct {
	llm openai.Completer
}

// NewExtractor creates a profile extractor.
func NewExtractor(llm openai.Completer) *Extractor {
	return &Extractor{llm: llm}
}

// Extract returns a partial profile update containing only fields the LLM
// found explicit evidence for. An unparseable answer is reported as
// shared.ErrMalformed; the caller owns the apology reply.
func (e *Extractor) Extract(ctx context.Context, message string, existing domain.Profile) (domain.ProfileUpdate, error) {
	existingJSON, err := json.Marshal(existing)
	if err != nil {
		return domain.ProfileUpdate{}, fmt.Errorf("marshaling existing profile: %w", err)
	}

	prompt := fmt.Sprintf("User said: %q\n\nExisting profile: %s", message, existingJSON)
	answer, err := e.llm.Complete(ctx, []openai.Message{
		{Role: "system", Content: extractSystemPrompt},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return domain.ProfileUpdate{}, fmt.Errorf("extracting profile fields: %w", err)
	}

	var update domain.ProfileUpdate
	if err := json.Unmarshal([]byte(answer), &update); err != nil {
		return domain.ProfileUpdate{}, fmt.Errorf("parsing extraction %q: %w", answer, shared.ErrMalformed)
	}
	return update, nil
}
