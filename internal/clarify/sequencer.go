// Package clarify walks the scripted clarification question list for an
// (intent, sub-status) pair, skipping questions the session already asked.
package clarify

import (
	"context"
	"errors"
	"fmt"

	"github.com/kltan/smartshopper/internal/domain"
	"github.com/kltan/smartshopper/internal/search"
	"github.com/kltan/smartshopper/internal/shared"
)

// maxSkipAhead bounds the duplicate-skip loop. If the source keeps returning
// previously-asked text, the sequencer reports end-of-list instead of
// spinning on the collaborator.
const maxSkipAhead = 10

// AskedSet answers whether a normalized question text was already issued.
type AskedSet interface {
	WasAsked(normalized string) bool
}

// Sequencer fetches the next unasked clarification question.
type Sequencer struct {
	questions search.QuestionFetcher
}

// NewSequencer creates a sequencer over the question source.
func NewSequencer(questions search.QuestionFetcher) *Sequencer {
	return &Sequencer{questions: questions}
}

// NextUnasked returns the next question not yet asked, starting from
// startStep (0-based count of questions already issued; the source is
// 1-based). ok=false means the list is exhausted and the caller should move
// to recommendation. The returned step is the count after issuing the
// question, so it only grows.
func (s *Sequencer) NextUnasked(ctx context.Context, intent domain.Intent, subStatus domain.SubStatus, startStep int, asked AskedSet) (question domain.Question, step int, ok bool, err error) {
	step = startStep
	for skips := 0; skips <= maxSkipAhead; skips++ {
		text, err := s.questions.ClarificationQuestion(ctx, intent, subStatus, step+1)
		if errors.Is(err, shared.ErrNotFound) {
			return domain.Question{}, startStep, false, nil
		}
		if err != nil {
			return domain.Question{}, startStep, false, fmt.Errorf("fetching clarification %d: %w", step+1, err)
		}

		if asked == nil || !asked.WasAsked(domain.NormalizeQuestion(text)) {
			return domain.Question{
				Intent:    intent,
				SubStatus: subStatus,
				Sequence:  step + 1,
				Text:      text,
			}, step + 1, true, nil
		}
		step++
	}
	// Every remaining position within the bound was a duplicate.
	return domain.Question{}, startStep, false, nil
}
