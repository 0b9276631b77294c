package clarify

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/kltan/smartshopper/internal/domain"
	"github.com/kltan/smartshopper/internal/shared"
)

// fakeQuestions serves a fixed 1-based list and records requested sequences.
type fakeQuestions struct {
	list      []string
	requested []int
	err       error
}

func (f *fakeQuestions) ClarificationQuestion(ctx context.Context, intent domain.Intent, subStatus domain.SubStatus, sequence int) (string, error) {
	f.requested = append(f.requested, sequence)
	if f.err != nil {
		return "", f.err
	}
	if sequence < 1 || sequence > len(f.list) {
		return "", fmt.Errorf("sequence %d: %w", sequence, shared.ErrNotFound)
	}
	return f.list[sequence-1], nil
}

type askedSet map[string]struct{}

func (a askedSet) WasAsked(normalized string) bool {
	_, ok := a[normalized]
	return ok
}

func TestNextUnaskedReturnsFirstQuestion(t *testing.T) {
	t.Parallel()

	s := NewSequencer(&fakeQuestions{list: []string{"How many rooms?", "Which area?"}})
	q, step, ok, err := s.NextUnasked(context.Background(), domain.IntentFibre, domain.SubStatusNewLine, 0, askedSet{})
	if err != nil || !ok {
		t.Fatalf("NextUnasked: ok=%v err=%v", ok, err)
	}
	if q.Text != "How many rooms?" || q.Sequence != 1 || step != 1 {
		t.Errorf("got question %+v step %d", q, step)
	}
}

func TestNextUnaskedSkipsDuplicates(t *testing.T) {
	t.Parallel()

	s := NewSequencer(&fakeQuestions{list: []string{"How many rooms?", "Which area?"}})
	asked := askedSet{domain.NormalizeQuestion("How many rooms?"): {}}
	q, step, ok, err := s.NextUnasked(context.Background(), domain.IntentFibre, domain.SubStatusNewLine, 0, asked)
	if err != nil || !ok {
		t.Fatalf("NextUnasked: ok=%v err=%v", ok, err)
	}
	if q.Text != "Which area?" || step != 2 {
		t.Errorf("got question %+v step %d, want second question at step 2", q, step)
	}
}

func TestNextUnaskedEndOfList(t *testing.T) {
	t.Parallel()

	s := NewSequencer(&fakeQuestions{list: []string{"How many rooms?"}})
	_, step, ok, err := s.NextUnasked(context.Background(), domain.IntentFibre, domain.SubStatusNewLine, 1, askedSet{})
	if err != nil {
		t.Fatalf("NextUnasked: %v", err)
	}
	if ok {
		t.Fatal("expected end of list")
	}
	if step != 1 {
		t.Errorf("step = %d, want startStep unchanged on exhaustion", step)
	}
}

func TestNextUnaskedBoundsDuplicateSkipping(t *testing.T) {
	t.Parallel()

	list := make([]string, 50)
	asked := askedSet{}
	for i := range list {
		list[i] = fmt.Sprintf("Question %d?", i+1)
		asked[domain.NormalizeQuestion(list[i])] = struct{}{}
	}
	src := &fakeQuestions{list: list}
	s := NewSequencer(src)

	_, _, ok, err := s.NextUnasked(context.Background(), domain.IntentMobile, domain.SubStatusRecontract, 0, asked)
	if err != nil {
		t.Fatalf("NextUnasked: %v", err)
	}
	if ok {
		t.Fatal("expected exhaustion when every question is a duplicate")
	}
	if len(src.requested) > maxSkipAhead+1 {
		t.Errorf("made %d source calls, want at most %d", len(src.requested), maxSkipAhead+1)
	}
}

func TestNextUnaskedPropagatesSourceError(t *testing.T) {
	t.Parallel()

	s := NewSequencer(&fakeQuestions{err: errors.New("opensearch down")})
	_, _, ok, err := s.NextUnasked(context.Background(), domain.IntentFibre, domain.SubStatusNewLine, 0, askedSet{})
	if err == nil || ok {
		t.Fatalf("want error, got ok=%v err=%v", ok, err)
	}
}

func TestNextUnaskedNilAskedSet(t *testing.T) {
	t.Parallel()

	s := NewSequencer(&fakeQuestions{list: []string{"How many rooms?"}})
	q, _, ok, err := s.NextUnasked(context.Background(), domain.IntentFibre, domain.SubStatusNewLine, 0, nil)
	if err != nil || !ok {
		t.Fatalf("NextUnasked: ok=%v err=%v", ok, err)
	}
	if q.Text != "How many rooms?" {
		t.Errorf("got %q", q.Text)
	}
}
