package session

import (
	"sync"
	"testing"

	"github.com/kltan/smartshopper/internal/domain"
)

func TestGetOrCreateReturnsSameSession(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	a := store.GetOrCreate("sess-1")
	b := store.GetOrCreate("sess-1")
	if a != b {
		t.Error("same identifier returned different sessions")
	}
	if a.ID != "sess-1" {
		t.Errorf("session ID = %q", a.ID)
	}

	other := store.GetOrCreate("sess-2")
	if other == a {
		t.Error("different identifiers share a session")
	}
}

func TestStepMonotonicUnderDo(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	last := 0
	for i := 0; i < 5; i++ {
		store.Do("sess-1", func(s *domain.Session) {
			s.Step++
			if s.Step <= last {
				t.Errorf("step went backwards: %d after %d", s.Step, last)
			}
			last = s.Step
		})
	}
}

func TestResetReturnsSlotToDefaults(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	store.Do("sess-1", func(s *domain.Session) {
		s.PrimaryIntent = domain.IntentFibre
		s.Step = 3
	})

	store.Reset("sess-1")

	got := store.GetOrCreate("sess-1")
	if got.PrimaryIntent != domain.IntentUnset || got.Step != 0 {
		t.Errorf("reset slot kept state: intent=%q step=%d", got.PrimaryIntent, got.Step)
	}
}

func TestDoSerializesSameSession(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	const workers = 16
	const rounds = 50

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < rounds; j++ {
				store.Do("sess-1", func(s *domain.Session) {
					s.Step++
				})
			}
		}()
	}
	wg.Wait()

	if got := store.GetOrCreate("sess-1").Step; got != workers*rounds {
		t.Errorf("lost updates: step = %d, want %d", got, workers*rounds)
	}
}
