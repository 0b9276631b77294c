// Package recommend picks an offer for a completed profile from a static
// rule table. Matching is first-match-wins over file order, with a
// distinguished fallback record when nothing specific applies.
package recommend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/kltan/smartshopper/internal/domain"
	"github.com/kltan/smartshopper/internal/search"
	"github.com/kltan/smartshopper/internal/shared"
)

// Engine matches profiles against the offer rule table.
type Engine struct {
	offers  search.OfferFetcher
	path    string
	watcher *fsnotify.Watcher

	mu     sync.RWMutex
	matrix []domain.Offer
}

// NewEngine loads the offer matrix from path. The offers fetcher enriches a
// matched rule with the stored offer document; it may be nil in tests.
func NewEngine(path string, offers search.OfferFetcher) (*Engine, error) {
	e := &Engine{
		offers: offers,
		path:   path,
	}
	if err := e.reload(); err != nil {
		return nil, err
	}
	return e, nil
}

// reload reads and replaces the in-memory matrix. File order is preserved:
// it defines match precedence.
func (e *Engine) reload() error {
	data, err := os.ReadFile(e.path)
	if err != nil {
		return fmt.Errorf("reading offer matrix: %w", err)
	}

	var matrix []domain.Offer
	if err := json.Unmarshal(data, &matrix); err != nil {
		return fmt.Errorf("parsing offer matrix: %w", err)
	}
	if len(matrix) == 0 {
		return fmt.Errorf("offer matrix %s is empty", e.path)
	}

	e.mu.Lock()
	e.matrix = matrix
	e.mu.Unlock()
	return nil
}

// Watch hot-reloads the matrix when the file changes. A bad edit keeps the
// previous table.
func (e *Engine) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(e.path)); err != nil {
		w.Close()
		return fmt.Errorf("watching %s: %w", e.path, err)
	}
	e.watcher = w

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Name != e.path || !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
					continue
				}
				if err := e.reload(); err != nil {
					slog.Warn("offer matrix reload failed, keeping previous table", "error", err)
					continue
				}
				slog.Info("offer matrix reloaded", "path", e.path)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Warn("offer matrix watcher error", "error", err)
			}
		}
	}()
	return nil
}

// Close stops the watcher if one was started.
func (e *Engine) Close() error {
	if e.watcher != nil {
		return e.watcher.Close()
	}
	return nil
}

// Match selects the first rule whose every field equals the profile value or
// is the "any" wildcard. With no specific match it falls back to the
// sentinel offer.
func (e *Engine) Match(intent domain.Intent, p domain.Profile) domain.Offer {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var fallback *domain.Offer
	for i, offer := range e.matrix {
		if offer.OfferID == domain.FallbackOfferID {
			fallback = &e.matrix[i]
			continue
		}
		if offer.Matches(intent, p) {
			return offer
		}
	}
	if fallback != nil {
		return *fallback
	}
	// Matrix without a sentinel row; last row acts as the catch-all.
	return e.matrix[len(e.matrix)-1]
}

// Recommend matches an offer and formats the user-facing reply. The stored
// offer document, when available, overrides the rule row's display fields.
func (e *Engine) Recommend(ctx context.Context, intent domain.Intent, p domain.Profile) (domain.Offer, string) {
	matched := e.Match(intent, p)

	if e.offers != nil {
		detail, err := e.offers.Offer(ctx, matched.OfferID)
		switch {
		case err == nil:
			if detail.PlanName != "" {
				matched.PlanName = detail.PlanName
			}
			if detail.Highlight != "" {
				matched.Highlight = detail.Highlight
			}
			if detail.Link != "" {
				matched.Link = detail.Link
			}
		case errors.Is(err, shared.ErrNotFound):
			// Rule row already carries display fields.
		default:
			slog.Warn("offer detail lookup failed", "offer_id", matched.OfferID, "error", err)
		}
	}

	reply := fmt.Sprintf("We recommend the %s.\n%s\nLearn more: %s",
		matched.PlanName, matched.Highlight, matched.Link)
	return matched, reply
}
