// Package search is the HTTP adapter for the OpenSearch vector/document
// collaborator. It covers the three query shapes the conversation needs:
// KNN lookup of intent exemplars, exact-term fetch of a clarification
// question, and offer detail retrieval by identifier.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/kltan/smartshopper/internal/config"
	"github.com/kltan/smartshopper/internal/domain"
	"github.com/kltan/smartshopper/internal/shared"
)

// IntentHit is the best KNN match for a message embedding.
type IntentHit struct {
	Text   string
	Intent domain.Intent
	Score  float64
}

// IntentSearcher finds the nearest intent exemplar for an embedding vector.
type IntentSearcher interface {
	NearestIntent(ctx context.Context, vector []float32) (IntentHit, error)
}

// QuestionFetcher fetches one clarification question by its exact key.
type QuestionFetcher interface {
	ClarificationQuestion(ctx context.Context, intent domain.Intent, subStatus domain.SubStatus, sequence int) (string, error)
}

// OfferFetcher retrieves an offer document by identifier.
type OfferFetcher interface {
	Offer(ctx context.Context, offerID string) (domain.Offer, error)
}

// Client implements the search interfaces against an OpenSearch REST API.
type Client struct {
	host               string
	user               string
	pass               string
	intentIndex        string
	clarificationIndex string
	offerIndex         string
	httpClient         *http.Client
}

// New creates a client from collaborator configuration.
func New(cfg config.OpenSearchConfig) *Client {
	return &Client{
		host:               cfg.Host,
		user:               cfg.User,
		pass:               cfg.Pass,
		intentIndex:        cfg.IntentIndex,
		clarificationIndex: cfg.ClarificationIndex,
		offerIndex:         cfg.OfferIndex,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Score  float64 `json:"_score"`
			Source struct {
				Text     string `json:"text"`
				Metadata struct {
					Intent    string `json:"intent"`
					SubStatus string `json:"sub_status"`
					Sequence  int    `json:"sequence"`
				} `json:"metadata"`
			} `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// NearestIntent runs a size-1 KNN query over the intent exemplar index.
func (c *Client) NearestIntent(ctx context.Context, vector []float32) (IntentHit, error) {
	query := map[string]any{
		"size": 1,
		"query": map[string]any{
			"knn": map[string]any{
				"embedding": map[string]any{
					"vector": vector,
					"k":      1,
				},
			},
		},
	}

	var out searchResponse
	if err := c.search(ctx, c.intentIndex, query, &out); err != nil {
		return IntentHit{}, err
	}
	if len(out.Hits.Hits) == 0 {
		return IntentHit{}, fmt.Errorf("no intent exemplar matched: %w", shared.ErrNotFound)
	}

	hit := out.Hits.Hits[0]
	return IntentHit{
		Text:   hit.Source.Text,
		Intent: domain.ParseIntent(hit.Source.Metadata.Intent),
		Score:  hit.Score,
	}, nil
}

// ClarificationQuestion fetches the question at the given 1-based sequence
// for an (intent, sub-status) pair. shared.ErrNotFound marks the end of the
// scripted list.
func (c *Client) ClarificationQuestion(ctx context.Context, intent domain.Intent, subStatus domain.SubStatus, sequence int) (string, error) {
	query := map[string]any{
		"size": 1,
		"query": map[string]any{
			"bool": map[string]any{
				"must": []map[string]any{
					{"term": map[string]any{"metadata.intent": string(intent)}},
					{"term": map[string]any{"metadata.sub_status": string(subStatus)}},
					{"term": map[string]any{"metadata.sequence": sequence}},
				},
			},
		},
	}

	var out searchResponse
	if err := c.search(ctx, c.clarificationIndex, query, &out); err != nil {
		return "", err
	}
	if len(out.Hits.Hits) == 0 {
		return "", fmt.Errorf("no question at sequence %d: %w", sequence, shared.ErrNotFound)
	}
	return out.Hits.Hits[0].Source.Text, nil
}

type offerSearchResponse struct {
	Hits struct {
		Hits []struct {
			Source domain.Offer `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Offer retrieves an offer document by its offerId field.
func (c *Client) Offer(ctx context.Context, offerID string) (domain.Offer, error) {
	query := map[string]any{
		"size": 1,
		"query": map[string]any{
			"term": map[string]any{"offerId": offerID},
		},
	}

	var out offerSearchResponse
	if err := c.search(ctx, c.offerIndex, query, &out); err != nil {
		return domain.Offer{}, err
	}
	if len(out.Hits.Hits) == 0 {
		return domain.Offer{}, fmt.Errorf("offer %q: %w", offerID, shared.ErrNotFound)
	}
	return out.Hits.Hits[0].Source, nil
}

func (c *Client) search(ctx context.Context, index string, query, out any) error {
	jsonData, err := json.Marshal(query)
	if err != nil {
		return fmt.Errorf("marshaling query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+"/"+index+"/_search", bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.user, c.pass)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling OpenSearch: %v: %w", err, shared.ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("OpenSearch returned status %d: %w", resp.StatusCode, shared.ErrUnavailable)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %v: %w", err, shared.ErrMalformed)
	}
	return nil
}
