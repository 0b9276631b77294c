package recommend

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kltan/smartshopper/internal/domain"
	"github.com/kltan/smartshopper/internal/shared"
)

const testMatrix = `[
  {"intent":"fibre","relationship_status":"new_line","home_size":"4-room","postal_code_prefix":"60","offerId":"1","plan_name":"Fibre 2Gbps","highlight":"Free mesh router","link":"https://example.test/fibre-2g"},
  {"intent":"fibre","relationship_status":"new_line","home_size":"5-room","postal_code_prefix":"any","offerId":"2","plan_name":"Fibre 3Gbps","highlight":"Whole-home coverage","link":"https://example.test/fibre-3g"},
  {"intent":"mobile","relationship_status":"recontract","home_size":"any","postal_code_prefix":"any","offerId":"5","plan_name":"Mobile Plus","highlight":"Loyalty discount","link":"https://example.test/mobile-plus"},
  {"intent":"any","relationship_status":"any","home_size":"any","postal_code_prefix":"any","offerId":"10","plan_name":"Starter Bundle","highlight":"Our most popular bundle","link":"https://example.test/starter"}
]`

func writeMatrix(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "offer_matrix.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

type fakeOffers struct {
	detail domain.Offer
	err    error
}

func (f *fakeOffers) Offer(ctx context.Context, offerID string) (domain.Offer, error) {
	return f.detail, f.err
}

func TestMatchPrefersSpecificRuleOverFallback(t *testing.T) {
	t.Parallel()

	e, err := NewEngine(writeMatrix(t, testMatrix), nil)
	require.NoError(t, err)

	got := e.Match(domain.IntentFibre, domain.Profile{
		RelationshipStatus: "new_line",
		HomeSize:           "4-room",
		PostalCodePrefix:   "60",
	})
	assert.Equal(t, "1", got.OfferID)
}

func TestMatchWildcardFields(t *testing.T) {
	t.Parallel()

	e, err := NewEngine(writeMatrix(t, testMatrix), nil)
	require.NoError(t, err)

	got := e.Match(domain.IntentFibre, domain.Profile{
		RelationshipStatus: "new_line",
		HomeSize:           "5-room",
		PostalCodePrefix:   "31",
	})
	assert.Equal(t, "2", got.OfferID, "any wildcard should accept every postal prefix")
}

func TestMatchFallsBackToSentinelRow(t *testing.T) {
	t.Parallel()

	e, err := NewEngine(writeMatrix(t, testMatrix), nil)
	require.NoError(t, err)

	got := e.Match(domain.IntentMobile, domain.Profile{
		RelationshipStatus: "new_line",
		HomeSize:           "2-room",
		PostalCodePrefix:   "12",
	})
	assert.Equal(t, domain.FallbackOfferID, got.OfferID)
}

func TestNewEngineRejectsEmptyMatrix(t *testing.T) {
	t.Parallel()

	_, err := NewEngine(writeMatrix(t, `[]`), nil)
	assert.Error(t, err)
}

func TestRecommendEnrichesFromOfferStore(t *testing.T) {
	t.Parallel()

	e, err := NewEngine(writeMatrix(t, testMatrix), &fakeOffers{
		detail: domain.Offer{PlanName: "Fibre 2Gbps Promo", Highlight: "Two months free"},
	})
	require.NoError(t, err)

	matched, reply := e.Recommend(context.Background(), domain.IntentFibre, domain.Profile{
		RelationshipStatus: "new_line",
		HomeSize:           "4-room",
		PostalCodePrefix:   "60",
	})
	assert.Equal(t, "Fibre 2Gbps Promo", matched.PlanName)
	assert.Contains(t, reply, "Fibre 2Gbps Promo")
	assert.Contains(t, reply, "Two months free")
	// Link not present in the detail keeps the rule row's value.
	assert.Contains(t, reply, "https://example.test/fibre-2g")
}

func TestRecommendToleratesDetailLookupFailure(t *testing.T) {
	t.Parallel()

	e, err := NewEngine(writeMatrix(t, testMatrix), &fakeOffers{err: errors.New("opensearch down")})
	require.NoError(t, err)

	matched, reply := e.Recommend(context.Background(), domain.IntentMobile, domain.Profile{
		RelationshipStatus: "recontract",
	})
	assert.Equal(t, "5", matched.OfferID)
	assert.Contains(t, reply, "Mobile Plus")
}

func TestRecommendMissingDetailKeepsRuleRow(t *testing.T) {
	t.Parallel()

	e, err := NewEngine(writeMatrix(t, testMatrix), &fakeOffers{err: shared.ErrNotFound})
	require.NoError(t, err)

	_, reply := e.Recommend(context.Background(), domain.IntentFibre, domain.Profile{
		RelationshipStatus: "new_line",
		HomeSize:           "4-room",
		PostalCodePrefix:   "60",
	})
	assert.Contains(t, reply, "Fibre 2Gbps")
}
