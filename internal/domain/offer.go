package domain

// MatchAny is the wildcard value matching every profile value in an offer rule.
const MatchAny = "any"

// FallbackOfferID identifies the catch-all offer selected when no specific
// rule matches.
const FallbackOfferID = "10"

// Offer is one row of the recommendation rule table. Field order in the
// source file is significant: matching is first-match-wins.
type Offer struct {
	Intent             string `json:"intent"`
	RelationshipStatus string `json:"relationship_status"`
	HomeSize           string `json:"home_size"`
	PostalCodePrefix   string `json:"postal_code_prefix"`
	OfferID            string `json:"offerId"`
	PlanName           string `json:"plan_name"`
	Highlight          string `json:"highlight"`
	Link               string `json:"link"`
}

// Matches reports whether the offer's rule fields accept the given profile
// for the given intent. Each field matches on equality or the "any" wildcard.
func (o Offer) Matches(intent Intent, p Profile) bool {
	if o.Intent != string(intent) && o.Intent != MatchAny {
		return false
	}
	if o.RelationshipStatus != p.RelationshipStatus && o.RelationshipStatus != MatchAny {
		return false
	}
	if o.HomeSize != p.HomeSize && o.HomeSize != MatchAny {
		return false
	}
	if o.PostalCodePrefix != p.PostalCodePrefix && o.PostalCodePrefix != MatchAny {
		return false
	}
	return true
}
