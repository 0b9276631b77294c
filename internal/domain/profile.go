package domain

// Profile accumulates structured facts about the user extracted from free
// text. Values are empty until evidenced by a message; updates merge, never
// delete.
type Profile struct {
	PlanType           string `json:"plan_type,omitempty"`
	CurrentProvider    string `json:"current_provider,omitempty"`
	RelationshipStatus string `json:"relationship_status,omitempty"`
	HomeSize           string `json:"home_size,omitempty"`
	PostalCodePrefix   string `json:"postal_code_prefix,omitempty"`
}

// ProfileUpdate is a partial extraction result. Pointer fields distinguish
// "not mentioned" from an explicit value, so only evidenced fields merge.
type ProfileUpdate struct {
	PlanType           *string `json:"plan_type,omitempty"`
	CurrentProvider    *string `json:"current_provider,omitempty"`
	RelationshipStatus *string `json:"relationship_status,omitempty"`
	HomeSize           *string `json:"home_size,omitempty"`
	PostalCodePrefix   *string `json:"postal_code_prefix,omitempty"`
}

// Empty reports whether the update carries no fields.
func (u ProfileUpdate) Empty() bool {
	return u.PlanType == nil && u.CurrentProvider == nil &&
		u.RelationshipStatus == nil && u.HomeSize == nil && u.PostalCodePrefix == nil
}

// Merge applies non-nil update fields onto the profile. Re-applying the same
// update is a no-op.
func (p *Profile) Merge(u ProfileUpdate) {
	if u.PlanType != nil && *u.PlanType != "" {
		p.PlanType = *u.PlanType
	}
	if u.CurrentProvider != nil && *u.CurrentProvider != "" {
		p.CurrentProvider = *u.CurrentProvider
	}
	if u.RelationshipStatus != nil && *u.RelationshipStatus != "" {
		p.RelationshipStatus = *u.RelationshipStatus
	}
	if u.HomeSize != nil && *u.HomeSize != "" {
		p.HomeSize = *u.HomeSize
	}
	if u.PostalCodePrefix != nil && *u.PostalCodePrefix != "" {
		p.PostalCodePrefix = *u.PostalCodePrefix
	}
}

// Complete reports whether the three core fields are all set.
func (p Profile) Complete() bool {
	return p.PlanType != "" && p.CurrentProvider != "" && p.RelationshipStatus != ""
}

// FullyKnown reports whether every field, including the extended keys the
// offer matrix matches on, has been captured. Clarification answers keep
// feeding extraction until this holds.
func (p Profile) FullyKnown() bool {
	return p.Complete() && p.HomeSize != "" && p.PostalCodePrefix != ""
}
