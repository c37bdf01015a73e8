package models

// IdentitySearchResult is the outcome of a principal search. Zero, one or
// multiple matches are all valid outcomes; the multiple-match case is an
// explicit condition the caller must handle, not an error.
type IdentitySearchResult struct {
	Query              string     `json:"query"`
	Identities         []Identity `json:"identities"`
	HasMultipleResults bool       `json:"has_multiple_results"`
}

func (s *IdentitySearchResult) IsEmpty() bool {
	return len(s.Identities) == 0
}

// Single returns the sole match, or false when the search was empty or
// ambiguous.
func (s *IdentitySearchResult) Single() (*Identity, bool) {
	if len(s.Identities) != 1 {
		return nil, false
	}
	return &s.Identities[0], true
}
