package domain

import "time"

// FarmerAccount mirrors a row in the farmer directory.
type FarmerAccount struct {
	ID           string
	FirstName    string
	LastName     string
	PhoneNumber  string
	PasswordHash string
	CreatedAt    time.Time
}

// FarmerCandidate is a fuzzy directory hit with its similarity score in [0,1].
type FarmerCandidate struct {
	Account FarmerAccount
	Score   float64
}

// MatchKind classifies a duplicate lookup.
type MatchKind string

const (
	MatchNone      MatchKind = "none"
	MatchPotential MatchKind = "potential"
	MatchConfirmed MatchKind = "confirmed"
)

// MatchCandidate is an account that may belong to the same person.
type MatchCandidate struct {
	AccountID  string
	Confidence float64
}

// MatchResult is the outcome of a duplicate lookup.
// Account is set for a confirmed match.
type MatchResult struct {
	Kind       MatchKind
	AccountID  string
	Account    *FarmerAccount
	Candidates []MatchCandidate
}
