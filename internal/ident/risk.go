package ident

import "github.com/google/uuid"

// RiskPrefix starts every generated risk identifier.
const RiskPrefix = "RISK-"

// Generator produces identifiers for new risks.
// Implemented by UUIDv7Generator (production) and testutil.SequenceGenerator (tests).
type Generator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable risk identifiers.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns RISK- followed by a hyphenated UUIDv7.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return RiskPrefix + uuid.Must(uuid.NewV7()).String()
}
