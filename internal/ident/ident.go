// Package ident generates and validates record identifiers.
//
// Control identifiers are sequential and human readable (CTRL-001,
// CTRL-002, ...). The next number is recomputed from the live collection on
// every call; there is no persisted counter. Numbers freed by deletions are
// not reused as long as a higher number exists, and gaps never collide.
//
// The generator is not safe against two independent sessions generating
// from the same snapshot: both would produce the same identifier.
package ident

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/roach88/riskctl/internal/record"
)

// ControlPrefix starts every canonical control identifier.
const ControlPrefix = "CTRL-"

var (
	// referencePattern extracts the numeric suffix of any CTRL- reference,
	// including non-canonical widths such as CTRL-7.
	referencePattern = regexp.MustCompile(`^CTRL-(\d+)$`)

	// canonicalPattern is the canonical identifier format.
	canonicalPattern = regexp.MustCompile(`^CTRL-\d{3,}$`)
)

// FormatControlID formats n with at least three digits.
func FormatControlID(n int) string {
	return fmt.Sprintf("%s%03d", ControlPrefix, n)
}

// IsCanonicalControlID reports whether id matches CTRL- plus 3 or more digits.
func IsCanonicalControlID(id string) bool {
	return canonicalPattern.MatchString(id)
}

// ControlNumber extracts the numeric suffix of a reference.
// Malformed references report ok=false and never an error.
func ControlNumber(reference string) (n int, ok bool) {
	m := referencePattern.FindStringSubmatch(reference)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		// Overflowing suffixes are treated like malformed ones.
		return 0, false
	}
	return n, true
}

// NextControlNumber returns one more than the highest numeric suffix among
// the controls' references. References that do not match contribute nothing.
func NextControlNumber(controls []record.Control) int {
	highest := 0
	for _, c := range controls {
		if n, ok := ControlNumber(c.Reference); ok && n > highest {
			highest = n
		}
	}
	return highest + 1
}

// NextControlID returns the identifier for the next control.
func NextControlID(controls []record.Control) string {
	return FormatControlID(NextControlNumber(controls))
}

// NeedsMigration reports whether the controls need renumbering: some id is
// non-canonical, or two controls share an id.
func NeedsMigration(controls []record.Control) bool {
	seen := make(map[string]bool, len(controls))
	for _, c := range controls {
		if !IsCanonicalControlID(c.ID) || seen[c.ID] {
			return true
		}
		seen[c.ID] = true
	}
	return false
}

// StaleReferences counts controls whose reference does not mirror their id.
func StaleReferences(controls []record.Control) int {
	n := 0
	for _, c := range controls {
		if c.Reference != c.ID {
			n++
		}
	}
	return n
}
