package linksync

import (
	"fmt"

	"github.com/roach88/riskctl/internal/record"
)

// ViolationKind classifies a relation defect.
type ViolationKind string

const (
	// MissingMirror: Holder references Ref, Ref exists, but Ref does not
	// reference Holder back.
	MissingMirror ViolationKind = "missing_mirror"

	// DanglingRef: Holder references an id with no record.
	DanglingRef ViolationKind = "dangling"
)

// Violation is one defect found by Check.
type Violation struct {
	Kind   ViolationKind `json:"kind"`
	Holder record.Kind   `json:"holder"`
	ID     string        `json:"id"`
	Ref    string        `json:"ref"`
}

// String implements fmt.Stringer.
func (v Violation) String() string {
	switch v.Kind {
	case MissingMirror:
		return fmt.Sprintf("%s %s references %s %s, which does not reference it back",
			v.Holder, v.ID, v.Holder.Opposite(), v.Ref)
	default:
		return fmt.Sprintf("%s %s references unknown %s %s",
			v.Holder, v.ID, v.Holder.Opposite(), v.Ref)
	}
}

// Check lists every asymmetric pair and dangling reference. An empty result
// means the relation invariant holds. Risks are reported before Controls,
// each in collection order.
func Check(risks []record.Risk, controls []record.Control) []Violation {
	var out []Violation
	riskIdx := record.RiskIndex(risks)
	controlIdx := record.ControlIndex(controls)

	for _, r := range risks {
		for _, cid := range r.ControlRefs {
			i, ok := controlIdx[cid]
			switch {
			case !ok:
				out = append(out, Violation{Kind: DanglingRef, Holder: record.KindRisk, ID: r.ID, Ref: cid})
			case !controls[i].RiskRefs.Has(r.ID):
				out = append(out, Violation{Kind: MissingMirror, Holder: record.KindRisk, ID: r.ID, Ref: cid})
			}
		}
	}
	for _, c := range controls {
		for _, rid := range c.RiskRefs {
			i, ok := riskIdx[rid]
			switch {
			case !ok:
				out = append(out, Violation{Kind: DanglingRef, Holder: record.KindControl, ID: c.ID, Ref: rid})
			case !risks[i].ControlRefs.Has(c.ID):
				out = append(out, Violation{Kind: MissingMirror, Holder: record.KindControl, ID: c.ID, Ref: rid})
			}
		}
	}
	return out
}

// Holds reports whether the relation invariant holds between every pair of
// existing records. Dangling references do not break it.
func Holds(risks []record.Risk, controls []record.Control) bool {
	for _, v := range Check(risks, controls) {
		if v.Kind == MissingMirror {
			return false
		}
	}
	return true
}
