package record

import "time"

// Collection names used by the store.
const (
	CollectionRisks    = "risks"
	CollectionControls = "controls"
	CollectionActivity = "activity"
	CollectionMeta     = "meta"
)

// Kind names one side of the Risk/Control relation.
type Kind string

const (
	KindRisk    Kind = "risk"
	KindControl Kind = "control"
)

// Opposite returns the other side of the relation.
func (k Kind) Opposite() Kind {
	if k == KindRisk {
		return KindControl
	}
	return KindRisk
}

// Collection returns the store collection holding records of this kind.
func (k Kind) Collection() string {
	if k == KindRisk {
		return CollectionRisks
	}
	return CollectionControls
}

// Risk is a risk register entry.
type Risk struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`
	Owner       string    `json:"owner,omitempty"`
	Likelihood  int       `json:"likelihood,omitempty"` // 1-5, 0 = unset
	Impact      int       `json:"impact,omitempty"`     // 1-5, 0 = unset
	Status      string    `json:"status,omitempty"`
	ControlRefs Refs      `json:"controlRefs"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Score is likelihood times impact, 0 when either is unset.
func (r Risk) Score() int {
	return r.Likelihood * r.Impact
}

// Control is a mitigating control.
type Control struct {
	ID          string      `json:"id"`
	Reference   string      `json:"reference"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Type        ControlType `json:"type,omitempty"`
	Owner       string      `json:"owner,omitempty"`
	Status      string      `json:"status,omitempty"`
	RiskRefs    Refs        `json:"riskRefs"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// ControlType classifies how a control mitigates risk.
type ControlType string

const (
	ControlPreventive ControlType = "preventive"
	ControlDetective  ControlType = "detective"
	ControlCorrective ControlType = "corrective"
)

// ValidControlTypes lists the accepted control types. Empty is also accepted.
var ValidControlTypes = map[ControlType]bool{
	ControlPreventive: true,
	ControlDetective:  true,
	ControlCorrective: true,
}

// CreatedKey returns the ordering key for CreatedAt in nanoseconds, with
// unknown as epoch 0.
func CreatedKey(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

// RiskIndex maps risk IDs to their slice position (first occurrence wins).
func RiskIndex(risks []Risk) map[string]int {
	idx := make(map[string]int, len(risks))
	for i, r := range risks {
		if _, ok := idx[r.ID]; !ok {
			idx[r.ID] = i
		}
	}
	return idx
}

// ControlIndex maps control IDs to their slice position (first occurrence wins).
func ControlIndex(controls []Control) map[string]int {
	idx := make(map[string]int, len(controls))
	for i, c := range controls {
		if _, ok := idx[c.ID]; !ok {
			idx[c.ID] = i
		}
	}
	return idx
}

// CloneRisks returns a deep copy of risks, including reference sets.
func CloneRisks(risks []Risk) []Risk {
	out := make([]Risk, len(risks))
	for i, r := range risks {
		r.ControlRefs = r.ControlRefs.Clone()
		out[i] = r
	}
	return out
}

// CloneControls returns a deep copy of controls, including reference sets.
func CloneControls(controls []Control) []Control {
	out := make([]Control, len(controls))
	for i, c := range controls {
		c.RiskRefs = c.RiskRefs.Clone()
		out[i] = c
	}
	return out
}
