package record

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// DomainDataset prefixes dataset digests. The version suffix allows the
// digest layout to change without colliding with older values.
const DomainDataset = "riskctl/dataset/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Snapshot converts both collections into a canonical-JSON friendly map.
// Timestamps are included as RFC 3339 strings; the free-text fields are
// included so that any write that changes a record changes the digest.
func Snapshot(risks []Risk, controls []Control) map[string]any {
	rs := make([]any, len(risks))
	for i, r := range risks {
		rs[i] = map[string]any{
			"id":          r.ID,
			"title":       r.Title,
			"description": r.Description,
			"category":    r.Category,
			"owner":       r.Owner,
			"likelihood":  r.Likelihood,
			"impact":      r.Impact,
			"status":      r.Status,
			"controlRefs": r.ControlRefs.Clone(),
			"createdAt":   stamp(r.CreatedAt),
			"updatedAt":   stamp(r.UpdatedAt),
		}
	}
	cs := make([]any, len(controls))
	for i, c := range controls {
		cs[i] = map[string]any{
			"id":          c.ID,
			"reference":   c.Reference,
			"title":       c.Title,
			"description": c.Description,
			"type":        string(c.Type),
			"owner":       c.Owner,
			"status":      c.Status,
			"riskRefs":    c.RiskRefs.Clone(),
			"createdAt":   stamp(c.CreatedAt),
			"updatedAt":   stamp(c.UpdatedAt),
		}
	}
	return map[string]any{"risks": rs, "controls": cs}
}

// DatasetDigest returns a content hash over both collections.
// Two datasets with equal digests are identical record for record, in order.
func DatasetDigest(risks []Risk, controls []Control) (string, error) {
	canonical, err := MarshalCanonical(Snapshot(risks, controls))
	if err != nil {
		return "", fmt.Errorf("dataset digest: %w", err)
	}
	return hashWithDomain(DomainDataset, canonical), nil
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
