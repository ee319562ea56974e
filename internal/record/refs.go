package record

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Refs is a set of identifiers kept as an ordered slice.
// Order is insignificant for equality; insertion order is preserved so the
// stored document stays stable across no-op rewrites.
type Refs []string

// Has reports whether id is in the set.
func (r Refs) Has(id string) bool {
	for _, v := range r {
		if v == id {
			return true
		}
	}
	return false
}

// Add appends id if absent and reports whether the set changed.
func (r *Refs) Add(id string) bool {
	if r.Has(id) {
		return false
	}
	*r = append(*r, id)
	return true
}

// Remove deletes every occurrence of id and reports whether the set changed.
func (r *Refs) Remove(id string) bool {
	if !r.Has(id) {
		return false
	}
	out := make(Refs, 0, len(*r))
	for _, v := range *r {
		if v != id {
			out = append(out, v)
		}
	}
	*r = out
	return true
}

// Replace maps every entry through mapping and reports whether any changed.
func (r Refs) Replace(mapping map[string]string) bool {
	changed := false
	for i, v := range r {
		if nv, ok := mapping[v]; ok && nv != v {
			r[i] = nv
			changed = true
		}
	}
	return changed
}

// Clone returns a copy; a nil set clones to an empty, non-nil set.
func (r Refs) Clone() Refs {
	out := make(Refs, len(r))
	copy(out, r)
	return out
}

// Equal reports set equality, ignoring order and duplicates.
func (r Refs) Equal(other Refs) bool {
	a := make(map[string]struct{}, len(r))
	for _, v := range r {
		a[v] = struct{}{}
	}
	b := make(map[string]struct{}, len(other))
	for _, v := range other {
		b[v] = struct{}{}
	}
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// NormalizeRefs cleans a user-supplied identifier list: NFC-normalizes and
// trims each entry, drops empties and keeps the first occurrence of
// duplicates. The result is never nil.
func NormalizeRefs(ids []string) Refs {
	out := make(Refs, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(norm.NFC.String(id))
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
