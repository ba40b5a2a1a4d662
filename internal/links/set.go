package links

import (
	"sort"
)

// ID identifies an owner or a link target. Zero is never linked.
type ID uint64

// Set is a collection of distinct non-zero IDs.
type Set map[ID]struct{}

// NewSet collapses duplicates and drops zero IDs.
func NewSet(ids ...ID) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		s[id] = struct{}{}
	}
	return s
}

func (s Set) Has(id ID) bool {
	_, ok := s[id]
	return ok
}

func (s Set) Len() int { return len(s) }

// Sorted returns the members in ascending order.
func (s Set) Sorted() []ID {
	out := make([]ID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s Set) Equal(o Set) bool {
	if len(s) != len(o) {
		return false
	}
	for id := range s {
		if !o.Has(id) {
			return false
		}
	}
	return true
}

func (s Set) clone() Set {
	out := make(Set, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// Delta computes toAdd = desired - persisted and toRemove = persisted - desired.
// Both results are sorted and never contain zero.
func Delta(desired, persisted Set) (toAdd, toRemove []ID) {
	for id := range desired {
		if id != 0 && !persisted.Has(id) {
			toAdd = append(toAdd, id)
		}
	}
	for id := range persisted {
		if id != 0 && !desired.Has(id) {
			toRemove = append(toRemove, id)
		}
	}
	sort.Slice(toAdd, func(i, j int) bool { return toAdd[i] < toAdd[j] })
	sort.Slice(toRemove, func(i, j int) bool { return toRemove[i] < toRemove[j] })
	return toAdd, toRemove
}
