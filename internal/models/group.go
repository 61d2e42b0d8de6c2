package models

import "iter"

// MatchAttributes is a match record enriched with the identities derived from
// its file name. The file itself is the key it is stored under.
type MatchAttributes struct {
	N             int
	Relatedness   float64
	SharedHets    int
	SharedHomAlts int

	Subject string // empty when the naming convention did not match
	Library string // empty when the naming convention did not match
	Base    string
}

// MatchGroup is a reduced cluster of mutually related fingerprints. It is
// immutable once built.
type MatchGroup struct {
	keys    []string
	members map[string]MatchAttributes
}

// NewMatchGroup builds a group from the records of one canonical result set,
// keeping record order. Duplicate files keep their first record.
func NewMatchGroup(records []MatchRecord) MatchGroup {
	g := MatchGroup{
		keys:    make([]string, 0, len(records)),
		members: make(map[string]MatchAttributes, len(records)),
	}
	for _, rec := range records {
		if _, ok := g.members[rec.File]; ok {
			continue
		}
		subject, _ := SubjectID(rec.File)
		library, _ := LibraryID(rec.File)
		g.keys = append(g.keys, rec.File)
		g.members[rec.File] = MatchAttributes{
			N:             rec.N,
			Relatedness:   rec.Relatedness,
			SharedHets:    rec.SharedHets,
			SharedHomAlts: rec.SharedHomAlts,
			Subject:       subject,
			Library:       library,
			Base:          Basename(rec.File),
		}
	}
	return g
}

// Len returns the number of members.
func (g MatchGroup) Len() int {
	return len(g.keys)
}

// Keys returns the member files in insertion order.
func (g MatchGroup) Keys() []string {
	return append([]string(nil), g.keys...)
}

// Get returns the attributes of one member.
func (g MatchGroup) Get(file string) (MatchAttributes, bool) {
	attrs, ok := g.members[file]
	return attrs, ok
}

// All iterates members in insertion order.
func (g MatchGroup) All() iter.Seq2[string, MatchAttributes] {
	return func(yield func(string, MatchAttributes) bool) {
		for _, k := range g.keys {
			if !yield(k, g.members[k]) {
				return
			}
		}
	}
}

// SubjectCount returns the number of distinct identities in the group, where
// members without a subject id count individually.
func (g MatchGroup) SubjectCount() int {
	seen := make(map[string]struct{}, len(g.keys))
	for _, k := range g.keys {
		if s := g.members[k].Subject; s != "" {
			seen[s] = struct{}{}
		} else {
			seen[k] = struct{}{}
		}
	}
	return len(seen)
}
