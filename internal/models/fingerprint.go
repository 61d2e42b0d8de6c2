// Package models defines the data structures shared by the Holmes grouping pipeline.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// MatchRecord is one row of a somalier check result: the queried fingerprint
// was compared to File and scored Relatedness over N informative sites.
type MatchRecord struct {
	File          string  `json:"file"`
	N             int     `json:"n"`
	Relatedness   float64 `json:"relatedness"`
	SharedHets    int     `json:"shared_hets"`
	SharedHomAlts int     `json:"shared_hom_alts"`
}

// ResultKind discriminates the three shapes a check result can take.
type ResultKind int

const (
	// ResultEmpty means the check matched nothing, not even the queried file.
	ResultEmpty ResultKind = iota
	// ResultSelfOnly means the only match was the queried file itself.
	ResultSelfOnly
	// ResultGroup means the queried file matched one or more peers.
	ResultGroup
)

// String returns the kind name used in logs.
func (k ResultKind) String() string {
	switch k {
	case ResultEmpty:
		return "empty"
	case ResultSelfOnly:
		return "self"
	case ResultGroup:
		return "group"
	default:
		return fmt.Sprintf("ResultKind(%d)", int(k))
	}
}

// ResultSet is the raw output of one check execution for one queried file.
type ResultSet struct {
	Query   string
	Records []MatchRecord
}

// NewResultSet wraps the records returned for query.
func NewResultSet(query string, records []MatchRecord) ResultSet {
	return ResultSet{Query: query, Records: records}
}

// ParseResultSet decodes a check execution output payload. A JSON null decodes
// to an empty result set; anything that is not an array of records is an error.
func ParseResultSet(query string, payload []byte) (ResultSet, error) {
	var records []MatchRecord
	if err := json.Unmarshal(payload, &records); err != nil {
		return ResultSet{}, fmt.Errorf("decode result set for %s: %w", query, err)
	}
	for i, r := range records {
		if r.File == "" {
			return ResultSet{}, fmt.Errorf("decode result set for %s: record %d has no file", query, i)
		}
	}
	return NewResultSet(query, records), nil
}

// Kind classifies the result set. A singleton that is not the queried file is
// treated as a group so that it is examined rather than dropped.
func (r ResultSet) Kind() ResultKind {
	switch {
	case len(r.Records) == 0:
		return ResultEmpty
	case len(r.Records) == 1 && r.Records[0].File == r.Query:
		return ResultSelfOnly
	default:
		return ResultGroup
	}
}

// Len returns the number of match records.
func (r ResultSet) Len() int {
	return len(r.Records)
}

// Files returns the member file set.
func (r ResultSet) Files() map[string]struct{} {
	files := make(map[string]struct{}, len(r.Records))
	for _, rec := range r.Records {
		files[rec.File] = struct{}{}
	}
	return files
}

// ExpectedMatch records a group whose members all share one subject.
type ExpectedMatch struct {
	SubjectID string `json:"subjectId"`
	Count     int    `json:"count"`
}

// Fingerprint is one fingerprint object in the store. URL is the sequencing
// file the fingerprint was computed from, decoded from the object key.
type Fingerprint struct {
	Key          string    `json:"key"`
	URL          string    `json:"url"`
	LastModified time.Time `json:"lastModified"`
}
