package models

import (
	"path"
	"regexp"
)

// UMCCR naming conventions embed subject and library ids in file names.
var (
	subjectPattern = regexp.MustCompile(`SBJ\d{5}`)
	libraryPattern = regexp.MustCompile(`L\d{7}`)
)

// SubjectID extracts the subject identifier from a fingerprinted file URL.
// When several candidates appear the last one wins, as it is the one closest
// to the file name.
func SubjectID(url string) (string, bool) {
	return lastMatch(subjectPattern, url)
}

// LibraryID extracts the library identifier from a fingerprinted file URL.
func LibraryID(url string) (string, bool) {
	return lastMatch(libraryPattern, url)
}

// Basename returns the final path element of a file URL.
func Basename(url string) string {
	return path.Base(url)
}

func lastMatch(re *regexp.Regexp, s string) (string, bool) {
	matches := re.FindAllString(s, -1)
	if len(matches) == 0 {
		return "", false
	}
	return matches[len(matches)-1], true
}

// identityKey is the grouping identity of a file: its subject id, or the file
// itself when no subject can be derived so that it always stands alone.
func identityKey(url string) string {
	if subject, ok := SubjectID(url); ok {
		return subject
	}
	return url
}

// HasAnonymous reports whether any member lacks a derivable subject id.
func (r ResultSet) HasAnonymous() bool {
	for _, rec := range r.Records {
		if _, ok := SubjectID(rec.File); !ok {
			return true
		}
	}
	return false
}

// Subjects returns the distinct identities of the members of r, in first-seen
// order. Members without a subject id contribute their own file name.
func (r ResultSet) Subjects() []string {
	seen := make(map[string]struct{}, len(r.Records))
	var subjects []string
	for _, rec := range r.Records {
		key := identityKey(rec.File)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		subjects = append(subjects, key)
	}
	return subjects
}
