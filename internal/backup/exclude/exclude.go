package exclude

import (
	"strings"
	"sync"
)

// Set holds an ordered collection of path prefixes to skip during a
// backup. Paths are compared case-sensitively against drive-relative
// paths with forward slashes.
type Set struct {
	mu       sync.RWMutex
	prefixes []string
}

// New creates an exclusion set from the given prefixes.
func New(prefixes ...string) *Set {
	s := &Set{}
	for _, p := range prefixes {
		s.Add(p)
	}
	return s
}

// Normalize converts a path to the canonical comparison form: forward
// slashes, no leading or trailing slash.
func Normalize(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	return strings.Trim(path, "/")
}

// Add appends a prefix to the set. Duplicates are ignored.
func (s *Set) Add(prefix string) {
	normalized := Normalize(prefix)
	if normalized == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.prefixes {
		if existing == normalized {
			return
		}
	}
	s.prefixes = append(s.prefixes, normalized)
}

// Remove deletes a prefix from the set.
func (s *Set) Remove(prefix string) {
	normalized := Normalize(prefix)

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.prefixes {
		if existing == normalized {
			s.prefixes = append(s.prefixes[:i], s.prefixes[i+1:]...)
			return
		}
	}
}

// Clear removes all prefixes.
func (s *Set) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefixes = nil
}

// Entries returns the prefixes in insertion order.
func (s *Set) Entries() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.prefixes...)
}

// IsExcluded reports whether path falls under any excluded prefix. A
// prefix excludes the path itself and everything beneath it, but not
// siblings that merely share leading characters.
func (s *Set) IsExcluded(path string) bool {
	normalized := Normalize(path)
	if normalized == "" {
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, prefix := range s.prefixes {
		if normalized == prefix || strings.HasPrefix(normalized, prefix+"/") {
			return true
		}
	}
	return false
}
