package domain

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ListKind selects the allow-list or the block-list
type ListKind int

const (
	AllowList ListKind = iota
	BlockList
)

func (k ListKind) String() string {
	switch k {
	case AllowList:
		return "allow"
	case BlockList:
		return "block"
	}
	return fmt.Sprintf("list(%d)", int(k))
}

// ParseListKind accepts "allow"/"block" and the --allow/--block flag forms
func ParseListKind(s string) (ListKind, error) {
	switch strings.TrimLeft(strings.ToLower(s), "-") {
	case "allow", "allowlist":
		return AllowList, nil
	case "block", "blocklist":
		return BlockList, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownList, s)
}

// ListEntry is one pattern of a list
type ListEntry struct {
	Pattern string `json:"pattern"`
	Enabled bool   `json:"enabled"`
}

// ListStore holds the allow-list and block-list.
// Every operation takes the store lock for a short, I/O-free section.
// Removed patterns leave a tombstone so seeding does not bring them back.
type ListStore struct {
	mu      sync.Mutex
	lists   map[ListKind]map[string]bool
	removed map[ListKind]map[string]bool
}

// NewListStore creates an empty store
func NewListStore() *ListStore {
	return &ListStore{
		lists: map[ListKind]map[string]bool{
			AllowList: make(map[string]bool),
			BlockList: make(map[string]bool),
		},
		removed: map[ListKind]map[string]bool{
			AllowList: make(map[string]bool),
			BlockList: make(map[string]bool),
		},
	}
}

// Contains reports whether any enabled pattern of the list is a substring of
// the subject or of its last path component
func (s *ListStore) Contains(kind ListKind, subject string) bool {
	if subject == "" {
		return false
	}
	base := LastPathComponent(subject)

	s.mu.Lock()
	defer s.mu.Unlock()

	for pattern, enabled := range s.lists[kind] {
		if !enabled {
			continue
		}
		if strings.Contains(subject, pattern) || strings.Contains(base, pattern) {
			return true
		}
	}
	return false
}

// Insert adds an enabled pattern. Re-inserting a present pattern is a no-op
// and leaves its enabled flag alone.
func (s *ListStore) Insert(kind ListKind, pattern string) (bool, error) {
	if pattern == "" {
		return false, ErrEmptyPattern
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list, ok := s.lists[kind]
	if !ok {
		return false, fmt.Errorf("%w: %d", ErrUnknownList, int(kind))
	}
	delete(s.removed[kind], pattern)
	if _, exists := list[pattern]; exists {
		return false, nil
	}
	list[pattern] = true
	return true, nil
}

// Put sets a pattern with an explicit enabled flag (used when restoring persisted lists)
func (s *ListStore) Put(kind ListKind, entry ListEntry) error {
	if entry.Pattern == "" {
		return ErrEmptyPattern
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list, ok := s.lists[kind]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownList, int(kind))
	}
	delete(s.removed[kind], entry.Pattern)
	list[entry.Pattern] = entry.Enabled
	return nil
}

// Remove deletes a pattern, reporting whether it was present. The pattern
// stays tombstoned until it is inserted again.
func (s *ListStore) Remove(kind ListKind, pattern string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.lists[kind]
	if _, exists := list[pattern]; !exists {
		return false
	}
	delete(list, pattern)
	s.removed[kind][pattern] = true
	return true
}

// Removed returns the sorted tombstones of a list
func (s *ListStore) Removed(kind ListKind) []string {
	s.mu.Lock()
	patterns := make([]string, 0, len(s.removed[kind]))
	for pattern := range s.removed[kind] {
		patterns = append(patterns, pattern)
	}
	s.mu.Unlock()

	sort.Strings(patterns)
	return patterns
}

// Bury restores tombstones, dropping any live entry with the same pattern
func (s *ListStore) Bury(kind ListKind, patterns []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed, ok := s.removed[kind]
	if !ok {
		return
	}
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		delete(s.lists[kind], pattern)
		removed[pattern] = true
	}
}

// SetEnabled toggles an existing pattern
func (s *ListStore) SetEnabled(kind ListKind, pattern string, enabled bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.lists[kind]
	if _, exists := list[pattern]; !exists {
		return false
	}
	list[pattern] = enabled
	return true
}

// Snapshot returns a sorted copy of the list
func (s *ListStore) Snapshot(kind ListKind) []ListEntry {
	s.mu.Lock()
	entries := make([]ListEntry, 0, len(s.lists[kind]))
	for pattern, enabled := range s.lists[kind] {
		entries = append(entries, ListEntry{Pattern: pattern, Enabled: enabled})
	}
	s.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Pattern < entries[j].Pattern
	})
	return entries
}

// Len returns the number of patterns in a list
func (s *ListStore) Len(kind ListKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lists[kind])
}

// Seed inserts every pattern idempotently and returns how many were new.
// Tombstoned patterns are skipped.
func (s *ListStore) Seed(kind ListKind, patterns []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, ok := s.lists[kind]
	if !ok {
		return 0
	}
	added := 0
	for _, pattern := range patterns {
		if pattern == "" || s.removed[kind][pattern] {
			continue
		}
		if _, exists := list[pattern]; exists {
			continue
		}
		list[pattern] = true
		added++
	}
	return added
}

// LastPathComponent splits on both separators so Windows paths behave the
// same on every host
func LastPathComponent(path string) string {
	if i := strings.LastIndexAny(path, `\/`); i >= 0 {
		return path[i+1:]
	}
	return path
}
