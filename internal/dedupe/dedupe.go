// Package dedupe decides whether a candidate title already exists in a
// collection. The heuristic runs on every hover event in the guest, so it
// must stay cheap and allocation-light.
package dedupe

import (
	"strings"
	"sync"
)

const (
	// Titles shorter than this carry too little signal to compare.
	minTitleLength = 3

	// Below this shorter/longer length ratio, containment of a single
	// word is considered coincidental. Multi-word titles skip the gate.
	// The value is empirical; see DESIGN.md before changing it.
	containmentRatio = 0.6
)

// IsDuplicate reports whether candidate matches any of the existing titles,
// either exactly or by significant containment. Comparison is
// case-insensitive and whitespace-trimmed on both sides.
//
// Containment is significant when the contained title is multi-word
// ("Caesar Salad" inside "Caesar Salad with Croutons") or when the two
// lengths are comparable. A single contained word is coincidental unless
// the lengths are close: "Fish" inside "Fish and Chips with Extra Tartar
// Sauce" is not a duplicate.
func IsDuplicate(candidate string, existing []string) bool {
	c := normalize(candidate)
	if len(c) < minTitleLength {
		return false
	}

	for _, title := range existing {
		t := normalize(title)
		if len(t) < minTitleLength {
			continue
		}
		if c == t {
			return true
		}

		shorter, longer := c, t
		if len(shorter) > len(longer) {
			shorter, longer = longer, shorter
		}
		if !strings.Contains(shorter, " ") &&
			float64(len(shorter))/float64(len(longer)) < containmentRatio {
			continue
		}
		if strings.Contains(longer, shorter) {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// TitleSet holds the known titles for a collection. The host replaces the
// contents wholesale whenever its item list changes; the guest receives the
// same list via UPDATE_EXISTING_ITEMS and never mutates it.
type TitleSet struct {
	mu     sync.RWMutex
	titles []string
}

// NewTitleSet creates a TitleSet seeded with the given titles.
func NewTitleSet(titles []string) *TitleSet {
	ts := &TitleSet{}
	ts.Replace(titles)
	return ts
}

// Replace swaps in a new list of titles, normalizing each entry.
func (ts *TitleSet) Replace(titles []string) {
	normalized := make([]string, 0, len(titles))
	for _, t := range titles {
		if n := normalize(t); n != "" {
			normalized = append(normalized, n)
		}
	}
	ts.mu.Lock()
	ts.titles = normalized
	ts.mu.Unlock()
}

// Add inserts a single title if it is not already present.
func (ts *TitleSet) Add(title string) {
	n := normalize(title)
	if n == "" {
		return
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for _, t := range ts.titles {
		if t == n {
			return
		}
	}
	ts.titles = append(ts.titles, n)
}

// Titles returns a copy of the current title list.
func (ts *TitleSet) Titles() []string {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	out := make([]string, len(ts.titles))
	copy(out, ts.titles)
	return out
}

// Contains runs the duplicate heuristic against the current titles.
func (ts *TitleSet) Contains(candidate string) bool {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return IsDuplicate(candidate, ts.titles)
}
