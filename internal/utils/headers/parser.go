// Package headers parses "Key: Value" strings from repeated --header flags,
// used to reach menus behind cookies or custom auth.
package headers

import "strings"

// Parse converts header strings into a map. Entries without a colon are
// skipped.
func Parse(h []string) map[string]string {
	m := make(map[string]string, len(h))
	for _, hdr := range h {
		parts := strings.SplitN(hdr, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		if key == "" {
			continue
		}
		m[key] = strings.TrimSpace(parts[1])
	}
	return m
}

// Merge overlays extra onto base, returning a new map. Keys in extra win.
func Merge(base, extra map[string]string) map[string]string {
	m := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		m[k] = v
	}
	for k, v := range extra {
		m[k] = v
	}
	return m
}
