// Package envutil manipulates PATH-style environment values.
package envutil

import (
	"os"
	"strings"
)

// PrependPath returns base with entries inserted in front. Duplicates keep
// their first occurrence, so prepending an entry already in base moves it
// forward rather than listing it twice.
func PrependPath(base string, entries ...string) string {
	separator := string(os.PathListSeparator)
	seen := map[string]struct{}{}
	out := make([]string, 0, len(entries)+8)

	appendPath := func(path string) {
		for _, entry := range strings.Split(path, separator) {
			entry = strings.TrimSpace(entry)
			if entry == "" {
				continue
			}
			if _, exists := seen[entry]; exists {
				continue
			}
			seen[entry] = struct{}{}
			out = append(out, entry)
		}
	}

	for _, entry := range entries {
		appendPath(entry)
	}
	appendPath(base)

	return strings.Join(out, separator)
}

// Value extracts key from an environ-style list, honoring the last
// occurrence like the libc environment does.
func Value(env []string, key string) string {
	if key == "" {
		return ""
	}
	prefix := key + "="
	var value string
	for _, entry := range env {
		if strings.HasPrefix(entry, prefix) {
			value = strings.TrimPrefix(entry, prefix)
		}
	}
	return value
}

// Set replaces or appends key in an environ-style list.
func Set(env []string, key, value string) []string {
	if key == "" {
		return env
	}
	prefix := key + "="
	out := make([]string, 0, len(env)+1)
	for _, entry := range env {
		if strings.HasPrefix(entry, prefix) {
			continue
		}
		out = append(out, entry)
	}
	return append(out, prefix+value)
}
