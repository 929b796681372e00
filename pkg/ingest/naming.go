package ingest

import (
	"fmt"
	"path"
	"strings"
)

// UniqueRunName returns name, or the first "name (n)" not in taken.
func UniqueRunName(name string, taken []string) string {
	used := make(map[string]struct{}, len(taken))
	for _, t := range taken {
		used[t] = struct{}{}
	}

	if _, ok := used[name]; !ok {
		return name
	}

	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s (%d)", name, n)
		if _, ok := used[candidate]; !ok {
			return candidate
		}
	}
}

// DefaultRunName derives a run name from a file path or URL: the last
// path element without query string or fragment.
func DefaultRunName(source string) string {
	if i := strings.IndexAny(source, "?#"); i >= 0 {
		source = source[:i]
	}

	name := path.Base(strings.TrimRight(source, "/"))
	if name == "." || name == "/" || name == "" {
		return source
	}

	return name
}
