// Package filter rejects chat text containing blocklisted words. Matching
// is case-insensitive and bounded at word boundaries, so a blocklist entry
// never fires inside a longer word ("ass" does not match "assistant").
package filter

import (
	"fmt"
	"regexp"
	"strings"
)

// Filter holds the compiled blocklist.
type Filter struct {
	patterns []*regexp.Regexp
}

// New compiles a blocklist. Empty entries are skipped; entries are matched
// literally (metacharacters are quoted).
func New(words []string) (*Filter, error) {
	f := &Filter{}
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(w) + `\b`)
		if err != nil {
			return nil, fmt.Errorf("compile blocklist entry %q: %w", w, err)
		}
		f.patterns = append(f.patterns, re)
	}
	return f, nil
}

// Match reports whether text contains any blocklisted word.
func (f *Filter) Match(text string) bool {
	for _, re := range f.patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// Size returns the number of compiled blocklist entries.
func (f *Filter) Size() int {
	return len(f.patterns)
}
