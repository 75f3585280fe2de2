package reply

import (
	"fmt"
	"regexp"
	"strings"

	"jokebot/internal/platform"
)

// Filter decides which items deserve a joke.
type Filter struct {
	ignored  map[string]struct{}
	phrases  []string
	patterns []*regexp.Regexp
}

// NewFilter builds a filter. Usernames and phrases compare
// case-insensitively; patterns are compiled case-insensitive.
func NewFilter(ignored, phrases, patterns []string) (*Filter, error) {
	f := &Filter{ignored: make(map[string]struct{}, len(ignored))}
	for _, u := range ignored {
		if u = normUser(u); u != "" {
			f.ignored[u] = struct{}{}
		}
	}
	for _, p := range phrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			f.phrases = append(f.phrases, p)
		}
	}
	for i, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("patterns[%d]: %w", i, err)
		}
		f.patterns = append(f.patterns, re)
	}
	return f, nil
}

func normUser(u string) string {
	u = strings.TrimSpace(u)
	u = strings.TrimPrefix(u, "/")
	u = strings.TrimPrefix(u, "u/")
	return strings.ToLower(u)
}

func (f *Filter) Ignored(author string) bool {
	_, ok := f.ignored[normUser(author)]
	return ok
}

// Triggered reports whether body contains a phrase or matches a pattern.
func (f *Filter) Triggered(body string) bool {
	lower := strings.ToLower(body)
	for _, p := range f.phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	for _, re := range f.patterns {
		if re.MatchString(body) {
			return true
		}
	}
	return false
}

func (f *Filter) Match(t platform.Target) bool {
	return !f.Ignored(t.Author) && f.Triggered(t.Body)
}
