// Package selection resolves which catalog entries a session runs.
package selection

import (
	"strings"
)

// Filter is a gtest-style filter: positive patterns, optionally followed by
// '-' and negative patterns, each list separated by ':'.
type Filter struct {
	Positive []string
	Negative []string
}

// ParseFilter parses expressions like "Basic*:Typed*-*.Flaky".
func ParseFilter(expr string) Filter {
	positive, negative, _ := strings.Cut(strings.TrimSpace(expr), "-")
	return Filter{
		Positive: splitPatterns(positive),
		Negative: splitPatterns(negative),
	}
}

func splitPatterns(list string) []string {
	var out []string
	for _, p := range strings.Split(list, ":") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Match reports whether a qualified name passes the filter. An empty positive
// list matches everything.
func (f Filter) Match(name string) bool {
	if len(f.Positive) > 0 && !matchAny(f.Positive, name) {
		return false
	}
	return !matchAny(f.Negative, name)
}

// String renders the filter back in gtest syntax.
func (f Filter) String() string {
	s := strings.Join(f.Positive, ":")
	if len(f.Negative) > 0 {
		s += "-" + strings.Join(f.Negative, ":")
	}
	return s
}

func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if matchPattern(p, name) {
			return true
		}
	}
	return false
}

// matchPattern implements gtest's wildcard rules: '?' matches one character,
// '*' any run of characters, everything else literally.
func matchPattern(pattern, name string) bool {
	p, n := 0, 0
	starP, starN := -1, 0
	for n < len(name) {
		switch {
		case p < len(pattern) && (pattern[p] == '?' || pattern[p] == name[n]):
			p++
			n++
		case p < len(pattern) && pattern[p] == '*':
			starP, starN = p, n
			p++
		case starP >= 0:
			starN++
			p, n = starP+1, starN
		default:
			return false
		}
	}
	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}
