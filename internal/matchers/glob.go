// Package matchers implements the wildcard matching shared by the
// ignore-address list and the attachment exclusion list.
package matchers

import (
	"regexp"
	"strings"
	"sync"
)

var (
	mu       sync.Mutex
	compiled = map[string]*regexp.Regexp{}
)

// Glob reports whether value matches pattern. Matching is case-insensitive,
// anchored to the full string, and `*` matches any run of characters; all
// other characters match literally. Invalid patterns never match.
func Glob(pattern, value string) bool {
	re := compile(pattern)
	if re == nil {
		return false
	}
	return re.MatchString(value)
}

// AnyGlob reports whether value matches at least one pattern.
func AnyGlob(patterns []string, value string) bool {
	for _, p := range patterns {
		if Glob(p, value) {
			return true
		}
	}
	return false
}

func compile(pattern string) *regexp.Regexp {
	mu.Lock()
	defer mu.Unlock()

	if re, ok := compiled[pattern]; ok {
		return re
	}

	parts := strings.Split(pattern, "*")
	for i := range parts {
		parts[i] = regexp.QuoteMeta(parts[i])
	}
	expr := `(?i)\A` + strings.Join(parts, `.*`) + `\z`

	re, err := regexp.Compile(expr)
	if err != nil {
		re = nil
	}
	compiled[pattern] = re
	return re
}
