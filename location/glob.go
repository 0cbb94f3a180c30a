package location

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// Glob is a compiled, case-insensitive wildcard pattern. "*" matches any run
// of characters (including none) and "?" matches exactly one.
type Glob struct {
	pattern string
	g       glob.Glob
}

// CompileGlob compiles pattern. The pattern is upper-cased so matching
// ignores case on both sides.
func CompileGlob(pattern string) (Glob, error) {
	p := strings.ToUpper(strings.TrimSpace(pattern))
	if p == "" {
		return Glob{}, fmt.Errorf("empty glob pattern")
	}
	g, err := glob.Compile(quoteLiterals(p))
	if err != nil {
		return Glob{}, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
	}
	return Glob{pattern: p, g: g}, nil
}

// quoteLiterals escapes every glob metacharacter except the "*" and "?"
// wildcards, so brackets, braces and backslashes match themselves.
func quoteLiterals(p string) string {
	var b strings.Builder
	start := 0
	for i := 0; i < len(p); i++ {
		if p[i] == '*' || p[i] == '?' {
			b.WriteString(glob.QuoteMeta(p[start:i]))
			b.WriteByte(p[i])
			start = i + 1
		}
	}
	b.WriteString(glob.QuoteMeta(p[start:]))
	return b.String()
}

// CompileGlobs compiles every pattern, failing on the first bad one.
func CompileGlobs(patterns []string) ([]Glob, error) {
	globs := make([]Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := CompileGlob(p)
		if err != nil {
			return nil, err
		}
		globs = append(globs, g)
	}
	return globs, nil
}

// Match reports whether s matches the pattern, ignoring case.
func (g Glob) Match(s string) bool {
	if g.g == nil {
		return false
	}
	return g.g.Match(strings.ToUpper(s))
}

func (g Glob) String() string { return g.pattern }

// MatchAny reports whether s matches at least one of globs.
func MatchAny(globs []Glob, s string) bool {
	for _, g := range globs {
		if g.Match(s) {
			return true
		}
	}
	return false
}
