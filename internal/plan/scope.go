package plan

import (
	"sort"

	"github.com/gobwas/glob"
)

// ScopeMatcher answers whether file paths fall inside a package's write
// scope. Deny patterns take precedence over write_allow. Patterns that do
// not compile are ignored here; the validator reports them at plan time.
type ScopeMatcher struct {
	allow []glob.Glob
	deny  []glob.Glob
}

// NewScopeMatcher compiles a scope's write_allow and deny sets.
func NewScopeMatcher(scope Scope) *ScopeMatcher {
	return &ScopeMatcher{
		allow: compileGlobs(scope.WriteAllow),
		deny:  compileGlobs(scope.Deny),
	}
}

func compileGlobs(patterns []string) []glob.Glob {
	out := make([]glob.Glob, 0, len(patterns))
	for _, pat := range patterns {
		g, err := glob.Compile(pat, '/')
		if err != nil {
			continue
		}
		out = append(out, g)
	}
	return out
}

// Allows returns true if the path matches write_allow and no deny pattern.
func (m *ScopeMatcher) Allows(path string) bool {
	for _, g := range m.deny {
		if g.Match(path) {
			return false
		}
	}
	for _, g := range m.allow {
		if g.Match(path) {
			return true
		}
	}
	return false
}

// Violations returns the sorted subset of files outside the write scope.
func (m *ScopeMatcher) Violations(files []string) []string {
	var out []string
	for _, f := range files {
		if !m.Allows(f) {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}
