package plan

import (
	"fmt"
	"regexp"
	"strings"
)

// PauseSentinelKey returns the reserved lock key that, while held, signals
// every worker on the feature to stop acquiring new locks.
func PauseSentinelKey(featureID string) string {
	return fmt.Sprintf("feature:%s:pause", featureID)
}

// lockNamespace describes one namespace of the logical lock-key grammar.
type lockNamespace struct {
	// prefix is the literal namespace prefix a key must start with.
	prefix string

	// pattern is the full-key shape required once the namespace matched.
	pattern *regexp.Regexp
}

// Namespaces are ordered arbitrarily; matching always selects the longest
// matching prefix, so "db:schema:" wins over a hypothetical shorter "db:"
// namespace for keys that carry both prefixes.
var lockNamespaces = []lockNamespace{
	{prefix: "api:", pattern: regexp.MustCompile(`^api:[a-z][a-z0-9._/{}-]*$`)},
	{prefix: "db:schema:", pattern: regexp.MustCompile(`^db:schema:[a-z][a-z0-9_]*$`)},
	{prefix: "db:migration-slot", pattern: regexp.MustCompile(`^db:migration-slot$`)},
	{prefix: "event:", pattern: regexp.MustCompile(`^event:[a-z][a-z0-9._-]*$`)},
	{prefix: "flag:", pattern: regexp.MustCompile(`^flag:[a-z][a-z0-9_-]*$`)},
	{prefix: "env:", pattern: regexp.MustCompile(`^env:[A-Za-z][A-Za-z0-9_-]*$`)},
	{prefix: "contract:", pattern: regexp.MustCompile(`^contract:[a-z][a-z0-9._-]*$`)},
	{prefix: "feature:", pattern: regexp.MustCompile(`^feature:[a-z][a-z0-9-]*:pause$`)},
}

// CanonicalizeLockKey validates a logical lock key against the namespace
// grammar. It selects the namespace with the longest matching prefix, then
// checks the key against that namespace's pattern. The two failure modes
// are reported distinctly: a key whose namespace is unknown, and a key in a
// known namespace that does not satisfy its shape.
func CanonicalizeLockKey(key string) (namespace string, err error) {
	var best *lockNamespace
	for i := range lockNamespaces {
		ns := &lockNamespaces[i]
		if !strings.HasPrefix(key, ns.prefix) {
			continue
		}
		if best == nil || len(ns.prefix) > len(best.prefix) {
			best = ns
		}
	}
	if best == nil {
		return "", fmt.Errorf("lock key %q does not belong to any known namespace", key)
	}
	if !best.pattern.MatchString(key) {
		return "", fmt.Errorf("lock key %q is malformed for namespace %q", key, best.prefix)
	}
	return best.prefix, nil
}

// LockNamespaces returns the known namespace prefixes, for diagnostics.
func LockNamespaces() []string {
	prefixes := make([]string, 0, len(lockNamespaces))
	for i := range lockNamespaces {
		prefixes = append(prefixes, lockNamespaces[i].prefix)
	}
	return prefixes
}
