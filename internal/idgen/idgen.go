// Package idgen generates namespaced, collision-resistant identifiers for
// policies, rules, audit events, and evaluations. IDs are a counter plus a
// random suffix hashed with xxhash into a compact, stable-length token, as
// suggested by spec section 9 ("a counter plus a random suffix suffices").
package idgen

import (
	"fmt"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

var counter uint64

// Namespace identifies the kind of entity an ID refers to.
type Namespace string

const (
	NamespacePolicy     Namespace = "policy"
	NamespaceRule       Namespace = "rule"
	NamespaceEvent      Namespace = "event"
	NamespaceEvaluation Namespace = "eval"
)

// New returns a namespaced ID of the form "<namespace>:<token>".
func New(ns Namespace) string {
	n := atomic.AddUint64(&counter, 1)
	raw := fmt.Sprintf("%d-%s", n, uuid.New().String())
	digest := xxhash.Sum64String(raw)
	return fmt.Sprintf("%s:%016x", ns, digest)
}

// Slugify normalizes a human-readable name into the lowercase,
// dash-separated form used for rule and policy IDs. It is stable across
// runs: the same input always yields the same output.
func Slugify(name string) string {
	out := make([]rune, 0, len(name))
	lastDash := false
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			out = append(out, r)
			lastDash = false
		case r >= 'A' && r <= 'Z':
			out = append(out, r-'A'+'a')
			lastDash = false
		default:
			if !lastDash && len(out) > 0 {
				out = append(out, '-')
				lastDash = true
			}
		}
	}
	for len(out) > 0 && out[len(out)-1] == '-' {
		out = out[:len(out)-1]
	}
	return string(out)
}
