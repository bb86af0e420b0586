// internal/basepath/basepath.go
package basepath

import (
	"regexp"
	"strings"
)

var (
	absolutePattern         = regexp.MustCompile(`(?i)^[a-z][a-z0-9+.-]*:`)
	protocolRelativePattern = regexp.MustCompile(`^//`)
)

// Resolver rewrites relative asset paths against the deployment base path.
type Resolver struct {
	base string
}

// New returns a Resolver for base. An empty base means "/"; a missing
// leading slash is added.
func New(base string) Resolver {
	trimmed := strings.Trim(strings.TrimSpace(base), "/")
	if trimmed == "" {
		return Resolver{base: "/"}
	}
	return Resolver{base: "/" + trimmed + "/"}
}

// Base returns the normalized base, always ending in "/".
func (r Resolver) Base() string {
	if r.base == "" {
		return "/"
	}
	return r.base
}

// With prefixes path with the base. Absolute and protocol-relative URLs,
// and paths already under the base, are returned unchanged.
func (r Resolver) With(path string) string {
	if path == "" {
		return ""
	}
	if absolutePattern.MatchString(path) || protocolRelativePattern.MatchString(path) {
		return path
	}

	base := r.Base()
	if strings.HasPrefix(path, base) {
		return path
	}

	return base + strings.TrimPrefix(path, "/")
}

// Join builds a router path under the base, e.g. Join("__story-editor") -> "/app/__story-editor".
func (r Resolver) Join(segment string) string {
	return r.Base() + strings.Trim(segment, "/")
}
