// Package handle parses and canonicalizes account identifiers of the form
// localpart@host. Canonical handles are trimmed and lowercased; comparison of
// two handles is plain string equality on the canonical form.
package handle

import (
	"fmt"
	"strings"

	"github.com/gleenn/diaspora/internal/errs"
)

// Separator splits the localpart from the home host.
const Separator = "@"

// Handle is a canonical account identifier. The zero value is not valid.
type Handle string

// Normalize trims, lowercases and shape-checks raw. It does not enforce an
// address grammar beyond a single separator and non-empty parts; stricter
// rules belong to the federation fetch boundary.
func Normalize(raw string) (Handle, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return "", fmt.Errorf("%w: empty", errs.ErrInvalidIdentifier)
	}
	if strings.Count(s, Separator) != 1 {
		return "", fmt.Errorf("%w: %q must contain exactly one %q", errs.ErrInvalidIdentifier, s, Separator)
	}
	local, host, _ := strings.Cut(s, Separator)
	if local == "" || host == "" {
		return "", fmt.Errorf("%w: %q has an empty part", errs.ErrInvalidIdentifier, s)
	}
	if strings.ContainsAny(local, " \t\r\n/") {
		return "", fmt.Errorf("%w: %q has a malformed localpart", errs.ErrInvalidIdentifier, s)
	}
	if strings.Contains(host, ":") {
		return "", fmt.Errorf("%w: %q carries a port", errs.ErrInvalidIdentifier, s)
	}
	if strings.ContainsAny(host, " \t\r\n/") || strings.HasPrefix(host, ".") || strings.HasSuffix(host, ".") {
		return "", fmt.Errorf("%w: %q has a malformed host", errs.ErrInvalidIdentifier, s)
	}
	return Handle(s), nil
}

// ForLocalUser derives the handle of a local user from the chosen username and
// the pod's public host.
func ForLocalUser(username, podHost string) (Handle, error) {
	return Normalize(strings.TrimSpace(username) + Separator + strings.TrimSpace(podHost))
}

// Local returns the part before the separator.
func (h Handle) Local() string {
	l, _, _ := strings.Cut(string(h), Separator)
	return l
}

// Host returns the home pod host.
func (h Handle) Host() string {
	_, host, _ := strings.Cut(string(h), Separator)
	return host
}

func (h Handle) String() string { return string(h) }

// IsZero reports whether h is the empty handle.
func (h Handle) IsZero() bool { return h == "" }
