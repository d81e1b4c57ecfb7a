package federation

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/gleenn/diaspora/internal/errs"
	"github.com/gleenn/diaspora/internal/handle"
)

var (
	defaultLocalpart = regexp.MustCompile(`^[a-z0-9_.+-]+$`)
	hostLabels       = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?(\.[a-z0-9]([a-z0-9-]*[a-z0-9])?)*$`)
)

// Policy is the identifier grammar a handle must satisfy before a remote pod
// is contacted for it. Handle normalization only checks shape.
type Policy struct {
	Localpart         *regexp.Regexp // nil means the default grammar
	MaxLength         int            // 0 means 255
	RequireDottedHost bool
	DenyHosts         []string
}

// DefaultPolicy accepts lowercase ASCII localparts on dotted hosts.
func DefaultPolicy() Policy {
	return Policy{RequireDottedHost: true}
}

// Check returns an error wrapping errs.ErrInvalidIdentifier when h is rejected.
func (p Policy) Check(h handle.Handle) error {
	maxLen := p.MaxLength
	if maxLen <= 0 {
		maxLen = 255
	}
	if len(h) > maxLen {
		return fmt.Errorf("%w: %q longer than %d", errs.ErrInvalidIdentifier, h, maxLen)
	}
	lp := p.Localpart
	if lp == nil {
		lp = defaultLocalpart
	}
	if !lp.MatchString(h.Local()) {
		return fmt.Errorf("%w: %q has a disallowed localpart", errs.ErrInvalidIdentifier, h)
	}
	host := h.Host()
	if !hostLabels.MatchString(host) {
		return fmt.Errorf("%w: %q has a disallowed host", errs.ErrInvalidIdentifier, h)
	}
	if p.RequireDottedHost && !strings.Contains(host, ".") {
		return fmt.Errorf("%w: %q host is not a domain name", errs.ErrInvalidIdentifier, h)
	}
	if slices.Contains(p.DenyHosts, host) {
		return fmt.Errorf("%w: host %q is denied", errs.ErrInvalidIdentifier, host)
	}
	return nil
}
