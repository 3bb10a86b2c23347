// Copyright 2026 Ardent Robotics Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package lease

import (
	"github.com/juju/errors"
)

// ErrClaimDenied indicates that an Acquire failed because an active,
// non-stale lease already covers the resource (or an ancestor or descendant
// of it held by someone else). Callers should retry later, or Take.
var ErrClaimDenied = errors.New("resource already claimed")

// ErrInvalidResource indicates that the named resource is not part of the
// registry's resource tree.
var ErrInvalidResource = errors.New("invalid resource")

// ErrNotAuthoritative indicates that this registry instance does not
// arbitrate the named resource. The registry never forwards; callers must
// locate the authoritative service themselves.
var ErrNotAuthoritative = errors.New("not the authoritative service")

// ErrNotActive indicates that a Return supplied a lease that is not the
// resource's current active lease, so nothing was invalidated.
var ErrNotActive = errors.New("not the active lease")

// IsClaimDenied reports whether err indicates a denied claim.
func IsClaimDenied(err error) bool {
	return errors.Cause(err) == ErrClaimDenied
}

// IsInvalidResource reports whether err indicates an unknown resource.
func IsInvalidResource(err error) bool {
	return errors.Cause(err) == ErrInvalidResource
}

// IsNotAuthoritative reports whether err indicates a non-authoritative
// registry.
func IsNotAuthoritative(err error) bool {
	return errors.Cause(err) == ErrNotAuthoritative
}

// IsNotActive reports whether err indicates a Return of a superseded or
// unknown lease.
func IsNotActive(err error) bool {
	return errors.Cause(err) == ErrNotActive
}
