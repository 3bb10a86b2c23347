// Copyright 2026 Ardent Robotics Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package lease

// UseStatus is the closed set of outcomes of validating a lease against
// registry state. The zero value is reserved for internal faults and is
// never produced by a successful validation.
type UseStatus string

const (
	// UseStatusUnknown is reserved; callers receiving it should assume
	// nothing about lease state and reacquire.
	UseStatusUnknown UseStatus = ""

	// UseStatusOK means the lease is the active one, or a valid delegation
	// of it.
	UseStatusOK UseStatus = "ok"

	// UseStatusInvalidLease means the lease does not match the active
	// lease and is not ordered below it either: typically a delegation
	// whose parent has since been superseded, or no lease is active at
	// all.
	UseStatusInvalidLease UseStatus = "invalid-lease"

	// UseStatusOlder means the lease compares strictly below the active
	// lease; the holder has been superseded by an Acquire or Take.
	UseStatusOlder UseStatus = "older"

	// UseStatusWrongEpoch means the lease was issued by a different
	// registry incarnation.
	UseStatusWrongEpoch UseStatus = "wrong-epoch"

	// UseStatusUnmanaged means the lease names a resource this registry
	// does not manage.
	UseStatusUnmanaged UseStatus = "unmanaged"
)

// UseResult explains the outcome of validating a lease. Besides the
// status it carries the authoritative view of the resource so that a
// rejected caller can self-heal without a follow-up listing.
type UseResult struct {
	// Status is the validation outcome.
	Status UseStatus

	// Owner is the current holder of the governing lease, when one exists.
	Owner Owner

	// Attempted echoes the lease that was validated.
	Attempted Lease

	// Previous is the lease that was active for the resource when the
	// validation started, if any.
	Previous *Lease

	// Latest is the most recent lease known for the resource after the
	// validation completed, if any.
	Latest *Lease
}

// Info is a read-only snapshot of one resource's lease state.
type Info struct {
	// Resource names the resource.
	Resource string

	// Lease is the active lease, or nil if the resource is unclaimed.
	Lease *Lease

	// Owner is the active lease's holder; zero when unclaimed.
	Owner Owner

	// Stale is true when the holder has not proven liveness within the
	// configured window. A stale lease no longer blocks Acquire.
	Stale bool
}

// Liveness is the keep-alive collaborator consulted by the registry. The
// registry never runs timers of its own: it reports successful retains and
// uses via Pinged, and defers the staleness verdict entirely to the
// implementation.
type Liveness interface {
	// IsStale reports whether the resource's holder has failed to prove
	// liveness within the window.
	IsStale(resource string) bool

	// Pinged records a proof of liveness for the resource.
	Pinged(resource string)
}

// Authority reports, per resource, whether this registry instance is the
// one entitled to arbitrate it. A non-authoritative registry fails closed
// rather than forwarding.
type Authority interface {
	Authoritative(resource string) bool
}

// AuthorityFunc adapts a function to the Authority interface.
type AuthorityFunc func(resource string) bool

// Authoritative is part of the Authority interface.
func (f AuthorityFunc) Authoritative(resource string) bool {
	return f(resource)
}
