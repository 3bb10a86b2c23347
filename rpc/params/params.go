// Copyright 2026 Ardent Robotics Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package params defines the wire shapes of the warden API. Each of the
// five lease operations is a request/response pair; every response carries
// the currently-known authoritative lease state so clients can self-heal
// without a follow-up listing.
package params

import (
	"github.com/ardent-robotics/warden/core/lease"
	"github.com/ardent-robotics/warden/core/resource"
)

// Status codes. Each operation's set of possible codes is closed; the
// reserved unknown code is never produced for a success and means "assume
// nothing, reacquire".
const (
	CodeUnknown                = "unknown"
	CodeOK                     = "ok"
	CodeResourceAlreadyClaimed = "resource already claimed"
	CodeInvalidResource        = "invalid resource"
	CodeNotAuthoritative       = "not authoritative service"
	CodeNotActiveLease         = "not active lease"
	CodeInvalidLease           = "invalid lease"
	CodeOlder                  = "older"
	CodeWrongEpoch             = "wrong epoch"
	CodeUnmanaged              = "unmanaged"
)

// Lease is the wire form of core/lease.Lease.
type Lease struct {
	Resource    string   `json:"resource"`
	Epoch       string   `json:"epoch"`
	Sequence    []uint64 `json:"sequence"`
	ClientNames []string `json:"client-names,omitempty"`
}

// LeaseOwner is the wire form of core/lease.Owner.
type LeaseOwner struct {
	ClientName string `json:"client-name"`
	UserName   string `json:"user-name,omitempty"`
}

// LeaseUseResult is the wire form of core/lease.UseResult.
type LeaseUseResult struct {
	Status           string      `json:"status"`
	Owner            *LeaseOwner `json:"owner,omitempty"`
	AttemptedLease   *Lease      `json:"attempted-lease,omitempty"`
	PreviousLease    *Lease      `json:"previous-lease,omitempty"`
	LatestKnownLease *Lease      `json:"latest-known-lease,omitempty"`
}

// AcquireLeaseRequest asks for a new lease on a resource. The owner block
// is self-declared identity; warden does no authentication.
type AcquireLeaseRequest struct {
	Resource string     `json:"resource"`
	Owner    LeaseOwner `json:"owner"`
}

// AcquireLeaseResponse reports the outcome. On a refusal Lease and
// LeaseOwner describe the blocking holder, when there is one.
type AcquireLeaseResponse struct {
	Status     string      `json:"status"`
	Lease      *Lease      `json:"lease,omitempty"`
	LeaseOwner *LeaseOwner `json:"lease-owner,omitempty"`
}

// TakeLeaseRequest forcibly supersedes any current lease on a resource.
type TakeLeaseRequest struct {
	Resource string     `json:"resource"`
	Owner    LeaseOwner `json:"owner"`
}

// TakeLeaseResponse reports the outcome of a take.
type TakeLeaseResponse struct {
	Status     string      `json:"status"`
	Lease      *Lease      `json:"lease,omitempty"`
	LeaseOwner *LeaseOwner `json:"lease-owner,omitempty"`
}

// ReturnLeaseRequest gives a lease back.
type ReturnLeaseRequest struct {
	Lease Lease `json:"lease"`
}

// ReturnLeaseResponse reports the outcome of a return.
type ReturnLeaseResponse struct {
	Status string `json:"status"`
}

// RetainLeaseRequest proves the holder is still alive.
type RetainLeaseRequest struct {
	Lease Lease `json:"lease"`
}

// RetainLeaseResponse carries the validation outcome of the retain.
type RetainLeaseResponse struct {
	LeaseUseResult LeaseUseResult `json:"lease-use-result"`
}

// ListLeasesRequest asks for a snapshot of all resources. Without
// IncludeFullLeaseInfo the response omits leases and owners, leaving
// resource names, staleness flags and the tree.
type ListLeasesRequest struct {
	IncludeFullLeaseInfo bool `json:"include-full-lease-info"`
}

// LeaseResource is one resource's entry in a listing.
type LeaseResource struct {
	Resource   string      `json:"resource"`
	Lease      *Lease      `json:"lease,omitempty"`
	LeaseOwner *LeaseOwner `json:"lease-owner,omitempty"`
	IsStale    bool        `json:"is-stale"`
}

// ListLeasesResponse is the snapshot plus the static hierarchy.
type ListLeasesResponse struct {
	Resources    []LeaseResource `json:"resources"`
	ResourceTree []resource.Spec `json:"resource-tree"`
}

// Error is the body returned for transport-level failures (malformed
// request, unknown endpoint), as opposed to lease statuses.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error is part of the error interface.
func (e *Error) Error() string {
	return e.Message
}

// FromLease converts a core lease to its wire form.
func FromLease(l lease.Lease) Lease {
	return Lease{
		Resource:    l.Resource,
		Epoch:       l.Epoch,
		Sequence:    append([]uint64(nil), l.Sequence...),
		ClientNames: append([]string(nil), l.ClientNames...),
	}
}

// FromLeasePtr converts an optional core lease to its wire form.
func FromLeasePtr(l *lease.Lease) *Lease {
	if l == nil {
		return nil
	}
	wire := FromLease(*l)
	return &wire
}

// ToLease converts a wire lease back to its core form.
func (p Lease) ToLease() lease.Lease {
	return lease.Lease{
		Resource:    p.Resource,
		Epoch:       p.Epoch,
		Sequence:    append(lease.Sequence(nil), p.Sequence...),
		ClientNames: append([]string(nil), p.ClientNames...),
	}
}

// FromOwner converts a core owner to its wire form.
func FromOwner(o lease.Owner) LeaseOwner {
	return LeaseOwner{ClientName: o.ClientName, UserName: o.UserName}
}

// ToOwner converts a wire owner back to its core form.
func (p LeaseOwner) ToOwner() lease.Owner {
	return lease.Owner{ClientName: p.ClientName, UserName: p.UserName}
}

// FromUseResult converts a core use result to its wire form.
func FromUseResult(result lease.UseResult) LeaseUseResult {
	out := LeaseUseResult{
		Status:           UseStatusCode(result.Status),
		AttemptedLease:   FromLeasePtr(&result.Attempted),
		PreviousLease:    FromLeasePtr(result.Previous),
		LatestKnownLease: FromLeasePtr(result.Latest),
	}
	if result.Owner != (lease.Owner{}) {
		owner := FromOwner(result.Owner)
		out.Owner = &owner
	}
	return out
}

// ToUseResult converts a wire use result back to its core form.
func (p LeaseUseResult) ToUseResult() lease.UseResult {
	out := lease.UseResult{Status: UseStatusFromCode(p.Status)}
	if p.Owner != nil {
		out.Owner = p.Owner.ToOwner()
	}
	if p.AttemptedLease != nil {
		out.Attempted = p.AttemptedLease.ToLease()
	}
	if p.PreviousLease != nil {
		l := p.PreviousLease.ToLease()
		out.Previous = &l
	}
	if p.LatestKnownLease != nil {
		l := p.LatestKnownLease.ToLease()
		out.Latest = &l
	}
	return out
}

// UseStatusCode maps a core use status onto its wire code.
func UseStatusCode(status lease.UseStatus) string {
	switch status {
	case lease.UseStatusOK:
		return CodeOK
	case lease.UseStatusInvalidLease:
		return CodeInvalidLease
	case lease.UseStatusOlder:
		return CodeOlder
	case lease.UseStatusWrongEpoch:
		return CodeWrongEpoch
	case lease.UseStatusUnmanaged:
		return CodeUnmanaged
	}
	return CodeUnknown
}

// UseStatusFromCode is the inverse of UseStatusCode.
func UseStatusFromCode(code string) lease.UseStatus {
	switch code {
	case CodeOK:
		return lease.UseStatusOK
	case CodeInvalidLease:
		return lease.UseStatusInvalidLease
	case CodeOlder:
		return lease.UseStatusOlder
	case CodeWrongEpoch:
		return lease.UseStatusWrongEpoch
	case CodeUnmanaged:
		return lease.UseStatusUnmanaged
	}
	return lease.UseStatusUnknown
}

// ServerCode maps a registry error onto the wire status code for the
// claim-shaped operations (acquire, take, return).
func ServerCode(err error) string {
	switch {
	case err == nil:
		return CodeOK
	case lease.IsClaimDenied(err):
		return CodeResourceAlreadyClaimed
	case lease.IsInvalidResource(err):
		return CodeInvalidResource
	case lease.IsNotAuthoritative(err):
		return CodeNotAuthoritative
	case lease.IsNotActive(err):
		return CodeNotActiveLease
	}
	return CodeUnknown
}

// ErrorFromCode maps a wire status code back onto the sentinel error the
// client surfaces, or nil for CodeOK.
func ErrorFromCode(code string) error {
	switch code {
	case CodeOK:
		return nil
	case CodeResourceAlreadyClaimed:
		return lease.ErrClaimDenied
	case CodeInvalidResource:
		return lease.ErrInvalidResource
	case CodeNotAuthoritative:
		return lease.ErrNotAuthoritative
	case CodeNotActiveLease:
		return lease.ErrNotActive
	}
	return &Error{Code: code, Message: "lease operation failed: " + code}
}
