// Copyright 2026 Ardent Robotics Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package registry implements the single source of truth for "who controls
// resource R": it arbitrates Acquire/Take/Return/Retain requests from
// competing clients and validates leases attached to other traffic.
//
// All state mutation is serialized behind one mutex. Every operation is
// terminal: it either fully commits a lease transition or leaves the state
// untouched. Staleness is delegated entirely to the Liveness collaborator;
// the registry only reports pings to it and honours its verdict when
// deciding Acquire eligibility.
package registry

import (
	"sync"

	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/pubsub/v2"

	"github.com/ardent-robotics/warden/core/lease"
	"github.com/ardent-robotics/warden/core/resource"
)

var logger = loggo.GetLogger("warden.registry")

// Topics for transition events published on the hub.
const (
	TopicLeaseAcquired = "lease.acquired"
	TopicLeaseTaken    = "lease.taken"
	TopicLeaseReturned = "lease.returned"
)

// Event is the payload published for every committed lease transition.
type Event struct {
	Resource string
	Sequence string
	Owner    lease.Owner
}

// Config holds the registry's collaborators.
type Config struct {
	// Tree is the static resource hierarchy.
	Tree *resource.Tree

	// Liveness answers staleness queries and receives pings.
	Liveness lease.Liveness

	// Authority says, per resource, whether this registry arbitrates it.
	Authority lease.Authority

	// Hub, if set, receives transition events.
	Hub *pubsub.SimpleHub
}

// Validate returns an error if the config is incomplete.
func (config Config) Validate() error {
	if config.Tree == nil {
		return errors.NotValidf("nil Tree")
	}
	if config.Liveness == nil {
		return errors.NotValidf("nil Liveness")
	}
	if config.Authority == nil {
		return errors.NotValidf("nil Authority")
	}
	return nil
}

// entry is the registry's record for one resource. latest survives Return
// so that the per-epoch total order on issued sequences never restarts.
type entry struct {
	active *lease.Lease
	owner  lease.Owner
	latest lease.Sequence
}

// Registry arbitrates leases for one resource tree. Construct with New.
type Registry struct {
	config  Config
	epoch   string
	metrics *metrics

	mu      sync.Mutex
	entries map[string]*entry
}

// New returns a Registry with a fresh random epoch. Leases issued by any
// previous incarnation are unusable against it by construction.
func New(config Config) (*Registry, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	r := &Registry{
		config:  config,
		epoch:   uuid.New().String(),
		metrics: newMetrics(),
		entries: make(map[string]*entry),
	}
	for _, name := range config.Tree.Names() {
		r.entries[name] = &entry{}
	}
	logger.Infof("registry started, epoch %s, %d resources", r.epoch, len(r.entries))
	return r, nil
}

// Epoch returns the opaque epoch string carried by every lease this
// registry issues.
func (r *Registry) Epoch() string {
	return r.epoch
}

// Acquire issues a new lease for the resource to owner. It fails with
// ErrClaimDenied while an active, non-stale lease covers the resource, or
// while a different owner holds an active, non-stale lease on an ancestor
// or descendant.
func (r *Registry) Acquire(resourceName string, owner lease.Owner) (lease.Lease, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.checkManaged(resourceName, "acquire")
	if err != nil {
		return lease.Lease{}, errors.Trace(err)
	}
	if r.held(resourceName, e) {
		r.metrics.observe("acquire", outcomeDenied)
		logger.Debugf("acquire of %q by %s denied: held by %s", resourceName, owner, e.owner)
		return lease.Lease{}, ErrClaimDeniedBy(e.owner)
	}
	for _, related := range r.config.Tree.Ancestors(resourceName) {
		if other := r.entries[related]; r.held(related, other) && other.owner != owner {
			r.metrics.observe("acquire", outcomeDenied)
			logger.Debugf("acquire of %q by %s denied: ancestor %q held by %s",
				resourceName, owner, related, other.owner)
			return lease.Lease{}, ErrClaimDeniedBy(other.owner)
		}
	}
	for _, related := range r.config.Tree.Descendants(resourceName) {
		if other := r.entries[related]; r.held(related, other) && other.owner != owner {
			r.metrics.observe("acquire", outcomeDenied)
			logger.Debugf("acquire of %q by %s denied: descendant %q held by %s",
				resourceName, owner, related, other.owner)
			return lease.Lease{}, ErrClaimDeniedBy(other.owner)
		}
	}

	issued := r.issue(resourceName, e, owner)
	r.metrics.observe("acquire", outcomeOK)
	r.publish(TopicLeaseAcquired, issued, owner)
	logger.Infof("%s acquired %q, sequence %s", owner, resourceName, issued.Sequence)
	return issued, nil
}

// Take unconditionally supersedes any existing lease on the resource, even
// a live one. It is the forced-recovery path; it fails only for unknown
// resources and non-authoritative registries.
func (r *Registry) Take(resourceName string, owner lease.Owner) (lease.Lease, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.checkManaged(resourceName, "take")
	if err != nil {
		return lease.Lease{}, errors.Trace(err)
	}
	if e.active != nil {
		logger.Warningf("%s taking %q from %s", owner, resourceName, e.owner)
	}
	issued := r.issue(resourceName, e, owner)
	r.metrics.observe("take", outcomeOK)
	r.publish(TopicLeaseTaken, issued, owner)
	logger.Infof("%s took %q, sequence %s", owner, resourceName, issued.Sequence)
	return issued, nil
}

// Return invalidates the resource's active lease, but only if the supplied
// lease matches it exactly; a stale client can never release somebody
// else's authority. After a successful Return the resource is unclaimed
// and eligible for Acquire again.
func (r *Registry) Return(l lease.Lease) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.checkManaged(l.Resource, "return")
	if err != nil {
		return errors.Trace(err)
	}
	if e.active == nil || !e.active.Equal(l) {
		r.metrics.observe("return", outcomeDenied)
		return errors.Trace(lease.ErrNotActive)
	}
	owner := e.owner
	e.active = nil
	e.owner = lease.Owner{}
	r.metrics.observe("return", outcomeOK)
	r.publish(TopicLeaseReturned, l, owner)
	logger.Infof("%s returned %q, sequence %s", owner, l.Resource, l.Sequence)
	return nil
}

// Retain is how a holder proves liveness without advancing the sequence.
// The lease is validated exactly as Use does; on success the staleness
// window resets and ownership is untouched.
func (r *Registry) Retain(l lease.Lease) lease.UseResult {
	result := r.Use(l)
	r.metrics.observe("retain", outcomeForStatus(result.Status))
	return result
}

// Use validates a lease attached to any operation against current state.
// The checks run in a fixed order: unknown resource, wrong epoch, no
// governing lease, ordering, delegation. On success the resource's
// liveness window resets as a side effect.
func (r *Registry) Use(l lease.Lease) lease.UseResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := r.validate(l)
	r.metrics.observe("use", outcomeForStatus(result.Status))
	if result.Status == lease.UseStatusOK {
		r.config.Liveness.Pinged(l.Resource)
	} else {
		logger.Debugf("use of lease %s on %q rejected: %s", l.Sequence, l.Resource, result.Status)
	}
	return result
}

func (r *Registry) validate(l lease.Lease) lease.UseResult {
	result := lease.UseResult{Attempted: l}

	e, found := r.entries[l.Resource]
	if !found {
		result.Status = lease.UseStatusUnmanaged
		return result
	}
	if !r.config.Authority.Authoritative(l.Resource) {
		result.Status = lease.UseStatusUnmanaged
		return result
	}
	if e.active != nil {
		result.Previous = e.active
		result.Latest = e.active
		result.Owner = e.owner
	}
	if l.Epoch != r.epoch {
		result.Status = lease.UseStatusWrongEpoch
		return result
	}

	// Find the governing lease: the resource's own active lease, else the
	// nearest held ancestor's. A lease on a parent authorises the whole
	// subtree, so delegations on unclaimed sub-resources validate against
	// the ancestor grant.
	chain := append([]string{l.Resource}, r.config.Tree.Ancestors(l.Resource)...)
	for _, name := range chain {
		governing := r.entries[name]
		if governing.active == nil {
			continue
		}
		if result.Latest == nil {
			result.Previous = governing.active
			result.Latest = governing.active
			result.Owner = governing.owner
		}
		active := governing.active.Sequence
		switch {
		case active.Compare(l.Sequence) == 0:
			result.Status = lease.UseStatusOK
		case active.IsPrefixOf(l.Sequence):
			// A delegation of the active grant.
			result.Status = lease.UseStatusOK
		case l.Sequence.Compare(active) < 0:
			result.Status = lease.UseStatusOlder
		default:
			// Divergent (e.g. a sibling delegation of a superseded
			// grant): try the next ancestor before giving up.
			continue
		}
		return result
	}
	result.Status = lease.UseStatusInvalidLease
	return result
}

// Snapshot returns a consistent copy of every resource's lease state. With
// full false the lease and owner fields are omitted, leaving only names
// and staleness flags.
func (r *Registry) Snapshot(full bool) []lease.Info {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := r.config.Tree.Names()
	out := make([]lease.Info, 0, len(names))
	for _, name := range names {
		e := r.entries[name]
		info := lease.Info{Resource: name}
		if e.active != nil {
			info.Stale = r.config.Liveness.IsStale(name)
			if full {
				active := *e.active
				info.Lease = &active
				info.Owner = e.owner
			}
		}
		out = append(out, info)
	}
	return out
}

// ResourceTree returns the static hierarchy the registry was built with.
func (r *Registry) ResourceTree() []resource.Spec {
	return r.config.Tree.Specs()
}

// checkManaged returns the entry for the resource, or the appropriate
// refusal. Callers hold the mutex.
func (r *Registry) checkManaged(resourceName, op string) (*entry, error) {
	e, found := r.entries[resourceName]
	if !found {
		r.metrics.observe(op, outcomeInvalid)
		return nil, errors.Annotatef(lease.ErrInvalidResource, "%q", resourceName)
	}
	if !r.config.Authority.Authoritative(resourceName) {
		r.metrics.observe(op, outcomeInvalid)
		return nil, errors.Annotatef(lease.ErrNotAuthoritative, "for %q", resourceName)
	}
	return e, nil
}

// held reports whether the entry's active lease still blocks acquisition:
// present and not stale. Callers hold the mutex.
func (r *Registry) held(resourceName string, e *entry) bool {
	return e.active != nil && !r.config.Liveness.IsStale(resourceName)
}

// issue commits a new lease on the entry and pings liveness so the fresh
// grant starts inside its window. Callers hold the mutex.
func (r *Registry) issue(resourceName string, e *entry, owner lease.Owner) lease.Lease {
	seq := e.latest.Next()
	issued := lease.Lease{
		Resource:    resourceName,
		Epoch:       r.epoch,
		Sequence:    seq,
		ClientNames: []string{owner.ClientName},
	}
	e.active = &issued
	e.owner = owner
	e.latest = seq
	r.config.Liveness.Pinged(resourceName)
	return issued
}

func (r *Registry) publish(topic string, l lease.Lease, owner lease.Owner) {
	if r.config.Hub == nil {
		return
	}
	_ = r.config.Hub.Publish(topic, Event{
		Resource: l.Resource,
		Sequence: l.Sequence.String(),
		Owner:    owner,
	})
}

// ErrClaimDeniedBy annotates ErrClaimDenied with the blocking owner, so
// transports can report who holds the resource.
func ErrClaimDeniedBy(owner lease.Owner) error {
	return errors.Annotatef(lease.ErrClaimDenied, "held by %s", owner)
}
