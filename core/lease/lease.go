// Copyright 2026 Ardent Robotics Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package lease holds the value types shared between the warden registry,
// its transport, and its clients: leases, sequences, owners, and the
// results of validating a lease against the registry's current state.
package lease

import (
	"strconv"
	"strings"

	"github.com/juju/errors"
)

// Sequence is a vector clock scoped to a registry epoch. Each successful
// acquisition or take of a resource increments the last component; a holder
// delegating authority over a sub-resource appends a new, deeper component.
// Within one epoch every lease issued for a resource carries a sequence
// strictly greater than its predecessor's.
type Sequence []uint64

// Compare returns -1, 0 or 1 according to whether s orders before, equal
// to, or after other. Comparison is element-by-element; when one sequence
// is a strict prefix of the other, the longer (more deeply delegated) one
// is the newer.
func (s Sequence) Compare(other Sequence) int {
	n := len(s)
	if len(other) < n {
		n = len(other)
	}
	for i := 0; i < n; i++ {
		switch {
		case s[i] < other[i]:
			return -1
		case s[i] > other[i]:
			return 1
		}
	}
	switch {
	case len(s) < len(other):
		return -1
	case len(s) > len(other):
		return 1
	}
	return 0
}

// IsPrefixOf reports whether other starts with s. A sequence is considered
// a prefix of itself; holders use the strict case to recognise leases they
// have delegated.
func (s Sequence) IsPrefixOf(other Sequence) bool {
	if len(s) > len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Next returns the successor sequence at the same delegation depth: a copy
// of s with the last component incremented. The successor of the empty
// sequence is [1].
func (s Sequence) Next() Sequence {
	if len(s) == 0 {
		return Sequence{1}
	}
	next := make(Sequence, len(s))
	copy(next, s)
	next[len(next)-1]++
	return next
}

// Extend returns a delegated sub-sequence: a copy of s with a new component
// appended. The result compares after s but remains within s's prefix, so
// it stays valid exactly as long as s does.
func (s Sequence) Extend() Sequence {
	ext := make(Sequence, len(s)+1)
	copy(ext, s)
	ext[len(ext)-1] = 1
	return ext
}

// String renders the sequence in dotted form, e.g. "1.2.3".
func (s Sequence) String() string {
	parts := make([]string, len(s))
	for i, v := range s {
		parts[i] = strconv.FormatUint(v, 10)
	}
	return strings.Join(parts, ".")
}

// ParseSequence is the inverse of Sequence.String.
func ParseSequence(text string) (Sequence, error) {
	if text == "" {
		return nil, errors.NotValidf("empty sequence")
	}
	parts := strings.Split(text, ".")
	seq := make(Sequence, len(parts))
	for i, part := range parts {
		v, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return nil, errors.NotValidf("sequence %q", text)
		}
		seq[i] = v
	}
	return seq, nil
}

// Lease is an immutable grant of exclusive control over a named resource.
// Two leases from different epochs are never comparable; within one epoch
// the registry guarantees a total order on the sequences it issues.
type Lease struct {
	// Resource names the resource the lease authorises.
	Resource string

	// Epoch is opaque, fixed for the lifetime of the issuing registry
	// process.
	Epoch string

	// Sequence orders this lease against every other lease issued for the
	// resource during the epoch.
	Sequence Sequence

	// ClientNames records, in order, the clients that have held or been
	// passed the lease.
	ClientNames []string
}

// Equal reports whether the two leases identify the same grant: resource,
// epoch and sequence all match exactly. The client-name audit trail does
// not participate.
func (l Lease) Equal(other Lease) bool {
	return l.Resource == other.Resource &&
		l.Epoch == other.Epoch &&
		l.Sequence.Compare(other.Sequence) == 0
}

// Validate returns an error if the lease is structurally unusable.
func (l Lease) Validate() error {
	if l.Resource == "" {
		return errors.NotValidf("lease with empty resource")
	}
	if l.Epoch == "" {
		return errors.NotValidf("lease with empty epoch")
	}
	if len(l.Sequence) == 0 {
		return errors.NotValidf("lease with empty sequence")
	}
	return nil
}

// Delegate returns a sub-lease of l for the supplied sub-resource, carrying
// an extended sequence and the delegate client appended to the audit trail.
// The registry records nothing about delegation; the sub-lease is valid for
// exactly as long as l remains the active lease on its resource.
func (l Lease) Delegate(resource, clientName string) Lease {
	names := make([]string, 0, len(l.ClientNames)+1)
	names = append(names, l.ClientNames...)
	names = append(names, clientName)
	return Lease{
		Resource:    resource,
		Epoch:       l.Epoch,
		Sequence:    l.Sequence.Extend(),
		ClientNames: names,
	}
}

// Owner identifies who holds the active lease on a resource.
type Owner struct {
	// ClientName is the unique name the holding client registered with.
	ClientName string

	// UserName identifies the human (or role) operating that client.
	UserName string
}

// String is used in logs and error messages.
func (o Owner) String() string {
	if o.UserName == "" {
		return o.ClientName
	}
	return o.ClientName + " (" + o.UserName + ")"
}
