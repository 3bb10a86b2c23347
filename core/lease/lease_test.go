// Copyright 2026 Ardent Robotics Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package lease_test

import (
	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/ardent-robotics/warden/core/lease"
)

type LeaseSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&LeaseSuite{})

func (s *LeaseSuite) TestEqualIgnoresClientNames(c *gc.C) {
	a := lease.Lease{
		Resource:    "body",
		Epoch:       "e1",
		Sequence:    lease.Sequence{1, 2},
		ClientNames: []string{"tablet"},
	}
	b := a
	b.ClientNames = []string{"tablet", "script"}
	c.Check(a.Equal(b), jc.IsTrue)
}

func (s *LeaseSuite) TestEqualDiscriminates(c *gc.C) {
	base := lease.Lease{Resource: "body", Epoch: "e1", Sequence: lease.Sequence{1}}

	other := base
	other.Resource = "arm"
	c.Check(base.Equal(other), jc.IsFalse)

	other = base
	other.Epoch = "e2"
	c.Check(base.Equal(other), jc.IsFalse)

	other = base
	other.Sequence = lease.Sequence{2}
	c.Check(base.Equal(other), jc.IsFalse)
}

func (s *LeaseSuite) TestValidate(c *gc.C) {
	good := lease.Lease{Resource: "body", Epoch: "e1", Sequence: lease.Sequence{1}}
	c.Check(good.Validate(), jc.ErrorIsNil)

	for _, breakIt := range []func(*lease.Lease){
		func(l *lease.Lease) { l.Resource = "" },
		func(l *lease.Lease) { l.Epoch = "" },
		func(l *lease.Lease) { l.Sequence = nil },
	} {
		bad := good
		breakIt(&bad)
		c.Check(bad.Validate(), jc.Satisfies, errors.IsNotValid)
	}
}

func (s *LeaseSuite) TestDelegate(c *gc.C) {
	parent := lease.Lease{
		Resource:    "body",
		Epoch:       "e1",
		Sequence:    lease.Sequence{3},
		ClientNames: []string{"tablet"},
	}
	sub := parent.Delegate("arm", "script")
	c.Check(sub.Resource, gc.Equals, "arm")
	c.Check(sub.Epoch, gc.Equals, "e1")
	c.Check(sub.Sequence, jc.DeepEquals, lease.Sequence{3, 1})
	c.Check(sub.ClientNames, jc.DeepEquals, []string{"tablet", "script"})
	// The parent's audit trail is untouched.
	c.Check(parent.ClientNames, jc.DeepEquals, []string{"tablet"})
}

func (s *LeaseSuite) TestOwnerString(c *gc.C) {
	c.Check(lease.Owner{ClientName: "tablet"}.String(), gc.Equals, "tablet")
	c.Check(lease.Owner{ClientName: "tablet", UserName: "kat"}.String(), gc.Equals, "tablet (kat)")
}
