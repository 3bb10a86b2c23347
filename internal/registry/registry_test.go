// Copyright 2026 Ardent Robotics Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package registry_test

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/pubsub/v2"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/ardent-robotics/warden/core/lease"
	"github.com/ardent-robotics/warden/internal/registry"
)

type RegistrySuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&RegistrySuite{})

func (s *RegistrySuite) TestAcquireIssuesFirstSequence(c *gc.C) {
	reg, _ := newRegistry(c, registry.Config{})

	issued, err := reg.Acquire("body", tablet)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(issued.Resource, gc.Equals, "body")
	c.Check(issued.Epoch, gc.Equals, reg.Epoch())
	c.Check(issued.Sequence, jc.DeepEquals, lease.Sequence{1})
	c.Check(issued.ClientNames, jc.DeepEquals, []string{"tablet"})
}

func (s *RegistrySuite) TestAcquireWhileHeldDenied(c *gc.C) {
	reg, _ := newRegistry(c, registry.Config{})

	_, err := reg.Acquire("body", tablet)
	c.Assert(err, jc.ErrorIsNil)
	_, err = reg.Acquire("body", script)
	c.Check(err, jc.Satisfies, lease.IsClaimDenied)
	c.Check(err, gc.ErrorMatches, ".*held by tablet.*")
}

func (s *RegistrySuite) TestConcurrentAcquireExactlyOneWins(c *gc.C) {
	reg, _ := newRegistry(c, registry.Config{})

	const contenders = 16
	var (
		wg     sync.WaitGroup
		wins   int64
		denies int64
	)
	start := make(chan struct{})
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		owner := lease.Owner{ClientName: "contender", UserName: "c"}
		go func() {
			defer wg.Done()
			<-start
			_, err := reg.Acquire("body", owner)
			switch {
			case err == nil:
				atomic.AddInt64(&wins, 1)
			case lease.IsClaimDenied(err):
				atomic.AddInt64(&denies, 1)
			default:
				c.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()
	c.Check(atomic.LoadInt64(&wins), gc.Equals, int64(1))
	c.Check(atomic.LoadInt64(&denies), gc.Equals, int64(contenders-1))
}

func (s *RegistrySuite) TestAcquireUnknownResource(c *gc.C) {
	reg, _ := newRegistry(c, registry.Config{})
	_, err := reg.Acquire("tail", tablet)
	c.Check(err, jc.Satisfies, lease.IsInvalidResource)
}

func (s *RegistrySuite) TestAcquireNotAuthoritative(c *gc.C) {
	reg, _ := newRegistry(c, registry.Config{
		Authority: lease.AuthorityFunc(func(name string) bool {
			return name != "arm"
		}),
	})
	_, err := reg.Acquire("arm", tablet)
	c.Check(err, jc.Satisfies, lease.IsNotAuthoritative)

	// Other resources are unaffected.
	_, err = reg.Acquire("body", tablet)
	c.Check(err, jc.ErrorIsNil)
}

func (s *RegistrySuite) TestAcquireStaleLeaseSuperseded(c *gc.C) {
	reg, liveness := newRegistry(c, registry.Config{})

	first, err := reg.Acquire("body", tablet)
	c.Assert(err, jc.ErrorIsNil)
	liveness.setStale("body")

	second, err := reg.Acquire("body", script)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(second.Sequence, jc.DeepEquals, lease.Sequence{2})

	// The expired holder is strictly older now.
	result := reg.Use(first)
	c.Check(result.Status, gc.Equals, lease.UseStatusOlder)
}

func (s *RegistrySuite) TestAcquireBlockedByHeldAncestor(c *gc.C) {
	reg, _ := newRegistry(c, registry.Config{})

	_, err := reg.Acquire("body", tablet)
	c.Assert(err, jc.ErrorIsNil)
	_, err = reg.Acquire("gripper", script)
	c.Check(err, jc.Satisfies, lease.IsClaimDenied)
}

func (s *RegistrySuite) TestAcquireBlockedByHeldDescendant(c *gc.C) {
	reg, _ := newRegistry(c, registry.Config{})

	_, err := reg.Acquire("gripper", script)
	c.Assert(err, jc.ErrorIsNil)
	_, err = reg.Acquire("body", tablet)
	c.Check(err, jc.Satisfies, lease.IsClaimDenied)
}

func (s *RegistrySuite) TestAcquireSubResourceBySameOwner(c *gc.C) {
	// A holder subdividing its own grant is allowed.
	reg, _ := newRegistry(c, registry.Config{})

	_, err := reg.Acquire("body", tablet)
	c.Assert(err, jc.ErrorIsNil)
	issued, err := reg.Acquire("arm", tablet)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(issued.Sequence, jc.DeepEquals, lease.Sequence{1})
}

func (s *RegistrySuite) TestTakeSupersedesLiveLease(c *gc.C) {
	reg, _ := newRegistry(c, registry.Config{})

	first, err := reg.Acquire("body", tablet)
	c.Assert(err, jc.ErrorIsNil)
	taken, err := reg.Take("body", script)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(taken.Sequence, jc.DeepEquals, lease.Sequence{2})

	result := reg.Use(first)
	c.Check(result.Status, gc.Equals, lease.UseStatusOlder)
	c.Check(result.Owner, gc.Equals, script)
	c.Assert(result.Latest, gc.NotNil)
	c.Check(result.Latest.Sequence, jc.DeepEquals, lease.Sequence{2})
}

func (s *RegistrySuite) TestMonotonicSequences(c *gc.C) {
	reg, _ := newRegistry(c, registry.Config{})

	var last lease.Sequence
	for i := 0; i < 5; i++ {
		issued, err := reg.Take("body", tablet)
		c.Assert(err, jc.ErrorIsNil)
		if last != nil {
			c.Check(last.Compare(issued.Sequence), gc.Equals, -1)
		}
		last = issued.Sequence
	}
}

func (s *RegistrySuite) TestReturnRevertsToUnclaimed(c *gc.C) {
	reg, _ := newRegistry(c, registry.Config{})

	issued, err := reg.Acquire("body", tablet)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(reg.Return(issued), jc.ErrorIsNil)

	// Sequence numbering continues where it left off.
	again, err := reg.Acquire("body", script)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(again.Sequence, jc.DeepEquals, lease.Sequence{2})
}

func (s *RegistrySuite) TestReturnGuardsAgainstMismatch(c *gc.C) {
	reg, _ := newRegistry(c, registry.Config{})

	issued, err := reg.Acquire("body", tablet)
	c.Assert(err, jc.ErrorIsNil)

	stale := issued
	stale.Sequence = lease.Sequence{7}
	c.Check(reg.Return(stale), jc.Satisfies, lease.IsNotActive)

	// The genuine lease is still active.
	result := reg.Use(issued)
	c.Check(result.Status, gc.Equals, lease.UseStatusOK)
}

func (s *RegistrySuite) TestReturnWhenUnclaimed(c *gc.C) {
	reg, _ := newRegistry(c, registry.Config{})
	err := reg.Return(lease.Lease{
		Resource: "body",
		Epoch:    reg.Epoch(),
		Sequence: lease.Sequence{1},
	})
	c.Check(err, jc.Satisfies, lease.IsNotActive)
}

func (s *RegistrySuite) TestUseUnmanagedResource(c *gc.C) {
	reg, _ := newRegistry(c, registry.Config{})
	result := reg.Use(lease.Lease{
		Resource: "tail",
		Epoch:    reg.Epoch(),
		Sequence: lease.Sequence{1},
	})
	c.Check(result.Status, gc.Equals, lease.UseStatusUnmanaged)
}

func (s *RegistrySuite) TestUseWrongEpoch(c *gc.C) {
	reg, _ := newRegistry(c, registry.Config{})

	issued, err := reg.Acquire("body", tablet)
	c.Assert(err, jc.ErrorIsNil)

	foreign := issued
	foreign.Epoch = "some-other-incarnation"
	result := reg.Use(foreign)
	c.Check(result.Status, gc.Equals, lease.UseStatusWrongEpoch)

	// Epoch isolation holds whatever the sequence says.
	foreign.Sequence = lease.Sequence{99}
	c.Check(reg.Use(foreign).Status, gc.Equals, lease.UseStatusWrongEpoch)
}

func (s *RegistrySuite) TestUseNoActiveLease(c *gc.C) {
	reg, _ := newRegistry(c, registry.Config{})
	result := reg.Use(lease.Lease{
		Resource: "body",
		Epoch:    reg.Epoch(),
		Sequence: lease.Sequence{1},
	})
	c.Check(result.Status, gc.Equals, lease.UseStatusInvalidLease)
}

func (s *RegistrySuite) TestUseDelegatedPrefixValidates(c *gc.C) {
	reg, _ := newRegistry(c, registry.Config{})

	parent, err := reg.Acquire("body", tablet)
	c.Assert(err, jc.ErrorIsNil)

	// Delegate the arm to another client; the arm itself is unclaimed,
	// so validation runs against the ancestor grant.
	sub := parent.Delegate("arm", "estop-script")
	result := reg.Use(sub)
	c.Check(result.Status, gc.Equals, lease.UseStatusOK)
	c.Check(result.Owner, gc.Equals, tablet)
}

func (s *RegistrySuite) TestUseSiblingDelegationRejected(c *gc.C) {
	reg, _ := newRegistry(c, registry.Config{})

	_, err := reg.Take("arm", tablet) // sequence [1]
	c.Assert(err, jc.ErrorIsNil)
	active, err := reg.Take("arm", tablet) // sequence [2]
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(active.Sequence, jc.DeepEquals, lease.Sequence{2})

	// A delegation of the superseded grant diverges from the active
	// sequence without being under its prefix.
	sibling := active
	sibling.Sequence = lease.Sequence{1, 1}
	result := reg.Use(sibling)
	c.Check(result.Status, gc.Equals, lease.UseStatusOlder)

	divergent := active
	divergent.Sequence = lease.Sequence{3}
	c.Check(reg.Use(divergent).Status, gc.Equals, lease.UseStatusInvalidLease)
}

func (s *RegistrySuite) TestUseDelegationDiesWithParentSupersede(c *gc.C) {
	reg, _ := newRegistry(c, registry.Config{})

	parent, err := reg.Acquire("body", tablet) // [1]
	c.Assert(err, jc.ErrorIsNil)
	sub := parent.Delegate("arm", "estop-script") // [1,1]
	c.Assert(reg.Use(sub).Status, gc.Equals, lease.UseStatusOK)

	_, err = reg.Take("body", script) // [2]
	c.Assert(err, jc.ErrorIsNil)

	// Lazy invalidation: the delegation fails its next validation.
	c.Check(reg.Use(sub).Status, gc.Equals, lease.UseStatusOlder)
}

func (s *RegistrySuite) TestUseChecksAncestorsForDivergentSequence(c *gc.C) {
	reg, _ := newRegistry(c, registry.Config{})

	// The arm was claimed directly, then the whole body was taken by
	// another client, whose delegation onto the arm must win even though
	// it diverges from the arm's own recorded sequence.
	_, err := reg.Acquire("arm", tablet) // arm [1]
	c.Assert(err, jc.ErrorIsNil)
	var body lease.Lease
	for i := 0; i < 5; i++ {
		body, err = reg.Take("body", script)
		c.Assert(err, jc.ErrorIsNil)
	}
	c.Assert(body.Sequence, jc.DeepEquals, lease.Sequence{5})

	sub := body.Delegate("arm", "script-child") // [5,1]
	result := reg.Use(sub)
	c.Check(result.Status, gc.Equals, lease.UseStatusOK)
}

func (s *RegistrySuite) TestUsePingsLiveness(c *gc.C) {
	reg, liveness := newRegistry(c, registry.Config{})

	issued, err := reg.Acquire("body", tablet)
	c.Assert(err, jc.ErrorIsNil)
	before := len(liveness.pings())

	c.Check(reg.Use(issued).Status, gc.Equals, lease.UseStatusOK)
	c.Check(reg.Retain(issued).Status, gc.Equals, lease.UseStatusOK)
	c.Check(liveness.pings()[before:], jc.DeepEquals, []string{"body", "body"})
}

func (s *RegistrySuite) TestRejectedUseDoesNotPing(c *gc.C) {
	reg, liveness := newRegistry(c, registry.Config{})

	issued, err := reg.Acquire("body", tablet)
	c.Assert(err, jc.ErrorIsNil)
	before := len(liveness.pings())

	older := issued
	older.Sequence = lease.Sequence{0}
	c.Check(reg.Use(older).Status, gc.Equals, lease.UseStatusOlder)
	c.Check(len(liveness.pings()), gc.Equals, before)
}

func (s *RegistrySuite) TestSnapshot(c *gc.C) {
	reg, liveness := newRegistry(c, registry.Config{})

	issued, err := reg.Acquire("arm", tablet)
	c.Assert(err, jc.ErrorIsNil)
	liveness.setStale("arm")

	full := reg.Snapshot(true)
	c.Assert(full, gc.HasLen, 4)
	byName := make(map[string]lease.Info)
	for _, info := range full {
		byName[info.Resource] = info
	}
	armInfo := byName["arm"]
	c.Assert(armInfo.Lease, gc.NotNil)
	c.Check(armInfo.Lease.Equal(issued), jc.IsTrue)
	c.Check(armInfo.Owner, gc.Equals, tablet)
	c.Check(armInfo.Stale, jc.IsTrue)
	c.Check(byName["body"].Lease, gc.IsNil)

	// Without full info the leases and owners are withheld.
	brief := reg.Snapshot(false)
	for _, info := range brief {
		c.Check(info.Lease, gc.IsNil)
		c.Check(info.Owner, gc.Equals, lease.Owner{})
		if info.Resource == "arm" {
			c.Check(info.Stale, jc.IsTrue)
		}
	}
}

func (s *RegistrySuite) TestTransitionEvents(c *gc.C) {
	hub := pubsub.NewSimpleHub(nil)
	events := make(chan string, 10)
	record := func(topic string, data interface{}) {
		event, ok := data.(registry.Event)
		if !ok {
			c.Errorf("unexpected payload %#v", data)
			return
		}
		events <- topic + ":" + event.Resource + ":" + event.Sequence
	}
	for _, topic := range []string{
		registry.TopicLeaseAcquired,
		registry.TopicLeaseTaken,
		registry.TopicLeaseReturned,
	} {
		defer hub.Subscribe(topic, record)()
	}

	reg, _ := newRegistry(c, registry.Config{Hub: hub})
	_, err := reg.Acquire("body", tablet)
	c.Assert(err, jc.ErrorIsNil)
	taken, err := reg.Take("body", script)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(reg.Return(taken), jc.ErrorIsNil)

	var got []string
	for i := 0; i < 3; i++ {
		select {
		case event := <-events:
			got = append(got, event)
		case <-time.After(longWait):
			c.Fatalf("timed out waiting for event %d", i)
		}
	}
	// Each topic has its own subscription, so cross-topic delivery order
	// is not guaranteed.
	c.Check(got, jc.SameContents, []string{
		registry.TopicLeaseAcquired + ":body:1",
		registry.TopicLeaseTaken + ":body:2",
		registry.TopicLeaseReturned + ":body:2",
	})
}

// End-to-end protocol walk: acquire, contention, forced take, the loser's
// lease going older, return, and reacquisition continuing the sequence.
func (s *RegistrySuite) TestOwnershipScenario(c *gc.C) {
	reg, _ := newRegistry(c, registry.Config{})

	first, err := reg.Acquire("body", tablet)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(first.Sequence, jc.DeepEquals, lease.Sequence{1})

	_, err = reg.Acquire("body", script)
	c.Check(err, jc.Satisfies, lease.IsClaimDenied)

	taken, err := reg.Take("body", script)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(taken.Sequence, jc.DeepEquals, lease.Sequence{2})

	c.Check(reg.Use(first).Status, gc.Equals, lease.UseStatusOlder)

	c.Assert(reg.Return(taken), jc.ErrorIsNil)

	again, err := reg.Acquire("body", tablet)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(again.Sequence, jc.DeepEquals, lease.Sequence{3})
}
