// Copyright 2026 Ardent Robotics Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package registry_test

import (
	"sync"
	"time"

	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/ardent-robotics/warden/core/lease"
	"github.com/ardent-robotics/warden/core/resource"
	"github.com/ardent-robotics/warden/internal/registry"
)

const longWait = 10 * time.Second

var (
	tablet = lease.Owner{ClientName: "tablet", UserName: "kat"}
	script = lease.Owner{ClientName: "estop-script", UserName: "ci"}
)

// stubLiveness lets tests flip staleness per resource and records pings.
type stubLiveness struct {
	mu     sync.Mutex
	stale  map[string]bool
	pinged []string
}

func newStubLiveness() *stubLiveness {
	return &stubLiveness{stale: make(map[string]bool)}
}

func (s *stubLiveness) IsStale(resource string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stale[resource]
}

func (s *stubLiveness) Pinged(resource string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pinged = append(s.pinged, resource)
	s.stale[resource] = false
}

func (s *stubLiveness) setStale(resource string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stale[resource] = true
}

func (s *stubLiveness) pings() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.pinged...)
}

var allAuthoritative = lease.AuthorityFunc(func(string) bool { return true })

func robotTree(c *gc.C) *resource.Tree {
	tree, err := resource.NewTree([]resource.Spec{{
		Name: "body",
		Children: []resource.Spec{
			{Name: "mobility"},
			{Name: "arm", Children: []resource.Spec{
				{Name: "gripper"},
			}},
		},
	}})
	c.Assert(err, jc.ErrorIsNil)
	return tree
}

func newRegistry(c *gc.C, config registry.Config) (*registry.Registry, *stubLiveness) {
	liveness := newStubLiveness()
	if config.Tree == nil {
		config.Tree = robotTree(c)
	}
	if config.Liveness == nil {
		config.Liveness = liveness
	}
	if config.Authority == nil {
		config.Authority = allAuthoritative
	}
	reg, err := registry.New(config)
	c.Assert(err, jc.ErrorIsNil)
	return reg, liveness
}
