// Copyright 2026 Ardent Robotics Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package resource models the static tree of shared hardware resources a
// registry arbitrates. The tree is fixed at startup: holding a lease on a
// node implies control over its whole subtree.
package resource

import (
	"sort"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
)

// Spec describes one node of the resource tree as configured. Resources
// form a forest; each name must be unique across the whole forest.
type Spec struct {
	Name     string `yaml:"name" json:"name"`
	Children []Spec `yaml:"children,omitempty" json:"children,omitempty"`
}

type node struct {
	name     string
	parent   string
	children []string
}

// Tree is an immutable resource hierarchy. All navigation methods are safe
// for concurrent use.
type Tree struct {
	nodes map[string]*node
	roots []string
	specs []Spec
}

// NewTree builds a Tree from the supplied forest. It fails if the forest
// is empty, if any node has an empty name, or if a name appears twice.
func NewTree(specs []Spec) (*Tree, error) {
	if len(specs) == 0 {
		return nil, errors.NotValidf("empty resource tree")
	}
	t := &Tree{
		nodes: make(map[string]*node),
		specs: specs,
	}
	seen := set.NewStrings()
	for _, spec := range specs {
		if err := t.addNode(spec, "", seen); err != nil {
			return nil, errors.Trace(err)
		}
		t.roots = append(t.roots, spec.Name)
	}
	return t, nil
}

func (t *Tree) addNode(spec Spec, parent string, seen set.Strings) error {
	if spec.Name == "" {
		return errors.NotValidf("resource with empty name")
	}
	if seen.Contains(spec.Name) {
		return errors.NotValidf("duplicate resource %q", spec.Name)
	}
	seen.Add(spec.Name)
	n := &node{name: spec.Name, parent: parent}
	t.nodes[spec.Name] = n
	for _, child := range spec.Children {
		if err := t.addNode(child, spec.Name, seen); err != nil {
			return errors.Trace(err)
		}
		n.children = append(n.children, child.Name)
	}
	return nil
}

// Known reports whether the named resource is part of the tree.
func (t *Tree) Known(name string) bool {
	_, ok := t.nodes[name]
	return ok
}

// Parent returns the direct parent of the named resource; ok is false for
// roots and unknown names.
func (t *Tree) Parent(name string) (string, bool) {
	n, found := t.nodes[name]
	if !found || n.parent == "" {
		return "", false
	}
	return n.parent, true
}

// Ancestors returns the chain of ancestors of the named resource, nearest
// first. Unknown names yield nil.
func (t *Tree) Ancestors(name string) []string {
	var out []string
	for {
		parent, ok := t.Parent(name)
		if !ok {
			return out
		}
		out = append(out, parent)
		name = parent
	}
}

// Children returns the direct children of the named resource.
func (t *Tree) Children(name string) []string {
	n, found := t.nodes[name]
	if !found {
		return nil
	}
	return append([]string(nil), n.children...)
}

// Descendants returns every resource strictly below the named one, in
// depth-first order.
func (t *Tree) Descendants(name string) []string {
	var out []string
	for _, child := range t.Children(name) {
		out = append(out, child)
		out = append(out, t.Descendants(child)...)
	}
	return out
}

// Names returns every resource in the tree, sorted.
func (t *Tree) Names() []string {
	out := make([]string, 0, len(t.nodes))
	for name := range t.nodes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Specs returns the forest the tree was built from.
func (t *Tree) Specs() []Spec {
	return t.specs
}
