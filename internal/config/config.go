// Copyright 2026 Ardent Robotics Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package config reads the wardend configuration file.
package config

import (
	"os"
	"time"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"gopkg.in/yaml.v3"

	"github.com/ardent-robotics/warden/core/lease"
	"github.com/ardent-robotics/warden/core/resource"
)

const (
	// DefaultListenAddress is used when listen-address is unset.
	DefaultListenAddress = ":17071"

	// DefaultLivenessWindow is used when liveness-window is unset. A
	// holder that stays silent this long goes stale.
	DefaultLivenessWindow = 30 * time.Second
)

// Duration wraps time.Duration so YAML like "30s" parses.
type Duration time.Duration

// UnmarshalYAML is part of the yaml.Unmarshaler interface.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var text string
	if err := node.Decode(&text); err != nil {
		return errors.Trace(err)
	}
	parsed, err := time.ParseDuration(text)
	if err != nil {
		return errors.NotValidf("duration %q", text)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the wardend configuration.
type Config struct {
	// ListenAddress is the API bind address.
	ListenAddress string `yaml:"listen-address,omitempty"`

	// LivenessWindow is how long a holder may stay silent before its
	// lease goes stale.
	LivenessWindow Duration `yaml:"liveness-window,omitempty"`

	// Resources is the static tree of arbitrated resources.
	Resources []resource.Spec `yaml:"resources"`

	// NonAuthoritative lists resources present in the tree that some
	// other registry instance arbitrates; requests for them fail closed.
	NonAuthoritative []string `yaml:"non-authoritative,omitempty"`
}

// Read loads and validates the config file at path.
func Read(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Annotate(err, "reading config")
	}
	return Parse(data)
}

// Parse unmarshals, defaults and validates a config document.
func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Annotate(err, "parsing config")
	}
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = DefaultListenAddress
	}
	if cfg.LivenessWindow == 0 {
		cfg.LivenessWindow = Duration(DefaultLivenessWindow)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Trace(err)
	}
	return cfg, nil
}

// Validate returns an error if the config is unusable.
func (c Config) Validate() error {
	if time.Duration(c.LivenessWindow) <= 0 {
		return errors.NotValidf("non-positive liveness-window")
	}
	tree, err := c.Tree()
	if err != nil {
		return errors.Trace(err)
	}
	for _, name := range c.NonAuthoritative {
		if !tree.Known(name) {
			return errors.NotValidf("non-authoritative resource %q not in tree", name)
		}
	}
	return nil
}

// Tree builds the resource tree the registry will arbitrate.
func (c Config) Tree() (*resource.Tree, error) {
	tree, err := resource.NewTree(c.Resources)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return tree, nil
}

// Window returns the liveness window as a time.Duration.
func (c Config) Window() time.Duration {
	return time.Duration(c.LivenessWindow)
}

// Authority derives the per-resource authority answer from the
// non-authoritative list.
func (c Config) Authority() lease.Authority {
	skip := set.NewStrings(c.NonAuthoritative...)
	return lease.AuthorityFunc(func(resource string) bool {
		return !skip.Contains(resource)
	})
}
