// Copyright 2026 Ardent Robotics Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package api

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/worker/v4/catacomb"

	"github.com/ardent-robotics/warden/core/lease"
	"github.com/ardent-robotics/warden/rpc/params"
)

// KeepAliveConfig holds what a keep-alive worker needs.
type KeepAliveConfig struct {
	// Client locates the registry.
	Client *Client

	// Lease is the grant to keep alive.
	Lease lease.Lease

	// Period is how often to retain. It must be comfortably inside the
	// registry's liveness window; a third of it is a sensible choice.
	Period time.Duration

	// Clock drives the retain cadence. Defaults to the wall clock.
	Clock clock.Clock
}

// Validate returns an error if the config is incomplete.
func (config KeepAliveConfig) Validate() error {
	if config.Client == nil {
		return errors.NotValidf("nil Client")
	}
	if err := config.Lease.Validate(); err != nil {
		return errors.Trace(err)
	}
	if config.Period <= 0 {
		return errors.NotValidf("non-positive Period")
	}
	return nil
}

// KeepAlive holds a websocket retain stream open and proves liveness at a
// fixed cadence. It dies - taking Wait's error with it - as soon as the
// stream drops or the registry stops accepting the lease, so the caller
// learns promptly that it must stop actuating and reacquire.
type KeepAlive struct {
	catacomb catacomb.Catacomb
	config   KeepAliveConfig
	conn     *websocket.Conn
}

// NewKeepAlive dials the retain stream and starts retaining.
func NewKeepAlive(config KeepAliveConfig) (*KeepAlive, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if config.Clock == nil {
		config.Clock = clock.WallClock
	}
	url, err := config.Client.RetainStreamURL()
	if err != nil {
		return nil, errors.Trace(err)
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, errors.Annotate(err, "dialing retain stream")
	}
	k := &KeepAlive{
		config: config,
		conn:   conn,
	}
	if err := catacomb.Invoke(catacomb.Plan{
		Name: "lease-keepalive",
		Site: &k.catacomb,
		Work: k.loop,
	}); err != nil {
		_ = conn.Close()
		return nil, errors.Trace(err)
	}
	return k, nil
}

// Kill is part of the worker.Worker interface.
func (k *KeepAlive) Kill() {
	k.catacomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (k *KeepAlive) Wait() error {
	return k.catacomb.Wait()
}

func (k *KeepAlive) loop() error {
	defer func() { _ = k.conn.Close() }()

	// Retain immediately so a freshly delegated lease is inside its
	// window before the first full period elapses.
	if err := k.retain(); err != nil {
		return errors.Trace(err)
	}
	timer := k.config.Clock.NewTimer(k.config.Period)
	defer timer.Stop()
	for {
		select {
		case <-k.catacomb.Dying():
			return k.catacomb.ErrDying()
		case <-timer.Chan():
			if err := k.retain(); err != nil {
				return errors.Trace(err)
			}
			timer.Reset(k.config.Period)
		}
	}
}

func (k *KeepAlive) retain() error {
	err := k.conn.WriteJSON(params.RetainLeaseRequest{
		Lease: params.FromLease(k.config.Lease),
	})
	if err != nil {
		return errors.Annotate(err, "writing retain")
	}
	var resp params.RetainLeaseResponse
	if err := k.conn.ReadJSON(&resp); err != nil {
		return errors.Annotate(err, "reading retain result")
	}
	result := resp.LeaseUseResult.ToUseResult()
	if result.Status != lease.UseStatusOK {
		logger.Warningf("lease on %q no longer valid: %s", k.config.Lease.Resource, result.Status)
		return errors.Errorf("lease on %q rejected: %s", k.config.Lease.Resource, result.Status)
	}
	return nil
}
