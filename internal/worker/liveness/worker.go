// Copyright 2026 Ardent Robotics Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package liveness tracks, per resource, how long ago the lease holder
// last proved it was alive. The registry reports pings here and asks
// "is this resource's lease stale"; holders that stop retaining are
// reported stale once the window elapses, which makes the design robust
// to ungraceful client termination: nobody has to notice a disconnect,
// only elapsed time.
package liveness

import (
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/pubsub/v2"
	"github.com/juju/worker/v4/catacomb"
)

var logger = loggo.GetLogger("warden.liveness")

// TopicLeaseStale is published when a resource's holder first exceeds the
// liveness window.
const TopicLeaseStale = "lease.stale"

// StaleEvent is the payload for TopicLeaseStale.
type StaleEvent struct {
	Resource string
	LastSeen time.Time
}

// Config holds the monitor's dependencies.
type Config struct {
	// Clock supplies all time measurement.
	Clock clock.Clock

	// Window is how long a holder may go without a ping before its lease
	// is stale.
	Window time.Duration

	// Hub, if set, receives TopicLeaseStale events.
	Hub *pubsub.SimpleHub
}

// Validate returns an error if the config is incomplete.
func (config Config) Validate() error {
	if config.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if config.Window <= 0 {
		return errors.NotValidf("non-positive Window")
	}
	return nil
}

// Worker is the keep-alive monitor. It implements lease.Liveness for the
// registry and worker.Worker for its lifecycle.
type Worker struct {
	catacomb catacomb.Catacomb
	config   Config

	// pings carries resource names from Pinged into the loop, which owns
	// all the maps below.
	pings chan string

	// queries serializes IsStale against the loop's state.
	queries chan query

	// lastSeen records the most recent ping per resource; announced
	// remembers which resources have already had a stale event published
	// so a long outage produces one event, not one per tick.
	lastSeen  map[string]time.Time
	announced map[string]bool

	// nextTimeout is the earliest pending staleness deadline; timer fires
	// when it arrives.
	nextTimeout time.Time
	timer       clock.Timer
}

type query struct {
	resource string
	reply    chan bool
}

// NewWorker returns a started monitor.
func NewWorker(config Config) (*Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	w := &Worker{
		config:    config,
		pings:     make(chan string),
		queries:   make(chan query),
		lastSeen:  make(map[string]time.Time),
		announced: make(map[string]bool),
	}
	if err := catacomb.Invoke(catacomb.Plan{
		Name: "liveness",
		Site: &w.catacomb,
		Work: w.loop,
	}); err != nil {
		return nil, errors.Trace(err)
	}
	return w, nil
}

// Kill is part of the worker.Worker interface.
func (w *Worker) Kill() {
	w.catacomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (w *Worker) Wait() error {
	return w.catacomb.Wait()
}

// Pinged records a proof of liveness for the resource. It is part of the
// lease.Liveness interface. Pings arriving after the monitor has stopped
// are dropped.
func (w *Worker) Pinged(resource string) {
	select {
	case w.pings <- resource:
	case <-w.catacomb.Dying():
	}
}

// IsStale reports whether the resource's holder has outlived the window.
// A resource that has never been pinged is not stale: it has no holder to
// have gone quiet. It is part of the lease.Liveness interface. If the
// monitor has stopped, IsStale fails closed and reports false so that a
// dying process cannot hand out leases over live holders.
func (w *Worker) IsStale(resource string) bool {
	q := query{resource: resource, reply: make(chan bool)}
	select {
	case w.queries <- q:
	case <-w.catacomb.Dying():
		return false
	}
	select {
	case stale := <-q.reply:
		return stale
	case <-w.catacomb.Dying():
		return false
	}
}

// Report is part of dependency.Reporter.
func (w *Worker) Report() map[string]interface{} {
	return map[string]interface{}{
		"window": w.config.Window.String(),
	}
}

func (w *Worker) loop() error {
	for {
		select {
		case <-w.catacomb.Dying():
			return w.catacomb.ErrDying()

		case resource := <-w.pings:
			now := w.config.Clock.Now()
			w.lastSeen[resource] = now
			delete(w.announced, resource)
			w.setNextTimeout(now.Add(w.config.Window))

		case q := <-w.queries:
			q.reply <- w.stale(q.resource, w.config.Clock.Now())

		case now := <-w.timerChan():
			w.tick(now)
		}
	}
}

func (w *Worker) timerChan() <-chan time.Time {
	if w.timer == nil {
		return nil
	}
	return w.timer.Chan()
}

func (w *Worker) stale(resource string, now time.Time) bool {
	seen, found := w.lastSeen[resource]
	if !found {
		return false
	}
	return !now.Before(seen.Add(w.config.Window))
}

// tick announces every resource that has newly gone stale and re-arms the
// timer for the next pending deadline, if any.
func (w *Worker) tick(now time.Time) {
	var next time.Time
	for resource, seen := range w.lastSeen {
		deadline := seen.Add(w.config.Window)
		if now.Before(deadline) {
			if next.IsZero() || deadline.Before(next) {
				next = deadline
			}
			continue
		}
		if w.announced[resource] {
			continue
		}
		w.announced[resource] = true
		logger.Warningf("holder of %q silent for %v, lease now stale", resource, now.Sub(seen))
		if w.config.Hub != nil {
			_ = w.config.Hub.Publish(TopicLeaseStale, StaleEvent{
				Resource: resource,
				LastSeen: seen,
			})
		}
	}
	if !next.IsZero() {
		w.setNextTimeout(next)
	}
}

func (w *Worker) setNextTimeout(t time.Time) {
	now := w.config.Clock.Now()

	// Never walk an armed deadline backwards past a check we still owe,
	// unless the old deadline has already been reached.
	if w.timer != nil && w.nextTimeout.After(now) && !t.Before(w.nextTimeout) {
		return
	}
	w.nextTimeout = t

	d := t.Sub(now)
	if w.timer == nil {
		w.timer = w.config.Clock.NewTimer(d)
		return
	}
	// Timer.Reset isn't safe on a running timer; stop it and make an
	// attempt to drain before re-arming.
	if !w.timer.Stop() {
		select {
		case <-w.timer.Chan():
		default:
		}
	}
	w.timer.Reset(d)
}
