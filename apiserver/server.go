// Copyright 2026 Ardent Robotics Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package apiserver exposes the lease registry over HTTP/JSON: one POST
// endpoint per lease operation, a read-only listing, prometheus metrics,
// and a websocket stream for long-lived retains.
package apiserver

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/worker/v4/catacomb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ardent-robotics/warden/core/lease"
	"github.com/ardent-robotics/warden/core/resource"
)

var logger = loggo.GetLogger("warden.apiserver")

const shutdownTimeout = 30 * time.Second

// Backend is the registry surface the server needs. *registry.Registry
// satisfies it.
type Backend interface {
	Acquire(resource string, owner lease.Owner) (lease.Lease, error)
	Take(resource string, owner lease.Owner) (lease.Lease, error)
	Return(l lease.Lease) error
	Retain(l lease.Lease) lease.UseResult
	Snapshot(full bool) []lease.Info
	ResourceTree() []resource.Spec
}

// Config holds the server's dependencies.
type Config struct {
	// ListenAddress is the TCP address to bind, e.g. ":17071". Use ":0"
	// to pick a free port and read it back from Addr.
	ListenAddress string

	// Backend handles the lease operations.
	Backend Backend

	// Gatherer, if set, is served on /metrics.
	Gatherer prometheus.Gatherer
}

// Validate returns an error if the config is incomplete.
func (config Config) Validate() error {
	if config.ListenAddress == "" {
		return errors.NotValidf("empty ListenAddress")
	}
	if config.Backend == nil {
		return errors.NotValidf("nil Backend")
	}
	return nil
}

// Server runs the HTTP API as a worker.
type Server struct {
	catacomb catacomb.Catacomb
	config   Config
	listener net.Listener
}

// NewServer binds the listen address and starts serving.
func NewServer(config Config) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	listener, err := net.Listen("tcp", config.ListenAddress)
	if err != nil {
		return nil, errors.Annotate(err, "binding API listener")
	}
	s := &Server{
		config:   config,
		listener: listener,
	}
	if err := catacomb.Invoke(catacomb.Plan{
		Name: "apiserver",
		Site: &s.catacomb,
		Work: s.loop,
	}); err != nil {
		_ = listener.Close()
		return nil, errors.Trace(err)
	}
	return s, nil
}

// Kill is part of the worker.Worker interface.
func (s *Server) Kill() {
	s.catacomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (s *Server) Wait() error {
	return s.catacomb.Wait()
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

func (s *Server) loop() error {
	router := mux.NewRouter()
	router.HandleFunc("/v1/lease/acquire", s.handleAcquire).Methods("POST")
	router.HandleFunc("/v1/lease/take", s.handleTake).Methods("POST")
	router.HandleFunc("/v1/lease/return", s.handleReturn).Methods("POST")
	router.HandleFunc("/v1/lease/retain", s.handleRetain).Methods("POST")
	router.HandleFunc("/v1/leases", s.handleList).Methods("GET")
	router.HandleFunc("/v1/retain-stream", s.handleRetainStream).Methods("GET")
	if s.config.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{}))
	}

	srv := &http.Server{Handler: router}
	served := make(chan error, 1)
	go func() {
		served <- srv.Serve(s.listener)
	}()
	logger.Infof("listening on %s", s.Addr())

	select {
	case <-s.catacomb.Dying():
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warningf("error shutting down API server: %v", err)
		}
		<-served
		return s.catacomb.ErrDying()
	case err := <-served:
		return errors.Annotate(err, "API server stopped unexpectedly")
	}
}
