// Copyright 2026 Ardent Robotics Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// wardend is the lease arbitration daemon: it loads the resource tree from
// its config file, arbitrates Acquire/Take/Return/Retain over HTTP, and
// marks silent holders stale.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"github.com/juju/loggo"
	"github.com/juju/pubsub/v2"
	"github.com/juju/worker/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ardent-robotics/warden/apiserver"
	"github.com/ardent-robotics/warden/internal/config"
	"github.com/ardent-robotics/warden/internal/registry"
	"github.com/ardent-robotics/warden/internal/worker/liveness"
)

var logger = loggo.GetLogger("warden.cmd.wardend")

const (
	// exitErr is returned when wardend was invoked incorrectly or its
	// config is unusable.
	exitErr = 2
	// exitPanic is returned when we exit due to an unhandled panic.
	exitPanic = 3
)

func main() {
	os.Exit(Main(os.Args))
}

// Main is not redundant with main(), because it provides an entry point
// for testing with arbitrary command line arguments.
func Main(args []string) int {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			buf = buf[:runtime.Stack(buf, false)]
			logger.Criticalf("Unhandled panic: \n%v\n%s", r, buf)
			os.Exit(exitPanic)
		}
	}()

	flags := gnuflag.NewFlagSet("wardend", gnuflag.ContinueOnError)
	configPath := flags.String("config", "/etc/wardend/wardend.yaml", "path to the wardend config file")
	logConfig := flags.String("log-config", "<root>=INFO", "loggo configuration string")
	if err := flags.Parse(true, args[1:]); err != nil {
		if err == gnuflag.ErrHelp {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return exitErr
	}
	if err := loggo.ConfigureLoggers(*logConfig); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitErr
	}

	if err := run(*configPath); err != nil {
		logger.Errorf("%v", err)
		return 1
	}
	return 0
}

func run(configPath string) error {
	cfg, err := config.Read(configPath)
	if err != nil {
		return errors.Trace(err)
	}
	tree, err := cfg.Tree()
	if err != nil {
		return errors.Trace(err)
	}

	hub := pubsub.NewSimpleHub(nil)

	monitor, err := liveness.NewWorker(liveness.Config{
		Clock:  clock.WallClock,
		Window: cfg.Window(),
		Hub:    hub,
	})
	if err != nil {
		return errors.Trace(err)
	}
	defer stop("liveness monitor", monitor)

	reg, err := registry.New(registry.Config{
		Tree:      tree,
		Liveness:  monitor,
		Authority: cfg.Authority(),
		Hub:       hub,
	})
	if err != nil {
		return errors.Trace(err)
	}

	metrics := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		return errors.Trace(err)
	}

	server, err := apiserver.NewServer(apiserver.Config{
		ListenAddress: cfg.ListenAddress,
		Backend:       reg,
		Gatherer:      metrics,
	})
	if err != nil {
		return errors.Trace(err)
	}
	defer stop("API server", server)

	logger.Infof("wardend serving %d resources on %s, epoch %s",
		len(tree.Names()), server.Addr(), reg.Epoch())

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 2)
	go func() { done <- monitor.Wait() }()
	go func() { done <- server.Wait() }()

	select {
	case sig := <-signals:
		logger.Infof("received %v, shutting down", sig)
		return nil
	case err := <-done:
		return errors.Annotate(err, "worker failed")
	}
}

func stop(name string, w worker.Worker) {
	w.Kill()
	if err := w.Wait(); err != nil {
		logger.Warningf("stopping %s: %v", name, err)
	}
}
