// Copyright 2026 Ardent Robotics Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package api is the client library for a warden registry. It wraps the
// five lease operations, converts wire codes back into the core sentinel
// errors, and provides a retrying acquire and a keep-alive worker.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"gopkg.in/retry.v1"

	"github.com/ardent-robotics/warden/core/lease"
	"github.com/ardent-robotics/warden/rpc/params"
)

var logger = loggo.GetLogger("warden.api")

const (
	// acquireRetries bounds AcquireLeaseWithRetry attempts while the
	// resource stays claimed.
	acquireRetries = 10

	// initialRetryDelay is the starting delay, increased exponentially up
	// to acquireRetries.
	initialRetryDelay = 50 * time.Millisecond

	// retryBackoffFactor is how much longer we wait after a failed
	// attempt.
	retryBackoffFactor = 1.6
)

// Config holds what a client needs to talk to a registry.
type Config struct {
	// BaseURL locates the registry API, e.g. "http://10.0.0.3:17071".
	BaseURL string

	// ClientName uniquely identifies this client to the registry;
	// UserName identifies its operator. Both travel on every claim.
	ClientName string
	UserName   string

	// Clock drives retry backoff. Defaults to the wall clock.
	Clock clock.Clock

	// HTTPClient may be supplied to control transport behaviour; the
	// default client is used otherwise.
	HTTPClient *http.Client
}

// Validate returns an error if the config is incomplete.
func (config Config) Validate() error {
	if config.BaseURL == "" {
		return errors.NotValidf("empty BaseURL")
	}
	if config.ClientName == "" {
		return errors.NotValidf("empty ClientName")
	}
	return nil
}

// Client talks to one warden registry. It is safe for concurrent use.
type Client struct {
	config Config
	http   *http.Client
}

// NewClient returns a client for the registry at config.BaseURL.
func NewClient(config Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if config.Clock == nil {
		config.Clock = clock.WallClock
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{config: config, http: httpClient}, nil
}

func (c *Client) owner() params.LeaseOwner {
	return params.LeaseOwner{
		ClientName: c.config.ClientName,
		UserName:   c.config.UserName,
	}
}

// AcquireLease claims the named resource. A refusal surfaces as one of the
// core sentinel errors; lease.IsClaimDenied identifies contention worth
// retrying.
func (c *Client) AcquireLease(ctx context.Context, resource string) (lease.Lease, error) {
	var resp params.AcquireLeaseResponse
	err := c.post(ctx, "/v1/lease/acquire", params.AcquireLeaseRequest{
		Resource: resource,
		Owner:    c.owner(),
	}, &resp)
	if err != nil {
		return lease.Lease{}, errors.Trace(err)
	}
	if err := params.ErrorFromCode(resp.Status); err != nil {
		return lease.Lease{}, errors.Trace(err)
	}
	return resp.Lease.ToLease(), nil
}

// AcquireLeaseWithRetry claims the named resource, retrying contention
// with exponential backoff until the context is cancelled or the attempt
// budget runs out. Other failures are returned immediately.
func (c *Client) AcquireLeaseWithRetry(ctx context.Context, resource string) (lease.Lease, error) {
	strategy := retry.LimitCount(acquireRetries, retry.Exponential{
		Initial: initialRetryDelay,
		Factor:  retryBackoffFactor,
		Jitter:  true,
	})
	var lastErr error
	for a := retry.StartWithCancel(strategy, c.config.Clock, ctx.Done()); a.Next(); {
		issued, err := c.AcquireLease(ctx, resource)
		if err == nil {
			return issued, nil
		}
		if !lease.IsClaimDenied(err) {
			return lease.Lease{}, errors.Trace(err)
		}
		lastErr = err
		if a.More() {
			logger.Debugf("%q still claimed, retrying", resource)
		}
	}
	if err := ctx.Err(); err != nil {
		return lease.Lease{}, errors.Trace(err)
	}
	return lease.Lease{}, errors.Trace(lastErr)
}

// TakeLease forcibly supersedes whatever lease currently covers the named
// resource. Reserved for recovery paths; prefer AcquireLease.
func (c *Client) TakeLease(ctx context.Context, resource string) (lease.Lease, error) {
	var resp params.TakeLeaseResponse
	err := c.post(ctx, "/v1/lease/take", params.TakeLeaseRequest{
		Resource: resource,
		Owner:    c.owner(),
	}, &resp)
	if err != nil {
		return lease.Lease{}, errors.Trace(err)
	}
	if err := params.ErrorFromCode(resp.Status); err != nil {
		return lease.Lease{}, errors.Trace(err)
	}
	return resp.Lease.ToLease(), nil
}

// ReturnLease gives the lease back, releasing the resource for others.
func (c *Client) ReturnLease(ctx context.Context, l lease.Lease) error {
	var resp params.ReturnLeaseResponse
	err := c.post(ctx, "/v1/lease/return", params.ReturnLeaseRequest{
		Lease: params.FromLease(l),
	}, &resp)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(params.ErrorFromCode(resp.Status))
}

// RetainLease proves liveness once. Long-lived holders should prefer a
// KeepAlive worker, which retains over a stream at the right cadence.
func (c *Client) RetainLease(ctx context.Context, l lease.Lease) (lease.UseResult, error) {
	var resp params.RetainLeaseResponse
	err := c.post(ctx, "/v1/lease/retain", params.RetainLeaseRequest{
		Lease: params.FromLease(l),
	}, &resp)
	if err != nil {
		return lease.UseResult{}, errors.Trace(err)
	}
	return resp.LeaseUseResult.ToUseResult(), nil
}

// ListLeases returns the registry's snapshot of every resource, with full
// lease and owner details when full is true.
func (c *Client) ListLeases(ctx context.Context, full bool) (params.ListLeasesResponse, error) {
	url := c.config.BaseURL + "/v1/leases"
	if full {
		url += "?full=true"
	}
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return params.ListLeasesResponse{}, errors.Trace(err)
	}
	var resp params.ListLeasesResponse
	if err := c.do(req, &resp); err != nil {
		return params.ListLeasesResponse{}, errors.Trace(err)
	}
	return resp, nil
}

func (c *Client) post(ctx context.Context, path string, body, into interface{}) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return errors.Trace(err)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", c.config.BaseURL+path, bytes.NewReader(buf))
	if err != nil {
		return errors.Trace(err)
	}
	req.Header.Set("Content-Type", "application/json")
	return errors.Trace(c.do(req, into))
}

func (c *Client) do(req *http.Request, into interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Trace(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		var apiErr params.Error
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Message != "" {
			return errors.Trace(&apiErr)
		}
		return errors.Errorf("registry returned %s", resp.Status)
	}
	return errors.Trace(json.NewDecoder(resp.Body).Decode(into))
}

// RetainStreamURL is where KeepAlive connects its websocket.
func (c *Client) RetainStreamURL() (string, error) {
	base := c.config.BaseURL
	switch {
	case len(base) >= 8 && base[:8] == "https://":
		return "wss://" + base[8:] + "/v1/retain-stream", nil
	case len(base) >= 7 && base[:7] == "http://":
		return "ws://" + base[7:] + "/v1/retain-stream", nil
	}
	return "", errors.NotValidf("base URL %q", base)
}

// String is used in logs.
func (c *Client) String() string {
	return fmt.Sprintf("warden client %s -> %s", c.config.ClientName, c.config.BaseURL)
}
