// Copyright 2026 Ardent Robotics Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package apiserver

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/ardent-robotics/warden/rpc/params"
)

var websocketUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleRetainStream serves the long-lived keep-alive stream: one
// RetainLeaseRequest per frame in, one RetainLeaseResponse per frame out.
// The server never initiates closure; a client that stops sending simply
// goes stale by elapsed time, so an ungraceful disconnect needs no special
// handling here.
func (s *Server) handleRetainStream(w http.ResponseWriter, req *http.Request) {
	conn, err := websocketUpgrader.Upgrade(w, req, nil)
	if err != nil {
		logger.Errorf("problem initiating retain stream: %v", err)
		return
	}
	defer func() { _ = conn.Close() }()
	logger.Debugf("retain stream opened from %s", req.RemoteAddr)

	for {
		var args params.RetainLeaseRequest
		if err := conn.ReadJSON(&args); err != nil {
			logger.Debugf("retain stream from %s closed: %v", req.RemoteAddr, err)
			return
		}
		result := s.config.Backend.Retain(args.Lease.ToLease())
		resp := params.RetainLeaseResponse{
			LeaseUseResult: params.FromUseResult(result),
		}
		if err := conn.WriteJSON(resp); err != nil {
			logger.Debugf("writing to retain stream from %s: %v", req.RemoteAddr, err)
			return
		}
	}
}
