// Copyright 2026 Ardent Robotics Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package apiserver

import (
	"encoding/json"
	"net/http"

	"github.com/juju/errors"

	"github.com/ardent-robotics/warden/rpc/params"
)

func (s *Server) handleAcquire(w http.ResponseWriter, req *http.Request) {
	var args params.AcquireLeaseRequest
	if !readJSON(w, req, &args) {
		return
	}
	issued, err := s.config.Backend.Acquire(args.Resource, args.Owner.ToOwner())
	resp := params.AcquireLeaseResponse{Status: params.ServerCode(err)}
	if err == nil {
		resp.Lease = params.FromLeasePtr(&issued)
		owner := args.Owner
		resp.LeaseOwner = &owner
	} else {
		s.fillHolder(args.Resource, &resp.Lease, &resp.LeaseOwner)
	}
	sendJSON(w, resp)
}

func (s *Server) handleTake(w http.ResponseWriter, req *http.Request) {
	var args params.TakeLeaseRequest
	if !readJSON(w, req, &args) {
		return
	}
	issued, err := s.config.Backend.Take(args.Resource, args.Owner.ToOwner())
	resp := params.TakeLeaseResponse{Status: params.ServerCode(err)}
	if err == nil {
		resp.Lease = params.FromLeasePtr(&issued)
		owner := args.Owner
		resp.LeaseOwner = &owner
	}
	sendJSON(w, resp)
}

func (s *Server) handleReturn(w http.ResponseWriter, req *http.Request) {
	var args params.ReturnLeaseRequest
	if !readJSON(w, req, &args) {
		return
	}
	err := s.config.Backend.Return(args.Lease.ToLease())
	sendJSON(w, params.ReturnLeaseResponse{Status: params.ServerCode(err)})
}

func (s *Server) handleRetain(w http.ResponseWriter, req *http.Request) {
	var args params.RetainLeaseRequest
	if !readJSON(w, req, &args) {
		return
	}
	result := s.config.Backend.Retain(args.Lease.ToLease())
	sendJSON(w, params.RetainLeaseResponse{
		LeaseUseResult: params.FromUseResult(result),
	})
}

func (s *Server) handleList(w http.ResponseWriter, req *http.Request) {
	full := req.URL.Query().Get("full") == "true"
	infos := s.config.Backend.Snapshot(full)
	resp := params.ListLeasesResponse{
		Resources:    make([]params.LeaseResource, 0, len(infos)),
		ResourceTree: s.config.Backend.ResourceTree(),
	}
	for _, info := range infos {
		entry := params.LeaseResource{
			Resource: info.Resource,
			Lease:    params.FromLeasePtr(info.Lease),
			IsStale:  info.Stale,
		}
		if info.Lease != nil {
			owner := params.FromOwner(info.Owner)
			entry.LeaseOwner = &owner
		}
		resp.Resources = append(resp.Resources, entry)
	}
	sendJSON(w, resp)
}

// fillHolder attaches the blocking holder's lease and owner to a refusal,
// so a denied client learns the authoritative state in one round trip.
func (s *Server) fillHolder(resource string, l **params.Lease, owner **params.LeaseOwner) {
	for _, info := range s.config.Backend.Snapshot(true) {
		if info.Resource != resource || info.Lease == nil {
			continue
		}
		*l = params.FromLeasePtr(info.Lease)
		o := params.FromOwner(info.Owner)
		*owner = &o
		return
	}
}

func readJSON(w http.ResponseWriter, req *http.Request, into interface{}) bool {
	if err := json.NewDecoder(req.Body).Decode(into); err != nil {
		sendError(w, http.StatusBadRequest, errors.Annotate(err, "decoding request"))
		return false
	}
	return true
}

func sendJSON(w http.ResponseWriter, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Errorf("writing response: %v", err)
	}
}

func sendError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(&params.Error{
		Code:    params.CodeUnknown,
		Message: err.Error(),
	})
}
