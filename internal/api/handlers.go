// Package api implements HTTP handlers and helpers for the carevrp service.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"carevrp/internal/model"
	"carevrp/internal/store"
	"carevrp/internal/vrp"
)

// maxBody caps instance and patch documents.
const maxBody = 1 << 20

func (s *Server) limits() vrp.Limits { return s.Config.EngineConfig().Limits }

// checkInstance runs the validation the engine would, so malformed
// documents are rejected at the door instead of failing a queued solve.
func (s *Server) checkInstance(in *vrp.Instance) error {
	if err := in.Validate(s.limits()); err != nil {
		return err
	}
	_, err := vrp.NewCatalog(in)
	return err
}

// writeStoreError maps store and domain errors to problem responses.
func writeStoreError(w http.ResponseWriter, r *http.Request, title string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error(), r.URL.Path)
	case errors.Is(err, vrp.ErrUnknownTask):
		writeProblem(w, http.StatusNotFound, "Unknown task", err.Error(), r.URL.Path)
	case errors.Is(err, vrp.ErrInvalidInstance):
		writeInvalid(w, r, err)
	default:
		writeProblem(w, http.StatusInternalServerError, title, err.Error(), r.URL.Path)
	}
}

// InstancesHandler handles POST/GET /v1/instances
func (s *Server) InstancesHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		doc, err := model.DecodeInstance(http.MaxBytesReader(w, r.Body, maxBody), model.IsYAML(r.Header.Get("Content-Type")))
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid document", err.Error(), r.URL.Path)
			return
		}
		if err := s.checkInstance(doc.ToVRP()); err != nil {
			writeStoreError(w, r, "Create instance failed", err)
			return
		}
		rec, err := s.Store.CreateInstance(r.Context(), doc)
		if err != nil {
			writeStoreError(w, r, "Create instance failed", err)
			return
		}
		writeJSON(w, http.StatusCreated, rec)
	case http.MethodGet:
		cursor := r.URL.Query().Get("cursor")
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be a positive integer", r.URL.Path)
				return
			}
			limit = n
		}
		items, next, err := s.Store.ListInstances(r.Context(), cursor, limit)
		if err != nil {
			writeStoreError(w, r, "List instances failed", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// InstanceByIDHandler handles /v1/instances/{id} and its sub-resources:
// /tasks/{taskId}, /depot, /solve and /solves.
func (s *Server) InstanceByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/instances/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if parts[0] == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	id := parts[0]
	switch {
	case len(parts) == 1:
		s.instance(w, r, id)
	case len(parts) == 3 && parts[1] == "tasks":
		s.patchTask(w, r, id, parts[2])
	case len(parts) == 2 && parts[1] == "depot":
		s.patchDepot(w, r, id)
	case len(parts) == 2 && parts[1] == "solve":
		s.enqueueSolve(w, r, id)
	case len(parts) == 2 && parts[1] == "solves":
		s.listSolves(w, r, id)
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	}
}

func (s *Server) instance(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		rec, err := s.Store.GetInstance(r.Context(), id)
		if err != nil {
			writeStoreError(w, r, "Get instance failed", err)
			return
		}
		// the bare document, in the requested format, for export
		if r.URL.Query().Get("format") == "yaml" || model.IsYAML(r.Header.Get("Accept")) {
			w.Header().Set("Content-Type", "application/yaml")
			_ = model.EncodeInstance(w, rec.Instance, true)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	case http.MethodDelete:
		if err := s.Store.DeleteInstance(r.Context(), id); err != nil {
			writeStoreError(w, r, "Delete instance failed", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) edit(w http.ResponseWriter, r *http.Request, id string, fn func(in *vrp.Instance) error) {
	rec, err := s.Store.EditInstance(r.Context(), id, func(in *vrp.Instance) error {
		if err := fn(in); err != nil {
			return err
		}
		return s.checkInstance(in)
	})
	if err != nil {
		writeStoreError(w, r, "Edit instance failed", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) patchTask(w http.ResponseWriter, r *http.Request, id, rawTask string) {
	if r.Method != http.MethodPatch {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	taskID, err := strconv.Atoi(rawTask)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Unknown task", "task id must be an integer", r.URL.Path)
		return
	}
	var p model.TaskPatch
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	s.edit(w, r, id, func(in *vrp.Instance) error { return p.Apply(in, taskID) })
}

func (s *Server) patchDepot(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPatch {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var p model.DepotPatch
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if p.Lat == nil || p.Lon == nil {
		writeProblem(w, http.StatusBadRequest, "Invalid depot", "lat and lon are required", r.URL.Path)
		return
	}
	s.edit(w, r, id, func(in *vrp.Instance) error {
		in.MoveDepot(vrp.Point{Lat: *p.Lat, Lon: *p.Lon})
		return nil
	})
}

func validateSolveRequest(req *model.SolveRequest) error {
	if req.CallbackURL == "" {
		if req.Secret != "" {
			return errors.New("secret requires callbackUrl")
		}
		return nil
	}
	u, err := url.Parse(req.CallbackURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("callbackUrl must be an absolute http(s) URL")
	}
	return nil
}

func (s *Server) enqueueSolve(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.solveLimiter != nil && !s.solveLimiter.Allow() {
		w.Header().Set("Retry-After", "1")
		writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", "solve rate limit exceeded", r.URL.Path)
		return
	}
	var req model.SolveRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateSolveRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid solve request", err.Error(), r.URL.Path)
		return
	}
	run, err := s.Store.EnqueueSolve(r.Context(), id, req)
	if err != nil {
		writeStoreError(w, r, "Enqueue solve failed", err)
		return
	}
	w.Header().Set("Location", "/v1/solves/"+run.ID)
	writeJSON(w, http.StatusAccepted, map[string]any{"solveId": run.ID, "status": run.Status, "revision": run.Revision})
}

func (s *Server) listSolves(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, err := s.Store.GetInstance(r.Context(), id); err != nil {
		writeStoreError(w, r, "List solves failed", err)
		return
	}
	runs, err := s.Store.ListSolves(r.Context(), id)
	if err != nil {
		writeStoreError(w, r, "List solves failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": runs})
}

// SolveByIDHandler handles GET /v1/solves/{id} and /v1/solves/{id}/events/stream
func (s *Server) SolveByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/solves/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if parts[0] == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	id := parts[0]
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch {
	case len(parts) == 1:
		run, err := s.Store.GetSolve(r.Context(), id)
		if err != nil {
			writeStoreError(w, r, "Get solve failed", err)
			return
		}
		writeJSON(w, http.StatusOK, run)
	case len(parts) == 3 && parts[1] == "events" && parts[2] == "stream":
		s.streamSolve(w, r, id)
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	}
}
