package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alexanderramin/branchplan/internal/contract"
	"github.com/alexanderramin/branchplan/internal/domain"
	"github.com/alexanderramin/branchplan/internal/importer"
	"github.com/alexanderramin/branchplan/internal/repository"
	"github.com/alexanderramin/branchplan/internal/service"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxBodyBytes = 1 << 20

// Deps wires the API server.
type Deps struct {
	Projects  service.ProjectService
	Scenarios service.ScenarioService
	// Imports serves project import and export; nil disables those routes.
	Imports service.ImportService
	Logger  *slog.Logger
	// Gatherer serves /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
	// Metrics instruments every route; nil disables instrumentation.
	Metrics *Metrics
	// Ping reports storage health for /api/health; nil always reports ok.
	Ping func(ctx context.Context) error
}

type Server struct {
	deps Deps
}

func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{deps: deps}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(loggingMiddleware(s.deps.Logger))
	if s.deps.Metrics != nil {
		r.Use(s.deps.Metrics.Middleware)
	}

	r.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	if s.deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	r.HandleFunc("/api/projects", s.handleCreateProject).Methods(http.MethodPost)
	r.HandleFunc("/api/projects", s.handleListProjects).Methods(http.MethodGet)
	r.HandleFunc("/api/projects/{projectID}", s.handleGetProject).Methods(http.MethodGet)
	if s.deps.Imports != nil {
		r.HandleFunc("/api/projects/import", s.handleImportProject).Methods(http.MethodPost)
		r.HandleFunc("/api/projects/{projectID}/export", s.handleExportProject).Methods(http.MethodGet)
	}
	r.HandleFunc("/api/projects/{projectID}/scenarios/tree", s.handleTree).Methods(http.MethodGet)
	r.HandleFunc("/api/projects/{projectID}/notifications", s.handleListNotifications).Methods(http.MethodGet)
	r.HandleFunc("/api/notifications/{id}/read", s.handleMarkRead).Methods(http.MethodPost)

	r.HandleFunc("/api/scenarios/{id}", s.handleGetScenario).Methods(http.MethodGet)
	r.HandleFunc("/api/scenarios/{id}", s.handleDeleteScenario).Methods(http.MethodDelete)
	r.HandleFunc("/api/scenarios/{id}/resolve", s.handleResolve).Methods(http.MethodGet)
	r.HandleFunc("/api/scenarios/{id}/branches", s.handleCreateBranch).Methods(http.MethodPost)
	r.HandleFunc("/api/scenarios/{id}/steps/{step}", s.handleUpsertStep).Methods(http.MethodPut)
	r.HandleFunc("/api/scenarios/{id}/status", s.handleTransition).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, &contract.ErrorResponse{Code: domain.KindNotFound, Message: "route not found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, &contract.ErrorResponse{Code: domain.KindInvalidArgument, Message: "method not allowed"})
	})
	return r
}

// ListenAndServe serves the API on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.deps.Logger.Info("http_listen", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.deps.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req contract.CreateProjectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p := req.ToProject()
	if req.Root == nil {
		if err := s.deps.Projects.Create(r.Context(), p); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, contract.NewProjectResponse(p, nil))
		return
	}
	root, err := s.deps.Projects.CreateWithRoot(r.Context(), p, req.Root.ToMetadata())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, contract.NewProjectResponse(p, root))
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.deps.Projects.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]contract.ProjectResponse, 0, len(projects))
	for _, p := range projects {
		out = append(out, contract.NewProjectResponse(p, nil))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Projects.Find(r.Context(), mux.Vars(r)["projectID"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contract.NewProjectResponse(p, nil))
}

func (s *Server) handleImportProject(w http.ResponseWriter, r *http.Request) {
	var schema importer.ImportSchema
	if !decodeBody(w, r, &schema) {
		return
	}
	res, err := s.deps.Imports.ImportProjectFromSchema(r.Context(), &schema)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, contract.ImportResponse{
		Project:       contract.NewProjectResponse(res.Project, nil),
		ScenarioCount: res.ScenarioCount,
		DeltaCount:    res.DeltaCount,
	})
}

func (s *Server) handleExportProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Projects.Find(r.Context(), mux.Vars(r)["projectID"])
	if err != nil {
		writeError(w, err)
		return
	}
	schema, err := s.deps.Imports.ExportProject(r.Context(), p.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, schema)
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	tree, err := s.deps.Scenarios.GetScenarioTree(r.Context(), mux.Vars(r)["projectID"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

// handleResolve returns the resolved scenario, or with ?step=N&path=P the
// single value at gjson path P of step N.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	resolved, err := s.deps.Scenarios.ResolveScenario(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}

	q := r.URL.Query()
	if q.Get("path") == "" {
		writeJSON(w, http.StatusOK, resolved)
		return
	}
	step, err := strconv.Atoi(q.Get("step"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, contract.ErrBadRequest("step must be a number when path is given"))
		return
	}
	res, err := resolved.Lookup(step, q.Get("path"))
	if err != nil {
		writeError(w, err)
		return
	}
	value := json.RawMessage("null")
	if res.Exists() {
		value = json.RawMessage(res.Raw)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scenario_id": resolved.ScenarioID,
		"step_number": step,
		"path":        q.Get("path"),
		"exists":      res.Exists(),
		"value":       value,
	})
}

func (s *Server) handleGetScenario(w http.ResponseWriter, r *http.Request) {
	node, err := s.deps.Scenarios.GetNode(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contract.NewNodeResponse(node))
}

func (s *Server) handleCreateBranch(w http.ResponseWriter, r *http.Request) {
	var req contract.CreateBranchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	node, err := s.deps.Scenarios.CreateBranch(r.Context(), mux.Vars(r)["id"], req.BranchAtStep, req.ToMetadata())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, contract.NewNodeResponse(node))
}

func (s *Server) handleUpsertStep(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	step, err := strconv.Atoi(vars["step"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, contract.ErrBadRequest(fmt.Sprintf("step %q is not a number", vars["step"])))
		return
	}
	var req contract.StepRequest
	if !decodeBody(w, r, &req) {
		return
	}
	delta, err := s.deps.Scenarios.UpsertDelta(r.Context(), vars["id"], step, req.ToPayload())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contract.NewDeltaResponse(delta))
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	var req contract.TransitionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	node, err := s.deps.Scenarios.TransitionStatus(r.Context(), mux.Vars(r)["id"], req.Status, req.ToOptions())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contract.NewNodeResponse(node))
}

func (s *Server) handleDeleteScenario(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Scenarios.DeleteScenario(r.Context(), mux.Vars(r)["id"], r.URL.Query().Get("actor")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter repository.NotificationFilter
	if v := q.Get("role"); v != "" {
		role := domain.CreatorRole(v)
		filter.Role = &role
	}
	if v := q.Get("unread"); v != "" {
		unread, err := strconv.ParseBool(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, contract.ErrBadRequest("unread must be a boolean"))
			return
		}
		filter.UnreadOnly = unread
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeJSON(w, http.StatusBadRequest, contract.ErrBadRequest("limit must be a non-negative number"))
			return
		}
		filter.Limit = limit
	}

	ns, err := s.deps.Scenarios.ListNotifications(r.Context(), mux.Vars(r)["projectID"], filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contract.NewNotificationResponses(ns))
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Scenarios.MarkNotificationRead(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindInvalidArgument:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	resp := contract.NewErrorResponse(err)
	writeJSON(w, statusFor(resp.Code), resp)
}

func decodeBody(w http.ResponseWriter, r *http.Request, target any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		writeJSON(w, http.StatusBadRequest, contract.ErrBadRequest("invalid JSON body: "+err.Error()))
		return false
	}
	return true
}
