// Package gateway serves the MCP transports, a JSON API over skills, tools
// and run history, and a WebSocket event stream.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dohr-michael/bizclaw/internal/config"
	"github.com/dohr-michael/bizclaw/internal/erp"
	"github.com/dohr-michael/bizclaw/internal/events"
	"github.com/dohr-michael/bizclaw/internal/gateway/ws"
	"github.com/dohr-michael/bizclaw/internal/mcp"
	"github.com/dohr-michael/bizclaw/internal/scheduler"
	"github.com/dohr-michael/bizclaw/internal/skills"
	"github.com/dohr-michael/bizclaw/internal/storage"
	"github.com/dohr-michael/bizclaw/internal/tools"
)

// RunHistory is the read side of the run store.
type RunHistory interface {
	List(ctx context.Context, opts storage.ListOptions) ([]storage.RunSummary, error)
	Get(ctx context.Context, id string) (*skills.RunRecord, error)
}

// Config holds the gateway's collaborators. Runs, Scheduler and Reload are optional.
type Config struct {
	Server      config.ServerConfig
	ERPURL      string
	Bus         *events.Bus
	Registry    *tools.ToolRegistry
	Executor    *skills.Executor
	Runs        RunHistory
	EventLogDir string
	Scheduler   *scheduler.Scheduler
	Reload      func() *skills.Store
}

// Server is the bizclaw HTTP server.
type Server struct {
	httpServer *http.Server
	hub        *ws.Hub
	cfg        Config
}

// NewServer creates a new gateway server.
func NewServer(cfg Config) *Server {
	s := &Server{cfg: cfg}
	s.hub = ws.NewHub(cfg.Bus, s, s.user, cfg.Server.CORSOrigins)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	origins := cfg.Server.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: allowedHeaders(cfg.Server.UserHeader),
		ExposedHeaders: []string{"Mcp-Session-Id"},
	}))

	getServer := func(req *http.Request) *mcpsdk.Server {
		return mcp.NewMCPServer(cfg.Registry, mcp.Options{User: s.user(req)}).Server
	}
	r.Handle("/mcp", mcpsdk.NewStreamableHTTPHandler(getServer, nil))
	r.Handle("/sse", mcpsdk.NewSSEHandler(getServer, nil))

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/ws", s.hub.ServeWS)
		r.Get("/events", s.handleEvents)

		r.Get("/tools", s.handleTools)
		r.Post("/tools/{name}/call", s.handleCallTool)

		r.Get("/skills", s.handleSkills)
		r.Post("/skills/reload", s.handleReloadSkills)
		r.Get("/skills/{name}", s.handleSkill)
		r.Post("/skills/{name}/execute", s.handleExecuteSkill)

		r.Get("/runs", s.handleRuns)
		r.Get("/runs/{id}", s.handleRun)

		r.Get("/schedules", s.handleSchedules)
		r.Post("/schedules/{name}/run", s.handleRunSchedule)
	})

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.httpServer.Addr }

// Start begins listening. It blocks until the server is stopped.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	slog.Info("bizclaw gateway listening", "addr", ln.Addr().String())
	if err := s.httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

// user resolves the acting ERP user of a request.
func (s *Server) user(r *http.Request) string {
	if h := s.cfg.Server.UserHeader; h != "" {
		if u := r.Header.Get(h); u != "" {
			return u
		}
	}
	return s.cfg.Server.DefaultUser
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"name":      s.cfg.Server.Name,
		"version":   config.Version,
		"erp_url":   s.cfg.ERPURL,
		"skills":    s.cfg.Executor.Store().Len(),
		"tools":     len(s.cfg.Registry.ToolNames()),
		"ws":        s.hub.Len(),
		"dropped":   s.cfg.Bus.Dropped(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := events.Query{
		RunID: r.URL.Query().Get("run_id"),
		Limit: queryInt(r, "limit", 50),
	}
	for _, t := range r.URL.Query()["type"] {
		q.Types = append(q.Types, events.EventType(t))
	}
	history := s.cfg.Bus.Find(q)
	if history == nil {
		history = []events.Event{}
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleTools(w http.ResponseWriter, _ *http.Request) {
	list := []any{}
	for _, name := range s.cfg.Registry.ToolNames() {
		spec := s.cfg.Registry.ToolSpec(name)
		if spec == nil {
			continue
		}
		list = append(list, spec)
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": list, "count": len(list)})
}

func (s *Server) handleCallTool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var args map[string]any
	if err := decodeBody(r, &args); err != nil {
		writeError(w, erp.Errorf(erp.KindInvalidInput, "invalid JSON body: %v", err), name)
		return
	}

	out, err := s.cfg.Registry.Execute(skills.WithTrigger(r.Context(), "api"), name, args, s.user(r))
	if err != nil {
		writeError(w, err, name)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSkills(w http.ResponseWriter, _ *http.Request) {
	st := s.cfg.Executor.Store()
	list := []any{}
	for _, sk := range st.List() {
		list = append(list, map[string]any{
			"name":        sk.Name,
			"description": sk.Description,
			"steps":       len(sk.Workflow.Steps),
			"tools":       sk.ToolNames(),
		})
	}
	errs := []string{}
	for _, err := range st.Errors() {
		errs = append(errs, err.Error())
	}
	writeJSON(w, http.StatusOK, map[string]any{"skills": list, "count": len(list), "errors": errs})
}

func (s *Server) handleSkill(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	sk := s.cfg.Executor.Store().Get(name)
	if sk == nil {
		writeError(w, erp.Errorf(erp.KindNotFound, "Skill not found: %s", name), "get_skill")
		return
	}
	writeJSON(w, http.StatusOK, skills.Describe(sk))
}

func (s *Server) handleExecuteSkill(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var body struct {
		Context map[string]any `json:"context"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, erp.Errorf(erp.KindInvalidInput, "invalid JSON body: %v", err), "execute_skill")
		return
	}

	res := s.cfg.Executor.Execute(skills.WithTrigger(r.Context(), "api"), name, body.Context, s.user(r))
	status := http.StatusOK
	if res.ErrorKind == erp.KindNotFound && res.Results == nil {
		status = http.StatusNotFound
	}
	writeJSON(w, status, res)
}

func (s *Server) handleReloadSkills(w http.ResponseWriter, _ *http.Request) {
	if s.cfg.Reload == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "skill reload not available"})
		return
	}
	st := s.cfg.Reload()
	writeJSON(w, http.StatusOK, map[string]any{"count": st.Len(), "errors": len(st.Errors())})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Runs == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "run history disabled"})
		return
	}
	q := r.URL.Query()
	runs, err := s.cfg.Runs.List(r.Context(), storage.ListOptions{
		Skill:  q.Get("skill"),
		Failed: q.Get("failed") == "true",
		Limit:  queryInt(r, "limit", 50),
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Runs == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "run history disabled"})
		return
	}
	id := chi.URLParam(r, "id")
	run, err := s.cfg.Runs.Get(r.Context(), id)
	if errors.Is(err, storage.ErrRunNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found: " + id})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	out := map[string]any{"run": run}
	if s.cfg.EventLogDir != "" {
		evs, err := storage.ReadRunEvents(s.cfg.EventLogDir, id)
		if err != nil {
			slog.Warn("read run events", "run_id", id, "error", err)
		}
		if evs == nil {
			evs = []events.Event{}
		}
		out["events"] = evs
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSchedules(w http.ResponseWriter, _ *http.Request) {
	if s.cfg.Scheduler == nil {
		writeJSON(w, http.StatusOK, []scheduler.Entry{})
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.Scheduler.Entries())
}

func (s *Server) handleRunSchedule(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Scheduler == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no schedules configured"})
		return
	}
	res, err := s.cfg.Scheduler.RunNow(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleRequest serves WebSocket request frames.
func (s *Server) HandleRequest(ctx context.Context, user string, method ws.Method, params json.RawMessage) (any, error) {
	ctx = skills.WithTrigger(ctx, "ws")
	switch method {
	case ws.MethodListSkills:
		list := []map[string]any{}
		for _, sk := range s.cfg.Executor.Store().List() {
			list = append(list, skills.Describe(sk))
		}
		return list, nil
	case ws.MethodExecuteSkill:
		var p struct {
			Name    string         `json:"name"`
			Context map[string]any `json:"context"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		return s.cfg.Executor.Execute(ctx, p.Name, p.Context, user), nil
	case ws.MethodListTools:
		return s.cfg.Registry.ToolNames(), nil
	case ws.MethodCallTool:
		var p struct {
			Name      string         `json:"name"`
			Arguments map[string]any `json:"arguments"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		return s.cfg.Registry.Execute(ctx, p.Name, p.Arguments, user)
	}
	return nil, fmt.Errorf("unknown method: %s", method)
}

func allowedHeaders(userHeader string) []string {
	h := []string{"Accept", "Authorization", "Content-Type", "Mcp-Session-Id"}
	if userHeader != "" {
		h = append(h, userHeader)
	}
	return h
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get(key)); err == nil && v > 0 {
		return v
	}
	return fallback
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps an ERP error kind to an HTTP status and writes the enriched error.
func writeError(w http.ResponseWriter, err error, operation string) {
	status := http.StatusBadGateway
	switch erp.KindOf(err) {
	case erp.KindInvalidInput, erp.KindValidation:
		status = http.StatusBadRequest
	case erp.KindPermission:
		status = http.StatusForbidden
	case erp.KindNotFound:
		status = http.StatusNotFound
	case erp.KindDuplicate:
		status = http.StatusConflict
	}
	writeJSON(w, status, erp.Enrich(err, "", operation))
}
