// Package server provides the HTTP handlers and routing for the MCP server.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shirou/gopsutil/v3/process"

	"intel-mcp/internal/logger"
	"intel-mcp/internal/mcp"
)

// maxBodyBytes caps request bodies on the JSON-RPC routes.
const maxBodyBytes = 4 << 20

// ReimportFunc reloads the key-value source and reports the record count.
type ReimportFunc func(ctx context.Context) (int, error)

// Option customises a Server.
type Option func(*Server)

// WithReimport enables POST /mcp/scheduled.
func WithReimport(fn ReimportFunc) Option {
	return func(s *Server) { s.reimport = fn }
}

// WithRequestTimeout bounds each HTTP request.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// Server contains the configured router and the dispatcher it serves.
type Server struct {
	dispatcher *mcp.Dispatcher
	router     *chi.Mux
	reimport   ReimportFunc
	timeout    time.Duration
	started    time.Time
	proc       *process.Process
	log        *slog.Logger
}

// New constructs a Server with middleware and routes configured.
func New(d *mcp.Dispatcher, opts ...Option) *Server {
	s := &Server{
		dispatcher: d,
		router:     chi.NewRouter(),
		timeout:    60 * time.Second,
		started:    time.Now(),
		log:        logger.ForComponent("http"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		s.proc = p
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  slog.NewLogLogger(s.log.Handler(), slog.LevelInfo),
		NoColor: true,
	}))
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(s.timeout))

	s.router.Get("/health", s.handleHealth)

	s.router.Route("/mcp", func(r chi.Router) {
		r.Post("/", s.handleRPC)
		r.Get("/tools", s.handleListTools)
		r.Post("/call", s.handleCall)
		r.Post("/scheduled", s.handleScheduled)
	})

	return s
}

// Router exposes the root HTTP handler for the server.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	uptime := time.Since(s.started)
	h := Health{
		Status:        "ok",
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: int64(uptime.Seconds()),
		Goroutines:    runtime.NumGoroutine(),
		Tools:         s.dispatcher.Registry().Len(),
	}
	if s.proc != nil {
		if mem, err := s.proc.MemoryInfo(); err == nil {
			h.RSSBytes = mem.RSS
		}
		if cpu, err := s.proc.CPUPercent(); err == nil {
			h.CPUPercent = cpu
		}
	}
	writeJSON(w, http.StatusOK, h)
}

// handleRPC serves the JSON-RPC endpoint. Notifications are acknowledged
// with 202 and no body.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}
	resp := s.dispatcher.HandleRaw(r.Context(), body)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	resp := s.dispatcher.Handle(r.Context(), &mcp.Request{
		JSONRPC: mcp.JSONRPCVersion,
		ID:      json.RawMessage(`"tools"`),
		Method:  mcp.MethodListTools,
	})
	if resp.Error != nil {
		writeJSON(w, statusFor(resp.Error.Code), map[string]any{"error": resp.Error})
		return
	}
	writeJSON(w, http.StatusOK, resp.Result)
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	var req CallRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	params, err := json.Marshal(req)
	if err != nil {
		http.Error(w, "invalid arguments", http.StatusBadRequest)
		return
	}

	resp := s.dispatcher.Handle(r.Context(), &mcp.Request{
		JSONRPC: mcp.JSONRPCVersion,
		ID:      json.RawMessage(`"call"`),
		Method:  mcp.MethodCallTool,
		Params:  params,
	})
	if resp.Error != nil {
		writeJSON(w, statusFor(resp.Error.Code), map[string]any{"error": resp.Error})
		return
	}
	writeJSON(w, http.StatusOK, resp.Result)
}

// handleScheduled is intended to be called by a scheduler to reload the
// key-value source after it has been updated.
func (s *Server) handleScheduled(w http.ResponseWriter, r *http.Request) {
	if s.reimport == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no key-value source configured"})
		return
	}
	n, err := s.reimport(r.Context())
	if err != nil {
		s.log.Error("scheduled re-import failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	s.log.Info("scheduled re-import finished", "records", n)
	writeJSON(w, http.StatusOK, map[string]any{"status": "scheduled task completed", "records": n})
}

// statusFor maps a JSON-RPC error code onto the convenience routes' status.
func statusFor(code int) int {
	switch code {
	case mcp.CodeParseError, mcp.CodeInvalidRequest, mcp.CodeInvalidParams:
		return http.StatusBadRequest
	case mcp.CodeMethodNotFound, mcp.CodeNotFound:
		return http.StatusNotFound
	case mcp.CodeUpstreamError:
		return http.StatusBadGateway
	case mcp.CodeMissingCredential:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
