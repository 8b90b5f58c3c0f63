// Package server exposes the chat turn and the project event stream over
// HTTP. Everything else the product needs (projects CRUD, billing, uploads)
// lives outside this service.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/homecanvas/homecanvas/design"
	hcerrors "github.com/homecanvas/homecanvas/errors"
	"github.com/homecanvas/homecanvas/events"
	"github.com/homecanvas/homecanvas/orchestrator"
	"github.com/homecanvas/homecanvas/pkg/logging"
)

// TokenResolver turns an opaque caller token into a user identity. The
// server trusts the result; no credential logic lives here.
type TokenResolver interface {
	Resolve(ctx context.Context, token string) (*design.User, error)
}

// Config holds server configuration
type Config struct {
	ListenAddr        string
	KeepaliveInterval time.Duration
	// RateLimit bounds chat requests per user per window. Zero disables
	// limiting.
	RateLimit  int
	RateWindow time.Duration
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:        ":8000",
		KeepaliveInterval: 30 * time.Second,
		RateLimit:         30,
		RateWindow:        time.Minute,
	}
}

// Server hosts the conversation core's HTTP surface.
type Server struct {
	config   *Config
	orch     *orchestrator.Orchestrator
	bus      *events.Bus
	resolver TokenResolver
	limiter  *rateLimiter
	http     *http.Server
}

// New creates a server.
func New(orch *orchestrator.Orchestrator, bus *events.Bus, resolver TokenResolver, config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if config.KeepaliveInterval <= 0 {
		config.KeepaliveInterval = 30 * time.Second
	}

	s := &Server{
		config:   config,
		orch:     orch,
		bus:      bus,
		resolver: resolver,
	}
	if config.RateLimit > 0 {
		s.limiter = newRateLimiter(config.RateLimit, config.RateWindow)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /home-design/chat", s.withAuth(s.handleChat))
	mux.HandleFunc("GET /home-design/events/{projectID}", s.withAuth(s.handleEvents))
	mux.HandleFunc("GET /healthz", s.handleHealth)

	s.http = &http.Server{
		Addr:              config.ListenAddr,
		Handler:           requestLogging(mux),
		ReadHeaderTimeout: 10 * time.Second,
		// No WriteTimeout: the event stream stays open indefinitely.
	}
	return s
}

// ListenAndServe blocks serving HTTP until Shutdown.
func (s *Server) ListenAndServe() error {
	logging.WithComponent("server").Info("listening", "addr", s.config.ListenAddr)
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains open connections.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

type userKey struct{}

// withAuth resolves the caller's token and stores the user on the request
// context. EventSource cannot set headers, so the token query parameter is
// accepted alongside the Authorization header.
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing credentials")
			return
		}

		user, err := s.resolver.Resolve(r.Context(), token)
		if err != nil || user == nil || !user.Active {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}

		if s.limiter != nil && !s.limiter.allow(user.ID) {
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
	}
}

func requestUser(r *http.Request) *design.User {
	user, _ := r.Context().Value(userKey{}).(*design.User)
	return user
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return ""
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)

	var req orchestrator.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.UserID = user.ID

	resp, err := s.orch.HandleChatTurn(r.Context(), &req)
	if err != nil {
		status, msg := mapTurnError(err)
		logging.WithComponent("server").Error("chat turn failed",
			"project_id", req.ProjectID, "status", status, "error", err)
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// mapTurnError converts orchestrator failures to an HTTP status and a
// user-safe message. Raw error text never reaches the response body.
func mapTurnError(err error) (int, string) {
	var mdErr *hcerrors.ModelDispatchError
	switch {
	case errors.Is(err, hcerrors.ErrNotFound):
		return http.StatusNotFound, "Project not found"
	case errors.Is(err, hcerrors.ErrInsufficientCredits):
		return http.StatusPaymentRequired, "Insufficient credits"
	case errors.Is(err, hcerrors.ErrInvalidInput):
		return http.StatusBadRequest, "Invalid request"
	case errors.As(err, &mdErr):
		return http.StatusBadGateway, "I'm having trouble responding right now. Please try again in a moment."
	case hcerrors.IsContentPolicy(err):
		return http.StatusUnprocessableEntity, "Your request couldn't be processed due to content guidelines. Please try rephrasing it."
	default:
		return http.StatusInternalServerError, "Something went wrong. Please try again."
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.WithComponent("server").Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

// requestLogging logs one line per completed request.
func requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logging.WithComponent("server").Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start).String(),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush passes through to the wrapped writer so SSE frames are not buffered.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
