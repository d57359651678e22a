// Package gateway exposes the request-driven delivery endpoint. It shares
// the process-wide transport session with batch runs via the session
// registry and delegates the actual delivery to the dispatch engine.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"blastbot/internal/contacts"
	"blastbot/internal/dispatch"
	"blastbot/internal/phone"
	"blastbot/internal/session"
	logx "blastbot/pkg/logx"
)

// Config controls the HTTP gateway.
//
// Security:
//   - Prefer binding to localhost (default).
//   - If binding to a non-loopback address, set Token.
type Config struct {
	Addr  string
	Token string

	// RatePerSec caps accepted /send requests so the request path cannot
	// outpace the transport. <=0 defaults to 1.
	RatePerSec int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type sendRequest struct {
	Name    string `json:"name,omitempty"`
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

type sendResponse struct {
	Status string `json:"status,omitempty"`
	Detail string `json:"detail,omitempty"`
	Error  string `json:"error,omitempty"`
}

type Server struct {
	cfg  Config
	log  logx.Logger
	norm phone.Normalizer

	registry *session.Registry
	engine   *dispatch.Engine
	limiter  *rate.Limiter

	started time.Time

	mu  sync.Mutex
	ln  net.Listener
	srv *http.Server
}

func New(cfg Config, registry *session.Registry, engine *dispatch.Engine, norm phone.Normalizer, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	return &Server{
		cfg:      cfg,
		log:      log,
		norm:     norm,
		registry: registry,
		engine:   engine,
		limiter:  rate.NewLimiter(rate.Limit(rps), rps),
	}
}

// Start binds the listener and serves in the background. It returns once the
// listener is accepting so callers can report readiness.
func (s *Server) Start(ctx context.Context) error {
	addr := strings.TrimSpace(s.cfg.Addr)
	if addr == "" {
		addr = "127.0.0.1:8080"
	}

	if s.cfg.Token == "" && !isLoopback(addr) {
		s.log.Warn("gateway bound to a non-loopback address without a token", logx.String("addr", addr))
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("gateway listen %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/send", s.withAuth(s.handleSend))
	mux.HandleFunc("/healthz", s.handleHealth)

	srv := &http.Server{
		Handler:      mux,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	s.mu.Lock()
	s.ln = ln
	s.srv = srv
	s.started = time.Now()
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("gateway serve stopped", logx.Err(err))
		}
	}()

	s.log.Info("gateway listening", logx.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address (useful when Addr was ":0").
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.ln = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Token != "" {
			auth := r.Header.Get("Authorization")
			if auth != "Bearer "+s.cfg.Token {
				writeJSON(w, http.StatusUnauthorized, sendResponse{Error: "unauthorized"})
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, sendResponse{Error: "method not allowed"})
		return
	}
	if !s.limiter.Allow() {
		writeJSON(w, http.StatusTooManyRequests, sendResponse{Error: "rate limit exceeded"})
		return
	}

	var req sendRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, sendResponse{Error: "invalid JSON body"})
		return
	}
	if strings.TrimSpace(req.Phone) == "" || strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, sendResponse{Error: "phone and message are required"})
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		// Same default policy as the contact file.
		name = contacts.DefaultName
	}

	sess, err := s.registry.Get(r.Context())
	if err != nil {
		s.log.Error("gateway: session unavailable", logx.Err(err))
		writeJSON(w, http.StatusInternalServerError, sendResponse{Error: err.Error()})
		return
	}

	c := contacts.Contact{
		Name:  name,
		Phone: s.norm.Normalize(req.Phone),
		// The request's literal text; no run-level default applies here.
		Message: req.Message,
	}

	if !s.engine.SendOne(r.Context(), sess, c, "") {
		// "not registered" and "send fault" are indistinguishable here;
		// SendOne collapses both into false.
		writeJSON(w, http.StatusBadGateway, sendResponse{
			Status: "failed",
			Detail: fmt.Sprintf("Failed to send message to %s", name),
		})
		return
	}

	writeJSON(w, http.StatusOK, sendResponse{
		Status: "success",
		Detail: fmt.Sprintf("Message sent to %s", name),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"uptime": time.Since(started).Round(time.Second).String(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" || host == "" {
		return host == "localhost"
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
