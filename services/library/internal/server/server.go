package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"libraryapi/internal/ratelimit"
	"libraryapi/internal/util"
	"libraryapi/pkg/auth"
	"libraryapi/pkg/domain"
	"libraryapi/pkg/store"
	"libraryapi/services/library/internal/app"
	"libraryapi/services/library/internal/security"
)

const maxBodyBytes = 1 << 20

// Limiter throttles requests per key.
type Limiter interface {
	Allow(ctx context.Context, key string) (ratelimit.Decision, error)
}

// Alerter counts security events and reports threshold breaches.
type Alerter interface {
	Observe(ctx context.Context, event, outcome, ip string) (security.AlertResult, error)
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App *app.App
	// LoginLimiter is optional; nil disables login throttling.
	LoginLimiter Limiter
	// Alerter is optional.
	Alerter            Alerter
	TrustedProxies     *util.TrustedProxies
	CORSAllowedOrigins []string
	ExposeErrorDetail  bool
}

// Server exposes the library HTTP API.
type Server struct {
	app            *app.App
	loginLimiter   Limiter
	alerter        Alerter
	trustedProxies *util.TrustedProxies
	corsOrigins    []string
	exposeDetail   bool
	policy         auth.Policy
	mux            *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app required")
	}
	s := &Server{
		app:            cfg.App,
		loginLimiter:   cfg.LoginLimiter,
		alerter:        cfg.Alerter,
		trustedProxies: cfg.TrustedProxies,
		corsOrigins:    cfg.CORSAllowedOrigins,
		exposeDetail:   cfg.ExposeErrorDetail,
		policy:         auth.DefaultPolicy,
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(
		util.WithRequestLog(
			util.WithRecover(
				util.WithSecurityHeaders(
					util.WithCORS(s.corsOrigins, s.mux)))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/books", s.handleBooks)
	s.mux.HandleFunc("/books/", s.handleBookByID)
	s.mux.HandleFunc("/auth/login", s.handleLogin)
	s.mux.HandleFunc("/auth/logout", s.handleLogout)
	s.mux.HandleFunc("/auth/jwks", s.handleJWKS)
	s.mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "SYSTEM_NOT_FOUND", "not found")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// principalHandler runs after the caller passed the policy check.
// principal is nil for anonymous callers of public operations.
type principalHandler func(http.ResponseWriter, *http.Request, *domain.Principal)

// guard authenticates the caller when needed and applies the role table for op.
func (s *Server) guard(w http.ResponseWriter, r *http.Request, op auth.Operation, next principalHandler) {
	var principal *domain.Principal
	if s.policy.RequiresPrincipal(op) {
		token, ok := bearerToken(r)
		if !ok {
			s.audit(r, string(op), "denied", "reason", "missing_token")
			writeError(w, http.StatusUnauthorized, "AUTH_INVALID_TOKEN", "unauthorized")
			return
		}
		p, err := s.app.Authenticate(token)
		if err != nil {
			if !errors.Is(err, store.ErrInvalidToken) && !errors.Is(err, store.ErrTokenRevoked) {
				util.LoggerFromContext(r.Context()).Error("token verification failed", "err", err)
			}
			s.audit(r, string(op), "denied", "reason", "invalid_token")
			writeError(w, http.StatusUnauthorized, "AUTH_INVALID_TOKEN", "unauthorized")
			return
		}
		principal = &p
	}
	if err := s.policy.Authorize(op, principal); err != nil {
		s.audit(r, string(op), "denied", "reason", err.Error())
		s.writeAppError(w, r, err)
		return
	}
	next(w, r, principal)
}

func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.guard(w, r, auth.OpListBooks, s.handleListBooks)
	case http.MethodPost:
		s.guard(w, r, auth.OpCreateBook, s.handleCreateBook)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

// /books/{id}, /books/{id}/borrow or /books/{id}/return
func (s *Server) handleBookByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/books/")
	parts := strings.Split(path, "/")
	id := parts[0]
	if id == "" || len(parts) > 2 {
		writeError(w, http.StatusNotFound, "SYSTEM_NOT_FOUND", "not found")
		return
	}

	if len(parts) == 2 {
		var (
			op     auth.Operation
			action func(context.Context, domain.Principal, string) error
		)
		switch parts[1] {
		case "borrow":
			op, action = auth.OpBorrowBook, s.app.BorrowBook
		case "return":
			op, action = auth.OpReturnBook, s.app.ReturnBook
		default:
			writeError(w, http.StatusNotFound, "SYSTEM_NOT_FOUND", "not found")
			return
		}
		if r.Method != http.MethodPatch {
			methodNotAllowed(w, http.MethodPatch)
			return
		}
		s.guard(w, r, op, func(w http.ResponseWriter, r *http.Request, p *domain.Principal) {
			if err := action(r.Context(), *p, id); err != nil {
				s.writeAppError(w, r, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.guard(w, r, auth.OpGetBook, func(w http.ResponseWriter, r *http.Request, _ *domain.Principal) {
			book, err := s.app.GetBook(r.Context(), id)
			if err != nil {
				s.writeAppError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, book)
		})
	case http.MethodPut:
		s.guard(w, r, auth.OpUpdateBook, func(w http.ResponseWriter, r *http.Request, p *domain.Principal) {
			var req domain.BookDetails
			if !decodeJSON(w, r, &req) {
				return
			}
			if err := s.app.UpdateBook(r.Context(), *p, id, req); err != nil {
				s.writeAppError(w, r, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
	case http.MethodDelete:
		s.guard(w, r, auth.OpDeleteBook, func(w http.ResponseWriter, r *http.Request, p *domain.Principal) {
			if err := s.app.DeleteBook(r.Context(), *p, id); err != nil {
				s.writeAppError(w, r, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request, _ *domain.Principal) {
	books, err := s.app.ListBooks(r.Context())
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, books)
}

func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request, p *domain.Principal) {
	var req domain.BookDetails
	if !decodeJSON(w, r, &req) {
		return
	}
	book, err := s.app.CreateBook(r.Context(), *p, req)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	w.Header().Set("Location", "/books/"+book.ID)
	writeJSON(w, http.StatusCreated, book)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string          `json:"token"`
	Username  string          `json:"username"`
	Role      domain.UserRole `json:"role"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	s.guard(w, r, auth.OpLogin, func(w http.ResponseWriter, r *http.Request, _ *domain.Principal) {
		if !s.allowRate(w, r, s.loginLimiter, "too many login attempts") {
			s.audit(r, "auth.login", "rate_limited")
			return
		}
		var req loginRequest
		if !decodeJSON(w, r, &req) {
			s.audit(r, "auth.login", "fail", "reason", "invalid_json")
			return
		}
		res, err := s.app.Login(r.Context(), req.Username, req.Password)
		if err != nil {
			s.audit(r, "auth.login", "fail", "username", req.Username)
			s.writeAppError(w, r, err)
			return
		}
		s.audit(r, "auth.login", "success", "username", res.Username)
		writeJSON(w, http.StatusOK, loginResponse{
			Token:     res.Token,
			Username:  res.Username,
			Role:      res.Role,
			ExpiresAt: res.ExpiresAt,
		})
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	s.guard(w, r, auth.OpLogout, func(w http.ResponseWriter, r *http.Request, p *domain.Principal) {
		token, _ := bearerToken(r)
		if err := s.app.Logout(r.Context(), token); err != nil {
			s.writeAppError(w, r, err)
			return
		}
		s.audit(r, "auth.logout", "success", "username", p.Username)
		w.WriteHeader(http.StatusNoContent)
	})
}

func (s *Server) handleJWKS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	s.guard(w, r, auth.OpJWKS, func(w http.ResponseWriter, r *http.Request, _ *domain.Principal) {
		keys := s.app.JWKS()
		if len(keys) == 0 {
			writeError(w, http.StatusNotFound, "SYSTEM_NOT_FOUND", "jwks not available")
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=300")
		writeJSON(w, http.StatusOK, map[string]any{"keys": keys})
	})
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter Limiter, msg string) bool {
	if limiter == nil {
		return true
	}
	key := r.URL.Path + "|" + util.ClientIP(r, s.trustedProxies)
	d, err := limiter.Allow(r.Context(), key)
	if err != nil {
		util.LoggerFromContext(r.Context()).Error("rate limiter unavailable", "err", err)
	}
	if d.Allowed {
		return true
	}
	retry := int(d.RetryAfter.Round(time.Second) / time.Second)
	if retry <= 0 {
		retry = 60
	}
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	writeError(w, http.StatusTooManyRequests, "SYSTEM_RATE_LIMITED", msg)
	return false
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	ip := util.ClientIP(r, s.trustedProxies)
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", ip,
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)

	if s.alerter == nil {
		return
	}
	res, err := s.alerter.Observe(r.Context(), event, outcome, ip)
	if err != nil {
		logger.Error("security alert observe failed", "event", event, "err", err)
		return
	}
	if res.Triggered {
		logger.Error("security_alert",
			"event", event,
			"outcome", outcome,
			"ip", ip,
			"count", res.Count,
			"threshold", res.Threshold,
			"window", res.Window.String(),
		)
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(authHeader) < len("Bearer ") || !strings.EqualFold(authHeader[:len("Bearer ")], "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(authHeader[len("Bearer "):])
	if token == "" {
		return "", false
	}
	return token, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "BOOK_INVALID_REQUEST", "invalid JSON body")
		return false
	}
	return true
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, http.StatusMethodNotAllowed, "SYSTEM_METHOD_NOT_ALLOWED", "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string              `json:"error"`
	Code      string              `json:"code"`
	RequestID string              `json:"requestId,omitempty"`
	Details   []domain.FieldError `json:"details,omitempty"`
	Debug     string              `json:"debug,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeErrorBody(w, status, errorResponse{Error: msg, Code: code})
}

func writeErrorBody(w http.ResponseWriter, status int, body errorResponse) {
	body.RequestID = strings.TrimSpace(w.Header().Get("X-Request-Id"))
	writeJSON(w, status, body)
}

// writeAppError maps application and policy errors onto HTTP responses.
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		writeErrorBody(w, http.StatusBadRequest, errorResponse{
			Error:   "validation failed",
			Code:    "BOOK_INVALID_REQUEST",
			Details: verr.Fields,
		})
	case errors.Is(err, app.ErrBookNotFound):
		writeError(w, http.StatusNotFound, "BOOK_NOT_FOUND", "book not found")
	case errors.Is(err, domain.ErrAlreadyBorrowed):
		writeError(w, http.StatusConflict, "BOOK_ALREADY_BORROWED", "book is already borrowed")
	case errors.Is(err, domain.ErrAlreadyAvailable):
		writeError(w, http.StatusConflict, "BOOK_ALREADY_AVAILABLE", "book is already available")
	case errors.Is(err, app.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "AUTH_INVALID_CREDENTIALS", app.ErrInvalidCredentials.Error())
	case errors.Is(err, auth.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "AUTH_INVALID_TOKEN", "unauthorized")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, http.StatusForbidden, "AUTH_FORBIDDEN", "forbidden")
	default:
		util.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "method", r.Method, "err", err)
		body := errorResponse{Error: "internal server error", Code: "SYSTEM_INTERNAL_ERROR"}
		if s.exposeDetail {
			body.Debug = err.Error()
		}
		writeErrorBody(w, http.StatusInternalServerError, body)
	}
}

