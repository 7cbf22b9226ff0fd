// Package api exposes the ledger engine over HTTP. Amounts travel as
// major-unit decimal strings ("500.00") on the way in and as minor-unit
// Money objects on the way out.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/uptrace/bunrouter"

	"github.com/rentbook/ledger"
)

// Request headers understood by the API.
const (
	HeaderRequestID      = "X-Request-ID"
	HeaderActor          = "X-Actor"
	HeaderIdempotencyKey = "Idempotency-Key"
)

// Server routes HTTP requests to a Ledger.
type Server struct {
	ledger   *ledger.Ledger
	logger   *slog.Logger
	basePath string
	validate *validator.Validate
	router   *bunrouter.Router
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithBasePath mounts every route under prefix, e.g. "/ledger".
func WithBasePath(prefix string) Option {
	return func(s *Server) { s.basePath = strings.TrimRight(prefix, "/") }
}

// New creates a Server over l.
func New(l *ledger.Ledger, opts ...Option) *Server {
	s := &Server{
		ledger:   l,
		logger:   slog.Default(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router = bunrouter.New(bunrouter.Use(s.requestContext, s.errorHandler))
	s.router.WithGroup(s.basePath, func(g *bunrouter.Group) {
		g.GET("/health", s.health)

		g.POST("/postings", s.post)
		g.GET("/groups/:id", s.getGroup)
		g.GET("/entries", s.listEntries)
		g.GET("/entries/:id", s.getEntry)
		g.POST("/entries/:id/void", s.void)

		g.GET("/accounts", s.listAccounts)
		g.GET("/accounts/:code/balance", s.balance)
		g.GET("/trial-balance", s.trialBalance)

		g.PUT("/subjects/:id", s.putSubject)
		g.GET("/subjects/:id", s.getSubject)
		g.POST("/definitions", s.createDefinition)
		g.GET("/definitions", s.listDefinitions)
		g.GET("/definitions/:id", s.getDefinition)

		g.POST("/billing/runs", s.runBilling)
		g.GET("/integrity", s.integrity)
	})
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ──────────────────────────────────────────────────
// Middleware
// ──────────────────────────────────────────────────

// requestContext tags the request with an ID and carries X-Actor into the
// engine so entries record who posted them.
func (s *Server) requestContext(next bunrouter.HandlerFunc) bunrouter.HandlerFunc {
	return func(w http.ResponseWriter, req bunrouter.Request) error {
		requestID := req.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, requestID)

		ctx := req.Context()
		if actor := strings.TrimSpace(req.Header.Get(HeaderActor)); actor != "" {
			ctx = ledger.WithActor(ctx, actor)
		}
		return next(w, req.WithContext(ctx))
	}
}

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) errorHandler(next bunrouter.HandlerFunc) bunrouter.HandlerFunc {
	return func(w http.ResponseWriter, req bunrouter.Request) error {
		err := next(w, req)
		if err == nil {
			return nil
		}

		status, code := classify(err)
		attrs := []any{
			"method", req.Method,
			"route", req.Route(),
			"status", status,
			"request_id", w.Header().Get(HeaderRequestID),
			"error", err,
		}
		if status >= http.StatusInternalServerError {
			s.logger.Error("request failed", attrs...)
		} else {
			s.logger.Debug("request rejected", attrs...)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		return bunrouter.JSON(w, errorResponse{
			Error:     err.Error(),
			Code:      code,
			RequestID: w.Header().Get(HeaderRequestID),
		})
	}
}

// classify maps engine errors to HTTP status codes.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ledger.ErrAlreadyVoided),
		errors.Is(err, ledger.ErrAlreadyExists),
		errors.Is(err, ledger.ErrAccountInUse),
		errors.Is(err, ledger.ErrAccountImmutable):
		return http.StatusConflict, "conflict"
	case ledger.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case ledger.IsValidation(err):
		return http.StatusBadRequest, "invalid_request"
	case ledger.IsRetryable(err), errors.Is(err, ledger.ErrStoreClosed):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
