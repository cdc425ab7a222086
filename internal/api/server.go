// Package api exposes the invoice engine over HTTP/JSON.
//
// The adapter owns no business rules. It authenticates the bearer token,
// attaches the caller to the request context, decodes the payload, calls the
// engine and maps the engine's five failure kinds onto HTTP statuses:
//
//	NOT_AUTHENTICATED 401, FORBIDDEN 403, NOT_FOUND 404,
//	VALIDATION_ERROR 400, VERSION_CONFLICT 409
//
// Error bodies are {"code": "...", "message": "..."}.
package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"dragonfly/internal/invoice"
	"dragonfly/internal/logger"
	"dragonfly/pkg/models"
)

// Authenticator resolves a bearer token to a directory identity.
type Authenticator interface {
	Resolve(token string) (models.User, error)
}

// Directory lists the reference data the UI offers in pickers.
type Directory interface {
	Offices() []models.Office
	Categories() []models.Category
}

// PaymentRecorder receives invoices right after they are marked paid.
type PaymentRecorder interface {
	RecordPayment(ctx context.Context, inv models.Invoice) error
}

// Config holds adapter limits.
type Config struct {
	MaxBodyBytes     int64
	DefaultPageLimit int
	MaxPageLimit     int
}

// DefaultConfig returns the limits used when none are configured.
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:     1 << 20,
		DefaultPageLimit: invoice.DefaultPageLimit,
		MaxPageLimit:     100,
	}
}

// Server is the HTTP adapter over an invoice.Service.
type Server struct {
	svc    invoice.Service
	auth   Authenticator
	dir    Directory
	ledger PaymentRecorder
	cfg    Config
	log    zerolog.Logger
}

// Option customizes a Server.
type Option func(*Server)

// WithPaymentRecorder exports every invoice marked paid through the adapter.
func WithPaymentRecorder(p PaymentRecorder) Option {
	return func(s *Server) {
		s.ledger = p
	}
}

// New builds a Server. Zero limits in cfg fall back to DefaultConfig.
func New(svc invoice.Service, auth Authenticator, dir Directory, cfg Config, opts ...Option) *Server {
	def := DefaultConfig()
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = def.MaxBodyBytes
	}
	if cfg.DefaultPageLimit <= 0 {
		cfg.DefaultPageLimit = def.DefaultPageLimit
	}
	if cfg.MaxPageLimit < cfg.DefaultPageLimit {
		cfg.MaxPageLimit = cfg.DefaultPageLimit
	}

	s := &Server{
		svc:  svc,
		auth: auth,
		dir:  dir,
		cfg:  cfg,
		log:  logger.WithComponent("api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the route table with all middleware installed.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.StrictSlash(true)
	r.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(s.handleMethodNotAllowed)

	// Middleware runs in registration order.
	r.Use(closeBodyMiddleware)
	r.Use(s.bodySizeLimitMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	authed := r.PathPrefix("/api").Subrouter()
	authed.Use(s.authMiddleware)

	authed.HandleFunc("/session", s.handleSession).Methods(http.MethodGet)
	authed.HandleFunc("/offices", s.handleOffices).Methods(http.MethodGet)
	authed.HandleFunc("/categories", s.handleCategories).Methods(http.MethodGet)

	authed.HandleFunc("/invoices", s.handleListInvoices).Methods(http.MethodGet)
	authed.HandleFunc("/invoices", s.handleCreateInvoice).Methods(http.MethodPost)
	authed.HandleFunc("/invoices/{id}", s.handleGetInvoice).Methods(http.MethodGet)
	authed.HandleFunc("/invoices/{id}", s.handleUpdateInvoice).Methods(http.MethodPatch)
	authed.HandleFunc("/invoices/{id}", s.handleDeleteInvoice).Methods(http.MethodDelete)
	authed.HandleFunc("/invoices/{id}/history", s.handleHistory).Methods(http.MethodGet)

	authed.HandleFunc("/invoices/{id}/submit", s.handleSubmit).Methods(http.MethodPost)
	authed.HandleFunc("/invoices/{id}/approve", s.handleApprove).Methods(http.MethodPost)
	authed.HandleFunc("/invoices/{id}/reject", s.handleReject).Methods(http.MethodPost)
	authed.HandleFunc("/invoices/{id}/mark-paid", s.handleMarkPaid).Methods(http.MethodPost)
	authed.HandleFunc("/invoices/{id}/reopen", s.handleReopen).Methods(http.MethodPost)

	return r
}
