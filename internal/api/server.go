// Package api exposes the HTTP surface: catalog administration, instance
// lifecycle, artifact uploads, and the background-job endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/fiecsoft/procflow/internal/catalog"
	"github.com/fiecsoft/procflow/internal/config"
	"github.com/fiecsoft/procflow/internal/identity"
	"github.com/fiecsoft/procflow/internal/ledger"
	"github.com/fiecsoft/procflow/internal/model"
	"github.com/fiecsoft/procflow/internal/signing"
	"github.com/fiecsoft/procflow/internal/workflow"
)

// Store is what the HTTP layer reads directly, bypassing the services:
// append-only records written by the worker and the event sinks.
type Store interface {
	CreateArchiveOperation(ctx context.Context, op *model.ArchiveOperation) error
	ArchiveOperationByID(ctx context.Context, id string) (*model.ArchiveOperation, error)
	ListArchiveOperations(ctx context.Context) ([]model.ArchiveOperation, error)
	ListExportLogs(ctx context.Context) ([]model.ExportLog, error)
	ListAudit(ctx context.Context, limit int) ([]model.AuditEntry, error)
	NotificationsByUser(ctx context.Context, userID string) ([]model.Notification, error)
}

// ExportPresigner mints download URLs for generated CSV exports.
type ExportPresigner interface {
	PresignExportURL(ctx context.Context, objectKey string, ttl time.Duration) (string, error)
}

// Deps bundles the collaborators the server routes to.
type Deps struct {
	Identity *identity.Service
	Catalog  *catalog.Service
	Engine   *workflow.Service
	Ledger   *ledger.Service
	Store    Store
	Exports  ExportPresigner
	Queue    *asynq.Client
	Signer   *signing.Signer
}

// Server exposes the HTTP endpoints.
type Server struct {
	cfg    *config.Config
	log    *zap.Logger
	deps   Deps
	server *http.Server
	once   sync.Once
}

// New constructs a Server. Queue may be nil in development without Redis;
// endpoints that enqueue jobs then fail with 503.
func New(cfg *config.Config, log *zap.Logger, deps Deps) *Server {
	return &Server{cfg: cfg, log: log, deps: deps}
}

// Handler builds the routed handler. Exposed for httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/users", s.auth(s.handleUsers))
	mux.HandleFunc("/users/", s.auth(s.handleUserRoute))
	mux.HandleFunc("/process-types", s.auth(s.handleProcessTypes))
	mux.HandleFunc("/process-types/", s.auth(s.handleProcessTypeRoute))
	mux.HandleFunc("/templates", s.auth(s.handleTemplates))
	mux.HandleFunc("/templates/", s.auth(s.handleTemplateRoute))
	mux.HandleFunc("/instances", s.auth(s.handleInstances))
	mux.HandleFunc("/instances/", s.auth(s.handleInstanceRoute))
	mux.HandleFunc("/artifacts/", s.auth(s.handleArtifactRoute))
	mux.HandleFunc("/archive", s.auth(s.handleArchive))
	mux.HandleFunc("/archive/", s.auth(s.handleArchiveRoute))
	mux.HandleFunc("/exports", s.auth(s.handleExports))
	mux.HandleFunc("/exports/", s.auth(s.handleExportRoute))
	mux.HandleFunc("/audit", s.auth(s.handleAudit))
	mux.HandleFunc("/notifications", s.auth(s.handleNotifications))
	return corsMiddleware(s.loggingMiddleware(mux))
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.once.Do(func() {
		s.server = &http.Server{
			Addr:    s.cfg.Address,
			Handler: s.Handler(),
		}
	})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	s.log.Info("api listening", zap.String("address", s.cfg.Address))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auth resolves the bearer token into a workflow actor before the handler
// runs. Everything except /healthz and /login goes through here.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := identity.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			s.writeError(w, identity.ErrInvalidToken)
			return
		}
		actor, err := s.deps.Identity.VerifyToken(token)
		if err != nil {
			s.writeError(w, err)
			return
		}
		next(w, r.WithContext(identity.WithActor(r.Context(), actor)))
	}
}

// actorOrFail returns the actor placed by the auth middleware; a miss means a
// route was wired without auth, which is a programming error surfaced as 401.
func (s *Server) actorOrFail(w http.ResponseWriter, r *http.Request) (workflow.Actor, bool) {
	actor, ok := identity.ActorFrom(r.Context())
	if !ok {
		s.writeError(w, identity.ErrInvalidToken)
	}
	return actor, ok
}

func (s *Server) requireAdmin(w http.ResponseWriter, actor workflow.Actor) bool {
	if !actor.IsAdmin() {
		s.writeError(w, workflow.ErrUnauthorizedReviewer)
		return false
	}
	return true
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Warn("encode response", zap.Error(err))
	}
}

func decodeJSON(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return &workflow.ValidationError{Entity: "request", Field: "body", Reason: "is not valid JSON"}
	}
	return nil
}

// writeError maps domain errors onto HTTP statuses. Unknown errors become an
// opaque 500 so internals never leak.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var vErr *workflow.ValidationError
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &vErr):
		status = http.StatusBadRequest
	case errors.Is(err, identity.ErrInvalidCredentials), errors.Is(err, identity.ErrInvalidToken):
		status = http.StatusUnauthorized
	case errors.Is(err, workflow.ErrUnauthorizedReviewer):
		status = http.StatusForbidden
	case errors.Is(err, workflow.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, workflow.ErrInvalidTransition),
		errors.Is(err, workflow.ErrVersionConflict),
		errors.Is(err, workflow.ErrInstanceArchived),
		errors.Is(err, workflow.ErrSkipRequiredStep),
		errors.Is(err, workflow.ErrTemplateNotPublished),
		errors.Is(err, workflow.ErrInactiveUser):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", zap.Error(err))
		s.respondJSON(w, status, map[string]string{"error": "internal error"})
		return
	}
	s.respondJSON(w, status, map[string]string{"error": err.Error()})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
