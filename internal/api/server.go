// Package api exposes the metastore manager over HTTP for catalog frontends
// and operators. Handlers are thin: they decode the request, call one
// manager operation, and map the result status onto an HTTP response.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"icemeta/internal/domain"
	"icemeta/internal/middleware"
)

// Options configures the HTTP surface around the handlers.
type Options struct {
	// Validator guards the API with bearer auth. Nil disables auth.
	Validator middleware.TokenValidator
	// RateLimit is the per-client token-bucket configuration. A zero
	// RequestsPerSecond disables rate limiting.
	RateLimit middleware.RateLimitConfig
	// CORSAllowedOrigins lists the origins allowed to call the API.
	CORSAllowedOrigins []string
}

// Server serves the metastore API.
type Server struct {
	manager domain.MetastoreManager
	logger  *slog.Logger
	opts    Options
}

// NewServer builds a server over the given manager.
func NewServer(manager domain.MetastoreManager, logger *slog.Logger, opts Options) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{manager: manager, logger: logger, opts: opts}
}

// Router assembles the middleware stack and routes.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(s.logger))
	if len(s.opts.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.opts.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
	if s.opts.RateLimit.RequestsPerSecond > 0 {
		r.Use(middleware.RateLimiter(s.opts.RateLimit))
	}

	r.Get("/healthz", s.handleHealthz)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.BearerAuth(s.opts.Validator))

		r.Post("/bootstrap", s.handleBootstrap)
		r.Post("/purge", s.handlePurge)
		r.Post("/entity-ids", s.handleGenerateEntityID)

		r.Post("/principals", s.handleCreatePrincipal)
		r.Get("/principal-secrets/{clientID}", s.handleLoadPrincipalSecrets)
		r.Post("/principal-secrets/{clientID}/rotate", s.handleRotatePrincipalSecrets)

		r.Post("/catalogs", s.handleCreateCatalog)

		r.Post("/entities", s.handleCreateEntity)
		r.Post("/entities/batch", s.handleCreateEntities)
		r.Post("/entities/lookup", s.handleReadEntityByName)
		r.Post("/entities/list", s.handleListEntities)
		r.Post("/entities/versions", s.handleChangeTracking)
		r.Put("/entities/properties", s.handleUpdateEntity)
		r.Put("/entities/properties/batch", s.handleUpdateEntities)
		r.Post("/entities/rename", s.handleRenameEntity)
		r.Post("/entities/drop", s.handleDropEntity)
		r.Get("/entities/{catalogID}/{id}", s.handleLoadEntity)

		r.Post("/grants/role-usage", s.handleGrantRoleUsage)
		r.Post("/grants/role-usage/revoke", s.handleRevokeRoleUsage)
		r.Post("/grants/privilege", s.handleGrantPrivilege)
		r.Post("/grants/privilege/revoke", s.handleRevokePrivilege)
		r.Get("/grants/on-securable/{catalogID}/{id}", s.handleGrantsOnSecurable)
		r.Get("/grants/to-grantee/{catalogID}/{id}", s.handleGrantsToGrantee)

		r.Post("/tasks/lease", s.handleLeaseTasks)

		r.Post("/credentials/{catalogID}/{id}", s.handleSubscopeCredentials)
		r.Post("/credentials/{catalogID}/{id}/validate", s.handleValidateAccess)

		r.Get("/resolved/{catalogID}/{id}", s.handleResolvedByID)
		r.Post("/resolved/lookup", s.handleResolvedByName)
		r.Post("/resolved/refresh", s.handleRefreshResolved)
	})

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
