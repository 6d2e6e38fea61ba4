// Package server is the HTTP boundary: it authenticates callers,
// extracts tokens, and maps redemption outcomes to statuses. All
// dispatch decisions live below it.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ziadkadry99/actiongate/internal/acl"
	"github.com/ziadkadry99/actiongate/internal/actions"
	"github.com/ziadkadry99/actiongate/internal/apitoken"
	"github.com/ziadkadry99/actiongate/internal/audit"
	"github.com/ziadkadry99/actiongate/internal/callback"
	"github.com/ziadkadry99/actiongate/internal/events"
	"github.com/ziadkadry99/actiongate/internal/service"
)

// Config holds server configuration.
type Config struct {
	Port     int
	AllowAll bool // allow all CORS origins (dev mode)
	DevAuth  bool // accept the X-User-ID header instead of an API token
}

// Server ties the redemption pipeline to HTTP.
type Server struct {
	cfg        Config
	store      callback.Store
	svc        *service.Service
	issuer     *actions.Issuer
	policy     acl.Policy
	tokens     *apitoken.Store
	audits     *audit.Store
	hub        *events.Hub
	router     chi.Router
	httpServer *http.Server
}

// New creates a Server with all dependencies. policy guards the retry
// endpoint; a nil policy admits any authenticated caller. tokens,
// audits and hub may be nil; the corresponding routes are then
// disabled.
func New(cfg Config, store callback.Store, svc *service.Service, issuer *actions.Issuer, policy acl.Policy, tokens *apitoken.Store, audits *audit.Store, hub *events.Hub) *Server {
	s := &Server{
		cfg:    cfg,
		store:  store,
		svc:    svc,
		issuer: issuer,
		policy: policy,
		tokens: tokens,
		audits: audits,
		hub:    hub,
	}

	s.router = s.buildRouter()
	return s
}

// buildRouter creates and configures the chi router with all routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	corsOpts := cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	if s.cfg.AllowAll {
		corsOpts.AllowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(corsOpts))

	// Health check
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	s.registerRoutes(r)

	return r
}

// Router returns the chi router for registering additional routes.
func (s *Server) Router() chi.Router { return s.router }

// Start begins listening on the configured port.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("actiongate server listening on %s", addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
