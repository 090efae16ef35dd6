// Package api exposes the flowsync HTTP API.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/auth"
	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/config"
	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/events"
	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/logging"
	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/middleware"
	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/orchestrator"
	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/scheduler"
	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/services"
	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/storage"
	syncer "github.com/TPCMinistries/Perpetualcore-sub007/pkg/sync"
	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/templates"
)

// Services bundles the dependencies the HTTP layer dispatches to
type Services struct {
	Accounts     auth.AccountService
	JWT          *services.JWTService
	Integrations *services.IntegrationService
	Synchronizer *syncer.Synchronizer
	Orchestrator *orchestrator.Orchestrator
	Events       *events.Router
	Installer    *templates.Installer

	// Scheduler is optional; schedule routes answer 503 when it is nil
	Scheduler *scheduler.Scheduler

	Storage storage.StorageProvider
	Logger  logging.Logger
}

// Server represents the HTTP API server
type Server struct {
	config   *config.Config
	router   *mux.Router
	server   *http.Server
	services Services
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, svcs Services) *Server {
	s := &Server{
		config:   cfg,
		router:   mux.NewRouter(),
		services: svcs,
	}

	s.setupRoutes()
	return s
}

// Handler returns the configured router, primarily for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.services.Logger.Info("starting HTTP server", logging.Field{Key: "addr", Value: addr})

	var err error
	if s.config.Server.TLS.Enabled {
		err = s.server.ListenAndServeTLS(
			s.config.Server.TLS.CertFile,
			s.config.Server.TLS.KeyFile,
		)
	} else {
		err = s.server.ListenAndServe()
	}

	// If the server was shut down gracefully, this error is expected
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop stops the HTTP server gracefully
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	authMiddleware := middleware.NewAuthMiddleware(s.services.Accounts, middleware.AuthLimits{
		MaxAttempts: s.config.Auth.RateLimitAttempts,
		Window:      time.Duration(s.config.Auth.RateLimitWindowSeconds) * time.Second,
	})

	// API router with version prefix
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Public routes (no authentication required)
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost, http.MethodOptions)

	// Account routes
	accounts := api.PathPrefix("/accounts").Subrouter()
	accounts.HandleFunc("", s.handleCreateAccount).Methods(http.MethodPost, http.MethodOptions)

	// Authenticated routes
	authenticated := api.PathPrefix("").Subrouter()
	authenticated.Use(authMiddleware.Authenticate)

	// Integration routes
	integrations := authenticated.PathPrefix("/integrations").Subrouter()
	integrations.HandleFunc("", s.handleListIntegrations).Methods(http.MethodGet, http.MethodOptions)
	integrations.HandleFunc("", s.handleCreateIntegration).Methods(http.MethodPost, http.MethodOptions)
	integrations.HandleFunc("/{id}", s.handleGetIntegration).Methods(http.MethodGet, http.MethodOptions)
	integrations.HandleFunc("/{id}", s.handleDeleteIntegration).Methods(http.MethodDelete, http.MethodOptions)
	integrations.HandleFunc("/{id}/verify", s.handleVerifyIntegration).Methods(http.MethodPost, http.MethodOptions)
	integrations.HandleFunc("/{id}/sync", s.handleSyncIntegration).Methods(http.MethodPost, http.MethodOptions)

	// Workflow routes
	workflows := authenticated.PathPrefix("/workflows").Subrouter()
	workflows.HandleFunc("", s.handleListWorkflows).Methods(http.MethodGet, http.MethodOptions)
	workflows.HandleFunc("/{id}", s.handleGetWorkflow).Methods(http.MethodGet, http.MethodOptions)
	workflows.HandleFunc("/{id}/execute", s.handleExecuteWorkflow).Methods(http.MethodPost, http.MethodOptions)
	workflows.HandleFunc("/{id}/webhook", s.handleTriggerWebhook).Methods(http.MethodPost, http.MethodOptions)
	workflows.HandleFunc("/{id}/executions", s.handleListExecutions).Methods(http.MethodGet, http.MethodOptions)

	// Execution routes
	executions := authenticated.PathPrefix("/executions").Subrouter()
	executions.HandleFunc("/{id}", s.handleGetExecution).Methods(http.MethodGet, http.MethodOptions)
	executions.HandleFunc("/{id}/poll", s.handlePollExecution).Methods(http.MethodPost, http.MethodOptions)

	// Event mapping and ingest routes
	mappings := authenticated.PathPrefix("/event-mappings").Subrouter()
	mappings.HandleFunc("", s.handleListEventMappings).Methods(http.MethodGet, http.MethodOptions)
	mappings.HandleFunc("", s.handleCreateEventMapping).Methods(http.MethodPost, http.MethodOptions)
	mappings.HandleFunc("/{id}", s.handleGetEventMapping).Methods(http.MethodGet, http.MethodOptions)
	mappings.HandleFunc("/{id}", s.handleDeleteEventMapping).Methods(http.MethodDelete, http.MethodOptions)
	authenticated.HandleFunc("/events", s.handleIngestEvent).Methods(http.MethodPost, http.MethodOptions)

	// Template routes
	tmpl := authenticated.PathPrefix("/templates").Subrouter()
	tmpl.HandleFunc("", s.handleListTemplates).Methods(http.MethodGet, http.MethodOptions)
	tmpl.HandleFunc("/{id}/install", s.handleInstallTemplate).Methods(http.MethodPost, http.MethodOptions)

	installations := authenticated.PathPrefix("/installations").Subrouter()
	installations.HandleFunc("", s.handleListInstallations).Methods(http.MethodGet, http.MethodOptions)
	installations.HandleFunc("/{id}", s.handleUninstallTemplate).Methods(http.MethodDelete, http.MethodOptions)

	// Sync schedule routes
	schedules := authenticated.PathPrefix("/schedules").Subrouter()
	schedules.HandleFunc("", s.handleListSchedules).Methods(http.MethodGet, http.MethodOptions)
	schedules.HandleFunc("", s.handleCreateSchedule).Methods(http.MethodPost, http.MethodOptions)
	schedules.HandleFunc("/{id}", s.handleDeleteSchedule).Methods(http.MethodDelete, http.MethodOptions)

	// Account management routes (authenticated)
	accountsMgmt := authenticated.PathPrefix("/accounts").Subrouter()
	accountsMgmt.HandleFunc("/me", s.handleGetCurrentAccount).Methods(http.MethodGet, http.MethodOptions)

	// CORS middleware for all routes
	s.router.Use(middleware.CORS)
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// handleHealth handles the health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// LoginRequest is the login request body
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the login response body
type LoginResponse struct {
	Token     string `json:"token"`
	AccountID string `json:"account_id"`
	Username  string `json:"username"`
}

// handleLogin handles user login and returns a JWT token
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	accountID, err := s.services.Accounts.Authenticate(req.Username, req.Password)
	if err != nil {
		http.Error(w, "Authentication failed", http.StatusUnauthorized)
		return
	}

	account, err := s.services.Accounts.GetAccount(accountID)
	if err != nil {
		http.Error(w, "Failed to retrieve account", http.StatusInternalServerError)
		return
	}

	token, err := s.services.JWT.GenerateToken(account)
	if err != nil {
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Token:     token,
		AccountID: accountID,
		Username:  account.Username,
	})
}

// handleCreateAccount handles account creation
func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	accountID, err := s.services.Accounts.CreateAccount(req.Username, req.Password)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	account, err := s.services.Accounts.GetAccount(accountID)
	if err != nil {
		http.Error(w, "Failed to retrieve account", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, account)
}

// handleGetCurrentAccount handles retrieving the current account
func (s *Server) handleGetCurrentAccount(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	account, err := s.services.Accounts.GetAccount(accountID)
	if err != nil {
		http.Error(w, "Failed to retrieve account", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, account)
}
