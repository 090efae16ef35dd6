package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/middleware"
	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/storage"
)

// CreateIntegrationRequest is the request body for creating an integration
type CreateIntegrationRequest struct {
	Name        string `json:"name"`
	InstanceURL string `json:"instance_url"`
	APIKey      string `json:"api_key"`
}

// handleCreateIntegration registers a new n8n instance for the account
func (s *Server) handleCreateIntegration(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	var req CreateIntegrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	integration, err := s.services.Integrations.CreateIntegration(r.Context(), accountID, req.Name, req.InstanceURL, req.APIKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusCreated, integration)
}

// handleListIntegrations lists the account's integrations
func (s *Server) handleListIntegrations(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	integrations, err := s.services.Integrations.ListIntegrations(accountID)
	if err != nil {
		http.Error(w, "Failed to list integrations", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, integrations)
}

// handleGetIntegration retrieves one integration
func (s *Server) handleGetIntegration(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	integrationID := mux.Vars(r)["id"]
	integration, err := s.services.Integrations.GetIntegration(accountID, integrationID)
	if err != nil {
		if errors.Is(err, storage.ErrIntegrationNotFound) {
			http.Error(w, "Integration not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to retrieve integration", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, integration)
}

// handleDeleteIntegration removes an integration
func (s *Server) handleDeleteIntegration(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	integrationID := mux.Vars(r)["id"]
	if err := s.services.Integrations.DeleteIntegration(accountID, integrationID); err != nil {
		if errors.Is(err, storage.ErrIntegrationNotFound) {
			http.Error(w, "Integration not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to delete integration", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleVerifyIntegration re-checks the connection to the remote instance
func (s *Server) handleVerifyIntegration(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	integrationID := mux.Vars(r)["id"]
	integration, err := s.services.Integrations.VerifyIntegration(r.Context(), accountID, integrationID)
	if err != nil {
		if errors.Is(err, storage.ErrIntegrationNotFound) {
			http.Error(w, "Integration not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, integration)
}

// handleSyncIntegration runs a sync pass against the remote instance
func (s *Server) handleSyncIntegration(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	integrationID := mux.Vars(r)["id"]
	result, err := s.services.Synchronizer.Sync(r.Context(), accountID, integrationID)
	if err != nil {
		if errors.Is(err, storage.ErrIntegrationNotFound) {
			http.Error(w, "Integration not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
