package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/middleware"
	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/storage"
)

// InstallTemplateRequest is the request body for installing a template
type InstallTemplateRequest struct {
	IntegrationID string                            `json:"integration_id"`
	CustomConfig  map[string]map[string]interface{} `json:"custom_config,omitempty"`
}

// handleListTemplates lists the template catalog
func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.services.Storage.GetTemplateStore().ListTemplates()
	if err != nil {
		http.Error(w, "Failed to list templates", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, templates)
}

// handleInstallTemplate installs a template onto an integration
func (s *Server) handleInstallTemplate(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	var req InstallTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.IntegrationID == "" {
		http.Error(w, "integration_id is required", http.StatusBadRequest)
		return
	}

	templateID := mux.Vars(r)["id"]
	installation, err := s.services.Installer.Install(r.Context(), accountID, templateID, req.IntegrationID, req.CustomConfig)
	if err != nil {
		if errors.Is(err, storage.ErrTemplateNotFound) {
			http.Error(w, "Template not found", http.StatusNotFound)
			return
		}
		if errors.Is(err, storage.ErrIntegrationNotFound) {
			http.Error(w, "Integration not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusCreated, installation)
}

// handleListInstallations lists the account's template installations
func (s *Server) handleListInstallations(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	installations, err := s.services.Storage.GetTemplateStore().ListInstallations(accountID)
	if err != nil {
		http.Error(w, "Failed to list installations", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, installations)
}

// handleUninstallTemplate removes an installation and its workflow
func (s *Server) handleUninstallTemplate(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	installationID := mux.Vars(r)["id"]
	if err := s.services.Installer.Uninstall(r.Context(), accountID, installationID); err != nil {
		if errors.Is(err, storage.ErrInstallationNotFound) {
			http.Error(w, "Installation not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
