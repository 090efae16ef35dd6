package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/events"
	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/middleware"
	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/storage"
)

// CreateEventMappingRequest is the request body for creating an event mapping
type CreateEventMappingRequest struct {
	EventType        string            `json:"event_type"`
	WorkflowID       string            `json:"workflow_id"`
	PayloadTransform map[string]string `json:"payload_transform,omitempty"`
}

// IngestEventRequest is the request body for the event ingest endpoint
type IngestEventRequest struct {
	Type    string                 `json:"type"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// handleCreateEventMapping creates an event-to-workflow mapping
func (s *Server) handleCreateEventMapping(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	var req CreateEventMappingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.EventType == "" || req.WorkflowID == "" {
		http.Error(w, "event_type and workflow_id are required", http.StatusBadRequest)
		return
	}

	// The target workflow must exist and belong to the account
	if _, err := s.services.Storage.GetWorkflowStore().GetWorkflow(accountID, req.WorkflowID); err != nil {
		if errors.Is(err, storage.ErrWorkflowNotFound) {
			http.Error(w, "Workflow not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to retrieve workflow", http.StatusInternalServerError)
		return
	}

	mapping := storage.EventMapping{
		ID:               uuid.New().String(),
		AccountID:        accountID,
		EventType:        req.EventType,
		WorkflowID:       req.WorkflowID,
		PayloadTransform: req.PayloadTransform,
		CreatedAt:        time.Now(),
	}

	if err := s.services.Storage.GetEventMappingStore().SaveEventMapping(mapping); err != nil {
		http.Error(w, "Failed to save event mapping", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, mapping)
}

// handleListEventMappings lists the account's event mappings
func (s *Server) handleListEventMappings(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	mappings, err := s.services.Storage.GetEventMappingStore().ListEventMappings(accountID)
	if err != nil {
		http.Error(w, "Failed to list event mappings", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, mappings)
}

// handleGetEventMapping retrieves one event mapping
func (s *Server) handleGetEventMapping(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	mappingID := mux.Vars(r)["id"]
	mapping, err := s.services.Storage.GetEventMappingStore().GetEventMapping(accountID, mappingID)
	if err != nil {
		if errors.Is(err, storage.ErrEventMappingNotFound) {
			http.Error(w, "Event mapping not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to retrieve event mapping", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, mapping)
}

// handleDeleteEventMapping removes an event mapping
func (s *Server) handleDeleteEventMapping(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	mappingID := mux.Vars(r)["id"]
	if err := s.services.Storage.GetEventMappingStore().DeleteEventMapping(accountID, mappingID); err != nil {
		if errors.Is(err, storage.ErrEventMappingNotFound) {
			http.Error(w, "Event mapping not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to delete event mapping", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleIngestEvent routes a platform event to its mapped workflows
func (s *Server) handleIngestEvent(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	var req IngestEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Type == "" {
		http.Error(w, "type is required", http.StatusBadRequest)
		return
	}

	result, err := s.services.Events.Route(r.Context(), events.Event{
		Type:      req.Type,
		AccountID: accountID,
		Payload:   req.Payload,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
