package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/middleware"
)

// CreateScheduleRequest is the request body for creating a sync schedule
type CreateScheduleRequest struct {
	IntegrationID string `json:"integration_id"`
	Spec          string `json:"spec"`
}

// requireScheduler rejects schedule requests when the scheduler is disabled
func (s *Server) requireScheduler(w http.ResponseWriter) bool {
	if s.services.Scheduler == nil {
		http.Error(w, "Scheduler is not enabled", http.StatusServiceUnavailable)
		return false
	}
	return true
}

// handleCreateSchedule registers a recurring sync for an integration
func (s *Server) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	if !s.requireScheduler(w) {
		return
	}

	accountID, ok := middleware.GetAccountID(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	var req CreateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.IntegrationID == "" || req.Spec == "" {
		http.Error(w, "integration_id and spec are required", http.StatusBadRequest)
		return
	}

	schedule, err := s.services.Scheduler.AddSchedule(r.Context(), accountID, req.IntegrationID, req.Spec)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusCreated, schedule)
}

// handleListSchedules lists the account's sync schedules
func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	if !s.requireScheduler(w) {
		return
	}

	accountID, ok := middleware.GetAccountID(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	schedules, err := s.services.Scheduler.ListSchedules(r.Context(), accountID)
	if err != nil {
		http.Error(w, "Failed to list schedules", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, schedules)
}

// handleDeleteSchedule removes a sync schedule
func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	if !s.requireScheduler(w) {
		return
	}

	accountID, ok := middleware.GetAccountID(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	scheduleID := mux.Vars(r)["id"]
	if err := s.services.Scheduler.RemoveSchedule(r.Context(), accountID, scheduleID); err != nil {
		if strings.Contains(err.Error(), "not found") {
			http.Error(w, "Schedule not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
