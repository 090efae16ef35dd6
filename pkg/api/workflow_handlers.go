package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/middleware"
	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/orchestrator"
	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/storage"
)

// ExecuteWorkflowRequest is the request body for executing a workflow
type ExecuteWorkflowRequest struct {
	Input map[string]interface{} `json:"input,omitempty"`
}

// TriggerWebhookRequest is the request body for firing a workflow's webhook
type TriggerWebhookRequest struct {
	Payload map[string]interface{} `json:"payload,omitempty"`
	Method  string                 `json:"method,omitempty"`
}

// PollExecutionResponse reports the outcome of a poll. Status mirrors the
// execution's status, except "timeout" when the poll budget ran out while
// the execution was still running.
type PollExecutionResponse struct {
	Status    string            `json:"status"`
	Execution storage.Execution `json:"execution"`
}

// handleListWorkflows lists the account's mirrored workflows
func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	workflows, err := s.services.Storage.GetWorkflowStore().ListWorkflows(accountID)
	if err != nil {
		http.Error(w, "Failed to list workflows", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, workflows)
}

// handleGetWorkflow retrieves one mirrored workflow
func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	workflowID := mux.Vars(r)["id"]
	workflow, err := s.services.Storage.GetWorkflowStore().GetWorkflow(accountID, workflowID)
	if err != nil {
		if errors.Is(err, storage.ErrWorkflowNotFound) {
			http.Error(w, "Workflow not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to retrieve workflow", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, workflow)
}

// handleExecuteWorkflow starts a tracked execution of a workflow
func (s *Server) handleExecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	var req ExecuteWorkflowRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	workflowID := mux.Vars(r)["id"]
	execution, err := s.services.Orchestrator.Execute(r.Context(), accountID, workflowID, req.Input, "manual", accountID)
	if err != nil {
		if errors.Is(err, storage.ErrWorkflowNotFound) {
			http.Error(w, "Workflow not found", http.StatusNotFound)
			return
		}
		// The orchestrator records a terminal failed execution when the
		// remote start call fails; surface that record alongside the error.
		if execution.ID != "" {
			writeJSON(w, http.StatusBadGateway, execution)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusCreated, execution)
}

// handleTriggerWebhook fires a workflow's webhook without tracking an execution
func (s *Server) handleTriggerWebhook(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	var req TriggerWebhookRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	workflowID := mux.Vars(r)["id"]
	resp, err := s.services.Orchestrator.TriggerWebhook(r.Context(), accountID, workflowID, req.Payload, req.Method)
	if err != nil {
		if errors.Is(err, storage.ErrWorkflowNotFound) {
			http.Error(w, "Workflow not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleListExecutions lists a workflow's executions, newest first
func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	workflowID := mux.Vars(r)["id"]
	executions, err := s.services.Storage.GetExecutionStore().ListExecutions(accountID, workflowID)
	if err != nil {
		http.Error(w, "Failed to list executions", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, executions)
}

// handleGetExecution retrieves one execution record
func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	executionID := mux.Vars(r)["id"]
	execution, err := s.services.Storage.GetExecutionStore().GetExecution(accountID, executionID)
	if err != nil {
		if errors.Is(err, storage.ErrExecutionNotFound) {
			http.Error(w, "Execution not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to retrieve execution", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, execution)
}

// handlePollExecution polls the remote instance until the execution finishes
// or the poll budget runs out, then returns the current record
func (s *Server) handlePollExecution(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	executionID := mux.Vars(r)["id"]
	execution, err := s.services.Orchestrator.Poll(r.Context(), accountID, executionID)
	if err != nil {
		if errors.Is(err, storage.ErrExecutionNotFound) {
			http.Error(w, "Execution not found", http.StatusNotFound)
			return
		}
		if errors.Is(err, orchestrator.ErrPollTimeout) {
			writeJSON(w, http.StatusOK, PollExecutionResponse{Status: "timeout", Execution: execution})
			return
		}
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, PollExecutionResponse{Status: execution.Status, Execution: execution})
}
