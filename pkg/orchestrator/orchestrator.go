// Package orchestrator starts workflow executions on remote n8n instances
// and tracks their outcome locally.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/logging"
	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/n8n"
	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/storage"
)

const (
	defaultPollInterval    = 2 * time.Second
	defaultMaxPollAttempts = 30
)

// ErrPollTimeout reports that the attempt budget ran out before the remote
// execution finished. The execution record stays non-terminal and a later
// poll can still complete it.
var ErrPollTimeout = errors.New("polling timed out before the execution finished")

// ClientProvider hands out API clients for integrations
type ClientProvider interface {
	ClientFor(accountID, integrationID string) (*n8n.Client, error)
}

// Orchestrator coordinates remote execution and local tracking
type Orchestrator struct {
	clients    ClientProvider
	workflows  storage.WorkflowStore
	executions storage.ExecutionStore
	logger     logging.Logger

	pollInterval    time.Duration
	maxPollAttempts int
}

// NewOrchestrator creates a new orchestrator with default polling settings
func NewOrchestrator(clients ClientProvider, workflows storage.WorkflowStore, executions storage.ExecutionStore, logger logging.Logger) *Orchestrator {
	return &Orchestrator{
		clients:         clients,
		workflows:       workflows,
		executions:      executions,
		logger:          logger,
		pollInterval:    defaultPollInterval,
		maxPollAttempts: defaultMaxPollAttempts,
	}
}

// SetPolling overrides the poll interval and attempt cap
func (o *Orchestrator) SetPolling(interval time.Duration, maxAttempts int) {
	o.pollInterval = interval
	o.maxPollAttempts = maxAttempts
}

// Execute starts a workflow on its remote instance. The execution record is
// persisted in the started state before the remote call, so a crash between
// the two leaves an auditable row rather than an untracked remote run. A
// failed start transitions the record to a terminal error.
func (o *Orchestrator) Execute(ctx context.Context, accountID, workflowID string, input map[string]interface{}, triggeredBy, triggeredByUser string) (storage.Execution, error) {
	workflow, err := o.workflows.GetWorkflow(accountID, workflowID)
	if err != nil {
		return storage.Execution{}, err
	}
	if !workflow.IsSynced {
		return storage.Execution{}, fmt.Errorf("workflow %s is no longer present on the remote instance", workflow.Name)
	}

	execution := storage.Execution{
		ID:              uuid.New().String(),
		AccountID:       accountID,
		WorkflowID:      workflowID,
		TriggeredBy:     triggeredBy,
		TriggeredByUser: triggeredByUser,
		Status:          storage.ExecutionStatusStarted,
		Input:           input,
		StartedAt:       time.Now(),
	}
	if err := o.executions.SaveExecution(execution); err != nil {
		return storage.Execution{}, fmt.Errorf("failed to save execution: %w", err)
	}

	client, err := o.clients.ClientFor(accountID, workflow.IntegrationID)
	if err != nil {
		o.failExecution(execution.ID, err)
		return execution, err
	}

	result, err := client.RunWorkflow(ctx, workflow.RemoteID, input)
	if err != nil {
		o.failExecution(execution.ID, err)
		return execution, fmt.Errorf("failed to start workflow: %w", err)
	}

	if err := o.executions.AttachRemoteExecution(execution.ID, result.ExecutionID); err != nil {
		o.logger.Error("failed to attach remote execution",
			logging.Field{Key: "execution_id", Value: execution.ID},
			logging.Field{Key: "error", Value: err.Error()})
	}
	execution.RemoteExecutionID = result.ExecutionID

	o.logger.LogExecutionEvent(workflowID, execution.ID, "execution_started", map[string]interface{}{
		"remote_execution_id": result.ExecutionID,
		"triggered_by":        triggeredBy,
	})

	return execution, nil
}

// Poll watches a started execution until it reaches a terminal state or the
// attempt cap is exhausted. Transient poll errors count as an attempt and
// do not fail the execution. Exhausting the cap returns the still-running
// record together with ErrPollTimeout.
func (o *Orchestrator) Poll(ctx context.Context, accountID, executionID string) (storage.Execution, error) {
	execution, err := o.executions.GetExecution(accountID, executionID)
	if err != nil {
		return storage.Execution{}, err
	}
	if storage.IsTerminalStatus(execution.Status) {
		return execution, nil
	}
	if execution.RemoteExecutionID == "" {
		return execution, fmt.Errorf("execution %s has no remote execution to poll", executionID)
	}

	workflow, err := o.workflows.GetWorkflow(accountID, execution.WorkflowID)
	if err != nil {
		return execution, err
	}

	client, err := o.clients.ClientFor(accountID, workflow.IntegrationID)
	if err != nil {
		return execution, err
	}

	for attempt := 0; attempt < o.maxPollAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return execution, ctx.Err()
			case <-time.After(o.pollInterval):
			}
		}

		remote, err := client.GetExecution(ctx, execution.RemoteExecutionID)
		if err != nil {
			o.logger.Warn("execution poll attempt failed",
				logging.Field{Key: "execution_id", Value: executionID},
				logging.Field{Key: "error", Value: err.Error()})
			continue
		}

		if !remote.Finished && !isTerminalRemoteStatus(remote.Status) {
			continue
		}

		return o.completeFromRemote(accountID, executionID, remote)
	}

	o.logger.LogExecutionEvent(execution.WorkflowID, executionID, "poll_timeout", map[string]interface{}{
		"attempts": o.maxPollAttempts,
	})

	// Still running as far as we know; the record stays non-terminal
	execution, err = o.executions.GetExecution(accountID, executionID)
	if err != nil {
		return storage.Execution{}, err
	}

	return execution, ErrPollTimeout
}

// TriggerWebhook fires a workflow's webhook endpoint. This path is
// fire-and-forget: no execution record is created, mirroring the fact that
// the remote instance handles the run on its own.
func (o *Orchestrator) TriggerWebhook(ctx context.Context, accountID, workflowID string, payload map[string]interface{}, method string) (*n8n.WebhookResponse, error) {
	workflow, err := o.workflows.GetWorkflow(accountID, workflowID)
	if err != nil {
		return nil, err
	}
	if workflow.WebhookPath == "" {
		return nil, fmt.Errorf("workflow %s has no webhook path", workflow.Name)
	}

	client, err := o.clients.ClientFor(accountID, workflow.IntegrationID)
	if err != nil {
		return nil, err
	}

	return client.TriggerWebhook(ctx, workflow.WebhookPath, payload, method)
}

// completeFromRemote maps a finished remote execution onto the local record
func (o *Orchestrator) completeFromRemote(accountID, executionID string, remote *n8n.Execution) (storage.Execution, error) {
	status := storage.ExecutionStatusSuccess
	errorMessage := ""
	if isFailedRemoteStatus(remote.Status) {
		status = storage.ExecutionStatusError
		errorMessage = fmt.Sprintf("remote execution finished with status %q", remote.Status)
	}

	if err := o.executions.CompleteExecution(executionID, status, remote.Data, errorMessage); err != nil {
		return storage.Execution{}, fmt.Errorf("failed to complete execution: %w", err)
	}

	return o.executions.GetExecution(accountID, executionID)
}

func (o *Orchestrator) failExecution(executionID string, cause error) {
	if err := o.executions.CompleteExecution(executionID, storage.ExecutionStatusError, nil, cause.Error()); err != nil {
		o.logger.Error("failed to record execution failure",
			logging.Field{Key: "execution_id", Value: executionID},
			logging.Field{Key: "error", Value: err.Error()})
	}
}

func isTerminalRemoteStatus(status string) bool {
	switch status {
	case "success", "error", "crashed", "canceled", "failed":
		return true
	}
	return false
}

func isFailedRemoteStatus(status string) bool {
	switch status {
	case "error", "crashed", "canceled", "failed":
		return true
	}
	return false
}
