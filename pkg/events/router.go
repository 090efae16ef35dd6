package events

import (
	"context"
	"fmt"
	"time"

	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/logging"
	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/storage"
)

// Event is a platform event offered to the router
type Event struct {
	// Type is the platform-internal event name (e.g. "document.uploaded")
	Type string `json:"type"`

	// AccountID is the tenant the event belongs to
	AccountID string `json:"account_id"`

	// Payload is the event body
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// WorkflowExecutor starts a workflow execution
type WorkflowExecutor interface {
	Execute(ctx context.Context, accountID, workflowID string, input map[string]interface{}, triggeredBy, triggeredByUser string) (storage.Execution, error)
}

// RouteResult summarizes one routing pass
type RouteResult struct {
	// Matched is the number of mappings registered for the event type
	Matched int `json:"matched"`

	// Triggered is the number of workflows started successfully
	Triggered int `json:"triggered"`

	// Errors holds per-mapping failure messages
	Errors []string `json:"errors,omitempty"`
}

// Router fans platform events out to their mapped workflows
type Router struct {
	mappings  storage.EventMappingStore
	workflows storage.WorkflowStore
	executor  WorkflowExecutor
	logger    logging.Logger
}

// NewRouter creates a new event router
func NewRouter(mappings storage.EventMappingStore, workflows storage.WorkflowStore, executor WorkflowExecutor, logger logging.Logger) *Router {
	return &Router{
		mappings:  mappings,
		workflows: workflows,
		executor:  executor,
		logger:    logger,
	}
}

// Route triggers every workflow mapped to the event's type. An event with
// no mappings is a successful no-op. A failing mapping is recorded and the
// remaining mappings still fire; the trigger counter is bumped only for
// mappings whose workflow actually started.
func (r *Router) Route(ctx context.Context, event Event) (*RouteResult, error) {
	mappings, err := r.mappings.ListEventMappingsByType(event.AccountID, event.Type)
	if err != nil {
		return nil, fmt.Errorf("failed to list event mappings: %w", err)
	}

	result := &RouteResult{Matched: len(mappings)}
	if len(mappings) == 0 {
		return result, nil
	}

	for _, mapping := range mappings {
		input := TransformPayload(event.Payload, mapping.PayloadTransform)

		_, err := r.executor.Execute(ctx, event.AccountID, mapping.WorkflowID, input, "event", "system")
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", r.workflowLabel(event.AccountID, mapping.WorkflowID), err))
			continue
		}

		result.Triggered++
		if err := r.mappings.IncrementTriggerCount(mapping.ID, time.Now()); err != nil {
			r.logger.Warn("failed to bump trigger count",
				logging.Field{Key: "mapping_id", Value: mapping.ID},
				logging.Field{Key: "error", Value: err.Error()})
		}
	}

	r.logger.LogSystemEvent("event_routed", map[string]interface{}{
		"event_type": event.Type,
		"matched":    result.Matched,
		"triggered":  result.Triggered,
		"errors":     len(result.Errors),
	})

	return result, nil
}

// workflowLabel resolves a workflow name for error messages, falling back
// to the raw ID
func (r *Router) workflowLabel(accountID, workflowID string) string {
	workflow, err := r.workflows.GetWorkflow(accountID, workflowID)
	if err != nil {
		return workflowID
	}
	return workflow.Name
}
