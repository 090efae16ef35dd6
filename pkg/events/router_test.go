package events

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/logging"
	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/storage"
)

// recordingExecutor captures Execute calls and fails selected workflows
type recordingExecutor struct {
	calls   []executorCall
	failing map[string]bool
}

type executorCall struct {
	workflowID      string
	input           map[string]interface{}
	triggeredBy     string
	triggeredByUser string
}

func (e *recordingExecutor) Execute(ctx context.Context, accountID, workflowID string, input map[string]interface{}, triggeredBy, triggeredByUser string) (storage.Execution, error) {
	e.calls = append(e.calls, executorCall{workflowID: workflowID, input: input, triggeredBy: triggeredBy, triggeredByUser: triggeredByUser})
	if e.failing[workflowID] {
		return storage.Execution{}, fmt.Errorf("remote instance unreachable")
	}
	return storage.Execution{ID: "exec-" + workflowID, Status: storage.ExecutionStatusStarted}, nil
}

func newTestRouter(t *testing.T, executor *recordingExecutor) (*Router, storage.EventMappingStore) {
	t.Helper()

	provider := storage.NewMemoryProvider()
	require.NoError(t, provider.Initialize())

	workflows := provider.GetWorkflowStore()
	for i := 1; i <= 3; i++ {
		_, _, err := workflows.UpsertWorkflow(storage.Workflow{
			AccountID:     "acct-1",
			IntegrationID: "int-1",
			RemoteID:      fmt.Sprintf("remote-%d", i),
			Name:          fmt.Sprintf("Workflow %d", i),
			IsSynced:      true,
		})
		require.NoError(t, err)
	}

	mappings := provider.GetEventMappingStore()
	return NewRouter(mappings, workflows, executor, logging.NewNopLogger()), mappings
}

func localWorkflowID(t *testing.T, router *Router, remoteID string) string {
	t.Helper()
	workflow, err := router.workflows.GetWorkflowByRemoteID("int-1", remoteID)
	require.NoError(t, err)
	return workflow.ID
}

func TestRouteWithNoMappingsIsNoOp(t *testing.T) {
	executor := &recordingExecutor{}
	router, _ := newTestRouter(t, executor)

	result, err := router.Route(context.Background(), Event{Type: "document.uploaded", AccountID: "acct-1"})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Matched)
	assert.Equal(t, 0, result.Triggered)
	assert.Empty(t, result.Errors)
	assert.Empty(t, executor.calls)
}

func TestRouteTriggersMappedWorkflows(t *testing.T) {
	executor := &recordingExecutor{}
	router, mappings := newTestRouter(t, executor)

	workflowID := localWorkflowID(t, router, "remote-1")
	require.NoError(t, mappings.SaveEventMapping(storage.EventMapping{
		ID:         "map-1",
		AccountID:  "acct-1",
		EventType:  "document.uploaded",
		WorkflowID: workflowID,
		PayloadTransform: map[string]string{
			"email": "user.email",
		},
	}))

	result, err := router.Route(context.Background(), Event{
		Type:      "document.uploaded",
		AccountID: "acct-1",
		Payload: map[string]interface{}{
			"user": map[string]interface{}{"email": "alice@example.com"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Matched)
	assert.Equal(t, 1, result.Triggered)

	require.Len(t, executor.calls, 1)
	call := executor.calls[0]
	assert.Equal(t, workflowID, call.workflowID)
	assert.Equal(t, map[string]interface{}{"email": "alice@example.com"}, call.input)
	assert.Equal(t, "event", call.triggeredBy)
	assert.Equal(t, "system", call.triggeredByUser)

	mapping, err := mappings.GetEventMapping("acct-1", "map-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), mapping.TriggerCount)
	assert.NotNil(t, mapping.LastTriggeredAt)
}

func TestRoutePartialFailureContinues(t *testing.T) {
	router, mappings := newTestRouter(t, &recordingExecutor{})

	wf1 := localWorkflowID(t, router, "remote-1")
	wf2 := localWorkflowID(t, router, "remote-2")
	wf3 := localWorkflowID(t, router, "remote-3")

	executor := &recordingExecutor{failing: map[string]bool{wf2: true}}
	router.executor = executor

	for i, workflowID := range []string{wf1, wf2, wf3} {
		require.NoError(t, mappings.SaveEventMapping(storage.EventMapping{
			ID:         fmt.Sprintf("map-%d", i+1),
			AccountID:  "acct-1",
			EventType:  "contact.created",
			WorkflowID: workflowID,
		}))
	}

	result, err := router.Route(context.Background(), Event{Type: "contact.created", AccountID: "acct-1"})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Matched)
	assert.Equal(t, 2, result.Triggered)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Workflow 2")
	assert.Contains(t, result.Errors[0], "unreachable")

	// All three mappings were attempted despite the failure
	assert.Len(t, executor.calls, 3)

	// The failed mapping's counter stays untouched
	failed, err := mappings.GetEventMapping("acct-1", "map-2")
	require.NoError(t, err)
	assert.Equal(t, int64(0), failed.TriggerCount)
	assert.Nil(t, failed.LastTriggeredAt)
}

func TestRouteScopesMappingsToTenant(t *testing.T) {
	executor := &recordingExecutor{}
	router, mappings := newTestRouter(t, executor)

	workflowID := localWorkflowID(t, router, "remote-1")
	require.NoError(t, mappings.SaveEventMapping(storage.EventMapping{
		ID:         "map-1",
		AccountID:  "acct-other",
		EventType:  "document.uploaded",
		WorkflowID: workflowID,
	}))

	result, err := router.Route(context.Background(), Event{Type: "document.uploaded", AccountID: "acct-1"})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Matched)
	assert.Empty(t, executor.calls)
}
