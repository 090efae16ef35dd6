package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDynamoDBProvider(t *testing.T) *DynamoDBProvider {
	t.Helper()

	provider := NewDynamoDBProviderWithClient(NewMockDynamoDBAPI(), "test_")
	require.NoError(t, provider.Initialize())

	return provider
}

func TestDynamoDBProviderInitialize(t *testing.T) {
	provider := newTestDynamoDBProvider(t)

	// A second initialize finds the tables already present
	assert.NoError(t, provider.Initialize())

	assert.NotNil(t, provider.GetIntegrationStore())
	assert.NotNil(t, provider.GetWorkflowStore())
	assert.NotNil(t, provider.GetExecutionStore())
	assert.NotNil(t, provider.GetEventMappingStore())
	assert.NotNil(t, provider.GetTemplateStore())
	assert.NotNil(t, provider.GetAccountStore())
}

func TestDynamoDBWorkflowStoreUpsert(t *testing.T) {
	store := newTestDynamoDBProvider(t).GetWorkflowStore()

	first, created, err := store.UpsertWorkflow(Workflow{
		AccountID:     "acct-1",
		IntegrationID: "int-1",
		RemoteID:      "wf-1",
		Name:          "First",
		TriggerType:   "manual",
		IsSynced:      true,
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, first.ID)

	// A second workflow with a zero-value local ID must get its own ID
	second, created, err := store.UpsertWorkflow(Workflow{
		AccountID:     "acct-1",
		IntegrationID: "int-1",
		RemoteID:      "wf-2",
		Name:          "Second",
		TriggerType:   "webhook",
		IsSynced:      true,
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, second.ID)
	assert.NotEqual(t, first.ID, second.ID)

	// Upserting the same remote identity again updates in place
	updated, created, err := store.UpsertWorkflow(Workflow{
		AccountID:     "acct-1",
		IntegrationID: "int-1",
		RemoteID:      "wf-1",
		Name:          "First renamed",
		TriggerType:   "schedule",
		IsSynced:      true,
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, updated.ID)
	assert.Equal(t, "First renamed", updated.Name)

	workflows, err := store.ListWorkflows("acct-1")
	require.NoError(t, err)
	assert.Len(t, workflows, 2)
}

func TestDynamoDBWorkflowStoreMarkUnsynced(t *testing.T) {
	store := newTestDynamoDBProvider(t).GetWorkflowStore()

	workflow, _, err := store.UpsertWorkflow(Workflow{
		AccountID:     "acct-1",
		IntegrationID: "int-1",
		RemoteID:      "wf-1",
		Name:          "Vanishing",
		IsSynced:      true,
	})
	require.NoError(t, err)

	require.NoError(t, store.MarkUnsynced(workflow.ID))

	got, err := store.GetWorkflow("acct-1", workflow.ID)
	require.NoError(t, err)
	assert.False(t, got.IsSynced)

	assert.ErrorIs(t, store.MarkUnsynced("missing"), ErrWorkflowNotFound)
}

func TestDynamoDBExecutionStoreCompleteWriteOnce(t *testing.T) {
	store := newTestDynamoDBProvider(t).GetExecutionStore()

	execution := Execution{
		ID:         "exec-1",
		AccountID:  "acct-1",
		WorkflowID: "wf-1",
		Status:     ExecutionStatusStarted,
		StartedAt:  time.Now(),
	}
	require.NoError(t, store.SaveExecution(execution))
	require.NoError(t, store.AttachRemoteExecution("exec-1", "remote-1"))

	require.NoError(t, store.CompleteExecution("exec-1", ExecutionStatusSuccess,
		map[string]interface{}{"result": "ok"}, ""))

	got, err := store.GetExecution("acct-1", "exec-1")
	require.NoError(t, err)
	assert.Equal(t, ExecutionStatusSuccess, got.Status)
	assert.Equal(t, "remote-1", got.RemoteExecutionID)

	// A second completion must not overwrite the terminal state
	require.NoError(t, store.CompleteExecution("exec-1", ExecutionStatusError, nil, "too late"))

	got, err = store.GetExecution("acct-1", "exec-1")
	require.NoError(t, err)
	assert.Equal(t, ExecutionStatusSuccess, got.Status)
	assert.Empty(t, got.ErrorMessage)

	assert.ErrorIs(t, store.CompleteExecution("missing", ExecutionStatusError, nil, "boom"), ErrExecutionNotFound)
}

func TestDynamoDBEventMappingStoreTriggerCount(t *testing.T) {
	store := newTestDynamoDBProvider(t).GetEventMappingStore()

	require.NoError(t, store.SaveEventMapping(EventMapping{
		ID:         "map-1",
		AccountID:  "acct-1",
		EventType:  "user.created",
		WorkflowID: "wf-1",
	}))

	first := time.Now().Add(-time.Minute)
	require.NoError(t, store.IncrementTriggerCount("map-1", first))
	require.NoError(t, store.IncrementTriggerCount("map-1", time.Now()))

	got, err := store.GetEventMapping("acct-1", "map-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.TriggerCount)
	require.NotNil(t, got.LastTriggeredAt)
	assert.True(t, got.LastTriggeredAt.After(first))

	assert.ErrorIs(t, store.IncrementTriggerCount("missing", time.Now()), ErrEventMappingNotFound)
}

func TestDynamoDBTemplateStoreInstallCount(t *testing.T) {
	store := newTestDynamoDBProvider(t).GetTemplateStore()

	require.NoError(t, store.SaveTemplate(Template{
		ID:   "tpl-1",
		Name: "Welcome flow",
		Definition: map[string]interface{}{
			"nodes": []interface{}{},
		},
	}))

	require.NoError(t, store.IncrementInstallCount("tpl-1"))
	require.NoError(t, store.IncrementInstallCount("tpl-1"))

	got, err := store.GetTemplate("tpl-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.InstallCount)

	assert.ErrorIs(t, store.IncrementInstallCount("missing"), ErrTemplateNotFound)
}

func TestDynamoDBStoresAreTenantScoped(t *testing.T) {
	provider := newTestDynamoDBProvider(t)

	workflow, _, err := provider.GetWorkflowStore().UpsertWorkflow(Workflow{
		AccountID:     "acct-1",
		IntegrationID: "int-1",
		RemoteID:      "wf-1",
		Name:          "Private",
		IsSynced:      true,
	})
	require.NoError(t, err)

	_, err = provider.GetWorkflowStore().GetWorkflow("acct-2", workflow.ID)
	assert.ErrorIs(t, err, ErrWorkflowNotFound)

	others, err := provider.GetWorkflowStore().ListWorkflows("acct-2")
	require.NoError(t, err)
	assert.Empty(t, others)
}
