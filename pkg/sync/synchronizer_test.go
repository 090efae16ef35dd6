package sync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/logging"
	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/n8n"
	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/storage"
)

// fakeInstance serves a mutable workflow list the way the n8n REST API does
type fakeInstance struct {
	mu        sync.Mutex
	workflows []n8n.Workflow
	server    *httptest.Server
}

func newFakeInstance(workflows []n8n.Workflow) *fakeInstance {
	f := &fakeInstance{workflows: workflows}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	return f
}

func (f *fakeInstance) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.URL.Path == "/api/v1/workflows":
		json.NewEncoder(w).Encode(n8n.WorkflowPage{Data: f.workflows})
	case strings.HasPrefix(r.URL.Path, "/api/v1/workflows/"):
		id := strings.TrimPrefix(r.URL.Path, "/api/v1/workflows/")
		for _, workflow := range f.workflows {
			if workflow.ID == id {
				json.NewEncoder(w).Encode(workflow)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeInstance) setWorkflows(workflows []n8n.Workflow) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.workflows = workflows
}

type staticClientProvider struct {
	client *n8n.Client
}

func (p staticClientProvider) ClientFor(accountID, integrationID string) (*n8n.Client, error) {
	return p.client, nil
}

func newTestSynchronizer(t *testing.T, instance *fakeInstance) (*Synchronizer, storage.WorkflowStore) {
	t.Helper()

	provider := storage.NewMemoryProvider()
	require.NoError(t, provider.Initialize())

	integrations := provider.GetIntegrationStore()
	require.NoError(t, integrations.SaveIntegration(storage.Integration{
		ID:          "int-1",
		AccountID:   "acct-1",
		Name:        "Production",
		InstanceURL: instance.server.URL,
		Active:      true,
	}))

	workflows := provider.GetWorkflowStore()
	client := n8n.NewClient(instance.server.URL, "key")
	synchronizer := NewSynchronizer(staticClientProvider{client: client}, integrations, workflows, logging.NewNopLogger())

	return synchronizer, workflows
}

func TestSyncAddsAndClassifiesWorkflows(t *testing.T) {
	instance := newFakeInstance([]n8n.Workflow{
		{
			ID:     "wf-1",
			Name:   "Order intake",
			Active: true,
			Nodes: []n8n.Node{
				{Name: "Webhook", Type: "n8n-nodes-base.webhook", Parameters: map[string]interface{}{"path": "orders"}},
			},
		},
		{
			ID:    "wf-2",
			Name:  "Nightly report",
			Nodes: []n8n.Node{{Name: "Cron", Type: "n8n-nodes-base.cron"}},
		},
	})
	defer instance.server.Close()

	synchronizer, workflows := newTestSynchronizer(t, instance)

	result, err := synchronizer.Sync(context.Background(), "acct-1", "int-1")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Synced)
	assert.Equal(t, 2, result.Added)
	assert.Equal(t, 0, result.Updated)
	assert.Empty(t, result.Errors)

	webhook, err := workflows.GetWorkflowByRemoteID("int-1", "wf-1")
	require.NoError(t, err)
	assert.Equal(t, TriggerTypeWebhook, webhook.TriggerType)
	assert.Equal(t, "orders", webhook.WebhookPath)
	assert.True(t, webhook.TriggerActive)

	scheduled, err := workflows.GetWorkflowByRemoteID("int-1", "wf-2")
	require.NoError(t, err)
	assert.Equal(t, TriggerTypeSchedule, scheduled.TriggerType)
}

func TestSyncIsIdempotent(t *testing.T) {
	instance := newFakeInstance([]n8n.Workflow{
		{ID: "wf-1", Name: "Order intake", Nodes: []n8n.Node{{Name: "Set", Type: "n8n-nodes-base.set"}}},
	})
	defer instance.server.Close()

	synchronizer, workflows := newTestSynchronizer(t, instance)

	first, err := synchronizer.Sync(context.Background(), "acct-1", "int-1")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Added)

	second, err := synchronizer.Sync(context.Background(), "acct-1", "int-1")
	require.NoError(t, err)
	assert.Equal(t, 0, second.Added)
	assert.Equal(t, 1, second.Updated)
	assert.Equal(t, 0, second.Removed)

	records, err := workflows.ListWorkflowsByIntegration("int-1")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestSyncMarksDisappearedWorkflowsUnsynced(t *testing.T) {
	instance := newFakeInstance([]n8n.Workflow{
		{ID: "wf-1", Name: "Order intake"},
		{ID: "wf-2", Name: "Nightly report"},
	})
	defer instance.server.Close()

	synchronizer, workflows := newTestSynchronizer(t, instance)

	_, err := synchronizer.Sync(context.Background(), "acct-1", "int-1")
	require.NoError(t, err)

	instance.setWorkflows([]n8n.Workflow{{ID: "wf-1", Name: "Order intake"}})

	result, err := synchronizer.Sync(context.Background(), "acct-1", "int-1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Removed)

	// The record survives as unsynced so execution history stays reachable
	gone, err := workflows.GetWorkflowByRemoteID("int-1", "wf-2")
	require.NoError(t, err)
	assert.False(t, gone.IsSynced)

	kept, err := workflows.GetWorkflowByRemoteID("int-1", "wf-1")
	require.NoError(t, err)
	assert.True(t, kept.IsSynced)
}

func TestSyncWebhookLookupFailureIsBestEffort(t *testing.T) {
	// The list endpoint works but individual workflow fetches fail, so the
	// webhook path lookup errors. Sync must still succeed with an empty path.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/workflows" {
			json.NewEncoder(w).Encode(n8n.WorkflowPage{Data: []n8n.Workflow{
				{ID: "wf-1", Name: "Order intake", Nodes: []n8n.Node{{Name: "Webhook", Type: "n8n-nodes-base.webhook"}}},
			}})
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	instance := &fakeInstance{server: server}
	synchronizer, workflows := newTestSynchronizer(t, instance)

	result, err := synchronizer.Sync(context.Background(), "acct-1", "int-1")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Synced)

	record, err := workflows.GetWorkflowByRemoteID("int-1", "wf-1")
	require.NoError(t, err)
	assert.Equal(t, TriggerTypeWebhook, record.TriggerType)
	assert.Empty(t, record.WebhookPath)
}

func TestSyncFailsWhenListingFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	instance := &fakeInstance{server: server}
	synchronizer, _ := newTestSynchronizer(t, instance)

	_, err := synchronizer.Sync(context.Background(), "acct-1", "int-1")
	require.Error(t, err)

	var apiErr *n8n.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
}

func TestSyncStampsIntegrationTimes(t *testing.T) {
	instance := newFakeInstance(nil)
	defer instance.server.Close()

	provider := storage.NewMemoryProvider()
	require.NoError(t, provider.Initialize())
	integrations := provider.GetIntegrationStore()
	require.NoError(t, integrations.SaveIntegration(storage.Integration{
		ID:          "int-1",
		AccountID:   "acct-1",
		InstanceURL: instance.server.URL,
		Active:      true,
	}))

	client := n8n.NewClient(instance.server.URL, "key")
	synchronizer := NewSynchronizer(staticClientProvider{client: client}, integrations, provider.GetWorkflowStore(), logging.NewNopLogger())

	_, err := synchronizer.Sync(context.Background(), "acct-1", "int-1")
	require.NoError(t, err)

	integration, err := integrations.GetIntegration("acct-1", "int-1")
	require.NoError(t, err)
	assert.NotNil(t, integration.LastSyncedAt)
	assert.NotNil(t, integration.LastVerifiedAt)
}
