package templates

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/logging"
	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/n8n"
	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/storage"
	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/sync"
)

type staticClientProvider struct {
	client *n8n.Client
}

func (p staticClientProvider) ClientFor(accountID, integrationID string) (*n8n.Client, error) {
	return p.client, nil
}

// fakeEngine captures workflow create and delete calls
type fakeEngine struct {
	created  map[string]interface{}
	deleted  []string
	failNext bool
	server   *httptest.Server
}

func newFakeEngine() *fakeEngine {
	f := &fakeEngine{}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	return f
}

func (f *fakeEngine) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/api/v1/workflows":
		if f.failNext {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"message":"invalid workflow"}`))
			return
		}
		var definition map[string]interface{}
		json.NewDecoder(r.Body).Decode(&definition)
		f.created = definition

		// Echo the definition back as a created workflow
		response := map[string]interface{}{
			"id":     "remote-created",
			"name":   definition["name"],
			"active": false,
			"nodes":  definition["nodes"],
		}
		json.NewEncoder(w).Encode(response)
	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/api/v1/workflows/"):
		f.deleted = append(f.deleted, strings.TrimPrefix(r.URL.Path, "/api/v1/workflows/"))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestInstaller(t *testing.T, engine *fakeEngine) (*Installer, storage.TemplateStore, storage.WorkflowStore) {
	t.Helper()

	provider := storage.NewMemoryProvider()
	require.NoError(t, provider.Initialize())

	templates := provider.GetTemplateStore()
	require.NoError(t, templates.SaveTemplate(storage.Template{
		ID:   "tpl-1",
		Name: "Lead capture",
		Definition: map[string]interface{}{
			"nodes": []interface{}{
				map[string]interface{}{
					"name":       "Webhook",
					"type":       "n8n-nodes-base.webhook",
					"parameters": map[string]interface{}{"path": "leads"},
				},
				map[string]interface{}{
					"name": "Notify",
					"type": "n8n-nodes-base.slack",
				},
			},
			"connections": map[string]interface{}{},
		},
		Public: true,
	}))

	client := n8n.NewClient(engine.server.URL, "key")
	installer := NewInstaller(templates, provider.GetWorkflowStore(), staticClientProvider{client: client}, logging.NewNopLogger())

	return installer, templates, provider.GetWorkflowStore()
}

func TestInstallDeploysAndMirrors(t *testing.T) {
	engine := newFakeEngine()
	defer engine.server.Close()

	installer, templates, workflows := newTestInstaller(t, engine)

	installation, err := installer.Install(context.Background(), "acct-1", "tpl-1", "int-1", nil)
	require.NoError(t, err)
	assert.Equal(t, InstallationStatusInstalled, installation.Status)
	assert.NotEmpty(t, installation.WorkflowID)

	// The deployed definition was renamed and forced to the v1 execution order
	assert.Equal(t, "Lead capture (from template)", engine.created["name"])
	settings, ok := engine.created["settings"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "v1", settings["executionOrder"])

	// The mirror record looks like a synced workflow
	record, err := workflows.GetWorkflow("acct-1", installation.WorkflowID)
	require.NoError(t, err)
	assert.Equal(t, "remote-created", record.RemoteID)
	assert.Equal(t, sync.TriggerTypeWebhook, record.TriggerType)
	assert.Equal(t, "leads", record.WebhookPath)
	assert.True(t, record.IsSynced)

	template, err := templates.GetTemplate("tpl-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), template.InstallCount)
}

func TestInstallAppliesCustomConfig(t *testing.T) {
	engine := newFakeEngine()
	defer engine.server.Close()

	installer, templates, _ := newTestInstaller(t, engine)

	_, err := installer.Install(context.Background(), "acct-1", "tpl-1", "int-1", map[string]map[string]interface{}{
		"Notify": {"channel": "#sales"},
	})
	require.NoError(t, err)

	nodes, ok := engine.created["nodes"].([]interface{})
	require.True(t, ok)
	var notify map[string]interface{}
	for _, raw := range nodes {
		node := raw.(map[string]interface{})
		if node["name"] == "Notify" {
			notify = node
		}
	}
	require.NotNil(t, notify)
	parameters, ok := notify["parameters"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "#sales", parameters["channel"])

	// The catalog entry itself must stay pristine
	template, err := templates.GetTemplate("tpl-1")
	require.NoError(t, err)
	templateNodes := template.Definition["nodes"].([]interface{})
	for _, raw := range templateNodes {
		node := raw.(map[string]interface{})
		if node["name"] == "Notify" {
			assert.Nil(t, node["parameters"])
		}
	}
}

func TestInstallRemoteFailureLeavesNoRecords(t *testing.T) {
	engine := newFakeEngine()
	defer engine.server.Close()
	engine.failNext = true

	installer, templates, workflows := newTestInstaller(t, engine)

	_, err := installer.Install(context.Background(), "acct-1", "tpl-1", "int-1", nil)
	require.Error(t, err)

	records, err := workflows.ListWorkflows("acct-1")
	require.NoError(t, err)
	assert.Empty(t, records)

	installations, err := templates.ListInstallations("acct-1")
	require.NoError(t, err)
	assert.Empty(t, installations)

	template, err := templates.GetTemplate("tpl-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), template.InstallCount)
}

func TestUninstallRemovesRecords(t *testing.T) {
	engine := newFakeEngine()
	defer engine.server.Close()

	installer, templates, workflows := newTestInstaller(t, engine)

	installation, err := installer.Install(context.Background(), "acct-1", "tpl-1", "int-1", nil)
	require.NoError(t, err)

	require.NoError(t, installer.Uninstall(context.Background(), "acct-1", installation.ID))

	assert.Equal(t, []string{"remote-created"}, engine.deleted)

	_, err = workflows.GetWorkflow("acct-1", installation.WorkflowID)
	assert.ErrorIs(t, err, storage.ErrWorkflowNotFound)

	_, err = templates.GetInstallation("acct-1", installation.ID)
	assert.ErrorIs(t, err, storage.ErrInstallationNotFound)
}

func TestUninstallSurvivesRemoteDeleteFailure(t *testing.T) {
	engine := newFakeEngine()
	defer engine.server.Close()

	installer, templates, _ := newTestInstaller(t, engine)

	installation, err := installer.Install(context.Background(), "acct-1", "tpl-1", "int-1", nil)
	require.NoError(t, err)

	// Remote instance is gone; local cleanup must still happen
	engine.server.Close()

	require.NoError(t, installer.Uninstall(context.Background(), "acct-1", installation.ID))

	_, err = templates.GetInstallation("acct-1", installation.ID)
	assert.ErrorIs(t, err, storage.ErrInstallationNotFound)
}
