package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/config"
	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/events"
	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/logging"
	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/n8n"
	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/orchestrator"
	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/services"
	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/storage"
	syncer "github.com/TPCMinistries/Perpetualcore-sub007/pkg/sync"
	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/templates"
)

// fakeEngine serves just enough of the n8n REST API for the handlers under test
type fakeEngine struct {
	server    *httptest.Server
	workflows []n8n.Workflow

	// executionStatus is served for remote execution lookups; empty means
	// the execution is still running
	executionStatus string
}

func newFakeEngine(workflows []n8n.Workflow) *fakeEngine {
	f := &fakeEngine{workflows: workflows}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	return f
}

func (f *fakeEngine) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/v1/workflows" && r.Method == http.MethodGet:
		json.NewEncoder(w).Encode(n8n.WorkflowPage{Data: f.workflows})
	case strings.HasSuffix(r.URL.Path, "/run") && r.Method == http.MethodPost:
		json.NewEncoder(w).Encode(map[string]string{"executionId": "remote-1"})
	case strings.HasPrefix(r.URL.Path, "/api/v1/executions/") && r.Method == http.MethodGet:
		execution := n8n.Execution{
			ID:       strings.TrimPrefix(r.URL.Path, "/api/v1/executions/"),
			Finished: f.executionStatus != "",
			Status:   f.executionStatus,
		}
		if execution.Status == "" {
			execution.Status = "running"
		}
		json.NewEncoder(w).Encode(execution)
	case strings.HasPrefix(r.URL.Path, "/api/v1/workflows/") && r.Method == http.MethodGet:
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

func newTestServer(t *testing.T) *Server {
	t.Helper()

	provider := storage.NewMemoryProvider()
	require.NoError(t, provider.Initialize())

	logger := logging.NewNopLogger()

	accounts := services.NewAccountService(provider.GetAccountStore())
	jwtService := services.NewJWTService("test-secret", time.Hour)
	accounts.SetTokenValidator(jwtService)

	key, err := services.GenerateEncryptionKey()
	require.NoError(t, err)
	cipher, err := services.NewAESCredentialCipher(key)
	require.NoError(t, err)

	integrations := services.NewIntegrationService(provider.GetIntegrationStore(), cipher, logger)
	synchronizer := syncer.NewSynchronizer(integrations, provider.GetIntegrationStore(), provider.GetWorkflowStore(), logger)
	orch := orchestrator.NewOrchestrator(integrations, provider.GetWorkflowStore(), provider.GetExecutionStore(), logger)
	orch.SetPolling(time.Millisecond, 2)
	router := events.NewRouter(provider.GetEventMappingStore(), provider.GetWorkflowStore(), orch, logger)
	installer := templates.NewInstaller(provider.GetTemplateStore(), provider.GetWorkflowStore(), integrations, logger)

	return NewServer(config.DefaultConfig(), Services{
		Accounts:     accounts,
		JWT:          jwtService,
		Integrations: integrations,
		Synchronizer: synchronizer,
		Orchestrator: orch,
		Events:       router,
		Installer:    installer,
		Storage:      provider,
		Logger:       logger,
	})
}

// doJSON issues a request against the router and decodes the JSON response
func doJSON(t *testing.T, server *Server, method, path, token string, body interface{}, out interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewBuffer(data)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if out != nil && rec.Code < 300 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec
}

// signUp creates an account and logs in, returning the session token
func signUp(t *testing.T, server *Server, username string) string {
	t.Helper()

	rec := doJSON(t, server, http.MethodPost, "/api/v1/accounts", "", map[string]string{
		"username": username,
		"password": "secret",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var login LoginResponse
	rec = doJSON(t, server, http.MethodPost, "/api/v1/login", "", map[string]string{
		"username": username,
		"password": "secret",
	}, &login)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, login.Token)

	return login.Token
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t)

	rec := doJSON(t, server, http.MethodGet, "/api/v1/health", "", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestLoginAndCurrentAccount(t *testing.T) {
	server := newTestServer(t)
	token := signUp(t, server, "alice")

	var account map[string]interface{}
	rec := doJSON(t, server, http.MethodGet, "/api/v1/accounts/me", token, nil, &account)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", account["username"])
}

func TestLoginRejectsBadPassword(t *testing.T) {
	server := newTestServer(t)
	signUp(t, server, "alice")

	rec := doJSON(t, server, http.MethodPost, "/api/v1/login", "", map[string]string{
		"username": "alice",
		"password": "wrong",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	server := newTestServer(t)

	rec := doJSON(t, server, http.MethodGet, "/api/v1/integrations", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIntegrationSyncExecuteFlow(t *testing.T) {
	engine := newFakeEngine([]n8n.Workflow{
		{
			ID:     "wf-1",
			Name:   "Order intake",
			Active: true,
			Nodes: []n8n.Node{
				{Name: "Webhook", Type: "n8n-nodes-base.webhook", Parameters: map[string]interface{}{"path": "orders"}},
			},
		},
	})
	defer engine.server.Close()

	server := newTestServer(t)
	token := signUp(t, server, "alice")

	// Connect the instance
	var integration storage.Integration
	rec := doJSON(t, server, http.MethodPost, "/api/v1/integrations", token, CreateIntegrationRequest{
		Name:        "Production",
		InstanceURL: engine.server.URL,
		APIKey:      "engine-key",
	}, &integration)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotEmpty(t, integration.ID)

	// Pull the remote workflows into the mirror
	var result syncer.SyncResult
	rec = doJSON(t, server, http.MethodPost, "/api/v1/integrations/"+integration.ID+"/sync", token, nil, &result)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Added)

	var workflows []storage.Workflow
	rec = doJSON(t, server, http.MethodGet, "/api/v1/workflows", token, nil, &workflows)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, workflows, 1)
	assert.Equal(t, "Order intake", workflows[0].Name)
	assert.Equal(t, syncer.TriggerTypeWebhook, workflows[0].TriggerType)

	// Start a tracked execution
	var execution storage.Execution
	rec = doJSON(t, server, http.MethodPost, "/api/v1/workflows/"+workflows[0].ID+"/execute", token,
		ExecuteWorkflowRequest{Input: map[string]interface{}{"order_id": "42"}}, &execution)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, storage.ExecutionStatusStarted, execution.Status)
	assert.Equal(t, "remote-1", execution.RemoteExecutionID)

	var executions []storage.Execution
	rec = doJSON(t, server, http.MethodGet, "/api/v1/workflows/"+workflows[0].ID+"/executions", token, nil, &executions)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, executions, 1)
}

func TestPollExecutionReportsTimeout(t *testing.T) {
	engine := newFakeEngine([]n8n.Workflow{
		{ID: "wf-1", Name: "Slow batch", Active: true},
	})
	defer engine.server.Close()

	server := newTestServer(t)
	token := signUp(t, server, "alice")

	var integration storage.Integration
	rec := doJSON(t, server, http.MethodPost, "/api/v1/integrations", token, CreateIntegrationRequest{
		Name:        "Production",
		InstanceURL: engine.server.URL,
		APIKey:      "engine-key",
	}, &integration)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, server, http.MethodPost, "/api/v1/integrations/"+integration.ID+"/sync", token, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var workflows []storage.Workflow
	rec = doJSON(t, server, http.MethodGet, "/api/v1/workflows", token, nil, &workflows)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, workflows, 1)

	var execution storage.Execution
	rec = doJSON(t, server, http.MethodPost, "/api/v1/workflows/"+workflows[0].ID+"/execute", token,
		ExecuteWorkflowRequest{}, &execution)
	require.Equal(t, http.StatusCreated, rec.Code)

	// The remote execution never finishes within the poll budget
	var polled PollExecutionResponse
	rec = doJSON(t, server, http.MethodPost, "/api/v1/executions/"+execution.ID+"/poll", token, nil, &polled)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "timeout", polled.Status)
	assert.Equal(t, storage.ExecutionStatusStarted, polled.Execution.Status)

	// Once the remote run completes, a later poll reports the terminal state
	engine.executionStatus = "success"
	rec = doJSON(t, server, http.MethodPost, "/api/v1/executions/"+execution.ID+"/poll", token, nil, &polled)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, storage.ExecutionStatusSuccess, polled.Status)
	assert.Equal(t, storage.ExecutionStatusSuccess, polled.Execution.Status)
}

func TestEventMappingFlow(t *testing.T) {
	engine := newFakeEngine([]n8n.Workflow{
		{ID: "wf-1", Name: "Notify", Active: true},
	})
	defer engine.server.Close()

	server := newTestServer(t)
	token := signUp(t, server, "alice")

	var integration storage.Integration
	rec := doJSON(t, server, http.MethodPost, "/api/v1/integrations", token, CreateIntegrationRequest{
		Name:        "Production",
		InstanceURL: engine.server.URL,
		APIKey:      "engine-key",
	}, &integration)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, server, http.MethodPost, "/api/v1/integrations/"+integration.ID+"/sync", token, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var workflows []storage.Workflow
	doJSON(t, server, http.MethodGet, "/api/v1/workflows", token, nil, &workflows)
	require.Len(t, workflows, 1)

	var mapping storage.EventMapping
	rec = doJSON(t, server, http.MethodPost, "/api/v1/event-mappings", token, CreateEventMappingRequest{
		EventType:  "user.created",
		WorkflowID: workflows[0].ID,
		PayloadTransform: map[string]string{
			"email": "user.email",
		},
	}, &mapping)
	require.Equal(t, http.StatusCreated, rec.Code)

	var routed events.RouteResult
	rec = doJSON(t, server, http.MethodPost, "/api/v1/events", token, IngestEventRequest{
		Type: "user.created",
		Payload: map[string]interface{}{
			"user": map[string]interface{}{"email": "alice@example.com"},
		},
	}, &routed)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, routed.Matched)
	assert.Equal(t, 1, routed.Triggered)
	assert.Empty(t, routed.Errors)

	// The successful trigger bumps the mapping counter
	var mappings []storage.EventMapping
	doJSON(t, server, http.MethodGet, "/api/v1/event-mappings", token, nil, &mappings)
	require.Len(t, mappings, 1)
	assert.Equal(t, int64(1), mappings[0].TriggerCount)
}

func TestEventMappingRequiresExistingWorkflow(t *testing.T) {
	server := newTestServer(t)
	token := signUp(t, server, "alice")

	rec := doJSON(t, server, http.MethodPost, "/api/v1/event-mappings", token, CreateEventMappingRequest{
		EventType:  "user.created",
		WorkflowID: "nope",
	}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSchedulesUnavailableWhenDisabled(t *testing.T) {
	server := newTestServer(t)
	token := signUp(t, server, "alice")

	rec := doJSON(t, server, http.MethodPost, "/api/v1/schedules", token, CreateScheduleRequest{
		IntegrationID: "int-1",
		Spec:          "@hourly",
	}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetUnknownWorkflowReturnsNotFound(t *testing.T) {
	server := newTestServer(t)
	token := signUp(t, server, "alice")

	rec := doJSON(t, server, http.MethodGet, "/api/v1/workflows/missing", token, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTenantIsolation(t *testing.T) {
	engine := newFakeEngine(nil)
	defer engine.server.Close()

	server := newTestServer(t)
	aliceToken := signUp(t, server, "alice")
	bobToken := signUp(t, server, "bob")

	var integration storage.Integration
	rec := doJSON(t, server, http.MethodPost, "/api/v1/integrations", aliceToken, CreateIntegrationRequest{
		Name:        "Production",
		InstanceURL: engine.server.URL,
		APIKey:      "engine-key",
	}, &integration)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, server, http.MethodGet, fmt.Sprintf("/api/v1/integrations/%s", integration.ID), bobToken, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var bobIntegrations []storage.Integration
	rec = doJSON(t, server, http.MethodGet, "/api/v1/integrations", bobToken, nil, &bobIntegrations)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, bobIntegrations)
}
