package n8n

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// APIKeyHeader is the header n8n uses for API key authentication
const APIKeyHeader = "X-N8N-API-KEY"

// APIError represents a non-2xx response from the n8n API
type APIError struct {
	// StatusCode is the HTTP status of the response
	StatusCode int

	// Body is the raw response body text
	Body string
}

// Error returns the error message with status and body
func (e *APIError) Error() string {
	return fmt.Sprintf("n8n API error (status %d): %s", e.StatusCode, e.Body)
}

// Client is a typed client for one n8n instance
type Client struct {
	instanceURL string
	apiKey      string
	httpClient  *http.Client
}

// NewClient creates a client for the given instance URL and API key
func NewClient(instanceURL, apiKey string) *Client {
	return &Client{
		instanceURL: strings.TrimRight(instanceURL, "/"),
		apiKey:      apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetTimeout sets the timeout for outbound requests
func (c *Client) SetTimeout(timeout time.Duration) {
	c.httpClient.Timeout = timeout
}

// ListWorkflows returns one page of workflows. Callers must follow
// NextCursor to enumerate the full set.
func (c *Client) ListWorkflows(ctx context.Context, opts ListWorkflowsOptions) (*WorkflowPage, error) {
	query := url.Values{}
	if opts.Active != nil {
		query.Set("active", strconv.FormatBool(*opts.Active))
	}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Cursor != "" {
		query.Set("cursor", opts.Cursor)
	}

	var page WorkflowPage
	if err := c.doRequest(ctx, http.MethodGet, "/workflows", query, nil, &page); err != nil {
		return nil, err
	}

	return &page, nil
}

// ListAllWorkflows follows pagination cursors until the full workflow set
// has been enumerated
func (c *Client) ListAllWorkflows(ctx context.Context, active *bool) ([]Workflow, error) {
	var workflows []Workflow
	cursor := ""

	for {
		page, err := c.ListWorkflows(ctx, ListWorkflowsOptions{Active: active, Limit: 100, Cursor: cursor})
		if err != nil {
			return nil, err
		}

		workflows = append(workflows, page.Data...)

		if page.NextCursor == "" {
			return workflows, nil
		}
		cursor = page.NextCursor
	}
}

// GetWorkflow retrieves a single workflow by ID
func (c *Client) GetWorkflow(ctx context.Context, id string) (*Workflow, error) {
	var workflow Workflow
	if err := c.doRequest(ctx, http.MethodGet, "/workflows/"+id, nil, nil, &workflow); err != nil {
		return nil, err
	}

	return &workflow, nil
}

// CreateWorkflow creates a new workflow from the given definition
func (c *Client) CreateWorkflow(ctx context.Context, definition map[string]interface{}) (*Workflow, error) {
	var workflow Workflow
	if err := c.doRequest(ctx, http.MethodPost, "/workflows", nil, definition, &workflow); err != nil {
		return nil, err
	}

	return &workflow, nil
}

// UpdateWorkflow updates an existing workflow
func (c *Client) UpdateWorkflow(ctx context.Context, id string, definition map[string]interface{}) (*Workflow, error) {
	var workflow Workflow
	if err := c.doRequest(ctx, http.MethodPut, "/workflows/"+id, nil, definition, &workflow); err != nil {
		return nil, err
	}

	return &workflow, nil
}

// DeleteWorkflow removes a workflow
func (c *Client) DeleteWorkflow(ctx context.Context, id string) error {
	return c.doRequest(ctx, http.MethodDelete, "/workflows/"+id, nil, nil, nil)
}

// ActivateWorkflow activates a workflow
func (c *Client) ActivateWorkflow(ctx context.Context, id string) (*Workflow, error) {
	var workflow Workflow
	if err := c.doRequest(ctx, http.MethodPost, "/workflows/"+id+"/activate", nil, nil, &workflow); err != nil {
		return nil, err
	}

	return &workflow, nil
}

// DeactivateWorkflow deactivates a workflow
func (c *Client) DeactivateWorkflow(ctx context.Context, id string) (*Workflow, error) {
	var workflow Workflow
	if err := c.doRequest(ctx, http.MethodPost, "/workflows/"+id+"/deactivate", nil, nil, &workflow); err != nil {
		return nil, err
	}

	return &workflow, nil
}

// RunWorkflow starts a workflow execution with the given input data.
// The execution is asynchronous on the remote side; the returned ID can be
// polled via GetExecution.
func (c *Client) RunWorkflow(ctx context.Context, id string, input map[string]interface{}) (*RunResult, error) {
	body := map[string]interface{}{}
	if input != nil {
		body["data"] = input
	}

	var result RunResult
	if err := c.doRequest(ctx, http.MethodPost, "/workflows/"+id+"/run", nil, body, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

// ListExecutions returns one page of executions
func (c *Client) ListExecutions(ctx context.Context, opts ListExecutionsOptions) (*ExecutionPage, error) {
	query := url.Values{}
	if opts.WorkflowID != "" {
		query.Set("workflowId", opts.WorkflowID)
	}
	if opts.Status != "" {
		query.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Cursor != "" {
		query.Set("cursor", opts.Cursor)
	}

	var page ExecutionPage
	if err := c.doRequest(ctx, http.MethodGet, "/executions", query, nil, &page); err != nil {
		return nil, err
	}

	return &page, nil
}

// GetExecution retrieves a single execution by ID
func (c *Client) GetExecution(ctx context.Context, id string) (*Execution, error) {
	var execution Execution
	if err := c.doRequest(ctx, http.MethodGet, "/executions/"+id, nil, nil, &execution); err != nil {
		return nil, err
	}

	return &execution, nil
}

// GetWebhooks returns webhook information for a workflow by fetching it and
// filtering its node list for webhook nodes. The node type naming is an
// implementation detail of n8n being pattern-matched, not a stable contract.
func (c *Client) GetWebhooks(ctx context.Context, workflowID string) ([]WebhookInfo, error) {
	workflow, err := c.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	var webhooks []WebhookInfo
	for _, node := range workflow.Nodes {
		if !strings.Contains(strings.ToLower(node.Type), "webhook") {
			continue
		}

		info := WebhookInfo{
			NodeName: node.Name,
			Method:   http.MethodGet,
		}
		if path, ok := node.Parameters["path"].(string); ok {
			info.Path = path
		}
		if method, ok := node.Parameters["httpMethod"].(string); ok && method != "" {
			info.Method = strings.ToUpper(method)
		}

		webhooks = append(webhooks, info)
	}

	return webhooks, nil
}

// TriggerWebhook fires a workflow's webhook endpoint directly, bypassing the
// authenticated API. This is fire-and-forget with respect to execution
// tracking; no execution record is associated with the call.
func (c *Client) TriggerWebhook(ctx context.Context, path string, payload map[string]interface{}, method string) (*WebhookResponse, error) {
	if method == "" {
		method = http.MethodPost
	}
	method = strings.ToUpper(method)

	webhookURL := c.instanceURL + "/webhook/" + strings.TrimLeft(path, "/")

	var bodyReader io.Reader
	if method != http.MethodGet && payload != nil {
		jsonBody, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal webhook payload: %w", err)
		}
		bodyReader = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, webhookURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook request: %w", err)
	}
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read webhook response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	// Parse JSON responses, fall back to raw text
	var parsed interface{}
	if err := json.Unmarshal(body, &parsed); err != nil {
		parsed = string(body)
	}

	return &WebhookResponse{StatusCode: resp.StatusCode, Body: parsed}, nil
}

// Verify checks connectivity and credentials with a cheap list call
func (c *Client) Verify(ctx context.Context) error {
	_, err := c.ListWorkflows(ctx, ListWorkflowsOptions{Limit: 1})
	return err
}

// doRequest issues one authenticated request against the versioned API and
// decodes the JSON response into out when out is non-nil
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body interface{}, out interface{}) error {
	reqURL := c.instanceURL + "/api/v1" + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set(APIKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
