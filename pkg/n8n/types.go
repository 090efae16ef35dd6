// Package n8n provides a typed client for the n8n workflow engine's REST API.
package n8n

import "time"

// Workflow represents a workflow as returned by the n8n API
type Workflow struct {
	// ID of the workflow
	ID string `json:"id"`

	// Name of the workflow
	Name string `json:"name"`

	// Active indicates whether the workflow is activated
	Active bool `json:"active"`

	// Nodes is the workflow's node list
	Nodes []Node `json:"nodes"`

	// Connections is the node connection graph
	Connections map[string]interface{} `json:"connections"`

	// Settings contains workflow-level settings
	Settings map[string]interface{} `json:"settings,omitempty"`

	// Tags attached to the workflow
	Tags []Tag `json:"tags,omitempty"`

	// CreatedAt is when the workflow was created
	CreatedAt *time.Time `json:"createdAt,omitempty"`

	// UpdatedAt is when the workflow was last updated
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// Node represents a single node in a workflow graph
type Node struct {
	// Name of the node, unique within the workflow
	Name string `json:"name"`

	// Type is the node type string (e.g. "n8n-nodes-base.webhook")
	Type string `json:"type"`

	// TypeVersion is the node type version
	TypeVersion float64 `json:"typeVersion,omitempty"`

	// Parameters contains node-specific configuration
	Parameters map[string]interface{} `json:"parameters,omitempty"`

	// Position is the node's position on the canvas
	Position []float64 `json:"position,omitempty"`
}

// Tag is a label attached to a workflow
type Tag struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// WorkflowPage is one page of a cursor-paginated workflow listing
type WorkflowPage struct {
	// Data contains the workflows in this page
	Data []Workflow `json:"data"`

	// NextCursor is the opaque cursor for the next page, empty on the last page
	NextCursor string `json:"nextCursor,omitempty"`
}

// Execution represents a workflow execution as returned by the n8n API
type Execution struct {
	// ID of the execution
	ID string `json:"id"`

	// WorkflowID is the ID of the executed workflow
	WorkflowID string `json:"workflowId"`

	// Finished indicates whether the execution has completed
	Finished bool `json:"finished"`

	// Status is the execution status (e.g. "success", "error", "running")
	Status string `json:"status,omitempty"`

	// Mode is how the execution was started (e.g. "manual", "trigger")
	Mode string `json:"mode,omitempty"`

	// Data contains the execution's output data
	Data map[string]interface{} `json:"data,omitempty"`

	// StartedAt is when the execution started
	StartedAt *time.Time `json:"startedAt,omitempty"`

	// StoppedAt is when the execution stopped
	StoppedAt *time.Time `json:"stoppedAt,omitempty"`
}

// ExecutionPage is one page of a cursor-paginated execution listing
type ExecutionPage struct {
	// Data contains the executions in this page
	Data []Execution `json:"data"`

	// NextCursor is the opaque cursor for the next page, empty on the last page
	NextCursor string `json:"nextCursor,omitempty"`
}

// WebhookInfo describes a webhook node found in a workflow
type WebhookInfo struct {
	// NodeName is the name of the webhook node
	NodeName string `json:"node_name"`

	// Path is the webhook path configured on the node
	Path string `json:"path"`

	// Method is the HTTP method configured on the node
	Method string `json:"method"`
}

// RunResult is the response from starting a workflow execution
type RunResult struct {
	// ExecutionID is the remote execution ID
	ExecutionID string `json:"executionId"`
}

// WebhookResponse is the response from a direct webhook trigger
type WebhookResponse struct {
	// StatusCode is the HTTP status returned by the webhook endpoint
	StatusCode int `json:"status_code"`

	// Body is the parsed response body (JSON if possible, raw text otherwise)
	Body interface{} `json:"body,omitempty"`
}

// ListWorkflowsOptions contains filters for listing workflows
type ListWorkflowsOptions struct {
	// Active filters by activation state when non-nil
	Active *bool

	// Limit is the maximum page size
	Limit int

	// Cursor is the pagination cursor from a previous page
	Cursor string
}

// ListExecutionsOptions contains filters for listing executions
type ListExecutionsOptions struct {
	// WorkflowID filters by workflow when non-empty
	WorkflowID string

	// Status filters by execution status when non-empty
	Status string

	// Limit is the maximum page size
	Limit int

	// Cursor is the pagination cursor from a previous page
	Cursor string
}
