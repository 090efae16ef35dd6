// Package storage provides interfaces for persistent storage.
package storage

import (
	"time"

	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/auth"
)

// Execution status values. Started is the only non-terminal status; a row
// that reached Success or Error is never mutated again.
const (
	ExecutionStatusStarted = "started"
	ExecutionStatusSuccess = "success"
	ExecutionStatusError   = "error"
)

// IsTerminalStatus reports whether an execution status is terminal
func IsTerminalStatus(status string) bool {
	return status == ExecutionStatusSuccess || status == ExecutionStatusError
}

// Integration identifies one connected n8n instance
type Integration struct {
	// ID of the integration
	ID string `json:"id"`

	// AccountID is the owning tenant
	AccountID string `json:"account_id"`

	// Name is the display name
	Name string `json:"name"`

	// InstanceURL is the base URL of the n8n instance
	InstanceURL string `json:"instance_url"`

	// APIKey is the API credential, encrypted at rest by the integration service
	APIKey string `json:"api_key"`

	// Active indicates whether the integration may be used
	Active bool `json:"active"`

	// LastVerifiedAt is when the connection was last verified
	LastVerifiedAt *time.Time `json:"last_verified_at,omitempty"`

	// LastSyncedAt is when the last sync pass completed
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`

	// CreatedAt is when the integration was created
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the integration was last updated
	UpdatedAt time.Time `json:"updated_at"`
}

// Workflow is the persisted local mirror of one remote workflow
type Workflow struct {
	// ID of the local workflow record
	ID string `json:"id"`

	// AccountID is the owning tenant
	AccountID string `json:"account_id"`

	// IntegrationID references the integration the workflow was mirrored from
	IntegrationID string `json:"integration_id"`

	// RemoteID is the workflow's ID on the remote instance. At most one
	// record exists per (integration, remote ID) pair.
	RemoteID string `json:"remote_id"`

	// Name is the display name
	Name string `json:"name"`

	// TriggerType is the detected trigger type (webhook, schedule, event, manual)
	TriggerType string `json:"trigger_type"`

	// TriggerActive mirrors the remote activation flag
	TriggerActive bool `json:"trigger_active"`

	// WebhookPath is the webhook path, when one was detected
	WebhookPath string `json:"webhook_path,omitempty"`

	// IsSynced is false when the remote counterpart has disappeared. Sync
	// never hard-deletes mirror rows.
	IsSynced bool `json:"is_synced"`

	// CreatedAt is when the record was created
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the record was last updated
	UpdatedAt time.Time `json:"updated_at"`
}

// Execution is one tracked run of a workflow
type Execution struct {
	// ID of the execution record
	ID string `json:"id"`

	// AccountID is the owning tenant
	AccountID string `json:"account_id"`

	// WorkflowID references the local workflow
	WorkflowID string `json:"workflow_id"`

	// RemoteExecutionID is attached after the remote call succeeds
	RemoteExecutionID string `json:"remote_execution_id,omitempty"`

	// TriggeredBy is the trigger source (manual, event, schedule)
	TriggeredBy string `json:"triggered_by"`

	// TriggeredByUser is the triggering user, or "system"
	TriggeredByUser string `json:"triggered_by_user"`

	// Status is the execution status
	Status string `json:"status"`

	// Input is the payload the execution was started with
	Input map[string]interface{} `json:"input,omitempty"`

	// Output is the result payload, set on terminal success
	Output map[string]interface{} `json:"output,omitempty"`

	// ErrorMessage is set on terminal error
	ErrorMessage string `json:"error_message,omitempty"`

	// StartedAt is when the record was created
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the execution reached a terminal state
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// EventMapping links a platform event type to a workflow to invoke
type EventMapping struct {
	// ID of the mapping
	ID string `json:"id"`

	// AccountID is the owning tenant
	AccountID string `json:"account_id"`

	// EventType is the platform-internal event name
	EventType string `json:"event_type"`

	// WorkflowID references the local workflow to trigger
	WorkflowID string `json:"workflow_id"`

	// PayloadTransform maps target field names to dotted paths into the
	// source event payload. Nil means the payload passes through unchanged.
	PayloadTransform map[string]string `json:"payload_transform,omitempty"`

	// TriggerCount is incremented only on a successful trigger
	TriggerCount int64 `json:"trigger_count"`

	// LastTriggeredAt is set only on a successful trigger
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`

	// CreatedAt is when the mapping was created
	CreatedAt time.Time `json:"created_at"`
}

// Template is a reusable workflow definition
type Template struct {
	// ID of the template
	ID string `json:"id"`

	// Name is the display name
	Name string `json:"name"`

	// Description of the template
	Description string `json:"description,omitempty"`

	// Category for grouping templates
	Category string `json:"category,omitempty"`

	// Definition is the raw node/connection graph
	Definition map[string]interface{} `json:"definition"`

	// RequiredCredentials lists credential types the workflow needs
	RequiredCredentials []string `json:"required_credentials,omitempty"`

	// Public indicates whether the template is visible to all tenants
	Public bool `json:"public"`

	// Featured marks the template for promotion
	Featured bool `json:"featured"`

	// InstallCount is incremented on each successful install
	InstallCount int64 `json:"install_count"`

	// CreatedAt is when the template was published
	CreatedAt time.Time `json:"created_at"`
}

// TemplateInstallation records one install of a template on an integration
type TemplateInstallation struct {
	// ID of the installation
	ID string `json:"id"`

	// AccountID is the owning tenant
	AccountID string `json:"account_id"`

	// TemplateID references the installed template
	TemplateID string `json:"template_id"`

	// IntegrationID references the target integration
	IntegrationID string `json:"integration_id"`

	// WorkflowID references the resulting local workflow
	WorkflowID string `json:"workflow_id"`

	// CustomConfig holds per-node parameter patches supplied at install time
	CustomConfig map[string]map[string]interface{} `json:"custom_config,omitempty"`

	// Status of the installation
	Status string `json:"status"`

	// CreatedAt is when the installation happened
	CreatedAt time.Time `json:"created_at"`
}

// StorageProvider defines the interface for persistence backends
type StorageProvider interface {
	// Initialize sets up the storage backend
	Initialize() error

	// Close cleans up resources
	Close() error

	// GetIntegrationStore returns a store for integrations
	GetIntegrationStore() IntegrationStore

	// GetWorkflowStore returns a store for workflow mirror records
	GetWorkflowStore() WorkflowStore

	// GetExecutionStore returns a store for execution records
	GetExecutionStore() ExecutionStore

	// GetEventMappingStore returns a store for event mappings
	GetEventMappingStore() EventMappingStore

	// GetTemplateStore returns a store for templates and installations
	GetTemplateStore() TemplateStore

	// GetAccountStore returns a store for account data
	GetAccountStore() AccountStore
}

// IntegrationStore manages integration persistence
type IntegrationStore interface {
	// SaveIntegration persists an integration
	SaveIntegration(integration Integration) error

	// GetIntegration retrieves an integration scoped to a tenant
	GetIntegration(accountID, integrationID string) (Integration, error)

	// ListIntegrations returns all integrations for a tenant
	ListIntegrations(accountID string) ([]Integration, error)

	// DeleteIntegration removes an integration
	DeleteIntegration(accountID, integrationID string) error
}

// WorkflowStore manages workflow mirror persistence
type WorkflowStore interface {
	// UpsertWorkflow inserts or updates a mirror record keyed by
	// (integration ID, remote ID). It reports whether a new record was
	// created and returns the stored record with its local ID populated.
	UpsertWorkflow(workflow Workflow) (Workflow, bool, error)

	// GetWorkflow retrieves a workflow scoped to a tenant
	GetWorkflow(accountID, workflowID string) (Workflow, error)

	// GetWorkflowByRemoteID retrieves a workflow by its remote identity
	GetWorkflowByRemoteID(integrationID, remoteID string) (Workflow, error)

	// ListWorkflows returns all workflows for a tenant
	ListWorkflows(accountID string) ([]Workflow, error)

	// ListWorkflowsByIntegration returns all workflows mirrored from one integration
	ListWorkflowsByIntegration(integrationID string) ([]Workflow, error)

	// MarkUnsynced flags a workflow whose remote counterpart disappeared
	MarkUnsynced(workflowID string) error

	// DeleteWorkflow removes a workflow record
	DeleteWorkflow(accountID, workflowID string) error
}

// ExecutionStore manages execution persistence
type ExecutionStore interface {
	// SaveExecution persists a new execution record
	SaveExecution(execution Execution) error

	// GetExecution retrieves an execution scoped to a tenant
	GetExecution(accountID, executionID string) (Execution, error)

	// ListExecutions returns executions for a workflow, newest first
	ListExecutions(accountID, workflowID string) ([]Execution, error)

	// AttachRemoteExecution records the remote execution ID after a
	// successful start call
	AttachRemoteExecution(executionID, remoteExecutionID string) error

	// CompleteExecution transitions an execution to a terminal state.
	// Terminal status is write-once: completing an already-terminal
	// execution is a no-op.
	CompleteExecution(executionID, status string, output map[string]interface{}, errorMessage string) error
}

// EventMappingStore manages event mapping persistence
type EventMappingStore interface {
	// SaveEventMapping persists an event mapping
	SaveEventMapping(mapping EventMapping) error

	// GetEventMapping retrieves a mapping scoped to a tenant
	GetEventMapping(accountID, mappingID string) (EventMapping, error)

	// ListEventMappings returns all mappings for a tenant
	ListEventMappings(accountID string) ([]EventMapping, error)

	// ListEventMappingsByType returns mappings for one event type
	ListEventMappingsByType(accountID, eventType string) ([]EventMapping, error)

	// IncrementTriggerCount atomically bumps the trigger counter and sets
	// the last-triggered timestamp
	IncrementTriggerCount(mappingID string, at time.Time) error

	// DeleteEventMapping removes a mapping
	DeleteEventMapping(accountID, mappingID string) error
}

// TemplateStore manages template and installation persistence
type TemplateStore interface {
	// SaveTemplate persists a template
	SaveTemplate(template Template) error

	// GetTemplate retrieves a template
	GetTemplate(templateID string) (Template, error)

	// ListTemplates returns all templates
	ListTemplates() ([]Template, error)

	// IncrementInstallCount atomically bumps a template's install counter
	IncrementInstallCount(templateID string) error

	// SaveInstallation persists a template installation
	SaveInstallation(installation TemplateInstallation) error

	// GetInstallation retrieves an installation scoped to a tenant
	GetInstallation(accountID, installationID string) (TemplateInstallation, error)

	// ListInstallations returns all installations for a tenant
	ListInstallations(accountID string) ([]TemplateInstallation, error)

	// DeleteInstallation removes an installation record
	DeleteInstallation(accountID, installationID string) error
}

// AccountStore manages account persistence
type AccountStore interface {
	// SaveAccount persists an account
	SaveAccount(account auth.Account) error

	// GetAccount retrieves an account
	GetAccount(accountID string) (auth.Account, error)

	// GetAccountByUsername retrieves an account by username
	GetAccountByUsername(username string) (auth.Account, error)

	// GetAccountByToken retrieves an account by API token
	GetAccountByToken(token string) (auth.Account, error)

	// ListAccounts returns all accounts
	ListAccounts() ([]auth.Account, error)

	// DeleteAccount removes an account
	DeleteAccount(accountID string) error
}
