package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/auth"
)

// PostgreSQLProvider implements the StorageProvider interface using PostgreSQL
type PostgreSQLProvider struct {
	db                *sql.DB
	integrationStore  *PostgreSQLIntegrationStore
	workflowStore     *PostgreSQLWorkflowStore
	executionStore    *PostgreSQLExecutionStore
	eventMappingStore *PostgreSQLEventMappingStore
	templateStore     *PostgreSQLTemplateStore
	accountStore      *PostgreSQLAccountStore
}

// PostgreSQLProviderConfig contains configuration for the PostgreSQL provider
type PostgreSQLProviderConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewPostgreSQLProvider creates a new PostgreSQL storage provider
func NewPostgreSQLProvider(config PostgreSQLProviderConfig) (*PostgreSQLProvider, error) {
	if config.Port == 0 {
		config.Port = 5432
	}
	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.Database, config.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	provider := &PostgreSQLProvider{db: db}
	provider.integrationStore = &PostgreSQLIntegrationStore{db: db}
	provider.workflowStore = &PostgreSQLWorkflowStore{db: db}
	provider.executionStore = &PostgreSQLExecutionStore{db: db}
	provider.eventMappingStore = &PostgreSQLEventMappingStore{db: db}
	provider.templateStore = &PostgreSQLTemplateStore{db: db}
	provider.accountStore = &PostgreSQLAccountStore{db: db}

	return provider, nil
}

// Initialize sets up the storage backend
func (p *PostgreSQLProvider) Initialize() error {
	initializers := []struct {
		name string
		fn   func() error
	}{
		{"integration store", p.integrationStore.Initialize},
		{"workflow store", p.workflowStore.Initialize},
		{"execution store", p.executionStore.Initialize},
		{"event mapping store", p.eventMappingStore.Initialize},
		{"template store", p.templateStore.Initialize},
		{"account store", p.accountStore.Initialize},
	}

	for _, init := range initializers {
		if err := init.fn(); err != nil {
			return fmt.Errorf("failed to initialize %s: %w", init.name, err)
		}
	}

	return nil
}

// Close cleans up resources
func (p *PostgreSQLProvider) Close() error {
	return p.db.Close()
}

// GetIntegrationStore returns a store for integrations
func (p *PostgreSQLProvider) GetIntegrationStore() IntegrationStore {
	return p.integrationStore
}

// GetWorkflowStore returns a store for workflow mirror records
func (p *PostgreSQLProvider) GetWorkflowStore() WorkflowStore {
	return p.workflowStore
}

// GetExecutionStore returns a store for execution records
func (p *PostgreSQLProvider) GetExecutionStore() ExecutionStore {
	return p.executionStore
}

// GetEventMappingStore returns a store for event mappings
func (p *PostgreSQLProvider) GetEventMappingStore() EventMappingStore {
	return p.eventMappingStore
}

// GetTemplateStore returns a store for templates and installations
func (p *PostgreSQLProvider) GetTemplateStore() TemplateStore {
	return p.templateStore
}

// GetAccountStore returns a store for account data
func (p *PostgreSQLProvider) GetAccountStore() AccountStore {
	return p.accountStore
}

// marshalJSON converts a map to its JSONB representation, mapping nil to SQL NULL
func marshalJSON(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON column: %w", err)
	}
	return data, nil
}

// unmarshalJSON decodes a JSONB column into out, treating NULL as absent
func unmarshalJSON(data []byte, out interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

// PostgreSQLIntegrationStore implements the IntegrationStore interface using PostgreSQL
type PostgreSQLIntegrationStore struct {
	db *sql.DB
}

// Initialize creates the integrations table if it doesn't exist
func (s *PostgreSQLIntegrationStore) Initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS integrations (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			name TEXT NOT NULL,
			instance_url TEXT NOT NULL,
			api_key TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			last_verified_at TIMESTAMPTZ,
			last_synced_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS integrations_account_id_idx ON integrations (account_id);
	`)
	if err != nil {
		return fmt.Errorf("failed to create integrations table: %w", err)
	}

	return nil
}

// SaveIntegration persists an integration
func (s *PostgreSQLIntegrationStore) SaveIntegration(integration Integration) error {
	now := time.Now()
	if integration.CreatedAt.IsZero() {
		integration.CreatedAt = now
	}

	_, err := s.db.Exec(`
		INSERT INTO integrations (id, account_id, name, instance_url, api_key, active, last_verified_at, last_synced_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			instance_url = EXCLUDED.instance_url,
			api_key = EXCLUDED.api_key,
			active = EXCLUDED.active,
			last_verified_at = EXCLUDED.last_verified_at,
			last_synced_at = EXCLUDED.last_synced_at,
			updated_at = EXCLUDED.updated_at`,
		integration.ID, integration.AccountID, integration.Name, integration.InstanceURL,
		integration.APIKey, integration.Active, integration.LastVerifiedAt, integration.LastSyncedAt,
		integration.CreatedAt, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save integration: %w", err)
	}

	return nil
}

// GetIntegration retrieves an integration scoped to a tenant
func (s *PostgreSQLIntegrationStore) GetIntegration(accountID, integrationID string) (Integration, error) {
	row := s.db.QueryRow(`
		SELECT id, account_id, name, instance_url, api_key, active, last_verified_at, last_synced_at, created_at, updated_at
		FROM integrations WHERE id = $1 AND account_id = $2`,
		integrationID, accountID,
	)

	return scanIntegration(row)
}

// ListIntegrations returns all integrations for a tenant
func (s *PostgreSQLIntegrationStore) ListIntegrations(accountID string) ([]Integration, error) {
	rows, err := s.db.Query(`
		SELECT id, account_id, name, instance_url, api_key, active, last_verified_at, last_synced_at, created_at, updated_at
		FROM integrations WHERE account_id = $1 ORDER BY created_at`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list integrations: %w", err)
	}
	defer rows.Close()

	integrations := make([]Integration, 0)
	for rows.Next() {
		integration, err := scanIntegration(rows)
		if err != nil {
			return nil, err
		}
		integrations = append(integrations, integration)
	}

	return integrations, rows.Err()
}

// DeleteIntegration removes an integration
func (s *PostgreSQLIntegrationStore) DeleteIntegration(accountID, integrationID string) error {
	result, err := s.db.Exec("DELETE FROM integrations WHERE id = $1 AND account_id = $2", integrationID, accountID)
	if err != nil {
		return fmt.Errorf("failed to delete integration: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return ErrIntegrationNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanIntegration(row rowScanner) (Integration, error) {
	var integration Integration
	err := row.Scan(
		&integration.ID, &integration.AccountID, &integration.Name, &integration.InstanceURL,
		&integration.APIKey, &integration.Active, &integration.LastVerifiedAt, &integration.LastSyncedAt,
		&integration.CreatedAt, &integration.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return Integration{}, ErrIntegrationNotFound
	}
	if err != nil {
		return Integration{}, fmt.Errorf("failed to scan integration: %w", err)
	}

	return integration, nil
}

// PostgreSQLWorkflowStore implements the WorkflowStore interface using PostgreSQL
type PostgreSQLWorkflowStore struct {
	db *sql.DB
}

// Initialize creates the workflows table if it doesn't exist
func (s *PostgreSQLWorkflowStore) Initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS workflows (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			integration_id TEXT NOT NULL,
			remote_id TEXT NOT NULL,
			name TEXT NOT NULL,
			trigger_type TEXT NOT NULL,
			trigger_active BOOLEAN NOT NULL DEFAULT FALSE,
			webhook_path TEXT,
			is_synced BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			UNIQUE (integration_id, remote_id)
		);
		CREATE INDEX IF NOT EXISTS workflows_account_id_idx ON workflows (account_id);
	`)
	if err != nil {
		return fmt.Errorf("failed to create workflows table: %w", err)
	}

	return nil
}

// UpsertWorkflow inserts or updates a mirror record keyed by (integration ID, remote ID).
// The unique constraint makes concurrent upserts last-write-wins instead of duplicating.
func (s *PostgreSQLWorkflowStore) UpsertWorkflow(workflow Workflow) (Workflow, bool, error) {
	now := time.Now()

	// Callers identify mirrors by (integration, remote ID); the local ID is
	// minted here on insert. On conflict RETURNING yields the existing row's ID.
	if workflow.ID == "" {
		workflow.ID = uuid.New().String()
	}

	row := s.db.QueryRow(`
		INSERT INTO workflows (id, account_id, integration_id, remote_id, name, trigger_type, trigger_active, webhook_path, is_synced, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		ON CONFLICT (integration_id, remote_id) DO UPDATE SET
			name = EXCLUDED.name,
			trigger_type = EXCLUDED.trigger_type,
			trigger_active = EXCLUDED.trigger_active,
			webhook_path = EXCLUDED.webhook_path,
			is_synced = EXCLUDED.is_synced,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, (xmax = 0) AS inserted`,
		workflow.ID, workflow.AccountID, workflow.IntegrationID, workflow.RemoteID,
		workflow.Name, workflow.TriggerType, workflow.TriggerActive, nullableString(workflow.WebhookPath),
		workflow.IsSynced, now,
	)

	var inserted bool
	if err := row.Scan(&workflow.ID, &workflow.CreatedAt, &inserted); err != nil {
		return Workflow{}, false, fmt.Errorf("failed to upsert workflow: %w", err)
	}
	workflow.UpdatedAt = now

	return workflow, inserted, nil
}

// GetWorkflow retrieves a workflow scoped to a tenant
func (s *PostgreSQLWorkflowStore) GetWorkflow(accountID, workflowID string) (Workflow, error) {
	row := s.db.QueryRow(workflowSelect+" WHERE id = $1 AND account_id = $2", workflowID, accountID)
	return scanWorkflow(row)
}

// GetWorkflowByRemoteID retrieves a workflow by its remote identity
func (s *PostgreSQLWorkflowStore) GetWorkflowByRemoteID(integrationID, remoteID string) (Workflow, error) {
	row := s.db.QueryRow(workflowSelect+" WHERE integration_id = $1 AND remote_id = $2", integrationID, remoteID)
	return scanWorkflow(row)
}

// ListWorkflows returns all workflows for a tenant
func (s *PostgreSQLWorkflowStore) ListWorkflows(accountID string) ([]Workflow, error) {
	return s.queryWorkflows(workflowSelect+" WHERE account_id = $1 ORDER BY created_at", accountID)
}

// ListWorkflowsByIntegration returns all workflows mirrored from one integration
func (s *PostgreSQLWorkflowStore) ListWorkflowsByIntegration(integrationID string) ([]Workflow, error) {
	return s.queryWorkflows(workflowSelect+" WHERE integration_id = $1 ORDER BY created_at", integrationID)
}

// MarkUnsynced flags a workflow whose remote counterpart disappeared
func (s *PostgreSQLWorkflowStore) MarkUnsynced(workflowID string) error {
	result, err := s.db.Exec("UPDATE workflows SET is_synced = FALSE, updated_at = $2 WHERE id = $1", workflowID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to mark workflow unsynced: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return ErrWorkflowNotFound
	}

	return nil
}

// DeleteWorkflow removes a workflow record
func (s *PostgreSQLWorkflowStore) DeleteWorkflow(accountID, workflowID string) error {
	result, err := s.db.Exec("DELETE FROM workflows WHERE id = $1 AND account_id = $2", workflowID, accountID)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return ErrWorkflowNotFound
	}

	return nil
}

const workflowSelect = `
	SELECT id, account_id, integration_id, remote_id, name, trigger_type, trigger_active, webhook_path, is_synced, created_at, updated_at
	FROM workflows`

func (s *PostgreSQLWorkflowStore) queryWorkflows(query string, args ...interface{}) ([]Workflow, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}
	defer rows.Close()

	workflows := make([]Workflow, 0)
	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, workflow)
	}

	return workflows, rows.Err()
}

func scanWorkflow(row rowScanner) (Workflow, error) {
	var workflow Workflow
	var webhookPath sql.NullString
	err := row.Scan(
		&workflow.ID, &workflow.AccountID, &workflow.IntegrationID, &workflow.RemoteID,
		&workflow.Name, &workflow.TriggerType, &workflow.TriggerActive, &webhookPath,
		&workflow.IsSynced, &workflow.CreatedAt, &workflow.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return Workflow{}, ErrWorkflowNotFound
	}
	if err != nil {
		return Workflow{}, fmt.Errorf("failed to scan workflow: %w", err)
	}
	workflow.WebhookPath = webhookPath.String

	return workflow, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// PostgreSQLExecutionStore implements the ExecutionStore interface using PostgreSQL
type PostgreSQLExecutionStore struct {
	db *sql.DB
}

// Initialize creates the executions table if it doesn't exist
func (s *PostgreSQLExecutionStore) Initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS executions (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			workflow_id TEXT NOT NULL,
			remote_execution_id TEXT,
			triggered_by TEXT NOT NULL,
			triggered_by_user TEXT NOT NULL,
			status TEXT NOT NULL,
			input JSONB,
			output JSONB,
			error_message TEXT,
			started_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS executions_workflow_id_idx ON executions (workflow_id);
	`)
	if err != nil {
		return fmt.Errorf("failed to create executions table: %w", err)
	}

	return nil
}

// SaveExecution persists a new execution record
func (s *PostgreSQLExecutionStore) SaveExecution(execution Execution) error {
	if execution.StartedAt.IsZero() {
		execution.StartedAt = time.Now()
	}

	input, err := marshalJSON(execution.Input)
	if err != nil {
		return err
	}
	output, err := marshalJSON(execution.Output)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO executions (id, account_id, workflow_id, remote_execution_id, triggered_by, triggered_by_user, status, input, output, error_message, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		execution.ID, execution.AccountID, execution.WorkflowID, nullableString(execution.RemoteExecutionID),
		execution.TriggeredBy, execution.TriggeredByUser, execution.Status, input, output,
		nullableString(execution.ErrorMessage), execution.StartedAt, execution.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save execution: %w", err)
	}

	return nil
}

// GetExecution retrieves an execution scoped to a tenant
func (s *PostgreSQLExecutionStore) GetExecution(accountID, executionID string) (Execution, error) {
	row := s.db.QueryRow(executionSelect+" WHERE id = $1 AND account_id = $2", executionID, accountID)
	return scanExecution(row)
}

// ListExecutions returns executions for a workflow, newest first
func (s *PostgreSQLExecutionStore) ListExecutions(accountID, workflowID string) ([]Execution, error) {
	rows, err := s.db.Query(executionSelect+" WHERE account_id = $1 AND workflow_id = $2 ORDER BY started_at DESC", accountID, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer rows.Close()

	executions := make([]Execution, 0)
	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		executions = append(executions, execution)
	}

	return executions, rows.Err()
}

// AttachRemoteExecution records the remote execution ID after a successful start call
func (s *PostgreSQLExecutionStore) AttachRemoteExecution(executionID, remoteExecutionID string) error {
	result, err := s.db.Exec("UPDATE executions SET remote_execution_id = $2 WHERE id = $1", executionID, remoteExecutionID)
	if err != nil {
		return fmt.Errorf("failed to attach remote execution: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return ErrExecutionNotFound
	}

	return nil
}

// CompleteExecution transitions an execution to a terminal state. The status
// guard makes terminal status write-once: an already-terminal row matches
// zero rows and the call becomes a no-op.
func (s *PostgreSQLExecutionStore) CompleteExecution(executionID, status string, output map[string]interface{}, errorMessage string) error {
	outputJSON, err := marshalJSON(output)
	if err != nil {
		return err
	}

	result, err := s.db.Exec(`
		UPDATE executions SET status = $2, output = $3, error_message = $4, completed_at = $5
		WHERE id = $1 AND status NOT IN ($6, $7)`,
		executionID, status, outputJSON, nullableString(errorMessage), time.Now(),
		ExecutionStatusSuccess, ExecutionStatusError,
	)
	if err != nil {
		return fmt.Errorf("failed to complete execution: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		// Either the row is already terminal (no-op) or it doesn't exist
		var exists bool
		if err := s.db.QueryRow("SELECT EXISTS(SELECT 1 FROM executions WHERE id = $1)", executionID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check execution existence: %w", err)
		}
		if !exists {
			return ErrExecutionNotFound
		}
	}

	return nil
}

const executionSelect = `
	SELECT id, account_id, workflow_id, remote_execution_id, triggered_by, triggered_by_user, status, input, output, error_message, started_at, completed_at
	FROM executions`

func scanExecution(row rowScanner) (Execution, error) {
	var execution Execution
	var remoteID, errorMessage sql.NullString
	var input, output []byte
	err := row.Scan(
		&execution.ID, &execution.AccountID, &execution.WorkflowID, &remoteID,
		&execution.TriggeredBy, &execution.TriggeredByUser, &execution.Status,
		&input, &output, &errorMessage, &execution.StartedAt, &execution.CompletedAt,
	)
	if err == sql.ErrNoRows {
		return Execution{}, ErrExecutionNotFound
	}
	if err != nil {
		return Execution{}, fmt.Errorf("failed to scan execution: %w", err)
	}

	execution.RemoteExecutionID = remoteID.String
	execution.ErrorMessage = errorMessage.String
	if err := unmarshalJSON(input, &execution.Input); err != nil {
		return Execution{}, fmt.Errorf("failed to decode execution input: %w", err)
	}
	if err := unmarshalJSON(output, &execution.Output); err != nil {
		return Execution{}, fmt.Errorf("failed to decode execution output: %w", err)
	}

	return execution, nil
}

// PostgreSQLEventMappingStore implements the EventMappingStore interface using PostgreSQL
type PostgreSQLEventMappingStore struct {
	db *sql.DB
}

// Initialize creates the event_mappings table if it doesn't exist
func (s *PostgreSQLEventMappingStore) Initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS event_mappings (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			workflow_id TEXT NOT NULL,
			payload_transform JSONB,
			trigger_count BIGINT NOT NULL DEFAULT 0,
			last_triggered_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS event_mappings_event_type_idx ON event_mappings (account_id, event_type);
	`)
	if err != nil {
		return fmt.Errorf("failed to create event_mappings table: %w", err)
	}

	return nil
}

// SaveEventMapping persists an event mapping
func (s *PostgreSQLEventMappingStore) SaveEventMapping(mapping EventMapping) error {
	if mapping.CreatedAt.IsZero() {
		mapping.CreatedAt = time.Now()
	}

	transform, err := marshalJSON(mapping.PayloadTransform)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO event_mappings (id, account_id, event_type, workflow_id, payload_transform, trigger_count, last_triggered_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			event_type = EXCLUDED.event_type,
			workflow_id = EXCLUDED.workflow_id,
			payload_transform = EXCLUDED.payload_transform`,
		mapping.ID, mapping.AccountID, mapping.EventType, mapping.WorkflowID,
		transform, mapping.TriggerCount, mapping.LastTriggeredAt, mapping.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save event mapping: %w", err)
	}

	return nil
}

// GetEventMapping retrieves a mapping scoped to a tenant
func (s *PostgreSQLEventMappingStore) GetEventMapping(accountID, mappingID string) (EventMapping, error) {
	row := s.db.QueryRow(eventMappingSelect+" WHERE id = $1 AND account_id = $2", mappingID, accountID)
	return scanEventMapping(row)
}

// ListEventMappings returns all mappings for a tenant
func (s *PostgreSQLEventMappingStore) ListEventMappings(accountID string) ([]EventMapping, error) {
	return s.queryEventMappings(eventMappingSelect+" WHERE account_id = $1 ORDER BY created_at", accountID)
}

// ListEventMappingsByType returns mappings for one event type
func (s *PostgreSQLEventMappingStore) ListEventMappingsByType(accountID, eventType string) ([]EventMapping, error) {
	return s.queryEventMappings(eventMappingSelect+" WHERE account_id = $1 AND event_type = $2 ORDER BY created_at", accountID, eventType)
}

// IncrementTriggerCount atomically bumps the trigger counter
func (s *PostgreSQLEventMappingStore) IncrementTriggerCount(mappingID string, at time.Time) error {
	result, err := s.db.Exec(`
		UPDATE event_mappings SET trigger_count = trigger_count + 1, last_triggered_at = $2 WHERE id = $1`,
		mappingID, at,
	)
	if err != nil {
		return fmt.Errorf("failed to increment trigger count: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return ErrEventMappingNotFound
	}

	return nil
}

// DeleteEventMapping removes a mapping
func (s *PostgreSQLEventMappingStore) DeleteEventMapping(accountID, mappingID string) error {
	result, err := s.db.Exec("DELETE FROM event_mappings WHERE id = $1 AND account_id = $2", mappingID, accountID)
	if err != nil {
		return fmt.Errorf("failed to delete event mapping: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return ErrEventMappingNotFound
	}

	return nil
}

const eventMappingSelect = `
	SELECT id, account_id, event_type, workflow_id, payload_transform, trigger_count, last_triggered_at, created_at
	FROM event_mappings`

func (s *PostgreSQLEventMappingStore) queryEventMappings(query string, args ...interface{}) ([]EventMapping, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query event mappings: %w", err)
	}
	defer rows.Close()

	mappings := make([]EventMapping, 0)
	for rows.Next() {
		mapping, err := scanEventMapping(rows)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, mapping)
	}

	return mappings, rows.Err()
}

func scanEventMapping(row rowScanner) (EventMapping, error) {
	var mapping EventMapping
	var transform []byte
	err := row.Scan(
		&mapping.ID, &mapping.AccountID, &mapping.EventType, &mapping.WorkflowID,
		&transform, &mapping.TriggerCount, &mapping.LastTriggeredAt, &mapping.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return EventMapping{}, ErrEventMappingNotFound
	}
	if err != nil {
		return EventMapping{}, fmt.Errorf("failed to scan event mapping: %w", err)
	}

	if err := unmarshalJSON(transform, &mapping.PayloadTransform); err != nil {
		return EventMapping{}, fmt.Errorf("failed to decode payload transform: %w", err)
	}

	return mapping, nil
}

// PostgreSQLTemplateStore implements the TemplateStore interface using PostgreSQL
type PostgreSQLTemplateStore struct {
	db *sql.DB
}

// Initialize creates the template tables if they don't exist
func (s *PostgreSQLTemplateStore) Initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS templates (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			category TEXT,
			definition JSONB NOT NULL,
			required_credentials JSONB,
			public BOOLEAN NOT NULL DEFAULT FALSE,
			featured BOOLEAN NOT NULL DEFAULT FALSE,
			install_count BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS template_installations (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			template_id TEXT NOT NULL,
			integration_id TEXT NOT NULL,
			workflow_id TEXT NOT NULL,
			custom_config JSONB,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS template_installations_account_id_idx ON template_installations (account_id);
	`)
	if err != nil {
		return fmt.Errorf("failed to create template tables: %w", err)
	}

	return nil
}

// SaveTemplate persists a template
func (s *PostgreSQLTemplateStore) SaveTemplate(template Template) error {
	if template.CreatedAt.IsZero() {
		template.CreatedAt = time.Now()
	}

	definition, err := marshalJSON(template.Definition)
	if err != nil {
		return err
	}
	credentials, err := marshalJSON(template.RequiredCredentials)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO templates (id, name, description, category, definition, required_credentials, public, featured, install_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			category = EXCLUDED.category,
			definition = EXCLUDED.definition,
			required_credentials = EXCLUDED.required_credentials,
			public = EXCLUDED.public,
			featured = EXCLUDED.featured`,
		template.ID, template.Name, nullableString(template.Description), nullableString(template.Category),
		definition, credentials, template.Public, template.Featured, template.InstallCount, template.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save template: %w", err)
	}

	return nil
}

// GetTemplate retrieves a template
func (s *PostgreSQLTemplateStore) GetTemplate(templateID string) (Template, error) {
	row := s.db.QueryRow(templateSelect+" WHERE id = $1", templateID)
	return scanTemplate(row)
}

// ListTemplates returns all templates
func (s *PostgreSQLTemplateStore) ListTemplates() ([]Template, error) {
	rows, err := s.db.Query(templateSelect + " ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}
	defer rows.Close()

	templates := make([]Template, 0)
	for rows.Next() {
		template, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, template)
	}

	return templates, rows.Err()
}

// IncrementInstallCount atomically bumps a template's install counter
func (s *PostgreSQLTemplateStore) IncrementInstallCount(templateID string) error {
	result, err := s.db.Exec("UPDATE templates SET install_count = install_count + 1 WHERE id = $1", templateID)
	if err != nil {
		return fmt.Errorf("failed to increment install count: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return ErrTemplateNotFound
	}

	return nil
}

// SaveInstallation persists a template installation
func (s *PostgreSQLTemplateStore) SaveInstallation(installation TemplateInstallation) error {
	if installation.CreatedAt.IsZero() {
		installation.CreatedAt = time.Now()
	}

	config, err := marshalJSON(installation.CustomConfig)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO template_installations (id, account_id, template_id, integration_id, workflow_id, custom_config, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		installation.ID, installation.AccountID, installation.TemplateID, installation.IntegrationID,
		installation.WorkflowID, config, installation.Status, installation.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save installation: %w", err)
	}

	return nil
}

// GetInstallation retrieves an installation scoped to a tenant
func (s *PostgreSQLTemplateStore) GetInstallation(accountID, installationID string) (TemplateInstallation, error) {
	row := s.db.QueryRow(installationSelect+" WHERE id = $1 AND account_id = $2", installationID, accountID)
	return scanInstallation(row)
}

// ListInstallations returns all installations for a tenant
func (s *PostgreSQLTemplateStore) ListInstallations(accountID string) ([]TemplateInstallation, error) {
	rows, err := s.db.Query(installationSelect+" WHERE account_id = $1 ORDER BY created_at", accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query installations: %w", err)
	}
	defer rows.Close()

	installations := make([]TemplateInstallation, 0)
	for rows.Next() {
		installation, err := scanInstallation(rows)
		if err != nil {
			return nil, err
		}
		installations = append(installations, installation)
	}

	return installations, rows.Err()
}

// DeleteInstallation removes an installation record
func (s *PostgreSQLTemplateStore) DeleteInstallation(accountID, installationID string) error {
	result, err := s.db.Exec("DELETE FROM template_installations WHERE id = $1 AND account_id = $2", installationID, accountID)
	if err != nil {
		return fmt.Errorf("failed to delete installation: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return ErrInstallationNotFound
	}

	return nil
}

const templateSelect = `
	SELECT id, name, description, category, definition, required_credentials, public, featured, install_count, created_at
	FROM templates`

const installationSelect = `
	SELECT id, account_id, template_id, integration_id, workflow_id, custom_config, status, created_at
	FROM template_installations`

func scanTemplate(row rowScanner) (Template, error) {
	var template Template
	var description, category sql.NullString
	var definition, credentials []byte
	err := row.Scan(
		&template.ID, &template.Name, &description, &category,
		&definition, &credentials, &template.Public, &template.Featured,
		&template.InstallCount, &template.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return Template{}, ErrTemplateNotFound
	}
	if err != nil {
		return Template{}, fmt.Errorf("failed to scan template: %w", err)
	}

	template.Description = description.String
	template.Category = category.String
	if err := unmarshalJSON(definition, &template.Definition); err != nil {
		return Template{}, fmt.Errorf("failed to decode template definition: %w", err)
	}
	if err := unmarshalJSON(credentials, &template.RequiredCredentials); err != nil {
		return Template{}, fmt.Errorf("failed to decode required credentials: %w", err)
	}

	return template, nil
}

func scanInstallation(row rowScanner) (TemplateInstallation, error) {
	var installation TemplateInstallation
	var config []byte
	err := row.Scan(
		&installation.ID, &installation.AccountID, &installation.TemplateID, &installation.IntegrationID,
		&installation.WorkflowID, &config, &installation.Status, &installation.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return TemplateInstallation{}, ErrInstallationNotFound
	}
	if err != nil {
		return TemplateInstallation{}, fmt.Errorf("failed to scan installation: %w", err)
	}

	if err := unmarshalJSON(config, &installation.CustomConfig); err != nil {
		return TemplateInstallation{}, fmt.Errorf("failed to decode custom config: %w", err)
	}

	return installation, nil
}

// PostgreSQLAccountStore implements the AccountStore interface using PostgreSQL
type PostgreSQLAccountStore struct {
	db *sql.DB
}

// Initialize creates the accounts table if it doesn't exist
func (s *PostgreSQLAccountStore) Initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			api_token TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS accounts_api_token_idx ON accounts (api_token);
	`)
	if err != nil {
		return fmt.Errorf("failed to create accounts table: %w", err)
	}

	return nil
}

// SaveAccount persists an account
func (s *PostgreSQLAccountStore) SaveAccount(account auth.Account) error {
	_, err := s.db.Exec(`
		INSERT INTO accounts (id, username, password_hash, api_token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			password_hash = EXCLUDED.password_hash,
			api_token = EXCLUDED.api_token,
			updated_at = EXCLUDED.updated_at`,
		account.ID, account.Username, account.PasswordHash, account.APIToken,
		account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}

	return nil
}

// GetAccount retrieves an account
func (s *PostgreSQLAccountStore) GetAccount(accountID string) (auth.Account, error) {
	return s.scanOne("SELECT id, username, password_hash, api_token, created_at, updated_at FROM accounts WHERE id = $1", accountID)
}

// GetAccountByUsername retrieves an account by username
func (s *PostgreSQLAccountStore) GetAccountByUsername(username string) (auth.Account, error) {
	return s.scanOne("SELECT id, username, password_hash, api_token, created_at, updated_at FROM accounts WHERE username = $1", username)
}

// GetAccountByToken retrieves an account by API token
func (s *PostgreSQLAccountStore) GetAccountByToken(token string) (auth.Account, error) {
	return s.scanOne("SELECT id, username, password_hash, api_token, created_at, updated_at FROM accounts WHERE api_token = $1", token)
}

// ListAccounts returns all accounts
func (s *PostgreSQLAccountStore) ListAccounts() ([]auth.Account, error) {
	rows, err := s.db.Query("SELECT id, username, password_hash, api_token, created_at, updated_at FROM accounts")
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]auth.Account, 0)
	for rows.Next() {
		var account auth.Account
		if err := rows.Scan(&account.ID, &account.Username, &account.PasswordHash, &account.APIToken, &account.CreatedAt, &account.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}

	return accounts, rows.Err()
}

// DeleteAccount removes an account
func (s *PostgreSQLAccountStore) DeleteAccount(accountID string) error {
	result, err := s.db.Exec("DELETE FROM accounts WHERE id = $1", accountID)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return ErrAccountNotFound
	}

	return nil
}

func (s *PostgreSQLAccountStore) scanOne(query string, arg interface{}) (auth.Account, error) {
	var account auth.Account
	err := s.db.QueryRow(query, arg).Scan(
		&account.ID, &account.Username, &account.PasswordHash, &account.APIToken,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return auth.Account{}, ErrAccountNotFound
	}
	if err != nil {
		return auth.Account{}, fmt.Errorf("failed to scan account: %w", err)
	}

	return account, nil
}
