package storage

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/auth"
)

// Errors returned by storage providers
var (
	ErrIntegrationNotFound  = errors.New("integration not found")
	ErrWorkflowNotFound     = errors.New("workflow not found")
	ErrExecutionNotFound    = errors.New("execution not found")
	ErrEventMappingNotFound = errors.New("event mapping not found")
	ErrTemplateNotFound     = errors.New("template not found")
	ErrInstallationNotFound = errors.New("installation not found")
	ErrAccountNotFound      = errors.New("account not found")
)

// MemoryProvider implements the StorageProvider interface using in-memory storage
type MemoryProvider struct {
	integrationStore  *MemoryIntegrationStore
	workflowStore     *MemoryWorkflowStore
	executionStore    *MemoryExecutionStore
	eventMappingStore *MemoryEventMappingStore
	templateStore     *MemoryTemplateStore
	accountStore      *MemoryAccountStore
}

// NewMemoryProvider creates a new in-memory storage provider
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		integrationStore:  NewMemoryIntegrationStore(),
		workflowStore:     NewMemoryWorkflowStore(),
		executionStore:    NewMemoryExecutionStore(),
		eventMappingStore: NewMemoryEventMappingStore(),
		templateStore:     NewMemoryTemplateStore(),
		accountStore:      NewMemoryAccountStore(),
	}
}

// Initialize sets up the storage backend
func (p *MemoryProvider) Initialize() error {
	// Nothing to initialize for in-memory storage
	return nil
}

// Close cleans up resources
func (p *MemoryProvider) Close() error {
	// Nothing to close for in-memory storage
	return nil
}

// GetIntegrationStore returns a store for integrations
func (p *MemoryProvider) GetIntegrationStore() IntegrationStore {
	return p.integrationStore
}

// GetWorkflowStore returns a store for workflow mirror records
func (p *MemoryProvider) GetWorkflowStore() WorkflowStore {
	return p.workflowStore
}

// GetExecutionStore returns a store for execution records
func (p *MemoryProvider) GetExecutionStore() ExecutionStore {
	return p.executionStore
}

// GetEventMappingStore returns a store for event mappings
func (p *MemoryProvider) GetEventMappingStore() EventMappingStore {
	return p.eventMappingStore
}

// GetTemplateStore returns a store for templates and installations
func (p *MemoryProvider) GetTemplateStore() TemplateStore {
	return p.templateStore
}

// GetAccountStore returns a store for account data
func (p *MemoryProvider) GetAccountStore() AccountStore {
	return p.accountStore
}

// MemoryIntegrationStore implements the IntegrationStore interface using in-memory storage
type MemoryIntegrationStore struct {
	integrations map[string]Integration
	mu           sync.RWMutex
}

// NewMemoryIntegrationStore creates a new in-memory integration store
func NewMemoryIntegrationStore() *MemoryIntegrationStore {
	return &MemoryIntegrationStore{
		integrations: make(map[string]Integration),
	}
}

// SaveIntegration persists an integration
func (s *MemoryIntegrationStore) SaveIntegration(integration Integration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.integrations[integration.ID]; ok {
		integration.CreatedAt = existing.CreatedAt
	} else if integration.CreatedAt.IsZero() {
		integration.CreatedAt = time.Now()
	}
	integration.UpdatedAt = time.Now()

	s.integrations[integration.ID] = integration
	return nil
}

// GetIntegration retrieves an integration scoped to a tenant
func (s *MemoryIntegrationStore) GetIntegration(accountID, integrationID string) (Integration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	integration, ok := s.integrations[integrationID]
	if !ok || integration.AccountID != accountID {
		return Integration{}, ErrIntegrationNotFound
	}

	return integration, nil
}

// ListIntegrations returns all integrations for a tenant
func (s *MemoryIntegrationStore) ListIntegrations(accountID string) ([]Integration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	integrations := make([]Integration, 0)
	for _, integration := range s.integrations {
		if integration.AccountID == accountID {
			integrations = append(integrations, integration)
		}
	}

	sort.Slice(integrations, func(i, j int) bool {
		return integrations[i].CreatedAt.Before(integrations[j].CreatedAt)
	})

	return integrations, nil
}

// DeleteIntegration removes an integration
func (s *MemoryIntegrationStore) DeleteIntegration(accountID, integrationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	integration, ok := s.integrations[integrationID]
	if !ok || integration.AccountID != accountID {
		return ErrIntegrationNotFound
	}

	delete(s.integrations, integrationID)
	return nil
}

// MemoryWorkflowStore implements the WorkflowStore interface using in-memory storage
type MemoryWorkflowStore struct {
	workflows map[string]Workflow
	// byRemote indexes local IDs by integrationID + "/" + remoteID
	byRemote map[string]string
	mu       sync.RWMutex
}

// NewMemoryWorkflowStore creates a new in-memory workflow store
func NewMemoryWorkflowStore() *MemoryWorkflowStore {
	return &MemoryWorkflowStore{
		workflows: make(map[string]Workflow),
		byRemote:  make(map[string]string),
	}
}

func remoteKey(integrationID, remoteID string) string {
	return integrationID + "/" + remoteID
}

// UpsertWorkflow inserts or updates a mirror record keyed by (integration ID, remote ID)
func (s *MemoryWorkflowStore) UpsertWorkflow(workflow Workflow) (Workflow, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := remoteKey(workflow.IntegrationID, workflow.RemoteID)
	now := time.Now()

	if localID, ok := s.byRemote[key]; ok {
		existing := s.workflows[localID]
		workflow.ID = existing.ID
		workflow.CreatedAt = existing.CreatedAt
		workflow.UpdatedAt = now
		s.workflows[localID] = workflow
		return workflow, false, nil
	}

	if workflow.ID == "" {
		workflow.ID = uuid.New().String()
	}
	workflow.CreatedAt = now
	workflow.UpdatedAt = now

	s.workflows[workflow.ID] = workflow
	s.byRemote[key] = workflow.ID
	return workflow, true, nil
}

// GetWorkflow retrieves a workflow scoped to a tenant
func (s *MemoryWorkflowStore) GetWorkflow(accountID, workflowID string) (Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	workflow, ok := s.workflows[workflowID]
	if !ok || workflow.AccountID != accountID {
		return Workflow{}, ErrWorkflowNotFound
	}

	return workflow, nil
}

// GetWorkflowByRemoteID retrieves a workflow by its remote identity
func (s *MemoryWorkflowStore) GetWorkflowByRemoteID(integrationID, remoteID string) (Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	localID, ok := s.byRemote[remoteKey(integrationID, remoteID)]
	if !ok {
		return Workflow{}, ErrWorkflowNotFound
	}

	return s.workflows[localID], nil
}

// ListWorkflows returns all workflows for a tenant
func (s *MemoryWorkflowStore) ListWorkflows(accountID string) ([]Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	workflows := make([]Workflow, 0)
	for _, workflow := range s.workflows {
		if workflow.AccountID == accountID {
			workflows = append(workflows, workflow)
		}
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.Before(workflows[j].CreatedAt)
	})

	return workflows, nil
}

// ListWorkflowsByIntegration returns all workflows mirrored from one integration
func (s *MemoryWorkflowStore) ListWorkflowsByIntegration(integrationID string) ([]Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	workflows := make([]Workflow, 0)
	for _, workflow := range s.workflows {
		if workflow.IntegrationID == integrationID {
			workflows = append(workflows, workflow)
		}
	}

	return workflows, nil
}

// MarkUnsynced flags a workflow whose remote counterpart disappeared
func (s *MemoryWorkflowStore) MarkUnsynced(workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	workflow, ok := s.workflows[workflowID]
	if !ok {
		return ErrWorkflowNotFound
	}

	workflow.IsSynced = false
	workflow.UpdatedAt = time.Now()
	s.workflows[workflowID] = workflow
	return nil
}

// DeleteWorkflow removes a workflow record
func (s *MemoryWorkflowStore) DeleteWorkflow(accountID, workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	workflow, ok := s.workflows[workflowID]
	if !ok || workflow.AccountID != accountID {
		return ErrWorkflowNotFound
	}

	delete(s.workflows, workflowID)
	delete(s.byRemote, remoteKey(workflow.IntegrationID, workflow.RemoteID))
	return nil
}

// MemoryExecutionStore implements the ExecutionStore interface using in-memory storage
type MemoryExecutionStore struct {
	executions map[string]Execution
	mu         sync.RWMutex
}

// NewMemoryExecutionStore creates a new in-memory execution store
func NewMemoryExecutionStore() *MemoryExecutionStore {
	return &MemoryExecutionStore{
		executions: make(map[string]Execution),
	}
}

// SaveExecution persists a new execution record
func (s *MemoryExecutionStore) SaveExecution(execution Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if execution.StartedAt.IsZero() {
		execution.StartedAt = time.Now()
	}

	s.executions[execution.ID] = execution
	return nil
}

// GetExecution retrieves an execution scoped to a tenant
func (s *MemoryExecutionStore) GetExecution(accountID, executionID string) (Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	execution, ok := s.executions[executionID]
	if !ok || execution.AccountID != accountID {
		return Execution{}, ErrExecutionNotFound
	}

	return execution, nil
}

// ListExecutions returns executions for a workflow, newest first
func (s *MemoryExecutionStore) ListExecutions(accountID, workflowID string) ([]Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	executions := make([]Execution, 0)
	for _, execution := range s.executions {
		if execution.AccountID == accountID && execution.WorkflowID == workflowID {
			executions = append(executions, execution)
		}
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].StartedAt.After(executions[j].StartedAt)
	})

	return executions, nil
}

// AttachRemoteExecution records the remote execution ID after a successful start call
func (s *MemoryExecutionStore) AttachRemoteExecution(executionID, remoteExecutionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	execution, ok := s.executions[executionID]
	if !ok {
		return ErrExecutionNotFound
	}

	execution.RemoteExecutionID = remoteExecutionID
	s.executions[executionID] = execution
	return nil
}

// CompleteExecution transitions an execution to a terminal state. Completing
// an already-terminal execution is a no-op.
func (s *MemoryExecutionStore) CompleteExecution(executionID, status string, output map[string]interface{}, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	execution, ok := s.executions[executionID]
	if !ok {
		return ErrExecutionNotFound
	}

	if IsTerminalStatus(execution.Status) {
		return nil
	}

	now := time.Now()
	execution.Status = status
	execution.Output = output
	execution.ErrorMessage = errorMessage
	execution.CompletedAt = &now
	s.executions[executionID] = execution
	return nil
}

// MemoryEventMappingStore implements the EventMappingStore interface using in-memory storage
type MemoryEventMappingStore struct {
	mappings map[string]EventMapping
	mu       sync.RWMutex
}

// NewMemoryEventMappingStore creates a new in-memory event mapping store
func NewMemoryEventMappingStore() *MemoryEventMappingStore {
	return &MemoryEventMappingStore{
		mappings: make(map[string]EventMapping),
	}
}

// SaveEventMapping persists an event mapping
func (s *MemoryEventMappingStore) SaveEventMapping(mapping EventMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if mapping.CreatedAt.IsZero() {
		mapping.CreatedAt = time.Now()
	}

	s.mappings[mapping.ID] = mapping
	return nil
}

// GetEventMapping retrieves a mapping scoped to a tenant
func (s *MemoryEventMappingStore) GetEventMapping(accountID, mappingID string) (EventMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mapping, ok := s.mappings[mappingID]
	if !ok || mapping.AccountID != accountID {
		return EventMapping{}, ErrEventMappingNotFound
	}

	return mapping, nil
}

// ListEventMappings returns all mappings for a tenant
func (s *MemoryEventMappingStore) ListEventMappings(accountID string) ([]EventMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mappings := make([]EventMapping, 0)
	for _, mapping := range s.mappings {
		if mapping.AccountID == accountID {
			mappings = append(mappings, mapping)
		}
	}

	sort.Slice(mappings, func(i, j int) bool {
		return mappings[i].CreatedAt.Before(mappings[j].CreatedAt)
	})

	return mappings, nil
}

// ListEventMappingsByType returns mappings for one event type
func (s *MemoryEventMappingStore) ListEventMappingsByType(accountID, eventType string) ([]EventMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mappings := make([]EventMapping, 0)
	for _, mapping := range s.mappings {
		if mapping.AccountID == accountID && mapping.EventType == eventType {
			mappings = append(mappings, mapping)
		}
	}

	sort.Slice(mappings, func(i, j int) bool {
		return mappings[i].CreatedAt.Before(mappings[j].CreatedAt)
	})

	return mappings, nil
}

// IncrementTriggerCount atomically bumps the trigger counter
func (s *MemoryEventMappingStore) IncrementTriggerCount(mappingID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mapping, ok := s.mappings[mappingID]
	if !ok {
		return ErrEventMappingNotFound
	}

	mapping.TriggerCount++
	mapping.LastTriggeredAt = &at
	s.mappings[mappingID] = mapping
	return nil
}

// DeleteEventMapping removes a mapping
func (s *MemoryEventMappingStore) DeleteEventMapping(accountID, mappingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mapping, ok := s.mappings[mappingID]
	if !ok || mapping.AccountID != accountID {
		return ErrEventMappingNotFound
	}

	delete(s.mappings, mappingID)
	return nil
}

// MemoryTemplateStore implements the TemplateStore interface using in-memory storage
type MemoryTemplateStore struct {
	templates     map[string]Template
	installations map[string]TemplateInstallation
	mu            sync.RWMutex
}

// NewMemoryTemplateStore creates a new in-memory template store
func NewMemoryTemplateStore() *MemoryTemplateStore {
	return &MemoryTemplateStore{
		templates:     make(map[string]Template),
		installations: make(map[string]TemplateInstallation),
	}
}

// SaveTemplate persists a template
func (s *MemoryTemplateStore) SaveTemplate(template Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.templates[template.ID]; ok {
		template.CreatedAt = existing.CreatedAt
		template.InstallCount = existing.InstallCount
	} else if template.CreatedAt.IsZero() {
		template.CreatedAt = time.Now()
	}

	s.templates[template.ID] = template
	return nil
}

// GetTemplate retrieves a template
func (s *MemoryTemplateStore) GetTemplate(templateID string) (Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	template, ok := s.templates[templateID]
	if !ok {
		return Template{}, ErrTemplateNotFound
	}

	return template, nil
}

// ListTemplates returns all templates
func (s *MemoryTemplateStore) ListTemplates() ([]Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	templates := make([]Template, 0, len(s.templates))
	for _, template := range s.templates {
		templates = append(templates, template)
	}

	sort.Slice(templates, func(i, j int) bool {
		return templates[i].Name < templates[j].Name
	})

	return templates, nil
}

// IncrementInstallCount atomically bumps a template's install counter
func (s *MemoryTemplateStore) IncrementInstallCount(templateID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	template, ok := s.templates[templateID]
	if !ok {
		return ErrTemplateNotFound
	}

	template.InstallCount++
	s.templates[templateID] = template
	return nil
}

// SaveInstallation persists a template installation
func (s *MemoryTemplateStore) SaveInstallation(installation TemplateInstallation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if installation.CreatedAt.IsZero() {
		installation.CreatedAt = time.Now()
	}

	s.installations[installation.ID] = installation
	return nil
}

// GetInstallation retrieves an installation scoped to a tenant
func (s *MemoryTemplateStore) GetInstallation(accountID, installationID string) (TemplateInstallation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	installation, ok := s.installations[installationID]
	if !ok || installation.AccountID != accountID {
		return TemplateInstallation{}, ErrInstallationNotFound
	}

	return installation, nil
}

// ListInstallations returns all installations for a tenant
func (s *MemoryTemplateStore) ListInstallations(accountID string) ([]TemplateInstallation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	installations := make([]TemplateInstallation, 0)
	for _, installation := range s.installations {
		if installation.AccountID == accountID {
			installations = append(installations, installation)
		}
	}

	sort.Slice(installations, func(i, j int) bool {
		return installations[i].CreatedAt.Before(installations[j].CreatedAt)
	})

	return installations, nil
}

// DeleteInstallation removes an installation record
func (s *MemoryTemplateStore) DeleteInstallation(accountID, installationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	installation, ok := s.installations[installationID]
	if !ok || installation.AccountID != accountID {
		return ErrInstallationNotFound
	}

	delete(s.installations, installationID)
	return nil
}

// MemoryAccountStore implements the AccountStore interface using in-memory storage
type MemoryAccountStore struct {
	accounts        map[string]auth.Account
	accountsByName  map[string]string
	accountsByToken map[string]string
	mu              sync.RWMutex
}

// NewMemoryAccountStore creates a new in-memory account store
func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{
		accounts:        make(map[string]auth.Account),
		accountsByName:  make(map[string]string),
		accountsByToken: make(map[string]string),
	}
}

// SaveAccount persists an account
func (s *MemoryAccountStore) SaveAccount(account auth.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts[account.ID] = account
	s.accountsByName[account.Username] = account.ID
	s.accountsByToken[account.APIToken] = account.ID
	return nil
}

// GetAccount retrieves an account
func (s *MemoryAccountStore) GetAccount(accountID string) (auth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[accountID]
	if !ok {
		return auth.Account{}, ErrAccountNotFound
	}

	return account, nil
}

// GetAccountByUsername retrieves an account by username
func (s *MemoryAccountStore) GetAccountByUsername(username string) (auth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accountID, ok := s.accountsByName[username]
	if !ok {
		return auth.Account{}, ErrAccountNotFound
	}

	return s.accounts[accountID], nil
}

// GetAccountByToken retrieves an account by API token
func (s *MemoryAccountStore) GetAccountByToken(token string) (auth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accountID, ok := s.accountsByToken[token]
	if !ok {
		return auth.Account{}, ErrAccountNotFound
	}

	return s.accounts[accountID], nil
}

// ListAccounts returns all accounts
func (s *MemoryAccountStore) ListAccounts() ([]auth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make([]auth.Account, 0, len(s.accounts))
	for _, account := range s.accounts {
		accounts = append(accounts, account)
	}

	return accounts, nil
}

// DeleteAccount removes an account
func (s *MemoryAccountStore) DeleteAccount(accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[accountID]
	if !ok {
		return ErrAccountNotFound
	}

	delete(s.accounts, accountID)
	delete(s.accountsByName, account.Username)
	delete(s.accountsByToken, account.APIToken)
	return nil
}
