package storage

import (
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/google/uuid"

	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/auth"
)

// DynamoDBProvider implements the StorageProvider interface using DynamoDB
type DynamoDBProvider struct {
	client            dynamodbiface.DynamoDBAPI
	integrationStore  *DynamoDBIntegrationStore
	workflowStore     *DynamoDBWorkflowStore
	executionStore    *DynamoDBExecutionStore
	eventMappingStore *DynamoDBEventMappingStore
	templateStore     *DynamoDBTemplateStore
	accountStore      *DynamoDBAccountStore
	tablePrefix       string
}

// DynamoDBProviderConfig contains configuration for the DynamoDB provider
type DynamoDBProviderConfig struct {
	Region      string
	AccessKey   string
	SecretKey   string
	TablePrefix string
	Endpoint    string // Optional, for local DynamoDB
}

// NewDynamoDBProvider creates a new DynamoDB storage provider
func NewDynamoDBProvider(config DynamoDBProviderConfig) (*DynamoDBProvider, error) {
	awsConfig := &aws.Config{
		Region: aws.String(config.Region),
	}

	if config.AccessKey != "" && config.SecretKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(config.AccessKey, config.SecretKey, "")
	}
	if config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(config.Endpoint)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return NewDynamoDBProviderWithClient(dynamodb.New(sess), config.TablePrefix), nil
}

// NewDynamoDBProviderWithClient creates a provider with a custom client,
// primarily for testing with mocks
func NewDynamoDBProviderWithClient(client dynamodbiface.DynamoDBAPI, tablePrefix string) *DynamoDBProvider {
	provider := &DynamoDBProvider{
		client:      client,
		tablePrefix: tablePrefix,
	}

	provider.integrationStore = &DynamoDBIntegrationStore{client: client, table: tablePrefix + "integrations"}
	provider.workflowStore = &DynamoDBWorkflowStore{client: client, table: tablePrefix + "workflows"}
	provider.executionStore = &DynamoDBExecutionStore{client: client, table: tablePrefix + "executions"}
	provider.eventMappingStore = &DynamoDBEventMappingStore{client: client, table: tablePrefix + "event_mappings"}
	provider.templateStore = &DynamoDBTemplateStore{
		client:            client,
		templateTable:     tablePrefix + "templates",
		installationTable: tablePrefix + "template_installations",
	}
	provider.accountStore = &DynamoDBAccountStore{client: client, table: tablePrefix + "accounts"}

	return provider
}

// Initialize sets up the storage backend
func (p *DynamoDBProvider) Initialize() error {
	tables := []string{
		p.integrationStore.table,
		p.workflowStore.table,
		p.executionStore.table,
		p.eventMappingStore.table,
		p.templateStore.templateTable,
		p.templateStore.installationTable,
		p.accountStore.table,
	}

	for _, table := range tables {
		if err := ensureTable(p.client, table); err != nil {
			return fmt.Errorf("failed to initialize table %s: %w", table, err)
		}
	}

	return nil
}

// Close cleans up resources
func (p *DynamoDBProvider) Close() error {
	// The DynamoDB client has no resources to release
	return nil
}

// GetIntegrationStore returns a store for integrations
func (p *DynamoDBProvider) GetIntegrationStore() IntegrationStore {
	return p.integrationStore
}

// GetWorkflowStore returns a store for workflow mirror records
func (p *DynamoDBProvider) GetWorkflowStore() WorkflowStore {
	return p.workflowStore
}

// GetExecutionStore returns a store for execution records
func (p *DynamoDBProvider) GetExecutionStore() ExecutionStore {
	return p.executionStore
}

// GetEventMappingStore returns a store for event mappings
func (p *DynamoDBProvider) GetEventMappingStore() EventMappingStore {
	return p.eventMappingStore
}

// GetTemplateStore returns a store for templates and installations
func (p *DynamoDBProvider) GetTemplateStore() TemplateStore {
	return p.templateStore
}

// GetAccountStore returns a store for account data
func (p *DynamoDBProvider) GetAccountStore() AccountStore {
	return p.accountStore
}

// ensureTable creates a simple id-keyed table if it doesn't already exist
func ensureTable(client dynamodbiface.DynamoDBAPI, table string) error {
	_, err := client.DescribeTable(&dynamodb.DescribeTableInput{TableName: aws.String(table)})
	if err == nil {
		return nil
	}
	if aerr, ok := err.(awserr.Error); !ok || aerr.Code() != dynamodb.ErrCodeResourceNotFoundException {
		return err
	}

	_, err = client.CreateTable(&dynamodb.CreateTableInput{
		TableName: aws.String(table),
		AttributeDefinitions: []*dynamodb.AttributeDefinition{
			{AttributeName: aws.String("id"), AttributeType: aws.String("S")},
		},
		KeySchema: []*dynamodb.KeySchemaElement{
			{AttributeName: aws.String("id"), KeyType: aws.String("HASH")},
		},
		BillingMode: aws.String(dynamodb.BillingModePayPerRequest),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == dynamodb.ErrCodeResourceInUseException {
			return nil
		}
		return err
	}

	return client.WaitUntilTableExists(&dynamodb.DescribeTableInput{TableName: aws.String(table)})
}

func putItem(client dynamodbiface.DynamoDBAPI, table string, item interface{}) error {
	av, err := dynamodbattribute.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	_, err = client.PutItem(&dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("failed to put item: %w", err)
	}

	return nil
}

func getItem(client dynamodbiface.DynamoDBAPI, table, id string, out interface{}) (bool, error) {
	result, err := client.GetItem(&dynamodb.GetItemInput{
		TableName: aws.String(table),
		Key: map[string]*dynamodb.AttributeValue{
			"id": {S: aws.String(id)},
		},
	})
	if err != nil {
		return false, fmt.Errorf("failed to get item: %w", err)
	}
	if result.Item == nil {
		return false, nil
	}

	if err := dynamodbattribute.UnmarshalMap(result.Item, out); err != nil {
		return false, fmt.Errorf("failed to unmarshal item: %w", err)
	}

	return true, nil
}

func scanItems(client dynamodbiface.DynamoDBAPI, table, filter string, values map[string]*dynamodb.AttributeValue, names map[string]*string, out interface{}) error {
	input := &dynamodb.ScanInput{
		TableName: aws.String(table),
	}
	if filter != "" {
		input.FilterExpression = aws.String(filter)
		input.ExpressionAttributeValues = values
		if len(names) > 0 {
			input.ExpressionAttributeNames = names
		}
	}

	items := make([]map[string]*dynamodb.AttributeValue, 0)
	err := client.ScanPages(input, func(page *dynamodb.ScanOutput, lastPage bool) bool {
		items = append(items, page.Items...)
		return true
	})
	if err != nil {
		return fmt.Errorf("failed to scan table: %w", err)
	}

	if err := dynamodbattribute.UnmarshalListOfMaps(items, out); err != nil {
		return fmt.Errorf("failed to unmarshal items: %w", err)
	}

	return nil
}

func deleteItem(client dynamodbiface.DynamoDBAPI, table, id string) error {
	_, err := client.DeleteItem(&dynamodb.DeleteItemInput{
		TableName: aws.String(table),
		Key: map[string]*dynamodb.AttributeValue{
			"id": {S: aws.String(id)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}

	return nil
}

// DynamoDBIntegrationStore implements the IntegrationStore interface using DynamoDB
type DynamoDBIntegrationStore struct {
	client dynamodbiface.DynamoDBAPI
	table  string
}

// SaveIntegration persists an integration
func (s *DynamoDBIntegrationStore) SaveIntegration(integration Integration) error {
	now := time.Now()
	if integration.CreatedAt.IsZero() {
		integration.CreatedAt = now
	}
	integration.UpdatedAt = now

	return putItem(s.client, s.table, integration)
}

// GetIntegration retrieves an integration scoped to a tenant
func (s *DynamoDBIntegrationStore) GetIntegration(accountID, integrationID string) (Integration, error) {
	var integration Integration
	found, err := getItem(s.client, s.table, integrationID, &integration)
	if err != nil {
		return Integration{}, err
	}
	if !found || integration.AccountID != accountID {
		return Integration{}, ErrIntegrationNotFound
	}

	return integration, nil
}

// ListIntegrations returns all integrations for a tenant
func (s *DynamoDBIntegrationStore) ListIntegrations(accountID string) ([]Integration, error) {
	integrations := make([]Integration, 0)
	err := scanItems(s.client, s.table, "account_id = :account_id",
		map[string]*dynamodb.AttributeValue{":account_id": {S: aws.String(accountID)}},
		nil, &integrations)
	if err != nil {
		return nil, err
	}

	return integrations, nil
}

// DeleteIntegration removes an integration
func (s *DynamoDBIntegrationStore) DeleteIntegration(accountID, integrationID string) error {
	if _, err := s.GetIntegration(accountID, integrationID); err != nil {
		return err
	}

	return deleteItem(s.client, s.table, integrationID)
}

// DynamoDBWorkflowStore implements the WorkflowStore interface using DynamoDB
type DynamoDBWorkflowStore struct {
	client dynamodbiface.DynamoDBAPI
	table  string
}

// UpsertWorkflow inserts or updates a mirror record keyed by (integration ID, remote ID).
// DynamoDB has no cross-attribute unique constraint, so the remote-identity
// lookup and the put are two steps; concurrent upserts degrade to
// last-write-wins on the same local ID.
func (s *DynamoDBWorkflowStore) UpsertWorkflow(workflow Workflow) (Workflow, bool, error) {
	now := time.Now()

	existing, err := s.GetWorkflowByRemoteID(workflow.IntegrationID, workflow.RemoteID)
	if err == nil {
		workflow.ID = existing.ID
		workflow.CreatedAt = existing.CreatedAt
		workflow.UpdatedAt = now
		if err := putItem(s.client, s.table, workflow); err != nil {
			return Workflow{}, false, err
		}
		return workflow, false, nil
	}
	if err != ErrWorkflowNotFound {
		return Workflow{}, false, err
	}

	if workflow.ID == "" {
		workflow.ID = uuid.New().String()
	}
	workflow.CreatedAt = now
	workflow.UpdatedAt = now
	if err := putItem(s.client, s.table, workflow); err != nil {
		return Workflow{}, false, err
	}

	return workflow, true, nil
}

// GetWorkflow retrieves a workflow scoped to a tenant
func (s *DynamoDBWorkflowStore) GetWorkflow(accountID, workflowID string) (Workflow, error) {
	var workflow Workflow
	found, err := getItem(s.client, s.table, workflowID, &workflow)
	if err != nil {
		return Workflow{}, err
	}
	if !found || workflow.AccountID != accountID {
		return Workflow{}, ErrWorkflowNotFound
	}

	return workflow, nil
}

// GetWorkflowByRemoteID retrieves a workflow by its remote identity
func (s *DynamoDBWorkflowStore) GetWorkflowByRemoteID(integrationID, remoteID string) (Workflow, error) {
	workflows := make([]Workflow, 0)
	err := scanItems(s.client, s.table, "integration_id = :integration_id AND remote_id = :remote_id",
		map[string]*dynamodb.AttributeValue{
			":integration_id": {S: aws.String(integrationID)},
			":remote_id":      {S: aws.String(remoteID)},
		},
		nil, &workflows)
	if err != nil {
		return Workflow{}, err
	}
	if len(workflows) == 0 {
		return Workflow{}, ErrWorkflowNotFound
	}

	return workflows[0], nil
}

// ListWorkflows returns all workflows for a tenant
func (s *DynamoDBWorkflowStore) ListWorkflows(accountID string) ([]Workflow, error) {
	workflows := make([]Workflow, 0)
	err := scanItems(s.client, s.table, "account_id = :account_id",
		map[string]*dynamodb.AttributeValue{":account_id": {S: aws.String(accountID)}},
		nil, &workflows)
	if err != nil {
		return nil, err
	}

	return workflows, nil
}

// ListWorkflowsByIntegration returns all workflows mirrored from one integration
func (s *DynamoDBWorkflowStore) ListWorkflowsByIntegration(integrationID string) ([]Workflow, error) {
	workflows := make([]Workflow, 0)
	err := scanItems(s.client, s.table, "integration_id = :integration_id",
		map[string]*dynamodb.AttributeValue{":integration_id": {S: aws.String(integrationID)}},
		nil, &workflows)
	if err != nil {
		return nil, err
	}

	return workflows, nil
}

// MarkUnsynced flags a workflow whose remote counterpart disappeared
func (s *DynamoDBWorkflowStore) MarkUnsynced(workflowID string) error {
	_, err := s.client.UpdateItem(&dynamodb.UpdateItemInput{
		TableName: aws.String(s.table),
		Key: map[string]*dynamodb.AttributeValue{
			"id": {S: aws.String(workflowID)},
		},
		UpdateExpression:    aws.String("SET is_synced = :false, updated_at = :now"),
		ConditionExpression: aws.String("attribute_exists(id)"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":false": {BOOL: aws.Bool(false)},
			":now":   {S: aws.String(time.Now().Format(time.RFC3339Nano))},
		},
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == dynamodb.ErrCodeConditionalCheckFailedException {
			return ErrWorkflowNotFound
		}
		return fmt.Errorf("failed to mark workflow unsynced: %w", err)
	}

	return nil
}

// DeleteWorkflow removes a workflow record
func (s *DynamoDBWorkflowStore) DeleteWorkflow(accountID, workflowID string) error {
	if _, err := s.GetWorkflow(accountID, workflowID); err != nil {
		return err
	}

	return deleteItem(s.client, s.table, workflowID)
}

// DynamoDBExecutionStore implements the ExecutionStore interface using DynamoDB
type DynamoDBExecutionStore struct {
	client dynamodbiface.DynamoDBAPI
	table  string
}

// SaveExecution persists a new execution record
func (s *DynamoDBExecutionStore) SaveExecution(execution Execution) error {
	if execution.StartedAt.IsZero() {
		execution.StartedAt = time.Now()
	}

	return putItem(s.client, s.table, execution)
}

// GetExecution retrieves an execution scoped to a tenant
func (s *DynamoDBExecutionStore) GetExecution(accountID, executionID string) (Execution, error) {
	var execution Execution
	found, err := getItem(s.client, s.table, executionID, &execution)
	if err != nil {
		return Execution{}, err
	}
	if !found || execution.AccountID != accountID {
		return Execution{}, ErrExecutionNotFound
	}

	return execution, nil
}

// ListExecutions returns executions for a workflow, newest first
func (s *DynamoDBExecutionStore) ListExecutions(accountID, workflowID string) ([]Execution, error) {
	executions := make([]Execution, 0)
	err := scanItems(s.client, s.table, "account_id = :account_id AND workflow_id = :workflow_id",
		map[string]*dynamodb.AttributeValue{
			":account_id":  {S: aws.String(accountID)},
			":workflow_id": {S: aws.String(workflowID)},
		},
		nil, &executions)
	if err != nil {
		return nil, err
	}

	return executions, nil
}

// AttachRemoteExecution records the remote execution ID after a successful start call
func (s *DynamoDBExecutionStore) AttachRemoteExecution(executionID, remoteExecutionID string) error {
	_, err := s.client.UpdateItem(&dynamodb.UpdateItemInput{
		TableName: aws.String(s.table),
		Key: map[string]*dynamodb.AttributeValue{
			"id": {S: aws.String(executionID)},
		},
		UpdateExpression:    aws.String("SET remote_execution_id = :remote_id"),
		ConditionExpression: aws.String("attribute_exists(id)"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":remote_id": {S: aws.String(remoteExecutionID)},
		},
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == dynamodb.ErrCodeConditionalCheckFailedException {
			return ErrExecutionNotFound
		}
		return fmt.Errorf("failed to attach remote execution: %w", err)
	}

	return nil
}

// CompleteExecution transitions an execution to a terminal state. The
// condition expression makes terminal status write-once; a conditional
// failure on an existing row is treated as a no-op.
func (s *DynamoDBExecutionStore) CompleteExecution(executionID, status string, output map[string]interface{}, errorMessage string) error {
	outputAV, err := dynamodbattribute.Marshal(output)
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}

	_, err = s.client.UpdateItem(&dynamodb.UpdateItemInput{
		TableName: aws.String(s.table),
		Key: map[string]*dynamodb.AttributeValue{
			"id": {S: aws.String(executionID)},
		},
		UpdateExpression:    aws.String("SET #status = :status, #output = :output, error_message = :error, completed_at = :now"),
		ConditionExpression: aws.String("attribute_exists(id) AND NOT (#status IN (:success, :error_status))"),
		ExpressionAttributeNames: map[string]*string{
			"#status": aws.String("status"),
			"#output": aws.String("output"),
		},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":status":       {S: aws.String(status)},
			":output":       outputAV,
			":error":        {S: aws.String(errorMessage)},
			":now":          {S: aws.String(time.Now().Format(time.RFC3339Nano))},
			":success":      {S: aws.String(ExecutionStatusSuccess)},
			":error_status": {S: aws.String(ExecutionStatusError)},
		},
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == dynamodb.ErrCodeConditionalCheckFailedException {
			// Distinguish a missing row from an already-terminal one
			var execution Execution
			found, getErr := getItem(s.client, s.table, executionID, &execution)
			if getErr != nil {
				return getErr
			}
			if !found {
				return ErrExecutionNotFound
			}
			return nil
		}
		return fmt.Errorf("failed to complete execution: %w", err)
	}

	return nil
}

// DynamoDBEventMappingStore implements the EventMappingStore interface using DynamoDB
type DynamoDBEventMappingStore struct {
	client dynamodbiface.DynamoDBAPI
	table  string
}

// SaveEventMapping persists an event mapping
func (s *DynamoDBEventMappingStore) SaveEventMapping(mapping EventMapping) error {
	if mapping.CreatedAt.IsZero() {
		mapping.CreatedAt = time.Now()
	}

	return putItem(s.client, s.table, mapping)
}

// GetEventMapping retrieves a mapping scoped to a tenant
func (s *DynamoDBEventMappingStore) GetEventMapping(accountID, mappingID string) (EventMapping, error) {
	var mapping EventMapping
	found, err := getItem(s.client, s.table, mappingID, &mapping)
	if err != nil {
		return EventMapping{}, err
	}
	if !found || mapping.AccountID != accountID {
		return EventMapping{}, ErrEventMappingNotFound
	}

	return mapping, nil
}

// ListEventMappings returns all mappings for a tenant
func (s *DynamoDBEventMappingStore) ListEventMappings(accountID string) ([]EventMapping, error) {
	mappings := make([]EventMapping, 0)
	err := scanItems(s.client, s.table, "account_id = :account_id",
		map[string]*dynamodb.AttributeValue{":account_id": {S: aws.String(accountID)}},
		nil, &mappings)
	if err != nil {
		return nil, err
	}

	return mappings, nil
}

// ListEventMappingsByType returns mappings for one event type
func (s *DynamoDBEventMappingStore) ListEventMappingsByType(accountID, eventType string) ([]EventMapping, error) {
	mappings := make([]EventMapping, 0)
	err := scanItems(s.client, s.table, "account_id = :account_id AND event_type = :event_type",
		map[string]*dynamodb.AttributeValue{
			":account_id": {S: aws.String(accountID)},
			":event_type": {S: aws.String(eventType)},
		},
		nil, &mappings)
	if err != nil {
		return nil, err
	}

	return mappings, nil
}

// IncrementTriggerCount atomically bumps the trigger counter
func (s *DynamoDBEventMappingStore) IncrementTriggerCount(mappingID string, at time.Time) error {
	_, err := s.client.UpdateItem(&dynamodb.UpdateItemInput{
		TableName: aws.String(s.table),
		Key: map[string]*dynamodb.AttributeValue{
			"id": {S: aws.String(mappingID)},
		},
		UpdateExpression:    aws.String("SET last_triggered_at = :at ADD trigger_count :one"),
		ConditionExpression: aws.String("attribute_exists(id)"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":at":  {S: aws.String(at.Format(time.RFC3339Nano))},
			":one": {N: aws.String("1")},
		},
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == dynamodb.ErrCodeConditionalCheckFailedException {
			return ErrEventMappingNotFound
		}
		return fmt.Errorf("failed to increment trigger count: %w", err)
	}

	return nil
}

// DeleteEventMapping removes a mapping
func (s *DynamoDBEventMappingStore) DeleteEventMapping(accountID, mappingID string) error {
	if _, err := s.GetEventMapping(accountID, mappingID); err != nil {
		return err
	}

	return deleteItem(s.client, s.table, mappingID)
}

// DynamoDBTemplateStore implements the TemplateStore interface using DynamoDB
type DynamoDBTemplateStore struct {
	client            dynamodbiface.DynamoDBAPI
	templateTable     string
	installationTable string
}

// SaveTemplate persists a template
func (s *DynamoDBTemplateStore) SaveTemplate(template Template) error {
	if template.CreatedAt.IsZero() {
		template.CreatedAt = time.Now()
	}

	return putItem(s.client, s.templateTable, template)
}

// GetTemplate retrieves a template
func (s *DynamoDBTemplateStore) GetTemplate(templateID string) (Template, error) {
	var template Template
	found, err := getItem(s.client, s.templateTable, templateID, &template)
	if err != nil {
		return Template{}, err
	}
	if !found {
		return Template{}, ErrTemplateNotFound
	}

	return template, nil
}

// ListTemplates returns all templates
func (s *DynamoDBTemplateStore) ListTemplates() ([]Template, error) {
	templates := make([]Template, 0)
	if err := scanItems(s.client, s.templateTable, "", nil, nil, &templates); err != nil {
		return nil, err
	}

	return templates, nil
}

// IncrementInstallCount atomically bumps a template's install counter
func (s *DynamoDBTemplateStore) IncrementInstallCount(templateID string) error {
	_, err := s.client.UpdateItem(&dynamodb.UpdateItemInput{
		TableName: aws.String(s.templateTable),
		Key: map[string]*dynamodb.AttributeValue{
			"id": {S: aws.String(templateID)},
		},
		UpdateExpression:    aws.String("ADD install_count :one"),
		ConditionExpression: aws.String("attribute_exists(id)"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":one": {N: aws.String("1")},
		},
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == dynamodb.ErrCodeConditionalCheckFailedException {
			return ErrTemplateNotFound
		}
		return fmt.Errorf("failed to increment install count: %w", err)
	}

	return nil
}

// SaveInstallation persists a template installation
func (s *DynamoDBTemplateStore) SaveInstallation(installation TemplateInstallation) error {
	if installation.CreatedAt.IsZero() {
		installation.CreatedAt = time.Now()
	}

	return putItem(s.client, s.installationTable, installation)
}

// GetInstallation retrieves an installation scoped to a tenant
func (s *DynamoDBTemplateStore) GetInstallation(accountID, installationID string) (TemplateInstallation, error) {
	var installation TemplateInstallation
	found, err := getItem(s.client, s.installationTable, installationID, &installation)
	if err != nil {
		return TemplateInstallation{}, err
	}
	if !found || installation.AccountID != accountID {
		return TemplateInstallation{}, ErrInstallationNotFound
	}

	return installation, nil
}

// ListInstallations returns all installations for a tenant
func (s *DynamoDBTemplateStore) ListInstallations(accountID string) ([]TemplateInstallation, error) {
	installations := make([]TemplateInstallation, 0)
	err := scanItems(s.client, s.installationTable, "account_id = :account_id",
		map[string]*dynamodb.AttributeValue{":account_id": {S: aws.String(accountID)}},
		nil, &installations)
	if err != nil {
		return nil, err
	}

	return installations, nil
}

// DeleteInstallation removes an installation record
func (s *DynamoDBTemplateStore) DeleteInstallation(accountID, installationID string) error {
	if _, err := s.GetInstallation(accountID, installationID); err != nil {
		return err
	}

	return deleteItem(s.client, s.installationTable, installationID)
}

// DynamoDBAccountStore implements the AccountStore interface using DynamoDB
type DynamoDBAccountStore struct {
	client dynamodbiface.DynamoDBAPI
	table  string
}

// SaveAccount persists an account
func (s *DynamoDBAccountStore) SaveAccount(account auth.Account) error {
	return putItem(s.client, s.table, dynamoAccount{
		ID:           account.ID,
		Username:     account.Username,
		PasswordHash: account.PasswordHash,
		APIToken:     account.APIToken,
		CreatedAt:    account.CreatedAt,
		UpdatedAt:    account.UpdatedAt,
	})
}

// GetAccount retrieves an account
func (s *DynamoDBAccountStore) GetAccount(accountID string) (auth.Account, error) {
	var record dynamoAccount
	found, err := getItem(s.client, s.table, accountID, &record)
	if err != nil {
		return auth.Account{}, err
	}
	if !found {
		return auth.Account{}, ErrAccountNotFound
	}

	return record.toAccount(), nil
}

// GetAccountByUsername retrieves an account by username
func (s *DynamoDBAccountStore) GetAccountByUsername(username string) (auth.Account, error) {
	return s.scanOne("username = :value", username)
}

// GetAccountByToken retrieves an account by API token
func (s *DynamoDBAccountStore) GetAccountByToken(token string) (auth.Account, error) {
	return s.scanOne("api_token = :value", token)
}

// ListAccounts returns all accounts
func (s *DynamoDBAccountStore) ListAccounts() ([]auth.Account, error) {
	records := make([]dynamoAccount, 0)
	if err := scanItems(s.client, s.table, "", nil, nil, &records); err != nil {
		return nil, err
	}

	accounts := make([]auth.Account, 0, len(records))
	for _, record := range records {
		accounts = append(accounts, record.toAccount())
	}

	return accounts, nil
}

// DeleteAccount removes an account
func (s *DynamoDBAccountStore) DeleteAccount(accountID string) error {
	if _, err := s.GetAccount(accountID); err != nil {
		return err
	}

	return deleteItem(s.client, s.table, accountID)
}

func (s *DynamoDBAccountStore) scanOne(filter, value string) (auth.Account, error) {
	records := make([]dynamoAccount, 0)
	err := scanItems(s.client, s.table, filter,
		map[string]*dynamodb.AttributeValue{":value": {S: aws.String(value)}},
		nil, &records)
	if err != nil {
		return auth.Account{}, err
	}
	if len(records) == 0 {
		return auth.Account{}, ErrAccountNotFound
	}

	return records[0].toAccount(), nil
}

// dynamoAccount mirrors auth.Account with explicit attribute names; the
// auth struct hides sensitive fields from JSON, which would also hide them
// from dynamodbattribute
type dynamoAccount struct {
	ID           string    `dynamodbav:"id"`
	Username     string    `dynamodbav:"username"`
	PasswordHash string    `dynamodbav:"password_hash"`
	APIToken     string    `dynamodbav:"api_token"`
	CreatedAt    time.Time `dynamodbav:"created_at"`
	UpdatedAt    time.Time `dynamodbav:"updated_at"`
}

func (r dynamoAccount) toAccount() auth.Account {
	return auth.Account{
		ID:           r.ID,
		Username:     r.Username,
		PasswordHash: r.PasswordHash,
		APIToken:     r.APIToken,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}
