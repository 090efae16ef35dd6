package storage

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
)

// MockDynamoDBAPI implements the subset of dynamodbiface.DynamoDBAPI the
// DynamoDB provider uses, backed by in-memory tables. Filter, update, and
// condition expressions are evaluated for the shapes the provider issues:
// equality conjunctions in filters, SET/ADD updates, and attribute_exists /
// NOT-IN conditions.
type MockDynamoDBAPI struct {
	dynamodbiface.DynamoDBAPI
	mu     sync.RWMutex
	tables map[string]*MockTable
}

// MockTable represents an id-keyed DynamoDB table in memory
type MockTable struct {
	Name  string
	Items map[string]map[string]*dynamodb.AttributeValue
}

// NewMockDynamoDBAPI creates a new mock DynamoDB client
func NewMockDynamoDBAPI() *MockDynamoDBAPI {
	return &MockDynamoDBAPI{
		tables: make(map[string]*MockTable),
	}
}

// CreateTable creates a mock table
func (m *MockDynamoDBAPI) CreateTable(input *dynamodb.CreateTableInput) (*dynamodb.CreateTableOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tableName := aws.StringValue(input.TableName)
	if _, exists := m.tables[tableName]; exists {
		return nil, awserr.New(dynamodb.ErrCodeResourceInUseException, fmt.Sprintf("table already exists: %s", tableName), nil)
	}

	m.tables[tableName] = &MockTable{
		Name:  tableName,
		Items: make(map[string]map[string]*dynamodb.AttributeValue),
	}

	return &dynamodb.CreateTableOutput{
		TableDescription: &dynamodb.TableDescription{
			TableName:   input.TableName,
			TableStatus: aws.String("ACTIVE"),
		},
	}, nil
}

// DescribeTable describes a mock table
func (m *MockDynamoDBAPI) DescribeTable(input *dynamodb.DescribeTableInput) (*dynamodb.DescribeTableOutput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tableName := aws.StringValue(input.TableName)
	table, exists := m.tables[tableName]
	if !exists {
		return nil, awserr.New(dynamodb.ErrCodeResourceNotFoundException, "Requested resource not found", nil)
	}

	return &dynamodb.DescribeTableOutput{
		Table: &dynamodb.TableDescription{
			TableName:   aws.String(table.Name),
			TableStatus: aws.String("ACTIVE"),
		},
	}, nil
}

// WaitUntilTableExists waits for table to exist (mock tables are immediately available)
func (m *MockDynamoDBAPI) WaitUntilTableExists(input *dynamodb.DescribeTableInput) error {
	return nil
}

// PutItem puts an item in a mock table
func (m *MockDynamoDBAPI) PutItem(input *dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	table, err := m.table(aws.StringValue(input.TableName))
	if err != nil {
		return nil, err
	}

	id := aws.StringValue(input.Item["id"].S)
	table.Items[id] = input.Item

	return &dynamodb.PutItemOutput{}, nil
}

// GetItem gets an item from a mock table
func (m *MockDynamoDBAPI) GetItem(input *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	table, err := m.table(aws.StringValue(input.TableName))
	if err != nil {
		return nil, err
	}

	item, exists := table.Items[aws.StringValue(input.Key["id"].S)]
	if !exists {
		return &dynamodb.GetItemOutput{}, nil
	}

	return &dynamodb.GetItemOutput{Item: item}, nil
}

// DeleteItem deletes an item from a mock table
func (m *MockDynamoDBAPI) DeleteItem(input *dynamodb.DeleteItemInput) (*dynamodb.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	table, err := m.table(aws.StringValue(input.TableName))
	if err != nil {
		return nil, err
	}

	delete(table.Items, aws.StringValue(input.Key["id"].S))

	return &dynamodb.DeleteItemOutput{}, nil
}

// ScanPages scans a mock table, applying the filter expression, and delivers
// everything in a single page
func (m *MockDynamoDBAPI) ScanPages(input *dynamodb.ScanInput, fn func(*dynamodb.ScanOutput, bool) bool) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	table, err := m.table(aws.StringValue(input.TableName))
	if err != nil {
		return err
	}

	items := make([]map[string]*dynamodb.AttributeValue, 0)
	for _, item := range table.Items {
		if matchesFilter(item, aws.StringValue(input.FilterExpression), input.ExpressionAttributeNames, input.ExpressionAttributeValues) {
			items = append(items, item)
		}
	}

	fn(&dynamodb.ScanOutput{
		Items: items,
		Count: aws.Int64(int64(len(items))),
	}, true)

	return nil
}

// UpdateItem applies an update expression to a mock item after evaluating
// its condition expression
func (m *MockDynamoDBAPI) UpdateItem(input *dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	table, err := m.table(aws.StringValue(input.TableName))
	if err != nil {
		return nil, err
	}

	id := aws.StringValue(input.Key["id"].S)
	item := table.Items[id]

	if cond := aws.StringValue(input.ConditionExpression); cond != "" {
		if !evaluateCondition(item, cond, input.ExpressionAttributeNames, input.ExpressionAttributeValues) {
			return nil, awserr.New(dynamodb.ErrCodeConditionalCheckFailedException, "The conditional request failed", nil)
		}
	}
	if item == nil {
		item = map[string]*dynamodb.AttributeValue{"id": {S: aws.String(id)}}
		table.Items[id] = item
	}

	if err := applyUpdate(item, aws.StringValue(input.UpdateExpression), input.ExpressionAttributeNames, input.ExpressionAttributeValues); err != nil {
		return nil, err
	}

	return &dynamodb.UpdateItemOutput{}, nil
}

func (m *MockDynamoDBAPI) table(name string) (*MockTable, error) {
	table, exists := m.tables[name]
	if !exists {
		return nil, awserr.New(dynamodb.ErrCodeResourceNotFoundException, fmt.Sprintf("table not found: %s", name), nil)
	}
	return table, nil
}

// matchesFilter evaluates a conjunction of equality comparisons, the only
// filter shape the provider emits
func matchesFilter(item map[string]*dynamodb.AttributeValue, filter string, names map[string]*string, values map[string]*dynamodb.AttributeValue) bool {
	if filter == "" {
		return true
	}

	for _, clause := range strings.Split(filter, " AND ") {
		parts := strings.SplitN(clause, "=", 2)
		if len(parts) != 2 {
			return false
		}
		attr := item[resolveName(strings.TrimSpace(parts[0]), names)]
		want := values[strings.TrimSpace(parts[1])]
		if attr == nil || want == nil || aws.StringValue(attr.S) != aws.StringValue(want.S) {
			return false
		}
	}

	return true
}

// evaluateCondition handles attribute_exists(...) and NOT (... IN (...))
// clauses joined by AND
func evaluateCondition(item map[string]*dynamodb.AttributeValue, condition string, names map[string]*string, values map[string]*dynamodb.AttributeValue) bool {
	for _, clause := range strings.Split(condition, " AND ") {
		clause = strings.TrimSpace(clause)

		switch {
		case strings.HasPrefix(clause, "attribute_exists(") && strings.HasSuffix(clause, ")"):
			name := resolveName(clause[len("attribute_exists("):len(clause)-1], names)
			if item == nil || item[name] == nil {
				return false
			}

		case strings.HasPrefix(clause, "NOT (") && strings.HasSuffix(clause, ")"):
			inner := clause[len("NOT (") : len(clause)-1]
			parts := strings.SplitN(inner, " IN ", 2)
			if len(parts) != 2 {
				return false
			}
			current := ""
			if item != nil {
				if attr := item[resolveName(strings.TrimSpace(parts[0]), names)]; attr != nil {
					current = aws.StringValue(attr.S)
				}
			}
			list := strings.Trim(strings.TrimSpace(parts[1]), "()")
			for _, ref := range strings.Split(list, ",") {
				if want := values[strings.TrimSpace(ref)]; want != nil && aws.StringValue(want.S) == current {
					return false
				}
			}

		default:
			return false
		}
	}

	return true
}

// applyUpdate executes an update expression made of an optional SET clause
// followed by an optional ADD clause
func applyUpdate(item map[string]*dynamodb.AttributeValue, expression string, names map[string]*string, values map[string]*dynamodb.AttributeValue) error {
	setPart, addPart := "", ""
	if idx := strings.Index(expression, "ADD "); idx >= 0 {
		addPart = strings.TrimSpace(expression[idx+len("ADD "):])
		expression = strings.TrimSpace(expression[:idx])
	}
	if strings.HasPrefix(expression, "SET ") {
		setPart = strings.TrimSpace(expression[len("SET "):])
	}

	if setPart != "" {
		for _, assignment := range strings.Split(setPart, ",") {
			parts := strings.SplitN(assignment, "=", 2)
			if len(parts) != 2 {
				return fmt.Errorf("unsupported SET assignment: %s", assignment)
			}
			name := resolveName(strings.TrimSpace(parts[0]), names)
			value := values[strings.TrimSpace(parts[1])]
			if value == nil {
				return fmt.Errorf("missing expression value in: %s", assignment)
			}
			item[name] = value
		}
	}

	if addPart != "" {
		fields := strings.Fields(addPart)
		if len(fields) != 2 {
			return fmt.Errorf("unsupported ADD clause: %s", addPart)
		}
		name := resolveName(fields[0], names)
		delta := values[fields[1]]
		if delta == nil || delta.N == nil {
			return fmt.Errorf("missing numeric value in ADD clause: %s", addPart)
		}
		current := int64(0)
		if attr := item[name]; attr != nil && attr.N != nil {
			current, _ = strconv.ParseInt(aws.StringValue(attr.N), 10, 64)
		}
		add, err := strconv.ParseInt(aws.StringValue(delta.N), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid numeric value in ADD clause: %w", err)
		}
		item[name] = &dynamodb.AttributeValue{N: aws.String(strconv.FormatInt(current+add, 10))}
	}

	return nil
}

func resolveName(name string, names map[string]*string) string {
	if strings.HasPrefix(name, "#") {
		if resolved, ok := names[name]; ok {
			return aws.StringValue(resolved)
		}
	}
	return name
}
