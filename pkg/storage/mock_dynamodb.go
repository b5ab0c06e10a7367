package storage

import (
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
)

// MockDynamoDBAPI implements the dynamodbiface.DynamoDBAPI interface for
// testing. It keeps tables in memory and can be told to refuse writes so
// quota classification is exercisable without AWS.
type MockDynamoDBAPI struct {
	dynamodbiface.DynamoDBAPI
	mu     sync.RWMutex
	tables map[string]*MockTable

	// PutError is returned by every PutItem call when set
	PutError error
}

// MockTable represents a DynamoDB table in memory
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
		return nil, awserr.New(dynamodb.ErrCodeResourceInUseException, "table already exists: "+tableName, nil)
	}

	m.tables[tableName] = &MockTable{
		Name:  tableName,
		Items: make(map[string]map[string]*dynamodb.AttributeValue),
	}

	return &dynamodb.CreateTableOutput{}, nil
}

// DescribeTable returns table metadata, or ResourceNotFoundException
func (m *MockDynamoDBAPI) DescribeTable(input *dynamodb.DescribeTableInput) (*dynamodb.DescribeTableOutput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tableName := aws.StringValue(input.TableName)
	if _, exists := m.tables[tableName]; !exists {
		return nil, awserr.New(dynamodb.ErrCodeResourceNotFoundException, "table not found: "+tableName, nil)
	}

	return &dynamodb.DescribeTableOutput{
		Table: &dynamodb.TableDescription{
			TableName:   aws.String(tableName),
			TableStatus: aws.String(dynamodb.TableStatusActive),
		},
	}, nil
}

// WaitUntilTableExists returns immediately; mock tables are always active
func (m *MockDynamoDBAPI) WaitUntilTableExists(input *dynamodb.DescribeTableInput) error {
	_, err := m.DescribeTable(input)
	return err
}

// GetItemWithContext returns an item by key
func (m *MockDynamoDBAPI) GetItemWithContext(ctx aws.Context, input *dynamodb.GetItemInput, opts ...request.Option) (*dynamodb.GetItemOutput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	table, err := m.table(aws.StringValue(input.TableName))
	if err != nil {
		return nil, err
	}

	item, exists := table.Items[itemKey(input.Key)]
	if !exists {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: item}, nil
}

// PutItemWithContext stores an item
func (m *MockDynamoDBAPI) PutItemWithContext(ctx aws.Context, input *dynamodb.PutItemInput, opts ...request.Option) (*dynamodb.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.PutError != nil {
		return nil, m.PutError
	}

	table, err := m.table(aws.StringValue(input.TableName))
	if err != nil {
		return nil, err
	}

	key := itemKey(map[string]*dynamodb.AttributeValue{
		dynamoKeyAttr: input.Item[dynamoKeyAttr],
	})
	table.Items[key] = input.Item

	return &dynamodb.PutItemOutput{}, nil
}

// DeleteItemWithContext removes an item by key
func (m *MockDynamoDBAPI) DeleteItemWithContext(ctx aws.Context, input *dynamodb.DeleteItemInput, opts ...request.Option) (*dynamodb.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	table, err := m.table(aws.StringValue(input.TableName))
	if err != nil {
		return nil, err
	}

	delete(table.Items, itemKey(input.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

// ScanWithContext returns every item, honoring the begins_with filter the
// provider uses for prefix listings
func (m *MockDynamoDBAPI) ScanWithContext(ctx aws.Context, input *dynamodb.ScanInput, opts ...request.Option) (*dynamodb.ScanOutput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	table, err := m.table(aws.StringValue(input.TableName))
	if err != nil {
		return nil, err
	}

	prefix := ""
	if input.ExpressionAttributeValues != nil {
		if attr, ok := input.ExpressionAttributeValues[":prefix"]; ok && attr.S != nil {
			prefix = *attr.S
		}
	}

	items := make([]map[string]*dynamodb.AttributeValue, 0, len(table.Items))
	for key, item := range table.Items {
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			continue
		}
		items = append(items, item)
	}

	return &dynamodb.ScanOutput{
		Items: items,
		Count: aws.Int64(int64(len(items))),
	}, nil
}

// table looks up a mock table by name
func (m *MockDynamoDBAPI) table(name string) (*MockTable, error) {
	table, exists := m.tables[name]
	if !exists {
		return nil, awserr.New(dynamodb.ErrCodeResourceNotFoundException, "table not found: "+name, nil)
	}
	return table, nil
}

// itemKey renders a key attribute map as a single map key
func itemKey(key map[string]*dynamodb.AttributeValue) string {
	attr, ok := key[dynamoKeyAttr]
	if !ok || attr.S == nil {
		return ""
	}
	return *attr.S
}
