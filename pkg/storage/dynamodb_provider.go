package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
)

// DynamoDB attribute names
const (
	dynamoKeyAttr   = "kv_key"
	dynamoValueAttr = "kv_value"
)

// defaultDynamoTable is used when no table name is configured
const defaultDynamoTable = "agentrunner_kv"

// DynamoDBConfig contains settings for the DynamoDB provider
type DynamoDBConfig struct {
	// Region is the AWS region
	Region string `json:"region"`

	// TableName is the KV table; defaults to agentrunner_kv
	TableName string `json:"table_name,omitempty"`

	// AccessKey is the AWS access key ID, if not using the default chain
	AccessKey string `json:"access_key,omitempty"`

	// SecretKey is the AWS secret access key
	SecretKey string `json:"secret_key,omitempty"`

	// Endpoint overrides the DynamoDB endpoint (for local testing)
	Endpoint string `json:"endpoint,omitempty"`
}

// DynamoDBProvider implements the Provider interface backed by DynamoDB
type DynamoDBProvider struct {
	client    dynamodbiface.DynamoDBAPI
	tableName string
}

// NewDynamoDBProvider creates a DynamoDB provider from config
func NewDynamoDBProvider(config DynamoDBConfig) (*DynamoDBProvider, error) {
	// Create AWS session
	awsConfig := &aws.Config{
		Region: aws.String(config.Region),
	}

	// Set credentials if provided
	if config.AccessKey != "" && config.SecretKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(
			config.AccessKey,
			config.SecretKey,
			"",
		)
	}

	// Set endpoint for local DynamoDB if provided
	if config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(config.Endpoint)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return NewDynamoDBProviderWithClient(dynamodb.New(sess), config), nil
}

// NewDynamoDBProviderWithClient creates a provider around an existing
// client. Tests inject a mock through this constructor.
func NewDynamoDBProviderWithClient(client dynamodbiface.DynamoDBAPI, config DynamoDBConfig) *DynamoDBProvider {
	tableName := config.TableName
	if tableName == "" {
		tableName = defaultDynamoTable
	}
	return &DynamoDBProvider{client: client, tableName: tableName}
}

// Initialize creates the KV table if it doesn't exist
func (p *DynamoDBProvider) Initialize() error {
	_, err := p.client.DescribeTable(&dynamodb.DescribeTableInput{
		TableName: aws.String(p.tableName),
	})
	if err == nil {
		return nil
	}

	// Only a missing table is recoverable here
	awsErr, ok := err.(awserr.Error)
	if !ok || awsErr.Code() != dynamodb.ErrCodeResourceNotFoundException {
		return fmt.Errorf("failed to describe table %s: %w", p.tableName, err)
	}

	_, err = p.client.CreateTable(&dynamodb.CreateTableInput{
		TableName: aws.String(p.tableName),
		AttributeDefinitions: []*dynamodb.AttributeDefinition{
			{
				AttributeName: aws.String(dynamoKeyAttr),
				AttributeType: aws.String("S"),
			},
		},
		KeySchema: []*dynamodb.KeySchemaElement{
			{
				AttributeName: aws.String(dynamoKeyAttr),
				KeyType:       aws.String("HASH"),
			},
		},
		BillingMode: aws.String(dynamodb.BillingModePayPerRequest),
	})
	if err != nil {
		return fmt.Errorf("failed to create table %s: %w", p.tableName, err)
	}

	// Wait for the table to become active
	if err := p.client.WaitUntilTableExists(&dynamodb.DescribeTableInput{
		TableName: aws.String(p.tableName),
	}); err != nil {
		return fmt.Errorf("failed to wait for table %s: %w", p.tableName, err)
	}

	return nil
}

// Get returns the value stored under key
func (p *DynamoDBProvider) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := p.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(p.tableName),
		Key: map[string]*dynamodb.AttributeValue{
			dynamoKeyAttr: {S: aws.String(key)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	if result.Item == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	attr, ok := result.Item[dynamoValueAttr]
	if !ok || attr.S == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return []byte(*attr.S), nil
}

// Put stores a value under key
func (p *DynamoDBProvider) Put(ctx context.Context, key string, value []byte) error {
	_, err := p.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(p.tableName),
		Item: map[string]*dynamodb.AttributeValue{
			dynamoKeyAttr:   {S: aws.String(key)},
			dynamoValueAttr: {S: aws.String(string(value))},
		},
	})
	if err != nil {
		if isDynamoQuotaError(err) {
			return fmt.Errorf("dynamodb refused write for key %s: %w", key, ErrQuotaExceeded)
		}
		return fmt.Errorf("failed to put key %s: %w", key, err)
	}
	return nil
}

// Delete removes a key
func (p *DynamoDBProvider) Delete(ctx context.Context, key string) error {
	_, err := p.client.DeleteItemWithContext(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(p.tableName),
		Key: map[string]*dynamodb.AttributeValue{
			dynamoKeyAttr: {S: aws.String(key)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// Keys returns all keys beginning with prefix, sorted
func (p *DynamoDBProvider) Keys(ctx context.Context, prefix string) ([]string, error) {
	keys := make([]string, 0)

	input := &dynamodb.ScanInput{
		TableName:            aws.String(p.tableName),
		ProjectionExpression: aws.String(dynamoKeyAttr),
	}
	if prefix != "" {
		input.FilterExpression = aws.String("begins_with(" + dynamoKeyAttr + ", :prefix)")
		input.ExpressionAttributeValues = map[string]*dynamodb.AttributeValue{
			":prefix": {S: aws.String(prefix)},
		}
	}

	// Scan pages until the whole keyspace has been seen
	for {
		result, err := p.client.ScanWithContext(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to scan keys: %w", err)
		}
		for _, item := range result.Items {
			if attr, ok := item[dynamoKeyAttr]; ok && attr.S != nil {
				keys = append(keys, *attr.S)
			}
		}
		if result.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}

	sort.Strings(keys)
	return keys, nil
}

// Close releases the provider's resources
func (p *DynamoDBProvider) Close() error {
	return nil
}

// isDynamoQuotaError reports whether DynamoDB refused a write for
// capacity reasons: throughput exhaustion, request limits, or the
// item size limit (surfaced as a ValidationException)
func isDynamoQuotaError(err error) bool {
	awsErr, ok := err.(awserr.Error)
	if !ok {
		return false
	}
	switch awsErr.Code() {
	case dynamodb.ErrCodeProvisionedThroughputExceededException,
		dynamodb.ErrCodeRequestLimitExceeded:
		return true
	case "ValidationException":
		return strings.Contains(strings.ToLower(awsErr.Message()), "size")
	default:
		return false
	}
}
