package storage

import (
	"fmt"
)

// ProviderType represents the type of storage provider
type ProviderType string

const (
	// MemoryProviderType is an in-memory storage provider
	MemoryProviderType ProviderType = "memory"

	// RedisProviderType is a Redis storage provider
	RedisProviderType ProviderType = "redis"

	// DynamoDBProviderType is a DynamoDB storage provider
	DynamoDBProviderType ProviderType = "dynamodb"

	// PostgresProviderType is a PostgreSQL storage provider
	PostgresProviderType ProviderType = "postgres"
)

// ProviderConfig contains configuration for storage providers
type ProviderConfig struct {
	// Type is the type of storage provider to create
	Type ProviderType `json:"type"`

	// Memory contains configuration for the in-memory provider
	Memory *MemoryConfig `json:"memory,omitempty"`

	// Redis contains configuration for the Redis provider
	Redis *RedisConfig `json:"redis,omitempty"`

	// DynamoDB contains configuration for the DynamoDB provider
	DynamoDB *DynamoDBConfig `json:"dynamodb,omitempty"`

	// Postgres contains configuration for the PostgreSQL provider
	Postgres *PostgresConfig `json:"postgres,omitempty"`
}

// NewProvider creates a storage provider based on the configuration,
// running any backend initialization (table creation) before returning
func NewProvider(config ProviderConfig) (Provider, error) {
	switch config.Type {
	case MemoryProviderType:
		memConfig := MemoryConfig{}
		if config.Memory != nil {
			memConfig = *config.Memory
		}
		return NewMemoryProvider(memConfig), nil

	case RedisProviderType:
		if config.Redis == nil {
			return nil, fmt.Errorf("redis configuration is required for redis provider")
		}
		return NewRedisProvider(*config.Redis)

	case DynamoDBProviderType:
		if config.DynamoDB == nil {
			return nil, fmt.Errorf("dynamodb configuration is required for dynamodb provider")
		}
		provider, err := NewDynamoDBProvider(*config.DynamoDB)
		if err != nil {
			return nil, err
		}
		if err := provider.Initialize(); err != nil {
			return nil, err
		}
		return provider, nil

	case PostgresProviderType:
		if config.Postgres == nil {
			return nil, fmt.Errorf("postgres configuration is required for postgres provider")
		}
		provider, err := NewPostgresProvider(*config.Postgres)
		if err != nil {
			return nil, err
		}
		if err := provider.Initialize(); err != nil {
			provider.Close()
			return nil, err
		}
		return provider, nil

	default:
		return nil, fmt.Errorf("unknown provider type: %s", config.Type)
	}
}
