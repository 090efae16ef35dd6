package storage

import (
	"fmt"
	"strings"
)

// ProviderType identifies a storage backend
type ProviderType string

const (
	// MemoryProviderType is an in-memory storage provider
	MemoryProviderType ProviderType = "memory"

	// DynamoDBProviderType is a DynamoDB storage provider
	DynamoDBProviderType ProviderType = "dynamodb"

	// PostgreSQLProviderType is a PostgreSQL storage provider
	PostgreSQLProviderType ProviderType = "postgresql"
)

// ParseProviderType maps a configuration string onto a ProviderType,
// accepting the aliases deployments commonly use
func ParseProviderType(value string) (ProviderType, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "memory", "mem":
		return MemoryProviderType, nil
	case "dynamodb", "dynamo":
		return DynamoDBProviderType, nil
	case "postgresql", "postgres", "pg":
		return PostgreSQLProviderType, nil
	default:
		return "", fmt.Errorf("unknown provider type: %s", value)
	}
}

// ProviderConfig contains configuration for storage providers
type ProviderConfig struct {
	// Type selects the backend
	Type ProviderType

	// DynamoDB configuration, required when Type is dynamodb
	DynamoDB *DynamoDBProviderConfig

	// PostgreSQL configuration, required when Type is postgresql
	PostgreSQL *PostgreSQLProviderConfig
}

// NewProvider creates the storage provider the configuration selects
func NewProvider(config ProviderConfig) (StorageProvider, error) {
	switch config.Type {
	case MemoryProviderType:
		return NewMemoryProvider(), nil

	case DynamoDBProviderType:
		if config.DynamoDB == nil {
			return nil, fmt.Errorf("DynamoDB configuration is required for the dynamodb provider")
		}
		return NewDynamoDBProvider(*config.DynamoDB)

	case PostgreSQLProviderType:
		if config.PostgreSQL == nil {
			return nil, fmt.Errorf("PostgreSQL configuration is required for the postgresql provider")
		}
		return NewPostgreSQLProvider(*config.PostgreSQL)

	default:
		return nil, fmt.Errorf("unknown provider type: %s", config.Type)
	}
}
