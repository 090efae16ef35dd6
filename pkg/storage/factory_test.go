package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProviderType(t *testing.T) {
	tests := []struct {
		value string
		want  ProviderType
	}{
		{value: "memory", want: MemoryProviderType},
		{value: "mem", want: MemoryProviderType},
		{value: "DynamoDB", want: DynamoDBProviderType},
		{value: "dynamo", want: DynamoDBProviderType},
		{value: "postgresql", want: PostgreSQLProviderType},
		{value: "postgres", want: PostgreSQLProviderType},
		{value: " pg ", want: PostgreSQLProviderType},
	}

	for _, tt := range tests {
		got, err := ParseProviderType(tt.value)
		require.NoError(t, err, tt.value)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseProviderType("cassandra")
	assert.Error(t, err)

	_, err = ParseProviderType("")
	assert.Error(t, err)
}

func TestNewProviderMemory(t *testing.T) {
	provider, err := NewProvider(ProviderConfig{Type: MemoryProviderType})
	require.NoError(t, err)
	require.NotNil(t, provider)

	_, ok := provider.(*MemoryProvider)
	assert.True(t, ok)
}

func TestNewProviderMissingConfig(t *testing.T) {
	_, err := NewProvider(ProviderConfig{Type: DynamoDBProviderType})
	assert.Error(t, err)

	_, err = NewProvider(ProviderConfig{Type: PostgreSQLProviderType})
	assert.Error(t, err)
}

func TestNewProviderUnknownType(t *testing.T) {
	_, err := NewProvider(ProviderConfig{Type: "cassandra"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider type")
}
