package services

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/auth"
	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/logging"
	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/n8n"
	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/storage"
)

const (
	clientCacheTTL     = 5 * time.Minute
	clientCacheCleanup = 10 * time.Minute
)

// IntegrationService manages connected n8n instances and hands out API
// clients for them
type IntegrationService struct {
	store  storage.IntegrationStore
	cipher auth.CredentialCipher
	logger logging.Logger

	// clients caches constructed API clients. Entries are keyed by
	// integration ID plus the decrypted credential, so a rotated credential
	// naturally misses the cache and a fresh client is built.
	clients *cache.Cache
}

// NewIntegrationService creates a new integration service
func NewIntegrationService(store storage.IntegrationStore, cipher auth.CredentialCipher, logger logging.Logger) *IntegrationService {
	return &IntegrationService{
		store:   store,
		cipher:  cipher,
		logger:  logger,
		clients: cache.New(clientCacheTTL, clientCacheCleanup),
	}
}

// CreateIntegration registers an n8n instance for a tenant. The connection
// is verified before the integration is persisted; the API key is stored
// encrypted.
func (s *IntegrationService) CreateIntegration(ctx context.Context, accountID, name, instanceURL, apiKey string) (storage.Integration, error) {
	if accountID == "" {
		return storage.Integration{}, fmt.Errorf("account ID is required")
	}
	if name == "" {
		return storage.Integration{}, fmt.Errorf("integration name is required")
	}
	if _, err := url.ParseRequestURI(instanceURL); err != nil {
		return storage.Integration{}, fmt.Errorf("invalid instance URL: %w", err)
	}
	if apiKey == "" {
		return storage.Integration{}, fmt.Errorf("API key is required")
	}

	client := n8n.NewClient(instanceURL, apiKey)
	if err := client.Verify(ctx); err != nil {
		return storage.Integration{}, fmt.Errorf("connection verification failed: %w", err)
	}

	encryptedKey, err := s.cipher.Encrypt(apiKey)
	if err != nil {
		return storage.Integration{}, fmt.Errorf("failed to encrypt API key: %w", err)
	}

	now := time.Now()
	integration := storage.Integration{
		ID:             uuid.New().String(),
		AccountID:      accountID,
		Name:           name,
		InstanceURL:    instanceURL,
		APIKey:         encryptedKey,
		Active:         true,
		LastVerifiedAt: &now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.store.SaveIntegration(integration); err != nil {
		return storage.Integration{}, fmt.Errorf("failed to save integration: %w", err)
	}

	s.logger.LogSystemEvent("integration_created", map[string]interface{}{
		"integration_id": integration.ID,
		"account_id":     accountID,
	})

	return integration, nil
}

// GetIntegration retrieves an integration scoped to a tenant
func (s *IntegrationService) GetIntegration(accountID, integrationID string) (storage.Integration, error) {
	return s.store.GetIntegration(accountID, integrationID)
}

// ListIntegrations returns all integrations for a tenant
func (s *IntegrationService) ListIntegrations(accountID string) ([]storage.Integration, error) {
	return s.store.ListIntegrations(accountID)
}

// VerifyIntegration re-checks the connection to an instance and stamps the
// verification time on success
func (s *IntegrationService) VerifyIntegration(ctx context.Context, accountID, integrationID string) (storage.Integration, error) {
	integration, err := s.store.GetIntegration(accountID, integrationID)
	if err != nil {
		return storage.Integration{}, err
	}

	client, err := s.clientForIntegration(integration)
	if err != nil {
		return storage.Integration{}, err
	}

	if err := client.Verify(ctx); err != nil {
		return storage.Integration{}, fmt.Errorf("connection verification failed: %w", err)
	}

	now := time.Now()
	integration.LastVerifiedAt = &now
	if err := s.store.SaveIntegration(integration); err != nil {
		return storage.Integration{}, fmt.Errorf("failed to save integration: %w", err)
	}

	return integration, nil
}

// DeleteIntegration removes an integration
func (s *IntegrationService) DeleteIntegration(accountID, integrationID string) error {
	if err := s.store.DeleteIntegration(accountID, integrationID); err != nil {
		return err
	}

	s.logger.LogSystemEvent("integration_deleted", map[string]interface{}{
		"integration_id": integrationID,
		"account_id":     accountID,
	})

	return nil
}

// ClientFor returns an API client for an integration. The stored credential
// is re-read on every call; only client construction is cached.
func (s *IntegrationService) ClientFor(accountID, integrationID string) (*n8n.Client, error) {
	integration, err := s.store.GetIntegration(accountID, integrationID)
	if err != nil {
		return nil, err
	}

	if !integration.Active {
		return nil, fmt.Errorf("integration %s is not active", integrationID)
	}

	return s.clientForIntegration(integration)
}

func (s *IntegrationService) clientForIntegration(integration storage.Integration) (*n8n.Client, error) {
	apiKey, err := s.cipher.Decrypt(integration.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt API key: %w", err)
	}

	cacheKey := integration.ID + ":" + apiKey
	if cached, found := s.clients.Get(cacheKey); found {
		return cached.(*n8n.Client), nil
	}

	client := n8n.NewClient(integration.InstanceURL, apiKey)
	s.clients.Set(cacheKey, client, cache.DefaultExpiration)

	return client, nil
}

// MarkSynced stamps the last-synced time on an integration
func (s *IntegrationService) MarkSynced(accountID, integrationID string, at time.Time) error {
	integration, err := s.store.GetIntegration(accountID, integrationID)
	if err != nil {
		return err
	}

	integration.LastSyncedAt = &at
	if err := s.store.SaveIntegration(integration); err != nil {
		return fmt.Errorf("failed to save integration: %w", err)
	}

	return nil
}
