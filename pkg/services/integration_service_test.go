package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/logging"
	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/n8n"
	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/storage"
)

func newTestIntegrationService(t *testing.T) (*IntegrationService, storage.IntegrationStore) {
	t.Helper()

	key, err := GenerateEncryptionKey()
	require.NoError(t, err)

	cipher, err := NewAESCredentialCipher(key)
	require.NoError(t, err)

	provider := storage.NewMemoryProvider()
	require.NoError(t, provider.Initialize())
	store := provider.GetIntegrationStore()

	return NewIntegrationService(store, cipher, logging.NewNopLogger()), store
}

func newFakeInstance(t *testing.T, apiKey string) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(n8n.APIKeyHeader) != apiKey {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"data": []interface{}{}})
	}))
}

func TestCreateIntegrationVerifiesAndEncrypts(t *testing.T) {
	service, store := newTestIntegrationService(t)

	instance := newFakeInstance(t, "valid-key")
	defer instance.Close()

	integration, err := service.CreateIntegration(context.Background(), "acct-1", "Production", instance.URL, "valid-key")
	require.NoError(t, err)
	assert.NotEmpty(t, integration.ID)
	assert.True(t, integration.Active)
	require.NotNil(t, integration.LastVerifiedAt)

	// The stored credential must not be the plaintext key
	stored, err := store.GetIntegration("acct-1", integration.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "valid-key", stored.APIKey)
}

func TestCreateIntegrationRejectsBadCredential(t *testing.T) {
	service, _ := newTestIntegrationService(t)

	instance := newFakeInstance(t, "valid-key")
	defer instance.Close()

	_, err := service.CreateIntegration(context.Background(), "acct-1", "Production", instance.URL, "wrong-key")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "verification failed")
}

func TestClientForUsesStoredCredential(t *testing.T) {
	service, store := newTestIntegrationService(t)

	instance := newFakeInstance(t, "valid-key")
	defer instance.Close()

	integration, err := service.CreateIntegration(context.Background(), "acct-1", "Production", instance.URL, "valid-key")
	require.NoError(t, err)

	client, err := service.ClientFor("acct-1", integration.ID)
	require.NoError(t, err)
	require.NoError(t, client.Verify(context.Background()))

	// Deactivating the integration blocks client construction
	stored, err := store.GetIntegration("acct-1", integration.ID)
	require.NoError(t, err)
	stored.Active = false
	require.NoError(t, store.SaveIntegration(stored))

	_, err = service.ClientFor("acct-1", integration.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not active")
}

func TestClientForMissesCacheOnRotatedCredential(t *testing.T) {
	service, store := newTestIntegrationService(t)

	instance := newFakeInstance(t, "rotated-key")
	defer instance.Close()

	// Seed an integration whose stored credential is stale
	oldCiphertext, err := service.cipher.Encrypt("old-key")
	require.NoError(t, err)
	require.NoError(t, store.SaveIntegration(storage.Integration{
		ID:          "int-1",
		AccountID:   "acct-1",
		Name:        "Production",
		InstanceURL: instance.URL,
		APIKey:      oldCiphertext,
		Active:      true,
	}))

	client, err := service.ClientFor("acct-1", "int-1")
	require.NoError(t, err)
	assert.Error(t, client.Verify(context.Background()))

	// Rotate the stored credential; the next client must use the new key
	newCiphertext, err := service.cipher.Encrypt("rotated-key")
	require.NoError(t, err)
	stored, err := store.GetIntegration("acct-1", "int-1")
	require.NoError(t, err)
	stored.APIKey = newCiphertext
	require.NoError(t, store.SaveIntegration(stored))

	client, err = service.ClientFor("acct-1", "int-1")
	require.NoError(t, err)
	assert.NoError(t, client.Verify(context.Background()))
}

func TestVerifyIntegrationStampsTime(t *testing.T) {
	service, _ := newTestIntegrationService(t)

	instance := newFakeInstance(t, "valid-key")
	defer instance.Close()

	integration, err := service.CreateIntegration(context.Background(), "acct-1", "Production", instance.URL, "valid-key")
	require.NoError(t, err)

	first := *integration.LastVerifiedAt

	verified, err := service.VerifyIntegration(context.Background(), "acct-1", integration.ID)
	require.NoError(t, err)
	require.NotNil(t, verified.LastVerifiedAt)
	assert.False(t, verified.LastVerifiedAt.Before(first))
}
