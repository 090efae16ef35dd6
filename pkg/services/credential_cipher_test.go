package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAESCredentialCipherRoundTrip(t *testing.T) {
	key, err := GenerateEncryptionKey()
	require.NoError(t, err)

	cipher, err := NewAESCredentialCipher(key)
	require.NoError(t, err)

	ciphertext, err := cipher.Encrypt("n8n_api_key_12345")
	require.NoError(t, err)
	assert.NotEqual(t, "n8n_api_key_12345", ciphertext)

	plaintext, err := cipher.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "n8n_api_key_12345", plaintext)
}

func TestAESCredentialCipherWrongKey(t *testing.T) {
	keyA, err := GenerateEncryptionKey()
	require.NoError(t, err)
	keyB, err := GenerateEncryptionKey()
	require.NoError(t, err)

	cipherA, err := NewAESCredentialCipher(keyA)
	require.NoError(t, err)
	cipherB, err := NewAESCredentialCipher(keyB)
	require.NoError(t, err)

	ciphertext, err := cipherA.Encrypt("secret")
	require.NoError(t, err)

	_, err = cipherB.Decrypt(ciphertext)
	assert.Error(t, err)
}

func TestAESCredentialCipherInvalidInput(t *testing.T) {
	key, err := GenerateEncryptionKey()
	require.NoError(t, err)

	cipher, err := NewAESCredentialCipher(key)
	require.NoError(t, err)

	_, err = cipher.Decrypt("not-hex")
	assert.Error(t, err)

	_, err = cipher.Decrypt("abcd")
	assert.Error(t, err)

	_, err = NewAESCredentialCipher([]byte("short"))
	assert.Error(t, err)
}

func TestEncryptionKeyHexRoundTrip(t *testing.T) {
	key, err := GenerateEncryptionKey()
	require.NoError(t, err)

	hexKey := EncryptionKeyToHex(key)
	decoded, err := EncryptionKeyFromHex(hexKey)
	require.NoError(t, err)
	assert.Equal(t, key, decoded)

	_, err = EncryptionKeyFromHex("abcd")
	assert.Error(t, err)
}
