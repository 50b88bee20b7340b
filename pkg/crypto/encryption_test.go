package crypto

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(fill byte) []byte {
	key := make([]byte, KeySize)
	for i := range key {
		key[i] = fill + byte(i)
	}
	return key
}

func TestSealOpen(t *testing.T) {
	enc, err := NewEncryptor(testKey(0), 1)
	require.NoError(t, err)

	tests := []struct {
		name      string
		plaintext string
	}{
		{"empty", ""},
		{"hex key", "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"},
		{"mnemonic", `{"mnemonic":"test test test test test test test test test test test junk"}`},
		{"unicode", "clé privée"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sealed, err := enc.Seal(tt.plaintext, "0xabc")
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(sealed, "ENC[v1]:"))

			opened, err := enc.Open(sealed, "0xabc")
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, opened)
		})
	}
}

func TestOpenRejectsOtherAssociatedData(t *testing.T) {
	enc, err := NewEncryptor(testKey(0), 1)
	require.NoError(t, err)

	sealed, err := enc.Seal("secret", "0xwallet-a")
	require.NoError(t, err)

	_, err = enc.Open(sealed, "0xwallet-b")
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestEncryptDifferentCiphertexts(t *testing.T) {
	enc, err := NewEncryptor(testKey(0), 1)
	require.NoError(t, err)

	c1, _ := enc.Seal("same-key", "wallet")
	c2, _ := enc.Seal("same-key", "wallet")
	assert.NotEqual(t, c1, c2)
}

func TestInvalidKey(t *testing.T) {
	_, err := NewEncryptor([]byte("short"), 1)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestDecryptInvalidCiphertext(t *testing.T) {
	enc, _ := NewEncryptor(testKey(0), 1)

	for _, invalid := range []string{"", "not-encrypted", "ENC[v1]:", "ENC[v1]:!!!invalid"} {
		_, err := enc.Open(invalid, "")
		assert.Error(t, err, invalid)
	}
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		ciphertext string
		expected   int
	}{
		{"ENC[v1]:data", 1},
		{"ENC[v2]:data", 2},
		{"ENC[v10]:data", 10},
		{"invalid", 0},
		{"ENC[vX]:data", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, ParseVersion(tt.ciphertext), tt.ciphertext)
	}
}

func TestKeyManagerRotation(t *testing.T) {
	oldKey := base64.StdEncoding.EncodeToString(testKey(1))
	newKey := base64.StdEncoding.EncodeToString(testKey(2))

	before, err := NewKeyManager(oldKey)
	require.NoError(t, err)
	assert.Equal(t, 1, before.CurrentVersion())

	legacy, err := before.Seal("pk", "0xw")
	require.NoError(t, err)

	after, err := NewKeyManager(newKey, oldKey)
	require.NoError(t, err)
	assert.Equal(t, 2, after.CurrentVersion())

	got, err := after.Open(legacy, "0xw")
	require.NoError(t, err)
	assert.Equal(t, "pk", got)

	resealed, err := after.Reseal(legacy, "0xw")
	require.NoError(t, err)
	assert.Equal(t, 2, ParseVersion(resealed))
}

func TestKeyManagerErrors(t *testing.T) {
	_, err := NewKeyManager("")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	_, err = NewKeyManager("not base64!!")
	assert.Error(t, err)

	_, err = NewKeyManager(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.Error(t, err)

	generated, err := GenerateKey()
	require.NoError(t, err)
	km, err := NewKeyManager(generated)
	require.NoError(t, err)
	_, err = km.Open("ENC[v7]:AAAA", "")
	assert.Error(t, err)
}
