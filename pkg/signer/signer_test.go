package signer

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	knownKey     = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	knownAddress = "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"
	testMnemonic = "test test test test test test test test test test test junk"
	firstAccount = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func TestFromPrivateKeyHex(t *testing.T) {
	s, err := FromPrivateKeyHex(knownKey)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(knownAddress), s.Address())

	bare, err := FromPrivateKeyHex(knownKey[2:])
	require.NoError(t, err)
	assert.Equal(t, s.Address(), bare.Address())
	assert.Equal(t, knownKey, s.PrivateKeyHex())
}

func TestFromPrivateKeyHexRejectsGarbage(t *testing.T) {
	for _, bad := range []string{"", "0x", "0x1234", "zz" + knownKey[4:]} {
		_, err := FromPrivateKeyHex(bad)
		assert.ErrorIs(t, err, ErrInvalidKey, bad)
	}
}

func TestFromMnemonic(t *testing.T) {
	s, err := FromMnemonic(testMnemonic, "")
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(firstAccount), s.Address())

	second, err := FromMnemonic(testMnemonic, "m/44'/60'/0'/0/1")
	require.NoError(t, err)
	assert.NotEqual(t, s.Address(), second.Address())

	_, err = FromMnemonic("", "")
	assert.ErrorIs(t, err, ErrInvalidMnemonic)
	_, err = FromMnemonic("not a real mnemonic phrase", "")
	assert.ErrorIs(t, err, ErrInvalidMnemonic)
	_, err = FromMnemonic(testMnemonic, "m/bogus")
	assert.Error(t, err)
}

func TestSignAndRecover(t *testing.T) {
	s, err := Generate()
	require.NoError(t, err)

	hash := crypto.Keccak256([]byte("payload"))
	sig, err := s.Sign(hash)
	require.NoError(t, err)
	assert.Contains(t, []byte{27, 28}, sig[64])

	got, err := RecoverAddress(hash, sig)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), got)

	_, err = s.Sign([]byte("short"))
	assert.Error(t, err)
	_, err = RecoverAddress(hash, sig[:64])
	assert.ErrorIs(t, err, ErrInvalidSig)
}

func TestPersonalSignature(t *testing.T) {
	s, err := FromPrivateKeyHex(knownKey)
	require.NoError(t, err)

	msg := []byte("hello gateway")
	sig, err := s.SignPersonal(msg)
	require.NoError(t, err)

	got, err := RecoverPersonal(msg, sig)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), got)

	other, err := RecoverPersonal([]byte("tampered"), sig)
	if err == nil {
		assert.NotEqual(t, s.Address(), other)
	}
}

func TestSignAction(t *testing.T) {
	s, err := FromPrivateKeyHex(knownKey)
	require.NoError(t, err)

	action := map[string]any{"type": "cancel", "cancels": []map[string]any{{"a": 0, "o": 7}}}
	sig, err := s.SignAction(AgentDomain(), "b", action, 1700000000000, nil)
	require.NoError(t, err)

	connectionID, err := ActionHash(action, 1700000000000, nil)
	require.NoError(t, err)
	digest, err := HashAgent(AgentDomain(), "b", connectionID)
	require.NoError(t, err)

	raw, err := sig.Bytes()
	require.NoError(t, err)
	got, err := RecoverAddress(digest, raw)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), got)

	// The nonce is part of the commitment.
	otherID, err := ActionHash(action, 1700000000001, nil)
	require.NoError(t, err)
	assert.NotEqual(t, connectionID, otherID)

	vault := common.HexToAddress(firstAccount)
	vaultID, err := ActionHash(action, 1700000000000, &vault)
	require.NoError(t, err)
	assert.NotEqual(t, connectionID, vaultID)
}
