// Package signer holds the secp256k1 identity a session signs venue actions with.
package signer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"
)

// DefaultDerivationPath is the first account of the standard Ethereum BIP-44 tree.
const DefaultDerivationPath = "m/44'/60'/0'/0/0"

var (
	ErrInvalidKey      = errors.New("invalid private key")
	ErrInvalidMnemonic = errors.New("invalid mnemonic")
	ErrInvalidSig      = errors.New("invalid signature")
)

// Signer manages one ECDSA key pair.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// FromPrivateKeyHex parses "0x1234..." or "1234..." (64 hex chars).
func FromPrivateKeyHex(hexKey string) (*Signer, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	privateKey, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return fromECDSA(privateKey), nil
}

// FromMnemonic derives the key at path (DefaultDerivationPath when empty).
func FromMnemonic(mnemonic, path string) (*Signer, error) {
	mnemonic = strings.TrimSpace(mnemonic)
	if mnemonic == "" {
		return nil, ErrInvalidMnemonic
	}
	if strings.TrimSpace(path) == "" {
		path = DefaultDerivationPath
	}

	w, err := hdwallet.NewFromMnemonic(mnemonic)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
	}
	dp, err := hdwallet.ParseDerivationPath(path)
	if err != nil {
		return nil, fmt.Errorf("invalid derivation path %q: %w", path, err)
	}
	acct, err := w.Derive(dp, false)
	if err != nil {
		return nil, fmt.Errorf("derive %s: %w", path, err)
	}
	pk, err := w.PrivateKey(acct)
	if err != nil {
		return nil, fmt.Errorf("derive private key: %w", err)
	}
	return fromECDSA(pk), nil
}

// Generate creates a random key. Used by tooling and tests.
func Generate() (*Signer, error) {
	pk, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return fromECDSA(pk), nil
}

func fromECDSA(pk *ecdsa.PrivateKey) *Signer {
	return &Signer{privateKey: pk, address: crypto.PubkeyToAddress(pk.PublicKey)}
}

// Address returns the Ethereum address derived from the public key.
func (s *Signer) Address() common.Address {
	return s.address
}

// PrivateKeyHex returns the key as 0x-prefixed hex. Never log it.
func (s *Signer) PrivateKeyHex() string {
	return "0x" + common.Bytes2Hex(crypto.FromECDSA(s.privateKey))
}

// Sign signs a 32-byte digest. The result is [R || S || V] with V in {27, 28}.
func (s *Signer) Sign(hash []byte) ([]byte, error) {
	if len(hash) != 32 {
		return nil, fmt.Errorf("hash must be 32 bytes, got %d", len(hash))
	}
	sig, err := crypto.Sign(hash, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	sig[64] += 27
	return sig, nil
}

// SignPersonal signs msg with the EIP-191 "Ethereum Signed Message" prefix.
func (s *Signer) SignPersonal(msg []byte) ([]byte, error) {
	return s.Sign(accounts.TextHash(msg))
}

// RecoverAddress recovers the signer of a 32-byte digest.
// V may be 0/1 or 27/28.
func RecoverAddress(hash, signature []byte) (common.Address, error) {
	if len(signature) != 65 {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrInvalidSig, len(signature))
	}
	if len(hash) != 32 {
		return common.Address{}, fmt.Errorf("invalid hash length: %d", len(hash))
	}

	sig := make([]byte, 65)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSig, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// RecoverPersonal recovers the signer of an EIP-191 personal message.
func RecoverPersonal(msg, signature []byte) (common.Address, error) {
	return RecoverAddress(accounts.TextHash(msg), signature)
}
