package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	ErrKeyNotFound  = errors.New("encryption key not found")
	ErrKeyNotLoaded = errors.New("key manager not initialized")
)

// KeyManager holds every configured key version.
// New ciphertexts use the current key; older versions stay readable for rotation.
type KeyManager struct {
	mu         sync.RWMutex
	currentVer int
	encryptors map[int]*Encryptor
}

// NewKeyManager builds a manager from base64 keys.
// Retired keys get versions 1..n in the order given and current gets n+1.
func NewKeyManager(current string, retired ...string) (*KeyManager, error) {
	if strings.TrimSpace(current) == "" {
		return nil, ErrKeyNotFound
	}
	km := &KeyManager{encryptors: make(map[int]*Encryptor)}

	for i, k := range retired {
		if err := km.loadKey(i+1, k); err != nil {
			return nil, fmt.Errorf("load retired key v%d: %w", i+1, err)
		}
	}
	km.currentVer = len(retired) + 1
	if err := km.loadKey(km.currentVer, current); err != nil {
		return nil, fmt.Errorf("load current key: %w", err)
	}
	return km, nil
}

func (km *KeyManager) loadKey(version int, keyBase64 string) error {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(keyBase64))
	if err != nil {
		return fmt.Errorf("decode key: %w", err)
	}
	enc, err := NewEncryptor(key, version)
	if err != nil {
		return fmt.Errorf("create encryptor v%d: %w", version, err)
	}
	km.encryptors[version] = enc
	return nil
}

// Seal encrypts with the current key version, bound to aad.
func (km *KeyManager) Seal(plaintext, aad string) (string, error) {
	km.mu.RLock()
	defer km.mu.RUnlock()

	enc, ok := km.encryptors[km.currentVer]
	if !ok {
		return "", ErrKeyNotLoaded
	}
	return enc.Seal(plaintext, aad)
}

// Open decrypts with whichever version produced ciphertext.
func (km *KeyManager) Open(ciphertext, aad string) (string, error) {
	km.mu.RLock()
	defer km.mu.RUnlock()

	version := ParseVersion(ciphertext)
	if version == 0 {
		return "", ErrInvalidCiphertext
	}
	enc, ok := km.encryptors[version]
	if !ok {
		return "", fmt.Errorf("key version %d not available", version)
	}
	return enc.Open(ciphertext, aad)
}

// Reseal re-encrypts a ciphertext with the current key version.
func (km *KeyManager) Reseal(ciphertext, aad string) (string, error) {
	plaintext, err := km.Open(ciphertext, aad)
	if err != nil {
		return "", fmt.Errorf("decrypt for re-encryption: %w", err)
	}
	return km.Seal(plaintext, aad)
}

// CurrentVersion returns the current (latest) key version being used.
func (km *KeyManager) CurrentVersion() int {
	km.mu.RLock()
	defer km.mu.RUnlock()
	return km.currentVer
}

// GenerateKey generates a new random 32-byte key suitable for AES-256.
// Returns the key as a base64-encoded string for easy storage.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("generate random key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}
