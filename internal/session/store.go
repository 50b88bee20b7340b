package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"perp-gateway/pkg/crypto"
	"perp-gateway/pkg/db"
)

// ErrNotRegistered means no credential is stored for the wallet.
var ErrNotRegistered = errors.New("wallet not registered")

// CredentialStore persists wallet credentials.
type CredentialStore interface {
	Credential(ctx context.Context, wallet string) (Credential, error)
	Save(ctx context.Context, wallet string, cred Credential) error
}

// DBCredentialStore keeps credentials encrypted in SQLite, bound to the wallet as associated data.
type DBCredentialStore struct {
	queries *db.CredentialQueries
	keys    *crypto.KeyManager
}

func NewDBCredentialStore(queries *db.CredentialQueries, keys *crypto.KeyManager) *DBCredentialStore {
	return &DBCredentialStore{queries: queries, keys: keys}
}

// Credential loads and decrypts the wallet's credential. wallet must be in checksum form.
func (s *DBCredentialStore) Credential(ctx context.Context, wallet string) (Credential, error) {
	row, err := s.queries.GetCredential(ctx, wallet)
	if errors.Is(err, db.ErrNotFound) {
		return Credential{}, ErrNotRegistered
	}
	if err != nil {
		return Credential{}, err
	}

	plain, err := s.keys.Open(row.CredentialEncrypted, wallet)
	if err != nil {
		return Credential{}, fmt.Errorf("decrypt credential for %s: %w", wallet, err)
	}
	var cred Credential
	if err := json.Unmarshal([]byte(plain), &cred); err != nil {
		return Credential{}, fmt.Errorf("decode credential for %s: %w", wallet, err)
	}
	return cred, nil
}

// Save encrypts cred with the current key version and upserts it.
func (s *DBCredentialStore) Save(ctx context.Context, wallet string, cred Credential) error {
	sig, err := cred.Signer()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSessionInit, err)
	}
	raw, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}
	sealed, err := s.keys.Seal(string(raw), wallet)
	if err != nil {
		return fmt.Errorf("encrypt credential: %w", err)
	}
	return s.queries.UpsertCredential(ctx, db.WalletCredential{
		WalletAddress:       wallet,
		SignerAddress:       sig.Address().Hex(),
		CredentialEncrypted: sealed,
		KeyVersion:          crypto.ParseVersion(sealed),
	})
}

// Reseal re-encrypts every credential stored under a retired key version.
// It returns how many rows were rewritten.
func (s *DBCredentialStore) Reseal(ctx context.Context) (int, error) {
	rows, err := s.queries.ListCredentials(ctx)
	if err != nil {
		return 0, err
	}
	current := s.keys.CurrentVersion()
	n := 0
	for _, row := range rows {
		if row.KeyVersion == current {
			continue
		}
		sealed, err := s.keys.Reseal(row.CredentialEncrypted, row.WalletAddress)
		if err != nil {
			return n, fmt.Errorf("reseal %s: %w", row.WalletAddress, err)
		}
		row.CredentialEncrypted = sealed
		row.KeyVersion = current
		if err := s.queries.UpsertCredential(ctx, row); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
