package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var (
	ErrWalletRequired = errors.New("wallet_address is required")
	ErrNotFound       = errors.New("record not found")
)

// CredentialQueries reads and writes wallet_credentials.
type CredentialQueries struct {
	db *sql.DB
}

func NewCredentialQueries(db *sql.DB) *CredentialQueries {
	return &CredentialQueries{db: db}
}

// UpsertCredential inserts or replaces the credential for c.WalletAddress.
func (q *CredentialQueries) UpsertCredential(ctx context.Context, c WalletCredential) error {
	if c.WalletAddress == "" {
		return ErrWalletRequired
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO wallet_credentials (
			wallet_address, signer_address, credential_encrypted, key_version, label,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(wallet_address) DO UPDATE SET
			signer_address = excluded.signer_address,
			credential_encrypted = excluded.credential_encrypted,
			key_version = excluded.key_version,
			label = excluded.label,
			updated_at = CURRENT_TIMESTAMP
	`, c.WalletAddress, c.SignerAddress, c.CredentialEncrypted, c.KeyVersion, c.Label)
	if err != nil {
		return fmt.Errorf("upsert credential: %w", err)
	}
	return nil
}

// GetCredential returns the credential for wallet or ErrNotFound.
func (q *CredentialQueries) GetCredential(ctx context.Context, wallet string) (*WalletCredential, error) {
	if wallet == "" {
		return nil, ErrWalletRequired
	}

	var c WalletCredential
	err := q.db.QueryRowContext(ctx, `
		SELECT wallet_address, signer_address, credential_encrypted, key_version,
		       COALESCE(label, ''), created_at, updated_at
		FROM wallet_credentials
		WHERE wallet_address = ?
	`, wallet).Scan(&c.WalletAddress, &c.SignerAddress, &c.CredentialEncrypted,
		&c.KeyVersion, &c.Label, &c.CreatedAt, &c.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query credential: %w", err)
	}
	return &c, nil
}

// ListCredentials returns all registered wallets, ciphertext included.
func (q *CredentialQueries) ListCredentials(ctx context.Context) ([]WalletCredential, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT wallet_address, signer_address, credential_encrypted, key_version,
		       COALESCE(label, ''), created_at, updated_at
		FROM wallet_credentials
		ORDER BY created_at, wallet_address
	`)
	if err != nil {
		return nil, fmt.Errorf("query credentials: %w", err)
	}
	defer rows.Close()

	var out []WalletCredential
	for rows.Next() {
		var c WalletCredential
		if err := rows.Scan(&c.WalletAddress, &c.SignerAddress, &c.CredentialEncrypted,
			&c.KeyVersion, &c.Label, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
