package db

import "time"

// WalletCredential is the encrypted signing material registered for one wallet.
type WalletCredential struct {
	WalletAddress       string
	SignerAddress       string
	CredentialEncrypted string
	KeyVersion          int
	Label               string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
