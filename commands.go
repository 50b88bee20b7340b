package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"perp-gateway/internal/session"
	"perp-gateway/pkg/crypto"
	"perp-gateway/pkg/logger"
	"perp-gateway/pkg/signer"
)

func newTokenCmd() *cobra.Command {
	tokenCmd := &cobra.Command{Use: "token", Short: "Bearer token tools"}

	var wallet string
	var ttl time.Duration
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Issue a bearer token for a wallet",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			svc, err := newAuthService(cfg)
			if err != nil {
				return err
			}
			token, exp, err := svc.Issue(wallet, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			logger.WithComponent("cli").WithField("expires_at", exp.UTC().Format(time.RFC3339)).Info("token issued")
			return nil
		},
	}
	issue.Flags().StringVar(&wallet, "wallet", "", "wallet address (0x...)")
	issue.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default auth.token_ttl)")
	_ = issue.MarkFlagRequired("wallet")

	tokenCmd.AddCommand(issue)
	return tokenCmd
}

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a master encryption key and a fresh signing key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			master, err := crypto.GenerateKey()
			if err != nil {
				return err
			}
			s, err := signer.Generate()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "MASTER_ENCRYPTION_KEY=%s\n", master)
			fmt.Fprintf(out, "signer_address=%s\n", s.Address().Hex())
			fmt.Fprintf(out, "signer_private_key=%s\n", s.PrivateKeyHex())
			return nil
		},
	}
}

func newWalletCmd() *cobra.Command {
	walletCmd := &cobra.Command{Use: "wallet", Short: "Manage stored wallet credentials"}

	var (
		wallet     string
		privateKey string
		mnemonic   string
		path       string
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Store an encrypted signing credential for a wallet",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (privateKey == "") == (mnemonic == "") {
				return errors.New("exactly one of --private-key or --mnemonic is required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			addr, err := session.NormalizeWallet(wallet)
			if err != nil {
				return err
			}
			database, store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			cred := session.Credential{PrivateKey: privateKey, Mnemonic: mnemonic, DerivationPath: path}
			if err := store.Save(cmd.Context(), addr.Hex(), cred); err != nil {
				return err
			}
			s, _ := cred.Signer()
			fmt.Fprintf(cmd.OutOrStdout(), "stored credential for %s (signer %s)\n", addr.Hex(), s.Address().Hex())
			return nil
		},
	}
	add.Flags().StringVar(&wallet, "wallet", "", "wallet address (0x...)")
	add.Flags().StringVar(&privateKey, "private-key", "", "hex private key")
	add.Flags().StringVar(&mnemonic, "mnemonic", "", "BIP-39 mnemonic")
	add.Flags().StringVar(&path, "path", "", "derivation path (default m/44'/60'/0'/0/0)")
	_ = add.MarkFlagRequired("wallet")

	reseal := &cobra.Command{
		Use:   "reseal",
		Short: "Re-encrypt stored credentials with the current master key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			database, store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			n, err := store.Reseal(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "resealed %d credential(s)\n", n)
			return nil
		},
	}

	walletCmd.AddCommand(add, reseal)
	return walletCmd
}
