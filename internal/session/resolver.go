package session

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Resolver finds the session for an authenticated wallet, loading stored credentials on a cache miss.
type Resolver struct {
	registry *Registry
	store    CredentialStore
	log      *logrus.Entry
}

func NewResolver(registry *Registry, store CredentialStore, log *logrus.Entry) *Resolver {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Resolver{registry: registry, store: store, log: log}
}

// Registry exposes the underlying registry.
func (r *Resolver) Registry() *Registry {
	return r.registry
}

// Resolve returns the wallet's session or ErrNotRegistered.
func (r *Resolver) Resolve(ctx context.Context, wallet string) (*Session, error) {
	if sess, ok := r.registry.Lookup(wallet); ok {
		return sess, nil
	}
	addr, err := NormalizeWallet(wallet)
	if err != nil {
		return nil, err
	}
	cred, err := r.store.Credential(ctx, addr.Hex())
	if err != nil {
		return nil, err
	}
	return r.registry.GetOrCreate(addr.Hex(), cred)
}

// Register validates and stores cred for wallet, then returns its session.
// Nothing is cached when the credential cannot be stored.
// A wallet that already has a live session keeps its original signer until restart.
func (r *Resolver) Register(ctx context.Context, wallet string, cred Credential) (*Session, error) {
	addr, err := NormalizeWallet(wallet)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSessionInit, err)
	}
	if _, err := cred.Signer(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSessionInit, err)
	}
	if err := r.store.Save(ctx, addr.Hex(), cred); err != nil {
		return nil, fmt.Errorf("save credential: %w", err)
	}
	sess, err := r.registry.GetOrCreate(addr.Hex(), cred)
	if err != nil {
		return nil, err
	}
	r.log.WithField("wallet", addr.Hex()).Info("credential registered")
	return sess, nil
}
