// Package session binds each wallet address to one long-lived signing context.
package session

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"perp-gateway/pkg/cache"
	exchange "perp-gateway/pkg/exchanges/common"
	"perp-gateway/pkg/signer"
)

var (
	// ErrSessionInit means no signing identity or venue client could be built for the wallet.
	ErrSessionInit = errors.New("session init failed")
	// ErrInvalidWallet means the wallet is not a hex address.
	ErrInvalidWallet = errors.New("invalid wallet address")
)

// Credential is the signing material for a wallet. Exactly one of PrivateKey or Mnemonic is set.
type Credential struct {
	PrivateKey     string `json:"private_key,omitempty"`
	Mnemonic       string `json:"mnemonic,omitempty"`
	DerivationPath string `json:"derivation_path,omitempty"`
}

// Signer derives the signing identity described by c.
func (c Credential) Signer() (*signer.Signer, error) {
	key := strings.TrimSpace(c.PrivateKey)
	phrase := strings.TrimSpace(c.Mnemonic)
	switch {
	case key != "" && phrase != "":
		return nil, errors.New("credential sets both private key and mnemonic")
	case key != "":
		return signer.FromPrivateKeyHex(key)
	case phrase != "":
		return signer.FromMnemonic(phrase, c.DerivationPath)
	default:
		return nil, errors.New("credential is empty")
	}
}

// Session is the per-wallet context. Fields never change after creation.
type Session struct {
	Wallet    common.Address
	Signer    *signer.Signer
	Exchange  exchange.OrderTransport
	Info      exchange.InfoClient
	CreatedAt time.Time
}

// ClientFactory builds the venue clients for a freshly derived signer.
type ClientFactory func(wallet common.Address, s *signer.Signer) (exchange.OrderTransport, exchange.InfoClient, error)

// Stats summarises registry activity.
type Stats struct {
	Sessions     int    `json:"sessions"`
	Created      uint64 `json:"created"`
	InitFailures uint64 `json:"init_failures"`
	// ShardCounts is the session count per registry shard.
	ShardCounts []int `json:"shard_counts"`
}

// Registry caches one Session per wallet for the life of the process.
type Registry struct {
	sessions *cache.ShardedMap[*Session]
	factory  ClientFactory
	log      *logrus.Entry
	now      func() time.Time

	created  atomic.Uint64
	failures atomic.Uint64
}

// NewRegistry creates an empty registry.
func NewRegistry(factory ClientFactory, log *logrus.Entry) *Registry {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Registry{
		sessions: cache.NewShardedMap[*Session](),
		factory:  factory,
		log:      log,
		now:      time.Now,
	}
}

// NormalizeWallet returns the checksum form of a hex address.
func NormalizeWallet(wallet string) (common.Address, error) {
	wallet = strings.TrimSpace(wallet)
	if !common.IsHexAddress(wallet) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidWallet, wallet)
	}
	return common.HexToAddress(wallet), nil
}

// GetOrCreate returns the wallet's session, constructing it from cred on first use.
// cred is ignored once a session exists.
func (r *Registry) GetOrCreate(wallet string, cred Credential) (*Session, error) {
	addr, err := NormalizeWallet(wallet)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSessionInit, err)
	}

	sess, created, err := r.sessions.GetOrCreate(addr.Hex(), func() (*Session, error) {
		return r.build(addr, cred)
	})
	if err != nil {
		r.failures.Add(1)
		r.log.WithField("wallet", addr.Hex()).WithError(err).Warn("session init failed")
		return nil, err
	}
	if created {
		r.created.Add(1)
		r.log.WithFields(logrus.Fields{
			"wallet": addr.Hex(),
			"signer": sess.Signer.Address().Hex(),
		}).Info("session created")
	}
	return sess, nil
}

func (r *Registry) build(addr common.Address, cred Credential) (*Session, error) {
	sig, err := cred.Signer()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSessionInit, err)
	}
	if r.factory == nil {
		return nil, fmt.Errorf("%w: no client factory", ErrSessionInit)
	}
	tr, info, err := r.factory(addr, sig)
	if err != nil {
		return nil, fmt.Errorf("%w: build clients: %w", ErrSessionInit, err)
	}
	return &Session{
		Wallet:    addr,
		Signer:    sig,
		Exchange:  tr,
		Info:      info,
		CreatedAt: r.now(),
	}, nil
}

// Lookup returns an existing session without creating one.
func (r *Registry) Lookup(wallet string) (*Session, bool) {
	addr, err := NormalizeWallet(wallet)
	if err != nil {
		return nil, false
	}
	return r.sessions.Get(addr.Hex())
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	return r.sessions.Len()
}

func (r *Registry) Stats() Stats {
	occupancy := r.sessions.Stats()
	return Stats{
		Sessions:     occupancy.TotalItems,
		Created:      r.created.Load(),
		InitFailures: r.failures.Load(),
		ShardCounts:  occupancy.ShardCounts[:],
	}
}
