// Package auth issues and verifies wallet-bound bearer tokens.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is used when Issue is called with a non-positive ttl.
const DefaultTTL = 7 * 24 * time.Hour

// ErrAuthInvalid is returned by login verification. Token verification never errors.
var ErrAuthInvalid = errors.New("authentication invalid")

// WalletClaims binds a token to a wallet address.
type WalletClaims struct {
	Wallet string `json:"wallet"`
	jwt.RegisteredClaims
}

// Service signs tokens with a single process-wide secret.
// There is no revocation: a token stays valid until it expires.
type Service struct {
	secret      []byte
	issuer      string
	defaultTTL  time.Duration
	loginWindow time.Duration
	now         func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now for issuing and verifying.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIssuer(issuer string) Option {
	return func(s *Service) { s.issuer = issuer }
}

func WithDefaultTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.defaultTTL = ttl
		}
	}
}

// WithLoginWindow bounds the clock skew accepted by VerifyLogin.
func WithLoginWindow(window time.Duration) Option {
	return func(s *Service) {
		if window > 0 {
			s.loginWindow = window
		}
	}
}

func NewService(secret string, opts ...Option) (*Service, error) {
	if secret == "" {
		return nil, errors.New("auth: secret is required")
	}
	s := &Service{
		secret:      []byte(secret),
		issuer:      "perp-gateway",
		defaultTTL:  DefaultTTL,
		loginWindow: DefaultLoginWindow,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue signs a token for wallet that expires after ttl.
func (s *Service) Issue(wallet string, ttl time.Duration) (string, time.Time, error) {
	if !common.IsHexAddress(wallet) {
		return "", time.Time{}, fmt.Errorf("auth: invalid wallet address %q", wallet)
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	addr := common.HexToAddress(wallet).Hex()
	now := s.now()
	expiresAt := now.Add(ttl)

	claims := WalletClaims{
		Wallet: addr,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   addr,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify returns the wallet bound to token. Any failure yields ("", false).
func (s *Service) Verify(token string) (string, bool) {
	if token == "" {
		return "", false
	}
	parsed, err := jwt.ParseWithClaims(token, &WalletClaims{}, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return "", false
	}
	claims, ok := parsed.Claims.(*WalletClaims)
	if !ok || !common.IsHexAddress(claims.Wallet) || claims.Subject != claims.Wallet {
		return "", false
	}
	return claims.Wallet, true
}

// ParseBearer extracts the token from an Authorization header value.
func ParseBearer(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}
