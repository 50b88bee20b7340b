package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perp-gateway/pkg/crypto"
	"perp-gateway/pkg/db"
	exchange "perp-gateway/pkg/exchanges/common"
	"perp-gateway/pkg/exchanges/paper"
	"perp-gateway/pkg/signer"
)

const (
	testKey      = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	testSigner   = "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"
	testWallet   = "0x90F8bf6A479f320ead074411a4B0e7944Ea8c9C1"
	testMnemonic = "test test test test test test test test test test test junk"
)

func paperFactory(t testing.TB, calls *atomic.Int32) ClientFactory {
	t.Helper()
	venue, err := paper.NewVenue(paper.DefaultMarkets(), nil)
	require.NoError(t, err)
	return func(wallet common.Address, _ *signer.Signer) (exchange.OrderTransport, exchange.InfoClient, error) {
		if calls != nil {
			calls.Add(1)
		}
		return venue.Transport(wallet.Hex()), venue, nil
	}
}

func TestGetOrCreateReturnsSameSession(t *testing.T) {
	var calls atomic.Int32
	r := NewRegistry(paperFactory(t, &calls), nil)

	first, err := r.GetOrCreate(testWallet, Credential{PrivateKey: testKey})
	require.NoError(t, err)
	second, err := r.GetOrCreate(testWallet, Credential{PrivateKey: testKey})
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, common.HexToAddress(testSigner), first.Signer.Address())
	assert.Equal(t, common.HexToAddress(testWallet), first.Wallet)
}

func TestGetOrCreateNormalizesCase(t *testing.T) {
	r := NewRegistry(paperFactory(t, nil), nil)

	upper, err := r.GetOrCreate(testWallet, Credential{PrivateKey: testKey})
	require.NoError(t, err)
	lower, err := r.GetOrCreate("0x90f8bf6a479f320ead074411a4b0e7944ea8c9c1", Credential{Mnemonic: testMnemonic})
	require.NoError(t, err)

	assert.Same(t, upper, lower)
	assert.Equal(t, 1, r.Len())
}

func TestGetOrCreateConcurrentFirstCalls(t *testing.T) {
	var calls atomic.Int32
	r := NewRegistry(paperFactory(t, &calls), nil)

	const workers = 32
	results := make([]*Session, workers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			s, err := r.GetOrCreate(testWallet, Credential{PrivateKey: testKey})
			assert.NoError(t, err)
			results[i] = s
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, s := range results {
		assert.Same(t, results[0], s)
	}
	assert.Equal(t, uint64(1), r.Stats().Created)
}

func TestGetOrCreateMalformedCredential(t *testing.T) {
	r := NewRegistry(paperFactory(t, nil), nil)

	cases := []struct {
		name   string
		wallet string
		cred   Credential
	}{
		{"empty credential", testWallet, Credential{}},
		{"garbage key", testWallet, Credential{PrivateKey: "0xnothex"}},
		{"bad mnemonic", testWallet, Credential{Mnemonic: "not a real phrase"}},
		{"both set", testWallet, Credential{PrivateKey: testKey, Mnemonic: testMnemonic}},
		{"bad wallet", "wallet-1", Credential{PrivateKey: testKey}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.GetOrCreate(tc.wallet, tc.cred)
			assert.ErrorIs(t, err, ErrSessionInit)
		})
	}

	assert.Zero(t, r.Len())
	_, ok := r.Lookup(testWallet)
	assert.False(t, ok)
	assert.Equal(t, uint64(4), r.Stats().InitFailures)
}

func TestGetOrCreateFactoryFailure(t *testing.T) {
	boom := errors.New("dial failed")
	r := NewRegistry(func(common.Address, *signer.Signer) (exchange.OrderTransport, exchange.InfoClient, error) {
		return nil, nil, boom
	}, nil)

	_, err := r.GetOrCreate(testWallet, Credential{PrivateKey: testKey})
	assert.ErrorIs(t, err, ErrSessionInit)
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, r.Len())
}

func TestMnemonicCredential(t *testing.T) {
	r := NewRegistry(paperFactory(t, nil), nil)
	s, err := r.GetOrCreate(testWallet, Credential{Mnemonic: testMnemonic})
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), s.Signer.Address())
}

func newStore(t testing.TB) *DBCredentialStore {
	t.Helper()
	database, err := db.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, db.ApplyMigrations(database))

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	km, err := crypto.NewKeyManager(key)
	require.NoError(t, err)
	return NewDBCredentialStore(database.Queries(), km)
}

func TestDBCredentialStoreRoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	wallet := common.HexToAddress(testWallet).Hex()

	_, err := store.Credential(ctx, wallet)
	assert.ErrorIs(t, err, ErrNotRegistered)

	require.NoError(t, store.Save(ctx, wallet, Credential{PrivateKey: testKey}))
	got, err := store.Credential(ctx, wallet)
	require.NoError(t, err)
	assert.Equal(t, testKey, got.PrivateKey)

	row, err := store.queries.GetCredential(ctx, wallet)
	require.NoError(t, err)
	assert.Equal(t, testSigner, row.SignerAddress)
	assert.NotContains(t, row.CredentialEncrypted, testKey[2:])
	assert.Equal(t, 1, row.KeyVersion)
}

func TestDBCredentialStoreRejectsMalformed(t *testing.T) {
	store := newStore(t)
	err := store.Save(context.Background(), testWallet, Credential{PrivateKey: "zz"})
	assert.ErrorIs(t, err, ErrSessionInit)
}

func TestResolverLoadsStoredCredential(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	writer := NewResolver(NewRegistry(paperFactory(t, nil), nil), store, nil)
	_, err := writer.Resolve(ctx, testWallet)
	assert.ErrorIs(t, err, ErrNotRegistered)

	registered, err := writer.Register(ctx, testWallet, Credential{PrivateKey: testKey})
	require.NoError(t, err)
	again, err := writer.Resolve(ctx, "0x90f8bf6a479f320ead074411a4b0e7944ea8c9c1")
	require.NoError(t, err)
	assert.Same(t, registered, again)

	// a fresh process only has the store
	reader := NewResolver(NewRegistry(paperFactory(t, nil), nil), store, nil)
	restored, err := reader.Resolve(ctx, testWallet)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(testSigner), restored.Signer.Address())
}

func TestResolverRegisterRejectsMalformed(t *testing.T) {
	res := NewResolver(NewRegistry(paperFactory(t, nil), nil), newStore(t), nil)
	_, err := res.Register(context.Background(), testWallet, Credential{})
	assert.ErrorIs(t, err, ErrSessionInit)
	assert.Zero(t, res.Registry().Len())
}

func TestDBCredentialStoreReseal(t *testing.T) {
	database, err := db.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, db.ApplyMigrations(database))
	ctx := context.Background()
	wallet := common.HexToAddress(testWallet).Hex()

	oldKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	oldKM, err := crypto.NewKeyManager(oldKey)
	require.NoError(t, err)
	require.NoError(t, NewDBCredentialStore(database.Queries(), oldKM).Save(ctx, wallet, Credential{PrivateKey: testKey}))

	newKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	rotated, err := crypto.NewKeyManager(newKey, oldKey)
	require.NoError(t, err)
	store := NewDBCredentialStore(database.Queries(), rotated)

	n, err := store.Reseal(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	row, err := database.Queries().GetCredential(ctx, wallet)
	require.NoError(t, err)
	assert.Equal(t, 2, row.KeyVersion)

	got, err := store.Credential(ctx, wallet)
	require.NoError(t, err)
	assert.Equal(t, testKey, got.PrivateKey)

	n, err = store.Reseal(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStatsReportShardOccupancy(t *testing.T) {
	r := NewRegistry(paperFactory(t, nil), nil)
	for _, w := range []string{testWallet, testSigner} {
		_, err := r.GetOrCreate(w, Credential{PrivateKey: testKey})
		require.NoError(t, err)
	}

	st := r.Stats()
	assert.Equal(t, 2, st.Sessions)
	sum := 0
	for _, n := range st.ShardCounts {
		sum += n
	}
	assert.Equal(t, 2, sum)
}

type brokenStore struct{}

func (brokenStore) Credential(context.Context, string) (Credential, error) {
	return Credential{}, ErrNotRegistered
}

func (brokenStore) Save(context.Context, string, Credential) error {
	return errors.New("disk full")
}

func TestResolverRegisterCachesNothingWhenSaveFails(t *testing.T) {
	var calls atomic.Int32
	res := NewResolver(NewRegistry(paperFactory(t, &calls), nil), brokenStore{}, nil)

	_, err := res.Register(context.Background(), testWallet, Credential{PrivateKey: testKey})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	_, ok := res.Registry().Lookup(testWallet)
	assert.False(t, ok)
	assert.Zero(t, calls.Load())
	assert.Zero(t, res.Registry().Len())
}
