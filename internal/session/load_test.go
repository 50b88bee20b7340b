package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	exchange "perp-gateway/pkg/exchanges/common"
)

// walletAddr returns a deterministic distinct wallet for index i.
func walletAddr(i int) string {
	return common.HexToAddress(fmt.Sprintf("0x%040x", i+1)).Hex()
}

func BenchmarkRegistryGetOrCreate(b *testing.B) {
	r := NewRegistry(paperFactory(b, nil), nil)
	cred := Credential{PrivateKey: testKey}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if _, err := r.GetOrCreate(walletAddr(i%100), cred); err != nil {
				b.Errorf("GetOrCreate: %v", err)
			}
			i++
		}
	})
}

func BenchmarkRegistryLookup(b *testing.B) {
	r := NewRegistry(paperFactory(b, nil), nil)
	for i := 0; i < 100; i++ {
		_, err := r.GetOrCreate(walletAddr(i), Credential{PrivateKey: testKey})
		require.NoError(b, err)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			_, _ = r.Lookup(walletAddr(i % 100))
			i++
		}
	})
}

func BenchmarkCredentialStoreSave(b *testing.B) {
	store := newStore(b)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := store.Save(ctx, walletAddr(i%100), Credential{PrivateKey: testKey}); err != nil {
			b.Errorf("Save: %v", err)
		}
	}
}

// Many wallets resolving concurrently each end up with exactly one session,
// and every session trades only its own account.
func TestConcurrentMultiWalletLoad(t *testing.T) {
	const (
		wallets    = 50
		perWallet  = 20
		orderAsset = "ETH"
	)
	var calls atomic.Int32
	store := newStore(t)
	ctx := context.Background()
	for i := 0; i < wallets; i++ {
		require.NoError(t, store.Save(ctx, walletAddr(i), Credential{PrivateKey: testKey}))
	}
	res := NewResolver(NewRegistry(paperFactory(t, &calls), nil), store, nil)

	var (
		wg       sync.WaitGroup
		failures atomic.Int32
		sessions sync.Map
	)
	for i := 0; i < wallets; i++ {
		for j := 0; j < perWallet; j++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				s, err := res.Resolve(ctx, walletAddr(i))
				if err != nil {
					failures.Add(1)
					return
				}
				if prev, loaded := sessions.LoadOrStore(i, s); loaded && prev != s {
					failures.Add(1)
				}
			}(i)
		}
	}
	wg.Wait()

	require.Zero(t, failures.Load())
	assert.Equal(t, int32(wallets), calls.Load())
	assert.Equal(t, wallets, res.Registry().Len())

	first, _ := sessions.Load(0)
	s := first.(*Session)
	_, err := s.Exchange.Submit(ctx, exchange.OrderRequest{
		Asset: orderAsset, IsBuy: true, Size: decimal.NewFromInt(1), Type: exchange.MarketOrder{},
	})
	require.NoError(t, err)

	for i := 0; i < wallets; i++ {
		state, err := s.Info.UserState(ctx, walletAddr(i))
		require.NoError(t, err)
		if i == 0 {
			assert.Len(t, state.AssetPositions, 1, fmt.Sprintf("wallet %d", i))
		} else {
			assert.Empty(t, state.AssetPositions, fmt.Sprintf("wallet %d", i))
		}
	}
}
