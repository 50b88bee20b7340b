package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"perp-gateway/internal/auth"
	"perp-gateway/internal/events"
	"perp-gateway/internal/monitor"
	"perp-gateway/internal/order"
	"perp-gateway/internal/session"
	"perp-gateway/pkg/config"
	"perp-gateway/pkg/crypto"
	"perp-gateway/pkg/db"
	exchange "perp-gateway/pkg/exchanges/common"
	"perp-gateway/pkg/exchanges/hyperliquid"
	"perp-gateway/pkg/exchanges/paper"
	"perp-gateway/pkg/logger"
	"perp-gateway/pkg/signer"
)

// gateway is the fully wired core shared by serve and the CLI tools.
type gateway struct {
	DB       *db.Database
	Store    *session.DBCredentialStore
	Registry *session.Registry
	Resolver *session.Resolver
	Engine   *order.Engine
	Info     exchange.InfoClient
	Auth     *auth.Service
	Bus      *events.Bus
	Metrics  *monitor.Metrics
}

func (g *gateway) Close() {
	if g.DB != nil {
		_ = g.DB.Close()
	}
}

// openStore opens the credential database with every configured master key.
func openStore(cfg *config.Config) (*db.Database, *session.DBCredentialStore, error) {
	km, err := crypto.NewKeyManager(cfg.Storage.MasterKey, cfg.Storage.RetiredMasterKeys...)
	if err != nil {
		return nil, nil, fmt.Errorf("key manager: %w", err)
	}
	database, err := db.New(cfg.Storage.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.ApplyMigrations(database); err != nil {
		_ = database.Close()
		return nil, nil, fmt.Errorf("apply migrations: %w", err)
	}
	return database, session.NewDBCredentialStore(database.Queries(), km), nil
}

// venueClients returns the shared read client and a factory for per-wallet sessions.
func venueClients(cfg *config.Config) (exchange.InfoClient, session.ClientFactory, error) {
	log := logger.WithComponent("venue").WithField("venue", cfg.Venue.Name)

	switch cfg.Venue.Name {
	case config.VenuePaper:
		markets := paper.DefaultMarkets()
		if cfg.Venue.PaperMarketsFile != "" {
			loaded, err := paper.LoadMarkets(cfg.Venue.PaperMarketsFile)
			if err != nil {
				return nil, nil, err
			}
			markets = loaded
		}
		venue, err := paper.NewVenue(markets, log)
		if err != nil {
			return nil, nil, err
		}
		log.WithField("markets", len(markets)).Info("paper venue ready")
		return venue, func(wallet common.Address, _ *signer.Signer) (exchange.OrderTransport, exchange.InfoClient, error) {
			return venue.Transport(wallet.Hex()), venue, nil
		}, nil

	case config.VenueHyperliquid:
		hlCfg := hyperliquid.Config{
			BaseURL: cfg.Venue.BaseURL,
			Timeout: cfg.Venue.Timeout,
			Limiter: exchange.NewWeightLimiter(cfg.Venue.WeightPerMinute, log),
			Logger:  log,
		}
		info := hyperliquid.NewInfoClient(hlCfg)
		return info, func(_ common.Address, s *signer.Signer) (exchange.OrderTransport, exchange.InfoClient, error) {
			return hyperliquid.NewExchangeClient(hlCfg, s, info), info, nil
		}, nil

	default:
		return nil, nil, fmt.Errorf("unknown venue %q", cfg.Venue.Name)
	}
}

// startPaperMarkFeed makes a paper venue follow the marks of a live venue so
// resting orders can fill. It reports whether a feed was started.
func startPaperMarkFeed(ctx context.Context, cfg *config.Config, info exchange.InfoClient) bool {
	venue, ok := info.(*paper.Venue)
	if !ok || cfg.Venue.PaperMarkSource == "" || cfg.Venue.PaperMarkInterval <= 0 {
		return false
	}
	log := logger.WithComponent("venue").WithField("mark_source", cfg.Venue.PaperMarkSource)
	src := hyperliquid.NewInfoClient(hyperliquid.Config{
		BaseURL: cfg.Venue.PaperMarkSource,
		Timeout: cfg.Venue.Timeout,
		Limiter: exchange.NewWeightLimiter(cfg.Venue.WeightPerMinute, log),
		Logger:  log,
	})
	go venue.FollowMarks(ctx, src, cfg.Venue.PaperMarkInterval, cfg.Venue.Timeout)
	return true
}

func newAuthService(cfg *config.Config) (*auth.Service, error) {
	return auth.NewService(cfg.Auth.JWTSecret,
		auth.WithIssuer(cfg.Auth.Issuer),
		auth.WithDefaultTTL(cfg.Auth.TokenTTL),
		auth.WithLoginWindow(cfg.Auth.LoginWindow),
	)
}

func buildGateway(cfg *config.Config) (*gateway, error) {
	database, store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	gw := &gateway{DB: database, Store: store, Bus: events.NewBus(), Metrics: monitor.NewMetrics()}

	info, factory, err := venueClients(cfg)
	if err != nil {
		gw.Close()
		return nil, err
	}
	gw.Info = info

	gw.Registry = session.NewRegistry(factory, logger.WithComponent("session"))
	gw.Resolver = session.NewResolver(gw.Registry, store, logger.WithComponent("session"))

	gw.Engine, err = order.NewEngine(info, order.Options{
		Timeout: cfg.Venue.Timeout,
		Bus:     gw.Bus,
		Metrics: gw.Metrics,
		Logger:  logger.WithComponent("order"),
	})
	if err != nil {
		gw.Close()
		return nil, err
	}

	gw.Auth, err = newAuthService(cfg)
	if err != nil {
		gw.Close()
		return nil, err
	}
	return gw, nil
}
