package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"options-desk/internal/api"
	"options-desk/internal/audit"
	"options-desk/internal/auth"
	"options-desk/internal/backtest"
	"options-desk/internal/feed"
	"options-desk/internal/store"
	"options-desk/internal/tickstore"
)

// services bundles the wired application services.
type services struct {
	store     store.DataStore
	ticks     tickstore.TickSource
	cache     feed.PriceCache
	auth      *auth.Manager
	audit     *audit.Auditor
	backtests *backtest.Service
	feed      *feed.Service
}

// buildServices wires the stores and services from configuration.
func buildServices(app *App) (*services, func(), error) {
	if app.Broker == nil {
		return nil, nil, fmt.Errorf("broker credentials are not configured")
	}
	if app.Config.TickStore.DSN == "" {
		return nil, nil, fmt.Errorf("tickstore.dsn is not configured")
	}
	if app.Config.Auth.JWTSecret == "" {
		return nil, nil, fmt.Errorf("auth.jwt_secret is not configured")
	}

	dataStore, err := store.NewSQLiteStore(app.Config.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening application store: %w", err)
	}

	ticks, err := tickstore.NewMySQLStore(app.Config.TickStore.DSN, app.Config.TickStore.Database, app.Config.TickStore.CacheTTL)
	if err != nil {
		dataStore.Close()
		return nil, nil, fmt.Errorf("opening tick store: %w", err)
	}

	var cache feed.PriceCache
	var redisCache *feed.RedisCache
	if app.Config.RedisEnabled() {
		redisCache = feed.NewRedisCache(app.Config.Redis.Addr, app.Config.Redis.Password, app.Config.Redis.DB, app.Config.Redis.TTL)
		cache = redisCache
		app.Logger.Info().Str("addr", app.Config.Redis.Addr).Msg("Using Redis price cache")
	} else {
		cache = feed.NewMemoryCache()
	}

	auditor := audit.New(dataStore, app.Logger)
	engine := backtest.NewEngine(ticks, backtest.MissingPricePolicy(app.Config.Backtest.MissingPricePolicy), app.Logger)
	backtests := backtest.NewService(dataStore, engine, auditor, app.Config.Backtest.MaxLegs, app.Logger)
	authMgr := auth.NewManager(dataStore, app.Config.Auth.JWTSecret, app.Config.Auth.TokenTTL)

	newTicker := func() feed.Ticker {
		return feed.NewKiteTicker(feed.KiteTickerConfig{
			APIKey:      app.Config.Credentials.Zerodha.APIKey,
			AccessToken: app.Broker.AccessToken(),
		})
	}
	feedSvc := feed.NewService(app.Broker, cache, dataStore, newTicker, app.Logger)

	cleanup := func() {
		if feedSvc.Status().Running {
			feedSvc.Stop()
		}
		ticks.Close()
		dataStore.Close()
		if redisCache != nil {
			redisCache.Close()
		}
	}

	return &services{
		store:     dataStore,
		ticks:     ticks,
		cache:     cache,
		auth:      authMgr,
		audit:     auditor,
		backtests: backtests,
		feed:      feedSvc,
	}, cleanup, nil
}

func newServeCmd(app *App) *cobra.Command {
	var withFeed bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the REST API server",
		Long:  "Run the REST API server, optionally starting the live feed alongside it.",
		RunE: func(cmd *cobra.Command, args []string) error {
			svcs, cleanup, err := buildServices(app)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if withFeed {
				if err := svcs.feed.Start(ctx); err != nil {
					app.Logger.Warn().Err(err).Msg("Live feed did not start")
				}
			}

			server := api.NewServer(api.Deps{
				Config:    app.Config,
				Store:     svcs.store,
				Auth:      svcs.auth,
				Backtests: svcs.backtests,
				Ticks:     svcs.ticks,
				Broker:    app.Broker,
				Feed:      svcs.feed,
				Cache:     svcs.cache,
				Audit:     svcs.audit,
				Logger:    app.Logger,
			})

			return server.Run(ctx)
		},
	}

	cmd.Flags().BoolVar(&withFeed, "with-feed", false, "start the live feed with the server")
	return cmd
}

func newFeedCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "feed",
		Short: "Run the standalone live price collector",
		Long:  "Connect to the broker WebSocket and pump prices into the cache and store until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			svcs, cleanup, err := buildServices(app)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := svcs.feed.Start(ctx); err != nil {
				return err
			}

			output := NewOutput(cmd)
			output.Info("Live feed running, press Ctrl+C to stop")

			<-ctx.Done()
			return svcs.feed.Stop()
		},
	}
}
