package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/elision-io/elision-core/internal/api"
	"github.com/elision-io/elision-core/internal/binomial"
	"github.com/elision-io/elision-core/internal/collateral"
	"github.com/elision-io/elision-core/internal/config"
	"github.com/elision-io/elision-core/internal/custody"
	"github.com/elision-io/elision-core/internal/exposure"
	"github.com/elision-io/elision-core/internal/metrics"
	"github.com/elision-io/elision-core/internal/model"
	"github.com/elision-io/elision-core/internal/oracle"
	"github.com/elision-io/elision-core/internal/registry"
	"github.com/elision-io/elision-core/internal/settle"
	"github.com/elision-io/elision-core/internal/store"
	"github.com/elision-io/elision-core/internal/tranche"
)

func main() {
	root := &cobra.Command{
		Use:          "elision-core",
		Short:        "Liquidity pool and derivative settlement engine",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		RunE:  runServe,
	}

	serveCmd.Flags().String("port", "8080", "HTTP listen port")
	serveCmd.Flags().String("database-url", "", "PostgreSQL connection URL")
	serveCmd.Flags().String("redis-url", "", "Redis URL for the read-through cache")
	serveCmd.Flags().Duration("cache-ttl", 30*time.Second, "Redis cache TTL")
	serveCmd.Flags().String("mcr", "1.5", "minimum collateralization ratio")
	serveCmd.Flags().String("pricer-step-period", "1", "binomial tree step period")
	serveCmd.Flags().Duration("oracle-max-age", 5*time.Minute, "oracle quote staleness window")
	serveCmd.Flags().String("hedged-share", "0.5", "fraction of payouts accrued to the hedged tranche")
	serveCmd.Flags().String("max-asset-exposure", "100000", "per-underlying open exposure cap per account")
	serveCmd.Flags().String("max-total-exposure", "500000", "aggregate open exposure cap per account")
	serveCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(serveCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadServer(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("database connection: %w", err)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				return fmt.Errorf("invalid redis url: %w", err)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.CacheTTL)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("database-url not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Domain components ---
	mcr, err := decimal.NewFromString(cfg.MCR)
	if err != nil {
		return fmt.Errorf("invalid mcr: %w", err)
	}
	stepPeriod, err := decimal.NewFromString(cfg.PricerStepPeriod)
	if err != nil {
		return fmt.Errorf("invalid pricer step period: %w", err)
	}
	hedgedShare, err := decimal.NewFromString(cfg.HedgedShare)
	if err != nil {
		return fmt.Errorf("invalid hedged share: %w", err)
	}
	maxAssetExposure, err := decimal.NewFromString(cfg.MaxAssetExposure)
	if err != nil {
		return fmt.Errorf("invalid max asset exposure: %w", err)
	}
	maxTotalExposure, err := decimal.NewFromString(cfg.MaxTotalExposure)
	if err != nil {
		return fmt.Errorf("invalid max total exposure: %w", err)
	}

	ledger := custody.NewLedger()
	reg := registry.New(ledger)
	positions, err := collateral.NewManager(mcr)
	if err != nil {
		return err
	}
	prices := oracle.NewStatic(cfg.OracleMaxAge)
	pricer, err := binomial.NewPricer(stepPeriod)
	if err != nil {
		return err
	}
	book := tranche.NewBook()
	limiter := exposure.NewLimiter(maxAssetExposure, maxTotalExposure)
	engine, err := settle.NewEngine(pricer, positions, prices, reg, book, ledger, hedgedShare)
	if err != nil {
		return err
	}

	// Reload persisted state. The custody ledger is not persisted, so its
	// pool holdings and outstanding tracking supply are reconstructed from
	// the restored pools and open positions.
	ctx := context.Background()
	if pools, err := st.ListPools(ctx); err == nil {
		for _, snap := range pools {
			reg.Restore(snap)
			ledger.RestoreHoldings(snap.AssetA, snap.ReserveA)
			ledger.RestoreHoldings(snap.AssetB, snap.ReserveB)
			ledger.RestoreMinted(snap.TrackingAsset, snap.TrackingSupply)
		}
		slog.Info("pools restored", "count", len(pools))
	}
	if persisted, err := st.ListPositions(ctx); err == nil {
		positions.Restore(persisted)
		open := 0
		for _, p := range persisted {
			if p.Status == model.PositionOpen {
				ledger.RestoreHoldings(p.CollateralAsset, p.CollateralAmount)
				open++
			}
		}
		metrics.OpenPositions.Set(float64(open))
		slog.Info("positions restored", "count", len(persisted), "open", open)
	}
	if records, err := st.ListSettlements(ctx); err == nil {
		engine.Restore(records)
	}

	// --- WebSocket hub ---
	wsHub := api.NewWSHub()
	go wsHub.Run()

	// --- Protocol service ---
	svc := api.NewService(st, ledger, reg, positions, prices, pricer, engine, limiter, wsHub)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"elision-core"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time protocol events.
		r.Get("/ws", wsHub.HandleWS)

		// Accounts.
		r.Post("/accounts/{account}/deposit", svc.Deposit)
		r.Get("/accounts/{account}/balance", svc.GetBalance)

		// Pools and liquidity.
		r.Get("/pools", svc.ListPools)
		r.Post("/pools", svc.CreatePool)
		r.Get("/pools/{base}/{quote}", svc.GetPool)
		r.Post("/pools/{base}/{quote}/liquidity", svc.AddLiquidity)
		r.Post("/pools/{base}/{quote}/redeem", svc.RemoveLiquidity)
		r.Get("/pools/{base}/{quote}/quote", svc.GetSwapQuote)
		r.Post("/pools/{base}/{quote}/swap", svc.ExecuteSwap)

		// Collateralized positions.
		r.Post("/positions", svc.OpenPosition)
		r.Get("/positions/{positionID}", svc.GetPosition)
		r.Get("/positions/{positionID}/ratio", svc.GetRatio)
		r.Post("/positions/{positionID}/collateral", svc.AdjustCollateral)
		r.Post("/positions/{positionID}/settle", svc.SettlePosition)
		r.Get("/positions/{positionID}/settlement", svc.GetSettlement)

		// Pricing and oracle.
		r.Post("/price", svc.PriceOption)
		r.Post("/oracle/prices", svc.SetOraclePrice)

		// Ticker parsing.
		r.Get("/contracts/{ticker}", svc.GetContract)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("elision-core listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down elision-core...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("elision-core stopped")
	return nil
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
