// Package app wires the pool engine's dependencies from configuration and
// runs the HTTP server. cmd/server and the end-to-end tests build the
// process through New so both exercise the same wiring.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/memepool/pool-engine/internal/api"
	"github.com/memepool/pool-engine/internal/chain"
	"github.com/memepool/pool-engine/internal/chain/evm"
	"github.com/memepool/pool-engine/internal/chain/sim"
	"github.com/memepool/pool-engine/internal/config"
	"github.com/memepool/pool-engine/internal/guard"
	"github.com/memepool/pool-engine/internal/metrics"
	"github.com/memepool/pool-engine/internal/pool"
	"github.com/memepool/pool-engine/internal/store"
)

// App is the wired process. Close releases what New opened, in reverse.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	Handler http.Handler
	Engine  *pool.Engine
	Hub     *api.WSHub
	Ledger  *sim.Ledger

	closers []func()
}

// Option adjusts how New wires the process.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces the wall clock for the engine and the simulated
// exchange.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New connects the stores, the lock and the chain collaborators named by
// cfg and builds the HTTP handler. cfg must already be validated.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	a := &App{cfg: cfg, logger: logger}
	if err := a.wire(ctx, o); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context, o options) error {
	cfg := a.cfg

	// --- Initialize store ---
	var st store.Store
	var rdb *redis.Client

	if cfg.Redis.URL != "" {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("invalid redis url: %w", err)
		}
		rdb = redis.NewClient(opt)
		a.closers = append(a.closers, func() { rdb.Close() })
	}

	if cfg.Database.URL != "" {
		pg, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		a.closers = append(a.closers, pg.Close)
		st = store.NewPostgresStore(pg)
		a.logger.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if rdb != nil {
			st = store.NewCachedStore(st, rdb, cfg.Redis.CacheTTL.Duration)
			a.logger.Info("Redis cache enabled", "ttl", cfg.Redis.CacheTTL.Duration)
		}
	} else {
		a.logger.Warn("database url not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	// --- Exclusive section ---
	var g guard.Guard = guard.NewLocal()
	if rdb != nil {
		g = guard.NewRedis(rdb, "pool-engine", cfg.Redis.LockTTL.Duration)
		a.logger.Info("Redis lock enabled", "ttl", cfg.Redis.LockTTL.Duration)
	}

	// --- Chain collaborators ---
	self := common.HexToAddress(cfg.Chain.Escrow)
	wrapped := common.HexToAddress(cfg.Chain.WrappedNative)
	routerAddr := common.HexToAddress(cfg.Chain.Router)

	ledger, exchange, simOracle, err := buildSim(cfg.Chain, self, wrapped, routerAddr)
	if err != nil {
		return err
	}
	if o.now != nil {
		exchange.SetClock(o.now)
	}
	a.Ledger = ledger

	var oracle chain.PriceOracle = simOracle
	if cfg.Chain.RPCURL != "" {
		eo, client, err := evm.Dial(ctx, cfg.Chain.RPCURL)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, client.Close)
		oracle = eo
		a.logger.Info("on-chain price oracle enabled", "rpc", cfg.Chain.RPCURL)
	} else {
		a.logger.Warn("chain rpc_url not set, using simulated prices",
			"attached_value", cfg.Chain.Sim.AttachedValue,
			"default_price", cfg.Chain.Sim.DefaultPrice)
	}

	var minOut pool.MinOutPolicy = pool.AnyNonZero{}
	if cfg.Engine.MinOutPolicy == "oracle_quote" {
		scale, err := decimal.NewFromString(cfg.Engine.OracleQuoteScale)
		if err != nil {
			return fmt.Errorf("engine: oracle_quote_scale: %w", err)
		}
		minOut = pool.OracleQuote{Scale: scale}
	}

	// --- WebSocket hub ---
	a.Hub = api.NewWSHub()

	// --- Pool engine ---
	engine, err := pool.New(pool.Options{
		Store:          st,
		Guard:          g,
		Exchange:       exchange,
		Wrapper:        ledger,
		Oracle:         oracle,
		Escrow:         ledger,
		MinOut:         minOut,
		Notifier:       a.Hub,
		Logger:         a.logger,
		Self:           self,
		Router:         routerAddr,
		WrappedNative:  wrapped,
		FeeTier:        uint32(cfg.Engine.FeeTier),
		RewardBps:      uint32(cfg.Engine.ExecutorRewardBps),
		BonusBps:       uint32(cfg.Engine.BonusBps),
		SwapDeadline:   cfg.Engine.SwapDeadline.Duration,
		RefundDelay:    cfg.Engine.RefundDelay.Duration,
		MaxHorizon:     cfg.Engine.MaxDeadlineHorizon.Duration,
		EmergencyDelay: cfg.Engine.EmergencyWithdrawDelay.Duration,
		Now:            o.now,
	})
	if err != nil {
		return err
	}
	a.Engine = engine
	a.Handler = a.routes(api.NewService(engine))
	return nil
}

// buildSim creates the in-process chain and seeds it from the [chain.sim]
// section.
func buildSim(cfg config.ChainConfig, self, wrapped, routerAddr common.Address) (*sim.Ledger, *sim.Exchange, *sim.Oracle, error) {
	ledger := sim.NewLedger(self, wrapped)
	ledger.AttachValue(cfg.Sim.AttachedValue)
	exchange := sim.NewExchange(ledger, routerAddr)
	oracle := sim.NewOracle()

	if cfg.Sim.DefaultRate != "" {
		rate, err := decimal.NewFromString(cfg.Sim.DefaultRate)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("chain.sim: default_rate: %w", err)
		}
		exchange.SetDefaultRate(rate)
	}
	if cfg.Sim.DefaultPrice != "" {
		price, err := decimal.NewFromString(cfg.Sim.DefaultPrice)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("chain.sim: default_price: %w", err)
		}
		oracle.SetDefaultPrice(price)
	}
	for k, v := range cfg.Sim.Rates {
		rate, err := decimal.NewFromString(v)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("chain.sim: rates[%s]: %w", k, err)
		}
		exchange.SetRate(common.HexToAddress(k), rate)
	}
	for k, v := range cfg.Sim.Prices {
		price, err := decimal.NewFromString(v)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("chain.sim: prices[%s]: %w", k, err)
		}
		oracle.SetPrice(common.HexToAddress(k), price)
	}
	return ledger, exchange, oracle, nil
}

func (a *App) routes(poolSvc *api.Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)
	r.Use(cors(a.cfg.Server.CORSOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"pool-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time pool events.
		r.Get("/ws", a.Hub.HandleWS)

		poolSvc.Routes(r)
	})
	return r
}

// Serve runs the hub and the HTTP server until ctx is cancelled, then
// shuts both down within the configured timeout.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(a.cfg.Server.Port),
		Handler:      a.Handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		a.Hub.Run()
		return nil
	})
	grp.Go(func() error {
		a.logger.Info("pool-engine listening", "port", a.cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	grp.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down pool-engine...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout.Duration)
		defer cancel()
		a.Hub.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})
	return grp.Wait()
}

// Close tears down all resources in reverse registration order. It is safe
// to call more than once.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// cors allows cross-origin requests from origins ("*" for any).
func cors(origins []string) func(http.Handler) http.Handler {
	allowed := strings.Join(origins, ", ")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowed)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+api.CallerHeader)
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
