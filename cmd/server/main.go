package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/passapraela/fantasy-engine/internal/account"
	"github.com/passapraela/fantasy-engine/internal/blob"
	"github.com/passapraela/fantasy-engine/internal/checkout"
	"github.com/passapraela/fantasy-engine/internal/config"
	"github.com/passapraela/fantasy-engine/internal/hub"
	"github.com/passapraela/fantasy-engine/internal/market"
	"github.com/passapraela/fantasy-engine/internal/metrics"
	"github.com/passapraela/fantasy-engine/internal/roster"
	"github.com/passapraela/fantasy-engine/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("fantasy-engine failed", "err", err)
		os.Exit(1)
	}
	fmt.Println("fantasy-engine stopped")
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Initialize store ---
	var st store.Store
	var locker market.Locker
	var cleanup []func()
	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}()

	if cfg.Database.URL != "" {
		poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("invalid database url: %w", err)
		}
		poolCfg.MaxConns = int32(cfg.Database.MaxConns)
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		cleanup = append(cleanup, pool.Close)

		if cfg.Database.RunMigrations {
			if err := store.RunMigrations(ctx, pool); err != nil {
				return err
			}
		}
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL", "max_conns", cfg.Database.MaxConns)

		// Wrap with Redis read-through cache if configured.
		if cfg.Redis.URL != "" {
			opt, err := redis.ParseURL(cfg.Redis.URL)
			if err != nil {
				return fmt.Errorf("invalid redis url: %w", err)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.Redis.CacheTTL.Duration)
			if cfg.Redis.SettlementLock {
				locker = store.NewRedisLocker(rdb)
			}
			slog.Info("Redis cache enabled", "settlement_lock", cfg.Redis.SettlementLock)
		}
	} else {
		slog.Warn("database url not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	// --- Photo storage ---
	var blobs blob.Store
	switch cfg.Blob.Backend {
	case "s3":
		s3Store, err := blob.NewS3Store(ctx, blob.S3Config{
			Endpoint:       cfg.Blob.Endpoint,
			Region:         cfg.Blob.Region,
			Bucket:         cfg.Blob.Bucket,
			AccessKey:      cfg.Blob.AccessKey,
			SecretKey:      cfg.Blob.SecretKey,
			ForcePathStyle: cfg.Blob.ForcePathStyle,
		})
		if err != nil {
			return err
		}
		blobs = s3Store
	default:
		disk, err := blob.NewDiskStore(cfg.Blob.Dir)
		if err != nil {
			return err
		}
		blobs = disk
	}
	slog.Info("photo storage ready", "backend", cfg.Blob.Backend)

	// --- Services ---
	wsHub := hub.New()
	marketCtl := market.NewController(st, locker, wsHub)
	accounts := account.NewService(st, account.Options{
		AdminEmail:    cfg.Admin.Email,
		AdminPassword: cfg.Admin.Password,
		AdminKey:      cfg.Admin.APIKey,
	})
	players := roster.NewService(st, blobs, wsHub)
	payments, err := checkout.NewClient(cfg.MercadoPago.BaseURL, cfg.MercadoPago.AccessToken, checkout.BackURLs{
		Success: cfg.MercadoPago.SuccessURL,
		Failure: cfg.MercadoPago.FailureURL,
		Pending: cfg.MercadoPago.PendingURL,
	}, cfg.MercadoPago.Timeout.Duration)
	if err != nil {
		return err
	}
	if !payments.Enabled() {
		slog.Warn("mercadopago access token not set, checkout disabled")
	}
	if cfg.Admin.APIKey == "" {
		slog.Warn("admin api key not set, admin routes are unprotected")
	}

	status, err := marketCtl.Status(ctx)
	if err != nil {
		return fmt.Errorf("read market status: %w", err)
	}
	slog.Info("market status loaded", "status", status)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors(cfg.Server.CORSOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"fantasy-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Get("/images/*", blob.Handler(blobs))

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for market and stats events. Long-lived, so
		// outside the request timeout.
		r.Get("/ws", wsHub.HandleWS)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(cfg.Server.RequestTimeout.Duration))

			// Market.
			r.Get("/market/status", marketCtl.GetStatus)
			r.Get("/leaderboard", marketCtl.GetLeaderboard)

			// Accounts and lineups.
			r.Post("/users", accounts.PostUser)
			r.Post("/login", accounts.PostLogin)
			r.Get("/users/{email}/lineup", accounts.GetLineupHandler)
			r.Put("/users/{email}/lineup", accounts.PutLineup)

			// Players.
			r.Get("/players", players.ListPlayersHandler)
			r.Get("/players/{id}/physical", players.GetPhysical)
			r.Get("/players/{id}/performance.png", players.GetPerformanceChart)

			// Shop.
			r.Post("/checkout/preference", payments.PostPreference)

			// Admin.
			r.Group(func(r chi.Router) {
				r.Use(account.RequireAdmin(cfg.Admin.APIKey))
				r.Post("/market/status", marketCtl.PostStatus)
				r.Post("/players", players.PostPlayers)
				r.Put("/players/{id}/stats", players.PutStats)
				r.Post("/players/{id}/physical", players.PostPhysical)
			})
		})
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return wsHub.Run(gctx)
	})
	g.Go(func() error {
		slog.Info("fantasy-engine listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		// Graceful shutdown.
		<-gctx.Done()
		slog.Info("shutting down fantasy-engine...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// cors allows the configured frontend origins. "*" allows any origin.
func cors(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[strings.TrimRight(o, "/")] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case allowed["*"]:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case origin != "" && allowed[origin]:
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+account.AdminKeyHeader)
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
