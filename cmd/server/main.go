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

	"github.com/matador/score-engine/internal/assetdata"
	"github.com/matador/score-engine/internal/config"
	"github.com/matador/score-engine/internal/credibility"
	"github.com/matador/score-engine/internal/karma"
	"github.com/matador/score-engine/internal/metrics"
	"github.com/matador/score-engine/internal/scheduler"
	"github.com/matador/score-engine/internal/scorecalc"
	"github.com/matador/score-engine/internal/scoring"
	"github.com/matador/score-engine/internal/store"
	"github.com/matador/score-engine/internal/tracker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("config invalid", "err", err)
		os.Exit(1)
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if cfg.Database.URL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.Database.URL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		if err := store.Migrate(context.Background(), pool); err != nil {
			slog.Error("database migration failed", "err", err)
			os.Exit(1)
		}
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.Database.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.Database.RedisURL)
			if err != nil {
				slog.Error("invalid redis url", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, 30*time.Second)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("database url not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Engines ---
	cred := credibility.NewSystem(credibility.DefaultWeights())
	karmaSys := karma.NewSystem()
	if err := hydrate(context.Background(), st, cred, karmaSys); err != nil {
		slog.Error("engine hydration failed", "err", err)
		os.Exit(1)
	}

	// --- Asset data providers ---
	providers := assetdata.Providers{
		Stock:  assetdata.NewYahooProvider(),
		Crypto: assetdata.NewCoinGeckoProvider(),
	}

	// --- WebSocket hub ---
	wsHub := scoring.NewWSHub()
	go wsHub.Run()

	// --- Domain services ---
	tr := tracker.New(st, cred, karmaSys)
	weights := scorecalc.Weights{
		Performance:     cfg.Scoring.Weights.Performance,
		Engagement:      cfg.Scoring.Weights.Engagement,
		Credibility:     cfg.Scoring.Weights.Credibility,
		MarketRelevance: cfg.Scoring.Weights.MarketRelevance,
	}
	scorer := scoring.NewScorer(st, providers, karmaSys, tr, weights, cfg.Scoring.HistoryDays, cfg.Scoring.BatchLimit, wsHub)
	svc := scoring.NewService(st, tr, scorer, cred, karmaSys, wsHub)

	// --- Scheduler ---
	schedCtx, schedCancel := context.WithCancel(context.Background())
	defer schedCancel()
	sched := scheduler.New(schedCtx, st, tr, scorer, providers)
	if err := sched.Register(cfg.Schedule.SnapshotCron, cfg.Schedule.RescoreCron); err != nil {
		slog.Error("scheduler registration failed", "err", err)
		os.Exit(1)
	}
	sched.Start()
	defer sched.Stop()

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"score-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", svc.Routes)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("score-engine listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down score-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("score-engine stopped")
}

// hydrate loads persisted karma ledgers and credibility states into the
// in-memory engines so restarts pick up where they left off.
func hydrate(ctx context.Context, st store.Store, cred *credibility.System, k *karma.System) error {
	ledgers, err := st.ListUserKarma(ctx)
	if err != nil {
		return fmt.Errorf("load karma ledgers: %w", err)
	}
	for i := range ledgers {
		k.Restore(&ledgers[i])
	}

	states, err := st.ListCredibilityStates(ctx)
	if err != nil {
		return fmt.Errorf("load credibility states: %w", err)
	}
	for i := range states {
		cred.Restore(&states[i])
	}

	slog.Info("engines hydrated", "karma_users", len(ledgers), "credibility_users", len(states))
	return nil
}
