package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"example.com/deathgame/internal/auth"
	"example.com/deathgame/internal/config"
	"example.com/deathgame/internal/game"
	"example.com/deathgame/internal/httpapi"
	"example.com/deathgame/internal/store"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

type App struct {
	cfg config.Config
	log *slog.Logger

	db  *pgxpool.Pool
	rdb *redis.Client

	srv *http.Server
}

func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}

	// --- Postgres ---
	dbpool, err := pgxpool.New(ctx, cfg.Postgres.URL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}

	// --- Redis ---
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
		DB:   cfg.Redis.DB,
	})

	// Quick connectivity checks (fail fast).
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := dbpool.Ping(pingCtx); err != nil {
		dbpool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		dbpool.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping (%s db=%d): %w", cfg.Redis.Addr, cfg.Redis.DB, err)
	}

	// --- Auth service ---
	authSvc := auth.NewService([]byte(cfg.Auth.Secret))

	// --- Stores ---
	users := store.NewUserStore(dbpool)
	stats := store.NewStatsStore(dbpool)

	authH := &httpapi.AuthHandler{
		Users:    users,
		Stats:    stats,
		Auth:     authSvc,
		TokenTTL: cfg.Auth.TokenTTL,
	}

	// --- Game ---
	gameCfg := game.Config{
		RoundDuration:        cfg.Game.RoundDuration,
		NewRuleRoundDuration: cfg.Game.NewRuleRoundDuration,
	}
	persist := game.NewRedisRoomStore(rdb, cfg.Redis.RoomTTL)
	registry := game.NewRegistry(gameCfg, persist, statsRecorder{stats: stats}, log)
	gameSrv := game.NewServer(registry, authSvc, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	gameSrv.RegisterRoutes(mux)

	// --- auth routes ---
	mux.HandleFunc("/api/auth/register", authH.Register)
	mux.HandleFunc("/api/auth/login", authH.Login)
	mux.HandleFunc("/api/auth/guest", authH.Guest)
	mux.Handle("/api/me", httpapi.AuthMiddleware(authSvc)(http.HandlerFunc(authH.Me)))

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}

	return &App{cfg: cfg, log: log, db: dbpool, rdb: rdb, srv: srv}, nil
}

func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	a.log.Info("http server starting", "addr", a.cfg.HTTP.Addr)

	g.Go(func() error {
		err := a.srv.ListenAndServe()
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		a.log.Info("http server shutting down")
		_ = a.srv.Shutdown(shutdownCtx)
		return nil
	})

	err := g.Wait()
	_ = a.Close(context.Background())
	return err
}

func (a *App) Close(ctx context.Context) error {
	// best-effort
	if a.db != nil {
		a.db.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	return nil
}

// statsRecorder adapts the pgx stats store to the engine's recorder hook.
// Bots and guests have no account, so only registered results land in the db.
type statsRecorder struct {
	stats *store.StatsStore
}

func (r statsRecorder) RecordGameResults(ctx context.Context, results []game.PlayerGameResult) error {
	var firstErr error
	for _, res := range results {
		if res.IsBot || res.UserID == "" || strings.HasPrefix(res.UserID, "guest-") {
			continue
		}
		if err := r.stats.RecordResult(ctx, res.UserID, res.Won); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
