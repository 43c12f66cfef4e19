package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"libraryapi/internal/ratelimit"
	"libraryapi/internal/util"
	"libraryapi/pkg/domain"
	"libraryapi/pkg/events"
	"libraryapi/pkg/store"
	"libraryapi/services/library/internal/app"
	"libraryapi/services/library/internal/config"
	"libraryapi/services/library/internal/security"
	"libraryapi/services/library/internal/server"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		util.Fatal("failed to load config", "err", err)
	}
	logger := util.InitLogger(cfg.LogLevel)

	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				logger.Warn("close failed", "err", err)
			}
		}
	}()

	db, err := openStore(cfg)
	if err != nil {
		util.Fatal("failed to open store", "driver", cfg.DatabaseDriver, "err", err)
	}
	closers = append(closers, db)

	seeded, err := store.SeedUsers(context.Background(), db, seedUsers(cfg.SeedUsers))
	if err != nil {
		util.Fatal("failed to seed users", "err", err)
	}
	if seeded > 0 {
		logger.Info("seeded users", "count", seeded)
	}

	revoker := newRevoker(cfg)
	if c, ok := revoker.(io.Closer); ok {
		closers = append(closers, c)
	}
	sessions, err := newSessionStore(cfg, revoker)
	if err != nil {
		util.Fatal("failed to init session store", "err", err)
	}

	publisher, err := newPublisher(cfg)
	if err != nil {
		util.Fatal("failed to init event publisher", "err", err)
	}
	if c, ok := publisher.(io.Closer); ok {
		closers = append(closers, c)
	}

	appCore, err := app.New(app.Config{
		Books:    db,
		Users:    db,
		Sessions: sessions,
		Events:   publisher,
	})
	if err != nil {
		util.Fatal("failed to init app", "err", err)
	}

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		util.Fatal("failed to parse trusted proxies", "err", err)
	}
	srvCfg := server.Config{
		App:                appCore,
		TrustedProxies:     trusted,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		ExposeErrorDetail:  cfg.ExposeErrorDetail,
	}
	if cfg.RedisAddr != "" && cfg.LoginRateLimit() > 0 {
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, ratelimit.DefaultPrefix, cfg.LoginRateLimit(), time.Minute)
		if err != nil {
			util.Fatal("failed to init login rate limiter", "err", err)
		}
		closers = append(closers, limiter)
		srvCfg.LoginLimiter = limiter
	}
	if alerter := security.NewAuditAlerter(cfg.RedisAddr, cfg.RedisPassword, security.DefaultPrefix); alerter != nil {
		closers = append(closers, alerter)
		srvCfg.Alerter = alerter
	}
	httpServer, err := server.New(srvCfg)
	if err != nil {
		util.Fatal("failed to init server", "err", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("library server listening", "addr", addr, "driver", cfg.DatabaseDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("server error", "err", err)
	}
}

func openStore(cfg config.FileConfig) (store.Store, error) {
	switch cfg.DatabaseDriver {
	case config.DriverPostgres:
		return store.NewGormStore(cfg.DatabaseURL)
	case config.DriverSQLite:
		return store.NewSQLiteStore(cfg.DatabaseURL)
	case config.DriverMemory:
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.DatabaseDriver)
	}
}

func seedUsers(in []config.SeedUser) []store.SeedUser {
	out := make([]store.SeedUser, 0, len(in))
	for _, u := range in {
		out = append(out, store.SeedUser{
			Username: u.Username,
			Email:    u.Email,
			Password: u.Password,
			Role:     domain.UserRole(u.Role),
		})
	}
	return out
}

func newRevoker(cfg config.FileConfig) store.TokenRevoker {
	if cfg.RedisAddr != "" {
		return store.NewRedisTokenRevoker(cfg.RedisAddr, cfg.RedisPassword)
	}
	return store.NewMemoryTokenRevoker()
}

func newSessionStore(cfg config.FileConfig, revoker store.TokenRevoker) (store.SessionStore, error) {
	ttl, err := cfg.SessionTTLDuration()
	if err != nil {
		return nil, err
	}
	leeway, err := cfg.JWTLeewayDuration()
	if err != nil {
		return nil, err
	}
	opts := store.JWTOptions{Issuer: cfg.JWTIssuer, Audience: cfg.JWTAudience, Leeway: leeway}
	if cfg.JWTPrivateKeyPath != "" {
		return store.NewJWTRS256SessionStoreFromPEM(
			cfg.JWTPrivateKeyPath,
			cfg.JWTPublicKeyPath,
			cfg.JWTKeyID,
			cfg.JWTVerifyPublicKeys,
			ttl,
			revoker,
			opts,
		)
	}
	return store.NewJWTHS256SessionStore(cfg.JWTSigningKey, ttl, revoker, opts)
}

func newPublisher(cfg config.FileConfig) (events.Publisher, error) {
	switch {
	case cfg.RabbitURL != "":
		return events.NewAMQPPublisher(cfg.RabbitURL, cfg.EventsExchange)
	case cfg.EventsRedisStream != "" && cfg.RedisAddr != "":
		return events.NewRedisStreamPublisher(events.RedisStreamConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Stream:   cfg.EventsRedisStream,
		})
	default:
		return events.NopPublisher{}, nil
	}
}
