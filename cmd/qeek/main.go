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

	"golang.org/x/sync/errgroup"

	"qeek/internal/app"
	"qeek/internal/config"
	"qeek/internal/ratelimit"
	"qeek/internal/server"
	"qeek/internal/util"
	"qeek/pkg/ai"
	"qeek/pkg/cache"
	"qeek/pkg/notify"
	"qeek/pkg/store"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}

	util.InitLogger(cfg.LogLevel)

	aiTimeout, err := config.ParseAITimeout(cfg.AITimeout)
	if err != nil {
		util.Fatal("failed to parse ai timeout", "err", err)
	}
	sessionTTL, err := config.ParseSessionTTL(cfg.SessionTTL)
	if err != nil {
		util.Fatal("failed to parse session ttl", "err", err)
	}
	resourceTTL, err := config.ParseResourceCacheTTL(cfg.ResourceCacheTTL)
	if err != nil {
		util.Fatal("failed to parse resource cache ttl", "err", err)
	}
	sweepInterval, err := config.ParseCacheSweepInterval(cfg.CacheSweepInterval)
	if err != nil {
		util.Fatal("failed to parse cache sweep interval", "err", err)
	}

	st, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		util.Fatal("failed to init store", "err", err)
	}

	var sessions store.SessionStore
	switch cfg.SessionStrategy {
	case config.SessionStrategyJWT:
		sessions, err = store.NewJWTSessionStore(cfg.JWTSecret, sessionTTL)
		if err != nil {
			util.Fatal("failed to init jwt sessions", "err", err)
		}
	default:
		sessions = store.NewRedisSessionStore(cfg.RedisAddr, cfg.RedisPassword, sessionTTL)
	}

	// Without a credential the responder degrades to fallback replies
	// and diagnosis is skipped entirely.
	var client *ai.Client
	if cfg.OpenAIAPIKey != "" {
		client = ai.NewClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.GenerationModel, aiTimeout)
	} else {
		slog.Warn("OPENAI_API_KEY not set, running with fallback replies only")
	}

	var notifier notify.Notifier = notify.NopNotifier{}
	if cfg.RedisAddr != "" {
		notifier = notify.NewRedisNotifier(cfg.RedisAddr, cfg.RedisPassword)
	}

	readCache := cache.New(cache.WithDefaultTTL(resourceTTL))

	appCore, err := app.New(app.Config{
		Store:               st,
		Sessions:            sessions,
		Responder:           ai.NewResponder(client),
		Diagnoser:           ai.NewDiagnoser(client),
		Recommender:         ai.NewRecommender(client),
		Cache:               readCache,
		Notifier:            notifier,
		AITimeout:           aiTimeout,
		RediagnoseEveryTurn: cfg.RediagnoseEveryTurn,
		ResourceTTL:         resourceTTL,
	})
	if err != nil {
		util.Fatal("failed to init app", "err", err)
	}

	var limiter *ratelimit.FixedWindowLimiter
	if cfg.RedisAddr != "" && cfg.ChatRateLimitPerMinute > 0 {
		limiter, err = ratelimit.NewRedisFixedWindowLimiter(
			cfg.RedisAddr, cfg.RedisPassword, "qeek:ratelimit:chat", cfg.ChatRateLimitPerMinute, time.Minute)
		if err != nil {
			util.Fatal("failed to init rate limiter", "err", err)
		}
	}

	httpServer := server.New(server.Config{
		App:                   appCore,
		Limiter:               limiter,
		Production:            cfg.IsProduction(),
		AllowSeeding:          cfg.AllowSeeding,
		TrustForwardedHeaders: cfg.TrustForwardedHeaders,
	})

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
		slog.Info("qeek server listening", "addr", addr, "env", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if sweepInterval <= 0 {
			return nil
		}
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				readCache.ClearExpired()
			case <-gctx.Done():
				return nil
			}
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		// Drain background reply generation before exiting so the
		// assistant's first message is not lost.
		appCore.Wait()
		return nil
	})

	if err := g.Wait(); err != nil {
		util.Fatal("server exited", "err", err)
	}
	slog.Info("qeek server stopped")
}
