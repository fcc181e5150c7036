// Command chatrelayd runs the chat relay HTTP server.
//
// Configuration comes from an optional YAML/JSON file named by RELAY_CONFIG,
// overlaid with environment variables (BASE_URL, API_KEY, MODEL_NAME,
// REDIS_ADDR, CACHE_TTL, PORT, ...). Environment values win.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	chatrelay "github.com/quill-labs/chat-relay"
	"github.com/quill-labs/chat-relay/inference"
	"github.com/quill-labs/chat-relay/internal/cache"
	"github.com/quill-labs/chat-relay/internal/circuitbreaker"
	"github.com/quill-labs/chat-relay/internal/logging"
	"github.com/quill-labs/chat-relay/internal/requestlog"
	"github.com/quill-labs/chat-relay/internal/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "chatrelayd:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := &chatrelay.Config{}
	if path := os.Getenv("RELAY_CONFIG"); path != "" {
		loaded, err := chatrelay.LoadConfig(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if err := chatrelay.ApplyEnv(cfg); err != nil {
		return err
	}
	if err := chatrelay.ValidateConfig(*cfg); err != nil {
		return err
	}

	logging.Setup(cfg.Log.Level, cfg.Log.Format)
	log := logging.Logger
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := buildCache(ctx, *cfg, log)
	defer store.Close()

	client, err := buildClient(*cfg)
	if err != nil {
		return err
	}

	relay, err := chatrelay.New(*cfg, store, client)
	if err != nil {
		return err
	}

	if writer, err := buildRequestLog(*cfg); err != nil {
		log.Warn("request log disabled", "error", err.Error())
	} else if writer != nil {
		relay.AddHook(chatrelay.LogHook(writer))
	}

	var corsOrigins []string
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		corsOrigins = strings.Split(origins, ",")
	}

	port := cfg.Server.Port
	if port == 0 {
		port = chatrelay.DefaultPort
	}
	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      newRouter(relay, corsOrigins),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown error", "error", err.Error())
		}
	}()

	log.Info("chat relay listening",
		"version", version.Short(),
		"addr", addr,
		"model", cfg.Inference.Model,
		"cache_ttl", relay.TTL().String(),
	)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stop()
		return err
	}
	log.Info("server stopped")
	return nil
}

// buildCache constructs the configured cache backend. An unreachable Redis at
// startup degrades to the in-memory cache instead of refusing to boot; the
// relay must keep answering even without its shared cache.
func buildCache(ctx context.Context, cfg chatrelay.Config, log *slog.Logger) cache.Cache {
	backend := strings.ToLower(cfg.Cache.Backend)
	if backend == "" {
		if cfg.Cache.Addr != "" {
			backend = "redis"
		} else {
			backend = "memory"
		}
	}
	if backend == "memory" {
		log.Info("using in-memory cache", "max_entries", cfg.Cache.MaxEntries)
		return cache.NewMemory(cfg.Cache.MaxEntries)
	}

	store, err := cache.NewRedis(ctx, cache.RedisOptions{
		Addr:      cfg.Cache.Addr,
		Password:  cfg.Cache.Password,
		DB:        cfg.Cache.DB,
		Namespace: cfg.Cache.Namespace,
	})
	if err != nil {
		log.Warn("redis unreachable at startup, degrading to in-memory cache",
			"addr", cfg.Cache.Addr,
			"error", err.Error(),
		)
		return cache.NewMemory(cfg.Cache.MaxEntries)
	}
	log.Info("connected to redis cache", "addr", cfg.Cache.Addr)
	return store
}

func buildClient(cfg chatrelay.Config) (inference.Client, error) {
	backoff, err := cfg.Inference.Retry.BackoffDuration()
	if err != nil {
		return nil, err
	}
	client, err := inference.NewOpenAI(inference.OpenAIOptions{
		APIKey:       cfg.Inference.APIKey,
		BaseURL:      cfg.Inference.BaseURL,
		DefaultModel: cfg.Inference.Model,
		SystemPrompt: cfg.Inference.SystemPrompt,
		MaxTokens:    cfg.Inference.MaxTokens,
		Temperature:  cfg.Inference.Temperature,
		Retry: inference.RetryPolicy{
			Attempts:    cfg.Inference.Retry.Attempts,
			BaseBackoff: backoff,
		},
	})
	if err != nil {
		return nil, err
	}
	if !cfg.Breaker.Enabled {
		return client, nil
	}

	cooldown, err := cfg.Breaker.CooldownDuration()
	if err != nil {
		return nil, err
	}
	breaker := circuitbreaker.New(circuitbreaker.Options{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
		Cooldown:         cooldown,
	})
	return inference.WithBreaker(client, breaker), nil
}

func buildRequestLog(cfg chatrelay.Config) (requestlog.Writer, error) {
	switch strings.ToLower(cfg.RequestLog.Driver) {
	case "", "none":
		return nil, nil
	case "sqlite":
		return requestlog.NewSQLiteWriter(cfg.RequestLog.DSN)
	case "postgres":
		return requestlog.NewPostgresWriter(cfg.RequestLog.DSN)
	default:
		return nil, fmt.Errorf("unknown request log driver %q", cfg.RequestLog.Driver)
	}
}
