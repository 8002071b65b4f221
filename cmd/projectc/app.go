package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io/fs"
	"net/http"
	"os"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/karimd18/project-C-case-study/config"
	"github.com/karimd18/project-C-case-study/errors"
	"github.com/karimd18/project-C-case-study/prompts"
	"github.com/karimd18/project-C-case-study/server"
	"github.com/karimd18/project-C-case-study/server/auth"
	"github.com/karimd18/project-C-case-study/server/circuitbreaker"
	"github.com/karimd18/project-C-case-study/server/gateway"
	"github.com/karimd18/project-C-case-study/server/metrics"
	"github.com/karimd18/project-C-case-study/server/pipeline"
	"github.com/karimd18/project-C-case-study/server/validation"
	"github.com/karimd18/project-C-case-study/store"
)

// loadConfig reads path, or falls back to the defaults when it does not
// exist. The second result reports whether a file was read and can be
// watched. An empty API key is taken from ANTHROPIC_API_KEY.
func loadConfig(path string) (*config.Config, bool, error) {
	cfg, err := config.LoadFile(path)
	watchable := true
	if errors.Is(err, fs.ErrNotExist) {
		cfg, watchable, err = config.DefaultConfig(), false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	return cfg, watchable, nil
}

// run wires the service and serves until ctx is done. configPath may be
// empty to disable configuration reloading.
func run(ctx context.Context, cfg *config.Config, configPath string, logger *zap.Logger, level zap.AtomicLevel) error {
	repo, err := openStore(cfg.Storage)
	if err != nil {
		return err
	}
	defer repo.Close()

	m := metrics.NewMetrics()

	gw, err := newGateway(cfg, m, logger)
	if err != nil {
		return err
	}

	lib := prompts.NewLibrary(cfg.Prompts.Dir, logger)
	if cfg.Prompts.Watch && cfg.Prompts.Dir != "" {
		if err := lib.Watch(ctx); err != nil {
			logger.Warn("prompt directory watch disabled", zap.Error(err))
		}
	}

	p, err := pipeline.New(pipeline.Config{
		StageMaxTokens: cfg.LLM.StageMaxTokens,
		TitleMaxTokens: cfg.LLM.TitleMaxTokens,
	}, pipeline.Dependencies{
		Prompts:  lib,
		Gateway:  gw,
		Sessions: repo,
		History:  repo,
		Metrics:  m,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}

	authCfg := cfg.Auth
	if authCfg.JWTSecret == "" {
		authCfg.JWTSecret, err = randomSecret()
		if err != nil {
			return err
		}
		logger.Warn("no jwt_secret configured, tokens will not survive a restart")
	}
	authSvc, err := auth.NewService(authCfg, repo, logger)
	if err != nil {
		return err
	}
	if err := authSvc.SeedAdmin(ctx); err != nil {
		logger.Warn("failed to seed admin account", zap.Error(err))
	}

	v, err := validation.New(cfg.LLM, logger)
	if err != nil {
		return err
	}

	router, err := server.NewRouter(server.Dependencies{
		Config:    cfg,
		Pipeline:  p,
		Store:     repo,
		Auth:      authSvc,
		Validator: v,
		Metrics:   m,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	srv := server.NewServer(cfg.Server, router, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(gctx) })

	if configPath != "" {
		watcher, err := config.NewConfigWatcher(configPath, logger)
		if err != nil {
			logger.Warn("config reloading disabled", zap.Error(err))
		} else {
			defer watcher.Close()
			g.Go(func() error {
				watchLogLevel(gctx, watcher, level, logger)
				return nil
			})
		}
	}

	return g.Wait()
}

// openStore opens the configured storage backend.
func openStore(cfg config.StorageConfig) (store.Repository, error) {
	switch cfg.Driver {
	case "memory", "":
		return store.NewMemory(), nil
	case "sqlite":
		repo, err := store.NewSQLite(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// newGateway builds the configured LLM client behind the rate limiter and
// circuit breaker.
func newGateway(cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) (gateway.Gateway, error) {
	var base gateway.Gateway
	switch cfg.LLM.Client {
	case "anthropic":
		base = gateway.NewAnthropic(cfg.LLM, &http.Client{}, logger)
	case "gollm":
		base = gateway.NewGollm(cfg.LLM, gateway.NewGollmFactory(cfg.LLM), logger)
	default:
		return nil, fmt.Errorf("unknown llm client %q", cfg.LLM.Client)
	}

	cb := cfg.CircuitBreaker
	breaker, err := circuitbreaker.NewCircuitBreaker(circuitbreaker.Config{
		Name:             "llm_gateway",
		MaxRequests:      cb.MaxRequests,
		Interval:         cb.Interval,
		Timeout:          cb.Timeout,
		FailureThreshold: cb.FailureThreshold,
	}, logger, m.Registry())
	if err != nil {
		return nil, fmt.Errorf("create circuit breaker: %w", err)
	}

	limiter := gateway.NewLimiter(cfg.LLM.RequestsPerSecond, cfg.LLM.Burst)
	return gateway.NewGuarded(base, limiter, breaker, m, logger), nil
}

// watchLogLevel applies the log level of every reloaded configuration
// until ctx is done or the watcher closes.
func watchLogLevel(ctx context.Context, w config.Watcher, level zap.AtomicLevel, logger *zap.Logger) {
	updates := w.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-updates:
			if !ok {
				return
			}
			next, err := config.ParseLevel(cfg.Logging.Level)
			if err != nil {
				logger.Warn("ignoring reloaded log level", zap.Error(err))
				continue
			}
			if next != level.Level() {
				level.SetLevel(next)
				logger.Info("log level changed", zap.String("level", next.String()))
			}
		}
	}
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate jwt secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
