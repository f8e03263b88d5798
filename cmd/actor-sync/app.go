package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/alhumaw/MISP-tools-fork/internal/checkpoint"
	"github.com/alhumaw/MISP-tools-fork/internal/config"
	"github.com/alhumaw/MISP-tools-fork/internal/constants"
	"github.com/alhumaw/MISP-tools-fork/internal/dedup"
	"github.com/alhumaw/MISP-tools-fork/internal/importer"
	"github.com/alhumaw/MISP-tools-fork/internal/intel"
	"github.com/alhumaw/MISP-tools-fork/internal/logger"
	"github.com/alhumaw/MISP-tools-fork/internal/mapper"
	"github.com/alhumaw/MISP-tools-fork/internal/misp"
	"github.com/alhumaw/MISP-tools-fork/pkg/bootstrap"
	"github.com/alhumaw/MISP-tools-fork/pkg/circuitbreaker"
	"github.com/alhumaw/MISP-tools-fork/pkg/health"
	"github.com/alhumaw/MISP-tools-fork/pkg/metrics"
	"github.com/alhumaw/MISP-tools-fork/pkg/retry"
)

type App struct {
	*bootstrap.Base
	store  checkpoint.Store
	driver *importer.Driver
	server *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName("actor-sync")
	}
	return &App{
		Base: bootstrap.NewBase(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.initCheckpointStore(ctx); err != nil {
		return fmt.Errorf("failed to initialize checkpoint store: %w", err)
	}

	metrics.RegisterSyncMetrics()
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	if err := a.initDriver(ctx); err != nil {
		return fmt.Errorf("failed to initialize sync driver: %w", err)
	}

	if a.Config.Metrics.Enabled {
		a.initHTTPServer()
	}

	return nil
}

func (a *App) initCheckpointStore(ctx context.Context) error {
	switch a.Config.Checkpoint.Backend {
	case "redis":
		if err := a.InitRedis(ctx); err != nil {
			return err
		}
		key := a.Config.Checkpoint.RedisKey
		if key == "" {
			key = constants.CheckpointRedisKey
		}
		a.store = checkpoint.NewRedisStore(a.Redis, key, a.Logger)
	default:
		a.store = checkpoint.NewFileStore(a.Config.Checkpoint.FilePath, a.Logger)
	}
	return nil
}

func (a *App) initDriver(ctx context.Context) error {
	mispClient := misp.NewHTTPClient(misp.HTTPClientOptions{
		BaseURL:     a.Config.MISP.URL,
		AuthKey:     a.Config.MISP.AuthKey,
		ThreadCount: a.Config.MISP.ThreadCount,
	}, a.Logger)

	intelClient := intel.NewFalconClient(intel.FalconClientOptions{
		BaseURL:      a.Config.Intel.BaseURL,
		ClientID:     a.Config.Intel.ClientID,
		ClientSecret: a.Config.Intel.ClientSecret,
	}, a.Logger)

	org, err := mispClient.GetOrganisation(ctx, a.Config.MISP.OrgUUID)
	if err != nil {
		return fmt.Errorf("failed to resolve owning organisation: %w", err)
	}

	var limiter *rate.Limiter
	if a.Config.RateLimit.Enabled {
		limiter = rate.NewLimiter(rate.Limit(a.Config.RateLimit.RPS), a.Config.RateLimit.Burst)
	}

	var breaker *circuitbreaker.Wrapper
	if a.Config.CircuitBreaker.Enabled {
		cbCfg := circuitbreaker.DefaultConfig("misp-import")
		if a.Config.CircuitBreaker.MaxRequests > 0 {
			cbCfg.MaxRequests = a.Config.CircuitBreaker.MaxRequests
		}
		if a.Config.CircuitBreaker.Interval > 0 {
			cbCfg.Interval = a.Config.CircuitBreaker.Interval
		}
		if a.Config.CircuitBreaker.Timeout > 0 {
			cbCfg.Timeout = a.Config.CircuitBreaker.Timeout
		}
		breaker = circuitbreaker.NewWrapper(cbCfg)
	}

	opts := importer.Options{
		ActorKind:    a.Config.Intel.ActorKind,
		LookbackDays: a.Config.Sync.LookbackDays,
		Publish:      a.Config.Sync.Publish,
		Mapper: mapper.Config{
			VerboseTags:   a.Config.Sync.VerboseTags,
			Publish:       a.Config.Sync.Publish,
			UnknownRegion: a.Config.Sync.UnknownRegion,
			StaticTags:    a.Config.Tagging.StaticTags,
			Taxonomic:     a.Config.Tagging.Taxonomic,
		},
		Retry: retry.Policy{
			MaxAttempts:     a.Config.Retry.MaxAttempts,
			InitialInterval: a.Config.Retry.InitialInterval,
			MaxInterval:     a.Config.Retry.MaxInterval,
			Multiplier:      a.Config.Retry.Multiplier,
		},
		Limiter: limiter,
		Breaker: breaker,
	}

	a.driver = importer.NewDriver(intelClient, mispClient, a.store, dedup.NewIndex(), org, opts, a.Logger)
	return nil
}

func (a *App) initHTTPServer() {
	mux := http.NewServeMux()

	healthRegistry := health.NewCheckerRegistry()
	if a.Redis != nil {
		healthRegistry.Register(health.NewRedisChecker(a.Redis))
	}

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		h := healthRegistry.Check(r.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		fmt.Fprintf(w, `{"status":"%s","timestamp":"%s"}`, h.Status, h.Timestamp.Format(time.RFC3339))
	})

	mux.Handle("/metrics", promhttp.Handler())

	a.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.Config.Metrics.Port),
		Handler: mux,
	}
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	if a.server != nil {
		g.Go(func() error {
			a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Metrics.Port)
			if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		defer a.stopServer()
		return a.driver.Run(gCtx)
	})

	return g.Wait()
}

func (a *App) stopServer() {
	if a.server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.Logger.Warnw("HTTP server shutdown error", "error", err)
	}
}

func (a *App) Shutdown(ctx context.Context) error {
	return a.Base.Shutdown(ctx, nil)
}
