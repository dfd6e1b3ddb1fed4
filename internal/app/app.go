// internal/app/app.go
package app

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Corphon/shakescript/internal/api"
	"github.com/Corphon/shakescript/internal/config"
	"github.com/Corphon/shakescript/internal/models"
	"github.com/Corphon/shakescript/internal/services"
	"github.com/Corphon/shakescript/internal/storage"
	"github.com/Corphon/shakescript/internal/storyapi"
	"github.com/Corphon/shakescript/internal/utils"
)

const (
	shutdownTimeout = 30 * time.Second

	progressCleanupInterval = 5 * time.Minute
	progressMaxAge          = 30 * time.Minute

	// story submissions per client
	generatePerMinute = 10
	generateBurst     = 3

	// the list cache only ever holds one key
	listCacheCapacity = 4
)

// App wires the services behind the web server
type App struct {
	config *config.Config
	logger *zap.Logger

	registry *prometheus.Registry
	redis    *redis.Client

	Sessions *services.SessionService
	Progress *services.ProgressService
	Stories  *services.StoryService
	Library  *services.LibraryService
	hub      *api.StatusHub

	router *gin.Engine
	server *http.Server
}

// Options overrides pieces of the wiring, mostly for tests
type Options struct {
	HTTPClient *http.Client
}

// New builds the application from cfg. The caller owns logger.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Options) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}

	a := &App{config: cfg, logger: logger}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := utils.NewMetrics(a.registry)

	client := storyapi.New(storyapi.Options{
		BaseURL:    cfg.APIBaseURL,
		Timeout:    cfg.APITimeout,
		RateLimit:  cfg.APIRateLimit,
		RateBurst:  cfg.APIRateBurst,
		HTTPClient: o.HTTPClient,
		Logger:     logger,
		Metrics:    metrics,
	})

	lists, details, err := a.buildCaches(ctx, metrics)
	if err != nil {
		return nil, err
	}

	a.Library = services.NewLibraryService(client, lists, details, logger)
	a.Progress = services.NewProgressService()
	a.Stories = services.NewStoryService(client, a.Library, a.Progress, metrics, logger, services.StoryServiceConfig{
		CompensateOnFailure: cfg.CompensateOnFailure,
		Timeout:             cfg.APITimeout,
	})
	a.Sessions = services.NewSessionService(cfg.SessionTTL)
	a.hub = api.NewStatusHub(a.Progress, metrics, logger)

	handler := api.NewHandler(
		a.Library,
		a.Stories,
		a.Sessions,
		services.NewExportService(a.Library),
		services.NewStatsService(),
		a.hub,
		logger,
	)
	handler.SecureCookies = !cfg.DebugMode

	a.router, err = api.NewRouter(handler, api.RouterOptions{
		Logger:          logger,
		Gatherer:        a.registry,
		GenerateLimiter: api.NewRateLimiter(generatePerMinute, generateBurst),
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to build router: %w", err)
	}

	a.server = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("application initialized",
		zap.String("api_base_url", cfg.APIBaseURL),
		zap.String("cache_backend", cfg.CacheBackend),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Bool("compensate_on_failure", cfg.CompensateOnFailure))
	return a, nil
}

func (a *App) buildCaches(ctx context.Context, metrics *utils.Metrics) (storage.Cache[[]models.StorySummary], storage.Cache[models.StoryDetail], error) {
	cfg := a.config
	listOpts := []storage.Option{storage.WithName("stories"), storage.WithMetrics(metrics), storage.WithLogger(a.logger)}
	detailOpts := []storage.Option{storage.WithName("story"), storage.WithMetrics(metrics), storage.WithLogger(a.logger)}

	if cfg.CacheBackend == config.CacheBackendRedis {
		client, err := storage.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect cache backend: %w", err)
		}
		a.redis = client
		return storage.NewRedisCache[[]models.StorySummary](client, "shakescript:stories:", cfg.CacheTTL, listOpts...),
			storage.NewRedisCache[models.StoryDetail](client, "shakescript:story:", cfg.CacheTTL, detailOpts...),
			nil
	}

	lists, err := storage.NewResponseCache[[]models.StorySummary](listCacheCapacity, cfg.CacheTTL, listOpts...)
	if err != nil {
		return nil, nil, err
	}
	details, err := storage.NewResponseCache[models.StoryDetail](cfg.CacheCapacity, cfg.CacheTTL, detailOpts...)
	if err != nil {
		return nil, nil, err
	}
	return lists, details, nil
}

// Handler exposes the router
func (a *App) Handler() http.Handler {
	return a.router
}

// Registry exposes the metrics registry
func (a *App) Registry() *prometheus.Registry {
	return a.registry
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully
func (a *App) Run(ctx context.Context) error {
	cleanupCtx, stopCleanup := context.WithCancel(ctx)
	defer stopCleanup()
	go a.Progress.RunCleanup(cleanupCtx, progressCleanupInterval, progressMaxAge)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server listening", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// websockets are hijacked and not tracked by Shutdown
	a.hub.Close()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	<-errCh
	a.logger.Info("server stopped")
	return nil
}

// Close releases background workers and connections. Safe to call twice.
func (a *App) Close() {
	if a.Stories != nil {
		a.Stories.Close()
	}
	if a.hub != nil {
		a.hub.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && !stderrors.Is(err, redis.ErrClosed) {
			a.logger.Warn("failed to close redis client", zap.Error(err))
		}
		a.redis = nil
	}
}
