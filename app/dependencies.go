package app

import (
	"context"
	"fmt"
	"net/http/httputil"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/upb/inference-observe/config"
	"github.com/upb/inference-observe/internal/classify"
	"github.com/upb/inference-observe/internal/extract"
	"github.com/upb/inference-observe/internal/observability"
	"github.com/upb/inference-observe/internal/sla"
	"github.com/upb/inference-observe/internal/tenant"
	"github.com/upb/inference-observe/middleware"
	"go.uber.org/zap"
)

// Version is reported by the health endpoints.
const Version = "1.0.0"

// ServiceName identifies this gateway in health responses.
const ServiceName = "inference-observe"

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger

	// Metrics
	Registry  *observability.Registry
	Recorder  *observability.Recorder
	History   *observability.RequestLog
	Collector *observability.SystemCollector

	// Request pipeline
	Resolver          *tenant.Resolver
	Classifier        *classify.Classifier
	Extractor         *extract.Extractor
	ObserveMiddleware *middleware.ObserveMiddleware

	// Upstream is nil when no upstream URL is configured
	Upstream *httputil.ReverseProxy

	// Identity
	InstanceID string
	StartedAt  time.Time

	closeOnce sync.Once
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	deps := &Dependencies{
		Config:     cfg,
		Logger:     logger,
		InstanceID: uuid.NewString(),
		StartedAt:  time.Now(),
	}

	// Initialize metrics registry, recorder and collector
	if err := deps.initObservability(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize observability: %w", err)
	}

	// Initialize tenant resolution, classification and extraction
	deps.initPipeline(cfg)

	// Initialize upstream proxy
	proxy, err := NewUpstreamProxy(cfg.Upstream, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize upstream proxy: %w", err)
	}
	deps.Upstream = proxy
	if proxy == nil {
		logger.Warn("no upstream configured, unmatched routes will return 404")
	}

	logger.Info("all dependencies initialized successfully",
		zap.String("instance_id", deps.InstanceID),
		zap.Bool("observe_enabled", cfg.Observe.Enabled),
		zap.String("metrics_namespace", deps.Registry.Namespace()))
	return deps, nil
}

// initObservability builds the registry and everything that writes to it
func (d *Dependencies) initObservability(cfg *config.Config) error {
	registry, err := observability.NewRegistry(observability.Catalog(), observability.RegistryOptions{
		Namespace:         cfg.Observe.MetricsNamespace,
		RuntimeCollectors: true,
	}, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create metrics registry: %w", err)
	}

	d.Registry = registry
	d.History = observability.NewRequestLog(cfg.Observe.MaxCompletedRequests)
	d.Recorder = observability.NewRecorder(registry, sla.NewEstimator(), d.History, d.Logger)
	d.Collector = observability.NewSystemCollector(registry, d.Recorder, nil, observability.SystemCollectorConfig{
		Enabled:         cfg.Observe.CollectSystemMetrics,
		SystemInterval:  cfg.Observe.SystemMetricsInterval,
		DerivedInterval: cfg.Observe.MetricsUpdateInterval,
	}, d.Logger)

	// Quota gauges are published once for each configured customer
	if err := d.Recorder.InitQuotas(cfg.Observe.Customers, cfg.Observe.Quotas.QuotaMap()); err != nil {
		return fmt.Errorf("failed to initialize quota gauges: %w", err)
	}

	d.Logger.Info("metrics registry initialized",
		zap.Int("series", len(registry.Names())),
		zap.Bool("system_metrics", cfg.Observe.CollectSystemMetrics))
	return nil
}

// initPipeline builds the components the observe middleware runs per request
func (d *Dependencies) initPipeline(cfg *config.Config) {
	d.Resolver = tenant.NewResolver(cfg.Observe.OrganizationPool, d.Logger)
	d.Classifier = classify.New(cfg.Observe.PipelinePath, nil)
	d.Extractor = extract.New(extract.Options{
		FetchRemote:  cfg.Observe.OCRFetchEnabled,
		FetchTimeout: cfg.Observe.OCRFetchTimeout,
	}, d.Logger)
	d.ObserveMiddleware = middleware.NewObserveMiddleware(
		middleware.ObserveConfig{
			Enabled:           cfg.Observe.Enabled,
			MaxBodyBytes:      cfg.Observe.MaxBodyBytes,
			MaxAudioBodyBytes: cfg.Observe.MaxAudioBodyBytes,
		},
		d.Resolver,
		d.Classifier,
		d.Extractor,
		d.Recorder,
		d.Logger,
	)
}

// Uptime returns the time since the dependencies were created
func (d *Dependencies) Uptime() time.Duration {
	return time.Since(d.StartedAt)
}

// Close gracefully shuts down all dependencies. It is safe to call twice.
func (d *Dependencies) Close(ctx context.Context) error {
	d.closeOnce.Do(func() {
		d.Logger.Info("shutting down dependencies",
			zap.Uint64("requests_observed", d.History.Total()))

		// Sync logger
		_ = d.Logger.Sync()
	})
	return nil
}
