package observability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"go.uber.org/zap"
)

// SystemSample is one reading of host utilisation.
type SystemSample struct {
	CPUPercent    float64
	MemoryPercent float64
}

// SystemSampler reads host utilisation.
type SystemSampler interface {
	Sample(ctx context.Context) (SystemSample, error)
}

// HostSampler samples the local host through gopsutil.
type HostSampler struct{}

// Sample returns CPU utilisation since the previous call and current memory
// utilisation.
func (HostSampler) Sample(ctx context.Context) (SystemSample, error) {
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return SystemSample{}, fmt.Errorf("failed to read cpu usage: %w", err)
	}
	if len(percents) == 0 {
		return SystemSample{}, errors.New("cpu usage unavailable")
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return SystemSample{}, fmt.Errorf("failed to read memory usage: %w", err)
	}
	return SystemSample{CPUPercent: percents[0], MemoryPercent: vm.UsedPercent}, nil
}

// SystemCollectorConfig sets the refresh cadence of SystemCollector.Run.
type SystemCollectorConfig struct {
	// Enabled turns host sampling on. Derived gauges refresh regardless.
	Enabled         bool
	SystemInterval  time.Duration
	DerivedInterval time.Duration
}

// SystemCollector keeps the system gauges current.
type SystemCollector struct {
	registry *Registry
	recorder *Recorder
	sampler  SystemSampler
	cfg      SystemCollectorConfig
	logger   *zap.Logger
}

// NewSystemCollector creates a collector. A nil sampler selects HostSampler.
func NewSystemCollector(registry *Registry, recorder *Recorder, sampler SystemSampler, cfg SystemCollectorConfig, logger *zap.Logger) *SystemCollector {
	if sampler == nil {
		sampler = HostSampler{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SystemInterval <= 0 {
		cfg.SystemInterval = 15 * time.Second
	}
	if cfg.DerivedInterval <= 0 {
		cfg.DerivedInterval = 10 * time.Second
	}
	c := &SystemCollector{
		registry: registry,
		recorder: recorder,
		sampler:  sampler,
		cfg:      cfg,
		logger:   logger,
	}
	if cfg.Enabled {
		registry.OnRender("system", c.Refresh)
	}
	return c
}

// Refresh samples the host once and sets the CPU and memory gauges. On
// failure the gauges keep their previous values.
func (c *SystemCollector) Refresh(ctx context.Context) error {
	s, err := c.sampler.Sample(ctx)
	if err != nil {
		return err
	}
	return errors.Join(
		c.registry.Set(SystemCPUPercent, nil, s.CPUPercent),
		c.registry.Set(SystemMemoryPercent, nil, s.MemoryPercent),
	)
}

// Run refreshes system gauges and derived gauges on their own tickers until
// ctx is done. It always returns nil so it can sit in an errgroup.
func (c *SystemCollector) Run(ctx context.Context) error {
	derived := time.NewTicker(c.cfg.DerivedInterval)
	defer derived.Stop()

	var systemC <-chan time.Time
	if c.cfg.Enabled {
		system := time.NewTicker(c.cfg.SystemInterval)
		defer system.Stop()
		systemC = system.C
		c.refreshSystem(ctx)
	}

	c.logger.Info("metrics collector started",
		zap.Bool("system_metrics", c.cfg.Enabled),
		zap.Duration("system_interval", c.cfg.SystemInterval),
		zap.Duration("derived_interval", c.cfg.DerivedInterval))

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("metrics collector stopped")
			return nil
		case <-systemC:
			c.refreshSystem(ctx)
		case <-derived.C:
			if c.recorder == nil {
				continue
			}
			if err := c.recorder.RefreshDerived(ctx); err != nil {
				c.logger.Warn("failed to refresh derived metrics", zap.Error(err))
			}
		}
	}
}

func (c *SystemCollector) refreshSystem(ctx context.Context) {
	if err := c.Refresh(ctx); err != nil {
		c.logger.Warn("failed to refresh system metrics", zap.Error(err))
	}
}
