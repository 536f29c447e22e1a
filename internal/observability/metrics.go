package observability

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"go.uber.org/zap"
)

var (
	// ErrUnknownSeries is returned for a name that is not in the catalog.
	ErrUnknownSeries = errors.New("unknown series")
	// ErrSeriesKind is returned when an operation does not match the series type.
	ErrSeriesKind = errors.New("operation does not match series kind")
	// ErrNegativeIncrement is returned when a counter would decrease.
	ErrNegativeIncrement = errors.New("counter increment must be non-negative")
	// ErrInvalidValue is returned for NaN or infinite observations.
	ErrInvalidValue = errors.New("value must be finite")
)

// RefreshFunc updates gauges right before an exposition is rendered.
type RefreshFunc func(ctx context.Context) error

type refreshHook struct {
	name string
	fn   RefreshFunc
}

type series struct {
	spec      SeriesSpec
	counter   *prometheus.CounterVec
	histogram *prometheus.HistogramVec
	gauge     *prometheus.GaugeVec
}

// Registry is the fixed set of series the gateway exposes. All mutators are
// safe for concurrent use.
type Registry struct {
	namespace string
	prom      *prometheus.Registry
	series    map[string]*series

	mu    sync.RWMutex
	hooks []refreshHook

	logger *zap.Logger
}

// RegistryOptions configures NewRegistry.
type RegistryOptions struct {
	Namespace string
	// RuntimeCollectors adds the Go runtime and process collectors.
	RuntimeCollectors bool
}

// NewRegistry builds every series of specs up front. Duplicate names and
// malformed specs are rejected.
func NewRegistry(specs []SeriesSpec, opts RegistryOptions, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Namespace == "" {
		opts.Namespace = DefaultNamespace
	}

	r := &Registry{
		namespace: opts.Namespace,
		prom:      prometheus.NewRegistry(),
		series:    make(map[string]*series, len(specs)),
		logger:    logger,
	}

	for _, spec := range specs {
		if _, dup := r.series[spec.Name]; dup {
			return nil, fmt.Errorf("series %q declared twice", spec.Name)
		}
		s, err := r.build(spec)
		if err != nil {
			return nil, err
		}
		r.series[spec.Name] = s
	}

	if opts.RuntimeCollectors {
		if err := r.prom.Register(collectors.NewGoCollector()); err != nil {
			return nil, fmt.Errorf("failed to register go collector: %w", err)
		}
		if err := r.prom.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
			return nil, fmt.Errorf("failed to register process collector: %w", err)
		}
	}

	return r, nil
}

func (r *Registry) build(spec SeriesSpec) (*series, error) {
	s := &series{spec: spec}
	var c prometheus.Collector

	switch spec.Kind {
	case KindCounter:
		s.counter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: r.namespace,
			Name:      spec.Name,
			Help:      spec.Help,
		}, spec.Labels)
		c = s.counter
	case KindHistogram:
		buckets := spec.Buckets
		if len(buckets) == 0 {
			buckets = prometheus.DefBuckets
		}
		s.histogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: r.namespace,
			Name:      spec.Name,
			Help:      spec.Help,
			Buckets:   buckets,
		}, spec.Labels)
		c = s.histogram
	case KindGauge:
		s.gauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: r.namespace,
			Name:      spec.Name,
			Help:      spec.Help,
		}, spec.Labels)
		c = s.gauge
	default:
		return nil, fmt.Errorf("series %q: unsupported kind %q", spec.Name, spec.Kind)
	}

	if err := r.prom.Register(c); err != nil {
		return nil, fmt.Errorf("failed to register series %q: %w", spec.Name, err)
	}
	return s, nil
}

func (r *Registry) lookup(name string, kind SeriesKind) (*series, error) {
	s, ok := r.series[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSeries, name)
	}
	if s.spec.Kind != kind {
		return nil, fmt.Errorf("%w: %s is a %s", ErrSeriesKind, name, s.spec.Kind)
	}
	return s, nil
}

// Increment adds value to a counter. Labels must match the declared set
// exactly.
func (r *Registry) Increment(name string, labels prometheus.Labels, value float64) error {
	s, err := r.lookup(name, KindCounter)
	if err != nil {
		return err
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("%s: %w", name, ErrInvalidValue)
	}
	if value < 0 {
		return fmt.Errorf("%s: %w", name, ErrNegativeIncrement)
	}
	c, err := s.counter.GetMetricWith(labels)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	c.Add(value)
	return nil
}

// Observe records value in a histogram.
func (r *Registry) Observe(name string, labels prometheus.Labels, value float64) error {
	s, err := r.lookup(name, KindHistogram)
	if err != nil {
		return err
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("%s: %w", name, ErrInvalidValue)
	}
	h, err := s.histogram.GetMetricWith(labels)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	h.Observe(value)
	return nil
}

// Set overwrites a gauge.
func (r *Registry) Set(name string, labels prometheus.Labels, value float64) error {
	s, err := r.lookup(name, KindGauge)
	if err != nil {
		return err
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("%s: %w", name, ErrInvalidValue)
	}
	g, err := s.gauge.GetMetricWith(labels)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	g.Set(value)
	return nil
}

// Value reads the current value of a counter or gauge, or the sample count
// of a histogram. A label set never written reads as zero.
func (r *Registry) Value(name string, labels prometheus.Labels) (float64, error) {
	s, ok := r.series[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownSeries, name)
	}

	families, err := r.prom.Gather()
	if err != nil {
		return 0, fmt.Errorf("failed to gather metrics: %w", err)
	}
	fqName := prometheus.BuildFQName(r.namespace, "", name)
	for _, mf := range families {
		if mf.GetName() != fqName {
			continue
		}
		for _, m := range mf.GetMetric() {
			if !labelsEqual(m.GetLabel(), labels) {
				continue
			}
			switch s.spec.Kind {
			case KindCounter:
				return m.GetCounter().GetValue(), nil
			case KindHistogram:
				return float64(m.GetHistogram().GetSampleCount()), nil
			default:
				return m.GetGauge().GetValue(), nil
			}
		}
	}
	return 0, nil
}

func labelsEqual(pairs []*dto.LabelPair, labels prometheus.Labels) bool {
	if len(pairs) != len(labels) {
		return false
	}
	for _, p := range pairs {
		if v, ok := labels[p.GetName()]; !ok || v != p.GetValue() {
			return false
		}
	}
	return true
}

// Names returns the catalog names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.series))
	for n := range r.series {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Namespace returns the prefix applied to every series.
func (r *Registry) Namespace() string {
	return r.namespace
}

// Gatherer exposes the underlying registry, mainly for tests and promhttp.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.prom
}

// OnRender registers fn to run before every Render.
func (r *Registry) OnRender(name string, fn RefreshFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, refreshHook{name: name, fn: fn})
}

// Refresh runs every render hook. A failing hook is logged and leaves the
// gauges it owns at their previous values.
func (r *Registry) Refresh(ctx context.Context) {
	r.mu.RLock()
	hooks := make([]refreshHook, len(r.hooks))
	copy(hooks, r.hooks)
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := h.fn(ctx); err != nil {
			r.logger.Warn("metrics refresh failed",
				zap.String("hook", h.name),
				zap.Error(err))
		}
	}
}

// Render refreshes derived gauges and encodes every series in the text
// exposition format.
func (r *Registry) Render(ctx context.Context) (string, error) {
	r.Refresh(ctx)

	families, err := r.prom.Gather()
	if err != nil {
		return "", fmt.Errorf("failed to gather metrics: %w", err)
	}

	var buf bytes.Buffer
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return "", fmt.Errorf("failed to encode %s: %w", mf.GetName(), err)
		}
	}
	return buf.String(), nil
}

// ContentType is the media type of Render's output.
func ContentType() string {
	return string(expfmt.NewFormat(expfmt.TypeTextPlain))
}
