package observability

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/upb/inference-observe/internal/classify"
	"github.com/upb/inference-observe/internal/extract"
	"github.com/upb/inference-observe/internal/sla"
	"github.com/upb/inference-observe/internal/tenant"
	"go.uber.org/zap"
)

// Error taxonomy values of errors_total.
const (
	ClientError  = "client_error"
	ServerError  = "server_error"
	UnknownError = "unknown_error"
)

// DefaultQuota is the monthly quota assumed when none is configured.
const DefaultQuota = 1_000_000

// Observation is everything known about one finished request.
type Observation struct {
	RequestID  string
	Tenant     tenant.Context
	Method     string
	Endpoint   string
	StatusCode int
	Service    classify.ServiceType
	Duration   time.Duration
	Usage      extract.Measurement
	At         time.Time
}

type tenantStats struct {
	requests      int64
	serverErrors  int64
	totalDuration float64
}

// Recorder turns observations into metric updates and keeps the per-tenant
// aggregates behind the derived SLA gauges.
type Recorder struct {
	registry   *Registry
	estimator  *sla.Estimator
	throughput *ThroughputTracker
	history    *RequestLog
	logger     *zap.Logger

	mu       sync.Mutex
	tenants  map[tenant.Context]*tenantStats
	services map[classify.ServiceType]struct{}
}

// NewRecorder wires a Recorder to its registry. history may be nil.
func NewRecorder(registry *Registry, estimator *sla.Estimator, history *RequestLog, logger *zap.Logger) *Recorder {
	if estimator == nil {
		estimator = sla.NewEstimator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Recorder{
		registry:   registry,
		estimator:  estimator,
		throughput: NewThroughputTracker(),
		history:    history,
		logger:     logger,
		tenants:    make(map[tenant.Context]*tenantStats),
		services:   make(map[classify.ServiceType]struct{}),
	}
	registry.OnRender("derived", r.RefreshDerived)
	return r
}

// Record applies one observation. Every update is attempted; failures are
// joined into the returned error.
func (r *Recorder) Record(obs Observation) error {
	if obs.At.IsZero() {
		obs.At = time.Now()
	}
	org, app := obs.Tenant.Organization, obs.Tenant.App
	status := strconv.Itoa(obs.StatusCode)
	seconds := obs.Duration.Seconds()
	service := obs.Service.String()

	var errs []error
	errs = append(errs,
		r.registry.Increment(RequestsTotal, prometheus.Labels{
			LabelOrganization: org, LabelApp: app,
			LabelMethod: obs.Method, LabelEndpoint: obs.Endpoint, LabelStatusCode: status,
		}, 1),
		r.registry.Observe(RequestDuration, prometheus.Labels{
			LabelOrganization: org, LabelApp: app,
			LabelMethod: obs.Method, LabelEndpoint: obs.Endpoint,
		}, seconds),
		r.registry.Increment(ServiceRequestsTotal, prometheus.Labels{
			LabelOrganization: org, LabelApp: app, LabelServiceType: service,
		}, 1),
		r.registry.Observe(ComponentLatency, prometheus.Labels{
			LabelOrganization: org, LabelApp: app, LabelComponent: service,
		}, seconds),
		r.registry.Set(SLACompliance, prometheus.Labels{
			LabelOrganization: org, LabelApp: app, LabelSLAType: sla.SLAType(obs.Service),
		}, r.estimator.Compliance(obs.Service, seconds)),
	)

	if obs.StatusCode >= 400 {
		errs = append(errs, r.registry.Increment(ErrorsTotal, prometheus.Labels{
			LabelOrganization: org, LabelApp: app,
			LabelEndpoint: obs.Endpoint, LabelStatusCode: status, LabelErrorType: ErrorType(obs.StatusCode),
		}, 1))
	}

	if obs.Usage.Quantity > 0 {
		errs = append(errs, r.recordUsage(obs)...)
	}

	errs = append(errs, r.updateTenant(obs.Tenant, obs.StatusCode, seconds))

	r.throughput.Add(obs.At)
	r.mu.Lock()
	r.services[obs.Service] = struct{}{}
	r.mu.Unlock()

	if r.history != nil {
		r.history.Add(CompletedRequest{
			RequestID:       obs.RequestID,
			Timestamp:       obs.At.UTC(),
			Organization:    org,
			App:             app,
			Method:          obs.Method,
			Endpoint:        obs.Endpoint,
			ServiceType:     service,
			StatusCode:      obs.StatusCode,
			DurationSeconds: seconds,
			UsageKind:       string(obs.Usage.Kind),
			UsageQuantity:   obs.Usage.Quantity,
		})
	}

	return errors.Join(errs...)
}

func (r *Recorder) recordUsage(obs Observation) []error {
	u, ok := UsageSeriesFor(obs.Service)
	if !ok {
		return nil
	}
	labels := prometheus.Labels{
		LabelOrganization: obs.Tenant.Organization,
		LabelApp:          obs.Tenant.App,
	}
	switch {
	case obs.Service == classify.LLM:
		labels[LabelModel] = obs.Usage.Model
	case u.LanguageLabels == "language":
		labels[LabelLanguage] = obs.Usage.SourceLanguage
	case u.LanguageLabels == "pair":
		labels[LabelSourceLanguage] = obs.Usage.SourceLanguage
		labels[LabelTargetLanguage] = obs.Usage.TargetLanguage
	}

	record := r.registry.Observe
	if u.Kind == KindCounter {
		record = r.registry.Increment
	}
	return []error{
		record(u.Name, labels, obs.Usage.Quantity),
		r.registry.Increment(DataProcessedTotal, prometheus.Labels{
			LabelOrganization: obs.Tenant.Organization,
			LabelApp:          obs.Tenant.App,
			LabelDataType:     obs.Service.String() + "_" + string(obs.Usage.Kind),
		}, obs.Usage.Quantity),
	}
}

func (r *Recorder) updateTenant(tc tenant.Context, status int, seconds float64) error {
	r.mu.Lock()
	st, ok := r.tenants[tc]
	if !ok {
		st = &tenantStats{}
		r.tenants[tc] = st
	}
	st.requests++
	if status >= 500 {
		st.serverErrors++
	}
	st.totalDuration += seconds
	availability := 100 * float64(st.requests-st.serverErrors) / float64(st.requests)
	mean := st.totalDuration / float64(st.requests)
	r.mu.Unlock()

	labels := prometheus.Labels{LabelOrganization: tc.Organization, LabelApp: tc.App}
	return errors.Join(
		r.registry.Set(SLAAvailability, labels, availability),
		r.registry.Set(SLAResponseTime, labels, mean),
	)
}

// RefreshDerived publishes the peak throughput and service count gauges.
func (r *Recorder) RefreshDerived(context.Context) error {
	r.mu.Lock()
	count := len(r.services)
	r.mu.Unlock()

	return errors.Join(
		r.registry.Set(SystemPeakThroughput, nil, float64(r.throughput.Peak())),
		r.registry.Set(SystemServiceCount, nil, float64(count)),
	)
}

// InitQuotas sets the monthly quota gauges for every organization. Kinds
// missing from quotas get DefaultQuota.
func (r *Recorder) InitQuotas(organizations []string, quotas map[string]float64) error {
	var errs []error
	for _, org := range organizations {
		for kind, name := range QuotaSeries {
			value, ok := quotas[kind]
			if !ok {
				value = DefaultQuota
			}
			if err := r.registry.Set(name, prometheus.Labels{LabelOrganization: org}, value); err != nil {
				errs = append(errs, fmt.Errorf("quota %s for %s: %w", kind, org, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Throughput exposes the request rate tracker.
func (r *Recorder) Throughput() *ThroughputTracker {
	return r.throughput
}

// ErrorType classifies an error status code.
func ErrorType(status int) string {
	switch {
	case status >= 400 && status < 500:
		return ClientError
	case status >= 500 && status < 600:
		return ServerError
	default:
		return UnknownError
	}
}
