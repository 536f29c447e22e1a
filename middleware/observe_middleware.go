package middleware

import (
	"context"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/upb/inference-observe/internal/classify"
	"github.com/upb/inference-observe/internal/extract"
	"github.com/upb/inference-observe/internal/observability"
	"github.com/upb/inference-observe/internal/replay"
	"github.com/upb/inference-observe/internal/tenant"
	"go.uber.org/zap"
)

// DefaultMaxAudioBodyBytes bounds audio and pipeline bodies, which are
// measured whole.
const DefaultMaxAudioBodyBytes int64 = 256 << 20

// ObserveConfig configures ObserveMiddleware.
type ObserveConfig struct {
	Enabled           bool
	MaxBodyBytes      int64
	MaxAudioBodyBytes int64
}

// ObserveMiddleware attributes, classifies and measures every request it
// wraps and hands the result to the Recorder once the handler returns.
type ObserveMiddleware struct {
	cfg        ObserveConfig
	resolver   *tenant.Resolver
	classifier *classify.Classifier
	extractor  *extract.Extractor
	recorder   *observability.Recorder
	logger     *zap.Logger
}

// NewObserveMiddleware creates a new ObserveMiddleware
func NewObserveMiddleware(
	cfg ObserveConfig,
	resolver *tenant.Resolver,
	classifier *classify.Classifier,
	extractor *extract.Extractor,
	recorder *observability.Recorder,
	logger *zap.Logger,
) *ObserveMiddleware {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = replay.DefaultLimit
	}
	if cfg.MaxAudioBodyBytes <= 0 {
		cfg.MaxAudioBodyBytes = DefaultMaxAudioBodyBytes
	}
	if cfg.MaxAudioBodyBytes < cfg.MaxBodyBytes {
		cfg.MaxAudioBodyBytes = cfg.MaxBodyBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ObserveMiddleware{
		cfg:        cfg,
		resolver:   resolver,
		classifier: classifier,
		extractor:  extractor,
		recorder:   recorder,
		logger:     logger,
	}
}

// Track observes the request. When disabled it returns next unchanged.
// Recording failures are logged and never reach the client.
func (m *ObserveMiddleware) Track(next http.Handler) http.Handler {
	if !m.cfg.Enabled {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		tc := m.resolver.Resolve(r.Header)

		var body []byte
		if m.needsBody(r) {
			limit := m.bodyLimit(r)
			buf := replay.New(r.Body, limit)
			data, err := buf.Bytes()
			if err != nil {
				m.logger.Debug("failed to read request body for observation",
					zap.String("request_id", requestID),
					zap.Error(err))
			}
			if buf.Truncated() {
				m.logger.Debug("request body exceeds observation limit",
					zap.String("request_id", requestID),
					zap.Int64("limit", limit))
			}
			body = data
			r.Body = buf.ReadCloser()
		}

		decision := m.classifier.Resolve(r.Method, r.URL.Path, body)
		usage := m.startExtraction(ctx, requestID, decision.Service, body)

		ctx = WithDecision(WithTenant(ctx, tc), decision)
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r.WithContext(ctx))

		elapsed := time.Since(start)
		status := ww.Status()
		if m.pending(decision.Service, usage) {
			go m.record(requestID, r.Method, tc, decision, status, elapsed, usage)
			return
		}
		m.record(requestID, r.Method, tc, decision, status, elapsed, usage)
	})
}

// pending reports whether extraction is still waiting on a remote lookup.
// Such requests are recorded once the lookup finishes, off the response path.
func (m *ObserveMiddleware) pending(service classify.ServiceType, usage <-chan extract.Measurement) bool {
	return usage != nil && len(usage) == 0 && m.extractor.Remote(service)
}

// bodyLimit returns how much of the body is buffered. Audio durations are
// only measurable from the complete payload.
func (m *ObserveMiddleware) bodyLimit(r *http.Request) int64 {
	if m.classifier.RequiresBody(r.Method, r.URL.Path) {
		return m.cfg.MaxAudioBodyBytes
	}
	if kind, _ := extract.KindFor(m.classifier.Classify(r.URL.Path)); kind == extract.AudioSeconds {
		return m.cfg.MaxAudioBodyBytes
	}
	return m.cfg.MaxBodyBytes
}

// needsBody reports whether the body must be captured: pipeline routes need
// it to classify, measurable services need it to extract usage.
func (m *ObserveMiddleware) needsBody(r *http.Request) bool {
	if r.Method != http.MethodPost || r.Body == nil || r.Body == http.NoBody {
		return false
	}
	if m.classifier.RequiresBody(r.Method, r.URL.Path) {
		return true
	}
	return m.extractor.Supports(m.classifier.Classify(r.URL.Path))
}

// startExtraction runs the extractor alongside the handler. The returned
// channel yields exactly one Measurement, or is nil when there is nothing to
// measure.
func (m *ObserveMiddleware) startExtraction(ctx context.Context, requestID string, service classify.ServiceType, body []byte) <-chan extract.Measurement {
	if len(body) == 0 || !m.extractor.Supports(service) {
		return nil
	}

	out := make(chan extract.Measurement, 1)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.extractor.Timeout())
	go func() {
		defer cancel()
		defer func() {
			if p := recover(); p != nil {
				m.logger.Warn("usage extraction panicked",
					zap.String("request_id", requestID),
					zap.Any("panic", p))
				out <- extract.Measurement{}
			}
		}()
		out <- m.extractor.Extract(ctx, service, body)
	}()
	return out
}

func (m *ObserveMiddleware) record(
	requestID, method string,
	tc tenant.Context,
	decision classify.Decision,
	status int,
	elapsed time.Duration,
	usage <-chan extract.Measurement,
) {
	defer func() {
		if p := recover(); p != nil {
			m.logger.Warn("request recording panicked",
				zap.String("request_id", requestID),
				zap.Any("panic", p))
		}
	}()

	if status == 0 {
		status = http.StatusOK
	}
	var measurement extract.Measurement
	if usage != nil {
		measurement = <-usage
	}

	err := m.recorder.Record(observability.Observation{
		RequestID:  requestID,
		Tenant:     tc,
		Method:     method,
		Endpoint:   decision.Path,
		StatusCode: status,
		Service:    decision.Service,
		Duration:   elapsed,
		Usage:      measurement,
	})
	if err != nil {
		m.logger.Warn("failed to record request metrics",
			zap.String("request_id", requestID),
			zap.String("endpoint", decision.Path),
			zap.Error(err))
		return
	}

	m.logger.Debug("request observed",
		zap.String("request_id", requestID),
		zap.String("organization", tc.Organization),
		zap.String("app", tc.App),
		zap.String("service_type", decision.Service.String()),
		zap.String("endpoint", decision.Path),
		zap.Int("status_code", status),
		zap.Duration("duration", elapsed),
		zap.Float64("usage", measurement.Quantity))
}
