package observability

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry(Catalog(), RegistryOptions{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return r
}

func tenantLabels(extra prometheus.Labels) prometheus.Labels {
	l := prometheus.Labels{LabelOrganization: "acme", LabelApp: "web"}
	for k, v := range extra {
		l[k] = v
	}
	return l
}

func TestCatalogIsComplete(t *testing.T) {
	names := map[string]SeriesSpec{}
	for _, s := range Catalog() {
		_, dup := names[s.Name]
		require.False(t, dup, "duplicate series %s", s.Name)
		names[s.Name] = s
	}

	for _, want := range []string{
		RequestsTotal, RequestDuration, ServiceRequestsTotal, ErrorsTotal, DataProcessedTotal,
		LLMTokensProcessed, TTSCharactersSynthesized, NMTCharactersTranslated, ASRAudioSecondsProcessed,
		OCRCharactersProcessed, TransliterationCharactersProcessed, LanguageDetectionCharactersProcessed,
		AudioLangDetectionSecondsProcessed, NERTokensProcessed, SpeakerDiarizationSecondsProcessed,
		LanguageDiarizationSecondsProcessed, SpeakerVerificationSecondsProcessed, ComponentLatency,
		SLACompliance, SLAAvailability, SLAResponseTime, OrganizationLLMQuota, OrganizationTTSQuota,
		OrganizationNMTQuota, OrganizationASRQuota, SystemCPUPercent, SystemMemoryPercent,
		SystemPeakThroughput, SystemServiceCount,
	} {
		assert.Contains(t, names, want)
	}

	assert.Equal(t, CharacterBuckets, names[TTSCharactersSynthesized].Buckets)
	assert.Equal(t, AudioBuckets, names[ASRAudioSecondsProcessed].Buckets)
	assert.Equal(t, AudioBuckets, names[SpeakerVerificationSecondsProcessed].Buckets)
	assert.Equal(t, KindCounter, names[LLMTokensProcessed].Kind)
	assert.Empty(t, names[LLMTokensProcessed].Buckets)
	assert.Equal(t, KindHistogram, names[NERTokensProcessed].Kind)
	assert.Equal(t, []string{LabelOrganization, LabelApp, LabelSourceLanguage, LabelTargetLanguage},
		names[NMTCharactersTranslated].Labels)
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	specs := []SeriesSpec{
		{Name: "a", Help: "a", Kind: KindCounter},
		{Name: "a", Help: "a", Kind: KindGauge},
	}
	_, err := NewRegistry(specs, RegistryOptions{}, nil)
	assert.Error(t, err)

	_, err = NewRegistry([]SeriesSpec{{Name: "b", Help: "b", Kind: "summary"}}, RegistryOptions{}, nil)
	assert.Error(t, err)
}

func TestIncrement(t *testing.T) {
	r := newTestRegistry(t)
	labels := tenantLabels(prometheus.Labels{LabelServiceType: "tts"})

	require.NoError(t, r.Increment(ServiceRequestsTotal, labels, 1))
	require.NoError(t, r.Increment(ServiceRequestsTotal, labels, 2.5))

	got := testutil.ToFloat64(r.series[ServiceRequestsTotal].counter.With(labels))
	assert.Equal(t, 3.5, got)

	v, err := r.Value(ServiceRequestsTotal, labels)
	require.NoError(t, err)
	assert.Equal(t, 3.5, v)
}

func TestOperationErrors(t *testing.T) {
	r := newTestRegistry(t)

	tests := []struct {
		name    string
		op      func() error
		wantErr error
	}{
		{
			name:    "unknown series",
			op:      func() error { return r.Increment("nope_total", nil, 1) },
			wantErr: ErrUnknownSeries,
		},
		{
			name:    "observe on counter",
			op:      func() error { return r.Observe(RequestsTotal, nil, 1) },
			wantErr: ErrSeriesKind,
		},
		{
			name:    "set on histogram",
			op:      func() error { return r.Set(RequestDuration, nil, 1) },
			wantErr: ErrSeriesKind,
		},
		{
			name: "negative increment",
			op: func() error {
				return r.Increment(ServiceRequestsTotal, tenantLabels(prometheus.Labels{LabelServiceType: "asr"}), -1)
			},
			wantErr: ErrNegativeIncrement,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.op(), tt.wantErr)
		})
	}

	t.Run("partial labels", func(t *testing.T) {
		assert.Error(t, r.Increment(ServiceRequestsTotal, tenantLabels(nil), 1))
	})
	t.Run("extra labels", func(t *testing.T) {
		assert.Error(t, r.Set(SLAAvailability, tenantLabels(prometheus.Labels{"region": "eu"}), 1))
	})
	t.Run("wrong label name", func(t *testing.T) {
		assert.Error(t, r.Set(OrganizationLLMQuota, prometheus.Labels{"org": "acme"}, 1))
	})
	t.Run("failed write leaves no series", func(t *testing.T) {
		v, err := r.Value(ServiceRequestsTotal, tenantLabels(prometheus.Labels{LabelServiceType: "asr"}))
		require.NoError(t, err)
		assert.Zero(t, v)
	})
}

func TestConcurrentIncrementsCompose(t *testing.T) {
	r := newTestRegistry(t)
	labels := tenantLabels(prometheus.Labels{
		LabelMethod: "POST", LabelEndpoint: "/tts", LabelStatusCode: "200",
	})

	var wg sync.WaitGroup
	for i := 0; i < 1000; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, r.Increment(RequestsTotal, labels, 1))
		}()
	}
	wg.Wait()

	v, err := r.Value(RequestsTotal, labels)
	require.NoError(t, err)
	assert.Equal(t, float64(1000), v)
}

func TestObserveAndSet(t *testing.T) {
	r := newTestRegistry(t)
	labels := tenantLabels(prometheus.Labels{LabelLanguage: "hi"})

	require.NoError(t, r.Observe(TTSCharactersSynthesized, labels, 42))
	require.NoError(t, r.Observe(TTSCharactersSynthesized, labels, 7))
	count, err := r.Value(TTSCharactersSynthesized, labels)
	require.NoError(t, err)
	assert.Equal(t, float64(2), count)

	require.NoError(t, r.Set(SystemCPUPercent, nil, 12.5))
	require.NoError(t, r.Set(SystemCPUPercent, nil, 30))
	assert.Equal(t, float64(30), testutil.ToFloat64(r.series[SystemCPUPercent].gauge.With(nil)))
}

func TestRender(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Increment(ServiceRequestsTotal, tenantLabels(prometheus.Labels{LabelServiceType: "ocr"}), 1))
	require.NoError(t, r.Observe(ASRAudioSecondsProcessed, tenantLabels(prometheus.Labels{LabelLanguage: "en"}), 2))

	out, err := r.Render(context.Background())
	require.NoError(t, err)

	assert.Contains(t, out, "# TYPE telemetry_obsv_service_requests_total counter")
	assert.Contains(t, out, `telemetry_obsv_service_requests_total{app="web",organization="acme",service_type="ocr"} 1`)
	assert.Contains(t, out, `telemetry_obsv_asr_audio_seconds_processed_bucket{app="web",language="en",organization="acme",le="3600"} 1`)
	assert.Contains(t, out, `le="+Inf"`)
}

func TestRenderTokenUsageAsCounter(t *testing.T) {
	r := newTestRegistry(t)
	labels := tenantLabels(prometheus.Labels{LabelModel: "llama-3"})
	require.NoError(t, r.Increment(LLMTokensProcessed, labels, 42))
	assert.ErrorIs(t, r.Observe(LLMTokensProcessed, labels, 1), ErrSeriesKind)

	out, err := r.Render(context.Background())
	require.NoError(t, err)

	assert.Contains(t, out, "# TYPE telemetry_obsv_llm_tokens_processed_total counter")
	assert.Contains(t, out, `telemetry_obsv_llm_tokens_processed_total{app="web",model="llama-3",organization="acme"} 42`)
	assert.NotContains(t, out, "llm_tokens_processed_total_bucket")
}

func TestRenderRefreshFailureKeepsPreviousValue(t *testing.T) {
	r := newTestRegistry(t)

	calls := 0
	r.OnRender("flaky", func(context.Context) error {
		calls++
		if calls > 1 {
			return errors.New("sampler unavailable")
		}
		return r.Set(SystemMemoryPercent, nil, 55)
	})

	out, err := r.Render(context.Background())
	require.NoError(t, err)
	assert.Contains(t, out, "telemetry_obsv_system_memory_percent 55")

	out, err = r.Render(context.Background())
	require.NoError(t, err)
	assert.Contains(t, out, "telemetry_obsv_system_memory_percent 55")
	assert.Equal(t, 2, calls)
}

func TestCustomNamespaceAndRuntimeCollectors(t *testing.T) {
	r, err := NewRegistry(Catalog(), RegistryOptions{Namespace: "edge", RuntimeCollectors: true}, nil)
	require.NoError(t, err)
	require.NoError(t, r.Set(SystemServiceCount, nil, 3))

	out, err := r.Render(context.Background())
	require.NoError(t, err)
	assert.Contains(t, out, "edge_system_service_count 3")
	assert.Contains(t, out, "go_goroutines")
	assert.False(t, strings.Contains(out, "telemetry_obsv_"))
	assert.Equal(t, "edge", r.Namespace())
}

func TestContentType(t *testing.T) {
	assert.True(t, strings.HasPrefix(ContentType(), "text/plain"))
}
