package observability

import (
	"github.com/upb/inference-observe/internal/classify"
	"github.com/upb/inference-observe/internal/extract"
)

// DefaultNamespace prefixes every series name.
const DefaultNamespace = "telemetry_obsv"

// SeriesKind is the Prometheus type of a series.
type SeriesKind string

const (
	KindCounter   SeriesKind = "counter"
	KindHistogram SeriesKind = "histogram"
	KindGauge     SeriesKind = "gauge"
)

// Series names, without namespace.
const (
	RequestsTotal        = "requests_total"
	RequestDuration      = "request_duration_seconds"
	ServiceRequestsTotal = "service_requests_total"
	ErrorsTotal          = "errors_total"
	DataProcessedTotal   = "data_processed_total"

	LLMTokensProcessed                   = "llm_tokens_processed_total"
	TTSCharactersSynthesized             = "tts_characters_synthesized"
	NMTCharactersTranslated              = "nmt_characters_translated"
	ASRAudioSecondsProcessed             = "asr_audio_seconds_processed"
	OCRCharactersProcessed               = "ocr_characters_processed"
	TransliterationCharactersProcessed   = "transliteration_characters_processed"
	LanguageDetectionCharactersProcessed = "language_detection_characters_processed"
	AudioLangDetectionSecondsProcessed   = "audio_lang_detection_seconds_processed"
	NERTokensProcessed                   = "ner_tokens_processed"
	SpeakerDiarizationSecondsProcessed   = "speaker_diarization_seconds_processed"
	LanguageDiarizationSecondsProcessed  = "language_diarization_seconds_processed"
	SpeakerVerificationSecondsProcessed  = "speaker_verification_seconds_processed"

	ComponentLatency     = "component_latency_seconds"
	SLACompliance        = "sla_compliance_percent"
	SLAAvailability      = "sla_availability_percent"
	SLAResponseTime      = "sla_response_time_seconds"
	OrganizationLLMQuota = "organization_llm_quota_per_month"
	OrganizationTTSQuota = "organization_tts_quota_per_month"
	OrganizationNMTQuota = "organization_nmt_quota_per_month"
	OrganizationASRQuota = "organization_asr_quota_per_month"
	SystemCPUPercent     = "system_cpu_percent"
	SystemMemoryPercent  = "system_memory_percent"
	SystemPeakThroughput = "system_peak_throughput_rpm"
	SystemServiceCount   = "system_service_count"
)

// Label names.
const (
	LabelOrganization   = "organization"
	LabelApp            = "app"
	LabelMethod         = "method"
	LabelEndpoint       = "endpoint"
	LabelStatusCode     = "status_code"
	LabelServiceType    = "service_type"
	LabelErrorType      = "error_type"
	LabelDataType       = "data_type"
	LabelModel          = "model"
	LabelLanguage       = "language"
	LabelSourceLanguage = "source_language"
	LabelTargetLanguage = "target_language"
	LabelComponent      = "component"
	LabelSLAType        = "sla_type"
)

var (
	// CharacterBuckets size text usage histograms.
	CharacterBuckets = []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

	// AudioBuckets size audio usage histograms, in seconds.
	AudioBuckets = []float64{1, 5, 10, 30, 50, 60, 120, 300, 600, 1800, 3600}

	// LatencyBuckets size request and component latency histograms.
	LatencyBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}
)

// SeriesSpec declares one series of the catalog.
type SeriesSpec struct {
	Name    string
	Help    string
	Kind    SeriesKind
	Labels  []string
	Buckets []float64
}

// UsageSeries describes where a measured service's quantity is recorded.
// Kind defaults to KindHistogram.
type UsageSeries struct {
	Name   string
	Labels []string
	Kind   SeriesKind
	// LanguageLabels selects how extracted languages map onto labels:
	// "language" uses the source language, "pair" uses both.
	LanguageLabels string
}

var tenantLabelNames = []string{LabelOrganization, LabelApp}

func withTenant(extra ...string) []string {
	out := make([]string, 0, len(tenantLabelNames)+len(extra))
	out = append(out, tenantLabelNames...)
	return append(out, extra...)
}

// usageByService maps every measured service type onto its usage series.
var usageByService = map[classify.ServiceType]UsageSeries{
	classify.LLM:                 {Name: LLMTokensProcessed, Labels: withTenant(LabelModel), Kind: KindCounter},
	classify.TTS:                 {Name: TTSCharactersSynthesized, Labels: withTenant(LabelLanguage), LanguageLabels: "language"},
	classify.Translation:         {Name: NMTCharactersTranslated, Labels: withTenant(LabelSourceLanguage, LabelTargetLanguage), LanguageLabels: "pair"},
	classify.ASR:                 {Name: ASRAudioSecondsProcessed, Labels: withTenant(LabelLanguage), LanguageLabels: "language"},
	classify.OCR:                 {Name: OCRCharactersProcessed, Labels: withTenant()},
	classify.Transliteration:     {Name: TransliterationCharactersProcessed, Labels: withTenant(LabelSourceLanguage, LabelTargetLanguage), LanguageLabels: "pair"},
	classify.LanguageDetection:   {Name: LanguageDetectionCharactersProcessed, Labels: withTenant()},
	classify.AudioLangDetection:  {Name: AudioLangDetectionSecondsProcessed, Labels: withTenant()},
	classify.NER:                 {Name: NERTokensProcessed, Labels: withTenant()},
	classify.SpeakerDiarization:  {Name: SpeakerDiarizationSecondsProcessed, Labels: withTenant()},
	classify.LanguageDiarization: {Name: LanguageDiarizationSecondsProcessed, Labels: withTenant()},
	classify.SpeakerVerification: {Name: SpeakerVerificationSecondsProcessed, Labels: withTenant()},
}

// UsageSeriesFor returns the usage series of a measured service.
func UsageSeriesFor(service classify.ServiceType) (UsageSeries, bool) {
	u, ok := usageByService[service]
	if ok && u.Kind == "" {
		u.Kind = KindHistogram
	}
	return u, ok
}

// QuotaSeries maps quota kinds onto their gauges.
var QuotaSeries = map[string]string{
	"llm": OrganizationLLMQuota,
	"tts": OrganizationTTSQuota,
	"nmt": OrganizationNMTQuota,
	"asr": OrganizationASRQuota,
}

// Catalog returns the full, fixed series list.
func Catalog() []SeriesSpec {
	specs := []SeriesSpec{
		{Name: RequestsTotal, Help: "Total requests by tenant, route and status.", Kind: KindCounter,
			Labels: withTenant(LabelMethod, LabelEndpoint, LabelStatusCode)},
		{Name: RequestDuration, Help: "Request duration in seconds.", Kind: KindHistogram,
			Labels: withTenant(LabelMethod, LabelEndpoint), Buckets: LatencyBuckets},
		{Name: ServiceRequestsTotal, Help: "Total requests by service type.", Kind: KindCounter,
			Labels: withTenant(LabelServiceType)},
		{Name: ErrorsTotal, Help: "Total error responses by taxonomy.", Kind: KindCounter,
			Labels: withTenant(LabelEndpoint, LabelStatusCode, LabelErrorType)},
		{Name: DataProcessedTotal, Help: "Total data processed by data type.", Kind: KindCounter,
			Labels: withTenant(LabelDataType)},
		{Name: ComponentLatency, Help: "Latency per service component in seconds.", Kind: KindHistogram,
			Labels: withTenant(LabelComponent), Buckets: LatencyBuckets},
		{Name: SLACompliance, Help: "Estimated SLA compliance percentage of the latest request.", Kind: KindGauge,
			Labels: withTenant(LabelSLAType)},
		{Name: SLAAvailability, Help: "Share of non-5xx responses per tenant, in percent.", Kind: KindGauge,
			Labels: withTenant()},
		{Name: SLAResponseTime, Help: "Mean response time per tenant in seconds.", Kind: KindGauge,
			Labels: withTenant()},
		{Name: SystemCPUPercent, Help: "Host CPU utilisation percentage.", Kind: KindGauge},
		{Name: SystemMemoryPercent, Help: "Host memory utilisation percentage.", Kind: KindGauge},
		{Name: SystemPeakThroughput, Help: "Peak requests per minute observed.", Kind: KindGauge},
		{Name: SystemServiceCount, Help: "Distinct service types observed.", Kind: KindGauge},
	}

	for _, service := range classify.All() {
		u, ok := UsageSeriesFor(service)
		if !ok {
			continue
		}
		spec := SeriesSpec{
			Name:   u.Name,
			Help:   "Usage processed by the " + service.String() + " service.",
			Kind:   u.Kind,
			Labels: u.Labels,
		}
		if u.Kind == KindHistogram {
			spec.Buckets = CharacterBuckets
			if kind, _ := extract.KindFor(service); kind == extract.AudioSeconds {
				spec.Buckets = AudioBuckets
			}
		}
		specs = append(specs, spec)
	}

	for _, kind := range []string{"llm", "tts", "nmt", "asr"} {
		specs = append(specs, SeriesSpec{
			Name:   QuotaSeries[kind],
			Help:   "Monthly " + kind + " quota per organization.",
			Kind:   KindGauge,
			Labels: []string{LabelOrganization},
		})
	}
	return specs
}
