// Package extract computes usage quantities from inference request payloads.
//
// Every entry point tolerates arbitrary input: malformed JSON, missing fields
// or undecodable media produce a zero quantity, never an error.
package extract

import (
	"context"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"github.com/upb/inference-observe/internal/classify"
	"go.uber.org/zap"
)

// Kind is the unit a Measurement is expressed in.
type Kind string

const (
	Characters   Kind = "characters"
	AudioSeconds Kind = "audio_seconds"
	Tokens       Kind = "tokens"
)

// UnknownLabel fills language and model labels the payload does not carry.
const UnknownLabel = "unknown"

// DefaultFetchTimeout bounds remote image lookups.
const DefaultFetchTimeout = 2 * time.Second

// Measurement is the usage extracted from one request. A zero Quantity means
// nothing was extractable and is not an error.
type Measurement struct {
	Kind           Kind
	Quantity       float64
	SourceLanguage string
	TargetLanguage string
	Model          string
}

// Options configures an Extractor.
type Options struct {
	// FetchRemote enables sizing images referenced by URL.
	FetchRemote  bool
	FetchTimeout time.Duration
	HTTPClient   *http.Client
}

// Extractor dispatches on service type.
type Extractor struct {
	fetchRemote  bool
	fetchTimeout time.Duration
	client       *http.Client
	logger       *zap.Logger
}

// New creates an Extractor.
func New(opts Options, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.FetchTimeout}
	}
	return &Extractor{
		fetchRemote:  opts.FetchRemote,
		fetchTimeout: opts.FetchTimeout,
		client:       client,
		logger:       logger,
	}
}

// KindFor returns the unit a service is measured in and whether it is
// measured at all.
func KindFor(service classify.ServiceType) (Kind, bool) {
	switch service {
	case classify.TTS, classify.Translation, classify.Transliteration,
		classify.LanguageDetection, classify.OCR:
		return Characters, true
	case classify.NER, classify.LLM:
		return Tokens, true
	case classify.ASR, classify.AudioLangDetection, classify.SpeakerVerification,
		classify.SpeakerDiarization, classify.LanguageDiarization:
		return AudioSeconds, true
	default:
		return "", false
	}
}

// Supports reports whether payloads of this service carry usage.
func (e *Extractor) Supports(service classify.ServiceType) bool {
	_, ok := KindFor(service)
	return ok
}

// Remote reports whether Extract may wait on the network for this service.
func (e *Extractor) Remote(service classify.ServiceType) bool {
	return e.fetchRemote && service == classify.OCR
}

// Timeout is the longest Extract may block on remote lookups.
func (e *Extractor) Timeout() time.Duration {
	return e.fetchTimeout
}

// Extract never fails; anything unparseable yields a zero quantity.
func (e *Extractor) Extract(ctx context.Context, service classify.ServiceType, body []byte) Measurement {
	kind, ok := KindFor(service)
	if !ok {
		return Measurement{}
	}

	m := Measurement{
		Kind:           kind,
		SourceLanguage: UnknownLabel,
		TargetLanguage: UnknownLabel,
		Model:          UnknownLabel,
	}
	if len(body) == 0 || !gjson.ValidBytes(body) {
		e.logger.Debug("payload is not valid JSON",
			zap.String("service", service.String()),
			zap.Int("bytes", len(body)))
		return m
	}

	doc := gjson.ParseBytes(body)
	m.SourceLanguage, m.TargetLanguage = languages(doc)

	switch service {
	case classify.TTS, classify.Translation, classify.Transliteration, classify.LanguageDetection:
		m.Quantity = float64(countCharacters(textSources(doc)))
	case classify.NER:
		m.Quantity = float64(countWords(textSources(doc)))
	case classify.LLM:
		m.Quantity = float64(countWords(promptTexts(doc)))
		if model := doc.Get("model"); model.Type == gjson.String && model.Str != "" {
			m.Model = model.Str
		}
	case classify.OCR:
		m.Quantity = float64(e.imageCharacters(ctx, doc))
	default:
		m.Quantity = e.audioSeconds(doc)
	}
	return m
}

// items returns the top-level array field, falling back to the same field
// under inputData (the pipeline request shape).
func items(doc gjson.Result, field string) []gjson.Result {
	if top := doc.Get(field); top.IsArray() {
		return top.Array()
	}
	if nested := doc.Get("inputData." + field); nested.IsArray() {
		return nested.Array()
	}
	return nil
}

func languages(doc gjson.Result) (string, string) {
	lang := doc.Get("config.language")
	if !lang.Exists() {
		lang = doc.Get("pipelineTasks.0.config.language")
	}
	return labelOrUnknown(lang.Get("sourceLanguage")), labelOrUnknown(lang.Get("targetLanguage"))
}

func labelOrUnknown(r gjson.Result) string {
	if r.Type == gjson.String && r.Str != "" {
		return r.Str
	}
	return UnknownLabel
}
