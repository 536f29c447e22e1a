package classify

// ServiceType is the inferred AI capability a request targets.
type ServiceType string

const (
	Translation         ServiceType = "translation"
	ASR                 ServiceType = "asr"
	TTS                 ServiceType = "tts"
	OCR                 ServiceType = "ocr"
	Transliteration     ServiceType = "transliteration"
	NER                 ServiceType = "ner"
	LanguageDetection   ServiceType = "language_detection"
	AudioLangDetection  ServiceType = "audio_lang_detection"
	SpeakerVerification ServiceType = "speaker_verification"
	SpeakerDiarization  ServiceType = "speaker_diarization"
	LanguageDiarization ServiceType = "language_diarization"
	LLM                 ServiceType = "llm"
	Enterprise          ServiceType = "enterprise"
	Documentation       ServiceType = "documentation"
	Unknown             ServiceType = "unknown"
)

// All returns every service type in declaration order.
func All() []ServiceType {
	return []ServiceType{
		Translation, ASR, TTS, OCR, Transliteration, NER,
		LanguageDetection, AudioLangDetection, SpeakerVerification,
		SpeakerDiarization, LanguageDiarization, LLM,
		Enterprise, Documentation, Unknown,
	}
}

// String returns the label value used in metrics
func (s ServiceType) String() string {
	return string(s)
}

// IsValid reports whether s is one of the declared service types
func (s ServiceType) IsValid() bool {
	for _, t := range All() {
		if s == t {
			return true
		}
	}
	return false
}

// taskTypes maps the taskType values accepted by the pipeline endpoint to
// the service they run.
var taskTypes = map[string]ServiceType{
	"asr":                  ASR,
	"translation":          Translation,
	"tts":                  TTS,
	"transliteration":      Transliteration,
	"ner":                  NER,
	"ocr":                  OCR,
	"txt-lang-detection":   LanguageDetection,
	"language-detection":   LanguageDetection,
	"audio-lang-detection": AudioLangDetection,
	"speaker-verification": SpeakerVerification,
	"speaker-diarization":  SpeakerDiarization,
	"language-diarization": LanguageDiarization,
}

// ServiceForTask returns the service type for a pipeline taskType.
func ServiceForTask(task string) (ServiceType, bool) {
	s, ok := taskTypes[task]
	return s, ok
}
