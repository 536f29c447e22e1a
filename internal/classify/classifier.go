package classify

import (
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// DefaultPipelinePath is the generic multi-task entry point whose concrete
// task is declared in the request body.
const DefaultPipelinePath = "/services/inference/pipeline"

// Rule maps a set of lower-case path fragments to a service type.
type Rule struct {
	Service   ServiceType
	Fragments []string
}

// DefaultRules is the ordered rule list. Order matters: the first matching
// rule wins, so fully qualified pipeline sub-routes come first, then
// multi-word fragments, then the generic single-word ones (e.g.
// "/speaker-verification" also contains the TTS fragment "/speak").
var DefaultRules = []Rule{
	// pipeline task sub-routes
	{AudioLangDetection, []string{"/pipeline/audio-lang-detection"}},
	{LanguageDetection, []string{"/pipeline/txt-lang-detection", "/pipeline/language-detection"}},
	{SpeakerVerification, []string{"/pipeline/speaker-verification"}},
	{SpeakerDiarization, []string{"/pipeline/speaker-diarization"}},
	{LanguageDiarization, []string{"/pipeline/language-diarization"}},
	{Transliteration, []string{"/pipeline/transliteration"}},
	{OCR, []string{"/pipeline/ocr"}},
	{NER, []string{"/pipeline/ner"}},
	{ASR, []string{"/pipeline/asr"}},
	{Translation, []string{"/pipeline/translation"}},
	{TTS, []string{"/pipeline/tts"}},

	// multi-word fragments
	{AudioLangDetection, []string{"/audio-lang-detection", "/audio-language-detection"}},
	{SpeakerVerification, []string{"/speaker-verification"}},
	{SpeakerDiarization, []string{"/speaker-diarization"}},
	{LanguageDiarization, []string{"/language-diarization"}},
	{LanguageDetection, []string{"/txt-lang-detection", "/language-detection", "/lang-detection"}},
	{Transliteration, []string{"/transliteration", "/transliterate", "/xlit"}},
	{OCR, []string{"/ocr"}},

	// generic fragments
	{Translation, []string{"/translation", "/nmt", "/translate"}},
	{ASR, []string{"/asr", "/transcribe", "/speech"}},
	{TTS, []string{"/tts", "/synthesize", "/speak"}},
	{NER, []string{"/ner", "/entity", "/entities"}},
	{LLM, []string{"/llm", "/generate", "/chat", "/completion"}},
	{Enterprise, []string{"/enterprise", "/health", "/metrics", "/config"}},
	{Documentation, []string{"/docs", "/openapi", "/redoc"}},
}

// Decision is the classification outcome for one request. Path is the
// logical path used for metric labels; it differs from the request path only
// when a pipeline call was disambiguated.
type Decision struct {
	Service   ServiceType
	Path      string
	Rewritten bool
}

// Classifier maps request paths to service types.
type Classifier struct {
	rules        []Rule
	pipelinePath string
}

// New creates a Classifier. An empty pipelinePath selects DefaultPipelinePath.
func New(pipelinePath string, rules []Rule) *Classifier {
	if pipelinePath == "" {
		pipelinePath = DefaultPipelinePath
	}
	if rules == nil {
		rules = DefaultRules
	}
	return &Classifier{
		rules:        rules,
		pipelinePath: normalize(pipelinePath),
	}
}

// Classify returns the service type for a path. Unmatched paths are Unknown.
func (c *Classifier) Classify(path string) ServiceType {
	lower := strings.ToLower(path)
	for _, rule := range c.rules {
		for _, fragment := range rule.Fragments {
			if strings.Contains(lower, fragment) {
				return rule.Service
			}
		}
	}
	return Unknown
}

// RequiresBody reports whether classifying this request needs its body.
func (c *Classifier) RequiresBody(method, path string) bool {
	return method == http.MethodPost && normalize(path) == c.pipelinePath
}

// Resolve classifies a request. body is only consulted for POST requests to
// the pipeline route and may be nil otherwise.
func (c *Classifier) Resolve(method, path string, body []byte) Decision {
	if c.RequiresBody(method, path) {
		if task, ok := pipelineTask(body); ok {
			rewritten := strings.TrimSuffix(path, "/") + "/" + task
			return Decision{Service: c.Classify(rewritten), Path: rewritten, Rewritten: true}
		}
	}
	return Decision{Service: c.Classify(path), Path: path}
}

// pipelineTask reads the first task descriptor's taskType.
func pipelineTask(body []byte) (string, bool) {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return "", false
	}
	result := gjson.GetBytes(body, "pipelineTasks.0.taskType")
	if result.Type != gjson.String {
		return "", false
	}
	task := strings.ToLower(strings.TrimSpace(result.Str))
	if _, ok := ServiceForTask(task); !ok {
		return "", false
	}
	return task, true
}

func normalize(path string) string {
	path = strings.ToLower(path)
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	return path
}
