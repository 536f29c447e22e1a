package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/inference-observe/internal/classify"
	"go.uber.org/zap/zaptest"
)

type chunk struct {
	id   string
	body []byte
}

func fmtChunk(channels uint16, rate uint32, bits uint16) chunk {
	var b bytes.Buffer
	blockAlign := channels * ((bits + 7) / 8)
	_ = binary.Write(&b, binary.LittleEndian, uint16(1))
	_ = binary.Write(&b, binary.LittleEndian, channels)
	_ = binary.Write(&b, binary.LittleEndian, rate)
	_ = binary.Write(&b, binary.LittleEndian, rate*uint32(blockAlign))
	_ = binary.Write(&b, binary.LittleEndian, blockAlign)
	_ = binary.Write(&b, binary.LittleEndian, bits)
	return chunk{id: "fmt ", body: b.Bytes()}
}

func riff(chunks ...chunk) []byte {
	var body bytes.Buffer
	body.WriteString("WAVE")
	for _, c := range chunks {
		body.WriteString(c.id)
		_ = binary.Write(&body, binary.LittleEndian, uint32(len(c.body)))
		body.Write(c.body)
		if len(c.body)%2 == 1 {
			body.WriteByte(0)
		}
	}
	var out bytes.Buffer
	out.WriteString("RIFF")
	_ = binary.Write(&out, binary.LittleEndian, uint32(body.Len()))
	out.Write(body.Bytes())
	return out.Bytes()
}

func audioPayload(t *testing.T, clips ...[]byte) []byte {
	t.Helper()
	audio := make([]map[string]string, 0, len(clips))
	for _, c := range clips {
		audio = append(audio, map[string]string{"audioContent": base64.StdEncoding.EncodeToString(c)})
	}
	b, err := json.Marshal(map[string]any{"audio": audio})
	require.NoError(t, err)
	return b
}

func newTestExtractor(t *testing.T, opts Options) *Extractor {
	return New(opts, zaptest.NewLogger(t))
}

func TestExtractText(t *testing.T) {
	e := newTestExtractor(t, Options{})
	ctx := context.Background()

	tests := []struct {
		name    string
		service classify.ServiceType
		body    string
		kind    Kind
		want    float64
	}{
		{"tts characters", classify.TTS, `{"input":[{"source":"Hello World"}]}`, Characters, 11},
		{"translation sums items", classify.Translation, `{"input":[{"source":"abc"},{"source":"de"}]}`, Characters, 5},
		{"characters are runes", classify.Transliteration, `{"input":[{"source":"नमस्ते"}]}`, Characters, 6},
		{"nested pipeline input", classify.LanguageDetection, `{"inputData":{"input":[{"source":"Hello World"}]}}`, Characters, 11},
		{"top level wins over nested", classify.TTS, `{"input":[{"source":"ab"}],"inputData":{"input":[{"source":"abcdef"}]}}`, Characters, 2},
		{"non string source ignored", classify.TTS, `{"input":[{"source":42},{"source":"ok"}]}`, Characters, 2},
		{"ner tokens", classify.NER, `{"input":[{"source":"Barack Obama visited Paris"}]}`, Tokens, 4},
		{"ner collapses whitespace", classify.NER, `{"input":[{"source":"  a \n b\tc  "}]}`, Tokens, 3},
		{"llm messages and prompt", classify.LLM, `{"messages":[{"role":"user","content":"tell me a joke"}],"prompt":"be brief"}`, Tokens, 6},
		{"missing fields", classify.TTS, `{"config":{}}`, Characters, 0},
		{"malformed json", classify.TTS, `{"input":[{"source":"Hello"`, Characters, 0},
		{"empty body", classify.Translation, ``, Characters, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := e.Extract(ctx, tt.service, []byte(tt.body))
			assert.Equal(t, tt.kind, m.Kind)
			assert.Equal(t, tt.want, m.Quantity)
		})
	}
}

func TestExtractUnmeasuredService(t *testing.T) {
	e := newTestExtractor(t, Options{})

	for _, s := range []classify.ServiceType{classify.Enterprise, classify.Documentation, classify.Unknown} {
		assert.False(t, e.Supports(s))
		assert.Equal(t, Measurement{}, e.Extract(context.Background(), s, []byte(`{"input":[{"source":"x"}]}`)))
	}
	assert.True(t, e.Supports(classify.ASR))
}

func TestExtractLabels(t *testing.T) {
	e := newTestExtractor(t, Options{})
	ctx := context.Background()

	m := e.Extract(ctx, classify.Translation, []byte(`{"input":[{"source":"hi"}],"config":{"language":{"sourceLanguage":"en","targetLanguage":"hi"}}}`))
	assert.Equal(t, "en", m.SourceLanguage)
	assert.Equal(t, "hi", m.TargetLanguage)

	m = e.Extract(ctx, classify.Translation, []byte(`{"pipelineTasks":[{"taskType":"translation","config":{"language":{"sourceLanguage":"ta"}}}],"inputData":{"input":[{"source":"hi"}]}}`))
	assert.Equal(t, "ta", m.SourceLanguage)
	assert.Equal(t, UnknownLabel, m.TargetLanguage)
	assert.Equal(t, float64(2), m.Quantity)

	m = e.Extract(ctx, classify.LLM, []byte(`{"model":"llama-3","prompt":"hello"}`))
	assert.Equal(t, "llama-3", m.Model)

	m = e.Extract(ctx, classify.LLM, []byte(`{"prompt":"hello"}`))
	assert.Equal(t, UnknownLabel, m.Model)
}

func TestExtractAudio(t *testing.T) {
	e := newTestExtractor(t, Options{})
	ctx := context.Background()

	monoSecond := riff(fmtChunk(1, 16000, 16), chunk{id: "data", body: make([]byte, 32000)})
	stereo24 := riff(fmtChunk(2, 8000, 24), chunk{id: "data", body: make([]byte, 48000)})
	withList := riff(fmtChunk(1, 16000, 16), chunk{id: "LIST", body: []byte("INFOx")}, chunk{id: "data", body: make([]byte, 16000)})
	dataFirst := riff(chunk{id: "data", body: make([]byte, 32000)}, fmtChunk(1, 16000, 16))
	raw := make([]byte, 64000)

	tests := []struct {
		name string
		body []byte
		want float64
	}{
		{"mono wav", audioPayload(t, monoSecond), 1.0},
		{"stereo 24 bit wav", audioPayload(t, stereo24), 1.0},
		{"skips unknown chunks", audioPayload(t, withList), 0.5},
		{"non wav estimated from size", audioPayload(t, raw), 2.0},
		{"data before fmt estimated from size", audioPayload(t, dataFirst), float64(len(dataFirst)) / RawBytesPerSecond},
		{"clips are summed", audioPayload(t, monoSecond, raw), 3.0},
		{"bad base64", []byte(`{"audio":[{"audioContent":"!!!not-base64"}]}`), 0},
		{"uri only", []byte(`{"audio":[{"audioUri":"https://example.com/a.wav"}]}`), 0},
		{"malformed json", []byte(`{"audio":[`), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := e.Extract(ctx, classify.ASR, tt.body)
			assert.Equal(t, AudioSeconds, m.Kind)
			assert.InDelta(t, tt.want, m.Quantity, 1e-9)
		})
	}
}

func TestExtractAudioNestedAndUnpadded(t *testing.T) {
	e := newTestExtractor(t, Options{})
	clip := riff(fmtChunk(1, 16000, 16), chunk{id: "data", body: make([]byte, 32000)})
	encoded := strings.TrimRight(base64.StdEncoding.EncodeToString(clip), "=")

	body := `{"inputData":{"audio":[{"audioContent":"` + encoded + `"}]}}`
	m := e.Extract(context.Background(), classify.SpeakerDiarization, []byte(body))
	assert.InDelta(t, 1.0, m.Quantity, 1e-9)
}

func TestWavDurationErrors(t *testing.T) {
	_, err := wavDuration([]byte("not audio at all"))
	assert.ErrorIs(t, err, errNotWAV)

	_, err = wavDuration(riff(chunk{id: "data", body: []byte{0, 0}}))
	assert.ErrorIs(t, err, errNoFormat)

	_, err = wavDuration(riff(fmtChunk(1, 16000, 16)))
	assert.ErrorIs(t, err, errNoDataChunk)

	_, err = wavDuration(riff(fmtChunk(1, 0, 16), chunk{id: "data", body: []byte{0, 0}}))
	assert.ErrorIs(t, err, errBadFormat)
}

func TestRemote(t *testing.T) {
	on := newTestExtractor(t, Options{FetchRemote: true})
	off := newTestExtractor(t, Options{})

	assert.True(t, on.Remote(classify.OCR))
	assert.False(t, on.Remote(classify.ASR))
	assert.False(t, on.Remote(classify.TTS))
	assert.False(t, off.Remote(classify.OCR))
}

func TestExtractOCRInline(t *testing.T) {
	e := newTestExtractor(t, Options{})
	content := strings.Repeat("A", 1050)

	m := e.Extract(context.Background(), classify.OCR, []byte(`{"image":[{"imageContent":"`+content+`"}]}`))
	assert.Equal(t, Characters, m.Kind)
	assert.Equal(t, float64(10), m.Quantity)
}

func TestExtractOCRRemote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sized.png":
			w.Header().Set("Content-Length", strconv.Itoa(7500))
			if r.Method == http.MethodGet {
				_, _ = w.Write(make([]byte, 7500))
			}
		case "/nohead.png":
			if r.Method == http.MethodHead {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			_, _ = w.Write(make([]byte, 750))
		case "/slow.png":
			time.Sleep(200 * time.Millisecond)
			w.Header().Set("Content-Length", "7500")
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	e := newTestExtractor(t, Options{FetchRemote: true, FetchTimeout: 50 * time.Millisecond})
	ctx := context.Background()
	payload := func(uri string) []byte {
		return []byte(`{"image":[{"imageUri":"` + uri + `"}]}`)
	}

	tests := []struct {
		name string
		uri  string
		want float64
	}{
		{"content length from head", srv.URL + "/sized.png", 100},
		{"get fallback", srv.URL + "/nohead.png", 10},
		{"server error", srv.URL + "/broken.png", 0},
		{"timeout", srv.URL + "/slow.png", 0},
		{"unsupported scheme", "ftp://example.com/a.png", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := e.Extract(ctx, classify.OCR, payload(tt.uri))
			assert.Equal(t, tt.want, m.Quantity)
		})
	}

	t.Run("fetching disabled", func(t *testing.T) {
		off := newTestExtractor(t, Options{})
		m := off.Extract(ctx, classify.OCR, payload(srv.URL+"/sized.png"))
		assert.Zero(t, m.Quantity)
	})
}
