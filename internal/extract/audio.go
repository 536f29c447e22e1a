package extract

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// RawBytesPerSecond estimates duration for audio that is not WAV: 16 kHz
// mono 16-bit PCM.
const RawBytesPerSecond = 32000

var (
	errNotWAV      = errors.New("not a RIFF/WAVE stream")
	errNoFormat    = errors.New("wav data chunk precedes fmt chunk")
	errBadFormat   = errors.New("wav fmt chunk is invalid")
	errNoDataChunk = errors.New("wav data chunk missing")
	errShortChunk  = errors.New("wav chunk header truncated")
	errUnsupported = errors.New("wav encoding is not PCM")
)

// audioSeconds sums the duration of every audio[].audioContent clip.
// Clips referenced only by audioUri contribute nothing.
func (e *Extractor) audioSeconds(doc gjson.Result) float64 {
	total := 0.0
	for _, item := range items(doc, "audio") {
		content := item.Get("audioContent")
		if content.Type != gjson.String || content.Str == "" {
			continue
		}
		raw, ok := decodeBase64(content.Str)
		if !ok {
			e.logger.Debug("audio content is not base64")
			continue
		}
		seconds, err := wavDuration(raw)
		if err != nil {
			e.logger.Debug("audio is not parseable WAV, estimating from size",
				zap.Error(err), zap.Int("bytes", len(raw)))
			seconds = float64(len(raw)) / RawBytesPerSecond
		}
		total += seconds
	}
	return total
}

// decodeBase64 accepts padded or unpadded standard base64 with embedded
// whitespace.
func decodeBase64(s string) ([]byte, bool) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, s)

	if raw, err := base64.StdEncoding.DecodeString(cleaned); err == nil {
		return raw, true
	}
	if raw, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(cleaned, "=")); err == nil {
		return raw, true
	}
	return nil, false
}

type wavFormat struct {
	channels      uint16
	sampleRate    uint32
	bitsPerSample uint16
}

// wavDuration walks the RIFF chunk list and returns frames / sample rate.
func wavDuration(raw []byte) (float64, error) {
	if len(raw) < 12 || !bytes.Equal(raw[0:4], []byte("RIFF")) || !bytes.Equal(raw[8:12], []byte("WAVE")) {
		return 0, errNotWAV
	}

	var format *wavFormat
	rest := raw[12:]
	for len(rest) > 0 {
		if len(rest) < 8 {
			return 0, errShortChunk
		}
		id := string(rest[0:4])
		size := binary.LittleEndian.Uint32(rest[4:8])
		body := rest[8:]
		// A truncated final data chunk still counts what is present.
		if uint64(size) > uint64(len(body)) {
			size = uint32(len(body))
		}

		switch id {
		case "fmt ":
			f, err := parseFormat(body[:size])
			if err != nil {
				return 0, err
			}
			format = f
		case "data":
			if format == nil {
				return 0, errNoFormat
			}
			frameSize := uint32(format.channels) * ((uint32(format.bitsPerSample) + 7) / 8)
			frames := size / frameSize
			return float64(frames) / float64(format.sampleRate), nil
		}

		advance := uint64(size) + uint64(size&1)
		if advance > uint64(len(body)) {
			advance = uint64(len(body))
		}
		rest = body[advance:]
	}
	return 0, errNoDataChunk
}

func parseFormat(b []byte) (*wavFormat, error) {
	if len(b) < 16 {
		return nil, errBadFormat
	}
	tag := binary.LittleEndian.Uint16(b[0:2])
	// 1 is PCM, 3 IEEE float, 0xFFFE extensible.
	if tag != 1 && tag != 3 && tag != 0xFFFE {
		return nil, errUnsupported
	}
	f := &wavFormat{
		channels:      binary.LittleEndian.Uint16(b[2:4]),
		sampleRate:    binary.LittleEndian.Uint32(b[4:8]),
		bitsPerSample: binary.LittleEndian.Uint16(b[14:16]),
	}
	if f.channels == 0 || f.sampleRate == 0 || f.bitsPerSample == 0 {
		return nil, errBadFormat
	}
	return f, nil
}
