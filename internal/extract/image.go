package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	// Rough yield of recognised text per byte of image.
	inlineBytesPerChar = 100
	remoteBytesPerChar = 75

	// maxRemoteImageBytes caps the GET fallback when no Content-Length is sent.
	maxRemoteImageBytes = 20 << 20
)

// imageCharacters estimates OCR output size over image[].
func (e *Extractor) imageCharacters(ctx context.Context, doc gjson.Result) int {
	total := 0
	for _, item := range items(doc, "image") {
		if content := item.Get("imageContent"); content.Type == gjson.String && content.Str != "" {
			total += len(content.Str) / inlineBytesPerChar
			continue
		}
		uri := item.Get("imageUri")
		if uri.Type != gjson.String || uri.Str == "" || !e.fetchRemote {
			continue
		}
		size, err := e.remoteSize(ctx, uri.Str)
		if err != nil {
			e.logger.Debug("could not size remote image",
				zap.String("uri", uri.Str), zap.Error(err))
			continue
		}
		total += int(size / remoteBytesPerChar)
	}
	return total
}

// remoteSize asks for Content-Length with HEAD and falls back to counting a
// capped GET body.
func (e *Extractor) remoteSize(ctx context.Context, raw string) (int64, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid image uri: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return 0, fmt.Errorf("unsupported image uri scheme %q", u.Scheme)
	}

	ctx, cancel := context.WithTimeout(ctx, e.fetchTimeout)
	defer cancel()

	head, err := http.NewRequestWithContext(ctx, http.MethodHead, u.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build HEAD request: %w", err)
	}
	resp, err := e.client.Do(head)
	if err != nil {
		return 0, fmt.Errorf("HEAD %s: %w", u.Redacted(), err)
	}
	resp.Body.Close()
	// Servers that reject HEAD still get a GET.
	if resp.StatusCode < http.StatusBadRequest && resp.ContentLength >= 0 {
		return resp.ContentLength, nil
	}

	get, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build GET request: %w", err)
	}
	resp, err = e.client.Do(get)
	if err != nil {
		return 0, fmt.Errorf("GET %s: %w", u.Redacted(), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return 0, fmt.Errorf("GET %s: status %d", u.Redacted(), resp.StatusCode)
	}
	n, err := io.Copy(io.Discard, io.LimitReader(resp.Body, maxRemoteImageBytes))
	if err != nil {
		return 0, fmt.Errorf("GET %s: %w", u.Redacted(), err)
	}
	return n, nil
}
