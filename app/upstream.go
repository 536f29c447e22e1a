package app

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/upb/inference-observe/config"
	"github.com/upb/inference-observe/middleware"
	"github.com/upb/inference-observe/utils"
	"go.uber.org/zap"
)

// NewUpstreamProxy builds the reverse proxy to the inference gateway.
// It returns nil, nil when cfg.URL is empty.
func NewUpstreamProxy(cfg config.UpstreamConfig, logger *zap.Logger) (*httputil.ReverseProxy, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	target, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL %q: %w", cfg.URL, err)
	}
	if (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		return nil, fmt.Errorf("upstream URL must be an absolute http(s) URL: %q", cfg.URL)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.Timeout

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.Transport = transport

	director := proxy.Director
	proxy.Director = func(r *http.Request) {
		director(r)
		r.Host = target.Host
		if id := middleware.GetRequestIDFromContext(r.Context()); id != "" {
			r.Header.Set("X-Request-ID", id)
		}
	}

	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Warn("upstream request failed",
			zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("upstream", target.Host),
			zap.Error(err))
		if writeErr := utils.WriteBadGateway(w, "upstream request failed"); writeErr != nil {
			logger.Error("failed to write bad gateway response", zap.Error(writeErr))
		}
	}

	logger.Info("upstream proxy configured",
		zap.String("upstream", target.String()),
		zap.Duration("timeout", cfg.Timeout))
	return proxy, nil
}
