package handlers

import (
	"net/http"

	"github.com/upb/inference-observe/app"
	"github.com/upb/inference-observe/utils"
)

// ProxyHandler forwards everything unmatched to the upstream inference
// gateway. Without an upstream it answers with a JSON 404.
func ProxyHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Upstream == nil {
			_ = utils.WriteNotFound(w, "endpoint not found")
			return
		}
		deps.Upstream.ServeHTTP(w, r)
	}
}
