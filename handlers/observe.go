package handlers

import (
	"net/http"

	"github.com/upb/inference-observe/app"
	"github.com/upb/inference-observe/internal/observability"
	"github.com/upb/inference-observe/middleware"
	"github.com/upb/inference-observe/utils"
	"go.uber.org/zap"
)

// RequestsResponse is served by the completed-requests endpoint
type RequestsResponse struct {
	Requests []observability.CompletedRequest `json:"requests"`
	Count    int                              `json:"count"`
	Total    uint64                           `json:"total"`
	Capacity int                              `json:"capacity"`
}

// MetricsHandler renders every series in the text exposition format
func MetricsHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := deps.Registry.Render(r.Context())
		if err != nil {
			deps.Logger.Error("failed to render metrics",
				zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
				zap.Error(err))
			_ = utils.WriteInternalServerError(w, "failed to render metrics")
			return
		}

		if err := utils.WriteText(w, http.StatusOK, observability.ContentType(), body); err != nil {
			deps.Logger.Error("failed to write metrics response", zap.Error(err))
		}
	}
}

// ConfigHandler returns the effective observe configuration
func ConfigHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := utils.WriteJSON(w, http.StatusOK, deps.Config.Observe.Effective()); err != nil {
			deps.Logger.Error("failed to write config response", zap.Error(err))
		}
	}
}

// RequestsHandler returns the most recent completed requests, newest first.
// The optional limit query parameter caps the number returned.
func RequestsHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		capacity := deps.History.Capacity()
		limit, err := utils.ParseIntInRange(r.URL.Query().Get("limit"), "limit", 0, 0, capacity)
		if err != nil {
			_ = utils.WriteBadRequest(w, err.Error(), map[string]interface{}{"limit": r.URL.Query().Get("limit")})
			return
		}

		entries := deps.History.Snapshot(limit)
		response := RequestsResponse{
			Requests: entries,
			Count:    len(entries),
			Total:    deps.History.Total(),
			Capacity: capacity,
		}

		if err := utils.WriteJSON(w, http.StatusOK, response); err != nil {
			deps.Logger.Error("failed to write requests response", zap.Error(err))
		}
	}
}
