package handlers

import (
	"math"
	"net/http"

	"github.com/upb/inference-observe/app"
	"github.com/upb/inference-observe/utils"
	"go.uber.org/zap"
)

// HealthResponse is served by the observe health endpoint
type HealthResponse struct {
	Status        string   `json:"status"`
	Service       string   `json:"service"`
	Version       string   `json:"version"`
	Enabled       bool     `json:"enabled"`
	Customers     []string `json:"customers"`
	Apps          []string `json:"apps"`
	InstanceID    string   `json:"instance_id"`
	UptimeSeconds float64  `json:"uptime_seconds"`
}

// HealthCheck returns a simple liveness handler
func HealthCheck(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}

// ObserveHealthHandler reports the observation state of this instance
func ObserveHealthHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg := deps.Config.Observe
		response := HealthResponse{
			Status:        "healthy",
			Service:       app.ServiceName,
			Version:       app.Version,
			Enabled:       cfg.Enabled,
			Customers:     cfg.Customers,
			Apps:          cfg.Apps,
			InstanceID:    deps.InstanceID,
			UptimeSeconds: math.Round(deps.Uptime().Seconds()*1000) / 1000,
		}

		if err := utils.WriteJSON(w, http.StatusOK, response); err != nil {
			deps.Logger.Error("failed to write health response", zap.Error(err))
		}
	}
}
