package server

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Spec      string `json:"spec"`
	Version   string `json:"version,omitempty"`
	Tools     int    `json:"tools"`
	Resources int    `json:"resources"`
	Sessions  int    `json:"sessions"`
	Uptime    string `json:"uptime"`
}

// HealthInfo describes what the process is serving.
type HealthInfo struct {
	Service   string
	Spec      string
	Version   string
	Tools     int
	Resources int
	// Sessions reports live sessions; nil in stdio mode.
	Sessions func() int
}

// HandleHealth handles the /health endpoint for health checks
func HandleHealth(info HealthInfo, logger *zap.Logger) http.HandlerFunc {
	started := time.Now()
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response := HealthResponse{
			Status:    "healthy",
			Service:   info.Service,
			Spec:      info.Spec,
			Version:   info.Version,
			Tools:     info.Tools,
			Resources: info.Resources,
			Uptime:    time.Since(started).Round(time.Second).String(),
		}
		if info.Sessions != nil {
			response.Sessions = info.Sessions()
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(response); err != nil {
			logger.Warn("failed to encode health response", zap.Error(err))
		}
	}
}
