package routes

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"screenshot-capturer/internal/stats"
)

const apiVersion = 1

type MetricsResponse struct {
	TotalRoutes int           `json:"total_routes"`
	APIVersion  int           `json:"api_version"`
	Captures    stats.Summary `json:"captures"`
}

func Hello() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "Hello, World!"})
	}
}

func Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}
}

// Metrics reports the number of /v1 routes and a summary of recent
// successful capture latencies.
func Metrics(totalRoutes func() int, recorder *stats.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := MetricsResponse{
			TotalRoutes: totalRoutes(),
			APIVersion:  apiVersion,
		}
		if recorder != nil {
			response.Captures = recorder.Summary()
		}
		writeJSON(w, http.StatusOK, response)
	}
}

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		slog.Error(fmt.Sprintf("failed to marshal json: %s", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}
