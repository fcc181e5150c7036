package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	chatrelay "github.com/quill-labs/chat-relay"
	"github.com/quill-labs/chat-relay/inference"
	"github.com/quill-labs/chat-relay/internal/logging"
	"github.com/quill-labs/chat-relay/internal/version"
)

type chatRequest struct {
	Query string `json:"query"`
	Model string `json:"model,omitempty"`
}

type chatResponse struct {
	Text      string `json:"text"`
	Cached    bool   `json:"cached"`
	Model     string `json:"model"`
	LatencyMS int64  `json:"latency_ms"`
}

// newRouter builds the HTTP router.
func newRouter(relay *chatrelay.Relay, corsOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(logging.Middleware)
	r.Use(corsMiddleware(corsOrigins...))

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"service": "chat-relay",
			"version": version.Short(),
			"endpoints": []string{
				"GET /health",
				"POST /chat",
				"GET /cache/stats",
				"DELETE /cache/clear",
				"GET /metrics",
			},
		})
	})

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		status := relay.Health(req.Context())
		code := http.StatusOK
		overall := "ok"
		if !status.Healthy() {
			code = http.StatusServiceUnavailable
			overall = "degraded"
		}
		writeJSON(w, code, map[string]interface{}{
			"status":    overall,
			"cache":     status.Cache,
			"inference": status.Inference,
		})
	})

	r.Post("/chat", func(w http.ResponseWriter, req *http.Request) {
		var body chatRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "request body must be JSON with a \"query\" field", "invalid_request_error")
			return
		}

		result, err := relay.Handle(req.Context(), body.Query, body.Model)
		if err != nil {
			writeRelayError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, chatResponse{
			Text:      result.Text,
			Cached:    result.Cached,
			Model:     result.Model,
			LatencyMS: result.Latency.Milliseconds(),
		})
	})

	r.Get("/cache/stats", func(w http.ResponseWriter, req *http.Request) {
		stats, err := relay.CacheStats(req.Context())
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "cache is unreachable", "cache_unavailable")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"hits":     stats.Hits,
			"misses":   stats.Misses,
			"keys":     stats.Keys,
			"hit_rate": stats.HitRate(),
		})
	})

	r.Delete("/cache/clear", func(w http.ResponseWriter, req *http.Request) {
		cleared, err := relay.ClearCache(req.Context())
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "cache is unreachable", "cache_unavailable")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"cleared": cleared})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

// writeRelayError maps relay errors onto HTTP statuses. Upstream auth
// failures deliberately produce a generic message so provider credentials and
// error detail never reach clients.
func writeRelayError(w http.ResponseWriter, err error) {
	var (
		authErr        *inference.AuthError
		reqErr         *inference.RequestError
		unavailableErr *inference.UnavailableError
	)
	switch {
	case errors.Is(err, chatrelay.ErrEmptyQuery), errors.Is(err, chatrelay.ErrQueryTooLong):
		writeError(w, http.StatusBadRequest, err.Error(), "invalid_request_error")
	case errors.As(err, &authErr):
		writeError(w, http.StatusBadGateway, "upstream rejected the relay's credentials", "inference_auth_error")
	case errors.As(err, &reqErr):
		writeError(w, http.StatusBadGateway, "upstream rejected the request", "inference_request_error")
	case errors.As(err, &unavailableErr):
		writeError(w, http.StatusServiceUnavailable, "inference endpoint is unavailable, try again later", "inference_unavailable")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "request cancelled or timed out", "timeout")
	default:
		writeError(w, http.StatusInternalServerError, "internal error", "internal_error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response in the envelope clients expect.
func writeError(w http.ResponseWriter, status int, message, errType string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": message,
			"type":    errType,
		},
	})
}
