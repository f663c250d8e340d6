// cmd/worker-manager/server.go
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"retail-chat-workers/internal/common/logger"
	"retail-chat-workers/internal/models"
)

const maxRequestBody = 64 << 10

type turnHandler interface {
	HandleTurn(ctx context.Context, msg models.InboundMessage) models.PipelineResult
}

// readinessCheck reports a dependency's state. Failures do not make the
// service unready since every dependency has a fallback tier.
type readinessCheck struct {
	name  string
	check func(ctx context.Context) error
}

type chatTurnRequest struct {
	Text       string `json:"text"`
	UserID     string `json:"userId"`
	Platform   string `json:"platform"`
	FormatHint string `json:"formatHint"`
}

func newServer(pipeline turnHandler, checks []readinessCheck, log logger.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		deps := make(map[string]string, len(checks))
		for _, c := range checks {
			if err := c.check(ctx); err != nil {
				deps[c.name] = "degraded: " + err.Error()
				continue
			}
			deps[c.name] = "ok"
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":       "ready",
			"dependencies": deps,
			"time":         time.Now().Format(time.RFC3339),
		})
	})

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/api/chat/turn", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}

		var req chatTurnRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
			log.Info("rejected chat turn request", map[string]interface{}{"error": err.Error()})
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "request body must be a JSON object"})
			return
		}

		res := pipeline.HandleTurn(r.Context(), models.InboundMessage{
			Text:       req.Text,
			UserID:     req.UserID,
			Platform:   req.Platform,
			FormatHint: req.FormatHint,
			ReceivedAt: time.Now().UTC(),
		})
		writeJSON(w, http.StatusOK, res)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
