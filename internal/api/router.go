// Package api exposes the generation pipeline and its supporting data over
// HTTP and MCP.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kalambet/cocreate/internal/generation"
	"github.com/kalambet/cocreate/internal/sources"
	"github.com/kalambet/cocreate/internal/storage"
	"github.com/kalambet/cocreate/internal/voice"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Deps holds everything the HTTP handlers need.
type Deps struct {
	Store          *storage.Store
	Pipeline       *generation.Pipeline
	Profiles       *voice.Store
	Analyzer       *voice.Analyzer
	Sources        *sources.Gatherer
	Token          string
	RequestTimeout time.Duration
	Metrics        http.Handler // optional; /metrics is not mounted when nil
}

// NewHandler returns the HTTP API. /health and /metrics are public; every
// /v1 route requires the bearer token and an acting user.
func NewHandler(d Deps) http.Handler {
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(BearerAuth(d.Token), ActingUser)

		r.Post("/posts/generate", handleGenerate(d))
		r.Post("/posts/refine", handleRefine(d))
		r.Post("/posts", handleCreatePost(d))
		r.Get("/posts", handleListPosts(d))

		r.Post("/training-docs", handleUploadTrainingDoc(d))
		r.Get("/training-docs", handleListTrainingDocs(d))
		r.Put("/context-guide", handlePutContextGuide(d))
		r.Get("/context-guide", handleGetContextGuide(d))

		r.Get("/voice-profile", handleGetVoiceProfile(d))
		r.Post("/voice-profile/analyze", handleAnalyzeVoice(d))
		r.Patch("/voice-profile/insights", handlePatchInsights(d))

		r.Post("/relationships", handleCreateRelationship(d))
		r.Get("/relationships", handleListRelationships(d))
		r.Post("/relationships/{id}/accept", handleAcceptRelationship(d))
		r.Delete("/relationships/{id}", handleRevokeRelationship(d))

		r.Get("/generations", handleListGenerations(d))
		r.Get("/generations/{id}", handleGetGeneration(d))

		r.Get("/status", handleStatus(d))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
