package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/cocreate/internal/ingest"
	"github.com/kalambet/cocreate/internal/storage"
)

type generationDetail struct {
	storage.Generation
	Result json.RawMessage `json:"result,omitempty"`
}

type statusResponse struct {
	PendingVoiceRefresh int `json:"pending_voice_refresh"`
}

func handleListGenerations(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		gens, err := d.Store.ListGenerations(r.Context(), actingUser(r), limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list generations: %v", err)
			return
		}
		if gens == nil {
			gens = []storage.Generation{}
		}
		writeJSON(w, http.StatusOK, gens)
	}
}

func handleGetGeneration(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		g, err := d.Store.GetGeneration(r.Context(), actingUser(r), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "generation %s not found", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load generation: %v", err)
			return
		}
		detail := generationDetail{Generation: g}
		if json.Valid([]byte(g.ResultJSON)) {
			detail.Result = json.RawMessage(g.ResultJSON)
		}
		writeJSON(w, http.StatusOK, detail)
	}
}

func handleStatus(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := d.Store.CountPendingJobs(r.Context(), ingest.JobVoiceRefresh)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to count jobs: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, statusResponse{PendingVoiceRefresh: n})
	}
}
