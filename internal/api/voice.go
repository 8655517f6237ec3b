package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/kalambet/cocreate/internal/voice"
)

type analyzeRequest struct {
	Force bool `json:"force"`
}

func handleGetVoiceProfile(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := actingUser(r)
		target := r.URL.Query().Get("target_user_id")
		if target == "" {
			target = user
		}
		p, err := d.Profiles.GetWithAccess(r.Context(), user, target)
		if err != nil {
			if errors.Is(err, voice.ErrAccessDenied) {
				httpError(w, http.StatusForbidden, "permission_error", "no active ghostwriter relationship with %s", target)
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "loading voice profile: %v", err)
			return
		}
		if p == nil {
			httpError(w, http.StatusNotFound, "not_found_error", "no voice profile for %s", target)
			return
		}
		if r.URL.Query().Get("view") == "simplified" {
			writeJSON(w, http.StatusOK, voice.Simplify(p))
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func handleAnalyzeVoice(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// The body is optional.
		var req analyzeRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		user := actingUser(r)

		ctx, cancel := context.WithTimeout(r.Context(), d.RequestTimeout)
		defer cancel()

		src, err := d.Sources.Gather(ctx, user)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "gathering sources: %v", err)
			return
		}
		p, err := d.Analyzer.AnalyzeAndUpdate(ctx, user, src, req.Force)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "analyzing voice: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func handlePatchInsights(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var insights voice.Insights
		if !decodeBody(w, r, maxRequestBodySize, &insights) {
			return
		}
		if len(insights) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "at least one insight is required")
			return
		}
		user := actingUser(r)
		p, err := d.Profiles.UpdatePerformanceInsights(r.Context(), user, insights)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "updating insights: %v", err)
			return
		}
		if p == nil {
			httpError(w, http.StatusNotFound, "not_found_error", "no voice profile for %s", user)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}
