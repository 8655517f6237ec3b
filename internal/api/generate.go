package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/kalambet/cocreate/internal/generation"
	"github.com/kalambet/cocreate/internal/storage"
	"github.com/kalambet/cocreate/internal/voice"
)

type generateRequest struct {
	UserRequest   string             `json:"user_request"`
	TargetUserID  string             `json:"target_user_id"`
	Sources       *voice.Sources     `json:"sources"`
	GatherSources bool               `json:"gather_sources"`
	CurrentDraft  string             `json:"current_draft"`
	Action        generation.Action  `json:"action"`
	Options       generation.Options `json:"options"`
}

type refineRequest struct {
	Content      string `json:"content"`
	Feedback     string `json:"feedback"`
	TargetUserID string `json:"target_user_id"`
}

func handleGenerate(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		if !decodeBody(w, r, maxRequestBodySize, &req) {
			return
		}
		user := actingUser(r)
		target := req.TargetUserID
		if target == "" {
			target = user
		}

		ctx, cancel := context.WithTimeout(r.Context(), d.RequestTimeout)
		defer cancel()

		var src voice.Sources
		switch {
		case req.Sources != nil:
			src = *req.Sources
		case req.GatherSources:
			// Check access before reading someone else's material.
			if err := d.Profiles.CheckAccess(ctx, user, target); err != nil {
				if errors.Is(err, voice.ErrAccessDenied) {
					httpError(w, http.StatusForbidden, "permission_error", "no active ghostwriter relationship with %s", target)
					return
				}
				httpError(w, http.StatusInternalServerError, "api_error", "checking access: %v", err)
				return
			}
			gathered, err := d.Sources.Gather(ctx, target)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "gathering sources: %v", err)
				return
			}
			src = gathered
		}

		res := d.Pipeline.Generate(ctx, generation.GenerateParams{
			UserRequest:  req.UserRequest,
			UserID:       user,
			TargetUserID: target,
			Sources:      src,
			CurrentDraft: req.CurrentDraft,
			Action:       req.Action,
			Options:      req.Options,
		})

		// Persist even if the client has gone away.
		id, err := saveGeneration(context.WithoutCancel(r.Context()), d.Store, user, target, req, res)
		if err != nil {
			slog.Error("failed to save generation", "error", err, "user_id", user)
		} else {
			w.Header().Set("X-Generation-ID", id)
		}

		writeJSON(w, generateStatus(res), res)
	}
}

func generateStatus(res *generation.Result) int {
	if res.Success {
		return http.StatusOK
	}
	switch res.Failure {
	case generation.FailureInvalidRequest:
		return http.StatusBadRequest
	case generation.FailureAccessDenied:
		return http.StatusForbidden
	case generation.FailureDrafting:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func generationOutcome(res *generation.Result) string {
	switch {
	case !res.Success:
		return generation.OutcomeFailed
	case res.NeedsMoreInfo:
		return generation.OutcomeNeedsMoreInfo
	default:
		return generation.OutcomeCompleted
	}
}

func saveGeneration(ctx context.Context, store *storage.Store, user, target string, req generateRequest, res *generation.Result) (string, error) {
	raw, err := json.Marshal(res)
	if err != nil {
		return "", err
	}
	action := req.Action
	if action == "" {
		action = generation.ActionCreate
	}
	content := res.Content
	if content == "" {
		content = res.DraftContent
	}
	g := storage.Generation{
		ID:             uuid.New().String(),
		UserID:         user,
		TargetUserID:   target,
		UserRequest:    req.UserRequest,
		Action:         string(action),
		Outcome:        generationOutcome(res),
		Content:        content,
		QualityVerdict: string(res.QualityVerdict),
		QualityScore:   res.QualityScore,
		DurationMS:     res.DurationMS,
		ResultJSON:     string(raw),
	}
	if err := store.SaveGeneration(ctx, g); err != nil {
		return "", err
	}
	return g.ID, nil
}

func handleRefine(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refineRequest
		if !decodeBody(w, r, maxRequestBodySize, &req) {
			return
		}
		if strings.TrimSpace(req.Content) == "" || strings.TrimSpace(req.Feedback) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "content and feedback are required")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), d.RequestTimeout)
		defer cancel()

		out, err := d.Pipeline.Refine(ctx, actingUser(r), req.TargetUserID, req.Content, req.Feedback)
		if err != nil {
			if errors.Is(err, voice.ErrAccessDenied) {
				httpError(w, http.StatusForbidden, "permission_error", "no active ghostwriter relationship with %s", req.TargetUserID)
				return
			}
			httpError(w, http.StatusBadGateway, "api_error", "refining content: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}
