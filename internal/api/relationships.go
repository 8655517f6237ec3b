package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kalambet/cocreate/internal/storage"
)

type relationshipRequest struct {
	ApproverID string `json:"approver_id"`
}

// handleCreateRelationship makes the acting user a ghostwriter for
// approver_id. The link grants nothing until the approver accepts it.
func handleCreateRelationship(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req relationshipRequest
		if !decodeBody(w, r, maxRequestBodySize, &req) {
			return
		}
		user := actingUser(r)
		approver := strings.TrimSpace(req.ApproverID)
		if approver == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "approver_id is required")
			return
		}
		if approver == user {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "cannot create a relationship with yourself")
			return
		}
		rel := storage.Relationship{
			ID:            uuid.New().String(),
			GhostwriterID: user,
			ApproverID:    approver,
			Status:        storage.RelationshipPending,
		}
		if err := d.Store.CreateRelationship(r.Context(), rel); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create relationship: %v", err)
			return
		}
		created, err := d.Store.GetRelationship(r.Context(), rel.ID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to read relationship: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func handleListRelationships(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rels, err := d.Store.ListRelationships(r.Context(), actingUser(r))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list relationships: %v", err)
			return
		}
		if rels == nil {
			rels = []storage.Relationship{}
		}
		writeJSON(w, http.StatusOK, rels)
	}
}

func handleAcceptRelationship(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rel, ok := loadRelationship(w, r, d)
		if !ok {
			return
		}
		if rel.ApproverID != actingUser(r) {
			httpError(w, http.StatusForbidden, "permission_error", "only the approver can accept a relationship")
			return
		}
		if rel.Status != storage.RelationshipPending {
			httpError(w, http.StatusConflict, "invalid_request_error", "relationship is %s", rel.Status)
			return
		}
		setRelationshipStatus(w, r, d, rel, storage.RelationshipActive)
	}
}

func handleRevokeRelationship(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rel, ok := loadRelationship(w, r, d)
		if !ok {
			return
		}
		setRelationshipStatus(w, r, d, rel, storage.RelationshipRevoked)
	}
}

// loadRelationship fetches {id} and hides relationships the acting user is
// not a party to.
func loadRelationship(w http.ResponseWriter, r *http.Request, d Deps) (storage.Relationship, bool) {
	id := chi.URLParam(r, "id")
	rel, err := d.Store.GetRelationship(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		httpError(w, http.StatusNotFound, "not_found_error", "relationship %s not found", id)
		return rel, false
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to load relationship: %v", err)
		return rel, false
	}
	user := actingUser(r)
	if rel.GhostwriterID != user && rel.ApproverID != user {
		httpError(w, http.StatusNotFound, "not_found_error", "relationship %s not found", id)
		return rel, false
	}
	return rel, true
}

func setRelationshipStatus(w http.ResponseWriter, r *http.Request, d Deps, rel storage.Relationship, status string) {
	if err := d.Store.SetRelationshipStatus(r.Context(), rel.ID, status); err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to update relationship: %v", err)
		return
	}
	updated, err := d.Store.GetRelationship(r.Context(), rel.ID)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to read relationship: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
