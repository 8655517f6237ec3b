package api

import (
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/cocreate/internal/ingest"
	"github.com/kalambet/cocreate/internal/sources"
	"github.com/kalambet/cocreate/internal/storage"
)

const maxIngestBodySize = 15 << 20 // base64 of a MaxDocumentSize file

type postRequest struct {
	Content     string     `json:"content"`
	PublishedAt *time.Time `json:"published_at"`
}

type trainingDocRequest struct {
	FileName string `json:"file_name"`
	Type     string `json:"type"` // "text" (default) or "file" (base64)
	Content  string `json:"content"`
}

type contextGuideRequest struct {
	Content string `json:"content"`
}

// refreshVoice queues a background re-analysis. A failure here never fails
// the request that stored the new material.
func refreshVoice(r *http.Request, d Deps, userID string) {
	if _, err := ingest.EnqueueVoiceRefresh(r.Context(), d.Store, userID); err != nil {
		slog.Warn("failed to enqueue voice refresh", "error", err, "user_id", userID)
	}
}

func handleCreatePost(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req postRequest
		if !decodeBody(w, r, maxRequestBodySize, &req) {
			return
		}
		if strings.TrimSpace(req.Content) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "content is required")
			return
		}
		user := actingUser(r)
		p := storage.Post{
			ID:          uuid.New().String(),
			UserID:      user,
			Content:     req.Content,
			PublishedAt: req.PublishedAt,
			CreatedAt:   time.Now(),
		}
		if err := d.Store.SavePost(r.Context(), p); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to store post: %v", err)
			return
		}
		refreshVoice(r, d, user)
		writeJSON(w, http.StatusCreated, p)
	}
}

func handleListPosts(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		posts, err := d.Store.ListPosts(r.Context(), actingUser(r), limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list posts: %v", err)
			return
		}
		if posts == nil {
			posts = []storage.Post{}
		}
		writeJSON(w, http.StatusOK, posts)
	}
}

func handleUploadTrainingDoc(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req trainingDocRequest
		if !decodeBody(w, r, maxIngestBodySize, &req) {
			return
		}
		if req.FileName == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "file_name is required")
			return
		}
		if req.Content == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "content is required")
			return
		}

		var data []byte
		switch req.Type {
		case "", "text":
			data = []byte(req.Content)
		case "file":
			decoded, err := base64.StdEncoding.DecodeString(req.Content)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid base64 content: %v", err)
				return
			}
			data = decoded
		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown type %q", req.Type)
			return
		}

		doc, err := sources.ExtractText(req.FileName, data)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "extracting text: %v", err)
			return
		}
		if doc.WordCount == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "document contains no text")
			return
		}

		user := actingUser(r)
		stored := storage.TrainingDoc{
			ID:            uuid.New().String(),
			UserID:        user,
			FileName:      doc.FileName,
			ExtractedText: doc.ExtractedText,
			WordCount:     doc.WordCount,
			CreatedAt:     time.Now(),
		}
		if err := d.Store.SaveTrainingDoc(r.Context(), stored); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to store training doc: %v", err)
			return
		}
		refreshVoice(r, d, user)
		writeJSON(w, http.StatusCreated, stored)
	}
}

func handleListTrainingDocs(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docs, err := d.Store.ListTrainingDocs(r.Context(), actingUser(r))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list training docs: %v", err)
			return
		}
		if docs == nil {
			docs = []storage.TrainingDoc{}
		}
		writeJSON(w, http.StatusOK, docs)
	}
}

func handlePutContextGuide(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req contextGuideRequest
		if !decodeBody(w, r, maxRequestBodySize, &req) {
			return
		}
		user := actingUser(r)
		if err := d.Store.SetContextGuide(r.Context(), user, req.Content); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to store context guide: %v", err)
			return
		}
		refreshVoice(r, d, user)
		guide, err := d.Store.GetContextGuide(r.Context(), user)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to read context guide: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, guide)
	}
}

func handleGetContextGuide(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		guide, err := d.Store.GetContextGuide(r.Context(), actingUser(r))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "no context guide set")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to read context guide: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, guide)
	}
}
