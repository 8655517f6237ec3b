// Package ingest runs background jobs that keep voice profiles current as
// new source material arrives.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/cocreate/internal/storage"
	"github.com/kalambet/cocreate/internal/voice"
)

// JobVoiceRefresh re-analyses a user's voice from their stored sources.
const JobVoiceRefresh = "voice_refresh"

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(ctx context.Context, types []string) (*storage.Job, error)
	CompleteJob(ctx context.Context, id string) error
	FailJob(ctx context.Context, id string, errMsg string) error
}

// Enqueuer adds jobs to the queue, skipping duplicates that are still pending.
type Enqueuer interface {
	EnqueueJobOnce(ctx context.Context, job storage.Job) (bool, error)
}

// SourceGatherer loads a user's source material.
type SourceGatherer interface {
	Gather(ctx context.Context, userID string) (voice.Sources, error)
}

// ProfileAnalyzer refreshes a voice profile from sources.
type ProfileAnalyzer interface {
	AnalyzeAndUpdate(ctx context.Context, userID string, src voice.Sources, force bool) (*voice.VoiceProfile, error)
}

type refreshPayload struct {
	UserID string `json:"user_id"`
}

// EnqueueVoiceRefresh queues a voice_refresh job for userID. Refreshes for a
// user coalesce: while one is still pending, further calls return "" and nil.
func EnqueueVoiceRefresh(ctx context.Context, q Enqueuer, userID string) (string, error) {
	if userID == "" {
		return "", errors.New("user id is required")
	}
	payload, err := json.Marshal(refreshPayload{UserID: userID})
	if err != nil {
		return "", fmt.Errorf("encoding job payload: %w", err)
	}
	id := uuid.New().String()
	queued, err := q.EnqueueJobOnce(ctx, storage.Job{ID: id, Type: JobVoiceRefresh, PayloadJSON: string(payload)})
	if err != nil {
		return "", fmt.Errorf("enqueueing voice refresh for %s: %w", userID, err)
	}
	if !queued {
		return "", nil
	}
	return id, nil
}

// Worker processes voice_refresh jobs from the SQLite job queue.
type Worker struct {
	store    JobStore
	sources  SourceGatherer
	analyzer ProfileAnalyzer
	poll     time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, sources SourceGatherer, analyzer ProfileAnalyzer, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:    store,
		sources:  sources,
		analyzer: analyzer,
		poll:     pollInterval,
		logger:   slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single voice_refresh job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob(ctx, []string{JobVoiceRefresh})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(ctx, job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(ctx, job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload refreshPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}
	if payload.UserID == "" {
		return errors.New("payload has no user_id")
	}

	src, err := w.sources.Gather(ctx, payload.UserID)
	if err != nil {
		return err
	}

	p, err := w.analyzer.AnalyzeAndUpdate(ctx, payload.UserID, src, false)
	if err != nil {
		return fmt.Errorf("refreshing voice profile: %w", err)
	}
	w.logger.Debug("voice profile refreshed", "user_id", payload.UserID, "version", p.Version,
		"method", p.AnalysisSources.AnalysisMethod)
	return nil
}
