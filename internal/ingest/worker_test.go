package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kalambet/cocreate/internal/sources"
	"github.com/kalambet/cocreate/internal/storage"
	"github.com/kalambet/cocreate/internal/voice"
)

type mockAnalyzer struct {
	mu        sync.Mutex
	users     []string
	analyzeFn func(userID string, src voice.Sources) error
}

func (m *mockAnalyzer) AnalyzeAndUpdate(_ context.Context, userID string, src voice.Sources, force bool) (*voice.VoiceProfile, error) {
	if force {
		return nil, fmt.Errorf("worker must not force analysis")
	}
	if m.analyzeFn != nil {
		if err := m.analyzeFn(userID, src); err != nil {
			return nil, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = append(m.users, userID)
	p := voice.DefaultProfile()
	p.UserID = userID
	return &p, nil
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func enqueueTestJob(t *testing.T, store *storage.Store, jobID, userID string) {
	t.Helper()
	payload, _ := json.Marshal(map[string]string{"user_id": userID})
	job := storage.Job{
		ID:          jobID,
		Type:        JobVoiceRefresh,
		PayloadJSON: string(payload),
	}
	if err := store.EnqueueJob(context.Background(), job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
}

// resetRunAfter moves run_after into the past so the job is immediately
// claimable after FailJob backoff. The layout matches storage's fixed-width
// timestamps so the lexical comparison in ClaimNextJob holds.
func resetRunAfter(t *testing.T, store *storage.Store, jobID string) {
	t.Helper()
	now := time.Now().UTC().Add(-time.Second).Format("2006-01-02T15:04:05.000000000Z07:00")
	_, err := store.DB().Exec(`UPDATE jobs SET run_after = ? WHERE id = ?`, now, jobID)
	if err != nil {
		t.Fatalf("resetRunAfter: %v", err)
	}
}

func jobStatus(t *testing.T, store *storage.Store, jobID string) (string, int) {
	t.Helper()
	var status string
	var attempts int
	if err := store.DB().QueryRow(`SELECT status, attempts FROM jobs WHERE id = ?`, jobID).Scan(&status, &attempts); err != nil {
		t.Fatalf("query job %s: %v", jobID, err)
	}
	return status, attempts
}

func TestEnqueueVoiceRefresh(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, err := EnqueueVoiceRefresh(ctx, store, "u1")
	if err != nil {
		t.Fatalf("EnqueueVoiceRefresh: %v", err)
	}
	job, err := store.ClaimNextJob(ctx, []string{JobVoiceRefresh})
	if err != nil || job == nil {
		t.Fatalf("ClaimNextJob = %v, %v", job, err)
	}
	if job.ID != id || job.PayloadJSON != `{"user_id":"u1"}` {
		t.Errorf("job = %+v", job)
	}

	if _, err := EnqueueVoiceRefresh(ctx, store, ""); err == nil {
		t.Error("expected error for empty user id")
	}
}

func TestEnqueueVoiceRefresh_Coalesces(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first, err := EnqueueVoiceRefresh(ctx, store, "u1")
	if err != nil || first == "" {
		t.Fatalf("first enqueue = %q, %v", first, err)
	}
	for i := 0; i < 3; i++ {
		id, err := EnqueueVoiceRefresh(ctx, store, "u1")
		if err != nil {
			t.Fatalf("EnqueueVoiceRefresh: %v", err)
		}
		if id != "" {
			t.Errorf("duplicate refresh queued as %s", id)
		}
	}
	if id, _ := EnqueueVoiceRefresh(ctx, store, "u2"); id == "" {
		t.Error("refresh for another user was coalesced")
	}
	if n, _ := store.CountPendingJobs(ctx, JobVoiceRefresh); n != 2 {
		t.Errorf("pending = %d, want 2", n)
	}

	// Once claimed, new material queues a follow-up refresh.
	if _, err := store.ClaimNextJob(ctx, []string{JobVoiceRefresh}); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if _, err := store.ClaimNextJob(ctx, []string{JobVoiceRefresh}); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if id, _ := EnqueueVoiceRefresh(ctx, store, "u1"); id == "" {
		t.Error("refresh not queued while previous one is running")
	}
}

func TestWorker_RefreshesProfileFromStoredSources(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		post := storage.Post{ID: fmt.Sprintf("p%d", i), UserID: "u1", Content: "Short post. With lines.\n\nAnd a question?"}
		if err := store.SavePost(ctx, post); err != nil {
			t.Fatal(err)
		}
	}
	enqueueTestJob(t, store, "job-1", "u1")

	profiles := voice.NewStore(store)
	analyzer := voice.NewAnalyzer(profiles, nil, nil, "", time.Second)
	w := NewWorker(store, sources.NewGatherer(store), analyzer, 0)

	didWork, err := w.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if !didWork {
		t.Fatal("RunOnce returned false, expected true")
	}

	p, err := profiles.Get(ctx, "u1")
	if err != nil || p == nil {
		t.Fatalf("Get = %+v, %v", p, err)
	}
	if p.AnalysisSources.PastPostsCount != 3 {
		t.Errorf("PastPostsCount = %d, want 3", p.AnalysisSources.PastPostsCount)
	}
	if p.AnalysisSources.AnalysisMethod != voice.MethodPatternFallback {
		t.Errorf("AnalysisMethod = %q, want %q", p.AnalysisSources.AnalysisMethod, voice.MethodPatternFallback)
	}
	if status, _ := jobStatus(t, store, "job-1"); status != "completed" {
		t.Errorf("status = %q, want completed", status)
	}
}

func TestWorker_RefreshesProfileAfterNewPostsBeyondCap(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	next := 0
	addPosts := func(n int) {
		t.Helper()
		for i := 0; i < n; i++ {
			post := storage.Post{ID: fmt.Sprintf("p%03d", next), UserID: "u1", Content: "A post.\n\nWith a second line."}
			if err := store.SavePost(ctx, post); err != nil {
				t.Fatal(err)
			}
			next++
		}
	}

	profiles := voice.NewStore(store)
	analyzer := voice.NewAnalyzer(profiles, nil, nil, "", time.Second)
	w := NewWorker(store, sources.NewGatherer(store), analyzer, 0)
	run := func(jobID string) *voice.VoiceProfile {
		t.Helper()
		enqueueTestJob(t, store, jobID, "u1")
		if _, err := w.RunOnce(ctx); err != nil {
			t.Fatalf("RunOnce(%s): %v", jobID, err)
		}
		p, err := profiles.Get(ctx, "u1")
		if err != nil || p == nil {
			t.Fatalf("Get = %+v, %v", p, err)
		}
		return p
	}

	addPosts(sources.MaxPastPosts + 10)
	p := run("job-1")
	if p.Version != 1 || p.AnalysisSources.PastPostsCount != sources.MaxPastPosts+10 {
		t.Fatalf("after job-1: version=%d posts=%d", p.Version, p.AnalysisSources.PastPostsCount)
	}

	// Five new posts is within the threshold.
	addPosts(5)
	if p = run("job-2"); p.Version != 1 {
		t.Errorf("after job-2: version=%d, want 1", p.Version)
	}

	addPosts(1)
	p = run("job-3")
	if p.Version != 2 || p.AnalysisSources.PastPostsCount != sources.MaxPastPosts+16 {
		t.Errorf("after job-3: version=%d posts=%d", p.Version, p.AnalysisSources.PastPostsCount)
	}
}

func TestWorker_NoJob(t *testing.T) {
	store := openTestStore(t)
	w := NewWorker(store, sources.NewGatherer(store), &mockAnalyzer{}, 0)

	didWork, err := w.RunOnce(context.Background())
	if err != nil || didWork {
		t.Errorf("RunOnce = %v, %v; want false, nil", didWork, err)
	}
}

func TestWorker_BadPayloadFailsJob(t *testing.T) {
	store := openTestStore(t)
	if err := store.EnqueueJob(context.Background(), storage.Job{ID: "job-bad", Type: JobVoiceRefresh, PayloadJSON: `{}`}); err != nil {
		t.Fatal(err)
	}
	analyzer := &mockAnalyzer{}
	w := NewWorker(store, sources.NewGatherer(store), analyzer, 0)

	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if status, attempts := jobStatus(t, store, "job-bad"); status != "pending" || attempts != 1 {
		t.Errorf("status=%q attempts=%d, want pending/1", status, attempts)
	}
	if len(analyzer.users) != 0 {
		t.Errorf("analyzer called for %v", analyzer.users)
	}
}

func TestWorker_RetryOnFailure(t *testing.T) {
	store := openTestStore(t)
	enqueueTestJob(t, store, "job-r", "u-r")

	var calls atomic.Int32
	w := NewWorker(store, sources.NewGatherer(store), &mockAnalyzer{
		analyzeFn: func(string, voice.Sources) error {
			n := calls.Add(1)
			if n <= 2 {
				return fmt.Errorf("transient error %d", n)
			}
			return nil
		},
	}, 0)

	ctx := context.Background()

	// 1st attempt: fails
	if didWork, err := w.RunOnce(ctx); err != nil || !didWork {
		t.Fatalf("RunOnce 1 = %v, %v", didWork, err)
	}
	if status, attempts := jobStatus(t, store, "job-r"); status != "pending" || attempts != 1 {
		t.Errorf("after 1st fail: status=%q attempts=%d, want pending/1", status, attempts)
	}

	// Backoff pushes run_after into the future.
	if didWork, _ := w.RunOnce(ctx); didWork {
		t.Fatal("job claimed before backoff elapsed")
	}
	resetRunAfter(t, store, "job-r")

	// 2nd attempt: fails
	if didWork, err := w.RunOnce(ctx); err != nil || !didWork {
		t.Fatalf("RunOnce 2 = %v, %v", didWork, err)
	}
	if _, attempts := jobStatus(t, store, "job-r"); attempts != 2 {
		t.Errorf("after 2nd fail: attempts=%d, want 2", attempts)
	}
	resetRunAfter(t, store, "job-r")

	// 3rd attempt: succeeds
	if didWork, err := w.RunOnce(ctx); err != nil || !didWork {
		t.Fatalf("RunOnce 3 = %v, %v", didWork, err)
	}
	if status, _ := jobStatus(t, store, "job-r"); status != "completed" {
		t.Errorf("after 3rd attempt: status=%q, want completed", status)
	}
}

func TestWorker_MaxRetriesExceeded(t *testing.T) {
	store := openTestStore(t)
	enqueueTestJob(t, store, "job-m", "u-m")

	w := NewWorker(store, sources.NewGatherer(store), &mockAnalyzer{
		analyzeFn: func(string, voice.Sources) error {
			return fmt.Errorf("permanent error")
		},
	}, 0)

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		didWork, err := w.RunOnce(ctx)
		if err != nil {
			t.Fatalf("RunOnce %d error: %v", i, err)
		}
		if !didWork {
			t.Fatalf("RunOnce %d returned false", i)
		}
		if i < 3 {
			resetRunAfter(t, store, "job-m")
		}
	}

	if status, _ := jobStatus(t, store, "job-m"); status != "failed" {
		t.Errorf("final status = %q, want %q", status, "failed")
	}
}

func TestWorker_ConcurrentEnqueue(t *testing.T) {
	store := openTestStore(t)

	const goroutines = 5
	const jobsPerGoroutine = 10
	const total = goroutines * jobsPerGoroutine

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for j := 0; j < jobsPerGoroutine; j++ {
				if _, err := EnqueueVoiceRefresh(context.Background(), store, fmt.Sprintf("user-%d-%d", g, j)); err != nil {
					t.Errorf("EnqueueVoiceRefresh: %v", err)
					return
				}
			}
		}(g)
	}
	wg.Wait()

	analyzer := &mockAnalyzer{}
	w := NewWorker(store, sources.NewGatherer(store), analyzer, 0)

	ctx := context.Background()
	deadline := time.After(5 * time.Second)
	processed := 0
	for processed < total {
		select {
		case <-deadline:
			t.Fatalf("timed out after processing %d/%d jobs", processed, total)
		default:
		}
		didWork, err := w.RunOnce(ctx)
		if err != nil {
			t.Fatalf("RunOnce error at job %d: %v", processed, err)
		}
		if didWork {
			processed++
		}
	}

	if len(analyzer.users) != total {
		t.Errorf("analysed %d users, want %d", len(analyzer.users), total)
	}
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	store := openTestStore(t)
	w := NewWorker(store, sources.NewGatherer(store), &mockAnalyzer{}, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
