package generation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/cocreate/internal/llm"
	"github.com/kalambet/cocreate/internal/prompts"
	"github.com/kalambet/cocreate/internal/voice"
)

// mockCompleter answers by model name so one double can serve every stage.
type mockCompleter struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
	calls     map[string]int
	requests  map[string][]llm.Request
}

func newMockCompleter() *mockCompleter {
	return &mockCompleter{
		responses: map[string]string{},
		errs:      map[string]error{},
		calls:     map[string]int{},
		requests:  map[string][]llm.Request{},
	}
}

func (m *mockCompleter) Create(_ context.Context, req llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[req.Model]++
	m.requests[req.Model] = append(m.requests[req.Model], req)
	if err := m.errs[req.Model]; err != nil {
		return nil, err
	}
	return &llm.Response{Content: []llm.ContentBlock{{Type: "text", Text: m.responses[req.Model]}}}, nil
}

func (m *mockCompleter) callCount(model string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[model]
}

// memRepo is an in-memory voice.Repository.
type memRepo struct {
	mu       sync.Mutex
	profiles map[string]voice.VoiceProfile
	links    map[[2]string]bool
}

func newMemRepo() *memRepo {
	return &memRepo{profiles: map[string]voice.VoiceProfile{}, links: map[[2]string]bool{}}
}

func (m *memRepo) GetVoiceProfile(_ context.Context, userID string) (*voice.VoiceProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *memRepo) UpsertVoiceProfile(_ context.Context, p voice.VoiceProfile) (*voice.VoiceProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.Version = m.profiles[p.UserID].Version + 1
	m.profiles[p.UserID] = p
	return &p, nil
}

func (m *memRepo) HasActiveRelationship(_ context.Context, a, b string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.links[[2]string{a, b}] || m.links[[2]string{b, a}], nil
}

type recordingObserver struct {
	steps    []Step
	outcomes []string
}

func (o *recordingObserver) ObserveStep(s Step)                   { o.steps = append(o.steps, s) }
func (o *recordingObserver) ObserveRun(outcome string, _ time.Duration) { o.outcomes = append(o.outcomes, outcome) }

func testBuilder(t *testing.T) *prompts.Builder {
	t.Helper()
	loader, err := prompts.NewLoader()
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	return prompts.NewBuilder(loader)
}

var testModels = Models{Fast: "fast", Draft: "draft", Review: "review", Analysis: "analysis"}

func newTestPipeline(t *testing.T, c llm.Completer, repo *memRepo, obs Observer) *Pipeline {
	t.Helper()
	b := testBuilder(t)
	store := voice.NewStore(repo)
	return NewPipeline(Deps{
		LLM:                  c,
		Prompts:              b,
		Profiles:             store,
		Analyzer:             voice.NewAnalyzer(store, c, b, testModels.Analysis, time.Second),
		Models:               testModels,
		StageTimeout:         time.Second,
		CautiousContentTypes: []string{ContentPersonalStory},
		Observer:             obs,
	})
}

// slowCompleter blocks until its delay elapses or the context ends.
type slowCompleter struct{ delay time.Duration }

func (s slowCompleter) Create(ctx context.Context, _ llm.Request) (*llm.Response, error) {
	select {
	case <-time.After(s.delay):
		return &llm.Response{Content: []llm.ContentBlock{{Type: "text", Text: "{}"}}}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
