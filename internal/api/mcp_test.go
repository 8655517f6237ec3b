package api

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/cocreate/internal/storage"
	"github.com/kalambet/cocreate/internal/voice"
)

func newTestMCPDeps(t *testing.T, c *fakeCompleter) (MCPDeps, *testEnv) {
	t.Helper()
	env := newTestEnv(t, c)
	return MCPDeps{
		Store:    env.store,
		Pipeline: env.deps.Pipeline,
		Profiles: env.deps.Profiles,
		Sources:  env.deps.Sources,
		UserID:   "alice",
	}, env
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func TestMCPTool_GeneratePost(t *testing.T) {
	deps, env := newTestMCPDeps(t, newFakeCompleter())
	ctx := context.Background()
	if err := env.store.SavePost(ctx, storage.Post{ID: "p1", UserID: "alice", Content: "An older post."}); err != nil {
		t.Fatalf("SavePost: %v", err)
	}

	result, err := mcpGeneratePost(deps)(ctx, makeCallToolRequest("generate_post", map[string]interface{}{
		"request": "Write about the onboarding launch",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}
	if got := toolText(t, result); got != "We shipped the new onboarding flow." {
		t.Errorf("text = %q", got)
	}

	gens, err := env.store.ListGenerations(ctx, "alice", 10)
	if err != nil || len(gens) != 1 {
		t.Fatalf("ListGenerations = %v, %v", gens, err)
	}
	p, _ := env.deps.Profiles.Get(ctx, "alice")
	if p == nil || p.AnalysisSources.PastPostsCount != 1 {
		t.Errorf("profile not built from stored sources: %+v", p)
	}
}

func TestMCPTool_GeneratePostAsksQuestions(t *testing.T) {
	c := newFakeCompleter()
	c.responses["fast"] = askQuestionsJSON
	deps, _ := newTestMCPDeps(t, c)

	result, _ := mcpGeneratePost(deps)(context.Background(), makeCallToolRequest("generate_post", map[string]interface{}{
		"request": "Write about a launch",
	}))
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}
	if got := toolText(t, result); !strings.Contains(got, "What exactly are you launching?") {
		t.Errorf("text = %q", got)
	}

	result, _ = mcpGeneratePost(deps)(context.Background(), makeCallToolRequest("generate_post", map[string]interface{}{
		"request":                   "Write about a launch",
		"proceed_without_questions": true,
	}))
	if got := toolText(t, result); got != "We shipped the new onboarding flow." {
		t.Errorf("text with proceed = %q", got)
	}
}

func TestMCPTool_GeneratePostErrors(t *testing.T) {
	deps, _ := newTestMCPDeps(t, newFakeCompleter())
	h := mcpGeneratePost(deps)

	result, _ := h(context.Background(), makeCallToolRequest("generate_post", map[string]interface{}{}))
	if !result.IsError {
		t.Error("expected error for missing request")
	}

	result, _ = h(context.Background(), makeCallToolRequest("generate_post", map[string]interface{}{
		"request":        "Write something",
		"target_user_id": "bob",
	}))
	if !result.IsError {
		t.Error("expected error without a relationship")
	}
}

func TestMCPTool_RefinePost(t *testing.T) {
	c := newFakeCompleter()
	c.responses["draft"] = "Shorter."
	deps, _ := newTestMCPDeps(t, c)
	h := mcpRefinePost(deps)

	result, _ := h(context.Background(), makeCallToolRequest("refine_post", map[string]interface{}{
		"content":  "A much longer post.",
		"feedback": "shorter",
	}))
	if result.IsError || toolText(t, result) != "Shorter." {
		t.Errorf("result = %+v", result)
	}

	result, _ = h(context.Background(), makeCallToolRequest("refine_post", map[string]interface{}{"content": "x"}))
	if !result.IsError {
		t.Error("expected error for missing feedback")
	}
}

func TestMCPTool_GetVoiceProfile(t *testing.T) {
	deps, env := newTestMCPDeps(t, newFakeCompleter())
	h := mcpGetVoiceProfile(deps)
	ctx := context.Background()

	result, _ := h(ctx, makeCallToolRequest("get_voice_profile", nil))
	if result.IsError || !strings.Contains(toolText(t, result), "No voice profile yet") {
		t.Errorf("result before analysis = %q", toolText(t, result))
	}

	if _, err := env.deps.Analyzer.AnalyzeAndUpdate(ctx, "alice", voice.Sources{ContextGuide: "Engineer turned founder."}, true); err != nil {
		t.Fatalf("AnalyzeAndUpdate: %v", err)
	}
	result, _ = h(ctx, makeCallToolRequest("get_voice_profile", map[string]interface{}{"simplified": true}))
	var s voice.SimplifiedVoice
	if err := json.Unmarshal([]byte(toolText(t, result)), &s); err != nil {
		t.Fatalf("decoding simplified profile: %v", err)
	}
	if s.Tone != "direct" || s.Version != 1 {
		t.Errorf("simplified = %+v", s)
	}

	result, _ = h(ctx, makeCallToolRequest("get_voice_profile", map[string]interface{}{"target_user_id": "bob"}))
	if !result.IsError {
		t.Error("expected access error for bob")
	}
}

func TestMCPResource_RecentGenerations(t *testing.T) {
	deps, _ := newTestMCPDeps(t, newFakeCompleter())
	ctx := context.Background()
	mcpGeneratePost(deps)(ctx, makeCallToolRequest("generate_post", map[string]interface{}{
		"request": strings.Repeat("long request ", 40),
	}))

	contents, err := mcpResourceRecent(deps)(ctx, mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: "cocreate://generations/recent"},
	})
	if err != nil {
		t.Fatalf("resource error: %v", err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	var summaries []struct {
		Request string `json:"request"`
		Outcome string `json:"outcome"`
	}
	if err := json.Unmarshal([]byte(tc.Text), &summaries); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(summaries) != 1 || !strings.HasSuffix(summaries[0].Request, "...") || summaries[0].Outcome != "completed" {
		t.Errorf("summaries = %+v", summaries)
	}
}
