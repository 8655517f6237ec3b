package prompts

import (
	"strings"
	"testing"
	"testing/fstest"
)

const testManifest = `
stages:
  content-draft: draft.md
  quality-review: missing.md
base:
  - name: first
    file: base/first.md
  - name: empty
    file: base/empty.md
  - name: second
    file: base/second.md
`

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"manifest.yaml":  {Data: []byte(testManifest)},
		"draft.md":       {Data: []byte("Write about {{topic}}.")},
		"base/first.md":  {Data: []byte("Tone is {{voice.tone.primary}}.")},
		"base/empty.md":  {Data: []byte("{{#if nothing}}hidden{{/if}}\n")},
		"base/second.md": {Data: []byte("Be honest.")},
	}
}

func TestLoader_Stage(t *testing.T) {
	l, err := NewLoaderFS(testFS())
	if err != nil {
		t.Fatalf("NewLoaderFS: %v", err)
	}
	if got := l.Stage(StageContentDraft); got != "Write about {{topic}}." {
		t.Errorf("Stage = %q", got)
	}
}

func TestLoader_MissingTemplateIsEmpty(t *testing.T) {
	l, err := NewLoaderFS(testFS())
	if err != nil {
		t.Fatalf("NewLoaderFS: %v", err)
	}
	if got := l.Stage(StageQualityReview); got != "" {
		t.Errorf("missing file = %q, want empty", got)
	}
	if got := l.Stage(StageVoiceAnalysis); got != "" {
		t.Errorf("unregistered stage = %q, want empty", got)
	}
}

func TestLoader_Caches(t *testing.T) {
	fsys := testFS()
	l, err := NewLoaderFS(fsys)
	if err != nil {
		t.Fatalf("NewLoaderFS: %v", err)
	}
	first := l.Load("draft.md")
	fsys["draft.md"] = &fstest.MapFile{Data: []byte("changed")}
	if got := l.Load("draft.md"); got != first {
		t.Errorf("second Load = %q, want cached %q", got, first)
	}
}

func TestLoader_MissingManifest(t *testing.T) {
	if _, err := NewLoaderFS(fstest.MapFS{}); err == nil {
		t.Fatal("expected error without manifest")
	}
}

func TestNewLoader_Embedded(t *testing.T) {
	l, err := NewLoader()
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	for _, st := range []Stage{StageSufficiencyCheck, StageContentDraft, StageQualityReview, StageVoiceAnalysis, StageRefineContent} {
		if strings.TrimSpace(l.Stage(st)) == "" {
			t.Errorf("embedded stage %s is empty", st)
		}
	}
	if len(l.Manifest().Base) != 3 {
		t.Errorf("base rules = %d, want 3", len(l.Manifest().Base))
	}
}
