package prompts

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"

	lru "github.com/hashicorp/golang-lru/v2"
	"gopkg.in/yaml.v3"
)

//go:embed templates
var embedded embed.FS

const (
	manifestFile  = "manifest.yaml"
	templateCache = 64
)

// Manifest maps stage names and base-rule categories to template files.
// Base rules are ordered: the system prompt concatenates them in this order.
type Manifest struct {
	Stages map[string]string `yaml:"stages"`
	Base   []BaseRule        `yaml:"base"`
}

// BaseRule is one category of system-level instructions.
type BaseRule struct {
	Name string `yaml:"name"`
	File string `yaml:"file"`
}

// Loader reads template files from a file system and caches them for the
// lifetime of the process. A missing file yields "" instead of an error.
type Loader struct {
	fsys     fs.FS
	manifest Manifest
	cache    *lru.Cache[string, string]
}

// NewLoader returns a Loader over the embedded template set.
func NewLoader() (*Loader, error) {
	sub, err := fs.Sub(embedded, "templates")
	if err != nil {
		return nil, fmt.Errorf("opening embedded templates: %w", err)
	}
	return NewLoaderFS(sub)
}

// NewLoaderDir returns a Loader over templates on disk. dir must contain a
// manifest.yaml.
func NewLoaderDir(dir string) (*Loader, error) {
	return NewLoaderFS(os.DirFS(dir))
}

// NewLoaderFS returns a Loader over fsys, which must contain manifest.yaml
// at its root.
func NewLoaderFS(fsys fs.FS) (*Loader, error) {
	raw, err := fs.ReadFile(fsys, manifestFile)
	if err != nil {
		return nil, fmt.Errorf("reading template manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parsing template manifest: %w", err)
	}
	cache, err := lru.New[string, string](templateCache)
	if err != nil {
		return nil, fmt.Errorf("creating template cache: %w", err)
	}
	return &Loader{fsys: fsys, manifest: m, cache: cache}, nil
}

// Manifest returns the parsed manifest.
func (l *Loader) Manifest() Manifest {
	return l.manifest
}

// Load returns the template at p, reading it on first use.
func (l *Loader) Load(p string) string {
	if p == "" {
		return ""
	}
	p = path.Clean(p)
	if v, ok := l.cache.Get(p); ok {
		return v
	}
	raw, err := fs.ReadFile(l.fsys, p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Warn("prompt template missing, using empty template", "path", p)
		} else {
			slog.Warn("prompt template unreadable, using empty template", "path", p, "error", err)
		}
		raw = nil
	}
	text := string(raw)
	l.cache.Add(p, text)
	return text
}

// Stage returns the template registered for a pipeline stage.
func (l *Loader) Stage(stage Stage) string {
	return l.Load(l.manifest.Stages[string(stage)])
}
