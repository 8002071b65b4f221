// Package prompts loads the stage prompt templates and fills their
// {{NAME}} placeholders.
//
// Templates are compiled into the binary. A directory may override any of
// them by file name, and can be watched so edits apply without a restart.
// A template that cannot be found degrades to a placeholder text instead
// of failing the request that needed it.
package prompts

import (
	"embed"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Template names used by the pipeline stages.
const (
	Architect = "architect-prompt.md"
	Designer  = "designer-prompt.md"
	Corrector = "corrector-prompt.md"
)

//go:embed templates/*.md
var builtin embed.FS

// Loader returns template text by name.
type Loader interface {
	Load(name string) string
}

// NotFound is the text returned for a template that does not exist.
func NotFound(name string) string {
	return "Prompt not found: " + name
}

// Library is the Loader used by the service: directory overrides first,
// then the embedded defaults. Loaded texts are cached until invalidated.
type Library struct {
	dir      string
	defaults fs.FS
	logger   *zap.Logger

	mu    sync.RWMutex
	cache map[string]string
	// gen counts invalidations per name. A read is cached only if no
	// invalidation happened while it was in progress.
	gen map[string]uint64
}

var _ Loader = (*Library)(nil)

// NewLibrary creates a Library. dir may be empty to use only the embedded
// templates.
func NewLibrary(dir string, logger *zap.Logger) *Library {
	defaults, err := fs.Sub(builtin, "templates")
	if err != nil {
		// templates/ is part of the embed pattern, Sub cannot fail.
		panic(err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Library{
		dir:      dir,
		defaults: defaults,
		logger:   logger,
		cache:    make(map[string]string),
		gen:      make(map[string]uint64),
	}
}

// Load returns the named template, or NotFound(name) when neither the
// override directory nor the embedded set has it.
func (l *Library) Load(name string) string {
	l.mu.RLock()
	text, ok := l.cache[name]
	gen := l.gen[name]
	l.mu.RUnlock()
	if ok {
		return text
	}

	text, ok = l.read(name)
	if !ok {
		l.logger.Warn("prompt template not found, continuing with placeholder",
			zap.String("template", name),
			zap.String("dir", l.dir),
		)
		return NotFound(name)
	}

	l.mu.Lock()
	if l.gen[name] == gen {
		l.cache[name] = text
	}
	l.mu.Unlock()
	return text
}

func (l *Library) read(name string) (string, bool) {
	if name == "" || name != filepath.Base(name) {
		return "", false
	}

	if l.dir != "" {
		data, err := os.ReadFile(filepath.Join(l.dir, name))
		if err == nil {
			return string(data), true
		}
		if !os.IsNotExist(err) {
			l.logger.Warn("failed to read prompt override, using built-in",
				zap.String("template", name),
				zap.Error(err),
			)
		}
	}

	data, err := fs.ReadFile(l.defaults, name)
	if err != nil {
		return "", false
	}
	return string(data), true
}

// Invalidate drops the cached text for name so the next Load re-reads it.
func (l *Library) Invalidate(name string) {
	l.mu.Lock()
	delete(l.cache, name)
	l.gen[name]++
	l.mu.Unlock()
}

// Static is a Loader over a fixed map, with the same not-found behavior
// as Library.
type Static map[string]string

// Load implements Loader.
func (s Static) Load(name string) string {
	if text, ok := s[name]; ok {
		return text
	}
	return NotFound(name)
}

// Render replaces every {{KEY}} in template with values[KEY].
//
// Replacement is a single left-to-right pass over the template, so a value
// that itself contains "{{OTHER}}" is inserted literally and never
// substituted again. Placeholders without a value are left untouched.
func Render(template string, values map[string]string) string {
	if len(values) == 0 {
		return template
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(values)*2)
	for _, k := range keys {
		pairs = append(pairs, "{{"+k+"}}", values[k])
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
