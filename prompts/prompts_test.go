package prompts

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestLibraryLoadsBuiltinTemplates(t *testing.T) {
	lib := NewLibrary("", zaptest.NewLogger(t))

	for _, name := range []string{Architect, Designer, Corrector} {
		text := lib.Load(name)
		assert.NotEqual(t, NotFound(name), text, name)
		assert.Contains(t, text, "```json", name)
	}

	assert.Contains(t, lib.Load(Designer), "{{STRATEGIST_BRIEF}}")
	assert.Contains(t, lib.Load(Designer), "{{USER_REQUEST}}")
	assert.Contains(t, lib.Load(Corrector), "{{DESIGNER_CODE}}")
}

func TestLibraryMissingTemplateSoftFails(t *testing.T) {
	lib := NewLibrary(t.TempDir(), zaptest.NewLogger(t))

	assert.Equal(t, "Prompt not found: summarizer-prompt.md", lib.Load("summarizer-prompt.md"))
	assert.Equal(t, NotFound("../etc/passwd"), lib.Load("../etc/passwd"))
	assert.Equal(t, NotFound(""), lib.Load(""))
}

func TestLibraryDirectoryOverridesBuiltin(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, Architect), []byte("custom architect"), 0o644))

	lib := NewLibrary(dir, zaptest.NewLogger(t))

	assert.Equal(t, "custom architect", lib.Load(Architect))
	assert.Contains(t, lib.Load(Designer), "{{STRATEGIST_BRIEF}}", "non-overridden template falls back to the built-in")
}

func TestLibraryInvalidate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, Corrector)
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	lib := NewLibrary(dir, zaptest.NewLogger(t))
	assert.Equal(t, "v1", lib.Load(Corrector))

	require.NoError(t, os.WriteFile(path, []byte("v2"), 0o644))
	assert.Equal(t, "v1", lib.Load(Corrector), "served from cache")

	lib.Invalidate(Corrector)
	assert.Equal(t, "v2", lib.Load(Corrector))
}

func TestLibraryWatchPicksUpEdits(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, Architect)
	require.NoError(t, os.WriteFile(path, []byte("before"), 0o644))

	lib := NewLibrary(dir, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, lib.Watch(ctx))

	assert.Equal(t, "before", lib.Load(Architect))
	require.NoError(t, os.WriteFile(path, []byte("after"), 0o644))

	assert.Eventually(t, func() bool {
		return lib.Load(Architect) == "after"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWatchWithoutDirectory(t *testing.T) {
	lib := NewLibrary("", zaptest.NewLogger(t))
	assert.Error(t, lib.Watch(context.Background()))
}

func TestRender(t *testing.T) {
	tests := []struct {
		name     string
		template string
		values   map[string]string
		want     string
	}{
		{
			name:     "all placeholders",
			template: "Brief: {{STRATEGIST_BRIEF}}\nRequest: {{USER_REQUEST}}",
			values:   map[string]string{"STRATEGIST_BRIEF": `{"actionTitle":"Q3"}`, "USER_REQUEST": "Q3 revenue"},
			want:     "Brief: {\"actionTitle\":\"Q3\"}\nRequest: Q3 revenue",
		},
		{
			name:     "repeated placeholder",
			template: "{{X}} and {{X}}",
			values:   map[string]string{"X": "y"},
			want:     "y and y",
		},
		{
			name:     "unknown placeholder untouched",
			template: "{{KNOWN}} {{UNKNOWN}}",
			values:   map[string]string{"KNOWN": "k"},
			want:     "k {{UNKNOWN}}",
		},
		{
			name:     "no values",
			template: "static {{A}}",
			values:   nil,
			want:     "static {{A}}",
		},
		{
			name:     "value containing a placeholder is not substituted again",
			template: "{{USER_REQUEST}} / {{DESIGNER_CODE}}",
			values: map[string]string{
				"USER_REQUEST":  "please include {{DESIGNER_CODE}} literally",
				"DESIGNER_CODE": "<div/>",
			},
			want: "please include {{DESIGNER_CODE}} literally / <div/>",
		},
		{
			name:     "value with replacement-like syntax",
			template: "{{V}}",
			values:   map[string]string{"V": "$1 ${V} \\n"},
			want:     "$1 ${V} \\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Render(tt.template, tt.values))
		})
	}
}

func TestStatic(t *testing.T) {
	s := Static{Architect: "A"}
	assert.Equal(t, "A", s.Load(Architect))
	assert.True(t, strings.HasPrefix(s.Load(Designer), "Prompt not found: "))
}

func TestLibraryNilLogger(t *testing.T) {
	lib := NewLibrary(t.TempDir(), nil)
	assert.Equal(t, NotFound("missing.md"), lib.Load("missing.md"))
}

// slowFS snapshots the current text on Open, then blocks until released.
type slowFS struct {
	mu      sync.Mutex
	text    string
	started chan struct{}
	release chan struct{}
}

func (f *slowFS) set(text string) {
	f.mu.Lock()
	f.text = text
	f.mu.Unlock()
}

func (f *slowFS) Open(name string) (fs.File, error) {
	f.mu.Lock()
	text := f.text
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
		<-f.release
	}
	return fstest.MapFS{name: {Data: []byte(text)}}.Open(name)
}

func TestLibraryInvalidateDuringLoad(t *testing.T) {
	slow := &slowFS{text: "old", started: make(chan struct{}), release: make(chan struct{})}
	lib := NewLibrary("", zaptest.NewLogger(t))
	lib.defaults = slow

	loaded := make(chan string, 1)
	go func() { loaded <- lib.Load(Architect) }()

	<-slow.started
	slow.set("new")
	lib.Invalidate(Architect)
	close(slow.release)

	assert.Equal(t, "old", <-loaded, "the in-flight load returns what it read")

	slow.started = nil
	assert.Equal(t, "new", lib.Load(Architect), "the stale read was not cached")
}
