package parse

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Output is what an input processor produces from raw file bytes: either
// markdown text or normalized tabular rows, never both.
type Output struct {
	Markdown string
	Rows     [][]string
}

// Processor converts one file format into derivable content. Concrete
// binary-format processors (PDF, DOCX, PPTX) live outside this module and
// register themselves at startup; only trivial text formats ship built in.
type Processor interface {
	Name() string
	// Version participates in artifact fingerprints so a processor upgrade
	// re-derives existing documents.
	Version() string
	Process(fileBytes []byte, mimeType string) (Output, error)
}

// Registry maps a lowercase file extension (".pdf") to a statically known
// processor. Registration happens at startup; lookups are read-only after
// that, so a plain RWMutex suffices.
type Registry struct {
	mu         sync.RWMutex
	processors map[string]Processor
}

func NewRegistry() *Registry {
	return &Registry{processors: map[string]Processor{}}
}

func (r *Registry) Register(extension string, p Processor) error {
	ext := normalizeExt(extension)
	if ext == "" {
		return fmt.Errorf("processor extension is required")
	}
	if p == nil {
		return fmt.Errorf("processor for %q is nil", ext)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.processors[ext]; exists {
		return fmt.Errorf("processor for %q already registered", ext)
	}
	r.processors[ext] = p
	return nil
}

func (r *Registry) Lookup(filename string) (Processor, bool) {
	ext := normalizeExt(extOf(filename))
	if ext == "" {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.processors[ext]
	return p, ok
}

func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.processors))
	for ext := range r.processors {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// NewDefaultRegistry registers the text formats every deployment handles.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register(".txt", textProcessor{})
	_ = r.Register(".md", markdownProcessor{})
	_ = r.Register(".csv", csvProcessor{})
	return r
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func extOf(filename string) string {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 {
		return ""
	}
	return filename[idx:]
}
