package jobs

import "sync"

// Handler runs one claimed job to completion. Handlers terminate the run
// through the Context (Succeed/Fail) and never touch job_run rows directly.
type Handler interface {
	Run(jc *Context)
}

type HandlerFunc func(jc *Context)

func (f HandlerFunc) Run(jc *Context) { f(jc) }

// Registry maps job_type to its handler. Registration happens once at
// wiring time; the worker only reads.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[string]Handler{}}
}

func (r *Registry) Register(jobType string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[jobType] = h
}

func (r *Registry) Get(jobType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[jobType]
	return h, ok
}
