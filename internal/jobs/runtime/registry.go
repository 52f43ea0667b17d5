package runtime

import (
	"fmt"
	"sort"
	"sync"
)

// Handler runs one job type. Implementations are registered once at startup
// and must be safe for concurrent Run calls.
type Handler interface {
	Type() string
	Run(ctx *Context) error
}

// Registry maps job types to their handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(h Handler) error {
	if h == nil {
		return fmt.Errorf("register: nil handler")
	}
	jobType := h.Type()
	if jobType == "" {
		return fmt.Errorf("register: handler reports empty job type")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.handlers[jobType]; taken {
		return fmt.Errorf("register: duplicate handler for job_type=%s", jobType)
	}
	r.handlers[jobType] = h
	return nil
}

func (r *Registry) Get(jobType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[jobType]
	return h, ok
}

// Types returns the registered job types sorted, for startup logging.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
