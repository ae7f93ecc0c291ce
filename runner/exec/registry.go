package exec

import (
	"os"
	"sync"
)

// Registry tracks the interpreter processes of in-flight runs, keyed by unit
// path, so they can be signaled from outside the connection that owns them.
type Registry struct {
	mu    sync.Mutex
	procs map[string]*os.Process
}

func NewRegistry() *Registry {
	return &Registry{procs: map[string]*os.Process{}}
}

func (r *Registry) add(key string, p *os.Process) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.procs[key] = p
}

func (r *Registry) remove(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.procs, key)
}

// Len returns the number of tracked processes.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.procs)
}

// Interrupt sends SIGINT to every tracked process and returns how many were
// signaled. Signal errors are ignored: the process may have exited between
// the run loop observing output and us signaling it.
func (r *Registry) Interrupt() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.procs {
		_ = p.Signal(os.Interrupt)
	}
	return len(r.procs)
}
