package session

import "sync"

// Registry holds one Coordinator per operator.
type Registry struct {
	mu       sync.Mutex
	sessions map[int64]*Coordinator
	create   func(operator int64) *Coordinator
}

func NewRegistry(create func(operator int64) *Coordinator) *Registry {
	return &Registry{sessions: make(map[int64]*Coordinator), create: create}
}

// Get returns the operator's session, creating it on first use.
func (r *Registry) Get(operator int64) *Coordinator {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.sessions[operator]
	if !ok {
		c = r.create(operator)
		r.sessions[operator] = c
	}
	return c
}

// Release closes the operator's session and forgets it, so its poller
// and subscriptions stop. The next Get starts a fresh session.
func (r *Registry) Release(operator int64) {
	r.mu.Lock()
	c, ok := r.sessions[operator]
	delete(r.sessions, operator)
	r.mu.Unlock()
	if ok {
		c.Close()
	}
}

// CloseAll closes every session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[int64]*Coordinator)
	r.mu.Unlock()
	for _, c := range sessions {
		c.Close()
	}
}
