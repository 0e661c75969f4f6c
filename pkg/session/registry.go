package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/xlttj/kportfwd/pkg/config"
	"github.com/xlttj/kportfwd/pkg/k8s"
	"github.com/xlttj/kportfwd/pkg/logging"
)

// ErrNotFound is returned when a session ID is not registered.
var ErrNotFound = errors.New("session not found")

type notFoundError struct {
	id string
}

func (e *notFoundError) Error() string {
	return fmt.Sprintf("session %q not found", e.id)
}

func (e *notFoundError) Unwrap() error {
	return ErrNotFound
}

// Registry holds the independent supervisors of one application, one per
// tab. Every supervisor shares the read-only catalog and the spawner.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Supervisor
	order    []string
	catalog  config.ServiceCatalog
	spawner  k8s.Spawner
}

// NewRegistry creates an empty registry.
func NewRegistry(catalog config.ServiceCatalog, spawner k8s.Spawner) *Registry {
	return &Registry{
		sessions: make(map[string]*Supervisor),
		catalog:  catalog,
		spawner:  spawner,
	}
}

// Create registers a new Idle supervisor under a fresh UUID.
func (r *Registry) Create(opts Options) *Supervisor {
	s := New(uuid.NewString(), r.catalog, r.spawner, opts)

	r.mu.Lock()
	r.sessions[s.ID()] = s
	r.order = append(r.order, s.ID())
	r.mu.Unlock()

	logging.LogDebug("Registry: created session %s", s.ID())
	return s
}

func (r *Registry) Get(id string) (*Supervisor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// List returns the supervisors in creation order.
func (r *Registry) List() []*Supervisor {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Supervisor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.sessions[id])
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// Close shuts the session down and removes it.
func (r *Registry) Close(ctx context.Context, id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
		for i, existing := range r.order {
			if existing == id {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	r.mu.Unlock()

	if !ok {
		return &notFoundError{id: id}
	}
	if err := s.Shutdown(ctx); err != nil {
		return fmt.Errorf("close session %s: %w", id, err)
	}
	return nil
}

// ShutdownAll shuts every session down concurrently and empties the
// registry. Failures are joined; one failing session does not stop the rest.
func (r *Registry) ShutdownAll(ctx context.Context) error {
	r.mu.Lock()
	sessions := make([]*Supervisor, 0, len(r.order))
	for _, id := range r.order {
		sessions = append(sessions, r.sessions[id])
	}
	r.sessions = make(map[string]*Supervisor)
	r.order = nil
	r.mu.Unlock()

	logging.LogInfo("Registry: shutting down %d session(s)", len(sessions))

	errs := make([]error, len(sessions))
	var wg sync.WaitGroup
	for i, s := range sessions {
		wg.Add(1)
		go func(i int, s *Supervisor) {
			defer wg.Done()
			if err := s.Shutdown(ctx); err != nil {
				errs[i] = fmt.Errorf("session %s: %w", s.ID(), err)
			}
		}(i, s)
	}
	wg.Wait()
	return errors.Join(errs...)
}
