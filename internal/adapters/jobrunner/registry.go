package jobrunner

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/target/jobstream/internal/core"
	"github.com/target/jobstream/internal/domain/model"
)

// Strategy is everything the dispatcher needs to run one job type.
type Strategy struct {
	Executor       core.Executor           // Required: produces the chunk stream
	Persist        core.PersistFunc        // Optional: receives the final text after Done
	PersistFailure core.PersistFailureFunc // Optional: receives the error message after Error
}

// Registry maps job types to strategies. Adding a job type is a Register call;
// the dispatcher never branches on type.
type Registry struct {
	mu         sync.RWMutex
	strategies map[model.JobType]Strategy
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[model.JobType]Strategy)}
}

// Register adds the strategy for jobType. Registering a type twice is an error.
func (r *Registry) Register(jobType model.JobType, s Strategy) error {
	if !jobType.Valid() {
		return fmt.Errorf("register %q: %w", jobType, model.ErrUnknownJobType)
	}
	if s.Executor == nil {
		return errors.New("register " + string(jobType) + ": executor is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.strategies[jobType]; exists {
		return fmt.Errorf("register %s: strategy already registered", jobType)
	}
	r.strategies[jobType] = s
	return nil
}

// MustRegister is Register for startup wiring; it panics on error.
func (r *Registry) MustRegister(jobType model.JobType, s Strategy) {
	if err := r.Register(jobType, s); err != nil {
		//nolint:forbidigo // startup wiring fails fast on programmer error
		panic(err)
	}
}

// Lookup returns the strategy registered for jobType.
func (r *Registry) Lookup(jobType model.JobType) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[jobType]
	return s, ok
}

// Types returns the registered job types in sorted order.
func (r *Registry) Types() []model.JobType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.JobType, 0, len(r.strategies))
	for t := range r.strategies {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}
