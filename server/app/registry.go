package app

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// Registry owns one Engine per user that ever enabled a channel.
type Registry struct {
	mu      sync.Mutex
	deps    EngineDeps
	engines map[string]*Engine
	running bool
}

func NewRegistry(deps EngineDeps) *Registry {
	return &Registry{
		deps:    deps.withDefaults(),
		engines: map[string]*Engine{},
	}
}

func (r *Registry) loadOwners() ([]string, error) {
	owners := []string{}
	if err := loadCollection(r.deps.Store, ownersCollection, &owners); err != nil {
		return nil, errors.Wrap(err, "failed to load owners")
	}
	return owners, nil
}

// Start restores and starts an engine for every known owner. An engine that fails to start
// is logged and skipped, and is tried again on the next Ensure or Lookup of its user.
func (r *Registry) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	owners, err := r.loadOwners()
	if err != nil {
		return err
	}

	r.running = true
	for _, userID := range owners {
		if err := ValidateName(userID); err != nil {
			r.deps.Logger.Warnf("AutoDelete: skipping owner %q: %v", userID, err)
			continue
		}
		if _, err := r.add(userID); err != nil {
			r.deps.Logger.Errorf("AutoDelete: failed to start engine for user %s: %v", userID, err)
		}
	}
	r.deps.Logger.Infof("AutoDelete: started %d engines", len(r.engines))
	return nil
}

// Stop stops every engine. The registry can be started again.
func (r *Registry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.engines {
		e.Stop()
	}
	r.running = false
}

// Get returns the engine of userID known to this process, or nil.
func (r *Registry) Get(userID string) *Engine {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engines[userID]
}

// Lookup returns the engine of userID, or nil when the user never used auto-delete. Users
// registered by another process sharing the store are found through the owners collection.
func (r *Registry) Lookup(userID string) (*Engine, error) {
	if err := ValidateName(userID); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.engines[userID]; ok {
		return e, nil
	}

	owners, err := r.loadOwners()
	if err != nil {
		return nil, err
	}
	if !containsString(owners, userID) {
		return nil, nil
	}
	return r.add(userID)
}

// Ensure returns the engine of userID, registering the user as an owner first if needed.
func (r *Registry) Ensure(userID string) (*Engine, error) {
	if err := ValidateName(userID); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.engines[userID]; ok {
		return e, nil
	}

	if err := r.addOwner(userID); err != nil {
		return nil, err
	}
	return r.add(userID)
}

func (r *Registry) addOwner(userID string) error {
	unlock, err := r.deps.Locker.Lock(context.Background(), ownersCollection)
	if err != nil {
		return errors.Wrap(err, "failed to lock owners")
	}
	defer unlock()

	owners, err := r.loadOwners()
	if err != nil {
		return err
	}
	if containsString(owners, userID) {
		return nil
	}
	if err := replaceCollection(r.deps.Store, ownersCollection, append(owners, userID)); err != nil {
		return errors.Wrap(err, "failed to save owners")
	}
	return nil
}

// add starts the engine of userID when the registry runs and keeps it. An engine that fails
// to start is not kept. It must be called with mu held.
func (r *Registry) add(userID string) (*Engine, error) {
	e, ok := r.engines[userID]
	if !ok {
		e = NewEngine(userID, userID, r.deps)
	}

	if r.running {
		if err := e.Start(); err != nil {
			delete(r.engines, userID)
			return nil, err
		}
	}
	r.engines[userID] = e
	return e, nil
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
