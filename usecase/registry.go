package usecase

import (
	"context"
	"sync"
)

// ControllerFactory builds an unstarted controller for identity.
type ControllerFactory func(identity string) *SessionController

// Registry holds one SessionController per identity. The empty identity is
// the device itself in deployments without an account layer.
type Registry struct {
	factory ControllerFactory

	mu      sync.Mutex
	entries map[string]*registryEntry
}

// registryEntry signs its controller in once, outside the registry lock.
type registryEntry struct {
	ctrl *SessionController
	once sync.Once
	err  error
}

func NewRegistry(factory ControllerFactory) *Registry {
	return &Registry{factory: factory, entries: make(map[string]*registryEntry)}
}

// Get returns the controller for identity, creating and signing it in on first use.
// Callers asking for the same identity wait for its sign-in; others do not.
func (r *Registry) Get(ctx context.Context, identity string) (*SessionController, error) {
	r.mu.Lock()
	entry, ok := r.entries[identity]
	if !ok {
		entry = &registryEntry{ctrl: r.factory(identity)}
		r.entries[identity] = entry
	}
	r.mu.Unlock()

	entry.once.Do(func() {
		if identity != "" {
			entry.err = entry.ctrl.SignIn(ctx, identity)
		}
	})
	if entry.err != nil {
		r.mu.Lock()
		if r.entries[identity] == entry {
			delete(r.entries, identity)
			entry.ctrl.Close()
		}
		r.mu.Unlock()
		return nil, entry.err
	}
	return entry.ctrl, nil
}

// SignOut signs identity out and forgets its controller.
func (r *Registry) SignOut(ctx context.Context, identity string) error {
	r.mu.Lock()
	entry, ok := r.entries[identity]
	delete(r.entries, identity)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	defer entry.ctrl.Close()
	return entry.ctrl.SignOut(ctx)
}

func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, entry := range r.entries {
		entry.ctrl.Close()
		delete(r.entries, id)
	}
}
