package app

import (
	"fmt"
	"sort"
	"sync"

	"amc-progress-service/internal/events"
)

// GuestNamespace holds progress recorded without an authenticated user.
const GuestNamespace = "guest"

// StoreFactory opens the KV store backing one namespace.
type StoreFactory func(namespace string) (KVStore, error)

// Registry keeps one ProgressService per namespace so that every mutation
// for a user goes through the same accumulator.
type Registry struct {
	factory StoreFactory
	opts    []ProgressOption

	mu       sync.Mutex
	services map[string]*ProgressService
}

func NewRegistry(factory StoreFactory, opts ...ProgressOption) *Registry {
	return &Registry{
		factory:  factory,
		opts:     opts,
		services: make(map[string]*ProgressService),
	}
}

// For returns the service for namespace, creating it on first use. An empty
// namespace maps to the guest namespace.
func (r *Registry) For(namespace string) (*ProgressService, error) {
	if namespace == "" {
		namespace = GuestNamespace
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if svc, ok := r.services[namespace]; ok {
		return svc, nil
	}
	store, err := r.factory(namespace)
	if err != nil {
		return nil, fmt.Errorf("open store for %q: %w", namespace, err)
	}
	svc := NewProgressService(store, events.NewHub(), r.opts...)
	r.services[namespace] = svc
	return svc, nil
}

// Namespaces lists the namespaces opened so far, sorted.
func (r *Registry) Namespaces() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.services))
	for ns := range r.services {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}
