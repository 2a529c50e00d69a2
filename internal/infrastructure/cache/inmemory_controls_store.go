package cache

import (
	"context"
	"sync"

	"github.com/google/uuid"

	appgoal "github.com/goalledger/backend/internal/application/goal"
)

// InMemoryControlsStore keeps the runtime controls and notifier whitelist in
// process memory. Suitable for single-instance deployments and testing.
// State is not shared across instances; distributed deployments should use
// the Redis-backed store.
type InMemoryControlsStore struct {
	mu        sync.RWMutex
	controls  appgoal.Controls
	notifiers map[uuid.UUID]struct{}
}

// NewInMemoryControlsStore creates a store seeded with the given controls.
func NewInMemoryControlsStore(initial appgoal.Controls) *InMemoryControlsStore {
	return &InMemoryControlsStore{
		controls:  initial,
		notifiers: make(map[uuid.UUID]struct{}),
	}
}

// Current returns the controls in effect.
func (s *InMemoryControlsStore) Current(ctx context.Context) (appgoal.Controls, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.controls, nil
}

// Update replaces the controls.
func (s *InMemoryControlsStore) Update(ctx context.Context, c appgoal.Controls) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controls = c
	return nil
}

// TrustedNotifier reports whether the identity is whitelisted.
func (s *InMemoryControlsStore) TrustedNotifier(ctx context.Context, id uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.notifiers[id]
	return ok, nil
}

// SetTrustedNotifier adds or removes an identity from the whitelist.
func (s *InMemoryControlsStore) SetTrustedNotifier(ctx context.Context, id uuid.UUID, trusted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if trusted {
		s.notifiers[id] = struct{}{}
	} else {
		delete(s.notifiers, id)
	}
	return nil
}

var _ appgoal.ControlsStore = (*InMemoryControlsStore)(nil)
