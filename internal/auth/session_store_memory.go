package auth

import (
	"context"
	"sync"

	"github.com/vidsplit/client/internal/models"
)

// TokenStore persists the access/refresh pair between runs. Implementations
// replace the whole pair on Save; Load returns an empty pair when nothing is stored.
type TokenStore interface {
	Load(ctx context.Context) (models.TokenPair, error)
	Save(ctx context.Context, pair models.TokenPair) error
	Clear(ctx context.Context) error
}

// NewInMemoryTokenStore returns a TokenStore that lives only as long as the process.
func NewInMemoryTokenStore() *InMemoryTokenStore {
	return &InMemoryTokenStore{}
}

// InMemoryTokenStore implements TokenStore for tests and one-shot runs.
type InMemoryTokenStore struct {
	mu    sync.RWMutex
	pair  models.TokenPair
	saves int
}

// Load returns the stored pair.
func (s *InMemoryTokenStore) Load(_ context.Context) (models.TokenPair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair, nil
}

// Save replaces the stored pair.
func (s *InMemoryTokenStore) Save(_ context.Context, pair models.TokenPair) error {
	s.mu.Lock()
	s.pair = pair
	s.saves++
	s.mu.Unlock()
	return nil
}

// Clear forgets the stored pair.
func (s *InMemoryTokenStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.pair = models.TokenPair{}
	s.mu.Unlock()
	return nil
}

// Saves reports how many times Save was called. Useful for tests.
func (s *InMemoryTokenStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}
