package otp

import (
	"context"
	"sync"

	"github.com/tablemates/backend/internal/models"
)

// MemoryStore is an in-process ChallengeStore for tests and single-node
// development setups. Unlike the Redis store it never evicts, so expired
// challenges remain visible until overwritten or deleted.
type MemoryStore struct {
	mu         sync.Mutex
	challenges map[string]*models.Challenge
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{challenges: make(map[string]*models.Challenge)}
}

func (s *MemoryStore) Put(_ context.Context, ch *models.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *ch
	s.challenges[challengeKey(ch.OrderID, ch.UserID)] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, orderID, userID string) (*models.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.challenges[challengeKey(orderID, userID)]
	if !ok {
		return nil, ErrNoChallenge
	}
	cp := *ch
	return &cp, nil
}

func (s *MemoryStore) Delete(_ context.Context, orderID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.challenges, challengeKey(orderID, userID))
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
