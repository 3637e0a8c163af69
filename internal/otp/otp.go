// Package otp issues and validates the one-time payment confirmation codes.
//
// A challenge is scoped to one (order, user) pair. Issuing a new challenge
// overwrites the previous one, so only the latest code is ever valid.
// Validation consumes the challenge: a code can confirm at most one payment.
package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/tablemates/backend/internal/models"
)

const (
	// DefaultTTL is how long an issued code stays valid.
	DefaultTTL = 5 * time.Minute

	codeSpace = 1000000 // codes are 000000..999999
)

var (
	ErrNoActiveChallenge = errors.New("no active challenge")
	ErrChallengeExpired  = errors.New("challenge expired")
	ErrCodeMismatch      = errors.New("code mismatch")
)

// Manager issues single-use numeric codes backed by a ChallengeStore.
type Manager struct {
	store ChallengeStore
	ttl   time.Duration
	now   func() time.Time
}

// NewManager returns a Manager with the given TTL; ttl <= 0 means DefaultTTL.
func NewManager(store ChallengeStore, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{store: store, ttl: ttl, now: time.Now}
}

// Issue generates a fresh 6-digit code for the participant and stores it,
// replacing any previously issued challenge for the same pair.
func (m *Manager) Issue(ctx context.Context, orderID, userID string) (*models.Challenge, error) {
	code, err := generateCode()
	if err != nil {
		return nil, err
	}

	now := m.now()
	ch := &models.Challenge{
		OrderID:   orderID,
		UserID:    userID,
		Code:      code,
		IssuedAt:  now,
		ExpiresAt: now.Add(m.ttl),
	}

	if err := m.store.Put(ctx, ch); err != nil {
		return nil, fmt.Errorf("failed to issue challenge: %w", err)
	}

	return ch, nil
}

// Validate checks the submitted code against the active challenge and
// consumes it on success. Expired or mismatched codes leave the challenge in
// place (a mismatch does not burn the code, and an expired one is reported
// as such until the store evicts it).
func (m *Manager) Validate(ctx context.Context, orderID, userID, code string) error {
	ch, err := m.store.Get(ctx, orderID, userID)
	if errors.Is(err, ErrNoChallenge) {
		return ErrNoActiveChallenge
	}
	if err != nil {
		return fmt.Errorf("failed to load challenge: %w", err)
	}

	if ch.Expired(m.now()) {
		return ErrChallengeExpired
	}
	if ch.Code != code {
		return ErrCodeMismatch
	}

	if err := m.store.Delete(ctx, orderID, userID); err != nil {
		return fmt.Errorf("failed to consume challenge: %w", err)
	}

	return nil
}

// Restore puts a consumed challenge back. Used as a compensating action when
// the payment write fails after the code was already consumed, so the
// participant does not need a reissue to retry.
func (m *Manager) Restore(ctx context.Context, ch *models.Challenge) error {
	if err := m.store.Put(ctx, ch); err != nil {
		return fmt.Errorf("failed to restore challenge: %w", err)
	}
	return nil
}

// Peek returns the active challenge without consuming it.
func (m *Manager) Peek(ctx context.Context, orderID, userID string) (*models.Challenge, error) {
	ch, err := m.store.Get(ctx, orderID, userID)
	if errors.Is(err, ErrNoChallenge) {
		return nil, ErrNoActiveChallenge
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load challenge: %w", err)
	}
	return ch, nil
}

// generateCode draws a uniform 6-digit code from crypto/rand, left-padded
// with zeros.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpace))
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
