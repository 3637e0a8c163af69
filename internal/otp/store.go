package otp

import (
	"context"
	"errors"

	"github.com/tablemates/backend/internal/models"
)

// ErrNoChallenge is returned by Get when no challenge has ever been issued
// for the order/user pair, or the previous one has already been consumed.
var ErrNoChallenge = errors.New("no challenge stored")

// ChallengeStore holds the single active challenge per (order, user) pair.
// Put overwrites any previous challenge for the same pair, which is how a
// reissue invalidates the prior code.
type ChallengeStore interface {
	Put(ctx context.Context, ch *models.Challenge) error
	Get(ctx context.Context, orderID, userID string) (*models.Challenge, error)
	Delete(ctx context.Context, orderID, userID string) error
	Close() error
}
