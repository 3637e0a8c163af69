// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"

	"github.com/tablemates/backend/internal/models"
)

// Sentinel errors returned by Store implementations. Callers check them with
// errors.Is; everything else is a persistence failure and is treated as fatal
// for the current request.
var (
	// ErrNotFound is returned when the requested order, participant or user
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyPaid is returned when removing a participant whose payment
	// already succeeded.
	ErrAlreadyPaid = errors.New("participant has already paid")

	// ErrStateConflict is returned by TransitionOrder when the order is not in
	// the expected source state. The order is left untouched.
	ErrStateConflict = errors.New("order not in expected state")
)

// PaidResult reports the outcome of marking a participant paid.
type PaidResult struct {
	// AlreadyPaid is true when the participant had paid before this call.
	// No new PaymentRecord is written in that case.
	AlreadyPaid bool

	// AllPaid is true when, after this call, every participant of the order
	// has paid. At most one non-idempotent call per order observes the
	// false -> true edge.
	AllPaid bool

	// AmountCents is the participant's share, for event payloads.
	AmountCents int64
}

// Store defines the persistence operations the order engine needs. It is the
// single source of truth for order and payment state; no in-memory cache of
// payment state is authoritative across restarts.
//
// The mutating operations run inside a single database transaction each, so
// their check-and-flip semantics hold under concurrent callers.
type Store interface {
	// CreateOrder persists an order together with its participant rows
	// atomically. The order's ID, CorrelationID and CreatedAt must already be
	// assigned; item IDs are populated by the store.
	CreateOrder(ctx context.Context, order *models.GroupOrder, participants []models.Participant) error

	// GetOrder retrieves an order with its items.
	GetOrder(ctx context.Context, orderID string) (*models.GroupOrder, error)

	// TransitionOrder moves an order from one status to another as a
	// compare-and-set: it fails with ErrStateConflict when the order is no
	// longer in `from`, guaranteeing each transition commits exactly once.
	// expectedDeliveryAt is written only when non-zero.
	TransitionOrder(ctx context.Context, orderID string, from, to models.OrderStatus, expectedDeliveryAt int64) error

	// GetParticipants returns all participant rows of an order.
	GetParticipants(ctx context.Context, orderID string) ([]models.Participant, error)

	// GetParticipant returns a single participant row.
	GetParticipant(ctx context.Context, orderID, userID string) (*models.Participant, error)

	// MarkParticipantPaid flips HasPaid and appends a PaymentRecord in one
	// transaction. Calling it again for a paid participant is a no-op success
	// with AlreadyPaid set; it never writes a second record.
	MarkParticipantPaid(ctx context.Context, orderID, userID, reference string) (*PaidResult, error)

	// RemoveParticipant deletes an unpaid participant and returns how many
	// participants remain. Fails with ErrAlreadyPaid for paid participants.
	RemoveParticipant(ctx context.Context, orderID, userID string) (remaining int, err error)

	// MarkParticipantDelivered flips Delivered and reports whether every
	// participant of the order has now confirmed delivery. Idempotent.
	MarkParticipantDelivered(ctx context.Context, orderID, userID string) (allDelivered bool, err error)

	// GetPayments returns the append-only payment records of an order.
	GetPayments(ctx context.Context, orderID string) ([]models.PaymentRecord, error)

	// CreateUser persists a new user account.
	CreateUser(ctx context.Context, user *models.User) error

	// GetUserByEmail retrieves a user by email. Returns (nil, nil) when no
	// such user exists.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	// GetUserByID retrieves a user by ID. Returns (nil, nil) when no such
	// user exists.
	GetUserByID(ctx context.Context, id string) (*models.User, error)

	// GetUsersByIDs retrieves multiple users keyed by ID; missing users are
	// omitted from the result.
	GetUsersByIDs(ctx context.Context, ids []string) (map[string]*models.User, error)

	// Close releases any resources held by the store.
	Close() error
}
