// Package ledger owns the per-order participant ledger: who owes what, who
// has paid, and whether the ledger is settled. It computes the equal split
// on creation and never mutates shares afterwards.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tablemates/backend/internal/calculator"
	"github.com/tablemates/backend/internal/models"
	"github.com/tablemates/backend/internal/storage"
)

// ErrInvalidOrder covers all rejected order creations: no participants, no
// items, non-positive totals, duplicate participants, or unknown users.
var ErrInvalidOrder = errors.New("invalid order")

// Ledger creates orders with their split and tracks payment state.
type Ledger struct {
	store  storage.Store
	logger *slog.Logger
}

func New(store storage.Store, logger *slog.Logger) *Ledger {
	return &Ledger{store: store, logger: logger}
}

// CreateInput describes a new group order.
type CreateInput struct {
	CorrelationID  string
	CreatorID      string
	ParticipantIDs []string
	Items          []models.OrderItem
}

// Create validates the input, computes the equal split and persists the
// order with one ledger row per participant. The creator absorbs the
// remainder cents so shares always sum to the exact total.
func (l *Ledger) Create(ctx context.Context, in CreateInput) (*models.GroupOrder, error) {
	if in.CreatorID == "" {
		return nil, fmt.Errorf("%w: missing creator", ErrInvalidOrder)
	}
	if len(in.ParticipantIDs) == 0 {
		return nil, fmt.Errorf("%w: no participants", ErrInvalidOrder)
	}
	if len(in.Items) == 0 {
		return nil, fmt.Errorf("%w: no items", ErrInvalidOrder)
	}

	seen := make(map[string]struct{}, len(in.ParticipantIDs))
	for _, id := range in.ParticipantIDs {
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: duplicate participant %s", ErrInvalidOrder, id)
		}
		seen[id] = struct{}{}
	}

	var total int64
	for _, item := range in.Items {
		if item.UnitPriceCents <= 0 || item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: item %q has non-positive price or quantity", ErrInvalidOrder, item.Name)
		}
		total += item.Total()
	}

	users, err := l.store.GetUsersByIDs(ctx, in.ParticipantIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve participants: %w", err)
	}
	for _, id := range in.ParticipantIDs {
		if _, ok := users[id]; !ok {
			return nil, fmt.Errorf("%w: unknown participant %s", ErrInvalidOrder, id)
		}
	}

	shares, err := calculator.EqualSplit(total, in.CreatorID, in.ParticipantIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}

	correlationID := in.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}

	order := &models.GroupOrder{
		ID:            uuid.New().String(),
		CorrelationID: correlationID,
		CreatorID:     in.CreatorID,
		Items:         in.Items,
		TotalCents:    total,
		Status:        models.StatusPending,
		CreatedAt:     time.Now().Unix(),
	}

	participants := make([]models.Participant, len(shares))
	for i, share := range shares {
		participants[i] = models.Participant{
			OrderID:         order.ID,
			UserID:          share.UserID,
			Email:           users[share.UserID].Email,
			AmountOwedCents: share.AmountCents,
		}
	}

	if err := l.store.CreateOrder(ctx, order, participants); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	l.logger.Info("Order created",
		"order_id", order.ID,
		"correlation_id", order.CorrelationID,
		"total_cents", total,
		"participants", len(participants))

	return order, nil
}

// MarkPaid records the participant's payment. The returned result says
// whether this call settled the ledger, which only one caller can observe.
func (l *Ledger) MarkPaid(ctx context.Context, orderID, userID, reference string) (*storage.PaidResult, error) {
	return l.store.MarkParticipantPaid(ctx, orderID, userID, reference)
}

// RemoveParticipant drops an unpaid participant from the ledger and reports
// how many remain. Shares of the others are untouched; redistribution is a
// deliberate non-feature, the creator eats the difference.
func (l *Ledger) RemoveParticipant(ctx context.Context, orderID, userID string) (int, error) {
	return l.store.RemoveParticipant(ctx, orderID, userID)
}

// Status summarizes the ledger of an order.
type Status struct {
	Order     *models.GroupOrder
	Paid      []models.Participant
	Unpaid    []models.Participant
	PaidCents int64
	Settled   bool
}

// GetStatus returns the order with its ledger split into paid and unpaid
// participants.
func (l *Ledger) GetStatus(ctx context.Context, orderID string) (*Status, error) {
	order, err := l.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	participants, err := l.store.GetParticipants(ctx, orderID)
	if err != nil {
		return nil, err
	}

	st := &Status{Order: order}
	for _, p := range participants {
		if p.HasPaid {
			st.Paid = append(st.Paid, p)
			st.PaidCents += p.AmountOwedCents
		} else {
			st.Unpaid = append(st.Unpaid, p)
		}
	}
	st.Settled = len(st.Unpaid) == 0 && len(st.Paid) > 0

	return st, nil
}

// Participants returns the raw ledger rows of an order.
func (l *Ledger) Participants(ctx context.Context, orderID string) ([]models.Participant, error) {
	return l.store.GetParticipants(ctx, orderID)
}

// Participant returns one ledger row.
func (l *Ledger) Participant(ctx context.Context, orderID, userID string) (*models.Participant, error) {
	return l.store.GetParticipant(ctx, orderID, userID)
}

// Payments returns the payment audit records of an order.
func (l *Ledger) Payments(ctx context.Context, orderID string) ([]models.PaymentRecord, error) {
	return l.store.GetPayments(ctx, orderID)
}
