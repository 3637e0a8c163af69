package models

// Participant represents one group member's stake in a group order.
//
// HasPaid and Delivered each transition false -> true exactly once; neither
// is ever reset. A participant row is removed only when the participant
// cancels before paying or the whole order is cancelled.
type Participant struct {
	// OrderID is the owning group order.
	OrderID string

	// UserID identifies the participant.
	UserID string

	// Email is the participant's address for payment codes and confirmations,
	// denormalized from the user store at order creation.
	Email string

	// AmountOwedCents is this participant's share of the order total in cents.
	// Shares always sum to the order total exactly.
	AmountOwedCents int64

	// HasPaid reports whether the participant's payment was authorized.
	HasPaid bool

	// Delivered reports whether the participant confirmed receipt of their food.
	Delivered bool
}

// PaymentRecord is the append-only ledger entry written when a participant's
// payment succeeds. Records are immutable and are never cascade-deleted, even
// when the owning order is logically deleted, so the payment trail survives
// for audit.
type PaymentRecord struct {
	// ID is the unique identifier for the record (UUID format).
	ID string

	// OrderID is the order the payment was made against.
	OrderID string

	// UserID is the participant who paid.
	UserID string

	// AmountCents is the amount paid, equal to the participant's share.
	AmountCents int64

	// Reference is the opaque payment reference supplied by the caller.
	Reference string

	// CreatedAt is the Unix timestamp when the payment was recorded.
	CreatedAt int64
}
