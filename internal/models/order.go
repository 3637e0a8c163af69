package models

// OrderStatus is the lifecycle state of a group order.
//
// Valid transitions:
//
//	Pending  -> Confirmed  (every participant has paid)
//	Pending  -> Cancelled  (zero participants remain, or explicit unpaid cancel)
//	Confirmed -> Delivered (every participant confirmed delivery)
//
// Delivered and Cancelled are terminal. A Confirmed order can never be
// cancelled: confirmation implies every participant has paid.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusConfirmed OrderStatus = "confirmed"
	StatusDelivered OrderStatus = "delivered"
	StatusCancelled OrderStatus = "cancelled"
)

// GroupOrder represents a shared order placed by one user on behalf of a
// friend group. Items and TotalCents are fixed at creation and never mutate.
type GroupOrder struct {
	// ID is the unique identifier for the order (UUID format).
	ID string

	// CorrelationID is the group key shared by all billing rows derived from
	// this order. Kept separate from ID so that per-participant billing can be
	// encoded as separate rows without losing the grouping.
	CorrelationID string

	// CreatorID is the user who placed the order. The creator absorbs the
	// remainder cents of an equal split.
	CreatorID string

	// Items are the ordered line items. Immutable once the order is created.
	Items []OrderItem

	// TotalCents is the derived order total: sum of UnitPriceCents * Quantity
	// over Items. Fixed at creation.
	TotalCents int64

	// Status is the current lifecycle state, see OrderStatus.
	Status OrderStatus

	// CreatedAt is the Unix timestamp when the order was created.
	CreatedAt int64

	// ExpectedDeliveryAt is the Unix timestamp of the promised delivery.
	// Zero until the order is Confirmed.
	ExpectedDeliveryAt int64
}

// OrderItem represents a single line item on a group order.
type OrderItem struct {
	// ID is the unique identifier for the item (UUID format).
	ID string

	// FoodID references the catalog entry the item was ordered from.
	FoodID string

	// Name is the display name, denormalized from the catalog at order time.
	Name string

	// UnitPriceCents is the price of one unit in cents.
	UnitPriceCents int64

	// Quantity is the number of units ordered. Always >= 1.
	Quantity int
}

// Total returns the line total in cents.
func (i OrderItem) Total() int64 {
	return i.UnitPriceCents * int64(i.Quantity)
}
