package sqlite

import (
	"context"
	"fmt"

	"github.com/tablemates/backend/internal/models"
)

// GetPayments returns the payment records of an order, oldest first.
func (s *SQLiteStore) GetPayments(ctx context.Context, orderID string) ([]models.PaymentRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, order_id, user_id, amount_cents, reference, created_at FROM payments WHERE order_id = ? ORDER BY created_at",
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get payments: %w", err)
	}
	defer rows.Close()

	var payments []models.PaymentRecord
	for rows.Next() {
		var p models.PaymentRecord
		if err := rows.Scan(&p.ID, &p.OrderID, &p.UserID, &p.AmountCents, &p.Reference, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payments: %w", err)
	}

	return payments, nil
}
