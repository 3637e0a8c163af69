package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/tablemates/backend/internal/models"
	"github.com/tablemates/backend/internal/storage"
)

// CreateOrder persists an order with its items and participant rows in one
// transaction.
func (s *SQLiteStore) CreateOrder(ctx context.Context, order *models.GroupOrder, participants []models.Participant) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO orders (id, correlation_id, creator_id, total_cents, status, created_at, expected_delivery_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		order.ID, order.CorrelationID, order.CreatorID, order.TotalCents, order.Status, order.CreatedAt, order.ExpectedDeliveryAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for i := range order.Items {
		item := &order.Items[i]
		if item.ID == "" {
			item.ID = uuid.New().String()
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO order_items (id, order_id, food_id, name, unit_price_cents, quantity) VALUES (?, ?, ?, ?, ?, ?)",
			item.ID, order.ID, item.FoodID, item.Name, item.UnitPriceCents, item.Quantity,
		)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	for _, p := range participants {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO participants (order_id, user_id, email, amount_owed_cents, has_paid, delivered) VALUES (?, ?, ?, ?, 0, 0)",
			order.ID, p.UserID, p.Email, p.AmountOwedCents,
		)
		if err != nil {
			return fmt.Errorf("failed to insert participant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetOrder retrieves an order by ID, including all items.
func (s *SQLiteStore) GetOrder(ctx context.Context, orderID string) (*models.GroupOrder, error) {
	order := &models.GroupOrder{}
	err := s.db.QueryRowContext(ctx,
		"SELECT id, correlation_id, creator_id, total_cents, status, created_at, expected_delivery_at FROM orders WHERE id = ?",
		orderID,
	).Scan(&order.ID, &order.CorrelationID, &order.CreatorID, &order.TotalCents, &order.Status, &order.CreatedAt, &order.ExpectedDeliveryAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %s: %w", orderID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, food_id, name, unit_price_cents, quantity FROM order_items WHERE order_id = ?",
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.OrderItem
		if err := rows.Scan(&item.ID, &item.FoodID, &item.Name, &item.UnitPriceCents, &item.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		order.Items = append(order.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate order items: %w", err)
	}

	return order, nil
}

// TransitionOrder moves an order between statuses with a guarded update: the
// row only changes when it is still in the expected source status, so a
// racing transition commits exactly once.
func (s *SQLiteStore) TransitionOrder(ctx context.Context, orderID string, from, to models.OrderStatus, expectedDeliveryAt int64) error {
	var res sql.Result
	var err error
	if expectedDeliveryAt != 0 {
		res, err = s.db.ExecContext(ctx,
			"UPDATE orders SET status = ?, expected_delivery_at = ? WHERE id = ? AND status = ?",
			to, expectedDeliveryAt, orderID, from,
		)
	} else {
		res, err = s.db.ExecContext(ctx,
			"UPDATE orders SET status = ? WHERE id = ? AND status = ?",
			to, orderID, from,
		)
	}
	if err != nil {
		return fmt.Errorf("failed to transition order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		// Distinguish a missing order from a state conflict.
		var exists int
		err := s.db.QueryRowContext(ctx, "SELECT 1 FROM orders WHERE id = ?", orderID).Scan(&exists)
		if err == sql.ErrNoRows {
			return fmt.Errorf("order %s: %w", orderID, storage.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to check order existence: %w", err)
		}
		return fmt.Errorf("order %s is not %s: %w", orderID, from, storage.ErrStateConflict)
	}

	return nil
}
