package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tablemates/backend/internal/models"
	"github.com/tablemates/backend/internal/storage"
)

// GetParticipants returns all participant rows of an order.
func (s *SQLiteStore) GetParticipants(ctx context.Context, orderID string) ([]models.Participant, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT order_id, user_id, email, amount_owed_cents, has_paid, delivered FROM participants WHERE order_id = ? ORDER BY user_id",
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get participants: %w", err)
	}
	defer rows.Close()

	var participants []models.Participant
	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.OrderID, &p.UserID, &p.Email, &p.AmountOwedCents, &p.HasPaid, &p.Delivered); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate participants: %w", err)
	}

	return participants, nil
}

// GetParticipant returns a single participant row.
func (s *SQLiteStore) GetParticipant(ctx context.Context, orderID, userID string) (*models.Participant, error) {
	p := &models.Participant{}
	err := s.db.QueryRowContext(ctx,
		"SELECT order_id, user_id, email, amount_owed_cents, has_paid, delivered FROM participants WHERE order_id = ? AND user_id = ?",
		orderID, userID,
	).Scan(&p.OrderID, &p.UserID, &p.Email, &p.AmountOwedCents, &p.HasPaid, &p.Delivered)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("participant %s of order %s: %w", userID, orderID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}

	return p, nil
}

// MarkParticipantPaid flips the participant's paid flag and appends the
// payment record in one transaction. The all-paid check runs inside the same
// transaction, so of two concurrent payers at most one observes the ledger
// becoming fully paid.
func (s *SQLiteStore) MarkParticipantPaid(ctx context.Context, orderID, userID, reference string) (*storage.PaidResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var amount int64
	var hasPaid bool
	err = tx.QueryRowContext(ctx,
		"SELECT amount_owed_cents, has_paid FROM participants WHERE order_id = ? AND user_id = ?",
		orderID, userID,
	).Scan(&amount, &hasPaid)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("participant %s of order %s: %w", userID, orderID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}

	result := &storage.PaidResult{AmountCents: amount}

	if hasPaid {
		// Idempotent: no second payment record, no paid-flag churn.
		result.AlreadyPaid = true
	} else {
		_, err = tx.ExecContext(ctx,
			"UPDATE participants SET has_paid = 1 WHERE order_id = ? AND user_id = ?",
			orderID, userID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to mark participant paid: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			"INSERT INTO payments (id, order_id, user_id, amount_cents, reference, created_at) VALUES (?, ?, ?, ?, ?, ?)",
			uuid.New().String(), orderID, userID, amount, reference, time.Now().Unix(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert payment record: %w", err)
		}
	}

	var unpaid int
	err = tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM participants WHERE order_id = ? AND has_paid = 0",
		orderID,
	).Scan(&unpaid)
	if err != nil {
		return nil, fmt.Errorf("failed to count unpaid participants: %w", err)
	}
	result.AllPaid = unpaid == 0

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return result, nil
}

// RemoveParticipant deletes an unpaid participant row and reports how many
// participants remain on the order.
func (s *SQLiteStore) RemoveParticipant(ctx context.Context, orderID, userID string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var hasPaid bool
	err = tx.QueryRowContext(ctx,
		"SELECT has_paid FROM participants WHERE order_id = ? AND user_id = ?",
		orderID, userID,
	).Scan(&hasPaid)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("participant %s of order %s: %w", userID, orderID, storage.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get participant: %w", err)
	}
	if hasPaid {
		return 0, fmt.Errorf("participant %s of order %s: %w", userID, orderID, storage.ErrAlreadyPaid)
	}

	_, err = tx.ExecContext(ctx,
		"DELETE FROM participants WHERE order_id = ? AND user_id = ?",
		orderID, userID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to remove participant: %w", err)
	}

	var remaining int
	err = tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM participants WHERE order_id = ?",
		orderID,
	).Scan(&remaining)
	if err != nil {
		return 0, fmt.Errorf("failed to count remaining participants: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return remaining, nil
}

// MarkParticipantDelivered flips the delivered flag (idempotently) and
// reports whether every participant has now confirmed delivery.
func (s *SQLiteStore) MarkParticipantDelivered(ctx context.Context, orderID, userID string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"UPDATE participants SET delivered = 1 WHERE order_id = ? AND user_id = ?",
		orderID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark participant delivered: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return false, fmt.Errorf("participant %s of order %s: %w", userID, orderID, storage.ErrNotFound)
	}

	var undelivered int
	err = tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM participants WHERE order_id = ? AND delivered = 0",
		orderID,
	).Scan(&undelivered)
	if err != nil {
		return false, fmt.Errorf("failed to count undelivered participants: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return undelivered == 0, nil
}
