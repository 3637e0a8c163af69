package ledger

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/tablemates/backend/internal/models"
	"github.com/tablemates/backend/internal/storage"
	"github.com/tablemates/backend/internal/storage/sqlite"
)

func newTestLedger(t *testing.T) (*Ledger, storage.Store) {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "tablemates-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	store, err := sqlite.New(filepath.Join(tempDir, "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return New(store, slog.Default()), store
}

func seedUsers(t *testing.T, store storage.Store, names ...string) {
	t.Helper()
	for _, name := range names {
		user := models.NewUser(name+"@example.com", name, "hash")
		user.ID = name // deterministic IDs keep assertions readable
		if err := store.CreateUser(context.Background(), user); err != nil {
			t.Fatalf("Failed to seed user %s: %v", name, err)
		}
	}
}

func pizzaItems(totalCents int64) []models.OrderItem {
	return []models.OrderItem{
		{FoodID: "f-1", Name: "Margherita", UnitPriceCents: totalCents, Quantity: 1},
	}
}

func TestLedger_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("equal split across three participants", func(t *testing.T) {
		l, _ := newTestLedger(t)
		seedUsers(t, l.store, "alice", "bob", "carol")

		order, err := l.Create(ctx, CreateInput{
			CreatorID:      "alice",
			ParticipantIDs: []string{"alice", "bob", "carol"},
			Items:          pizzaItems(9000),
		})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if order.TotalCents != 9000 {
			t.Errorf("TotalCents = %d, want 9000", order.TotalCents)
		}
		if order.Status != models.StatusPending {
			t.Errorf("Status = %s, want pending", order.Status)
		}
		if order.CorrelationID == "" {
			t.Error("CorrelationID not generated")
		}

		st, err := l.GetStatus(ctx, order.ID)
		if err != nil {
			t.Fatalf("GetStatus failed: %v", err)
		}
		if len(st.Unpaid) != 3 {
			t.Fatalf("got %d unpaid participants, want 3", len(st.Unpaid))
		}
		for _, p := range st.Unpaid {
			if p.AmountOwedCents != 3000 {
				t.Errorf("%s owes %d, want 3000", p.UserID, p.AmountOwedCents)
			}
		}
	})

	t.Run("remainder cents go to the creator", func(t *testing.T) {
		l, _ := newTestLedger(t)
		seedUsers(t, l.store, "alice", "bob", "carol")

		order, err := l.Create(ctx, CreateInput{
			CreatorID:      "alice",
			ParticipantIDs: []string{"alice", "bob", "carol"},
			Items:          pizzaItems(3100),
		})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		participants, err := l.Participants(ctx, order.ID)
		if err != nil {
			t.Fatalf("Participants failed: %v", err)
		}

		var sum int64
		byUser := make(map[string]int64)
		for _, p := range participants {
			sum += p.AmountOwedCents
			byUser[p.UserID] = p.AmountOwedCents
		}
		if sum != 3100 {
			t.Errorf("shares sum to %d, want exactly 3100", sum)
		}
		if byUser["alice"] != 1034 {
			t.Errorf("creator owes %d, want 1034", byUser["alice"])
		}
		if byUser["bob"] != 1033 || byUser["carol"] != 1033 {
			t.Errorf("others owe %d and %d, want 1033 each", byUser["bob"], byUser["carol"])
		}
	})

	t.Run("multiple items and quantities accumulate into the total", func(t *testing.T) {
		l, _ := newTestLedger(t)
		seedUsers(t, l.store, "alice", "bob")

		order, err := l.Create(ctx, CreateInput{
			CreatorID:      "alice",
			ParticipantIDs: []string{"alice", "bob"},
			Items: []models.OrderItem{
				{FoodID: "f-1", Name: "Margherita", UnitPriceCents: 1200, Quantity: 2},
				{FoodID: "f-2", Name: "Cola", UnitPriceCents: 300, Quantity: 4},
			},
		})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if order.TotalCents != 3600 {
			t.Errorf("TotalCents = %d, want 3600", order.TotalCents)
		}
	})

	t.Run("validation failures", func(t *testing.T) {
		l, _ := newTestLedger(t)
		seedUsers(t, l.store, "alice", "bob")

		tests := []struct {
			name string
			in   CreateInput
		}{
			{
				name: "no participants",
				in:   CreateInput{CreatorID: "alice", Items: pizzaItems(1000)},
			},
			{
				name: "no items",
				in:   CreateInput{CreatorID: "alice", ParticipantIDs: []string{"alice"}},
			},
			{
				name: "missing creator",
				in:   CreateInput{ParticipantIDs: []string{"alice"}, Items: pizzaItems(1000)},
			},
			{
				name: "duplicate participant",
				in: CreateInput{
					CreatorID:      "alice",
					ParticipantIDs: []string{"alice", "alice"},
					Items:          pizzaItems(1000),
				},
			},
			{
				name: "unknown participant",
				in: CreateInput{
					CreatorID:      "alice",
					ParticipantIDs: []string{"alice", "ghost"},
					Items:          pizzaItems(1000),
				},
			},
			{
				name: "zero-priced item",
				in: CreateInput{
					CreatorID:      "alice",
					ParticipantIDs: []string{"alice"},
					Items: []models.OrderItem{
						{FoodID: "f-1", Name: "Freebie", UnitPriceCents: 0, Quantity: 1},
					},
				},
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := l.Create(ctx, tt.in)
				if !errors.Is(err, ErrInvalidOrder) {
					t.Errorf("Create err = %v, want ErrInvalidOrder", err)
				}
			})
		}
	})
}

func TestLedger_PaymentFlow(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	seedUsers(t, l.store, "alice", "bob")

	order, err := l.Create(ctx, CreateInput{
		CreatorID:      "alice",
		ParticipantIDs: []string{"alice", "bob"},
		Items:          pizzaItems(2000),
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	res, err := l.MarkPaid(ctx, order.ID, "alice", "txn-1")
	if err != nil {
		t.Fatalf("MarkPaid failed: %v", err)
	}
	if res.AllPaid {
		t.Error("AllPaid = true with one unpaid participant remaining")
	}

	st, err := l.GetStatus(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetStatus failed: %v", err)
	}
	if len(st.Paid) != 1 || len(st.Unpaid) != 1 {
		t.Errorf("paid/unpaid = %d/%d, want 1/1", len(st.Paid), len(st.Unpaid))
	}
	if st.PaidCents != 1000 {
		t.Errorf("PaidCents = %d, want 1000", st.PaidCents)
	}
	if st.Settled {
		t.Error("Settled = true with an unpaid participant")
	}

	res, err = l.MarkPaid(ctx, order.ID, "bob", "txn-2")
	if err != nil {
		t.Fatalf("MarkPaid failed: %v", err)
	}
	if !res.AllPaid {
		t.Error("AllPaid = false after the last payment")
	}

	st, err = l.GetStatus(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetStatus failed: %v", err)
	}
	if !st.Settled {
		t.Error("Settled = false after all payments")
	}

	payments, err := l.Payments(ctx, order.ID)
	if err != nil {
		t.Fatalf("Payments failed: %v", err)
	}
	if len(payments) != 2 {
		t.Errorf("got %d payment records, want 2", len(payments))
	}
}

func TestLedger_RemoveParticipant(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	seedUsers(t, l.store, "alice", "bob", "carol")

	order, err := l.Create(ctx, CreateInput{
		CreatorID:      "alice",
		ParticipantIDs: []string{"alice", "bob", "carol"},
		Items:          pizzaItems(3000),
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	remaining, err := l.RemoveParticipant(ctx, order.ID, "carol")
	if err != nil {
		t.Fatalf("RemoveParticipant failed: %v", err)
	}
	if remaining != 2 {
		t.Errorf("remaining = %d, want 2", remaining)
	}

	// Shares of the remaining participants are never recomputed.
	participants, err := l.Participants(ctx, order.ID)
	if err != nil {
		t.Fatalf("Participants failed: %v", err)
	}
	for _, p := range participants {
		if p.AmountOwedCents != 1000 {
			t.Errorf("%s owes %d after removal, want the original 1000", p.UserID, p.AmountOwedCents)
		}
	}

	if _, err := l.MarkPaid(ctx, order.ID, "bob", "txn-1"); err != nil {
		t.Fatalf("MarkPaid failed: %v", err)
	}
	_, err = l.RemoveParticipant(ctx, order.ID, "bob")
	if !errors.Is(err, storage.ErrAlreadyPaid) {
		t.Errorf("removing paid participant err = %v, want ErrAlreadyPaid", err)
	}
}
