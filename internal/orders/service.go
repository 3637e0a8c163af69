// Package orders owns the order state machine and orchestrates the payment
// flow: OTP validation, ledger mutation, the all-paid confirmation decision
// and the delivery-to-session hand-off.
//
// Status transitions are compare-and-set updates in the store, and ledger
// mutation is additionally serialized per order with a keyed mutex, so the
// confirmation side effects (events, mail, fulfillment hand-off) fire exactly
// once no matter how payments interleave. The mutex is never held across
// notification or mail dispatch.
package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tablemates/backend/internal/dispatch"
	"github.com/tablemates/backend/internal/ledger"
	"github.com/tablemates/backend/internal/mail"
	"github.com/tablemates/backend/internal/models"
	"github.com/tablemates/backend/internal/notify"
	"github.com/tablemates/backend/internal/otp"
	"github.com/tablemates/backend/internal/session"
	"github.com/tablemates/backend/internal/storage"
)

// DefaultDeliveryWindow is added to the confirmation time to produce the
// expected delivery time.
const DefaultDeliveryWindow = 30 * time.Minute

// Config carries the collaborators of the Service. Queue may be nil when no
// fulfillment broker is configured (tests, dev).
type Config struct {
	Store          storage.Store
	Ledger         *ledger.Ledger
	Codes          *otp.Manager
	Sessions       *session.Registry
	Events         notify.Publisher
	Mailer         mail.Mailer
	Queue          dispatch.Queuer
	Logger         *slog.Logger
	DeliveryWindow time.Duration
}

// Service is the order orchestration layer behind the HTTP handlers.
type Service struct {
	store          storage.Store
	ledger         *ledger.Ledger
	codes          *otp.Manager
	sessions       *session.Registry
	events         notify.Publisher
	mailer         mail.Mailer
	queue          dispatch.Queuer
	logger         *slog.Logger
	locks          *orderLocks
	deliveryWindow time.Duration
}

func NewService(cfg Config) *Service {
	window := cfg.DeliveryWindow
	if window <= 0 {
		window = DefaultDeliveryWindow
	}
	return &Service{
		store:          cfg.Store,
		ledger:         cfg.Ledger,
		codes:          cfg.Codes,
		sessions:       cfg.Sessions,
		events:         cfg.Events,
		mailer:         cfg.Mailer,
		queue:          cfg.Queue,
		logger:         cfg.Logger,
		locks:          newOrderLocks(),
		deliveryWindow: window,
	}
}

// Create opens a new group order with its participant ledger.
func (s *Service) Create(ctx context.Context, in ledger.CreateInput) (*models.GroupOrder, []models.Participant, error) {
	order, err := s.ledger.Create(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	ordersCreated.Inc()

	participants, err := s.ledger.Participants(ctx, order.ID)
	if err != nil {
		return nil, nil, err
	}

	return order, participants, nil
}

// GetOrder returns the order by ID.
func (s *Service) GetOrder(ctx context.Context, orderID string) (*models.GroupOrder, error) {
	return s.store.GetOrder(ctx, orderID)
}

// GetLedger returns the order with its paid/unpaid participant breakdown.
func (s *Service) GetLedger(ctx context.Context, orderID string) (*ledger.Status, error) {
	return s.ledger.GetStatus(ctx, orderID)
}

// IssueCode generates a payment code for the participant and mails it. The
// code is returned to the caller so a dev deployment can choose to echo it;
// production handlers must not.
func (s *Service) IssueCode(ctx context.Context, orderID, userID string) (*models.Challenge, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.StatusPending {
		return nil, fmt.Errorf("order %s is %s: %w", orderID, order.Status, ErrOrderImmutable)
	}

	participant, err := s.ledger.Participant(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	if participant.HasPaid {
		return nil, fmt.Errorf("participant %s already paid: %w", userID, storage.ErrAlreadyPaid)
	}

	ch, err := s.codes.Issue(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}

	s.sendMail(ctx, mail.Message{
		To:      participant.Email,
		Subject: "Your payment code",
		Body: fmt.Sprintf("Your one-time payment code for order %s is %s. It expires at %s.",
			orderID, ch.Code, ch.ExpiresAt.Format(time.Kitchen)),
	})

	s.logger.Info("Payment code issued", "order_id", orderID, "user_id", userID)
	return ch, nil
}

// PayResult is the outcome of a successful payment.
type PayResult struct {
	Paid           bool
	OrderConfirmed bool
	AmountCents    int64
}

// Pay validates the submitted code and records the payment. The two steps
// form one logical transaction: an already-paid participant is rejected
// before the code is consumed, and if the ledger write fails after
// consumption the challenge is restored unused.
func (s *Service) Pay(ctx context.Context, orderID, userID, code, reference string) (*PayResult, error) {
	unlock := s.locks.lock(orderID)
	result, order, err := s.payLocked(ctx, orderID, userID, code, reference)
	unlock()
	if err != nil {
		return nil, err
	}

	targets := s.participantIDs(ctx, orderID)
	s.publish(ctx, notify.EventParticipantPaid, map[string]any{
		"order_id":     orderID,
		"user_id":      userID,
		"amount_cents": result.AmountCents,
	}, targets...)

	if result.OrderConfirmed {
		s.announceConfirmed(ctx, order)
	}

	return result, nil
}

func (s *Service) payLocked(ctx context.Context, orderID, userID, code, reference string) (*PayResult, *models.GroupOrder, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	participant, err := s.ledger.Participant(ctx, orderID, userID)
	if err != nil {
		return nil, nil, err
	}
	if participant.HasPaid {
		// Rejected before the challenge is consumed, so a retry with a live
		// code does not burn it.
		return nil, nil, fmt.Errorf("participant %s already paid: %w", userID, storage.ErrAlreadyPaid)
	}

	if order.Status != models.StatusPending {
		return nil, nil, fmt.Errorf("order %s is %s: %w", orderID, order.Status, ErrOrderImmutable)
	}

	challenge, err := s.codes.Peek(ctx, orderID, userID)
	if err != nil {
		otpValidations.WithLabelValues("no_challenge").Inc()
		return nil, nil, err
	}

	if err := s.codes.Validate(ctx, orderID, userID, code); err != nil {
		switch {
		case errors.Is(err, otp.ErrChallengeExpired):
			otpValidations.WithLabelValues("expired").Inc()
		case errors.Is(err, otp.ErrCodeMismatch):
			otpValidations.WithLabelValues("mismatch").Inc()
		default:
			otpValidations.WithLabelValues("error").Inc()
		}
		return nil, nil, err
	}
	otpValidations.WithLabelValues("ok").Inc()

	paid, err := s.ledger.MarkPaid(ctx, orderID, userID, reference)
	if err != nil {
		// Compensating action: the code was consumed but the payment did not
		// commit, so put the challenge back for a retry.
		if restoreErr := s.codes.Restore(ctx, challenge); restoreErr != nil {
			s.logger.Error("Failed to restore challenge after payment failure",
				"order_id", orderID, "user_id", userID, "error", restoreErr)
		}
		return nil, nil, fmt.Errorf("failed to record payment: %w", err)
	}
	paymentsRecorded.Inc()

	result := &PayResult{Paid: true, AmountCents: paid.AmountCents}

	if paid.AllPaid {
		confirmed, err := s.confirmLocked(ctx, order)
		if err != nil {
			return nil, nil, err
		}
		result.OrderConfirmed = confirmed
	}

	s.logger.Info("Participant paid",
		"order_id", orderID,
		"user_id", userID,
		"amount_cents", paid.AmountCents,
		"order_confirmed", result.OrderConfirmed)

	return result, order, nil
}

// confirmLocked moves a fully paid order to Confirmed. The guarded update
// means a concurrent confirmation attempt loses cleanly; only the winner
// reports confirmed=true and runs the side effects.
func (s *Service) confirmLocked(ctx context.Context, order *models.GroupOrder) (bool, error) {
	order.ExpectedDeliveryAt = time.Now().Add(s.deliveryWindow).Unix()
	err := s.store.TransitionOrder(ctx, order.ID, models.StatusPending, models.StatusConfirmed, order.ExpectedDeliveryAt)
	if errors.Is(err, storage.ErrStateConflict) {
		s.logger.Warn("Order already confirmed by a concurrent payment", "order_id", order.ID)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	order.Status = models.StatusConfirmed
	ordersConfirmed.Inc()
	return true, nil
}

// announceConfirmed runs the confirmation side effects: participant events,
// confirmation mail and the fulfillment hand-off. All best-effort; a failure
// here never rolls back the committed transition.
func (s *Service) announceConfirmed(ctx context.Context, order *models.GroupOrder) {
	participants, err := s.ledger.Participants(ctx, order.ID)
	if err != nil {
		s.logger.Error("Failed to load participants for confirmation fan-out",
			"order_id", order.ID, "error", err)
		return
	}

	ids := make([]string, len(participants))
	for i, p := range participants {
		ids[i] = p.UserID
	}

	s.publish(ctx, notify.EventOrderConfirmed, map[string]any{
		"order_id":             order.ID,
		"expected_delivery_at": order.ExpectedDeliveryAt,
	}, ids...)

	if s.queue != nil {
		if err := s.queue.PublishOrder(ctx, order); err != nil {
			s.logger.Error("Failed to hand order to fulfillment", "order_id", order.ID, "error", err)
		}
	}

	eta := time.Unix(order.ExpectedDeliveryAt, 0).Format(time.Kitchen)
	for _, p := range participants {
		s.sendMail(ctx, mail.Message{
			To:      p.Email,
			Subject: "Order confirmed",
			Body:    fmt.Sprintf("Everyone has paid! Your group order %s is confirmed. Expected delivery around %s.", order.ID, eta),
		})
	}

	s.logger.Info("Order confirmed", "order_id", order.ID, "participants", len(ids))
}

// CancelParticipant removes an unpaid participant from a pending order. When
// the last participant leaves the order is cancelled; when the leaver was
// the last unpaid participant the remaining, fully paid ledger confirms the
// order.
func (s *Service) CancelParticipant(ctx context.Context, orderID, userID string) (orderCancelled bool, err error) {
	unlock := s.locks.lock(orderID)
	cancelled, confirmedOrder, err := s.cancelParticipantLocked(ctx, orderID, userID)
	unlock()
	if err != nil {
		return false, err
	}

	if cancelled {
		s.publish(ctx, notify.EventOrderCancelled, map[string]any{"order_id": orderID})
	}
	if confirmedOrder != nil {
		s.announceConfirmed(ctx, confirmedOrder)
	}

	return cancelled, nil
}

func (s *Service) cancelParticipantLocked(ctx context.Context, orderID, userID string) (bool, *models.GroupOrder, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return false, nil, err
	}
	if order.Status != models.StatusPending {
		return false, nil, fmt.Errorf("order %s is %s: %w", orderID, order.Status, ErrOrderImmutable)
	}

	remaining, err := s.ledger.RemoveParticipant(ctx, orderID, userID)
	if err != nil {
		return false, nil, err
	}

	if remaining == 0 {
		if err := s.store.TransitionOrder(ctx, orderID, models.StatusPending, models.StatusCancelled, 0); err != nil {
			return false, nil, err
		}
		ordersCancelled.Inc()
		s.logger.Info("Order cancelled, no participants left", "order_id", orderID)
		return true, nil, nil
	}

	// The leaver may have been the last unpaid participant.
	st, err := s.ledger.GetStatus(ctx, orderID)
	if err != nil {
		return false, nil, err
	}
	if st.Settled {
		confirmed, err := s.confirmLocked(ctx, order)
		if err != nil {
			return false, nil, err
		}
		if confirmed {
			return false, order, nil
		}
	}

	return false, nil, nil
}

// CancelOrder cancels a pending order with no recorded payments. Orders with
// payments, confirmed or otherwise, are immutable; terminal orders reject
// the transition outright.
func (s *Service) CancelOrder(ctx context.Context, orderID string) error {
	unlock := s.locks.lock(orderID)
	err := s.cancelOrderLocked(ctx, orderID)
	unlock()
	if err != nil {
		return err
	}

	s.publish(ctx, notify.EventOrderCancelled, map[string]any{"order_id": orderID}, s.participantIDs(ctx, orderID)...)
	return nil
}

func (s *Service) cancelOrderLocked(ctx context.Context, orderID string) error {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}

	switch order.Status {
	case models.StatusPending:
		st, err := s.ledger.GetStatus(ctx, orderID)
		if err != nil {
			return err
		}
		if len(st.Paid) > 0 {
			return fmt.Errorf("order %s has payments: %w", orderID, ErrOrderImmutable)
		}
		if err := s.store.TransitionOrder(ctx, orderID, models.StatusPending, models.StatusCancelled, 0); err != nil {
			return err
		}
		ordersCancelled.Inc()
		s.logger.Info("Order cancelled", "order_id", orderID)
		return nil
	case models.StatusConfirmed:
		// Confirmed means fully paid; paid orders cannot be cancelled.
		return fmt.Errorf("order %s is confirmed: %w", orderID, ErrOrderImmutable)
	default:
		return fmt.Errorf("order %s is %s: %w", orderID, order.Status, ErrInvalidTransition)
	}
}

// ConfirmDelivery records that one participant received their food. When the
// last participant confirms, the order moves to Delivered and the shared
// session opens.
func (s *Service) ConfirmDelivery(ctx context.Context, orderID, userID string) (allDelivered bool, err error) {
	unlock := s.locks.lock(orderID)
	all, delivered, err := s.confirmDeliveryLocked(ctx, orderID, userID)
	unlock()
	if err != nil {
		return false, err
	}

	if delivered {
		s.sessions.Start(orderID)
		s.publish(ctx, notify.EventSessionInvite, map[string]any{"order_id": orderID}, s.participantIDs(ctx, orderID)...)
		s.logger.Info("Order delivered, session opened", "order_id", orderID)
	}

	return all, nil
}

func (s *Service) confirmDeliveryLocked(ctx context.Context, orderID, userID string) (allDelivered, orderDelivered bool, err error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return false, false, err
	}
	if order.Status != models.StatusConfirmed {
		return false, false, fmt.Errorf("order %s is %s: %w", orderID, order.Status, ErrInvalidTransition)
	}

	all, err := s.store.MarkParticipantDelivered(ctx, orderID, userID)
	if err != nil {
		return false, false, err
	}
	if !all {
		return false, false, nil
	}

	err = s.store.TransitionOrder(ctx, orderID, models.StatusConfirmed, models.StatusDelivered, 0)
	if errors.Is(err, storage.ErrStateConflict) {
		// A duplicate delivery confirmation raced us past the transition.
		return true, false, nil
	}
	if err != nil {
		return false, false, err
	}
	ordersDelivered.Inc()

	return true, true, nil
}

// JoinSession adds the participant to the order's live session.
func (s *Service) JoinSession(ctx context.Context, orderID, userID string) (*session.Session, error) {
	if _, err := s.ledger.Participant(ctx, orderID, userID); err != nil {
		return nil, err
	}
	return s.sessions.Join(orderID, userID)
}

// LeaveSession removes the participant; the session ends when the last
// member leaves, which is broadcast to the group.
func (s *Service) LeaveSession(ctx context.Context, orderID, userID string) (*session.Session, error) {
	snap, err := s.sessions.Leave(orderID, userID)
	if err != nil {
		return nil, err
	}
	if snap.State == session.StateEnded {
		s.publish(ctx, notify.EventSessionEnded, map[string]any{"order_id": orderID}, s.participantIDs(ctx, orderID)...)
	}
	return snap, nil
}

// EndSession terminates the session for everyone.
func (s *Service) EndSession(ctx context.Context, orderID string) (*session.Session, error) {
	snap, err := s.sessions.ForceEnd(orderID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, notify.EventSessionEnded, map[string]any{"order_id": orderID}, s.participantIDs(ctx, orderID)...)
	return snap, nil
}

// GetSession returns the order's session snapshot.
func (s *Service) GetSession(orderID string) (*session.Session, error) {
	return s.sessions.Get(orderID)
}

func (s *Service) participantIDs(ctx context.Context, orderID string) []string {
	participants, err := s.ledger.Participants(ctx, orderID)
	if err != nil {
		s.logger.Error("Failed to load participants for fan-out", "order_id", orderID, "error", err)
		return nil
	}
	ids := make([]string, len(participants))
	for i, p := range participants {
		ids[i] = p.UserID
	}
	return ids
}

func (s *Service) publish(ctx context.Context, event string, payload any, userIDs ...string) {
	if err := s.events.Publish(ctx, event, payload, userIDs...); err != nil {
		s.logger.Error("Failed to publish event", "event", event, "error", err)
	}
}

func (s *Service) sendMail(ctx context.Context, msg mail.Message) {
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.logger.Warn("Failed to send mail", "to", msg.To, "subject", msg.Subject, "error", err)
	}
}
