// Package notify fans order and session events out to interested parties.
//
// Publishers are additive: the server composes a websocket hub (participant
// facing) with a Kafka producer (downstream consumers) through Multi.
package notify

import (
	"context"
	"log/slog"
)

// Event names carried on every published message.
const (
	EventOrderConfirmed  = "order.confirmed"
	EventOrderCancelled  = "order.cancelled"
	EventParticipantPaid = "participant.paid"
	EventSessionInvite   = "session.invite"
	EventSessionEnded    = "session.ended"
)

// Publisher delivers an event to the given users. An empty userIDs list
// means broadcast to whoever the publisher can reach. Implementations must
// be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, event string, payload any, userIDs ...string) error
}

// Multi fans a publish out to several publishers. Failures are logged and
// swallowed so one slow or broken sink never blocks order processing.
type Multi struct {
	publishers []Publisher
	logger     *slog.Logger
}

func NewMulti(logger *slog.Logger, publishers ...Publisher) *Multi {
	return &Multi{publishers: publishers, logger: logger}
}

func (m *Multi) Publish(ctx context.Context, event string, payload any, userIDs ...string) error {
	for _, p := range m.publishers {
		if err := p.Publish(ctx, event, payload, userIDs...); err != nil {
			m.logger.Error("Failed to publish event", "event", event, "error", err)
		}
	}
	return nil
}
