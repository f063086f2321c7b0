package chat

import (
	"context"

	"github.com/haasonsaas/huddle/internal/observability"
)

// deliver pushes ev to every live connection of every recipient. The actor's
// connections receive a copy carrying the request ID. Registry snapshots are
// taken per recipient and sends never block, so one slow consumer cannot
// stall the others.
func (s *Service) deliver(ctx context.Context, actorID int64, recipients []int64, ev Event) {
	if len(recipients) == 0 {
		return
	}
	eventType := EventType(ev)
	ctx, span := s.tracer.TraceFanout(ctx, eventType, len(recipients))
	defer span.End()

	plain, err := Encode(ev, "")
	if err != nil {
		s.logger.ErrorContext(ctx, "encode event", "event", eventType, "error", err)
		s.metrics.RecordError("fanout", "encode")
		return
	}
	forActor := plain
	if requestID := observability.GetRequestID(ctx); requestID != "" {
		if encoded, err := Encode(ev, requestID); err == nil {
			forActor = encoded
		}
	}

	var delivered, dropped int
	defer func() { s.tracer.SetAttributes(span, "chat.delivered", delivered, "chat.dropped", dropped) }()

	seen := make(map[int64]bool, len(recipients))
	for _, userID := range recipients {
		if seen[userID] {
			continue
		}
		seen[userID] = true

		payload := plain
		if userID == actorID {
			payload = forActor
		}
		for _, conn := range s.registry.ConnectionsFor(userID) {
			if err := conn.Send(payload); err != nil {
				dropped++
				s.metrics.EventDropped(eventType)
				s.logger.WarnContext(ctx, "dropped event",
					"event", eventType,
					"recipient_id", userID,
					"recipient_conn", conn.ID(),
					"error", err,
				)
				continue
			}
			delivered++
			s.metrics.EventDelivered(eventType)
		}
	}
}

// deliverOne is deliver for a single recipient.
func (s *Service) deliverOne(ctx context.Context, actorID, userID int64, ev Event) {
	s.deliver(ctx, actorID, []int64{userID}, ev)
}
