package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	kafkax "github.com/ariefcatur/gift-orders/internal/kafka"
	"github.com/ariefcatur/gift-orders/internal/logging"
	"github.com/ariefcatur/gift-orders/internal/orders"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Sender interface {
	Send(ctx context.Context, content string) error
}

// Deduper remembers delivered event ids.
type Deduper interface {
	Seen(ctx context.Context, scope, id string) (bool, error)
	Mark(ctx context.Context, scope, id string) error
}

// Forwarder turns status events from Kafka into operator messages.
type Forwarder struct {
	Sender Sender
	Dedup  Deduper
	Log    *zap.Logger
}

func (f *Forwarder) HandleMessage(ctx context.Context, m kafkago.Message) error {
	log := logging.OrNop(f.Log)

	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		// poison message: log and commit
		log.Warn("drop undecodable event", zap.String("topic", m.Topic), zap.Error(err))
		return nil
	}

	if f.Dedup != nil {
		seen, err := f.Dedup.Seen(ctx, "notifier", env.EventID)
		if err != nil {
			log.Warn("dedup check failed", zap.String("event_id", env.EventID), zap.Error(err))
		} else if seen {
			return nil
		}
	}

	var content string
	switch env.EventType {
	case orders.EventStatusChanged:
		p, err := kafkax.UnwrapPayload[orders.StatusChangedPayload](env.Payload)
		if err != nil {
			log.Warn("drop bad payload", zap.String("event_id", env.EventID), zap.Error(err))
			return nil
		}
		content = FormatStatusChanged(p)
	case orders.EventBatchCompleted:
		p, err := kafkax.UnwrapPayload[orders.BatchCompletedPayload](env.Payload)
		if err != nil {
			log.Warn("drop bad payload", zap.String("event_id", env.EventID), zap.Error(err))
			return nil
		}
		content = FormatBatch(p)
	default:
		return nil
	}

	if err := f.Sender.Send(ctx, content); err != nil {
		return err
	}
	if f.Dedup != nil {
		if err := f.Dedup.Mark(ctx, "notifier", env.EventID); err != nil {
			log.Warn("dedup mark failed", zap.String("event_id", env.EventID), zap.Error(err))
		}
	}
	log.Debug("notification sent", zap.String("event_id", env.EventID), zap.String("event_type", env.EventType))
	return nil
}

func FormatStatusChanged(p orders.StatusChangedPayload) string {
	ref := p.ShortCode
	if ref == "" {
		ref = p.OrderID
	}
	msg := fmt.Sprintf("Order %s: %s -> %s by %s", ref, p.OldStatus, p.NewStatus, p.Actor)
	if p.Reason != "" {
		msg += fmt.Sprintf(" (reason: %s)", p.Reason)
	}
	return msg
}

func FormatBatch(p orders.BatchCompletedPayload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Bulk update to %s by %s: %d ok, %d failed", p.Status, p.Actor, len(p.Successful), len(p.Failed))
	if p.Reason != "" {
		fmt.Fprintf(&b, " (reason: %s)", p.Reason)
	}
	for _, f := range p.Failed {
		fmt.Fprintf(&b, "\n- %s: %s", f.OrderID, f.Code)
	}
	return b.String()
}
