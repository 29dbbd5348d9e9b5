package events

import (
	"context"
	"fmt"
	"time"
)

// Relay publishes up to batch pending events in order and marks the delivered
// prefix as published. A publish failure stops the batch so ordering holds;
// the remaining events are retried on the next run.
func Relay(ctx context.Context, outbox *Outbox, pub Publisher, batch int) (int, error) {
	pending, err := outbox.Pending(ctx, batch)
	if err != nil {
		return 0, err
	}

	delivered := make([]int64, 0, len(pending))
	var pubErr error
	for _, e := range pending {
		if err := pub.Publish(ctx, e); err != nil {
			pubErr = fmt.Errorf("publishing event %d: %w", e.Seq, err)
			break
		}
		delivered = append(delivered, e.Seq)
	}

	if err := outbox.MarkPublished(ctx, delivered, time.Now()); err != nil {
		return 0, err
	}
	return len(delivered), pubErr
}
