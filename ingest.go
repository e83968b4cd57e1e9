package main

import (
	"context"
	"time"

	"github.com/roadsense/roadhub/observability"
	"github.com/roadsense/roadhub/store"
	"github.com/roadsense/roadhub/streaming"
)

// Ingestor persists record batches and fans each record out to the
// channels subscribed for its user id.
type Ingestor struct {
	store     store.Store
	hub       *SubscriptionHub
	publisher streaming.Publisher
}

func NewIngestor(s store.Store, hub *SubscriptionHub, publisher streaming.Publisher) *Ingestor {
	return &Ingestor{
		store:     s,
		hub:       hub,
		publisher: publisher,
	}
}

// Ingest persists the batch atomically, then delivers each record in
// input order to its user's live channels. The operation's outcome is
// defined purely by persistence; delivery failures stay internal to
// the hub, which drops the offending channel.
func (i *Ingestor) Ingest(ctx context.Context, records []*store.ProcessedRecord) error {
	start := time.Now()
	if err := i.store.CreateRecords(ctx, records); err != nil {
		return err
	}
	observability.IngestDuration.Observe(time.Since(start).Seconds())
	observability.RecordsIngested.Add(float64(len(records)))

	for _, rec := range records {
		i.hub.Publish(rec.UserID, rec)

		if i.publisher != nil {
			if err := i.publisher.Publish(ctx, "record.created", rec); err != nil {
				observability.EventPublishFailures.WithLabelValues("record.created").Inc()
			}
		}
	}
	return nil
}
