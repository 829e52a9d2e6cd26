// Package relay consumes fanned-out billing events and keeps the operational
// billing_event_log current. The log is the replay/audit path for downstream
// consumers that missed a notification.
package relay

import (
	"context"
	"time"

	sqsqueue "billhook/internal/queue/sqs"
	"billhook/internal/store"
)

type Store interface {
	InsertBillingLog(ctx context.Context, in store.BillingLogInsert) error
}

type Projector struct {
	Store Store
}

// Process appends one relayed event. Errors propagate so the queue redrives
// the message; the insert is append-only and harmless to repeat.
func (p *Projector) Process(ctx context.Context, ev sqsqueue.BillingEvent) error {
	// Bound DB work independently of the poll loop's context.
	dbCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	occurredAt := ev.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	return p.Store.InsertBillingLog(dbCtx, store.BillingLogInsert{
		Provider:   ev.Provider,
		EventID:    ev.EventID,
		Kind:       ev.Kind,
		SubjectID:  ev.SubjectID,
		Status:     ev.Status,
		OccurredAt: occurredAt,
	})
}
