// Package ingest is the verified-event pipeline: idempotency check, dispatch
// over the event sum, projection writes, fan-out. Signature verification
// happens upstream in the HTTP layer; nothing here ever sees an unverified
// payload.
package ingest

import (
	"context"
	"log/slog"
	"time"

	"billhook/internal/events"
	"billhook/internal/observability"
	"billhook/internal/store"
	"billhook/internal/util"
)

type Store interface {
	CheckInboundEvent(ctx context.Context, provider, providerEventID string) (store.InboundEventStatus, error)
	RecordInboundEvent(ctx context.Context, in store.InboundEventInsert) error
	MarkInboundEventProcessed(ctx context.Context, provider, providerEventID string, now time.Time) error
	UpsertSubscription(ctx context.Context, in store.SubscriptionUpsert) error
	MarkSubscriptionCanceled(ctx context.Context, subscriptionID string, now time.Time) (bool, error)
	SetSubscriptionStatus(ctx context.Context, subscriptionID, status string, now time.Time) (bool, error)
	UpdateInvoicePayment(ctx context.Context, in store.InvoicePaymentUpdate) (bool, error)
	UpsertMessageStatus(ctx context.Context, in store.MessageStatusUpsert) error
}

// PlanResolver maps a price id to a plan name and major-unit price. Failures
// degrade to null plan fields; they never abort the subscription upsert.
type PlanResolver interface {
	Resolve(ctx context.Context, priceID string) (name string, price float64, err error)
}

// Publisher fans a processed event out to downstream consumers. Best-effort.
type Publisher interface {
	PublishBillingEvent(ctx context.Context, provider, eventID, kind, subjectID, status string, occurredAt time.Time) error
}

type Pipeline struct {
	Store Store
	Plans PlanResolver // nil disables enrichment
	Pub   Publisher    // nil disables fan-out
	IDGen func() string
}

// Delivery is one verified provider callback handed to Process.
type Delivery struct {
	Provider        string
	ProviderEventID string
	EventType       string
	Payload         any
	SourceIP        string
	Event           events.Event
}

type Result struct {
	Duplicate bool
}

// Process runs the check-then-mark sequence around dispatch. Idempotency
// bookkeeping failures are logged and skipped: availability wins over perfect
// bookkeeping for this secondary record. A projection-handler error is
// returned so the HTTP layer answers 500 and the provider retries; the record
// stays unprocessed and the retry re-attempts the (re-appliable) handlers.
//
// There is no in-process lock between the check and the final mark. Two
// concurrent deliveries of the same event id can both dispatch; the store's
// upsert-by-external-id semantics make that convergent. Accepted gap.
func (p *Pipeline) Process(ctx context.Context, d Delivery) (Result, error) {
	start := time.Now()

	st, err := p.Store.CheckInboundEvent(ctx, d.Provider, d.ProviderEventID)
	if err != nil {
		slog.Warn("idempotency check failed, processing anyway",
			"err", err, "provider", d.Provider, "provider_event_id", d.ProviderEventID)
	} else if st.Exists && st.Processed {
		observability.DuplicateEvents.WithLabelValues(d.Provider).Inc()
		slog.Info("duplicate delivery suppressed",
			"provider", d.Provider, "provider_event_id", d.ProviderEventID, "event_type", d.EventType)
		return Result{Duplicate: true}, nil
	}

	idGen := p.IDGen
	if idGen == nil {
		idGen = util.NewEventRecordID
	}
	if err := p.Store.RecordInboundEvent(ctx, store.InboundEventInsert{
		ID:              idGen(),
		Provider:        d.Provider,
		ProviderEventID: d.ProviderEventID,
		EventType:       d.EventType,
		Payload:         d.Payload,
		SourceIP:        d.SourceIP,
		Now:             util.NowUTC(),
	}); err != nil {
		slog.Warn("record inbound event failed, processing anyway",
			"err", err, "provider", d.Provider, "provider_event_id", d.ProviderEventID)
	}

	if err := p.apply(ctx, d.Event); err != nil {
		observability.EventsProcessed.WithLabelValues(d.Event.Kind(), "error").Inc()
		slog.Error("event processing failed",
			"err", err,
			"provider", d.Provider,
			"provider_event_id", d.ProviderEventID,
			"event_type", d.EventType,
			"duration", time.Since(start),
		)
		return Result{}, err
	}

	if err := p.Store.MarkInboundEventProcessed(ctx, d.Provider, d.ProviderEventID, util.NowUTC()); err != nil {
		slog.Warn("mark event processed failed",
			"err", err, "provider", d.Provider, "provider_event_id", d.ProviderEventID)
	}

	observability.EventsProcessed.WithLabelValues(d.Event.Kind(), "ok").Inc()
	observability.ProcessingDuration.Observe(time.Since(start).Seconds())

	p.fanOut(ctx, d)
	return Result{}, nil
}

func (p *Pipeline) fanOut(ctx context.Context, d Delivery) {
	if p.Pub == nil {
		return
	}
	subjectID, status := subject(d.Event)
	err := p.Pub.PublishBillingEvent(ctx, d.Provider, d.ProviderEventID, d.Event.Kind(), subjectID, status, util.NowUTC())
	if err != nil {
		observability.FanoutPublishes.WithLabelValues("error").Inc()
		slog.Warn("billing event fan-out failed",
			"err", err, "provider", d.Provider, "provider_event_id", d.ProviderEventID)
		return
	}
	observability.FanoutPublishes.WithLabelValues("ok").Inc()
}

func subject(ev events.Event) (subjectID, status string) {
	switch e := ev.(type) {
	case events.SubscriptionChange:
		return e.SubscriptionID, e.Status
	case events.SubscriptionCancel:
		return e.SubscriptionID, "canceled"
	case events.PaymentSucceeded:
		return e.PaymentRef, "succeeded"
	case events.PaymentFailed:
		return e.PaymentRef, "failed"
	case events.MessageStatus:
		return e.MessageSid, e.Status
	case events.Unknown:
		return "", ""
	}
	return "", ""
}
