package ingest

import (
	"context"
	"log/slog"
	"strings"

	"billhook/internal/events"
	"billhook/internal/observability"
	"billhook/internal/store"
	"billhook/internal/util"
)

// apply dispatches over the closed event sum. Every variant is listed; the
// trailing case is unreachable unless a new variant is added without a
// handler, which fails loudly in tests rather than silently dropping events.
func (p *Pipeline) apply(ctx context.Context, ev events.Event) error {
	switch e := ev.(type) {
	case events.SubscriptionChange:
		return p.applySubscriptionChange(ctx, e)
	case events.SubscriptionCancel:
		return p.applySubscriptionCancel(ctx, e)
	case events.PaymentSucceeded:
		return p.applyPaymentSucceeded(ctx, e)
	case events.PaymentFailed:
		return p.applyPaymentFailed(ctx, e)
	case events.MessageStatus:
		return p.applyMessageStatus(ctx, e)
	case events.Unknown:
		slog.Info("unhandled event type acknowledged", "event_type", e.Type)
		return nil
	}
	slog.Error("event variant without a handler", "kind", ev.Kind())
	return nil
}

func (p *Pipeline) applySubscriptionChange(ctx context.Context, e events.SubscriptionChange) error {
	up := store.SubscriptionUpsert{
		SubscriptionID:    e.SubscriptionID,
		CustomerID:        e.CustomerID,
		PriceID:           e.PriceID,
		Status:            e.Status,
		PeriodStart:       util.UnixToTime(e.PeriodStart),
		PeriodEnd:         util.UnixToTime(e.PeriodEnd),
		CancelAtPeriodEnd: e.CancelAtPeriodEnd,
		Now:               util.NowUTC(),
	}

	if e.PriceID != "" && p.Plans != nil {
		name, price, err := p.Plans.Resolve(ctx, e.PriceID)
		if err != nil {
			// Best-effort enrichment: upsert proceeds with null plan fields.
			slog.Warn("plan lookup failed, storing subscription without plan details",
				"err", err, "subscription_id", e.SubscriptionID, "price_id", e.PriceID)
		} else {
			up.PlanName = &name
			up.PlanPrice = &price
		}
	}

	return p.Store.UpsertSubscription(ctx, up)
}

func (p *Pipeline) applySubscriptionCancel(ctx context.Context, e events.SubscriptionCancel) error {
	updated, err := p.Store.MarkSubscriptionCanceled(ctx, e.SubscriptionID, util.NowUTC())
	if err != nil {
		return err
	}
	if !updated {
		// Cancellation may arrive before the row exists. Tolerated.
		slog.Info("cancellation for unknown subscription ignored", "subscription_id", e.SubscriptionID)
	}
	return nil
}

func (p *Pipeline) applyPaymentSucceeded(ctx context.Context, e events.PaymentSucceeded) error {
	if e.SubscriptionID != "" {
		if _, err := p.Store.SetSubscriptionStatus(ctx, e.SubscriptionID, "active", util.NowUTC()); err != nil {
			return err
		}
	}
	if e.InvoiceID == "" {
		// No correlation metadata on the payment object: the invoice-side
		// update cannot happen. Logged so the gap is visible.
		slog.Info("payment succeeded without invoice correlation", "payment_ref", e.PaymentRef)
		return nil
	}
	now := util.NowUTC()
	updated, err := p.Store.UpdateInvoicePayment(ctx, store.InvoicePaymentUpdate{
		InvoiceID:     e.InvoiceID,
		Status:        "paid",
		PaymentStatus: "paid",
		PaymentRef:    e.PaymentRef,
		PaidDate:      &now,
		Now:           now,
	})
	if err != nil {
		return err
	}
	if !updated {
		slog.Warn("paid invoice not found", "invoice_id", e.InvoiceID, "payment_ref", e.PaymentRef)
	}
	return nil
}

func (p *Pipeline) applyPaymentFailed(ctx context.Context, e events.PaymentFailed) error {
	if e.SubscriptionID != "" {
		if _, err := p.Store.SetSubscriptionStatus(ctx, e.SubscriptionID, "past_due", util.NowUTC()); err != nil {
			return err
		}
	}
	if e.InvoiceID == "" {
		slog.Info("payment failed without invoice correlation", "payment_ref", e.PaymentRef)
		return nil
	}
	updated, err := p.Store.UpdateInvoicePayment(ctx, store.InvoicePaymentUpdate{
		InvoiceID:     e.InvoiceID,
		Status:        "overdue",
		PaymentStatus: "failed",
		PaymentRef:    e.PaymentRef,
		Now:           util.NowUTC(),
	})
	if err != nil {
		return err
	}
	if !updated {
		slog.Warn("failed-payment invoice not found", "invoice_id", e.InvoiceID, "payment_ref", e.PaymentRef)
	}
	return nil
}

func (p *Pipeline) applyMessageStatus(ctx context.Context, e events.MessageStatus) error {
	status := strings.ToLower(e.Status)
	observability.MessageStatusEvents.WithLabelValues(status).Inc()

	if status == "failed" || status == "undelivered" || e.ErrorCode != "" {
		slog.Warn("message delivery problem reported",
			"message_sid", e.MessageSid,
			"status", status,
			"error_code", e.ErrorCode,
			"error_message", e.ErrorMessage,
		)
	}

	return p.Store.UpsertMessageStatus(ctx, store.MessageStatusUpsert{
		MessageSid:   e.MessageSid,
		Status:       status,
		ErrorCode:    e.ErrorCode,
		ErrorMessage: e.ErrorMessage,
		Now:          util.NowUTC(),
	})
}
