package stripe

import (
	"encoding/json"
	"testing"

	stripego "github.com/stripe/stripe-go/v82"

	"billhook/internal/events"
)

func event(t *testing.T, typ, raw string) stripego.Event {
	t.Helper()
	return stripego.Event{
		ID:   "evt_test",
		Type: stripego.EventType(typ),
		Data: &stripego.EventData{Raw: json.RawMessage(raw)},
	}
}

func TestClassifySubscriptionUpdated(t *testing.T) {
	ev, err := Classify(event(t, "customer.subscription.updated", `{
		"id": "sub_1",
		"customer": "cus_9",
		"status": "active",
		"cancel_at_period_end": false,
		"current_period_start": 1700000000,
		"current_period_end": 1702592000,
		"items": {"data": [{"price": {"id": "price_A"}}]}
	}`))
	if err != nil {
		t.Fatalf("classify: %v", err)
	}

	change, ok := ev.(events.SubscriptionChange)
	if !ok {
		t.Fatalf("expected SubscriptionChange, got %T", ev)
	}
	if change.SubscriptionID != "sub_1" || change.CustomerID != "cus_9" {
		t.Fatalf("unexpected ids: %+v", change)
	}
	if change.PriceID != "price_A" {
		t.Fatalf("expected first line item price, got %q", change.PriceID)
	}
	if change.Status != "active" || change.PeriodEnd != 1702592000 {
		t.Fatalf("unexpected status/period: %+v", change)
	}
}

func TestClassifySubscriptionNoItems(t *testing.T) {
	ev, err := Classify(event(t, "customer.subscription.created", `{"id":"sub_2","status":"trialing","items":{"data":[]}}`))
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if change := ev.(events.SubscriptionChange); change.PriceID != "" {
		t.Fatalf("expected empty price id, got %q", change.PriceID)
	}
}

func TestClassifySubscriptionDeleted(t *testing.T) {
	ev, err := Classify(event(t, "customer.subscription.deleted", `{"id":"sub_1","status":"canceled"}`))
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if cancel, ok := ev.(events.SubscriptionCancel); !ok || cancel.SubscriptionID != "sub_1" {
		t.Fatalf("expected SubscriptionCancel for sub_1, got %#v", ev)
	}
}

func TestClassifyPaymentSucceededWithCorrelation(t *testing.T) {
	ev, err := Classify(event(t, "invoice.payment_succeeded", `{
		"id": "in_77",
		"subscription": "sub_1",
		"metadata": {"invoiceId": "inv_99"}
	}`))
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	paid, ok := ev.(events.PaymentSucceeded)
	if !ok {
		t.Fatalf("expected PaymentSucceeded, got %T", ev)
	}
	if paid.SubscriptionID != "sub_1" || paid.InvoiceID != "inv_99" || paid.PaymentRef != "in_77" {
		t.Fatalf("unexpected correlation fields: %+v", paid)
	}
}

func TestClassifyPaymentFailedWithoutCorrelation(t *testing.T) {
	ev, err := Classify(event(t, "invoice.payment_failed", `{"id":"in_78","subscription":"sub_1"}`))
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	failed := ev.(events.PaymentFailed)
	if failed.InvoiceID != "" {
		t.Fatalf("expected empty invoice correlation, got %q", failed.InvoiceID)
	}
}

func TestClassifyUnknownType(t *testing.T) {
	ev, err := Classify(event(t, "customer.created", `{"id":"cus_1"}`))
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if unk, ok := ev.(events.Unknown); !ok || unk.Type != "customer.created" {
		t.Fatalf("expected Unknown variant, got %#v", ev)
	}
}

func TestClassifyMalformedPayload(t *testing.T) {
	if _, err := Classify(event(t, "customer.subscription.updated", `{"id":`)); err == nil {
		t.Fatalf("expected malformed payload to error")
	}
}

func TestClassifyMissingDataObject(t *testing.T) {
	// The Data field is a pointer and a signed envelope may omit it entirely.
	for _, typ := range []string{
		"customer.subscription.updated",
		"customer.subscription.deleted",
		"invoice.payment_succeeded",
		"invoice.payment_failed",
	} {
		if _, err := Classify(stripego.Event{ID: "evt_test", Type: stripego.EventType(typ)}); err == nil {
			t.Fatalf("%s without data object should be malformed", typ)
		}
	}

	ev, err := Classify(stripego.Event{ID: "evt_test", Type: "ping"})
	if err != nil {
		t.Fatalf("unmodeled type without data should not error: %v", err)
	}
	if _, ok := ev.(events.Unknown); !ok {
		t.Fatalf("expected Unknown variant, got %#v", ev)
	}
}
