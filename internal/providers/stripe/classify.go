package stripe

import (
	"encoding/json"
	"fmt"

	stripego "github.com/stripe/stripe-go/v82"

	"billhook/internal/events"
)

// InvoiceMetadataKey is the app-supplied correlation field set when a payment
// is initiated, mapping the provider payment object back to an internal
// invoice row. When absent the invoice-side update is skipped.
const InvoiceMetadataKey = "invoiceId"

// Lightweight payload shapes decoded from event.Data.Raw. Decoding into our
// own structs keeps us off the SDK's full object graph and its field churn.
type subscriptionPayload struct {
	ID                 string `json:"id"`
	Customer           string `json:"customer"`
	Status             string `json:"status"`
	CancelAtPeriodEnd  bool   `json:"cancel_at_period_end"`
	CurrentPeriodStart int64  `json:"current_period_start"`
	CurrentPeriodEnd   int64  `json:"current_period_end"`
	Items              struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

type invoicePayload struct {
	ID            string            `json:"id"`
	Subscription  string            `json:"subscription"`
	PaymentIntent string            `json:"payment_intent"`
	Metadata      map[string]string `json:"metadata"`
}

// Classify maps a verified provider event onto the internal event sum.
// Unmodeled types come back as events.Unknown, never an error; a decode
// failure on a modeled type is a malformed payload and is an error.
func Classify(ev stripego.Event) (events.Event, error) {
	// Data is a pointer; a correctly signed envelope can still omit the data
	// object entirely.
	var raw []byte
	if ev.Data != nil {
		raw = ev.Data.Raw
	}

	switch ev.Type {
	case "customer.subscription.created", "customer.subscription.updated":
		sub, err := decodeSubscription(raw)
		if err != nil {
			return nil, err
		}
		out := events.SubscriptionChange{
			SubscriptionID:    sub.ID,
			CustomerID:        sub.Customer,
			Status:            sub.Status,
			CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
			PeriodStart:       sub.CurrentPeriodStart,
			PeriodEnd:         sub.CurrentPeriodEnd,
		}
		if len(sub.Items.Data) > 0 {
			out.PriceID = sub.Items.Data[0].Price.ID
		}
		return out, nil

	case "customer.subscription.deleted":
		sub, err := decodeSubscription(raw)
		if err != nil {
			return nil, err
		}
		return events.SubscriptionCancel{SubscriptionID: sub.ID}, nil

	case "invoice.payment_succeeded":
		inv, err := decodeInvoice(raw)
		if err != nil {
			return nil, err
		}
		return events.PaymentSucceeded{
			SubscriptionID: inv.Subscription,
			InvoiceID:      inv.Metadata[InvoiceMetadataKey],
			PaymentRef:     inv.ID,
		}, nil

	case "invoice.payment_failed":
		inv, err := decodeInvoice(raw)
		if err != nil {
			return nil, err
		}
		return events.PaymentFailed{
			SubscriptionID: inv.Subscription,
			InvoiceID:      inv.Metadata[InvoiceMetadataKey],
			PaymentRef:     inv.ID,
		}, nil
	}

	return events.Unknown{Type: string(ev.Type)}, nil
}

func decodeSubscription(raw []byte) (subscriptionPayload, error) {
	if len(raw) == 0 {
		return subscriptionPayload{}, fmt.Errorf("subscription event without data object")
	}
	var sub subscriptionPayload
	if err := json.Unmarshal(raw, &sub); err != nil {
		return subscriptionPayload{}, fmt.Errorf("decode subscription payload: %w", err)
	}
	return sub, nil
}

func decodeInvoice(raw []byte) (invoicePayload, error) {
	if len(raw) == 0 {
		return invoicePayload{}, fmt.Errorf("invoice event without data object")
	}
	var inv invoicePayload
	if err := json.Unmarshal(raw, &inv); err != nil {
		return invoicePayload{}, fmt.Errorf("decode invoice payload: %w", err)
	}
	return inv, nil
}
