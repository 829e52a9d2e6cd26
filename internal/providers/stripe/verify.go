// Package stripe verifies payment provider callbacks, classifies them into
// the internal event variants and resolves price/product lookups for plan
// enrichment.
package stripe

import (
	stripego "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

const SignatureHeader = "Stripe-Signature"

// MaxBodyBytes caps webhook payload reads. Provider payloads are small; the
// limit protects against abuse.
const MaxBodyBytes = 64 * 1024

// VerifyEvent recomputes the signature over the exact raw body bytes and
// parses the event envelope. The SDK rejects mismatched signatures, expired
// timestamps and malformed headers.
func VerifyEvent(payload []byte, sigHeader, secret string) (stripego.Event, error) {
	return webhook.ConstructEventWithOptions(payload, sigHeader, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}
