package events

// Event is a closed sum over the callback kinds the ingest pipeline projects.
// Dispatch is a type switch over these variants; anything a provider sends
// that we do not model lands in Unknown and is acknowledged without side
// effects. Adding a variant means touching every switch, which is the point.
type Event interface {
	isEvent()
	Kind() string
}

// SubscriptionChange covers subscription created/updated callbacks.
type SubscriptionChange struct {
	SubscriptionID    string
	CustomerID        string
	PriceID           string
	Status            string
	CancelAtPeriodEnd bool
	PeriodStart       int64 // UNIX seconds as delivered by the provider
	PeriodEnd         int64
}

// SubscriptionCancel covers subscription deleted callbacks.
type SubscriptionCancel struct {
	SubscriptionID string
}

// PaymentSucceeded carries both correlation paths: the provider-side
// subscription reference and the app-supplied internal invoice id from the
// payment metadata. Either may be empty.
type PaymentSucceeded struct {
	SubscriptionID string
	InvoiceID      string // internal correlation, metadata "invoiceId"
	PaymentRef     string // external payment object id
}

type PaymentFailed struct {
	SubscriptionID string
	InvoiceID      string
	PaymentRef     string
}

// MessageStatus covers SMS/voice status callbacks from the carrier.
type MessageStatus struct {
	MessageSid   string
	Status       string
	ErrorCode    string
	ErrorMessage string
	To           string
	From         string
}

// Unknown is the fallback variant for event types without a handler. Not an
// error: providers add types over time and retries would not help.
type Unknown struct {
	Type string
}

func (SubscriptionChange) isEvent() {}
func (SubscriptionCancel) isEvent() {}
func (PaymentSucceeded) isEvent()   {}
func (PaymentFailed) isEvent()      {}
func (MessageStatus) isEvent()      {}
func (Unknown) isEvent()            {}

func (SubscriptionChange) Kind() string { return "subscription_change" }
func (SubscriptionCancel) Kind() string { return "subscription_cancel" }
func (PaymentSucceeded) Kind() string   { return "payment_succeeded" }
func (PaymentFailed) Kind() string      { return "payment_failed" }
func (MessageStatus) Kind() string      { return "message_status" }
func (Unknown) Kind() string            { return "unknown" }
