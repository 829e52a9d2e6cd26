package store

import "time"

// InboundEventInsert records a signature-verified delivery before any handler
// runs. Rows are never deleted; they are the audit trail.
type InboundEventInsert struct {
	ID              string // internal evt_ id
	Provider        string
	ProviderEventID string
	EventType       string
	Payload         any
	SourceIP        string
	Now             time.Time
}

type InboundEventStatus struct {
	Exists    bool
	Processed bool
}

type SubscriptionUpsert struct {
	SubscriptionID    string
	CustomerID        string
	PriceID           string
	PlanName          *string
	PlanPrice         *float64
	Status            string
	PeriodStart       *time.Time
	PeriodEnd         *time.Time
	CancelAtPeriodEnd bool
	Now               time.Time
}

type InvoicePaymentUpdate struct {
	InvoiceID     string
	Status        string // paid | overdue
	PaymentStatus string // paid | failed
	PaymentRef    string
	PaidDate      *time.Time
	Now           time.Time
}

type MessageStatusUpsert struct {
	MessageSid   string
	Status       string
	ErrorCode    string
	ErrorMessage string
	Now          time.Time
}

// BillingLogInsert is the relay-side operational record of a fanned-out
// billing event.
type BillingLogInsert struct {
	Provider   string
	EventID    string
	Kind       string
	SubjectID  string
	Status     string
	OccurredAt time.Time
}
