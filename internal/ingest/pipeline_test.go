package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"billhook/internal/events"
	"billhook/internal/store"
)

type fakeStore struct {
	status    store.InboundEventStatus
	checkErr  error
	recordErr error
	markErr   error

	upsertErr  error
	cancelOK   bool
	cancelErr  error
	statusOK   bool
	statusErr  error
	invoiceOK  bool
	invoiceErr error
	msgErr     error

	checked  []string
	recorded []store.InboundEventInsert
	marked   []string

	subscriptions []store.SubscriptionUpsert
	canceled      []string
	statusSets    []statusSet
	invoices      []store.InvoicePaymentUpdate
	messages      []store.MessageStatusUpsert
}

type statusSet struct {
	id     string
	status string
}

func (f *fakeStore) CheckInboundEvent(ctx context.Context, provider, id string) (store.InboundEventStatus, error) {
	f.checked = append(f.checked, provider+"/"+id)
	return f.status, f.checkErr
}

func (f *fakeStore) RecordInboundEvent(ctx context.Context, in store.InboundEventInsert) error {
	f.recorded = append(f.recorded, in)
	return f.recordErr
}

func (f *fakeStore) MarkInboundEventProcessed(ctx context.Context, provider, id string, now time.Time) error {
	f.marked = append(f.marked, provider+"/"+id)
	return f.markErr
}

func (f *fakeStore) UpsertSubscription(ctx context.Context, in store.SubscriptionUpsert) error {
	f.subscriptions = append(f.subscriptions, in)
	return f.upsertErr
}

func (f *fakeStore) MarkSubscriptionCanceled(ctx context.Context, id string, now time.Time) (bool, error) {
	f.canceled = append(f.canceled, id)
	return f.cancelOK, f.cancelErr
}

func (f *fakeStore) SetSubscriptionStatus(ctx context.Context, id, status string, now time.Time) (bool, error) {
	f.statusSets = append(f.statusSets, statusSet{id: id, status: status})
	return f.statusOK, f.statusErr
}

func (f *fakeStore) UpdateInvoicePayment(ctx context.Context, in store.InvoicePaymentUpdate) (bool, error) {
	f.invoices = append(f.invoices, in)
	return f.invoiceOK, f.invoiceErr
}

func (f *fakeStore) UpsertMessageStatus(ctx context.Context, in store.MessageStatusUpsert) error {
	f.messages = append(f.messages, in)
	return f.msgErr
}

func (f *fakeStore) projectionWrites() int {
	return len(f.subscriptions) + len(f.canceled) + len(f.statusSets) + len(f.invoices) + len(f.messages)
}

type fakePlans struct {
	name  string
	price float64
	err   error
	calls []string
}

func (f *fakePlans) Resolve(ctx context.Context, priceID string) (string, float64, error) {
	f.calls = append(f.calls, priceID)
	return f.name, f.price, f.err
}

type fakePub struct {
	err       error
	published []string
}

func (f *fakePub) PublishBillingEvent(ctx context.Context, provider, eventID, kind, subjectID, status string, occurredAt time.Time) error {
	f.published = append(f.published, kind+"/"+subjectID)
	return f.err
}

func delivery(ev events.Event) Delivery {
	return Delivery{
		Provider:        "stripe",
		ProviderEventID: "evt_1",
		EventType:       "test.event",
		SourceIP:        "203.0.113.7",
		Event:           ev,
	}
}

func TestDuplicateDeliveryShortCircuits(t *testing.T) {
	fs := &fakeStore{status: store.InboundEventStatus{Exists: true, Processed: true}}
	p := &Pipeline{Store: fs}

	res, err := p.Process(context.Background(), delivery(events.SubscriptionCancel{SubscriptionID: "sub_1"}))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !res.Duplicate {
		t.Fatalf("expected duplicate result")
	}
	if fs.projectionWrites() != 0 {
		t.Fatalf("duplicate must not re-run side effects, got %d writes", fs.projectionWrites())
	}
	if len(fs.recorded) != 0 {
		t.Fatalf("duplicate must not re-record the event")
	}
}

func TestUnprocessedExistingEventIsReattempted(t *testing.T) {
	fs := &fakeStore{status: store.InboundEventStatus{Exists: true, Processed: false}, cancelOK: true}
	p := &Pipeline{Store: fs}

	res, err := p.Process(context.Background(), delivery(events.SubscriptionCancel{SubscriptionID: "sub_1"}))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Duplicate {
		t.Fatalf("unprocessed event must not be treated as duplicate")
	}
	if len(fs.canceled) != 1 {
		t.Fatalf("expected handler to run")
	}
}

func TestUnknownEventAcknowledgedWithoutProjection(t *testing.T) {
	fs := &fakeStore{}
	p := &Pipeline{Store: fs}

	if _, err := p.Process(context.Background(), delivery(events.Unknown{Type: "customer.created"})); err != nil {
		t.Fatalf("process: %v", err)
	}
	if fs.projectionWrites() != 0 {
		t.Fatalf("unknown type must not write projections")
	}
	if len(fs.recorded) != 1 || len(fs.marked) != 1 {
		t.Fatalf("unknown type should still be recorded and marked processed")
	}
}

func TestSubscriptionChangeEnriched(t *testing.T) {
	fs := &fakeStore{}
	plans := &fakePlans{name: "Professional", price: 79.00}
	p := &Pipeline{Store: fs, Plans: plans}

	periodEnd := int64(1702592000)
	_, err := p.Process(context.Background(), delivery(events.SubscriptionChange{
		SubscriptionID: "sub_1",
		CustomerID:     "cus_9",
		PriceID:        "price_A",
		Status:         "active",
		PeriodEnd:      periodEnd,
	}))
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	if len(fs.subscriptions) != 1 {
		t.Fatalf("expected one subscription upsert, got %d", len(fs.subscriptions))
	}
	up := fs.subscriptions[0]
	if up.PlanName == nil || *up.PlanName != "Professional" {
		t.Fatalf("expected plan name Professional, got %v", up.PlanName)
	}
	if up.PlanPrice == nil || *up.PlanPrice != 79.00 {
		t.Fatalf("expected plan price 79.00, got %v", up.PlanPrice)
	}
	if up.Status != "active" {
		t.Fatalf("expected status active, got %q", up.Status)
	}
	want := time.Unix(periodEnd, 0).UTC()
	if up.PeriodEnd == nil || !up.PeriodEnd.Equal(want) {
		t.Fatalf("expected period end %v, got %v", want, up.PeriodEnd)
	}
	if len(plans.calls) != 1 || plans.calls[0] != "price_A" {
		t.Fatalf("expected plan lookup for price_A, got %v", plans.calls)
	}
}

func TestPlanLookupFailureStillUpserts(t *testing.T) {
	fs := &fakeStore{}
	p := &Pipeline{Store: fs, Plans: &fakePlans{err: errors.New("stripe down")}}

	_, err := p.Process(context.Background(), delivery(events.SubscriptionChange{
		SubscriptionID: "sub_1",
		PriceID:        "price_A",
		Status:         "active",
	}))
	if err != nil {
		t.Fatalf("enrichment failure must not fail the event: %v", err)
	}
	if len(fs.subscriptions) != 1 {
		t.Fatalf("expected upsert despite lookup failure")
	}
	up := fs.subscriptions[0]
	if up.PlanName != nil || up.PlanPrice != nil {
		t.Fatalf("expected null plan fields on lookup failure, got %v/%v", up.PlanName, up.PlanPrice)
	}
}

func TestCancelMissingRowIsNoop(t *testing.T) {
	fs := &fakeStore{cancelOK: false}
	p := &Pipeline{Store: fs}

	if _, err := p.Process(context.Background(), delivery(events.SubscriptionCancel{SubscriptionID: "sub_gone"})); err != nil {
		t.Fatalf("missing row must not error: %v", err)
	}
	if len(fs.marked) != 1 {
		t.Fatalf("no-op cancellation should still mark the event processed")
	}
}

func TestPaymentSucceededDualUpdate(t *testing.T) {
	fs := &fakeStore{statusOK: true, invoiceOK: true}
	p := &Pipeline{Store: fs}

	_, err := p.Process(context.Background(), delivery(events.PaymentSucceeded{
		SubscriptionID: "sub_1",
		InvoiceID:      "inv_99",
		PaymentRef:     "in_77",
	}))
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	if len(fs.statusSets) != 1 || fs.statusSets[0] != (statusSet{id: "sub_1", status: "active"}) {
		t.Fatalf("expected sub_1 set active, got %v", fs.statusSets)
	}
	if len(fs.invoices) != 1 {
		t.Fatalf("expected invoice update")
	}
	inv := fs.invoices[0]
	if inv.InvoiceID != "inv_99" || inv.Status != "paid" || inv.PaymentStatus != "paid" {
		t.Fatalf("unexpected invoice update %+v", inv)
	}
	if inv.PaidDate == nil {
		t.Fatalf("expected non-nil paid date")
	}
	if inv.PaymentRef != "in_77" {
		t.Fatalf("expected external payment reference recorded, got %q", inv.PaymentRef)
	}
}

func TestPaymentSucceededWithoutCorrelationSkipsInvoice(t *testing.T) {
	fs := &fakeStore{statusOK: true}
	p := &Pipeline{Store: fs}

	if _, err := p.Process(context.Background(), delivery(events.PaymentSucceeded{SubscriptionID: "sub_1"})); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(fs.invoices) != 0 {
		t.Fatalf("missing correlation must skip the invoice update")
	}
	if len(fs.statusSets) != 1 {
		t.Fatalf("subscription side should still update")
	}
}

func TestPaymentFailedMirrorsSuccess(t *testing.T) {
	fs := &fakeStore{statusOK: true, invoiceOK: true}
	p := &Pipeline{Store: fs}

	_, err := p.Process(context.Background(), delivery(events.PaymentFailed{
		SubscriptionID: "sub_1",
		InvoiceID:      "inv_99",
		PaymentRef:     "in_78",
	}))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if fs.statusSets[0].status != "past_due" {
		t.Fatalf("expected past_due, got %q", fs.statusSets[0].status)
	}
	inv := fs.invoices[0]
	if inv.Status != "overdue" || inv.PaymentStatus != "failed" {
		t.Fatalf("unexpected invoice update %+v", inv)
	}
	if inv.PaidDate != nil {
		t.Fatalf("failed payment must not set a paid date")
	}
}

func TestMessageStatusLowercasedAndRecorded(t *testing.T) {
	fs := &fakeStore{}
	p := &Pipeline{Store: fs}

	_, err := p.Process(context.Background(), delivery(events.MessageStatus{
		MessageSid: "SM123",
		Status:     "Failed",
		ErrorCode:  "30003",
	}))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(fs.messages) != 1 {
		t.Fatalf("expected message upsert")
	}
	msg := fs.messages[0]
	if msg.Status != "failed" {
		t.Fatalf("expected lower-cased status, got %q", msg.Status)
	}
	if msg.ErrorCode != "30003" {
		t.Fatalf("expected error code recorded, got %q", msg.ErrorCode)
	}
}

func TestBookkeepingErrorsDoNotBlockProcessing(t *testing.T) {
	fs := &fakeStore{
		checkErr:  errors.New("idempotency read down"),
		recordErr: errors.New("idempotency write down"),
		markErr:   errors.New("idempotency mark down"),
		cancelOK:  true,
	}
	p := &Pipeline{Store: fs}

	if _, err := p.Process(context.Background(), delivery(events.SubscriptionCancel{SubscriptionID: "sub_1"})); err != nil {
		t.Fatalf("bookkeeping failures must not fail the event: %v", err)
	}
	if len(fs.canceled) != 1 {
		t.Fatalf("expected handler to run despite bookkeeping errors")
	}
}

func TestHandlerErrorPropagatesAndLeavesUnprocessed(t *testing.T) {
	fs := &fakeStore{upsertErr: errors.New("write failed")}
	p := &Pipeline{Store: fs}

	_, err := p.Process(context.Background(), delivery(events.SubscriptionChange{SubscriptionID: "sub_1", Status: "active"}))
	if err == nil {
		t.Fatalf("expected primary-write error to propagate")
	}
	if len(fs.marked) != 0 {
		t.Fatalf("failed event must stay unprocessed for the provider retry")
	}
}

func TestFanOutPublishedOnSuccessOnly(t *testing.T) {
	pub := &fakePub{}
	fs := &fakeStore{cancelOK: true}
	p := &Pipeline{Store: fs, Pub: pub}

	if _, err := p.Process(context.Background(), delivery(events.SubscriptionCancel{SubscriptionID: "sub_1"})); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(pub.published) != 1 || pub.published[0] != "subscription_cancel/sub_1" {
		t.Fatalf("expected one fan-out publish, got %v", pub.published)
	}

	// duplicates do not publish again
	fs.status = store.InboundEventStatus{Exists: true, Processed: true}
	if _, err := p.Process(context.Background(), delivery(events.SubscriptionCancel{SubscriptionID: "sub_1"})); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(pub.published) != 1 {
		t.Fatalf("duplicate must not fan out")
	}
}

func TestFanOutFailureIsSwallowed(t *testing.T) {
	pub := &fakePub{err: errors.New("queue down")}
	fs := &fakeStore{cancelOK: true}
	p := &Pipeline{Store: fs, Pub: pub}

	if _, err := p.Process(context.Background(), delivery(events.SubscriptionCancel{SubscriptionID: "sub_1"})); err != nil {
		t.Fatalf("fan-out failure must not fail the event: %v", err)
	}
}

func TestRecordedEventCarriesDeliveryContext(t *testing.T) {
	fs := &fakeStore{}
	p := &Pipeline{Store: fs, IDGen: func() string { return "evt_fixed" }}

	if _, err := p.Process(context.Background(), delivery(events.Unknown{Type: "x"})); err != nil {
		t.Fatalf("process: %v", err)
	}
	rec := fs.recorded[0]
	if rec.ID != "evt_fixed" || rec.Provider != "stripe" || rec.ProviderEventID != "evt_1" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.SourceIP != "203.0.113.7" || rec.EventType != "test.event" {
		t.Fatalf("expected delivery context on record, got %+v", rec)
	}
}
