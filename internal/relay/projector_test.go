package relay

import (
	"context"
	"errors"
	"testing"
	"time"

	sqsqueue "billhook/internal/queue/sqs"
	"billhook/internal/store"
)

type fakeStore struct {
	err      error
	inserted []store.BillingLogInsert
}

func (f *fakeStore) InsertBillingLog(ctx context.Context, in store.BillingLogInsert) error {
	f.inserted = append(f.inserted, in)
	return f.err
}

func TestProcessAppendsLogEntry(t *testing.T) {
	fs := &fakeStore{}
	p := &Projector{Store: fs}

	occurred := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	err := p.Process(context.Background(), sqsqueue.BillingEvent{
		Provider:   "stripe",
		EventID:    "evt_1",
		Kind:       "payment_succeeded",
		SubjectID:  "in_77",
		Status:     "succeeded",
		OccurredAt: occurred,
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(fs.inserted) != 1 {
		t.Fatalf("expected one insert, got %d", len(fs.inserted))
	}
	in := fs.inserted[0]
	if in.Provider != "stripe" || in.EventID != "evt_1" || in.Kind != "payment_succeeded" {
		t.Fatalf("unexpected insert %+v", in)
	}
	if !in.OccurredAt.Equal(occurred) {
		t.Fatalf("occurred-at should pass through, got %v", in.OccurredAt)
	}
}

func TestProcessDefaultsMissingTimestamp(t *testing.T) {
	fs := &fakeStore{}
	p := &Projector{Store: fs}

	before := time.Now().UTC()
	if err := p.Process(context.Background(), sqsqueue.BillingEvent{Provider: "twilio", EventID: "SM1:delivered"}); err != nil {
		t.Fatalf("process: %v", err)
	}
	got := fs.inserted[0].OccurredAt
	if got.Before(before) || got.IsZero() {
		t.Fatalf("expected defaulted timestamp, got %v", got)
	}
}

func TestProcessPropagatesStoreError(t *testing.T) {
	fs := &fakeStore{err: errors.New("insert failed")}
	p := &Projector{Store: fs}

	if err := p.Process(context.Background(), sqsqueue.BillingEvent{EventID: "evt_1"}); err == nil {
		t.Fatalf("expected store error to propagate for redrive")
	}
}
