package pg

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"billhook/internal/store"
)

type Store struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

func (s *Store) CheckInboundEvent(ctx context.Context, provider, providerEventID string) (store.InboundEventStatus, error) {
	row := s.DB.QueryRow(ctx, `
		SELECT processed FROM inbound_events WHERE provider=$1 AND provider_event_id=$2
	`, provider, providerEventID)
	var processed bool
	if err := row.Scan(&processed); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.InboundEventStatus{}, nil
		}
		return store.InboundEventStatus{}, err
	}
	return store.InboundEventStatus{Exists: true, Processed: processed}, nil
}

// RecordInboundEvent upserts so a redelivery racing the first attempt does
// not error. The processed flag is deliberately left alone on conflict.
func (s *Store) RecordInboundEvent(ctx context.Context, in store.InboundEventInsert) error {
	b, err := json.Marshal(in.Payload)
	if err != nil {
		// The audit payload is secondary; store the row with a null payload
		// rather than losing the ledger entry.
		slog.Warn("marshal inbound payload failed, storing null",
			"err", err, "provider", in.Provider, "provider_event_id", in.ProviderEventID)
		b = nil
	}
	_, err = s.DB.Exec(ctx, `
		INSERT INTO inbound_events (id, provider, provider_event_id, event_type, payload_json, source_ip, received_at, processed)
		VALUES ($1,$2,$3,$4,$5,$6,$7,false)
		ON CONFLICT (provider, provider_event_id)
		DO UPDATE SET payload_json=EXCLUDED.payload_json, source_ip=EXCLUDED.source_ip
	`, in.ID, in.Provider, in.ProviderEventID, in.EventType, b, nullIfEmpty(in.SourceIP), in.Now)
	return err
}

func (s *Store) MarkInboundEventProcessed(ctx context.Context, provider, providerEventID string, now time.Time) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE inbound_events SET processed=true, processed_at=$3
		WHERE provider=$1 AND provider_event_id=$2
	`, provider, providerEventID, now)
	return err
}

func (s *Store) UpsertSubscription(ctx context.Context, in store.SubscriptionUpsert) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO subscriptions (subscription_id, customer_id, price_id, plan_name, plan_price, status,
		                           period_start, period_end, cancel_at_period_end, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10)
		ON CONFLICT (subscription_id)
		DO UPDATE SET customer_id=EXCLUDED.customer_id, price_id=EXCLUDED.price_id,
		              plan_name=EXCLUDED.plan_name, plan_price=EXCLUDED.plan_price,
		              status=EXCLUDED.status, period_start=EXCLUDED.period_start,
		              period_end=EXCLUDED.period_end, cancel_at_period_end=EXCLUDED.cancel_at_period_end,
		              updated_at=EXCLUDED.updated_at
	`, in.SubscriptionID, nullIfEmpty(in.CustomerID), nullIfEmpty(in.PriceID), in.PlanName, in.PlanPrice,
		in.Status, in.PeriodStart, in.PeriodEnd, in.CancelAtPeriodEnd, in.Now)
	return err
}

func (s *Store) MarkSubscriptionCanceled(ctx context.Context, subscriptionID string, now time.Time) (bool, error) {
	ct, err := s.DB.Exec(ctx, `
		UPDATE subscriptions SET status='canceled', cancel_at_period_end=true, updated_at=$2
		WHERE subscription_id=$1
	`, subscriptionID, now)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (s *Store) SetSubscriptionStatus(ctx context.Context, subscriptionID, status string, now time.Time) (bool, error) {
	ct, err := s.DB.Exec(ctx, `
		UPDATE subscriptions SET status=$2, updated_at=$3 WHERE subscription_id=$1
	`, subscriptionID, status, now)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (s *Store) UpdateInvoicePayment(ctx context.Context, in store.InvoicePaymentUpdate) (bool, error) {
	ct, err := s.DB.Exec(ctx, `
		UPDATE invoices SET status=$2, payment_status=$3, payment_ref=$4, paid_date=$5, updated_at=$6
		WHERE id=$1
	`, in.InvoiceID, in.Status, in.PaymentStatus, nullIfEmpty(in.PaymentRef), in.PaidDate, in.Now)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (s *Store) UpsertMessageStatus(ctx context.Context, in store.MessageStatusUpsert) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO message_statuses (message_sid, status, error_code, error_message, status_updated_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (message_sid)
		DO UPDATE SET status=EXCLUDED.status, error_code=EXCLUDED.error_code,
		              error_message=EXCLUDED.error_message, status_updated_at=EXCLUDED.status_updated_at
	`, in.MessageSid, in.Status, nullIfEmpty(in.ErrorCode), nullIfEmpty(in.ErrorMessage), in.Now)
	return err
}

func (s *Store) InsertBillingLog(ctx context.Context, in store.BillingLogInsert) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO billing_event_log (provider, event_id, kind, subject_id, status, occurred_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, in.Provider, in.EventID, in.Kind, nullIfEmpty(in.SubjectID), nullIfEmpty(in.Status), in.OccurredAt)
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
