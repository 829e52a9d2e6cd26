package httpserver

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	stripego "github.com/stripe/stripe-go/v82"

	"billhook/internal/events"
	"billhook/internal/ingest"
	"billhook/internal/logging"
	"billhook/internal/observability"
	"billhook/internal/providers/stripe"
)

// Processor is the slice of the ingest pipeline the HTTP layer needs.
type Processor interface {
	Process(ctx context.Context, d ingest.Delivery) (ingest.Result, error)
}

type StripeWebhook struct {
	Pipeline Processor
	Verify   func(payload []byte, sigHeader, secret string) (stripego.Event, error)
	Classify func(ev stripego.Event) (events.Event, error)
	Secret   string
}

func (h *StripeWebhook) Register(m *mux.Router) {
	m.HandleFunc("/webhook", h.handleEvent).Methods(http.MethodPost)
}

func (h *StripeWebhook) handleEvent(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ip := clientIP(r)

	if h.Secret == "" {
		// Development-mode degradation: the secret was missing at startup, so
		// verification can never succeed.
		logging.Security("stripe webhook rejected, secret not configured", "source_ip", ip)
		writeError(w, http.StatusBadRequest, ErrNotConfigured)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, stripe.MaxBodyBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrBadBody)
		return
	}

	sig := r.Header.Get(stripe.SignatureHeader)
	if sig == "" {
		logging.Security("stripe webhook missing signature header", "source_ip", ip)
		writeError(w, http.StatusBadRequest, ErrMissingSignature)
		return
	}

	event, err := h.Verify(payload, sig, h.Secret)
	if err != nil {
		observability.SignatureFailures.WithLabelValues("stripe").Inc()
		logging.Security("stripe webhook signature rejected", "err", err, "source_ip", ip)
		writeError(w, http.StatusBadRequest, ErrInvalidSignature)
		return
	}

	ev, err := h.Classify(event)
	if err != nil {
		// Signed but undecodable: a retry delivers the same bytes, so there
		// is no point asking the provider to resend.
		logging.Security("stripe webhook payload malformed", "err", err, "event_id", event.ID, "event_type", string(event.Type))
		writeError(w, http.StatusBadRequest, ErrMalformedEvent)
		return
	}

	var raw any
	if event.Data != nil {
		raw = event.Data.Raw
	}
	res, err := h.Pipeline.Process(r.Context(), ingest.Delivery{
		Provider:        "stripe",
		ProviderEventID: event.ID,
		EventType:       string(event.Type),
		Payload:         raw,
		SourceIP:        ip,
		Event:           ev,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrProcessing)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Received       bool   `json:"received"`
		EventID        string `json:"eventId"`
		Duplicate      bool   `json:"duplicate,omitempty"`
		ProcessingTime int64  `json:"processingTime"`
	}{
		Received:       true,
		EventID:        event.ID,
		Duplicate:      res.Duplicate,
		ProcessingTime: time.Since(start).Milliseconds(),
	})
}
