package httpserver

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"billhook/internal/events"
	"billhook/internal/ingest"
	"billhook/internal/logging"
	"billhook/internal/observability"
	"billhook/internal/providers/twilio"
)

type TwilioWebhook struct {
	Pipeline  Processor
	Verify    func(authToken, fullURL, provided string, form url.Values) bool
	AuthToken string

	// Exact public URLs configured as status callbacks on the Twilio side.
	SMSStatusURL   string
	VoiceStatusURL string
}

func (h *TwilioWebhook) Register(m *mux.Router) {
	m.HandleFunc("/sms/status", h.handleSMSStatus).Methods(http.MethodPost)
	m.HandleFunc("/voice/status", h.handleVoiceStatus).Methods(http.MethodPost)
}

func (h *TwilioWebhook) handleSMSStatus(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ip := clientIP(r)

	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, ErrBadForm)
		return
	}
	if !h.verify(w, r, h.SMSStatusURL, ip) {
		return
	}

	msgSid := r.PostForm.Get("MessageSid")
	status := r.PostForm.Get("MessageStatus")
	if msgSid == "" || status == "" {
		// Required fields; reject before any store access.
		writeError(w, http.StatusBadRequest, ErrMissingFields)
		return
	}

	_, err := h.Pipeline.Process(r.Context(), ingest.Delivery{
		Provider: "twilio",
		// Twilio ships no event id on status callbacks; sid+status identifies
		// a delivery state transition well enough to suppress retries. The
		// status is lower-cased to match the projection's normalization.
		ProviderEventID: msgSid + ":" + strings.ToLower(status),
		EventType:       "sms.status",
		Payload:         r.PostForm,
		SourceIP:        ip,
		Event: events.MessageStatus{
			MessageSid:   msgSid,
			Status:       status,
			ErrorCode:    r.PostForm.Get("ErrorCode"),
			ErrorMessage: r.PostForm.Get("ErrorMessage"),
			To:           r.PostForm.Get("To"),
			From:         r.PostForm.Get("From"),
		},
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrProcessing)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Received       bool   `json:"received"`
		MessageSid     string `json:"messageSid"`
		ProcessingTime int64  `json:"processingTime"`
	}{Received: true, MessageSid: msgSid, ProcessingTime: time.Since(start).Milliseconds()})
}

// handleVoiceStatus acknowledges call status callbacks. They are recorded for
// audit through the pipeline's unknown-event path but drive no projection.
func (h *TwilioWebhook) handleVoiceStatus(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ip := clientIP(r)

	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, ErrBadForm)
		return
	}
	if !h.verify(w, r, h.VoiceStatusURL, ip) {
		return
	}

	callSid := r.PostForm.Get("CallSid")
	callStatus := r.PostForm.Get("CallStatus")
	if callSid == "" {
		writeError(w, http.StatusBadRequest, ErrMissingFields)
		return
	}

	_, err := h.Pipeline.Process(r.Context(), ingest.Delivery{
		Provider:        "twilio",
		ProviderEventID: callSid + ":" + strings.ToLower(callStatus),
		EventType:       "voice.status",
		Payload:         r.PostForm,
		SourceIP:        ip,
		Event:           events.Unknown{Type: "voice.status"},
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrProcessing)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Received       bool   `json:"received"`
		CallSid        string `json:"callSid"`
		ProcessingTime int64  `json:"processingTime"`
	}{Received: true, CallSid: callSid, ProcessingTime: time.Since(start).Milliseconds()})
}

func (h *TwilioWebhook) verify(w http.ResponseWriter, r *http.Request, fullURL, ip string) bool {
	if h.AuthToken == "" || fullURL == "" {
		logging.Security("twilio webhook rejected, verification not configured", "source_ip", ip)
		writeError(w, http.StatusInternalServerError, ErrNotConfigured)
		return false
	}

	sig := r.Header.Get(twilio.SignatureHeader)
	if sig == "" {
		logging.Security("twilio webhook missing signature header", "source_ip", ip)
		writeError(w, http.StatusBadRequest, ErrMissingSignature)
		return false
	}
	if !h.Verify(h.AuthToken, fullURL, sig, r.PostForm) {
		observability.SignatureFailures.WithLabelValues("twilio").Inc()
		logging.Security("twilio webhook signature rejected", "source_ip", ip, "url", fullURL)
		writeError(w, http.StatusForbidden, ErrInvalidSignature)
		return false
	}
	return true
}
