package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// HealthInfo reports which credentials are configured. Booleans only; the
// endpoint must never echo secret material.
type HealthInfo struct {
	StripeWebhookSecret bool `json:"stripeWebhookSecret"`
	StripeAPIKey        bool `json:"stripeApiKey"`
	TwilioAuthToken     bool `json:"twilioAuthToken"`
	Database            bool `json:"database"`
	Fanout              bool `json:"fanout"`
}

func Health(info HealthInfo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			Status string `json:"status"`
			HealthInfo
		}{Status: "ok", HealthInfo: info})
	}
}

type ReadyzCheck func(ctx context.Context) error

func Readyz(timeout time.Duration, checks ...ReadyzCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		for _, check := range checks {
			if err := check(ctx); err != nil {
				http.Error(w, "not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	}
}
