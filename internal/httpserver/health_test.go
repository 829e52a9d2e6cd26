package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHealthReportsBooleansOnly(t *testing.T) {
	rec := httptest.NewRecorder()
	Health(HealthInfo{StripeWebhookSecret: true, TwilioAuthToken: true, Database: true})(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "ok" {
		t.Fatalf("status field = %v", resp["status"])
	}
	for _, key := range []string{"stripeWebhookSecret", "stripeApiKey", "twilioAuthToken", "database", "fanout"} {
		if _, ok := resp[key].(bool); !ok {
			t.Fatalf("%s should be a boolean, got %T", key, resp[key])
		}
	}
	if strings.Contains(rec.Body.String(), "whsec") {
		t.Fatalf("health body must not carry secret material")
	}
}

func TestReadyzFailsWhenCheckFails(t *testing.T) {
	ok := func(ctx context.Context) error { return nil }
	bad := func(ctx context.Context) error { return errors.New("db unreachable") }

	rec := httptest.NewRecorder()
	Readyz(time.Second, ok, bad)(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	rec = httptest.NewRecorder()
	Readyz(time.Second, ok)(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
