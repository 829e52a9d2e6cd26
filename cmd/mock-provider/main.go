// mock-provider emits correctly signed provider callbacks at a locally
// running webhook service, so the full verify/dedupe/project path can be
// exercised without real Stripe/Twilio traffic.
package main

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"billhook/internal/logging"
)

type mockConfig struct {
	TargetBaseURL       string `envconfig:"MOCK_TARGET_URL" default:"http://localhost:8080"`
	StripeWebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET" default:"whsec_mock"`
	TwilioAuthToken     string `envconfig:"TWILIO_AUTH_TOKEN" default:"mock_token"`

	// Must match what the service has configured as its public callback URLs.
	SMSStatusURL   string `envconfig:"PUBLIC_SMS_STATUS_URL" default:"http://localhost:8080/sms/status"`
	VoiceStatusURL string `envconfig:"PUBLIC_VOICE_STATUS_URL" default:"http://localhost:8080/voice/status"`

	Scenario string `envconfig:"MOCK_SCENARIO" default:"subscription"`
	Repeat   int    `envconfig:"MOCK_REPEAT" default:"1"`
	Tamper   bool   `envconfig:"MOCK_TAMPER_SIGNATURE" default:"false"`

	nonce string
}

func main() {
	var cfg mockConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	logging.Init("mock-provider", "text")

	if len(os.Args) > 1 {
		cfg.Scenario = os.Args[1]
	}
	// Stable per run so MOCK_REPEAT>1 exercises duplicate-delivery handling.
	cfg.nonce = strconv.FormatInt(time.Now().UnixNano(), 36)

	for i := 0; i < cfg.Repeat; i++ {
		if err := send(cfg); err != nil {
			slog.Error("send failed", "err", err, "scenario", cfg.Scenario)
			os.Exit(1)
		}
	}
}

func send(cfg mockConfig) error {
	switch cfg.Scenario {
	case "subscription":
		return sendStripe(cfg, "customer.subscription.updated", subscriptionPayload("active"))
	case "cancel":
		return sendStripe(cfg, "customer.subscription.deleted", subscriptionPayload("canceled"))
	case "payment":
		return sendStripe(cfg, "invoice.payment_succeeded", invoicePayload())
	case "payment-failed":
		return sendStripe(cfg, "invoice.payment_failed", invoicePayload())
	case "unknown":
		return sendStripe(cfg, "customer.created", `{"id":"cus_mock1"}`)
	case "sms":
		return sendTwilio(cfg, cfg.SMSStatusURL, url.Values{
			"MessageSid":    {"SM1" + cfg.nonce},
			"MessageStatus": {"delivered"},
			"To":            {"+15551230001"},
			"From":          {"+15551230002"},
		})
	case "sms-failed":
		return sendTwilio(cfg, cfg.SMSStatusURL, url.Values{
			"MessageSid":    {"SM2" + cfg.nonce},
			"MessageStatus": {"failed"},
			"ErrorCode":     {"30003"},
			"ErrorMessage":  {"Unreachable destination handset"},
		})
	case "voice":
		return sendTwilio(cfg, cfg.VoiceStatusURL, url.Values{
			"CallSid":    {"CA" + cfg.nonce},
			"CallStatus": {"completed"},
		})
	}
	return fmt.Errorf("unknown scenario %q", cfg.Scenario)
}

func subscriptionPayload(status string) string {
	return fmt.Sprintf(`{
		"id": "sub_mock1",
		"customer": "cus_mock1",
		"status": %q,
		"cancel_at_period_end": false,
		"current_period_start": %d,
		"current_period_end": %d,
		"items": {"data": [{"price": {"id": "price_mock_pro"}}]}
	}`, status, time.Now().Unix(), time.Now().AddDate(0, 1, 0).Unix())
}

func invoicePayload() string {
	return `{
		"id": "in_mock1",
		"subscription": "sub_mock1",
		"payment_intent": "pi_mock1",
		"metadata": {"invoiceId": "inv_mock_99"}
	}`
}

func sendStripe(cfg mockConfig, eventType, objectJSON string) error {
	event := map[string]any{
		"id":   "evt_mock_" + cfg.nonce,
		"type": eventType,
		"data": map[string]any{"object": json.RawMessage(objectJSON)},
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(cfg.StripeWebhookSecret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	sig := hex.EncodeToString(mac.Sum(nil))
	if cfg.Tamper {
		sig = strings.Repeat("0", len(sig))
	}

	req, err := http.NewRequest(http.MethodPost, cfg.TargetBaseURL+"/webhook", strings.NewReader(string(payload)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", ts, sig))

	return doRequest(req, eventType)
}

func sendTwilio(cfg mockConfig, fullURL string, form url.Values) error {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(form.Get(k))
	}
	mac := hmac.New(sha1.New, []byte(cfg.TwilioAuthToken))
	mac.Write([]byte(b.String()))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	if cfg.Tamper {
		sig = base64.StdEncoding.EncodeToString(make([]byte, sha1.Size))
	}

	req, err := http.NewRequest(http.MethodPost, fullURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Twilio-Signature", sig)

	return doRequest(req, "twilio status")
}

func doRequest(req *http.Request, what string) error {
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	slog.Info("delivered", "what", what, "status", resp.StatusCode, "body", strings.TrimSpace(string(body)))
	return nil
}
