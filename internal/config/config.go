package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type WebhookConfig struct {
	Env         string `envconfig:"ENV" default:"development"`
	DBDSN       string `envconfig:"DB_DSN" required:"true"`
	Port        string `envconfig:"PORT" default:"8080"`
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`

	// DB pool
	DBPoolMaxConns          int32         `envconfig:"DB_POOL_MAX_CONNS" default:"8"`
	DBPoolMinConns          int32         `envconfig:"DB_POOL_MIN_CONNS" default:"0"`
	DBPoolMaxConnLifetime   time.Duration `envconfig:"DB_POOL_MAX_CONN_LIFETIME"`
	DBPoolMaxConnIdleTime   time.Duration `envconfig:"DB_POOL_MAX_CONN_IDLE_TIME"`
	DBPoolHealthCheckPeriod time.Duration `envconfig:"DB_POOL_HEALTH_CHECK_PERIOD"`

	// Stripe webhook verification + plan enrichment
	StripeWebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET"`
	StripeAPIKey        string `envconfig:"STRIPE_API_KEY"`
	StripeBaseURL       string `envconfig:"STRIPE_BASE_URL" default:"https://api.stripe.com"`

	// Twilio status callback verification. URLs must match the EXACT callback
	// URLs configured on the Twilio side, or signatures will never verify.
	TwilioAuthToken      string `envconfig:"TWILIO_AUTH_TOKEN"`
	PublicSMSStatusURL   string `envconfig:"PUBLIC_SMS_STATUS_URL"`
	PublicVoiceStatusURL string `envconfig:"PUBLIC_VOICE_STATUS_URL"`

	// Per source IP rate limit, applied ahead of signature verification.
	RatePerIP   float64       `envconfig:"RATE_PER_IP" default:"5"`
	RateBurst   int           `envconfig:"RATE_BURST" default:"20"`
	RateIdleTTL time.Duration `envconfig:"RATE_IDLE_TTL" default:"10m"`

	// Billing event fan-out. Disabled when the queue URL is empty.
	AWSRegion             string `envconfig:"AWS_REGION"`
	BillingEventsQueueURL string `envconfig:"BILLING_EVENTS_QUEUE_URL"`
	LocalstackEndpoint    string `envconfig:"LOCALSTACK_ENDPOINT"`
}

func (c WebhookConfig) Production() bool { return c.Env == "production" }

// MissingSecrets lists webhook credentials that are unset. A non-empty result
// is fatal at startup in production; in development the service starts
// degraded and the affected endpoints reject every delivery.
func (c WebhookConfig) MissingSecrets() []string {
	var missing []string
	if c.StripeWebhookSecret == "" {
		missing = append(missing, "STRIPE_WEBHOOK_SECRET")
	}
	if c.TwilioAuthToken == "" {
		missing = append(missing, "TWILIO_AUTH_TOKEN")
	}
	if c.PublicSMSStatusURL == "" {
		missing = append(missing, "PUBLIC_SMS_STATUS_URL")
	}
	return missing
}

type RelayConfig struct {
	DBDSN       string `envconfig:"DB_DSN" required:"true"`
	Port        string `envconfig:"PORT" default:"8080"`
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`

	AWSRegion             string `envconfig:"AWS_REGION" required:"true"`
	BillingEventsQueueURL string `envconfig:"BILLING_EVENTS_QUEUE_URL" required:"true"`
	LocalstackEndpoint    string `envconfig:"LOCALSTACK_ENDPOINT"`
	SQSWaitTime           int32  `envconfig:"SQS_WAIT_TIME" default:"20"`
	SQSMaxMsgs            int32  `envconfig:"SQS_MAX_MSGS" default:"10"`
	SQSVizTimeout         int32  `envconfig:"SQS_VISIBILITY_TIMEOUT" default:"60"`

	RelayConcurrency int `envconfig:"RELAY_CONCURRENCY" default:"10"`
}

func LoadWebhook() WebhookConfig {
	var cfg WebhookConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}

func LoadRelay() RelayConfig {
	var cfg RelayConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}
