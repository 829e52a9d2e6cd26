package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "billhook_http_requests_total", Help: "HTTP requests by route and response status"},
		[]string{"route", "status"},
	)
	EventsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "billhook_events_processed_total", Help: "Dispatched events by kind and result"},
		[]string{"kind", "result"},
	)
	DuplicateEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "billhook_duplicate_events_total", Help: "Deliveries short-circuited by the idempotency store"},
		[]string{"provider"},
	)
	SignatureFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "billhook_signature_failures_total", Help: "Rejected signatures by provider"},
		[]string{"provider"},
	)
	MessageStatusEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "billhook_message_status_events_total", Help: "Carrier status callbacks by reported status"},
		[]string{"status"},
	)
	PlanLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "billhook_plan_lookups_total", Help: "Price/product enrichment outcomes"},
		[]string{"result"},
	)
	FanoutPublishes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "billhook_fanout_publish_total", Help: "Billing event fan-out outcomes"},
		[]string{"result"},
	)
	RateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "billhook_rate_limited_total", Help: "Requests rejected by the per-IP limiter"},
	)
	ProcessingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "billhook_event_processing_seconds", Help: "End-to-end event processing latency"},
	)
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(HTTPRequests, EventsProcessed, DuplicateEvents, SignatureFailures,
		MessageStatusEvents, PlanLookups, FanoutPublishes, RateLimited, ProcessingDuration)
}
