package httpserver

const (
	ErrBadBody          = "bad body"
	ErrBadForm          = "bad form"
	ErrMissingSignature = "missing signature"
	ErrInvalidSignature = "invalid signature"
	ErrMalformedEvent   = "malformed event"
	ErrMissingFields    = "missing required fields"
	ErrNotConfigured    = "webhook secret not configured"
	ErrProcessing       = "processing failed"
	ErrRateLimited      = "rate limit exceeded"
)
