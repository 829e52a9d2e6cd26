package stripe

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"billhook/internal/observability"
)

// PlanResolver turns a price id into a human-readable plan name and a
// major-unit price via two provider lookups (price, then product). Callers
// treat failures as best-effort: projections proceed with null plan fields.
// The breaker keeps a degraded provider API from stalling every delivery.
type PlanResolver struct {
	Client  *Client
	Breaker *gobreaker.CircuitBreaker
}

type planResult struct {
	name  string
	price float64
}

func NewPlanResolver(client *Client) *PlanResolver {
	return &PlanResolver{
		Client: client,
		Breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "stripe-plan-lookup",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

func (r *PlanResolver) Resolve(ctx context.Context, priceID string) (string, float64, error) {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		resAny, err := r.executeWithBreaker(ctx, priceID)
		if err == nil {
			observability.PlanLookups.WithLabelValues("ok").Inc()
			res := resAny.(planResult)
			return res.name, res.price, nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			observability.PlanLookups.WithLabelValues("breaker_open").Inc()
			return "", 0, err
		}

		lastErr = err
		var lce lookupError
		httpStatus := 0
		if errors.As(err, &lce) {
			httpStatus = lce.httpStatus
		}
		observability.PlanLookups.WithLabelValues("error").Inc()
		if !ShouldRetry(err, httpStatus) {
			return "", 0, err
		}
		time.Sleep(Backoff(attempt))
	}
	return "", 0, lastErr
}

func (r *PlanResolver) executeWithBreaker(ctx context.Context, priceID string) (any, error) {
	call := func() (any, error) {
		reqCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
		defer cancel()

		price, status, err := r.Client.GetPrice(reqCtx, priceID)
		if err != nil {
			return nil, lookupError{err: err, httpStatus: status}
		}
		product, status, err := r.Client.GetProduct(reqCtx, price.Product)
		if err != nil {
			return nil, lookupError{err: err, httpStatus: status}
		}

		// Provider amounts are minor units (cents); stored prices are major.
		return planResult{name: product.Name, price: float64(price.UnitAmount) / 100}, nil
	}

	if r.Breaker == nil {
		return call()
	}
	return r.Breaker.Execute(call)
}

type lookupError struct {
	err        error
	httpStatus int
}

func (e lookupError) Error() string { return e.err.Error() }
func (e lookupError) Unwrap() error { return e.err }
