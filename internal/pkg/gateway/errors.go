package gateway

import (
	"errors"

	"github.com/stripe/stripe-go/v82"
)

// ErrAlreadyCaptured marks a capture attempt against an intent the gateway
// already settled. Callers treat it as success.
var ErrAlreadyCaptured = errors.New("payment intent already captured")

// IsRetryable classifies a gateway failure. Network failures, rate limits
// and gateway-side 5xx responses may succeed on a later attempt; card
// declines, validation, authentication and not-found responses will not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAlreadyCaptured) {
		return false
	}

	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		// No structured gateway response means the request never got a
		// verdict (DNS, timeout, connection reset). Safe to retry.
		return true
	}

	if stripeErr.HTTPStatusCode == 429 || stripeErr.HTTPStatusCode >= 500 {
		return true
	}

	switch stripeErr.Type {
	case stripe.ErrorTypeAPI:
		return true
	case stripe.ErrorTypeCard, stripe.ErrorTypeInvalidRequest, stripe.ErrorTypeIdempotency:
		return false
	}
	return false
}
