package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/transfer"

	"github.com/renavest/renavest-next-sub002/internal/pkg/env"
)

// Setup configures the Stripe SDK from the environment. Call once at boot.
func Setup() {
	stripe.Key = strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", ""))
}

// Client wraps the Stripe calls the settlement core makes. Kept as an
// interface-sized struct so tests can substitute a fake.
type Client struct{}

// NewClient returns a gateway client using the globally configured key.
func NewClient() *Client {
	return &Client{}
}

// PaymentCaller is the surface the settlement processor needs from the
// gateway.
type PaymentCaller interface {
	CaptureIntent(ctx context.Context, intentID string) (*stripe.PaymentIntent, error)
	CreateTransfer(ctx context.Context, amountCents int64, destinationAccountID string, sessionID uint) (*stripe.Transfer, error)
}

// CaptureIntent captures an authorized, not-yet-captured payment intent.
// An intent the gateway already settled returns ErrAlreadyCaptured so the
// caller can treat the capture as done (idempotent at the gateway boundary).
func (c *Client) CaptureIntent(ctx context.Context, intentID string) (*stripe.PaymentIntent, error) {
	if strings.TrimSpace(intentID) == "" {
		return nil, errors.New("payment intent id is required")
	}

	pi, err := paymentintent.Get(intentID, &stripe.PaymentIntentParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, fmt.Errorf("retrieve payment intent %s: %w", intentID, err)
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return pi, ErrAlreadyCaptured
	case stripe.PaymentIntentStatusRequiresCapture:
		// fall through to capture
	default:
		return nil, &stripe.Error{
			Type: stripe.ErrorTypeInvalidRequest,
			Msg:  fmt.Sprintf("payment intent %s is not capturable (status %s)", intentID, pi.Status),
		}
	}

	captured, err := paymentintent.Capture(intentID, &stripe.PaymentIntentCaptureParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, fmt.Errorf("capture payment intent %s: %w", intentID, err)
	}
	return captured, nil
}

// CreateTransfer moves a therapist's share to their connected account.
func (c *Client) CreateTransfer(ctx context.Context, amountCents int64, destinationAccountID string, sessionID uint) (*stripe.Transfer, error) {
	if amountCents <= 0 {
		return nil, errors.New("transfer amount must be positive")
	}
	if strings.TrimSpace(destinationAccountID) == "" {
		return nil, errors.New("destination account id is required")
	}

	tr, err := transfer.New(&stripe.TransferParams{
		Params:        stripe.Params{Context: ctx},
		Amount:        stripe.Int64(amountCents),
		Currency:      stripe.String(string(stripe.CurrencyUSD)),
		Destination:   stripe.String(destinationAccountID),
		TransferGroup: stripe.String(fmt.Sprintf("session_%d", sessionID)),
	})
	if err != nil {
		return nil, fmt.Errorf("create transfer for session %d: %w", sessionID, err)
	}
	return tr, nil
}
