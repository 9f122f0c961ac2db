package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const Provider = "stripe"

// EventKind is the closed set of inbound event variants the settlement core
// reacts to. Everything off the allow-list maps to KindIgnored or
// KindUnknown so unexpected types are an explicit branch, never a silent
// default.
type EventKind int

const (
	KindPaymentSucceeded EventKind = iota
	KindPaymentFailed
	KindPaymentCanceled
	KindAccountUpdated
	KindIgnored
	KindUnknown
)

// Raw event types the gateway sends that the core deliberately skips.
var ignoredEventTypes = map[string]struct{}{
	"payment_intent.created":           {},
	"payment_intent.processing":        {},
	"setup_intent.created":             {},
	"setup_intent.succeeded":           {},
	"payment_method.attached":          {},
	"payment_method.detached":          {},
	"charge.succeeded":                 {},
	"charge.updated":                   {},
	"capability.updated":               {},
	"account.external_account.created": {},
}

var kindByEventType = map[string]EventKind{
	"payment_intent.succeeded":      KindPaymentSucceeded,
	"payment_intent.payment_failed": KindPaymentFailed,
	"payment_intent.canceled":       KindPaymentCanceled,
	"account.updated":               KindAccountUpdated,
}

// Event is the parsed, provider-neutral form of one webhook delivery.
// Exactly one of Payment/Account is populated, matching Kind.
type Event struct {
	ID      string
	RawType string
	Kind    EventKind
	Payload []byte

	Payment *PaymentEventData
	Account *AccountEventData
}

// PaymentEventData carries the payment-intent fields settlement needs plus
// the raw booking metadata for validation.
type PaymentEventData struct {
	IntentID      string
	AmountCents   int64
	FailureReason string
	Metadata      map[string]string
}

// AccountEventData carries a connected account's capability flags.
type AccountEventData struct {
	AccountID        string
	ChargesEnabled   bool
	PayoutsEnabled   bool
	DetailsSubmitted bool
}

// ErrInvalidMetadata marks a payment event whose booking references are
// missing or unparseable. Retrying cannot fix malformed data.
var ErrInvalidMetadata = errors.New("event metadata is missing or malformed")

// SessionRefs validates and parses the booking references every payment
// event must carry.
func (d *PaymentEventData) SessionRefs() (sessionID, userID, therapistID uint, err error) {
	sessionID, err = metadataID(d.Metadata, "session_id")
	if err != nil {
		return 0, 0, 0, err
	}
	userID, err = metadataID(d.Metadata, "user_id")
	if err != nil {
		return 0, 0, 0, err
	}
	therapistID, err = metadataID(d.Metadata, "therapist_id")
	if err != nil {
		return 0, 0, 0, err
	}
	return sessionID, userID, therapistID, nil
}

func metadataID(md map[string]string, key string) (uint, error) {
	raw, ok := md[key]
	if !ok || strings.TrimSpace(raw) == "" {
		return 0, fmt.Errorf("%w: %s missing", ErrInvalidMetadata, key)
	}
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidMetadata, key, raw)
	}
	return uint(id), nil
}

// webhook envelope as the gateway sends it
type rawEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type rawPaymentIntent struct {
	ID               string            `json:"id"`
	Amount           int64             `json:"amount"`
	Metadata         map[string]string `json:"metadata"`
	LastPaymentError *struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
	CancellationReason string `json:"cancellation_reason"`
}

type rawAccount struct {
	ID               string `json:"id"`
	ChargesEnabled   bool   `json:"charges_enabled"`
	PayoutsEnabled   bool   `json:"payouts_enabled"`
	DetailsSubmitted bool   `json:"details_submitted"`
}

// ParseEvent decodes a verified webhook body into the closed event union.
// A body that is not valid JSON is an error; a valid body with a type off
// the allow-list is not (it parses to KindIgnored/KindUnknown).
func ParseEvent(payload []byte) (*Event, error) {
	var env rawEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decode webhook envelope: %w", err)
	}
	if strings.TrimSpace(env.ID) == "" {
		return nil, errors.New("webhook envelope has no event id")
	}

	ev := &Event{
		ID:      env.ID,
		RawType: env.Type,
		Payload: payload,
	}

	kind, ok := kindByEventType[env.Type]
	if !ok {
		if _, ignored := ignoredEventTypes[env.Type]; ignored {
			ev.Kind = KindIgnored
		} else {
			ev.Kind = KindUnknown
		}
		return ev, nil
	}
	ev.Kind = kind

	switch kind {
	case KindPaymentSucceeded, KindPaymentFailed, KindPaymentCanceled:
		var pi rawPaymentIntent
		if err := json.Unmarshal(env.Data.Object, &pi); err != nil {
			return nil, fmt.Errorf("decode payment intent object: %w", err)
		}
		data := &PaymentEventData{
			IntentID:    pi.ID,
			AmountCents: pi.Amount,
			Metadata:    pi.Metadata,
		}
		if pi.LastPaymentError != nil {
			data.FailureReason = pi.LastPaymentError.Message
		} else if pi.CancellationReason != "" {
			data.FailureReason = pi.CancellationReason
		}
		ev.Payment = data
	case KindAccountUpdated:
		var acct rawAccount
		if err := json.Unmarshal(env.Data.Object, &acct); err != nil {
			return nil, fmt.Errorf("decode account object: %w", err)
		}
		ev.Account = &AccountEventData{
			AccountID:        acct.ID,
			ChargesEnabled:   acct.ChargesEnabled,
			PayoutsEnabled:   acct.PayoutsEnabled,
			DetailsSubmitted: acct.DetailsSubmitted,
		}
	}

	return ev, nil
}
