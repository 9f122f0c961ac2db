package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/renavest/renavest-next-sub002/app/models"
	"github.com/renavest/renavest-next-sub002/internal/pkg/gateway"
	"github.com/renavest/renavest-next-sub002/internal/pkg/mail"
	counter "github.com/renavest/renavest-next-sub002/internal/pkg/metrics/counter"
	"github.com/renavest/renavest-next-sub002/internal/pkg/retry"
)

// Processor consumes payment-lifecycle events and drives session, payment
// and payout state. Every inbound event passes the idempotency gate first;
// mutations are keyed to the side effect an event describes, never to
// arrival order, so duplicated and out-of-order deliveries converge on the
// same final state.
type Processor struct {
	repo Repository
	gw   gateway.PaymentCaller
	exec *retry.Executor
	cfg  Config

	now func() time.Time
}

// NewProcessor creates a settlement processor from injected dependencies.
func NewProcessor(repo Repository, gw gateway.PaymentCaller, exec *retry.Executor, cfg Config) *Processor {
	if exec == nil {
		exec = retry.NewExecutor(0, 0, 0)
	}
	return &Processor{
		repo: repo,
		gw:   gw,
		exec: exec,
		cfg:  cfg,
		now:  time.Now,
	}
}

// NewProcessorFromDB creates a processor with the default repository,
// gateway client and retry policy.
func NewProcessorFromDB(db *gorm.DB) *Processor {
	return NewProcessor(NewRepository(db), gateway.NewClient(), retry.NewExecutor(0, 0, 0), ConfigFromEnv())
}

// HandleEvent processes one verified webhook delivery. The returned error
// is nil whenever the delivery should be acknowledged — including
// duplicates, ignored types and malformed metadata (retrying cannot fix
// malformed data). Only infrastructure failures propagate, so the gateway
// redelivers exactly the events that never reached the ledger.
func (p *Processor) HandleEvent(ctx context.Context, ev *gateway.Event) error {
	created, stored, err := p.repo.CreateWebhookEventIfNotExists(&models.GatewayWebhookEvent{
		Provider:        gateway.Provider,
		ProviderEventID: ev.ID,
		EventType:       ev.RawType,
		PayloadJSON:     string(ev.Payload),
		SignatureValid:  true,
	})
	if err != nil {
		return fmt.Errorf("record webhook event %s: %w", ev.ID, err)
	}
	if !created {
		// The stored row only proves the payload arrived. A delivery whose
		// dispatch failed (or that crashed mid-flight) was never settled,
		// so the redelivery must run it again instead of acking it away.
		if stored.ProcessedAt != nil && stored.ProcessingError == "" {
			log.Infof("[Settlement] duplicate event %s (%s), already handled", ev.ID, ev.RawType)
			_ = counter.Add(counter.FieldEventsDuplicate, 1)
			return nil
		}
		log.Warnf("[Settlement] redelivered event %s (%s) was stored but never settled, reprocessing", ev.ID, ev.RawType)
	}

	procErr := p.dispatch(ctx, ev)

	errMsg := ""
	if procErr != nil {
		errMsg = procErr.Error()
		_ = counter.Add(counter.FieldEventsFailed, 1)
	} else {
		_ = counter.Add(counter.FieldEventsProcessed, 1)
	}
	if markErr := p.repo.MarkWebhookProcessed(stored.ID, errMsg); markErr != nil {
		log.Errorf("[Settlement] failed to mark event %s processed: %v", ev.ID, markErr)
	}

	// Validation failures are dropped, not redelivered.
	if procErr != nil && errors.Is(procErr, gateway.ErrInvalidMetadata) {
		log.Warnf("[Settlement] dropping event %s with malformed metadata: %v", ev.ID, procErr)
		return nil
	}
	return procErr
}

func (p *Processor) dispatch(ctx context.Context, ev *gateway.Event) error {
	switch ev.Kind {
	case gateway.KindPaymentSucceeded:
		return p.handleFundsCaptured(ctx, ev)
	case gateway.KindPaymentFailed:
		return p.handlePaymentOutcome(ev, models.PaymentStatusFailed)
	case gateway.KindPaymentCanceled:
		return p.handlePaymentOutcome(ev, models.PaymentStatusCanceled)
	case gateway.KindAccountUpdated:
		return p.handleAccountUpdated(ev)
	case gateway.KindIgnored:
		_ = counter.Add(counter.FieldEventsIgnored, 1)
		return nil
	case gateway.KindUnknown:
		log.Warnf("[Settlement] unknown event type %q (%s), acknowledging without action", ev.RawType, ev.ID)
		_ = counter.Add(counter.FieldEventsIgnored, 1)
		return nil
	}
	return fmt.Errorf("unhandled event kind %d", ev.Kind)
}

// handleFundsCaptured settles a capture the gateway already performed: the
// payment succeeds, the session completes and the payout row is written,
// atomically.
func (p *Processor) handleFundsCaptured(_ context.Context, ev *gateway.Event) error {
	sessionID, _, therapistID, err := ev.Payment.SessionRefs()
	if err != nil {
		return err
	}

	payment, err := p.repo.GetPaymentBySession(sessionID)
	if err != nil {
		return fmt.Errorf("load payment for session %d: %w", sessionID, err)
	}

	err = p.repo.FinalizeCapture(FinalizeInput{
		SessionID:   sessionID,
		TherapistID: therapistID,
		GatewayRef:  ev.Payment.IntentID,
		PayoutCents: models.PayoutAmountCents(payment.TotalCents, p.cfg.PayoutRatePercent),
		CapturedAt:  p.now(),
	})
	if errors.Is(err, ErrAlreadySettled) {
		log.Infof("[Settlement] session %d already settled, event %s is a no-op", sessionID, ev.ID)
		return nil
	}
	if errors.Is(err, ErrSessionCancelled) {
		return p.recordOrphanedCapture(sessionID, ev)
	}
	return err
}

// recordOrphanedCapture handles captured funds arriving for a cancelled
// session. The session stays cancelled and no payout is written; the
// capture is recorded on the payment and operations are alerted, because
// the client must be refunded.
func (p *Processor) recordOrphanedCapture(sessionID uint, ev *gateway.Event) error {
	err := p.repo.MarkPaymentCaptured(sessionID, ev.Payment.IntentID, p.now())
	if err != nil && !errors.Is(err, ErrAlreadySettled) {
		return fmt.Errorf("record orphaned capture for session %d: %w", sessionID, err)
	}

	log.Errorf("[Settlement] captured funds for cancelled session %d (event %s), refund required", sessionID, ev.ID)
	subject := fmt.Sprintf("Captured funds for cancelled session %d", sessionID)
	body := fmt.Sprintf("<p>Event %s captured intent %s for session %d, but the session is cancelled. The payment needs a refund.</p>",
		ev.ID, ev.Payment.IntentID, sessionID)
	if mailErr := mail.SendSettlementAlert(subject, body); mailErr != nil {
		log.Errorf("[Settlement] could not send refund alert: %v", mailErr)
	}
	return nil
}

func (p *Processor) handlePaymentOutcome(ev *gateway.Event, status string) error {
	sessionID, _, _, err := ev.Payment.SessionRefs()
	if err != nil {
		return err
	}

	err = p.repo.MarkPaymentOutcome(sessionID, status, ev.Payment.FailureReason)
	if errors.Is(err, ErrAlreadySettled) {
		// A stale failure event arriving after settlement must not regress
		// the record.
		return nil
	}
	return err
}

func (p *Processor) handleAccountUpdated(ev *gateway.Event) error {
	acct := ev.Account
	err := p.repo.UpdateTherapistCapabilities(acct.AccountID, acct.ChargesEnabled, acct.PayoutsEnabled, acct.DetailsSubmitted)
	if err != nil {
		log.Warnf("[Settlement] account update for %s not applied: %v", acct.AccountID, err)
	}
	return nil
}

// CompleteSession is the completion path shared by the therapist-facing
// endpoint and the auto-completion sweeper. When the payment intent is
// still authorized-but-uncaptured, the processor captures it itself —
// sequenced before the settlement transaction, never inside it.
func (p *Processor) CompleteSession(ctx context.Context, sessionID, therapistID uint, systemInitiated bool) error {
	session, err := p.repo.GetSession(sessionID)
	if err != nil {
		return err
	}
	if !systemInitiated && session.TherapistID != therapistID {
		return ErrNotAuthorized
	}
	if session.Status == models.SessionStatusCompleted {
		return ErrAlreadyCompleted
	}
	if session.IsTerminal() {
		return fmt.Errorf("session %d is %s: %w", sessionID, session.Status, ErrAlreadyCompleted)
	}
	if !session.HasEnded(p.now()) {
		return ErrSessionNotEnded
	}

	payment, err := p.repo.GetPaymentBySession(sessionID)
	if err != nil {
		return fmt.Errorf("load payment for session %d: %w", sessionID, err)
	}

	capturedAt := p.now()
	gatewayRef := ""
	if payment.GatewayRef != nil {
		gatewayRef = *payment.GatewayRef
	}

	// Only a pending payment with an authorized intent can be captured
	// here, and only an already-succeeded one can skip capture. A failed or
	// canceled payment may move to succeeded solely through a
	// gateway-reported capture event, never through this path: completing
	// the session must not mint a payout for money that was never
	// collected.
	switch payment.Status {
	case models.PaymentStatusSucceeded:
		// Captured earlier; finalize below.
	case models.PaymentStatusPending:
		if gatewayRef == "" {
			return fmt.Errorf("session %d has no payment intent to capture: %w", sessionID, ErrPaymentNotCollectable)
		}
		if err := p.captureWithRetry(ctx, gatewayRef, sessionID); err != nil {
			return err
		}
		capturedAt = p.now()
	default:
		return fmt.Errorf("payment for session %d is %s: %w", sessionID, payment.Status, ErrPaymentNotCollectable)
	}

	err = p.repo.FinalizeCapture(FinalizeInput{
		SessionID:     sessionID,
		TherapistID:   session.TherapistID,
		GatewayRef:    gatewayRef,
		PayoutCents:   models.PayoutAmountCents(payment.TotalCents, p.cfg.PayoutRatePercent),
		AutoCompleted: systemInitiated,
		CapturedAt:    capturedAt,
	})
	if errors.Is(err, ErrAlreadySettled) {
		return ErrAlreadyCompleted
	}
	if err != nil {
		return err
	}

	p.initiateTransfer(ctx, session, payment)
	return nil
}

func (p *Processor) captureWithRetry(ctx context.Context, intentID string, sessionID uint) error {
	res := p.exec.Do(ctx, fmt.Sprintf("capture %s", intentID), func(ctx context.Context) error {
		_, err := p.gw.CaptureIntent(ctx, intentID)
		if errors.Is(err, gateway.ErrAlreadyCaptured) {
			// Idempotent at the gateway boundary too.
			return nil
		}
		return err
	}, gateway.IsRetryable)

	if res.Attempts > 1 {
		_ = counter.Add(counter.FieldCapturesRetried, 1)
	}
	if !res.Succeeded() {
		subject := fmt.Sprintf("Capture failed for session %d", sessionID)
		body := fmt.Sprintf("<p>Capturing intent %s for session %d failed after %d attempts: %v</p>",
			intentID, sessionID, res.Attempts, res.Err)
		if mailErr := mail.SendSettlementAlert(subject, body); mailErr != nil {
			log.Errorf("[Settlement] could not send capture alert: %v", mailErr)
		}
		return fmt.Errorf("%w: %v", ErrCaptureFailed, res.Err)
	}
	return nil
}

// initiateTransfer moves the therapist share after the settlement
// transaction committed. A transfer failure leaves the payout row pending
// for operational follow-up; it never unwinds the completed session.
func (p *Processor) initiateTransfer(ctx context.Context, session *models.TherapySession, payment *models.PaymentRecord) {
	payoutCents := models.PayoutAmountCents(payment.TotalCents, p.cfg.PayoutRatePercent)
	if payoutCents <= 0 {
		return
	}

	profile, err := p.repo.GetTherapistProfile(session.TherapistID)
	if err != nil || profile.StripeAccountID == "" || !profile.PayoutsEnabled {
		log.Warnf("[Settlement] payout for session %d left pending: therapist %d has no payable account", session.ID, session.TherapistID)
		return
	}

	res := p.exec.Do(ctx, fmt.Sprintf("transfer session %d", session.ID), func(ctx context.Context) error {
		tr, err := p.gw.CreateTransfer(ctx, payoutCents, profile.StripeAccountID, session.ID)
		if err != nil {
			return err
		}
		return p.repo.AttachTransferRef(session.ID, tr.ID)
	}, gateway.IsRetryable)

	if !res.Succeeded() {
		log.Errorf("[Settlement] transfer for session %d failed, payout stays pending: %v", session.ID, res.Err)
	}
}
