package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/renavest/renavest-next-sub002/app/repository"
	"github.com/renavest/renavest-next-sub002/internal/pkg/database"
	"github.com/renavest/renavest-next-sub002/internal/pkg/settlement"
	"github.com/renavest/renavest-next-sub002/internal/pkg/usercontext"
)

// HandleGetSession returns one session with its payment state. Only the
// participants (or an admin) may read it.
func HandleGetSession(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	sessionID, err := parseIDParam(c, "id")
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid session id")
	}

	session, payment, err := repository.GetGlobalFactory().GetSessionRepository().GetWithPayment(sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "Session not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load session")
	}
	if session.ClientID != userCtx.UserID && session.TherapistID != userCtx.UserID && !usercontext.IsAdmin(c) {
		return jsonError(c, fiber.StatusForbidden, "forbidden", "Not your session")
	}

	body := fiber.Map{
		"id":             session.ID,
		"therapist_id":   session.TherapistID,
		"client_id":      session.ClientID,
		"start_time":     session.StartTime.UTC().Format(time.RFC3339),
		"end_time":       session.EndTime.UTC().Format(time.RFC3339),
		"status":         session.Status,
		"auto_completed": session.AutoCompleted,
		"completed_at":   formatTimePtr(session.CompletedAt),
		"payment": fiber.Map{
			"status":              payment.Status,
			"total_cents":         payment.TotalCents,
			"subsidized_cents":    payment.SubsidizedCents,
			"out_of_pocket_cents": payment.OutOfPocketCents,
			"failure_reason":      payment.FailureReason,
			"captured_at":         formatTimePtr(payment.CapturedAt),
		},
	}
	if payout, err := repository.GetGlobalFactory().GetPayoutRepository().GetBySessionID(sessionID); err == nil {
		body["payout"] = fiber.Map{
			"amount_cents": payout.AmountCents,
			"status":       payout.Status,
			"transfer_ref": payout.TransferRef,
		}
	}
	return c.JSON(body)
}

// HandleListUpcomingSessions shows a therapist their not-yet-started
// bookings in chronological order.
func HandleListUpcomingSessions(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	_, limit := pageParams(c)

	list, err := repository.GetGlobalFactory().GetSessionRepository().
		ListUpcomingByTherapist(userCtx.UserID, time.Now(), limit)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load sessions")
	}

	sessions := make([]fiber.Map, 0, len(list))
	for _, s := range list {
		sessions = append(sessions, fiber.Map{
			"id":         s.ID,
			"client_id":  s.ClientID,
			"start_time": s.StartTime.UTC().Format(time.RFC3339),
			"end_time":   s.EndTime.UTC().Format(time.RFC3339),
			"status":     s.Status,
		})
	}
	return c.JSON(fiber.Map{"sessions": sessions})
}

// HandleCompleteSession is the therapist's manual completion endpoint. It
// captures the payment if needed and settles the session atomically.
func HandleCompleteSession(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	sessionID, err := parseIDParam(c, "id")
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid session id")
	}

	processor := settlement.NewProcessorFromDB(database.GetDB())
	err = processor.CompleteSession(c.Context(), sessionID, userCtx.UserID, false)
	switch {
	case err == nil:
		return c.JSON(fiber.Map{"id": sessionID, "status": "completed"})
	case errors.Is(err, settlement.ErrSessionNotFound):
		return jsonError(c, fiber.StatusNotFound, "not_found", "Session not found")
	case errors.Is(err, settlement.ErrNotAuthorized):
		return jsonError(c, fiber.StatusForbidden, "forbidden", "Not your session")
	case errors.Is(err, settlement.ErrAlreadyCompleted):
		return jsonError(c, fiber.StatusConflict, "already_completed", "Session is already completed")
	case errors.Is(err, settlement.ErrSessionNotEnded):
		return jsonError(c, fiber.StatusUnprocessableEntity, "not_ended", "Session has not ended yet")
	case errors.Is(err, settlement.ErrPaymentNotCollectable):
		return jsonError(c, fiber.StatusUnprocessableEntity, "payment_not_collectable", "The session's payment cannot be collected")
	case errors.Is(err, settlement.ErrCaptureFailed):
		return jsonError(c, fiber.StatusBadGateway, "capture_failed", "Payment capture failed, please retry")
	default:
		log.Errorf("[Session] completion of %d failed: %v", sessionID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to complete session")
	}
}

// HandleListMySessions lists the authenticated user's sessions, newest
// first, from whichever side of the booking they are on.
func HandleListMySessions(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	offset, limit := pageParams(c)

	repo := repository.GetGlobalFactory().GetSessionRepository()
	var sessions []fiber.Map

	list, err := repo.ListByClient(userCtx.UserID, offset, limit)
	if usercontext.IsTherapist(c) {
		list, err = repo.ListByTherapist(userCtx.UserID, offset, limit)
	}
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load sessions")
	}

	for _, s := range list {
		sessions = append(sessions, fiber.Map{
			"id":           s.ID,
			"therapist_id": s.TherapistID,
			"client_id":    s.ClientID,
			"start_time":   s.StartTime.UTC().Format(time.RFC3339),
			"end_time":     s.EndTime.UTC().Format(time.RFC3339),
			"status":       s.Status,
		})
	}

	return c.JSON(fiber.Map{"sessions": sessions, "offset": offset, "limit": limit})
}
