package controllers

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/renavest/renavest-next-sub002/app/models"
	"github.com/renavest/renavest-next-sub002/app/repository"
	"github.com/renavest/renavest-next-sub002/internal/pkg/booking"
	"github.com/renavest/renavest-next-sub002/internal/pkg/database"
	"github.com/renavest/renavest-next-sub002/internal/pkg/ledger"
	counter "github.com/renavest/renavest-next-sub002/internal/pkg/metrics/counter"
	"github.com/renavest/renavest-next-sub002/internal/pkg/usercontext"
)

// CreateSessionRequest is the booking payload. Times are RFC3339.
type CreateSessionRequest struct {
	TherapistID     uint   `json:"therapist_id" validate:"required"`
	StartTime       string `json:"start_time" validate:"required"`
	EndTime         string `json:"end_time" validate:"required"`
	SponsoredPoolID *uint  `json:"sponsored_pool_id"`
	GatewayRef      string `json:"gateway_ref"`
}

// HandleCreateSession reserves a therapy slot for the authenticated client
// and applies the subsidy split to its payment record. The slot reservation
// is exclusive: a concurrent booking for the same therapist and start time
// gets a conflict response.
func HandleCreateSession(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var req CreateSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}
	if err := validator.New().Struct(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", err.Error())
	}

	startTime, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "start_time must be RFC3339")
	}
	endTime, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "end_time must be RFC3339")
	}

	profile, err := repository.GetGlobalFactory().GetTherapistRepository().GetByUserID(req.TherapistID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "Therapist not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load therapist")
	}
	if !profile.CanAcceptBookings() {
		return jsonError(c, fiber.StatusUnprocessableEntity, "therapist_unavailable", "Therapist cannot accept bookings yet")
	}

	priceCents := sessionPriceCents(profile.HourlyRateCents, startTime, endTime)

	db := database.GetDB()
	allocator := booking.NewAllocator(db)
	session, err := allocator.Reserve(c.Context(), booking.ReserveInput{
		TherapistID:     req.TherapistID,
		ClientID:        userCtx.UserID,
		StartTime:       startTime,
		EndTime:         endTime,
		PriceCents:      priceCents,
		SponsoredPoolID: req.SponsoredPoolID,
		GatewayRef:      req.GatewayRef,
	})
	if err != nil {
		switch {
		case errors.Is(err, booking.ErrSlotTaken):
			_ = counter.Add(counter.FieldBookingConflicts, 1)
			return jsonError(c, fiber.StatusConflict, "slot_taken", "This slot was just booked by someone else")
		case errors.Is(err, booking.ErrInvalidSlot):
			return jsonError(c, fiber.StatusBadRequest, "bad_request", err.Error())
		default:
			log.Errorf("[Booking] reserve failed for therapist %d: %v", req.TherapistID, err)
			return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to reserve slot")
		}
	}

	split, err := ledger.New(db).Allocate(c.Context(), ledger.AllocateInput{
		SessionID:       session.ID,
		UserID:          userCtx.UserID,
		SponsoredPoolID: req.SponsoredPoolID,
		Now:             time.Now(),
	})
	if err != nil {
		// The reservation stands; the payment record keeps its unsplit
		// out-of-pocket total.
		log.Errorf("[Booking] subsidy allocation failed for session %d: %v", session.ID, err)
		if errors.Is(err, ledger.ErrAllocationContended) {
			return jsonError(c, fiber.StatusServiceUnavailable, "allocation_contended", "Subsidy allocation is contended, retry shortly")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to apply subsidy")
	}

	// The funded reservation becomes a confirmed booking; from here on it
	// is eligible for settlement and the auto-completion sweep.
	if err := allocator.Confirm(c.Context(), session.ID); err != nil {
		log.Errorf("[Booking] confirming session %d failed: %v", session.ID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to confirm booking")
	}
	session.Status = models.SessionStatusConfirmed

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":           session.ID,
		"therapist_id": session.TherapistID,
		"client_id":    session.ClientID,
		"start_time":   session.StartTime.UTC().Format(time.RFC3339),
		"end_time":     session.EndTime.UTC().Format(time.RFC3339),
		"status":       session.Status,
		"pricing": fiber.Map{
			"total_cents":         split.TotalCents,
			"subsidized_cents":    split.SubsidizedCents,
			"out_of_pocket_cents": split.OutOfPocketCents,
		},
	})
}

// HandleCancelSession releases a reserved slot. The session row survives
// for audit; only its slot claim is cleared.
func HandleCancelSession(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	sessionID, err := parseIDParam(c, "id")
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid session id")
	}

	session, err := repository.GetGlobalFactory().GetSessionRepository().GetByID(sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "Session not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load session")
	}
	if session.ClientID != userCtx.UserID && session.TherapistID != userCtx.UserID && !usercontext.IsAdmin(c) {
		return jsonError(c, fiber.StatusForbidden, "forbidden", "Not your session")
	}

	if err := booking.NewAllocator(database.GetDB()).Cancel(c.Context(), sessionID); err != nil {
		if errors.Is(err, booking.ErrNotCancellable) {
			return jsonError(c, fiber.StatusUnprocessableEntity, "not_cancellable", err.Error())
		}
		log.Errorf("[Booking] cancel failed for session %d: %v", sessionID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to cancel session")
	}

	return c.JSON(fiber.Map{"id": sessionID, "status": "cancelled"})
}

// sessionPriceCents prorates the therapist's hourly rate over the booked
// duration, rounded down to whole cents.
func sessionPriceCents(hourlyRateCents int64, start, end time.Time) int64 {
	minutes := int64(end.Sub(start) / time.Minute)
	if minutes <= 0 {
		return 0
	}
	return hourlyRateCents * minutes / 60
}
