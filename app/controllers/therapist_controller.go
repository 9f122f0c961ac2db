package controllers

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/renavest/renavest-next-sub002/app/repository"
	"github.com/renavest/renavest-next-sub002/internal/pkg/usercontext"
)

// HandleListTherapists lists the therapists whose connected account is
// ready to take paid bookings.
func HandleListTherapists(c *fiber.Ctx) error {
	offset, limit := pageParams(c)

	profiles, err := repository.GetGlobalFactory().GetTherapistRepository().ListAcceptingBookings(offset, limit)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to list therapists")
	}

	therapists := make([]fiber.Map, 0, len(profiles))
	for _, p := range profiles {
		therapists = append(therapists, fiber.Map{
			"user_id":           p.UserID,
			"hourly_rate_cents": p.HourlyRateCents,
		})
	}
	return c.JSON(fiber.Map{"therapists": therapists, "offset": offset, "limit": limit})
}

// SetRateRequest updates the therapist's session price.
type SetRateRequest struct {
	HourlyRateCents int64 `json:"hourly_rate_cents" validate:"required,gt=0"`
}

// HandleSetMyRate lets a therapist set their own hourly rate. Sessions
// already booked keep the price they were reserved at.
func HandleSetMyRate(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var req SetRateRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}
	if err := validator.New().Struct(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", err.Error())
	}

	repo := repository.GetGlobalFactory().GetTherapistRepository()
	profile, err := repo.GetByUserID(userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "No therapist profile for this user")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load profile")
	}

	profile.HourlyRateCents = req.HourlyRateCents
	if err := repo.Update(profile); err != nil {
		log.Errorf("[Therapist] updating rate for user %d failed: %v", userCtx.UserID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to update rate")
	}
	return c.JSON(fiber.Map{"user_id": profile.UserID, "hourly_rate_cents": profile.HourlyRateCents})
}
