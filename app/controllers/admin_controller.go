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
	counter "github.com/renavest/renavest-next-sub002/internal/pkg/metrics/counter"
)

// HandleGetSettlementCounters exposes the operational settlement counters
// for the admin dashboard.
func HandleGetSettlementCounters(c *fiber.Ctx) error {
	counters, err := counter.Snapshot()
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to read counters")
	}

	pending, err := repository.GetGlobalFactory().GetSessionRepository().CountByStatus(models.SessionStatusConfirmed)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to count sessions")
	}

	return c.JSON(fiber.Map{
		"counters":           counters,
		"confirmed_sessions": pending,
	})
}

// CreateUserRequest is the admin user-provisioning payload. The identity
// itself lives with the auth provider; this creates the local profile row
// under the same user id space.
type CreateUserRequest struct {
	Name            string `json:"name" validate:"required,min=3,max=150"`
	Email           string `json:"email" validate:"required,email"`
	Role            string `json:"role" validate:"oneof=client therapist admin"`
	EmployerID      *uint  `json:"employer_id"`
	HourlyRateCents int64  `json:"hourly_rate_cents"`
}

// HandleCreateUser provisions a local user profile. Therapist users get an
// empty connected-account profile alongside; the account-updated webhook
// fills in the capability flags once onboarding finishes.
func HandleCreateUser(c *fiber.Ctx) error {
	var req CreateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}
	if err := validator.New().Struct(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", err.Error())
	}

	repos := repository.GetGlobalFactory()
	if _, err := repos.GetUserRepository().GetByEmail(req.Email); err == nil {
		return jsonError(c, fiber.StatusConflict, "duplicate_email", "A user with this email already exists")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to check email")
	}

	user := &models.User{
		Name:       req.Name,
		Email:      req.Email,
		Role:       req.Role,
		Status:     models.STATUS_ACTIVE,
		EmployerID: req.EmployerID,
	}
	if err := user.Validate(); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", err.Error())
	}
	if err := repos.GetUserRepository().Create(user); err != nil {
		log.Errorf("[Admin] creating user failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to create user")
	}

	if user.IsTherapist() {
		profile := &models.TherapistProfile{
			UserID:          user.ID,
			HourlyRateCents: req.HourlyRateCents,
		}
		if err := repos.GetTherapistRepository().Create(profile); err != nil {
			log.Errorf("[Admin] creating therapist profile for user %d failed: %v", user.ID, err)
			return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to create therapist profile")
		}
	}

	return c.Status(fiber.StatusCreated).JSON(user)
}

// HandleListUsers pages through the local user profiles.
func HandleListUsers(c *fiber.Ctx) error {
	offset, limit := pageParams(c)

	repos := repository.GetGlobalFactory().GetUserRepository()
	users, err := repos.List(offset, limit)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to list users")
	}
	total, err := repos.Count()
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to count users")
	}

	return c.JSON(fiber.Map{"users": users, "total": total, "offset": offset, "limit": limit})
}

// CreatePoolRequest funds a new sponsored pool. The full allocation starts
// out available.
type CreatePoolRequest struct {
	SponsorName    string `json:"sponsor_name" validate:"required,min=2,max=191"`
	AllocatedCents int64  `json:"allocated_cents" validate:"required,gt=0"`
}

// HandleCreatePool creates a sponsored pool with its balance fully
// available.
func HandleCreatePool(c *fiber.Ctx) error {
	var req CreatePoolRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}
	if err := validator.New().Struct(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", err.Error())
	}

	pool := &models.SponsoredPool{
		SponsorName:    req.SponsorName,
		AllocatedCents: req.AllocatedCents,
		IsActive:       true,
	}
	if err := repository.GetGlobalFactory().GetPoolRepository().CreatePool(pool); err != nil {
		log.Errorf("[Admin] creating pool failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to create pool")
	}
	return c.Status(fiber.StatusCreated).JSON(pool)
}

// HandleListPools lists the pools still accepting draws.
func HandleListPools(c *fiber.Ctx) error {
	pools, err := repository.GetGlobalFactory().GetPoolRepository().ListActivePools()
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to list pools")
	}
	return c.JSON(fiber.Map{"pools": pools})
}

// HandleDeactivatePool takes a pool out of the funding precedence. Bookings
// in flight fail over to grants or out-of-pocket; the remaining balance is
// preserved for audit.
func HandleDeactivatePool(c *fiber.Ctx) error {
	poolID, err := parseIDParam(c, "id")
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid pool id")
	}

	repo := repository.GetGlobalFactory().GetPoolRepository()
	pool, err := repo.GetPoolByID(poolID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "Pool not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load pool")
	}

	pool.IsActive = false
	if err := repo.UpdatePool(pool); err != nil {
		log.Errorf("[Admin] deactivating pool %d failed: %v", poolID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to deactivate pool")
	}
	return c.JSON(pool)
}

// CreateGrantRequest allocates per-user subsidy cents, optionally expiring.
type CreateGrantRequest struct {
	UserID        uint       `json:"user_id" validate:"required"`
	OriginalCents int64      `json:"original_cents" validate:"required,gt=0"`
	ExpiresAt     *time.Time `json:"expires_at"`
}

// HandleCreateGrant issues a subsidy grant to an active user.
func HandleCreateGrant(c *fiber.Ctx) error {
	var req CreateGrantRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}
	if err := validator.New().Struct(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", err.Error())
	}

	repos := repository.GetGlobalFactory()
	user, err := repos.GetUserRepository().GetByID(req.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "User not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load user")
	}
	if !user.IsActive() {
		return jsonError(c, fiber.StatusUnprocessableEntity, "user_not_active", "Grants can only be issued to active users")
	}

	grant := &models.SubsidyGrant{
		UserID:        req.UserID,
		EmployerID:    user.EmployerID,
		OriginalCents: req.OriginalCents,
		ExpiresAt:     req.ExpiresAt,
	}
	if err := repos.GetPoolRepository().CreateGrant(grant); err != nil {
		log.Errorf("[Admin] creating grant for user %d failed: %v", req.UserID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to create grant")
	}
	return c.Status(fiber.StatusCreated).JSON(grant)
}

// HandleGetUserSubsidy reports a user's grants and unexpired remaining
// balance.
func HandleGetUserSubsidy(c *fiber.Ctx) error {
	userID, err := parseIDParam(c, "id")
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid user id")
	}

	repo := repository.GetGlobalFactory().GetPoolRepository()
	grants, err := repo.GetGrantsByUser(userID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load grants")
	}
	remaining, err := repo.RemainingSubsidyForUser(userID, time.Now())
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to sum subsidy")
	}

	return c.JSON(fiber.Map{
		"user_id":         userID,
		"grants":          grants,
		"remaining_cents": remaining,
	})
}
