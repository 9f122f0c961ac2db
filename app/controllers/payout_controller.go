package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/renavest/renavest-next-sub002/app/repository"
	"github.com/renavest/renavest-next-sub002/internal/pkg/usercontext"
)

// HandleListMyPayouts lists the authenticated therapist's payouts, newest
// first, together with the total still awaiting transfer.
func HandleListMyPayouts(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	offset, limit := pageParams(c)

	repo := repository.GetGlobalFactory().GetPayoutRepository()
	payouts, err := repo.ListByTherapist(userCtx.UserID, offset, limit)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load payouts")
	}
	pendingCents, err := repo.SumPendingByTherapist(userCtx.UserID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to sum pending payouts")
	}

	list := make([]fiber.Map, 0, len(payouts))
	for _, p := range payouts {
		list = append(list, fiber.Map{
			"session_id":   p.SessionID,
			"amount_cents": p.AmountCents,
			"status":       p.Status,
			"transfer_ref": p.TransferRef,
			"created_at":   p.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	return c.JSON(fiber.Map{
		"payouts":             list,
		"pending_total_cents": pendingCents,
		"offset":              offset,
		"limit":               limit,
	})
}
