package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/renavest/renavest-next-sub002/internal/pkg/database"
	"github.com/renavest/renavest-next-sub002/internal/pkg/env"
	"github.com/renavest/renavest-next-sub002/internal/pkg/gateway"
	"github.com/renavest/renavest-next-sub002/internal/pkg/settlement"
)

// HandleStripeWebhook receives payment gateway events. The signature check
// runs over the raw body before anything is parsed; a bad signature is the
// only reason to reject outright. Everything verified gets acknowledged
// unless persisting it failed, so the gateway redelivers exactly the events
// that never reached the database.
func HandleStripeWebhook(c *fiber.Ctx) error {
	secret := env.GetEnv("STRIPE_WEBHOOK_SECRET", "")
	if secret == "" {
		log.Error("[Webhook] STRIPE_WEBHOOK_SECRET is not configured")
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Webhook not configured")
	}

	payload := c.Body()
	sigHeader := c.Get("Stripe-Signature")
	if !gateway.VerifyWebhookSignature(payload, sigHeader, secret, gateway.SignatureToleranceFromEnv(), time.Now()) {
		log.Warn("[Webhook] rejected delivery with bad signature")
		return jsonError(c, fiber.StatusBadRequest, "bad_signature", "Signature verification failed")
	}

	event, err := gateway.ParseEvent(payload)
	if err != nil {
		log.Warnf("[Webhook] undecodable event payload: %v", err)
		return jsonError(c, fiber.StatusBadRequest, "bad_payload", "Could not decode event")
	}

	processor := settlement.NewProcessorFromDB(database.GetDB())
	if err := processor.HandleEvent(c.Context(), event); err != nil {
		log.Errorf("[Webhook] processing %s (%s) failed: %v", event.ID, event.RawType, err)
		return jsonError(c, fiber.StatusInternalServerError, "processing_failed", "Event processing failed")
	}

	return c.JSON(fiber.Map{"received": true})
}
