package server

import (
	"crypto/subtle"
	"log/slog"

	"threads/internal/middleware"
	"threads/internal/models"
	"threads/internal/service"

	"github.com/gofiber/fiber/v2"
)

const webhookSecretHeader = "X-Webhook-Secret"

// identityEvent is the identity provider's webhook envelope.
type identityEvent struct {
	Type string `json:"type"`
	Data struct {
		ID             string `json:"id"`
		FirstName      string `json:"first_name"`
		LastName       string `json:"last_name"`
		Username       string `json:"username"`
		ImageURL       string `json:"image_url"`
		EmailAddresses []struct {
			EmailAddress string `json:"email_address"`
		} `json:"email_addresses"`
	} `json:"data"`
}

func (e *identityEvent) primaryEmail() string {
	if len(e.Data.EmailAddresses) == 0 {
		return ""
	}
	return e.Data.EmailAddresses[0].EmailAddress
}

// IdentityWebhook handles POST /api/webhooks/identity
func (s *Server) IdentityWebhook(c *fiber.Ctx) error {
	ctx := c.UserContext()

	secret := s.config.WebhookSecret
	got := c.Get(webhookSecretHeader)
	if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
		return models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthenticatedError("Invalid webhook secret"))
	}

	var evt identityEvent
	if err := c.BodyParser(&evt); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid webhook payload"))
	}
	if evt.Data.ID == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Webhook payload is missing data.id"))
	}

	switch evt.Type {
	case "user.created":
		user, created, err := s.userService.Provision(ctx, service.IdentityUser{
			ExternalID: evt.Data.ID,
			Email:      evt.primaryEmail(),
			FirstName:  evt.Data.FirstName,
			LastName:   evt.Data.LastName,
			Username:   evt.Data.Username,
			ImageURL:   evt.Data.ImageURL,
		})
		if err != nil {
			return respondError(c, err)
		}
		status := fiber.StatusOK
		if created {
			status = fiber.StatusCreated
		}
		return c.Status(status).JSON(fiber.Map{"user_id": user.ID, "created": created})

	case "user.deleted":
		removed, err := s.userService.Remove(ctx, evt.Data.ID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"removed": removed})

	case "user.updated":
		middleware.Logger.InfoContext(ctx, "identity user updated", slog.String("external_id", evt.Data.ID))
		return c.JSON(fiber.Map{"received": true})

	default:
		middleware.Logger.InfoContext(ctx, "ignoring identity webhook",
			slog.String("type", evt.Type), slog.String("external_id", evt.Data.ID))
		return c.JSON(fiber.Map{"received": true})
	}
}
