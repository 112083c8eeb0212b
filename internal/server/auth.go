package server

import (
	"context"
	"errors"
	"strings"

	"threads/internal/identity"
	"threads/internal/middleware"
	"threads/internal/models"

	"github.com/gofiber/fiber/v2"
)

// sessionSubject extracts and validates the caller's session token. Websocket
// upgrades may pass the token as a query parameter since browsers cannot set
// headers on them.
func (s *Server) sessionSubject(c *fiber.Ctx) (string, error) {
	tokenString, err := middleware.BearerToken(c)
	if errors.Is(err, middleware.ErrMissingToken) && strings.HasPrefix(c.Path(), "/api/ws") {
		if q := c.Query("token"); q != "" {
			tokenString, err = q, nil
		}
	}
	if err != nil {
		return "", err
	}
	return middleware.ParseSessionToken(tokenString, s.config.JWTSecret, s.config.JWTIssuer)
}

func attachSubject(c *fiber.Ctx, subject string) {
	c.Locals("subject", subject)
	ctx := identity.WithSubject(c.UserContext(), subject)
	c.SetUserContext(ctx)
}

// AuthRequired returns the authentication middleware
func (s *Server) AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if sub, ok := c.Locals("subject").(string); ok && sub != "" {
			return c.Next()
		}

		subject, err := s.sessionSubject(c)
		if err != nil {
			msg := "Invalid or expired token"
			switch {
			case errors.Is(err, middleware.ErrMissingToken):
				msg = "Authorization required"
			case errors.Is(err, middleware.ErrInvalidIssuer):
				msg = "Invalid token issuer"
			case errors.Is(err, middleware.ErrInvalidSubject):
				msg = "Invalid subject claim"
			}
			return models.RespondWithError(c, fiber.StatusUnauthorized, models.NewUnauthenticatedError(msg))
		}

		attachSubject(c, subject)
		return c.Next()
	}
}

// OptionalAuth attaches the session subject when a valid token is present and
// lets anonymous or badly authenticated requests through untouched.
func (s *Server) OptionalAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		subject, err := s.sessionSubject(c)
		if err == nil {
			attachSubject(c, subject)
		} else if !errors.Is(err, middleware.ErrMissingToken) {
			middleware.Logger.DebugContext(c.UserContext(), "ignoring invalid session on public route",
				"path", c.Path(), "error", err)
		}
		return c.Next()
	}
}

// withUserID records the resolved user id for downstream logging.
func withUserID(c *fiber.Ctx, userID uint) {
	c.Locals("userID", userID)
	c.SetUserContext(context.WithValue(c.UserContext(), middleware.UserIDKey, userID))
}
