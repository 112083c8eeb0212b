package server

import (
	"threads/internal/service"

	"github.com/gofiber/fiber/v2"
)

type updateUserRequest struct {
	Bio        *string `json:"bio" validate:"omitempty,max=500"`
	WebsiteURL *string `json:"website_url" validate:"omitempty,max=2048"`
	PushToken  *string `json:"push_token" validate:"omitempty,max=255"`
	ImageURL   *string `json:"image_url" validate:"omitempty,max=2048"`
}

// GetAllUsers handles GET /api/users
func (s *Server) GetAllUsers(c *fiber.Ctx) error {
	users, err := s.userService.List(c.UserContext(), c.QueryInt("limit", 20), c.QueryInt("offset", 0))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(users)
}

// SearchUsers handles GET /api/users/search?q=...
func (s *Server) SearchUsers(c *fiber.Ctx) error {
	users, err := s.userService.Search(c.UserContext(), c.Query("q"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(users)
}

// GetUserByExternalID handles GET /api/users/external/:externalId
func (s *Server) GetUserByExternalID(c *fiber.Ctx) error {
	user, err := s.userService.GetByExternalID(c.UserContext(), c.Params("externalId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(user)
}

// GetUser handles GET /api/users/:id
func (s *Server) GetUser(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	user, err := s.userService.GetByID(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(user)
}

// GetMe handles GET /api/users/me
func (s *Server) GetMe(c *fiber.Ctx) error {
	user, err := s.userService.Me(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	withUserID(c, user.ID)
	return c.JSON(user)
}

// UpdateUser handles PATCH /api/users/:id
func (s *Server) UpdateUser(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req updateUserRequest
	if err := s.bindBody(c, &req); err != nil {
		return nil
	}

	user, err := s.userService.Update(c.UserContext(), id, service.UpdateUserInput{
		Bio:        req.Bio,
		WebsiteURL: req.WebsiteURL,
		PushToken:  req.PushToken,
		ImageURL:   req.ImageURL,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(user)
}
