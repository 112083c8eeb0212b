package server

import (
	"strconv"

	"threads/internal/models"
	"threads/internal/service"

	"github.com/gofiber/fiber/v2"
)

type createMessageRequest struct {
	Content    string   `json:"content" validate:"max=5000"`
	MediaFiles []string `json:"media_files" validate:"max=10,dive,required"`
	WebsiteURL string   `json:"website_url" validate:"omitempty,max=2048"`
	ThreadID   *uint    `json:"thread_id" validate:"omitempty,gt=0"`
}

// ListThreads handles GET /api/threads
func (s *Server) ListThreads(c *fiber.Ctx) error {
	var authorID *uint
	if raw := c.Query("user_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || id == 0 {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("Invalid user ID"))
		}
		uid := uint(id)
		authorID = &uid
	}

	page, err := s.feedService.ListThreads(c.UserContext(), parsePageOpts(c), authorID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(page)
}

// GetThread handles GET /api/threads/:id
func (s *Server) GetThread(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	msg, err := s.feedService.GetThread(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(msg)
}

// GetThreadDetail handles GET /api/threads/:id/detail
func (s *Server) GetThreadDetail(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	detail, err := s.feedService.ThreadDetail(c.UserContext(), id, parsePageOpts(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(detail)
}

// GetComments handles GET /api/threads/:id/comments
func (s *Server) GetComments(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	page, err := s.feedService.ListComments(c.UserContext(), id, parsePageOpts(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(page)
}

// CreateMessage handles POST /api/threads. A thread_id makes the message a
// comment or reply under that parent.
func (s *Server) CreateMessage(c *fiber.Ctx) error {
	var req createMessageRequest
	if err := s.bindBody(c, &req); err != nil {
		return nil
	}

	msg, err := s.threadService.CreateMessage(c.UserContext(), service.CreateMessageInput{
		Content:    req.Content,
		MediaFiles: req.MediaFiles,
		WebsiteURL: req.WebsiteURL,
		ThreadID:   req.ThreadID,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// ToggleLike handles POST /api/threads/:id/like
func (s *Server) ToggleLike(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	liked, err := s.likeService.ToggleLike(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"liked": liked})
}

// DeleteMessage handles DELETE /api/threads/:id
func (s *Server) DeleteMessage(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.threadService.DeleteMessage(c.UserContext(), id); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"deleted": true})
}
