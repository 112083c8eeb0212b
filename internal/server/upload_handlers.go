package server

import (
	"github.com/gofiber/fiber/v2"
)

// GenerateUploadURL handles POST /api/uploads
func (s *Server) GenerateUploadURL(c *fiber.Ctx) error {
	uploadURL, err := s.uploadService.GenerateUploadURL(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"upload_url": uploadURL})
}

// UploadMedia handles POST /api/uploads/:ticket. The ticket in the path is
// the credential, so the route sits outside the auth group.
func (s *Server) UploadMedia(c *fiber.Ctx) error {
	// Body() is only valid for the lifetime of the handler.
	body := append([]byte(nil), c.Body()...)

	storageID, err := s.uploadService.Accept(c.UserContext(), c.Params("ticket"), body, c.Get(fiber.HeaderContentType))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"storage_id": storageID})
}
