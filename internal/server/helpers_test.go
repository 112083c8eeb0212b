package server

import (
	"errors"
	"strconv"
	"testing"

	"threads/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
)

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func TestHumanizeParam(t *testing.T) {
	tests := []struct {
		param string
		want  string
	}{
		{"id", "ID"},
		{"userId", "user ID"},
		{"ticket", "ticket"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, humanizeParam(tt.param))
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{models.NewUnauthenticatedError("x"), fiber.StatusUnauthorized},
		{models.NewForbiddenError("x"), fiber.StatusForbidden},
		{models.NewNotFoundError("Thread", 1), fiber.StatusNotFound},
		{models.NewValidationError("x"), fiber.StatusBadRequest},
		{models.NewConflictError("x", nil), fiber.StatusConflict},
		{models.NewUnavailableError("x"), fiber.StatusServiceUnavailable},
		{models.NewInternalError(errors.New("boom")), fiber.StatusInternalServerError},
		{errors.New("plain"), fiber.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
