package handler

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/rl1809/book-lending/internal/core/service"
	"github.com/rl1809/book-lending/internal/logger"
)

type errorKind struct {
	target  error
	status  int
	message string
}

// Order matters: an unavailable store can wrap other kinds.
var errorKinds = []errorKind{
	{service.ErrUnavailable, fiber.StatusServiceUnavailable, "service unavailable"},
	{service.ErrValidation, fiber.StatusBadRequest, "invalid request"},
	{service.ErrNotFound, fiber.StatusNotFound, "not found"},
	{service.ErrOutOfStock, fiber.StatusBadRequest, "out of stock"},
	{service.ErrNotModified, fiber.StatusBadRequest, "nothing changed"},
	{service.ErrDuplicateRequest, fiber.StatusConflict, "duplicate request"},
	{service.ErrBookMissing, fiber.StatusConflict, "book no longer exists"},
	{service.ErrUpdateFailed, fiber.StatusInternalServerError, "update failed"},
	{service.ErrUnauthorized, fiber.StatusUnauthorized, "unauthorized"},
	{service.ErrForbidden, fiber.StatusForbidden, "a token is required for authentication"},
}

// writeError renders err as {error, details?}. Internal errors are logged and hidden.
func writeError(c *fiber.Ctx, err error) error {
	for _, kind := range errorKinds {
		if !errors.Is(err, kind.target) {
			continue
		}
		resp := ErrorResponse{Error: kind.message}
		if kind.target == service.ErrValidation {
			resp.Details = strings.TrimPrefix(err.Error(), service.ErrValidation.Error()+": ")
		}
		if kind.status >= fiber.StatusInternalServerError {
			logger.GetLogger(c.UserContext()).WithError(err).Error("request failed")
		}
		return c.Status(kind.status).JSON(resp)
	}

	logger.GetLogger(c.UserContext()).WithError(err).Error("unexpected error")
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "internal error"})
}

func badRequest(c *fiber.Ctx, message string, details any) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: message, Details: details})
}

// ErrorHandler renders errors returned from the handler chain, including
// *fiber.Error from routing and middleware.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(ErrorResponse{Error: strings.ToLower(fe.Message)})
	}
	return writeError(c, err)
}
