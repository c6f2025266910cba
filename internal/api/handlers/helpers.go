package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/ntarasov/postwave/internal/apperr"
)

func GetUserID(c *fiber.Ctx) int64 {
	userID, _ := strconv.Atoi(c.Locals("user_id").(string))
	return int64(userID)
}

func jsonError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, apperr.ErrValidation):
		status = fiber.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, apperr.ErrAuthInvalid):
		status = fiber.StatusUnauthorized
	case errors.Is(err, apperr.ErrRateLimited):
		status = fiber.StatusTooManyRequests
	case errors.Is(err, apperr.ErrQuotaExceeded):
		status = fiber.StatusPaymentRequired
	case errors.Is(err, apperr.ErrUpstream):
		status = fiber.StatusBadGateway
	}

	body := fiber.Map{"error": err.Error()}
	if retryAfter := apperr.RetryAfter(err); retryAfter > 0 {
		body["retry_after_seconds"] = int(retryAfter.Seconds())
	}
	return c.Status(status).JSON(body)
}
