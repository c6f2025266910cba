package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/ntarasov/postwave/internal/apperr"
	"github.com/ntarasov/postwave/internal/service"
	"github.com/ntarasov/postwave/internal/transfer"
)

type AccountHandler struct {
	s     service.AccountService
	login service.LoginService
}

func NewAccountHandler(accounts service.AccountService, login service.LoginService) *AccountHandler {
	return &AccountHandler{s: accounts, login: login}
}

func (h *AccountHandler) ListAccounts(c *fiber.Ctx) error {
	accounts, err := h.s.List(c.Context())
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(accounts)
}

// BeginLogin starts the platform login handshake. The response either
// carries the created account id or a session handle to resume with once the
// owner has a 2FA or email code.
func (h *AccountHandler) BeginLogin(c *fiber.Ctx) error {
	var creds transfer.AccountLogin
	if err := c.BodyParser(&creds); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse json",
		})
	}

	result, err := h.login.BeginLogin(c.Context(), creds)
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(result)
}

func (h *AccountHandler) ContinueLogin(c *fiber.Ctx) error {
	var body transfer.LoginContinue
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse json",
		})
	}

	result, err := h.login.ContinueWithCode(c.Context(), body.SessionHandle, body.Code)
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(result)
}

func (h *AccountHandler) RemoveAccount(c *fiber.Ctx) error {
	var body transfer.AccountRemove
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse json",
		})
	}

	if err := h.s.Remove(c.Context(), body.AccountID); err != nil {
		return jsonError(c, err)
	}
	return c.SendStatus(fiber.StatusOK)
}

func (h *AccountHandler) GetSettings(c *fiber.Ctx) error {
	accountID, err := accountIDParam(c)
	if err != nil {
		return jsonError(c, err)
	}

	settings, err := h.s.GetSettings(c.Context(), accountID)
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(settings)
}

func (h *AccountHandler) UpdateSettings(c *fiber.Ctx) error {
	accountID, err := accountIDParam(c)
	if err != nil {
		return jsonError(c, err)
	}

	var update transfer.SettingsUpdate
	if err := c.BodyParser(&update); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse json",
		})
	}

	if err := h.s.UpdateSettings(c.Context(), accountID, update); err != nil {
		return jsonError(c, err)
	}
	return c.SendStatus(fiber.StatusOK)
}

func (h *AccountHandler) RecordEngagement(c *fiber.Ctx) error {
	accountID, err := accountIDParam(c)
	if err != nil {
		return jsonError(c, err)
	}

	var update transfer.EngagementUpdate
	if err := c.BodyParser(&update); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse json",
		})
	}

	if err := h.s.RecordEngagement(c.Context(), accountID, update); err != nil {
		return jsonError(c, err)
	}
	return c.SendStatus(fiber.StatusOK)
}

func (h *AccountHandler) GetStats(c *fiber.Ctx) error {
	accountID, err := accountIDParam(c)
	if err != nil {
		return jsonError(c, err)
	}

	days, _ := strconv.Atoi(c.Query("days", "7"))

	stats, err := h.s.Stats(c.Context(), accountID, days)
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(stats)
}

func accountIDParam(c *fiber.Ctx) (int64, error) {
	accountID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return 0, apperr.Validation("invalid account id")
	}
	return accountID, nil
}
