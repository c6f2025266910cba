package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/ntarasov/postwave/internal/service"
)

type UserHandler struct {
	s service.UserService
}

func NewUserHandler(service service.UserService) *UserHandler {
	return &UserHandler{s: service}
}

func (h *UserHandler) GetUserInfo(c *fiber.Ctx) error {
	userID := GetUserID(c)

	userInfo, err := h.s.GetUserInfo(c.Context(), userID)
	if err != nil {
		return jsonError(c, err)
	}

	return c.JSON(userInfo)
}
