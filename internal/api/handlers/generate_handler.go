package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ntarasov/postwave/internal/service"
	"github.com/ntarasov/postwave/internal/transfer"
)

type GenerateHandler struct {
	g service.ContentGenerator
}

func NewGenerateHandler(g service.ContentGenerator) *GenerateHandler {
	return &GenerateHandler{g: g}
}

// Generate previews content without publishing it.
func (h *GenerateHandler) Generate(c *fiber.Ctx) error {
	var body transfer.GenerateRequest
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse json",
		})
	}

	switch body.MediaType {
	case "", "text":
		text, err := h.g.GenerateText(c.Context(), body.Prompt)
		if err != nil {
			return jsonError(c, err)
		}
		return c.JSON(transfer.GeneratedContent{Text: text, MediaType: "text"})

	case "image":
		mediaURL, err := h.g.GenerateImage(c.Context(), body.Prompt)
		if err != nil {
			return jsonError(c, err)
		}

		caption, err := h.g.GenerateText(c.Context(), body.Prompt)
		if err != nil {
			return jsonError(c, err)
		}
		return c.JSON(transfer.GeneratedContent{Text: caption, MediaType: "image", MediaURL: mediaURL})

	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unsupported media type",
		})
	}
}
