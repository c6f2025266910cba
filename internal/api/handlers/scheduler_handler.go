package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"

	"github.com/ntarasov/postwave/internal/queue"
	"github.com/ntarasov/postwave/internal/scheduler"
	"github.com/ntarasov/postwave/internal/transfer"
)

type SchedulerHandler struct {
	engine      *scheduler.Engine
	asynqClient *asynq.Client
}

func NewSchedulerHandler(engine *scheduler.Engine, asynqClient *asynq.Client) *SchedulerHandler {
	return &SchedulerHandler{engine: engine, asynqClient: asynqClient}
}

func (h *SchedulerHandler) PostNow(c *fiber.Ctx) error {
	var body transfer.PostNow
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse json",
		})
	}
	if body.AccountID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "account_id is required",
		})
	}

	payload := queue.PostNowPayload{AccountID: body.AccountID, Prompt: body.Prompt}
	if err := queue.EnqueuePostNow(h.asynqClient, payload, 0); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to enqueue post",
		})
	}

	return c.SendStatus(fiber.StatusAccepted)
}

func (h *SchedulerHandler) GetQueueStatus(c *fiber.Ctx) error {
	accountID, err := accountIDParam(c)
	if err != nil {
		return jsonError(c, err)
	}

	status, err := h.engine.QueueStatus(c.Context(), accountID)
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(status)
}
