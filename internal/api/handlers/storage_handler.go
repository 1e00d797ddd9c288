package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/formsnapper/backend/internal/dispatch"
	"github.com/formsnapper/backend/internal/storage"
	"github.com/formsnapper/backend/pkg/logger"
)

type StorageHandler struct {
	dispatcher *dispatch.Dispatcher
}

func NewStorageHandler(dispatcher *dispatch.Dispatcher) *StorageHandler {
	return &StorageHandler{
		dispatcher: dispatcher,
	}
}

func (h *StorageHandler) GetMode(c *fiber.Ctx) error {
	resp, err := h.dispatcher.Dispatch(c.Context(), dispatch.GetStorageMode{
		UserID: c.Query("user_id"),
	})
	if err != nil {
		logger.Error("Failed to read storage mode", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to read storage mode",
		})
	}

	return c.JSON(resp)
}

func (h *StorageHandler) SetMode(c *fiber.Ctx) error {
	var req struct {
		UserID string `json:"user_id"`
		Mode   string `json:"mode"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.UserID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id is required",
		})
	}

	mode, err := storage.ParseMode(req.Mode)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Mode must be \"local\" or \"remote\"",
		})
	}

	resp, err := h.dispatcher.Dispatch(c.Context(), dispatch.SetStorageMode{
		UserID: req.UserID,
		Mode:   mode,
	})
	if err != nil {
		logger.Error("Failed to switch storage mode",
			zap.String("mode", req.Mode),
			zap.Error(err),
		)
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Failed to switch storage mode",
		})
	}

	return c.JSON(resp)
}
