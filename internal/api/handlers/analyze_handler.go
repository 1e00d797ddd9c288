package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/formsnapper/backend/internal/dispatch"
	"github.com/formsnapper/backend/pkg/logger"
)

type AnalyzeHandler struct {
	dispatcher *dispatch.Dispatcher
	hub        *EventHub
}

func NewAnalyzeHandler(dispatcher *dispatch.Dispatcher, hub *EventHub) *AnalyzeHandler {
	return &AnalyzeHandler{
		dispatcher: dispatcher,
		hub:        hub,
	}
}

func (h *AnalyzeHandler) HandleAnalyze(c *fiber.Ctx) error {
	var req struct {
		UserID             string            `json:"user_id"`
		URL                string            `json:"url"`
		PageContent        string            `json:"pageContent"`
		KnowledgeBase      string            `json:"knowledgeBaseContext"`
		CustomInstructions string            `json:"customInstructions"`
		PageContext        map[string]string `json:"pageContext"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.PageContent == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Page content is required",
		})
	}

	userID := req.UserID
	requestID := uuid.NewString()
	logger.Info("Analysis requested",
		zap.String("request_id", requestID),
		zap.String("url", req.URL),
	)

	resp, err := h.dispatcher.Dispatch(c.Context(), dispatch.AnalyzeForm{
		UserID:             userID,
		URL:                req.URL,
		PageContent:        req.PageContent,
		KnowledgeBase:      req.KnowledgeBase,
		CustomInstructions: req.CustomInstructions,
		PageContext:        req.PageContext,
		Progress: func(event string, detail map[string]any) {
			if detail == nil {
				detail = map[string]any{}
			}
			detail["request_id"] = requestID
			h.hub.Publish(userID, event, detail)
		},
	})
	if err != nil {
		logger.Error("Failed to analyze form",
			zap.String("request_id", requestID),
			zap.String("url", req.URL),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to analyze form",
		})
	}

	return c.JSON(resp)
}
