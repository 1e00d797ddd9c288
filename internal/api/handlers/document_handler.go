package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/formsnapper/backend/internal/dispatch"
	"github.com/formsnapper/backend/internal/kb"
	"github.com/formsnapper/backend/internal/storage"
	"github.com/formsnapper/backend/pkg/logger"
)

type DocumentHandler struct {
	dispatcher *dispatch.Dispatcher
}

func NewDocumentHandler(dispatcher *dispatch.Dispatcher) *DocumentHandler {
	return &DocumentHandler{
		dispatcher: dispatcher,
	}
}

func (h *DocumentHandler) UploadDocument(c *fiber.Ctx) error {
	var req struct {
		UserID   string `json:"user_id"`
		FileName string `json:"fileName"`
		Content  string `json:"content"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.FileName == "" || req.Content == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "File name and content are required",
		})
	}

	resp, err := h.dispatcher.Dispatch(c.Context(), dispatch.EmbedDocument{
		UserID:   req.UserID,
		FileName: req.FileName,
		Content:  req.Content,
	})
	if err != nil {
		if errors.Is(err, kb.ErrEmptyDocument) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Document contains no usable text",
			})
		}
		logger.Error("Failed to embed document",
			zap.String("file_name", req.FileName),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to embed document",
		})
	}

	return c.JSON(resp)
}

func (h *DocumentHandler) DeleteDocument(c *fiber.Ctx) error {
	fileName := c.Params("fileName")
	if fileName == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "File name is required",
		})
	}

	resp, err := h.dispatcher.Dispatch(c.Context(), dispatch.DeleteEmbeddings{
		UserID:   c.Query("user_id"),
		FileName: fileName,
	})
	if err != nil {
		if errors.Is(err, storage.ErrDocumentNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Document not found",
			})
		}
		logger.Error("Failed to delete embeddings",
			zap.String("file_name", fileName),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete embeddings",
		})
	}

	return c.JSON(resp)
}

func (h *DocumentHandler) SearchKnowledgeBase(c *fiber.Ctx) error {
	var req struct {
		UserID string `json:"user_id"`
		Query  string `json:"query"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Query is required",
		})
	}

	resp, err := h.dispatcher.Dispatch(c.Context(), dispatch.SearchKnowledgeBase{
		UserID: req.UserID,
		Query:  req.Query,
	})
	if err != nil {
		logger.Error("Failed to search knowledge base", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to search knowledge base",
		})
	}

	return c.JSON(resp)
}
