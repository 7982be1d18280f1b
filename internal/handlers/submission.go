package handlers

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/Ananth-NQI/kb-request-bot/internal/storage"
	"github.com/Ananth-NQI/kb-request-bot/internal/utils"
)

// SubmissionHandler exposes the submission audit log.
type SubmissionHandler struct {
	store  storage.Store
	logger *slog.Logger
}

// NewSubmissionHandler creates a new submission handler
func NewSubmissionHandler(store storage.Store, logger *slog.Logger) *SubmissionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubmissionHandler{store: store, logger: logger}
}

// List returns a user's recent submissions: GET /api/submissions?user=slack:U123&limit=10
func (h *SubmissionHandler) List(c *fiber.Ctx) error {
	user := c.Query("user")
	if user == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user query parameter is required",
		})
	}

	subs, err := h.store.GetSubmissionsByUser(user, c.QueryInt("limit", storage.DefaultListLimit))
	if err != nil {
		h.logger.Error("failed to list submissions", "user", user, "error", err.Error())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch submissions",
		})
	}

	return c.JSON(fiber.Map{
		"success":     true,
		"count":       len(subs),
		"submissions": subs,
	})
}

// Get returns one submission by its request reference.
func (h *SubmissionHandler) Get(c *fiber.Ctx) error {
	ref := c.Params("ref")
	if !utils.IsRequestRef(ref) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request reference",
		})
	}

	sub, err := h.store.GetSubmission(ref)
	if errors.Is(err, storage.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Submission not found",
		})
	}
	if err != nil {
		h.logger.Error("failed to fetch submission", "ref", ref, "error", err.Error())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch submission",
		})
	}
	return c.JSON(sub)
}

// Stats reports the total number of recorded submissions.
func (h *SubmissionHandler) Stats(c *fiber.Ctx) error {
	total, err := h.store.CountSubmissions()
	if err != nil {
		h.logger.Error("failed to count submissions", "error", err.Error())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to count submissions",
		})
	}
	return c.JSON(fiber.Map{"total_submissions": total})
}
