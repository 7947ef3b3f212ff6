package handlers

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"esg-go-api/internal/models"
)

// TargetProgressComputer runs the target progress pipeline
type TargetProgressComputer interface {
	ByCategory(ctx context.Context, req models.TargetsRequest) (*models.TargetsResponse, error)
}

type TargetsHandler struct {
	progress TargetProgressComputer
	timeout  time.Duration
}

func NewTargetsHandler(progress TargetProgressComputer, timeout time.Duration) *TargetsHandler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &TargetsHandler{
		progress: progress,
		timeout:  timeout,
	}
}

// GetByCategory handles GET /v1/targets/by-category
func (h *TargetsHandler) GetByCategory(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), h.timeout)
	defer cancel()

	req, msg := parseTargetsRequest(c)
	if msg != "" {
		return badRequest(c, msg)
	}

	resp, err := h.progress.ByCategory(ctx, req)
	if err != nil {
		return writeError(ctx, c, err)
	}

	return c.JSON(resp)
}

// parseTargetsRequest returns a non-empty message when the query is malformed.
func parseTargetsRequest(c *fiber.Ctx) (models.TargetsRequest, string) {
	var req models.TargetsRequest

	req.OrganizationID = c.Query("organizationId")
	if _, err := uuid.Parse(req.OrganizationID); err != nil {
		return req, "organizationId must be a UUID"
	}

	for _, cat := range strings.Split(c.Query("categories"), ",") {
		if cat = strings.TrimSpace(cat); cat != "" {
			req.Categories = append(req.Categories, cat)
		}
	}
	if len(req.Categories) == 0 {
		return req, "categories is required"
	}

	var ok bool
	if req.BaselineYear, ok = queryYear(c, "baselineYear", true); !ok {
		return req, "baselineYear must be a year"
	}
	if req.TargetYear, ok = queryYear(c, "targetYear", true); !ok {
		return req, "targetYear must be a year"
	}
	if req.TargetYear <= req.BaselineYear {
		return req, "targetYear must be after baselineYear"
	}
	if req.EvaluationYear, ok = queryYear(c, "evaluationYear", false); !ok {
		return req, "evaluationYear must be a year"
	}

	req.SiteID = c.Query("siteId")
	return req, ""
}

func queryYear(c *fiber.Ctx, key string, required bool) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, !required
	}
	y, err := strconv.Atoi(raw)
	if err != nil || y < 1900 || y > 2200 {
		return 0, false
	}
	return y, true
}
