package handlers

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"esg-go-api/internal/models"
	"esg-go-api/internal/services"
)

// MaxForecastMonths bounds the months query parameter
const MaxForecastMonths = 60

// MetricForecaster produces a forecast for one metric
type MetricForecaster interface {
	GenerateForecast(ctx context.Context, req services.MetricForecastRequest) (*models.MetricForecastResponse, error)
}

type ForecastHandler struct {
	forecaster MetricForecaster
	timeout    time.Duration
}

func NewForecastHandler(forecaster MetricForecaster, timeout time.Duration) *ForecastHandler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ForecastHandler{
		forecaster: forecaster,
		timeout:    timeout,
	}
}

// GetMetricForecast handles GET /v1/metrics/:metricId/forecast
func (h *ForecastHandler) GetMetricForecast(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), h.timeout)
	defer cancel()

	orgID := c.Query("organizationId")
	if _, err := uuid.Parse(orgID); err != nil {
		return badRequest(c, "organizationId must be a UUID")
	}

	months := 12
	if raw := c.Query("months"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > MaxForecastMonths {
			return badRequest(c, "months must be an integer between 1 and "+strconv.Itoa(MaxForecastMonths))
		}
		months = n
	}

	forecast, err := h.forecaster.GenerateForecast(ctx, services.MetricForecastRequest{
		OrganizationID: orgID,
		SiteID:         c.Query("siteId"),
		MetricID:       c.Params("metricId"),
		Months:         months,
	})
	if err != nil {
		return writeError(ctx, c, err)
	}

	return c.JSON(forecast)
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
		Error:   "Invalid request",
		Message: message,
		Code:    fiber.StatusBadRequest,
	})
}

// writeError maps pipeline errors onto HTTP statuses.
func writeError(ctx context.Context, c *fiber.Ctx, err error) error {
	var (
		ive *models.InvalidValueError
		dae *models.DataAccessError
	)
	code, title := fiber.StatusInternalServerError, "Request failed"
	switch {
	case errors.As(err, &ive):
		code, title = fiber.StatusBadRequest, "Invalid request"
	case errors.Is(err, services.ErrMetricNotFound):
		code, title = fiber.StatusNotFound, "Metric not found"
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		code, title = fiber.StatusGatewayTimeout, "Request timed out"
	case errors.As(err, &dae):
		title = "Metric store unavailable"
	}

	if code >= fiber.StatusInternalServerError {
		zap.L().Error("request failed",
			zap.String("path", c.Path()),
			zap.Int("status", code),
			zap.Error(err),
		)
	}
	return c.Status(code).JSON(models.ErrorResponse{
		Error:   title,
		Message: err.Error(),
		Code:    code,
	})
}

// CustomErrorHandler handles Fiber errors
func CustomErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}

	return c.Status(code).JSON(models.ErrorResponse{
		Error:   "Request failed",
		Message: err.Error(),
		Code:    code,
	})
}
