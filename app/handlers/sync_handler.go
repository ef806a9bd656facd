// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/trafficlab/traffic-api/app/dto"
	"github.com/trafficlab/traffic-api/app/services"
	businessflow "github.com/trafficlab/traffic-api/business_flow"
	"github.com/trafficlab/traffic-api/models"
	"github.com/trafficlab/traffic-api/utils"
)

// SyncHandlerInterface defines the contract for synchronization handlers.
type SyncHandlerInterface interface {
	SyncMeta(c fiber.Ctx) error
	SyncGoogleAds(c fiber.Ctx) error
	SyncTikTok(c fiber.Ctx) error
	ImportMetaInsights(c fiber.Ctx) error
	LastSummary(c fiber.Ctx) error
}

// SyncHandler handles synchronization requests.
type SyncHandler struct {
	syncFlow     businessflow.MetricsSyncFlow
	insightsFlow businessflow.InsightsImportFlow
	validator    *validator.Validate
}

// NewSyncHandler creates a new sync handler.
func NewSyncHandler(syncFlow businessflow.MetricsSyncFlow, insightsFlow businessflow.InsightsImportFlow) *SyncHandler {
	return &SyncHandler{
		syncFlow:     syncFlow,
		insightsFlow: insightsFlow,
		validator:    validator.New(),
	}
}

func (h *SyncHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *SyncHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// SyncMeta triggers a Meta synchronization run.
// @Summary Sync Meta metrics
// @Description Run metric synchronization for all active Meta integrations (authenticated)
// @Tags Sync
// @Accept json
// @Produce json
// @Param request body dto.SyncRequest false "Optional window override"
// @Success 200 {object} dto.APIResponse{data=dto.SyncSummaryResponse} "Run completed"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 409 {object} dto.APIResponse "Sync already running"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/sync/meta [post]
func (h *SyncHandler) SyncMeta(c fiber.Ctx) error {
	return h.runSync(c, models.PlatformMeta, "/api/v1/sync/meta")
}

// SyncGoogleAds triggers a Google Ads synchronization run.
// @Summary Sync Google Ads metrics
// @Description Run metric synchronization for all active Google Ads integrations (authenticated)
// @Tags Sync
// @Accept json
// @Produce json
// @Param request body dto.SyncRequest false "Optional window override"
// @Success 200 {object} dto.APIResponse{data=dto.SyncSummaryResponse} "Run completed"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 409 {object} dto.APIResponse "Sync already running"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/sync/google-ads [post]
func (h *SyncHandler) SyncGoogleAds(c fiber.Ctx) error {
	return h.runSync(c, models.PlatformGoogleAds, "/api/v1/sync/google-ads")
}

// SyncTikTok triggers a TikTok synchronization run.
// @Summary Sync TikTok metrics
// @Description Run metric synchronization for all active TikTok integrations (authenticated)
// @Tags Sync
// @Accept json
// @Produce json
// @Param request body dto.SyncRequest false "Optional window override"
// @Success 200 {object} dto.APIResponse{data=dto.SyncSummaryResponse} "Run completed"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 409 {object} dto.APIResponse "Sync already running"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/sync/tiktok-ads [post]
func (h *SyncHandler) SyncTikTok(c fiber.Ctx) error {
	return h.runSync(c, models.PlatformTikTokAds, "/api/v1/sync/tiktok-ads")
}

// runSync executes one synchronization run for a platform. A run whose
// summary carries integration errors is still HTTP 200; only a run-level
// failure, listing the integrations, is a 500.
func (h *SyncHandler) runSync(c fiber.Ctx, platform models.Platform, endpoint string) error {
	window, err := h.parseWindow(c)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid sync window", "INVALID_WINDOW", err.Error())
	}

	summary, err := h.syncFlow.SyncPlatform(h.createRequestContext(c, endpoint, 10*time.Minute), platform, window)
	if err != nil {
		if businessflow.IsPlatformNotSupported(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Platform is not supported", "PLATFORM_NOT_SUPPORTED", err.Error())
		}
		if businessflow.IsSyncAlreadyRunning(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "A sync run is already in progress", "SYNC_ALREADY_RUNNING", nil)
		}
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list integrations", "INTEGRATION_LISTING_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, summary.Message, summary)
}

// ImportMetaInsights triggers a Meta ad-level insights import run.
// @Summary Import Meta ad insights
// @Description Import ad-level breakdown insights for all active Meta integrations (authenticated)
// @Tags Sync
// @Accept json
// @Produce json
// @Param request body dto.SyncRequest false "Optional window override"
// @Success 200 {object} dto.APIResponse{data=dto.InsightsImportResponse} "Run completed"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/sync/meta/insights [post]
func (h *SyncHandler) ImportMetaInsights(c fiber.Ctx) error {
	window, err := h.parseWindow(c)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid sync window", "INVALID_WINDOW", err.Error())
	}

	res, err := h.insightsFlow.ImportMetaInsights(h.createRequestContext(c, "/api/v1/sync/meta/insights", 15*time.Minute), window)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list integrations", "INTEGRATION_LISTING_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, res.Message, res)
}

// LastSummary returns the cached summary of the most recent run.
// @Summary Last sync summary
// @Description Return the cached summary of the last synchronization run for a platform (authenticated)
// @Tags Sync
// @Produce json
// @Param platform path string true "Platform" Enums(meta, google_ads, tiktok_ads)
// @Success 200 {object} dto.APIResponse{data=dto.SyncSummaryResponse} "Retrieved"
// @Failure 400 {object} dto.APIResponse "Unknown platform"
// @Failure 404 {object} dto.APIResponse "No cached summary"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/sync/{platform}/last [get]
func (h *SyncHandler) LastSummary(c fiber.Ctx) error {
	platform := models.Platform(c.Params("platform"))
	if !platform.Valid() {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Platform is not supported", "PLATFORM_NOT_SUPPORTED", nil)
	}

	summary, err := h.syncFlow.LastSummary(h.createRequestContext(c, "/api/v1/sync/"+platform.String()+"/last", 30*time.Second), platform)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load last summary", "SUMMARY_LOAD_FAILED", nil)
	}
	if summary == nil {
		return h.ErrorResponse(c, fiber.StatusNotFound, "No summary cached for platform", "SUMMARY_NOT_FOUND", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Last sync summary retrieved", summary)
}

// parseWindow reads and validates the optional window override
func (h *SyncHandler) parseWindow(c fiber.Ctx) (*services.DateRange, error) {
	if len(c.Body()) == 0 {
		return nil, nil
	}

	var req dto.SyncRequest
	if err := c.Bind().JSON(&req); err != nil {
		return nil, err
	}
	if err := h.validator.Struct(&req); err != nil {
		return nil, err
	}
	if req.Since == nil || req.Until == nil {
		return nil, nil
	}

	window, err := businessflow.ParseWindow(*req.Since, *req.Until)
	if err != nil {
		return nil, err
	}
	return &window, nil
}

func (h *SyncHandler) createRequestContext(c fiber.Ctx, endpoint string, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, timeout)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)
	if userID, ok := c.Locals("user_id").(uint); ok && userID != 0 {
		ctx = context.WithValue(ctx, utils.UserIDKey, userID)
	}
	return ctx
}
