package handlers

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/app/dto"
	businessflow "github.com/techiemaya-admin/lad-feature-campaigns-sub003/business_flow"
	"go.uber.org/zap"
)

// CampaignHandlerInterface defines the contract for campaign handlers
type CampaignHandlerInterface interface {
	CreateCampaign(c fiber.Ctx) error
	GetCampaign(c fiber.Ctx) error
	StartCampaign(c fiber.Ctx) error
	PauseCampaign(c fiber.Ctx) error
	StopCampaign(c fiber.Ctx) error
	RunNow(c fiber.Ctx) error
	SendNow(c fiber.Ctx) error
	GetCampaignStats(c fiber.Ctx) error
}

// CampaignHandler handles campaign lifecycle and on-demand trigger requests
type CampaignHandler struct {
	lifecycle businessflow.CampaignLifecycleFlow
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCampaignHandler creates a new campaign handler
func NewCampaignHandler(lifecycle businessflow.CampaignLifecycleFlow, logger *zap.Logger) *CampaignHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CampaignHandler{
		lifecycle: lifecycle,
		validator: validator.New(),
		logger:    logger.Named("campaign_handler"),
	}
}

// CreateCampaign stores a draft campaign with its steps
// @Router /api/v1/campaigns [post]
func (h *CampaignHandler) CreateCampaign(c fiber.Ctx) error {
	tenant, ok := tenantID(c)
	if !ok {
		return ErrorResponse(c, fiber.StatusUnauthorized, "Tenant not found in context", "MISSING_TENANT", nil)
	}

	var req dto.CreateCampaignRequest
	if err := c.Bind().JSON(&req); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	req.TenantID = tenant

	if err := h.validator.Struct(&req); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors(err))
	}

	ctx, cancel := requestContext(c, "/api/v1/campaigns", defaultRequestTimeout)
	defer cancel()

	result, err := h.lifecycle.CreateCampaign(ctx, &req)
	if err != nil {
		h.logFailure("create campaign", tenant, "", err)
		return businessErrorResponse(c, err, "CAMPAIGN_CREATION_FAILED", "Campaign creation failed")
	}

	return SuccessResponse(c, fiber.StatusCreated, "Campaign created successfully", result)
}

// GetCampaign returns one campaign of the tenant
// @Router /api/v1/campaigns/{uuid} [get]
func (h *CampaignHandler) GetCampaign(c fiber.Ctx) error {
	req, ok, err := h.actionRequest(c)
	if !ok {
		return err
	}

	ctx, cancel := requestContext(c, "/api/v1/campaigns/"+req.CampaignUUID, defaultRequestTimeout)
	defer cancel()

	result, err := h.lifecycle.GetCampaign(ctx, req)
	if err != nil {
		return businessErrorResponse(c, err, "CAMPAIGN_LOOKUP_FAILED", "Failed to load campaign")
	}
	return SuccessResponse(c, fiber.StatusOK, "Campaign retrieved successfully", result)
}

// StartCampaign moves a draft or paused campaign to running and queues its first pass
// @Router /api/v1/campaigns/{uuid}/start [post]
func (h *CampaignHandler) StartCampaign(c fiber.Ctx) error {
	return h.transition(c, "start", h.lifecycle.StartCampaign)
}

// PauseCampaign pauses a running campaign
// @Router /api/v1/campaigns/{uuid}/pause [post]
func (h *CampaignHandler) PauseCampaign(c fiber.Ctx) error {
	return h.transition(c, "pause", h.lifecycle.PauseCampaign)
}

// StopCampaign stops a campaign and all of its active leads
// @Router /api/v1/campaigns/{uuid}/stop [post]
func (h *CampaignHandler) StopCampaign(c fiber.Ctx) error {
	return h.transition(c, "stop", h.lifecycle.StopCampaign)
}

// RunNow triggers an immediate processing pass
// @Router /api/v1/campaigns/{uuid}/run [post]
func (h *CampaignHandler) RunNow(c fiber.Ctx) error {
	req, ok, err := h.actionRequest(c)
	if !ok {
		return err
	}

	ctx, cancel := requestContext(c, "/api/v1/campaigns/"+req.CampaignUUID+"/run", defaultRequestTimeout)
	defer cancel()

	result, err := h.lifecycle.RunNow(ctx, req)
	if err != nil {
		h.logFailure("run now", req.TenantID, req.CampaignUUID, err)
		return businessErrorResponse(c, err, "CAMPAIGN_RUN_FAILED", "Failed to run campaign")
	}
	return SuccessResponse(c, fiber.StatusAccepted, result.Message, result)
}

// SendNow executes a lead's current step ahead of its schedule
// @Router /api/v1/campaigns/{uuid}/send-now [post]
func (h *CampaignHandler) SendNow(c fiber.Ctx) error {
	tenant, ok := tenantID(c)
	if !ok {
		return ErrorResponse(c, fiber.StatusUnauthorized, "Tenant not found in context", "MISSING_TENANT", nil)
	}

	var req dto.SendNowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	req.TenantID = tenant
	req.CampaignUUID = c.Params("uuid")

	if err := h.validator.Struct(&req); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors(err))
	}

	ctx, cancel := requestContext(c, "/api/v1/campaigns/"+req.CampaignUUID+"/send-now", defaultRequestTimeout)
	defer cancel()

	result, err := h.lifecycle.SendNow(ctx, &req)
	if err != nil {
		h.logFailure("send now", tenant, req.CampaignUUID, err)
		return businessErrorResponse(c, err, "TASK_ENQUEUE_FAILED", "Failed to send now")
	}
	return SuccessResponse(c, fiber.StatusAccepted, result.Message, result)
}

// GetCampaignStats returns lead and action counters of a campaign
// @Router /api/v1/campaigns/{uuid}/stats [get]
func (h *CampaignHandler) GetCampaignStats(c fiber.Ctx) error {
	req, ok, err := h.actionRequest(c)
	if !ok {
		return err
	}

	ctx, cancel := requestContext(c, "/api/v1/campaigns/"+req.CampaignUUID+"/stats", defaultRequestTimeout)
	defer cancel()

	result, err := h.lifecycle.GetCampaignStats(ctx, req)
	if err != nil {
		return businessErrorResponse(c, err, "CAMPAIGN_STATS_FAILED", "Failed to load campaign statistics")
	}
	return SuccessResponse(c, fiber.StatusOK, "Campaign statistics retrieved successfully", result)
}

type transitionFunc func(ctx context.Context, req *dto.CampaignActionRequest) (*dto.CampaignStatusResponse, error)

func (h *CampaignHandler) transition(c fiber.Ctx, action string, fn transitionFunc) error {
	req, ok, err := h.actionRequest(c)
	if !ok {
		return err
	}

	ctx, cancel := requestContext(c, "/api/v1/campaigns/"+req.CampaignUUID+"/"+action, defaultRequestTimeout)
	defer cancel()

	result, err := fn(ctx, req)
	if err != nil {
		h.logFailure(action+" campaign", req.TenantID, req.CampaignUUID, err)
		return businessErrorResponse(c, err, "CAMPAIGN_TRANSITION_FAILED", "Campaign status change failed")
	}
	return SuccessResponse(c, fiber.StatusOK, result.Message, result)
}

// actionRequest builds and validates the request addressed by the uuid path parameter.
// When ok is false the error response has already been written and err is its write result.
func (h *CampaignHandler) actionRequest(c fiber.Ctx) (req *dto.CampaignActionRequest, ok bool, err error) {
	tenant, found := tenantID(c)
	if !found {
		return nil, false, ErrorResponse(c, fiber.StatusUnauthorized, "Tenant not found in context", "MISSING_TENANT", nil)
	}

	req = &dto.CampaignActionRequest{TenantID: tenant, CampaignUUID: c.Params("uuid")}
	if err := h.validator.Struct(req); err != nil {
		return nil, false, ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors(err))
	}
	return req, true, nil
}

func (h *CampaignHandler) logFailure(action, tenant, campaignUUID string, err error) {
	code := businessflow.ErrorCode(err)
	if businessErrorStatus(code) < fiber.StatusInternalServerError {
		h.logger.Debug(action+" rejected", zap.String("tenant_id", tenant), zap.String("campaign_uuid", campaignUUID), zap.String("code", code))
		return
	}
	h.logger.Error(action+" failed", zap.String("tenant_id", tenant), zap.String("campaign_uuid", campaignUUID), zap.Error(err))
}
