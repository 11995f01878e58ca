package handlers

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/app/dto"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/app/services"
	businessflow "github.com/techiemaya-admin/lad-feature-campaigns-sub003/business_flow"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/utils"
	"go.uber.org/zap"
)

// WebhookHandlerInterface defines the contract for provider webhook handlers
type WebhookHandlerInterface interface {
	LinkedInConnections(c fiber.Ctx) error
}

// WebhookHandler receives provider push notifications
type WebhookHandler struct {
	reconciler businessflow.AcceptanceReconcileFlow
	validator  *validator.Validate
	clock      utils.Clock
	logger     *zap.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(reconciler businessflow.AcceptanceReconcileFlow, clock utils.Clock, logger *zap.Logger) *WebhookHandler {
	if clock == nil {
		clock = utils.SystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{
		reconciler: reconciler,
		validator:  validator.New(),
		clock:      clock,
		logger:     logger.Named("webhook_handler"),
	}
}

// LinkedInConnections handles accepted connections pushed by the LinkedIn provider.
// Each connection goes through the same handler the reconciler uses, so a
// connection seen by both is recorded once.
// @Router /api/v1/webhooks/linkedin/connections [post]
func (h *WebhookHandler) LinkedInConnections(c fiber.Ctx) error {
	tenant, ok := tenantID(c)
	if !ok {
		return ErrorResponse(c, fiber.StatusUnauthorized, "Tenant not found in context", "MISSING_TENANT", nil)
	}

	var req dto.LinkedInConnectionsWebhookRequest
	if err := c.Bind().JSON(&req); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	req.TenantID = tenant

	if err := h.validator.Struct(&req); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors(err))
	}

	ctx, cancel := requestContext(c, "/api/v1/webhooks/linkedin/connections", defaultRequestTimeout)
	defer cancel()

	resp := dto.LinkedInConnectionsWebhookResponse{Received: len(req.Connections)}
	for _, in := range req.Connections {
		conn := services.Connection{
			ProfileURL:  in.ProfileURL,
			ProviderID:  in.ProviderID,
			Name:        in.Name,
			ConnectedAt: h.clock(),
		}
		if in.ConnectedAt != nil {
			conn.ConnectedAt = in.ConnectedAt.UTC()
		}

		outcome, err := h.reconciler.HandleAcceptedConnection(ctx, tenant, conn)
		if err != nil {
			resp.Failed++
			h.logger.Error("failed to handle accepted connection",
				zap.String("tenant_id", tenant),
				zap.String("profile_url", in.ProfileURL),
				zap.Error(err))
			continue
		}
		if outcome.Matched {
			resp.Matched++
		}
		if outcome.Recorded {
			resp.Accepted++
		}
		if outcome.Unblocked {
			resp.Unblocked++
		}
	}

	if resp.Failed > 0 && resp.Failed == resp.Received {
		return ErrorResponse(c, fiber.StatusInternalServerError, "Failed to handle connections", "WEBHOOK_HANDLING_FAILED", resp)
	}
	return SuccessResponse(c, fiber.StatusOK, "Connections handled", resp)
}
