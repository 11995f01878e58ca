// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/app/dto"
	businessflow "github.com/techiemaya-admin/lad-feature-campaigns-sub003/business_flow"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/utils"
)

const defaultRequestTimeout = 30 * time.Second

// ErrorResponse writes a failed APIResponse
func ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

// SuccessResponse writes a successful APIResponse
func SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// tenantID returns the tenant the auth middleware stored for this request
func tenantID(c fiber.Ctx) (string, bool) {
	id, ok := c.Locals(utils.TenantIDKey).(string)
	return id, ok && id != ""
}

// requestContext derives a bounded context carrying request-scoped values
func requestContext(c fiber.Ctx, endpoint string, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(c.Context(), timeout)

	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	if tenant, ok := tenantID(c); ok {
		ctx = context.WithValue(ctx, utils.TenantIDKey, tenant)
	}

	return ctx, cancel
}

func validationErrors(err error) []string {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return []string{err.Error()}
	}
	messages := make([]string, 0, len(ves))
	for _, fe := range ves {
		messages = append(messages, getValidationErrorMessage(fe))
	}
	return messages
}

func getValidationErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return err.Field() + " is required"
	case "uuid":
		return err.Field() + " must be a valid UUID"
	case "timezone":
		return err.Field() + " must be an IANA timezone name"
	case "min":
		return err.Field() + " must contain at least " + err.Param() + " items"
	case "max":
		return err.Field() + " must be at most " + err.Param()
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", err.Field(), err.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", err.Field(), err.Param())
	default:
		return err.Field() + " is invalid"
	}
}

// businessErrorStatus maps a business error code to its HTTP status
func businessErrorStatus(code string) int {
	switch code {
	case "CAMPAIGN_VALIDATION_FAILED", "STEP_CONFIG_INVALID", "CAMPAIGN_UUID_REQUIRED":
		return fiber.StatusBadRequest
	case "CAMPAIGN_ACCESS_DENIED":
		return fiber.StatusForbidden
	case "CAMPAIGN_NOT_FOUND", "LEAD_NOT_FOUND":
		return fiber.StatusNotFound
	case "CAMPAIGN_TRANSITION_INVALID", "CAMPAIGN_NOT_RUNNING", "CAMPAIGN_HAS_NO_STEPS", "CAMPAIGN_BUSY", "LEAD_NOT_ACTIVE":
		return fiber.StatusConflict
	case "QUEUE_NOT_AVAILABLE":
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// businessErrorResponse renders err using the code of its BusinessError
func businessErrorResponse(c fiber.Ctx, err error, fallbackCode, fallbackMessage string) error {
	var be *businessflow.BusinessError
	if !errors.As(err, &be) {
		return ErrorResponse(c, fiber.StatusInternalServerError, fallbackMessage, fallbackCode, nil)
	}
	status := businessErrorStatus(be.Code)
	if status == fiber.StatusInternalServerError {
		return ErrorResponse(c, status, be.Message, be.Code, nil)
	}
	return ErrorResponse(c, status, be.Message, be.Code, errorDetails(be))
}

func errorDetails(be *businessflow.BusinessError) any {
	if be.Err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if errors.As(be.Err, &ves) {
		return validationErrors(ves)
	}
	return be.Err.Error()
}
