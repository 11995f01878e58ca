// Package middleware contains HTTP middleware functions for request processing
package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/app/dto"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/app/services"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/utils"
)

// AuthMiddleware handles service token validation for protected endpoints
type AuthMiddleware struct {
	tokenService services.TokenService
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(tokenService services.TokenService) *AuthMiddleware {
	return &AuthMiddleware{
		tokenService: tokenService,
	}
}

// Authenticate validates the bearer token, requires scope when non-empty and
// stores the token's tenant for downstream handlers.
func (m *AuthMiddleware) Authenticate(scope string) fiber.Handler {
	return func(c fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return unauthorized(c, "Authorization header is required", "MISSING_AUTHORIZATION_HEADER")
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			return unauthorized(c, "Invalid authorization header format. Expected 'Bearer <token>'", "INVALID_AUTHORIZATION_FORMAT")
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if token == "" {
			return unauthorized(c, "Access token is required", "MISSING_ACCESS_TOKEN")
		}

		claims, err := m.tokenService.ValidateToken(token)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrTokenExpired):
				return unauthorized(c, "Access token has expired", "TOKEN_EXPIRED")
			case errors.Is(err, services.ErrTokenTenantAbsent):
				return unauthorized(c, "Access token carries no tenant", "TOKEN_TENANT_MISSING")
			default:
				return unauthorized(c, "Invalid access token", "TOKEN_INVALID")
			}
		}

		if scope != "" && !claims.HasScope(scope) {
			return c.Status(fiber.StatusForbidden).JSON(dto.APIResponse{
				Success: false,
				Message: "Access token lacks the required scope",
				Error: dto.ErrorDetail{
					Code:    "INSUFFICIENT_SCOPE",
					Details: fiber.Map{"required_scope": scope},
				},
			})
		}

		c.Locals(utils.TenantIDKey, claims.TenantID)
		c.Locals("token_claims", claims)

		return c.Next()
	}
}

func unauthorized(c fiber.Ctx, message, code string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code: code,
		},
	})
}
