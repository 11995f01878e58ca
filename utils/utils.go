// Package utils provides utility functions for the application.
package utils

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

func ToPtr[T any](v T) *T {
	return &v
}

func IsTrue(b *bool) bool {
	return b != nil && *b
}

// Deref returns the pointed value or the zero value
func Deref[T any](v *T) T {
	if v == nil {
		var zero T
		return zero
	}
	return *v
}

// ParseUUID parses a UUID string
func ParseUUID(s string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid uuid %q: %w", s, err)
	}
	return parsed, nil
}

// FirstNonEmpty returns the first non-blank string
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// StepIdempotencyKey is the credit key shared by every attempt of one step for one lead
func StepIdempotencyKey(campaignID, leadID, stepID uint) string {
	return fmt.Sprintf("step:%d:%d:%d", campaignID, leadID, stepID)
}
