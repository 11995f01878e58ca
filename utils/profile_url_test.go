package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeProfileURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "https://www.linkedin.com/in/jane-doe", "https://www.linkedin.com/in/jane-doe"},
		{"trailing slash", "https://www.linkedin.com/in/jane-doe/", "https://www.linkedin.com/in/jane-doe"},
		{"query and fragment", "https://www.linkedin.com/in/jane-doe?trk=abc#top", "https://www.linkedin.com/in/jane-doe"},
		{"http scheme", "http://linkedin.com/in/jane-doe", "https://www.linkedin.com/in/jane-doe"},
		{"no scheme", "linkedin.com/in/jane-doe/", "https://www.linkedin.com/in/jane-doe"},
		{"upper case", "HTTPS://WWW.LinkedIn.com/in/Jane-Doe", "https://www.linkedin.com/in/jane-doe"},
		{"country subdomain", "https://uk.linkedin.com/in/jane-doe", "https://www.linkedin.com/in/jane-doe"},
		{"whitespace", "  https://www.linkedin.com/in/jane-doe  ", "https://www.linkedin.com/in/jane-doe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeProfileURL(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("empty", func(t *testing.T) {
		_, err := NormalizeProfileURL("   ")
		assert.ErrorIs(t, err, ErrEmptyProfileURL)
	})
}

func TestDayBoundaries(t *testing.T) {
	loc, err := LoadLocation("America/New_York")
	require.NoError(t, err)

	// 03:00 UTC on Jan 10 is still Jan 9 in New York
	now := time.Date(2026, 1, 10, 3, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-01-09", LocalDate(now, loc))
	assert.Equal(t, "2026-01-10", LocalDate(now, time.UTC))

	next := StartOfNextDay(now, loc)
	assert.Equal(t, time.Date(2026, 1, 10, 5, 0, 0, 0, time.UTC), next)

	month := StartOfMonth(now, time.UTC)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), month)
}

func TestEarliestOf(t *testing.T) {
	a := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := a.Add(time.Hour)

	assert.Nil(t, EarliestOf(nil, nil))
	got := EarliestOf(&b, nil, &a)
	require.NotNil(t, got)
	assert.Equal(t, a, *got)
}

func TestStepIdempotencyKey(t *testing.T) {
	assert.Equal(t, "step:1:2:3", StepIdempotencyKey(1, 2, 3))
}
