package timespec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 10, 29, 14, 0, 0, 0, time.UTC)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		want    time.Time
		wantErr string
	}{
		{"duration", "1h30m", now.Add(-90 * time.Minute), ""},
		{"seconds", "45s", now.Add(-45 * time.Second), ""},
		{"rfc3339", "2025-10-29T13:00:00Z", time.Date(2025, 10, 29, 13, 0, 0, 0, time.UTC), ""},
		{"rfc3339 fractional", "2025-10-29T13:00:00.250Z", time.Date(2025, 10, 29, 13, 0, 0, 250e6, time.UTC), ""},
		{"empty", "", time.Time{}, "empty time specification"},
		{"negative", "-5m", time.Time{}, "negative duration"},
		{"garbage", "yesterday", time.Time{}, "invalid time specification"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.spec, now)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %v, want %v", got, tt.want)
		})
	}
}

func TestParseRange(t *testing.T) {
	since, until, err := ParseRange("2h", "1h", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-2*time.Hour), since)
	assert.Equal(t, now.Add(-time.Hour), until)

	since, until, err = ParseRange("", "", now)
	require.NoError(t, err)
	assert.True(t, since.IsZero())
	assert.True(t, until.IsZero())

	_, _, err = ParseRange("1h", "2h", now)
	assert.EqualError(t, err, "--since must be before --until")

	_, _, err = ParseRange("soon", "", now)
	assert.ErrorContains(t, err, "invalid --since")

	_, _, err = ParseRange("", "later", now)
	assert.ErrorContains(t, err, "invalid --until")
}
