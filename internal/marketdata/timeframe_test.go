package marketdata

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeframe(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"1m", time.Minute},
		{"15m", 15 * time.Minute},
		{"4h", 4 * time.Hour},
		{"1d", 24 * time.Hour},
		{"1w", 7 * 24 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimeframe(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"", "7m", "1M", "15"} {
		_, err := ParseTimeframe(bad)
		assert.True(t, errors.Is(err, ErrInvalidTimeframe), bad)
	}
}

func TestTimeframesOrdered(t *testing.T) {
	tfs := Timeframes()
	assert.Equal(t, "1m", tfs[0])
	assert.Equal(t, "1w", tfs[len(tfs)-1])
	assert.Len(t, tfs, 12)
}

func TestAlignDown(t *testing.T) {
	ts := time.Date(2024, 5, 16, 13, 47, 12, 0, time.UTC) // Thursday
	assert.Equal(t, time.Date(2024, 5, 16, 13, 45, 0, 0, time.UTC), AlignDown(ts, 15*time.Minute))
	assert.Equal(t, time.Date(2024, 5, 16, 12, 0, 0, 0, time.UTC), AlignDown(ts, 4*time.Hour))
	assert.Equal(t, time.Date(2024, 5, 16, 0, 0, 0, 0, time.UTC), AlignDown(ts, 24*time.Hour))
	assert.Equal(t, time.Date(2024, 5, 13, 0, 0, 0, 0, time.UTC), AlignDown(ts, 7*24*time.Hour))
}
