package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Time
		ok    bool
	}{
		{
			name:  "rfc3339 utc",
			input: "2024-01-01T07:00:00Z",
			want:  time.Date(2024, 1, 1, 7, 0, 0, 0, time.UTC),
			ok:    true,
		},
		{
			name:  "naive value is utc",
			input: "2024-01-01T07:00:00",
			want:  time.Date(2024, 1, 1, 7, 0, 0, 0, time.UTC),
			ok:    true,
		},
		{
			name:  "microseconds truncated",
			input: "2024-01-01T07:00:00.123456",
			want:  time.Date(2024, 1, 1, 7, 0, 0, 123_000_000, time.UTC),
			ok:    true,
		},
		{
			name:  "offset converted to utc",
			input: "2024-01-01T13:00:00.500+07:00",
			want:  time.Date(2024, 1, 1, 6, 0, 0, 500_000_000, time.UTC),
			ok:    true,
		},
		{
			name:  "space separated",
			input: "2024-01-01 07:00:00",
			want:  time.Date(2024, 1, 1, 7, 0, 0, 0, time.UTC),
			ok:    true,
		},
		{
			name:  "bare date",
			input: "2024-03-05",
			want:  time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
			ok:    true,
		},
		{name: "empty", input: "", ok: false},
		{name: "null literal", input: "null", ok: false},
		{name: "garbage", input: "next tuesday", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseTimestamp(tt.input)
			require.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, tt.want.Equal(got), "want %s got %s", tt.want, got)
				assert.Equal(t, time.UTC, got.Location())
			}
		})
	}
}

func TestParseTimestampPtr(t *testing.T) {
	assert.Nil(t, ParseTimestampPtr("not a time"))
	require.NotNil(t, ParseTimestampPtr("2024-01-01T00:00:00Z"))
}

func TestFormatTimestamp(t *testing.T) {
	loc := time.FixedZone("WIB", 7*3600)
	got := FormatTimestamp(time.Date(2024, 1, 1, 13, 0, 0, 0, loc))
	assert.Equal(t, "2024-01-01T06:00:00.000Z", got)
}

func TestMock(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMock(start)
	assert.Equal(t, start, m.Now())

	m.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), m.Now())

	m.Set(start)
	assert.Equal(t, start, m.Now())
}
