package scheduledjob

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leakwatch/gateway/pkg/domain/shared"
	"github.com/leakwatch/gateway/pkg/domain/timefilter"
)

func TestNormalizeKeywords(t *testing.T) {
	got := NormalizeKeywords([]string{" bank.com", "", "shop.io", "bank.com ", "  ", "café.fr", "café.fr"})
	assert.Equal(t, []string{"bank.com", "shop.io", "café.fr"}, got)
}

func TestRequestNormalize(t *testing.T) {
	req := Request{
		Name:       " Daily Banking Scan ",
		Keywords:   []string{"bank.com"},
		Schedule:   "0 6 * * *",
		TimeFilter: "24h",
	}
	require.NoError(t, req.Normalize())
	assert.Equal(t, "Daily Banking Scan", req.Name)
	assert.Equal(t, "D1", req.TimeFilter)
	assert.Equal(t, DefaultTimezone, req.Timezone)
	assert.True(t, req.ShouldRunImmediately())

	no := false
	req.RunImmediately = &no
	require.NoError(t, req.Normalize())
	assert.False(t, req.ShouldRunImmediately())
}

func TestRequestNormalizeErrors(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{"missing name", Request{Keywords: []string{"a"}, Schedule: "0 * * * *"}},
		{"blank keywords", Request{Name: "x", Keywords: []string{" ", ""}, Schedule: "0 * * * *"}},
		{"missing schedule", Request{Name: "x", Keywords: []string{"a"}}},
		{"bad time filter", Request{Name: "x", Keywords: []string{"a"}, Schedule: "0 * * * *", TimeFilter: "2h"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Normalize()
			require.Error(t, err)
			assert.True(t, shared.IsValidation(err))
		})
	}
}

func TestPauseResume(t *testing.T) {
	now := time.Date(2024, 1, 1, 7, 0, 0, 0, time.UTC)
	j, err := New("s-1", Request{Name: "n", Keywords: []string{"a"}, Schedule: DailySix}, now)
	require.NoError(t, err)
	assert.True(t, j.IsActive)
	assert.Equal(t, timefilter.D1, j.TimeFilter)

	next := now.Add(time.Hour)
	j.NextRun = &next
	j.Pause(now)
	assert.False(t, j.IsActive)
	assert.Nil(t, j.NextRun)

	j.Resume(now)
	assert.True(t, j.IsActive)
}

func TestScheduledJobJSON(t *testing.T) {
	payload := `{
		"id": "0b8f",
		"name": "Daily Banking Scan",
		"keywords": ["bank.com", "bank.com", " "],
		"time_filter": "bogus",
		"schedule": "0 6 * * *",
		"timezone": "UTC",
		"is_active": false,
		"next_run": "2024-01-02T06:00:00",
		"last_run": "2024-01-01T06:00:00.123456+00:00",
		"created_at": "2023-12-01T00:00:00Z",
		"updated_at": "garbage",
		"total_runs": 3,
		"successful_runs": 2,
		"last_credentials": 11
	}`

	var j ScheduledJob
	require.NoError(t, json.Unmarshal([]byte(payload), &j))
	assert.Equal(t, []string{"bank.com"}, j.Keywords)
	assert.Equal(t, timefilter.D1, j.TimeFilter)
	require.NotNil(t, j.NextRun)
	require.NotNil(t, j.LastRun)
	assert.True(t, j.UpdatedAt.IsZero())
	assert.Equal(t, Stats{TotalRuns: 3, SuccessfulRuns: 2, LastCredentials: 11}, j.Stats)

	out, err := json.Marshal(j)
	require.NoError(t, err)
	var back map[string]any
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Nil(t, back["next_run"], "paused definitions never expose a next run")
}

func TestNewView(t *testing.T) {
	now := time.Date(2024, 1, 1, 7, 0, 0, 0, time.UTC)
	j := &ScheduledJob{ID: "s-1", Name: "n", Schedule: DailySix, Timezone: "UTC", IsActive: true}

	v := NewView(j, now)
	assert.Nil(t, v.NextRun)
	require.NotNil(t, v.PredictedNext)
	assert.Equal(t, "2024-01-02T06:00:00.000Z", *v.PredictedNext)
	assert.Equal(t, SourcePredicted, v.NextRunSource)
	assert.True(t, v.Predictable)
	assert.Nil(t, v.SuccessRate)
	assert.Equal(t, []string{}, v.Keywords)

	j.IsActive = false
	stale := now.Add(time.Hour)
	j.NextRun = &stale
	v = NewView(j, now)
	assert.Nil(t, v.NextRun)
	assert.Nil(t, v.PredictedNext)
	assert.Empty(t, v.NextRunSource)
}
