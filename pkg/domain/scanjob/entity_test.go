package scanjob

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 1, 7, 0, 0, 0, time.UTC)

func jobIn(t *testing.T, s Status) *ScanJob {
	t.Helper()
	j, err := New("job-1", JobTypeSingle, "bank scan", "bank.com", t0)
	require.NoError(t, err)
	j.setStatus(s)
	return j
}

func TestNew(t *testing.T) {
	j, err := New("job-1", JobTypeMulti, "", "a.com,b.com", t0)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, j.Status)
	assert.Equal(t, t0, j.CreatedAt)

	_, err = New("", JobTypeSingle, "", "a.com", t0)
	assert.Error(t, err)
	_, err = New("x", JobType("bogus"), "", "a.com", t0)
	assert.Error(t, err)
	_, err = New("x", JobTypeSingle, "", "", t0)
	assert.Error(t, err)
}

func TestPauseOnlyFromCollecting(t *testing.T) {
	for _, s := range AllStatuses() {
		t.Run(string(s), func(t *testing.T) {
			j := jobIn(t, s)
			err := j.Pause()
			if s == StatusCollecting {
				require.NoError(t, err)
				assert.Equal(t, StatusPaused, j.Status)
				assert.True(t, j.PauseRequested)
				return
			}
			assert.Error(t, err)
			assert.Equal(t, s, j.Status, "rejected pause must not change status")
		})
	}
}

func TestResumeOnlyFromPaused(t *testing.T) {
	for _, s := range AllStatuses() {
		t.Run(string(s), func(t *testing.T) {
			j := jobIn(t, s)
			err := j.Resume()
			if s == StatusPaused {
				require.NoError(t, err)
				assert.Equal(t, StatusCollecting, j.Status)
				return
			}
			assert.True(t, errors.Is(err, ErrNotPaused))
			assert.Equal(t, s, j.Status)
		})
	}
}

func TestCancel(t *testing.T) {
	t.Run("queued is cancelled immediately", func(t *testing.T) {
		j := jobIn(t, StatusQueued)
		require.NoError(t, j.Cancel(t0))
		assert.Equal(t, StatusCancelled, j.Status)
		assert.True(t, j.CancelRequested)
		require.NotNil(t, j.CompletedAt)
	})

	t.Run("collecting moves to cancelling", func(t *testing.T) {
		j := jobIn(t, StatusCollecting)
		require.NoError(t, j.Cancel(t0))
		assert.Equal(t, StatusCancelling, j.Status)
		assert.True(t, j.CancelRequested)
		assert.Nil(t, j.CompletedAt)
	})

	t.Run("completed is rejected unchanged", func(t *testing.T) {
		j := jobIn(t, StatusCompleted)
		assert.ErrorIs(t, j.Cancel(t0), ErrAlreadyFinished)
		assert.Equal(t, StatusCompleted, j.Status)
		assert.False(t, j.CancelRequested)
	})

	t.Run("parsing is non-cancellable", func(t *testing.T) {
		j := jobIn(t, StatusParsing)
		assert.ErrorIs(t, j.Cancel(t0), ErrNonCancellable)
		assert.Equal(t, StatusParsing, j.Status)
	})
}

func TestLifecycle(t *testing.T) {
	j := jobIn(t, StatusQueued)
	require.NoError(t, j.Start(t0))
	require.NoError(t, j.Advance(StatusParsing, t0))
	require.NoError(t, j.Advance(StatusUpserting, t0))
	require.NoError(t, j.Advance(StatusCompleted, t0.Add(90*time.Second)))

	require.NotNil(t, j.Duration())
	assert.InDelta(t, 90.0, *j.Duration(), 0.001)
	assert.Error(t, j.Advance(StatusCollecting, t0))
}

func TestFail(t *testing.T) {
	j := jobIn(t, StatusCollecting)
	require.NoError(t, j.Fail("upstream quota exceeded", t0))
	assert.Equal(t, StatusFailed, j.Status)
	require.NotNil(t, j.ErrorMessage)
	assert.Equal(t, "upstream quota exceeded", *j.ErrorMessage)
}

func TestParseRate(t *testing.T) {
	tests := []struct {
		raw, parsed int
		want        float64
	}{
		{0, 0, 0},
		{0, 10, 0},
		{100, 50, 50},
		{100, 100, 100},
		{100, 250, 100},
		{3, 1, 100.0 / 3},
	}
	for _, tt := range tests {
		j := &ScanJob{TotalRaw: tt.raw, TotalParsed: tt.parsed}
		assert.InDelta(t, tt.want, j.ParseRate(), 1e-9)
		assert.LessOrEqual(t, j.ParseRate(), 100.0)
		assert.LessOrEqual(t, j.DisplayParsed(), tt.raw)
	}
}

func TestUnmarshalAuthorityJob(t *testing.T) {
	payload := `{
		"id": "7f1c",
		"job_type": "intelx_single",
		"name": null,
		"query": "bank.com",
		"status": "running",
		"cancel_requested": false,
		"total_raw": 10,
		"total_parsed": 12,
		"total_new": -3,
		"created_at": "2024-01-01T07:00:00.123456",
		"started_at": "2024-01-01T07:00:05Z",
		"completed_at": null,
		"duration_seconds": null
	}`

	var j ScanJob
	require.NoError(t, json.Unmarshal([]byte(payload), &j))
	assert.Equal(t, StatusCollecting, j.Status)
	assert.Equal(t, "running", j.RawStatus)
	assert.Equal(t, 0, j.TotalNew)
	assert.Equal(t, time.Date(2024, 1, 1, 7, 0, 0, 123_000_000, time.UTC), j.CreatedAt)
	require.NotNil(t, j.StartedAt)
	assert.Nil(t, j.CompletedAt)
	assert.Nil(t, j.Duration())

	out, err := json.Marshal(j)
	require.NoError(t, err)

	var view map[string]any
	require.NoError(t, json.Unmarshal(out, &view))
	assert.Equal(t, "collecting", view["status"])
	assert.Equal(t, "running", view["raw_status"])
	assert.Equal(t, float64(10), view["total_parsed"])
	assert.Equal(t, float64(100), view["parse_rate"])
	assert.Equal(t, false, view["is_terminal"])
}

func TestUnmarshalUnknownStatus(t *testing.T) {
	var j ScanJob
	require.NoError(t, json.Unmarshal([]byte(`{"id":"1","status":"archived"}`), &j))
	assert.Equal(t, StatusUnknown, j.Status)
	assert.Equal(t, "archived", j.RawStatus)
}
