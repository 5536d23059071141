package scanjob

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want Status
	}{
		{"queued", StatusQueued},
		{"pending", StatusQueued},
		{"running", StatusCollecting},
		{" Collecting ", StatusCollecting},
		{"PAUSED", StatusPaused},
		{"parsing", StatusParsing},
		{"upserting", StatusUpserting},
		{"cancelling", StatusCancelling},
		{"completed", StatusCompleted},
		{"failed", StatusFailed},
		{"cancelled", StatusCancelled},
		{"archived", StatusUnknown},
		{"", StatusUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseStatus(tt.raw))
		})
	}
}

func TestStatusPredicates(t *testing.T) {
	for _, s := range AllStatuses() {
		t.Run(string(s), func(t *testing.T) {
			assert.True(t, s.IsKnown())
			assert.Equal(t, s == StatusCollecting, s.CanPause())
			assert.Equal(t, s == StatusPaused, s.CanResume())
			assert.Equal(t, s == StatusQueued || s == StatusCollecting, s.CanCancel())
			assert.NotEqual(t, s.IsTerminal(), s.IsActive())
		})
	}

	assert.False(t, StatusUnknown.IsKnown())
	assert.False(t, StatusUnknown.IsActive())
	assert.False(t, StatusUnknown.IsTerminal())
	assert.True(t, ParseStatus("running").CanCancel(), "legacy running alias is cancellable")
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusQueued, StatusCollecting))
	assert.True(t, CanTransition(StatusCollecting, StatusPaused))
	assert.True(t, CanTransition(StatusPaused, StatusCollecting))
	assert.True(t, CanTransition(StatusUpserting, StatusCompleted))
	assert.True(t, CanTransition(StatusParsing, StatusCancelling))
	assert.True(t, CanTransition(StatusCancelling, StatusCancelled))

	assert.False(t, CanTransition(StatusQueued, StatusCompleted))
	assert.False(t, CanTransition(StatusParsing, StatusPaused))
	for _, terminal := range []Status{StatusCompleted, StatusFailed, StatusCancelled} {
		for _, to := range AllStatuses() {
			assert.False(t, CanTransition(terminal, to), "%s -> %s", terminal, to)
		}
	}
}

func TestJobTypeIsValid(t *testing.T) {
	assert.True(t, JobTypeSingle.IsValid())
	assert.True(t, JobTypeScheduled.IsValid())
	assert.False(t, JobType("torrent").IsValid())
}
