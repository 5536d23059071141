package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leakwatch/gateway/pkg/domain/scheduledjob"
)

func TestValidateScheduleRequest(t *testing.T) {
	v := New()

	tests := []struct {
		name       string
		req        scheduledjob.Request
		wantFields []string
	}{
		{
			name: "valid with alias",
			req: scheduledjob.Request{
				Name: "Daily Banking Scan", Keywords: []string{"bank.com"},
				Schedule: "0 6 * * *", TimeFilter: "24h", Timezone: "UTC",
			},
		},
		{
			name: "arbitrary cron is accepted",
			req: scheduledjob.Request{
				Name: "x", Keywords: []string{"a.com"}, Schedule: "*/10 1-5 * * 1-5",
			},
		},
		{
			name:       "missing everything",
			req:        scheduledjob.Request{},
			wantFields: []string{"name", "keywords", "schedule"},
		},
		{
			name: "bad values",
			req: scheduledjob.Request{
				Name: "x", Keywords: []string{" "}, Schedule: "daily at six",
				TimeFilter: "2h", Timezone: "Mars/Olympus",
			},
			wantFields: []string{"keywords", "time_filter", "schedule", "timezone"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.req)
			if len(tt.wantFields) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			verrs, ok := err.(ValidationErrors)
			require.True(t, ok)
			got := make([]string, 0, len(verrs))
			for _, e := range verrs {
				got = append(got, e.Field)
			}
			assert.ElementsMatch(t, tt.wantFields, got)
		})
	}
}

func TestVarJobStatus(t *testing.T) {
	v := New()
	assert.NoError(t, v.Var("running", "job_status"))
	assert.NoError(t, v.Var("completed", "job_status"))
	assert.Error(t, v.Var("archived", "job_status"))
}

func TestToSnakeCase(t *testing.T) {
	assert.Equal(t, "time_filter", toSnakeCase("TimeFilter"))
	assert.Equal(t, "name", toSnakeCase("Name"))
}
