package shared

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseID(t *testing.T) {
	id, err := ParseID("5f1c2a8e-0d7b-4c55-9f0a-6f2b4f1f9a01")
	require.NoError(t, err)
	assert.False(t, id.IsZero())
	assert.Equal(t, "5f1c2a8e-0d7b-4c55-9f0a-6f2b4f1f9a01", id.String())

	_, err = ParseID("run-1")
	assert.Error(t, err)
	assert.True(t, ID{}.IsZero())
}

func TestID_JSONField(t *testing.T) {
	var rec struct {
		ID ID `json:"id"`
	}
	err := json.Unmarshal([]byte(`{"id":"not-a-uuid"}`), &rec)
	assert.Error(t, err)

	require.NoError(t, json.Unmarshal([]byte(`{"id":"5f1c2a8e-0d7b-4c55-9f0a-6f2b4f1f9a01"}`), &rec))
	out, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"5f1c2a8e-0d7b-4c55-9f0a-6f2b4f1f9a01"}`, string(out))
}
