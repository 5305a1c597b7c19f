package auth

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateUnmarshal(t *testing.T) {
	var body struct {
		ValidUntil Date `json:"valid_until"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"valid_until":"2099-01-01"}`), &body))
	assert.True(t, body.ValidUntil.Equal(time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)))

	require.NoError(t, json.Unmarshal([]byte(`{"valid_until":"2099-01-01T23:30:00-02:00"}`), &body))
	assert.True(t, body.ValidUntil.Equal(time.Date(2099, 1, 2, 0, 0, 0, 0, time.UTC)), body.ValidUntil)

	require.NoError(t, json.Unmarshal([]byte(`{"valid_until":null}`), &body))
	assert.True(t, body.ValidUntil.IsZero())

	err := json.Unmarshal([]byte(`{"valid_until":"01/02/2099"}`), &body)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want YYYY-MM-DD")
}

func TestDateMarshal(t *testing.T) {
	out, err := json.Marshal(map[string]Date{"d": DateOf(time.Date(2026, 3, 10, 22, 0, 0, 0, time.UTC))})
	require.NoError(t, err)
	assert.JSONEq(t, `{"d":"2026-03-10"}`, string(out))

	out, err = json.Marshal(Date{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(out))
}
