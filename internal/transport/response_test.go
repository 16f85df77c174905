package transport

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOkResponseMarshalsFlatFields(t *testing.T) {
	resp := OkResponse(map[string]interface{}{"total_posts": float64(3)})
	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, float64(3), out["total_posts"])
	_, hasError := out["error"]
	assert.False(t, hasError)
}

func TestErrorResponseRoundTrip(t *testing.T) {
	resp := ErrorResponse("Invalid userid: bad")
	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded Response
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "error", decoded.Status)
	assert.Equal(t, "Invalid userid: bad", decoded.Error)
	assert.False(t, decoded.IsOk())
}

func TestOkResponseWithWarningsRoundTrip(t *testing.T) {
	resp := OkResponseWithWarnings(map[string]interface{}{"posts": []interface{}{}}, []interface{}{
		map[string]interface{}{"message": "peer unreachable", "subscription": "127.0.0.1:8001"},
	})
	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded Response
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, decoded.IsOk())
	require.Len(t, decoded.Warnings, 1)
	w, ok := decoded.Warnings[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "peer unreachable", w["message"])
	assert.Contains(t, decoded.Data, "posts")
}
