package common

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIResponse_JSON(t *testing.T) {
	data, err := json.Marshal(APIResponse{Success: true, Data: map[string]string{"task_id": "t1"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"data":{"task_id":"t1"}}`, string(data))
}

func TestErrorResponse_JSON(t *testing.T) {
	data, err := json.Marshal(ErrorResponse{Code: "ValidationError", Message: "参数错误"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":false,"code":"ValidationError","message":"参数错误"}`, string(data))

	data, err = json.Marshal(ErrorResponse{Message: "boom"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":false,"message":"boom"}`, string(data))
}
