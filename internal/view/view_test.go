package view

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateResponse(t *testing.T) {
	res := CreateResponse[any](nil, errors.New("boom"), map[string]string{"id": "1"}, "failed")
	assert.Equal(t, "boom", res.Error)
	assert.Equal(t, "failed", res.Message)

	raw, err := json.Marshal(CreateResponse("ok", nil, nil, ""))
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":"ok"}`, string(raw))
}
