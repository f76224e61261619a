package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwarvesf/treasury-settlement/internal/utils/logger"
)

func TestClient_SendAlert(t *testing.T) {
	var got Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(logger.New("test"))
	err := c.SendAlert(context.Background(), srv.URL, Alert{
		Kind:     "purchase_failed",
		TenantID: "acme",
		Message:  "retries exhausted",
		Details:  map[string]string{"external_payment_id": "pi_1"},
	})
	require.NoError(t, err)

	assert.Equal(t, "purchase_failed", got.Kind)
	assert.Equal(t, "acme", got.TenantID)
	assert.Equal(t, "pi_1", got.Details["external_payment_id"])
	assert.False(t, got.OccurredAt.IsZero())
}

func TestClient_SendAlert_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(logger.New("test"))
	err := c.SendAlert(context.Background(), srv.URL, Alert{Kind: "k", Message: "m"})
	assert.Error(t, err)
}

func TestClient_SendAlert_NoURL(t *testing.T) {
	c := New(logger.New("test"))
	assert.NoError(t, c.SendAlert(context.Background(), "", Alert{Kind: "k"}))
}

func TestClient_CallUptimeWebhook(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	c := New(logger.New("test"))
	c.CallUptimeWebhook(context.Background(), srv.URL)
	c.CallUptimeWebhook(context.Background(), "")

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}
