package amber

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/powersync/powersync/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_CurrentPrices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/sites/site1/prices/current", r.URL.Path)
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`[
			{"channelType":"general","perKwh":32.5},
			{"channelType":"feedIn","perKwh":-5.0},
			{"channelType":"controlledLoad","perKwh":18.0}
		]`))
	}))
	defer server.Close()

	c := New(server.URL, "site1", "token", nil)
	prices, err := c.CurrentPrices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, device.Prices{ImportPerKWh: 0.325, ExportPerKWh: 0.05}, prices)
}

func TestClient_CurrentPrices_Empty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	c := New(server.URL, "site1", "token", nil)
	_, err := c.CurrentPrices(context.Background())
	assert.Error(t, err)
}
