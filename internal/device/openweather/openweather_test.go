package openweather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/powersync/powersync/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		conditionID int
		want        device.WeatherCondition
	}{
		{name: "thunderstorm", conditionID: 211, want: device.Cloudy},
		{name: "drizzle", conditionID: 301, want: device.Cloudy},
		{name: "rain", conditionID: 501, want: device.Cloudy},
		{name: "snow", conditionID: 601, want: device.Cloudy},
		{name: "mist", conditionID: 701, want: device.PartlySunny},
		{name: "clear", conditionID: 800, want: device.Sunny},
		{name: "few clouds", conditionID: 801, want: device.PartlySunny},
		{name: "scattered clouds", conditionID: 802, want: device.PartlySunny},
		{name: "broken clouds", conditionID: 803, want: device.Cloudy},
		{name: "overcast", conditionID: 804, want: device.Cloudy},
		{name: "unknown", conditionID: 999, want: device.PartlySunny},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.conditionID))
		})
	}
}

func TestClient_CurrentCondition(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/2.5/weather", r.URL.Path)
		assert.Equal(t, "secret", r.URL.Query().Get("appid"))
		assert.Equal(t, "-27.4698", r.URL.Query().Get("lat"))
		_, _ = w.Write([]byte(`{"weather":[{"id":800,"main":"Clear"}],"main":{"temp":25.4}}`))
	}))
	defer server.Close()

	c := New(server.URL, "secret", -27.4698, 153.0251, nil)
	condition, err := c.CurrentCondition(context.Background())
	require.NoError(t, err)
	assert.Equal(t, device.Sunny, condition)
}
