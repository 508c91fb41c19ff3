package location

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Arnonfr/urbanito/config"
	"github.com/Arnonfr/urbanito/internal/types"
)

func newTestClient(serverURL string) *Client {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	return NewClient(config.GatewayConfig{
		GeocodeBaseURL: serverURL,
		PlacesBaseURL:  serverURL,
		APIKey:         "test-token",
		Timeout:        2 * time.Second,
	}, logger)
}

const lisboaFeature = `{
	"features": [{
		"properties": {
			"name": "Lisboa",
			"name_preferred": "Lisbon",
			"full_address": "Lisboa, Portugal",
			"coordinates": {"latitude": 38.7223, "longitude": -9.1393},
			"context": {"country": {"name": "Portugal"}}
		}
	}]
}`

func TestGeocodeCity_ResolvesWithAltName(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/forward", r.URL.Path)
		assert.Equal(t, "Lisboa", r.URL.Query().Get("q"))
		assert.Equal(t, "test-token", r.URL.Query().Get("access_token"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(lisboaFeature))
	}))
	defer server.Close()

	city, err := newTestClient(server.URL).GeocodeCity(context.Background(), "Lisboa")
	require.NoError(t, err)
	assert.Equal(t, "Lisboa", city.Name)
	assert.Equal(t, "Lisbon", city.AltName)
	assert.Equal(t, "Portugal", city.Country)
	assert.InDelta(t, 38.7223, city.Latitude, 0.0001)
}

func TestGeocodeCity_NoResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"features": []}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).GeocodeCity(context.Background(), "Atlantis")
	assert.Error(t, err)
}

func TestReverseGeocode_RejectsInvalidCoordinates(t *testing.T) {
	_, err := newTestClient("http://unused").ReverseGeocode(context.Background(), 91.0, 0)
	assert.Error(t, err)
}

func TestReverseGeocode_ResolvesCity(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reverse", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(lisboaFeature))
	}))
	defer server.Close()

	city, err := newTestClient(server.URL).ReverseGeocode(context.Background(), 38.72, -9.14)
	require.NoError(t, err)
	assert.Equal(t, "Lisboa", city.Name)
}

func TestReverseGeocode_StreetFeatureYieldsCityAndStreet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"features": [{
				"properties": {
					"name": "Rua Augusta",
					"coordinates": {"latitude": 38.7106, "longitude": -9.1372},
					"context": {
						"country": {"name": "Portugal"},
						"place": {"name": "Lisboa"}
					}
				}
			}]
		}`))
	}))
	defer server.Close()

	city, err := newTestClient(server.URL).ReverseGeocode(context.Background(), 38.7106, -9.1372)
	require.NoError(t, err)
	assert.Equal(t, "Lisboa", city.Name)
	assert.Equal(t, "Rua Augusta", city.Street)
}

func TestLookupPlace_BiasedByProximity(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Torre de Belém", r.URL.Query().Get("q"))
		assert.NotEmpty(t, r.URL.Query().Get("proximity"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"features": [{
				"properties": {
					"name": "Torre de Belém",
					"full_address": "Av. Brasília, Lisboa",
					"coordinates": {"latitude": 38.6916, "longitude": -9.2159}
				}
			}]
		}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	near := &types.CityContext{Name: "Lisboa", Latitude: 38.7223, Longitude: -9.1393}
	place, err := client.LookupPlace(context.Background(), "Torre de Belém", near)
	require.NoError(t, err)
	assert.Equal(t, "Torre de Belém", place.Name)
	assert.InDelta(t, -9.2159, place.Longitude, 0.0001)
}

func TestGateway_ProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).GeocodeCity(context.Background(), "Lisboa")
	assert.Error(t, err)
}
