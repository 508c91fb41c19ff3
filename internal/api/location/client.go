// Package location wraps the external geocoding and place-lookup HTTP APIs.
// Both gateways are opaque to the rest of the system: callers get resolved
// city contexts and places, never raw provider payloads.
package location

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Arnonfr/urbanito/config"
	"github.com/Arnonfr/urbanito/internal/types"
)

var _ Service = (*Client)(nil)

type Service interface {
	GeocodeCity(ctx context.Context, name string) (*types.CityContext, error)
	ReverseGeocode(ctx context.Context, lat, lng float64) (*types.CityContext, error)
	LookupPlace(ctx context.Context, query string, near *types.CityContext) (*types.Place, error)
}

type Client struct {
	logger         *slog.Logger
	httpClient     *http.Client
	geocodeBaseURL string
	placesBaseURL  string
	apiKey         string
}

func NewClient(cfg config.GatewayConfig, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		logger:         logger,
		httpClient:     &http.Client{Timeout: timeout},
		geocodeBaseURL: cfg.GeocodeBaseURL,
		placesBaseURL:  cfg.PlacesBaseURL,
		apiKey:         cfg.APIKey,
	}
}

// Provider payloads are GeoJSON-ish feature collections.
type featureCollection struct {
	Features []feature `json:"features"`
}

type feature struct {
	Properties struct {
		Name        string `json:"name"`
		NamePrefs   string `json:"name_preferred"`
		FullAddress string `json:"full_address"`
		Coordinates struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"coordinates"`
		Context struct {
			Country struct {
				Name string `json:"name"`
			} `json:"country"`
			Place struct {
				Name string `json:"name"`
			} `json:"place"`
			Street struct {
				Name string `json:"name"`
			} `json:"street"`
		} `json:"context"`
	} `json:"properties"`
}

// GeocodeCity resolves a city name to its canonical context. The provider's
// preferred name, when different from the query, becomes the alternate
// spelling so discovery queries can match both.
func (c *Client) GeocodeCity(ctx context.Context, name string) (*types.CityContext, error) {
	ctx, span := otel.Tracer("LocationClient").Start(ctx, "GeocodeCity", trace.WithAttributes(
		attribute.String("geocode.query", name),
	))
	defer span.End()

	if name == "" {
		return nil, fmt.Errorf("city name cannot be empty")
	}

	params := url.Values{}
	params.Set("q", name)
	params.Set("types", "place")
	params.Set("limit", "1")
	params.Set("access_token", c.apiKey)
	endpoint := fmt.Sprintf("%s/forward?%s", c.geocodeBaseURL, params.Encode())

	fc, err := c.fetchFeatures(ctx, endpoint)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Geocoding failed")
		return nil, err
	}
	if len(fc.Features) == 0 {
		return nil, fmt.Errorf("no geocoding result for %q", name)
	}

	f := fc.Features[0]
	city := &types.CityContext{
		Name:      f.Properties.Name,
		Country:   f.Properties.Context.Country.Name,
		Latitude:  f.Properties.Coordinates.Latitude,
		Longitude: f.Properties.Coordinates.Longitude,
	}
	if f.Properties.NamePrefs != "" && f.Properties.NamePrefs != f.Properties.Name {
		city.AltName = f.Properties.NamePrefs
	}

	span.SetAttributes(attribute.String("geocode.resolved", city.Name))
	span.SetStatus(codes.Ok, "City resolved")
	return city, nil
}

// ReverseGeocode resolves raw coordinates to the containing city.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lng float64) (*types.CityContext, error) {
	ctx, span := otel.Tracer("LocationClient").Start(ctx, "ReverseGeocode", trace.WithAttributes(
		attribute.Float64("geocode.lat", lat),
		attribute.Float64("geocode.lng", lng),
	))
	defer span.End()

	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return nil, fmt.Errorf("invalid coordinates: lat=%f, lng=%f", lat, lng)
	}

	params := url.Values{}
	params.Set("latitude", fmt.Sprintf("%f", lat))
	params.Set("longitude", fmt.Sprintf("%f", lng))
	params.Set("types", "place,street")
	params.Set("access_token", c.apiKey)
	endpoint := fmt.Sprintf("%s/reverse?%s", c.geocodeBaseURL, params.Encode())

	fc, err := c.fetchFeatures(ctx, endpoint)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Reverse geocoding failed")
		return nil, err
	}
	if len(fc.Features) == 0 {
		return nil, fmt.Errorf("no city found at %f,%f", lat, lng)
	}

	f := fc.Features[0]
	city := &types.CityContext{
		Name:      f.Properties.Name,
		Country:   f.Properties.Context.Country.Name,
		Street:    f.Properties.Context.Street.Name,
		Latitude:  f.Properties.Coordinates.Latitude,
		Longitude: f.Properties.Coordinates.Longitude,
	}
	// When the nearest feature is itself a street, the city comes from the
	// surrounding place context instead.
	if f.Properties.Context.Place.Name != "" && f.Properties.Context.Place.Name != city.Name {
		city.Street = f.Properties.Name
		city.Name = f.Properties.Context.Place.Name
	}
	span.SetAttributes(attribute.String("geocode.resolved", city.Name))
	span.SetStatus(codes.Ok, "City resolved")
	return city, nil
}

// LookupPlace resolves a free-text place query, optionally biased towards a
// city context.
func (c *Client) LookupPlace(ctx context.Context, query string, near *types.CityContext) (*types.Place, error) {
	ctx, span := otel.Tracer("LocationClient").Start(ctx, "LookupPlace", trace.WithAttributes(
		attribute.String("place.query", query),
	))
	defer span.End()

	if query == "" {
		return nil, fmt.Errorf("place query cannot be empty")
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", "1")
	params.Set("access_token", c.apiKey)
	if near != nil {
		params.Set("proximity", fmt.Sprintf("%f,%f", near.Longitude, near.Latitude))
	}
	endpoint := fmt.Sprintf("%s/forward?%s", c.placesBaseURL, params.Encode())

	fc, err := c.fetchFeatures(ctx, endpoint)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Place lookup failed")
		return nil, err
	}
	if len(fc.Features) == 0 {
		return nil, fmt.Errorf("no place found for %q", query)
	}

	f := fc.Features[0]
	place := &types.Place{
		Name:      f.Properties.Name,
		Address:   f.Properties.FullAddress,
		Latitude:  f.Properties.Coordinates.Latitude,
		Longitude: f.Properties.Coordinates.Longitude,
	}
	span.SetAttributes(attribute.String("place.resolved", place.Name))
	span.SetStatus(codes.Ok, "Place resolved")
	return place, nil
}

func (c *Client) fetchFeatures(ctx context.Context, endpoint string) (*featureCollection, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.ErrorContext(ctx, "Location provider returned error",
			slog.Int("status_code", resp.StatusCode),
			slog.String("body", string(body)))
		return nil, fmt.Errorf("location provider error: status %d", resp.StatusCode)
	}

	var fc featureCollection
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &fc, nil
}
