package synthesis

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/Arnonfr/urbanito/internal/types"
)

// skeletonPayload is the raw gateway shape. It is validated field by field
// before anything flows into session or persistence code.
type skeletonPayload struct {
	Name            string       `json:"name" validate:"required"`
	Description     string       `json:"description"`
	DurationMinutes int          `json:"duration_minutes" validate:"gte=0"`
	POIs            []poiPayload `json:"pois" validate:"required,min=1,dive"`
}

type poiPayload struct {
	Name               string         `json:"name" validate:"required"`
	Latitude           float64        `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude          float64        `json:"longitude" validate:"gte=-180,lte=180"`
	Category           string         `json:"category"`
	Description        string         `json:"description"`
	TravelFromPrevious *travelPayload `json:"travel_from_previous"`
}

type travelPayload struct {
	DistanceText string `json:"distance_text"`
	DurationText string `json:"duration_text"`
}

func parseSkeleton(validate *validator.Validate, raw string) (*skeletonPayload, error) {
	clean := cleanJSONResponse(raw)
	if clean == "" {
		return nil, fmt.Errorf("empty synthesis response")
	}
	var payload skeletonPayload
	if err := json.Unmarshal([]byte(clean), &payload); err != nil {
		return nil, fmt.Errorf("failed to parse synthesis JSON: %w", err)
	}
	if err := validate.Struct(&payload); err != nil {
		return nil, fmt.Errorf("invalid synthesis payload: %w", err)
	}
	return &payload, nil
}

// buildRoute converts a validated payload into a transient route skeleton.
// POIs get random transient ids; stable identity is derived at save time.
func buildRoute(id uuid.UUID, city string, payload *skeletonPayload) types.Route {
	pois := make([]types.POIDetail, 0, len(payload.POIs))
	for i, p := range payload.POIs {
		category := types.POICategory(p.Category)
		if !types.ValidCategory(category) {
			category = types.CategoryHistory
		}
		poi := types.POIDetail{
			ID:          uuid.New(),
			Name:        p.Name,
			Latitude:    p.Latitude,
			Longitude:   p.Longitude,
			Category:    category,
			Description: p.Description,
		}
		// The walk segment is undefined for the first stop, whatever the
		// model returned.
		if i > 0 && p.TravelFromPrevious != nil {
			poi.TravelFromPrevious = &types.TravelSegment{
				DistanceText: p.TravelFromPrevious.DistanceText,
				DurationText: p.TravelFromPrevious.DurationText,
			}
		}
		pois = append(pois, poi)
	}
	return types.Route{
		ID:              id,
		Name:            payload.Name,
		City:            city,
		Description:     payload.Description,
		POIs:            pois,
		DurationMinutes: payload.DurationMinutes,
		Visibility:      types.VisibilityPrivate,
	}
}

func cleanJSONResponse(response string) string {
	response = strings.TrimSpace(response)

	if strings.HasPrefix(response, "```json") {
		response = strings.TrimPrefix(response, "```json")
	} else if strings.HasPrefix(response, "```") {
		response = strings.TrimPrefix(response, "```")
	}
	if strings.HasSuffix(response, "```") {
		response = strings.TrimSuffix(response, "```")
	}

	return strings.TrimSpace(response)
}
