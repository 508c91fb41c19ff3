package types

import (
	"time"

	"github.com/google/uuid"
)

// RouteVisibility marks who may discover a persisted route.
type RouteVisibility string

const (
	VisibilityPrivate   RouteVisibility = "private"
	VisibilityCommunity RouteVisibility = "community"
)

// Route is an ordered walking tour. Ordering of POIs is significant and must
// survive persistence round-trips; the N-th POI's TravelFromPrevious refers to
// the walk from the (N-1)-th stop.
type Route struct {
	ID              uuid.UUID       `json:"id"`
	Name            string          `json:"name"`
	City            string          `json:"city"`
	Description     string          `json:"description"`
	POIs            []POIDetail     `json:"pois"`
	DurationMinutes int             `json:"duration_minutes"`
	OwnerID         *uuid.UUID      `json:"owner_id,omitempty"`
	ParentRouteID   *uuid.UUID      `json:"parent_route_id,omitempty"`
	Visibility      RouteVisibility `json:"visibility"`
	CreatedAt       time.Time       `json:"created_at,omitempty"`
}

// RouteSummary is the discovery-feed shape of a route: enough to render a
// card without loading every POI row.
type RouteSummary struct {
	ID              uuid.UUID       `json:"id"`
	Name            string          `json:"name"`
	City            string          `json:"city"`
	Description     string          `json:"description"`
	DurationMinutes int             `json:"duration_minutes"`
	POICount        int             `json:"poi_count"`
	Visibility      RouteVisibility `json:"visibility"`
	Source          string          `json:"source"`
	CreatedAt       time.Time       `json:"created_at"`
}

// UpdateRouteRequest carries the renameable route fields on a fork.
type UpdateRouteRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}
