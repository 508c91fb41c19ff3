package types

// LocationKind discriminates how the user anchored a generation request.
type LocationKind string

const (
	LocationCity        LocationKind = "city"
	LocationCoordinates LocationKind = "coordinates"
	LocationStreet      LocationKind = "street"
)

// TourStyle selects the synthesis flavor.
type TourStyle string

const (
	StyleAreaTour   TourStyle = "area"
	StyleStreetWalk TourStyle = "street"
	StyleThemed     TourStyle = "themed"
)

// TourConstraints bound what the synthesis gateway may propose.
type TourConstraints struct {
	Interests              []string `json:"interests,omitempty"`
	MaxWalkKm              float64  `json:"max_walk_km,omitempty" validate:"gte=0"`
	StopCount              int      `json:"stop_count,omitempty" validate:"gte=0,lte=25"`
	ContentDepth           string   `json:"content_depth,omitempty" validate:"omitempty,oneof=brief standard deep"`
	NoActiveReligiousSites bool     `json:"no_active_religious_sites,omitempty"`
	WheelchairAccessible   bool     `json:"wheelchair_accessible,omitempty"`
}

// SynthesisRequest is the input contract of the route synthesis gateway.
// Exactly one location anchor applies, selected by Kind.
type SynthesisRequest struct {
	Kind        LocationKind    `json:"kind" validate:"required,oneof=city coordinates street"`
	City        string          `json:"city,omitempty"`
	Latitude    *float64        `json:"latitude,omitempty" validate:"omitempty,gte=-90,lte=90"`
	Longitude   *float64        `json:"longitude,omitempty" validate:"omitempty,gte=-180,lte=180"`
	Street      string          `json:"street,omitempty"`
	Constraints TourConstraints `json:"constraints"`
	Style       TourStyle       `json:"style" validate:"required,oneof=area street themed"`
	Theme       string          `json:"theme,omitempty"`
	Locale      string          `json:"locale,omitempty"`
}

// SynthesisResult wraps a freshly generated route skeleton. ShareToCommunity
// is set explicitly by the gateway: a route anchored on a named city is
// offered for community caching, one anchored on bare coordinates is not.
type SynthesisResult struct {
	Route            Route `json:"route"`
	ShareToCommunity bool  `json:"share_to_community"`
}

// ContentPreferences shape the enrichment narrative.
type ContentPreferences struct {
	Style    string `json:"style,omitempty"`
	Depth    string `json:"depth,omitempty" validate:"omitempty,oneof=brief standard deep"`
	Language string `json:"language,omitempty"`
}
