package types

import (
	"time"

	"github.com/google/uuid"
)

// POICategory classifies a stop on a walking route.
type POICategory string

const (
	CategoryHistory      POICategory = "history"
	CategoryFood         POICategory = "food"
	CategoryArchitecture POICategory = "architecture"
	CategoryNature       POICategory = "nature"
	CategoryShopping     POICategory = "shopping"
	CategorySailing      POICategory = "sailing"
	CategoryCulture      POICategory = "culture"
	CategoryReligion     POICategory = "religion"
	CategoryArt          POICategory = "art"
)

// ValidCategory reports whether c is one of the known categories.
func ValidCategory(c POICategory) bool {
	switch c {
	case CategoryHistory, CategoryFood, CategoryArchitecture, CategoryNature,
		CategoryShopping, CategorySailing, CategoryCulture, CategoryReligion, CategoryArt:
		return true
	}
	return false
}

// TravelSegment describes the walk from the previous stop in a specific route.
// It is meaningful only relative to the preceding POI and is nil for the first stop.
type TravelSegment struct {
	DistanceText string `json:"distance_text"`
	DurationText string `json:"duration_text"`
}

// ContentSection is a free-form titled block of enrichment narrative.
type ContentSection struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// POIDetail is a single stop on a route. Synthesis produces it as a stub
// (name, coordinates, category, one-line description); enrichment lazily fills
// the extended content fields.
type POIDetail struct {
	ID          uuid.UUID   `json:"id"`
	Name        string      `json:"name"`
	Latitude    float64     `json:"latitude"`
	Longitude   float64     `json:"longitude"`
	Category    POICategory `json:"category"`
	Description string      `json:"description"`

	TravelFromPrevious *TravelSegment `json:"travel_from_previous,omitempty"`

	// Extended content, populated by enrichment.
	HistoricalAnalysis    string           `json:"historical_analysis,omitempty"`
	ArchitecturalAnalysis string           `json:"architectural_analysis,omitempty"`
	Sections              []ContentSection `json:"sections,omitempty"`
	Citations             []string         `json:"citations,omitempty"`

	// Enrichment state. At most one of loading / fully-loaded holds at a time.
	IsLoading     bool `json:"is_loading"`
	IsFullyLoaded bool `json:"is_fully_loaded"`

	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Enriched reports whether extended content has been merged into the POI.
func (p *POIDetail) Enriched() bool {
	return p.IsFullyLoaded
}
