package synthesis

import (
	"fmt"
	"strings"

	"github.com/Arnonfr/urbanito/internal/types"
)

func getTourPrompt(req types.SynthesisRequest) string {
	var b strings.Builder

	switch req.Style {
	case types.StyleStreetWalk:
		b.WriteString("Design a linear walking tour along a single street, visiting its points of interest in walking order.\n")
	case types.StyleThemed:
		fmt.Fprintf(&b, "Design a themed walking tour. Theme: %s.\n", req.Theme)
	default:
		b.WriteString("Design a walking tour of the area, ordered as an efficient walking sequence.\n")
	}

	switch req.Kind {
	case types.LocationCity:
		fmt.Fprintf(&b, "Location: the city of %s.\n", req.City)
	case types.LocationStreet:
		fmt.Fprintf(&b, "Location: %s in %s.\n", req.Street, req.City)
	case types.LocationCoordinates:
		fmt.Fprintf(&b, "Location: the area around latitude %.5f, longitude %.5f.\n", *req.Latitude, *req.Longitude)
	}

	c := req.Constraints
	if len(c.Interests) > 0 {
		fmt.Fprintf(&b, "Focus on these interests: %s.\n", strings.Join(c.Interests, ", "))
	}
	if c.StopCount > 0 {
		fmt.Fprintf(&b, "Include exactly %d stops.\n", c.StopCount)
	} else {
		b.WriteString("Include between 5 and 8 stops.\n")
	}
	if c.MaxWalkKm > 0 {
		fmt.Fprintf(&b, "Total walking distance must not exceed %.1f km.\n", c.MaxWalkKm)
	}
	if c.ContentDepth != "" {
		fmt.Fprintf(&b, "Stop descriptions should be %s in depth.\n", c.ContentDepth)
	}
	if c.NoActiveReligiousSites {
		b.WriteString("Exclude active religious sites.\n")
	}
	if c.WheelchairAccessible {
		b.WriteString("Every stop and walking segment must be wheelchair accessible.\n")
	}

	locale := req.Locale
	if locale == "" {
		locale = "en"
	}
	fmt.Fprintf(&b, "Write all natural-language fields in locale %q.\n", locale)

	b.WriteString(`Respond with JSON only, no prose, in this exact shape:
{
  "name": "tour name",
  "description": "one paragraph",
  "duration_minutes": 120,
  "pois": [
    {
      "name": "stop name",
      "latitude": 0.0,
      "longitude": 0.0,
      "category": "history|food|architecture|nature|shopping|sailing|culture|religion|art",
      "description": "one line",
      "travel_from_previous": {"distance_text": "350 m", "duration_text": "5 min"}
    }
  ]
}
The first stop has no "travel_from_previous".`)

	return b.String()
}
