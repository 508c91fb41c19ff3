package types

// CityContext is the resolved geographic context for a tour request: the
// canonical city name plus an alternate spelling when the geocoder knows one.
// Street is set on reverse lookups when the provider names the nearest street.
type CityContext struct {
	Name      string  `json:"name"`
	AltName   string  `json:"alt_name,omitempty"`
	Country   string  `json:"country,omitempty"`
	Street    string  `json:"street,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Place is a single forward-lookup hit: a named location with coordinates.
type Place struct {
	Name      string  `json:"name"`
	Address   string  `json:"address,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}
