package domain

// City is a named point used for forecast time series.
type City struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// DefaultCities are the built-in time-series locations.
var DefaultCities = []City{
	{Name: "Boise", Lat: 43.6150, Lon: -116.2023},
	{Name: "Twin Falls", Lat: 42.5630, Lon: -114.4608},
	{Name: "Idaho Falls", Lat: 43.4916, Lon: -112.0339},
	{Name: "Coeur d'Alene", Lat: 47.6777, Lon: -116.7805},
}
