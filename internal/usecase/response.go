package usecase

import (
	"go.ngs.io/gefs-api/internal/adapter/interp"
)

// VariablesResponse describes the current forecast.
type VariablesResponse struct {
	Source       string         `json:"source"`
	InitTime     string         `json:"init_time,omitempty"`
	EnsembleSize int            `json:"ensemble_size"`
	LeadHours    []float64      `json:"lead_hours"`
	Sizes        map[string]int `json:"sizes"`
	Variables    []VariableInfo `json:"variables"`
}

// VariableInfo describes one servable variable.
type VariableInfo struct {
	Name     string    `json:"name"`
	LongName string    `json:"long_name,omitempty"`
	Units    string    `json:"units"`
	Dims     []string  `json:"dims"`
	Shape    []int     `json:"shape"`
	Products []Product `json:"products"`
}

// MapResponse is one statistic over the grid. Values are indexed [lat][lon];
// missing values are null.
type MapResponse struct {
	Variable  string       `json:"variable"`
	Product   Product      `json:"product"`
	Statistic string       `json:"statistic"`
	Units     string       `json:"units"`
	Window    string       `json:"window,omitempty"`
	InitTime  string       `json:"init_time,omitempty"`
	ValidTime string       `json:"valid_time,omitempty"`
	Step      int          `json:"step"`
	LeadHours float64      `json:"lead_hours"`
	Lats      []float64    `json:"lats"`
	Lons      []float64    `json:"lons"`
	Values    [][]*float64 `json:"values"`
}

// Location is the point a time series was sampled at.
type Location struct {
	Name    string  `json:"name,omitempty" yaml:"name,omitempty"`
	Lat     float64 `json:"lat" yaml:"lat"`
	Lon     float64 `json:"lon" yaml:"lon"`
	GridLat float64 `json:"grid_lat" yaml:"grid_lat"`
	GridLon float64 `json:"grid_lon" yaml:"grid_lon"`
}

// TimeSeriesResponse holds every summary statistic per forecast step.
type TimeSeriesResponse struct {
	Variable  string                `json:"variable"`
	Product   Product               `json:"product"`
	Units     string                `json:"units"`
	Window    string                `json:"window,omitempty"`
	InitTime  string                `json:"init_time,omitempty"`
	Location  Location              `json:"location"`
	Interp    interp.Method         `json:"interp"`
	Times     []string              `json:"times"`
	LeadHours []float64             `json:"lead_hours"`
	Series    map[string][]*float64 `json:"series"`
}
