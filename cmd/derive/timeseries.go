package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"go.ngs.io/gefs-api/internal/adapter/interp"
	"go.ngs.io/gefs-api/internal/adapter/store/csv"
	"go.ngs.io/gefs-api/internal/domain"
	"go.ngs.io/gefs-api/internal/observability"
	"go.ngs.io/gefs-api/internal/usecase"
)

type timeSeriesFlags struct {
	variable   string
	city       string
	citiesPath string
	lat, lon   float64
	product    string
	window     string
	interp     string
	output     string
	box        domain.BoundingBox
}

// seriesRow is one forecast step in the printed output.
type seriesRow struct {
	ValidTime string              `yaml:"valid_time" json:"valid_time"`
	LeadHours float64             `yaml:"lead_hours" json:"lead_hours"`
	Values    map[string]*float64 `yaml:"values" json:"values"`
}

type seriesDoc struct {
	Variable string           `yaml:"variable" json:"variable"`
	Product  usecase.Product  `yaml:"product" json:"product"`
	Units    string           `yaml:"units" json:"units"`
	Window   string           `yaml:"window,omitempty" json:"window,omitempty"`
	InitTime string           `yaml:"init_time,omitempty" json:"init_time,omitempty"`
	Location usecase.Location `yaml:"location" json:"location"`
	Steps    []seriesRow      `yaml:"steps" json:"steps"`
}

func newTimeSeriesCmd(opts *options) *cobra.Command {
	var f timeSeriesFlags
	cmd := &cobra.Command{
		Use:   "timeseries",
		Short: "Derive the ensemble statistics bundle at a city or point",
		Example: `  gefs-derive timeseries --variable precipitation_surface --city Boise
  gefs-derive timeseries -f gefs.nc --variable precipitation_surface --lat 43.6 --lon -116.2 --product window --window 24h -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := f.request(cmd)
			if err != nil {
				return err
			}
			logger, err := opts.logger()
			if err != nil {
				return err
			}
			uc := usecase.NewForecastUseCase(
				opts.loader(logger),
				csv.NewCityStore(f.citiesPath),
				opts.clock,
				observability.NewUnregisteredMetrics(),
				logger,
				usecase.Options{Box: f.box},
			)
			resp, err := uc.TimeSeries(cmd.Context(), req)
			if err != nil {
				return err
			}
			return writeSeries(cmd.OutOrStdout(), f.output, resp)
		},
	}
	cmd.Flags().StringVar(&f.variable, "variable", "precipitation_surface", "variable to derive")
	cmd.Flags().StringVar(&f.city, "city", "", "city name")
	cmd.Flags().StringVar(&f.citiesPath, "cities", "", "CSV of name,lat,lon (default: built-in cities)")
	cmd.Flags().Float64Var(&f.lat, "lat", 0, "latitude in degrees north")
	cmd.Flags().Float64Var(&f.lon, "lon", 0, "longitude in degrees east, -180..180")
	cmd.Flags().StringVar(&f.product, "product", "", "raw, step, window or total")
	cmd.Flags().StringVar(&f.window, "window", "", "accumulation window for --product window, e.g. 24h or 2d")
	cmd.Flags().StringVar(&f.interp, "interp", string(interp.MethodNearest), "nearest or bilinear")
	cmd.Flags().StringVarP(&f.output, "output", "o", "yaml", "yaml or json")
	cmd.Flags().Float64Var(&f.box.LatMin, "lat-min", domain.WesternUS.LatMin, "region minimum latitude")
	cmd.Flags().Float64Var(&f.box.LatMax, "lat-max", domain.WesternUS.LatMax, "region maximum latitude")
	cmd.Flags().Float64Var(&f.box.LonMin, "lon-min", domain.WesternUS.LonMin, "region minimum longitude")
	cmd.Flags().Float64Var(&f.box.LonMax, "lon-max", domain.WesternUS.LonMax, "region maximum longitude")
	return cmd
}

func (f *timeSeriesFlags) request(cmd *cobra.Command) (usecase.TimeSeriesRequest, error) {
	req := usecase.TimeSeriesRequest{Variable: f.variable, City: f.city}
	if cmd.Flags().Changed("lat") {
		req.Lat = &f.lat
	}
	if cmd.Flags().Changed("lon") {
		req.Lon = &f.lon
	}
	product, err := usecase.ParseProduct(f.product)
	if err != nil {
		return req, err
	}
	req.Product = product
	if f.window != "" {
		if req.Window, err = domain.ParseWindow(f.window); err != nil {
			return req, err
		}
	}
	if req.Interp, err = interp.ParseMethod(f.interp); err != nil {
		return req, err
	}
	if f.output != "yaml" && f.output != "json" {
		return req, fmt.Errorf("unknown output format %q (use yaml or json)", f.output)
	}
	return req, nil
}

func writeSeries(out io.Writer, format string, resp *usecase.TimeSeriesResponse) error {
	doc := seriesDoc{
		Variable: resp.Variable,
		Product:  resp.Product,
		Units:    resp.Units,
		Window:   resp.Window,
		InitTime: resp.InitTime,
		Location: resp.Location,
		Steps:    make([]seriesRow, len(resp.LeadHours)),
	}
	for k := range doc.Steps {
		row := seriesRow{LeadHours: resp.LeadHours[k], Values: make(map[string]*float64, len(resp.Series))}
		if k < len(resp.Times) {
			row.ValidTime = resp.Times[k]
		}
		for name, values := range resp.Series {
			row.Values[name] = values[k]
		}
		doc.Steps[k] = row
	}

	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	}
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}
