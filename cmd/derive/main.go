// Package main provides a command line tool for inspecting GEFS forecast
// files and deriving ensemble time series without running the server.
package main

import (
	"fmt"
	"os"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"go.ngs.io/gefs-api/internal/adapter/store"
	"go.ngs.io/gefs-api/internal/adapter/store/gefs"
	"go.ngs.io/gefs-api/internal/adapter/store/synthetic"
	"go.ngs.io/gefs-api/internal/observability"
)

// options are the flags shared by every subcommand.
type options struct {
	path      string
	variables []string
	verbose   bool

	// clock is replaced in tests.
	clock clockwork.Clock
}

func main() {
	if err := newRootCmd(&options{clock: clockwork.NewRealClock()}).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(opts *options) *cobra.Command {
	root := &cobra.Command{
		Use:          "gefs-derive",
		Short:        "Inspect GEFS ensemble forecasts and derive statistics",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&opts.path, "file", "f", "", "GEFS NetCDF file (default: synthetic forecast)")
	root.PersistentFlags().StringSliceVar(&opts.variables, "variables", nil, "variables to read from --file")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(newInspectCmd(opts), newTimeSeriesCmd(opts))
	return root
}

func (o *options) logger() (*zap.SugaredLogger, error) {
	level := "warn"
	if o.verbose {
		level = "debug"
	}
	return observability.NewLogger(false, level)
}

func (o *options) loader(logger *zap.SugaredLogger) store.DatasetLoader {
	if o.path != "" {
		return gefs.NewStore(o.path, logger, o.variables...)
	}
	return synthetic.NewStore(o.clock)
}

func (o *options) describeSource() string {
	if o.path == "" {
		return "synthetic"
	}
	return fmt.Sprintf("file %s", o.path)
}
