package main

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"go.ngs.io/gefs-api/internal/domain"
)

var inspectRoles = []domain.Role{
	domain.RoleTime,
	domain.RoleStep,
	domain.RoleEnsemble,
	domain.RoleLatitude,
	domain.RoleLongitude,
}

func newInspectCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Show dimensions, coordinates, resolved roles and the step length",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := opts.logger()
			if err != nil {
				return err
			}
			ds, err := opts.loader(logger).Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("load %s: %w", opts.describeSource(), err)
			}
			return writeInspection(cmd.OutOrStdout(), ds)
		},
	}
}

func writeInspection(out io.Writer, ds *domain.Dataset) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	fmt.Fprintf(w, "source:\t%s\n", ds.Attr("source"))
	sizes := ds.Sizes()
	dims := ds.Dims()
	slices.Sort(dims)
	parts := make([]string, len(dims))
	for i, d := range dims {
		parts[i] = fmt.Sprintf("%s=%d", d, sizes[d])
	}
	fmt.Fprintf(w, "dims:\t%s\n", strings.Join(parts, " "))

	fmt.Fprintln(w, "\nROLE\tNAME")
	for _, role := range inspectRoles {
		name, err := domain.Resolve(ds, role)
		if err != nil {
			name = "(missing)"
		}
		fmt.Fprintf(w, "%s\t%s\n", role, name)
	}

	if dim, seconds, err := domain.StepDurationOf(ds); err == nil {
		fmt.Fprintf(w, "\nstep length:\t%gs along %s\n", seconds, dim)
	} else if !errors.Is(err, domain.ErrCoordinateNotFound) {
		fmt.Fprintf(w, "\nstep length:\tunavailable (%v)\n", err)
	}

	fmt.Fprintln(w, "\nVARIABLE\tUNITS\tDIMS")
	for _, v := range ds.Vars() {
		fmt.Fprintf(w, "%s\t%s\t%s\n", v.Name(), v.Attr("units"), strings.Join(v.Dims(), ","))
	}

	fmt.Fprintln(w, "\nCOORD\tDIMS\tFIRST\tLAST")
	names := ds.CoordNames()
	slices.Sort(names)
	for _, name := range names {
		c, _ := ds.Coord(name)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, strings.Join(c.Dims, ","), formatCoord(c, 0), formatCoord(c, c.Len()-1))
	}
	return w.Flush()
}

func formatCoord(c domain.Coord, i int) string {
	if i < 0 {
		return "-"
	}
	switch c.Kind {
	case domain.KindTime:
		return c.Time(i).Format("2006-01-02T15:04Z")
	case domain.KindDuration:
		return c.Duration(i).String()
	}
	return fmt.Sprintf("%g", c.Values[i])
}
