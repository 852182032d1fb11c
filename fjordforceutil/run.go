/*
Copyright © 2024 the FjordForce authors.
This file is part of FjordForce.

FjordForce is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

FjordForce is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with FjordForce.  If not, see <http://www.gnu.org/licenses/>.
*/

package fjordforceutil

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fjordssim/fjordforce"
	"github.com/sirupsen/logrus"
)

// kind returns the kind of forcing k applies.
func kind(k fjordforce.Kernel) string {
	switch k.(type) {
	case *fjordforce.OpenBoundary:
		return "boundary"
	case *fjordforce.River:
		return "river"
	default:
		return fmt.Sprintf("%T", k)
	}
}

// Check assembles the forcing described by cfg on grid g and writes a
// report of the forced tracers and their field sources to w. It returns
// an error if any archive cannot be used with g.
func Check(w io.Writer, cfg *fjordforce.Config, g fjordforce.Grid, opts ...fjordforce.SourceOption) error {
	set, err := fjordforce.Assemble(cfg, g, opts...)
	if err != nil {
		return err
	}
	nx, ny, nz := g.Extents()
	fmt.Fprintf(w, "Grid: %d×%d×%d\n", nx, ny, nz)
	fmt.Fprintln(w, "Tracers:")
	for _, t := range cfg.Tracers {
		if !set.Has(t) {
			fmt.Fprintf(w, "\t%s\tnot forced\n", t)
			continue
		}
		var kinds []string
		for _, k := range set.Kernels(t) {
			kinds = append(kinds, kind(k))
		}
		fmt.Fprintf(w, "\t%s\t%s\n", t, strings.Join(kinds, ", "))
	}
	fmt.Fprintln(w, "Sources:")
	for _, s := range set.Sources() {
		fmt.Fprintf(w, "\t%s %v: %d records, cycle %v, window length %d\n",
			s.Path(), s.Variables(), s.NumRecords(),
			time.Duration(s.Cycle()*float64(time.Second)), s.WindowLength())
	}
	return nil
}

// WriteMask writes the boundary mask for grid g with the given buffer
// width to the file at path.
func WriteMask(path string, g fjordforce.Grid, bufferWidth int) error {
	nx, ny, nz := g.Extents()
	m, err := fjordforce.NewMask(nx, ny, nz, bufferWidth)
	if err != nil {
		return err
	}
	return writeOutput(path, m.Write)
}

// writeOutput creates the file at path and fills it with write. The
// file is removed if write fails.
func writeOutput(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("fjordforce: creating output file: %v", err)
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

// Evaluate assembles the forcing described by cfg on grid g, evaluates
// the tendency of every forced tracer at simulation time t [s] for the
// model state st, and writes per-tracer statistics to w.
func Evaluate(w io.Writer, cfg *fjordforce.Config, g fjordforce.Grid, st fjordforce.State, t float64, opts ...fjordforce.SourceOption) (map[string]fjordforce.Stats, error) {
	set, err := fjordforce.Assemble(cfg, g, opts...)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	res, err := set.Tendencies(g, st, t)
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"time": t, "tracers": len(res), "elapsed": time.Since(start)}).
		Info("fjordforce: evaluated tendencies")

	stats := make(map[string]fjordforce.Stats)
	fmt.Fprintf(w, "Tendencies at t = %g s:\n", t)
	for _, tr := range set.Tracers() {
		s := fjordforce.Summarize(res[tr])
		stats[tr] = s
		fmt.Fprintf(w, "\t%s\tmin=%g\tmax=%g\tsum=%g\tforced=%d\n", tr, s.Min, s.Max, s.Sum, s.Forced)
	}
	return stats, nil
}

// GenerateBoundary writes the boundary archive described by the TOML
// generator configuration at specPath to outPath and writes a summary
// to w.
func GenerateBoundary(w io.Writer, specPath, outPath string) error {
	spec := new(fjordforce.BoundaryFileSpec)
	if err := decodeSpec(specPath, spec); err != nil {
		return err
	}
	return generate(w, outPath, func(f *os.File) (*fjordforce.Summary, error) {
		return fjordforce.WriteBoundaryFile(f, spec)
	})
}

// GenerateRiver writes the river archive described by the TOML
// generator configuration at specPath to outPath and writes a summary
// to w.
func GenerateRiver(w io.Writer, specPath, outPath string) error {
	spec := new(fjordforce.RiverFileSpec)
	if err := decodeSpec(specPath, spec); err != nil {
		return err
	}
	return generate(w, outPath, func(f *os.File) (*fjordforce.Summary, error) {
		return fjordforce.WriteRiverFile(f, spec)
	})
}

func generate(w io.Writer, outPath string, write func(*os.File) (*fjordforce.Summary, error)) error {
	var s *fjordforce.Summary
	err := writeOutput(outPath, func(f *os.File) (err error) {
		s, err = write(f)
		return err
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Wrote %s\n", outPath)
	for _, t := range s.Tracers {
		fmt.Fprintf(w, "\t%s\tcells=%d\tvalues=[%g, %g]", t.Name, t.ForcedCells, t.ValueMin, t.ValueMax)
		if t.RateMax > 0 {
			fmt.Fprintf(w, "\trates=[%g, %g] 1/s", t.RateMin, t.RateMax)
		}
		if t.TotalDischarge > 0 {
			fmt.Fprintf(w, "\tdischarge=%g m3/s", t.TotalDischarge)
		}
		fmt.Fprintln(w)
	}
	return nil
}
