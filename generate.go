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

package fjordforce

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
	"github.com/spf13/cast"
	"gonum.org/v1/gonum/floats"
)

// FillValue is the value written to archives where there is no forcing.
const FillValue = -999.

// DefaultLambda is the relaxation rate [1/s] used when a boundary
// tracer does not specify one.
const DefaultLambda = 1e-4

// Number is a float64 that decodes from both integer and float
// TOML values, so that "west = 8" and "west = 8.0" are equivalent.
type Number float64

// UnmarshalTOML implements toml.Unmarshaler.
func (n *Number) UnmarshalTOML(data interface{}) error {
	switch data.(type) {
	case int64, float64:
		f, err := cast.ToFloat64E(data)
		if err != nil {
			return err
		}
		*n = Number(f)
		return nil
	default:
		return fmt.Errorf("fjordforce: expected a number, got %#v", data)
	}
}

// TimeAxis describes the time coordinate of a generated archive.
type TimeAxis struct {
	// StartDate is the reference date of the time coordinate,
	// for example "2024-01-01".
	StartDate string `toml:"start_date"`

	// TimeStepHours is the interval between records.
	TimeStepHours Number `toml:"time_step_hours"`

	// NumSteps is the number of records.
	NumSteps int `toml:"num_steps"`
}

func (ta TimeAxis) check() error {
	if ta.NumSteps < 1 {
		return fmt.Errorf("fjordforce: number of time steps must be at least 1, got %d", ta.NumSteps)
	}
	if ta.TimeStepHours <= 0 {
		return fmt.Errorf("fjordforce: time step must be positive, got %g hours", ta.TimeStepHours)
	}
	if _, err := parseEpoch(ta.StartDate); err != nil {
		return fmt.Errorf("fjordforce: invalid start date %q: %v", ta.StartDate, err)
	}
	return nil
}

// times returns the time coordinate in seconds.
func (ta TimeAxis) times() []float64 {
	o := make([]float64, ta.NumSteps)
	for i := range o {
		o[i] = float64(i) * float64(ta.TimeStepHours) * 3600
	}
	return o
}

// BoundaryTracer holds the boundary values of one tracer on each side
// of the domain. Sides that are not set are not forced.
type BoundaryTracer struct {
	West  *Number `toml:"west"`
	East  *Number `toml:"east"`
	South *Number `toml:"south"`
	North *Number `toml:"north"`

	// Lambda is the relaxation rate at the boundary face [1/s].
	// It defaults to DefaultLambda.
	Lambda *Number `toml:"lambda"`
}

// BoundaryFileSpec describes a boundary archive to be generated.
type BoundaryFileSpec struct {
	Nx int `toml:"nx"`
	Ny int `toml:"ny"`
	Nz int `toml:"nz"`
	TimeAxis

	// BufferWidth is the number of cells over which the relaxation
	// rate decays from the boundary.
	BufferWidth int `toml:"buffer_width"`

	Tracers map[string]BoundaryTracer `toml:"tracers"`
}

// RiverMouth is a point source of river water at cell (I, J, K).
type RiverMouth struct {
	I int `toml:"i"`
	J int `toml:"j"`
	K int `toml:"k"`

	// Discharge is the volume flux [m3/s].
	Discharge Number `toml:"discharge"`

	// Tracers holds the value of each tracer in the river water.
	Tracers map[string]Number `toml:"tracers"`
}

// RiverFileSpec describes a river archive to be generated.
type RiverFileSpec struct {
	Nx int `toml:"nx"`
	Ny int `toml:"ny"`
	Nz int `toml:"nz"`
	TimeAxis

	Rivers []RiverMouth `toml:"rivers"`
}

// TracerSummary holds statistics of one generated tracer.
type TracerSummary struct {
	Name string

	// ForcedCells is the number of cells with a positive relaxation
	// rate or river flux.
	ForcedCells int

	// ValueMin and ValueMax give the range of the non-fill values.
	ValueMin, ValueMax float64

	// RateMin and RateMax give the range of the positive relaxation
	// rates. They are only set for boundary archives.
	RateMin, RateMax float64

	// TotalDischarge is the summed river flux [m3/s]. It is only set
	// for river archives.
	TotalDischarge float64
}

// Summary describes a generated archive.
type Summary struct {
	Tracers []TracerSummary
}

func checkExtents(nx, ny, nz int) error {
	if nx < 1 || ny < 1 || nz < 1 {
		return fmt.Errorf("fjordforce: invalid grid extents %d×%d×%d", nx, ny, nz)
	}
	return nil
}

// WriteBoundaryFile writes the boundary archive described by spec to w.
// For each tracer X it writes the boundary value X, which is the side
// value in the buffer zone and FillValue elsewhere, and the relaxation
// rate X_lambda, which decays linearly from Lambda at the boundary face.
// Sides are applied in the order west, east, south, north; where two
// sides overlap the later value is used and the larger rate is kept.
// Values are the same at every depth and time.
func WriteBoundaryFile(w *os.File, spec *BoundaryFileSpec) (*Summary, error) {
	if err := checkExtents(spec.Nx, spec.Ny, spec.Nz); err != nil {
		return nil, err
	}
	if err := spec.TimeAxis.check(); err != nil {
		return nil, err
	}
	if spec.BufferWidth < 1 {
		return nil, fmt.Errorf("fjordforce: buffer width must be at least 1, got %d", spec.BufferWidth)
	}
	if len(spec.Tracers) == 0 {
		return nil, fmt.Errorf("fjordforce: no boundary tracers specified")
	}
	names := make([]string, 0, len(spec.Tracers))
	for n := range spec.Tracers {
		names = append(names, n)
	}
	sort.Strings(names)

	nx, ny, nz := spec.Nx, spec.Ny, spec.Nz
	h := archiveHeader(nx, ny, nz, spec.TimeAxis)
	data := make(map[string]*sparse.DenseArray)
	summary := new(Summary)
	for _, n := range names {
		h.AddVariable(n, []string{DimTime, DimZ, DimY, DimX}, []float32{0})
		h.AddAttribute(n, "_FillValue", []float32{FillValue})
		h.AddAttribute(n, "long_name", n+" at boundaries")
		h.AddVariable(n+RateSuffix, []string{DimTime, DimZ, DimY, DimX}, []float32{0})
		h.AddAttribute(n+RateSuffix, "_FillValue", []float32{0})
		h.AddAttribute(n+RateSuffix, "long_name", n+" relaxation rate")
		h.AddAttribute(n+RateSuffix, "units", "1/s")

		value, rate := boundaryFields(nx, ny, nz, spec.BufferWidth, spec.Tracers[n])
		data[n] = value
		data[n+RateSuffix] = rate
		summary.Tracers = append(summary.Tracers, boundarySummary(n, value, rate))
	}
	h.AddAttribute("", "title", "Open boundary conditions")
	h.AddAttribute("", "created", time.Now().Format(time.RFC3339))
	h.AddAttribute("", "buffer_width", []int32{int32(spec.BufferWidth)})
	h.Define()

	if err := writeArchive(w, h, spec.TimeAxis, data); err != nil {
		return nil, err
	}
	return summary, nil
}

// boundaryFields returns the boundary value and relaxation rate
// fields of one tracer with shape (Nz, Ny, Nx).
func boundaryFields(nx, ny, nz, bufferWidth int, bt BoundaryTracer) (value, rate *sparse.DenseArray) {
	value = sparse.ZerosDense(nz, ny, nx)
	for i := range value.Elements {
		value.Elements[i] = FillValue
	}
	rate = sparse.ZerosDense(nz, ny, nx)
	lambda := DefaultLambda
	if bt.Lambda != nil {
		lambda = float64(*bt.Lambda)
	}
	bw := float64(bufferWidth)

	// set applies side value v at cell (i,j) for every layer.
	set := func(v, weight float64, i, j int) {
		for k := 0; k < nz; k++ {
			// DenseArray.Set ignores zeros, which are valid tracer values.
			idx := value.Index1d(k, j, i)
			value.Elements[idx] = v
			if r := lambda * weight; r > rate.Elements[idx] {
				rate.Elements[idx] = r
			}
		}
	}
	side := func(v *Number) (float64, bool) {
		if v == nil || IsFill(float64(*v)) {
			return 0, false
		}
		return float64(*v), true
	}

	if v, ok := side(bt.West); ok {
		for d := 0; d < min(bufferWidth, nx); d++ {
			for j := 0; j < ny; j++ {
				set(v, 1-float64(d)/bw, d, j)
			}
		}
	}
	if v, ok := side(bt.East); ok {
		for d := 0; d < min(bufferWidth, nx); d++ {
			for j := 0; j < ny; j++ {
				set(v, 1-float64(d)/bw, nx-1-d, j)
			}
		}
	}
	if v, ok := side(bt.South); ok {
		for d := 0; d < min(bufferWidth, ny); d++ {
			for i := 0; i < nx; i++ {
				set(v, 1-float64(d)/bw, i, d)
			}
		}
	}
	if v, ok := side(bt.North); ok {
		for d := 0; d < min(bufferWidth, ny); d++ {
			for i := 0; i < nx; i++ {
				set(v, 1-float64(d)/bw, i, ny-1-d)
			}
		}
	}
	return value, rate
}

// fieldSummary returns the statistics shared by boundary and river
// archives, where forcing is the relaxation rate or the river flux.
func fieldSummary(name string, value, forcing *sparse.DenseArray) (s TracerSummary, positive []float64) {
	s.Name = name
	var vals []float64
	for i, v := range value.Elements {
		if !IsFill(v) {
			vals = append(vals, v)
		}
		if f := forcing.Elements[i]; f > 0 {
			positive = append(positive, f)
		}
	}
	s.ForcedCells = len(positive)
	if len(vals) > 0 {
		s.ValueMin, s.ValueMax = floats.Min(vals), floats.Max(vals)
	}
	return s, positive
}

func boundarySummary(name string, value, rate *sparse.DenseArray) TracerSummary {
	s, rates := fieldSummary(name, value, rate)
	if len(rates) > 0 {
		s.RateMin, s.RateMax = floats.Min(rates), floats.Max(rates)
	}
	return s
}

// WriteRiverFile writes the river archive described by spec to w. For
// each tracer X it writes the volume flux X_flux, which is the
// discharge at each river mouth and 0 elsewhere, and the river value X,
// which is FillValue away from the river mouths. Every river must give
// a value for every tracer. Values are the same at every time.
func WriteRiverFile(w *os.File, spec *RiverFileSpec) (*Summary, error) {
	if err := checkExtents(spec.Nx, spec.Ny, spec.Nz); err != nil {
		return nil, err
	}
	if err := spec.TimeAxis.check(); err != nil {
		return nil, err
	}
	if len(spec.Rivers) == 0 {
		return nil, fmt.Errorf("fjordforce: no rivers specified")
	}
	tracerSet := make(map[string]bool)
	for _, r := range spec.Rivers {
		for t := range r.Tracers {
			tracerSet[t] = true
		}
	}
	names := make([]string, 0, len(tracerSet))
	for t := range tracerSet {
		names = append(names, t)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return nil, fmt.Errorf("fjordforce: rivers do not specify any tracers")
	}
	nx, ny, nz := spec.Nx, spec.Ny, spec.Nz
	for ri, r := range spec.Rivers {
		if r.I < 0 || r.I >= nx || r.J < 0 || r.J >= ny || r.K < 0 || r.K >= nz {
			return nil, fmt.Errorf("fjordforce: river %d at (%d, %d, %d) is outside the %d×%d×%d grid",
				ri, r.I, r.J, r.K, nx, ny, nz)
		}
		for _, t := range names {
			if _, ok := r.Tracers[t]; !ok {
				return nil, fmt.Errorf("fjordforce: river %d does not give a value for tracer %s", ri, t)
			}
		}
	}

	h := archiveHeader(nx, ny, nz, spec.TimeAxis)
	data := make(map[string]*sparse.DenseArray)
	summary := new(Summary)
	for _, n := range names {
		h.AddVariable(n+FluxSuffix, []string{DimTime, DimZ, DimY, DimX}, []float32{0})
		h.AddAttribute(n+FluxSuffix, "_FillValue", []float32{0})
		h.AddAttribute(n+FluxSuffix, "long_name", "Volume flux for "+n+" forcing")
		h.AddAttribute(n+FluxSuffix, "units", "m3/s")
		h.AddVariable(n, []string{DimTime, DimZ, DimY, DimX}, []float32{0})
		h.AddAttribute(n, "_FillValue", []float32{FillValue})
		h.AddAttribute(n, "long_name", n+" in river water")

		flux := sparse.ZerosDense(nz, ny, nx)
		value := sparse.ZerosDense(nz, ny, nx)
		for i := range value.Elements {
			value.Elements[i] = FillValue
		}
		for _, r := range spec.Rivers {
			idx := value.Index1d(r.K, r.J, r.I)
			flux.Elements[idx] = float64(r.Discharge)
			value.Elements[idx] = float64(r.Tracers[n])
		}
		data[n+FluxSuffix] = flux
		data[n] = value

		s, _ := fieldSummary(n, value, flux)
		s.TotalDischarge = floats.Sum(flux.Elements)
		summary.Tracers = append(summary.Tracers, s)
	}
	h.AddAttribute("", "title", "River forcing")
	h.AddAttribute("", "created", time.Now().Format(time.RFC3339))
	h.AddAttribute("", "number_of_rivers", []int32{int32(len(spec.Rivers))})
	h.Define()

	if err := writeArchive(w, h, spec.TimeAxis, data); err != nil {
		return nil, err
	}
	return summary, nil
}

// archiveHeader creates a header with the archive dimensions and the
// time coordinate variable.
func archiveHeader(nx, ny, nz int, ta TimeAxis) *cdf.Header {
	h := cdf.NewHeader([]string{DimX, DimY, DimZ, DimTime}, []int{nx, ny, nz, 0})
	h.AddVariable(DimTime, []string{DimTime}, []float64{0})
	h.AddAttribute(DimTime, "units", "seconds since "+ta.StartDate)
	h.AddAttribute(DimTime, "long_name", "time")
	h.AddAttribute(DimTime, "calendar", "gregorian")
	return h
}

// writeArchive writes the time coordinate and, for every record, the
// time-invariant fields in data.
func writeArchive(w *os.File, h *cdf.Header, ta TimeAxis, data map[string]*sparse.DenseArray) error {
	f, err := cdf.Create(w, h)
	if err != nil {
		return fmt.Errorf("fjordforce: creating archive: %v", err)
	}
	data32 := make(map[string][]float32)
	for v, d := range data {
		d32 := make([]float32, len(d.Elements))
		for i, e := range d.Elements {
			d32[i] = float32(e)
		}
		data32[v] = d32
	}
	for t, tv := range ta.times() {
		if _, err := f.Writer(DimTime, []int{t}, nil).Write([]float64{tv}); err != nil {
			return fmt.Errorf("fjordforce: writing time record %d: %v", t, err)
		}
		for _, v := range h.Variables() {
			d, ok := data32[v]
			if !ok {
				continue
			}
			if _, err := f.Writer(v, []int{t, 0, 0, 0}, nil).Write(d); err != nil {
				return fmt.Errorf("fjordforce: writing %s record %d: %v", v, t, err)
			}
		}
	}
	return cdf.UpdateNumRecs(w)
}
