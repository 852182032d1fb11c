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
	"math"
	"runtime"
	"sync"

	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/floats"
)

// Tendencies prepares s for time t and then evaluates the tendency of
// every forced tracer at every cell of g, in parallel. The results have
// shape (Nz, Ny, Nx).
func (s *Set) Tendencies(g Grid, st State, t float64) (map[string]*sparse.DenseArray, error) {
	if err := s.Prepare(t); err != nil {
		return nil, err
	}
	nx, ny, nz := g.Extents()
	tracers := s.Tracers()
	out := make(map[string]*sparse.DenseArray)
	arrays := make([]*sparse.DenseArray, len(tracers))
	for i, tr := range tracers {
		arrays[i] = sparse.ZerosDense(nz, ny, nx)
		out[tr] = arrays[i]
	}
	n := nx * ny * nz

	nprocs := runtime.GOMAXPROCS(0) // number of processors
	var wg sync.WaitGroup
	wg.Add(nprocs)
	for pp := 0; pp < nprocs; pp++ {
		go func(pp int) {
			for ii := pp; ii < n; ii += nprocs {
				i := ii % nx
				j := (ii / nx) % ny
				k := ii / (nx * ny)
				for m, tr := range tracers {
					arrays[m].Elements[ii] = s.Tendency(tr, i, j, k, t, st)
				}
			}
			wg.Done()
		}(pp)
	}
	wg.Wait()
	return out, nil
}

// Stats summarizes a tendency field.
type Stats struct {
	Min, Max, Sum float64

	// Forced is the number of cells with a non-zero value.
	Forced int
}

// Summarize returns statistics of the values in a.
func Summarize(a *sparse.DenseArray) Stats {
	if len(a.Elements) == 0 {
		return Stats{}
	}
	s := Stats{
		Min: floats.Min(a.Elements),
		Max: floats.Max(a.Elements),
		Sum: floats.Sum(a.Elements),
	}
	for _, v := range a.Elements {
		if v != 0 {
			s.Forced++
		}
	}
	return s
}

// RegularGrid is a rectilinear grid with uniform horizontal spacing
// and per-layer thickness.
type RegularGrid struct {
	Nx, Ny, Nz int

	// Dx and Dy are the horizontal cell sizes [m].
	Dx, Dy float64

	// Dz holds the thickness of each layer [m], bottom layer first.
	Dz []float64

	// Wet optionally marks the cells that are part of the ocean with
	// a non-zero value. It has shape (Nz, Ny, Nx). If it is nil, all
	// cells are wet.
	Wet *sparse.DenseArray
}

// NewRegularGrid creates a grid. dz may hold one value for all
// layers or one value per layer.
func NewRegularGrid(nx, ny, nz int, dx, dy float64, dz ...float64) (*RegularGrid, error) {
	if nx < 1 || ny < 1 || nz < 1 {
		return nil, fmt.Errorf("fjordforce: invalid grid extents %d×%d×%d", nx, ny, nz)
	}
	if dx <= 0 || dy <= 0 {
		return nil, fmt.Errorf("fjordforce: invalid horizontal grid spacing %g×%g", dx, dy)
	}
	g := &RegularGrid{Nx: nx, Ny: ny, Nz: nz, Dx: dx, Dy: dy}
	switch len(dz) {
	case 1:
		g.Dz = make([]float64, nz)
		for k := range g.Dz {
			g.Dz[k] = dz[0]
		}
	case nz:
		g.Dz = append([]float64{}, dz...)
	default:
		return nil, fmt.Errorf("fjordforce: %d layer thicknesses given for %d layers", len(dz), nz)
	}
	for k, d := range g.Dz {
		if d <= 0 {
			return nil, fmt.Errorf("fjordforce: layer %d has invalid thickness %g", k, d)
		}
	}
	return g, nil
}

// Extents implements Grid.
func (g *RegularGrid) Extents() (nx, ny, nz int) { return g.Nx, g.Ny, g.Nz }

// CellVolume implements Grid. Dry cells have zero volume.
func (g *RegularGrid) CellVolume(i, j, k int) float64 {
	if g.Wet != nil && g.Wet.Get(k, j, i) == 0 {
		return 0
	}
	return g.Dx * g.Dy * g.Dz[k]
}

// CellFaceArea implements Grid.
func (g *RegularGrid) CellFaceArea(i, j, k int) float64 { return g.Dx * g.Dy }

// FieldState holds solver fields as (Nz, Ny, Nx) arrays.
// Fields that are not present have the value NaN.
type FieldState map[string]*sparse.DenseArray

// Value implements State.
func (s FieldState) Value(i, j, k int, field string) float64 {
	a, ok := s[field]
	if !ok {
		return math.NaN()
	}
	return a.Get(k, j, i)
}

// UniformState gives each field the same value at every cell.
// Fields that are not present have the value NaN.
type UniformState map[string]float64

// Value implements State.
func (s UniformState) Value(i, j, k int, field string) float64 {
	v, ok := s[field]
	if !ok {
		return math.NaN()
	}
	return v
}
