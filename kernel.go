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

// Kernel computes the forcing tendency of one solver field at one
// grid cell. Tendency must be safe to call concurrently once the
// sources of the kernel have been updated to time t.
type Kernel interface {
	// Tendency returns the rate of change [field units / s] that the
	// forcing contributes at cell (i,j,k) and simulation time t [s].
	Tendency(i, j, k int, t float64, s State) float64

	// Sources returns the field sources the kernel reads from.
	Sources() []*FieldSource
}

// OpenBoundary relaxes a field toward archived boundary values near the
// open edges of the domain.
type OpenBoundary struct {
	// Tracer is the solver field being forced.
	Tracer string

	// Value is the boundary value and Rate is the relaxation rate [1/s].
	Value, Rate Field

	Mask *Mask
}

// Tendency implements Kernel. It is zero where the mask weight is zero
// or the boundary value is the fill sentinel, and
// -λ·w·(model - value) elsewhere.
func (b *OpenBoundary) Tendency(i, j, k int, t float64, s State) float64 {
	w := b.Mask.At(i, j, k)
	if w == 0 {
		return 0
	}
	value := b.Value.At(i, j, k, t)
	if IsFill(value) {
		return 0
	}
	lambda := b.Rate.At(i, j, k, t)
	return -lambda * w * (s.Value(i, j, k, b.Tracer) - value)
}

// Sources implements Kernel.
func (b *OpenBoundary) Sources() []*FieldSource {
	return uniqueSources(b.Value.src, b.Rate.src)
}

// River mixes river water into the cells that receive a volume flux.
type River struct {
	// Tracer is the solver field being forced.
	Tracer string

	// Flux is the inflowing volume flux [m3/s] and Value is the
	// value of the tracer in the river water.
	Flux, Value Field

	Grid Grid
}

// Tendency implements Kernel. It is zero where the flux is not
// positive, the river value is the fill sentinel, or the cell has no
// volume, and flux·area/vol·(value - model) elsewhere.
func (r *River) Tendency(i, j, k int, t float64, s State) float64 {
	flux := r.Flux.At(i, j, k, t)
	if flux <= 0 {
		return 0
	}
	value := r.Value.At(i, j, k, t)
	if IsFill(value) {
		return 0
	}
	vol := r.Grid.CellVolume(i, j, k)
	if vol == 0 {
		return 0
	}
	area := r.Grid.CellFaceArea(i, j, k)
	return flux * area / vol * (value - s.Value(i, j, k, r.Tracer))
}

// Sources implements Kernel.
func (r *River) Sources() []*FieldSource {
	return uniqueSources(r.Flux.src, r.Value.src)
}

func uniqueSources(srcs ...*FieldSource) []*FieldSource {
	var o []*FieldSource
	seen := make(map[*FieldSource]bool)
	for _, s := range srcs {
		if s == nil || seen[s] {
			continue
		}
		seen[s] = true
		o = append(o, s)
	}
	return o
}
