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

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// Mask holds the open-boundary relaxation weight of every grid cell.
// The weight is 1 on the west, east, south and north faces of the
// domain and decays linearly to 0 over BufferWidth cells inward. Where
// the buffer zones of two edges overlap the larger weight is used.
// The vertical direction is never masked.
//
// A Mask is immutable once created and may be shared between kernels.
type Mask struct {
	w           *sparse.DenseArray // (Nz, Ny, Nx)
	nx, ny, nz  int
	bufferWidth int
}

// NewMask creates the relaxation mask for a grid of the given extents.
func NewMask(nx, ny, nz, bufferWidth int) (*Mask, error) {
	if nx < 1 || ny < 1 || nz < 1 {
		return nil, fmt.Errorf("fjordforce: invalid grid extents for mask: %d×%d×%d", nx, ny, nz)
	}
	if bufferWidth < 1 {
		return nil, fmt.Errorf("fjordforce: buffer width must be at least 1, got %d", bufferWidth)
	}
	m := &Mask{
		w:           sparse.ZerosDense(nz, ny, nx),
		nx:          nx,
		ny:          ny,
		nz:          nz,
		bufferWidth: bufferWidth,
	}
	bw := float64(bufferWidth)

	// x direction: west and east edges.
	for d := 0; d < min(bufferWidth, nx); d++ {
		weight := 1 - float64(d)/bw
		for k := 0; k < nz; k++ {
			for j := 0; j < ny; j++ {
				m.raise(weight, d, j, k)
				m.raise(weight, nx-1-d, j, k)
			}
		}
	}
	// y direction: south and north edges.
	for d := 0; d < min(bufferWidth, ny); d++ {
		weight := 1 - float64(d)/bw
		for k := 0; k < nz; k++ {
			for i := 0; i < nx; i++ {
				m.raise(weight, i, d, k)
				m.raise(weight, i, ny-1-d, k)
			}
		}
	}
	return m, nil
}

// raise sets the weight of cell (i,j,k) to w if that is larger than
// its current weight.
func (m *Mask) raise(w float64, i, j, k int) {
	if w > m.w.Get(k, j, i) {
		m.w.Set(w, k, j, i)
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// At returns the weight of cell (i,j,k).
func (m *Mask) At(i, j, k int) float64 {
	return m.w.Elements[(k*m.ny+j)*m.nx+i]
}

// Extents returns the grid extents of the mask.
func (m *Mask) Extents() (nx, ny, nz int) { return m.nx, m.ny, m.nz }

// BufferWidth returns the number of cells over which the weight decays.
func (m *Mask) BufferWidth() int { return m.bufferWidth }

// Array returns a copy of the weights with shape (Nz, Ny, Nx).
func (m *Mask) Array() *sparse.DenseArray { return m.w.Copy() }

// Write writes the mask to w as a netCDF file with dimensions
// Nx, Ny and Nz and a single variable "mask".
func (m *Mask) Write(w *os.File) error {
	h := cdf.NewHeader([]string{DimX, DimY, DimZ}, []int{m.nx, m.ny, m.nz})
	h.AddVariable("mask", []string{DimZ, DimY, DimX}, []float32{0})
	h.AddAttribute("mask", "description", "Open boundary relaxation weight")
	h.AddAttribute("mask", "units", "1")
	h.AddAttribute("", "buffer_width", []int32{int32(m.bufferWidth)})
	h.Define()
	f, err := cdf.Create(w, h)
	if err != nil {
		return fmt.Errorf("fjordforce: writing mask: %v", err)
	}
	data32 := make([]float32, len(m.w.Elements))
	for i, e := range m.w.Elements {
		data32[i] = float32(e)
	}
	end := f.Header.Lengths("mask")
	wr := f.Writer("mask", make([]int, len(end)), end)
	if _, err = wr.Write(data32); err != nil {
		return fmt.Errorf("fjordforce: writing mask: %v", err)
	}
	return cdf.UpdateNumRecs(w)
}
