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

// Package fjordforce provides separate-file forcing for regional ocean
// models: open-boundary relaxation and river inflow tendencies that are
// streamed from gridded netCDF archives over a cyclic time axis.
//
// Archives follow a simple layout. Boundary files hold, for each tracer X,
// a boundary value X(time, Nz, Ny, Nx) and a relaxation rate
// X_lambda(time, Nz, Ny, Nx) [1/s]. River files hold, for each tracer X,
// a volume flux X_flux(time, Nz, Ny, Nx) [m3/s] and the tracer value
// carried by the inflow, X(time, Nz, Ny, Nx). Values at or below
// FillThreshold mean "no forcing here".
//
// The solver drives a forcing Set in two phases per sub-step: Prepare,
// which may reload the in-memory windows and must not run concurrently
// with anything else, followed by any number of concurrent Tendency
// calls.
package fjordforce

// Version gives the version number.
const Version = "0.1.0"

// FillThreshold is the largest value that is still treated as the
// archive fill sentinel (nominally -999).
const FillThreshold = -990.

// IsFill returns whether v is the archive fill sentinel.
func IsFill(v float64) bool { return v <= FillThreshold }

// Grid is the model grid as seen by the forcing kernels.
type Grid interface {
	// Extents returns the number of grid cells in the
	// West-East, South-North and below-above directions.
	Extents() (nx, ny, nz int)

	// CellVolume is the volume of cell (i,j,k) [m3]. It is zero for
	// cells that are not part of the wet domain.
	CellVolume(i, j, k int) float64

	// CellFaceArea is the horizontal face area of cell (i,j,k) [m2].
	CellFaceArea(i, j, k int) float64
}

// State gives the current model value of a solver field at a grid cell.
type State interface {
	Value(i, j, k int, field string) float64
}
