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

import "fmt"

// DimensionMismatch is returned when the spatial extents of an archive
// or one of its variables differ from the model grid. Shapes are given
// as {Nx, Ny, Nz}.
type DimensionMismatch struct {
	Path     string
	Variable string // empty when the archive dimensions themselves disagree
	Expected [3]int
	Actual   [3]int
}

func (e *DimensionMismatch) Error() string {
	if e.Variable == "" {
		return fmt.Sprintf("fjordforce: archive %s has extents %v but the grid is %v",
			e.Path, e.Actual, e.Expected)
	}
	return fmt.Sprintf("fjordforce: variable %s in archive %s has extents %v but the grid is %v",
		e.Variable, e.Path, e.Actual, e.Expected)
}

// ArchiveReadError is returned when data cannot be read from an archive:
// the file cannot be opened, a variable or the time axis is missing, or
// the requested time indices are out of range.
type ArchiveReadError struct {
	Path     string
	Variable string
	Msg      string
	Err      error
}

func (e *ArchiveReadError) Error() string {
	s := fmt.Sprintf("fjordforce: reading archive %s", e.Path)
	if e.Variable != "" {
		s += fmt.Sprintf(", variable %s", e.Variable)
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap returns the underlying cause, if any.
func (e *ArchiveReadError) Unwrap() error { return e.Err }

func readErr(path, variable string, err error, format string, a ...interface{}) *ArchiveReadError {
	return &ArchiveReadError{
		Path:     path,
		Variable: variable,
		Msg:      fmt.Sprintf(format, a...),
		Err:      err,
	}
}
