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
	"strconv"
	"strings"
	"time"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// Names of the dimensions and the time variable in a forcing archive.
const (
	DimX    = "Nx"
	DimY    = "Ny"
	DimZ    = "Nz"
	DimTime = "time"
)

// FrameReader reads gridded time frames from forcing archives.
type FrameReader interface {
	// Info returns the dimensions, gridded variables and time axis of
	// the archive at path.
	Info(path string) (*ArchiveInfo, error)

	// ReadFrames reads the time records [start, end) of variable.
	// shape is the expected spatial extent {Nx, Ny, Nz} of the variable.
	ReadFrames(path, variable string, shape [3]int, start, end int) (*Frames, error)
}

// ArchiveInfo describes the contents of a forcing archive.
type ArchiveInfo struct {
	Path       string
	Nx, Ny, Nz int

	// Variables holds the spatial extents {Nx, Ny, Nz} of every
	// variable that is gridded as (time, z, y, x).
	Variables map[string][3]int

	// RawTimes holds the time coordinate in the units stored in the
	// file, and Times holds it in seconds since the first sample.
	RawTimes, Times []float64

	// Units is the units attribute of the time variable and Epoch is
	// the reference date parsed from it, if any.
	Units string
	Epoch time.Time
}

// NumRecords returns the length of the time axis.
func (a *ArchiveInfo) NumRecords() int { return len(a.Times) }

// Has returns whether the archive contains the gridded variable v.
func (a *ArchiveInfo) Has(v string) bool {
	_, ok := a.Variables[v]
	return ok
}

// VariableNames returns the names of the gridded variables in
// sorted order.
func (a *ArchiveInfo) VariableNames() []string {
	o := make([]string, 0, len(a.Variables))
	for v := range a.Variables {
		o = append(o, v)
	}
	sort.Strings(o)
	return o
}

// CheckExtents returns a *DimensionMismatch if the spatial dimensions
// of the archive differ from the given grid extents.
func (a *ArchiveInfo) CheckExtents(nx, ny, nz int) error {
	if a.Nx != nx || a.Ny != ny || a.Nz != nz {
		return &DimensionMismatch{
			Path:     a.Path,
			Expected: [3]int{nx, ny, nz},
			Actual:   [3]int{a.Nx, a.Ny, a.Nz},
		}
	}
	return nil
}

// checkVariable returns an error if v is missing or its extents differ
// from shape.
func (a *ArchiveInfo) checkVariable(v string, shape [3]int) error {
	s, ok := a.Variables[v]
	if !ok {
		return readErr(a.Path, v, nil, "variable is not present as (%s, %s, %s, %s)",
			DimTime, DimZ, DimY, DimX)
	}
	if s != shape {
		return &DimensionMismatch{Path: a.Path, Variable: v, Expected: shape, Actual: s}
	}
	return nil
}

// Frames holds consecutive time records of one variable.
type Frames struct {
	// Data has the shape (time, Nz, Ny, Nx), the same as the
	// layout on disk.
	Data *sparse.DenseArray

	// RawTimes are the time coordinates of the frames in file units
	// and Times are the same in seconds since the first sample of
	// the archive.
	RawTimes, Times []float64
}

// Len returns the number of frames.
func (f *Frames) Len() int { return len(f.Times) }

// Frame returns a copy of frame i as an (Nz, Ny, Nx) array.
func (f *Frames) Frame(i int) *sparse.DenseArray {
	nz, ny, nx := f.Data.Shape[1], f.Data.Shape[2], f.Data.Shape[3]
	n := nz * ny * nx
	o := sparse.ZerosDense(nz, ny, nx)
	copy(o.Elements, f.Data.Elements[i*n:(i+1)*n])
	return o
}

// ArchiveReader reads forcing archives stored in the classic netCDF
// format. It holds no state: every call opens the file, reads what
// it needs, and closes it again.
type ArchiveReader struct{}

// Info implements FrameReader.
func (ArchiveReader) Info(path string) (*ArchiveInfo, error) {
	var info *ArchiveInfo
	err := withArchive(path, func(f *cdf.File, fsize int64) error {
		var err error
		info, err = readInfo(path, f, fsize)
		return err
	})
	return info, err
}

// ReadFrames implements FrameReader.
func (ArchiveReader) ReadFrames(path, variable string, shape [3]int, start, end int) (*Frames, error) {
	var frames *Frames
	err := withArchive(path, func(f *cdf.File, fsize int64) error {
		info, err := readInfo(path, f, fsize)
		if err != nil {
			return err
		}
		if err = info.checkVariable(variable, shape); err != nil {
			return err
		}
		n := info.NumRecords()
		if start < 0 || end > n || start >= end {
			return readErr(path, variable, nil,
				"time index range [%d, %d) is out of bounds for %d records", start, end, n)
		}
		nx, ny, nz := shape[0], shape[1], shape[2]
		nt := end - start
		r := f.Reader(variable, []int{start, 0, 0, 0}, []int{end - 1, nz - 1, ny - 1, nx - 1})
		buf := r.Zero(nt * nz * ny * nx)
		if _, err = r.Read(buf); err != nil {
			return readErr(path, variable, err, "reading records [%d, %d)", start, end)
		}
		data := sparse.ZerosDense(nt, nz, ny, nx)
		if err = copyFloat64(data.Elements, buf); err != nil {
			return readErr(path, variable, err, "")
		}
		frames = &Frames{
			Data:     data,
			RawTimes: append([]float64{}, info.RawTimes[start:end]...),
			Times:    append([]float64{}, info.Times[start:end]...),
		}
		return nil
	})
	return frames, err
}

// withArchive opens the archive at path, calls fn on it, and closes it.
func withArchive(path string, fn func(f *cdf.File, fsize int64) error) error {
	ff, err := os.Open(path)
	if err != nil {
		return readErr(path, "", err, "")
	}
	defer ff.Close()
	fi, err := ff.Stat()
	if err != nil {
		return readErr(path, "", err, "")
	}
	f, err := cdf.Open(ff)
	if err != nil {
		return readErr(path, "", err, "opening netCDF file")
	}
	return fn(f, fi.Size())
}

func readInfo(path string, f *cdf.File, fsize int64) (*ArchiveInfo, error) {
	info := &ArchiveInfo{
		Path:      path,
		Variables: make(map[string][3]int),
	}
	dims := make(map[string]int)
	lengths := f.Header.Lengths("")
	for i, d := range f.Header.Dimensions("") {
		dims[d] = lengths[i]
	}
	for _, d := range []string{DimX, DimY, DimZ, DimTime} {
		if _, ok := dims[d]; !ok {
			return nil, readErr(path, "", nil, "missing dimension %s", d)
		}
	}
	info.Nx, info.Ny, info.Nz = dims[DimX], dims[DimY], dims[DimZ]

	for _, v := range f.Header.Variables() {
		vd := f.Header.Dimensions(v)
		if len(vd) != 4 || vd[0] != DimTime || vd[1] != DimZ || vd[2] != DimY || vd[3] != DimX {
			continue
		}
		l := f.Header.Lengths(v)
		info.Variables[v] = [3]int{l[3], l[2], l[1]}
	}

	if d := f.Header.Dimensions(DimTime); len(d) != 1 || d[0] != DimTime {
		return nil, readErr(path, DimTime, nil, "missing time coordinate variable")
	}
	var nrec int
	if f.Header.IsRecordVariable(DimTime) {
		nrec = int(f.Header.NumRecs(fsize))
	} else {
		nrec = dims[DimTime]
	}
	info.RawTimes = make([]float64, nrec)
	if nrec > 0 {
		r := f.Reader(DimTime, []int{0}, []int{nrec - 1})
		buf := r.Zero(nrec)
		if _, err := r.Read(buf); err != nil {
			return nil, readErr(path, DimTime, err, "reading time coordinate")
		}
		if err := copyFloat64(info.RawTimes, buf); err != nil {
			return nil, readErr(path, DimTime, err, "")
		}
	}

	if u, ok := f.Header.GetAttribute(DimTime, "units").(string); ok {
		info.Units = strings.TrimRight(u, "\x00 ")
	}
	scale, epoch, err := parseTimeUnits(info.Units)
	if err != nil {
		return nil, readErr(path, DimTime, err, "")
	}
	info.Epoch = epoch
	info.Times = make([]float64, nrec)
	for i, t := range info.RawTimes {
		info.Times[i] = (t - info.RawTimes[0]) * scale
	}
	return info, nil
}

// copyFloat64 converts the values in buf, which is a slice of one of
// the numeric netCDF types, into dst.
func copyFloat64(dst []float64, buf interface{}) error {
	switch b := buf.(type) {
	case []float32:
		for i, v := range b {
			dst[i] = float64(v)
		}
	case []float64:
		copy(dst, b)
	case []int32:
		for i, v := range b {
			dst[i] = float64(v)
		}
	case []int16:
		for i, v := range b {
			dst[i] = float64(v)
		}
	default:
		return fmt.Errorf("unsupported data type %T", buf)
	}
	return nil
}

// parseTimeUnits parses a time units string of the form
// "<unit> since <date>", returning the number of seconds per unit and
// the reference date. An empty string means seconds with no reference
// date.
func parseTimeUnits(units string) (scale float64, epoch time.Time, err error) {
	units = strings.TrimSpace(units)
	if units == "" {
		return 1, epoch, nil
	}
	parts := strings.SplitN(units, " since ", 2)
	switch strings.ToLower(strings.TrimSpace(parts[0])) {
	case "seconds", "second", "secs", "sec", "s":
		scale = 1
	case "minutes", "minute", "mins", "min":
		scale = 60
	case "hours", "hour", "hrs", "hr", "h":
		scale = 3600
	case "days", "day", "d":
		scale = 86400
	default:
		return 0, epoch, fmt.Errorf("unsupported time units %q", units)
	}
	if len(parts) == 1 {
		return scale, epoch, nil
	}
	epoch, err = parseEpoch(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, epoch, fmt.Errorf("invalid reference date in time units %q: %v", units, err)
	}
	return scale, epoch, nil
}

var epochFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006-1-2 15:04:05",
	"2006-1-2",
}

func parseEpoch(s string) (time.Time, error) {
	// Trailing time zone markers such as "UTC" or "+00:00" after a space.
	if i := strings.LastIndex(s, " "); i > 0 {
		switch z := s[i+1:]; {
		case z == "UTC" || z == "Z" || z == "GMT":
			s = s[:i]
		case strings.HasPrefix(z, "+") || strings.HasPrefix(z, "-"):
			if _, err := strconv.Atoi(strings.Replace(z[1:], ":", "", 1)); err == nil {
				s = s[:i]
			}
		}
	}
	var err error
	for _, f := range epochFormats {
		var t time.Time
		t, err = time.Parse(f, s)
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}
