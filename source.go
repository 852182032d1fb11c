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
	"sort"
	"time"

	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"
)

// DefaultWindowLength is the default number of frames held in memory
// by a FieldSource.
const DefaultWindowLength = 2

// FieldSource streams one or more gridded variables from an archive
// through a small in-memory window of time frames. The archive time
// axis is treated as cyclic: simulation times are wrapped into
// [0, Cycle()) before lookup.
//
// All variables of a source are reloaded together, so paired
// variables such as a boundary value and its relaxation rate always
// come from the same archive records.
//
// A FieldSource is not safe for concurrent use while its window is
// being reloaded. Call Update once per time step before evaluating
// values in parallel.
type FieldSource struct {
	path   string
	vars   []string
	shape  [3]int
	r      FrameReader
	log    logrus.FieldLogger
	length int

	// times is the full archive time axis in seconds since the
	// first sample.
	times []float64
	cycle float64

	win window

	reloads    int
	lastReload time.Time
}

// window is a ring of consecutive archive frames.
type window struct {
	index  []int     // archive time index of each frame
	times  []float64 // unwrapped time of each frame [s]
	frames [][]*sparse.DenseArray
	nxy    int
	nx     int
}

// SourceOption configures a FieldSource.
type SourceOption func(*FieldSource)

// WindowLength sets the number of frames held in memory. Values below
// 2 are raised to 2 and values above the number of archive records
// are lowered to it.
func WindowLength(n int) SourceOption {
	return func(s *FieldSource) { s.length = n }
}

// WithReader sets the reader used to access the archive. The default
// is ArchiveReader.
func WithReader(r FrameReader) SourceOption {
	return func(s *FieldSource) { s.r = r }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) SourceOption {
	return func(s *FieldSource) { s.log = l }
}

// NewFieldSource creates a source for the given variables of the
// archive at path. The archive is checked against the grid extents
// immediately, and the window is loaded for time 0.
func NewFieldSource(path string, g Grid, vars []string, opts ...SourceOption) (*FieldSource, error) {
	if len(vars) == 0 {
		return nil, fmt.Errorf("fjordforce: no variables requested from %s", path)
	}
	s := &FieldSource{
		path:   path,
		vars:   append([]string{}, vars...),
		r:      ArchiveReader{},
		log:    logrus.StandardLogger(),
		length: DefaultWindowLength,
	}
	for _, o := range opts {
		o(s)
	}
	nx, ny, nz := g.Extents()
	s.shape = [3]int{nx, ny, nz}

	info, err := s.r.Info(path)
	if err != nil {
		return nil, err
	}
	for _, v := range s.vars {
		if err := info.checkVariable(v, s.shape); err != nil {
			return nil, err
		}
	}
	n := info.NumRecords()
	if n == 0 {
		return nil, readErr(path, DimTime, nil, "time axis is empty")
	}
	for i := 1; i < n; i++ {
		if info.Times[i] <= info.Times[i-1] {
			return nil, readErr(path, DimTime, nil,
				"time axis is not strictly increasing at index %d", i)
		}
	}
	s.times = info.Times
	if n > 1 {
		s.cycle = s.times[n-1] - s.times[0] + (s.times[n-1] - s.times[n-2])
	}
	switch {
	case n == 1:
		s.length = 1
	case s.length < 2:
		s.length = 2
	case s.length > n:
		s.length = n
	}
	if err := s.reload(0); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the archive path.
func (s *FieldSource) Path() string { return s.path }

// Variables returns the names of the variables held by s.
func (s *FieldSource) Variables() []string { return append([]string{}, s.vars...) }

// Cycle returns the duration of one cycle of the archive time axis in
// seconds. It is zero for an archive with a single record, which is
// constant in time.
func (s *FieldSource) Cycle() float64 { return s.cycle }

// NumRecords returns the number of records in the archive.
func (s *FieldSource) NumRecords() int { return len(s.times) }

// WindowLength returns the number of frames held in memory.
func (s *FieldSource) WindowLength() int { return s.length }

// Reloads returns the number of times the window has been loaded.
func (s *FieldSource) Reloads() int { return s.reloads }

// LastReload returns the wall-clock time of the last window load.
func (s *FieldSource) LastReload() time.Time { return s.lastReload }

// Window returns the archive indices and unwrapped times [s] of the
// frames currently in memory.
func (s *FieldSource) Window() (index []int, times []float64) {
	return append([]int{}, s.win.index...), append([]float64{}, s.win.times...)
}

// Wrap converts simulation time t [s] to a position on the cyclic
// archive time axis.
func (s *FieldSource) Wrap(t float64) float64 {
	if s.cycle == 0 {
		return 0
	}
	tau := math.Mod(t, s.cycle)
	if tau < 0 {
		tau += s.cycle
	}
	return tau
}

// Update makes sure the window covers simulation time t, reloading it
// if necessary.
func (s *FieldSource) Update(t float64) error {
	tau := s.Wrap(t)
	if s.fresh(tau) {
		return nil
	}
	return s.reload(tau)
}

// Field returns the variable called name. It panics if name is not
// one of the variables of s.
func (s *FieldSource) Field(name string) Field {
	for i, v := range s.vars {
		if v == name {
			return Field{src: s, v: i}
		}
	}
	panic(fmt.Errorf("fjordforce: variable %s is not held by the source for %s", name, s.path))
}

func (s *FieldSource) fresh(tau float64) bool {
	if len(s.win.index) == 0 {
		return false
	}
	if len(s.times) == 1 {
		return true
	}
	return tau >= s.win.times[0] && tau <= s.win.times[len(s.win.times)-1]
}

// bracket returns the largest archive index whose time is <= tau.
func (s *FieldSource) bracket(tau float64) int {
	i := sort.Search(len(s.times), func(k int) bool { return s.times[k] > tau }) - 1
	if i < 0 {
		i = 0
	}
	return i
}

// reload replaces the window with the frames bracketing tau. The
// window is left unchanged if any read fails.
func (s *FieldSource) reload(tau float64) error {
	n := len(s.times)
	first := s.bracket(tau)
	w := window{
		index:  make([]int, s.length),
		times:  make([]float64, s.length),
		frames: make([][]*sparse.DenseArray, len(s.vars)),
		nx:     s.shape[0],
		nxy:    s.shape[0] * s.shape[1],
	}
	for m := range w.index {
		w.index[m] = (first + m) % n
		w.times[m] = s.times[w.index[m]] + s.cycle*float64((first+m)/n)
	}
	for _, run := range runs(w.index) {
		for v, name := range s.vars {
			f, err := s.r.ReadFrames(s.path, name, s.shape, run[0], run[1])
			if err != nil {
				return err
			}
			for i := 0; i < f.Len(); i++ {
				w.frames[v] = append(w.frames[v], f.Frame(i))
			}
		}
	}
	s.win = w
	s.reloads++
	s.lastReload = time.Now()
	s.log.WithFields(logrus.Fields{
		"path":      s.path,
		"variables": s.vars,
		"indices":   w.index,
		"time":      tau,
	}).Debug("fjordforce: reloaded forcing window")
	return nil
}

// runs splits a sequence of indices into half-open ranges of
// consecutive values.
func runs(index []int) [][2]int {
	var o [][2]int
	start := 0
	for m := 1; m <= len(index); m++ {
		if m == len(index) || index[m] != index[m-1]+1 {
			o = append(o, [2]int{index[start], index[m-1] + 1})
			start = m
		}
	}
	return o
}

// value returns variable v at cell (i,j,k) and simulation time t.
func (s *FieldSource) value(v, i, j, k int, t float64) float64 {
	tau := s.Wrap(t)
	if !s.fresh(tau) {
		if err := s.reload(tau); err != nil {
			panic(err)
		}
	}
	m := len(s.win.times) - 1
	for m > 0 && s.win.times[m] > tau {
		m--
	}
	return s.win.frames[v][m].Elements[k*s.win.nxy+j*s.win.nx+i]
}

// Field is one variable of a FieldSource.
type Field struct {
	src *FieldSource
	v   int
}

// At returns the value at cell (i,j,k) and simulation time t [s]: the
// most recent archive frame at or before the wrapped time. There is no
// interpolation between frames. If the window does not cover t it is
// reloaded first; a failed reload panics with the *ArchiveReadError.
func (f Field) At(i, j, k int, t float64) float64 {
	return f.src.value(f.v, i, j, k, t)
}

// Name returns the variable name.
func (f Field) Name() string { return f.src.vars[f.v] }

// Source returns the source holding the variable.
func (f Field) Source() *FieldSource { return f.src }
