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
	"sort"

	"github.com/sirupsen/logrus"
)

// Suffixes of the companion variables in forcing archives.
const (
	RateSuffix = "_lambda"
	FluxSuffix = "_flux"
)

// BoundaryTracers returns the requested tracers that have boundary
// values in the archive, in the order requested, along with the ones
// that do not.
func BoundaryTracers(info *ArchiveInfo, requested []string) (found, missing []string) {
	for _, t := range requested {
		if info.Has(t) {
			found = append(found, t)
		} else {
			missing = append(missing, t)
		}
	}
	return
}

// RiverTracers returns the requested tracers that have a river flux
// variable (<tracer>_flux) in the archive, in the order requested,
// along with the ones that do not.
func RiverTracers(info *ArchiveInfo, requested []string) (found, missing []string) {
	for _, t := range requested {
		if info.Has(t + FluxSuffix) {
			found = append(found, t)
		} else {
			missing = append(missing, t)
		}
	}
	return
}

// sourceOptions collects the options that assembly needs to look at.
func sourceOptions(opts []SourceOption) *FieldSource {
	s := &FieldSource{r: ArchiveReader{}, log: logrus.StandardLogger()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// openArchive reads the archive description and checks it against
// the grid extents.
func openArchive(path string, g Grid, opts []SourceOption) (*ArchiveInfo, logrus.FieldLogger, error) {
	o := sourceOptions(opts)
	info, err := o.r.Info(path)
	if err != nil {
		return nil, nil, err
	}
	nx, ny, nz := g.Extents()
	if err := info.CheckExtents(nx, ny, nz); err != nil {
		return nil, nil, err
	}
	return info, o.log, nil
}

// BoundaryForcing creates one OpenBoundary kernel for each of the
// requested tracers that has boundary data in the archive at path.
// Tracers without data are skipped. The archive extents are checked
// against g before any source is created.
func BoundaryForcing(path string, g Grid, mask *Mask, tracers []string, opts ...SourceOption) (map[string]Kernel, error) {
	if mask == nil {
		return nil, fmt.Errorf("fjordforce: boundary forcing from %s requires a mask", path)
	}
	nx, ny, nz := g.Extents()
	if mnx, mny, mnz := mask.Extents(); mnx != nx || mny != ny || mnz != nz {
		return nil, fmt.Errorf("fjordforce: mask extents %v differ from grid extents %v",
			[3]int{mnx, mny, mnz}, [3]int{nx, ny, nz})
	}
	info, log, err := openArchive(path, g, opts)
	if err != nil {
		return nil, err
	}
	found, missing := BoundaryTracers(info, tracers)
	logTracers(log, "boundary", path, found, missing)

	o := make(map[string]Kernel)
	for _, t := range found {
		src, err := NewFieldSource(path, g, []string{t, t + RateSuffix}, opts...)
		if err != nil {
			return nil, err
		}
		o[t] = &OpenBoundary{
			Tracer: t,
			Value:  src.Field(t),
			Rate:   src.Field(t + RateSuffix),
			Mask:   mask,
		}
	}
	return o, nil
}

// RiverForcing creates one River kernel for each of the requested
// tracers that has river data in the archive at path. Tracers without
// data are skipped. The archive extents are checked against g before
// any source is created.
func RiverForcing(path string, g Grid, tracers []string, opts ...SourceOption) (map[string]Kernel, error) {
	info, log, err := openArchive(path, g, opts)
	if err != nil {
		return nil, err
	}
	found, missing := RiverTracers(info, tracers)
	logTracers(log, "river", path, found, missing)

	o := make(map[string]Kernel)
	for _, t := range found {
		src, err := NewFieldSource(path, g, []string{t + FluxSuffix, t}, opts...)
		if err != nil {
			return nil, err
		}
		o[t] = &River{
			Tracer: t,
			Flux:   src.Field(t + FluxSuffix),
			Value:  src.Field(t),
			Grid:   g,
		}
	}
	return o, nil
}

func logTracers(log logrus.FieldLogger, kind, path string, found, missing []string) {
	for _, t := range found {
		log.WithFields(logrus.Fields{"path": path, "tracer": t}).
			Infof("fjordforce: found %s forcing", kind)
	}
	for _, t := range missing {
		log.WithFields(logrus.Fields{"path": path, "tracer": t}).
			Debugf("fjordforce: no %s forcing", kind)
	}
}

// Set holds the forcing kernels of a simulation, keyed by the solver
// field they act on. When a field has more than one kernel, for
// example both boundary and river forcing, their tendencies are summed.
// Fields without forcing are absent from the Set.
type Set struct {
	kernels map[string][]Kernel
}

// NewSet combines groups of kernels, such as the results of
// BoundaryForcing and RiverForcing, into a Set.
func NewSet(groups ...map[string]Kernel) *Set {
	s := &Set{kernels: make(map[string][]Kernel)}
	for _, g := range groups {
		s.Merge(g)
	}
	return s
}

// Merge adds a group of kernels to s.
func (s *Set) Merge(group map[string]Kernel) {
	for t, k := range group {
		s.Add(t, k)
	}
}

// Add adds a kernel for tracer t.
func (s *Set) Add(t string, k Kernel) {
	s.kernels[t] = append(s.kernels[t], k)
}

// Tracers returns the names of the forced fields in sorted order.
func (s *Set) Tracers() []string {
	o := make([]string, 0, len(s.kernels))
	for t := range s.kernels {
		o = append(o, t)
	}
	sort.Strings(o)
	return o
}

// Kernels returns the kernels for tracer t.
func (s *Set) Kernels(t string) []Kernel { return s.kernels[t] }

// Has returns whether tracer t is forced.
func (s *Set) Has(t string) bool {
	_, ok := s.kernels[t]
	return ok
}

// Sources returns every field source used by the kernels in s. A
// source shared by several kernels appears once.
func (s *Set) Sources() []*FieldSource {
	var all []*FieldSource
	for _, t := range s.Tracers() {
		for _, k := range s.kernels[t] {
			all = append(all, k.Sources()...)
		}
	}
	return uniqueSources(all...)
}

// Prepare brings the windows of all sources up to date for simulation
// time t. It must be called, and must return, before Tendency is
// called concurrently for time t.
func (s *Set) Prepare(t float64) error {
	for _, src := range s.Sources() {
		if err := src.Update(t); err != nil {
			return err
		}
	}
	return nil
}

// Tendency returns the summed tendency of all kernels for tracer name
// at cell (i,j,k) and time t, or 0 if the tracer is not forced.
func (s *Set) Tendency(name string, i, j, k int, t float64, st State) float64 {
	var sum float64
	for _, kern := range s.kernels[name] {
		sum += kern.Tendency(i, j, k, t, st)
	}
	return sum
}

// Config specifies the forcing of a simulation.
type Config struct {
	// BoundaryFile and RiverFile are the paths to the boundary and
	// river archives. Either may be empty.
	BoundaryFile, RiverFile string

	// Tracers are the solver fields that may be forced.
	Tracers []string

	// BufferWidth is the number of cells over which boundary
	// relaxation decays to zero.
	BufferWidth int
}

// Assemble creates the forcing Set described by cfg for grid g.
func Assemble(cfg *Config, g Grid, opts ...SourceOption) (*Set, error) {
	set := NewSet()
	if cfg.BoundaryFile != "" {
		nx, ny, nz := g.Extents()
		mask, err := NewMask(nx, ny, nz, cfg.BufferWidth)
		if err != nil {
			return nil, err
		}
		k, err := BoundaryForcing(cfg.BoundaryFile, g, mask, cfg.Tracers, opts...)
		if err != nil {
			return nil, err
		}
		set.Merge(k)
	}
	if cfg.RiverFile != "" {
		k, err := RiverForcing(cfg.RiverFile, g, cfg.Tracers, opts...)
		if err != nil {
			return nil, err
		}
		set.Merge(k)
	}
	return set, nil
}
