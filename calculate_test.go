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
	"math"
	"testing"

	"github.com/ctessum/sparse"
)

func TestTendencies(t *testing.T) {
	const nx, ny, nz = 7, 6, 3
	g, err := NewRegularGrid(nx, ny, nz, 200, 200, 1, 2, 4)
	if err != nil {
		t.Fatal(err)
	}
	mask, err := NewMask(nx, ny, nz, 2)
	if err != nil {
		t.Fatal(err)
	}
	br := newFakeReader(nx, ny, nz, hourly, map[string]archiveFunc{
		"T":        func(rec, i, j, k int) float64 { return float64(10 + rec + k) },
		"T_lambda": func(rec, i, j, k int) float64 { return 1e-4 * float64(1+rec) },
		"S":        constant(33),
		"S_lambda": constant(5e-5),
	})
	rr := newFakeReader(nx, ny, nz, hourly, map[string]archiveFunc{
		"T_flux": func(rec, i, j, k int) float64 {
			if i == 3 && j == 3 && k == 2 {
				return 400
			}
			return 0
		},
		"T": constant(4),
	})
	bk, err := BoundaryForcing("boundary.nc", g, mask, []string{"T", "S"}, WithReader(br))
	if err != nil {
		t.Fatal(err)
	}
	rk, err := RiverForcing("river.nc", g, []string{"T", "S"}, WithReader(rr))
	if err != nil {
		t.Fatal(err)
	}
	set := NewSet(bk, rk)

	state := FieldState{
		"T": sparse.ZerosDense(nz, ny, nx),
		"S": sparse.ZerosDense(nz, ny, nx),
	}
	for i := range state["T"].Elements {
		state["T"].Elements[i] = 8 + 0.01*float64(i)
		state["S"].Elements[i] = 30 - 0.02*float64(i)
	}

	for _, tt := range []float64{0, 5400, 12000, -3600} {
		res, err := set.Tendencies(g, state, tt)
		if err != nil {
			t.Fatal(err)
		}
		if len(res) != 2 {
			t.Fatalf("tracers: %v", set.Tracers())
		}
		for _, tr := range []string{"S", "T"} {
			a := res[tr]
			if a.Shape[0] != nz || a.Shape[1] != ny || a.Shape[2] != nx {
				t.Fatalf("shape: %v", a.Shape)
			}
			for k := 0; k < nz; k++ {
				for j := 0; j < ny; j++ {
					for i := 0; i < nx; i++ {
						want := set.Tendency(tr, i, j, k, tt, state)
						if have := a.Get(k, j, i); have != want {
							t.Errorf("t=%g %s (%d,%d,%d): have %g, want %g", tt, tr, i, j, k, have, want)
						}
					}
				}
			}
		}
		s := Summarize(res["T"])
		if s.Min >= 0 || s.Max <= 0 {
			t.Errorf("t=%g: expected river dilution and boundary relaxation: %+v", tt, s)
		}
	}

	br.fail = true
	if _, err := set.Tendencies(g, state, 7300); err == nil {
		t.Error("expected an error")
	}
}

func TestSummarize(t *testing.T) {
	a := sparse.ZerosDense(2, 3)
	a.Set(-2, 0, 1)
	a.Set(5, 1, 2)
	a.Set(0.5, 1, 0)
	s := Summarize(a)
	if s != (Stats{Min: -2, Max: 5, Sum: 3.5, Forced: 3}) {
		t.Errorf("stats: %+v", s)
	}
	if s := Summarize(&sparse.DenseArray{}); s != (Stats{}) {
		t.Errorf("empty: %+v", s)
	}
}

func TestRegularGrid(t *testing.T) {
	g, err := NewRegularGrid(3, 2, 3, 10, 20, 1, 2, 5)
	if err != nil {
		t.Fatal(err)
	}
	if v := g.CellVolume(2, 1, 2); v != 1000 {
		t.Errorf("volume: %g", v)
	}
	if a := g.CellFaceArea(0, 0, 0); a != 200 {
		t.Errorf("area: %g", a)
	}
	g.Wet = sparse.ZerosDense(3, 2, 3)
	g.Wet.Set(1, 1, 0, 0)
	if g.CellVolume(0, 0, 1) != 400 || g.CellVolume(0, 0, 0) != 0 {
		t.Errorf("wet mask not applied")
	}

	for _, test := range []struct {
		nx, ny, nz int
		dx, dy     float64
		dz         []float64
	}{
		{0, 2, 2, 1, 1, []float64{1}},
		{2, 2, 2, 0, 1, []float64{1}},
		{2, 2, 2, 1, 1, nil},
		{2, 2, 2, 1, 1, []float64{1, 2, 3}},
		{2, 2, 2, 1, 1, []float64{1, -2}},
	} {
		if _, err := NewRegularGrid(test.nx, test.ny, test.nz, test.dx, test.dy, test.dz...); err == nil {
			t.Errorf("%+v: expected an error", test)
		}
	}
}

func TestState(t *testing.T) {
	a := sparse.ZerosDense(2, 2, 2)
	a.Set(7, 1, 0, 1)
	fs := FieldState{"T": a}
	if v := fs.Value(1, 0, 1, "T"); v != 7 {
		t.Errorf("field state: %g", v)
	}
	if v := fs.Value(1, 0, 1, "S"); !math.IsNaN(v) {
		t.Errorf("missing field: %g", v)
	}
	us := UniformState{"T": 3}
	if v := us.Value(5, 5, 5, "T"); v != 3 {
		t.Errorf("uniform state: %g", v)
	}
	if v := us.Value(0, 0, 0, "S"); !math.IsNaN(v) {
		t.Errorf("missing field: %g", v)
	}
}
