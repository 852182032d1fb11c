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
	"io/ioutil"
	"os"
	"testing"

	"github.com/ctessum/cdf"
)

// edgeDistance returns the distance of cell (i,j) from the nearest
// horizontal edge of an nx×ny grid.
func edgeDistance(i, j, nx, ny int) int {
	d := i
	for _, v := range []int{nx - 1 - i, j, ny - 1 - j} {
		if v < d {
			d = v
		}
	}
	return d
}

func TestMaskProperties(t *testing.T) {
	for _, test := range []struct{ nx, ny, nz, bw int }{
		{10, 10, 5, 2},
		{12, 7, 3, 1},
		{20, 15, 2, 4},
		{9, 30, 1, 3},
	} {
		m, err := NewMask(test.nx, test.ny, test.nz, test.bw)
		if err != nil {
			t.Fatal(err)
		}
		for k := 0; k < test.nz; k++ {
			for j := 0; j < test.ny; j++ {
				for i := 0; i < test.nx; i++ {
					w := m.At(i, j, k)
					if w < 0 || w > 1 {
						t.Errorf("%+v (%d,%d,%d): weight %g out of range", test, i, j, k, w)
					}
					d := edgeDistance(i, j, test.nx, test.ny)
					switch {
					case d == 0 && w != 1:
						t.Errorf("%+v (%d,%d,%d): edge weight %g", test, i, j, k, w)
					case d > test.bw-1 && w != 0:
						t.Errorf("%+v (%d,%d,%d): interior weight %g", test, i, j, k, w)
					case d < test.bw && different(w, 1-float64(d)/float64(test.bw), 1e-12):
						t.Errorf("%+v (%d,%d,%d): weight %g at distance %d", test, i, j, k, w, d)
					}
				}
			}
		}
	}
}

func TestMaskLinearDecay(t *testing.T) {
	const bw = 4
	m, err := NewMask(30, 30, 2, bw)
	if err != nil {
		t.Fatal(err)
	}
	for d := 0; d < bw; d++ {
		want := 1 - float64(d)/bw
		for _, w := range []float64{
			m.At(d, 15, 0),    // west
			m.At(29-d, 15, 1), // east
			m.At(15, d, 0),    // south
			m.At(15, 29-d, 1), // north
		} {
			if different(w, want, 1e-12) {
				t.Errorf("distance %d: have %g, want %g", d, w, want)
			}
		}
	}
}

func TestMaskOverlap(t *testing.T) {
	t.Run("opposite edges", func(t *testing.T) {
		// With 4 cells and a width of 3 the west weights are
		// 1, 2/3, 1/3, 0 and the east weights are 0, 1/3, 2/3, 1.
		m, err := NewMask(4, 20, 1, 3)
		if err != nil {
			t.Fatal(err)
		}
		want := []float64{1, 2. / 3, 2. / 3, 1}
		for i, w := range want {
			if v := m.At(i, 10, 0); different(v, w, 1e-12) {
				t.Errorf("i=%d: have %g, want %g", i, v, w)
			}
		}
	})
	t.Run("corner", func(t *testing.T) {
		m, err := NewMask(20, 20, 1, 4)
		if err != nil {
			t.Fatal(err)
		}
		// Both axes contribute 0.75; the sum would be 1.5.
		if v := m.At(1, 1, 0); different(v, 0.75, 1e-12) {
			t.Errorf("have %g, want 0.75", v)
		}
		if v := m.At(1, 3, 0); different(v, 0.75, 1e-12) {
			t.Errorf("have %g, want 0.75", v)
		}
		if v := m.At(0, 0, 0); v != 1 {
			t.Errorf("have %g, want 1", v)
		}
	})
}

func TestMaskDegenerate(t *testing.T) {
	m, err := NewMask(3, 2, 2, 10)
	if err != nil {
		t.Fatal(err)
	}
	if v := m.At(1, 0, 0); v != 1 {
		t.Errorf("edge row: %g", v)
	}
	if v := m.At(0, 1, 1); v != 1 {
		t.Errorf("edge column: %g", v)
	}
	// The whole grid is inside the buffer. The centre cell is 1 cell
	// from the x edges and 2 from the y edges.
	m, err = NewMask(3, 5, 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if v := m.At(1, 2, 0); different(v, 0.9, 1e-12) {
		t.Errorf("centre cell: have %g, want 0.9", v)
	}
	if v := m.At(0, 2, 0); v != 1 {
		t.Errorf("west cell: have %g, want 1", v)
	}
}

func TestMaskInvalid(t *testing.T) {
	for _, test := range []struct{ nx, ny, nz, bw int }{
		{10, 10, 5, 0},
		{10, 10, 5, -1},
		{0, 10, 5, 2},
		{10, 10, 0, 2},
	} {
		if _, err := NewMask(test.nx, test.ny, test.nz, test.bw); err == nil {
			t.Errorf("%+v: expected an error", test)
		}
	}
}

func TestMaskArray(t *testing.T) {
	m, err := NewMask(5, 4, 3, 2)
	if err != nil {
		t.Fatal(err)
	}
	a := m.Array()
	if a.Shape[0] != 3 || a.Shape[1] != 4 || a.Shape[2] != 5 {
		t.Fatalf("shape: %v", a.Shape)
	}
	if a.Get(2, 3, 4) != m.At(4, 3, 2) {
		t.Errorf("index order")
	}
	a.Set(-1, 0, 0, 0)
	if m.At(0, 0, 0) != 1 {
		t.Errorf("Array does not return a copy")
	}
	if nx, ny, nz := m.Extents(); nx != 5 || ny != 4 || nz != 3 || m.BufferWidth() != 2 {
		t.Errorf("extents: %d, %d, %d, %d", nx, ny, nz, m.BufferWidth())
	}
}

func TestMaskWrite(t *testing.T) {
	m, err := NewMask(6, 5, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	f, err := ioutil.TempFile("", "fjordforce_mask")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(f.Name())
	if err = m.Write(f); err != nil {
		t.Fatal(err)
	}
	f.Close()

	f, err = os.Open(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	cf, err := cdf.Open(f)
	if err != nil {
		t.Fatal(err)
	}
	dims := cf.Header.Lengths("mask")
	if len(dims) != 3 || dims[0] != 2 || dims[1] != 5 || dims[2] != 6 {
		t.Fatalf("dims: %v", dims)
	}
	r := cf.Reader("mask", nil, nil)
	buf := r.Zero(2 * 5 * 6)
	if _, err = r.Read(buf); err != nil {
		t.Fatal(err)
	}
	for i, v := range buf.([]float32) {
		if different(float64(v), m.w.Elements[i], 1e-6) && !(v == 0 && m.w.Elements[i] == 0) {
			t.Errorf("element %d: have %g, want %g", i, v, m.w.Elements[i])
		}
	}
}
