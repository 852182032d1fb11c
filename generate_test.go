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
	"time"

	"github.com/kr/pretty"
)

func fp(v Number) *Number { return &v }

var sixHourly = TimeAxis{StartDate: "2024-01-01", TimeStepHours: 6, NumSteps: 4}

func tempArchive(t *testing.T) *os.File {
	f, err := ioutil.TempFile("", "fjordforce_generate")
	if err != nil {
		t.Fatal(err)
	}
	return f
}

// readField reads record rec of variable v from the archive at path.
func readField(t *testing.T, path, v string, shape [3]int, rec int) func(i, j, k int) float64 {
	f, err := ArchiveReader{}.ReadFrames(path, v, shape, rec, rec+1)
	if err != nil {
		t.Fatal(err)
	}
	frame := f.Frame(0)
	return func(i, j, k int) float64 { return frame.Get(k, j, i) }
}

func TestWriteBoundaryFile(t *testing.T) {
	const nx, ny, nz, bw = 10, 10, 2, 3
	spec := &BoundaryFileSpec{
		Nx: nx, Ny: ny, Nz: nz,
		TimeAxis:    sixHourly,
		BufferWidth: bw,
		Tracers: map[string]BoundaryTracer{
			"T": {West: fp(1), East: fp(2), South: fp(3), North: fp(4)},
			"S": {West: fp(34), East: fp(FillValue), Lambda: fp(2e-4)},
		},
	}
	f := tempArchive(t)
	defer os.Remove(f.Name())
	summary, err := WriteBoundaryFile(f, spec)
	if err != nil {
		t.Fatal(err)
	}
	f.Close()

	inner := 1 - 2/float64(bw)
	want := &Summary{Tracers: []TracerSummary{
		{
			Name:        "S",
			ForcedCells: bw * ny * nz,
			ValueMin:    34,
			ValueMax:    34,
			RateMin:     2e-4 * inner,
			RateMax:     2e-4,
		},
		{
			Name:        "T",
			ForcedCells: (nx*ny - (nx-2*bw)*(ny-2*bw)) * nz,
			ValueMin:    1,
			ValueMax:    4,
			RateMin:     DefaultLambda * inner,
			RateMax:     DefaultLambda,
		},
	}}
	if diff := pretty.Diff(want, summary); len(diff) != 0 {
		t.Fatal(diff)
	}

	info, err := ArchiveReader{}.Info(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	if info.NumRecords() != 4 || info.Times[3] != 64800 {
		t.Errorf("times: %v", info.Times)
	}
	if !info.Epoch.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("epoch: %v", info.Epoch)
	}
	if diff := pretty.Diff([]string{"S", "S_lambda", "T", "T_lambda"}, info.VariableNames()); len(diff) != 0 {
		t.Error(diff)
	}
	if err := info.CheckExtents(nx, ny, nz); err != nil {
		t.Error(err)
	}

	shape := [3]int{nx, ny, nz}
	value := readField(t, f.Name(), "T", shape, 3)
	rate := readField(t, f.Name(), "T"+RateSuffix, shape, 3)
	for _, test := range []struct {
		i, j, k     int
		value, rate float64
	}{
		{0, 5, 0, 1, DefaultLambda},
		{9, 5, 1, 2, DefaultLambda},
		{5, 0, 0, 3, DefaultLambda},
		{5, 9, 1, 4, DefaultLambda},
		{0, 0, 0, 3, DefaultLambda},         // south overwrites west
		{9, 9, 1, 4, DefaultLambda},         // north overwrites east
		{1, 1, 0, 3, DefaultLambda * 2 / 3}, // larger rate is kept
		{2, 5, 1, 1, DefaultLambda / 3},     // inner edge of the buffer
		{3, 5, 0, FillValue, 0},             // interior
		{5, 5, 1, FillValue, 0},
		{8, 2, 0, 3, DefaultLambda * 2 / 3},
		{7, 7, 1, 4, DefaultLambda / 3},
	} {
		if v := value(test.i, test.j, test.k); v != test.value {
			t.Errorf("value (%d,%d,%d): have %g, want %g", test.i, test.j, test.k, v, test.value)
		}
		if r := rate(test.i, test.j, test.k); test.rate == 0 && r != 0 || test.rate != 0 && different(r, test.rate, 1e-6) {
			t.Errorf("rate (%d,%d,%d): have %g, want %g", test.i, test.j, test.k, r, test.rate)
		}
	}

	t.Run("unset side", func(t *testing.T) {
		value := readField(t, f.Name(), "S", shape, 0)
		rate := readField(t, f.Name(), "S"+RateSuffix, shape, 0)
		if v := value(0, 5, 0); v != 34 {
			t.Errorf("west value: %g", v)
		}
		if v, r := value(9, 5, 0), rate(9, 5, 0); v != FillValue || r != 0 {
			t.Errorf("east: value %g, rate %g", v, r)
		}
		if v, r := value(5, 0, 1), rate(5, 9, 1); v != FillValue || r != 0 {
			t.Errorf("south and north: value %g, rate %g", v, r)
		}
	})
}

func TestWriteRiverFile(t *testing.T) {
	const nx, ny, nz = 8, 6, 3
	spec := &RiverFileSpec{
		Nx: nx, Ny: ny, Nz: nz,
		TimeAxis: sixHourly,
		Rivers: []RiverMouth{
			{I: 0, J: 2, K: 0, Discharge: 120, Tracers: map[string]Number{"T": 1, "S": 0}},
			{I: 3, J: 5, K: 1, Discharge: 30, Tracers: map[string]Number{"T": 2, "S": 0.5}},
		},
	}
	f := tempArchive(t)
	defer os.Remove(f.Name())
	summary, err := WriteRiverFile(f, spec)
	if err != nil {
		t.Fatal(err)
	}
	f.Close()

	want := &Summary{Tracers: []TracerSummary{
		{Name: "S", ForcedCells: 2, ValueMin: 0, ValueMax: 0.5, TotalDischarge: 150},
		{Name: "T", ForcedCells: 2, ValueMin: 1, ValueMax: 2, TotalDischarge: 150},
	}}
	if diff := pretty.Diff(want, summary); len(diff) != 0 {
		t.Fatal(diff)
	}

	info, err := ArchiveReader{}.Info(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	found, missing := RiverTracers(info, []string{"T", "S", "O2"})
	if len(found) != 2 || len(missing) != 1 || missing[0] != "O2" {
		t.Errorf("tracers: %v, %v", found, missing)
	}

	shape := [3]int{nx, ny, nz}
	flux := readField(t, f.Name(), "S"+FluxSuffix, shape, 2)
	value := readField(t, f.Name(), "S", shape, 2)
	if v := flux(0, 2, 0); v != 120 {
		t.Errorf("flux: %g", v)
	}
	if v := value(3, 5, 1); different(v, 0.5, 1e-6) {
		t.Errorf("value: %g", v)
	}
	if v, fl := value(4, 4, 1), flux(4, 4, 1); v != FillValue || fl != 0 {
		t.Errorf("away from rivers: value %g, flux %g", v, fl)
	}
}

func TestGenerateErrors(t *testing.T) {
	boundary := func() *BoundaryFileSpec {
		return &BoundaryFileSpec{
			Nx: 4, Ny: 4, Nz: 1,
			TimeAxis:    sixHourly,
			BufferWidth: 1,
			Tracers:     map[string]BoundaryTracer{"T": {West: fp(1)}},
		}
	}
	river := func() *RiverFileSpec {
		return &RiverFileSpec{
			Nx: 4, Ny: 4, Nz: 1,
			TimeAxis: sixHourly,
			Rivers: []RiverMouth{
				{I: 1, J: 1, Discharge: 3, Tracers: map[string]Number{"T": 1}},
			},
		}
	}
	for name, edit := range map[string]func(*BoundaryFileSpec){
		"extents":    func(s *BoundaryFileSpec) { s.Nx = 0 },
		"buffer":     func(s *BoundaryFileSpec) { s.BufferWidth = 0 },
		"no tracers": func(s *BoundaryFileSpec) { s.Tracers = nil },
		"steps":      func(s *BoundaryFileSpec) { s.NumSteps = 0 },
		"time step":  func(s *BoundaryFileSpec) { s.TimeStepHours = -1 },
		"start date": func(s *BoundaryFileSpec) { s.StartDate = "" },
		"bad date":   func(s *BoundaryFileSpec) { s.StartDate = "yesterday" },
	} {
		t.Run("boundary "+name, func(t *testing.T) {
			s := boundary()
			edit(s)
			f := tempArchive(t)
			defer os.Remove(f.Name())
			defer f.Close()
			if _, err := WriteBoundaryFile(f, s); err == nil {
				t.Error("expected an error")
			}
		})
	}
	for name, edit := range map[string]func(*RiverFileSpec){
		"extents":       func(s *RiverFileSpec) { s.Nz = -1 },
		"no rivers":     func(s *RiverFileSpec) { s.Rivers = nil },
		"no tracers":    func(s *RiverFileSpec) { s.Rivers[0].Tracers = nil },
		"outside":       func(s *RiverFileSpec) { s.Rivers[0].I = 4 },
		"below":         func(s *RiverFileSpec) { s.Rivers[0].K = 1 },
		"missing value": func(s *RiverFileSpec) {
			s.Rivers = append(s.Rivers, RiverMouth{I: 2, J: 2, Discharge: 1, Tracers: map[string]Number{"S": 30}})
		},
	} {
		t.Run("river "+name, func(t *testing.T) {
			s := river()
			edit(s)
			f := tempArchive(t)
			defer os.Remove(f.Name())
			defer f.Close()
			if _, err := WriteRiverFile(f, s); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

// TestGeneratedBoundaryForcing checks that a generated boundary archive
// drives relaxation through Assemble.
func TestGeneratedBoundaryForcing(t *testing.T) {
	const nx, ny, nz, bw = 10, 10, 5, 2
	f := tempArchive(t)
	defer os.Remove(f.Name())
	_, err := WriteBoundaryFile(f, &BoundaryFileSpec{
		Nx: nx, Ny: ny, Nz: nz,
		TimeAxis:    sixHourly,
		BufferWidth: bw,
		Tracers: map[string]BoundaryTracer{
			"T": {West: fp(5), East: fp(5), South: fp(5), North: fp(5)},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	f.Close()

	g := testGrid(t, nx, ny, nz)
	set, err := Assemble(&Config{BoundaryFile: f.Name(), Tracers: []string{"T"}, BufferWidth: bw}, g)
	if err != nil {
		t.Fatal(err)
	}
	res, err := set.Tendencies(g, UniformState{"T": 3}, 3600)
	if err != nil {
		t.Fatal(err)
	}
	// The mask and the stored rate both decay: 1e-4 · 1/2 · 1/2 · 2.
	for _, test := range []struct {
		i, j int
		want float64
	}{
		{0, 4, 2e-4},
		{1, 4, 5e-5},
		{2, 4, 0},
		{5, 5, 0},
	} {
		v := res["T"].Get(2, test.j, test.i)
		if test.want == 0 && v != 0 || test.want != 0 && different(v, test.want, 1e-6) {
			t.Errorf("(%d,%d): have %g, want %g", test.i, test.j, v, test.want)
		}
	}
}

func TestGenerateZeroValues(t *testing.T) {
	const nx, ny, nz, bw = 10, 10, 5, 2
	bf := tempArchive(t)
	defer os.Remove(bf.Name())
	if _, err := WriteBoundaryFile(bf, &BoundaryFileSpec{
		Nx: nx, Ny: ny, Nz: nz,
		TimeAxis:    sixHourly,
		BufferWidth: bw,
		Tracers: map[string]BoundaryTracer{
			"T": {West: fp(0), East: fp(2)},
		},
	}); err != nil {
		t.Fatal(err)
	}
	bf.Close()
	rf := tempArchive(t)
	defer os.Remove(rf.Name())
	if _, err := WriteRiverFile(rf, &RiverFileSpec{
		Nx: nx, Ny: ny, Nz: nz,
		TimeAxis: sixHourly,
		Rivers: []RiverMouth{
			{I: 5, J: 5, K: 2, Discharge: 10, Tracers: map[string]Number{"T": 1, "S": 0}},
		},
	}); err != nil {
		t.Fatal(err)
	}
	rf.Close()

	shape := [3]int{nx, ny, nz}
	if v := readField(t, bf.Name(), "T", shape, 0)(0, 4, 2); v != 0 {
		t.Errorf("boundary value: have %g, want 0", v)
	}
	if v := readField(t, bf.Name(), "T"+RateSuffix, shape, 0)(0, 4, 2); different(v, 1e-4, 1e-6) {
		t.Errorf("boundary rate: have %g, want 1e-4", v)
	}
	if v := readField(t, rf.Name(), "S", shape, 0)(5, 5, 2); v != 0 {
		t.Errorf("river value: have %g, want 0", v)
	}

	g := testGrid(t, nx, ny, nz)
	set, err := Assemble(&Config{
		BoundaryFile: bf.Name(),
		RiverFile:    rf.Name(),
		Tracers:      []string{"T", "S"},
		BufferWidth:  bw,
	}, g)
	if err != nil {
		t.Fatal(err)
	}
	res, err := set.Tendencies(g, UniformState{"T": 3, "S": 34}, 0)
	if err != nil {
		t.Fatal(err)
	}
	// 0 °C water relaxes the west edge: -1e-4 · (3 - 0).
	if v := res["T"].Get(2, 4, 0); different(v, -3e-4, 1e-6) {
		t.Errorf("west edge T: have %g, want -3e-4", v)
	}
	// Fresh river water: 10 m3/s · 1 m2 / 1 m3 · (0 - 34).
	if v := res["S"].Get(2, 5, 5); different(v, -340, 1e-9) {
		t.Errorf("river mouth S: have %g, want -340", v)
	}
}
