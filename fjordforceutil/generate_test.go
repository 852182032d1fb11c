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

package fjordforceutil

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/fjordssim/fjordforce"
)

func TestDecodeSpecNumbers(t *testing.T) {
	dir := testDir(t)
	defer os.RemoveAll(dir)
	var b fjordforce.BoundaryFileSpec
	if err := decodeSpec(filepath.Join(dir, "boundary.toml"), &b); err != nil {
		t.Fatal(err)
	}
	tr := b.Tracers["T"]
	if b.TimeStepHours != 24 || *tr.West != 5 || *tr.East != 5 || *tr.Lambda != 1e-4 || tr.North == nil {
		t.Errorf("boundary: %+v, T: %+v", b, tr)
	}
	var r fjordforce.RiverFileSpec
	if err := decodeSpec(filepath.Join(dir, "river.toml"), &r); err != nil {
		t.Fatal(err)
	}
	if len(r.Rivers) != 1 || r.Rivers[0].Discharge != 100 || r.Rivers[0].Tracers["T"] != 1 || r.Rivers[0].Tracers["S"] != 0 {
		t.Errorf("rivers: %+v", r.Rivers)
	}

	for name, spec := range map[string]string{
		"string":  "nx = 1\nny = 1\nnz = 1\ntime_step_hours = \"1\"\n",
		"boolean": "nx = 1\nny = 1\nnz = 1\n[tracers.T]\nwest = true\n",
	} {
		p := filepath.Join(dir, name+".toml")
		if err := ioutil.WriteFile(p, []byte(spec), 0644); err != nil {
			t.Fatal(err)
		}
		if err := decodeSpec(p, &b); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
}
