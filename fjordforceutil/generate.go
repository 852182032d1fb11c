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
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// decodeSpec reads the TOML generator configuration at path into v.
// Keys that do not match a field of v are an error.
func decodeSpec(path string, v interface{}) error {
	if path == "" {
		return fmt.Errorf("fjordforce: you need to specify a generator configuration file (GeneratorConfig)")
	}
	f, err := os.Open(os.ExpandEnv(path))
	if err != nil {
		return fmt.Errorf("fjordforce: opening generator configuration: %v", err)
	}
	defer f.Close()
	md, err := toml.DecodeReader(f, v)
	if err != nil {
		return fmt.Errorf("fjordforce: reading generator configuration %s: %v", path, err)
	}
	if undec := md.Undecoded(); len(undec) > 0 {
		return fmt.Errorf("fjordforce: unknown keys in generator configuration %s: %v", path, undec)
	}
	return nil
}
