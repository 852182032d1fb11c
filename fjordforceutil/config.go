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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fjordssim/fjordforce"
	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
)

// ForcingConfig creates a forcing configuration from the information
// in cfg. Remote archives are downloaded.
func ForcingConfig(ctx context.Context, cfg *viper.Viper) (*fjordforce.Config, error) {
	c := &fjordforce.Config{
		Tracers:     expandStringSlice(cfg.GetStringSlice("Tracers")),
		BufferWidth: cfg.GetInt("BufferWidth"),
	}
	if len(c.Tracers) == 0 {
		return nil, fmt.Errorf("fjordforce: there are no tracers specified. Please fill in " +
			"the Tracers configuration and try again")
	}
	var err error
	if c.BoundaryFile, err = maybeDownload(ctx, os.ExpandEnv(cfg.GetString("BoundaryFile"))); err != nil {
		return nil, err
	}
	if c.RiverFile, err = maybeDownload(ctx, os.ExpandEnv(cfg.GetString("RiverFile"))); err != nil {
		return nil, err
	}
	if c.BoundaryFile == "" && c.RiverFile == "" {
		return nil, fmt.Errorf("fjordforce: neither BoundaryFile nor RiverFile is specified")
	}
	return c, nil
}

// GridConfig creates the evaluation grid from the information in cfg.
// Grid.Dz holds either one layer thickness or one per layer.
func GridConfig(cfg *viper.Viper) (*fjordforce.RegularGrid, error) {
	dzs, err := cast.ToStringSliceE(cfg.Get("Grid.Dz"))
	if err != nil {
		return nil, fmt.Errorf("fjordforce: reading Grid.Dz: %v", err)
	}
	var dz []float64
	for _, s := range dzs {
		for _, f := range strings.Split(s, ",") {
			if f = strings.TrimSpace(f); f == "" {
				continue
			}
			v, err := cast.ToFloat64E(f)
			if err != nil {
				return nil, fmt.Errorf("fjordforce: reading Grid.Dz: %v", err)
			}
			dz = append(dz, v)
		}
	}
	return fjordforce.NewRegularGrid(
		cfg.GetInt("Grid.Nx"), cfg.GetInt("Grid.Ny"), cfg.GetInt("Grid.Nz"),
		cfg.GetFloat64("Grid.Dx"), cfg.GetFloat64("Grid.Dy"), dz...)
}

// SourceOptions returns the field source options specified in cfg.
// When CacheSize is positive, archive reads go through a frame cache
// shared by all sources.
func SourceOptions(cfg *viper.Viper) []fjordforce.SourceOption {
	opts := []fjordforce.SourceOption{
		fjordforce.WindowLength(cfg.GetInt("WindowLength")),
		fjordforce.WithLogger(logrus.StandardLogger()),
	}
	if n := cfg.GetInt("CacheSize"); n > 0 {
		opts = append(opts, fjordforce.WithReader(fjordforce.NewFrameCache(fjordforce.ArchiveReader{}, n)))
	}
	return opts
}

// StateConfig returns the uniform model state specified in the State
// configuration variable.
func StateConfig(cfg *viper.Viper) (fjordforce.UniformState, error) {
	m, err := GetStringMapString("State", cfg)
	if err != nil {
		return nil, err
	}
	st := make(fjordforce.UniformState)
	for k, v := range m {
		f, err := cast.ToFloat64E(strings.TrimSpace(os.ExpandEnv(v)))
		if err != nil {
			return nil, fmt.Errorf("fjordforce: State value for %s: %v", k, err)
		}
		st[k] = f
	}
	return st, nil
}

// GetStringMapString returns a map[string]string from a viper configuration,
// accounting for the fact that it might be a json object if it was set
// from a command line argument.
func GetStringMapString(varName string, cfg *viper.Viper) (map[string]string, error) {
	i := cfg.Get(varName)
	switch v := i.(type) {
	case map[string]string:
		return v, nil
	case map[string]interface{}:
		return cast.ToStringMapStringE(v)
	case string:
		o := make(map[string]string)
		if v == "" {
			return o, nil
		}
		d := json.NewDecoder(bytes.NewBufferString(v))
		if err := d.Decode(&o); err != nil {
			return nil, fmt.Errorf("fjordforce: reading %s: %v", varName, err)
		}
		return o, nil
	default:
		return nil, fmt.Errorf("fjordforce: invalid type for %s: %#v", varName, i)
	}
}

// expandStringSlice expands the environment variables in a slice of strings.
func expandStringSlice(s []string) []string {
	for i := 0; i < len(s); i++ {
		s[i] = os.ExpandEnv(s[i])
	}
	return s
}

// checkOutputFile makes sure that the output file is specified and its
// directory exists, and expands any environment variables.
func checkOutputFile(f string) (string, error) {
	if f == "" {
		return "", fmt.Errorf(`fjordforce: you need to specify an output file configuration variable (for example: OutputFile="mask.nc")`)
	}
	f = os.ExpandEnv(f)
	if IsBlob(f) {
		return f, nil
	}
	outdir := filepath.Dir(f)
	if _, err := os.Stat(outdir); err != nil {
		return f, fmt.Errorf("fjordforce: the OutputFile directory doesn't exist: %v", err)
	}
	return f, nil
}
