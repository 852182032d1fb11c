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

// Package fjordforceutil provides the command-line interface and
// configuration handling for FjordForce.
package fjordforceutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fjordssim/fjordforce"
	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to FjordForce.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "LogLevel",
			usage: `
              LogLevel specifies the minimum level of log messages to print.
              Valid values are panic, fatal, error, warning, info, and debug.`,
			defaultVal: "info",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "BoundaryFile",
			usage: `
              BoundaryFile is the path to the open boundary forcing archive.
              For each forced tracer X it holds the boundary value X and the
              relaxation rate X_lambda [1/s]. It may be a local path or a
              http(s)://, gs://, s3://, or file:// location, in which case it is
              downloaded before use.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{checkCmd.Flags(), evaluateCmd.Flags()},
		},
		{
			name: "RiverFile",
			usage: `
              RiverFile is the path to the river forcing archive. For each
              forced tracer X it holds the river volume flux X_flux [m3/s] and
              the river value X. Remote locations are downloaded as for BoundaryFile.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{checkCmd.Flags(), evaluateCmd.Flags()},
		},
		{
			name: "Tracers",
			usage: `
              Tracers is a list of the model fields that may be forced. Fields
              without data in the forcing archives are not forced.`,
			defaultVal: []string{"T", "S"},
			flagsets:   []*pflag.FlagSet{checkCmd.Flags(), evaluateCmd.Flags()},
		},
		{
			name: "BufferWidth",
			usage: `
              BufferWidth is the number of grid cells over which the boundary
              relaxation weight decays from 1 at the boundary face to 0.`,
			defaultVal: 10,
			flagsets:   []*pflag.FlagSet{checkCmd.Flags(), evaluateCmd.Flags(), maskCmd.Flags()},
		},
		{
			name: "WindowLength",
			usage: `
              WindowLength is the number of archive records held in memory
              for each forcing variable.`,
			defaultVal: fjordforce.DefaultWindowLength,
			flagsets:   []*pflag.FlagSet{checkCmd.Flags(), evaluateCmd.Flags()},
		},
		{
			name: "CacheSize",
			usage: `
              CacheSize is the number of archive reads to keep in memory and
              reuse when the time axis cycles. 0 disables the cache.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{checkCmd.Flags(), evaluateCmd.Flags()},
		},
		{
			name: "Grid.Nx",
			usage: `
              Grid.Nx is the number of grid cells in the x direction.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{checkCmd.Flags(), evaluateCmd.Flags(), maskCmd.Flags()},
		},
		{
			name: "Grid.Ny",
			usage: `
              Grid.Ny is the number of grid cells in the y direction.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{checkCmd.Flags(), evaluateCmd.Flags(), maskCmd.Flags()},
		},
		{
			name: "Grid.Nz",
			usage: `
              Grid.Nz is the number of vertical layers.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{checkCmd.Flags(), evaluateCmd.Flags(), maskCmd.Flags()},
		},
		{
			name: "Grid.Dx",
			usage: `
              Grid.Dx is the grid cell length in the x direction [m].`,
			defaultVal: 1000.0,
			flagsets:   []*pflag.FlagSet{checkCmd.Flags(), evaluateCmd.Flags(), maskCmd.Flags()},
		},
		{
			name: "Grid.Dy",
			usage: `
              Grid.Dy is the grid cell length in the y direction [m].`,
			defaultVal: 1000.0,
			flagsets:   []*pflag.FlagSet{checkCmd.Flags(), evaluateCmd.Flags(), maskCmd.Flags()},
		},
		{
			name: "Grid.Dz",
			usage: `
              Grid.Dz is the layer thickness [m], either one value for all
              layers or one value for each layer starting at the bottom.`,
			defaultVal: []string{"10"},
			flagsets:   []*pflag.FlagSet{checkCmd.Flags(), evaluateCmd.Flags(), maskCmd.Flags()},
		},
		{
			name: "Time",
			usage: `
              Time is the simulation time [s] at which to evaluate the forcing.`,
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{evaluateCmd.Flags()},
		},
		{
			name: "State",
			usage: `
              State gives the uniform model value of each tracer that the
              forcing is evaluated against, as a JSON object such as
              '{"T": "10", "S": "35"}'. Tracers that are not given are NaN.`,
			defaultVal: map[string]string{"T": "10", "S": "35"},
			flagsets:   []*pflag.FlagSet{evaluateCmd.Flags()},
		},
		{
			name: "OutputFile",
			usage: `
              OutputFile is the path to the file to write. It may be a gs://,
              s3://, or file:// location, in which case the file is uploaded
              after it is written.`,
			shorthand:  "o",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{maskCmd.Flags(), generateCmd.PersistentFlags()},
		},
		{
			name: "GeneratorConfig",
			usage: `
              GeneratorConfig is the path to the TOML file describing the
              forcing archive to generate.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{generateCmd.PersistentFlags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("FJORDFORCE")
	Cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	Cfg.AutomaticEnv()

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case []string:
				if option.shorthand == "" {
					set.StringSlice(option.name, option.defaultVal.([]string), option.usage)
				} else {
					set.StringSliceP(option.name, option.shorthand, option.defaultVal.([]string), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			case float64:
				if option.shorthand == "" {
					set.Float64(option.name, option.defaultVal.(float64), option.usage)
				} else {
					set.Float64P(option.name, option.shorthand, option.defaultVal.(float64), option.usage)
				}
			case map[string]string:
				b := bytes.NewBuffer(nil)
				e := json.NewEncoder(b)
				e.Encode(option.defaultVal)
				s := strings.TrimSpace(b.String())
				if option.shorthand == "" {
					set.String(option.name, s, option.usage)
				} else {
					set.StringP(option.name, option.shorthand, s, option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(checkCmd)
	Root.AddCommand(maskCmd)
	Root.AddCommand(evaluateCmd)
	Root.AddCommand(generateCmd)
	generateCmd.AddCommand(generateBoundaryCmd)
	generateCmd.AddCommand(generateRiverCmd)
}

// setConfig finds and reads in the configuration file, if there is one,
// and sets up logging.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(os.ExpandEnv(cfgpath))
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("fjordforce: problem reading configuration file: %v", err)
		}
	}
	lvl, err := logrus.ParseLevel(Cfg.GetString("LogLevel"))
	if err != nil {
		return fmt.Errorf("fjordforce: invalid LogLevel: %v", err)
	}
	logrus.SetLevel(lvl)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "fjordforce",
	Short: "Boundary and river forcing for regional ocean models.",
	Long: `FjordForce supplies open boundary and river forcing to a regional ocean
model from gridded netCDF archives. Use the subcommands specified below to
check forcing archives against a model grid, evaluate the forcing, and
generate forcing archives and boundary masks.

Refer to the subcommand documentation for configuration options and default settings.
Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'FJORDFORCE_var' where 'var' is the
name of the variable to be set, with '.' replaced by '_'. Many configuration
variables are additionally allowed to contain environment variables within them.
Refer to https://github.com/spf13/viper for additional configuration information.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of FjordForce.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("FjordForce v%s\n", fjordforce.Version)
	},
	DisableAutoGenTag: true,
}

// checkCmd is a command that checks forcing archives against the grid.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check forcing archives",
	Long: `check opens the configured forcing archives, verifies that their
extents match the model grid, and lists the forced tracers together with
the record count and cycle length of each archive.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := GridConfig(Cfg)
		if err != nil {
			return err
		}
		fc, err := ForcingConfig(context.Background(), Cfg)
		if err != nil {
			return err
		}
		return Check(cmd.OutOrStdout(), fc, g, SourceOptions(Cfg)...)
	},
	DisableAutoGenTag: true,
}

// maskCmd is a command that writes the boundary mask.
var maskCmd = &cobra.Command{
	Use:   "mask",
	Short: "Write the boundary mask",
	Long: `mask builds the boundary relaxation mask for the configured grid and
buffer width and writes it as a netCDF file to OutputFile.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := GridConfig(Cfg)
		if err != nil {
			return err
		}
		out, err := checkOutputFile(Cfg.GetString("OutputFile"))
		if err != nil {
			return err
		}
		var u uploader
		if err := WriteMask(u.maybeUpload(out), g, Cfg.GetInt("BufferWidth")); err != nil {
			return err
		}
		return u.upload(context.Background())
	},
	DisableAutoGenTag: true,
}

// evaluateCmd is a command that evaluates the forcing tendencies.
var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate forcing tendencies",
	Long: `evaluate assembles the configured forcing, evaluates the tendency of
every forced tracer in every grid cell at simulation time Time for the
uniform model state State, and prints statistics of the results.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := GridConfig(Cfg)
		if err != nil {
			return err
		}
		st, err := StateConfig(Cfg)
		if err != nil {
			return err
		}
		fc, err := ForcingConfig(context.Background(), Cfg)
		if err != nil {
			return err
		}
		_, err = Evaluate(cmd.OutOrStdout(), fc, g, st, Cfg.GetFloat64("Time"), SourceOptions(Cfg)...)
		return err
	},
	DisableAutoGenTag: true,
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate forcing archives",
	Long: `generate writes forcing archives from a TOML description given by
GeneratorConfig. Use the subcommands specified below to choose the kind
of archive.`,
	DisableAutoGenTag: true,
}

// generateFunc returns the RunE function of a generate subcommand.
func generateFunc(gen func(w io.Writer, specPath, outPath string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		out, err := checkOutputFile(Cfg.GetString("OutputFile"))
		if err != nil {
			return err
		}
		var u uploader
		if err := gen(cmd.OutOrStdout(), Cfg.GetString("GeneratorConfig"), u.maybeUpload(out)); err != nil {
			return err
		}
		return u.upload(context.Background())
	}
}

var generateBoundaryCmd = &cobra.Command{
	Use:   "boundary",
	Short: "Generate an open boundary archive",
	Long: `boundary writes an open boundary forcing archive. The configuration
gives the grid extents (nx, ny, nz), the time axis (start_date,
time_step_hours, num_steps), buffer_width, and a [tracers.X] table for
each tracer with optional west, east, south, north, and lambda values.`,
	RunE:              generateFunc(GenerateBoundary),
	DisableAutoGenTag: true,
}

var generateRiverCmd = &cobra.Command{
	Use:   "river",
	Short: "Generate a river archive",
	Long: `river writes a river forcing archive. The configuration gives the
grid extents (nx, ny, nz), the time axis (start_date, time_step_hours,
num_steps), and a [[rivers]] entry for each river mouth with its cell
(i, j, k), discharge [m3/s], and a tracers table of river values.`,
	RunE:              generateFunc(GenerateRiver),
	DisableAutoGenTag: true,
}
