/*
Copyright © 2024 the ClimTile authors.
This file is part of ClimTile.

ClimTile is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

ClimTile is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with ClimTile.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package climtileutil wires the climtile engine to its command-line
// interface and configuration.
package climtileutil

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/lnashier/viper"
	"github.com/spatialmodel/climtile"
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
	// Options are the configuration options available to ClimTile.
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
			name: "start",
			usage: `
              start specifies the first calendar year (inclusive) to process.`,
			defaultVal: 1991,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "end",
			usage: `
              end specifies the last calendar year (inclusive) to process.`,
			defaultVal: 2020,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "chunk-size",
			usage: `
              chunk-size specifies how many years are processed per time chunk.
              Chunks run sequentially; a failed chunk is skipped and the run
              continues with the next one.`,
			defaultVal: 1,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "tiles",
			usage: `
              tiles specifies how many spatial tiles each chunk's domain is
              split into for parallel processing. Valid values are 1, 2, 4,
              and 8.`,
			defaultVal: 4,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "InputFile",
			usage: `
              InputFile is the path to the NetCDF file holding the daily
              gridded input variable.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "InputVar",
			usage: `
              InputVar is the name of the input variable within InputFile.`,
			defaultVal: "tasmax",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "ReferenceFile",
			usage: `
              ReferenceFile is the path to the NetCDF file holding reference
              surfaces, for example percentile threshold climatologies. Leave
              empty to run without reference surfaces.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "ReferenceVars",
			usage: `
              ReferenceVars lists the reference surface variable names to make
              available to the index calculator.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "ThresholdVar",
			usage: `
              ThresholdVar names the reference surface used as the exceedance
              threshold. The default is the first entry of ReferenceVars.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "OutputDir",
			usage: `
              OutputDir is the directory that receives one merged NetCDF file
              per successful chunk.`,
			defaultVal: ".",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "OutputPrefix",
			usage: `
              OutputPrefix is the file name prefix of the per-chunk output
              files, which are named <OutputPrefix>_<start>-<end>.nc.`,
			defaultVal: "climtile",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "LogFile",
			usage: `
              LogFile is the path to the run's diagnostic log. The default is
              to log to standard error.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "WorkDir",
			usage: `
              WorkDir is the directory where per-chunk tile staging
              directories are created. The default is the system temporary
              directory.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "MaxWorkers",
			usage: `
              MaxWorkers caps the number of tiles processed concurrently
              within one chunk.`,
			defaultVal: 8,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "KeepPartial",
			usage: `
              KeepPartial keeps the outputs a calculator did produce when it
              fails to produce others, filling the rest with the missing-value
              sentinel. If false, any calculation failure fails the whole
              tile.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "ChunkTimeoutSeconds",
			usage: `
              ChunkTimeoutSeconds bounds each chunk's wall-clock time in
              seconds. Zero means no limit.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("CLIMTILE")

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
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, option.defaultVal.(bool), option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
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
	Root.AddCommand(runCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("climtile: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "climtile",
	Short: "A tiled climate index engine.",
	Long: `ClimTile computes derived climate index statistics over multi-decade
gridded daily time series, processing the record one time chunk at a time and
splitting each chunk's spatial domain into tiles that are processed in
parallel.

Refer to the subcommand documentation for configuration options and default
settings. Configuration can be changed by using a configuration file (and
providing the path to the file using the --config flag), by using command-line
arguments, or by setting environment variables in the format 'CLIMTILE_var'
where 'var' is the name of the variable to be set.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of ClimTile.",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ClimTile v%s\n", climtile.Version)
	},
	DisableAutoGenTag: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the engine.",
	Long: `run processes the configured year range chunk by chunk and writes one
merged NetCDF file per successful chunk. A machine-readable JSON summary of
the run is printed to standard output; the command exits with an error if any
chunk failed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		summary, err := Run(context.Background(), Cfg)
		if err != nil {
			return err
		}
		e := json.NewEncoder(os.Stdout)
		e.SetIndent("", "  ")
		if err := e.Encode(summary); err != nil {
			return err
		}
		if summary.Failed > 0 {
			return fmt.Errorf("climtile: %d of %d chunks failed", summary.Failed, len(summary.Chunks))
		}
		return nil
	},
	DisableAutoGenTag: true,
}
