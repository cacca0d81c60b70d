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

package climtileutil

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/lnashier/viper"
	"github.com/spatialmodel/climtile"
	"github.com/spatialmodel/climtile/indices/basicindices"
	"github.com/spf13/cast"
)

// Run assembles the engine from cfg and processes the configured year
// range. Diagnostic output goes to the configured log file, or to
// standard error if none is configured.
func Run(ctx context.Context, cfg *viper.Viper) (*climtile.RunSummary, error) {
	if logFile := os.ExpandEnv(cfg.GetString("LogFile")); logFile != "" {
		f, err := os.Create(logFile)
		if err != nil {
			return nil, fmt.Errorf("climtile: creating log file: %v", err)
		}
		log.SetOutput(f)
		defer func() {
			log.SetOutput(os.Stderr)
			f.Close()
		}()
	}

	inputFile := os.ExpandEnv(cfg.GetString("InputFile"))
	if inputFile == "" {
		return nil, fmt.Errorf("climtile: no InputFile is specified; set it in the configuration file or with --InputFile")
	}
	input, err := climtile.OpenFileInput(inputFile, cfg.GetString("InputVar"))
	if err != nil {
		return nil, err
	}
	defer input.Close()

	var cache *climtile.ReferenceCache
	refVars := expandStringSlice(cfg.GetStringSlice("ReferenceVars"))
	if refFile := os.ExpandEnv(cfg.GetString("ReferenceFile")); refFile != "" {
		if cache, err = climtile.OpenReferenceCache(refFile, refVars); err != nil {
			return nil, err
		}
		defer cache.Close()
	}
	thresholdVar := cfg.GetString("ThresholdVar")
	if thresholdVar == "" && len(refVars) > 0 {
		thresholdVar = refVars[0]
	}

	sched := &climtile.TileScheduler{
		MaxWorkers:  cast.ToInt(cfg.Get("MaxWorkers")),
		KeepPartial: cfg.GetBool("KeepPartial"),
	}
	d := &climtile.ChunkDriver{
		Input:        input,
		Cache:        cache,
		Calculator:   &basicindices.Calculator{ThresholdVar: thresholdVar},
		Scheduler:    sched,
		OutputDir:    os.ExpandEnv(cfg.GetString("OutputDir")),
		OutputPrefix: cfg.GetString("OutputPrefix"),
		WorkDir:      os.ExpandEnv(cfg.GetString("WorkDir")),
		ChunkTimeout: time.Duration(cfg.GetInt("ChunkTimeoutSeconds")) * time.Second,
	}
	return d.Run(ctx, cfg.GetInt("start"), cfg.GetInt("end"),
		cfg.GetInt("chunk-size"), cfg.GetInt("tiles"))
}

// expandStringSlice expands the environment variables in a slice of strings.
func expandStringSlice(s []string) []string {
	for i := 0; i < len(s); i++ {
		s[i] = os.ExpandEnv(s[i])
	}
	return s
}
