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

package climtile

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// ChunkDriver walks a multi-decade run one time chunk at a time:
// load the chunk's input, tile it, schedule the tile workers, merge
// the tile artifacts, and write one output file per chunk. Chunks run
// sequentially; a failed chunk is recorded and skipped while the rest
// of the run continues.
type ChunkDriver struct {
	Input      InputSource
	Cache      *ReferenceCache
	Calculator Calculator
	Scheduler  *TileScheduler

	// OutputDir receives one merged NetCDF file per successful chunk,
	// named OutputPrefix_<start>-<end>.nc.
	OutputDir    string
	OutputPrefix string

	// WorkDir is where per-chunk tile staging directories are created.
	// Empty means the system temporary directory.
	WorkDir string

	// ChunkTimeout bounds each chunk's wall-clock time. Zero means no
	// limit.
	ChunkTimeout time.Duration
}

// ChunkRecord reports the outcome of one chunk.
type ChunkRecord struct {
	Start  int    `json:"start"`
	End    int    `json:"end"`
	Status string `json:"status"`
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// RunSummary reports the outcome of a whole run.
type RunSummary struct {
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Chunks    []ChunkRecord `json:"chunks"`
}

// Run processes the calendar years start through end inclusive in
// chunks of chunkSize years, splitting each chunk's domain into
// tileCount tiles. An invalid tile count or time range fails the whole
// run before any chunk starts; after that, each chunk fails or
// succeeds on its own, and the summary records both. Canceling ctx
// ends the run at the next chunk boundary, returning the summary of
// the chunks that ran along with the context's error.
func (d *ChunkDriver) Run(ctx context.Context, start, end, chunkSize, tileCount int) (*RunSummary, error) {
	if end < start {
		return nil, fmt.Errorf("climtile: end year %d is before start year %d", end, start)
	}
	if chunkSize < 1 {
		return nil, fmt.Errorf("climtile: invalid chunk size %d", chunkSize)
	}
	tiles, err := ComputeTiles(d.Input.Extent(), tileCount)
	if err != nil {
		return nil, err
	}
	summary := new(RunSummary)
	for cs := start; cs <= end; cs += chunkSize {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		ce := cs + chunkSize - 1
		if ce > end {
			ce = end
		}
		rec := ChunkRecord{Start: cs, End: ce}
		output, err := d.runChunk(ctx, cs, ce+1, tiles, tileCount)
		if err != nil {
			log.Printf("climtile: chunk %d-%d failed: %v", cs, ce, err)
			rec.Status = "failed"
			rec.Error = firstError(err).Error()
			summary.Failed++
		} else {
			rec.Status = "succeeded"
			rec.Output = output
			summary.Succeeded++
		}
		summary.Chunks = append(summary.Chunks, rec)
	}
	return summary, nil
}

// runChunk processes the years [start, end) and returns the path of
// the merged output file. The tile staging directory is created before
// any tile starts and removed when the chunk finishes, success or not.
func (d *ChunkDriver) runChunk(ctx context.Context, start, end int, tiles []TileSpec, tileCount int) (string, error) {
	if d.ChunkTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.ChunkTimeout)
		defer cancel()
	}
	dir, err := os.MkdirTemp(d.WorkDir, "climtile_tiles")
	if err != nil {
		return "", fmt.Errorf("climtile: creating tile staging directory: %v", err)
	}
	defer os.RemoveAll(dir)

	chunk, err := d.Input.LoadChunk(start, end)
	if err != nil {
		return "", err
	}
	artifacts, err := d.Scheduler.RunChunk(ctx, chunk, tiles, d.Cache, d.Calculator, dir)
	if err != nil {
		return "", err
	}
	merged, err := Merge(artifacts, chunk.Extent())
	if err != nil {
		return "", err
	}
	merged.TimeRange = fmt.Sprintf("%d-%d", start, end-1)
	merged.TileCount = tileCount

	path := filepath.Join(d.OutputDir, fmt.Sprintf("%s_%d-%d.nc", d.OutputPrefix, start, end-1))
	if err := writeArtifact(path, merged); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// firstError unwraps a TileErrors to its first member, so chunk
// records report a concrete failure rather than a concatenation.
func firstError(err error) error {
	if errs, ok := err.(TileErrors); ok && len(errs) > 0 {
		return errs[0]
	}
	return err
}
