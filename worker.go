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
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// TileWorker processes a single tile of one chunk: it slices the
// chunk's input and reference surfaces to the tile, runs the
// calculator, and persists the result as a tile artifact.
type TileWorker struct {
	// Calculator computes the derived variables for each tile.
	Calculator Calculator

	// KeepPartial controls what happens when the calculator fails for
	// some of its outputs but produces others: if true the produced
	// outputs are kept and persisted, if false (the default) the whole
	// tile fails.
	KeepPartial bool

	// Dir is the chunk-scoped staging directory artifacts are written
	// to.
	Dir string

	// writeMx serializes artifact writes so only one worker touches
	// storage at a time.
	writeMx *sync.Mutex
}

// Process runs the calculator on tile's window into chunk and writes
// the result to an artifact file in w.Dir. Inputs are sliced with
// copying subsets, so concurrent Process calls on sibling tiles share
// no mutable state. Failures of any stage are reported as a
// TileComputationError; no artifact file remains on failure.
func (w *TileWorker) Process(ctx context.Context, chunk *Dataset, tile TileSpec, cache *ReferenceCache) (TileArtifact, error) {
	in, err := chunk.SubsetLatLon(tile)
	if err != nil {
		return TileArtifact{}, &TileComputationError{Tile: tile.Name, Err: err}
	}
	var refs map[string]*ReferenceSurface
	if cache != nil {
		if refs, err = cache.Subset(ctx, tile); err != nil {
			return TileArtifact{}, &TileComputationError{Tile: tile.Name, Err: err}
		}
	}
	result, err := w.Calculator.Compute(in, refs)
	if err != nil {
		var ce CalculationErrors
		if w.KeepPartial && errors.As(err, &ce) && result != nil && len(result.Data) > 0 {
			log.Printf("climtile: tile %s: keeping partial result: %v", tile.Name, err)
		} else {
			return TileArtifact{}, &TileComputationError{Tile: tile.Name, Err: err}
		}
	}
	if result == nil {
		return TileArtifact{}, &TileComputationError{Tile: tile.Name,
			Err: fmt.Errorf("calculator returned no result")}
	}
	result.Name = tile.Name
	result.LatStart = in.LatStart
	result.LonStart = in.LonStart

	path := filepath.Join(w.Dir, "tile_"+tile.Name+".nc")
	w.writeMx.Lock()
	err = writeArtifact(path, result)
	w.writeMx.Unlock()
	if err != nil {
		os.Remove(path)
		return TileArtifact{}, &TileComputationError{Tile: tile.Name, Err: err}
	}
	return TileArtifact{Tile: tile, Path: path}, nil
}
