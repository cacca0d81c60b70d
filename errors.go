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
	"fmt"
	"strings"
)

// InvalidTileCountError indicates a requested tile count for which no
// domain decomposition is defined.
type InvalidTileCountError struct {
	Count int
}

func (e *InvalidTileCountError) Error() string {
	return fmt.Sprintf("climtile: invalid tile count %d; valid options are 1, 2, 4, and 8", e.Count)
}

// TileComputationError indicates that processing failed for one tile.
type TileComputationError struct {
	Tile string
	Err  error
}

func (e *TileComputationError) Error() string {
	return fmt.Sprintf("climtile: computing tile %s: %v", e.Tile, e.Err)
}

func (e *TileComputationError) Unwrap() error { return e.Err }

// TileErrors aggregates the failures from all tiles of one chunk.
type TileErrors []error

func (e TileErrors) Error() string {
	s := make([]string, len(e))
	for i, err := range e {
		s[i] = err.Error()
	}
	return fmt.Sprintf("climtile: %d tile(s) failed: %s", len(e), strings.Join(s, "; "))
}

// DimensionMismatchError indicates that a set of tiles does not
// reassemble to the expected full-domain shape. It signals a tiling or
// merge bug and is never masked by padding or truncation.
type DimensionMismatchError struct {
	Expected, Actual GridExtent

	// Reason optionally describes where the partition broke down.
	Reason string
}

func (e *DimensionMismatchError) Error() string {
	s := fmt.Sprintf("climtile: merged dimensions %d×%d don't match expected extent %d×%d",
		e.Actual.LatCount, e.Actual.LonCount, e.Expected.LatCount, e.Expected.LonCount)
	if e.Reason != "" {
		s += ": " + e.Reason
	}
	return s
}

// ArtifactIOError indicates a failure reading or writing a tile
// artifact, chunk output, or backing data file.
type ArtifactIOError struct {
	Op   string
	Path string
	Err  error
}

func (e *ArtifactIOError) Error() string {
	return fmt.Sprintf("climtile: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ArtifactIOError) Unwrap() error { return e.Err }
