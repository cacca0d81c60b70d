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

	"github.com/ctessum/sparse"
)

// Merge reassembles a set of tile artifacts into one full-domain
// dataset covering expected. Every cell of the expected extent must be
// covered by exactly one tile; a tile outside the extent, a gap, or an
// overlap returns a DimensionMismatchError rather than padding or
// truncating anything. All tiles must share the same time coordinate.
//
// Variables are merged by name over the union of the tiles' variable
// sets, so tiles carrying partial results still contribute what they
// have; cells of the full domain not covered by a variable are set to
// MissingValue.
func Merge(artifacts []TileArtifact, expected GridExtent) (*Dataset, error) {
	if len(artifacts) == 0 {
		return nil, fmt.Errorf("climtile: merging zero tile artifacts")
	}
	tiles := make([]*Dataset, len(artifacts))
	for i, a := range artifacts {
		d, err := readArtifact(a.Path)
		if err != nil {
			return nil, err
		}
		if len(d.Lats) != a.Tile.LatLen() || len(d.Lons) != a.Tile.LonLen() {
			return nil, &DimensionMismatchError{
				Expected: GridExtent{LatCount: a.Tile.LatLen(), LonCount: a.Tile.LonLen()},
				Actual:   d.Extent(),
				Reason:   fmt.Sprintf("tile %s artifact does not match its tile geometry", a.Tile.Name),
			}
		}
		if d.LatStart != a.Tile.LatStart || d.LonStart != a.Tile.LonStart {
			return nil, &DimensionMismatchError{
				Expected: expected,
				Actual:   d.Extent(),
				Reason: fmt.Sprintf("tile %s artifact is anchored at (%d,%d); want (%d,%d)",
					a.Tile.Name, d.LatStart, d.LonStart, a.Tile.LatStart, a.Tile.LonStart),
			}
		}
		tiles[i] = d
	}

	if err := checkCoverage(tiles, expected); err != nil {
		return nil, err
	}

	// All tiles carry the same chunk, so their time coordinates must
	// agree exactly.
	t0 := tiles[0]
	for _, d := range tiles[1:] {
		if len(d.Times) != len(t0.Times) {
			return nil, fmt.Errorf("climtile: tile %s has %d time steps; tile %s has %d",
				d.Name, len(d.Times), t0.Name, len(t0.Times))
		}
		for i, t := range d.Times {
			if t != t0.Times[i] {
				return nil, fmt.Errorf("climtile: tiles %s and %s disagree on time step %d",
					d.Name, t0.Name, i)
			}
		}
	}

	out := &Dataset{
		Lats:      make([]float64, expected.LatCount),
		Lons:      make([]float64, expected.LonCount),
		Times:     append([]float64{}, t0.Times...),
		TimeUnits: t0.TimeUnits,
	}
	for _, d := range tiles {
		copy(out.Lats[d.LatStart:], d.Lats)
		copy(out.Lons[d.LonStart:], d.Lons)
	}

	// Union of variable names; tiles holding partial results may be
	// missing some.
	varMeta := make(map[string]*Variable)
	for _, d := range tiles {
		for name, v := range d.Data {
			if _, ok := varMeta[name]; !ok {
				varMeta[name] = v
			}
		}
	}
	for name, meta := range varMeta {
		nt := len(t0.Times)
		full := sparse.ZerosDense(nt, expected.LatCount, expected.LonCount)
		for i := range full.Elements {
			full.Elements[i] = MissingValue
		}
		for _, d := range tiles {
			v, ok := d.Data[name]
			if !ok {
				continue
			}
			if len(v.Data.Shape) != 3 || v.Data.Shape[0] != nt ||
				v.Data.Shape[1] != len(d.Lats) || v.Data.Shape[2] != len(d.Lons) {
				return nil, fmt.Errorf("climtile: tile %s variable %s has shape %v; want [%d %d %d]",
					d.Name, name, v.Data.Shape, nt, len(d.Lats), len(d.Lons))
			}
			for k := 0; k < nt; k++ {
				for j := 0; j < len(d.Lats); j++ {
					for i := 0; i < len(d.Lons); i++ {
						full.Set(v.Data.Get(k, j, i), k, d.LatStart+j, d.LonStart+i)
					}
				}
			}
		}
		out.AddVariable(name, meta.Dims, meta.Description, meta.Units, full)
	}
	return out, nil
}

// checkCoverage verifies that the tiles partition the expected extent:
// every cell covered exactly once, no tile reaching outside.
func checkCoverage(tiles []*Dataset, expected GridExtent) error {
	var maxLat, maxLon int
	for _, d := range tiles {
		if latEnd := d.LatStart + len(d.Lats); latEnd > maxLat {
			maxLat = latEnd
		}
		if lonEnd := d.LonStart + len(d.Lons); lonEnd > maxLon {
			maxLon = lonEnd
		}
	}
	if maxLat > expected.LatCount || maxLon > expected.LonCount {
		return &DimensionMismatchError{
			Expected: expected,
			Actual:   GridExtent{LatCount: maxLat, LonCount: maxLon},
		}
	}
	covered := make([]int, expected.Cells())
	for _, d := range tiles {
		for j := 0; j < len(d.Lats); j++ {
			row := (d.LatStart + j) * expected.LonCount
			for i := 0; i < len(d.Lons); i++ {
				covered[row+d.LonStart+i]++
			}
		}
	}
	for c, n := range covered {
		if n == 1 {
			continue
		}
		lat, lon := c/expected.LonCount, c%expected.LonCount
		reason := "gap in tile coverage"
		if n > 1 {
			reason = fmt.Sprintf("cell covered by %d tiles", n)
		}
		return &DimensionMismatchError{
			Expected: expected,
			Actual:   GridExtent{LatCount: maxLat, LonCount: maxLon},
			Reason:   fmt.Sprintf("%s at cell (%d,%d)", reason, lat, lon),
		}
	}
	return nil
}
