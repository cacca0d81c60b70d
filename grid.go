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

import "fmt"

// GridExtent is the size of the full spatial domain in grid cells.
// It is fixed for the lifetime of a run.
type GridExtent struct {
	LatCount, LonCount int
}

// Cells returns the total number of grid cells in the domain.
func (e GridExtent) Cells() int { return e.LatCount * e.LonCount }

// TileSpec is one rectangular sub-region of the spatial domain,
// expressed as half-open index ranges into the full grid. Index 0 along
// the latitude axis is the southernmost row.
type TileSpec struct {
	Name             string
	LatStart, LatEnd int
	LonStart, LonEnd int
}

// LatLen returns the number of grid cells the tile spans in the
// latitude direction.
func (t TileSpec) LatLen() int { return t.LatEnd - t.LatStart }

// LonLen returns the number of grid cells the tile spans in the
// longitude direction.
func (t TileSpec) LonLen() int { return t.LonEnd - t.LonStart }

// ComputeTiles splits extent into tileCount non-overlapping rectangular
// tiles whose union is exactly the full extent. Valid tile counts are
// 1 (the whole domain as a single degenerate tile), 2 (west/east
// longitude halves), 4 (compass quadrants), and 8 (a 2×4 grid of
// latitude halves by longitude quarters); any other count returns an
// InvalidTileCountError. When an axis is shorter than its share of the
// preferred layout the split shifts to the other axis, so no tile is
// ever empty; a domain with too few cells along both axes to hold
// tileCount tiles returns an error. When an axis length does not
// divide evenly, the first partitions along that axis receive the
// extra indices, so partitions differ by at most one cell along each
// axis.
func ComputeTiles(extent GridExtent, tileCount int) ([]TileSpec, error) {
	if extent.LatCount <= 0 || extent.LonCount <= 0 {
		return nil, fmt.Errorf("climtile: invalid grid extent %d×%d", extent.LatCount, extent.LonCount)
	}
	var layouts [][2]int // candidate latParts×lonParts layouts, preferred first
	switch tileCount {
	case 1:
		return []TileSpec{{Name: "full", LatEnd: extent.LatCount, LonEnd: extent.LonCount}}, nil
	case 2:
		layouts = [][2]int{{1, 2}, {2, 1}}
	case 4:
		layouts = [][2]int{{2, 2}, {1, 4}, {4, 1}}
	case 8:
		layouts = [][2]int{{2, 4}, {4, 2}, {1, 8}, {8, 1}}
	default:
		return nil, &InvalidTileCountError{Count: tileCount}
	}
	var latParts, lonParts int
	for _, l := range layouts {
		if l[0] <= extent.LatCount && l[1] <= extent.LonCount {
			latParts, lonParts = l[0], l[1]
			break
		}
	}
	if latParts == 0 {
		return nil, fmt.Errorf("climtile: grid extent %d×%d is too small to split into %d tiles",
			extent.LatCount, extent.LonCount, tileCount)
	}
	lat := partition(extent.LatCount, latParts)
	lon := partition(extent.LonCount, lonParts)
	names := tileNames(latParts, lonParts)
	tiles := make([]TileSpec, 0, tileCount)
	for i := 0; i < latParts; i++ {
		for j := 0; j < lonParts; j++ {
			tiles = append(tiles, TileSpec{
				Name:     names[i*lonParts+j],
				LatStart: lat[i], LatEnd: lat[i+1],
				LonStart: lon[j], LonEnd: lon[j+1],
			})
		}
	}
	return tiles, nil
}

// tileNames returns row-major tile names for a latParts×lonParts
// layout. The preferred layouts keep their compass names; fallback
// layouts for short axes are numbered.
func tileNames(latParts, lonParts int) []string {
	switch {
	case latParts == 1 && lonParts == 2:
		return []string{"west", "east"}
	case latParts == 2 && lonParts == 1:
		return []string{"south", "north"}
	case latParts == 2 && lonParts == 2:
		return []string{"southwest", "southeast", "northwest", "northeast"}
	case latParts == 2 && lonParts == 4:
		return []string{
			"south1", "south2", "south3", "south4",
			"north1", "north2", "north3", "north4",
		}
	}
	names := make([]string, latParts*lonParts)
	for i := range names {
		names[i] = fmt.Sprintf("tile%d", i+1)
	}
	return names
}

// partition returns parts+1 boundaries splitting n indices into parts
// contiguous half-open ranges differing in length by at most one, with
// earlier ranges receiving the extra indices.
func partition(n, parts int) []int {
	bounds := make([]int, parts+1)
	for i := 0; i < parts; i++ {
		size := n / parts
		if i < n%parts {
			size++
		}
		bounds[i+1] = bounds[i] + size
	}
	return bounds
}
