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

// Package climtile computes derived climate-index statistics over
// multi-decade gridded time series (time × latitude × longitude) that
// are too large to process in memory at once. It splits the time
// dimension into chunks, decomposes each chunk into spatial tiles,
// processes the tiles in parallel, and losslessly reassembles the full
// spatial domain from the persisted tile results.
//
// The index calculations themselves are supplied by a Calculator
// implementation; see
// github.com/spatialmodel/climtile/indices/basicindices for the
// built-in set.
package climtile

// Version gives the version number of this version of ClimTile.
const Version = "0.3.1"

// MissingValue is the sentinel marking grid cells with no valid data in
// input, reference, and output arrays.
const MissingValue = -9999.
