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
	"sort"
	"time"

	"github.com/ctessum/sparse"
)

// Variable is one named gridded array plus its metadata.
type Variable struct {
	Dims        []string // netcdf dimensions for this variable
	Description string   // variable description
	Units       string   // variable units
	Data        *sparse.DenseArray
}

// Dataset holds a set of named gridded variables sharing lat/lon/time
// coordinates. A dataset may cover the full spatial domain or a single
// tile's window into it.
type Dataset struct {
	// Name is the tile name, or empty for a full-domain dataset.
	Name string

	// LatStart and LonStart locate the dataset's lower-left corner in
	// the full-domain index space.
	LatStart, LonStart int

	// Lats and Lons are the coordinate values of the grid cells.
	Lats, Lons []float64

	// Times is the time coordinate, interpreted according to
	// TimeUnits ("days since YYYY-MM-DD" for daily input, "year" for
	// annual results).
	Times     []float64
	TimeUnits string

	// TimeRange and TileCount are recorded as global attributes in
	// chunk outputs.
	TimeRange string
	TileCount int

	Data map[string]*Variable
}

// AddVariable adds data for a new variable to d.
func (d *Dataset) AddVariable(name string, dims []string, description, units string, data *sparse.DenseArray) {
	if d.Data == nil {
		d.Data = make(map[string]*Variable)
	}
	d.Data[name] = &Variable{
		Dims:        dims,
		Description: description,
		Units:       units,
		Data:        data,
	}
}

// VarNames returns the dataset's variable names in sorted order, so
// iteration happens in the same order every time.
func (d *Dataset) VarNames() []string {
	names := make([]string, 0, len(d.Data))
	for n := range d.Data {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Extent returns the lat/lon size of the dataset.
func (d *Dataset) Extent() GridExtent {
	return GridExtent{LatCount: len(d.Lats), LonCount: len(d.Lons)}
}

// Dates converts the dataset's time coordinate to calendar dates.
func (d *Dataset) Dates() ([]time.Time, error) {
	base, err := parseTimeUnits(d.TimeUnits)
	if err != nil {
		return nil, err
	}
	dates := make([]time.Time, len(d.Times))
	for i, t := range d.Times {
		dates[i] = base.AddDate(0, 0, int(t))
	}
	return dates, nil
}

// SubsetLatLon returns a new dataset restricted to tile's lat/lon
// ranges, with all time steps retained. The result owns its arrays and
// coordinate slices; nothing is shared with d, so concurrent callers
// holding subsets of the same dataset cannot affect each other.
func (d *Dataset) SubsetLatLon(tile TileSpec) (*Dataset, error) {
	if tile.LatStart < 0 || tile.LonStart < 0 || tile.LatEnd > len(d.Lats) || tile.LonEnd > len(d.Lons) {
		return nil, fmt.Errorf("climtile: tile %s [%d,%d)×[%d,%d) is outside the dataset extent %d×%d",
			tile.Name, tile.LatStart, tile.LatEnd, tile.LonStart, tile.LonEnd, len(d.Lats), len(d.Lons))
	}
	o := &Dataset{
		Name:      tile.Name,
		LatStart:  d.LatStart + tile.LatStart,
		LonStart:  d.LonStart + tile.LonStart,
		Lats:      append([]float64{}, d.Lats[tile.LatStart:tile.LatEnd]...),
		Lons:      append([]float64{}, d.Lons[tile.LonStart:tile.LonEnd]...),
		Times:     append([]float64{}, d.Times...),
		TimeUnits: d.TimeUnits,
	}
	for _, name := range d.VarNames() {
		v := d.Data[name]
		sub, err := subsetLatLon(v.Data, tile)
		if err != nil {
			return nil, fmt.Errorf("climtile: subsetting variable %s: %v", name, err)
		}
		o.AddVariable(name, v.Dims, v.Description, v.Units, sub)
	}
	return o, nil
}

// subsetLatLon copies the tile's window out of a, where the last two
// dimensions of a are latitude and longitude. The result is freshly
// allocated and never aliases a's backing slice.
func subsetLatLon(a *sparse.DenseArray, tile TileSpec) (*sparse.DenseArray, error) {
	if len(a.Shape) < 2 {
		return nil, fmt.Errorf("array has %d dimensions; need at least 2", len(a.Shape))
	}
	nlat := a.Shape[len(a.Shape)-2]
	nlon := a.Shape[len(a.Shape)-1]
	if tile.LatStart < 0 || tile.LonStart < 0 || tile.LatEnd > nlat || tile.LonEnd > nlon {
		return nil, fmt.Errorf("tile window [%d,%d)×[%d,%d) is outside the array extent %d×%d",
			tile.LatStart, tile.LatEnd, tile.LonStart, tile.LonEnd, nlat, nlon)
	}
	lead := 1
	for _, s := range a.Shape[:len(a.Shape)-2] {
		lead *= s
	}
	shape := append(append([]int{}, a.Shape[:len(a.Shape)-2]...), tile.LatLen(), tile.LonLen())
	o := sparse.ZerosDense(shape...)
	var n int
	for k := 0; k < lead; k++ {
		for j := tile.LatStart; j < tile.LatEnd; j++ {
			row := (k*nlat + j) * nlon
			for i := tile.LonStart; i < tile.LonEnd; i++ {
				o.Elements[n] = a.Elements[row+i]
				n++
			}
		}
	}
	return o, nil
}

// parseTimeUnits interprets a time coordinate unit string of the form
// "days since YYYY-MM-DD" and returns the base date.
func parseTimeUnits(units string) (time.Time, error) {
	var y, m, dd int
	if _, err := fmt.Sscanf(units, "days since %d-%d-%d", &y, &m, &dd); err != nil {
		return time.Time{}, fmt.Errorf("climtile: unsupported time units %q: %v", units, err)
	}
	return time.Date(y, time.Month(m), dd, 0, 0, 0, 0, time.UTC), nil
}
