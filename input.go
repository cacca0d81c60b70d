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
	"os"
	"sort"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// InputSource provides the gridded input variable one time chunk at a
// time.
type InputSource interface {
	// Extent returns the full-domain grid size.
	Extent() GridExtent

	// Years returns the first and last calendar years with data.
	Years() (first, last int)

	// LoadChunk returns the input restricted to calendar years
	// [startYear, endYear), covering the full spatial domain.
	LoadChunk(startYear, endYear int) (*Dataset, error)
}

// FileInput reads time chunks of a single variable from a NetCDF file.
// Only the records inside a requested chunk's time window are read;
// the file is never loaded whole.
type FileInput struct {
	path    string
	varName string
	f       *os.File
	cf      *cdf.File

	lats, lons []float64
	times      []float64
	timeUnits  string
	years      []int // calendar year of each time record
}

// OpenFileInput opens the variable varName in the NetCDF file at path
// and indexes its time coordinate by calendar year. The variable must
// have dimensions (time, lat, lon) and the file must carry lat, lon,
// and time coordinate variables, with time in "days since YYYY-MM-DD"
// units.
func OpenFileInput(path, varName string) (*FileInput, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ArtifactIOError{Op: "opening input file", Path: path, Err: err}
	}
	cf, err := cdf.Open(f)
	if err != nil {
		f.Close()
		return nil, &ArtifactIOError{Op: "reading input file header", Path: path, Err: err}
	}
	fi := &FileInput{path: path, varName: varName, f: f, cf: cf}
	dims := cf.Header.Lengths(varName)
	if len(dims) != 3 {
		f.Close()
		return nil, fmt.Errorf("climtile: input variable %s must have dimensions (time, lat, lon); it has %d dimensions", varName, len(dims))
	}
	if dims[0] == 0 {
		f.Close()
		return nil, fmt.Errorf("climtile: input file %s has no time records", path)
	}
	for _, coord := range []string{"lat", "lon", "time"} {
		var vals []float64
		if vals, err = readCoordVar(cf, coord); err != nil {
			f.Close()
			return nil, err
		}
		switch coord {
		case "lat":
			fi.lats = vals
		case "lon":
			fi.lons = vals
		case "time":
			fi.times = vals
		}
	}
	if dims[0] != len(fi.times) || dims[1] != len(fi.lats) || dims[2] != len(fi.lons) {
		f.Close()
		return nil, fmt.Errorf("climtile: input variable %s has shape %v but coordinates are %d×%d×%d",
			varName, dims, len(fi.times), len(fi.lats), len(fi.lons))
	}
	units, ok := cf.Header.GetAttribute("time", "units").(string)
	if !ok {
		f.Close()
		return nil, fmt.Errorf("climtile: input file %s time variable has no units attribute", path)
	}
	fi.timeUnits = units
	base, err := parseTimeUnits(units)
	if err != nil {
		f.Close()
		return nil, err
	}
	fi.years = make([]int, len(fi.times))
	for i, t := range fi.times {
		fi.years[i] = base.AddDate(0, 0, int(t)).Year()
	}
	return fi, nil
}

// Close releases the backing file.
func (fi *FileInput) Close() error { return fi.f.Close() }

// Extent returns the full-domain grid size.
func (fi *FileInput) Extent() GridExtent {
	return GridExtent{LatCount: len(fi.lats), LonCount: len(fi.lons)}
}

// Coords returns the latitude and longitude coordinate values.
func (fi *FileInput) Coords() (lats, lons []float64) { return fi.lats, fi.lons }

// Years returns the first and last calendar years with data.
func (fi *FileInput) Years() (first, last int) {
	return fi.years[0], fi.years[len(fi.years)-1]
}

// LoadChunk reads the records with calendar years in [startYear,
// endYear) as one dataset. Only that window of the file is read.
func (fi *FileInput) LoadChunk(startYear, endYear int) (*Dataset, error) {
	i0 := sort.Search(len(fi.years), func(i int) bool { return fi.years[i] >= startYear })
	i1 := sort.Search(len(fi.years), func(i int) bool { return fi.years[i] >= endYear })
	if i0 == i1 {
		return nil, fmt.Errorf("climtile: input file %s has no records in years [%d, %d)", fi.path, startYear, endYear)
	}
	nlat, nlon := len(fi.lats), len(fi.lons)
	r := fi.cf.Reader(fi.varName, []int{i0, 0, 0}, []int{i1, 0, 0})
	n := (i1 - i0) * nlat * nlon
	buf := r.Zero(n)
	if _, err := r.Read(buf); err != nil {
		return nil, &ArtifactIOError{Op: "reading input chunk from", Path: fi.path, Err: err}
	}
	data := sparse.ZerosDense(i1-i0, nlat, nlon)
	switch b := buf.(type) {
	case []float64:
		copy(data.Elements, b)
	case []float32:
		for i, v := range b {
			data.Elements[i] = float64(v)
		}
	default:
		return nil, fmt.Errorf("climtile: input variable %s has non-floating-point type %T", fi.varName, buf)
	}
	d := &Dataset{
		Lats:      append([]float64{}, fi.lats...),
		Lons:      append([]float64{}, fi.lons...),
		Times:     append([]float64{}, fi.times[i0:i1]...),
		TimeUnits: fi.timeUnits,
	}
	var description, units string
	if s, ok := fi.cf.Header.GetAttribute(fi.varName, "description").(string); ok {
		description = s
	}
	if s, ok := fi.cf.Header.GetAttribute(fi.varName, "units").(string); ok {
		units = s
	}
	d.AddVariable(fi.varName, []string{"time", "lat", "lon"}, description, units, data)
	return d, nil
}
