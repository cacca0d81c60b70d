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
	"log"
	"os"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// TileArtifact locates one tile's persisted result and the tile it
// covers. Artifacts live in a chunk-scoped staging directory and are
// deleted when the chunk finishes, so they are only valid until then.
type TileArtifact struct {
	Tile TileSpec
	Path string
}

// maxRetryTime bounds how long transient artifact I/O errors are
// retried before the operation is abandoned.
const maxRetryTime = 30 * time.Second

// Write writes d to the NetCDF file w, including the coordinate
// variables, per-variable description/units/missing_value attributes,
// and global attributes locating d within the full domain. Values are
// stored as 64-bit floats so they round-trip losslessly, including the
// MissingValue sentinel.
func (d *Dataset) Write(w *os.File) error {
	h := cdf.NewHeader(
		[]string{"time", "lat", "lon"},
		[]int{len(d.Times), len(d.Lats), len(d.Lons)})
	h.AddAttribute("", "name", d.Name)
	h.AddAttribute("", "lat_start", []int32{int32(d.LatStart)})
	h.AddAttribute("", "lon_start", []int32{int32(d.LonStart)})
	h.AddAttribute("", "missing_value", []float64{MissingValue})
	if d.TimeRange != "" {
		h.AddAttribute("", "time_range", d.TimeRange)
	}
	if d.TileCount > 0 {
		h.AddAttribute("", "tile_count", []int32{int32(d.TileCount)})
	}

	h.AddVariable("time", []string{"time"}, []float64{0})
	h.AddAttribute("time", "units", d.TimeUnits)
	h.AddVariable("lat", []string{"lat"}, []float64{0})
	h.AddAttribute("lat", "units", "degrees_north")
	h.AddVariable("lon", []string{"lon"}, []float64{0})
	h.AddAttribute("lon", "units", "degrees_east")

	names := d.VarNames()
	for _, name := range names {
		v := d.Data[name]
		h.AddVariable(name, v.Dims, []float64{0})
		h.AddAttribute(name, "description", v.Description)
		h.AddAttribute(name, "units", v.Units)
		h.AddAttribute(name, "missing_value", []float64{MissingValue})
	}
	h.Define()
	if errs := h.Check(); len(errs) > 0 {
		return fmt.Errorf("climtile: defining netcdf header: %v", errs[0])
	}

	f, err := cdf.Create(w, h) // writes the header to w
	if err != nil {
		return err
	}
	coords := map[string][]float64{"time": d.Times, "lat": d.Lats, "lon": d.Lons}
	for _, cv := range []string{"time", "lat", "lon"} {
		wr := f.Writer(cv, []int{0}, []int{len(coords[cv])})
		if _, err := wr.Write(coords[cv]); err != nil {
			return fmt.Errorf("climtile: writing coordinate %s to netcdf file: %v", cv, err)
		}
	}
	for _, name := range names {
		if err := writeNCF(f, name, d.Data[name].Data); err != nil {
			return fmt.Errorf("climtile: writing variable %s to netcdf file: %v", name, err)
		}
	}
	return cdf.UpdateNumRecs(w)
}

func writeNCF(f *cdf.File, name string, data *sparse.DenseArray) error {
	// Check that data matches dimensions.
	n := 1
	for _, v := range data.Shape {
		n *= v
	}
	if len(data.Elements) != n {
		return fmt.Errorf("shape is %v but array length is %d", data.Shape, len(data.Elements))
	}
	end := f.Header.Lengths(name)
	start := make([]int, len(end))
	w := f.Writer(name, start, end)
	_, err := w.Write(data.Elements)
	return err
}

// ReadDataset loads a dataset previously written with Dataset.Write.
func ReadDataset(rw cdf.ReaderWriterAt) (*Dataset, error) {
	f, err := cdf.Open(rw)
	if err != nil {
		return nil, err
	}
	d := new(Dataset)
	if s, ok := f.Header.GetAttribute("", "name").(string); ok {
		d.Name = s
	}
	if v, ok := f.Header.GetAttribute("", "lat_start").([]int32); ok && len(v) > 0 {
		d.LatStart = int(v[0])
	}
	if v, ok := f.Header.GetAttribute("", "lon_start").([]int32); ok && len(v) > 0 {
		d.LonStart = int(v[0])
	}
	if s, ok := f.Header.GetAttribute("", "time_range").(string); ok {
		d.TimeRange = s
	}
	if v, ok := f.Header.GetAttribute("", "tile_count").([]int32); ok && len(v) > 0 {
		d.TileCount = int(v[0])
	}
	if d.Times, err = readCoordVar(f, "time"); err != nil {
		return nil, err
	}
	if d.Lats, err = readCoordVar(f, "lat"); err != nil {
		return nil, err
	}
	if d.Lons, err = readCoordVar(f, "lon"); err != nil {
		return nil, err
	}
	if s, ok := f.Header.GetAttribute("time", "units").(string); ok {
		d.TimeUnits = s
	}
	for _, name := range f.Header.Variables() {
		switch name {
		case "time", "lat", "lon":
			continue
		}
		lengths := f.Header.Lengths(name)
		data := sparse.ZerosDense(lengths...)
		r := f.Reader(name, nil, nil)
		if _, err := r.Read(data.Elements); err != nil {
			return nil, fmt.Errorf("climtile: reading variable %s: %v", name, err)
		}
		v := &Variable{Dims: f.Header.Dimensions(name), Data: data}
		if s, ok := f.Header.GetAttribute(name, "description").(string); ok {
			v.Description = s
		}
		if s, ok := f.Header.GetAttribute(name, "units").(string); ok {
			v.Units = s
		}
		if d.Data == nil {
			d.Data = make(map[string]*Variable)
		}
		d.Data[name] = v
	}
	return d, nil
}

// readCoordVar reads a one-dimensional float64 coordinate variable.
func readCoordVar(f *cdf.File, name string) ([]float64, error) {
	lengths := f.Header.Lengths(name)
	if len(lengths) == 0 {
		return nil, fmt.Errorf("climtile: netcdf file has no coordinate variable %s", name)
	}
	buf := make([]float64, lengths[0])
	r := f.Reader(name, nil, nil)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("climtile: reading coordinate %s: %v", name, err)
	}
	return buf, nil
}

// writeArtifact persists d to path, retrying transient storage errors
// with exponential backoff.
func writeArtifact(path string, d *Dataset) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxRetryTime
	op := func() error {
		w, err := os.Create(path)
		if err != nil {
			return &ArtifactIOError{Op: "creating artifact", Path: path, Err: err}
		}
		defer w.Close()
		if err := d.Write(w); err != nil {
			// Header and shape problems won't go away on retry.
			return backoff.Permanent(&ArtifactIOError{Op: "writing artifact", Path: path, Err: err})
		}
		return nil
	}
	return backoff.RetryNotify(op, b, func(err error, delay time.Duration) {
		os.Remove(path)
		log.Printf("%v: retrying in %v", err, delay)
	})
}

// readArtifact loads the dataset stored at path, retrying transient
// storage errors with exponential backoff.
func readArtifact(path string) (*Dataset, error) {
	var d *Dataset
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxRetryTime
	op := func() error {
		r, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				return backoff.Permanent(&ArtifactIOError{Op: "opening artifact", Path: path, Err: err})
			}
			return &ArtifactIOError{Op: "opening artifact", Path: path, Err: err}
		}
		defer r.Close()
		if d, err = ReadDataset(r); err != nil {
			return backoff.Permanent(&ArtifactIOError{Op: "reading artifact", Path: path, Err: err})
		}
		return nil
	}
	err := backoff.RetryNotify(op, b, func(err error, delay time.Duration) {
		log.Printf("%v: retrying in %v", err, delay)
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}
