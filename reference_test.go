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
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// writeReferenceFile writes surfaces to a NetCDF file at path. Surfaces
// with three dimensions are stored as (dayofyear, lat, lon), surfaces
// with two as (lat, lon).
func writeReferenceFile(t *testing.T, path string, surfaces map[string]*sparse.DenseArray) {
	t.Helper()
	var ndoy, nlat, nlon int
	for _, a := range surfaces {
		nlat = a.Shape[len(a.Shape)-2]
		nlon = a.Shape[len(a.Shape)-1]
		if len(a.Shape) == 3 {
			ndoy = a.Shape[0]
		}
	}
	if ndoy == 0 {
		ndoy = 1
	}
	h := cdf.NewHeader([]string{"dayofyear", "lat", "lon"}, []int{ndoy, nlat, nlon})
	for name, a := range surfaces {
		dims := []string{"lat", "lon"}
		if len(a.Shape) == 3 {
			dims = []string{"dayofyear", "lat", "lon"}
		}
		h.AddVariable(name, dims, []float64{0})
		h.AddAttribute(name, "description", "test reference surface "+name)
		h.AddAttribute(name, "units", "K")
	}
	h.Define()
	if errs := h.Check(); len(errs) > 0 {
		t.Fatal(errs[0])
	}
	w, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	f, err := cdf.Create(w, h)
	if err != nil {
		t.Fatal(err)
	}
	for name, a := range surfaces {
		end := f.Header.Lengths(name)
		start := make([]int, len(end))
		wr := f.Writer(name, start, end)
		if _, err := wr.Write(a.Elements); err != nil {
			t.Fatal(err)
		}
	}
}

// testSurface returns a (dayofyear, lat, lon) array whose value at
// (k, j, i) is k*10000 + j*100 + i, offset to keep surfaces distinct.
func testSurface(ndoy, nlat, nlon int, offset float64) *sparse.DenseArray {
	a := sparse.ZerosDense(ndoy, nlat, nlon)
	for k := 0; k < ndoy; k++ {
		for j := 0; j < nlat; j++ {
			for i := 0; i < nlon; i++ {
				a.Set(offset+float64(k*10000+j*100+i), k, j, i)
			}
		}
	}
	return a
}

func TestOpenReferenceCache_unknownName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ref.nc")
	writeReferenceFile(t, path, map[string]*sparse.DenseArray{
		"threshold": testSurface(2, 4, 4, 0),
	})
	_, err := OpenReferenceCache(path, []string{"threshold", "nope"})
	if err == nil {
		t.Fatal("got nil error for an unknown reference variable")
	}
}

func TestReferenceCache_lazy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ref.nc")
	writeReferenceFile(t, path, map[string]*sparse.DenseArray{
		"threshold":   testSurface(2, 4, 4, 0),
		"climatology": testSurface(2, 4, 4, 1e6),
	})
	c, err := OpenReferenceCache(path, []string{"threshold", "climatology"})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if have := c.Loads(); have != 0 {
		t.Errorf("before first use: %d loads, want 0", have)
	}
	tile := TileSpec{Name: "southwest", LatStart: 0, LatEnd: 2, LonStart: 0, LonEnd: 2}
	if _, err := c.Subset(context.Background(), tile); err != nil {
		t.Fatal(err)
	}
	if have := c.Loads(); have != 2 {
		t.Errorf("after first use: %d loads, want 2", have)
	}
	// Further subsets are served from memory.
	tile2 := TileSpec{Name: "northeast", LatStart: 2, LatEnd: 4, LonStart: 2, LonEnd: 4}
	if _, err := c.Subset(context.Background(), tile2); err != nil {
		t.Fatal(err)
	}
	if have := c.Loads(); have != 2 {
		t.Errorf("after second use: %d loads, want still 2", have)
	}
}

// TestReferenceCache_concurrentSubsets is a regression test for result
// contamination between concurrent tiles: every worker must get its own
// freshly allocated window, and each surface must be read from the file
// at most once no matter how many tiles request it at the same time.
func TestReferenceCache_concurrentSubsets(t *testing.T) {
	const ndoy, nlat, nlon = 3, 6, 8
	path := filepath.Join(t.TempDir(), "ref.nc")
	writeReferenceFile(t, path, map[string]*sparse.DenseArray{
		"threshold": testSurface(ndoy, nlat, nlon, 0),
	})
	c, err := OpenReferenceCache(path, []string{"threshold"})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	tiles, err := ComputeTiles(GridExtent{LatCount: nlat, LonCount: nlon}, 8)
	if err != nil {
		t.Fatal(err)
	}
	errs := make([]error, len(tiles))
	var wg sync.WaitGroup
	for rep := 0; rep < 10; rep++ {
		for i, tile := range tiles {
			wg.Add(1)
			go func(i int, tile TileSpec) {
				defer wg.Done()
				refs, err := c.Subset(context.Background(), tile)
				if err != nil {
					errs[i] = err
					return
				}
				surf := refs["threshold"]
				for k := 0; k < ndoy; k++ {
					for j := 0; j < tile.LatLen(); j++ {
						for ii := 0; ii < tile.LonLen(); ii++ {
							want := float64(k*10000 + (j+tile.LatStart)*100 + ii + tile.LonStart)
							if have := surf.Data.Get(k, j, ii); have != want {
								errs[i] = fmt.Errorf("tile %s value (%d,%d,%d) = %g, want %g",
									tile.Name, k, j, ii, have, want)
								return
							}
						}
					}
				}
				// Scribbling on the result must not affect anyone else.
				for n := range surf.Data.Elements {
					surf.Data.Elements[n] = -1
				}
			}(i, tile)
		}
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			t.Error(err)
		}
	}
	if have := c.Loads(); have != 1 {
		t.Errorf("%d file loads, want 1", have)
	}
}

func TestReferenceCache_twoDimensionalSurface(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ref.nc")
	flat := sparse.ZerosDense(4, 4)
	for j := 0; j < 4; j++ {
		for i := 0; i < 4; i++ {
			flat.Set(float64(j*100+i), j, i)
		}
	}
	writeReferenceFile(t, path, map[string]*sparse.DenseArray{"threshold": flat})
	c, err := OpenReferenceCache(path, []string{"threshold"})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	tile := TileSpec{Name: "northeast", LatStart: 2, LatEnd: 4, LonStart: 2, LonEnd: 4}
	refs, err := c.Subset(context.Background(), tile)
	if err != nil {
		t.Fatal(err)
	}
	surf := refs["threshold"]
	if len(surf.Data.Shape) != 2 || surf.Data.Shape[0] != 2 || surf.Data.Shape[1] != 2 {
		t.Fatalf("subset shape is %v, want [2 2]", surf.Data.Shape)
	}
	if have := surf.Data.Get(1, 1); have != 303 {
		t.Errorf("subset value (1,1) = %g, want 303", have)
	}
}
