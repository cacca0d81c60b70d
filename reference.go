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
	"sort"
	"sync"

	"github.com/ctessum/cdf"
	"github.com/ctessum/requestcache"
	"github.com/ctessum/sparse"
)

// ReferenceSurface is a named, read-only auxiliary array consumed by
// Calculators, for example a per-day-of-year percentile threshold
// surface. Its last two dimensions are latitude and longitude.
type ReferenceSurface struct {
	Name        string
	Dims        []string
	Description string
	Units       string
	Data        *sparse.DenseArray
}

// ReferenceCache owns the reference surfaces for one run. Surfaces are
// read from the backing NetCDF file one named variable at a time, on
// first use; the rest of the file is never loaded. Subset is safe for
// concurrent use from many tile workers.
type ReferenceCache struct {
	path  string
	names []string
	f     *os.File
	cf    *cdf.File
	cache *requestcache.Cache

	// mx serializes cache requests. The request cache is not safe
	// under concurrent requests: its in-memory store is written by
	// the requesting goroutine's finalizer while the cache goroutine
	// reads it, and its deduplicating layer hands concurrent same-key
	// waiters a shared request value. With one request in flight at a
	// time, each surface is loaded once and every later request is an
	// in-memory lookup.
	mx sync.Mutex
}

// OpenReferenceCache prepares lazy access to the named surfaces stored
// in the NetCDF file at path. It fails if any requested name is not in
// the file. No surface data is read until the first Subset call, and
// each surface is read from the file at most once per run no matter
// how many tiles request it concurrently.
func OpenReferenceCache(path string, names []string) (*ReferenceCache, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ArtifactIOError{Op: "opening reference file", Path: path, Err: err}
	}
	cf, err := cdf.Open(f)
	if err != nil {
		f.Close()
		return nil, &ArtifactIOError{Op: "reading reference file header", Path: path, Err: err}
	}
	for _, name := range names {
		if len(cf.Header.Lengths(name)) == 0 {
			f.Close()
			return nil, fmt.Errorf("climtile: reference file %s has no variable %s", path, name)
		}
	}
	c := &ReferenceCache{
		path:  path,
		names: append([]string{}, names...),
		f:     f,
		cf:    cf,
	}
	sort.Strings(c.names)
	nproc := len(names)
	if nproc < 1 {
		nproc = 1
	}
	c.cache = requestcache.NewCache(c.loadSurface, nproc, requestcache.Memory(nproc))
	return c, nil
}

// Close releases the backing file.
func (c *ReferenceCache) Close() error { return c.f.Close() }

// Names returns the surface names this cache serves.
func (c *ReferenceCache) Names() []string { return append([]string{}, c.names...) }

// Loads reports how many surface reads have reached the backing file.
func (c *ReferenceCache) Loads() int {
	r := c.cache.Requests()
	return r[len(r)-1]
}

// loadSurface reads one named surface from the backing file. It is
// only ever invoked through the request cache, whose in-memory layer
// limits it to a single read per name.
func (c *ReferenceCache) loadSurface(ctx context.Context, payload interface{}) (interface{}, error) {
	name := payload.(string)
	lengths := c.cf.Header.Lengths(name)
	n := 1
	for _, l := range lengths {
		n *= l
	}
	r := c.cf.Reader(name, nil, nil)
	buf := r.Zero(n)
	if _, err := r.Read(buf); err != nil {
		return nil, &ArtifactIOError{Op: "reading reference surface " + name + " from", Path: c.path, Err: err}
	}
	data := sparse.ZerosDense(lengths...)
	switch b := buf.(type) {
	case []float64:
		copy(data.Elements, b)
	case []float32:
		for i, v := range b {
			data.Elements[i] = float64(v)
		}
	default:
		return nil, fmt.Errorf("climtile: reference surface %s has non-floating-point type %T", name, buf)
	}
	surf := &ReferenceSurface{
		Name: name,
		Dims: c.cf.Header.Dimensions(name),
		Data: data,
	}
	if s, ok := c.cf.Header.GetAttribute(name, "description").(string); ok {
		surf.Description = s
	}
	if s, ok := c.cf.Header.GetAttribute(name, "units").(string); ok {
		surf.Units = s
	}
	return surf, nil
}

// Subset returns the cache's surfaces restricted to tile's lat/lon
// ranges. It is a pure function of the cache contents and the tile: it
// never mutates any state visible to other callers, and every call
// returns freshly allocated tile-local surfaces, so concurrent calls
// with different tiles cannot contaminate each other's results.
func (c *ReferenceCache) Subset(ctx context.Context, tile TileSpec) (map[string]*ReferenceSurface, error) {
	out := make(map[string]*ReferenceSurface, len(c.names))
	for _, name := range c.names {
		c.mx.Lock()
		result, err := c.cache.NewRequest(ctx, name, name).Result()
		c.mx.Unlock()
		if err != nil {
			return nil, fmt.Errorf("climtile: loading reference surface %s: %v", name, err)
		}
		surf := result.(*ReferenceSurface)
		sub, err := subsetLatLon(surf.Data, tile)
		if err != nil {
			return nil, fmt.Errorf("climtile: subsetting reference surface %s: %v", name, err)
		}
		out[name] = &ReferenceSurface{
			Name:        surf.Name,
			Dims:        surf.Dims,
			Description: surf.Description,
			Units:       surf.Units,
			Data:        sub,
		}
	}
	return out, nil
}
