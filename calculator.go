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

// Calculator turns one tile's gridded input into named derived arrays.
// Implementations are external to this engine; see
// github.com/spatialmodel/climtile/indices/basicindices for the
// built-in set.
type Calculator interface {
	// Outputs returns the names, descriptions, and units of the result
	// variables this calculator produces.
	Outputs() (names, descriptions, units []string)

	// Compute calculates derived statistics for in, a dataset
	// restricted to one tile's spatial extent with a chunk's full time
	// range, using refs, reference surfaces pre-sliced to the same
	// spatial extent. The result holds one (time, lat, lon) variable
	// per output name at the output time resolution (one value per
	// year). Compute must not modify in or refs.
	//
	// Compute may return a partial result together with a
	// CalculationErrors value describing the outputs it could not
	// produce; whether partial results are kept or fail the whole tile
	// is the engine's decision, not the calculator's.
	Compute(in *Dataset, refs map[string]*ReferenceSurface) (*Dataset, error)
}

// CalculationError indicates that a calculator could not produce one
// named output. Outputs it already produced remain valid.
type CalculationError struct {
	Name string
	Err  error
}

func (e *CalculationError) Error() string {
	return fmt.Sprintf("calculating %s: %v", e.Name, e.Err)
}

func (e *CalculationError) Unwrap() error { return e.Err }

// CalculationErrors aggregates per-output calculator failures.
type CalculationErrors []*CalculationError

func (e CalculationErrors) Error() string {
	s := make([]string, len(e))
	for i, err := range e {
		s[i] = err.Error()
	}
	return strings.Join(s, "; ")
}
