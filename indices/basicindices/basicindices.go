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

// Package basicindices implements the built-in climate index
// calculator: annual mean, annual maximum, and annual count of days
// exceeding a per-day-of-year reference threshold.
package basicindices

import (
	"fmt"
	"time"

	"github.com/ctessum/sparse"
	"github.com/spatialmodel/climtile"
)

// Calculator computes annual statistics from a daily input variable.
// It satisfies climtile.Calculator.
type Calculator struct {
	// ThresholdVar names the reference surface holding the exceedance
	// threshold, either (dayofyear, lat, lon) or (lat, lon). If the
	// surface is not available at compute time, mean and max are still
	// produced and the missing exceedance output is reported as a
	// climtile.CalculationError.
	ThresholdVar string
}

const (
	meanName       = "mean"
	maxName        = "max"
	exceedanceName = "exceedance_days"
)

// Outputs returns the names, descriptions, and units of the annual
// statistics this calculator produces.
func (c *Calculator) Outputs() (names, descriptions, units []string) {
	names = []string{meanName, maxName, exceedanceName}
	descriptions = []string{
		"annual mean of the input variable",
		"annual maximum of the input variable",
		"annual count of days where the input exceeds the reference threshold",
	}
	units = []string{"input units", "input units", "days"}
	return
}

// Compute calculates the annual statistics for in, which must hold
// exactly one daily (time, lat, lon) variable. The result has one time
// step per calendar year present in in. Grid cells with no valid input
// for a year get the missing-value sentinel.
func (c *Calculator) Compute(in *climtile.Dataset, refs map[string]*climtile.ReferenceSurface) (*climtile.Dataset, error) {
	names := in.VarNames()
	if len(names) != 1 {
		return nil, fmt.Errorf("basicindices: input has %d variables; want exactly 1", len(names))
	}
	v := in.Data[names[0]]
	if len(v.Data.Shape) != 3 {
		return nil, fmt.Errorf("basicindices: input variable %s has %d dimensions; want 3", names[0], len(v.Data.Shape))
	}
	dates, err := in.Dates()
	if err != nil {
		return nil, err
	}
	if len(dates) != v.Data.Shape[0] {
		return nil, fmt.Errorf("basicindices: input variable %s has %d time steps but the time coordinate has %d",
			names[0], v.Data.Shape[0], len(dates))
	}

	// Group time records by calendar year, preserving record order.
	var years []int
	var groups [][]int
	for i, date := range dates {
		y := date.Year()
		if len(years) == 0 || years[len(years)-1] != y {
			years = append(years, y)
			groups = append(groups, nil)
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], i)
	}

	nlat, nlon := v.Data.Shape[1], v.Data.Shape[2]
	out := &climtile.Dataset{
		LatStart:  in.LatStart,
		LonStart:  in.LonStart,
		Lats:      append([]float64{}, in.Lats...),
		Lons:      append([]float64{}, in.Lons...),
		TimeUnits: "year",
	}
	out.Times = make([]float64, len(years))
	for i, y := range years {
		out.Times[i] = float64(y)
	}

	dims := []string{"time", "lat", "lon"}
	mean := sparse.ZerosDense(len(years), nlat, nlon)
	max := sparse.ZerosDense(len(years), nlat, nlon)
	for y, group := range groups {
		for j := 0; j < nlat; j++ {
			for i := 0; i < nlon; i++ {
				var sum, best float64
				var n int
				for _, k := range group {
					val := v.Data.Get(k, j, i)
					if val == climtile.MissingValue {
						continue
					}
					sum += val
					if n == 0 || val > best {
						best = val
					}
					n++
				}
				if n == 0 {
					mean.Set(climtile.MissingValue, y, j, i)
					max.Set(climtile.MissingValue, y, j, i)
					continue
				}
				mean.Set(sum/float64(n), y, j, i)
				max.Set(best, y, j, i)
			}
		}
	}
	out.AddVariable(meanName, dims, "annual mean of "+names[0], v.Units, mean)
	out.AddVariable(maxName, dims, "annual maximum of "+names[0], v.Units, max)

	th := refs[c.ThresholdVar]
	if th == nil {
		return out, climtile.CalculationErrors{{
			Name: exceedanceName,
			Err:  fmt.Errorf("reference surface %q is not available", c.ThresholdVar),
		}}
	}
	exceed, err := exceedanceDays(v, th, dates, groups)
	if err != nil {
		return out, climtile.CalculationErrors{{Name: exceedanceName, Err: err}}
	}
	out.AddVariable(exceedanceName, dims,
		"annual count of days where "+names[0]+" exceeds "+c.ThresholdVar, "days", exceed)
	return out, nil
}

// exceedanceDays counts, per year and grid cell, the days where the
// input exceeds the threshold surface. A (dayofyear, lat, lon) surface
// is indexed by day of year, with December 31st of a leap year reusing
// the surface's last day; a (lat, lon) surface applies one threshold
// to every day. Cells where the threshold itself is missing produce
// the missing-value sentinel.
func exceedanceDays(v *climtile.Variable, th *climtile.ReferenceSurface, dates []time.Time, groups [][]int) (*sparse.DenseArray, error) {
	nlat, nlon := v.Data.Shape[1], v.Data.Shape[2]
	var ndoy int
	switch len(th.Data.Shape) {
	case 3:
		if th.Data.Shape[1] != nlat || th.Data.Shape[2] != nlon {
			return nil, fmt.Errorf("threshold surface %s is %d×%d; input tile is %d×%d",
				th.Name, th.Data.Shape[1], th.Data.Shape[2], nlat, nlon)
		}
		ndoy = th.Data.Shape[0]
	case 2:
		if th.Data.Shape[0] != nlat || th.Data.Shape[1] != nlon {
			return nil, fmt.Errorf("threshold surface %s is %d×%d; input tile is %d×%d",
				th.Name, th.Data.Shape[0], th.Data.Shape[1], nlat, nlon)
		}
	default:
		return nil, fmt.Errorf("threshold surface %s has %d dimensions; want 2 or 3",
			th.Name, len(th.Data.Shape))
	}

	out := sparse.ZerosDense(len(groups), nlat, nlon)
	for y, group := range groups {
		for j := 0; j < nlat; j++ {
			for i := 0; i < nlon; i++ {
				for _, k := range group {
					val := v.Data.Get(k, j, i)
					if val == climtile.MissingValue {
						continue
					}
					var limit float64
					if ndoy > 0 {
						doy := dates[k].YearDay() - 1
						if doy >= ndoy {
							doy = ndoy - 1
						}
						limit = th.Data.Get(doy, j, i)
					} else {
						limit = th.Data.Get(j, i)
					}
					if limit == climtile.MissingValue {
						out.Set(climtile.MissingValue, y, j, i)
						break
					}
					if val > limit {
						out.AddVal(1, y, j, i)
					}
				}
			}
		}
	}
	return out, nil
}

