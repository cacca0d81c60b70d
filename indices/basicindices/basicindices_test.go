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

package basicindices

import (
	"errors"
	"math"
	"testing"

	"github.com/ctessum/sparse"
	"github.com/spatialmodel/climtile"
)

// testInput returns a 2×2 tile with three days each of 2000 and 2001.
// All cells hold 10 except cell (0,0), which holds 10, 20, 30 in 2000
// and 40, missing, 60 in 2001.
func testInput() *climtile.Dataset {
	d := &climtile.Dataset{
		Name:      "southwest",
		Lats:      []float64{30, 30.5},
		Lons:      []float64{-100, -99.5},
		Times:     []float64{0, 1, 2, 366, 367, 368}, // 2000 is a leap year
		TimeUnits: "days since 2000-1-1",
	}
	data := sparse.ZerosDense(6, 2, 2)
	for k := 0; k < 6; k++ {
		for j := 0; j < 2; j++ {
			for i := 0; i < 2; i++ {
				data.Set(10, k, j, i)
			}
		}
	}
	for k, v := range []float64{10, 20, 30, 40, climtile.MissingValue, 60} {
		data.Set(v, k, 0, 0)
	}
	d.AddVariable("tasmax", []string{"time", "lat", "lon"},
		"daily maximum near-surface air temperature", "K", data)
	return d
}

// threshold returns a (dayofyear, lat, lon) surface covering 3 days
// with the value 15 everywhere except cell (1,1), which gets v11.
func threshold(v11 float64) *climtile.ReferenceSurface {
	data := sparse.ZerosDense(3, 2, 2)
	for k := 0; k < 3; k++ {
		for j := 0; j < 2; j++ {
			for i := 0; i < 2; i++ {
				data.Set(15, k, j, i)
			}
		}
	}
	for k := 0; k < 3; k++ {
		data.Set(v11, k, 1, 1)
	}
	return &climtile.ReferenceSurface{
		Name: "threshold",
		Dims: []string{"dayofyear", "lat", "lon"},
		Data: data,
	}
}

func TestCompute(t *testing.T) {
	c := &Calculator{ThresholdVar: "threshold"}
	refs := map[string]*climtile.ReferenceSurface{"threshold": threshold(5)}
	out, err := c.Compute(testInput(), refs)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Times) != 2 || out.Times[0] != 2000 || out.Times[1] != 2001 {
		t.Fatalf("output times are %v, want [2000 2001]", out.Times)
	}
	if out.TimeUnits != "year" {
		t.Errorf("output time units are %q, want year", out.TimeUnits)
	}

	mean := out.Data["mean"].Data
	if have := mean.Get(0, 0, 0); have != 20 {
		t.Errorf("2000 mean at (0,0) = %g, want 20", have)
	}
	// The missing day is excluded from the 2001 average: (40+60)/2.
	if have := mean.Get(1, 0, 0); have != 50 {
		t.Errorf("2001 mean at (0,0) = %g, want 50", have)
	}
	if have := mean.Get(0, 1, 1); have != 10 {
		t.Errorf("2000 mean at (1,1) = %g, want 10", have)
	}

	max := out.Data["max"].Data
	if have := max.Get(0, 0, 0); have != 30 {
		t.Errorf("2000 max at (0,0) = %g, want 30", have)
	}
	if have := max.Get(1, 0, 0); have != 60 {
		t.Errorf("2001 max at (0,0) = %g, want 60", have)
	}

	// Threshold is 15 at (0,0): 2000 exceeds on days 20 and 30, 2001 on
	// days 40 and 60 (the missing day doesn't count). At (1,1) the
	// threshold is 5 and every day's 10 exceeds it.
	exceed := out.Data["exceedance_days"].Data
	if have := exceed.Get(0, 0, 0); have != 2 {
		t.Errorf("2000 exceedance at (0,0) = %g, want 2", have)
	}
	if have := exceed.Get(1, 0, 0); have != 2 {
		t.Errorf("2001 exceedance at (0,0) = %g, want 2", have)
	}
	if have := exceed.Get(0, 1, 1); have != 3 {
		t.Errorf("2000 exceedance at (1,1) = %g, want 3", have)
	}
	if have := exceed.Get(0, 0, 1); have != 0 {
		t.Errorf("2000 exceedance at (0,1) = %g, want 0", have)
	}
}

func TestCompute_allMissingCell(t *testing.T) {
	in := testInput()
	data := in.Data["tasmax"].Data
	for k := 0; k < 3; k++ {
		data.Set(climtile.MissingValue, k, 1, 0)
	}
	c := new(Calculator)
	out, err := c.Compute(in, nil)
	if err == nil {
		t.Fatal("want a partial-result error without a threshold surface")
	}
	if have := out.Data["mean"].Data.Get(0, 1, 0); have != climtile.MissingValue {
		t.Errorf("mean of an all-missing year = %g, want the missing-value sentinel", have)
	}
	if have := out.Data["max"].Data.Get(0, 1, 0); have != climtile.MissingValue {
		t.Errorf("max of an all-missing year = %g, want the missing-value sentinel", have)
	}
	// The other year of the same cell is unaffected.
	if have := out.Data["mean"].Data.Get(1, 1, 0); have != 10 {
		t.Errorf("mean of the intact year = %g, want 10", have)
	}
}

func TestCompute_missingThreshold(t *testing.T) {
	c := &Calculator{ThresholdVar: "threshold"}
	out, err := c.Compute(testInput(), nil)
	if err == nil {
		t.Fatal("got nil error with no threshold surface")
	}
	var ce climtile.CalculationErrors
	if !errors.As(err, &ce) {
		t.Fatalf("got %T, want climtile.CalculationErrors", err)
	}
	if len(ce) != 1 || ce[0].Name != "exceedance_days" {
		t.Fatalf("got %v, want one error for exceedance_days", ce)
	}
	// The partial result still has the outputs that don't need the
	// threshold.
	if out == nil {
		t.Fatal("got nil partial result")
	}
	if _, ok := out.Data["mean"]; !ok {
		t.Error("partial result has no mean")
	}
	if _, ok := out.Data["max"]; !ok {
		t.Error("partial result has no max")
	}
	if _, ok := out.Data["exceedance_days"]; ok {
		t.Error("partial result claims an exceedance output it could not compute")
	}
}

func TestCompute_missingThresholdCell(t *testing.T) {
	c := &Calculator{ThresholdVar: "threshold"}
	refs := map[string]*climtile.ReferenceSurface{"threshold": threshold(climtile.MissingValue)}
	out, err := c.Compute(testInput(), refs)
	if err != nil {
		t.Fatal(err)
	}
	exceed := out.Data["exceedance_days"].Data
	if have := exceed.Get(0, 1, 1); have != climtile.MissingValue {
		t.Errorf("exceedance with a missing threshold = %g, want the missing-value sentinel", have)
	}
	// Cells with a valid threshold are unaffected.
	if have := exceed.Get(0, 0, 1); have != 0 {
		t.Errorf("exceedance at (0,1) = %g, want 0", have)
	}
}

func TestCompute_flatThreshold(t *testing.T) {
	flat := sparse.ZerosDense(2, 2)
	for j := 0; j < 2; j++ {
		for i := 0; i < 2; i++ {
			flat.Set(25, j, i)
		}
	}
	c := &Calculator{ThresholdVar: "threshold"}
	refs := map[string]*climtile.ReferenceSurface{
		"threshold": {Name: "threshold", Dims: []string{"lat", "lon"}, Data: flat},
	}
	out, err := c.Compute(testInput(), refs)
	if err != nil {
		t.Fatal(err)
	}
	exceed := out.Data["exceedance_days"].Data
	// Only day 30 in 2000 and days 40 and 60 in 2001 exceed 25 at (0,0).
	if have := exceed.Get(0, 0, 0); have != 1 {
		t.Errorf("2000 exceedance at (0,0) = %g, want 1", have)
	}
	if have := exceed.Get(1, 0, 0); have != 2 {
		t.Errorf("2001 exceedance at (0,0) = %g, want 2", have)
	}
}

func TestCompute_thresholdShapeMismatch(t *testing.T) {
	c := &Calculator{ThresholdVar: "threshold"}
	refs := map[string]*climtile.ReferenceSurface{
		"threshold": {Name: "threshold", Data: sparse.ZerosDense(3, 5, 5)},
	}
	out, err := c.Compute(testInput(), refs)
	var ce climtile.CalculationErrors
	if !errors.As(err, &ce) {
		t.Fatalf("got %T, want climtile.CalculationErrors for a shape mismatch", err)
	}
	if _, ok := out.Data["exceedance_days"]; ok {
		t.Error("result claims an exceedance output despite the shape mismatch")
	}
}

func TestCompute_doesNotMutateInput(t *testing.T) {
	in := testInput()
	before := append([]float64{}, in.Data["tasmax"].Data.Elements...)
	c := &Calculator{ThresholdVar: "threshold"}
	refs := map[string]*climtile.ReferenceSurface{"threshold": threshold(5)}
	if _, err := c.Compute(in, refs); err != nil {
		t.Fatal(err)
	}
	for i, v := range in.Data["tasmax"].Data.Elements {
		if v != before[i] {
			t.Fatalf("input element %d changed from %g to %g", i, before[i], v)
		}
	}
	for _, v := range refs["threshold"].Data.Elements {
		if math.IsNaN(v) {
			t.Fatal("reference surface was corrupted")
		}
	}
}

func TestOutputs(t *testing.T) {
	c := new(Calculator)
	names, descriptions, units := c.Outputs()
	if len(names) != 3 || len(descriptions) != 3 || len(units) != 3 {
		t.Fatalf("got %d/%d/%d outputs, want 3 of each", len(names), len(descriptions), len(units))
	}
	want := []string{"mean", "max", "exceedance_days"}
	for i, w := range want {
		if names[i] != w {
			t.Errorf("output %d is %q, want %q", i, names[i], w)
		}
	}
}
