// Copyright (C) 2024 The burstlight authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package stats

import (
	"math"
	"testing"

	"github.com/valyala/fastrand"
)

func TestNewStats(t *testing.T) {
	s := NewStats([]float32{2, 4, 4, 4, 5, 5, 7, 9})
	if s.Min != 2 {
		t.Errorf("min got %f expect 2", s.Min)
	}
	if s.Max != 9 {
		t.Errorf("max got %f expect 9", s.Max)
	}
	if s.Mean != 5 {
		t.Errorf("mean got %f expect 5", s.Mean)
	}
	if math.Abs(float64(s.StdDev)-2) > 1e-6 {
		t.Errorf("stddev got %f expect 2", s.StdDev)
	}
}

func TestNewStatsEmpty(t *testing.T) {
	s := NewStats(nil)
	if s.Min != 0 || s.Max != 0 || s.Mean != 0 || s.StdDev != 0 {
		t.Errorf("empty stats got %v expect all zero", s)
	}
}

func TestMeanStdDev(t *testing.T) {
	mean, sd := MeanStdDev([]float32{1, 1, 1, 1})
	if mean != 1 || sd != 0 {
		t.Errorf("got mean %f sd %f expect 1, 0", mean, sd)
	}
	mean, sd = MeanStdDev([]float32{2, 4, 4, 4, 5, 5, 7, 9})
	if mean != 5 || math.Abs(float64(sd)-2) > 1e-6 {
		t.Errorf("got mean %f sd %f expect 5, 2", mean, sd)
	}
}

func TestQSelectMedian(t *testing.T) {
	rng := fastrand.RNG{}
	for i := 1; i < 1000; i++ {
		// prepare array of given length with a random permutation of 1..n
		arr := make([]float32, i)
		for j := 0; j < len(arr); j++ {
			arr[j] = float32(j + 1)
		}
		for j := 0; j < len(arr); j++ {
			k := rng.Uint32n(uint32(len(arr)))
			arr[j], arr[k] = arr[k], arr[j]
		}

		// the selector returns the (n/2+1)th smallest element
		expect := float32(i/2 + 1)

		// calculate actual result and compare
		res := QSelectMedianFloat32(arr)
		if res != expect {
			t.Logf("median(1..%d) got %f expect %f\n", i, res, expect)
			t.Fail()
		}
	}
}

func TestFastApproxMedian(t *testing.T) {
	data := make([]float32, 10000)
	for i := range data {
		data[i] = 42
	}
	if res := FastApproxMedian(data, 100); res != 42 {
		t.Errorf("approx median of constant data got %f expect 42", res)
	}
}

func TestFastApproxStdDev(t *testing.T) {
	data := make([]float32, 10000)
	for i := range data {
		data[i] = 7
	}
	if res := FastApproxStdDev(data, 7, 100); res != 0 {
		t.Errorf("approx stddev of constant data got %f expect 0", res)
	}
}
