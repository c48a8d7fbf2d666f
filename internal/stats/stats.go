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
	"fmt"
	"math"

	"github.com/valyala/fastrand"
)

// Basic statistics on sample arrays
type Stats struct {
	Min    float32 // Minimum
	Max    float32 // Maximum
	Mean   float32 // Mean (average)
	StdDev float32 // Standard deviation (norm 2, sigma)
}

// Calculates basic statistics for the given data in a single pass
func NewStats(data []float32) *Stats {
	if len(data) == 0 {
		return &Stats{}
	}
	min, max := data[0], data[0]
	sum := float64(0)
	for _, d := range data {
		if d < min {
			min = d
		}
		if d > max {
			max = d
		}
		sum += float64(d)
	}
	mean := float32(sum / float64(len(data)))
	sumSqDiff := float64(0)
	for _, d := range data {
		diff := float64(d - mean)
		sumSqDiff += diff * diff
	}
	stdDev := float32(math.Sqrt(sumSqDiff / float64(len(data))))
	return &Stats{Min: min, Max: max, Mean: mean, StdDev: stdDev}
}

func (s *Stats) String() string {
	return fmt.Sprintf("min %.4g mean %.4g max %.4g sigma %.4g", s.Min, s.Mean, s.Max, s.StdDev)
}

// Calculates the mean and standard deviation of the given data
func MeanStdDev(data []float32) (mean, stdDev float32) {
	sum := float32(0)
	for _, d := range data {
		sum += d
	}
	mean = sum / float32(len(data))
	sumSqDiff := float32(0)
	for _, d := range data {
		diff := d - mean
		sumSqDiff += diff * diff
	}
	return mean, float32(math.Sqrt(float64(sumSqDiff) / float64(len(data))))
}

// Calculates a fast approximate median of the (presumably large) data by
// subsampling the given number of values and taking the median of that
func FastApproxMedian(data []float32, numSamples int) float32 {
	if numSamples > len(data) {
		numSamples = len(data)
	}
	samples := make([]float32, numSamples)
	max := uint32(len(data))
	rng := fastrand.RNG{}
	for i := range samples {
		samples[i] = data[rng.Uint32n(max)]
	}
	return QSelectMedianFloat32(samples)
}

// Calculates a fast approximate standard deviation around the given location
// by subsampling the given number of values
func FastApproxStdDev(data []float32, location float32, numSamples int) float32 {
	if numSamples > len(data) {
		numSamples = len(data)
	}
	max := uint32(len(data))
	rng := fastrand.RNG{}
	sumSqDiff := float32(0)
	for i := 0; i < numSamples; i++ {
		diff := data[rng.Uint32n(max)] - location
		sumSqDiff += diff * diff
	}
	variance := sumSqDiff / float32(numSamples)
	return float32(math.Sqrt(float64(variance)))
}
