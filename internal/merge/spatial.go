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

package merge

import (
	"errors"
	"math"

	"github.com/burstlight/burstlight/internal/align"
	"github.com/burstlight/burstlight/internal/compute"
	"github.com/burstlight/burstlight/internal/frame"
	"github.com/burstlight/burstlight/internal/stats"
)

// Subsample size for the noise floor estimate, bounding its cost on
// large frames
const noiseSamples = 16384

// EstimateNoiseSd estimates the noise level of a frame by comparing it
// to its own blurred version: the sampled median of the per-super-pixel
// color differences between the two, plus one standard deviation around
// that median. Isolated hot pixels cannot drag a median the way they
// drag a mean. This is the scale the spatial merge weights compare
// motion differences against
func EstimateNoiseSd(dev compute.Device, f *frame.Frame) (float32, error) {
	p := f.Plane()
	blurred, err := align.BinomialBlur(dev, p, 1, f.MosaicPeriod)
	if err != nil {
		return 0, err
	}
	diff, err := superPixelDiff(dev, p, blurred, f.MosaicPeriod)
	if err != nil {
		return 0, err
	}
	loc := stats.FastApproxMedian(diff.Data, noiseSamples)
	sd := stats.FastApproxStdDev(diff.Data, loc, noiseSamples)
	return loc + sd, nil
}

// superPixelDiff computes the per-super-pixel color difference of two
// planes: the sum of absolute sample differences within one mosaic
// period. The result has one value per mosaic cell
func superPixelDiff(dev compute.Device, a, b *frame.Plane, period int32) (*frame.Plane, error) {
	outW, outH := a.Width/period, a.Height/period
	out := frame.NewPlane(outW, outH, nil)
	err := compute.Run(dev, compute.KernelEstimateRMS, int(outH), func(group int) error {
		y := int32(group)
		for x := int32(0); x < outW; x++ {
			sum := float32(0)
			for dy := int32(0); dy < period; dy++ {
				row := (y*period + dy) * a.Width
				for dx := int32(0); dx < period; dx++ {
					d := a.Data[row+x*period+dx] - b.Data[row+x*period+dx]
					if d < 0 {
						d = -d
					}
					sum += d
				}
			}
			out.Data[y*outW+x] = sum
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// bilinearAt samples a low-resolution weight map at full-resolution
// pixel coordinates, upsampling by the given factor
func bilinearAt(m *frame.Plane, x, y, factor int32) float32 {
	fx := (float32(x)+0.5)/float32(factor) - 0.5
	fy := (float32(y)+0.5)/float32(factor) - 0.5
	x0 := int32(math.Floor(float64(fx)))
	y0 := int32(math.Floor(float64(fy)))
	wx := fx - float32(x0)
	wy := fy - float32(y0)
	v00 := m.ClampedAt(x0, y0)
	v10 := m.ClampedAt(x0+1, y0)
	v01 := m.ClampedAt(x0, y0+1)
	v11 := m.ClampedAt(x0+1, y0+1)
	return (1-wy)*((1-wx)*v00+wx*v10) + wy*((1-wx)*v01+wx*v11)
}

// MergeSpatial merges a burst in the pixel domain: a motion-robust
// weighted average of the reference and the warped comparison frames.
// A comparison super-pixel with zero color difference to the reference
// gets full trust (weight 1), one with a difference at or above
// noiseSd/robustness is fully rejected (weight 0). robustness 0
// disables the robust merge, reducing the result to a plain arithmetic
// mean of the burst
func MergeSpatial(dev compute.Device, ref *frame.Frame, warped []*frame.Plane, robustness float32) (*frame.Plane, error) {
	if len(warped) == 0 {
		return nil, errors.New("spatial merge needs at least one comparison frame")
	}
	refP := ref.Plane()
	period := ref.MosaicPeriod

	noiseSd := float32(0)
	var blurRef *frame.Plane
	if robustness > 0 {
		var err error
		noiseSd, err = EstimateNoiseSd(dev, ref)
		if err != nil {
			return nil, err
		}
		blurRef, err = align.BinomialBlur(dev, refP, 1, period)
		if err != nil {
			return nil, err
		}
	}

	// running average starts from the untouched reference
	acc := frame.NewPlaneFromPlane(refP)

	for _, comp := range warped {
		var weights *frame.Plane
		if robustness > 0 {
			blurComp, err := align.BinomialBlur(dev, comp, 1, period)
			if err != nil {
				return nil, err
			}
			diff, err := superPixelDiff(dev, blurRef, blurComp, period)
			if err != nil {
				return nil, err
			}
			// full rejection above noiseSd/robustness, guarded against
			// a near-zero noise estimate
			denom := noiseSd / robustness
			if denom < 1e-12 {
				denom = 1e-12
			}
			weights = frame.NewPlane(diff.Width, diff.Height, nil)
			for i, d := range diff.Data {
				w := 1 - d/denom
				if w < 0 {
					w = 0
				} else if w > 1 {
					w = 1
				}
				weights.Data[i] = w
			}
		}

		comp := comp
		err := compute.Run(dev, compute.KernelMergeSpatial, int(refP.Height), func(group int) error {
			y := int32(group)
			row := y * refP.Width
			for x := int32(0); x < refP.Width; x++ {
				w := float32(1)
				if weights != nil {
					w = bilinearAt(weights, x, y, period)
				}
				acc.Data[row+x] += w*comp.Data[row+x] + (1-w)*refP.Data[row+x]
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	norm := 1.0 / float32(len(warped)+1)
	for i := range acc.Data {
		acc.Data[i] *= norm
	}
	return acc, nil
}
