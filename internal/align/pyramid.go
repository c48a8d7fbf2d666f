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

package align

import (
	"fmt"

	"github.com/burstlight/burstlight/internal/compute"
	"github.com/burstlight/burstlight/internal/frame"
)

// BuildPyramid produces the coarse-to-fine stack of downsampled planes
// for one frame. Level 0 average-pools the mosaic plane by the first
// downscale factor, subtracting black levels and equalizing CFA channel
// gains so alignment is not biased by color balance. Coarser levels
// blur, then pool by the next factor. The output has one plane per
// downscale factor, level 0 first
func BuildPyramid(dev compute.Device, f *frame.Frame, downscaleFactors []int32) ([]*frame.Plane, error) {
	if f.Width <= 0 || f.Height <= 0 {
		return nil, fmt.Errorf("%d: invalid frame dimensions %s", f.ID, f.DimensionsToString())
	}
	if len(downscaleFactors) == 0 {
		return nil, fmt.Errorf("%d: pyramid needs at least one downscale factor", f.ID)
	}
	levels := make([]*frame.Plane, 0, len(downscaleFactors))

	cur, err := poolMosaic(dev, f, downscaleFactors[0])
	if err != nil {
		return nil, err
	}
	levels = append(levels, cur)

	for _, factor := range downscaleFactors[1:] {
		blurred, err := BinomialBlur(dev, cur, factor/2, 1)
		if err != nil {
			return nil, err
		}
		cur, err = avgPool(dev, blurred, factor)
		if err != nil {
			return nil, err
		}
		levels = append(levels, cur)
	}
	return levels, nil
}

// poolMosaic average-pools the raw mosaic plane, subtracting per-position
// black levels. If the frame carries color normalization factors, each
// sub-pixel sample is pre-scaled by meanFactor/factor[position] before
// averaging. Pooled values are clamped to be non-negative
func poolMosaic(dev compute.Device, f *frame.Frame, factor int32) (*frame.Plane, error) {
	src := f.Plane()
	outW, outH := src.Width/factor, src.Height/factor
	if outW <= 0 || outH <= 0 {
		return nil, fmt.Errorf("%d: downscale factor %d exceeds frame dimensions %s", f.ID, factor, f.DimensionsToString())
	}
	out := frame.NewPlane(outW, outH, nil)

	period := f.MosaicPeriod
	blacks := f.BlackLevels
	factors := f.ColorFactors
	meanFactor := float32(0)
	if len(factors) > 0 {
		for _, cf := range factors {
			meanFactor += cf
		}
		meanFactor /= float32(len(factors))
	}

	kernel := compute.KernelAvgPool
	if len(factors) > 0 {
		kernel = compute.KernelAvgPoolNormalized
	}
	norm := 1.0 / float32(factor*factor)
	err := compute.Run(dev, kernel, int(outH), func(group int) error {
		y := int32(group)
		for x := int32(0); x < outW; x++ {
			sum := float32(0)
			for dy := int32(0); dy < factor; dy++ {
				sy := y*factor + dy
				for dx := int32(0); dx < factor; dx++ {
					sx := x*factor + dx
					pos := (sy%period)*period + sx%period
					black := blacks[0]
					if len(blacks) > 1 {
						black = blacks[pos]
					}
					v := src.Data[sy*src.Width+sx] - black
					if len(factors) > 0 && factors[pos] > 0 {
						v *= meanFactor / factors[pos]
					}
					sum += v
				}
			}
			v := sum * norm
			if v < 0 {
				v = 0
			}
			out.Data[y*outW+x] = v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// avgPool average-pools an already black-subtracted plane
func avgPool(dev compute.Device, src *frame.Plane, factor int32) (*frame.Plane, error) {
	outW, outH := src.Width/factor, src.Height/factor
	if outW <= 0 || outH <= 0 {
		return nil, fmt.Errorf("downscale factor %d exceeds plane dimensions %dx%d", factor, src.Width, src.Height)
	}
	out := frame.NewPlane(outW, outH, nil)
	norm := 1.0 / float32(factor*factor)
	err := compute.Run(dev, compute.KernelAvgPool, int(outH), func(group int) error {
		y := int32(group)
		for x := int32(0); x < outW; x++ {
			sum := float32(0)
			for dy := int32(0); dy < factor; dy++ {
				row := (y*factor + dy) * src.Width
				for dx := int32(0); dx < factor; dx++ {
					sum += src.Data[row+x*factor+dx]
				}
			}
			out.Data[y*outW+x] = sum * norm
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// binomialWeights returns the normalized binomial kernel of the given radius
func binomialWeights(radius int32) []float32 {
	n := 2*radius + 1
	w := make([]float32, n)
	w[0] = 1
	for row := int32(1); row < n; row++ {
		for i := row; i > 0; i-- {
			w[i] += w[i-1]
		}
	}
	sum := float32(0)
	for _, v := range w {
		sum += v
	}
	for i := range w {
		w[i] /= sum
	}
	return w
}

// BinomialBlur applies a small separable binomial blur. A stride above 1
// taps only samples of the same mosaic position, respecting the CFA
// period. Radius 0 returns the input unchanged. Edges are clamped
func BinomialBlur(dev compute.Device, src *frame.Plane, radius, stride int32) (*frame.Plane, error) {
	if radius <= 0 {
		return src, nil
	}
	if stride < 1 {
		stride = 1
	}
	weights := binomialWeights(radius)
	kernel := compute.KernelBlur
	if stride > 1 {
		kernel = compute.KernelBlurMosaic
	}

	// horizontal pass
	tmp := frame.NewPlane(src.Width, src.Height, nil)
	err := compute.Run(dev, kernel, int(src.Height), func(group int) error {
		y := int32(group)
		row := y * src.Width
		for x := int32(0); x < src.Width; x++ {
			sum := float32(0)
			for t := -radius; t <= radius; t++ {
				sx := x + t*stride
				if sx < 0 {
					sx = 0
				} else if sx >= src.Width {
					sx = src.Width - 1
				}
				sum += weights[t+radius] * src.Data[row+sx]
			}
			tmp.Data[row+x] = sum
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// vertical pass
	out := frame.NewPlane(src.Width, src.Height, nil)
	err = compute.Run(dev, kernel, int(src.Height), func(group int) error {
		y := int32(group)
		for x := int32(0); x < src.Width; x++ {
			sum := float32(0)
			for t := -radius; t <= radius; t++ {
				sy := y + t*stride
				if sy < 0 {
					sy = 0
				} else if sy >= src.Height {
					sy = src.Height - 1
				}
				sum += weights[t+radius] * tmp.Data[sy*src.Width+x]
			}
			out.Data[y*src.Width+x] = sum
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
