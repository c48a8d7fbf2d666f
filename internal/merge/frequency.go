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
	"fmt"
	"math"
	"math/cmplx"

	"github.com/burstlight/burstlight/internal/compute"
	"github.com/burstlight/burstlight/internal/frame"
	"github.com/burstlight/burstlight/internal/stats"
)

// Tile mismatch band over which the merge transitions from maximum
// averaging to full shrinkage toward the reference
const (
	mismatchLow  float32 = 0.02
	mismatchHigh float32 = 0.17
)

// Each comparison frame's mismatch map is normalized to this mean
// before entering the running total consumed by deconvolution
const mismatchMeanTarget float32 = 0.12

// Tiles whose average mismatch stays below this threshold get the
// deconvolution boost
const deconvThreshold float32 = 0.03

// FreqParams holds the frequency merge tuning parameters
type FreqParams struct {
	TileSize      int32   `json:"tileSize"`      // transform tile edge, typically 8
	Robustness    float32 `json:"robustness"`    // scales the noise norm; 0 disables shrinkage entirely
	ReadNoise     float32 `json:"readNoise"`     // read noise floor in sample units
	ShotNoise     float32 `json:"shotNoise"`     // shot noise slope per sample unit
	MaxMotionNorm float32 `json:"maxMotionNorm"` // norm widening applied at low tile mismatch
	Sharpen       bool    `json:"sharpen"`       // deconvolution boost for low-mismatch tiles
}

func DefaultFreqParams() FreqParams {
	return FreqParams{
		TileSize:      8,
		Robustness:    1,
		ReadNoise:     8,
		ShotNoise:     0.5,
		MaxMotionNorm: 8,
		Sharpen:       true,
	}
}

func (p *FreqParams) Validate() error {
	if p.TileSize < 4 || p.TileSize%2 != 0 {
		return fmt.Errorf("invalid frequency tile size %d", p.TileSize)
	}
	if p.Robustness < 0 {
		return fmt.Errorf("invalid robustness %g", p.Robustness)
	}
	if p.MaxMotionNorm < 1 {
		return fmt.Errorf("max motion norm %g below 1", p.MaxMotionNorm)
	}
	return nil
}

// MergeFrequency merges a burst in the transform domain: per-tile
// Wiener-style shrinkage with sub-pixel motion compensation. The merge
// runs as 4 independent passes with the tile grid offset by half a
// tile in x, y, or both, and averages the results, suppressing the
// block-boundary artifacts inherent to any fixed-tile transform method
func MergeFrequency(dev compute.Device, ref *frame.Frame, warped []*frame.Plane, params FreqParams) (*frame.Plane, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if ref.MosaicPeriod != 2 {
		return nil, fmt.Errorf("frequency merge requires a 2x2-periodic mosaic, have period %d", ref.MosaicPeriod)
	}
	if len(warped) == 0 {
		return nil, errors.New("frequency merge needs at least one comparison frame")
	}

	refCh, err := mosaicToChannels(dev, ref.Plane())
	if err != nil {
		return nil, err
	}
	compChs := make([]*channels, len(warped))
	for i, w := range warped {
		if compChs[i], err = mosaicToChannels(dev, w); err != nil {
			return nil, err
		}
	}

	t := params.TileSize
	offsets := [4][2]int32{{0, 0}, {t / 2, 0}, {0, t / 2}, {t / 2, t / 2}}
	var acc *frame.Plane
	for _, off := range offsets {
		merged, err := mergeFrequencyPass(dev, refCh, compChs, off[0], off[1], params, ref.WhiteLevel)
		if err != nil {
			return nil, err
		}
		if acc == nil {
			acc = merged
		} else {
			for i, v := range merged.Data {
				acc.Data[i] += v
			}
		}
	}
	for i := range acc.Data {
		acc.Data[i] *= 0.25
	}
	return acc, nil
}

// freqPass carries the per-pass state: the padded channel planes, the
// reference spectrum, and the running accumulators
type freqPass struct {
	t       int32 // tile size
	tilesX  int32
	tilesY  int32
	refPad  *channels
	refFreq []complex128 // [tile][channel][bin]
	acc     []complex128 // merged spectrum accumulator
	means   []float32    // per-tile reference mean, for the shot noise model
	total   []float32    // per-tile total mismatch across the burst
}

func (fp *freqPass) tiles() int32 { return fp.tilesX * fp.tilesY }

// coeff returns the coefficient slice of one tile and channel
func coeff(buf []complex128, tile, ch, binsPerTile int32) []complex128 {
	base := (tile*4 + ch) * binsPerTile
	return buf[base : base+binsPerTile]
}

func mergeFrequencyPass(dev compute.Device, refCh *channels, compChs []*channels, offX, offY int32, params FreqParams, white float32) (*frame.Plane, error) {
	t := params.TileSize
	w2, h2 := refCh.Width, refCh.Height
	padRight := (t - (w2+offX)%t) % t
	padBottom := (t - (h2+offY)%t) % t

	refPad, err := padChannels(dev, refCh, offX, offY, padRight, padBottom)
	if err != nil {
		return nil, err
	}
	fp := &freqPass{
		t:      t,
		tilesX: refPad.Width / t,
		tilesY: refPad.Height / t,
		refPad: refPad,
	}
	bins := t * t
	fp.refFreq = make([]complex128, fp.tiles()*4*bins)
	fp.acc = make([]complex128, len(fp.refFreq))
	fp.means = make([]float32, fp.tiles())
	fp.total = make([]float32, fp.tiles())

	// transform the reference tile grid once
	err = compute.Run(dev, compute.KernelForwardTransform, int(fp.tilesY), func(group int) error {
		ty := int32(group)
		fft := newTileFFT(t)
		pix := make([]float32, bins)
		for tx := int32(0); tx < fp.tilesX; tx++ {
			tile := ty*fp.tilesX + tx
			mean := float32(0)
			for ch := int32(0); ch < 4; ch++ {
				gatherTile(refPad.Data[ch], tx, ty, t, pix)
				for _, p := range pix {
					mean += p
				}
				fft.forward(pix, coeff(fp.refFreq, tile, ch, bins))
			}
			fp.means[tile] = mean / float32(4*bins)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	copy(fp.acc, fp.refFreq)

	for _, compCh := range compChs {
		compPad, err := padChannels(dev, compCh, offX, offY, padRight, padBottom)
		if err != nil {
			return nil, err
		}
		if err = fp.accumulate(dev, compPad, params, white); err != nil {
			return nil, err
		}
	}

	norm := 1.0 / float64(len(compChs)+1)
	for i := range fp.acc {
		fp.acc[i] = complex(real(fp.acc[i])*norm, imag(fp.acc[i])*norm)
	}

	if params.Sharpen {
		if err = fp.deconvolute(dev, len(compChs)); err != nil {
			return nil, err
		}
	}

	merged, err := fp.restore(dev, white)
	if err != nil {
		return nil, err
	}

	// crop the padding off and re-mosaic
	res := &channels{Width: w2, Height: h2}
	for ch := int32(0); ch < 4; ch++ {
		if res.Data[ch], err = crop(dev, merged.Data[ch], offX, offY, w2, h2); err != nil {
			return nil, err
		}
	}
	return channelsToMosaic(dev, res)
}

func padChannels(dev compute.Device, src *channels, left, top, right, bottom int32) (*channels, error) {
	res := &channels{Width: src.Width + left + right, Height: src.Height + top + bottom}
	for ch := range src.Data {
		var err error
		if res.Data[ch], err = pad(dev, src.Data[ch], left, top, right, bottom); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// gatherTile copies one t*t tile of a plane into pix
func gatherTile(p *frame.Plane, tx, ty, t int32, pix []float32) {
	for j := int32(0); j < t; j++ {
		row := (ty*t + j) * p.Width
		copy(pix[j*t:(j+1)*t], p.Data[row+tx*t:row+tx*t+t])
	}
}

// mismatchMap estimates the per-tile alignment mismatch of one
// comparison frame: the RMS difference to the reference, normalized by
// tile brightness, then scaled so the map's mean matches the fixed
// target. A flat map (zero-motion burst) is left unscaled
func (fp *freqPass) mismatchMap(dev compute.Device, compPad *channels) ([]float32, error) {
	t := fp.t
	bins := t * t
	m := make([]float32, fp.tiles())
	err := compute.Run(dev, compute.KernelEstimateMismatch, int(fp.tilesY), func(group int) error {
		ty := int32(group)
		for tx := int32(0); tx < fp.tilesX; tx++ {
			tile := ty*fp.tilesX + tx
			sumSq := float32(0)
			for ch := int32(0); ch < 4; ch++ {
				rp, cp := fp.refPad.Data[ch], compPad.Data[ch]
				for j := int32(0); j < t; j++ {
					row := (ty*t + j) * rp.Width
					for i := int32(0); i < t; i++ {
						d := cp.Data[row+tx*t+i] - rp.Data[row+tx*t+i]
						sumSq += d * d
					}
				}
			}
			rms := float32(math.Sqrt(float64(sumSq) / float64(4*bins)))
			m[tile] = rms / (fp.means[tile] + 1e-12)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	mean, _ := stats.MeanStdDev(m)
	if mean > 1e-12 {
		scale := mismatchMeanTarget / mean
		err = compute.Run(dev, compute.KernelNormalizeMismatch, int(fp.tilesY), func(group int) error {
			row := int32(group) * fp.tilesX
			for i := row; i < row+fp.tilesX; i++ {
				m[i] *= scale
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

// highlightsMap returns the fraction of near-clipped samples per tile
func (fp *freqPass) highlightsMap(dev compute.Device, compPad *channels, white float32) ([]float32, error) {
	t := fp.t
	clipBound := 0.95 * white
	m := make([]float32, fp.tiles())
	err := compute.Run(dev, compute.KernelEstimateHighlights, int(fp.tilesY), func(group int) error {
		ty := int32(group)
		for tx := int32(0); tx < fp.tilesX; tx++ {
			clipped := int32(0)
			for ch := int32(0); ch < 4; ch++ {
				cp := compPad.Data[ch]
				for j := int32(0); j < t; j++ {
					row := (ty*t + j) * cp.Width
					for i := int32(0); i < t; i++ {
						if cp.Data[row+tx*t+i] >= clipBound {
							clipped++
						}
					}
				}
			}
			m[ty*fp.tilesX+tx] = float32(clipped) / float32(4*t*t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// motionNorm widens the shrinkage norm for well-matched tiles and
// narrows it to 1 as tile mismatch grows over the transition band.
// Note the direction: maximum widening at mismatch <= 0.02 and none at
// >= 0.17. A low-mismatch tile tolerates heavy averaging, a
// high-mismatch tile must keep its own detail and reject the
// comparison's
func motionNorm(mismatch, maxNorm float32) float32 {
	w := (mismatchHigh - mismatch) / (mismatchHigh - mismatchLow)
	if w < 0 {
		w = 0
	} else if w > 1 {
		w = 1
	}
	return 1 + w*(maxNorm-1)
}

// accumulate transforms one comparison frame tile by tile, applies the
// sub-pixel correction and the Wiener-style shrinkage, and adds the
// result into the merged spectrum
func (fp *freqPass) accumulate(dev compute.Device, compPad *channels, params FreqParams, white float32) error {
	mismatch, err := fp.mismatchMap(dev, compPad)
	if err != nil {
		return err
	}
	for i, m := range mismatch {
		fp.total[i] += m
	}
	highlights, err := fp.highlightsMap(dev, compPad, white)
	if err != nil {
		return err
	}

	t := fp.t
	bins := t * t
	phase := subPixelPhases(t)

	return compute.Run(dev, compute.KernelMergeFrequency, int(fp.tilesY), func(group int) error {
		ty := int32(group)
		fft := newTileFFT(t)
		pix := make([]float32, bins)
		compFreq := make([]complex128, 4*bins)
		shifted := make([]complex128, 4*bins)

		for tx := int32(0); tx < fp.tilesX; tx++ {
			tile := ty*fp.tilesX + tx
			for ch := int32(0); ch < 4; ch++ {
				gatherTile(compPad.Data[ch], tx, ty, t, pix)
				fft.forward(pix, compFreq[ch*bins:(ch+1)*bins])
			}

			fp.subPixelShift(tile, compFreq, shifted, phase)

			// per-tile shrinkage norm from the shot+read noise model,
			// the motion-adaptive norm and the highlight correction
			norm := float64(0)
			if params.Robustness > 0 {
				n := (params.ShotNoise*fp.means[tile] + params.ReadNoise) / params.Robustness
				n *= motionNorm(mismatch[tile], params.MaxMotionNorm)
				n *= 1 + 4*highlights[tile] // near-clipped tiles blend more comparison data
				norm = float64(n * n)
			}

			for bin := int32(0); bin < bins; bin++ {
				var w [4]float64
				for ch := int32(0); ch < 4; ch++ {
					d := shifted[ch*bins+bin] - fp.refFreq[(tile*4+ch)*bins+bin]
					dd := real(d)*real(d) + imag(d)*imag(d)
					if params.Robustness <= 0 {
						w[ch] = 0
					} else {
						w[ch] = dd / (dd + norm + 1e-30)
					}
				}
				// use the two middle channel weights, discarding min and
				// max, to reduce cross-channel color artifacts
				sort4(&w)
				weight := (w[1] + w[2]) / 2
				for ch := int32(0); ch < 4; ch++ {
					c := shifted[ch*bins+bin]
					r := fp.refFreq[(tile*4+ch)*bins+bin]
					fp.acc[(tile*4+ch)*bins+bin] += complex((1-weight)*real(c)+weight*real(r), (1-weight)*imag(c)+weight*imag(r))
				}
			}
		}
		return nil
	})
}

// subPixelPhases precomputes the 1D Fourier shift factors for the 7
// candidate shifts in [-0.5,+0.5] px
func subPixelPhases(t int32) [][]complex128 {
	res := make([][]complex128, 7)
	for k := 0; k < 7; k++ {
		shift := -0.5 + float64(k)/6.0
		row := make([]complex128, t)
		for f := int32(0); f < t; f++ {
			row[f] = cmplx.Exp(complex(0, -2*math.Pi*shift*float64(signedFreq(f, t))/float64(t)))
		}
		res[k] = row
	}
	return res
}

// subPixelShift searches the 7x7 grid of candidate sub-pixel shifts,
// applying the Fourier shift theorem to the comparison coefficients and
// keeping the shift that minimizes the residual against the reference.
// This recovers fractional motion the integer-pixel aligner cannot
// express
func (fp *freqPass) subPixelShift(tile int32, compFreq, shifted []complex128, phase [][]complex128) {
	t := fp.t
	bins := t * t
	bestKx, bestKy, bestResidual := 3, 3, math.MaxFloat64
	for ky := 0; ky < 7; ky++ {
		for kx := 0; kx < 7; kx++ {
			residual := float64(0)
			for ch := int32(0); ch < 4; ch++ {
				for fy := int32(0); fy < t; fy++ {
					py := phase[ky][fy]
					for fx := int32(0); fx < t; fx++ {
						c := compFreq[ch*bins+fy*t+fx] * phase[kx][fx] * py
						d := c - fp.refFreq[(tile*4+ch)*bins+fy*t+fx]
						residual += real(d)*real(d) + imag(d)*imag(d)
					}
				}
			}
			if residual < bestResidual {
				bestKx, bestKy, bestResidual = kx, ky, residual
			}
		}
	}
	for ch := int32(0); ch < 4; ch++ {
		for fy := int32(0); fy < t; fy++ {
			py := phase[bestKy][fy]
			for fx := int32(0); fx < t; fx++ {
				shifted[ch*bins+fy*t+fx] = compFreq[ch*bins+fy*t+fx] * phase[bestKx][fx] * py
			}
		}
	}
}

// deconvolute boosts high-frequency bins in tiles whose total mismatch
// across the burst stayed low, restoring detail softened by averaging
func (fp *freqPass) deconvolute(dev compute.Device, numComps int) error {
	t := fp.t
	bins := t * t
	gains := deconvGains(t)
	return compute.Run(dev, compute.KernelDeconvolute, int(fp.tilesY), func(group int) error {
		ty := int32(group)
		for tx := int32(0); tx < fp.tilesX; tx++ {
			tile := ty*fp.tilesX + tx
			avg := fp.total[tile] / float32(numComps)
			if avg >= deconvThreshold {
				continue
			}
			scale := 1 - avg/deconvThreshold
			for fy := int32(0); fy < t; fy++ {
				ry := signedFreq(fy, t)
				if ry < 0 {
					ry = -ry
				}
				for fx := int32(0); fx < t; fx++ {
					rx := signedFreq(fx, t)
					if rx < 0 {
						rx = -rx
					}
					r := rx
					if ry > r {
						r = ry
					}
					gain := 1 + float64(scale*(gains[r]-1))
					if gain == 1 {
						continue
					}
					for ch := int32(0); ch < 4; ch++ {
						idx := (tile*4+ch)*bins + fy*t + fx
						fp.acc[idx] = complex(real(fp.acc[idx])*gain, imag(fp.acc[idx])*gain)
					}
				}
			}
		}
		return nil
	})
}

// restore transforms the merged spectrum back to the pixel domain and
// blends tile borders against the padded reference with a raised-cosine
// window to hide the seams of the transform grid, clamping to the valid
// sensor range
func (fp *freqPass) restore(dev compute.Device, white float32) (*channels, error) {
	t := fp.t
	bins := t * t
	win := cosineWindow(t)
	res := &channels{Width: fp.refPad.Width, Height: fp.refPad.Height}
	for ch := range res.Data {
		res.Data[ch] = frame.NewPlane(res.Width, res.Height, nil)
	}
	err := compute.Run(dev, compute.KernelBackwardTransform, int(fp.tilesY), func(group int) error {
		ty := int32(group)
		fft := newTileFFT(t)
		pix := make([]float32, bins)
		for tx := int32(0); tx < fp.tilesX; tx++ {
			tile := ty*fp.tilesX + tx
			for ch := int32(0); ch < 4; ch++ {
				fft.backward(coeff(fp.acc, tile, ch, bins), pix)
				op := res.Data[ch]
				for j := int32(0); j < t; j++ {
					row := (ty*t + j) * op.Width
					copy(op.Data[row+tx*t:row+tx*t+t], pix[j*t:(j+1)*t])
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = compute.Run(dev, compute.KernelReduceArtifacts, int(fp.tilesY), func(group int) error {
		ty := int32(group)
		for tx := int32(0); tx < fp.tilesX; tx++ {
			for ch := int32(0); ch < 4; ch++ {
				rp := fp.refPad.Data[ch]
				op := res.Data[ch]
				for j := int32(0); j < t; j++ {
					row := (ty*t + j) * op.Width
					for i := int32(0); i < t; i++ {
						w := win[i] * win[j]
						v := w*op.Data[row+tx*t+i] + (1-w)*rp.Data[row+tx*t+i]
						if v < 0 {
							v = 0
						} else if v > white {
							v = white
						}
						op.Data[row+tx*t+i] = v
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// sort4 sorts four weights ascending
func sort4(w *[4]float64) {
	if w[0] > w[1] {
		w[0], w[1] = w[1], w[0]
	}
	if w[2] > w[3] {
		w[2], w[3] = w[3], w[2]
	}
	if w[0] > w[2] {
		w[0], w[2] = w[2], w[0]
	}
	if w[1] > w[3] {
		w[1], w[3] = w[3], w[1]
	}
	if w[1] > w[2] {
		w[1], w[2] = w[2], w[1]
	}
}
