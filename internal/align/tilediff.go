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
	"math"

	"github.com/burstlight/burstlight/internal/compute"
	"github.com/burstlight/burstlight/internal/frame"
)

// sentinel marking out-of-frame samples in cached comparison rows
const oobSentinel float32 = math.MaxFloat32 / 4

// Out-of-frame comparison pixels cost this much per sample, biasing
// alignment away from the frame border instead of excluding candidates
const oobPenalty float32 = 65535

// Exposure compensation clamps the per-candidate brightness ratio to
// this band. Preserved exactly, its precise value affects alignment
// scores observably
const (
	expRatioMin float32 = 0.9
	expRatioMax float32 = 1.1
)

// A TileDifferenceVolume holds one non-negative error score per
// displacement candidate and tile. Transient, consumed immediately by
// the argmin step
type TileDifferenceVolume struct {
	Geo   TileGeometry
	Score []float32 // indexed [candidate][tileY][tileX]
}

func newTileDifferenceVolume(geo TileGeometry) *TileDifferenceVolume {
	return &TileDifferenceVolume{Geo: geo, Score: make([]float32, geo.Candidates()*geo.CountX*geo.CountY)}
}

// blend mixes absolute and squared differences: (1-w)*|d| + w*d^2
func blend(d, w float32) float32 {
	if d < 0 {
		d = -d
	}
	return (1-w)*d + w*d*d
}

// computeTileDifferences scores every displacement candidate of every
// tile, centered on the corrected previous displacement. w interpolates
// between the L1 (0) and L2 (1) norms
func computeTileDifferences(dev compute.Device, ref, comp *frame.Plane, geo TileGeometry, prev *AlignmentField, w float32, uniformExposure bool) (*TileDifferenceVolume, error) {
	if geo.SearchDist == 2 {
		if uniformExposure {
			return computeTileDifferences25(dev, ref, comp, geo, prev, w)
		}
		return computeTileDifferences25Exposure(dev, ref, comp, geo, prev, w)
	}
	vol := newTileDifferenceVolume(geo)
	tileArea := geo.CountX * geo.CountY
	d := geo.SearchDist
	size := geo.TileSize
	stride := size / 2

	err := compute.Run(dev, compute.KernelTileDiff, int(geo.CountY), func(group int) error {
		ty := int32(group)
		y0 := ty * stride
		for tx := int32(0); tx < geo.CountX; tx++ {
			x0 := tx * stride
			base := prev.Vec[ty*geo.CountX+tx]
			cand := int32(0)
			for dy := -d; dy <= d; dy++ {
				for dx := -d; dx <= d; dx++ {
					score := float32(0)
					for j := int32(0); j < size; j++ {
						refRow := (y0 + j) * ref.Width
						cy := y0 + j + base.Y + dy
						for i := int32(0); i < size; i++ {
							cx := x0 + i + base.X + dx
							if cx < 0 || cx >= comp.Width || cy < 0 || cy >= comp.Height {
								score += blend(oobPenalty, w)
								continue
							}
							score += blend(ref.Data[refRow+x0+i]-comp.Data[cy*comp.Width+cx], w)
						}
					}
					vol.Score[cand*tileArea+ty*geo.CountX+tx] = score
					cand++
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vol, nil
}

// computeTileDifferences25 is the fast path for the common 5x5 candidate
// case. It walks each tile row once and accumulates all 25 candidate
// scores from cached comparison rows
func computeTileDifferences25(dev compute.Device, ref, comp *frame.Plane, geo TileGeometry, prev *AlignmentField, w float32) (*TileDifferenceVolume, error) {
	vol := newTileDifferenceVolume(geo)
	tileArea := geo.CountX * geo.CountY
	size := geo.TileSize
	stride := size / 2

	err := compute.Run(dev, compute.KernelTileDiff25, int(geo.CountY), func(group int) error {
		ty := int32(group)
		y0 := ty * stride
		compRow := make([]float32, size+4)
		var scores [25]float32
		for tx := int32(0); tx < geo.CountX; tx++ {
			x0 := tx * stride
			base := prev.Vec[ty*geo.CountX+tx]
			for i := range scores {
				scores[i] = 0
			}
			for j := int32(0); j < size+4; j++ {
				cy := y0 + j - 2 + base.Y
				// cache one comparison row covering all 5 horizontal offsets
				for i := int32(0); i < size+4; i++ {
					cx := x0 + i - 2 + base.X
					if cx < 0 || cx >= comp.Width || cy < 0 || cy >= comp.Height {
						compRow[i] = oobSentinel
					} else {
						compRow[i] = comp.Data[cy*comp.Width+cx]
					}
				}
				for dy := int32(0); dy < 5; dy++ {
					rj := j - dy
					if rj < 0 || rj >= size {
						continue
					}
					refRow := (y0 + rj) * ref.Width
					for i := int32(0); i < size; i++ {
						r := ref.Data[refRow+x0+i]
						for dx := int32(0); dx < 5; dx++ {
							c := compRow[i+dx]
							var e float32
							if c >= oobSentinel {
								e = blend(oobPenalty, w)
							} else {
								e = blend(r-c, w)
							}
							scores[dy*5+dx] += e
						}
					}
				}
			}
			for cand := int32(0); cand < 25; cand++ {
				vol.Score[cand*tileArea+ty*geo.CountX+tx] = scores[cand]
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vol, nil
}

// computeTileDifferences25Exposure is the exposure-compensated variant of
// the 5x5 fast path. It estimates a per-candidate brightness ratio,
// clamped to [0.9,1.1], before scoring, tolerating slight exposure
// mismatch between reference and comparison frames
func computeTileDifferences25Exposure(dev compute.Device, ref, comp *frame.Plane, geo TileGeometry, prev *AlignmentField, w float32) (*TileDifferenceVolume, error) {
	vol := newTileDifferenceVolume(geo)
	tileArea := geo.CountX * geo.CountY
	size := geo.TileSize
	stride := size / 2

	err := compute.Run(dev, compute.KernelTileDiff25Exposure, int(geo.CountY), func(group int) error {
		ty := int32(group)
		y0 := ty * stride
		for tx := int32(0); tx < geo.CountX; tx++ {
			x0 := tx * stride
			base := prev.Vec[ty*geo.CountX+tx]

			sumRef := float32(0)
			for j := int32(0); j < size; j++ {
				refRow := (y0 + j) * ref.Width
				for i := int32(0); i < size; i++ {
					sumRef += ref.Data[refRow+x0+i]
				}
			}

			cand := int32(0)
			for dy := int32(-2); dy <= 2; dy++ {
				for dx := int32(-2); dx <= 2; dx++ {
					// estimate the candidate brightness ratio first
					sumComp := float32(0)
					for j := int32(0); j < size; j++ {
						cy := y0 + j + base.Y + dy
						for i := int32(0); i < size; i++ {
							cx := x0 + i + base.X + dx
							if cx < 0 || cx >= comp.Width || cy < 0 || cy >= comp.Height {
								continue
							}
							sumComp += comp.Data[cy*comp.Width+cx]
						}
					}
					ratio := float32(1)
					if sumComp > 1e-12 {
						ratio = sumRef / sumComp
					}
					if ratio < expRatioMin {
						ratio = expRatioMin
					} else if ratio > expRatioMax {
						ratio = expRatioMax
					}

					score := float32(0)
					for j := int32(0); j < size; j++ {
						refRow := (y0 + j) * ref.Width
						cy := y0 + j + base.Y + dy
						for i := int32(0); i < size; i++ {
							cx := x0 + i + base.X + dx
							if cx < 0 || cx >= comp.Width || cy < 0 || cy >= comp.Height {
								score += blend(oobPenalty, w)
								continue
							}
							score += blend(ref.Data[refRow+x0+i]-ratio*comp.Data[cy*comp.Width+cx], w)
						}
					}
					vol.Score[cand*tileArea+ty*geo.CountX+tx] = score
					cand++
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vol, nil
}
