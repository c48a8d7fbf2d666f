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
	"errors"
	"fmt"

	"github.com/burstlight/burstlight/internal/compute"
	"github.com/burstlight/burstlight/internal/frame"
)

// Config holds the per-level alignment parameters. All slices must have
// one entry per pyramid level, level 0 (finest) first
type Config struct {
	DownscaleFactors []int32   `json:"downscaleFactors"` // plane downscale per level
	TileSizes        []int32   `json:"tileSizes"`        // alignment tile size per level
	SearchDistances  []int32   `json:"searchDistances"`  // search radius per level
	NormWeights      []float32 `json:"normWeights"`      // 0=absolute differences, 1=squared differences
	UniformExposure  bool      `json:"uniformExposure"`  // false enables exposure-compensated scoring
}

// DeriveTileSizes shrinks the finest tile size by half at each coarser
// level, down to a floor of 8
func DeriveTileSizes(tileSize int32, levels int) []int32 {
	sizes := make([]int32, levels)
	for i := range sizes {
		if i == 0 {
			sizes[i] = tileSize
		} else if sizes[i-1] > 8 {
			sizes[i] = sizes[i-1] / 2
		} else {
			sizes[i] = 8
		}
	}
	return sizes
}

// DefaultConfig returns the standard four-level configuration for a
// uniform-exposure burst with the given finest tile size
func DefaultConfig(tileSize int32) Config {
	return Config{
		DownscaleFactors: []int32{2, 2, 4, 4},
		TileSizes:        DeriveTileSizes(tileSize, 4),
		SearchDistances:  []int32{2, 2, 2, 2},
		NormWeights:      []float32{0, 1, 1, 1},
		UniformExposure:  true,
	}
}

// Validate rejects invalid configurations before any kernel dispatch
func (c *Config) Validate() error {
	levels := len(c.DownscaleFactors)
	if levels == 0 {
		return errors.New("alignment config needs at least one pyramid level")
	}
	if len(c.TileSizes) != levels || len(c.SearchDistances) != levels || len(c.NormWeights) != levels {
		return fmt.Errorf("alignment config slices disagree on level count: %d downscale factors, %d tile sizes, %d search distances, %d norm weights",
			levels, len(c.TileSizes), len(c.SearchDistances), len(c.NormWeights))
	}
	for i := 0; i < levels; i++ {
		if c.DownscaleFactors[i] <= 0 {
			return fmt.Errorf("level %d: invalid downscale factor %d", i, c.DownscaleFactors[i])
		}
		if c.TileSizes[i] < 8 || c.TileSizes[i]%2 != 0 {
			return fmt.Errorf("level %d: invalid tile size %d", i, c.TileSizes[i])
		}
		if c.SearchDistances[i] <= 0 {
			return fmt.Errorf("level %d: invalid search distance %d", i, c.SearchDistances[i])
		}
		if c.NormWeights[i] < 0 || c.NormWeights[i] > 1 {
			return fmt.Errorf("level %d: norm weight %g outside [0,1]", i, c.NormWeights[i])
		}
	}
	return nil
}

// An Aligner estimates per-tile integer displacement fields between a
// reference pyramid and one comparison pyramid
type Aligner struct {
	Dev compute.Device
	Cfg Config
}

func NewAligner(dev compute.Device, cfg Config) *Aligner {
	return &Aligner{Dev: dev, Cfg: cfg}
}

// Align refines a displacement field from the coarsest pyramid level to
// the finest and returns the finest-level field. Levels are strictly
// sequential: no level starts before the previous argmin is committed
func (a *Aligner) Align(refPyr, compPyr []*frame.Plane) (*AlignmentField, error) {
	if err := a.Cfg.Validate(); err != nil {
		return nil, err
	}
	levels := len(a.Cfg.DownscaleFactors)
	if len(refPyr) != levels || len(compPyr) != levels {
		return nil, fmt.Errorf("pyramid has %d/%d levels, config expects %d", len(refPyr), len(compPyr), levels)
	}

	var field *AlignmentField
	for level := levels - 1; level >= 0; level-- {
		ref, comp := refPyr[level], compPyr[level]
		if ref.Width != comp.Width || ref.Height != comp.Height {
			return nil, fmt.Errorf("level %d: plane dimensions %dx%d vs %dx%d differ", level, ref.Width, ref.Height, comp.Width, comp.Height)
		}
		if ref.Width < a.Cfg.TileSizes[level] || ref.Height < a.Cfg.TileSizes[level] {
			return nil, fmt.Errorf("level %d: plane %dx%d smaller than tile size %d, frame too small for this pyramid", level, ref.Width, ref.Height, a.Cfg.TileSizes[level])
		}
		geo := NewTileGeometry(ref.Width, ref.Height, a.Cfg.TileSizes[level], a.Cfg.SearchDistances[level])

		var prev *AlignmentField
		if field == nil {
			prev = NewAlignmentField(geo) // coarsest level starts from zero motion
		} else {
			up := field.UpsampleNearest(geo, a.Cfg.DownscaleFactors[level+1])
			var err error
			prev, err = a.correctUpsamplingError(ref, comp, geo, up, level == 0)
			if err != nil {
				return nil, err
			}
		}

		vol, err := computeTileDifferences(a.Dev, ref, comp, geo, prev, a.Cfg.NormWeights[level], a.Cfg.UniformExposure)
		if err != nil {
			return nil, err
		}
		field, err = a.findBestTileAlignment(vol, prev)
		if err != nil {
			return nil, err
		}
	}
	return field, nil
}

// correctUpsamplingError resolves the ambiguity inherent in scaling a
// coarse displacement: for each tile the scaled vector v and its two
// variants v+(1,0) and v+(0,1) are scored against the planes, keeping
// the minimum. The finest level scores with absolute differences, all
// coarser levels with squared differences
func (a *Aligner) correctUpsamplingError(ref, comp *frame.Plane, geo TileGeometry, up *AlignmentField, finest bool) (*AlignmentField, error) {
	w := float32(1)
	if finest {
		w = 0
	}
	res := NewAlignmentField(geo)
	size := geo.TileSize
	stride := size / 2
	candidates := [3]Vec2{{0, 0}, {1, 0}, {0, 1}}

	err := compute.Run(a.Dev, compute.KernelCorrectUpsampling, int(geo.CountY), func(group int) error {
		ty := int32(group)
		y0 := ty * stride
		for tx := int32(0); tx < geo.CountX; tx++ {
			x0 := tx * stride
			base := up.Vec[ty*geo.CountX+tx]

			best, bestScore := candidates[0], float32(0)
			for ci, c := range candidates {
				score := float32(0)
				for j := int32(0); j < size; j++ {
					refRow := (y0 + j) * ref.Width
					cy := y0 + j + base.Y + c.Y
					for i := int32(0); i < size; i++ {
						cx := x0 + i + base.X + c.X
						if cx < 0 || cx >= comp.Width || cy < 0 || cy >= comp.Height {
							score += blend(oobPenalty, w)
							continue
						}
						score += blend(ref.Data[refRow+x0+i]-comp.Data[cy*comp.Width+cx], w)
					}
				}
				if ci == 0 || score < bestScore {
					best, bestScore = c, score
				}
			}
			res.Vec[ty*geo.CountX+tx] = Vec2{X: base.X + best.X, Y: base.Y + best.Y}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// findBestTileAlignment picks the minimum-score candidate per tile and
// adds its offset to the corrected previous displacement. Ties keep the
// centered candidate, so degenerate zero-motion bursts converge to the
// zero field at every level
func (a *Aligner) findBestTileAlignment(vol *TileDifferenceVolume, prev *AlignmentField) (*AlignmentField, error) {
	geo := vol.Geo
	res := NewAlignmentField(geo)
	tileArea := geo.CountX * geo.CountY
	d := geo.SearchDist
	n := 2*d + 1
	center := d*n + d

	err := compute.Run(a.Dev, compute.KernelFindBestTile, int(geo.CountY), func(group int) error {
		ty := int32(group)
		for tx := int32(0); tx < geo.CountX; tx++ {
			tile := ty*geo.CountX + tx
			bestCand, bestScore := center, vol.Score[center*tileArea+tile]
			for cand := int32(0); cand < n*n; cand++ {
				if s := vol.Score[cand*tileArea+tile]; s < bestScore {
					bestCand, bestScore = cand, s
				}
			}
			base := prev.Vec[tile]
			res.Vec[tile] = Vec2{X: base.X + bestCand%n - d, Y: base.Y + bestCand/n - d}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
