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

// Warp resamples a full-resolution frame plane according to a tile
// displacement field computed on a downscaled pyramid level. scale is
// the pyramid's first downscale factor; displacements and tile geometry
// scale back up by it. The variant is chosen by the sensor's mosaic
// period: 2x2-periodic sensors take the per-tile nearest assignment,
// 6x6-periodic sensors blend overlapping tiles to avoid hard seams
// where tile centers are irregularly spaced
func Warp(dev compute.Device, src *frame.Plane, field *AlignmentField, scale, mosaicPeriod int32) (*frame.Plane, error) {
	switch mosaicPeriod {
	case 2:
		return WarpRegular(dev, src, field, scale)
	case 6:
		return WarpOverlap(dev, src, field, scale)
	}
	return nil, fmt.Errorf("unsupported mosaic period %d", mosaicPeriod)
}

// WarpRegular assigns each output pixel the displacement of its
// containing non-overlapping tile, clamped to the tile grid, and
// fetches the source pixel with coordinates clamped to image bounds.
// No blending across tile boundaries
func WarpRegular(dev compute.Device, src *frame.Plane, field *AlignmentField, scale int32) (*frame.Plane, error) {
	out := frame.NewPlane(src.Width, src.Height, nil)
	geo := field.Geo
	tile := geo.TileSize * scale
	stride := tile / 2

	err := compute.Run(dev, compute.KernelWarpRegular, int(src.Height), func(group int) error {
		y := int32(group)
		ty := (y - tile/4) / stride
		if y < tile/4 {
			ty = 0
		}
		for x := int32(0); x < src.Width; x++ {
			tx := (x - tile/4) / stride
			if x < tile/4 {
				tx = 0
			}
			v := field.At(tx, ty)
			out.Data[y*src.Width+x] = src.ClampedAt(x+v.X*scale, y+v.Y*scale)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// WarpOverlap blends the displaced samples of all (up to 4) overlapping
// tiles covering each output pixel, weighted by distance to the tile
// center along each axis and normalized by total weight
func WarpOverlap(dev compute.Device, src *frame.Plane, field *AlignmentField, scale int32) (*frame.Plane, error) {
	out := frame.NewPlane(src.Width, src.Height, nil)
	geo := field.Geo
	tile := geo.TileSize * scale
	stride := tile / 2

	err := compute.Run(dev, compute.KernelWarpOverlap, int(src.Height), func(group int) error {
		y := int32(group)
		ty1 := y / stride
		ty0 := ty1 - 1
		for x := int32(0); x < src.Width; x++ {
			tx1 := x / stride
			tx0 := tx1 - 1
			sum, weightSum := float32(0), float32(0)
			for ty := ty0; ty <= ty1; ty++ {
				if ty < 0 || ty >= geo.CountY {
					continue
				}
				cy := ty*stride + tile/2
				for tx := tx0; tx <= tx1; tx++ {
					if tx < 0 || tx >= geo.CountX {
						continue
					}
					cx := tx*stride + tile/2
					dx, dy := x-cx, y-cy
					if dx < 0 {
						dx = -dx
					}
					if dy < 0 {
						dy = -dy
					}
					weight := float32(tile - dx - dy)
					if weight <= 0 {
						continue
					}
					v := field.Vec[ty*geo.CountX+tx]
					sum += weight * src.ClampedAt(x+v.X*scale, y+v.Y*scale)
					weightSum += weight
				}
			}
			if weightSum > 0 {
				out.Data[y*src.Width+x] = sum / weightSum
			} else {
				// border pixels outside every tile footprint pass through
				out.Data[y*src.Width+x] = src.Data[y*src.Width+x]
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
