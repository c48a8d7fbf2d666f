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
	"github.com/burstlight/burstlight/internal/compute"
	"github.com/burstlight/burstlight/internal/frame"
)

// channels is the de-mosaiced representation of a 2x2-periodic plane:
// four quarter-resolution planes, one per mosaic position
type channels struct {
	Width  int32 // channel plane width, half the mosaic width
	Height int32
	Data   [4]*frame.Plane
}

// mosaicToChannels splits a 2x2-periodic mosaic plane into its four
// half-resolution channel planes
func mosaicToChannels(dev compute.Device, src *frame.Plane) (*channels, error) {
	w2, h2 := src.Width/2, src.Height/2
	res := &channels{Width: w2, Height: h2}
	for ch := range res.Data {
		res.Data[ch] = frame.NewPlane(w2, h2, nil)
	}
	err := compute.Run(dev, compute.KernelMosaicToChannels, int(h2), func(group int) error {
		y := int32(group)
		for x := int32(0); x < w2; x++ {
			res.Data[0].Data[y*w2+x] = src.Data[(y*2)*src.Width+x*2]
			res.Data[1].Data[y*w2+x] = src.Data[(y*2)*src.Width+x*2+1]
			res.Data[2].Data[y*w2+x] = src.Data[(y*2+1)*src.Width+x*2]
			res.Data[3].Data[y*w2+x] = src.Data[(y*2+1)*src.Width+x*2+1]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// channelsToMosaic re-interleaves four channel planes into one
// 2x2-periodic mosaic plane
func channelsToMosaic(dev compute.Device, src *channels) (*frame.Plane, error) {
	w, h := src.Width*2, src.Height*2
	out := frame.NewPlane(w, h, nil)
	err := compute.Run(dev, compute.KernelChannelsToMosaic, int(src.Height), func(group int) error {
		y := int32(group)
		for x := int32(0); x < src.Width; x++ {
			out.Data[(y*2)*w+x*2] = src.Data[0].Data[y*src.Width+x]
			out.Data[(y*2)*w+x*2+1] = src.Data[1].Data[y*src.Width+x]
			out.Data[(y*2+1)*w+x*2] = src.Data[2].Data[y*src.Width+x]
			out.Data[(y*2+1)*w+x*2+1] = src.Data[3].Data[y*src.Width+x]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// pad extends a plane by edge replication so the tile grid, offset by
// (offX,offY), aligns to tile boundaries
func pad(dev compute.Device, src *frame.Plane, padLeft, padTop, padRight, padBottom int32) (*frame.Plane, error) {
	if padLeft == 0 && padTop == 0 && padRight == 0 && padBottom == 0 {
		return src, nil
	}
	w, h := src.Width+padLeft+padRight, src.Height+padTop+padBottom
	out := frame.NewPlane(w, h, nil)
	err := compute.Run(dev, compute.KernelPad, int(h), func(group int) error {
		y := int32(group)
		for x := int32(0); x < w; x++ {
			out.Data[y*w+x] = src.ClampedAt(x-padLeft, y-padTop)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// crop cuts the padding off again
func crop(dev compute.Device, src *frame.Plane, left, top, width, height int32) (*frame.Plane, error) {
	out := frame.NewPlane(width, height, nil)
	err := compute.Run(dev, compute.KernelCrop, int(height), func(group int) error {
		y := int32(group)
		copy(out.Data[y*width:(y+1)*width], src.Data[(y+top)*src.Width+left:(y+top)*src.Width+left+width])
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
