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

package frame

import (
	"errors"
	"fmt"

	"github.com/burstlight/burstlight/internal/stats"
)

// A single mosaiced sensor plane. Planes are treated as immutable once
// produced; downstream stages reference them without copying.
type Plane struct {
	Width  int32
	Height int32
	Data   []float32
}

// Creates a plane of the given dimensions. Data is not copied, allocated if nil
func NewPlane(width, height int32, data []float32) *Plane {
	if data == nil {
		data = make([]float32, width*height)
	}
	return &Plane{Width: width, Height: height, Data: data}
}

// Creates a deep copy of the given plane
func NewPlaneFromPlane(p *Plane) *Plane {
	data := make([]float32, len(p.Data))
	copy(data, p.Data)
	return &Plane{Width: p.Width, Height: p.Height, Data: data}
}

// Pixel access with coordinates clamped to plane bounds
func (p *Plane) ClampedAt(x, y int32) float32 {
	if x < 0 {
		x = 0
	} else if x >= p.Width {
		x = p.Width - 1
	}
	if y < 0 {
		y = 0
	} else if y >= p.Height {
		y = p.Height - 1
	}
	return p.Data[y*p.Width+x]
}

// One raw exposure of a burst: the sensor plane plus the per-frame
// calibration metadata from the image source contract
type Frame struct {
	ID       int    // Sequential ID number, for log output. Counted upwards from 0. By convention, the reference is 0
	FileName string // Original file name, if any, for log output

	Width        int32     // Plane width in sensor pixels
	Height       int32     // Plane height in sensor pixels
	MosaicPeriod int32     // Color filter array period, 2 for Bayer-like sensors, 6 for irregular layouts
	BlackLevels  []float32 // Per-mosaic-position black level, length MosaicPeriod^2 (or 1 for uniform)
	WhiteLevel   float32   // Sensor saturation value
	ColorFactors []float32 // Per-mosaic-position gain normalization factors, optional
	ExposureBias int32     // Exposure bias in EV steps relative to the burst baseline, 0 for uniform bursts

	Data []float32 // The sensor samples, row major

	Stats *stats.Stats // Basic sample statistics: min, mean, max, sigma
}

// Creates a frame of the given dimensions with default calibration:
// black 0, white 65535, Bayer period, uniform color factors.
// Data is not copied, allocated if nil
func NewFrame(width, height int32, data []float32) *Frame {
	if data == nil {
		data = make([]float32, width*height)
	}
	return &Frame{
		Width:        width,
		Height:       height,
		MosaicPeriod: 2,
		BlackLevels:  []float32{0},
		WhiteLevel:   65535,
		Data:         data,
		Stats:        stats.NewStats(data),
	}
}

// Creates a frame with the same dimensions and calibration as the given frame.
// A new data array is allocated
func NewFrameFromFrame(f *Frame) *Frame {
	data := make([]float32, len(f.Data))
	res := &Frame{
		ID:           f.ID,
		FileName:     f.FileName,
		Width:        f.Width,
		Height:       f.Height,
		MosaicPeriod: f.MosaicPeriod,
		BlackLevels:  append([]float32(nil), f.BlackLevels...),
		WhiteLevel:   f.WhiteLevel,
		ColorFactors: append([]float32(nil), f.ColorFactors...),
		ExposureBias: f.ExposureBias,
		Data:         data,
	}
	return res
}

// The frame's sensor plane, shared with the frame
func (f *Frame) Plane() *Plane {
	return &Plane{Width: f.Width, Height: f.Height, Data: f.Data}
}

// Mean black level across all mosaic positions
func (f *Frame) BlackLevelMean() float32 {
	if len(f.BlackLevels) == 0 {
		return 0
	}
	sum := float32(0)
	for _, b := range f.BlackLevels {
		sum += b
	}
	return sum / float32(len(f.BlackLevels))
}

func (f *Frame) DimensionsToString() string {
	return fmt.Sprintf("%dx%d", f.Width, f.Height)
}

// Rejects invalid frame geometry before any kernel dispatch
func (f *Frame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("%d: invalid frame dimensions %s", f.ID, f.DimensionsToString())
	}
	if f.MosaicPeriod != 2 && f.MosaicPeriod != 6 {
		return fmt.Errorf("%d: unsupported mosaic period %d", f.ID, f.MosaicPeriod)
	}
	if int32(len(f.Data)) != f.Width*f.Height {
		return fmt.Errorf("%d: data length %d does not match dimensions %s", f.ID, len(f.Data), f.DimensionsToString())
	}
	if n := len(f.BlackLevels); n != 1 && int32(n) != f.MosaicPeriod*f.MosaicPeriod {
		return fmt.Errorf("%d: expected 1 or %d black levels, have %d", f.ID, f.MosaicPeriod*f.MosaicPeriod, n)
	}
	if n := len(f.ColorFactors); n != 0 && int32(n) != f.MosaicPeriod*f.MosaicPeriod {
		return fmt.Errorf("%d: expected 0 or %d color factors, have %d", f.ID, f.MosaicPeriod*f.MosaicPeriod, n)
	}
	return nil
}

// Rejects bursts whose frames disagree on geometry or calibration layout
func ValidateBurst(fs []*Frame) error {
	if len(fs) < 2 {
		return errors.New("burst needs a reference and at least one comparison frame")
	}
	ref := fs[0]
	for _, f := range fs {
		if err := f.Validate(); err != nil {
			return err
		}
		if f.Width != ref.Width || f.Height != ref.Height {
			return fmt.Errorf("%d: frame dimensions %s differ from reference %s", f.ID, f.DimensionsToString(), ref.DimensionsToString())
		}
		if f.MosaicPeriod != ref.MosaicPeriod {
			return fmt.Errorf("%d: mosaic period %d differs from reference %d", f.ID, f.MosaicPeriod, ref.MosaicPeriod)
		}
	}
	return nil
}
