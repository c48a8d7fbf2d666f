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
	"bufio"
	"image"
	"image/png"
	"io"
	"math"
	"os"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// VisualizePNG renders the displacement field as an optical-flow style
// color wheel image, one pixel per tile: hue encodes motion direction,
// saturation encodes magnitude relative to the largest displacement.
// Zero motion renders white
func (f *AlignmentField) VisualizePNG(w io.Writer) error {
	geo := f.Geo
	img := image.NewRGBA(image.Rect(0, 0, int(geo.CountX), int(geo.CountY)))

	maxMag := float64(0)
	for _, v := range f.Vec {
		mag := math.Hypot(float64(v.X), float64(v.Y))
		if mag > maxMag {
			maxMag = mag
		}
	}

	for ty := int32(0); ty < geo.CountY; ty++ {
		for tx := int32(0); tx < geo.CountX; tx++ {
			v := f.Vec[ty*geo.CountX+tx]
			sat := float64(0)
			hue := float64(0)
			if maxMag > 0 {
				sat = math.Hypot(float64(v.X), float64(v.Y)) / maxMag
				hue = math.Atan2(float64(v.Y), float64(v.X)) * 180 / math.Pi
				if hue < 0 {
					hue += 360
				}
			}
			img.Set(int(tx), int(ty), colorful.Hsv(hue, sat, 1.0))
		}
	}

	return png.Encode(w, img)
}

// VisualizePNGToFile renders the displacement field to a PNG file
func (f *AlignmentField) VisualizePNGToFile(fileName string) error {
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	defer writer.Flush()

	return f.VisualizePNG(writer)
}
