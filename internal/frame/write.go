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
	"bufio"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"math"
	"os"

	"golang.org/x/image/tiff"
)

// Write the frame's plane to 16-bit grayscale TIFF, using the given min, max and gamma.
func (f *Frame) WriteTIFF16ToFile(fileName string, min, max, gamma float32) error {
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	defer writer.Flush()

	return f.WriteTIFF16(writer, min, max, gamma)
}

// Write the frame's plane to 16-bit grayscale TIFF, using the given min, max and gamma.
func (f *Frame) WriteTIFF16(writer io.Writer, min, max, gamma float32) error {
	// convert pixels into Golang Image
	width, height := int(f.Width), int(f.Height)
	img := image.NewGray16(image.Rectangle{image.Point{0, 0}, image.Point{width, height}})
	scale := 1 / (max - min)
	gammaInv := float64(1.0 / gamma)
	for y := 0; y < height; y++ {
		yoffset := y * width
		for x := 0; x < width; x++ {
			gray := f.Data[yoffset+x]
			gray = (gray - min) * scale
			// replace NaNs with zeros for export, else TIFF output breaks
			if math.IsNaN(float64(gray)) || gray < 0 {
				gray = 0
			}
			if gray > 1 {
				gray = 1
			}
			if gammaInv != 1.0 {
				gray = float32(math.Pow(float64(gray), gammaInv))
			}
			c := color.Gray16{uint16(gray * 65535)}
			img.SetGray16(x, y, c)
		}
	}

	return tiff.Encode(writer, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
}

// Write the frame's plane to grayscale JPG, using the given min, max and gamma.
func (f *Frame) WriteJPGToFile(fileName string, min, max, gamma float32, quality int) error {
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	defer writer.Flush()

	return f.WriteJPG(writer, min, max, gamma, quality)
}

// Write the frame's plane to grayscale JPG, using the given min, max and gamma.
func (f *Frame) WriteJPG(writer io.Writer, min, max, gamma float32, quality int) error {
	// convert pixels into Golang Image
	width, height := int(f.Width), int(f.Height)
	img := image.NewGray(image.Rectangle{image.Point{0, 0}, image.Point{width, height}})
	scale := 1.0 / (max - min)
	gammaInv := float64(1.0 / gamma)
	for y := 0; y < height; y++ {
		yoffset := y * width
		for x := 0; x < width; x++ {
			gray := f.Data[yoffset+x]
			gray = (gray - min) * scale
			// replace NaNs with zeros for export, else JPG output breaks
			if math.IsNaN(float64(gray)) || gray < 0 {
				gray = 0
			}
			if gray > 1 {
				gray = 1
			}
			if gammaInv != 1.0 {
				gray = float32(math.Pow(float64(gray), gammaInv))
			}
			c := color.Gray{uint8(gray * 255)}
			img.SetGray(x, y, c)
		}
	}

	return jpeg.Encode(writer, img, &jpeg.Options{Quality: quality})
}
