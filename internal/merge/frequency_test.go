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
	"math"
	"testing"

	"github.com/burstlight/burstlight/internal/frame"
)

func smoothFrame(width, height int32) *frame.Frame {
	f := frame.NewFrame(width, height, nil)
	for y := int32(0); y < height; y++ {
		for x := int32(0); x < width; x++ {
			f.Data[y*width+x] = float32(2000 + 1500*math.Sin(0.31*float64(x))*math.Cos(0.17*float64(y)))
		}
	}
	return f
}

func TestMergeFrequencyIdenticalFrames(t *testing.T) {
	dev := testDevice(t)
	ref := smoothFrame(64, 64)
	warped := []*frame.Plane{
		frame.NewPlaneFromPlane(ref.Plane()),
		frame.NewPlaneFromPlane(ref.Plane()),
		frame.NewPlaneFromPlane(ref.Plane()),
	}

	params := DefaultFreqParams()
	params.Sharpen = false // keep the transform chain exactly invertible

	out, err := MergeFrequency(dev, ref, warped, params)
	if err != nil {
		t.Fatal(err)
	}
	if out.Width != ref.Width || out.Height != ref.Height {
		t.Fatalf("got %dx%d expect %dx%d", out.Width, out.Height, ref.Width, ref.Height)
	}
	for i, v := range out.Data {
		if math.Abs(float64(v-ref.Data[i])) > 0.5 {
			t.Fatalf("sample %d got %f expect %f for an identical burst", i, v, ref.Data[i])
		}
	}
}

func TestMergeFrequencyUniformNoArtifacts(t *testing.T) {
	dev := testDevice(t)
	ref := flatFrame(32, 32, 1000)
	warped := []*frame.Plane{flatPlane(32, 32, 2000)}

	params := DefaultFreqParams()
	params.Sharpen = false
	params.Robustness = 0 // no shrinkage

	out, err := MergeFrequency(dev, ref, warped, params)
	if err != nil {
		t.Fatal(err)
	}
	// averaging the 4 offset passes on textureless frames must produce
	// no periodic pattern at the tile boundary spacing: the output is
	// uniform, strictly between the reference and the burst mean
	min, max := out.Data[0], out.Data[0]
	for _, v := range out.Data {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if max-min > 1e-2 {
		t.Errorf("uniform burst produced tile pattern: min %f max %f", min, max)
	}
	if min <= 1000 || max >= 1500 {
		t.Errorf("output %f..%f outside (1000,1500)", min, max)
	}
}

func TestMergeFrequencyShrinkage(t *testing.T) {
	dev := testDevice(t)
	ref := smoothFrame(64, 64)

	// one comparison frame with strong disagreement in a block; with
	// robust shrinkage the output must stay closer to the reference than
	// the plain average would
	comp := frame.NewPlaneFromPlane(ref.Plane())
	for y := int32(16); y < 48; y++ {
		for x := int32(16); x < 48; x++ {
			comp.Data[y*64+x] += 20000
		}
	}

	params := DefaultFreqParams()
	params.Sharpen = false
	params.Robustness = 4
	robust, err := MergeFrequency(dev, ref, []*frame.Plane{comp}, params)
	if err != nil {
		t.Fatal(err)
	}

	params.Robustness = 0
	plain, err := MergeFrequency(dev, ref, []*frame.Plane{comp}, params)
	if err != nil {
		t.Fatal(err)
	}

	var sumRobust, sumPlain float64
	for y := int32(24); y < 40; y++ {
		for x := int32(24); x < 40; x++ {
			i := y*64 + x
			sumRobust += math.Abs(float64(robust.Data[i] - ref.Data[i]))
			sumPlain += math.Abs(float64(plain.Data[i] - ref.Data[i]))
		}
	}
	if sumRobust >= sumPlain {
		t.Errorf("robust merge deviation %f not below plain merge deviation %f", sumRobust, sumPlain)
	}
}

func TestMergeFrequencyRejectsIrregularMosaic(t *testing.T) {
	dev := testDevice(t)
	ref := flatFrame(36, 36, 100)
	ref.MosaicPeriod = 6
	if _, err := MergeFrequency(dev, ref, []*frame.Plane{flatPlane(36, 36, 100)}, DefaultFreqParams()); err == nil {
		t.Errorf("mosaic period 6 not rejected by the frequency merge")
	}
}

func TestMergeFrequencyValidatesParams(t *testing.T) {
	dev := testDevice(t)
	ref := flatFrame(32, 32, 100)
	comp := []*frame.Plane{flatPlane(32, 32, 100)}

	params := DefaultFreqParams()
	params.TileSize = 7
	if _, err := MergeFrequency(dev, ref, comp, params); err == nil {
		t.Errorf("odd tile size not rejected")
	}

	params = DefaultFreqParams()
	params.Robustness = -1
	if _, err := MergeFrequency(dev, ref, comp, params); err == nil {
		t.Errorf("negative robustness not rejected")
	}
}

func TestMosaicChannelsRoundTrip(t *testing.T) {
	dev := testDevice(t)
	src := smoothFrame(16, 16).Plane()
	ch, err := mosaicToChannels(dev, src)
	if err != nil {
		t.Fatal(err)
	}
	if ch.Width != 8 || ch.Height != 8 {
		t.Fatalf("channels got %dx%d expect 8x8", ch.Width, ch.Height)
	}
	back, err := channelsToMosaic(dev, ch)
	if err != nil {
		t.Fatal(err)
	}
	for i := range src.Data {
		if back.Data[i] != src.Data[i] {
			t.Fatalf("sample %d got %f expect %f after round trip", i, back.Data[i], src.Data[i])
		}
	}
}

func TestPadCrop(t *testing.T) {
	dev := testDevice(t)
	src := smoothFrame(8, 8).Plane()
	padded, err := pad(dev, src, 2, 3, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if padded.Width != 11 || padded.Height != 11 {
		t.Fatalf("padded got %dx%d expect 11x11", padded.Width, padded.Height)
	}
	// edge replication
	if padded.Data[0] != src.Data[0] {
		t.Errorf("top-left padding got %f expect %f", padded.Data[0], src.Data[0])
	}
	cropped, err := crop(dev, padded, 2, 3, 8, 8)
	if err != nil {
		t.Fatal(err)
	}
	for i := range src.Data {
		if cropped.Data[i] != src.Data[i] {
			t.Fatalf("sample %d got %f expect %f after pad+crop", i, cropped.Data[i], src.Data[i])
		}
	}
}
