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

	"github.com/burstlight/burstlight/internal/compute"
	"github.com/burstlight/burstlight/internal/frame"
)

func testDevice(t *testing.T) compute.Device {
	t.Helper()
	dev, err := compute.InitDefault()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(dev.Close)
	return dev
}

func flatFrame(width, height int32, value float32) *frame.Frame {
	f := frame.NewFrame(width, height, nil)
	for i := range f.Data {
		f.Data[i] = value
	}
	return f
}

func flatPlane(width, height int32, value float32) *frame.Plane {
	p := frame.NewPlane(width, height, nil)
	for i := range p.Data {
		p.Data[i] = value
	}
	return p
}

func TestMergeSpatialPlainMean(t *testing.T) {
	dev := testDevice(t)
	ref := flatFrame(32, 32, 100)
	warped := []*frame.Plane{
		flatPlane(32, 32, 200),
		flatPlane(32, 32, 200),
		flatPlane(32, 32, 200),
	}

	// robustness 0 disables motion rejection, result is the plain mean
	out, err := MergeSpatial(dev, ref, warped, 0)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range out.Data {
		if math.Abs(float64(v-175)) > 1e-3 {
			t.Fatalf("sample %d got %f expect 175", i, v)
		}
	}
}

func TestMergeSpatialIdenticalFrames(t *testing.T) {
	dev := testDevice(t)
	ref := flatFrame(32, 32, 100)
	warped := []*frame.Plane{flatPlane(32, 32, 100), flatPlane(32, 32, 100)}

	out, err := MergeSpatial(dev, ref, warped, 1)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range out.Data {
		if math.Abs(float64(v-100)) > 1e-3 {
			t.Fatalf("sample %d got %f expect 100", i, v)
		}
	}
}

func TestMergeSpatialRejectsMotion(t *testing.T) {
	dev := testDevice(t)
	ref := flatFrame(32, 32, 100)

	// a moving object covers the center of the comparison frame; the
	// noise estimate of the flat reference is ~0, so those super-pixels
	// are rejected outright and the output stays at the reference
	comp := flatPlane(32, 32, 100)
	for y := int32(8); y < 24; y++ {
		for x := int32(8); x < 24; x++ {
			comp.Data[y*32+x] = 500
		}
	}

	out, err := MergeSpatial(dev, ref, []*frame.Plane{comp}, 1)
	if err != nil {
		t.Fatal(err)
	}
	for y := int32(12); y < 20; y++ {
		for x := int32(12); x < 20; x++ {
			if v := out.Data[y*32+x]; math.Abs(float64(v-100)) > 1e-3 {
				t.Fatalf("(%d,%d) got %f expect 100 with motion rejected", x, y, v)
			}
		}
	}
}

func TestMergeSpatialNeedsComparisons(t *testing.T) {
	dev := testDevice(t)
	ref := flatFrame(16, 16, 100)
	if _, err := MergeSpatial(dev, ref, nil, 1); err == nil {
		t.Errorf("empty comparison set not rejected")
	}
}

func TestEstimateNoiseSdCheckerboard(t *testing.T) {
	dev := testDevice(t)
	// alternating super-pixel values 110 and 90: every interior cell
	// differs from its mosaic-aware blur by exactly 4*10, border cells
	// by at most twice that
	f := frame.NewFrame(32, 32, nil)
	for y := int32(0); y < 32; y++ {
		for x := int32(0); x < 32; x++ {
			if ((x/2)+(y/2))%2 == 0 {
				f.Data[y*32+x] = 110
			} else {
				f.Data[y*32+x] = 90
			}
		}
	}
	sd, err := EstimateNoiseSd(dev, f)
	if err != nil {
		t.Fatal(err)
	}
	if sd < 39 || sd > 81 {
		t.Errorf("checkerboard noise got %f expect within [39,81]", sd)
	}
}

func TestEstimateNoiseSdFlatFrame(t *testing.T) {
	dev := testDevice(t)
	f := flatFrame(32, 32, 100)
	sd, err := EstimateNoiseSd(dev, f)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(float64(sd)) > 1e-3 {
		t.Errorf("flat frame noise got %f expect ~0", sd)
	}
}
