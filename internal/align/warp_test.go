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
	"testing"
)

func TestWarpRegularIdentity(t *testing.T) {
	dev := testDevice(t)
	src := patternFrame(64, 64, 0, 0).Plane()
	field := NewAlignmentField(NewTileGeometry(32, 32, 16, 2))

	out, err := WarpRegular(dev, src, field, 2)
	if err != nil {
		t.Fatal(err)
	}
	for i := range src.Data {
		if out.Data[i] != src.Data[i] {
			t.Fatalf("sample %d got %f expect %f under zero field", i, out.Data[i], src.Data[i])
		}
	}
}

func TestWarpRegularUniformShift(t *testing.T) {
	dev := testDevice(t)
	src := patternFrame(64, 64, 0, 0).Plane()
	field := NewAlignmentField(NewTileGeometry(32, 32, 16, 2))
	for i := range field.Vec {
		field.Vec[i] = Vec2{X: 1, Y: 0}
	}

	out, err := WarpRegular(dev, src, field, 2)
	if err != nil {
		t.Fatal(err)
	}
	// displacement 1 at scale 2 fetches 2 px to the right
	for y := int32(0); y < 64; y++ {
		for x := int32(0); x < 62; x++ {
			if out.Data[y*64+x] != src.Data[y*64+x+2] {
				t.Fatalf("(%d,%d) got %f expect %f", x, y, out.Data[y*64+x], src.Data[y*64+x+2])
			}
		}
	}
}

func TestWarpOverlapIdentity(t *testing.T) {
	dev := testDevice(t)
	src := patternFrame(72, 72, 0, 0).Plane()
	field := NewAlignmentField(NewTileGeometry(36, 36, 12, 2))

	out, err := WarpOverlap(dev, src, field, 2)
	if err != nil {
		t.Fatal(err)
	}
	// zero field blends identical samples, result must equal the source
	for i := range src.Data {
		if math.Abs(float64(out.Data[i]-src.Data[i])) > 1e-3 {
			t.Fatalf("sample %d got %f expect %f under zero field", i, out.Data[i], src.Data[i])
		}
	}
}

func TestWarpRejectsUnknownPeriod(t *testing.T) {
	dev := testDevice(t)
	src := patternFrame(64, 64, 0, 0).Plane()
	field := NewAlignmentField(NewTileGeometry(32, 32, 16, 2))
	if _, err := Warp(dev, src, field, 2, 3); err == nil {
		t.Errorf("mosaic period 3 not rejected")
	}
}

func TestWarpSelectsVariant(t *testing.T) {
	dev := testDevice(t)
	src := patternFrame(64, 64, 0, 0).Plane()
	field := NewAlignmentField(NewTileGeometry(32, 32, 16, 2))
	for _, period := range []int32{2, 6} {
		if _, err := Warp(dev, src, field, 2, period); err != nil {
			t.Errorf("period %d: %s", period, err.Error())
		}
	}
}

func TestVisualizePNG(t *testing.T) {
	field := NewAlignmentField(NewTileGeometry(64, 64, 16, 2))
	field.Vec[0] = Vec2{X: 2, Y: -1}
	var buf testBuffer
	if err := field.VisualizePNG(&buf); err != nil {
		t.Fatal(err)
	}
	if buf.n == 0 {
		t.Errorf("no PNG bytes written")
	}
}

type testBuffer struct{ n int }

func (b *testBuffer) Write(p []byte) (int, error) {
	b.n += len(p)
	return len(p), nil
}
