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
	"testing"
)

func TestNewTileGeometry(t *testing.T) {
	geo := NewTileGeometry(64, 32, 16, 2)
	if geo.CountX != 7 || geo.CountY != 3 {
		t.Errorf("got %dx%d tiles expect 7x3", geo.CountX, geo.CountY)
	}
	if geo.Candidates() != 25 {
		t.Errorf("got %d candidates expect 25", geo.Candidates())
	}

	// degenerate plane still yields one tile
	geo = NewTileGeometry(8, 8, 16, 1)
	if geo.CountX != 1 || geo.CountY != 1 {
		t.Errorf("got %dx%d tiles expect 1x1", geo.CountX, geo.CountY)
	}
}

func TestAlignmentFieldAtClamps(t *testing.T) {
	geo := NewTileGeometry(64, 64, 16, 2)
	f := NewAlignmentField(geo)
	f.Vec[0] = Vec2{X: 3, Y: -1}
	f.Vec[len(f.Vec)-1] = Vec2{X: -2, Y: 5}

	if v := f.At(-5, -5); v != f.Vec[0] {
		t.Errorf("negative indices got %v expect top-left vector", v)
	}
	if v := f.At(geo.CountX+3, geo.CountY+3); v != f.Vec[len(f.Vec)-1] {
		t.Errorf("excess indices got %v expect bottom-right vector", v)
	}
}

func TestUpsampleNearest(t *testing.T) {
	coarse := NewAlignmentField(TileGeometry{TileSize: 16, SearchDist: 2, CountX: 2, CountY: 2})
	coarse.Vec[0] = Vec2{X: 1, Y: 0}
	coarse.Vec[1] = Vec2{X: 0, Y: 1}
	coarse.Vec[2] = Vec2{X: -1, Y: 0}
	coarse.Vec[3] = Vec2{X: 0, Y: -1}

	fine := coarse.UpsampleNearest(TileGeometry{TileSize: 16, SearchDist: 2, CountX: 4, CountY: 4}, 2)
	if len(fine.Vec) != 16 {
		t.Fatalf("got %d fine tiles expect 16", len(fine.Vec))
	}
	// each coarse vector covers a 2x2 block of fine tiles, scaled by 2
	if v := fine.At(0, 0); v != (Vec2{X: 2, Y: 0}) {
		t.Errorf("tile (0,0) got %v expect {2 0}", v)
	}
	if v := fine.At(3, 0); v != (Vec2{X: 0, Y: 2}) {
		t.Errorf("tile (3,0) got %v expect {0 2}", v)
	}
	if v := fine.At(0, 3); v != (Vec2{X: -2, Y: 0}) {
		t.Errorf("tile (0,3) got %v expect {-2 0}", v)
	}
	if v := fine.At(3, 3); v != (Vec2{X: 0, Y: -2}) {
		t.Errorf("tile (3,3) got %v expect {0 -2}", v)
	}
}
