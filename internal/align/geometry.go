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
)

// An integer 2D displacement in plane pixels
type Vec2 struct {
	X int32 `json:"x"`
	Y int32 `json:"y"`
}

// TileGeometry describes the tile grid of one pyramid level. Alignment
// tiles overlap by 50%, so tiles are placed at half-tile stride
type TileGeometry struct {
	TileSize   int32 // Tile edge length in pixels
	SearchDist int32 // Search radius in pixels around the predicted displacement
	CountX     int32 // Number of tiles along x
	CountY     int32 // Number of tiles along y
}

// NewTileGeometry derives the tile grid for a plane of the given size
func NewTileGeometry(width, height, tileSize, searchDist int32) TileGeometry {
	stride := tileSize / 2
	countX := width/stride - 1
	if countX < 1 {
		countX = 1
	}
	countY := height/stride - 1
	if countY < 1 {
		countY = 1
	}
	return TileGeometry{TileSize: tileSize, SearchDist: searchDist, CountX: countX, CountY: countY}
}

// Candidates returns the number of displacement candidates per tile
func (g TileGeometry) Candidates() int32 {
	d := 2*g.SearchDist + 1
	return d * d
}

func (g TileGeometry) String() string {
	return fmt.Sprintf("%dx%d tiles of %d px, search %d", g.CountX, g.CountY, g.TileSize, g.SearchDist)
}

// AlignmentField holds one integer displacement vector per tile of a
// pyramid level. Fields are replaced, not mutated, as refinement moves
// from coarse to fine levels
type AlignmentField struct {
	Geo TileGeometry
	Vec []Vec2 // row major, CountY x CountX
}

// NewAlignmentField creates an all-zero displacement field
func NewAlignmentField(geo TileGeometry) *AlignmentField {
	return &AlignmentField{Geo: geo, Vec: make([]Vec2, geo.CountX*geo.CountY)}
}

// At returns the displacement of tile (tx,ty), clamped to the grid
func (f *AlignmentField) At(tx, ty int32) Vec2 {
	if tx < 0 {
		tx = 0
	} else if tx >= f.Geo.CountX {
		tx = f.Geo.CountX - 1
	}
	if ty < 0 {
		ty = 0
	} else if ty >= f.Geo.CountY {
		ty = f.Geo.CountY - 1
	}
	return f.Vec[ty*f.Geo.CountX+tx]
}

// UpsampleNearest produces a new field on the given finer tile geometry.
// Each fine tile inherits the displacement of its nearest coarse tile,
// scaled by the plane downscale factor between the two levels
func (f *AlignmentField) UpsampleNearest(geo TileGeometry, scale int32) *AlignmentField {
	res := NewAlignmentField(geo)
	for ty := int32(0); ty < geo.CountY; ty++ {
		srcY := ty * f.Geo.CountY / geo.CountY
		for tx := int32(0); tx < geo.CountX; tx++ {
			srcX := tx * f.Geo.CountX / geo.CountX
			v := f.At(srcX, srcY)
			res.Vec[ty*geo.CountX+tx] = Vec2{X: v.X * scale, Y: v.Y * scale}
		}
	}
	return res
}
