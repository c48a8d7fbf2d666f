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
	"bytes"
	"encoding/binary"
	"testing"
)

func TestValidate(t *testing.T) {
	f := NewFrame(8, 6, nil)
	if err := f.Validate(); err != nil {
		t.Errorf("default frame rejected: %s", err.Error())
	}

	bad := NewFrame(0, 6, nil)
	if err := bad.Validate(); err == nil {
		t.Errorf("zero width not rejected")
	}

	bad = NewFrame(8, 6, nil)
	bad.MosaicPeriod = 3
	if err := bad.Validate(); err == nil {
		t.Errorf("mosaic period 3 not rejected")
	}

	bad = NewFrame(8, 6, nil)
	bad.Data = bad.Data[:40]
	if err := bad.Validate(); err == nil {
		t.Errorf("short data array not rejected")
	}

	bad = NewFrame(8, 6, nil)
	bad.BlackLevels = []float32{1, 2, 3}
	if err := bad.Validate(); err == nil {
		t.Errorf("3 black levels for period 2 not rejected")
	}

	bad = NewFrame(8, 6, nil)
	bad.ColorFactors = []float32{1, 2}
	if err := bad.Validate(); err == nil {
		t.Errorf("2 color factors for period 2 not rejected")
	}

	f = NewFrame(12, 12, nil)
	f.MosaicPeriod = 6
	f.BlackLevels = make([]float32, 36)
	if err := f.Validate(); err != nil {
		t.Errorf("period 6 frame rejected: %s", err.Error())
	}
}

func TestValidateBurst(t *testing.T) {
	ref := NewFrame(8, 8, nil)
	comp := NewFrame(8, 8, nil)
	comp.ID = 1
	if err := ValidateBurst([]*Frame{ref, comp}); err != nil {
		t.Errorf("valid burst rejected: %s", err.Error())
	}

	if err := ValidateBurst([]*Frame{ref}); err == nil {
		t.Errorf("single-frame burst not rejected")
	}

	smaller := NewFrame(8, 4, nil)
	if err := ValidateBurst([]*Frame{ref, smaller}); err == nil {
		t.Errorf("dimension mismatch not rejected")
	}

	irregular := NewFrame(12, 12, nil)
	irregular.MosaicPeriod = 6
	irregular.BlackLevels = make([]float32, 36)
	bigger := NewFrame(12, 12, nil)
	if err := ValidateBurst([]*Frame{bigger, irregular}); err == nil {
		t.Errorf("mosaic period mismatch not rejected")
	}
}

func TestPGMRoundTrip(t *testing.T) {
	f := NewFrame(8, 6, nil)
	for i := range f.Data {
		f.Data[i] = float32(i * 100)
	}

	var buf bytes.Buffer
	if err := f.WritePGM16(&buf); err != nil {
		t.Fatal(err)
	}
	back, err := ReadPGM16(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if back.Width != 8 || back.Height != 6 {
		t.Fatalf("got %s expect 8x6", back.DimensionsToString())
	}
	if back.WhiteLevel != 65535 {
		t.Errorf("got white level %f expect 65535", back.WhiteLevel)
	}
	for i := range f.Data {
		if back.Data[i] != f.Data[i] {
			t.Fatalf("sample %d got %f expect %f after round trip", i, back.Data[i], f.Data[i])
		}
	}
}

func TestWritePGM16Clamps(t *testing.T) {
	f := NewFrame(2, 1, []float32{-100, 70000})

	var buf bytes.Buffer
	if err := f.WritePGM16(&buf); err != nil {
		t.Fatal(err)
	}
	back, err := ReadPGM16(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if back.Data[0] != 0 || back.Data[1] != 65535 {
		t.Errorf("got %v expect samples clamped to [0,65535]", back.Data)
	}
}

func TestReadPGM16SkipsComments(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("P5\n# created by burstlight\n4 2\n# another comment\n65535\n")
	for i := 0; i < 8; i++ {
		var pix [2]byte
		binary.BigEndian.PutUint16(pix[:], uint16(i*1000))
		buf.Write(pix[:])
	}

	f, err := ReadPGM16(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if f.Width != 4 || f.Height != 2 {
		t.Fatalf("got %s expect 4x2", f.DimensionsToString())
	}
	for i := range f.Data {
		if f.Data[i] != float32(i*1000) {
			t.Fatalf("sample %d got %f expect %d", i, f.Data[i], i*1000)
		}
	}
}

func TestReadPGM16Rejects(t *testing.T) {
	if _, err := ReadPGM16(bytes.NewBufferString("P2\n4 2\n65535\n")); err == nil {
		t.Errorf("ASCII PGM magic not rejected")
	}
	if _, err := ReadPGM16(bytes.NewBufferString("P5\n4 2\n255\n")); err == nil {
		t.Errorf("8-bit maxval not rejected")
	}
	if _, err := ReadPGM16(bytes.NewBufferString("P5\n4 2\n65535\nxx")); err == nil {
		t.Errorf("truncated pixel data not rejected")
	}
}

func TestApplyCalibration(t *testing.T) {
	f := NewFrame(8, 8, nil)
	f.applyCalibration(&Calibration{
		BlackLevels:  []float32{64, 64, 64, 64},
		WhiteLevel:   16383,
		ColorFactors: []float32{1, 2, 2, 1},
		ExposureBias: -1,
	})
	if f.MosaicPeriod != 2 {
		t.Errorf("absent mosaic period overwrote the default, got %d", f.MosaicPeriod)
	}
	if f.WhiteLevel != 16383 {
		t.Errorf("got white level %f expect 16383", f.WhiteLevel)
	}
	if len(f.BlackLevels) != 4 || f.BlackLevels[0] != 64 {
		t.Errorf("black levels not applied: %v", f.BlackLevels)
	}
	if len(f.ColorFactors) != 4 || f.ColorFactors[1] != 2 {
		t.Errorf("color factors not applied: %v", f.ColorFactors)
	}
	if f.ExposureBias != -1 {
		t.Errorf("got exposure bias %d expect -1", f.ExposureBias)
	}
}

func TestBlackLevelMean(t *testing.T) {
	f := NewFrame(4, 4, nil)
	f.BlackLevels = []float32{10, 20, 30, 40}
	if m := f.BlackLevelMean(); m != 25 {
		t.Errorf("got mean black level %f expect 25", m)
	}
	f.BlackLevels = nil
	if m := f.BlackLevelMean(); m != 0 {
		t.Errorf("got mean black level %f expect 0 without levels", m)
	}
}

func TestClampedAt(t *testing.T) {
	p := NewPlane(3, 2, []float32{1, 2, 3, 4, 5, 6})
	if v := p.ClampedAt(-1, -1); v != 1 {
		t.Errorf("got %f expect top-left sample", v)
	}
	if v := p.ClampedAt(5, 5); v != 6 {
		t.Errorf("got %f expect bottom-right sample", v)
	}
	if v := p.ClampedAt(1, 1); v != 5 {
		t.Errorf("got %f expect 5", v)
	}
}
