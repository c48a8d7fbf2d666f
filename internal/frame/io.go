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
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/burstlight/burstlight/internal/stats"
)

// Calibration is the JSON sidecar accompanying a raw plane file. All
// fields are optional; absent fields keep the frame defaults
type Calibration struct {
	MosaicPeriod int32     `json:"mosaicPeriod"`
	BlackLevels  []float32 `json:"blackLevels"`
	WhiteLevel   float32   `json:"whiteLevel"`
	ColorFactors []float32 `json:"colorFactors"`
	ExposureBias int32     `json:"exposureBias"`
}

// LoadFromFile reads a raw sensor plane from a 16-bit PGM file, merging
// in the calibration sidecar <name>.json if one exists next to it
func LoadFromFile(fileName string, id int) (*Frame, error) {
	file, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	f, err := ReadPGM16(bufio.NewReader(file))
	if err != nil {
		return nil, fmt.Errorf("%d: %s: %w", id, fileName, err)
	}
	f.ID = id
	f.FileName = fileName

	sidecar := strings.TrimSuffix(fileName, filepath.Ext(fileName)) + ".json"
	if buf, err := os.ReadFile(sidecar); err == nil {
		var cal Calibration
		if err := json.Unmarshal(buf, &cal); err != nil {
			return nil, fmt.Errorf("%d: %s: %w", id, sidecar, err)
		}
		f.applyCalibration(&cal)
	}

	if err := f.Validate(); err != nil {
		return nil, err
	}
	f.Stats = stats.NewStats(f.Data)
	return f, nil
}

func (f *Frame) applyCalibration(cal *Calibration) {
	if cal.MosaicPeriod != 0 {
		f.MosaicPeriod = cal.MosaicPeriod
	}
	if len(cal.BlackLevels) > 0 {
		f.BlackLevels = cal.BlackLevels
	}
	if cal.WhiteLevel != 0 {
		f.WhiteLevel = cal.WhiteLevel
	}
	if len(cal.ColorFactors) > 0 {
		f.ColorFactors = cal.ColorFactors
	}
	f.ExposureBias = cal.ExposureBias
}

// ReadPGM16 parses a binary PGM (P5) stream with a 16-bit sample range
// into a frame with default calibration
func ReadPGM16(r io.Reader) (*Frame, error) {
	br := bufio.NewReader(r)
	var magic string
	var width, height, maxVal int
	for _, field := range []interface{}{&magic, &width, &height, &maxVal} {
		tok, err := nextPGMToken(br)
		if err != nil {
			return nil, err
		}
		if _, err := fmt.Sscan(tok, field); err != nil {
			return nil, fmt.Errorf("malformed PGM header field %q", tok)
		}
	}
	if magic != "P5" {
		return nil, fmt.Errorf("unsupported PGM magic %q", magic)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid PGM dimensions %dx%d", width, height)
	}
	if maxVal < 256 || maxVal > 65535 {
		return nil, fmt.Errorf("expected 16-bit PGM, have maxval %d", maxVal)
	}

	raw := make([]byte, width*height*2)
	if _, err := io.ReadFull(br, raw); err != nil {
		return nil, fmt.Errorf("truncated PGM data: %w", err)
	}
	data := make([]float32, width*height)
	for i := range data {
		data[i] = float32(binary.BigEndian.Uint16(raw[i*2:]))
	}

	f := NewFrame(int32(width), int32(height), data)
	f.WhiteLevel = float32(maxVal)
	return f, nil
}

// nextPGMToken returns the next whitespace-delimited header token,
// skipping '#' comment lines
func nextPGMToken(br *bufio.Reader) (string, error) {
	var sb strings.Builder
	for {
		b, err := br.ReadByte()
		if err != nil {
			return "", err
		}
		switch {
		case b == '#':
			if _, err := br.ReadString('\n'); err != nil {
				return "", err
			}
		case b == ' ' || b == '\t' || b == '\n' || b == '\r':
			if sb.Len() > 0 {
				return sb.String(), nil
			}
		default:
			sb.WriteByte(b)
		}
	}
}

// WritePGM16 writes the frame's plane as a binary 16-bit PGM, clamping
// samples to the sensor range
func (f *Frame) WritePGM16(w io.Writer) error {
	maxVal := int(f.WhiteLevel)
	if maxVal < 256 {
		maxVal = 256
	} else if maxVal > 65535 {
		maxVal = 65535
	}
	if _, err := fmt.Fprintf(w, "P5\n%d %d\n%d\n", f.Width, f.Height, maxVal); err != nil {
		return err
	}
	buf := make([]byte, len(f.Data)*2)
	for i, v := range f.Data {
		if v < 0 {
			v = 0
		} else if v > float32(maxVal) {
			v = float32(maxVal)
		}
		binary.BigEndian.PutUint16(buf[i*2:], uint16(v))
	}
	_, err := w.Write(buf)
	return err
}

// WritePGM16ToFile writes the frame's plane to a 16-bit PGM file
func (f *Frame) WritePGM16ToFile(fileName string) error {
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	defer writer.Flush()

	return f.WritePGM16(writer)
}
