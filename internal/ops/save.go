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

package ops

import (
	"fmt"
	"strings"

	"github.com/burstlight/burstlight/internal/frame"
)

// Saves given promise under a given filename, with pattern expansion for %d based on the frame id.
// Takes one input, produces one output (the materialized but unchanged input)
type OpSave struct {
	OpUnaryBase
	FilePattern string `json:"filePattern"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpSaveDefault() }) }

func NewOpSaveDefault() *OpSave { return NewOpSave("") }

func NewOpSave(filenamePattern string) *OpSave {
	op := OpSave{
		OpUnaryBase: OpUnaryBase{OpBase: OpBase{Type: "save", Active: filenamePattern != ""}},
		FilePattern: filenamePattern,
	}
	op.OpUnaryBase.Apply = op.Apply
	return &op
}

func (op *OpSave) Apply(f *frame.Frame, c *Context) (result *frame.Frame, err error) {
	if !op.Active || op.FilePattern == "" {
		return f, nil
	}
	fileName := op.FilePattern
	if strings.Contains(fileName, "%d") {
		fileName = fmt.Sprintf(op.FilePattern, f.ID)
	}
	fnLower := strings.ToLower(fileName)

	switch {
	case strings.HasSuffix(fnLower, ".pgm"):
		fmt.Fprintf(c.Log, "%d: Writing %s pixel 16-bit PGM to %s\n", f.ID, f.DimensionsToString(), fileName)
		err = f.WritePGM16ToFile(fileName)
	case strings.HasSuffix(fnLower, ".tiff") || strings.HasSuffix(fnLower, ".tif"):
		fmt.Fprintf(c.Log, "%d: Writing %s pixel 16-bit TIFF to %s\n", f.ID, f.DimensionsToString(), fileName)
		err = f.WriteTIFF16ToFile(fileName, 0, f.WhiteLevel, 1.0)
	case strings.HasSuffix(fnLower, ".jpeg") || strings.HasSuffix(fnLower, ".jpg"):
		fmt.Fprintf(c.Log, "%d: Writing %s pixel mono JPEG to %s\n", f.ID, f.DimensionsToString(), fileName)
		err = f.WriteJPGToFile(fileName, 0, f.WhiteLevel, 1.0, 95)
	default:
		err = fmt.Errorf("unknown suffix in %s", fileName)
	}
	if err != nil {
		return nil, fmt.Errorf("%d: error writing to file %s: %s", f.ID, fileName, err.Error())
	}
	return f, nil
}
