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
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/burstlight/burstlight/internal/frame"
)

// Load a single raw frame from a single filename. Takes zero inputs, produces one output
type OpLoad struct {
	OpBase
	ID       int    `json:"id"`
	FileName string `json:"fileName"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpLoadDefault() }) }

func NewOpLoadDefault() *OpLoad { return NewOpLoad(0, "") }

func NewOpLoad(id int, fileName string) *OpLoad {
	return &OpLoad{
		OpBase:   OpBase{Type: "load", Active: true},
		ID:       id,
		FileName: fileName,
	}
}

// Load frame from a file. Ignores any inputs provided
func (op *OpLoad) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins) > 0 {
		return nil, fmt.Errorf("%s operator with non-zero input", op.Type)
	}
	if !isPathAllowed(op.FileName) {
		return nil, errors.New("filename outside current directory tree, aborting")
	}

	out := func() (f *frame.Frame, err error) {
		return op.Apply(nil, c)
	}
	return []Promise{out}, nil
}

// Returns true if a path is considered safe, i.e. not an absolute path,
// and doesn't contain the ".." characters to change to a parent directory
func isPathAllowed(p string) bool {
	if filepath.IsAbs(p) {
		return false
	}
	if strings.Contains(p, "..") {
		return false
	}
	return true
}

func (op *OpLoad) Apply(f *frame.Frame, c *Context) (result *frame.Frame, err error) {
	f, err = frame.LoadFromFile(op.FileName, op.ID)
	if err != nil {
		return nil, err
	}

	warning := ""
	if f.Stats.Max-f.Stats.Min < 1e-8 {
		warning = "; WARNING low dynamic range"
	}

	fmt.Fprintf(c.Log, "%d: Loaded %s frame with %v from %s%s\n",
		f.ID, f.DimensionsToString(), f.Stats, f.FileName, warning)
	return f, nil
}

// Load many raw frames from a slice of filename patterns with wildcards.
// Takes zero inputs, produces n outputs. The first match becomes the
// burst reference, frame 0
type OpLoadMany struct {
	OpBase
	FilePatterns []string `json:"filePatterns"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpLoadManyDefault() }) }

func NewOpLoadManyDefault() *OpLoadMany { return NewOpLoadMany(nil) }

func NewOpLoadMany(filePatterns []string) *OpLoadMany {
	return &OpLoadMany{
		OpBase:       OpBase{Type: "loadMany", Active: true},
		FilePatterns: filePatterns,
	}
}

// Turn filename wildcards into list of file load operators
func (op *OpLoadMany) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins) > 0 {
		return nil, fmt.Errorf("%s operator with non-zero input", op.Type)
	}
	for _, pattern := range op.FilePatterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, err
		}
		for _, match := range matches {
			if !isPathAllowed(match) {
				fmt.Fprintf(c.Log, "Pattern match outside current directory tree, skipping\n")
				continue
			}
			opLoad := NewOpLoad(len(outs), match)
			promises, err := opLoad.MakePromises(nil, c)
			if err != nil {
				return nil, err
			}
			if len(promises) != 1 {
				return nil, fmt.Errorf("%s operator did not return exactly one promise", opLoad.Type)
			}
			outs = append(outs, promises[0])
		}
	}
	if len(outs) == 0 {
		return nil, fmt.Errorf("%s operator with no files to load from pattern %v", op.Type, op.FilePatterns)
	}
	fmt.Fprintf(c.Log, "Found %d files.\n", len(outs))
	return outs, nil
}
