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

	"github.com/burstlight/burstlight/internal/align"
	"github.com/burstlight/burstlight/internal/frame"
	"github.com/burstlight/burstlight/internal/merge"
	"github.com/burstlight/burstlight/internal/stats"
)

// Merges a burst of raw frames into one output frame: builds alignment
// pyramids, aligns and warps each comparison frame onto the reference,
// then merges with the selected strategy. Takes n inputs (frame 0 is
// the reference), produces one output
type OpMerge struct {
	OpBase
	Mode            string  `json:"mode"`            // "spatial" or "frequency"
	TileSize        int32   `json:"tileSize"`        // finest alignment tile size
	Robustness      float32 `json:"robustness"`      // motion rejection strength, 0 for plain averaging
	UniformExposure bool    `json:"uniformExposure"` // skip exposure compensation during alignment
	Sharpen         bool    `json:"sharpen"`         // frequency mode: deconvolution boost
	ReadNoise       float32 `json:"readNoise"`       // frequency mode: read noise floor
	ShotNoise       float32 `json:"shotNoise"`       // frequency mode: shot noise slope
	MaxMotionNorm   float32 `json:"maxMotionNorm"`   // frequency mode: norm widening at low mismatch
	VisualizeTo     string  `json:"visualizeTo"`     // motion field PNG file pattern with %d, optional
}

func init() { SetOperatorFactory(func() Operator { return NewOpMergeDefault() }) }

func NewOpMergeDefault() *OpMerge {
	fp := merge.DefaultFreqParams()
	return &OpMerge{
		OpBase:          OpBase{Type: "merge", Active: true},
		Mode:            "spatial",
		TileSize:        16,
		Robustness:      fp.Robustness,
		UniformExposure: true,
		Sharpen:         fp.Sharpen,
		ReadNoise:       fp.ReadNoise,
		ShotNoise:       fp.ShotNoise,
		MaxMotionNorm:   fp.MaxMotionNorm,
	}
}

// Takes all input promises and materializes them as one burst
func (op *OpMerge) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins) < 2 {
		return nil, fmt.Errorf("%s operator needs at least 2 inputs, have %d", op.Type, len(ins))
	}
	out := func() (*frame.Frame, error) {
		fs, err := MaterializeAll(ins, c.MaxThreads)
		if err != nil {
			return nil, err
		}
		return op.Apply(fs, c)
	}
	return []Promise{out}, nil
}

func (op *OpMerge) Apply(fs []*frame.Frame, c *Context) (*frame.Frame, error) {
	if op.Mode != "spatial" && op.Mode != "frequency" {
		return nil, fmt.Errorf("unknown merge mode '%s'", op.Mode)
	}
	if err := frame.ValidateBurst(fs); err != nil {
		return nil, err
	}
	ref := fs[0]

	cfg := align.DefaultConfig(op.TileSize)
	cfg.UniformExposure = op.UniformExposure
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	aligner := align.NewAligner(c.Device, cfg)
	scale := cfg.DownscaleFactors[0]

	refPyr, err := align.BuildPyramid(c.Device, ref, cfg.DownscaleFactors)
	if err != nil {
		return nil, fmt.Errorf("%d: building reference pyramid: %w", ref.ID, err)
	}

	warped := make([]*frame.Plane, 0, len(fs)-1)
	for _, comp := range fs[1:] {
		compPyr, err := align.BuildPyramid(c.Device, comp, cfg.DownscaleFactors)
		if err != nil {
			return nil, fmt.Errorf("%d: building pyramid: %w", comp.ID, err)
		}
		field, err := aligner.Align(refPyr, compPyr)
		if err != nil {
			return nil, fmt.Errorf("%d: aligning to reference: %w", comp.ID, err)
		}
		fmt.Fprintf(c.Log, "%d: Aligned to reference on %v grid\n", comp.ID, field.Geo)

		if op.VisualizeTo != "" {
			fileName := op.VisualizeTo
			if strings.Contains(fileName, "%d") {
				fileName = fmt.Sprintf(op.VisualizeTo, comp.ID)
			}
			if err := field.VisualizePNGToFile(fileName); err != nil {
				return nil, fmt.Errorf("%d: writing motion field to %s: %w", comp.ID, fileName, err)
			}
			fmt.Fprintf(c.Log, "%d: Wrote motion field PNG to %s\n", comp.ID, fileName)
		}

		w, err := align.Warp(c.Device, comp.Plane(), field, scale, ref.MosaicPeriod)
		if err != nil {
			return nil, fmt.Errorf("%d: warping: %w", comp.ID, err)
		}
		warped = append(warped, w)
	}

	var merged *frame.Plane
	switch op.Mode {
	case "spatial":
		merged, err = merge.MergeSpatial(c.Device, ref, warped, op.Robustness)
	case "frequency":
		params := merge.DefaultFreqParams()
		params.Robustness = op.Robustness
		params.Sharpen = op.Sharpen
		params.ReadNoise = op.ReadNoise
		params.ShotNoise = op.ShotNoise
		params.MaxMotionNorm = op.MaxMotionNorm
		merged, err = merge.MergeFrequency(c.Device, ref, warped, params)
	default:
		return nil, fmt.Errorf("unknown merge mode '%s'", op.Mode)
	}
	if err != nil {
		return nil, err
	}

	res := frame.NewFrameFromFrame(ref)
	res.Data = merged.Data
	res.Stats = stats.NewStats(res.Data)
	fmt.Fprintf(c.Log, "%d: Merged %d frames in %s mode with %v\n", ref.ID, len(fs), op.Mode, res.Stats)
	return res, nil
}

// Aligns each comparison frame to the reference and renders the motion
// field as a PNG, without merging. Takes n inputs, passes them through
type OpAlignVis struct {
	OpBase
	TileSize        int32  `json:"tileSize"`
	UniformExposure bool   `json:"uniformExposure"`
	FilePattern     string `json:"filePattern"` // PNG file pattern with %d for the frame id
}

func init() { SetOperatorFactory(func() Operator { return NewOpAlignVisDefault() }) }

func NewOpAlignVisDefault() *OpAlignVis { return NewOpAlignVis(16, "") }

func NewOpAlignVis(tileSize int32, filePattern string) *OpAlignVis {
	return &OpAlignVis{
		OpBase:          OpBase{Type: "alignVis", Active: filePattern != ""},
		TileSize:        tileSize,
		UniformExposure: true,
		FilePattern:     filePattern,
	}
}

func (op *OpAlignVis) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins) < 2 {
		return nil, fmt.Errorf("%s operator needs at least 2 inputs, have %d", op.Type, len(ins))
	}
	out := func() (*frame.Frame, error) {
		fs, err := MaterializeAll(ins, c.MaxThreads)
		if err != nil {
			return nil, err
		}
		if err := frame.ValidateBurst(fs); err != nil {
			return nil, err
		}
		if err := op.apply(fs, c); err != nil {
			return nil, err
		}
		return fs[0], nil
	}
	return []Promise{out}, nil
}

func (op *OpAlignVis) apply(fs []*frame.Frame, c *Context) error {
	cfg := align.DefaultConfig(op.TileSize)
	cfg.UniformExposure = op.UniformExposure
	if err := cfg.Validate(); err != nil {
		return err
	}
	aligner := align.NewAligner(c.Device, cfg)

	refPyr, err := align.BuildPyramid(c.Device, fs[0], cfg.DownscaleFactors)
	if err != nil {
		return err
	}
	for _, comp := range fs[1:] {
		compPyr, err := align.BuildPyramid(c.Device, comp, cfg.DownscaleFactors)
		if err != nil {
			return err
		}
		field, err := aligner.Align(refPyr, compPyr)
		if err != nil {
			return err
		}
		fileName := op.FilePattern
		if strings.Contains(fileName, "%d") {
			fileName = fmt.Sprintf(op.FilePattern, comp.ID)
		}
		if err := field.VisualizePNGToFile(fileName); err != nil {
			return err
		}
		fmt.Fprintf(c.Log, "%d: Wrote motion field PNG to %s\n", comp.ID, fileName)
	}
	return nil
}
