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

package compute

// Kernel identifies one operation from the fixed dispatch catalog.
// A closed enumeration instead of string lookup gives compile-time
// exhaustiveness checking when binding kernels to a device.
type Kernel int

const (
	KernelAvgPool Kernel = iota
	KernelAvgPoolNormalized
	KernelBlur
	KernelBlurMosaic
	KernelTileDiff
	KernelTileDiff25
	KernelTileDiff25Exposure
	KernelCorrectUpsampling
	KernelFindBestTile
	KernelWarpRegular
	KernelWarpOverlap
	KernelPad
	KernelCrop
	KernelMosaicToChannels
	KernelChannelsToMosaic
	KernelEstimateRMS
	KernelEstimateMismatch
	KernelEstimateHighlights
	KernelNormalizeMismatch
	KernelForwardTransform
	KernelBackwardTransform
	KernelMergeFrequency
	KernelMergeSpatial
	KernelDeconvolute
	KernelReduceArtifacts
	numKernels // must be last
)

var kernelNames = [numKernels]string{
	KernelAvgPool:            "avg_pool",
	KernelAvgPoolNormalized:  "avg_pool_normalized",
	KernelBlur:               "blur",
	KernelBlurMosaic:         "blur_mosaic",
	KernelTileDiff:           "compute_tile_differences",
	KernelTileDiff25:         "compute_tile_differences25",
	KernelTileDiff25Exposure: "compute_tile_differences_exposure25",
	KernelCorrectUpsampling:  "correct_upsampling_error",
	KernelFindBestTile:       "find_best_tile_alignment",
	KernelWarpRegular:        "warp_texture_bayer",
	KernelWarpOverlap:        "warp_texture_xtrans",
	KernelPad:                "extend_texture",
	KernelCrop:               "crop_texture",
	KernelMosaicToChannels:   "convert_to_rgba",
	KernelChannelsToMosaic:   "convert_to_bayer",
	KernelEstimateRMS:        "calculate_rms_texture",
	KernelEstimateMismatch:   "calculate_mismatch_texture",
	KernelEstimateHighlights: "calculate_highlights_norm",
	KernelNormalizeMismatch:  "normalize_mismatch",
	KernelForwardTransform:   "forward_dft",
	KernelBackwardTransform:  "backward_dft",
	KernelMergeFrequency:     "merge_frequency_domain",
	KernelMergeSpatial:       "merge_spatial_domain",
	KernelDeconvolute:        "deconvolute_frequency_domain",
	KernelReduceArtifacts:    "reduce_artifacts_tile_border",
}

func (k Kernel) String() string {
	if k < 0 || k >= numKernels {
		return "unknown_kernel"
	}
	return kernelNames[k]
}
