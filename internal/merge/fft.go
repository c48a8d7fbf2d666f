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

	"gonum.org/v1/gonum/dsp/fourier"
)

// tileFFT transforms square pixel tiles to the frequency domain and
// back, using a shared 1D FFT plan for rows and columns. Not safe for
// concurrent use; each dispatch group allocates its own instance
type tileFFT struct {
	n      int
	fft    *fourier.CmplxFFT
	buf    []complex128
	rowDst []complex128
	colBuf []complex128
	colDst []complex128
}

func newTileFFT(n int32) *tileFFT {
	return &tileFFT{
		n:      int(n),
		fft:    fourier.NewCmplxFFT(int(n)),
		buf:    make([]complex128, int(n)*int(n)),
		rowDst: make([]complex128, int(n)),
		colBuf: make([]complex128, int(n)),
		colDst: make([]complex128, int(n)),
	}
}

// forward computes the 2D DFT of an n*n pixel tile
func (t *tileFFT) forward(pix []float32, coeff []complex128) {
	n := t.n
	for i, p := range pix[:n*n] {
		t.buf[i] = complex(float64(p), 0)
	}
	for r := 0; r < n; r++ {
		row := t.buf[r*n : (r+1)*n]
		t.fft.Coefficients(t.rowDst, row)
		copy(coeff[r*n:(r+1)*n], t.rowDst)
	}
	for c := 0; c < n; c++ {
		for r := 0; r < n; r++ {
			t.colBuf[r] = coeff[r*n+c]
		}
		t.fft.Coefficients(t.colDst, t.colBuf)
		for r := 0; r < n; r++ {
			coeff[r*n+c] = t.colDst[r]
		}
	}
}

// backward computes the inverse 2D DFT, normalized so that
// backward(forward(tile)) reproduces the tile
func (t *tileFFT) backward(coeff []complex128, pix []float32) {
	n := t.n
	copy(t.buf, coeff[:n*n])
	for c := 0; c < n; c++ {
		for r := 0; r < n; r++ {
			t.colBuf[r] = t.buf[r*n+c]
		}
		t.fft.Sequence(t.colDst, t.colBuf)
		for r := 0; r < n; r++ {
			t.buf[r*n+c] = t.colDst[r]
		}
	}
	norm := 1.0 / float64(n*n)
	for r := 0; r < n; r++ {
		t.fft.Sequence(t.rowDst, t.buf[r*n:(r+1)*n])
		for c := 0; c < n; c++ {
			pix[r*n+c] = float32(real(t.rowDst[c]) * norm)
		}
	}
}

// cosineWindow returns a raised-cosine window of length n, peaking in
// the tile center. Blending merged tiles against the reference with it
// hides the seams of the non-overlapping transform grid
func cosineWindow(n int32) []float32 {
	w := make([]float32, n)
	for i := int32(0); i < n; i++ {
		w[i] = float32(0.5 - 0.5*math.Cos(2*math.Pi*(float64(i)+0.5)/float64(n)))
	}
	return w
}

// signedFreq maps a DFT bin index to its signed frequency
func signedFreq(f, n int32) int32 {
	if f <= n/2 {
		return f
	}
	return f - n
}

// deconvGains returns the per-frequency sharpening gain table for the
// given tile size, indexed by the radial bin max(|fx|,|fy|). Boosting
// only the upper bins restores detail the merge averaging softened
func deconvGains(n int32) []float32 {
	switch n {
	case 8:
		return []float32{1, 1, 1.06, 1.13, 1.18}
	case 16:
		return []float32{1, 1, 1, 1.03, 1.06, 1.09, 1.12, 1.15, 1.18}
	default:
		g := make([]float32, n/2+1)
		for i := range g {
			g[i] = 1
		}
		return g
	}
}
