package field

import (
	"fmt"
	"math"
)

// GaussianBlur smooths each displacement component with a Gaussian kernel
// using reflect padding, so border vectors are not dragged toward zero.
// Vector voting blurs candidate fields this way before measuring their
// pairwise distances, which stabilizes the vote against pixel-level noise
// without smoothing the voted output itself.
//
// kernelSize may be even; the kernel is then centered between taps, padded
// one pixel wider on the trailing side.
func (f *Field) GaussianBlur(sigma float64, kernelSize int) (*Field, error) {
	if sigma <= 0 {
		return nil, fmt.Errorf("field: non-positive blur sigma %g", sigma)
	}
	if kernelSize < 1 || kernelSize > f.t.h || kernelSize > f.t.w {
		return nil, fmt.Errorf("field: blur kernel size %d invalid for %dx%d field",
			kernelSize, f.t.h, f.t.w)
	}
	kernel := gaussianKernel(sigma, kernelSize)
	lead := (kernelSize - 1) / 2

	// Separable passes; reflect indexing per axis matches reflecting the
	// whole plane before a full 2D convolution with the product kernel.
	out := f.Clone()
	tmp := make([]float64, f.t.h*f.t.w)
	plane := f.t.h * f.t.w
	for n := 0; n < f.t.n; n++ {
		for c := 0; c < 2; c++ {
			p := out.t.data[(n*2+c)*plane : (n*2+c+1)*plane]
			convolveRows(p, tmp, f.t.h, f.t.w, kernel, lead)
			convolveCols(tmp, p, f.t.h, f.t.w, kernel, lead)
		}
	}
	return out, nil
}

func gaussianKernel(sigma float64, size int) []float64 {
	k := make([]float64, size)
	center := float64(size-1) / 2
	sum := 0.0
	for i := range k {
		d := (float64(i) - center) / sigma
		k[i] = math.Exp(-0.5 * d * d)
		sum += k[i]
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

// reflectIndex mirrors an out-of-range index back into [0, size-1]
// without repeating the border pixel.
func reflectIndex(i, size int) int {
	for i < 0 || i >= size {
		if i < 0 {
			i = -i
		}
		if i >= size {
			i = 2*(size-1) - i
		}
	}
	return i
}

func convolveRows(src, dst []float64, h, w int, kernel []float64, lead int) {
	for y := 0; y < h; y++ {
		row := src[y*w : (y+1)*w]
		for x := 0; x < w; x++ {
			var acc float64
			for j, kv := range kernel {
				acc += kv * row[reflectIndex(x+j-lead, w)]
			}
			dst[y*w+x] = acc
		}
	}
}

func convolveCols(src, dst []float64, h, w int, kernel []float64, lead int) {
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc float64
			for j, kv := range kernel {
				acc += kv * src[reflectIndex(y+j-lead, h)*w+x]
			}
			dst[y*w+x] = acc
		}
	}
}
