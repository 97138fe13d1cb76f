package field

import (
	"fmt"
	"math"
)

// Up upsamples the field by the given number of mip levels (a factor of
// 2 per level). Up(0) is a no-op returning the receiver unmodified.
func (f *Field) Up(mips int) (*Field, error) {
	return f.Resize(math.Pow(2, float64(mips)))
}

// Down downsamples the field by the given number of mip levels (a factor
// of 2 per level). Down(0) is a no-op returning the receiver unmodified.
func (f *Field) Down(mips int) (*Field, error) {
	return f.Resize(math.Pow(2, -float64(mips)))
}

// Resize rescales the field's spatial extent by an arbitrary factor using
// bilinear interpolation without corner alignment, which preserves the
// edge-aligned coordinate convention. The displacement values themselves
// are size-agnostic and are not rescaled. A factor of 1 returns the
// receiver unmodified.
func (f *Field) Resize(scale float64) (*Field, error) {
	if scale == 1 {
		return f, nil
	}
	t, err := ResizeTensor(f.t, scale)
	if err != nil {
		return nil, err
	}
	return FromTensor(t)
}

// ResizeTensor rescales any tensor's spatial extent by the given factor
// using bilinear interpolation without corner alignment: output pixel d
// samples input coordinate (d+0.5)/scale - 0.5, with border clamping.
// Images move between mip levels with the same resampling the fields use.
func ResizeTensor(t *Tensor, scale float64) (*Tensor, error) {
	if scale <= 0 {
		return nil, fmt.Errorf("field: non-positive resize factor %g", scale)
	}
	if scale == 1 {
		return t.Clone(), nil
	}
	outH := int(math.Floor(float64(t.h) * scale))
	outW := int(math.Floor(float64(t.w) * scale))
	if outH < 1 || outW < 1 {
		return nil, fmt.Errorf("field: resize factor %g collapses %dx%d tensor", scale, t.h, t.w)
	}
	out := NewTensor(t.n, t.c, outH, outW)
	for n := 0; n < t.n; n++ {
		for c := 0; c < t.c; c++ {
			for y := 0; y < outH; y++ {
				sy := (float64(y)+0.5)/scale - 0.5
				for x := 0; x < outW; x++ {
					sx := (float64(x)+0.5)/scale - 0.5
					out.Set(n, c, y, x, samplePointBilinear(t, n, c, sy, sx, Border))
				}
			}
		}
	}
	return out, nil
}
