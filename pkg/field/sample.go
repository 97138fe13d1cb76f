package field

import (
	"fmt"
	"math"
)

// InterpMode selects the interpolation used when sampling between pixel
// centers.
type InterpMode int

const (
	// Bilinear interpolates between the four nearest pixel centers.
	Bilinear InterpMode = iota
	// Nearest snaps to the closest pixel center.
	Nearest
)

// PaddingMode determines the value produced when a displacement vector
// samples outside the input.
type PaddingMode int

const (
	// Zeros yields zero for out-of-bounds samples. Appropriate for
	// images whose background is zero; problematic for masks and wrong
	// for nested field sampling, where it would inject large spurious
	// displacements at the boundary.
	Zeros PaddingMode = iota
	// Border yields the value of the nearest in-bounds pixel.
	// Appropriate for masks and for sampling other displacement fields.
	Border
)

// Sample warps input by treating f as a displacement field: each output
// pixel takes its value from the input location given by
// field + identity mapping, interpolated per mode. Vectors of -1 or +1
// reach the true edges of the input, not the centers of its border pixels.
//
// input has shape (N, C, S, S) and must be square and share f's batch
// size; the output has shape (N, C, H, W) matching f's spatial extent.
func (f *Field) Sample(input *Tensor, mode InterpMode, padding PaddingMode) (*Tensor, error) {
	if !input.Square() {
		return nil, fmt.Errorf("%w: %dx%d input", ErrNotSquare, input.h, input.w)
	}
	if !f.t.Square() {
		return nil, fmt.Errorf("%w: %dx%d field", ErrNotSquare, f.t.h, f.t.w)
	}
	if input.n != f.t.n {
		return nil, fmt.Errorf("%w: field batch %d, input batch %d",
			ErrShapeMismatch, f.t.n, input.n)
	}

	mapping := f.Mapping()
	out := NewTensor(input.n, input.c, f.t.h, f.t.w)
	s := input.h
	fieldPlane := f.t.h * f.t.w
	for n := 0; n < input.n; n++ {
		mapBase := n * 2 * fieldPlane
		for y := 0; y < f.t.h; y++ {
			for x := 0; x < f.t.w; x++ {
				i := y*f.t.w + x
				gx := mapping.t.data[mapBase+i]
				gy := mapping.t.data[mapBase+fieldPlane+i]
				// Convert the edge-aligned [-1, 1] coordinate to a
				// pixel-center coordinate in [0, s-1].
				px := ((gx+1)*float64(s) - 1) / 2
				py := ((gy+1)*float64(s) - 1) / 2
				for c := 0; c < input.c; c++ {
					var v float64
					if mode == Nearest {
						v = samplePointNearest(input, n, c, py, px, padding)
					} else {
						v = samplePointBilinear(input, n, c, py, px, padding)
					}
					out.Set(n, c, y, x, v)
				}
			}
		}
	}
	return out, nil
}

// SampleField warps another displacement field by f, preserving the field
// type of the result. Nested field sampling should use Border padding.
func (f *Field) SampleField(g *Field, mode InterpMode, padding PaddingMode) (*Field, error) {
	t, err := f.Sample(g.t, mode, padding)
	if err != nil {
		return nil, err
	}
	return FromTensor(t)
}

// ComposeWith approximates the composition f∘g, such that sampling with
// the result is the approximate equivalent of sampling with g and then
// with f: f.ComposeWith(g) = f + f.Sample(g, Border).
//
// The equivalence is approximate because sampling twice loses information
// in the intermediate image; sampling once with the composed field is the
// more precise path.
func (f *Field) ComposeWith(g *Field) (*Field, error) {
	sampled, err := f.SampleField(g, Bilinear, Border)
	if err != nil {
		return nil, err
	}
	return f.Add(sampled)
}

// Multicompose left-folds composition over the given fields, producing
// f0 ∘ f1 ∘ ... ∘ fn. Boundary artifacts compound with each additional
// composition: out-of-bounds samples clamp to the nearest border vector
// rather than extrapolating, and the approximation degrades as more
// fields are chained.
func Multicompose(fields ...*Field) (*Field, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("field: multicompose of no fields")
	}
	out := fields[0]
	for _, g := range fields[1:] {
		var err error
		out, err = out.ComposeWith(g)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func samplePointBilinear(t *Tensor, n, c int, py, px float64, padding PaddingMode) float64 {
	x0 := int(math.Floor(px))
	y0 := int(math.Floor(py))
	x1, y1 := x0+1, y0+1
	wx := px - float64(x0)
	wy := py - float64(y0)

	v00 := pixelAt(t, n, c, y0, x0, padding)
	v01 := pixelAt(t, n, c, y0, x1, padding)
	v10 := pixelAt(t, n, c, y1, x0, padding)
	v11 := pixelAt(t, n, c, y1, x1, padding)

	top := v00*(1-wx) + v01*wx
	bottom := v10*(1-wx) + v11*wx
	return top*(1-wy) + bottom*wy
}

func samplePointNearest(t *Tensor, n, c int, py, px float64, padding PaddingMode) float64 {
	return pixelAt(t, n, c, int(math.Round(py)), int(math.Round(px)), padding)
}

func pixelAt(t *Tensor, n, c, y, x int, padding PaddingMode) float64 {
	if y < 0 || y >= t.h || x < 0 || x >= t.w {
		if padding == Zeros {
			return 0
		}
		y = clampInt(y, 0, t.h-1)
		x = clampInt(x, 0, t.w-1)
	}
	return t.data[t.idx(n, c, y, x)]
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
