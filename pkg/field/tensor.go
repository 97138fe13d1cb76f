// Package field implements dense 2D displacement vector fields and the
// algebra used to align serial-section image stacks: composition of warps,
// image sampling, mip up/downsampling, and conversions between coordinate
// conventions.
//
// All values use the normalized convention where -1 and +1 correspond to
// the true edges of the image, not the centers of the border pixels. Under
// this convention the coordinate of pixel center i in an image of size s is
// (2i+1)/s - 1, and field values are size-agnostic: the same field warps an
// image identically at any mip level.
package field

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Errors returned by tensor and field operations.
var (
	// ErrShapeMismatch indicates two operands do not share the same shape.
	ErrShapeMismatch = errors.New("field: tensor shapes do not match")

	// ErrFieldShape indicates a tensor cannot be interpreted as a
	// displacement field because its channel axis is not exactly 2.
	ErrFieldShape = errors.New("field: invalid field shape, displacement fields need exactly 2 components")

	// ErrNotSquare indicates an operation that requires square spatial
	// dimensions received a non-square tensor.
	ErrNotSquare = errors.New("field: operation not implemented for non-square tensors")

	// ErrNotImplemented marks operations that are declared but
	// intentionally left unimplemented.
	ErrNotImplemented = errors.New("field: operation not implemented")
)

// Tensor is a dense float64 array in NCHW layout (batch, channels, rows,
// columns), stored row-major. It is the plain numeric type underlying
// Field; operations whose result has no displacement-field meaning (for
// example magnitude maps or warped images) return a Tensor rather than a
// Field.
type Tensor struct {
	data       []float64
	n, c, h, w int
}

// NewTensor allocates a zero-filled tensor of the given shape.
func NewTensor(n, c, h, w int) *Tensor {
	if n <= 0 || c <= 0 || h <= 0 || w <= 0 {
		panic(fmt.Sprintf("field: invalid tensor shape (%d,%d,%d,%d)", n, c, h, w))
	}
	return &Tensor{
		data: make([]float64, n*c*h*w),
		n:    n, c: c, h: h, w: w,
	}
}

// NewTensorFrom wraps an existing buffer as a tensor of the given shape.
// The buffer is used directly, not copied.
func NewTensorFrom(data []float64, n, c, h, w int) (*Tensor, error) {
	if n <= 0 || c <= 0 || h <= 0 || w <= 0 {
		return nil, fmt.Errorf("field: invalid tensor shape (%d,%d,%d,%d)", n, c, h, w)
	}
	if len(data) != n*c*h*w {
		return nil, fmt.Errorf("field: buffer length %d does not match shape (%d,%d,%d,%d)",
			len(data), n, c, h, w)
	}
	return &Tensor{data: data, n: n, c: c, h: h, w: w}, nil
}

// Shape returns the (batch, channel, height, width) dimensions.
func (t *Tensor) Shape() (n, c, h, w int) { return t.n, t.c, t.h, t.w }

// N returns the batch dimension.
func (t *Tensor) N() int { return t.n }

// C returns the channel dimension.
func (t *Tensor) C() int { return t.c }

// H returns the height (rows).
func (t *Tensor) H() int { return t.h }

// W returns the width (columns).
func (t *Tensor) W() int { return t.w }

// Square reports whether the spatial dimensions are equal.
func (t *Tensor) Square() bool { return t.h == t.w }

// Len returns the total number of elements.
func (t *Tensor) Len() int { return len(t.data) }

// Data returns the underlying buffer. The layout is row-major NCHW.
// Mutating the returned slice mutates the tensor.
func (t *Tensor) Data() []float64 { return t.data }

func (t *Tensor) idx(n, c, y, x int) int {
	return ((n*t.c+c)*t.h+y)*t.w + x
}

// At returns the element at batch n, channel c, row y, column x.
func (t *Tensor) At(n, c, y, x int) float64 { return t.data[t.idx(n, c, y, x)] }

// Set assigns the element at batch n, channel c, row y, column x.
func (t *Tensor) Set(n, c, y, x int, v float64) { t.data[t.idx(n, c, y, x)] = v }

// Clone returns a deep copy of the tensor.
func (t *Tensor) Clone() *Tensor {
	out := &Tensor{data: make([]float64, len(t.data)), n: t.n, c: t.c, h: t.h, w: t.w}
	copy(out.data, t.data)
	return out
}

// SameShape reports whether both tensors have identical dimensions.
func (t *Tensor) SameShape(o *Tensor) bool {
	return t.n == o.n && t.c == o.c && t.h == o.h && t.w == o.w
}

// Add returns the elementwise sum t + o.
func (t *Tensor) Add(o *Tensor) (*Tensor, error) {
	if !t.SameShape(o) {
		return nil, ErrShapeMismatch
	}
	out := t.Clone()
	floats.Add(out.data, o.data)
	return out, nil
}

// Sub returns the elementwise difference t - o.
func (t *Tensor) Sub(o *Tensor) (*Tensor, error) {
	if !t.SameShape(o) {
		return nil, ErrShapeMismatch
	}
	out := t.Clone()
	floats.Sub(out.data, o.data)
	return out, nil
}

// Mul returns the elementwise (Hadamard) product t * o.
func (t *Tensor) Mul(o *Tensor) (*Tensor, error) {
	if !t.SameShape(o) {
		return nil, ErrShapeMismatch
	}
	out := t.Clone()
	floats.Mul(out.data, o.data)
	return out, nil
}

// Scale returns t with every element multiplied by s.
func (t *Tensor) Scale(s float64) *Tensor {
	out := t.Clone()
	floats.Scale(s, out.data)
	return out
}

// Shift returns t with s added to every element.
func (t *Tensor) Shift(s float64) *Tensor {
	out := t.Clone()
	floats.AddConst(s, out.data)
	return out
}

// Fill assigns v to every element in place.
func (t *Tensor) Fill(v float64) {
	for i := range t.data {
		t.data[i] = v
	}
}

// MaxAbs returns the largest absolute element value.
func (t *Tensor) MaxAbs() float64 {
	m := 0.0
	for _, v := range t.data {
		if a := math.Abs(v); a > m {
			m = a
		}
	}
	return m
}

// EqualApprox reports whether both tensors have the same shape and every
// pair of elements differs by at most tol.
func (t *Tensor) EqualApprox(o *Tensor, tol float64) bool {
	if !t.SameShape(o) {
		return false
	}
	for i, v := range t.data {
		if math.Abs(v-o.data[i]) > tol {
			return false
		}
	}
	return true
}

// Crop extracts the sub-rectangle starting at (y0, x0) with the given
// height and width, keeping all batches and channels.
func (t *Tensor) Crop(y0, x0, h, w int) (*Tensor, error) {
	if y0 < 0 || x0 < 0 || h <= 0 || w <= 0 || y0+h > t.h || x0+w > t.w {
		return nil, fmt.Errorf("field: crop (%d,%d)+(%dx%d) out of bounds for %dx%d tensor",
			y0, x0, h, w, t.h, t.w)
	}
	out := NewTensor(t.n, t.c, h, w)
	for n := 0; n < t.n; n++ {
		for c := 0; c < t.c; c++ {
			for y := 0; y < h; y++ {
				src := t.idx(n, c, y0+y, x0)
				dst := out.idx(n, c, y, 0)
				copy(out.data[dst:dst+w], t.data[src:src+w])
			}
		}
	}
	return out, nil
}
