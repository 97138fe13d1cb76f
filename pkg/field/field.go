package field

import (
	"fmt"
	"math"
	"math/rand"
)

// Field is a dense displacement vector field of shape (N, 2, H, W).
// Channel 0 holds the x (column) displacement and channel 1 the y (row)
// displacement of every pixel, in the normalized [-1, 1] edge convention.
// An all-zero field is the identity transform.
//
// Field wraps a Tensor and guarantees the 2-component channel axis on
// every construction path. Operations whose result is again a displacement
// field return *Field; operations whose result is a plain numeric map
// (magnitudes, warped images, reductions) return *Tensor, so the type
// system tracks which values still carry displacement semantics.
type Field struct {
	t *Tensor
}

// New returns an all-zero (identity) field with batch size n and square
// spatial extent size.
func New(n, size int) *Field {
	return &Field{t: NewTensor(n, 2, size, size)}
}

// Identity returns the identity displacement field (all zero vectors).
// It is an alias for New, named for call sites where the transform
// semantics matter more than the allocation.
func Identity(n, size int) *Field { return New(n, size) }

// FromTensor reinterprets t as a displacement field without copying.
// It fails with ErrFieldShape if the channel axis is not exactly 2.
func FromTensor(t *Tensor) (*Field, error) {
	if t.c != 2 {
		return nil, fmt.Errorf("%w: got %d components", ErrFieldShape, t.c)
	}
	return &Field{t: t}, nil
}

// Like returns an all-zero field with the same batch and spatial shape as
// the template tensor. The template's channel count is ignored.
func Like(t *Tensor) (*Field, error) {
	if !t.Square() {
		return nil, ErrNotSquare
	}
	return New(t.n, t.h), nil
}

// Ones returns a field with every component set to one: a translation by
// half the image size in both coordinates. Not a useful transform on its
// own, but a convenient building block for synthetic inputs.
func Ones(n, size int) *Field {
	f := New(n, size)
	f.t.Fill(1)
	return f
}

// Uniform returns a field with every component set to v.
func Uniform(n, size int, v float64) *Field {
	f := New(n, size)
	f.t.Fill(v)
	return f
}

// Rand returns a field with every component drawn independently from the
// uniform distribution on [0, 1). The generator is passed explicitly so
// callers control reproducibility.
func Rand(rng *rand.Rand, n, size int) *Field {
	f := New(n, size)
	data := f.t.data
	for i := range data {
		data[i] = rng.Float64()
	}
	return f
}

// RandInBounds returns a field whose every displaced coordinate stays
// within the [-1, 1] bounds of the sampled image: the mapping
// (field + identity mapping), not the raw field, is uniformly random in
// [-1, 1).
func RandInBounds(rng *rand.Rand, n, size int) *Field {
	f := Rand(rng, n, size)
	data := f.t.data
	for i := range data {
		data[i] = data[i]*2 - 1
	}
	id := IdentityMapping(size)
	idData := id.t.data
	plane := 2 * size * size
	for b := 0; b < n; b++ {
		for i := 0; i < plane; i++ {
			data[b*plane+i] -= idData[i]
		}
	}
	return f
}

// Tensor returns the underlying tensor. The tensor is shared with the
// field, not copied.
func (f *Field) Tensor() *Tensor { return f.t }

// Shape returns the (batch, channel, height, width) dimensions.
func (f *Field) Shape() (n, c, h, w int) { return f.t.Shape() }

// Size returns the spatial extent. Fields participating in sampling and
// mip operations are square, so a single size describes both dimensions.
func (f *Field) Size() int { return f.t.h }

// N returns the batch dimension.
func (f *Field) N() int { return f.t.n }

// Clone returns a deep copy of the field.
func (f *Field) Clone() *Field { return &Field{t: f.t.Clone()} }

// X returns the column-displacement plane of batch element n as a
// (1, 1, H, W) tensor view copy.
func (f *Field) X(n int) *Tensor { return f.component(n, 0) }

// Y returns the row-displacement plane of batch element n as a
// (1, 1, H, W) tensor view copy.
func (f *Field) Y(n int) *Tensor { return f.component(n, 1) }

func (f *Field) component(n, c int) *Tensor {
	out := NewTensor(1, 1, f.t.h, f.t.w)
	start := f.t.idx(n, c, 0, 0)
	copy(out.data, f.t.data[start:start+f.t.h*f.t.w])
	return out
}

// Add returns the elementwise sum of two fields.
func (f *Field) Add(o *Field) (*Field, error) {
	t, err := f.t.Add(o.t)
	if err != nil {
		return nil, err
	}
	return &Field{t: t}, nil
}

// Sub returns the elementwise difference of two fields.
func (f *Field) Sub(o *Field) (*Field, error) {
	t, err := f.t.Sub(o.t)
	if err != nil {
		return nil, err
	}
	return &Field{t: t}, nil
}

// Scale returns the field with every component multiplied by s.
func (f *Field) Scale(s float64) *Field { return &Field{t: f.t.Scale(s)} }

// EqualApprox reports whether both fields match elementwise within tol.
func (f *Field) EqualApprox(o *Field, tol float64) bool {
	return f.t.EqualApprox(o.t, tol)
}

// Tolerance bounds the identity check of IsIdentity. The zero value
// demands exact equality with the zero field. Eps bounds each component's
// absolute value; MagnEps bounds each displacement vector's magnitude.
// Either bound may be set independently; both must hold when both are set.
type Tolerance struct {
	Eps     float64
	MagnEps float64
}

// IsIdentity reports whether the field is the identity transform within
// the given tolerance.
func (f *Field) IsIdentity(tol Tolerance) bool {
	if tol.Eps == 0 && tol.MagnEps == 0 {
		for _, v := range f.t.data {
			if v != 0 {
				return false
			}
		}
		return true
	}
	if tol.Eps > 0 {
		for _, v := range f.t.data {
			if v < -tol.Eps || v > tol.Eps {
				return false
			}
		}
	}
	if tol.MagnEps > 0 {
		plane := f.t.h * f.t.w
		for n := 0; n < f.t.n; n++ {
			base := n * 2 * plane
			for i := 0; i < plane; i++ {
				dx := f.t.data[base+i]
				dy := f.t.data[base+plane+i]
				if math.Hypot(dx, dy) > tol.MagnEps {
					return false
				}
			}
		}
	}
	return true
}

// Magnitude returns the per-pixel Euclidean norm of the displacement
// vectors as a (N, 1, H, W) tensor.
func (f *Field) Magnitude() *Tensor {
	out := NewTensor(f.t.n, 1, f.t.h, f.t.w)
	plane := f.t.h * f.t.w
	for n := 0; n < f.t.n; n++ {
		base := n * 2 * plane
		for i := 0; i < plane; i++ {
			out.data[n*plane+i] = math.Hypot(f.t.data[base+i], f.t.data[base+plane+i])
		}
	}
	return out
}

// Distance returns the per-pixel Euclidean distance between two fields as
// a (N, 1, H, W) tensor.
func (f *Field) Distance(o *Field) (*Tensor, error) {
	d, err := f.Sub(o)
	if err != nil {
		return nil, err
	}
	return d.Magnitude(), nil
}

// Vector is a single displacement vector.
type Vector struct {
	X, Y float64
}

// MeanVector returns the mean displacement vector of each batch element.
func (f *Field) MeanVector() []Vector {
	out := make([]Vector, f.t.n)
	plane := f.t.h * f.t.w
	for n := 0; n < f.t.n; n++ {
		base := n * 2 * plane
		var sx, sy float64
		for i := 0; i < plane; i++ {
			sx += f.t.data[base+i]
			sy += f.t.data[base+plane+i]
		}
		out[n] = Vector{X: sx / float64(plane), Y: sy / float64(plane)}
	}
	return out
}

// MeanNonzeroVector returns the mean displacement vector over pixels with
// nonzero magnitude for each batch element. A batch element with no
// nonzero pixels yields the zero vector rather than NaN.
func (f *Field) MeanNonzeroVector() []Vector {
	out := make([]Vector, f.t.n)
	plane := f.t.h * f.t.w
	for n := 0; n < f.t.n; n++ {
		base := n * 2 * plane
		var sx, sy float64
		count := 0
		for i := 0; i < plane; i++ {
			dx := f.t.data[base+i]
			dy := f.t.data[base+plane+i]
			sx += dx
			sy += dy
			if dx != 0 || dy != 0 {
				count++
			}
		}
		if count > 0 {
			out[n] = Vector{X: sx / float64(count), Y: sy / float64(count)}
		}
	}
	return out
}

// MinVector returns the componentwise minimum vector of each batch element.
func (f *Field) MinVector() []Vector {
	return f.reduceVector(math.Min, math.Inf(1))
}

// MaxVector returns the componentwise maximum vector of each batch element.
func (f *Field) MaxVector() []Vector {
	return f.reduceVector(math.Max, math.Inf(-1))
}

func (f *Field) reduceVector(reduce func(a, b float64) float64, init float64) []Vector {
	out := make([]Vector, f.t.n)
	plane := f.t.h * f.t.w
	for n := 0; n < f.t.n; n++ {
		base := n * 2 * plane
		x, y := init, init
		for i := 0; i < plane; i++ {
			x = reduce(x, f.t.data[base+i])
			y = reduce(y, f.t.data[base+plane+i])
		}
		out[n] = Vector{X: x, Y: y}
	}
	return out
}

// Pixels converts displacement components from the [-1, 1] convention to
// units of pixels of an image with the given size. A size of 0 uses the
// field's own spatial size. The result is still carried as a Field for
// convenience, but it is in pixel units: most algebra on it would be
// meaningless until converted back with FromPixels.
func (f *Field) Pixels(size int) *Field {
	if size == 0 {
		size = f.t.w
	}
	return f.Scale(float64(size) / 2)
}

// FromPixels converts displacement components from pixel units back to the
// [-1, 1] convention. It reverses Pixels.
func (f *Field) FromPixels(size int) *Field {
	if size == 0 {
		size = f.t.w
	}
	return f.Scale(2 / float64(size))
}

// Mapping converts the displacement field to an absolute mapping, where
// each location holds the [-1, 1] coordinate it samples from:
// mapping = field + identity mapping.
func (f *Field) Mapping() *Field {
	return f.addIdentity(1)
}

// FromMapping converts an absolute mapping back to a displacement field.
// It reverses Mapping.
func (f *Field) FromMapping() *Field {
	return f.addIdentity(-1)
}

func (f *Field) addIdentity(sign float64) *Field {
	id := IdentityMapping(f.t.h)
	out := f.Clone()
	plane := 2 * f.t.h * f.t.w
	for n := 0; n < f.t.n; n++ {
		for i := 0; i < plane; i++ {
			out.t.data[n*plane+i] += sign * id.t.data[i]
		}
	}
	return out
}

// PixelMapping converts the field to a mapping in pixel units in the range
// [0, size-1], where each pixel holds the pixel coordinate it samples
// from. The half-pixel shift accounts for the edge-aligned convention.
func (f *Field) PixelMapping(size int) *Field {
	if size == 0 {
		size = f.t.w
	}
	return f.Mapping().Shift(1).Pixels(size).Shift(-0.5)
}

// FromPixelMapping converts a pixel mapping in [0, size-1] back to a
// displacement field. It reverses PixelMapping.
func (f *Field) FromPixelMapping(size int) *Field {
	if size == 0 {
		size = f.t.w
	}
	return f.Shift(0.5).FromPixels(size).Shift(-1).FromMapping()
}

// Shift returns the field with s added to every component.
func (f *Field) Shift(s float64) *Field { return &Field{t: f.t.Shift(s)} }

// Inverse is the symmetric inverse approximation: a field g with
// f∘g ≈ identity ≈ g∘f. It is a declared design placeholder and always
// fails with ErrNotImplemented rather than returning a plausible-looking
// wrong answer.
func (f *Field) Inverse() (*Field, error) {
	return nil, fmt.Errorf("%w: symmetric inverse", ErrNotImplemented)
}

// LInverse is the left inverse approximation: a field g with
// g∘f ≈ identity. Declared but unimplemented, like Inverse.
func (f *Field) LInverse() (*Field, error) {
	return nil, fmt.Errorf("%w: left inverse", ErrNotImplemented)
}

// RInverse is the right inverse approximation: a field g with
// f∘g ≈ identity. Declared but unimplemented, like Inverse.
func (f *Field) RInverse() (*Field, error) {
	return nil, fmt.Errorf("%w: right inverse", ErrNotImplemented)
}
