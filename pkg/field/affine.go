package field

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// AffineField constructs the displacement field equivalent to applying the
// 2x3 affine matrix aff around the given offset, on a square tile of the
// given size. The three matrices offset-translate, affine, and inverse
// offset-translate are composed into one homography, evaluated over the
// unit grid, and the identity mapping is subtracted, so the result uses
// the same displacement convention as every other field.
//
// The affine matrix warps destination to source: x_source = A·x_dest, so
// the field is defined over the destination image and each entry names the
// source location that contributes to that destination pixel.
func AffineField(aff mat.Matrix, size int, offsetX, offsetY float64) (*Field, error) {
	r, c := aff.Dims()
	if r != 2 || c != 3 {
		return nil, fmt.Errorf("field: affine matrix must be 2x3, got %dx%d", r, c)
	}
	if size <= 0 {
		return nil, fmt.Errorf("field: non-positive tile size %d", size)
	}

	a := mat.NewDense(3, 3, []float64{
		aff.At(0, 0), aff.At(0, 1), aff.At(0, 2),
		aff.At(1, 0), aff.At(1, 1), aff.At(1, 2),
		0, 0, 1,
	})
	b := mat.NewDense(3, 3, []float64{
		1, 0, offsetX,
		0, 1, offsetY,
		0, 0, 1,
	})
	bi := mat.NewDense(3, 3, []float64{
		1, 0, -offsetX,
		0, 1, -offsetY,
		0, 0, 1,
	})
	var theta mat.Dense
	theta.Mul(a, b)
	theta.Mul(bi, &theta)

	// Evaluate the homography on the corner-aligned unit grid, take the
	// difference from that grid, then rescale into the edge-aligned
	// convention shared by all fields.
	f := New(1, size)
	plane := size * size
	rescale := float64(size-1) / float64(size)
	for y := 0; y < size; y++ {
		uy := unitCoord(y, size)
		for x := 0; x < size; x++ {
			ux := unitCoord(x, size)
			gx := theta.At(0, 0)*ux + theta.At(0, 1)*uy + theta.At(0, 2)
			gy := theta.At(1, 0)*ux + theta.At(1, 1)*uy + theta.At(1, 2)
			f.t.data[y*size+x] = (gx - ux) * rescale
			f.t.data[plane+y*size+x] = (gy - uy) * rescale
		}
	}
	return f, nil
}

// unitCoord returns the corner-aligned coordinate of pixel center i: -1
// and +1 at the centers of the border pixels. A single-pixel axis sits at
// the origin.
func unitCoord(i, size int) float64 {
	if size == 1 {
		return 0
	}
	return -1 + 2*float64(i)/float64(size-1)
}
