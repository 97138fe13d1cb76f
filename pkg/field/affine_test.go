package field

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// TestAffineIdentity verifies the identity matrix yields the zero field
func TestAffineIdentity(t *testing.T) {
	aff := mat.NewDense(2, 3, []float64{
		1, 0, 0,
		0, 1, 0,
	})
	f, err := AffineField(aff, 32, 0, 0)
	if err != nil {
		t.Fatalf("AffineField failed: %v", err)
	}
	if !f.IsIdentity(Tolerance{}) {
		t.Errorf("Expected identity affine to produce the zero field")
	}

	// The offset cancels against its inverse, so any offset still yields
	// the identity
	f2, err := AffineField(aff, 32, 0.5, -0.25)
	if err != nil {
		t.Fatalf("AffineField with offset failed: %v", err)
	}
	if !f2.IsIdentity(Tolerance{Eps: 1e-12}) {
		t.Errorf("Expected offset identity affine to produce the zero field")
	}
}

// TestAffineTranslation verifies a pure translation yields a constant field
// rescaled from the corner-aligned grid into the edge-aligned convention
func TestAffineTranslation(t *testing.T) {
	size := 16
	tx, ty := 0.5, -0.25
	aff := mat.NewDense(2, 3, []float64{
		1, 0, tx,
		0, 1, ty,
	})
	f, err := AffineField(aff, size, 0, 0)
	if err != nil {
		t.Fatalf("AffineField failed: %v", err)
	}

	rescale := float64(size-1) / float64(size)
	wantX := tx * rescale
	wantY := ty * rescale
	plane := size * size
	data := f.Tensor().Data()
	for i := 0; i < plane; i++ {
		if math.Abs(data[i]-wantX) > 1e-12 {
			t.Fatalf("Expected constant x displacement %f, got %f", wantX, data[i])
		}
		if math.Abs(data[plane+i]-wantY) > 1e-12 {
			t.Fatalf("Expected constant y displacement %f, got %f", wantY, data[plane+i])
		}
	}
}

// TestAffineScale verifies a uniform scale pins the tile center and grows
// outward symmetrically
func TestAffineScale(t *testing.T) {
	size := 8
	aff := mat.NewDense(2, 3, []float64{
		2, 0, 0,
		0, 2, 0,
	})
	f, err := AffineField(aff, size, 0, 0)
	if err != nil {
		t.Fatalf("AffineField failed: %v", err)
	}

	// Scaling doubles each unit coordinate, so the displacement at pixel i
	// is its own unit coordinate, rescaled
	rescale := float64(size-1) / float64(size)
	for x := 0; x < size; x++ {
		u := -1 + 2*float64(x)/float64(size-1)
		want := u * rescale
		if got := f.Tensor().At(0, 0, 0, x); math.Abs(got-want) > 1e-12 {
			t.Errorf("Expected x displacement %f at x=%d, got %f", want, x, got)
		}
	}

	// Antisymmetric about the center
	left := f.Tensor().At(0, 0, 0, 0)
	right := f.Tensor().At(0, 0, 0, size-1)
	if math.Abs(left+right) > 1e-12 {
		t.Errorf("Expected symmetric displacements, got %f and %f", left, right)
	}
}

// TestAffineValidation verifies shape and size checks
func TestAffineValidation(t *testing.T) {
	square := mat.NewDense(3, 3, nil)
	if _, err := AffineField(square, 8, 0, 0); err == nil {
		t.Errorf("Expected error for a 3x3 matrix")
	}
	aff := mat.NewDense(2, 3, nil)
	if _, err := AffineField(aff, 0, 0, 0); err == nil {
		t.Errorf("Expected error for non-positive size")
	}
}
