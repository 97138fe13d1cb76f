package align

import (
	"context"
	"fmt"

	"emalign/pkg/field"
)

// TranslationModel is a baseline alignment model that estimates a single
// rigid translation between two sections by exhaustive search over integer
// pixel shifts, minimizing mean squared error over the overlapping area.
// It stands in for a learned model behind the same Model interface, and is
// adequate for stacks whose misalignment is dominated by drift.
type TranslationModel struct {
	// MaxShift bounds the search radius in pixels per axis.
	MaxShift int
}

// Evaluate searches for the shift d minimizing the error between
// src(x + d) and tgt(x) and returns the constant displacement field
// encoding it.
func (m TranslationModel) Evaluate(ctx context.Context, src, tgt *field.Tensor) (*field.Field, error) {
	if !src.SameShape(tgt) {
		return nil, fmt.Errorf("align: source %dx%d and target %dx%d differ",
			src.H(), src.W(), tgt.H(), tgt.W())
	}
	if !src.Square() {
		return nil, field.ErrNotSquare
	}
	if m.MaxShift < 0 || m.MaxShift >= src.W() {
		return nil, fmt.Errorf("align: search radius %d invalid for %dx%d sections",
			m.MaxShift, src.H(), src.W())
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bestDx, bestDy := 0, 0
	bestErr := translationError(src, tgt, 0, 0)
	for dy := -m.MaxShift; dy <= m.MaxShift; dy++ {
		for dx := -m.MaxShift; dx <= m.MaxShift; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			if e := translationError(src, tgt, dx, dy); e < bestErr {
				bestErr, bestDx, bestDy = e, dx, dy
			}
		}
	}

	// A shift of one pixel is 2/size in the normalized convention.
	size := src.W()
	f := field.New(1, size)
	plane := size * size
	nx := float64(bestDx) * 2 / float64(size)
	ny := float64(bestDy) * 2 / float64(size)
	data := f.Tensor().Data()
	for i := 0; i < plane; i++ {
		data[i] = nx
		data[plane+i] = ny
	}
	return f, nil
}

// translationError is the mean squared difference between src shifted by
// (dx, dy) and tgt, over the pixels where both are defined.
func translationError(src, tgt *field.Tensor, dx, dy int) float64 {
	h, w := src.H(), src.W()
	var sum float64
	count := 0
	for y := 0; y < h; y++ {
		sy := y + dy
		if sy < 0 || sy >= h {
			continue
		}
		for x := 0; x < w; x++ {
			sx := x + dx
			if sx < 0 || sx >= w {
				continue
			}
			d := src.At(0, 0, sy, sx) - tgt.At(0, 0, y, x)
			sum += d * d
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}
