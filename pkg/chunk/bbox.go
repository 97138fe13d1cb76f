// Package chunk partitions large 2D bounding regions into overlapping
// processing tiles and tracks the cropping each tile needs so that, after
// cropping, the tile outputs stitch back into the full region without
// seams, gaps, or double-counted pixels.
package chunk

import (
	"errors"
	"fmt"
)

// ErrEmptyBox indicates a bounding box with non-positive extent.
var ErrEmptyBox = errors.New("chunk: bounding box has non-positive extent")

// BoundingBox is a half-open rectangular region [XStart, XStop) x
// [YStart, YStop) expressed in pixel coordinates at a specific mip level.
// Mip N coordinates are mip 0 coordinates divided by 2^N.
type BoundingBox struct {
	XStart, XStop int
	YStart, YStop int
	Mip           int
}

// NewBoundingBox validates and returns a bounding box.
func NewBoundingBox(xStart, xStop, yStart, yStop, mip int) (BoundingBox, error) {
	b := BoundingBox{XStart: xStart, XStop: xStop, YStart: yStart, YStop: yStop, Mip: mip}
	if b.Width() <= 0 || b.Height() <= 0 {
		return BoundingBox{}, fmt.Errorf("%w: %s", ErrEmptyBox, b)
	}
	if mip < 0 {
		return BoundingBox{}, fmt.Errorf("chunk: negative mip %d", mip)
	}
	return b, nil
}

// Width returns the horizontal extent in pixels at the box's mip.
func (b BoundingBox) Width() int { return b.XStop - b.XStart }

// Height returns the vertical extent in pixels at the box's mip.
func (b BoundingBox) Height() int { return b.YStop - b.YStart }

// String formats the box as origin/stop coordinates with its mip.
func (b BoundingBox) String() string {
	return fmt.Sprintf("[%d,%d)x[%d,%d)@mip%d", b.XStart, b.XStop, b.YStart, b.YStop, b.Mip)
}

// AtMip rescales the box to another mip level. Moving to a coarser mip
// floors the start and ceils the stop, so the rescaled box always covers
// the original region.
func (b BoundingBox) AtMip(mip int) BoundingBox {
	if mip == b.Mip {
		return b
	}
	if mip > b.Mip {
		shift := uint(mip - b.Mip)
		return BoundingBox{
			XStart: b.XStart >> shift,
			XStop:  ceilShift(b.XStop, shift),
			YStart: b.YStart >> shift,
			YStop:  ceilShift(b.YStop, shift),
			Mip:    mip,
		}
	}
	shift := uint(b.Mip - mip)
	return BoundingBox{
		XStart: b.XStart << shift,
		XStop:  b.XStop << shift,
		YStart: b.YStart << shift,
		YStop:  b.YStop << shift,
		Mip:    mip,
	}
}

func ceilShift(v int, shift uint) int {
	mask := (1 << shift) - 1
	return (v + mask) >> shift
}

// Expand grows the box outward by the given margins per side.
func (b BoundingBox) Expand(head, end, left, right int) BoundingBox {
	return BoundingBox{
		XStart: b.XStart - left,
		XStop:  b.XStop + right,
		YStart: b.YStart - head,
		YStop:  b.YStop + end,
		Mip:    b.Mip,
	}
}

// Shrink trims the box inward by the given margins per side. Head and end
// trim the top and bottom rows; left and right trim the columns.
func (b BoundingBox) Shrink(head, end, left, right int) (BoundingBox, error) {
	out := BoundingBox{
		XStart: b.XStart + left,
		XStop:  b.XStop - right,
		YStart: b.YStart + head,
		YStop:  b.YStop - end,
		Mip:    b.Mip,
	}
	if out.Width() <= 0 || out.Height() <= 0 {
		return BoundingBox{}, fmt.Errorf("%w: shrinking %s by (%d,%d,%d,%d)",
			ErrEmptyBox, b, head, end, left, right)
	}
	return out, nil
}

// Contains reports whether o lies entirely within b. Both boxes must be
// at the same mip.
func (b BoundingBox) Contains(o BoundingBox) bool {
	return b.Mip == o.Mip &&
		o.XStart >= b.XStart && o.XStop <= b.XStop &&
		o.YStart >= b.YStart && o.YStop <= b.YStop
}

// Intersects reports whether b and o share any pixels at the same mip.
func (b BoundingBox) Intersects(o BoundingBox) bool {
	return b.Mip == o.Mip &&
		b.XStart < o.XStop && o.XStart < b.XStop &&
		b.YStart < o.YStop && o.YStart < b.YStop
}
