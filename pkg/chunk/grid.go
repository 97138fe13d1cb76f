package chunk

import (
	"fmt"
)

// Spec configures how a bounding region is partitioned into tiles.
type Spec struct {
	// Rows is the desired number of tile rows. The partitioner clamps
	// it so every tile keeps at least one output row.
	Rows int

	// Overlap is the seam depth between adjacent tiles, in chunks of
	// ChunkSize pixels per shared side.
	Overlap int

	// Pad is the fixed margin added to every tile side, sized for the
	// largest displacement the alignment model may produce, so no
	// retained output pixel was computed from a neighbor's edge
	// padding artifacts.
	Pad int

	// ChunkSize is the unit, in pixels, in which Overlap is expressed.
	ChunkSize int
}

func (s Spec) validate() error {
	if s.Rows < 1 {
		return fmt.Errorf("chunk: at least one tile row required, got %d", s.Rows)
	}
	if s.Overlap < 0 {
		return fmt.Errorf("chunk: negative overlap %d", s.Overlap)
	}
	if s.Pad < 0 {
		return fmt.Errorf("chunk: negative pad %d", s.Pad)
	}
	if s.Overlap > 0 && s.ChunkSize <= 0 {
		return fmt.Errorf("chunk: overlap %d needs a positive chunk size, got %d",
			s.Overlap, s.ChunkSize)
	}
	return nil
}

// seamDepth is the number of extra rows adjacent tiles share at an
// interior seam, before padding.
func (s Spec) seamDepth() int { return s.Overlap * s.ChunkSize }

// Tile is one unit of alignment work: a padded processing region read
// from storage, the core strip of it that survives cropping, and flags
// recording which margins are shared seams with neighboring tiles.
type Tile struct {
	// Index is the tile's position in partition order, top to bottom.
	Index int

	// Region is the full area to read and process, including padding on
	// all sides and seam overlap toward interior neighbors.
	Region BoundingBox

	// Core is the post-crop output strip. The cores of all tiles in a
	// partition tile the original bounding region exactly.
	Core BoundingBox

	// HeadCrop is true unless this is the first tile: its top margin
	// overlaps the previous tile and must be trimmed after processing.
	HeadCrop bool

	// EndCrop is true unless this is the last tile: its bottom margin
	// overlaps the next tile and must be trimmed after processing.
	EndCrop bool
}

// CropAmounts returns how many rows and columns to trim from each side of
// the processed region to obtain the core: the fixed padding everywhere,
// plus the seam depth on margins shared with a neighbor.
func (t Tile) CropAmounts(spec Spec) (head, end, left, right int) {
	head, end, left, right = spec.Pad, spec.Pad, spec.Pad, spec.Pad
	if t.HeadCrop {
		head += spec.seamDepth()
	}
	if t.EndCrop {
		end += spec.seamDepth()
	}
	return head, end, left, right
}

// Cropped trims the tile's region by its crop amounts. The result always
// equals Core; it exists so output buffers sized like Region can be
// cropped without consulting the partition again.
func (t Tile) Cropped(spec Spec) (BoundingBox, error) {
	head, end, left, right := t.CropAmounts(spec)
	return t.Region.Shrink(head, end, left, right)
}

// Partition splits a bounding region into spec.Rows horizontal tiles.
// Tile cores are contiguous strips covering the region exactly; tile
// regions expand each core by the padding on all four sides plus the seam
// depth toward interior neighbors. A single-tile partition has no seams
// and carries padding only.
//
// Regions may extend beyond the bounding region (and past coordinate
// zero); readers are expected to zero-fill out-of-bounds data.
func Partition(b BoundingBox, spec Spec) ([]Tile, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}
	if b.Width() <= 0 || b.Height() <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyBox, b)
	}

	rows := spec.Rows
	if rows > b.Height() {
		rows = b.Height()
	}
	base := b.Height() / rows
	rem := b.Height() % rows

	tiles := make([]Tile, 0, rows)
	y := b.YStart
	for i := 0; i < rows; i++ {
		coreH := base
		if i < rem {
			coreH++
		}
		core := BoundingBox{
			XStart: b.XStart, XStop: b.XStop,
			YStart: y, YStop: y + coreH,
			Mip: b.Mip,
		}
		t := Tile{
			Index:    i,
			Core:     core,
			HeadCrop: i > 0,
			EndCrop:  i < rows-1,
		}
		head, end, left, right := t.CropAmounts(spec)
		t.Region = core.Expand(head, end, left, right)
		tiles = append(tiles, t)
		y += coreH
	}
	return tiles, nil
}
