package stack

import (
	"context"
	"fmt"
	"sync"

	"emalign/pkg/chunk"
	"emalign/pkg/field"
)

type sectionKey struct {
	z   int
	mip int
}

// MemStore is an in-memory chunk store holding one canvas per section and
// mip level. The aligner writes cropped tile outputs into it and reads
// previously aligned sections back as vector-voting targets; tests use it
// as both source and destination. It is safe for concurrent use by
// multiple tile workers.
type MemStore struct {
	mu       sync.RWMutex
	bounds   chunk.BoundingBox
	channels int
	sections map[sectionKey]*field.Tensor
}

// NewMemStore creates a store for canvases covering bounds (given at
// mip 0) with the given channel count: 1 for images, 2 for fields.
func NewMemStore(bounds chunk.BoundingBox, channels int) *MemStore {
	return &MemStore{
		bounds:   bounds,
		channels: channels,
		sections: make(map[sectionKey]*field.Tensor),
	}
}

// WriteChunk copies data into the canvas of section z at the region's mip
// level, clipping to the store bounds.
func (m *MemStore) WriteChunk(ctx context.Context, z int, region chunk.BoundingBox, data *field.Tensor) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if data.C() != m.channels {
		return fmt.Errorf("stack: writing %d-channel data into %d-channel store", data.C(), m.channels)
	}
	if data.H() != region.Height() || data.W() != region.Width() {
		return fmt.Errorf("stack: data %dx%d does not cover region %s", data.H(), data.W(), region)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	canvas := m.canvasLocked(z, region.Mip)
	for c := 0; c < m.channels; c++ {
		for y := 0; y < region.Height(); y++ {
			cy := region.YStart + y
			if cy < 0 || cy >= canvas.H() {
				continue
			}
			for x := 0; x < region.Width(); x++ {
				cx := region.XStart + x
				if cx < 0 || cx >= canvas.W() {
					continue
				}
				canvas.Set(0, c, cy, cx, data.At(0, c, y, x))
			}
		}
	}
	return nil
}

// ReadChunk extracts a region of section z at the region's mip level,
// zero-filling outside the canvas. Reading a section that was never
// written yields zeros.
func (m *MemStore) ReadChunk(ctx context.Context, z int, region chunk.BoundingBox) (*field.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	canvas, ok := m.sections[sectionKey{z: z, mip: region.Mip}]
	m.mu.RUnlock()
	if !ok {
		return field.NewTensor(1, m.channels, region.Height(), region.Width()), nil
	}
	return ExtractRegion(canvas, region), nil
}

// Section returns the full canvas of section z at the given mip, or false
// if nothing has been written there.
func (m *MemStore) Section(z, mip int) (*field.Tensor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	canvas, ok := m.sections[sectionKey{z: z, mip: mip}]
	return canvas, ok
}

// Bounds returns the store's mip 0 bounding box.
func (m *MemStore) Bounds() chunk.BoundingBox { return m.bounds }

func (m *MemStore) canvasLocked(z, mip int) *field.Tensor {
	key := sectionKey{z: z, mip: mip}
	if canvas, ok := m.sections[key]; ok {
		return canvas
	}
	scaled := m.bounds.AtMip(mip)
	canvas := field.NewTensor(1, m.channels, scaled.Height(), scaled.Width())
	m.sections[key] = canvas
	return canvas
}
