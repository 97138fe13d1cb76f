package align

import (
	"context"
	"math"
	"math/rand"
	"os"
	"testing"

	"github.com/rs/zerolog"

	"emalign/pkg/chunk"
	"emalign/pkg/field"
	"emalign/pkg/stack"
	"emalign/pkg/voting"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

func testConfig() Config {
	return Config{
		TargetRadius: 3,
		Voting:       voting.DefaultOptions(),
		Chunk:        chunk.Spec{Rows: 1, Pad: 4},
	}
}

// TestNewValidation verifies the aligner configuration checks
func TestNewValidation(t *testing.T) {
	log := testLogger()
	model := TranslationModel{MaxShift: 4}

	if _, err := New(nil, testConfig(), log); err == nil {
		t.Errorf("Expected error for a nil model")
	}

	even := testConfig()
	even.TargetRadius = 2
	if _, err := New(model, even, log); err == nil {
		t.Errorf("Expected error for an even target radius")
	}

	zero := testConfig()
	zero.TargetRadius = 0
	if _, err := New(model, zero, log); err == nil {
		t.Errorf("Expected error for a zero target radius")
	}

	negMip := testConfig()
	negMip.Mip = -1
	if _, err := New(model, negMip, log); err == nil {
		t.Errorf("Expected error for a negative mip")
	}

	if _, err := New(model, testConfig(), log); err != nil {
		t.Errorf("Expected the default test config to validate, got %v", err)
	}
}

// driftedStack writes sections into a source store, each drifted one more
// pixel rightward than the previous, simulating cumulative stage drift.
func driftedStack(t *testing.T, bounds chunk.BoundingBox, sections int) (*stack.MemStore, *field.Tensor) {
	t.Helper()
	rng := rand.New(rand.NewSource(11))
	size := bounds.Width()
	base := field.NewTensor(1, 1, size, size)
	data := base.Data()
	for i := range data {
		data[i] = rng.Float64()
	}

	src := stack.NewMemStore(bounds, 1)
	ctx := context.Background()
	for z := 0; z < sections; z++ {
		raw := field.NewTensor(1, 1, size, size)
		for y := 0; y < size; y++ {
			for x := z; x < size; x++ {
				raw.Set(0, 0, y, x, base.At(0, 0, y, x-z))
			}
		}
		if err := src.WriteChunk(ctx, z, bounds, raw); err != nil {
			t.Fatalf("Failed to seed section %d: %v", z, err)
		}
	}
	return src, base
}

// TestAlignStackRecoversDrift verifies the end-to-end pass: anchor copied
// through, ramp-up pair alignment, then vector-voted alignment, with every
// aligned section matching the anchor away from the drift margin
func TestAlignStackRecoversDrift(t *testing.T) {
	bounds := chunk.BoundingBox{XStop: 32, YStop: 32}
	sections := 6
	src, base := driftedStack(t, bounds, sections)

	aligner, err := New(TranslationModel{MaxShift: 7}, testConfig(), testLogger())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	dst := stack.NewMemStore(bounds, 1)
	fields := stack.NewMemStore(bounds, 2)
	ctx := context.Background()
	if err := aligner.AlignStack(ctx, src, dst, fields, bounds, 0, sections); err != nil {
		t.Fatalf("AlignStack failed: %v", err)
	}

	// The anchor passes through unchanged
	anchor, err := dst.ReadChunk(ctx, 0, bounds)
	if err != nil {
		t.Fatalf("ReadChunk failed: %v", err)
	}
	if !anchor.EqualApprox(base, 0) {
		t.Errorf("Expected the anchor section copied through unchanged")
	}

	// Every later section aligns back onto the anchor. The rightmost
	// drift-width columns read zero-filled source pixels, so the
	// comparison stays left of them.
	for z := 1; z < sections; z++ {
		aligned, err := dst.ReadChunk(ctx, z, bounds)
		if err != nil {
			t.Fatalf("ReadChunk failed: %v", err)
		}
		for y := 0; y < 32; y++ {
			for x := 0; x < 32-sections; x++ {
				if d := math.Abs(aligned.At(0, 0, y, x) - base.At(0, 0, y, x)); d > 1e-9 {
					t.Fatalf("Section %d: expected pixel (%d,%d) aligned to the anchor, off by %g", z, y, x, d)
				}
			}
		}

		// The consensus field is persisted and encodes the drift
		f, err := fields.ReadChunk(ctx, z, bounds)
		if err != nil {
			t.Fatalf("ReadChunk failed: %v", err)
		}
		ff, err := field.FromTensor(f)
		if err != nil {
			t.Fatalf("FromTensor failed: %v", err)
		}
		// The tile window is the padded 40-pixel square, so one source
		// pixel is 2/40 in its normalized units
		wantX := float64(z) * 2 / 40
		mv := ff.MeanVector()[0]
		if math.Abs(mv.X-wantX) > 1e-9 || math.Abs(mv.Y) > 1e-9 {
			t.Errorf("Section %d: expected mean field (%f, 0), got (%f, %f)", z, wantX, mv.X, mv.Y)
		}
	}

	// No field is written for the anchor
	if _, ok := fields.Section(0, 0); ok {
		t.Errorf("Expected no displacement field for the anchor section")
	}
}

// TestAlignStackEmptyRange verifies an empty z range is rejected
func TestAlignStackEmptyRange(t *testing.T) {
	bounds := chunk.BoundingBox{XStop: 16, YStop: 16}
	aligner, err := New(TranslationModel{MaxShift: 2}, testConfig(), testLogger())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	src := stack.NewMemStore(bounds, 1)
	dst := stack.NewMemStore(bounds, 1)
	fields := stack.NewMemStore(bounds, 2)
	if err := aligner.AlignStack(context.Background(), src, dst, fields, bounds, 3, 3); err == nil {
		t.Errorf("Expected error for an empty z range")
	}
}

// TestRenderMips verifies each level halves the canvas and preserves
// constant content
func TestRenderMips(t *testing.T) {
	bounds := chunk.BoundingBox{XStop: 32, YStop: 32}
	store := stack.NewMemStore(bounds, 1)
	ctx := context.Background()

	img := field.NewTensor(1, 1, 32, 32)
	img.Fill(0.6)
	if err := store.WriteChunk(ctx, 0, bounds, img); err != nil {
		t.Fatalf("WriteChunk failed: %v", err)
	}

	aligner, err := New(TranslationModel{MaxShift: 2}, testConfig(), testLogger())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := aligner.RenderMips(ctx, store, store, bounds, 0, 1, 2); err != nil {
		t.Fatalf("RenderMips failed: %v", err)
	}

	for mip, want := range map[int]int{1: 16, 2: 8} {
		canvas, ok := store.Section(0, mip)
		if !ok {
			t.Fatalf("Expected a canvas at mip %d", mip)
		}
		if canvas.H() != want || canvas.W() != want {
			t.Errorf("Expected %dx%d canvas at mip %d, got %dx%d", want, want, mip, canvas.H(), canvas.W())
		}
		for _, v := range canvas.Data() {
			if math.Abs(v-0.6) > 1e-12 {
				t.Fatalf("Expected constant content preserved at mip %d, got %f", mip, v)
			}
		}
	}

	if err := aligner.RenderMips(ctx, store, store, bounds, 0, 1, 0); err == nil {
		t.Errorf("Expected error for zero mip levels")
	}
}

// TestSquareWindow verifies strip regions extend to squares
func TestSquareWindow(t *testing.T) {
	wide := chunk.BoundingBox{XStart: 0, XStop: 100, YStart: 10, YStop: 30}
	sq := squareWindow(wide)
	if sq.Width() != 100 || sq.Height() != 100 {
		t.Errorf("Expected a 100-pixel square, got %dx%d", sq.Width(), sq.Height())
	}
	if sq.XStart != wide.XStart || sq.YStart != wide.YStart {
		t.Errorf("Expected the window anchored at the region origin")
	}

	tall := chunk.BoundingBox{XStart: 0, XStop: 20, YStart: 0, YStop: 50}
	sq = squareWindow(tall)
	if sq.Width() != 50 || sq.Height() != 50 {
		t.Errorf("Expected a 50-pixel square, got %dx%d", sq.Width(), sq.Height())
	}

	square := chunk.BoundingBox{XStart: 5, XStop: 15, YStart: 5, YStop: 15}
	if got := squareWindow(square); got != square {
		t.Errorf("Expected a square region unchanged, got %s", got)
	}
}

// TestCropToRegion verifies the offset arithmetic and containment check
func TestCropToRegion(t *testing.T) {
	processed := chunk.BoundingBox{XStart: 10, XStop: 20, YStart: 10, YStop: 20}
	data := field.NewTensor(1, 1, 10, 10)
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			data.Set(0, 0, y, x, float64(y*10+x))
		}
	}

	target := chunk.BoundingBox{XStart: 12, XStop: 15, YStart: 14, YStop: 18}
	out, err := cropToRegion(data, processed, target)
	if err != nil {
		t.Fatalf("cropToRegion failed: %v", err)
	}
	if out.H() != 4 || out.W() != 3 {
		t.Fatalf("Expected 4x3 crop, got %dx%d", out.H(), out.W())
	}
	if got := out.At(0, 0, 0, 0); got != 42 {
		t.Errorf("Expected crop origin value 42, got %f", got)
	}

	outside := chunk.BoundingBox{XStart: 5, XStop: 15, YStart: 14, YStop: 18}
	if _, err := cropToRegion(data, processed, outside); err == nil {
		t.Errorf("Expected error when the target leaves the processed region")
	}
}
