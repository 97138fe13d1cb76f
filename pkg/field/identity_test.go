package field

import (
	"math"
	"testing"
)

// TestIdentityMappingValues verifies the edge-aligned coordinate formula
func TestIdentityMappingValues(t *testing.T) {
	size := 4
	id := IdentityMapping(size)

	// Pixel i sits at (2i+1)/size - 1 along each axis
	for i := 0; i < size; i++ {
		want := float64(2*i+1)/float64(size) - 1
		if got := id.Tensor().At(0, 0, 0, i); math.Abs(got-want) > 1e-15 {
			t.Errorf("Expected column coordinate %f at x=%d, got %f", want, i, got)
		}
		if got := id.Tensor().At(0, 1, i, 0); math.Abs(got-want) > 1e-15 {
			t.Errorf("Expected row coordinate %f at y=%d, got %f", want, i, got)
		}
	}

	// First and last pixel centers sit half a pixel inside the edges
	if got := id.Tensor().At(0, 0, 0, 0); got != -1+1/float64(size) {
		t.Errorf("Expected first pixel center at %f, got %f", -1+1/float64(size), got)
	}
	if got := id.Tensor().At(0, 0, 0, size-1); got != 1-1/float64(size) {
		t.Errorf("Expected last pixel center at %f, got %f", 1-1/float64(size), got)
	}

	// Column coordinates are constant down each column, row coordinates
	// constant across each row
	if id.Tensor().At(0, 0, 0, 2) != id.Tensor().At(0, 0, 3, 2) {
		t.Errorf("Expected column coordinate independent of row")
	}
	if id.Tensor().At(0, 1, 2, 0) != id.Tensor().At(0, 1, 2, 3) {
		t.Errorf("Expected row coordinate independent of column")
	}
}

// TestMappingCache verifies hit/miss accounting and defensive copying
func TestMappingCache(t *testing.T) {
	cache := NewMappingCache(4)

	first := cache.IdentityMapping(8)
	if hits, misses := cache.Stats(); hits != 0 || misses != 1 {
		t.Errorf("Expected 0 hits 1 miss after first lookup, got %d/%d", hits, misses)
	}

	second := cache.IdentityMapping(8)
	if hits, misses := cache.Stats(); hits != 1 || misses != 1 {
		t.Errorf("Expected 1 hit 1 miss after repeat lookup, got %d/%d", hits, misses)
	}
	if !first.EqualApprox(second, 0) {
		t.Errorf("Expected cached mapping to match the computed one exactly")
	}

	// Mutating a returned mapping must not corrupt the cache
	first.Tensor().Fill(99)
	third := cache.IdentityMapping(8)
	if third.Tensor().At(0, 0, 0, 0) == 99 {
		t.Errorf("Expected cache entry to be isolated from caller mutation")
	}

	if cache.Len() != 1 {
		t.Errorf("Expected 1 resident entry, got %d", cache.Len())
	}
	cache.IdentityMapping(16)
	if cache.Len() != 2 {
		t.Errorf("Expected 2 resident entries, got %d", cache.Len())
	}
}

// TestMappingCacheBound verifies the entry bound and the disabled cache
func TestMappingCacheBound(t *testing.T) {
	cache := NewMappingCache(2)
	cache.IdentityMapping(4)
	cache.IdentityMapping(8)
	cache.IdentityMapping(16) // over the bound: computed but not stored
	if cache.Len() != 2 {
		t.Errorf("Expected the cache to stay at 2 entries, got %d", cache.Len())
	}

	// Size 16 misses every time since it was never stored
	cache.IdentityMapping(16)
	if hits, misses := cache.Stats(); hits != 0 || misses != 4 {
		t.Errorf("Expected 0 hits 4 misses, got %d/%d", hits, misses)
	}

	disabled := NewMappingCache(0)
	a := disabled.IdentityMapping(8)
	b := disabled.IdentityMapping(8)
	if disabled.Len() != 0 {
		t.Errorf("Expected disabled cache to store nothing, got %d entries", disabled.Len())
	}
	if hits, _ := disabled.Stats(); hits != 0 {
		t.Errorf("Expected no hits from a disabled cache, got %d", hits)
	}
	if !a.EqualApprox(b, 0) {
		t.Errorf("Expected uncached lookups to agree")
	}
}
