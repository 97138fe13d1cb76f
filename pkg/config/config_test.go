package config

import (
	"os"
	"path/filepath"
	"testing"
)

// TestDefaultConfig verifies the default values
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Align.TargetRadius != 3 {
		t.Errorf("Expected default target radius 3, got %d", cfg.Align.TargetRadius)
	}
	if cfg.Align.TargetRadius%2 == 0 {
		t.Errorf("Expected an odd default target radius")
	}
	if cfg.Align.Mip != 0 {
		t.Errorf("Expected default mip 0, got %d", cfg.Align.Mip)
	}
	if cfg.Align.MaxShift <= 0 {
		t.Errorf("Expected a positive default search radius, got %d", cfg.Align.MaxShift)
	}
	if cfg.Voting.SoftminTemp <= 0 {
		t.Errorf("Expected a positive default softmin temperature, got %f", cfg.Voting.SoftminTemp)
	}
	if cfg.Voting.BlurKernel != 5 || cfg.Voting.BlurSigma != 1.0 {
		t.Errorf("Expected default blur 5/1.0, got %d/%f", cfg.Voting.BlurKernel, cfg.Voting.BlurSigma)
	}
	if cfg.Chunk.Rows < 1 {
		t.Errorf("Expected at least one tile row by default, got %d", cfg.Chunk.Rows)
	}
	if cfg.Chunk.ChunkSize != 1024 {
		t.Errorf("Expected default chunk size 1024, got %d", cfg.Chunk.ChunkSize)
	}
}

// TestLoadConfigMissingFile verifies defaults are returned when the file
// does not exist
func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	def := DefaultConfig()
	if cfg.Align.TargetRadius != def.Align.TargetRadius {
		t.Errorf("Expected the default config for a missing file")
	}
}

// TestSaveLoadRoundTrip verifies configuration persistence
func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "emalign.yaml")

	cfg := DefaultConfig()
	cfg.Align.TargetRadius = 5
	cfg.Align.RenderMips = 4
	cfg.Voting.SoftminTemp = 0.25
	cfg.Chunk.Rows = 7
	cfg.Output.Verbose = false

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if loaded.Align.TargetRadius != 5 {
		t.Errorf("Expected target radius 5, got %d", loaded.Align.TargetRadius)
	}
	if loaded.Align.RenderMips != 4 {
		t.Errorf("Expected 4 render mips, got %d", loaded.Align.RenderMips)
	}
	if loaded.Voting.SoftminTemp != 0.25 {
		t.Errorf("Expected softmin temperature 0.25, got %f", loaded.Voting.SoftminTemp)
	}
	if loaded.Chunk.Rows != 7 {
		t.Errorf("Expected 7 tile rows, got %d", loaded.Chunk.Rows)
	}
	if loaded.Output.Verbose {
		t.Errorf("Expected verbose disabled after the round trip")
	}
}

// TestLoadConfigPartialFile verifies unspecified keys keep their defaults
func TestLoadConfigPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	partial := "align:\n  targetRadius: 7\n"
	if err := os.WriteFile(path, []byte(partial), 0644); err != nil {
		t.Fatalf("Failed to write partial config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Align.TargetRadius != 7 {
		t.Errorf("Expected target radius 7 from the file, got %d", cfg.Align.TargetRadius)
	}
	if cfg.Voting.BlurKernel != 5 {
		t.Errorf("Expected the default blur kernel to survive a partial file, got %d", cfg.Voting.BlurKernel)
	}
}

// TestLoadConfigInvalidYAML verifies parse errors are reported
func TestLoadConfigInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("align: [not a map"), 0644); err != nil {
		t.Fatalf("Failed to write bad config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Errorf("Expected error for invalid YAML")
	}
}

// TestCreateDefaultConfigFile verifies the bootstrap helper
func TestCreateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "emalign.yaml")
	if err := CreateDefaultConfigFile(path); err != nil {
		t.Fatalf("CreateDefaultConfigFile failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Expected the config file to exist: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Align.TargetRadius != DefaultConfig().Align.TargetRadius {
		t.Errorf("Expected the written file to round-trip the defaults")
	}
}
