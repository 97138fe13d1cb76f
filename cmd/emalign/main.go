package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"emalign/pkg/align"
	"emalign/pkg/chunk"
	"emalign/pkg/config"
	"emalign/pkg/stack"
	"emalign/pkg/voting"
)

func main() {
	// Parse command line arguments
	inputDir := flag.String("input", "", "Directory containing serial-section images")
	outputDir := flag.String("output", "aligned", "Directory to write aligned sections and mips")
	configPath := flag.String("config", "emalign.yaml", "Path to YAML configuration file")
	radius := flag.Int("radius", 0, "Vector-voting target radius (odd); overrides config")
	renderMips := flag.Int("mips", -1, "Number of mip levels to render; overrides config")
	flag.Parse()

	// Validate inputs
	if *inputDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *radius > 0 {
		cfg.Align.TargetRadius = *radius
	}
	if *renderMips >= 0 {
		cfg.Align.RenderMips = *renderMips
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if !cfg.Output.Verbose {
		log = log.Level(zerolog.InfoLevel)
	}

	log.Info().Str("input", *inputDir).Msg("loading section stack")
	src, err := stack.Load(*inputDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load stack")
	}
	info := src.Info()
	log.Info().
		Int("sections", len(info.Sections)).
		Int("width", info.Width).
		Int("height", info.Height).
		Msg("stack loaded")

	aligner, err := align.New(
		align.TranslationModel{MaxShift: cfg.Align.MaxShift},
		align.Config{
			TargetRadius: cfg.Align.TargetRadius,
			Mip:          cfg.Align.Mip,
			Workers:      cfg.Align.Workers,
			Voting: voting.Options{
				SoftminTemp: cfg.Voting.SoftminTemp,
				BlurSigma:   cfg.Voting.BlurSigma,
				BlurKernel:  cfg.Voting.BlurKernel,
			},
			Chunk: chunk.Spec{
				Rows:      cfg.Chunk.Rows,
				Overlap:   cfg.Chunk.Overlap,
				Pad:       cfg.Chunk.Pad,
				ChunkSize: cfg.Chunk.ChunkSize,
			},
		},
		log,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure aligner")
	}

	bounds := src.Bounds()
	dst := stack.NewMemStore(bounds, 1)
	fields := stack.NewMemStore(bounds, 2)
	ctx := context.Background()

	start := time.Now()
	if err := aligner.AlignStack(ctx, src, dst, fields, bounds, info.ZStart(), info.ZStop()); err != nil {
		log.Fatal().Err(err).Msg("alignment failed")
	}
	log.Info().Dur("elapsed", time.Since(start)).Msg("alignment pass complete")

	if cfg.Align.RenderMips > 0 {
		if err := aligner.RenderMips(ctx, dst, dst, bounds, info.ZStart(), info.ZStop(), cfg.Align.RenderMips); err != nil {
			log.Fatal().Err(err).Msg("mip rendering failed")
		}
	}

	// Persist every section at every rendered mip level.
	for mip := 0; mip <= cfg.Align.RenderMips; mip++ {
		mipDir := filepath.Join(*outputDir, fmt.Sprintf("mip%d", mip))
		if err := os.MkdirAll(mipDir, 0755); err != nil {
			log.Fatal().Err(err).Msg("failed to create output directory")
		}
		for z := info.ZStart(); z < info.ZStop(); z++ {
			canvas, ok := dst.Section(z, mip)
			if !ok {
				continue
			}
			path := filepath.Join(mipDir, fmt.Sprintf("section_%04d.png", z))
			if err := stack.SaveImage(canvas, path); err != nil {
				log.Fatal().Err(err).Int("z", z).Msg("failed to save section")
			}
		}
	}
	log.Info().Str("output", *outputDir).Msg("aligned stack written")
}
