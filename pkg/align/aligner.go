// Package align runs the serial-section alignment pass: for each section
// it evaluates an alignment model against several previously aligned
// neighbors, fuses the candidate displacement fields by vector voting,
// warps the section with the consensus field, and persists the warped
// image and the field through narrow storage interfaces. Tiles of the
// bounding region are processed concurrently; sections within a tile are
// serial, since each depends on its aligned predecessors.
package align

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"emalign/pkg/chunk"
	"emalign/pkg/field"
	"emalign/pkg/voting"
)

// Source reads image or field chunks from a storage collaborator.
type Source interface {
	ReadChunk(ctx context.Context, z int, region chunk.BoundingBox) (*field.Tensor, error)
}

// Sink writes image or field chunks to a storage collaborator.
type Sink interface {
	WriteChunk(ctx context.Context, z int, region chunk.BoundingBox, data *field.Tensor) error
}

// Store both reads and writes chunks. The aligned-image destination must
// be readable because later sections align against earlier aligned ones.
type Store interface {
	Source
	Sink
}

// Model evaluates the alignment model on a source/target image pair and
// returns the displacement field warping src onto tgt. Both images are
// square tensors of identical shape.
type Model interface {
	Evaluate(ctx context.Context, src, tgt *field.Tensor) (*field.Field, error)
}

// Config parametrizes an alignment pass.
type Config struct {
	// TargetRadius is the number of previously aligned sections each
	// section is matched against; it is the voting ensemble size and
	// must be odd.
	TargetRadius int

	// Mip is the resolution level alignment runs at.
	Mip int

	// Workers bounds concurrent tile processing; 0 means GOMAXPROCS.
	Workers int

	// Voting tunes the consensus computation.
	Voting voting.Options

	// Chunk controls tile partitioning and crop margins.
	Chunk chunk.Spec
}

func (c Config) validate() error {
	if c.TargetRadius < 1 {
		return fmt.Errorf("align: target radius must be at least 1, got %d", c.TargetRadius)
	}
	if c.TargetRadius%2 == 0 {
		return fmt.Errorf("align: target radius %d would produce an even voting ensemble", c.TargetRadius)
	}
	if c.Mip < 0 {
		return fmt.Errorf("align: negative mip %d", c.Mip)
	}
	return nil
}

// Aligner aligns a stack of serial sections within a bounding region.
type Aligner struct {
	cfg   Config
	model Model
	log   zerolog.Logger
}

// New creates an aligner for the given model.
func New(model Model, cfg Config, log zerolog.Logger) (*Aligner, error) {
	if model == nil {
		return nil, fmt.Errorf("align: nil model")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	return &Aligner{cfg: cfg, model: model, log: log}, nil
}

// AlignStack aligns sections [zStart, zStop) of src within bbox, writing
// warped images to dst and consensus displacement fields to fieldSink.
// The first section is copied through unchanged as the anchor; the next
// TargetRadius-1 sections are aligned against their immediate predecessor
// only (the voting ensemble is still ramping up); every further section is
// vector-voted against its TargetRadius previously aligned neighbors.
func (a *Aligner) AlignStack(ctx context.Context, src Source, dst Store, fieldSink Sink, bbox chunk.BoundingBox, zStart, zStop int) error {
	if zStop <= zStart {
		return fmt.Errorf("align: empty z range [%d, %d)", zStart, zStop)
	}
	tiles, err := chunk.Partition(bbox, a.cfg.Chunk)
	if err != nil {
		return err
	}
	a.log.Info().
		Int("tiles", len(tiles)).
		Int("sections", zStop-zStart).
		Int("mip", a.cfg.Mip).
		Int("radius", a.cfg.TargetRadius).
		Msg("starting alignment pass")

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Workers)
	for _, tile := range tiles {
		tile := tile
		g.Go(func() error {
			return a.alignTile(ctx, tile, src, dst, fieldSink, zStart, zStop)
		})
	}
	return g.Wait()
}

func (a *Aligner) alignTile(ctx context.Context, tile chunk.Tile, src Source, dst Store, fieldSink Sink, zStart, zStop int) error {
	log := a.log.With().Int("tile", tile.Index).Logger()

	// The field algebra operates on square tiles; widen the read window
	// to a square and crop back to the core strip when writing.
	window := squareWindow(tile.Region)
	core, err := tile.Cropped(a.cfg.Chunk)
	if err != nil {
		return err
	}

	// Previously aligned sections, most recent last, as voting targets.
	targets := make([]*field.Tensor, 0, a.cfg.TargetRadius)

	for z := zStart; z < zStop; z++ {
		img, err := src.ReadChunk(ctx, z, window)
		if err != nil {
			return fmt.Errorf("align: reading z=%d: %w", z, err)
		}

		var aligned *field.Tensor
		var consensus *field.Field
		switch {
		case z == zStart:
			// Anchor section: copied through unchanged.
			aligned = img
		case z < zStart+a.cfg.TargetRadius:
			// Ensemble still ramping up: single-pair alignment
			// against the most recent aligned section.
			f, err := a.model.Evaluate(ctx, img, targets[len(targets)-1])
			if err != nil {
				return fmt.Errorf("align: model on z=%d: %w", z, err)
			}
			consensus = f
		default:
			candidates := make([]*field.Field, 0, a.cfg.TargetRadius)
			for k := 1; k <= a.cfg.TargetRadius; k++ {
				f, err := a.model.Evaluate(ctx, img, targets[len(targets)-k])
				if err != nil {
					return fmt.Errorf("align: model on z=%d offset %d: %w", z, k, err)
				}
				candidates = append(candidates, f)
			}
			consensus, err = voting.Vote(candidates, a.cfg.Voting)
			if err != nil {
				return fmt.Errorf("align: voting on z=%d: %w", z, err)
			}
		}

		if consensus != nil {
			aligned, err = consensus.Sample(img, field.Bilinear, field.Zeros)
			if err != nil {
				return fmt.Errorf("align: warping z=%d: %w", z, err)
			}
			cropped, err := cropToRegion(consensus.Tensor(), window, core)
			if err != nil {
				return err
			}
			if err := fieldSink.WriteChunk(ctx, z, core, cropped); err != nil {
				return fmt.Errorf("align: writing field z=%d: %w", z, err)
			}
			mean, std := residualStats(consensus)
			log.Debug().
				Int("z", z).
				Float64("residual_mean", mean).
				Float64("residual_std", std).
				Msg("section aligned")
		}

		croppedImg, err := cropToRegion(aligned, window, core)
		if err != nil {
			return err
		}
		if err := dst.WriteChunk(ctx, z, core, croppedImg); err != nil {
			return fmt.Errorf("align: writing image z=%d: %w", z, err)
		}

		targets = append(targets, aligned)
		if len(targets) > a.cfg.TargetRadius {
			targets = targets[1:]
		}
	}
	return nil
}

// RenderMips reads each aligned section over bbox and writes it
// downsampled at every mip level from 1 through mips. Level m halves the
// linear dimensions of level m-1.
func (a *Aligner) RenderMips(ctx context.Context, src Source, dst Sink, bbox chunk.BoundingBox, zStart, zStop, mips int) error {
	if mips < 1 {
		return fmt.Errorf("align: at least one mip level required, got %d", mips)
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Workers)
	for z := zStart; z < zStop; z++ {
		z := z
		g.Go(func() error {
			img, err := src.ReadChunk(ctx, z, bbox)
			if err != nil {
				return fmt.Errorf("align: reading aligned z=%d: %w", z, err)
			}
			level := img
			for m := 1; m <= mips; m++ {
				level, err = field.ResizeTensor(level, 0.5)
				if err != nil {
					return fmt.Errorf("align: downsampling z=%d to mip %d: %w", z, m, err)
				}
				scaled := bbox.AtMip(bbox.Mip + m)
				// Halving can round differently than the box rescale on
				// odd extents; the written region follows the data.
				region := chunk.BoundingBox{
					XStart: scaled.XStart,
					XStop:  scaled.XStart + level.W(),
					YStart: scaled.YStart,
					YStop:  scaled.YStart + level.H(),
					Mip:    scaled.Mip,
				}
				if err := dst.WriteChunk(ctx, z, region, level); err != nil {
					return fmt.Errorf("align: writing z=%d mip %d: %w", z, m, err)
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// squareWindow extends a region rightward or downward to the nearest
// square, so reads feed the square-only field algebra. Readers zero-fill
// the extension.
func squareWindow(region chunk.BoundingBox) chunk.BoundingBox {
	side := region.Width()
	if region.Height() > side {
		side = region.Height()
	}
	region.XStop = region.XStart + side
	region.YStop = region.YStart + side
	return region
}

// cropToRegion cuts the sub-rectangle covering target out of a tensor
// spanning processed.
func cropToRegion(t *field.Tensor, processed, target chunk.BoundingBox) (*field.Tensor, error) {
	if !processed.Contains(target) {
		return nil, fmt.Errorf("align: %s does not contain crop target %s", processed, target)
	}
	return t.Crop(target.YStart-processed.YStart, target.XStart-processed.XStart,
		target.Height(), target.Width())
}

// residualStats summarizes a consensus field's displacement magnitudes.
func residualStats(f *field.Field) (mean, std float64) {
	magn := f.Magnitude().Data()
	mean = stat.Mean(magn, nil)
	std = math.Sqrt(stat.Variance(magn, nil))
	return mean, std
}
