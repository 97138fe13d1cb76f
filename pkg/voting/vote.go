// Package voting fuses an odd-sized ensemble of candidate displacement
// fields into a single consensus field.
//
// Each candidate is an independent estimate of the same physical
// displacement, typically produced by matching a section against several
// of its already-aligned neighbors. Voting weights every strict-majority
// subset of the ensemble by its internal agreement and averages the
// candidates with the resulting per-pixel weights, so a wrong estimate is
// outvoted wherever a consistent majority exists. The procedure is smooth
// everywhere (softmin rather than argmin), preserving differentiability
// for gradient-based consumers.
package voting

import (
	"errors"
	"fmt"
	"math"

	"emalign/pkg/field"
)

// Errors returned by Vote.
var (
	// ErrEvenEnsemble indicates an ensemble with an even number of
	// fields, for which no strict majority subset size exists.
	ErrEvenEnsemble = errors.New("voting: cannot vote on an even number of displacement fields")

	// ErrEmptyEnsemble indicates an ensemble with no fields at all.
	ErrEmptyEnsemble = errors.New("voting: cannot vote on an empty ensemble")
)

// Options tunes the consensus computation. The defaults mirror the
// constants this algorithm has been run with in production, but neither
// value is derived from first principles; treat them as tunables.
type Options struct {
	// SoftminTemp is the softmin temperature converting subset
	// disagreement into subset weight. Lower temperatures approach a
	// hard winner-take-all choice of the most self-consistent subset.
	SoftminTemp float64

	// BlurSigma is the standard deviation of the Gaussian blur applied
	// to the candidates before measuring their pairwise distances.
	// Zero disables blurring. The blur affects the distance
	// computation only, never the fused output.
	BlurSigma float64

	// BlurKernel is the Gaussian kernel width in pixels.
	BlurKernel int
}

// DefaultOptions returns the options used when no explicit tuning is
// supplied.
func DefaultOptions() Options {
	return Options{SoftminTemp: 1, BlurSigma: 1, BlurKernel: 5}
}

// Vote produces a consensus displacement field from an ensemble of
// aligned candidates. All candidates must have batch size 1 and identical
// spatial extent; the ensemble size must be odd. An ensemble of one is
// returned unchanged. The result has shape (1, 2, H, W).
func Vote(fields []*field.Field, opts Options) (*field.Field, error) {
	n := len(fields)
	if n == 0 {
		return nil, ErrEmptyEnsemble
	}
	if n%2 == 0 {
		return nil, fmt.Errorf("%w: %d", ErrEvenEnsemble, n)
	}
	if n == 1 {
		return fields[0], nil
	}
	h, w := fields[0].Tensor().H(), fields[0].Tensor().W()
	for i, f := range fields {
		if f.N() != 1 {
			return nil, fmt.Errorf("voting: candidate %d has batch size %d, want 1", i, f.N())
		}
		if f.Tensor().H() != h || f.Tensor().W() != w {
			return nil, fmt.Errorf("voting: candidate %d is %dx%d, want %dx%d",
				i, f.Tensor().H(), f.Tensor().W(), h, w)
		}
	}
	if opts.SoftminTemp <= 0 {
		return nil, fmt.Errorf("voting: non-positive softmin temperature %g", opts.SoftminTemp)
	}

	// Blur a copy of the ensemble for the distance computation.
	measured := fields
	if opts.BlurSigma > 0 {
		measured = make([]*field.Field, n)
		for i, f := range fields {
			blurred, err := f.GaussianBlur(opts.BlurSigma, opts.BlurKernel)
			if err != nil {
				return nil, fmt.Errorf("voting: blurring candidate %d: %w", i, err)
			}
			measured[i] = blurred
		}
	}

	// Pairwise per-pixel distances; symmetric with a zero diagonal, so
	// only the upper triangle is computed.
	plane := h * w
	dists := make([][][]float64, n)
	for i := range dists {
		dists[i] = make([][]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d, err := measured[i].Distance(measured[j])
			if err != nil {
				return nil, err
			}
			dists[i][j] = d.Data()
			dists[j][i] = d.Data()
		}
	}

	// Mean pairwise distance within every strict-majority subset: a
	// per-pixel measure of that subset's internal disagreement.
	m := (n + 1) / 2
	mtuples := combinations(n, m)
	disagreement := make([][]float64, len(mtuples))
	for t, tuple := range mtuples {
		avg := make([]float64, plane)
		pairs := 0
		for a := 0; a < len(tuple); a++ {
			for b := a + 1; b < len(tuple); b++ {
				d := dists[tuple[a]][tuple[b]]
				for p := 0; p < plane; p++ {
					avg[p] += d[p]
				}
				pairs++
			}
		}
		inv := 1 / float64(pairs)
		for p := 0; p < plane; p++ {
			avg[p] *= inv
		}
		disagreement[t] = avg
	}

	// Softmin over subsets, then distribute each subset's weight to its
	// members and normalize per pixel across the candidates.
	fieldWeights := make([][]float64, n)
	for i := range fieldWeights {
		fieldWeights[i] = make([]float64, plane)
	}
	invTemp := 1 / opts.SoftminTemp
	tupleWeight := make([]float64, len(mtuples))
	for p := 0; p < plane; p++ {
		maxLogit := math.Inf(-1)
		for t := range mtuples {
			if l := -disagreement[t][p] * invTemp; l > maxLogit {
				maxLogit = l
			}
		}
		var sum float64
		for t := range mtuples {
			wt := math.Exp(-disagreement[t][p]*invTemp - maxLogit)
			tupleWeight[t] = wt
			sum += wt
		}
		for t, tuple := range mtuples {
			wt := tupleWeight[t] / sum
			for _, j := range tuple {
				fieldWeights[j][p] += wt
			}
		}
		var total float64
		for j := 0; j < n; j++ {
			total += fieldWeights[j][p]
		}
		for j := 0; j < n; j++ {
			fieldWeights[j][p] /= total
		}
	}

	// Weighted sum of the original, unblurred candidates.
	out, err := field.FromTensor(field.NewTensor(1, 2, h, w))
	if err != nil {
		return nil, err
	}
	outData := out.Tensor().Data()
	for j, f := range fields {
		data := f.Tensor().Data()
		wj := fieldWeights[j]
		for p := 0; p < plane; p++ {
			outData[p] += wj[p] * data[p]
			outData[plane+p] += wj[p] * data[plane+p]
		}
	}
	return out, nil
}

// combinations enumerates all k-sized subsets of {0, ..., n-1} in
// lexicographic order.
func combinations(n, k int) [][]int {
	var out [][]int
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}
	for {
		out = append(out, append([]int(nil), idx...))
		i := k - 1
		for i >= 0 && idx[i] == n-k+i {
			i--
		}
		if i < 0 {
			return out
		}
		idx[i]++
		for j := i + 1; j < k; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
}
