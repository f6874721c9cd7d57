package shell

import (
	"context"
	"math"
	"math/rand"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ransacChunk is the number of consecutive trials sharing one RNG stream.
// Chunking is independent of the worker count, so results only depend on
// Params.Seed.
const ransacChunk = 25

// candidate is a scored RANSAC hypothesis.
type candidate struct {
	ellipse Ellipse
	score   float64
	trial   int
}

var noCandidate = candidate{score: -1, trial: -1}

// better reports whether o beats c: higher score first, then the lower
// trial index so the winner does not depend on goroutine scheduling.
func (c candidate) better(o candidate) bool {
	if o.trial < 0 {
		return false
	}
	if c.trial < 0 || o.score > c.score {
		return true
	}
	return o.score == c.score && o.trial < c.trial
}

// ransacEllipse robustly fits an ellipse to the lateral points (xs, ys).
// Each trial fits a conic to a random minimal subset and scores it against
// the whole window with the MSAC-style score Σ(threshold - d)² over points
// with boundary distance d below threshold. The best candidate is refit on
// its consensus set.
func (f *fitter) ransacEllipse(ctx context.Context, iteration, index int, xs, ys []float64) (Ellipse, error) {
	p := f.params
	trials := p.RANSACTrials
	chunks := (trials + ransacChunk - 1) / ransacChunk

	var mu sync.Mutex
	best := noCandidate

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.workers)
	for c := 0; c < chunks; c++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			//nolint:gosec
			rng := rand.New(rand.NewSource(trialSeed(p.Seed, iteration, index, c)))
			sample := make([]int, p.RANSACSampleSize)
			local := noCandidate
			end := min((c+1)*ransacChunk, trials)
			for t := c * ransacChunk; t < end; t++ {
				sampleDistinct(rng, len(xs), sample)
				e, ok := fitConic(xs, ys, sample)
				if !ok {
					continue
				}
				cand := candidate{ellipse: e, score: msacScore(e, xs, ys, p.InlierThreshold), trial: t}
				if local.better(cand) {
					local = cand
				}
			}

			mu.Lock()
			if best.better(local) {
				best = local
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Ellipse{}, err
	}

	if best.trial < 0 || best.score <= 0 {
		// No hypothesis explained any point; fall back to the whole window.
		e, ok := fitConic(xs, ys, nil)
		if !ok {
			return Ellipse{}, errNoEllipse
		}
		return e, nil
	}

	inliers := consensus(best.ellipse, xs, ys, p.InlierThreshold)
	if refined, ok := fitConic(xs, ys, inliers); ok {
		return refined, nil
	}
	return best.ellipse, nil
}

// boundaryDistance is |sqrt(vᵗQv) - 1| for v relative to the centre: the
// relative distance of (x, y) from the ellipse boundary.
func boundaryDistance(q Form2, e Ellipse, x, y float64) float64 {
	return math.Abs(math.Sqrt(q.Eval(x-e.CX, y-e.CY)) - 1)
}

func msacScore(e Ellipse, xs, ys []float64, threshold float64) float64 {
	q := e.Form()
	var score float64
	for k := range xs {
		if d := boundaryDistance(q, e, xs[k], ys[k]); d < threshold {
			score += (threshold - d) * (threshold - d)
		}
	}
	return score
}

func consensus(e Ellipse, xs, ys []float64, threshold float64) []int {
	q := e.Form()
	var idx []int
	for k := range xs {
		if boundaryDistance(q, e, xs[k], ys[k]) < threshold {
			idx = append(idx, k)
		}
	}
	return idx
}

// sampleDistinct fills idx with distinct indices in [0, n).
func sampleDistinct(rng *rand.Rand, n int, idx []int) {
	for i := range idx {
		for {
			idx[i] = rng.Intn(n)
			unique := true
			for j := 0; j < i; j++ {
				if idx[i] == idx[j] {
					unique = false
					break
				}
			}
			if unique {
				break
			}
		}
	}
}

// trialSeed mixes the fit seed with the position of a RANSAC chunk
// (splitmix64 finalizer).
func trialSeed(seed int64, iteration, index, chunk int) int64 {
	z := uint64(seed)
	for _, v := range []int{iteration, index, chunk} {
		z += 0x9e3779b97f4a7c15 + uint64(v)
		z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
		z = (z ^ (z >> 27)) * 0x94d049bb133111eb
		z ^= z >> 31
	}
	return int64(z)
}
