package preprocess

import (
	"fmt"
	"maps"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/floats"
)

// SMOTE oversamples every non-majority class by interpolating between a sample and one of
// its K nearest same-class neighbors until all classes match the majority count.
type SMOTE struct {
	K    int
	Seed uint64
}

// Resample returns X and y with synthetic rows appended after the originals. The inputs
// are not modified.
func (s SMOTE) Resample(X [][]float64, y []int) ([][]float64, []int, error) {
	if len(X) == 0 {
		return nil, nil, ErrEmptyInput
	}
	if len(X) != len(y) {
		return nil, nil, fmt.Errorf("%d rows but %d labels: %w", len(X), len(y), ErrWidthMismatch)
	}
	if s.K < 1 {
		return nil, nil, fmt.Errorf("k must be positive, got %d", s.K)
	}

	byClass := make(map[int][]int)
	for i, label := range y {
		byClass[label] = append(byClass[label], i)
	}
	majority := 0
	for _, idx := range byClass {
		majority = max(majority, len(idx))
	}

	outX := slices.Clone(X)
	outY := slices.Clone(y)
	rng := rand.New(rand.NewPCG(s.Seed, s.Seed))

	for _, c := range slices.Sorted(maps.Keys(byClass)) {
		members := byClass[c]
		need := majority - len(members)
		if need == 0 {
			continue
		}
		if len(members) < 2 {
			return nil, nil, fmt.Errorf("class %d has %d sample(s): %w", c, len(members), ErrTooFewMinority)
		}
		k := min(s.K, len(members)-1)

		rows := make([][]float64, len(members))
		for i, m := range members {
			rows[i] = X[m]
		}
		neighbors := make([][]int, len(rows))

		diff := make([]float64, len(rows[0]))
		for range need {
			i := rng.IntN(len(rows))
			if neighbors[i] == nil {
				neighbors[i] = nearest(rows, i, k)
			}
			nn := rows[neighbors[i][rng.IntN(k)]]
			gap := rng.Float64()

			floats.SubTo(diff, nn, rows[i])
			synthetic := make([]float64, len(diff))
			floats.AddScaledTo(synthetic, rows[i], gap, diff)
			outX = append(outX, synthetic)
			outY = append(outY, c)
		}
	}
	return outX, outY, nil
}

// nearest returns the indices of the k rows closest to rows[i] by Euclidean distance,
// excluding i, closest first.
func nearest(rows [][]float64, i, k int) []int {
	type cand struct {
		idx  int
		dist float64
	}
	best := make([]cand, 0, k+1)
	for j, r := range rows {
		if j == i {
			continue
		}
		d := floats.Distance(rows[i], r, 2)
		if len(best) == k && d >= best[k-1].dist {
			continue
		}
		pos, _ := slices.BinarySearchFunc(best, d, func(c cand, t float64) int {
			if c.dist <= t {
				return -1
			}
			return 1
		})
		best = slices.Insert(best, pos, cand{idx: j, dist: d})
		if len(best) > k {
			best = best[:k]
		}
	}
	out := make([]int, len(best))
	for j, c := range best {
		out[j] = c.idx
	}
	return out
}
