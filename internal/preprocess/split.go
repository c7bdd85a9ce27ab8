package preprocess

import (
	"cmp"
	"fmt"
	"maps"
	"math"
	"math/rand/v2"
	"slices"
)

// StratifiedSplit partitions row indices into train and test sets that keep the label
// ratio. The test set holds ceil(testSize*n) rows, allocated across classes by largest
// remainder; both sets are returned in shuffled order.
func StratifiedSplit(labels []int, testSize float64, seed uint64) (train, test []int, err error) {
	n := len(labels)
	if n == 0 {
		return nil, nil, ErrEmptyInput
	}
	if testSize <= 0 || testSize >= 1 {
		return nil, nil, fmt.Errorf("test size %v outside (0, 1): %w", testSize, ErrStratify)
	}

	byClass := make(map[int][]int)
	for i, y := range labels {
		byClass[y] = append(byClass[y], i)
	}
	classes := slices.Sorted(maps.Keys(byClass))
	for _, c := range classes {
		if len(byClass[c]) < 2 {
			return nil, nil, fmt.Errorf("class %d has %d member(s), need at least 2: %w", c, len(byClass[c]), ErrStratify)
		}
	}

	nTest := int(math.Ceil(testSize * float64(n)))
	nTrain := n - nTest
	if nTest < len(classes) || nTrain < len(classes) {
		return nil, nil, fmt.Errorf("split of %d rows into %d/%d cannot hold %d classes: %w", n, nTrain, nTest, len(classes), ErrStratify)
	}

	counts := make([]int, len(classes))
	for i, c := range classes {
		counts[i] = len(byClass[c])
	}
	alloc := allocate(counts, nTest)

	rng := rand.New(rand.NewPCG(seed, seed))
	for i, c := range classes {
		idx := slices.Clone(byClass[c])
		rng.Shuffle(len(idx), func(a, b int) { idx[a], idx[b] = idx[b], idx[a] })
		test = append(test, idx[:alloc[i]]...)
		train = append(train, idx[alloc[i]:]...)
	}
	rng.Shuffle(len(train), func(a, b int) { train[a], train[b] = train[b], train[a] })
	rng.Shuffle(len(test), func(a, b int) { test[a], test[b] = test[b], test[a] })
	return train, test, nil
}

// allocate distributes total across classes proportionally to counts, flooring first and
// handing the remainder to the largest fractional parts. Ties go to the larger class,
// then the earlier one. Every class with at least two members gets one or more test rows
// and keeps one or more train rows, provided total allows it.
func allocate(counts []int, total int) []int {
	n := 0
	for _, c := range counts {
		n += c
	}
	out := make([]int, len(counts))
	frac := make([]float64, len(counts))
	assigned := 0
	for i, c := range counts {
		exact := float64(total) * float64(c) / float64(n)
		out[i] = int(math.Floor(exact))
		frac[i] = exact - float64(out[i])
		assigned += out[i]
	}
	for i, c := range counts {
		if out[i] == 0 && c > 1 {
			out[i] = 1
			assigned++
		}
	}
	// Minimums can overshoot; take rows back from the largest allocation.
	for assigned > total {
		j := -1
		for i := range out {
			if out[i] > 1 && (j < 0 || out[i] > out[j]) {
				j = i
			}
		}
		if j < 0 {
			break
		}
		out[j]--
		assigned--
	}

	order := make([]int, len(counts))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		if r := cmp.Compare(frac[b], frac[a]); r != 0 {
			return r
		}
		return cmp.Compare(counts[b], counts[a])
	})
	for progress := true; assigned < total && progress; {
		progress = false
		for _, i := range order {
			if assigned == total {
				break
			}
			// Keep at least one member of every class on the train side.
			if out[i] < counts[i]-1 {
				out[i]++
				assigned++
				progress = true
			}
		}
	}
	return out
}
