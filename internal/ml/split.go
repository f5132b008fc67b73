package ml

import (
	"math"
	"math/rand/v2"
	"sort"
)

// TrainTestSplit shuffles row indices 0..n-1 with a seeded generator and
// returns train and test index sets. With stratify set, each distinct label
// contributes testFraction of its own rows to the test set. Both sets keep
// at least one row when n >= 2.
func TrainTestSplit(n int, testFraction float64, seed uint64, stratify []float64) (train, test []int) {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	if stratify == nil {
		idx := rng.Perm(n)
		k := testCount(n, testFraction)
		test, train = idx[:k], idx[k:]
		sort.Ints(train)
		sort.Ints(test)
		return train, test
	}

	groups := make(map[float64][]int)
	var labels []float64
	for i := 0; i < n; i++ {
		l := stratify[i]
		if _, ok := groups[l]; !ok {
			labels = append(labels, l)
		}
		groups[l] = append(groups[l], i)
	}
	sort.Float64s(labels)
	for _, l := range labels {
		g := groups[l]
		rng.Shuffle(len(g), func(i, j int) { g[i], g[j] = g[j], g[i] })
		k := int(math.Round(float64(len(g)) * testFraction))
		if k >= len(g) {
			k = len(g) - 1
		}
		test = append(test, g[:k]...)
		train = append(train, g[k:]...)
	}
	if len(test) == 0 && len(train) > 1 {
		test, train = train[:1], train[1:]
	}
	sort.Ints(train)
	sort.Ints(test)
	return train, test
}

func testCount(n int, frac float64) int {
	k := int(math.Ceil(float64(n)*frac - 1e-9))
	if n >= 2 {
		k = max(1, min(k, n-1))
	}
	return k
}

func rowsAt(X [][]float64, idx []int) [][]float64 {
	out := make([][]float64, len(idx))
	for i, j := range idx {
		out[i] = X[j]
	}
	return out
}

func valuesAt(y []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = y[j]
	}
	return out
}
