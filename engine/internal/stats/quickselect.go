package stats

// QuickSelectK partitions values in place so that the k smallest elements
// occupy values[:k] (unordered among themselves), using the standard
// quickselect algorithm, so callers never need a full sort to find the k
// smallest values. rng supplies the pivot choice so behavior is
// reproducible under a seeded RNG.
func QuickSelectK(values []float64, k int, rng *Rand) {
	if k <= 0 || k >= len(values) {
		return
	}
	lo, hi := 0, len(values)-1
	for lo < hi {
		pivotIdx := lo + rng.Intn(hi-lo+1)
		pivotIdx = partition(values, lo, hi, pivotIdx)
		switch {
		case pivotIdx == k:
			return
		case pivotIdx < k:
			lo = pivotIdx + 1
		default:
			hi = pivotIdx - 1
		}
	}
}

func partition(values []float64, lo, hi, pivotIdx int) int {
	pivot := values[pivotIdx]
	values[pivotIdx], values[hi] = values[hi], values[pivotIdx]
	store := lo
	for i := lo; i < hi; i++ {
		if values[i] < pivot {
			values[i], values[store] = values[store], values[i]
			store++
		}
	}
	values[store], values[hi] = values[hi], values[store]
	return store
}
