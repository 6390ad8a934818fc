package utils

func FindIndex[T comparable](slice []T, item T) int {
	for i, v := range slice {
		if v == item {
			return i
		}
	}
	return -1
}

// ArgMax returns the indices of the maximum values, in order.
func ArgMax(values []float64) []int {
	var best []int
	for i, v := range values {
		switch {
		case len(best) == 0 || v > values[best[0]]:
			best = []int{i}
		case v == values[best[0]]:
			best = append(best, i)
		}
	}
	return best
}
