package gmutils

import "math"

// Canonical precision for electrical quantities
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Canonical precision for temperatures
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Mean of a non-empty slice. Returns 0 for empty input.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
