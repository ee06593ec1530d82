package analytics

import "math"

// safeRatio divides num by den, returning 0 when den is zero.
// All rate and percentage computations go through here.
func safeRatio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

// percentTenths returns num/den as a percentage rounded to one decimal place
func percentTenths(num, den float64) float64 {
	return roundTenths(safeRatio(num, den) * 100)
}

// roundTenths rounds to one decimal place, halves away from zero
func roundTenths(v float64) float64 {
	return math.Round(v*10) / 10
}

// truncatedMean returns the arithmetic mean truncated toward zero.
// An empty input yields 0.
func truncatedMean(values []int) int {
	if len(values) == 0 {
		return 0
	}
	sum := 0
	for _, v := range values {
		sum += v
	}
	return sum / len(values)
}
