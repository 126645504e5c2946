package predict

import "sort"

// Variance compares one metric. PercentageChange is nil when the prediction was zero.
type Variance struct {
	Predicted        float64  `json:"predicted"`
	Actual           float64  `json:"actual"`
	Difference       float64  `json:"difference"`
	PercentageChange *float64 `json:"percentage_change"`
}

// CompareVariance computes per-metric differences for metrics present in both maps.
// It returns nil when either map is empty.
func CompareVariance(predicted, actual map[string]float64) map[string]Variance {
	if len(predicted) == 0 || len(actual) == 0 {
		return nil
	}

	out := make(map[string]Variance, len(predicted))
	for metric, p := range predicted {
		a, ok := actual[metric]
		if !ok {
			continue
		}
		diff := a - p
		v := Variance{
			Predicted:  p,
			Actual:     a,
			Difference: round2(diff),
		}
		if p != 0 {
			pct := round2(diff / p * 100)
			v.PercentageChange = &pct
		}
		out[metric] = v
	}
	return out
}

// SortedMetrics returns the metric names of a comparison in lexical order
func SortedMetrics(cmp map[string]Variance) []string {
	keys := make([]string, 0, len(cmp))
	for k := range cmp {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
