package scoring

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// IntentWeightKey is the prompt metadata key carrying a category weight,
// written as a percentage ("40%" or "40").
const IntentWeightKey = "intent_weight"

// Aggregate returns the mean of scores scaled to 0-100 and rounded to two
// decimals. Empty input yields 0.
func Aggregate(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return Round2(sum / float64(len(scores)) * 100)
}

// AggregateByCategory applies Aggregate to each category independently.
func AggregateByCategory(scoresByCategory map[string][]float64) map[string]float64 {
	out := make(map[string]float64, len(scoresByCategory))
	for category, scores := range scoresByCategory {
		out[category] = Aggregate(scores)
	}
	return out
}

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// IntentWeightedIndex computes Σ(categoryAverage × weight) / Σ(weight) over
// categories that carry a positive weight. Without any weight it falls back to
// the plain mean of every individual score.
func IntentWeightedIndex(scoresByCategory map[string][]float64, weights map[string]float64) float64 {
	categories := make([]string, 0, len(scoresByCategory))
	for category := range scoresByCategory {
		categories = append(categories, category)
	}
	// Fixed summation order keeps the result reproducible.
	sort.Strings(categories)

	var weightedSum, weightTotal float64
	for _, category := range categories {
		weight := weights[category]
		if weight <= 0 || len(scoresByCategory[category]) == 0 {
			continue
		}
		weightedSum += Aggregate(scoresByCategory[category]) * weight
		weightTotal += weight
	}

	if weightTotal == 0 {
		var all []float64
		for _, category := range categories {
			all = append(all, scoresByCategory[category]...)
		}
		return Aggregate(all)
	}
	return Round2(weightedSum / weightTotal)
}

// ParseWeight reads a percentage such as "35%", "35" or "12.5 %". It reports
// false for anything that is not a non-negative number.
func ParseWeight(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
