// Package similarity compares two embedded skill sets with cosine similarity.
package similarity

import (
	"errors"
	"fmt"
	"math"

	"github.com/spigell/resume-gpt/internal/skills"
)

// Precision is the number of decimal places similarities are rounded to.
const Precision = 4

// ErrDimensionMismatch is returned when names and vectors are not aligned or
// vectors do not share a dimensionality.
var ErrDimensionMismatch = errors.New("embedding dimensions do not match")

// Cosine returns dot(a, b) / (|a| * |b|). A zero-length vector scores 0.
func Cosine(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	// Clamp float noise so callers can rely on [-1, 1].
	return math.Max(-1, math.Min(1, sim))
}

// Round rounds v to Precision decimal places.
func Round(v float64) float64 {
	p := math.Pow(10, Precision)
	return math.Round(v*p) / p
}

// Matrix returns sim[i][j] between source i and target j, unrounded.
func Matrix(source, target [][]float64) ([][]float64, error) {
	if err := validate(source, target); err != nil {
		return nil, err
	}

	out := make([][]float64, len(source))
	for i, s := range source {
		row := make([]float64, len(target))
		for j, t := range target {
			row[j] = Cosine(t, s)
		}
		out[i] = row
	}
	return out, nil
}

// BestMatches finds, for every source skill, the target with the highest
// similarity. Ties go to the earliest target. Scores are rounded to Precision.
// Either side being empty yields an empty result.
func BestMatches(sourceVectors [][]float64, sourceNames []string, targetVectors [][]float64, targetNames []string) (skills.MatchResult, error) {
	var result skills.MatchResult

	if len(sourceNames) == 0 || len(targetNames) == 0 {
		return result, nil
	}
	if len(sourceVectors) != len(sourceNames) || len(targetVectors) != len(targetNames) {
		return result, fmt.Errorf("%w: %d source vectors for %d skills, %d target vectors for %d skills",
			ErrDimensionMismatch, len(sourceVectors), len(sourceNames), len(targetVectors), len(targetNames))
	}

	matrix, err := Matrix(sourceVectors, targetVectors)
	if err != nil {
		return result, err
	}

	for i, row := range matrix {
		best := 0
		for j := 1; j < len(row); j++ {
			if row[j] > row[best] {
				best = j
			}
		}
		result.Put(skills.BestMatch{
			Source:     sourceNames[i],
			Target:     targetNames[best],
			Similarity: Round(row[best]),
		})
	}

	return result, nil
}

func validate(source, target [][]float64) error {
	dim := -1
	for _, set := range [][][]float64{source, target} {
		for _, v := range set {
			if dim == -1 {
				dim = len(v)
			}
			if len(v) != dim || len(v) == 0 {
				return fmt.Errorf("%w: got vectors of length %d and %d", ErrDimensionMismatch, dim, len(v))
			}
		}
	}
	return nil
}
