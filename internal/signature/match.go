package signature

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	// DefaultRatio is the per-descriptor nearest/second-nearest acceptance ratio.
	DefaultRatio = 0.96
	// DefaultAccept is the fraction of good matches needed to accept a pair.
	DefaultAccept = 0.5
)

// Params tunes the ratio test.
type Params struct {
	// Ratio accepts a descriptor when d1 < Ratio*d2.
	Ratio float64 `yaml:"ratio"`
	// Accept declares a match when good > Accept*comparisons.
	Accept float64 `yaml:"accept"`
}

// DefaultParams returns the reference thresholds.
func DefaultParams() Params {
	return Params{Ratio: DefaultRatio, Accept: DefaultAccept}
}

// Validate checks that both thresholds lie in (0, 1].
func (p Params) Validate() error {
	if p.Ratio <= 0 || p.Ratio > 1 {
		return fmt.Errorf("ratio must be in (0, 1], got %f", p.Ratio)
	}
	if p.Accept <= 0 || p.Accept > 1 {
		return fmt.Errorf("accept fraction must be in (0, 1], got %f", p.Accept)
	}
	return nil
}

// Result is the outcome of comparing a query signature against one candidate.
type Result struct {
	Good        int
	Comparisons int
	Matched     bool
}

// Score is the fraction of comparisons that passed the ratio test.
func (r Result) Score() float64 {
	if r.Comparisons == 0 {
		return 0
	}
	return float64(r.Good) / float64(r.Comparisons)
}

// Compare runs the ratio test of query against candidate.
// For every query descriptor the two nearest candidate descriptors are found by
// Euclidean distance; the descriptor counts as good when the nearest is clearly
// closer than the runner-up. The test is one-directional.
func Compare(query, candidate Signature, p Params) Result {
	// Two neighbours are needed for the ratio; fewer means no decision is possible.
	if query.Len() < 2 || candidate.Len() < 2 {
		return Result{}
	}
	if query.Dim() != candidate.Dim() {
		return Result{}
	}

	var res Result
	for _, q := range query.descriptors {
		d1, d2 := twoNearest(q, candidate.descriptors)
		res.Comparisons++
		if d1 < p.Ratio*d2 {
			res.Good++
		}
	}
	res.Matched = float64(res.Good) > p.Accept*float64(res.Comparisons)
	return res
}

// Similar reports whether query matches candidate under p.
func Similar(query, candidate Signature, p Params) bool {
	return Compare(query, candidate, p).Matched
}

// twoNearest returns the smallest and second smallest L2 distances from q to rows.
// rows must hold at least two entries.
func twoNearest(q []float64, rows [][]float64) (float64, float64) {
	d1, d2 := math.Inf(1), math.Inf(1)
	for _, r := range rows {
		d := floats.Distance(q, r, 2)
		switch {
		case d < d1:
			d1, d2 = d, d1
		case d < d2:
			d2 = d
		}
	}
	return d1, d2
}
