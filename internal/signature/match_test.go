package signature

import (
	"math"
	"testing"
)

// axes returns four well separated descriptors along the coordinate axes.
func axes() [][]float64 {
	return [][]float64{
		{10, 0, 0, 0},
		{0, 10, 0, 0},
		{0, 0, 10, 0},
		{0, 0, 0, 10},
	}
}

// midpoints returns descriptors equidistant from two of the axes, so every
// nearest-neighbour pair against axes() is a tie.
func midpoints() [][]float64 {
	return [][]float64{
		{5, 5, 0, 0},
		{0, 0, 5, 5},
		{5, 0, 5, 0},
		{0, 5, 0, 5},
	}
}

func perturb(rows [][]float64, delta float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = make([]float64, len(r))
		for j, v := range r {
			out[i][j] = v + delta
		}
	}
	return out
}

func TestCompare(t *testing.T) {
	a := New(axes(), nil)

	tests := []struct {
		name      string
		query     Signature
		candidate Signature
		wantGood  int
		wantComp  int
		wantMatch bool
	}{
		{
			name:      "Identical signatures",
			query:     a,
			candidate: a,
			wantGood:  4,
			wantComp:  4,
			wantMatch: true,
		},
		{
			name:      "Near duplicate",
			query:     New(perturb(axes(), 0.1), nil),
			candidate: a,
			wantGood:  4,
			wantComp:  4,
			wantMatch: true,
		},
		{
			name:      "Ambiguous neighbours",
			query:     New(midpoints(), nil),
			candidate: a,
			wantGood:  0,
			wantComp:  4,
			wantMatch: false,
		},
		{
			name:      "Empty candidate",
			query:     a,
			candidate: New(nil, nil),
			wantMatch: false,
		},
		{
			name:      "Empty query",
			query:     New(nil, nil),
			candidate: a,
			wantMatch: false,
		},
		{
			name:      "Single descriptor candidate",
			query:     a,
			candidate: New(axes()[:1], nil),
			wantMatch: false,
		},
		{
			name:      "Single descriptor query",
			query:     New(axes()[:1], nil),
			candidate: a,
			wantMatch: false,
		},
		{
			name:      "Dimension mismatch",
			query:     New([][]float64{{1, 2}, {3, 4}}, nil),
			candidate: a,
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compare(tt.query, tt.candidate, DefaultParams())
			if got.Good != tt.wantGood || got.Comparisons != tt.wantComp {
				t.Errorf("Compare() good/comparisons = %d/%d, want %d/%d", got.Good, got.Comparisons, tt.wantGood, tt.wantComp)
			}
			if got.Matched != tt.wantMatch {
				t.Errorf("Compare() matched = %v, want %v", got.Matched, tt.wantMatch)
			}
			if Similar(tt.query, tt.candidate, DefaultParams()) != tt.wantMatch {
				t.Errorf("Similar() disagrees with Compare()")
			}
		})
	}
}

func TestCompareAcceptBoundary(t *testing.T) {
	// Two descriptors that match and two that tie: good == comparisons/2.
	query := New([][]float64{
		{10, 0, 0, 0},
		{0, 10, 0, 0},
		{0, 0, 5, 5},
		{5, 0, 5, 0},
	}, nil)
	candidate := New(axes(), nil)

	res := Compare(query, candidate, DefaultParams())
	if res.Good != 2 || res.Comparisons != 4 {
		t.Fatalf("Expected 2/4 good matches, got %d/%d", res.Good, res.Comparisons)
	}
	// Exactly half is not strictly more than half.
	if res.Matched {
		t.Error("Expected no match when good matches equal the accept fraction")
	}

	loose := Params{Ratio: DefaultRatio, Accept: 0.4}
	if !Compare(query, candidate, loose).Matched {
		t.Error("Expected a match with a lower accept fraction")
	}
}

func TestResultScore(t *testing.T) {
	tests := []struct {
		res  Result
		want float64
	}{
		{Result{}, 0},
		{Result{Good: 3, Comparisons: 4}, 0.75},
		{Result{Good: 0, Comparisons: 5}, 0},
	}
	for _, tt := range tests {
		if got := tt.res.Score(); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Score() = %v, want %v", got, tt.want)
		}
	}
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		p       Params
		wantErr bool
	}{
		{"Defaults", DefaultParams(), false},
		{"Upper bound", Params{Ratio: 1, Accept: 1}, false},
		{"Zero ratio", Params{Ratio: 0, Accept: 0.5}, true},
		{"Ratio above one", Params{Ratio: 1.2, Accept: 0.5}, true},
		{"Negative accept", Params{Ratio: 0.9, Accept: -0.1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.p.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSignatureIsImmutable(t *testing.T) {
	rows := axes()
	kps := []Keypoint{{X: 1, Y: 2}}
	s := New(rows, kps)

	rows[0][0] = 999
	kps[0].X = 999
	s.Keypoints()[0].Y = 999

	if s.Descriptor(0)[0] != 10 {
		t.Errorf("Descriptor changed after caller mutation: %v", s.Descriptor(0))
	}
	if got := s.Keypoints()[0]; got.X != 1 || got.Y != 2 {
		t.Errorf("Keypoints changed after caller mutation: %+v", got)
	}
	if s.Len() != 4 || s.Dim() != 4 || s.Empty() {
		t.Errorf("Unexpected shape: len=%d dim=%d empty=%v", s.Len(), s.Dim(), s.Empty())
	}
}
