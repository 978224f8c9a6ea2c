package scoring

import (
	"math"
	"testing"
)

func TestScoreFor(t *testing.T) {
	tests := []struct {
		position int
		found    bool
		want     float64
	}{
		{1, true, 1.0},
		{2, true, 0.7},
		{3, true, 0.4},
		{4, true, 0},
		{0, true, 0},
		{-1, true, 0},
		{1, false, 0},
	}

	for _, tt := range tests {
		if got := ScoreFor(tt.position, tt.found); got != tt.want {
			t.Errorf("ScoreFor(%d, %v) = %v, want %v", tt.position, tt.found, got, tt.want)
		}
	}
}

func TestScoreMonotonic(t *testing.T) {
	if !(ScoreFor(1, true) > ScoreFor(2, true) && ScoreFor(2, true) > ScoreFor(3, true) && ScoreFor(3, true) > ScoreFor(0, false)) {
		t.Error("scores must strictly decrease with position")
	}
}

func TestScoreForPtr(t *testing.T) {
	two := 2
	if got := ScoreForPtr(&two); got != 0.7 {
		t.Errorf("ScoreForPtr(2) = %v, want 0.7", got)
	}
	if got := ScoreForPtr(nil); got != 0 {
		t.Errorf("ScoreForPtr(nil) = %v, want 0", got)
	}
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name   string
		scores []float64
		want   float64
	}{
		{"empty", nil, 0},
		{"top three", []float64{1.0, 0.7, 0.4}, 70.0},
		{"all first", []float64{1, 1, 1}, 100},
		{"all absent", []float64{0, 0}, 0},
		{"repeating decimal", []float64{1, 0, 0}, 33.33},
		{"rounds up", []float64{1, 1, 0}, 66.67},
		{"mixed", []float64{0.7, 0.4, 0, 1}, 52.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Aggregate(tt.scores); got != tt.want {
				t.Errorf("Aggregate(%v) = %v, want %v", tt.scores, got, tt.want)
			}
		})
	}
}

func TestRound2(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{70.00000000000001, 70},
		{12.344, 12.34},
		{0.125, 0.13},
		{-0.125, -0.13},
	}
	for _, tt := range tests {
		if got := Round2(tt.in); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Round2(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestAggregateByCategory(t *testing.T) {
	got := AggregateByCategory(map[string][]float64{
		"comparison":    {1.0, 0.4},
		"uncategorized": {0},
		"empty":         nil,
	})

	want := map[string]float64{"comparison": 70, "uncategorized": 0, "empty": 0}
	if len(got) != len(want) {
		t.Fatalf("got %d categories, want %d", len(got), len(want))
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("category %s = %v, want %v", k, got[k], v)
		}
	}
}

func TestIntentWeightedIndex(t *testing.T) {
	scores := map[string][]float64{
		"purchase": {1.0, 1.0},
		"research": {0.4, 0},
		"other":    {0.7},
	}

	t.Run("weighted", func(t *testing.T) {
		got := IntentWeightedIndex(scores, map[string]float64{"purchase": 75, "research": 25})
		// (100*75 + 20*25) / 100
		if got != 80 {
			t.Errorf("got %v, want 80", got)
		}
	})

	t.Run("no weights falls back to plain mean", func(t *testing.T) {
		got := IntentWeightedIndex(scores, nil)
		// (1+1+0.4+0+0.7)/5 = 0.62
		if got != 62 {
			t.Errorf("got %v, want 62", got)
		}
	})

	t.Run("zero weights fall back", func(t *testing.T) {
		got := IntentWeightedIndex(scores, map[string]float64{"purchase": 0})
		if got != 62 {
			t.Errorf("got %v, want 62", got)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		if got := IntentWeightedIndex(nil, nil); got != 0 {
			t.Errorf("got %v, want 0", got)
		}
	})
}

func TestParseWeight(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
		ok   bool
	}{
		{"40%", 40, true},
		{" 12.5 % ", 12.5, true},
		{"35", 35, true},
		{"0%", 0, true},
		{"", 0, false},
		{"%", 0, false},
		{"high", 0, false},
		{"-5%", 0, false},
	}

	for _, tt := range tests {
		got, ok := ParseWeight(tt.raw)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseWeight(%q) = (%v, %v), want (%v, %v)", tt.raw, got, ok, tt.want, tt.ok)
		}
	}
}
