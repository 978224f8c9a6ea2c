package scoring

// positionScores is the fixed position to score mapping. Anything else,
// including an absent position, scores zero.
var positionScores = map[int]float64{
	1: 1.0,
	2: 0.7,
	3: 0.4,
}

// ScoreFor maps a brand position to a score in [0,1]. found=false means the
// brand was not in the ranking.
func ScoreFor(position int, found bool) float64 {
	if !found {
		return 0
	}
	return positionScores[position]
}

// ScoreForPtr is ScoreFor for nullable stored positions.
func ScoreForPtr(position *int) float64 {
	if position == nil {
		return 0
	}
	return ScoreFor(*position, true)
}
