package game

import "math/rand"

// Bot tuning. These shape the heuristic per alive-count bucket; none of them
// is a gameplay contract.
const (
	botHeadToHeadAllIn = 0.7  // chance to pick 100 at two alive
	botTrioDamping     = 0.9  // damp previous average before targeting at three alive
	botTrioBandLow     = 35   // fallback band at three alive: [35,55]
	botTrioBandWidth   = 21
	botCrowdDamping    = 0.95 // expected drift of the average at full table
	botBaseNumber      = 45   // first-round anchor
	botBaseVariance    = 15
	botRerollAttempts  = 32
)

// botMidBands are the disjoint ranges sampled when four or fewer remain and
// duplicate numbers are penalized.
var botMidBands = [][2]int{
	{35, 45},
	{45, 55},
	{55, 65},
}

// ChooseBotNumber picks a plausible opponent number for a bot. taken holds the
// numbers already submitted this round; prevAverage is the previous round's
// average when hasPrev is true. The result is always in [0,100].
func ChooseBotNumber(rng *rand.Rand, alive int, taken []int, prevAverage float64, hasPrev bool) int {
	switch {
	case alive == 2:
		// The 0/100 rule makes 100 the percentage play.
		if rng.Float64() < botHeadToHeadAllIn {
			return 100
		}
		return rng.Intn(101)

	case alive == 3:
		if hasPrev {
			expected := prevAverage * botTrioDamping
			return clampNumber(int(expected * TargetFactor))
		}
		return clampNumber(botTrioBandLow + rng.Intn(botTrioBandWidth))

	case alive == 4:
		// Duplicates are invalid here, so re-roll on collision.
		for i := 0; i < botRerollAttempts; i++ {
			band := botMidBands[rng.Intn(len(botMidBands))]
			n := band[0] + rng.Intn(band[1]-band[0])
			if !containsNumber(taken, n) {
				return n
			}
		}
		// Bands are crowded; take anything free.
		for n := 0; n <= 100; n++ {
			if !containsNumber(taken, n) {
				return n
			}
		}
		return rng.Intn(101)

	default:
		if hasPrev {
			expected := prevAverage * botCrowdDamping
			target := expected * TargetFactor
			return clampNumber(int(target) + rng.Intn(11) - 5)
		}
		return clampNumber(botBaseNumber + rng.Intn(botBaseVariance))
	}
}

func clampNumber(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}

func containsNumber(nums []int, n int) bool {
	for _, v := range nums {
		if v == n {
			return true
		}
	}
	return false
}
