package game

import "math"

const (
	// TargetFactor scales the round average into the winning target.
	TargetFactor = 0.8

	// distanceTolerance absorbs float error when comparing distances:
	// entries within it of the minimum tie as winners, and a distance within
	// it of zero counts as an exact match.
	distanceTolerance = 1e-4

	// duplicateRuleMaxAlive: duplicate numbers are invalidated only at this
	// many alive players or fewer.
	duplicateRuleMaxAlive = 4

	// exactMatchAlive: the double penalty for an exact target hit applies
	// only at exactly this many alive players.
	exactMatchAlive = 3

	// penalties applied to non-winners
	standardPenalty   = -1
	exactMatchPenalty = -2
)

// SubmissionEntry is one alive player's number for the round.
type SubmissionEntry struct {
	PlayerID string
	Number   int
}

type ResolvedEntry struct {
	PlayerID string
	Number   int
	Distance float64
	Invalid  bool
	IsWinner bool
	Delta    int
}

type RoundOutcome struct {
	Average       float64
	Target        float64
	HasExactMatch bool
	Entries       []ResolvedEntry
}

// ResolveRound scores one round. Pure: the same entries always produce the
// same outcome. Callers must pass exactly one entry per alive player.
func ResolveRound(entries []SubmissionEntry) RoundOutcome {
	n := len(entries)
	if n == 0 {
		return RoundOutcome{}
	}

	sum := 0
	for _, e := range entries {
		sum += e.Number
	}
	average := float64(sum) / float64(n)
	target := average * TargetFactor

	out := RoundOutcome{Average: average, Target: target}
	out.Entries = make([]ResolvedEntry, n)
	for i, e := range entries {
		out.Entries[i] = ResolvedEntry{
			PlayerID: e.PlayerID,
			Number:   e.Number,
			Distance: math.Abs(float64(e.Number) - target),
		}
	}

	// Duplicate numbers become invalid once four or fewer remain.
	if n <= duplicateRuleMaxAlive {
		counts := make(map[int]int, n)
		for _, e := range entries {
			counts[e.Number]++
		}
		for i := range out.Entries {
			if counts[out.Entries[i].Number] >= 2 {
				out.Entries[i].Invalid = true
			}
		}
	}

	// Head-to-head rule: with exactly {0,100} on the table the 100 wins
	// outright, whatever the target says.
	if n == 2 && hasNumber(entries, 0) && hasNumber(entries, 100) {
		for i := range out.Entries {
			if out.Entries[i].Number == 100 {
				out.Entries[i].IsWinner = true
			} else {
				out.Entries[i].Delta = standardPenalty
			}
		}
		return out
	}

	best := math.Inf(1)
	for _, e := range out.Entries {
		if !e.Invalid && e.Distance < best {
			best = e.Distance
		}
	}
	for i := range out.Entries {
		e := &out.Entries[i]
		if !e.Invalid && e.Distance <= best+distanceTolerance {
			e.IsWinner = true
		}
	}

	if n == exactMatchAlive {
		for _, e := range out.Entries {
			if !e.Invalid && e.Distance <= distanceTolerance {
				out.HasExactMatch = true
				break
			}
		}
	}

	for i := range out.Entries {
		e := &out.Entries[i]
		switch {
		case e.IsWinner:
			e.Delta = 0
		case e.Invalid:
			e.Delta = standardPenalty
		case out.HasExactMatch:
			e.Delta = exactMatchPenalty
		default:
			e.Delta = standardPenalty
		}
	}
	return out
}

func hasNumber(entries []SubmissionEntry, n int) bool {
	for _, e := range entries {
		if e.Number == n {
			return true
		}
	}
	return false
}
