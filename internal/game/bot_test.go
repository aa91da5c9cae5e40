package game

import (
	"math/rand"
	"testing"
)

func TestChooseBotNumber_AlwaysInRange(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for alive := 2; alive <= 5; alive++ {
		for i := 0; i < 500; i++ {
			prev := rng.Float64() * 100
			n := ChooseBotNumber(rng, alive, []int{12, 34, 56}, prev, i%2 == 0)
			if n < 0 || n > 100 {
				t.Fatalf("alive=%d got %d out of range", alive, n)
			}
		}
	}
}

func TestChooseBotNumber_HeadToHeadFavorsHundred(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	hundreds := 0
	const trials = 1000
	for i := 0; i < trials; i++ {
		if ChooseBotNumber(rng, 2, nil, 0, false) == 100 {
			hundreds++
		}
	}
	// 70% all-in plus the uniform tail; far above the uniform ~1% baseline
	if hundreds < trials/2 {
		t.Fatalf("picked 100 only %d/%d times", hundreds, trials)
	}
}

func TestChooseBotNumber_ThreeAliveTargetsDampedAverage(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	// previous average 50 -> damped 45 -> target 36, deterministic
	if n := ChooseBotNumber(rng, 3, nil, 50, true); n != 36 {
		t.Fatalf("got %d want 36", n)
	}
	// without history: mid band
	for i := 0; i < 200; i++ {
		n := ChooseBotNumber(rng, 3, nil, 0, false)
		if n < botTrioBandLow || n >= botTrioBandLow+botTrioBandWidth {
			t.Fatalf("fallback pick %d outside band", n)
		}
	}
}

func TestChooseBotNumber_FourAliveAvoidsTaken(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	taken := []int{40, 41, 42, 50, 55, 60}
	for i := 0; i < 500; i++ {
		n := ChooseBotNumber(rng, 4, taken, 0, false)
		if containsNumber(taken, n) {
			t.Fatalf("picked already-taken number %d", n)
		}
	}
}

func TestChooseBotNumber_FullTableFirstRoundBand(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	for i := 0; i < 500; i++ {
		n := ChooseBotNumber(rng, 5, nil, 0, false)
		if n < botBaseNumber || n >= botBaseNumber+botBaseVariance {
			t.Fatalf("first-round pick %d outside base band", n)
		}
	}
}
