package testutil

import "math/rand"

// WeightedChoice builds a picker that returns index i with probability
// weights[i] over the weight sum. WeightedChoice(2, 3, 5) yields 0 twenty
// percent of the time, 1 thirty percent and 2 fifty percent.
func WeightedChoice(weights ...int) func(rndm *rand.Rand) int {
	if len(weights) == 0 {
		panic("WeightedChoice needs at least one weight")
	}

	cumulative := make([]int, len(weights))
	sum := 0
	for i, w := range weights {
		if w <= 0 {
			panic("WeightedChoice weights must be positive")
		}
		sum += w
		cumulative[i] = sum
	}

	return func(rndm *rand.Rand) int {
		value := rndm.Intn(sum)
		for i, threshold := range cumulative {
			if value < threshold {
				return i
			}
		}
		return len(weights) - 1
	}
}

// RandomString draws length lowercase ascii letters from rndm.
func RandomString(rndm *rand.Rand, length int) string {
	out := make([]byte, length)
	for i := range out {
		out[i] = byte('a' + rndm.Intn(26))
	}
	return string(out)
}
