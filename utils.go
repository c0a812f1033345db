package pe

import (
	"math"
	"math/bits"

	"golang.org/x/exp/constraints"
)

// AlignUp rounds v up to the next multiple of powerOfTwo.
func AlignUp[V constraints.Integer](v V, powerOfTwo V) V {
	if v < 0 || powerOfTwo <= 0 || bits.OnesCount64(uint64(powerOfTwo)) != 1 {
		panic("invalid arguments to AlignUp")
	}
	return v + ((-v) & (powerOfTwo - 1))
}

type EntropyCalculator struct {
	size        int
	frequencies [256]uint64
}

func (e *EntropyCalculator) Write(p []byte) (n int, err error) {
	e.size += len(p)
	for _, v := range p {
		e.frequencies[v]++
	}
	return len(p), err
}

func (e *EntropyCalculator) Sum() (entropy float64) {
	if e.size == 0 {
		return
	}

	for _, p := range e.frequencies {
		if p > 0 {
			freq := float64(p) / float64(e.size)
			entropy += freq * math.Log2(freq)
		}
	}
	return -entropy
}

// stringInSlice checks weather a string exists in a slice of strings.
func stringInSlice(a string, list []string) bool {
	for _, b := range list {
		if b == a {
			return true
		}
	}
	return false
}
