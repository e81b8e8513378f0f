package placement

import (
	"math"
	"sort"
)

// BuildStrawBucket computes straw factors for the given weights so that
// empirical draw frequencies match the weights' relative proportions,
// then returns a Bucket using the Straw algorithm over those children.
//
// The factors are computed by processing children from heaviest to
// lightest, scaling each new factor down from the previous one by the
// ratio needed to keep cumulative probabilities correct. This is the
// "straw2" construction: unlike naive straw (factor == weight), it
// reproduces target probabilities even when weights are very uneven.
//
// The arithmetic is deliberately done in float32, matching upstream's
// source precision exactly: probabilities are computed in float64 and
// only their per-step difference is narrowed to float32 before feeding
// the recurrence, so the truncated factors come out bit-for-bit
// identical across implementations (tests pin exact values).
func BuildStrawBucket(id uint32, pickMode PickMode, children []NodeEntry) *Bucket {
	n := len(children)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return children[order[a]].Weight > children[order[b]].Weight
	})

	var total uint32
	for _, c := range children {
		total += c.Weight
	}

	// Probabilities computed at float64 precision from the integer weights.
	probs := make([]float64, n)
	for i, idx := range order {
		probs[i] = float64(children[idx].Weight) / float64(total)
	}

	factors := make([]uint32, n)
	factors[order[0]] = 0x100000
	mult := float32(1.0)
	for i := 1; i < n; i++ {
		prev := float32(factors[order[i-1]])
		diff := float32(probs[i-1] - probs[i])
		inner := float32(1.0) - float32(i)*mult*diff
		p := float32(math.Pow(float64(inner), 1.0/float64(i)))
		f := prev * p
		factors[order[i]] = uint32(f)
		ratio := prev / float32(factors[order[i]])
		mult = mult * float32(math.Pow(float64(ratio), float64(i)))
	}

	return &Bucket{
		Id:        id,
		Algorithm: Algorithm{Kind: Straw, Factors: factors},
		PickMode:  pickMode,
		Children:  children,
	}
}
