package distepi

import (
	"math/rand"

	rv "github.com/kentwait/randomvariate"
)

// splitMix64 derives a well-mixed 64-bit seed from an arbitrary 64-bit
// input. Used to fan a single master seed out into one independent stream
// per thread (§4.14, resolving the §9 Open Question on seeding).
func splitMix64(x uint64) uint64 {
	x += 0x9E3779B97F4A7C15
	z := x
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

// ThreadSeed computes the deterministic per-thread seed for a given master
// seed and global thread index (processRank*threadsPerProcess+localIndex).
// Same (seed, topology) always yields the same stream, giving byte-
// reproducible CSV output (§8 Invariant 7) for a fixed process/thread count.
func ThreadSeed(masterSeed int64, globalThreadIndex int) int64 {
	return int64(splitMix64(uint64(masterSeed) ^ uint64(globalThreadIndex)))
}

// NewThreadRNG builds the per-thread RNG source for a given global thread
// index under a master seed.
func NewThreadRNG(masterSeed int64, globalThreadIndex int) *rand.Rand {
	return rand.New(rand.NewSource(ThreadSeed(masterSeed, globalThreadIndex)))
}

// DistributionKind tags a dwell-time distribution (§3 Distribution).
type DistributionKind int

const (
	DistFixed DistributionKind = iota
	DistDiscrete
	DistUniformSet
	DistUniformInterval
	DistNormal
	DistGamma
)

// Distribution samples a non-negative integer number of dwell-ticks. The
// Normal/Gamma cases delegate to github.com/kentwait/randomvariate, the
// same sampling library the teacher repo uses for its Poisson/Binomial
// draws, and are not passed rng; the Fixed/Discrete/UniformSet/
// UniformInterval cases are computed here, drawing from rng.
type Distribution struct {
	Kind DistributionKind

	Fixed int

	DiscreteValues []int
	DiscreteProbs  []float64 // must sum to 1 (§3 invariant)

	SetValues []int

	Min, Max int // uniform-interval

	Mean, StdDev float64 // normal

	Shape, Scale float64 // gamma
}

// Sample draws a single non-negative integer dwell time using rng.
func (d Distribution) Sample(rng *rand.Rand) int {
	switch d.Kind {
	case DistFixed:
		return d.Fixed
	case DistDiscrete:
		u := rng.Float64()
		var cum float64
		for i, p := range d.DiscreteProbs {
			cum += p
			if u <= cum {
				return d.DiscreteValues[i]
			}
		}
		return d.DiscreteValues[len(d.DiscreteValues)-1]
	case DistUniformSet:
		return d.SetValues[rng.Intn(len(d.SetValues))]
	case DistUniformInterval:
		if d.Max <= d.Min {
			return d.Min
		}
		return d.Min + rng.Intn(d.Max-d.Min+1)
	case DistNormal:
		v := rv.Normal(d.Mean, d.StdDev)
		return clampNonNegative(v)
	case DistGamma:
		v := rv.Gamma(d.Shape, d.Scale)
		return clampNonNegative(v)
	default:
		return 0
	}
}

func clampNonNegative(v float64) int {
	if v < 0 {
		return 0
	}
	return int(v + 0.5)
}
