package tlstrack

import (
	"math/rand"

	"github.com/go-memscope/memscope/clock"
)

// SizeBucket classifies an allocation by size for the §4.8 dual-
// dimension sampling decision.
type SizeBucket uint8

const (
	BucketSmall SizeBucket = iota
	BucketMedium
	BucketLarge
)

// SamplingPolicy is the §4.8 dual-dimension decision: a base rate per
// size bucket, escalated to a higher rate once a call stack has been
// observed more than FrequencyThreshold times.
type SamplingPolicy struct {
	SmallMaxBytes  uint64 // <= this is BucketSmall
	MediumMaxBytes uint64 // <= this (and > SmallMaxBytes) is BucketMedium; above is BucketLarge

	SmallRate  float64
	MediumRate float64
	LargeRate  float64

	FrequencyThreshold uint64
	EscalatedRate      float64

	// GlobalSeed combines with a goroutine's id to derive that
	// goroutine's deterministic PRNG seed (§9 — reproducible test
	// runs under a fixed seed).
	GlobalSeed uint64
}

// DefaultPolicy matches §4.8's "typical defaults": large 100%, medium
// 10%, small 1%.
func DefaultPolicy(seed uint64) SamplingPolicy {
	return SamplingPolicy{
		SmallMaxBytes:      256,
		MediumMaxBytes:     4096,
		SmallRate:          0.01,
		MediumRate:         0.10,
		LargeRate:          1.0,
		FrequencyThreshold: 1000,
		EscalatedRate:      1.0,
		GlobalSeed:         seed,
	}
}

func (p SamplingPolicy) bucket(size uint64) SizeBucket {
	switch {
	case size <= p.SmallMaxBytes:
		return BucketSmall
	case size <= p.MediumMaxBytes:
		return BucketMedium
	default:
		return BucketLarge
	}
}

func (p SamplingPolicy) baseRate(b SizeBucket) float64 {
	switch b {
	case BucketSmall:
		return p.SmallRate
	case BucketMedium:
		return p.MediumRate
	default:
		return p.LargeRate
	}
}

// decide is the deterministic function of (size_bucket,
// observed_frequency, random draw) the spec calls for: escalate to
// EscalatedRate once freq exceeds the threshold, otherwise use the
// bucket's base rate, then compare against one draw from rng.
func (p SamplingPolicy) decide(size uint64, freq uint64, rng *rand.Rand) bool {
	rate := p.baseRate(p.bucket(size))
	if freq > p.FrequencyThreshold {
		rate = p.EscalatedRate
	}
	if rate >= 1.0 {
		return true
	}
	if rate <= 0 {
		return false
	}
	return rng.Float64() < rate
}

// newGoroutineRNG derives a goroutine-local PRNG seeded from the
// policy's global seed and the calling goroutine's id, so repeated
// runs under the same GlobalSeed sample the same events per goroutine
// regardless of scheduling (§9's reproducibility requirement).
func newGoroutineRNG(seed uint64, gid clock.GoroutineID) *rand.Rand {
	mixed := seed ^ (uint64(gid)*0x9E3779B97F4A7C15 + 0xBF58476D1CE4E5B9)
	return rand.New(rand.NewSource(int64(mixed)))
}
