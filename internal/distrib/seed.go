package distrib

import "golang.org/x/exp/rand"

// splitmix64 is the finaliser of the SplitMix64 generator. It is used to
// spread structured (seed, index) tuples into well-mixed seeds so that
// adjacent frames do not get correlated generators.
func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// NewRand returns a generator for one unit of simulation work, derived
// deterministically from the master seed, the frame index and the
// repetition index. Two tasks never share a generator, and the same
// (seed, frame, repeat) tuple always reproduces the same stream.
func NewRand(masterSeed uint64, frame, repeat int) *rand.Rand {
	s := splitmix64(masterSeed)
	s = splitmix64(s ^ uint64(frame))
	s = splitmix64(s ^ uint64(repeat)<<32)
	return rand.New(rand.NewSource(s))
}
