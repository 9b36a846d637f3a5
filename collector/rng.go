package collector

import (
	"hash/fnv"
	"math/rand"
)

// RNG subsystems of one episode.
const (
	// SubsystemRoute draws route choices for (re)planning.
	SubsystemRoute = "route"
	// SubsystemSimulator seeds the simulator session.
	SubsystemSimulator = "simulator"
)

// PartitionedRNG provides deterministic, isolated RNG instances per subsystem
// of one job.
//
// Derivation formula: jobSeed XOR fnv1a64(subsystemName), where jobSeed is
// masterSeed XOR fnv1a64(job identity).
//
// Thread-safety: NOT thread-safe. Each worker owns its own instance.
type PartitionedRNG struct {
	seed       int64
	subsystems map[string]*rand.Rand
}

// JobSeed derives the seed of one job from the master seed.
func JobSeed(master int64, job Job) int64 {
	return master ^ fnv1a64(job.String())
}

// NewPartitionedRNG creates a PartitionedRNG from a job seed.
func NewPartitionedRNG(seed int64) *PartitionedRNG {
	return &PartitionedRNG{seed: seed, subsystems: make(map[string]*rand.Rand)}
}

// ForSubsystem returns the cached RNG for the named subsystem.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	rng := rand.New(rand.NewSource(p.SeedFor(name)))
	p.subsystems[name] = rng
	return rng
}

// SeedFor returns the derived seed of a subsystem.
func (p *PartitionedRNG) SeedFor(name string) int64 {
	return p.seed ^ fnv1a64(name)
}

func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
