package sim

import (
	"fmt"
	"hash/fnv"
	"math/rand"
)

// === SimulationKey ===

// SimulationKey uniquely identifies a reproducible experiment.
// Two experiments with the same SimulationKey and identical configuration
// MUST produce bit-for-bit identical statistics, whatever the degree of
// replication parallelism.
type SimulationKey int64

// NewSimulationKey creates a SimulationKey from a seed value.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// ForReplication derives the key of replication r. Each replication owns an
// independent PartitionedRNG so replications may run in any order.
func (k SimulationKey) ForReplication(r int) SimulationKey {
	return SimulationKey(int64(k) ^ fnv1a64(SubsystemReplication(r)))
}

// === Subsystem Constants ===

const (
	// SubsystemArrivals drives inbound inter-arrival times.
	SubsystemArrivals = "arrivals"

	// SubsystemService drives service durations.
	SubsystemService = "service"

	// SubsystemPatience drives caller patience (abandonment).
	SubsystemPatience = "patience"

	// SubsystemDialer decides whether a dialed call reaches the customer.
	SubsystemDialer = "dialer"
)

// SubsystemReplication returns the subsystem name for replication N.
func SubsystemReplication(id int) string {
	return fmt.Sprintf("replication_%d", id)
}

// === PartitionedRNG ===

// PartitionedRNG provides deterministic, isolated RNG instances per subsystem.
//
// Derivation formula: masterSeed XOR fnv1a64(subsystemName).
//
// Thread-safety: NOT thread-safe. One instance per replication goroutine.
type PartitionedRNG struct {
	key        SimulationKey
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a SimulationKey.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:        key,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns a deterministically-seeded RNG for the named subsystem.
// The same subsystem name always returns the same *rand.Rand instance (cached).
// Never returns nil.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	rng := rand.New(rand.NewSource(int64(p.key) ^ fnv1a64(name)))
	p.subsystems[name] = rng
	return rng
}

// Key returns the SimulationKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
