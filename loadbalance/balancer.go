// Package loadbalance provides strategies for picking one provider host out
// of the list a registry.Client's Discover call returns.
//
// Three strategies are implemented:
//   - RoundRobin:      Stateless services, equal-capacity instances
//   - WeightedRandom:  Heterogeneous instances (different CPU/memory)
//   - ConsistentHash:  Stateful services requiring cache affinity
package loadbalance

import "rpcmesh/registry"

// Balancer is the interface for load balancing strategies.
// The client calls Pick() before each RPC to select a target instance.
type Balancer interface {
	// Pick selects one host from the currently discovered list.
	// Called on every RPC call — must be goroutine-safe.
	Pick(hosts []registry.HostAddr) (*registry.HostAddr, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}
