package loadbalance

import (
	"fmt"
	"sync/atomic"

	"rpcmesh/registry"
)

// RoundRobinBalancer distributes requests evenly across all hosts in order.
// Uses an atomic counter for lock-free, goroutine-safe operation.
//
// Best for: stateless services where all instances have similar capacity.
type RoundRobinBalancer struct {
	counter int64 // Atomic counter, incremented on each Pick()
}

// Pick selects the next host in round-robin order.
// The atomic counter ensures even distribution without locks.
func (b *RoundRobinBalancer) Pick(hosts []registry.HostAddr) (*registry.HostAddr, error) {
	if len(hosts) == 0 {
		return nil, fmt.Errorf("no hosts available")
	}
	index := atomic.AddInt64(&b.counter, 1) % int64(len(hosts))
	return &hosts[index], nil
}

func (b *RoundRobinBalancer) Name() string {
	return "RoundRobin"
}
