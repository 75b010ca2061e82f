package loadbalance

import (
	"fmt"
	"math/rand"

	"rpcmesh/registry"
)

// WeightedHost pairs a discovered host with a weight a caller assigns out
// of band — registry.HostAddr itself carries no weight, since the wire
// protocol's ServiceResponse only ever reports an (ip, port) pair.
type WeightedHost struct {
	Host   registry.HostAddr
	Weight int
}

// WeightedRandomBalancer is not a Balancer: it needs a weight per host the
// plain Discover() result does not carry, so it takes []WeightedHost
// directly, the same way ConsistentHashBalancer below takes a key instead
// of a host list.
type WeightedRandomBalancer struct{}

func (b *WeightedRandomBalancer) Pick(hosts []WeightedHost) (*registry.HostAddr, error) {
	if len(hosts) == 0 {
		return nil, fmt.Errorf("no hosts available")
	}

	totalWeight := 0
	for _, v := range hosts {
		totalWeight += v.Weight
	}
	if totalWeight <= 0 {
		return nil, fmt.Errorf("no positive total weight among hosts")
	}

	r := rand.Intn(totalWeight)
	for _, v := range hosts {
		r -= v.Weight
		if r < 0 {
			return &v.Host, nil
		}
	}

	return nil, fmt.Errorf("unexpected error in weighted random selection")
}

func (b *WeightedRandomBalancer) Name() string {
	return "WeightedRandom"
}
