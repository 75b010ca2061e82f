package loadbalance

import (
	"fmt"
	"testing"

	"rpcmesh/registry"
)

var testHosts = []registry.HostAddr{
	{IP: "10.0.0.1", Port: 8001},
	{IP: "10.0.0.2", Port: 8002},
	{IP: "10.0.0.3", Port: 8003},
}

var testWeightedHosts = []WeightedHost{
	{Host: testHosts[0], Weight: 10},
	{Host: testHosts[1], Weight: 5},
	{Host: testHosts[2], Weight: 10},
}

func TestRoundRobin(t *testing.T) {
	b := &RoundRobinBalancer{}

	// Pick 3 times, should cycle through all hosts
	results := make([]registry.HostAddr, 3)
	for i := 0; i < 3; i++ {
		host, err := b.Pick(testHosts)
		if err != nil {
			t.Fatal(err)
		}
		results[i] = *host
	}

	// Pick again, should wrap around to first
	host, _ := b.Pick(testHosts)
	if *host != results[0] {
		t.Fatalf("expect wrap around to %v, got %v", results[0], *host)
	}
}

func TestRoundRobinEmpty(t *testing.T) {
	b := &RoundRobinBalancer{}
	_, err := b.Pick([]registry.HostAddr{})
	if err == nil {
		t.Fatal("expect error for empty hosts")
	}
}

func TestWeightedRandom(t *testing.T) {
	b := &WeightedRandomBalancer{}

	counts := map[string]int{}
	n := 10000
	for i := 0; i < n; i++ {
		host, err := b.Pick(testWeightedHosts)
		if err != nil {
			t.Fatal(err)
		}
		counts[host.IP]++
	}

	// Weight ratio is 10:5:10, so 10.0.0.1 and 10.0.0.3 should be ~2x of 10.0.0.2
	ratio := float64(counts["10.0.0.1"]) / float64(counts["10.0.0.2"])
	if ratio < 1.5 || ratio > 2.5 {
		t.Fatalf("weight ratio 10.0.0.1/10.0.0.2 = %.2f, expect ~2.0", ratio)
	}
}

func TestWeightedRandomEmpty(t *testing.T) {
	b := &WeightedRandomBalancer{}
	_, err := b.Pick(nil)
	if err == nil {
		t.Fatal("expect error for empty hosts")
	}
}

func TestConsistentHash(t *testing.T) {
	b := NewConsistentHashBalancer()
	for i := range testHosts {
		b.Add(&testHosts[i])
	}

	// Same key should always map to the same host
	host1, _ := b.Pick("user-123")
	host2, _ := b.Pick("user-123")
	if *host1 != *host2 {
		t.Fatalf("same key mapped to different hosts: %v vs %v", *host1, *host2)
	}

	// Different keys should (likely) map to different hosts
	seen := map[registry.HostAddr]bool{}
	for i := 0; i < 100; i++ {
		host, _ := b.Pick(fmt.Sprintf("key-%d", i))
		seen[*host] = true
	}

	// With 100 different keys and 3 nodes, we should hit at least 2
	if len(seen) < 2 {
		t.Fatalf("expect at least 2 different hosts, got %d", len(seen))
	}
}

func TestConsistentHashEmptyRing(t *testing.T) {
	b := NewConsistentHashBalancer()
	if _, err := b.Pick("anything"); err == nil {
		t.Fatal("expect error when the ring has no hosts")
	}
}
