// Package etcd provides the alternate registry.Store backend §3 of
// SPEC_FULL.md keeps around: TTL-leased registration in etcd instead of the
// in-memory Core. It sits beside Core rather than replacing it — the wire
// protocol always goes through Core.OnServiceRequest; this Store gives
// cmd/registryd operators a copy of registrations in etcd, readable from
// outside the process. Each entry is held by a lease this process keeps
// alive, so entries expire about ttl seconds after registryd stops.
package etcd

import (
	"context"
	"encoding/json"
	"fmt"

	clientv3 "go.etcd.io/etcd/client/v3"

	"rpcmesh/registry"
)

const keyPrefix = "/rpcmesh/"

// Store implements registry.Store on top of an etcd v3 client.
type Store struct {
	client *clientv3.Client
	ttl    int64
}

// New connects to the given etcd endpoints. ttl is the lease seconds used
// for every Register call.
func New(endpoints []string, ttl int64) (*Store, error) {
	c, err := clientv3.New(clientv3.Config{Endpoints: endpoints})
	if err != nil {
		return nil, fmt.Errorf("etcd: connect: %w", err)
	}
	return &Store{client: c, ttl: ttl}, nil
}

func key(method string, host registry.HostAddr) string {
	return fmt.Sprintf("%s%s/%s:%d", keyPrefix, method, host.IP, host.Port)
}

// Register puts method/host in etcd under a TTL lease and starts a
// background keep-alive; if the process dies, the lease expires and the
// entry disappears on its own.
func (s *Store) Register(method string, host registry.HostAddr) error {
	ctx := context.Background()
	lease, err := s.client.Grant(ctx, s.ttl)
	if err != nil {
		return fmt.Errorf("etcd: grant lease: %w", err)
	}
	val, err := json.Marshal(host)
	if err != nil {
		return fmt.Errorf("etcd: marshal host: %w", err)
	}
	if _, err := s.client.Put(ctx, key(method, host), string(val), clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("etcd: put: %w", err)
	}
	ch, err := s.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return fmt.Errorf("etcd: keepalive: %w", err)
	}
	go func() {
		for range ch {
		}
	}()
	return nil
}

// Deregister removes method/host from etcd immediately.
func (s *Store) Deregister(method string, host registry.HostAddr) error {
	_, err := s.client.Delete(context.Background(), key(method, host))
	if err != nil {
		return fmt.Errorf("etcd: delete: %w", err)
	}
	return nil
}

// Discover returns every host currently registered under method.
func (s *Store) Discover(method string) ([]registry.HostAddr, error) {
	prefix := keyPrefix + method + "/"
	resp, err := s.client.Get(context.Background(), prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("etcd: get: %w", err)
	}
	hosts := make([]registry.HostAddr, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var h registry.HostAddr
		if err := json.Unmarshal(kv.Value, &h); err != nil {
			continue
		}
		hosts = append(hosts, h)
	}
	return hosts, nil
}

// Watch streams the current host list for method whenever etcd reports a
// change under its key prefix.
func (s *Store) Watch(method string) <-chan []registry.HostAddr {
	out := make(chan []registry.HostAddr, 1)
	prefix := keyPrefix + method + "/"
	go func() {
		watch := s.client.Watch(context.Background(), prefix, clientv3.WithPrefix())
		for range watch {
			hosts, err := s.Discover(method)
			if err != nil {
				continue
			}
			out <- hosts
		}
	}()
	return out
}
