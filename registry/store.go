package registry

import "sync"

// Store is a CRUD-shaped view of "who provides method" independent of the
// wire protocol — the shape the teacher's own Registry interface had,
// retargeted from its etcd-only ServiceInstance to the core's HostAddr.
// cmd/registryd mirrors every wire REGISTRY operation into a Store, so
// registrations are recorded outside the TCP protocol; registryd itself
// never reads the Store back. The wire-protocol-facing path is
// Core.OnServiceRequest, not this interface.
type Store interface {
	Register(method string, host HostAddr) error
	Deregister(method string, host HostAddr) error
	Discover(method string) ([]HostAddr, error)
	Watch(method string) <-chan []HostAddr
}

// InMemoryStore is the simplest Store: a plain map guarded by a mutex, with
// no connection/notification bookkeeping. It exists alongside Core (which
// owns the real wire-driven provider/discoverer indices) purely as the
// default Store backend for administrative tooling.
type InMemoryStore struct {
	mu   sync.Mutex
	data map[string][]HostAddr
}

// NewInMemoryStore creates an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{data: make(map[string][]HostAddr)}
}

func (s *InMemoryStore) Register(method string, host HostAddr) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.data[method] {
		if h == host {
			return nil
		}
	}
	s.data[method] = append(s.data[method], host)
	return nil
}

func (s *InMemoryStore) Deregister(method string, host HostAddr) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	hosts := s.data[method]
	for i, h := range hosts {
		if h == host {
			s.data[method] = append(hosts[:i], hosts[i+1:]...)
			break
		}
	}
	return nil
}

func (s *InMemoryStore) Discover(method string) ([]HostAddr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]HostAddr, len(s.data[method]))
	copy(out, s.data[method])
	return out, nil
}

// Watch is not supported by InMemoryStore — it has no push mechanism of its
// own; callers that need live updates should talk to Core over the wire
// protocol instead. The returned channel is closed immediately.
func (s *InMemoryStore) Watch(method string) <-chan []HostAddr {
	ch := make(chan []HostAddr)
	close(ch)
	return ch
}
