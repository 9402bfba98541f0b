package bindings

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/crossbill-org/crossbill/types"
)

/*
Registry maps proxy addresses to their counterpart addresses on the other
ledger. Registrations are rare serialized administrative operations, reads
are concurrent. A proxy binds to exactly one counterpart, registering again
replaces the previous binding.

Bindings must be registered before a transaction depending on them is
classified, the registry performs no discovery on its own.
*/
type Registry struct {
	mu       sync.RWMutex
	bindings map[common.Address]common.Address
}

func NewRegistry() *Registry {
	return &Registry{bindings: map[common.Address]common.Address{}}
}

func (r *Registry) Register(proxy, counterpart common.Address) error {
	b := types.ProxyBinding{Proxy: proxy, Counterpart: counterpart}
	if err := b.IsValid(); err != nil {
		return fmt.Errorf("invalid proxy binding: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings[proxy] = counterpart
	return nil
}

func (r *Registry) Resolve(proxy common.Address) (common.Address, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counterpart, ok := r.bindings[proxy]
	return counterpart, ok
}

// Snapshot returns an immutable view of the current bindings, safe to hand
// to classification without holding the registry lock.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := make(Snapshot, len(r.bindings))
	for proxy, counterpart := range r.bindings {
		s[proxy] = counterpart
	}
	return s
}

// Bindings lists the registered bindings ordered by proxy address.
func (r *Registry) Bindings() []types.ProxyBinding {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.ProxyBinding, 0, len(r.bindings))
	for proxy, counterpart := range r.bindings {
		out = append(out, types.ProxyBinding{Proxy: proxy, Counterpart: counterpart})
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Proxy.Bytes(), out[j].Proxy.Bytes()) < 0
	})
	return out
}

// Snapshot is a point-in-time copy of the registry contents. Later
// registrations do not show through, each classification works against the
// bindings that existed when its snapshot was taken.
type Snapshot map[common.Address]common.Address

func (s Snapshot) Resolve(proxy common.Address) (common.Address, bool) {
	counterpart, ok := s[proxy]
	return counterpart, ok
}
