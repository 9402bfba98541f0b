package bindings

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/crossbill-org/crossbill/keyvaluedb"
	"github.com/crossbill-org/crossbill/util"
)

/*
Entry is one record of the binding audit log. The log is append only,
Version is a strictly increasing sequence number assigned by the store.
Contract names the base ledger contract the registration request belonged
to, RegisteredAt is unix seconds.
*/
type Entry struct {
	_            struct{}       `cbor:",toarray"`
	Version      uint64         `json:"version"`
	Proxy        common.Address `json:"proxy"`
	Counterpart  common.Address `json:"counterpart"`
	Contract     common.Address `json:"contract"`
	RegisteredAt int64          `json:"registered_at"`
}

/*
Store persists binding registrations as a versioned audit log so a
restarted node can reconstruct the registry and conflicting registrations
stay diagnosable after the fact. Entries are keyed by version, replaying
them in order reproduces the last write wins state.
*/
type Store struct {
	mu   sync.Mutex
	db   keyvaluedb.KeyValueDB
	next uint64
}

func NewStore(db keyvaluedb.KeyValueDB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("binding store is nil")
	}
	next, err := nextVersion(db)
	if err != nil {
		return nil, fmt.Errorf("reading binding log head: %w", err)
	}
	return &Store{db: db, next: next}, nil
}

func nextVersion(db keyvaluedb.KeyValueDB) (_ uint64, err error) {
	it := db.Last()
	defer func() { err = errors.Join(err, it.Close()) }()
	if !it.Valid() {
		return 0, nil
	}
	return util.BytesToUint64(it.Key()) + 1, nil
}

// Append records the binding and returns the entry with its assigned
// version. A zero RegisteredAt is stamped with the current time.
func (s *Store) Append(e Entry) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.Version = s.next
	if e.RegisteredAt == 0 {
		e.RegisteredAt = time.Now().Unix()
	}
	if err := s.db.Write(util.Uint64ToBytes(e.Version), e); err != nil {
		return Entry{}, fmt.Errorf("writing binding entry %d: %w", e.Version, err)
	}
	s.next++
	return e, nil
}

// Entries returns the full audit log in version order.
func (s *Store) Entries() (entries []Entry, err error) {
	it := s.db.First()
	defer func() { err = errors.Join(err, it.Close()) }()
	for ; it.Valid(); it.Next() {
		var e Entry
		if err := it.Value(&e); err != nil {
			return nil, fmt.Errorf("reading binding entry %d: %w", util.BytesToUint64(it.Key()), err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// LoadRegistry replays the audit log into a fresh registry.
func (s *Store) LoadRegistry() (*Registry, error) {
	entries, err := s.Entries()
	if err != nil {
		return nil, err
	}
	r := NewRegistry()
	for _, e := range entries {
		if err := r.Register(e.Proxy, e.Counterpart); err != nil {
			return nil, fmt.Errorf("replaying binding version %d: %w", e.Version, err)
		}
	}
	return r, nil
}
